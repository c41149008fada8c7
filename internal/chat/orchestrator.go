// Package chat turns free-form messages into AI replies or command calls.
package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/alekspetrov/turma/internal/commands"
	"github.com/alekspetrov/turma/internal/comms"
	"github.com/alekspetrov/turma/internal/genai"
	"github.com/alekspetrov/turma/internal/logging"
)

// Generator produces one model answer. *genai.Engine implements it.
type Generator interface {
	Generate(ctx context.Context, req *genai.Request) (*genai.Response, error)
}

// CommandInvoker runs a command on behalf of the model.
// *commands.Dispatcher implements it.
type CommandInvoker interface {
	Invoke(ctx context.Context, ev *comms.InboundEvent, name string, args []string) error
}

// CommandCatalog resolves the commands exposed as functions.
type CommandCatalog interface {
	Lookup(name string) (*commands.Command, bool)
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithCommands lets the model call the configured commands through invoker.
func WithCommands(invoker CommandInvoker, catalog CommandCatalog) Option {
	return func(o *Orchestrator) {
		o.invoker = invoker
		o.catalog = catalog
	}
}

// WithStore persists history to store.
func WithStore(store HistoryStore) Option {
	return func(o *Orchestrator) { o.store = store }
}

// Orchestrator builds generation requests and delivers the answers.
type Orchestrator struct {
	gen       Generator
	transport comms.Transport
	history   *History
	store     HistoryStore
	invoker   CommandInvoker
	catalog   CommandCatalog
	cfg       *Config
	log       *slog.Logger
	wg        sync.WaitGroup
}

// New creates an Orchestrator.
func New(gen Generator, transport comms.Transport, history *History, cfg *Config, opts ...Option) *Orchestrator {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if history == nil {
		history = NewHistory(cfg.HistorySize, cfg.HistoryTTL, nil)
	}
	o := &Orchestrator{
		gen:       gen,
		transport: transport,
		history:   history,
		cfg:       cfg,
		log:       logging.WithComponent("chat"),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// History returns the in-memory history.
func (o *Orchestrator) History() *History { return o.history }

// Wait blocks until pending history writes finish.
func (o *Orchestrator) Wait() { o.wg.Wait() }

// Ask answers question in the event's chat.
func (o *Orchestrator) Ask(ctx context.Context, ev *comms.InboundEvent, question string) error {
	return o.Respond(ctx, ev, question)
}

// Respond generates an answer to text and delivers it, either as a reply or
// by running the command the model called.
func (o *Orchestrator) Respond(ctx context.Context, ev *comms.InboundEvent, text string) error {
	turn := genai.Message{Role: genai.RoleUser, Text: attribute(ev, text)}
	req := &genai.Request{
		System:    o.cfg.Persona,
		Messages:  append(o.load(ctx, ev.ChatID), turn),
		Functions: o.declarations(),
	}

	resp, err := o.gen.Generate(ctx, req)
	if err != nil {
		if errors.Is(err, genai.ErrExhausted) {
			return o.reply(ctx, ev, genai.UserMessage)
		}
		return fmt.Errorf("generation failed: %w", err)
	}

	if resp.Call != nil {
		return o.call(ctx, ev, turn, resp.Call)
	}

	o.remember(ev.ChatID, turn, genai.Message{Role: genai.RoleModel, Text: resp.Text})
	return o.reply(ctx, ev, resp.Text)
}

func (o *Orchestrator) call(ctx context.Context, ev *comms.InboundEvent, turn genai.Message, call *genai.FunctionCall) error {
	if o.invoker == nil || !o.allowed(call.Name) {
		return fmt.Errorf("model called undeclared function %q", call.Name)
	}

	var args []string
	if raw, ok := call.Args["args"].(string); ok {
		args = strings.Fields(raw)
	}
	o.log.Info("model invoked command",
		slog.String("chat_id", ev.ChatID),
		slog.String("command", call.Name),
		slog.Int("args", len(args)))

	o.remember(ev.ChatID, turn, genai.Message{
		Role: genai.RoleModel,
		Text: strings.TrimSpace(fmt.Sprintf("[comando %s %s]", call.Name, strings.Join(args, " "))),
	})
	return o.invoker.Invoke(ctx, ev, call.Name, args)
}

func (o *Orchestrator) reply(ctx context.Context, ev *comms.InboundEvent, text string) error {
	for i, chunk := range comms.ChunkContent(text, o.cfg.MaxReplyLen) {
		msg := comms.OutboundMessage{Text: chunk}
		if i == 0 && ev.IsGroup() {
			msg.QuotedID = ev.ID
		}
		if _, err := o.transport.SendMessage(ctx, ev.ChatID, msg); err != nil {
			return fmt.Errorf("failed to send reply: %w", err)
		}
	}
	return nil
}

func (o *Orchestrator) allowed(name string) bool {
	for _, f := range o.cfg.Functions {
		if f == name {
			return true
		}
	}
	return false
}

// declarations exposes the configured commands as functions. Commands that
// are not registered are left out.
func (o *Orchestrator) declarations() []genai.FunctionDecl {
	if o.invoker == nil || o.catalog == nil {
		return nil
	}
	var decls []genai.FunctionDecl
	for _, name := range o.cfg.Functions {
		cmd, ok := o.catalog.Lookup(name)
		if !ok || cmd.Name != name {
			continue
		}
		decl := genai.FunctionDecl{Name: cmd.Name, Description: cmd.Description}
		if cmd.Usage != "" {
			decl.Parameters = map[string]any{
				"type": "object",
				"properties": map[string]any{
					"args": map[string]any{
						"type":        "string",
						"description": "Argumentos: " + cmd.Usage,
					},
				},
			}
		}
		decls = append(decls, decl)
	}
	return decls
}

// load prefers the store and falls back to memory when it is slow or down.
func (o *Orchestrator) load(ctx context.Context, chatID string) []genai.Message {
	if o.store == nil {
		return o.history.Get(chatID)
	}

	ctx, cancel := context.WithTimeout(ctx, o.cfg.StoreTimeout)
	defer cancel()

	turns, err := o.store.RecentHistory(ctx, chatID, o.cfg.HistorySize)
	if err != nil {
		o.log.Debug("history store unavailable, using memory",
			slog.String("chat_id", chatID), slog.Any("error", err))
		return o.history.Get(chatID)
	}
	if len(turns) == 0 {
		return o.history.Get(chatID)
	}
	return turns
}

func (o *Orchestrator) remember(chatID string, turns ...genai.Message) {
	o.history.Add(chatID, turns...)
	if o.store == nil {
		return
	}

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), o.cfg.StoreTimeout)
		defer cancel()
		if err := o.store.AppendHistory(ctx, chatID, turns); err != nil {
			o.log.Warn("failed to persist history",
				slog.String("chat_id", chatID), slog.Any("error", err))
		}
	}()
}

// attribute prefixes group messages with the sender so the model can tell
// participants apart.
func attribute(ev *comms.InboundEvent, text string) string {
	if !ev.IsGroup() {
		return text
	}
	name := ev.PushName
	if name == "" {
		name, _, _ = strings.Cut(ev.SenderID, "@")
	}
	return fmt.Sprintf("%s: %s", name, text)
}
