// Package router is the top-level inbound event handler. It classifies every
// event and hands it to the component that owns its route.
package router

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/alekspetrov/turma/internal/clock"
	"github.com/alekspetrov/turma/internal/comms"
	"github.com/alekspetrov/turma/internal/games"
	"github.com/alekspetrov/turma/internal/intent"
	"github.com/alekspetrov/turma/internal/logging"
)

// Classifier routes events. *intent.Classifier implements it.
type Classifier interface {
	Classify(ctx context.Context, ev *comms.InboundEvent) intent.Classification
}

// Games handles reactions and prepares submission payloads.
// *games.Service implements it.
type Games interface {
	React(ctx context.Context, ev *comms.InboundEvent) (bool, error)
	PhotoPayload(ctx context.Context, ev *comms.InboundEvent) (games.Payload, error)
	ConfessionPayload(text string) (games.Payload, error)
}

// Pending starts and continues pending interactions.
// *pending.Resolver implements it.
type Pending interface {
	Begin(ctx context.Context, ev *comms.InboundEvent, v games.Variant, p games.Payload) error
	Handle(ctx context.Context, ev *comms.InboundEvent) (bool, error)
}

// Responder answers free-form text. *chat.Orchestrator implements it.
type Responder interface {
	Respond(ctx context.Context, ev *comms.InboundEvent, text string) error
}

// Executor runs prefixed commands. *commands.Dispatcher implements it.
type Executor interface {
	Execute(ctx context.Context, ev *comms.InboundEvent, text string) error
}

// MessageLog stores inbound messages.
type MessageLog interface {
	LogMessage(ctx context.Context, rec comms.MessageRecord) error
}

// Deps are the collaborators of a Handler. Chat and Log are optional.
type Deps struct {
	Classifier Classifier
	Games      Games
	Pending    Pending
	Chat       Responder
	Commands   Executor
	Transport  comms.Transport
	Log        MessageLog
	Clock      clock.Clock
}

// Config holds handler settings.
type Config struct {
	LogTimeout time.Duration
}

// Handler is the single entry point for inbound events.
type Handler struct {
	deps Deps
	cfg  Config
	log  *slog.Logger
	wg   sync.WaitGroup
}

// New creates a Handler.
func New(deps Deps, cfg Config) *Handler {
	if cfg.LogTimeout <= 0 {
		cfg.LogTimeout = 5 * time.Second
	}
	deps.Clock = clock.Or(deps.Clock)
	return &Handler{deps: deps, cfg: cfg, log: logging.WithComponent("router")}
}

// Wait blocks until pending message log writes finish.
func (h *Handler) Wait() { h.wg.Wait() }

// HandleEvent processes one inbound event. It never panics and never
// returns an error; failures are logged and answered with an apology.
func (h *Handler) HandleEvent(ctx context.Context, ev *comms.InboundEvent) {
	ctx = logging.ContextWithMessage(ctx, ev.ChatID, ev.SenderID, ev.ID)
	log := logging.WithContext(ctx)

	defer func() {
		if r := recover(); r != nil {
			log.Error("panic while handling event",
				slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())))
			h.reply(ctx, ev.ChatID, comms.Apology)
		}
	}()

	cl := h.deps.Classifier.Classify(ctx, ev)
	if cl.Intent == intent.IntentDrop {
		log.Debug("event dropped", slog.String("reason", cl.Reason))
		return
	}
	if cl.Persist() {
		h.record(ev, cl)
	}

	start := h.deps.Clock.Now()
	err := h.route(ctx, ev, cl)
	if err == nil {
		log.Debug("event handled",
			slog.String("route", string(cl.Intent)),
			slog.Int64("duration_ms", h.deps.Clock.Now().Sub(start).Milliseconds()))
		return
	}
	h.fail(ctx, ev, cl, err)
}

func (h *Handler) route(ctx context.Context, ev *comms.InboundEvent, cl intent.Classification) error {
	switch cl.Intent {
	case intent.IntentReaction:
		_, err := h.deps.Games.React(ctx, ev)
		return err

	case intent.IntentPending:
		handled, err := h.deps.Pending.Handle(ctx, ev)
		if err != nil || handled {
			return err
		}
		// The interaction expired after classification.
		return h.respond(ctx, ev, cl.Text)

	case intent.IntentSubmission:
		return h.submit(ctx, ev, cl.Submission)

	case intent.IntentMention, intent.IntentChat:
		return h.respond(ctx, ev, cl.Text)

	case intent.IntentCommand:
		return h.deps.Commands.Execute(ctx, ev, cl.Text)
	}
	return nil
}

func (h *Handler) submit(ctx context.Context, ev *comms.InboundEvent, sub *intent.Submission) error {
	if sub == nil {
		return errors.New("submission without details")
	}

	var (
		p   games.Payload
		err error
	)
	switch sub.Variant {
	case games.VariantPhoto:
		p, err = h.deps.Games.PhotoPayload(ctx, ev)
	case games.VariantConfession:
		p, err = h.deps.Games.ConfessionPayload(sub.Body)
	default:
		return fmt.Errorf("unknown variant %q", sub.Variant)
	}
	if err != nil {
		return err
	}
	return h.deps.Pending.Begin(ctx, ev, sub.Variant, p)
}

func (h *Handler) respond(ctx context.Context, ev *comms.InboundEvent, text string) error {
	if h.deps.Chat == nil || text == "" {
		return nil
	}
	return h.deps.Chat.Respond(ctx, ev, text)
}

func (h *Handler) fail(ctx context.Context, ev *comms.InboundEvent, cl intent.Classification, err error) {
	log := logging.WithContext(ctx).With(slog.String("route", string(cl.Intent)))

	if soft, ok := comms.AsSoftError(err); ok {
		log.Debug("request rejected", slog.String("reason", string(soft)))
		h.reply(ctx, ev.ChatID, string(soft))
		return
	}
	if errors.Is(err, context.Canceled) {
		log.Debug("event handling cancelled")
		return
	}

	log.Error("failed to handle event", slog.Any("error", err))
	// Reactions are silent: nobody asked for a reply.
	if cl.Intent != intent.IntentReaction {
		h.reply(ctx, ev.ChatID, comms.Apology)
	}
}

func (h *Handler) reply(ctx context.Context, chatID, text string) {
	if h.deps.Transport == nil {
		return
	}
	if err := comms.Reply(ctx, h.deps.Transport, chatID, text); err != nil {
		logging.WithContext(ctx).Warn("failed to send reply", slog.Any("error", err))
	}
}

// record writes the message log entry in the background.
func (h *Handler) record(ev *comms.InboundEvent, cl intent.Classification) {
	if h.deps.Log == nil {
		return
	}
	rec := comms.MessageRecord{
		ID:        ev.ID,
		ChatID:    ev.ChatID,
		SenderID:  ev.SenderID,
		GroupID:   ev.GroupID,
		Route:     string(cl.Intent),
		Text:      cl.Text,
		MediaKind: cl.MediaKind,
		At:        h.deps.Clock.Now(),
	}

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), h.cfg.LogTimeout)
		defer cancel()
		if err := h.deps.Log.LogMessage(ctx, rec); err != nil {
			h.log.Warn("failed to log message",
				slog.String("message_id", rec.ID), slog.Any("error", err))
		}
	}()
}
