package commands

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/alekspetrov/turma/internal/comms"
	"github.com/alekspetrov/turma/internal/logging"
)

// Disabler reports per-group command disablement.
type Disabler interface {
	IsCommandDisabled(ctx context.Context, groupID, command string) (bool, error)
}

// UsageRecorder counts command executions.
type UsageRecorder interface {
	IncrementUsage(ctx context.Context, chatID, command string) error
}

// Config holds dispatcher settings.
type Config struct {
	Prefix          string
	OwnerIDs        []string
	DisableTimeout  time.Duration // budget for the disablement lookup
	UsageTimeout    time.Duration
	MetadataTimeout time.Duration
}

func (c *Config) withDefaults() Config {
	out := *c
	if out.Prefix == "" {
		out.Prefix = "!"
	}
	if out.DisableTimeout <= 0 {
		out.DisableTimeout = 2 * time.Second
	}
	if out.UsageTimeout <= 0 {
		out.UsageTimeout = 5 * time.Second
	}
	if out.MetadataTimeout <= 0 {
		out.MetadataTimeout = 5 * time.Second
	}
	return out
}

// Dispatcher parses, checks and runs commands. Command failures never
// propagate: they end as a reply to the user.
type Dispatcher struct {
	registry  *Registry
	transport comms.Transport
	disabler  Disabler
	usage     UsageRecorder
	cfg       Config
	log       *slog.Logger

	wg sync.WaitGroup
}

// NewDispatcher creates a Dispatcher. disabler and usage may be nil.
func NewDispatcher(registry *Registry, transport comms.Transport, disabler Disabler, usage UsageRecorder, cfg Config) *Dispatcher {
	return &Dispatcher{
		registry:  registry,
		transport: transport,
		disabler:  disabler,
		usage:     usage,
		cfg:       cfg.withDefaults(),
		log:       logging.WithComponent("commands"),
	}
}

// Registry returns the command registry.
func (d *Dispatcher) Registry() *Registry { return d.registry }

// Prefix returns the command prefix.
func (d *Dispatcher) Prefix() string { return d.cfg.Prefix }

// Wait blocks until background usage writes finish.
func (d *Dispatcher) Wait() { d.wg.Wait() }

// Execute parses text as a prefixed command and runs it.
func (d *Dispatcher) Execute(ctx context.Context, ev *comms.InboundEvent, text string) error {
	body, ok := strings.CutPrefix(strings.TrimSpace(text), d.cfg.Prefix)
	if !ok {
		return nil
	}
	fields := strings.Fields(body)
	if len(fields) == 0 {
		return nil
	}
	return d.Invoke(ctx, ev, fields[0], fields[1:])
}

// Invoke runs the named command with already split arguments.
func (d *Dispatcher) Invoke(ctx context.Context, ev *comms.InboundEvent, name string, args []string) error {
	canonical := d.registry.Canonical(name)
	ctx = logging.ContextWithCommand(ctx, canonical)
	log := logging.WithContext(ctx)

	if ev.IsGroup() && d.disabled(ctx, ev.GroupID, canonical) {
		return comms.Reply(ctx, d.transport, ev.ChatID,
			fmt.Sprintf("🚫 O comando *%s%s* está desativado neste grupo.", d.cfg.Prefix, canonical))
	}

	cmd, ok := d.registry.Lookup(canonical)
	if !ok {
		log.Debug("unknown command")
		return comms.Reply(ctx, d.transport, ev.ChatID, d.notFound(canonical))
	}

	inv := &Invocation{Event: ev, Name: canonical, Args: args, Prefix: d.cfg.Prefix, Command: cmd, d: d}
	if err := d.check(ctx, inv); err != nil {
		return d.finish(ctx, inv, err)
	}

	start := time.Now()
	log.Info("command started", slog.Int("args", len(args)))
	err := d.run(ctx, inv)
	duration := time.Since(start)

	switch _, soft := comms.AsSoftError(err); {
	case err == nil:
		log.Info("command completed", slog.Int64("duration_ms", duration.Milliseconds()))
	case soft:
		log.Info("command rejected", slog.Int64("duration_ms", duration.Milliseconds()), slog.String("reason", err.Error()))
	default:
		log.Error("command failed", slog.Int64("duration_ms", duration.Milliseconds()), slog.Any("error", err))
	}

	d.recordUsage(ev.ChatID, canonical)
	return d.finish(ctx, inv, err)
}

// finish turns a command error into the user-facing reply.
func (d *Dispatcher) finish(ctx context.Context, inv *Invocation, err error) error {
	if err == nil {
		return nil
	}
	if soft, ok := comms.AsSoftError(err); ok {
		return inv.Reply(ctx, string(soft))
	}
	return inv.Reply(ctx, comms.Apology)
}

func (d *Dispatcher) run(ctx context.Context, inv *Invocation) (err error) {
	defer func() {
		if r := recover(); r != nil {
			logging.WithContext(ctx).Error("command panicked",
				slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())))
			err = fmt.Errorf("command %s panicked: %v", inv.Name, r)
		}
	}()
	return inv.Command.Run(ctx, inv)
}

func (d *Dispatcher) check(ctx context.Context, inv *Invocation) error {
	cmd, ev := inv.Command, inv.Event
	switch {
	case cmd.Scope == ScopeGroup && !ev.IsGroup():
		return comms.SoftError("Esse comando só funciona em grupos.")
	case cmd.Scope == ScopePrivate && ev.IsGroup():
		return comms.SoftError("Esse comando só funciona no privado.")
	case cmd.AdminOnly && !d.isAdmin(ctx, ev):
		return comms.SoftError("Só admins do grupo podem usar esse comando.")
	}
	return nil
}

// disabled never blocks a command: lookup errors and timeouts count as
// enabled.
func (d *Dispatcher) disabled(ctx context.Context, groupID, canonical string) bool {
	if d.disabler == nil {
		return false
	}
	if cmd, ok := d.registry.Lookup(canonical); ok && cmd.AlwaysOn {
		return false
	}
	ctx, cancel := context.WithTimeout(ctx, d.cfg.DisableTimeout)
	defer cancel()

	off, err := d.disabler.IsCommandDisabled(ctx, groupID, canonical)
	if err != nil {
		logging.WithContext(ctx).Warn("disablement lookup failed, running command", slog.Any("error", err))
		return false
	}
	return off
}

func (d *Dispatcher) recordUsage(chatID, canonical string) {
	if d.usage == nil {
		return
	}
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), d.cfg.UsageTimeout)
		defer cancel()
		if err := d.usage.IncrementUsage(ctx, chatID, canonical); err != nil {
			d.log.Warn("usage not recorded", slog.String("command", canonical), slog.Any("error", err))
		}
	}()
}

func (d *Dispatcher) isAdmin(ctx context.Context, ev *comms.InboundEvent) bool {
	if slices.Contains(d.cfg.OwnerIDs, ev.SenderID) {
		return true
	}
	if !ev.IsGroup() {
		return false
	}
	ctx, cancel := context.WithTimeout(ctx, d.cfg.MetadataTimeout)
	defer cancel()
	meta, err := d.transport.GroupMetadata(ctx, ev.GroupID)
	if err != nil {
		logging.WithContext(ctx).Warn("admin check failed", slog.Any("error", err))
		return false
	}
	return meta.IsAdmin(ev.SenderID)
}

func (d *Dispatcher) notFound(name string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "🤔 O comando *%s%s* não existe.", d.cfg.Prefix, name)
	if suggestions := d.registry.Suggest(name, 3); len(suggestions) > 0 {
		for i, s := range suggestions {
			suggestions[i] = d.cfg.Prefix + s
		}
		fmt.Fprintf(&b, "\nVocê quis dizer: %s?", strings.Join(suggestions, ", "))
	}
	fmt.Fprintf(&b, "\nUse *%sajuda* para ver todos os comandos.", d.cfg.Prefix)
	return b.String()
}
