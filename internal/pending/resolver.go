package pending

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/alekspetrov/turma/internal/clock"
	"github.com/alekspetrov/turma/internal/comms"
	"github.com/alekspetrov/turma/internal/games"
	"github.com/alekspetrov/turma/internal/logging"
)

// ErrNoEligibleGroup is returned when no active game can take a submission.
var ErrNoEligibleGroup = comms.SoftError("Não achei nenhum grupo seu com esse jogo ativo agora.")

var (
	yesAnswers = map[string]bool{"sim": true, "1": true, "s": true, "y": true}
	noAnswers  = map[string]bool{"nao": true, "2": true, "n": true, "no": true}
)

// GameService is the part of the game engine the resolver commits to.
type GameService interface {
	ActiveGames(ctx context.Context, v games.Variant) ([]*games.Game, error)
	HasSubmitted(ctx context.Context, groupID string, v games.Variant, senderID string) (bool, error)
	Intake(ctx context.Context, groupID string, v games.Variant, senderID string, p games.Payload) (*games.Item, error)
}

// SnapshotStore persists the last known membership of groups, used when the
// transport cannot answer a metadata lookup.
type SnapshotStore interface {
	SaveGroupSnapshot(ctx context.Context, meta *comms.GroupMetadata) error
	GroupSnapshot(ctx context.Context, groupID string) (*comms.GroupMetadata, error)
}

// Resolver places private submissions into groups, asking the user when the
// target is not obvious.
type Resolver struct {
	repo      Repository
	games     GameService
	transport comms.Transport
	snapshots SnapshotStore
	cfg       *Config
	clock     clock.Clock
	log       *slog.Logger

	mu    sync.Mutex
	users map[string]*userLock
}

// ResolverOption configures a Resolver.
type ResolverOption func(*Resolver)

// WithClock sets the clock stamping new interactions. It should match the
// repository's clock.
func WithClock(c clock.Clock) ResolverOption {
	return func(r *Resolver) { r.clock = clock.Or(c) }
}

// NewResolver creates a Resolver. snapshots may be nil.
func NewResolver(repo Repository, gs GameService, transport comms.Transport, snapshots SnapshotStore, cfg *Config, opts ...ResolverOption) *Resolver {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	r := &Resolver{
		repo:      repo,
		games:     gs,
		transport: transport,
		snapshots: snapshots,
		cfg:       cfg,
		clock:     clock.Real{},
		log:       logging.WithComponent("pending"),
		users:     make(map[string]*userLock),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// userLock serializes one user's interactions. refs counts the holders and
// waiters; the entry is dropped when it reaches zero.
type userLock struct {
	sync.Mutex
	refs int
}

func (r *Resolver) lockUser(userID string) func() {
	r.mu.Lock()
	l, ok := r.users[userID]
	if !ok {
		l = &userLock{}
		r.users[userID] = l
	}
	l.refs++
	r.mu.Unlock()

	l.Lock()
	return func() {
		l.Unlock()
		r.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(r.users, userID)
		}
		r.mu.Unlock()
	}
}

// Has reports whether userID has a live pending interaction.
func (r *Resolver) Has(userID string) bool {
	_, ok := r.repo.Get(userID)
	return ok
}

// Begin starts placing a private submission of ev's sender. Any earlier
// pending interaction of the sender is discarded.
func (r *Resolver) Begin(ctx context.Context, ev *comms.InboundEvent, v games.Variant, p games.Payload) error {
	defer r.lockUser(ev.SenderID)()

	r.repo.Delete(ev.SenderID)

	options, err := r.eligible(ctx, ev.SenderID, v)
	if err != nil {
		return err
	}
	if len(options) == 0 {
		return ErrNoEligibleGroup
	}

	options, err = r.withoutSubmitted(ctx, ev.SenderID, v, options)
	if err != nil {
		return err
	}
	if len(options) == 0 {
		return games.ErrAlreadySubmitted
	}

	in := &Interaction{
		UserID:    ev.SenderID,
		ChatID:    ev.ChatID,
		Variant:   v,
		Options:   options,
		Payload:   p,
		Step:      StepChoose,
		CreatedAt: r.clock.Now(),
	}
	if len(options) == 1 {
		in.Step = StepConfirm
	}
	r.repo.Put(in)

	r.log.Info("pending interaction created",
		slog.String("user_id", ev.SenderID),
		slog.String("variant", string(v)),
		slog.String("step", string(in.Step)),
		slog.Int("options", len(options)))
	return r.prompt(ctx, in)
}

// Handle consumes a reply of a user with a pending interaction. It reports
// false when the user has none.
func (r *Resolver) Handle(ctx context.Context, ev *comms.InboundEvent) (bool, error) {
	defer r.lockUser(ev.SenderID)()

	in, ok := r.repo.Get(ev.SenderID)
	if !ok {
		return false, nil
	}
	if ev.ChatID != "" {
		in.ChatID = ev.ChatID
	}
	answer := comms.FoldAccents(comms.NormalizeReply(ev.Text))

	switch in.Step {
	case StepConfirm:
		switch {
		case yesAnswers[answer]:
			return true, r.commit(ctx, in, in.Options[0])
		case noAnswers[answer]:
			return true, r.decline(ctx, in)
		}
	case StepChoose:
		if n, err := strconv.Atoi(answer); err == nil && n >= 1 && n <= len(in.Options) {
			return true, r.commit(ctx, in, in.Options[n-1])
		}
	}
	return true, r.prompt(ctx, in)
}

// decline moves a CONFIRM interaction to CHOOSE over every active game of
// the variant. CreatedAt is kept so the move does not extend the TTL.
func (r *Resolver) decline(ctx context.Context, in *Interaction) error {
	options, err := r.all(ctx, in.UserID, in.Variant)
	if err != nil {
		return err
	}
	if len(options) == 0 {
		r.repo.Delete(in.UserID)
		return ErrNoEligibleGroup
	}
	in.Options = options
	in.Step = StepChoose
	r.repo.Put(in)
	return r.prompt(ctx, in)
}

func (r *Resolver) commit(ctx context.Context, in *Interaction, opt Option) error {
	r.repo.Delete(in.UserID)

	if _, err := r.games.Intake(ctx, opt.GroupID, in.Variant, in.UserID, in.Payload); err != nil {
		if _, soft := comms.AsSoftError(err); soft {
			return err
		}
		return fmt.Errorf("commit submission to %s: %w", opt.GroupID, err)
	}

	r.log.Info("pending interaction committed",
		slog.String("user_id", in.UserID),
		slog.String("group_id", opt.GroupID),
		slog.String("variant", string(in.Variant)))
	return comms.Reply(ctx, r.transport, in.ChatID,
		fmt.Sprintf("✅ %s enviada para o grupo *%s*! Aguarde a revelação.", submissionNoun(in.Variant), opt.GroupName))
}

func (r *Resolver) prompt(ctx context.Context, in *Interaction) error {
	var text string
	switch in.Step {
	case StepConfirm:
		text = fmt.Sprintf("Encontrei um jogo de %s ativo no grupo *%s*.\nQuer enviar para lá? Responda *sim* ou *não*.",
			in.Variant.Noun(), in.Options[0].GroupName)
	default:
		var b strings.Builder
		fmt.Fprintf(&b, "Tem mais de um grupo com jogo de %s ativo. Para qual você quer enviar?\n", in.Variant.Noun())
		for i, opt := range in.Options {
			fmt.Fprintf(&b, "\n%d. %s", i+1, opt.GroupName)
		}
		b.WriteString("\n\nResponda só com o número.")
		text = b.String()
	}
	return comms.Reply(ctx, r.transport, in.ChatID, text)
}

func submissionNoun(v games.Variant) string {
	if v == games.VariantConfession {
		return "Confissão"
	}
	return "Foto"
}

type candidate struct {
	game *games.Game
	meta *comms.GroupMetadata
}

func (c candidate) name() string {
	if c.meta != nil && c.meta.Name != "" {
		return c.meta.Name
	}
	return c.game.GroupID
}

// lookup resolves membership of every active game of v, ordered by
// activation time and then group name.
func (r *Resolver) lookup(ctx context.Context, v games.Variant) ([]candidate, error) {
	active, err := r.games.ActiveGames(ctx, v)
	if err != nil {
		return nil, fmt.Errorf("list active games: %w", err)
	}

	out := make([]candidate, 0, len(active))
	seen := make(map[string]bool)
	for _, g := range active {
		if seen[g.GroupID] {
			continue
		}
		seen[g.GroupID] = true
		out = append(out, candidate{game: g, meta: r.membership(ctx, g.GroupID)})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].game.CreatedAt.Equal(out[j].game.CreatedAt) {
			return out[i].game.CreatedAt.Before(out[j].game.CreatedAt)
		}
		return out[i].name() < out[j].name()
	})
	return out, nil
}

// eligible computes the placement options of userID: active games of groups
// the user belongs to whose activator is still a member. When that is empty
// but the user belongs to some group with an active game, every active game
// is offered instead.
func (r *Resolver) eligible(ctx context.Context, userID string, v games.Variant) ([]Option, error) {
	cands, err := r.lookup(ctx, v)
	if err != nil {
		return nil, err
	}

	var options []Option
	member := false
	for _, c := range cands {
		if !c.meta.HasMember(userID) {
			continue
		}
		member = true
		if c.meta.HasMember(c.game.ActivatorID) {
			options = append(options, Option{GroupID: c.game.GroupID, GroupName: c.name(), IsCreatorGroup: true})
		}
	}
	if len(options) == 0 && member {
		return widen(cands), nil
	}
	return options, nil
}

// all returns every active game of v as options.
func (r *Resolver) all(ctx context.Context, userID string, v games.Variant) ([]Option, error) {
	cands, err := r.lookup(ctx, v)
	if err != nil {
		return nil, err
	}
	options := make([]Option, 0, len(cands))
	for _, c := range cands {
		options = append(options, Option{
			GroupID:        c.game.GroupID,
			GroupName:      c.name(),
			IsCreatorGroup: c.meta.HasMember(userID) && c.meta.HasMember(c.game.ActivatorID),
		})
	}
	return options, nil
}

func widen(cands []candidate) []Option {
	options := make([]Option, 0, len(cands))
	for _, c := range cands {
		options = append(options, Option{GroupID: c.game.GroupID, GroupName: c.name()})
	}
	return options
}

func (r *Resolver) withoutSubmitted(ctx context.Context, userID string, v games.Variant, options []Option) ([]Option, error) {
	out := options[:0:0]
	for _, opt := range options {
		done, err := r.games.HasSubmitted(ctx, opt.GroupID, v, userID)
		if errors.Is(err, games.ErrNoActiveGame) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("check submission in %s: %w", opt.GroupID, err)
		}
		if !done {
			out = append(out, opt)
		}
	}
	return out, nil
}

// membership fetches group metadata, refreshing the persisted snapshot on
// success and falling back to it on failure. It returns nil when neither
// source answers.
func (r *Resolver) membership(ctx context.Context, groupID string) *comms.GroupMetadata {
	lookupCtx, cancel := context.WithTimeout(ctx, r.cfg.MetadataTimeout)
	meta, err := r.transport.GroupMetadata(lookupCtx, groupID)
	cancel()
	if err == nil {
		if r.snapshots != nil {
			saveCtx, cancel := context.WithTimeout(ctx, r.cfg.MetadataTimeout)
			if err := r.snapshots.SaveGroupSnapshot(saveCtx, meta); err != nil {
				r.log.Warn("group snapshot not saved", slog.String("group_id", groupID), slog.Any("error", err))
			}
			cancel()
		}
		return meta
	}

	r.log.Warn("group metadata lookup failed", slog.String("group_id", groupID), slog.Any("error", err))
	if r.snapshots == nil {
		return nil
	}
	snapCtx, cancel := context.WithTimeout(ctx, r.cfg.MetadataTimeout)
	defer cancel()
	snap, err := r.snapshots.GroupSnapshot(snapCtx, groupID)
	if err != nil {
		r.log.Warn("group snapshot unavailable", slog.String("group_id", groupID), slog.Any("error", err))
		return nil
	}
	return snap
}
