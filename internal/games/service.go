package games

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/alekspetrov/turma/internal/clock"
	"github.com/alekspetrov/turma/internal/comms"
	"github.com/alekspetrov/turma/internal/logging"
)

// ErrNothingRevealed is returned by rankings before any reveal.
var ErrNothingRevealed = comms.SoftError("Nada foi revelado ainda nesse jogo.")

// Summary reports the outcome of finalizing a game.
type Summary struct {
	Revealed  int
	Discarded int
}

// Service runs game operations. Operations on the same group and variant
// are serialized; the Store re-checks the one-active-game and
// one-submission-per-sender rules atomically on write.
type Service struct {
	store     Store
	transport comms.Transport
	cfg       *Config
	clock     clock.Clock
	wait      func(ctx context.Context, d time.Duration) error
	log       *slog.Logger

	mu        sync.Mutex
	locks     map[string]*sync.Mutex
	revealing map[string]bool
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the time source.
func WithClock(c clock.Clock) Option {
	return func(s *Service) { s.clock = c }
}

// WithWait overrides the pause used between revealed items.
func WithWait(f func(ctx context.Context, d time.Duration) error) Option {
	return func(s *Service) { s.wait = f }
}

// NewService creates a game Service.
func NewService(store Store, transport comms.Transport, cfg *Config, opts ...Option) *Service {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	s := &Service{
		store:     store,
		transport: transport,
		cfg:       cfg,
		clock:     clock.Real{},
		wait:      sleepCtx,
		log:       logging.WithComponent("games"),
		locks:     make(map[string]*sync.Mutex),
		revealing: make(map[string]bool),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) lock(groupID string, v Variant) func() {
	key := groupID + "/" + string(v)
	s.mu.Lock()
	l, ok := s.locks[key]
	if !ok {
		l = &sync.Mutex{}
		s.locks[key] = l
	}
	s.mu.Unlock()
	l.Lock()
	return l.Unlock
}

// Activate starts a new game of v in groupID.
func (s *Service) Activate(ctx context.Context, groupID string, v Variant, activatorID string) (*Game, error) {
	defer s.lock(groupID, v)()

	g := &Game{
		ID:          uuid.NewString(),
		GroupID:     groupID,
		Variant:     v,
		Active:      true,
		ActivatorID: activatorID,
		CreatedAt:   s.clock.Now(),
	}
	if err := s.store.CreateGame(ctx, g); err != nil {
		return nil, err
	}
	s.log.Info("game activated",
		slog.String("game_id", g.ID),
		slog.String("group_id", groupID),
		slog.String("variant", string(v)))
	return g, nil
}

// ActiveGame returns the active game of v in groupID.
func (s *Service) ActiveGame(ctx context.Context, groupID string, v Variant) (*Game, error) {
	return s.store.ActiveGame(ctx, groupID, v)
}

// ActiveGames lists every active game of v.
func (s *Service) ActiveGames(ctx context.Context, v Variant) ([]*Game, error) {
	return s.store.ActiveGames(ctx, v)
}

// HasSubmitted reports whether senderID has a submission awaiting reveal in
// the active game of v in groupID.
func (s *Service) HasSubmitted(ctx context.Context, groupID string, v Variant, senderID string) (bool, error) {
	g, err := s.store.ActiveGame(ctx, groupID, v)
	if err != nil {
		return false, err
	}
	return g.HasPendingFrom(senderID), nil
}

// Intake appends a submission to the active game of v in groupID.
func (s *Service) Intake(ctx context.Context, groupID string, v Variant, senderID string, p Payload) (*Item, error) {
	defer s.lock(groupID, v)()

	g, err := s.store.ActiveGame(ctx, groupID, v)
	if err != nil {
		return nil, err
	}
	if g.HasPendingFrom(senderID) {
		return nil, ErrAlreadySubmitted
	}

	item := &Item{
		ID:          uuid.NewString(),
		SenderID:    senderID,
		Payload:     p,
		SubmittedAt: s.clock.Now(),
	}
	if err := s.store.AddItem(ctx, g.ID, item); err != nil {
		return nil, err
	}
	s.log.Info("submission accepted",
		slog.String("game_id", g.ID),
		slog.String("group_id", groupID),
		slog.String("variant", string(v)))
	return item, nil
}

// Reveal posts every pending submission of the active game to the group,
// one by one with the configured delay, and marks each as revealed. The game
// stays active. Submissions arriving during a reveal wait for the next one.
func (s *Service) Reveal(ctx context.Context, groupID string, v Variant) (int, error) {
	key := groupID + "/" + string(v)
	s.mu.Lock()
	if s.revealing[key] {
		s.mu.Unlock()
		return 0, ErrRevealInProgress
	}
	s.revealing[key] = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.revealing, key)
		s.mu.Unlock()
	}()

	g, err := s.store.ActiveGame(ctx, groupID, v)
	if err != nil {
		return 0, err
	}
	pending := g.Pending()
	if len(pending) == 0 {
		return 0, ErrNothingToReveal
	}

	if err := comms.Reply(ctx, s.transport, groupID, fmt.Sprintf("🎬 Revelando %d %s!", len(pending), v.Noun())); err != nil {
		return 0, fmt.Errorf("announce reveal: %w", err)
	}

	offset := len(g.Revealed())
	revealed := 0
	for i, it := range pending {
		if i > 0 {
			if err := s.wait(ctx, s.cfg.RevealDelay); err != nil {
				return revealed, err
			}
		}
		order := offset + i + 1
		ok, err := s.revealItem(ctx, g.ID, groupID, v, it, order)
		if err != nil {
			return revealed, err
		}
		if !ok {
			s.log.Info("reveal stopped, game ended meanwhile",
				slog.String("game_id", g.ID),
				slog.Int("revealed", revealed))
			return revealed, nil
		}
		revealed++
	}

	s.log.Info("reveal finished",
		slog.String("game_id", g.ID),
		slog.String("group_id", groupID),
		slog.Int("revealed", revealed))
	return revealed, nil
}

// revealItem posts one item while holding the game lock. It reports false
// without sending when the game ended or the item is no longer pending.
func (s *Service) revealItem(ctx context.Context, gameID, groupID string, v Variant, it Item, order int) (bool, error) {
	defer s.lock(groupID, v)()

	g, err := s.store.ActiveGame(ctx, groupID, v)
	if errors.Is(err, ErrNoActiveGame) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if g.ID != gameID || !g.IsPending(it.ID) {
		return false, nil
	}

	ref, err := s.transport.SendMessage(ctx, groupID, renderItem(v, order, it, s.cfg.MaxCaptionLen))
	if err != nil {
		return false, fmt.Errorf("send item %d: %w", order, err)
	}
	if err := s.store.MarkRevealed(ctx, gameID, it.ID, ref, order, s.clock.Now()); err != nil {
		return false, fmt.Errorf("mark item %d revealed: %w", order, err)
	}
	return true, nil
}

func renderItem(v Variant, order int, it Item, captionLimit int) comms.OutboundMessage {
	if v == VariantPhoto {
		text := fmt.Sprintf("📸 Foto #%d", order)
		if c := strings.TrimSpace(it.Payload.Caption); c != "" {
			if captionLimit > 0 {
				c = comms.TruncateText(c, captionLimit)
			}
			text += "\n" + c
		}
		return comms.OutboundMessage{
			Text:      text + "\n\n" + v.ReactionHint(),
			Media:     it.Payload.Media,
			MediaKind: it.Payload.MediaKind,
		}
	}
	return comms.OutboundMessage{
		Text: fmt.Sprintf("🤫 Confissão #%d\n\n\"%s\"\n\n%s", order, it.Payload.Text, v.ReactionHint()),
	}
}

// Cancel discards the pending submissions and deactivates the game.
func (s *Service) Cancel(ctx context.Context, groupID string, v Variant) (int, error) {
	defer s.lock(groupID, v)()

	g, err := s.store.ActiveGame(ctx, groupID, v)
	if err != nil {
		return 0, err
	}
	discarded, err := s.store.DiscardPending(ctx, g.ID)
	if err != nil {
		return 0, fmt.Errorf("discard pending: %w", err)
	}
	if err := s.store.EndGame(ctx, g.ID, s.clock.Now()); err != nil {
		return discarded, fmt.Errorf("end game: %w", err)
	}
	s.log.Info("game cancelled", slog.String("game_id", g.ID), slog.Int("discarded", discarded))
	return discarded, nil
}

// Finalize deactivates the game, keeping revealed items for rankings.
func (s *Service) Finalize(ctx context.Context, groupID string, v Variant) (*Summary, error) {
	defer s.lock(groupID, v)()

	g, err := s.store.ActiveGame(ctx, groupID, v)
	if err != nil {
		return nil, err
	}
	discarded, err := s.store.DiscardPending(ctx, g.ID)
	if err != nil {
		return nil, fmt.Errorf("discard pending: %w", err)
	}
	if err := s.store.EndGame(ctx, g.ID, s.clock.Now()); err != nil {
		return nil, fmt.Errorf("end game: %w", err)
	}
	sum := &Summary{Revealed: len(g.Revealed()), Discarded: discarded}
	s.log.Info("game finalized",
		slog.String("game_id", g.ID),
		slog.Int("revealed", sum.Revealed),
		slog.Int("discarded", sum.Discarded))
	return sum, nil
}

// React records a reaction to a revealed item. Both variants are tried; it
// reports false when the reaction targets no revealed item or uses an emoji
// outside the variant's vocabulary.
func (s *Service) React(ctx context.Context, ev *comms.InboundEvent) (bool, error) {
	if ev.Reaction == nil || ev.GroupID == "" || ev.Reaction.Emoji == "" {
		return false, nil
	}

	for _, v := range Variants {
		g, err := s.store.ActiveGame(ctx, ev.GroupID, v)
		if errors.Is(err, ErrNoActiveGame) {
			continue
		}
		if err != nil {
			return false, err
		}
		item := g.ItemByMessageRef(ev.Reaction.TargetMessageID)
		if item == nil {
			continue
		}
		kind, ok := v.KindForEmoji(ev.Reaction.Emoji)
		if !ok {
			return false, nil
		}
		r := &Reaction{
			ID:        uuid.NewString(),
			ItemID:    item.ID,
			ReactorID: ev.SenderID,
			Kind:      kind,
			ReactedAt: s.clock.Now(),
		}
		if err := s.store.AddReaction(ctx, g.ID, r); err != nil {
			return false, fmt.Errorf("record reaction: %w", err)
		}
		s.log.Debug("reaction recorded",
			slog.String("game_id", g.ID),
			slog.String("item_id", item.ID),
			slog.String("kind", string(kind)))
		return true, nil
	}
	return false, nil
}

// Ranking ranks the revealed items of the latest game of v by kind.
func (s *Service) Ranking(ctx context.Context, groupID string, v Variant, kind ReactionKind) ([]RankEntry, error) {
	g, err := s.store.LatestGame(ctx, groupID, v)
	if err != nil {
		return nil, err
	}
	if len(g.Revealed()) == 0 {
		return nil, ErrNothingRevealed
	}
	return Rank(g, kind), nil
}

// MutualMatches lists mutual positive reactions in the latest photo game.
func (s *Service) MutualMatches(ctx context.Context, groupID string) ([]Match, error) {
	g, err := s.store.LatestGame(ctx, groupID, VariantPhoto)
	if err != nil {
		return nil, err
	}
	if len(g.Revealed()) == 0 {
		return nil, ErrNothingRevealed
	}
	return MutualMatches(g), nil
}

// PhotoPayload downloads the media of ev and prepares it for storage.
func (s *Service) PhotoPayload(ctx context.Context, ev *comms.InboundEvent) (Payload, error) {
	data, err := s.transport.DownloadMedia(ctx, ev)
	if err != nil {
		return Payload{}, fmt.Errorf("download media: %w", err)
	}
	kind := ev.MediaKind
	if scaled, ok := Downscale(data, s.cfg.MediaMaxDim); ok {
		data = scaled
		kind = comms.MediaImage
	}
	return Payload{MediaKind: kind, Media: data, Caption: strings.TrimSpace(ev.Text)}, nil
}

// ConfessionPayload validates a confession body.
func (s *Service) ConfessionPayload(text string) (Payload, error) {
	text = strings.TrimSpace(text)
	n := utf8.RuneCountInString(text)
	if n < 3 {
		return Payload{}, comms.SoftError("Sua confissão ficou vazia. Escreve depois do prefixo, tipo: confissão: eu ...")
	}
	if limit := s.cfg.MaxConfessionLen; limit > 0 && n > limit {
		return Payload{}, comms.SoftError(fmt.Sprintf("Sua confissão passou do limite de %d caracteres.", limit))
	}
	return Payload{Text: text}, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
