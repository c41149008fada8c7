package games

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/alekspetrov/turma/internal/comms"
)

var (
	// ErrNoActiveGame is returned when a group has no active game of a variant.
	ErrNoActiveGame = comms.SoftError("Não tem nenhum jogo ativo aqui agora.")
	// ErrNoGame is returned when a group never played a variant.
	ErrNoGame = comms.SoftError("Esse grupo ainda não teve nenhum jogo desse tipo.")
	// ErrAlreadyActive is returned when activating a variant that is running.
	ErrAlreadyActive = comms.SoftError("Já tem um jogo desse ativo no grupo.")
	// ErrAlreadySubmitted enforces one pending submission per sender.
	ErrAlreadySubmitted = comms.SoftError("Você já enviou sua participação para esse jogo. Espera a revelação!")
	// ErrRevealInProgress is returned when a reveal is already running.
	ErrRevealInProgress = comms.SoftError("Já estou revelando, calma aí!")
	// ErrNothingToReveal is returned when no submission is pending.
	ErrNothingToReveal = comms.SoftError("Ninguém enviou nada ainda.")
)

// Store persists games. Implementations must make CreateGame and AddItem
// atomic check-and-write operations: CreateGame fails with ErrAlreadyActive
// while another game of the same group and variant is active, AddItem fails
// with ErrAlreadySubmitted while the sender has an unrevealed item.
type Store interface {
	CreateGame(ctx context.Context, g *Game) error
	// ActiveGame returns ErrNoActiveGame when none is active.
	ActiveGame(ctx context.Context, groupID string, v Variant) (*Game, error)
	ActiveGames(ctx context.Context, v Variant) ([]*Game, error)
	// LatestGame returns the active game or the most recently ended one,
	// ErrNoGame when the group never played v.
	LatestGame(ctx context.Context, groupID string, v Variant) (*Game, error)
	AddItem(ctx context.Context, gameID string, item *Item) error
	MarkRevealed(ctx context.Context, gameID, itemID, messageRef string, order int, at time.Time) error
	AddReaction(ctx context.Context, gameID string, r *Reaction) error
	// DiscardPending deletes unrevealed items and reports how many were dropped.
	DiscardPending(ctx context.Context, gameID string) (int, error)
	EndGame(ctx context.Context, gameID string, at time.Time) error
}

// MemoryStore is an in-process Store. It backs the bot when persistence is
// disabled and serves as the reference implementation in tests.
type MemoryStore struct {
	mu    sync.Mutex
	games []*Game
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// CreateGame implements Store.
func (m *MemoryStore) CreateGame(_ context.Context, g *Game) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.activeLocked(g.GroupID, g.Variant) != nil {
		return ErrAlreadyActive
	}
	m.games = append(m.games, cloneGame(g))
	return nil
}

// ActiveGame implements Store.
func (m *MemoryStore) ActiveGame(_ context.Context, groupID string, v Variant) (*Game, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	g := m.activeLocked(groupID, v)
	if g == nil {
		return nil, ErrNoActiveGame
	}
	return cloneGame(g), nil
}

// ActiveGames implements Store.
func (m *MemoryStore) ActiveGames(_ context.Context, v Variant) ([]*Game, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Game
	for _, g := range m.games {
		if g.Active && g.Variant == v {
			out = append(out, cloneGame(g))
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// LatestGame implements Store.
func (m *MemoryStore) LatestGame(_ context.Context, groupID string, v Variant) (*Game, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if g := m.activeLocked(groupID, v); g != nil {
		return cloneGame(g), nil
	}
	var latest *Game
	for _, g := range m.games {
		if g.GroupID == groupID && g.Variant == v && (latest == nil || g.CreatedAt.After(latest.CreatedAt)) {
			latest = g
		}
	}
	if latest == nil {
		return nil, ErrNoGame
	}
	return cloneGame(latest), nil
}

// AddItem implements Store.
func (m *MemoryStore) AddItem(_ context.Context, gameID string, item *Item) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	g := m.byIDLocked(gameID)
	if g == nil || !g.Active {
		return ErrNoActiveGame
	}
	if g.HasPendingFrom(item.SenderID) {
		return ErrAlreadySubmitted
	}
	g.Items = append(g.Items, *item)
	return nil
}

// MarkRevealed implements Store.
func (m *MemoryStore) MarkRevealed(_ context.Context, gameID, itemID, messageRef string, order int, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	g := m.byIDLocked(gameID)
	if g == nil {
		return ErrNoGame
	}
	for i := range g.Items {
		if g.Items[i].ID == itemID {
			g.Items[i].Revealed = true
			g.Items[i].RevealOrder = order
			g.Items[i].MessageRef = messageRef
			g.Items[i].RevealedAt = at
			return nil
		}
	}
	return ErrNothingToReveal
}

// AddReaction implements Store.
func (m *MemoryStore) AddReaction(_ context.Context, gameID string, r *Reaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	g := m.byIDLocked(gameID)
	if g == nil {
		return ErrNoGame
	}
	g.Reactions = append(g.Reactions, *r)
	return nil
}

// DiscardPending implements Store.
func (m *MemoryStore) DiscardPending(_ context.Context, gameID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	g := m.byIDLocked(gameID)
	if g == nil {
		return 0, ErrNoGame
	}
	kept := g.Items[:0]
	dropped := 0
	for _, it := range g.Items {
		if it.Revealed {
			kept = append(kept, it)
		} else {
			dropped++
		}
	}
	g.Items = kept
	return dropped, nil
}

// EndGame implements Store.
func (m *MemoryStore) EndGame(_ context.Context, gameID string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	g := m.byIDLocked(gameID)
	if g == nil {
		return ErrNoGame
	}
	g.Active = false
	g.EndedAt = at
	return nil
}

func (m *MemoryStore) activeLocked(groupID string, v Variant) *Game {
	for _, g := range m.games {
		if g.Active && g.GroupID == groupID && g.Variant == v {
			return g
		}
	}
	return nil
}

func (m *MemoryStore) byIDLocked(id string) *Game {
	for _, g := range m.games {
		if g.ID == id {
			return g
		}
	}
	return nil
}

func cloneGame(g *Game) *Game {
	c := *g
	c.Items = append([]Item(nil), g.Items...)
	c.Reactions = append([]Reaction(nil), g.Reactions...)
	return &c
}
