package pending

import (
	"sync"
	"time"

	"github.com/alekspetrov/turma/internal/clock"
)

// Repository stores pending interactions keyed by user.
type Repository interface {
	// Get returns the live interaction of userID. Expired entries are
	// dropped on read.
	Get(userID string) (*Interaction, bool)
	// Put stores in, replacing any interaction of the same user.
	Put(in *Interaction)
	Delete(userID string)
	Len() int
	// Sweep drops every expired interaction and reports how many.
	Sweep() int
}

// MemoryRepository is an in-process Repository. Entries live for ttl from
// their CreatedAt; transitions keep CreatedAt, so they never extend it.
type MemoryRepository struct {
	mu      sync.Mutex
	entries map[string]*Interaction
	ttl     time.Duration
	clock   clock.Clock
}

// NewMemoryRepository creates a MemoryRepository. A nil clock uses the
// system clock.
func NewMemoryRepository(ttl time.Duration, c clock.Clock) *MemoryRepository {
	if ttl <= 0 {
		ttl = DefaultConfig().TTL
	}
	return &MemoryRepository{
		entries: make(map[string]*Interaction),
		ttl:     ttl,
		clock:   clock.Or(c),
	}
}

func (r *MemoryRepository) expired(in *Interaction, now time.Time) bool {
	return now.Sub(in.CreatedAt) >= r.ttl
}

// Get implements Repository.
func (r *MemoryRepository) Get(userID string) (*Interaction, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	in, ok := r.entries[userID]
	if !ok {
		return nil, false
	}
	if r.expired(in, r.clock.Now()) {
		delete(r.entries, userID)
		return nil, false
	}
	return in.clone(), true
}

// Put implements Repository.
func (r *MemoryRepository) Put(in *Interaction) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[in.UserID] = in.clone()
}

// Delete implements Repository.
func (r *MemoryRepository) Delete(userID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, userID)
}

// Len implements Repository. Expired entries not yet swept are counted.
func (r *MemoryRepository) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Sweep implements Repository.
func (r *MemoryRepository) Sweep() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.clock.Now()
	n := 0
	for id, in := range r.entries {
		if r.expired(in, now) {
			delete(r.entries, id)
			n++
		}
	}
	return n
}
