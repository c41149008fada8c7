package intent

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alekspetrov/turma/internal/clock"
)

// Deduper remembers message IDs for a TTL window.
type Deduper interface {
	// Seen marks id and reports whether it was already marked within the
	// window. Check and mark are atomic.
	Seen(ctx context.Context, id string) (bool, error)
}

// DedupConfig selects the de-duplication backend.
type DedupConfig struct {
	Backend   string        `yaml:"backend"` // memory, redis
	TTL       time.Duration `yaml:"ttl"`
	RedisURL  string        `yaml:"redis_url"`
	KeyPrefix string        `yaml:"key_prefix"`
}

// DefaultDedupConfig returns the de-duplication defaults.
func DefaultDedupConfig() *DedupConfig {
	return &DedupConfig{
		Backend:   "memory",
		TTL:       5 * time.Minute,
		KeyPrefix: "turma:seen:",
	}
}

// MemoryDeduper is an in-process Deduper with lazy expiry.
type MemoryDeduper struct {
	mu      sync.Mutex
	ttl     time.Duration
	clock   clock.Clock
	entries map[string]time.Time
}

// NewMemoryDeduper creates a MemoryDeduper.
func NewMemoryDeduper(ttl time.Duration, c clock.Clock) *MemoryDeduper {
	return &MemoryDeduper{
		ttl:     ttl,
		clock:   clock.Or(c),
		entries: make(map[string]time.Time),
	}
}

// Seen implements Deduper.
func (d *MemoryDeduper) Seen(_ context.Context, id string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.clock.Now()
	if at, ok := d.entries[id]; ok && now.Sub(at) < d.ttl {
		return true, nil
	}
	d.entries[id] = now
	return false, nil
}

// Sweep drops expired IDs and reports how many.
func (d *MemoryDeduper) Sweep() int {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.clock.Now()
	n := 0
	for id, at := range d.entries {
		if now.Sub(at) >= d.ttl {
			delete(d.entries, id)
			n++
		}
	}
	return n
}

// Len returns the number of remembered IDs.
func (d *MemoryDeduper) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.entries)
}

// setNXer is the slice of the redis client RedisDeduper needs.
type setNXer interface {
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
}

// RedisDeduper shares the seen set between bot instances.
type RedisDeduper struct {
	client setNXer
	ttl    time.Duration
	prefix string
}

// NewRedisDeduper creates a RedisDeduper over client.
func NewRedisDeduper(client *redis.Client, ttl time.Duration, prefix string) *RedisDeduper {
	return &RedisDeduper{client: client, ttl: ttl, prefix: prefix}
}

// Seen implements Deduper.
func (d *RedisDeduper) Seen(ctx context.Context, id string) (bool, error) {
	set, err := d.client.SetNX(ctx, d.prefix+id, 1, d.ttl).Result()
	if err != nil {
		return false, err
	}
	return !set, nil
}
