package genai

import (
	"sync"
	"time"

	"github.com/alekspetrov/turma/internal/clock"
)

type pair struct {
	credential string
	model      string
}

// earlyClear undoes the failure marks of a pair once due, unless a newer
// failure replaced them.
type earlyClear struct {
	failedAt time.Time
	due      time.Time
}

// CooldownTracker records the last failure of every credential and model.
type CooldownTracker struct {
	mu          sync.Mutex
	clock       clock.Clock
	credWindow  time.Duration
	modelWindow time.Duration
	credStale   time.Duration
	modelStale  time.Duration
	clearAfter  time.Duration

	credentials map[string]time.Time
	models      map[string]time.Time
	clears      map[pair]earlyClear
}

// NewCooldownTracker creates a tracker using the cooldown settings of cfg.
func NewCooldownTracker(cfg *Config, c clock.Clock) *CooldownTracker {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	return &CooldownTracker{
		clock:       clock.Or(c),
		credWindow:  cfg.CredentialCooldown,
		modelWindow: cfg.ModelCooldown,
		credStale:   cfg.CredentialStale,
		modelStale:  cfg.ModelStale,
		clearAfter:  cfg.EarlyClear,
		credentials: make(map[string]time.Time),
		models:      make(map[string]time.Time),
		clears:      make(map[pair]earlyClear),
	}
}

// RecordFailure marks credential and model as failed now. Transient
// failures schedule an early clear of both marks.
func (t *CooldownTracker) RecordFailure(credential, model string, transient bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.clock.Now()
	t.credentials[credential] = now
	t.models[model] = now

	p := pair{credential, model}
	if transient {
		t.clears[p] = earlyClear{failedAt: now, due: now.Add(t.clearAfter)}
	} else {
		delete(t.clears, p)
	}
}

// applyClearsLocked runs due early clears.
func (t *CooldownTracker) applyClearsLocked(now time.Time) {
	for p, ec := range t.clears {
		if now.Before(ec.due) {
			continue
		}
		if at, ok := t.credentials[p.credential]; ok && !at.After(ec.failedAt) {
			delete(t.credentials, p.credential)
		}
		if at, ok := t.models[p.model]; ok && !at.After(ec.failedAt) {
			delete(t.models, p.model)
		}
		delete(t.clears, p)
	}
}

// Snapshot captures the cooldown state at the current time.
func (t *CooldownTracker) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.clock.Now()
	t.applyClearsLocked(now)

	s := Snapshot{
		At:          now,
		CredWindow:  t.credWindow,
		ModelWindow: t.modelWindow,
		Credentials: make(map[string]time.Time, len(t.credentials)),
		Models:      make(map[string]time.Time, len(t.models)),
	}
	for k, v := range t.credentials {
		s.Credentials[k] = v
	}
	for k, v := range t.models {
		s.Models[k] = v
	}
	return s
}

// Sweep forgets stale failures independently of request flow and reports
// how many marks were removed.
func (t *CooldownTracker) Sweep() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.clock.Now()
	t.applyClearsLocked(now)

	n := 0
	for k, at := range t.credentials {
		if now.Sub(at) > t.credStale {
			delete(t.credentials, k)
			n++
		}
	}
	for k, at := range t.models {
		if now.Sub(at) > t.modelStale {
			delete(t.models, k)
			n++
		}
	}
	return n
}

// Snapshot is an immutable view of the failure marks.
type Snapshot struct {
	At          time.Time
	CredWindow  time.Duration
	ModelWindow time.Duration
	Credentials map[string]time.Time
	Models      map[string]time.Time
}

// CredentialCooling reports whether label failed within its window.
func (s Snapshot) CredentialCooling(label string) bool {
	at, ok := s.Credentials[label]
	return ok && s.At.Sub(at) < s.CredWindow
}

// ModelCooling reports whether model failed within its window.
func (s Snapshot) ModelCooling(model string) bool {
	at, ok := s.Models[model]
	return ok && s.At.Sub(at) < s.ModelWindow
}
