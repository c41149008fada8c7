package chat

import (
	"context"
	"sync"
	"time"

	"github.com/alekspetrov/turma/internal/clock"
	"github.com/alekspetrov/turma/internal/genai"
)

// HistoryStore persists conversation turns. Writes are best effort.
type HistoryStore interface {
	AppendHistory(ctx context.Context, chatID string, turns []genai.Message) error
	RecentHistory(ctx context.Context, chatID string, limit int) ([]genai.Message, error)
}

// History maintains recent conversation turns per chat.
type History struct {
	mu       sync.RWMutex
	turns    map[string][]genai.Message // chatID -> turns
	lastSeen map[string]time.Time
	maxSize  int
	ttl      time.Duration
	clock    clock.Clock
}

// NewHistory creates a history keeping at most maxSize turns per chat.
// Chats idle for longer than ttl are forgotten.
func NewHistory(maxSize int, ttl time.Duration, c clock.Clock) *History {
	return &History{
		turns:    make(map[string][]genai.Message),
		lastSeen: make(map[string]time.Time),
		maxSize:  maxSize,
		ttl:      ttl,
		clock:    clock.Or(c),
	}
}

// Add appends turns to the chat's history.
func (h *History) Add(chatID string, turns ...genai.Message) {
	h.mu.Lock()
	defer h.mu.Unlock()

	now := h.clock.Now()
	if h.expiredLocked(chatID, now) {
		delete(h.turns, chatID)
	}

	msgs := append(h.turns[chatID], turns...)
	if h.maxSize > 0 && len(msgs) > h.maxSize {
		msgs = append([]genai.Message(nil), msgs[len(msgs)-h.maxSize:]...)
	}
	h.turns[chatID] = msgs
	h.lastSeen[chatID] = now
}

// Get returns a copy of the chat's history.
func (h *History) Get(chatID string) []genai.Message {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.expiredLocked(chatID, h.clock.Now()) {
		return nil
	}
	msgs, ok := h.turns[chatID]
	if !ok {
		return nil
	}
	result := make([]genai.Message, len(msgs))
	copy(result, msgs)
	return result
}

func (h *History) expiredLocked(chatID string, now time.Time) bool {
	seen, ok := h.lastSeen[chatID]
	return ok && h.ttl > 0 && now.Sub(seen) > h.ttl
}

// Sweep removes idle chats and reports how many were removed.
func (h *History) Sweep() int {
	h.mu.Lock()
	defer h.mu.Unlock()

	now := h.clock.Now()
	n := 0
	for chatID := range h.lastSeen {
		if h.expiredLocked(chatID, now) {
			delete(h.turns, chatID)
			delete(h.lastSeen, chatID)
			n++
		}
	}
	return n
}

// Len returns the number of chats with history.
func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.turns)
}
