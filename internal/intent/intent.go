// Package intent classifies inbound chat events into the route that handles
// them.
package intent

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/alekspetrov/turma/internal/clock"
	"github.com/alekspetrov/turma/internal/comms"
	"github.com/alekspetrov/turma/internal/games"
	"github.com/alekspetrov/turma/internal/logging"
)

// Intent is the route chosen for an inbound event.
type Intent string

const (
	IntentDrop       Intent = "drop"
	IntentReaction   Intent = "reaction"
	IntentPending    Intent = "pending"
	IntentSubmission Intent = "submission"
	IntentMention    Intent = "mention" // bot mentioned or replied to
	IntentCommand    Intent = "command"
	IntentChat       Intent = "chat" // free text in a private chat
	IntentIgnore     Intent = "ignore"
)

// Drop reasons.
const (
	ReasonSelf       = "self"
	ReasonEmpty      = "empty"
	ReasonPseudoChat = "pseudo_recipient"
	ReasonStale      = "stale"
	ReasonNonChat    = "non_conversational"
	ReasonDuplicate  = "duplicate"
)

// Submission is a private game submission detected in an event.
type Submission struct {
	Variant games.Variant
	Body    string // confession text, or the photo caption
}

// Classification is the outcome of Classify.
type Classification struct {
	Intent     Intent
	Reason     string // set for IntentDrop
	Text       string
	IsGroup    bool
	SenderID   string
	GroupID    string
	ChatID     string
	HasMedia   bool
	MediaKind  comms.MediaKind
	Submission *Submission
}

// Persist reports whether the event should be written to the message log.
func (c Classification) Persist() bool {
	switch c.Intent {
	case IntentPending, IntentSubmission, IntentMention, IntentCommand, IntentChat:
		return true
	}
	return false
}

// PendingChecker reports whether a user has a pending interaction.
type PendingChecker interface {
	Has(userID string) bool
}

// Config holds classifier settings.
type Config struct {
	SelfID     string
	Prefix     string
	StaleAfter time.Duration
}

// Classifier derives an Intent from an inbound event. Rules are applied in
// a fixed order and the first match wins.
type Classifier struct {
	cfg     Config
	dedup   Deduper
	pending PendingChecker
	clock   clock.Clock
	log     *slog.Logger
}

// NewClassifier creates a Classifier. dedup and pending may be nil.
func NewClassifier(cfg Config, dedup Deduper, pending PendingChecker, c clock.Clock) *Classifier {
	if cfg.Prefix == "" {
		cfg.Prefix = "!"
	}
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = 3 * time.Minute
	}
	return &Classifier{
		cfg:     cfg,
		dedup:   dedup,
		pending: pending,
		clock:   clock.Or(c),
		log:     logging.WithComponent("intent"),
	}
}

// Classify routes ev.
func (c *Classifier) Classify(ctx context.Context, ev *comms.InboundEvent) Classification {
	cl := Classification{
		Text:      strings.TrimSpace(ev.Text),
		IsGroup:   ev.IsGroup(),
		SenderID:  ev.SenderID,
		GroupID:   ev.GroupID,
		ChatID:    ev.ChatID,
		HasMedia:  ev.HasMedia(),
		MediaKind: ev.MediaKind,
	}
	drop := func(reason string) Classification {
		cl.Intent = IntentDrop
		cl.Reason = reason
		return cl
	}

	switch {
	case ev.FromSelf:
		return drop(ReasonSelf)
	case comms.IsPseudoRecipient(ev.ChatID):
		return drop(ReasonPseudoChat)
	case ev.Kind == comms.KindEmpty || (cl.Text == "" && !cl.HasMedia && ev.Reaction == nil):
		return drop(ReasonEmpty)
	}

	if !ev.Timestamp.IsZero() && c.clock.Now().Sub(ev.Timestamp) > c.cfg.StaleAfter {
		return drop(ReasonStale)
	}

	switch ev.Kind {
	case comms.KindProtocol, comms.KindEphemeral, comms.KindPollUpdate:
		return drop(ReasonNonChat)
	}

	if ev.Reaction != nil || ev.Kind == comms.KindReaction {
		cl.Intent = IntentReaction
		return cl
	}

	if c.dedup != nil && ev.ID != "" {
		seen, err := c.dedup.Seen(ctx, ev.ID)
		if err != nil {
			c.log.Warn("dedup check failed, processing anyway",
				slog.String("message_id", ev.ID),
				slog.Any("error", err))
		} else if seen {
			return drop(ReasonDuplicate)
		}
	}

	if !cl.IsGroup && c.pending != nil && c.pending.Has(ev.SenderID) {
		cl.Intent = IntentPending
		return cl
	}

	if !cl.IsGroup {
		if cl.MediaKind == comms.MediaImage {
			cl.Intent = IntentSubmission
			cl.Submission = &Submission{Variant: games.VariantPhoto, Body: cl.Text}
			return cl
		}
		if body, ok := ParseConfession(cl.Text); ok {
			cl.Intent = IntentSubmission
			cl.Submission = &Submission{Variant: games.VariantConfession, Body: body}
			return cl
		}
	}

	if c.addressed(ev, cl.Text) {
		cl.Intent = IntentMention
		return cl
	}

	if strings.HasPrefix(cl.Text, c.cfg.Prefix) && len(cl.Text) > len(c.cfg.Prefix) {
		cl.Intent = IntentCommand
		return cl
	}

	if !cl.IsGroup && cl.Text != "" {
		cl.Intent = IntentChat
		return cl
	}

	cl.Intent = IntentIgnore
	return cl
}

// addressed reports whether ev mentions the bot or replies to it.
func (c *Classifier) addressed(ev *comms.InboundEvent, text string) bool {
	self := c.cfg.SelfID
	if self == "" {
		return false
	}
	if ev.Mentions(self) || ev.QuotedSenderID == self {
		return true
	}
	number, _, _ := strings.Cut(self, "@")
	return number != "" && strings.Contains(text, "@"+number)
}
