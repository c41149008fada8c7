// Package games implements the two group mini-games: the photo reveal game
// and the anonymous confession game. Both share one data shape and differ
// only in payload type and reaction vocabulary.
package games

import (
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/alekspetrov/turma/internal/comms"
)

// Variant identifies a game kind.
type Variant string

const (
	VariantPhoto      Variant = "photo"
	VariantConfession Variant = "confession"
)

// Variants lists every game variant in reaction lookup order.
var Variants = []Variant{VariantPhoto, VariantConfession}

// ReactionKind is one entry of a variant's reaction vocabulary.
type ReactionKind string

const (
	ReactionPego  ReactionKind = "pego"
	ReactionPenso ReactionKind = "penso"
	ReactionPasso ReactionKind = "passo"

	ReactionEuTambem ReactionKind = "eutambem"
	ReactionChocado  ReactionKind = "chocado"
	ReactionMico     ReactionKind = "mico"
)

// ReactionArity is the number of reaction choices offered per item.
const ReactionArity = 3

// ReactionChoice binds a reaction kind to the emoji users react with.
type ReactionChoice struct {
	Kind  ReactionKind
	Emoji string
	Label string
}

var vocabularies = map[Variant][ReactionArity]ReactionChoice{
	VariantPhoto: {
		{ReactionPego, "😍", "pego"},
		{ReactionPenso, "🤔", "penso"},
		{ReactionPasso, "👎", "passo"},
	},
	VariantConfession: {
		{ReactionEuTambem, "🙋", "eu também"},
		{ReactionChocado, "😱", "chocado"},
		{ReactionMico, "🤡", "mico"},
	},
}

// Vocabulary returns the reaction choices of v.
func (v Variant) Vocabulary() []ReactionChoice {
	vocab := vocabularies[v]
	return vocab[:]
}

// KindForEmoji maps a reaction emoji to its kind. Variation selectors and
// skin tone modifiers are ignored.
func (v Variant) KindForEmoji(emoji string) (ReactionKind, bool) {
	base := stripEmojiModifiers(emoji)
	for _, c := range v.Vocabulary() {
		if c.Emoji == base {
			return c.Kind, true
		}
	}
	return "", false
}

// ParseKind maps a user-typed kind ("pego", "eu também") to a reaction kind.
func (v Variant) ParseKind(s string) (ReactionKind, bool) {
	key := strings.ReplaceAll(comms.FoldAccents(strings.TrimSpace(s)), " ", "")
	for _, c := range v.Vocabulary() {
		if string(c.Kind) == key || c.Emoji == s {
			return c.Kind, true
		}
	}
	return "", false
}

// PositiveKind is the reaction that counts as interest in the item's author.
func (v Variant) PositiveKind() ReactionKind {
	return v.Vocabulary()[0].Kind
}

// Noun is the plural user-facing name of the items of v.
func (v Variant) Noun() string {
	if v == VariantConfession {
		return "confissões"
	}
	return "fotos"
}

// ReactionHint renders the reaction legend appended to revealed items.
func (v Variant) ReactionHint() string {
	parts := make([]string, 0, ReactionArity)
	for _, c := range v.Vocabulary() {
		parts = append(parts, c.Emoji+" "+c.Label)
	}
	return "Reaja: " + strings.Join(parts, " · ")
}

func stripEmojiModifiers(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch {
		case r == '\uFE0F' || r == '\uFE0E':
		case r >= 0x1F3FB && r <= 0x1F3FF:
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Payload is the content of a submission: media with an optional caption,
// or confession text.
type Payload struct {
	MediaKind comms.MediaKind `json:"media_kind,omitempty"`
	Media     []byte          `json:"-"`
	Caption   string          `json:"caption,omitempty"`
	Text      string          `json:"text,omitempty"`
}

// IsMedia reports whether the payload carries media.
func (p Payload) IsMedia() bool {
	return p.MediaKind != comms.MediaNone
}

// Item is one submission to a game.
type Item struct {
	ID          string
	SenderID    string
	Payload     Payload
	SubmittedAt time.Time
	Revealed    bool
	RevealOrder int    // 1-based, set on reveal
	MessageRef  string // transport message ID of the revealed post
	RevealedAt  time.Time
}

// Reaction is one reaction to a revealed item.
type Reaction struct {
	ID        string
	ItemID    string // empty only for records captured before targets were stored
	ReactorID string
	Kind      ReactionKind
	ReactedAt time.Time
}

// Game is one activation of a variant in a group.
type Game struct {
	ID          string
	GroupID     string
	Variant     Variant
	Active      bool
	ActivatorID string
	Items       []Item
	Reactions   []Reaction
	CreatedAt   time.Time
	EndedAt     time.Time
}

// Pending returns the submissions awaiting reveal, oldest first.
func (g *Game) Pending() []Item {
	var out []Item
	for _, it := range g.Items {
		if !it.Revealed {
			out = append(out, it)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].SubmittedAt.Before(out[j].SubmittedAt) })
	return out
}

// Revealed returns the revealed items in reveal order.
func (g *Game) Revealed() []Item {
	var out []Item
	for _, it := range g.Items {
		if it.Revealed {
			out = append(out, it)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].RevealOrder < out[j].RevealOrder })
	return out
}

// HasPendingFrom reports whether senderID already has a submission waiting
// for reveal.
func (g *Game) HasPendingFrom(senderID string) bool {
	return slices.ContainsFunc(g.Items, func(it Item) bool {
		return !it.Revealed && it.SenderID == senderID
	})
}

// IsPending reports whether itemID is still waiting for reveal.
func (g *Game) IsPending(itemID string) bool {
	return slices.ContainsFunc(g.Items, func(it Item) bool {
		return !it.Revealed && it.ID == itemID
	})
}

// ItemByMessageRef finds the revealed item posted as messageRef.
func (g *Game) ItemByMessageRef(messageRef string) *Item {
	if messageRef == "" {
		return nil
	}
	for i := range g.Items {
		if g.Items[i].MessageRef == messageRef {
			return &g.Items[i]
		}
	}
	return nil
}
