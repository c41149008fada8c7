// Package comms defines the platform-agnostic message contracts shared by the
// transport adapter and the bot core.
package comms

import (
	"context"
	"slices"
	"strings"
	"time"
)

// EventKind classifies the payload carried by an InboundEvent.
type EventKind string

const (
	KindText       EventKind = "text"
	KindMedia      EventKind = "media"
	KindReaction   EventKind = "reaction"
	KindProtocol   EventKind = "protocol"
	KindEphemeral  EventKind = "ephemeral"
	KindPollUpdate EventKind = "poll_update"
	KindEmpty      EventKind = "empty"
)

// MediaKind identifies attached media.
type MediaKind string

const (
	MediaNone     MediaKind = ""
	MediaImage    MediaKind = "image"
	MediaVideo    MediaKind = "video"
	MediaAudio    MediaKind = "audio"
	MediaSticker  MediaKind = "sticker"
	MediaDocument MediaKind = "document"
)

// InboundEvent is one message event delivered by the transport.
type InboundEvent struct {
	ID        string    `json:"id"`
	ChatID    string    `json:"chat_id"`            // group ID or the sender's private chat
	SenderID  string    `json:"sender_id"`          // author
	GroupID   string    `json:"group_id,omitempty"` // empty for private chats
	PushName  string    `json:"push_name,omitempty"`
	FromSelf  bool      `json:"from_self,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Kind      EventKind `json:"kind"`

	Text      string    `json:"text,omitempty"`
	MediaKind MediaKind `json:"media_kind,omitempty"`
	MediaRef  string    `json:"media_ref,omitempty"` // transport-side handle for DownloadMedia

	QuotedMessageID string   `json:"quoted_message_id,omitempty"`
	QuotedSenderID  string   `json:"quoted_sender_id,omitempty"`
	MentionedIDs    []string `json:"mentioned_ids,omitempty"`

	Reaction *ReactionEvent `json:"reaction,omitempty"`
}

// ReactionEvent is an emoji reaction to an earlier message.
type ReactionEvent struct {
	TargetMessageID string `json:"target_message_id"`
	Emoji           string `json:"emoji"`
}

// IsGroup reports whether the event happened in a group chat.
func (e *InboundEvent) IsGroup() bool {
	return e.GroupID != ""
}

// HasMedia reports whether the event carries media.
func (e *InboundEvent) HasMedia() bool {
	return e.MediaKind != MediaNone
}

// Mentions reports whether id is among the mentioned participants.
func (e *InboundEvent) Mentions(id string) bool {
	return id != "" && slices.Contains(e.MentionedIDs, id)
}

// pseudoRecipientSuffixes mark chats that are never conversational.
var pseudoRecipientSuffixes = []string{"@broadcast", "@newsletter"}

// IsPseudoRecipient reports whether chatID addresses a broadcast list,
// status feed or newsletter.
func IsPseudoRecipient(chatID string) bool {
	for _, suffix := range pseudoRecipientSuffixes {
		if strings.HasSuffix(chatID, suffix) {
			return true
		}
	}
	return false
}

// OutboundMessage is the content of a message sent through the transport.
type OutboundMessage struct {
	Text      string    `json:"text,omitempty"`
	Media     []byte    `json:"media,omitempty"`
	MediaKind MediaKind `json:"media_kind,omitempty"`
	QuotedID  string    `json:"quoted_id,omitempty"`
	Mentions  []string  `json:"mentions,omitempty"`
}

// GroupMetadata describes a group's participants.
type GroupMetadata struct {
	ID      string   `json:"id"`
	Name    string   `json:"name"`
	Members []string `json:"members"`
	Admins  []string `json:"admins"`
}

// HasMember reports whether userID participates in the group.
func (g *GroupMetadata) HasMember(userID string) bool {
	return g != nil && slices.Contains(g.Members, userID)
}

// IsAdmin reports whether userID administers the group.
func (g *GroupMetadata) IsAdmin(userID string) bool {
	return g != nil && slices.Contains(g.Admins, userID)
}

// Transport is the messaging-platform session. Connection lifecycle,
// encryption and delivery retries are the implementation's concern.
type Transport interface {
	// SendMessage delivers msg to target and returns the platform message ID.
	SendMessage(ctx context.Context, target string, msg OutboundMessage) (string, error)

	// GroupMetadata returns the participants of a group.
	GroupMetadata(ctx context.Context, groupID string) (*GroupMetadata, error)

	// DownloadMedia fetches the media attached to ev.
	DownloadMedia(ctx context.Context, ev *InboundEvent) ([]byte, error)
}

// Reply sends a plain text message to chatID.
func Reply(ctx context.Context, t Transport, chatID, text string) error {
	_, err := t.SendMessage(ctx, chatID, OutboundMessage{Text: text})
	return err
}

// MessageRecord is one entry of the inbound message log.
type MessageRecord struct {
	ID        string    `json:"id"`
	ChatID    string    `json:"chat_id"`
	SenderID  string    `json:"sender_id"`
	GroupID   string    `json:"group_id,omitempty"`
	Route     string    `json:"route"`
	Text      string    `json:"text,omitempty"`
	MediaKind MediaKind `json:"media_kind,omitempty"`
	At        time.Time `json:"at"`
}
