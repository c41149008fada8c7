package bridge

import (
	"fmt"
	"time"

	"github.com/alekspetrov/turma/internal/comms"
)

// Frame types.
const (
	FrameEvent         = "event"
	FrameResult        = "result"
	FrameSend          = "send"
	FrameGroupMetadata = "group_metadata"
	FrameDownload      = "download"
)

// Frame is one JSON message on the bridge socket. Requests carry an ID that
// the gateway echoes in the matching result.
type Frame struct {
	Type string `json:"type"`
	ID   string `json:"id,omitempty"`

	Event *comms.InboundEvent `json:"event,omitempty"`

	// Request fields.
	Target   string                 `json:"target,omitempty"`
	Message  *comms.OutboundMessage `json:"message,omitempty"`
	GroupID  string                 `json:"group_id,omitempty"`
	MediaRef string                 `json:"media_ref,omitempty"`

	// Result fields.
	MessageID string               `json:"message_id,omitempty"`
	Group     *comms.GroupMetadata `json:"group,omitempty"`
	Data      []byte               `json:"data,omitempty"`
	Error     string               `json:"error,omitempty"`
}

// Config holds bridge settings.
type Config struct {
	URL              string        `yaml:"url"`   // ws:// or wss:// gateway endpoint
	Token            string        `yaml:"token"` // sent as a bearer token
	ReconnectDelay   time.Duration `yaml:"reconnect_delay"`
	RequestTimeout   time.Duration `yaml:"request_timeout"`
	HandshakeTimeout time.Duration `yaml:"handshake_timeout"`
}

// DefaultConfig returns the bridge defaults.
func DefaultConfig() *Config {
	return &Config{
		URL:              "ws://127.0.0.1:8787/bridge",
		ReconnectDelay:   5 * time.Second,
		RequestTimeout:   30 * time.Second,
		HandshakeTimeout: 10 * time.Second,
	}
}

// Validate checks the bridge settings.
func (c *Config) Validate() error {
	if c.URL == "" {
		return fmt.Errorf("bridge url is required")
	}
	if c.ReconnectDelay <= 0 || c.RequestTimeout <= 0 {
		return fmt.Errorf("bridge reconnect_delay and request_timeout must be positive")
	}
	return nil
}
