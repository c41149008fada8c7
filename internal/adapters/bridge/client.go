// Package bridge connects turma to a messaging gateway over WebSocket. The
// gateway owns the platform session; the bridge relays events and requests.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/alekspetrov/turma/internal/comms"
	"github.com/alekspetrov/turma/internal/logging"
)

// ErrNotConnected is returned by requests made while the socket is down.
var ErrNotConnected = errors.New("bridge not connected")

// Handler receives inbound events.
type Handler interface {
	HandleEvent(ctx context.Context, ev *comms.InboundEvent)
}

// Client is a comms.Transport backed by the gateway socket.
type Client struct {
	cfg *Config
	log *slog.Logger

	mu   sync.Mutex // guards conn and serializes writes
	conn *websocket.Conn

	pmu     sync.Mutex
	pending map[string]chan *Frame

	events sync.WaitGroup
}

// New creates a Client. Run must be called to connect.
func New(cfg *Config) *Client {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	return &Client{
		cfg:     cfg,
		log:     logging.WithComponent("bridge"),
		pending: make(map[string]chan *Frame),
	}
}

// Connected reports whether the socket is up.
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

// Run connects and delivers events to h until ctx is cancelled,
// reconnecting after a fixed delay whenever the socket drops.
func (c *Client) Run(ctx context.Context, h Handler) error {
	defer c.events.Wait()

	for {
		err := c.session(ctx, h)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.log.Warn("bridge disconnected, reconnecting",
			slog.Any("error", err),
			slog.Duration("delay", c.cfg.ReconnectDelay))

		t := time.NewTimer(c.cfg.ReconnectDelay)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
}

// session runs one connection until it fails.
func (c *Client) session(ctx context.Context, h Handler) error {
	conn, err := c.dial(ctx)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
	c.log.Info("bridge connected", slog.String("url", c.cfg.URL))

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-done:
		}
	}()

	defer func() {
		c.mu.Lock()
		c.conn = nil
		c.mu.Unlock()
		_ = conn.Close()
		c.failPending()
	}()

	for {
		var f Frame
		if err := conn.ReadJSON(&f); err != nil {
			return fmt.Errorf("read frame: %w", err)
		}

		switch f.Type {
		case FrameEvent:
			if f.Event == nil {
				continue
			}
			ev := f.Event
			c.events.Add(1)
			go func() {
				defer c.events.Done()
				h.HandleEvent(ctx, ev)
			}()
		case FrameResult:
			c.deliver(&f)
		default:
			c.log.Debug("ignoring frame", slog.String("type", f.Type))
		}
	}
}

func (c *Client) dial(ctx context.Context) (*websocket.Conn, error) {
	dialer := websocket.Dialer{HandshakeTimeout: c.cfg.HandshakeTimeout}
	header := http.Header{}
	if c.cfg.Token != "" {
		header.Set("Authorization", "Bearer "+c.cfg.Token)
	}
	conn, _, err := dialer.DialContext(ctx, c.cfg.URL, header)
	if err != nil {
		return nil, fmt.Errorf("dial bridge: %w", err)
	}
	return conn, nil
}

func (c *Client) deliver(f *Frame) {
	c.pmu.Lock()
	ch, ok := c.pending[f.ID]
	delete(c.pending, f.ID)
	c.pmu.Unlock()
	if ok {
		ch <- f
	}
}

// failPending releases waiters of a dropped connection.
func (c *Client) failPending() {
	c.pmu.Lock()
	defer c.pmu.Unlock()
	for id, ch := range c.pending {
		ch <- &Frame{Type: FrameResult, ID: id, Error: ErrNotConnected.Error()}
		delete(c.pending, id)
	}
}

func (c *Client) request(ctx context.Context, f *Frame) (*Frame, error) {
	f.ID = uuid.NewString()
	ch := make(chan *Frame, 1)

	c.pmu.Lock()
	c.pending[f.ID] = ch
	c.pmu.Unlock()
	defer func() {
		c.pmu.Lock()
		delete(c.pending, f.ID)
		c.pmu.Unlock()
	}()

	c.mu.Lock()
	if c.conn == nil {
		c.mu.Unlock()
		return nil, ErrNotConnected
	}
	err := c.conn.WriteJSON(f)
	c.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("write %s request: %w", f.Type, err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.RequestTimeout)
	defer cancel()

	select {
	case res := <-ch:
		if res.Error != "" {
			return nil, fmt.Errorf("%s failed: %s", f.Type, res.Error)
		}
		return res, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("%s request: %w", f.Type, ctx.Err())
	}
}

// SendMessage implements comms.Transport.
func (c *Client) SendMessage(ctx context.Context, target string, msg comms.OutboundMessage) (string, error) {
	res, err := c.request(ctx, &Frame{Type: FrameSend, Target: target, Message: &msg})
	if err != nil {
		return "", err
	}
	return res.MessageID, nil
}

// GroupMetadata implements comms.Transport.
func (c *Client) GroupMetadata(ctx context.Context, groupID string) (*comms.GroupMetadata, error) {
	res, err := c.request(ctx, &Frame{Type: FrameGroupMetadata, GroupID: groupID})
	if err != nil {
		return nil, err
	}
	if res.Group == nil {
		return nil, fmt.Errorf("group_metadata: empty result for %s", groupID)
	}
	return res.Group, nil
}

// DownloadMedia implements comms.Transport.
func (c *Client) DownloadMedia(ctx context.Context, ev *comms.InboundEvent) ([]byte, error) {
	if ev.MediaRef == "" {
		return nil, fmt.Errorf("event %s has no media", ev.ID)
	}
	res, err := c.request(ctx, &Frame{Type: FrameDownload, MediaRef: ev.MediaRef})
	if err != nil {
		return nil, err
	}
	return res.Data, nil
}
