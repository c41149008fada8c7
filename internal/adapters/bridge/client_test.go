package bridge

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/alekspetrov/turma/internal/comms"
	"github.com/alekspetrov/turma/internal/testutil"
)

// gateway is a scripted bridge peer.
type gateway struct {
	t        *testing.T
	srv      *httptest.Server
	upgrader websocket.Upgrader
	conns    atomic.Int32
	auth     atomic.Value
	onConn   func(n int32, conn *websocket.Conn)
}

func newGateway(t *testing.T, onConn func(n int32, conn *websocket.Conn)) *gateway {
	g := &gateway{t: t, onConn: onConn}
	g.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		g.auth.Store(r.Header.Get("Authorization"))
		conn, err := g.upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer func() { _ = conn.Close() }()
		g.onConn(g.conns.Add(1), conn)
	}))
	t.Cleanup(g.srv.Close)
	return g
}

func (g *gateway) url() string {
	return "ws" + strings.TrimPrefix(g.srv.URL, "http")
}

// serveRequests answers every request until the socket closes.
func serveRequests(conn *websocket.Conn) {
	for {
		var f Frame
		if err := conn.ReadJSON(&f); err != nil {
			return
		}
		res := Frame{Type: FrameResult, ID: f.ID}
		switch f.Type {
		case FrameSend:
			res.MessageID = "wamid-" + f.Target
		case FrameGroupMetadata:
			res.Group = &comms.GroupMetadata{ID: f.GroupID, Name: "Turma", Members: []string{"ana"}}
		case FrameDownload:
			if f.MediaRef == "missing" {
				res.Error = "media expired"
			} else {
				res.Data = []byte{0xff, 0xd8, 0x00}
			}
		}
		if err := conn.WriteJSON(res); err != nil {
			return
		}
	}
}

type recordingHandler struct {
	mu     sync.Mutex
	events []*comms.InboundEvent
	got    chan struct{}
}

func newRecordingHandler() *recordingHandler {
	return &recordingHandler{got: make(chan struct{}, 16)}
}

func (h *recordingHandler) HandleEvent(_ context.Context, ev *comms.InboundEvent) {
	h.mu.Lock()
	h.events = append(h.events, ev)
	h.mu.Unlock()
	h.got <- struct{}{}
}

func testConfig(url string) *Config {
	cfg := DefaultConfig()
	cfg.URL = url
	cfg.Token = testutil.FakeBridgeToken
	cfg.ReconnectDelay = 20 * time.Millisecond
	cfg.RequestTimeout = 2 * time.Second
	return cfg
}

func waitConnected(t *testing.T, c *Client) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !c.Connected() {
		if time.Now().After(deadline) {
			t.Fatal("client never connected")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestClient_EventsAndRequests(t *testing.T) {
	g := newGateway(t, func(_ int32, conn *websocket.Conn) {
		_ = conn.WriteJSON(Frame{Type: FrameEvent, Event: &comms.InboundEvent{ID: "m1", ChatID: "c", Kind: comms.KindText, Text: "oi"}})
		serveRequests(conn)
	})
	c := New(testConfig(g.url()))
	h := newRecordingHandler()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx, h) }()

	select {
	case <-h.got:
	case <-time.After(2 * time.Second):
		t.Fatal("event not delivered")
	}
	if h.events[0].Text != "oi" {
		t.Errorf("event = %+v", h.events[0])
	}
	if got := g.auth.Load(); got != "Bearer "+testutil.FakeBridgeToken {
		t.Errorf("authorization = %v", got)
	}

	waitConnected(t, c)
	id, err := c.SendMessage(ctx, "grupo", comms.OutboundMessage{Text: "olá"})
	if err != nil || id != "wamid-grupo" {
		t.Errorf("SendMessage = %q, %v", id, err)
	}
	meta, err := c.GroupMetadata(ctx, "g@g.us")
	if err != nil || meta.Name != "Turma" || !meta.HasMember("ana") {
		t.Errorf("GroupMetadata = %+v, %v", meta, err)
	}
	data, err := c.DownloadMedia(ctx, &comms.InboundEvent{ID: "m2", MediaRef: "ref"})
	if err != nil || len(data) != 3 {
		t.Errorf("DownloadMedia = %v, %v", data, err)
	}
	if _, err := c.DownloadMedia(ctx, &comms.InboundEvent{ID: "m3", MediaRef: "missing"}); err == nil || !strings.Contains(err.Error(), "media expired") {
		t.Errorf("DownloadMedia error = %v", err)
	}

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Run returned %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop")
	}
}

func TestClient_Reconnects(t *testing.T) {
	g := newGateway(t, func(n int32, conn *websocket.Conn) {
		if n == 1 {
			return // drop the first connection
		}
		serveRequests(conn)
	})
	c := New(testConfig(g.url()))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = c.Run(ctx, newRecordingHandler()) }()

	deadline := time.Now().Add(3 * time.Second)
	for g.conns.Load() < 2 {
		if time.Now().After(deadline) {
			t.Fatal("client did not reconnect")
		}
		time.Sleep(10 * time.Millisecond)
	}
	waitConnected(t, c)
	if _, err := c.SendMessage(ctx, "x", comms.OutboundMessage{Text: "ok"}); err != nil {
		t.Errorf("SendMessage after reconnect: %v", err)
	}
}

func TestClient_RequestTimeout(t *testing.T) {
	g := newGateway(t, func(_ int32, conn *websocket.Conn) {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})
	cfg := testConfig(g.url())
	cfg.RequestTimeout = 50 * time.Millisecond
	c := New(cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = c.Run(ctx, newRecordingHandler()) }()
	waitConnected(t, c)

	_, err := c.SendMessage(ctx, "x", comms.OutboundMessage{Text: "?"})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("err = %v, want deadline exceeded", err)
	}
}

func TestClient_NotConnected(t *testing.T) {
	c := New(testConfig("ws://127.0.0.1:1/none"))
	if _, err := c.SendMessage(context.Background(), "x", comms.OutboundMessage{}); !errors.Is(err, ErrNotConnected) {
		t.Errorf("err = %v, want ErrNotConnected", err)
	}
}

func TestConfigValidate(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults must validate: %v", err)
	}
	cfg.URL = ""
	if err := cfg.Validate(); err == nil {
		t.Error("empty url must fail")
	}
}
