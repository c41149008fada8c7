package testutil

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/alekspetrov/turma/internal/comms"
)

// SentMessage is one message captured by FakeTransport.
type SentMessage struct {
	Target  string
	Message comms.OutboundMessage
	ID      string
}

// FakeTransport records outbound messages and serves canned group metadata
// and media.
type FakeTransport struct {
	mu       sync.Mutex
	sent     []SentMessage
	groups   map[string]*comms.GroupMetadata
	media    map[string][]byte
	seq      int
	SendErr  error
	GroupErr error
}

// NewFakeTransport creates an empty FakeTransport.
func NewFakeTransport() *FakeTransport {
	return &FakeTransport{
		groups: make(map[string]*comms.GroupMetadata),
		media:  make(map[string][]byte),
	}
}

// AddGroup registers group metadata.
func (f *FakeTransport) AddGroup(id, name string, members, admins []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.groups[id] = &comms.GroupMetadata{ID: id, Name: name, Members: members, Admins: admins}
}

// AddMedia registers the bytes served for a media ref.
func (f *FakeTransport) AddMedia(ref string, data []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.media[ref] = data
}

// SendMessage implements comms.Transport.
func (f *FakeTransport) SendMessage(_ context.Context, target string, msg comms.OutboundMessage) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.SendErr != nil {
		return "", f.SendErr
	}
	f.seq++
	id := fmt.Sprintf("out-%d", f.seq)
	f.sent = append(f.sent, SentMessage{Target: target, Message: msg, ID: id})
	return id, nil
}

// GroupMetadata implements comms.Transport.
func (f *FakeTransport) GroupMetadata(_ context.Context, groupID string) (*comms.GroupMetadata, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.GroupErr != nil {
		return nil, f.GroupErr
	}
	g, ok := f.groups[groupID]
	if !ok {
		return nil, fmt.Errorf("unknown group %s", groupID)
	}
	c := *g
	return &c, nil
}

// DownloadMedia implements comms.Transport.
func (f *FakeTransport) DownloadMedia(_ context.Context, ev *comms.InboundEvent) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.media[ev.MediaRef]
	if !ok {
		return nil, errors.New("media not found")
	}
	return data, nil
}

// Sent returns a copy of every captured message.
func (f *FakeTransport) Sent() []SentMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]SentMessage(nil), f.sent...)
}

// SentTo returns the texts sent to target.
func (f *FakeTransport) SentTo(target string) []string {
	var out []string
	for _, m := range f.Sent() {
		if m.Target == target {
			out = append(out, m.Message.Text)
		}
	}
	return out
}

// LastTextTo returns the last text sent to target, or "".
func (f *FakeTransport) LastTextTo(target string) string {
	texts := f.SentTo(target)
	if len(texts) == 0 {
		return ""
	}
	return texts[len(texts)-1]
}

// AnySentContains reports whether any text sent to target contains substr.
func (f *FakeTransport) AnySentContains(target, substr string) bool {
	for _, t := range f.SentTo(target) {
		if strings.Contains(t, substr) {
			return true
		}
	}
	return false
}

// Reset drops captured messages.
func (f *FakeTransport) Reset() {
	f.mu.Lock()
	f.sent = nil
	f.mu.Unlock()
}
