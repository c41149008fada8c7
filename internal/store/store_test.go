package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alekspetrov/turma/internal/comms"
	"github.com/alekspetrov/turma/internal/games"
	"github.com/alekspetrov/turma/internal/genai"
	"github.com/alekspetrov/turma/internal/testutil"
)

func newTestStore(t *testing.T) (*Store, *testutil.FakeClock) {
	t.Helper()
	clk := testutil.NewFakeClock()
	s, err := OpenMemory(WithClock(clk))
	if err != nil {
		t.Fatalf("OpenMemory failed: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s, clk
}

func TestOpen_CreatesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data", "turma.db")
	s, err := Open(&Config{Driver: DriverSQLite, Path: path, Timeout: time.Second})
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer func() { _ = s.Close() }()

	if _, err := os.Stat(path); err != nil {
		t.Errorf("database file not created: %v", err)
	}
	if err := s.Ping(context.Background()); err != nil {
		t.Errorf("Ping failed: %v", err)
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"pure go", Config{Driver: DriverSQLite, Path: MemoryPath, Timeout: time.Second}, false},
		{"cgo", Config{Driver: DriverCGO, Path: "x.db", Timeout: time.Second}, false},
		{"unknown driver", Config{Driver: "postgres", Path: "x", Timeout: time.Second}, true},
		{"no path", Config{Driver: DriverSQLite, Timeout: time.Second}, true},
		{"no timeout", Config{Driver: DriverSQLite, Path: "x"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.cfg.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestGameLifecycle(t *testing.T) {
	s, clk := newTestStore(t)
	ctx := context.Background()
	start := clk.Now()

	g := &games.Game{ID: "g1", GroupID: "turma@g.us", Variant: games.VariantPhoto, Active: true, ActivatorID: "ana", CreatedAt: start}
	if err := s.CreateGame(ctx, g); err != nil {
		t.Fatal(err)
	}
	dup := *g
	dup.ID = "g2"
	if err := s.CreateGame(ctx, &dup); !errors.Is(err, games.ErrAlreadyActive) {
		t.Fatalf("second CreateGame error = %v, want ErrAlreadyActive", err)
	}

	item := &games.Item{
		ID:          "i1",
		SenderID:    "bia",
		Payload:     games.Payload{MediaKind: comms.MediaImage, Media: []byte{1, 2, 3}, Caption: "praia"},
		SubmittedAt: start.Add(time.Minute),
	}
	if err := s.AddItem(ctx, "g1", item); err != nil {
		t.Fatal(err)
	}
	again := *item
	again.ID = "i2"
	if err := s.AddItem(ctx, "g1", &again); !errors.Is(err, games.ErrAlreadySubmitted) {
		t.Fatalf("second AddItem error = %v, want ErrAlreadySubmitted", err)
	}

	if err := s.MarkRevealed(ctx, "g1", "i1", "out-1", 1, start.Add(2*time.Minute)); err != nil {
		t.Fatal(err)
	}
	if err := s.AddItem(ctx, "g1", &again); err != nil {
		t.Errorf("a revealed item frees the sender: %v", err)
	}
	if err := s.AddReaction(ctx, "g1", &games.Reaction{ID: "r1", ItemID: "i1", ReactorID: "caio", Kind: games.ReactionPego, ReactedAt: start.Add(3 * time.Minute)}); err != nil {
		t.Fatal(err)
	}

	got, err := s.ActiveGame(ctx, "turma@g.us", games.VariantPhoto)
	if err != nil {
		t.Fatal(err)
	}
	if len(got.Items) != 2 || len(got.Reactions) != 1 {
		t.Fatalf("items=%d reactions=%d", len(got.Items), len(got.Reactions))
	}
	first := got.Items[0]
	if !first.Revealed || first.RevealOrder != 1 || first.MessageRef != "out-1" || string(first.Payload.Media) != "\x01\x02\x03" {
		t.Errorf("revealed item = %+v", first)
	}
	if !got.CreatedAt.Equal(start) {
		t.Errorf("CreatedAt = %v, want %v", got.CreatedAt, start)
	}
	if got.ItemByMessageRef("out-1") == nil {
		t.Error("lookup by message ref failed")
	}

	n, err := s.DiscardPending(ctx, "g1")
	if err != nil || n != 1 {
		t.Fatalf("DiscardPending = %d, %v", n, err)
	}
	if err := s.EndGame(ctx, "g1", start.Add(time.Hour)); err != nil {
		t.Fatal(err)
	}
	if _, err := s.ActiveGame(ctx, "turma@g.us", games.VariantPhoto); !errors.Is(err, games.ErrNoActiveGame) {
		t.Errorf("ActiveGame after end = %v", err)
	}
	if err := s.AddItem(ctx, "g1", &games.Item{ID: "i3", SenderID: "dani"}); !errors.Is(err, games.ErrNoActiveGame) {
		t.Errorf("AddItem on ended game = %v", err)
	}

	latest, err := s.LatestGame(ctx, "turma@g.us", games.VariantPhoto)
	if err != nil {
		t.Fatal(err)
	}
	if latest.Active || len(latest.Items) != 1 || latest.EndedAt.IsZero() {
		t.Errorf("latest = %+v", latest)
	}
	if _, err := s.LatestGame(ctx, "turma@g.us", games.VariantConfession); !errors.Is(err, games.ErrNoGame) {
		t.Errorf("LatestGame for unplayed variant = %v", err)
	}
}

func TestActiveGames_Ordered(t *testing.T) {
	s, clk := newTestStore(t)
	ctx := context.Background()

	for i, group := range []string{"b@g.us", "a@g.us", "c@g.us"} {
		g := &games.Game{ID: group, GroupID: group, Variant: games.VariantConfession, Active: true,
			CreatedAt: clk.Now().Add(time.Duration(i) * time.Minute)}
		if err := s.CreateGame(ctx, g); err != nil {
			t.Fatal(err)
		}
	}
	_ = s.CreateGame(ctx, &games.Game{ID: "p", GroupID: "a@g.us", Variant: games.VariantPhoto, Active: true, CreatedAt: clk.Now()})

	got, err := s.ActiveGames(ctx, games.VariantConfession)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 3 || got[0].GroupID != "b@g.us" || got[2].GroupID != "c@g.us" {
		t.Errorf("active games out of order: %v", got)
	}
}

func TestAddItem_ConcurrentSameSender(t *testing.T) {
	s, clk := newTestStore(t)
	ctx := context.Background()
	_ = s.CreateGame(ctx, &games.Game{ID: "g", GroupID: "g@g.us", Variant: games.VariantConfession, Active: true, CreatedAt: clk.Now()})

	var (
		wg       sync.WaitGroup
		accepted atomic.Int32
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			item := &games.Item{ID: string(rune('a' + i)), SenderID: "ana", Payload: games.Payload{Text: "segredo"}, SubmittedAt: clk.Now()}
			if err := s.AddItem(ctx, "g", item); err == nil {
				accepted.Add(1)
			}
		}(i)
	}
	wg.Wait()
	if accepted.Load() != 1 {
		t.Errorf("accepted %d submissions, want 1", accepted.Load())
	}
}

func TestServiceOverStore(t *testing.T) {
	s, clk := newTestStore(t)
	tr := testutil.NewFakeTransport()
	svc := games.NewService(s, tr, games.DefaultConfig(),
		games.WithClock(clk),
		games.WithWait(func(context.Context, time.Duration) error { return nil }))
	ctx := context.Background()

	if _, err := svc.Activate(ctx, "g@g.us", games.VariantConfession, "ana"); err != nil {
		t.Fatal(err)
	}
	for _, sender := range []string{"bia", "caio"} {
		if _, err := svc.Intake(ctx, "g@g.us", games.VariantConfession, sender, games.Payload{Text: "eu " + sender}); err != nil {
			t.Fatal(err)
		}
	}
	n, err := svc.Reveal(ctx, "g@g.us", games.VariantConfession)
	if err != nil || n != 2 {
		t.Fatalf("Reveal = %d, %v", n, err)
	}
	if len(tr.SentTo("g@g.us")) < 2 {
		t.Errorf("sent = %v", tr.SentTo("g@g.us"))
	}
}

func TestGroupSnapshot(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	if _, err := s.GroupSnapshot(ctx, "g@g.us"); !errors.Is(err, ErrNoSnapshot) {
		t.Fatalf("missing snapshot error = %v", err)
	}
	meta := &comms.GroupMetadata{ID: "g@g.us", Name: "Turma", Members: []string{"ana", "bia"}, Admins: []string{"ana"}}
	if err := s.SaveGroupSnapshot(ctx, meta); err != nil {
		t.Fatal(err)
	}
	meta.Members = append(meta.Members, "caio")
	if err := s.SaveGroupSnapshot(ctx, meta); err != nil {
		t.Fatal(err)
	}

	got, err := s.GroupSnapshot(ctx, "g@g.us")
	if err != nil {
		t.Fatal(err)
	}
	if got.Name != "Turma" || !got.HasMember("caio") || !got.IsAdmin("ana") || got.IsAdmin("bia") {
		t.Errorf("snapshot = %+v", got)
	}
}

func TestCommandToggles(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	for _, name := range []string{"fotos", "ia", "fotos"} {
		if err := s.SetCommandDisabled(ctx, "g@g.us", name, true); err != nil {
			t.Fatal(err)
		}
	}
	got, err := s.DisabledCommands(ctx, "g@g.us")
	if err != nil || len(got) != 2 || got[0] != "fotos" || got[1] != "ia" {
		t.Fatalf("disabled = %v, %v", got, err)
	}
	if off, _ := s.IsCommandDisabled(ctx, "other@g.us", "fotos"); off {
		t.Error("toggles are per group")
	}

	_ = s.SetCommandDisabled(ctx, "g@g.us", "fotos", false)
	if off, _ := s.IsCommandDisabled(ctx, "g@g.us", "fotos"); off {
		t.Error("fotos must be enabled again")
	}
}

func TestUsage(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	for _, name := range []string{"ping", "fotos", "ping", "ajuda", "ping", "fotos"} {
		if err := s.IncrementUsage(ctx, "g@g.us", name); err != nil {
			t.Fatal(err)
		}
	}
	got, err := s.TopUsage(ctx, "g@g.us", 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0].Command != "ping" || got[0].Count != 3 || got[1].Command != "fotos" {
		t.Errorf("top = %+v", got)
	}
}

func TestMessagesAndHistory(t *testing.T) {
	s, clk := newTestStore(t)
	ctx := context.Background()

	for i, text := range []string{"um", "dois", "três"} {
		rec := comms.MessageRecord{ID: text, ChatID: "c", SenderID: "ana", Route: "chat", Text: text, At: clk.Now().Add(time.Duration(i) * time.Second)}
		if err := s.LogMessage(ctx, rec); err != nil {
			t.Fatal(err)
		}
	}
	msgs, err := s.RecentMessages(ctx, "c", 2)
	if err != nil || len(msgs) != 2 || msgs[0].Text != "dois" || msgs[1].Text != "três" {
		t.Fatalf("messages = %+v, %v", msgs, err)
	}

	_ = s.AppendHistory(ctx, "c", []genai.Message{{Role: genai.RoleUser, Text: "oi"}, {Role: genai.RoleModel, Text: "olá"}})
	clk.Advance(time.Hour)
	_ = s.AppendHistory(ctx, "c", []genai.Message{{Role: genai.RoleUser, Text: "e aí"}})

	hist, err := s.RecentHistory(ctx, "c", 2)
	if err != nil || len(hist) != 2 || hist[0].Text != "olá" || hist[1].Role != genai.RoleUser {
		t.Fatalf("history = %+v, %v", hist, err)
	}

	n, err := s.PruneHistory(ctx, 30*time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	if n != 5 {
		t.Errorf("pruned %d rows, want 2 history turns and 3 messages", n)
	}
	if hist, _ := s.RecentHistory(ctx, "c", 10); len(hist) != 1 {
		t.Errorf("history after prune = %+v", hist)
	}
}
