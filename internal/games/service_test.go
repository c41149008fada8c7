package games

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alekspetrov/turma/internal/comms"
	"github.com/alekspetrov/turma/internal/testutil"
)

const testGroup = "120363-grupo@g.us"

type waitRecorder struct {
	mu    sync.Mutex
	waits []time.Duration
}

func (w *waitRecorder) wait(_ context.Context, d time.Duration) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.waits = append(w.waits, d)
	return nil
}

func newTestService(t *testing.T) (*Service, *MemoryStore, *testutil.FakeTransport, *waitRecorder) {
	t.Helper()
	store := NewMemoryStore()
	transport := testutil.NewFakeTransport()
	rec := &waitRecorder{}
	svc := NewService(store, transport, DefaultConfig(), WithClock(testutil.NewFakeClock()), WithWait(rec.wait))
	return svc, store, transport, rec
}

func TestActivate_RejectsSecondActiveGame(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	ctx := context.Background()

	if _, err := svc.Activate(ctx, testGroup, VariantPhoto, "admin"); err != nil {
		t.Fatalf("first Activate: %v", err)
	}
	if _, err := svc.Activate(ctx, testGroup, VariantPhoto, "other"); !errors.Is(err, ErrAlreadyActive) {
		t.Fatalf("second Activate error = %v, want ErrAlreadyActive", err)
	}
	// A different variant is independent.
	if _, err := svc.Activate(ctx, testGroup, VariantConfession, "admin"); err != nil {
		t.Fatalf("confession Activate: %v", err)
	}

	games, _ := svc.ActiveGames(ctx, VariantPhoto)
	if len(games) != 1 {
		t.Errorf("active photo games = %d, want 1", len(games))
	}
}

func TestIntake_NoActiveGame(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	_, err := svc.Intake(context.Background(), testGroup, VariantConfession, "u1", Payload{Text: "oi"})
	if !errors.Is(err, ErrNoActiveGame) {
		t.Fatalf("Intake error = %v, want ErrNoActiveGame", err)
	}
	if _, ok := comms.AsSoftError(err); !ok {
		t.Error("ErrNoActiveGame must be a soft error")
	}
}

func TestIntake_ConcurrentSameSender(t *testing.T) {
	svc, store, _, _ := newTestService(t)
	ctx := context.Background()
	if _, err := svc.Activate(ctx, testGroup, VariantConfession, "admin"); err != nil {
		t.Fatal(err)
	}

	const workers = 8
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Intake(ctx, testGroup, VariantConfession, "sender", Payload{Text: "segredo"})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	accepted, rejected := 0, 0
	for err := range errs {
		switch {
		case err == nil:
			accepted++
		case errors.Is(err, ErrAlreadySubmitted):
			rejected++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if accepted != 1 || rejected != workers-1 {
		t.Errorf("accepted=%d rejected=%d, want 1 and %d", accepted, rejected, workers-1)
	}

	g, _ := store.ActiveGame(ctx, testGroup, VariantConfession)
	if len(g.Items) != 1 {
		t.Errorf("stored items = %d, want 1", len(g.Items))
	}
}

func TestMemoryStore_AddItemRechecksSender(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	g := &Game{ID: "g1", GroupID: testGroup, Variant: VariantPhoto, Active: true}
	if err := store.CreateGame(ctx, g); err != nil {
		t.Fatal(err)
	}
	if err := store.AddItem(ctx, "g1", &Item{ID: "a", SenderID: "s"}); err != nil {
		t.Fatal(err)
	}
	if err := store.AddItem(ctx, "g1", &Item{ID: "b", SenderID: "s"}); !errors.Is(err, ErrAlreadySubmitted) {
		t.Fatalf("second AddItem error = %v, want ErrAlreadySubmitted", err)
	}
}

func TestReveal_PostsSequentiallyAndKeepsGameActive(t *testing.T) {
	svc, store, transport, rec := newTestService(t)
	ctx := context.Background()
	if _, err := svc.Activate(ctx, testGroup, VariantConfession, "admin"); err != nil {
		t.Fatal(err)
	}
	for _, s := range []string{"a", "b", "c"} {
		if _, err := svc.Intake(ctx, testGroup, VariantConfession, s, Payload{Text: "confissão de " + s}); err != nil {
			t.Fatal(err)
		}
	}

	n, err := svc.Reveal(ctx, testGroup, VariantConfession)
	if err != nil {
		t.Fatalf("Reveal: %v", err)
	}
	if n != 3 {
		t.Errorf("revealed = %d, want 3", n)
	}
	if len(rec.waits) != 2 {
		t.Errorf("waits = %d, want 2 (between items only)", len(rec.waits))
	}

	texts := transport.SentTo(testGroup)
	if len(texts) != 4 {
		t.Fatalf("sent %d messages, want announcement + 3 items: %v", len(texts), texts)
	}
	for i, want := range []string{"#1", "#2", "#3"} {
		if !strings.Contains(texts[i+1], want) {
			t.Errorf("item %d text %q missing %q", i, texts[i+1], want)
		}
	}

	g, err := store.ActiveGame(ctx, testGroup, VariantConfession)
	if err != nil {
		t.Fatalf("game must stay active after reveal: %v", err)
	}
	if len(g.Pending()) != 0 || len(g.Revealed()) != 3 {
		t.Errorf("pending=%d revealed=%d, want 0 and 3", len(g.Pending()), len(g.Revealed()))
	}

	if _, err := svc.Reveal(ctx, testGroup, VariantConfession); !errors.Is(err, ErrNothingToReveal) {
		t.Errorf("second Reveal error = %v, want ErrNothingToReveal", err)
	}

	// Same sender may submit again after the reveal; numbering continues.
	if _, err := svc.Intake(ctx, testGroup, VariantConfession, "a", Payload{Text: "mais uma"}); err != nil {
		t.Fatalf("Intake after reveal: %v", err)
	}
	if _, err := svc.Reveal(ctx, testGroup, VariantConfession); err != nil {
		t.Fatal(err)
	}
	if last := transport.LastTextTo(testGroup); !strings.Contains(last, "#4") {
		t.Errorf("next reveal text %q, want #4", last)
	}
}

func TestReveal_SendFailureKeepsRemainingPending(t *testing.T) {
	svc, store, transport, _ := newTestService(t)
	ctx := context.Background()
	_, _ = svc.Activate(ctx, testGroup, VariantConfession, "admin")
	_, _ = svc.Intake(ctx, testGroup, VariantConfession, "a", Payload{Text: "um"})

	transport.SendErr = errors.New("offline")
	if _, err := svc.Reveal(ctx, testGroup, VariantConfession); err == nil {
		t.Fatal("expected error when transport fails")
	}
	g, _ := store.ActiveGame(ctx, testGroup, VariantConfession)
	if len(g.Pending()) != 1 {
		t.Errorf("pending = %d, want 1", len(g.Pending()))
	}
}

func TestReveal_StopsWhenGameEndsMidway(t *testing.T) {
	tests := []struct {
		name string
		end  func(t *testing.T, ctx context.Context, svc *Service) error
	}{
		{
			name: "Cancel",
			end: func(t *testing.T, ctx context.Context, svc *Service) error {
				n, err := svc.Cancel(ctx, testGroup, VariantConfession)
				if n != 1 {
					t.Errorf("discarded = %d, want 1", n)
				}
				return err
			},
		},
		{
			name: "Finalize",
			end: func(t *testing.T, ctx context.Context, svc *Service) error {
				sum, err := svc.Finalize(ctx, testGroup, VariantConfession)
				if sum != nil && sum.Discarded != 1 {
					t.Errorf("discarded = %d, want 1", sum.Discarded)
				}
				return err
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			store := NewMemoryStore()
			transport := testutil.NewFakeTransport()

			var svc *Service
			var endErr error
			ended := false
			svc = NewService(store, transport, DefaultConfig(),
				WithClock(testutil.NewFakeClock()),
				WithWait(func(ctx context.Context, _ time.Duration) error {
					if !ended {
						ended = true
						endErr = tt.end(t, ctx, svc)
					}
					return nil
				}))

			if _, err := svc.Activate(ctx, testGroup, VariantConfession, "admin"); err != nil {
				t.Fatal(err)
			}
			_, _ = svc.Intake(ctx, testGroup, VariantConfession, "a", Payload{Text: "first secret"})
			_, _ = svc.Intake(ctx, testGroup, VariantConfession, "b", Payload{Text: "second secret"})

			n, err := svc.Reveal(ctx, testGroup, VariantConfession)
			if err != nil {
				t.Fatalf("Reveal: %v", err)
			}
			if endErr != nil {
				t.Fatalf("%s during reveal: %v", tt.name, endErr)
			}
			if n != 1 {
				t.Errorf("revealed = %d, want 1", n)
			}
			for _, text := range transport.SentTo(testGroup) {
				if strings.Contains(text, "second secret") {
					t.Errorf("discarded confession was posted: %q", text)
				}
			}
		})
	}
}

func TestReveal_TruncatesLongCaptions(t *testing.T) {
	svc, _, transport, _ := newTestService(t)
	ctx := context.Background()
	if _, err := svc.Activate(ctx, testGroup, VariantPhoto, "admin"); err != nil {
		t.Fatal(err)
	}
	caption := strings.Repeat("legenda comprida ", 40)
	p := Payload{MediaKind: comms.MediaImage, Media: []byte("jpeg"), Caption: caption}
	if _, err := svc.Intake(ctx, testGroup, VariantPhoto, "a", p); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Reveal(ctx, testGroup, VariantPhoto); err != nil {
		t.Fatal(err)
	}

	text := transport.LastTextTo(testGroup)
	if strings.Contains(text, strings.TrimSpace(caption)) {
		t.Error("caption was posted whole")
	}
	if !strings.Contains(text, "...") {
		t.Errorf("truncated caption missing ellipsis:\n%s", text)
	}
}

func revealPhotos(t *testing.T, svc *Service, senders ...string) {
	t.Helper()
	ctx := context.Background()
	if _, err := svc.Activate(ctx, testGroup, VariantPhoto, "admin"); err != nil {
		t.Fatal(err)
	}
	for _, s := range senders {
		p := Payload{MediaKind: comms.MediaImage, Media: []byte("jpeg-" + s)}
		if _, err := svc.Intake(ctx, testGroup, VariantPhoto, s, p); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := svc.Reveal(ctx, testGroup, VariantPhoto); err != nil {
		t.Fatal(err)
	}
}

func reactionEvent(reactor, target, emoji string) *comms.InboundEvent {
	return &comms.InboundEvent{
		ID:       "r-" + reactor + target,
		ChatID:   testGroup,
		GroupID:  testGroup,
		SenderID: reactor,
		Kind:     comms.KindReaction,
		Reaction: &comms.ReactionEvent{TargetMessageID: target, Emoji: emoji},
	}
}

func TestReact_TargetsRevealedItem(t *testing.T) {
	svc, store, transport, _ := newTestService(t)
	revealPhotos(t, svc, "ana", "bia")
	ctx := context.Background()

	sent := transport.Sent()
	photoAna := sent[1].ID

	ok, err := svc.React(ctx, reactionEvent("caio", photoAna, "😍"))
	if err != nil || !ok {
		t.Fatalf("React = %v, %v; want true", ok, err)
	}
	ok, _ = svc.React(ctx, reactionEvent("caio", photoAna, "🎉"))
	if ok {
		t.Error("emoji outside vocabulary must be ignored")
	}
	ok, _ = svc.React(ctx, reactionEvent("caio", "some-other-msg", "😍"))
	if ok {
		t.Error("reaction to a non-revealed message must be ignored")
	}

	g, _ := store.ActiveGame(ctx, testGroup, VariantPhoto)
	if len(g.Reactions) != 1 {
		t.Fatalf("reactions = %d, want 1", len(g.Reactions))
	}
	if got := g.Reactions[0]; got.Kind != ReactionPego || got.ItemID != g.Revealed()[0].ID {
		t.Errorf("reaction = %+v", got)
	}
}

func TestKindForEmoji_IgnoresModifiers(t *testing.T) {
	if k, ok := VariantPhoto.KindForEmoji("👎🏽"); !ok || k != ReactionPasso {
		t.Errorf("skin tone: got %q, %v", k, ok)
	}
	if k, ok := VariantConfession.KindForEmoji("🙋️"); !ok || k != ReactionEuTambem {
		t.Errorf("variation selector: got %q, %v", k, ok)
	}
	if _, ok := VariantConfession.KindForEmoji("😍"); ok {
		t.Error("photo emoji must not map in the confession vocabulary")
	}
}

func TestParseKind(t *testing.T) {
	tests := []struct {
		v    Variant
		in   string
		want ReactionKind
		ok   bool
	}{
		{VariantPhoto, "Pego", ReactionPego, true},
		{VariantPhoto, "🤔", ReactionPenso, true},
		{VariantConfession, "eu também", ReactionEuTambem, true},
		{VariantConfession, "pego", "", false},
	}
	for _, tt := range tests {
		got, ok := tt.v.ParseKind(tt.in)
		if got != tt.want || ok != tt.ok {
			t.Errorf("%s.ParseKind(%q) = %q, %v; want %q, %v", tt.v, tt.in, got, ok, tt.want, tt.ok)
		}
	}
}

func TestCancelAndFinalize(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	ctx := context.Background()

	_, _ = svc.Activate(ctx, testGroup, VariantConfession, "admin")
	_, _ = svc.Intake(ctx, testGroup, VariantConfession, "a", Payload{Text: "x1"})
	_, _ = svc.Intake(ctx, testGroup, VariantConfession, "b", Payload{Text: "x2"})

	discarded, err := svc.Cancel(ctx, testGroup, VariantConfession)
	if err != nil || discarded != 2 {
		t.Fatalf("Cancel = %d, %v; want 2", discarded, err)
	}
	if _, err := svc.Cancel(ctx, testGroup, VariantConfession); !errors.Is(err, ErrNoActiveGame) {
		t.Errorf("Cancel on inactive = %v, want ErrNoActiveGame", err)
	}

	revealPhotos(t, svc, "a", "b")
	_, _ = svc.Intake(ctx, testGroup, VariantPhoto, "c", Payload{MediaKind: comms.MediaImage})
	sum, err := svc.Finalize(ctx, testGroup, VariantPhoto)
	if err != nil {
		t.Fatal(err)
	}
	if sum.Revealed != 2 || sum.Discarded != 1 {
		t.Errorf("summary = %+v, want 2 revealed / 1 discarded", sum)
	}

	// Rankings still work on the finalized game.
	ranking, err := svc.Ranking(ctx, testGroup, VariantPhoto, ReactionPego)
	if err != nil || len(ranking) != 2 {
		t.Errorf("Ranking after finalize = %v, %v", ranking, err)
	}
}

func TestPhotoPayload_DownscalesLargeImages(t *testing.T) {
	svc, _, transport, _ := newTestService(t)
	svc.cfg.MediaMaxDim = 64

	img := image.NewRGBA(image.Rect(0, 0, 256, 128))
	for x := 0; x < 256; x++ {
		img.Set(x, x%128, color.RGBA{R: 200, A: 255})
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	transport.AddMedia("m1", buf.Bytes())

	p, err := svc.PhotoPayload(context.Background(), &comms.InboundEvent{MediaKind: comms.MediaImage, MediaRef: "m1", Text: " legenda "})
	if err != nil {
		t.Fatalf("PhotoPayload: %v", err)
	}
	if p.Caption != "legenda" {
		t.Errorf("caption = %q", p.Caption)
	}
	decoded, _, err := image.Decode(bytes.NewReader(p.Media))
	if err != nil {
		t.Fatalf("decode stored media: %v", err)
	}
	if b := decoded.Bounds(); b.Dx() > 64 || b.Dy() > 64 {
		t.Errorf("stored image %dx%d exceeds 64", b.Dx(), b.Dy())
	}
}

func TestDownscale_LeavesUndecodableData(t *testing.T) {
	data := []byte("not an image")
	out, changed := Downscale(data, 100)
	if changed || !bytes.Equal(out, data) {
		t.Error("undecodable data must be returned unchanged")
	}
}

func TestConfessionPayload(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	svc.cfg.MaxConfessionLen = 10

	if _, err := svc.ConfessionPayload("  "); err == nil {
		t.Error("empty confession must be rejected")
	}
	if _, err := svc.ConfessionPayload("isso aqui é longo demais"); err == nil {
		t.Error("long confession must be rejected")
	}
	p, err := svc.ConfessionPayload("  eu colo  ")
	if err != nil || p.Text != "eu colo" {
		t.Errorf("ConfessionPayload = %+v, %v", p, err)
	}
}
