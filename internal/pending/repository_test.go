package pending

import (
	"testing"
	"time"

	"github.com/alekspetrov/turma/internal/games"
	"github.com/alekspetrov/turma/internal/testutil"
)

func TestMemoryRepository_LazyExpiry(t *testing.T) {
	clk := testutil.NewFakeClock()
	repo := NewMemoryRepository(5*time.Minute, clk)

	repo.Put(&Interaction{UserID: "u1", Variant: games.VariantPhoto, Step: StepConfirm, CreatedAt: clk.Now()})

	clk.Advance(4*time.Minute + 59*time.Second)
	if _, ok := repo.Get("u1"); !ok {
		t.Fatal("interaction expired early")
	}

	clk.Advance(time.Second)
	if _, ok := repo.Get("u1"); ok {
		t.Fatal("interaction must expire after the TTL")
	}
	if repo.Len() != 0 {
		t.Errorf("Len = %d, want expired entry dropped on read", repo.Len())
	}
}

func TestMemoryRepository_TransitionKeepsDeadline(t *testing.T) {
	clk := testutil.NewFakeClock()
	repo := NewMemoryRepository(5*time.Minute, clk)
	repo.Put(&Interaction{UserID: "u1", Step: StepConfirm, CreatedAt: clk.Now()})

	clk.Advance(3 * time.Minute)
	in, _ := repo.Get("u1")
	in.Step = StepChoose
	repo.Put(in)

	clk.Advance(2 * time.Minute)
	if _, ok := repo.Get("u1"); ok {
		t.Error("a transition must not extend the TTL")
	}
}

func TestMemoryRepository_Sweep(t *testing.T) {
	clk := testutil.NewFakeClock()
	repo := NewMemoryRepository(time.Minute, clk)
	repo.Put(&Interaction{UserID: "old", CreatedAt: clk.Now()})
	clk.Advance(2 * time.Minute)
	repo.Put(&Interaction{UserID: "new", CreatedAt: clk.Now()})

	if n := repo.Sweep(); n != 1 {
		t.Errorf("Sweep removed %d, want 1", n)
	}
	if repo.Len() != 1 {
		t.Errorf("Len = %d, want 1", repo.Len())
	}
	if _, ok := repo.Get("new"); !ok {
		t.Error("fresh interaction swept")
	}
}

func TestMemoryRepository_GetReturnsCopy(t *testing.T) {
	repo := NewMemoryRepository(time.Minute, testutil.NewFakeClock())
	repo.Put(&Interaction{UserID: "u", Options: []Option{{GroupID: "a"}}, CreatedAt: testutil.NewFakeClock().Now()})

	in, _ := repo.Get("u")
	in.Options[0].GroupID = "changed"

	again, _ := repo.Get("u")
	if again.Options[0].GroupID != "a" {
		t.Error("Get must not expose stored state")
	}
}
