package games

import (
	"context"
	"fmt"
	"testing"
)

func revealedGame(senders ...string) *Game {
	g := &Game{ID: "g", GroupID: testGroup, Variant: VariantPhoto, Active: true}
	for i, s := range senders {
		g.Items = append(g.Items, Item{
			ID:          fmt.Sprintf("item-%d", i+1),
			SenderID:    s,
			Revealed:    true,
			RevealOrder: i + 1,
			MessageRef:  fmt.Sprintf("msg-%d", i+1),
		})
	}
	return g
}

func TestRank_PositionalLegacyReactions(t *testing.T) {
	g := revealedGame("s1", "s2", "s3")
	kinds := []ReactionKind{
		ReactionPego, ReactionPenso, ReactionPasso,
		ReactionPego, ReactionPego, ReactionPasso,
		ReactionPasso, ReactionPenso, ReactionPego,
	}
	for i, k := range kinds {
		g.Reactions = append(g.Reactions, Reaction{ReactorID: fmt.Sprintf("r%d", i), Kind: k})
	}

	ranking := Rank(g, ReactionPego)

	want := []struct {
		sender string
		count  int
	}{{"s2", 2}, {"s1", 1}, {"s3", 1}}
	if len(ranking) != len(want) {
		t.Fatalf("ranking len = %d, want %d", len(ranking), len(want))
	}
	for i, w := range want {
		if ranking[i].Item.SenderID != w.sender || ranking[i].Count != w.count {
			t.Errorf("ranking[%d] = %s/%d, want %s/%d", i, ranking[i].Item.SenderID, ranking[i].Count, w.sender, w.count)
		}
	}
}

func TestRank_TargetedReactionsIgnoreArrivalOrder(t *testing.T) {
	g := revealedGame("s1", "s2", "s3")
	// Late and out-of-order reactions still land on the right item.
	g.Reactions = []Reaction{
		{ItemID: "item-3", ReactorID: "a", Kind: ReactionPego},
		{ItemID: "item-3", ReactorID: "b", Kind: ReactionPego},
		{ItemID: "item-1", ReactorID: "a", Kind: ReactionPasso},
		{ItemID: "item-3", ReactorID: "c", Kind: ReactionPego},
	}
	ranking := Rank(g, ReactionPego)
	if ranking[0].Item.ID != "item-3" || ranking[0].Count != 3 {
		t.Errorf("top = %s/%d, want item-3/3", ranking[0].Item.ID, ranking[0].Count)
	}
	if ranking[1].Item.ID != "item-1" || ranking[2].Item.ID != "item-2" {
		t.Errorf("ties must keep reveal order: %s, %s", ranking[1].Item.ID, ranking[2].Item.ID)
	}
}

func TestRank_ChangedReactionCountsOnce(t *testing.T) {
	g := revealedGame("s1")
	g.Reactions = []Reaction{
		{ItemID: "item-1", ReactorID: "a", Kind: ReactionPego},
		{ItemID: "item-1", ReactorID: "a", Kind: ReactionPasso},
	}
	if got := Rank(g, ReactionPego)[0].Count; got != 0 {
		t.Errorf("pego count = %d, want 0 after the reactor switched to passo", got)
	}
	if got := Rank(g, ReactionPasso)[0].Count; got != 1 {
		t.Errorf("passo count = %d, want 1", got)
	}
}

func TestAssignPositional_LeavesTargetedAlone(t *testing.T) {
	items := revealedGame("a", "b").Revealed()
	in := []Reaction{
		{Kind: ReactionPego},
		{ItemID: "item-2", Kind: ReactionPasso},
		{Kind: ReactionPenso},
		{Kind: ReactionPasso},
		{Kind: ReactionPego},
	}
	out := AssignPositional(items, in)
	want := []string{"item-1", "item-2", "item-1", "item-1", "item-2"}
	for i, w := range want {
		if out[i].ItemID != w {
			t.Errorf("reaction %d -> %q, want %q", i, out[i].ItemID, w)
		}
	}
	if in[0].ItemID != "" {
		t.Error("input slice must not be modified")
	}
}

func TestMutualMatches(t *testing.T) {
	g := revealedGame("ana", "bia", "caio")
	g.Reactions = []Reaction{
		{ItemID: "item-2", ReactorID: "ana", Kind: ReactionPego},  // ana -> bia
		{ItemID: "item-3", ReactorID: "ana", Kind: ReactionPego},  // ana -> caio
		{ItemID: "item-1", ReactorID: "bia", Kind: ReactionPego},  // bia -> ana: match
		{ItemID: "item-1", ReactorID: "caio", Kind: ReactionPenso}, // caio only thinks about it
		{ItemID: "item-1", ReactorID: "bia", Kind: ReactionPego},  // repeated
		{ItemID: "item-1", ReactorID: "ana", Kind: ReactionPego},  // self reaction
	}

	matches := MutualMatches(g)
	if len(matches) != 1 {
		t.Fatalf("matches = %v, want exactly one", matches)
	}
	if matches[0] != (Match{A: "ana", B: "bia"}) {
		t.Errorf("match = %+v, want ana/bia", matches[0])
	}
}

func TestService_MutualMatchesRequiresReveal(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	ctx := context.Background()
	if _, err := svc.MutualMatches(ctx, testGroup); err != ErrNoGame {
		t.Errorf("no game: err = %v, want ErrNoGame", err)
	}
	_, _ = svc.Activate(ctx, testGroup, VariantPhoto, "admin")
	if _, err := svc.MutualMatches(ctx, testGroup); err != ErrNothingRevealed {
		t.Errorf("nothing revealed: err = %v, want ErrNothingRevealed", err)
	}
}
