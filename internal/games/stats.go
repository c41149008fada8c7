package games

import "sort"

// RankEntry is one line of a ranking.
type RankEntry struct {
	Item  Item
	Count int
}

// Match is a pair of authors who gave each other the positive reaction.
type Match struct {
	A string
	B string
}

// AssignPositional attributes reactions that carry no ItemID to revealed
// items by arrival order, ReactionArity reactions per item: the i-th
// untargeted reaction belongs to the (i / ReactionArity)-th revealed item.
// Reactions that already name their item are returned unchanged. Reactions
// beyond the last item stay untargeted.
func AssignPositional(revealed []Item, reactions []Reaction) []Reaction {
	out := make([]Reaction, len(reactions))
	copy(out, reactions)

	n := 0
	for i := range out {
		if out[i].ItemID != "" {
			continue
		}
		if idx := n / ReactionArity; idx < len(revealed) {
			out[i].ItemID = revealed[idx].ID
		}
		n++
	}
	return out
}

// effectiveReactions resolves targets and keeps only the latest reaction of
// each reactor on each item. Reactions without a reactor are all kept.
func effectiveReactions(g *Game) []Reaction {
	resolved := AssignPositional(g.Revealed(), g.Reactions)

	type key struct{ item, reactor string }
	latest := make(map[key]int)
	var out []Reaction
	for _, r := range resolved {
		if r.ItemID == "" {
			continue
		}
		if r.ReactorID == "" {
			out = append(out, r)
			continue
		}
		k := key{r.ItemID, r.ReactorID}
		if idx, ok := latest[k]; ok {
			out[idx] = r
			continue
		}
		latest[k] = len(out)
		out = append(out, r)
	}
	return out
}

// Rank orders the revealed items of g by the number of kind reactions,
// descending. Ties keep reveal order.
func Rank(g *Game, kind ReactionKind) []RankEntry {
	counts := make(map[string]int)
	for _, r := range effectiveReactions(g) {
		if r.Kind == kind {
			counts[r.ItemID]++
		}
	}

	revealed := g.Revealed()
	out := make([]RankEntry, 0, len(revealed))
	for _, it := range revealed {
		out = append(out, RankEntry{Item: it, Count: counts[it.ID]})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Count > out[j].Count })
	return out
}

// MutualMatches finds pairs of authors where each gave the positive reaction
// to the other's item. Pairs are unordered and listed once, in the order the
// second reaction of the pair arrived.
func MutualMatches(g *Game) []Match {
	authors := make(map[string]string)
	for _, it := range g.Revealed() {
		authors[it.ID] = it.SenderID
	}

	positive := g.Variant.PositiveKind()
	type edge struct{ from, to string }
	likes := make(map[edge]bool)
	seen := make(map[edge]bool)
	var out []Match

	for _, r := range effectiveReactions(g) {
		if r.Kind != positive || r.ReactorID == "" {
			continue
		}
		author := authors[r.ItemID]
		if author == "" || author == r.ReactorID {
			continue
		}
		likes[edge{r.ReactorID, author}] = true
		if !likes[edge{author, r.ReactorID}] {
			continue
		}
		a, b := r.ReactorID, author
		if b < a {
			a, b = b, a
		}
		if seen[edge{a, b}] {
			continue
		}
		seen[edge{a, b}] = true
		out = append(out, Match{A: a, B: b})
	}
	return out
}
