package fact

// Attribute records provenance for f, which rule is about to insert while
// its activation is matched on root.
//
// Every fact reachable from f (f included) that is not initial and has no
// creator yet gets creatorId = root.ID and originRule = rule. Facts that
// already have a creator keep it. Attribute returns the ids it assigned,
// in visit order.
func Attribute(s *Store, f *Fact, root *Fact, rule string) []int64 {
	if root == nil {
		return nil
	}
	var assigned []int64
	s.Walk(f, func(g *Fact) {
		if g.isInitial || g.creatorID != 0 {
			return
		}
		g.creatorID = root.ID
		g.originRule = rule
		assigned = append(assigned, g.ID)
	})
	return assigned
}

// Chain follows creator links from f back toward the seed data and
// returns the ids along the way, f first. It stops at an initial fact, a
// fact without a creator, or an id it has already seen.
func Chain(s *Store, f *Fact) []int64 {
	seen := map[int64]bool{}
	var out []int64
	for cur := f; cur != nil && !seen[cur.ID]; {
		seen[cur.ID] = true
		out = append(out, cur.ID)
		if cur.isInitial || cur.creatorID == 0 {
			break
		}
		cur, _ = s.Lookup(cur.creatorID)
	}
	return out
}
