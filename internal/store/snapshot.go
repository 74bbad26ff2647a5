package store

import (
	"fmt"

	"github.com/roach88/rulescript/internal/engine"
	"github.com/roach88/rulescript/internal/fact"
	"github.com/roach88/rulescript/internal/ir"
)

// Snapshot captures the outcome of a FireRules call as a Run. runErr is
// the error FireRules returned, if any.
//
// Working memory is captured in insertion order; facts reachable from
// it by reference but never inserted follow the fact that references
// them, in walk order.
func Snapshot(db *engine.Database, summary *engine.RunSummary, runErr error, rulesetHash string) (Run, error) {
	run := Run{
		ID:            db.RunID(),
		RulesetHash:   rulesetHash,
		EngineVersion: ir.EngineVersion,
		IRVersion:     ir.IRVersion,
		Status:        StatusOK,
	}
	if summary != nil {
		run.ID = summary.RunID
		run.Seeded = summary.Seeded
		run.Inserted = summary.Inserted
		run.Fired = summary.Fired
		run.Skipped = summary.Skipped
	}
	if runErr != nil {
		run.Status = StatusFailed
		run.Error = runErr.Error()
	}
	if run.ID == "" {
		return Run{}, fmt.Errorf("snapshot: database has no run id")
	}

	store := db.Store()
	seen := make(map[int64]bool)
	for _, f := range store.All() {
		var walkErr error
		store.Walk(f, func(g *fact.Fact) {
			if seen[g.ID] || walkErr != nil {
				return
			}
			if g != f && store.Contains(g.ID) {
				return // recorded at its own position
			}
			seen[g.ID] = true
			rec, err := factRecord(g, len(run.Facts), store.Contains(g.ID))
			if err != nil {
				walkErr = err
				return
			}
			run.Facts = append(run.Facts, rec)
		})
		if walkErr != nil {
			return Run{}, walkErr
		}
	}

	for _, fr := range db.Firings() {
		run.Activations = append(run.Activations, ActivationRecord{
			Seq:     fr.Seq,
			Rule:    fr.Rule,
			MatchID: fr.MatchID,
			RootID:  fr.RootID,
			FactIDs: fr.Facts,
		})
	}
	return run, nil
}

func factRecord(f *fact.Fact, position int, inMemory bool) (FactRecord, error) {
	fields := f.Fields()
	hash, err := ir.FactHash(f.TypeName(), fields)
	if err != nil {
		return FactRecord{}, fmt.Errorf("snapshot %s: %w", f, err)
	}
	return FactRecord{
		ID:         f.ID,
		Position:   position,
		Type:       f.TypeName(),
		Fields:     fields,
		Hash:       hash,
		InMemory:   inMemory,
		Initial:    f.IsInitial(),
		CreatorID:  f.CreatorID(),
		OriginRule: f.OriginRule(),
	}, nil
}
