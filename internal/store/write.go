package store

import (
	"context"
	"database/sql"
	"fmt"
)

// WriteRun inserts a run with its facts and activations in a single
// transaction and returns the sequence number assigned to it. Writing a
// run id that already exists is an error: runs are immutable.
func (s *Store) WriteRun(ctx context.Context, run Run) (int64, error) {
	if run.ID == "" {
		return 0, fmt.Errorf("write run: missing run id")
	}
	if run.Status != StatusOK && run.Status != StatusFailed {
		return 0, fmt.Errorf("write run %s: invalid status %q", run.ID, run.Status)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("write run: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	var seq int64
	if err := tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(seq), 0) + 1 FROM runs`).Scan(&seq); err != nil {
		return 0, fmt.Errorf("write run: next seq: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs
		(id, seq, ruleset_hash, engine_version, ir_version, status, error, seeded, inserted, fired, skipped)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		run.ID,
		seq,
		run.RulesetHash,
		run.EngineVersion,
		run.IRVersion,
		run.Status,
		run.Error,
		run.Seeded,
		run.Inserted,
		run.Fired,
		run.Skipped,
	)
	if err != nil {
		return 0, fmt.Errorf("write run %s: %w", run.ID, err)
	}

	for _, f := range run.Facts {
		if err := writeFact(ctx, tx, run.ID, f); err != nil {
			return 0, err
		}
	}
	for _, a := range run.Activations {
		if err := writeActivation(ctx, tx, run.ID, a); err != nil {
			return 0, err
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("write run: commit: %w", err)
	}
	return seq, nil
}

func writeFact(ctx context.Context, tx *sql.Tx, runID string, f FactRecord) error {
	fieldsJSON, err := marshalFields(f.Fields)
	if err != nil {
		return fmt.Errorf("write fact %d: %w", f.ID, err)
	}

	// creator_id and origin_rule are NULL for facts without a creator.
	var creator sql.NullInt64
	var origin sql.NullString
	if f.CreatorID != 0 {
		creator = sql.NullInt64{Int64: f.CreatorID, Valid: true}
		origin = sql.NullString{String: f.OriginRule, Valid: true}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO facts
		(run_id, id, position, type, fields, fact_hash, in_memory, is_initial, creator_id, origin_rule)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		runID,
		f.ID,
		f.Position,
		f.Type,
		fieldsJSON,
		f.Hash,
		f.InMemory,
		f.Initial,
		creator,
		origin,
	)
	if err != nil {
		return fmt.Errorf("write fact %d: %w", f.ID, err)
	}
	return nil
}

func writeActivation(ctx context.Context, tx *sql.Tx, runID string, a ActivationRecord) error {
	idsJSON, err := marshalIDs(a.FactIDs)
	if err != nil {
		return fmt.Errorf("write activation %d: %w", a.Seq, err)
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO activations
		(run_id, seq, rule_id, match_id, root_id, fact_ids)
		VALUES (?, ?, ?, ?, ?, ?)
	`,
		runID,
		a.Seq,
		a.Rule,
		a.MatchID,
		a.RootID,
		idsJSON,
	)
	if err != nil {
		return fmt.Errorf("write activation %d: %w", a.Seq, err)
	}
	return nil
}
