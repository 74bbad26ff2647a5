package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// ErrNotFound is returned when a run or fact does not exist.
var ErrNotFound = errors.New("not found")

const runColumns = `id, seq, ruleset_hash, engine_version, ir_version, status, error, seeded, inserted, fired, skipped`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (Run, error) {
	var r Run
	err := row.Scan(&r.ID, &r.Seq, &r.RulesetHash, &r.EngineVersion, &r.IRVersion,
		&r.Status, &r.Error, &r.Seeded, &r.Inserted, &r.Fired, &r.Skipped)
	return r, err
}

// ReadRun returns a run without its facts and activations.
func (s *Store) ReadRun(ctx context.Context, id string) (Run, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, id)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, fmt.Errorf("run %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return Run{}, fmt.Errorf("read run: %w", err)
	}
	return r, nil
}

// ListRuns returns every run in the order they were written.
//
// Returns an empty slice (not nil) if the store holds no runs.
func (s *Store) ListRuns(ctx context.Context) ([]Run, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+runColumns+` FROM runs ORDER BY seq ASC`)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	runs := []Run{}
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

// LatestRun returns the most recently written run.
func (s *Store) LatestRun(ctx context.Context) (Run, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs ORDER BY seq DESC LIMIT 1`)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, fmt.Errorf("latest run: %w", ErrNotFound)
	}
	if err != nil {
		return Run{}, fmt.Errorf("read latest run: %w", err)
	}
	return r, nil
}

const factColumns = `id, position, type, fields, fact_hash, in_memory, is_initial, creator_id, origin_rule`

func scanFact(row rowScanner) (FactRecord, error) {
	var (
		f          FactRecord
		fieldsJSON string
		creator    sql.NullInt64
		origin     sql.NullString
	)
	if err := row.Scan(&f.ID, &f.Position, &f.Type, &fieldsJSON, &f.Hash,
		&f.InMemory, &f.Initial, &creator, &origin); err != nil {
		return FactRecord{}, err
	}
	fields, err := unmarshalFields(fieldsJSON)
	if err != nil {
		return FactRecord{}, fmt.Errorf("fact %d: %w", f.ID, err)
	}
	f.Fields = fields
	f.CreatorID = creator.Int64
	f.OriginRule = origin.String
	return f, nil
}

// ReadFacts returns the facts of a run ordered by fact id.
//
// Returns an empty slice (not nil) if the run stored no facts.
func (s *Store) ReadFacts(ctx context.Context, runID string) ([]FactRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+factColumns+`
		FROM facts
		WHERE run_id = ?
		ORDER BY id ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("query facts: %w", err)
	}
	defer rows.Close()

	facts := []FactRecord{}
	for rows.Next() {
		f, err := scanFact(rows)
		if err != nil {
			return nil, fmt.Errorf("scan fact: %w", err)
		}
		facts = append(facts, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate facts: %w", err)
	}
	return facts, nil
}

// ReadFact returns one fact of a run.
func (s *Store) ReadFact(ctx context.Context, runID string, id int64) (FactRecord, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+factColumns+` FROM facts WHERE run_id = ? AND id = ?`, runID, id)
	f, err := scanFact(row)
	if errors.Is(err, sql.ErrNoRows) {
		return FactRecord{}, fmt.Errorf("fact %d in run %s: %w", id, runID, ErrNotFound)
	}
	if err != nil {
		return FactRecord{}, fmt.Errorf("read fact: %w", err)
	}
	return f, nil
}

// ReadActivations returns the firing log of a run ordered by seq.
//
// Returns an empty slice (not nil) if nothing fired.
func (s *Store) ReadActivations(ctx context.Context, runID string) ([]ActivationRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, rule_id, match_id, root_id, fact_ids
		FROM activations
		WHERE run_id = ?
		ORDER BY seq ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("query activations: %w", err)
	}
	defer rows.Close()

	acts := []ActivationRecord{}
	for rows.Next() {
		var (
			a       ActivationRecord
			idsJSON string
		)
		if err := rows.Scan(&a.Seq, &a.Rule, &a.MatchID, &a.RootID, &idsJSON); err != nil {
			return nil, fmt.Errorf("scan activation: %w", err)
		}
		if a.FactIDs, err = unmarshalIDs(idsJSON); err != nil {
			return nil, err
		}
		acts = append(acts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate activations: %w", err)
	}
	return acts, nil
}

// maxChainDepth bounds the provenance query. Creator links always point
// to facts inserted earlier, so real chains are far shorter.
const maxChainDepth = 10000

// ProvenanceChain answers "where did this fact come from?". It returns
// the fact followed by its creator, the creator's creator, and so on up
// to a fact with no creator.
func (s *Store) ProvenanceChain(ctx context.Context, runID string, factID int64) ([]FactRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		WITH RECURSIVE chain(id, depth) AS (
			SELECT id, 0 FROM facts WHERE run_id = ?1 AND id = ?2
			UNION ALL
			SELECT f.creator_id, c.depth + 1
			FROM chain c
			JOIN facts f ON f.run_id = ?1 AND f.id = c.id
			WHERE f.creator_id IS NOT NULL AND c.depth < ?3
		)
		SELECT `+prefixed("f.", factColumns)+`
		FROM chain c
		JOIN facts f ON f.run_id = ?1 AND f.id = c.id
		ORDER BY c.depth ASC
	`, runID, factID, maxChainDepth)
	if err != nil {
		return nil, fmt.Errorf("query provenance: %w", err)
	}
	defer rows.Close()

	var chain []FactRecord
	for rows.Next() {
		f, err := scanFact(rows)
		if err != nil {
			return nil, fmt.Errorf("scan provenance: %w", err)
		}
		chain = append(chain, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate provenance: %w", err)
	}
	if len(chain) == 0 {
		return nil, fmt.Errorf("fact %d in run %s: %w", factID, runID, ErrNotFound)
	}
	return chain, nil
}

// Derived returns the facts a root fact created directly, ordered by id.
func (s *Store) Derived(ctx context.Context, runID string, creatorID int64) ([]FactRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+factColumns+`
		FROM facts
		WHERE run_id = ? AND creator_id = ?
		ORDER BY id ASC
	`, runID, creatorID)
	if err != nil {
		return nil, fmt.Errorf("query derived facts: %w", err)
	}
	defer rows.Close()

	facts := []FactRecord{}
	for rows.Next() {
		f, err := scanFact(rows)
		if err != nil {
			return nil, fmt.Errorf("scan fact: %w", err)
		}
		facts = append(facts, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate derived facts: %w", err)
	}
	return facts, nil
}

// prefixed qualifies each column in a comma-separated list.
func prefixed(prefix, columns string) string {
	out := ""
	start := 0
	for i := 0; i <= len(columns); i++ {
		if i == len(columns) || columns[i] == ',' {
			col := columns[start:i]
			for len(col) > 0 && col[0] == ' ' {
				col = col[1:]
			}
			if out != "" {
				out += ", "
			}
			out += prefix + col
			start = i + 1
		}
	}
	return out
}
