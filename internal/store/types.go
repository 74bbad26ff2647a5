package store

import "github.com/roach88/rulescript/internal/ir"

// Run status values.
const (
	StatusOK     = "ok"
	StatusFailed = "failed"
)

// Run is one persisted FireRules call.
type Run struct {
	ID            string `json:"id"`
	Seq           int64  `json:"seq"` // assigned by WriteRun
	RulesetHash   string `json:"ruleset_hash"`
	EngineVersion string `json:"engine_version"`
	IRVersion     string `json:"ir_version"`
	Status        string `json:"status"`
	Error         string `json:"error,omitempty"`
	Seeded        int    `json:"seeded"`
	Inserted      int    `json:"inserted"`
	Fired         int    `json:"fired"`
	Skipped       int    `json:"skipped"`

	// Facts and Activations are written with the run. ReadRun and
	// ListRuns leave them empty; use ReadFacts and ReadActivations.
	Facts       []FactRecord       `json:"facts,omitempty"`
	Activations []ActivationRecord `json:"activations,omitempty"`
}

// FactRecord is a fact as it stood when the run ended.
type FactRecord struct {
	ID         int64       `json:"id"`
	Position   int         `json:"position"`
	Type       string      `json:"type"`
	Fields     ir.IRObject `json:"fields"`
	Hash       string      `json:"hash"`
	InMemory   bool        `json:"in_memory"` // false for facts only reachable by reference
	Initial    bool        `json:"initial"`
	CreatorID  int64       `json:"creator_id,omitempty"` // 0 when unset
	OriginRule string      `json:"origin_rule,omitempty"`
}

// ActivationRecord is one entry of the firing log.
type ActivationRecord struct {
	Seq     int64   `json:"seq"`
	Rule    string  `json:"rule"`
	MatchID int64   `json:"match_id"`
	RootID  int64   `json:"root_id"`
	FactIDs []int64 `json:"fact_ids"`
}
