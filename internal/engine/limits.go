package engine

import (
	"fmt"
)

// Default bounds. A rule set whose actions keep re-triggering themselves
// hits one of these and fails the run instead of running forever.
const (
	// DefaultMaxDepth bounds how deeply inserts may nest: an action
	// inserts a fact whose matching pass fires an action that inserts...
	DefaultMaxDepth = 256

	// DefaultMaxSteps bounds the number of activations fired per run.
	DefaultMaxSteps = 100000
)

// QuotaEnforcer counts activations fired in one run and enforces the
// maximum.
//
// The depth bound catches recursive chains (A inserts → A fires →
// A inserts ...). The quota catches wide but shallow explosions, where
// many activations each insert a little.
type QuotaEnforcer struct {
	maxSteps int
	current  int
}

// NewQuotaEnforcer creates a new quota enforcer with the given limit.
func NewQuotaEnforcer(maxSteps int) *QuotaEnforcer {
	return &QuotaEnforcer{maxSteps: maxSteps}
}

// Check counts one activation and fails once the limit is passed.
func (q *QuotaEnforcer) Check(runID string) error {
	q.current++
	if q.current > q.maxSteps {
		return &StepsExceededError{
			RunID: runID,
			Steps: q.current,
			Limit: q.maxSteps,
		}
	}
	return nil
}

// Current returns the current step count.
func (q *QuotaEnforcer) Current() int {
	return q.current
}

// MaxSteps returns the maximum steps limit.
func (q *QuotaEnforcer) MaxSteps() int {
	return q.maxSteps
}

// StepsExceededError is returned when a run fires more activations than
// its quota allows. The run is aborted.
type StepsExceededError struct {
	RunID string
	Steps int
	Limit int
}

// Error implements the error interface.
func (e *StepsExceededError) Error() string {
	return fmt.Sprintf("run %s exceeded max steps quota: %d steps > %d limit",
		e.RunID, e.Steps, e.Limit)
}

// DepthExceededError is returned when nested inserts pass the depth
// bound. It almost always means a rule keeps re-triggering itself.
type DepthExceededError struct {
	RunID  string
	Depth  int
	Limit  int
	Rule   string // rule whose action made the failing insert
	FactID int64  // fact being inserted
}

// Error implements the error interface.
func (e *DepthExceededError) Error() string {
	msg := fmt.Sprintf("run %s exceeded max insert depth: %d > %d", e.RunID, e.Depth, e.Limit)
	if e.Rule != "" {
		msg += fmt.Sprintf(" (rule=%s, fact=%d)", e.Rule, e.FactID)
	}
	return msg
}
