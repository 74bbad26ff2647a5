package engine

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"github.com/roach88/rulescript/internal/env"
	"github.com/roach88/rulescript/internal/fact"
	"github.com/roach88/rulescript/internal/ir"
)

// State is the run state of a Database. Matching and Acting are the two
// phases of a running database.
type State int

const (
	// StateIdle: no run in progress. Rules and types may be changed.
	StateIdle State = iota

	// StateMatching: tokens are being tested against conditions. Working
	// memory is read-only.
	StateMatching

	// StateActing: a rule action is running. Facts may be inserted and
	// updated.
	StateActing
)

// String implements fmt.Stringer.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateMatching:
		return "matching"
	case StateActing:
		return "acting"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Running reports whether a run is in progress.
func (s State) Running() bool {
	return s != StateIdle
}

// Firing records one fired activation.
type Firing struct {
	Seq     int64   `json:"seq"`
	Rule    string  `json:"rule"`
	MatchID int64   `json:"match_id"`
	RootID  int64   `json:"root_id"`
	Facts   []int64 `json:"facts"`
}

// RunSummary describes a finished FireRules call.
type RunSummary struct {
	RunID    string `json:"run_id"`
	Seeded   int    `json:"seeded"`
	Inserted int    `json:"inserted"`
	Fired    int    `json:"fired"`
	Skipped  int    `json:"skipped"`
}

// Database is the working memory of a rule engine: the fact store, the
// match network and the run state.
//
// A Database is single-threaded. FireRules and everything it calls,
// including rule actions, run on the caller's goroutine. Nothing else may
// use the Database during a run.
type Database struct {
	types     map[string]*ir.RecordType
	typeOrder []string
	rules     []*Rule
	net       *network
	linked    bool

	facts      *fact.Store
	recordIDs  *Clock
	matchIDs   *Clock
	state      State
	staged     []*fact.Fact
	collecting *agenda
	acting     []*Activation
	depth      int
	quota      *QuotaEnforcer
	firings    []Firing
	summary    *RunSummary
	runCtx     context.Context

	runIDs   RunIDGenerator
	runID    string
	maxDepth int
	maxSteps int
	logger   *slog.Logger
}

// Option configures a Database.
type Option func(*Database)

// WithMaxDepth bounds nested inserts.
//
// Default: 256 (DefaultMaxDepth).
func WithMaxDepth(n int) Option {
	return func(db *Database) { db.maxDepth = n }
}

// WithMaxSteps bounds activations fired per run.
//
// Default: 100000 (DefaultMaxSteps).
// Use WithMaxSteps(10) for testing quota enforcement.
func WithMaxSteps(n int) Option {
	return func(db *Database) { db.maxSteps = n }
}

// WithLogger sets the structured logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(db *Database) { db.logger = l }
}

// WithRunIDGenerator sets how runs are named. Default: UUIDv7Generator.
func WithRunIDGenerator(g RunIDGenerator) Option {
	return func(db *Database) { db.runIDs = g }
}

// WithFirstRecordID makes record ids continue after start.
func WithFirstRecordID(start int64) Option {
	return func(db *Database) { db.recordIDs = NewClockAt(start) }
}

// New creates an idle, empty Database.
func New(opts ...Option) *Database {
	db := &Database{
		types:     make(map[string]*ir.RecordType),
		net:       newNetwork(),
		facts:     fact.NewStore(),
		recordIDs: NewClock(),
		matchIDs:  NewClock(),
		runIDs:    UUIDv7Generator{},
		maxDepth:  DefaultMaxDepth,
		maxSteps:  DefaultMaxSteps,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(db)
	}
	return db
}

// State returns the current run state.
func (db *Database) State() State { return db.state }

// Running reports whether a run is in progress.
func (db *Database) Running() bool { return db.state.Running() }

// Linked reports whether LinkRules has completed.
func (db *Database) Linked() bool { return db.linked }

// RunID names the current or most recent run.
func (db *Database) RunID() string { return db.runID }

// GenerateRecordID returns the next fact id.
func (db *Database) GenerateRecordID() int64 { return db.recordIDs.Next() }

// GenerateMatchID returns the next token id.
func (db *Database) GenerateMatchID() int64 { return db.matchIDs.Next() }

// DefineType registers a record type. Only allowed while idle and before
// LinkRules.
func (db *Database) DefineType(rt ir.RecordType) error {
	if err := db.checkConfigurable(); err != nil {
		return err
	}
	if rt.Name == "" {
		return errMissing("type name")
	}
	if err := rt.Validate(); err != nil {
		return err
	}
	if _, dup := db.types[rt.Name]; dup {
		return fmt.Errorf("record type %q already defined", rt.Name)
	}
	t := rt
	t.Fields = slices.Clone(rt.Fields)
	db.types[t.Name] = &t
	db.typeOrder = append(db.typeOrder, t.Name)
	return nil
}

// Type returns a registered record type.
func (db *Database) Type(name string) (*ir.RecordType, bool) {
	rt, ok := db.types[name]
	return rt, ok
}

// Types returns every registered record type in definition order.
func (db *Database) Types() []*ir.RecordType {
	out := make([]*ir.RecordType, len(db.typeOrder))
	for i, name := range db.typeOrder {
		out[i] = db.types[name]
	}
	return out
}

// IsA reports whether type name is want or extends it.
func (db *Database) IsA(name, want string) bool {
	return db.isA(name, want)
}

func (db *Database) isA(name, want string) bool {
	seen := map[string]bool{}
	for name != "" && !seen[name] {
		if name == want {
			return true
		}
		seen[name] = true
		rt, ok := db.types[name]
		if !ok {
			return false
		}
		name = rt.Extends
	}
	return false
}

func (db *Database) checkConfigurable() error {
	if db.state.Running() {
		return errAlreadyRunning()
	}
	if db.linked {
		return &RuntimeError{Code: ErrCodeAlreadyLinked, Message: "rules are already linked"}
	}
	return nil
}

// AddRule compiles a rule into the network. Only allowed while idle and
// before LinkRules.
func (db *Database) AddRule(r Rule) error {
	if err := db.checkConfigurable(); err != nil {
		return err
	}
	if r.ID == "" {
		return errMissing("rule id")
	}
	if r.Action == nil {
		return errMissing("rule action")
	}
	if len(r.Patterns) == 0 {
		return errInvalidRule(r.ID, "rule has no patterns")
	}
	if _, dup := db.net.terminals[r.ID]; dup {
		return errInvalidRule(r.ID, "duplicate rule id")
	}
	for i, p := range r.Patterns {
		if _, ok := db.types[p.Type]; !ok {
			return fmt.Errorf("rule %s pattern %d: %w", r.ID, i, errUnknownType(p.Type))
		}
		if i == 0 && p.Join != nil {
			return errInvalidRule(r.ID, "first pattern cannot have a join condition")
		}
	}

	rule := r
	rule.Patterns = slices.Clone(r.Patterns)
	db.rules = append(db.rules, &rule)
	db.net.build(db, &rule)

	db.logger.Debug("rule added",
		"rule", rule.ID,
		"patterns", len(rule.Patterns),
	)
	return nil
}

// Rules returns rule ids in the order they were added.
func (db *Database) Rules() []string {
	ids := make([]string, len(db.rules))
	for i, r := range db.rules {
		ids[i] = r.ID
	}
	return ids
}

// LinkRules freezes the network. Facts can only be dispatched after it.
func (db *Database) LinkRules() error {
	if err := db.checkConfigurable(); err != nil {
		return err
	}
	db.linked = true
	db.logger.Debug("rules linked",
		"rules", len(db.rules),
		"alpha_nodes", len(db.net.root.children),
		"join_nodes", len(db.net.joins),
	)
	return nil
}

// NewFact creates a fact of the named type with a fresh id. The fact is
// not in working memory until it is seeded or inserted.
func (db *Database) NewFact(typeName string) (*fact.Fact, error) {
	rt, ok := db.types[typeName]
	if !ok {
		return nil, errUnknownType(typeName)
	}
	f := fact.New(db.GenerateRecordID(), rt)
	db.facts.Register(f)
	return f, nil
}

// Seed stages an initial fact for the next FireRules call.
func (db *Database) Seed(f *fact.Fact) error {
	if f == nil {
		return errMissing("fact")
	}
	if db.state.Running() {
		return errAlreadyRunning()
	}
	db.staged = append(db.staged, f)
	return nil
}

// FireRules runs the engine to a fixpoint.
//
// Every staged fact followed by initial is marked initial before
// anything is dispatched, then each is inserted in order. Each insert is
// matched and its activations fired, recursively, before the next one
// starts. The database returns to idle when FireRules returns, whether
// or not the run failed.
//
// Errors returned by rule actions come back unchanged.
func (db *Database) FireRules(ctx context.Context, initial ...*fact.Fact) (*RunSummary, error) {
	if db.state.Running() {
		return nil, errAlreadyRunning()
	}
	if !db.linked {
		return nil, &RuntimeError{Code: ErrCodeNotLinked, Message: "rules must be linked before firing"}
	}

	seeds := append(slices.Clone(db.staged), initial...)
	for i, f := range seeds {
		if f == nil {
			return nil, errMissing(fmt.Sprintf("initial fact %d", i))
		}
		if _, ok := db.types[f.Type.Name]; !ok {
			return nil, errUnknownType(f.Type.Name)
		}
	}
	db.staged = nil

	db.runID = db.runIDs.Generate()
	db.runCtx = ctx
	db.quota = NewQuotaEnforcer(db.maxSteps)
	db.summary = &RunSummary{RunID: db.runID, Seeded: len(seeds)}
	db.state = StateMatching
	defer func() {
		db.state = StateIdle
		db.acting = nil
		db.collecting = nil
		db.depth = 0
		db.runCtx = nil
	}()

	db.logger.Info("run starting",
		"run_id", db.runID,
		"initial_facts", len(seeds),
		"rules", len(db.rules),
	)

	for _, f := range seeds {
		f.MarkInitial()
	}
	for _, f := range seeds {
		if err := db.insert(f); err != nil {
			db.logger.Error("run failed",
				"run_id", db.runID,
				"error", err,
			)
			return db.summary, err
		}
	}

	db.logger.Info("run finished",
		"run_id", db.runID,
		"facts", db.facts.Len(),
		"fired", db.summary.Fired,
		"skipped", db.summary.Skipped,
	)
	return db.summary, nil
}

// InsertFact adds f to working memory and dispatches it. Only allowed
// while a rule action runs; the fact is attributed to that activation
// before it is dispatched.
func (db *Database) InsertFact(f *fact.Fact) error {
	if f == nil {
		return errMissing("fact")
	}
	switch db.state {
	case StateIdle:
		return errNotRunning()
	case StateMatching:
		return errMatching()
	}
	if _, ok := db.types[f.Type.Name]; !ok {
		return errUnknownType(f.Type.Name)
	}
	if f.ID == 0 {
		f.ID = db.GenerateRecordID()
	}
	if act := db.currentActivation(); act != nil {
		assigned := fact.Attribute(db.facts, f, act.Match.Root, act.Rule.ID)
		if len(assigned) > 0 {
			db.logger.Debug("provenance assigned",
				"rule", act.Rule.ID,
				"creator_id", act.Match.Root.ID,
				"fact_ids", assigned,
			)
		}
	}
	return db.insert(f)
}

// UpdateField changes one field of f. Only allowed while a rule action
// runs. The change is not matched until f is inserted again.
func (db *Database) UpdateField(f *fact.Fact, name string, v ir.IRValue) error {
	if f == nil {
		return errMissing("fact")
	}
	if name == "" {
		return errMissing("field name")
	}
	switch db.state {
	case StateIdle:
		return errNotRunning()
	case StateMatching:
		return errMatching()
	}
	return f.Set(name, v)
}

// insert stores f and runs one matching pass for it, then fires the
// activations the pass produced. The state in effect on entry is
// restored on exit.
func (db *Database) insert(f *fact.Fact) error {
	if f.ID == 0 {
		f.ID = db.GenerateRecordID()
	}

	db.depth++
	defer func() { db.depth-- }()
	if db.depth > db.maxDepth {
		de := &DepthExceededError{RunID: db.runID, Depth: db.depth, Limit: db.maxDepth, FactID: f.ID}
		if act := db.currentActivation(); act != nil {
			de.Rule = act.Rule.ID
		}
		db.logger.Error("max insert depth exceeded",
			"run_id", db.runID,
			"fact_id", f.ID,
			"rule", de.Rule,
			"limit", db.maxDepth,
		)
		return de
	}

	if db.facts.Append(f) {
		db.summary.Inserted++
	}

	prev := db.state
	defer func() { db.state = prev }()

	pass := newAgenda()
	outer := db.collecting
	db.collecting = pass
	db.state = StateMatching
	root := &Match{
		ID:    db.GenerateMatchID(),
		Value: f,
		Root:  f,
		Env:   env.New(),
	}
	err := db.net.root.Receive(root)
	db.collecting = outer
	if err != nil {
		return err
	}

	db.logger.Debug("fact dispatched",
		"fact_id", f.ID,
		"type", f.Type.Name,
		"activations", pass.Len(),
		"depth", db.depth,
	)
	return db.fire(pass)
}

// schedule queues an activation from a terminal node.
func (db *Database) schedule(act *Activation) {
	db.collecting.push(act)
}

// fire runs every activation of one pass in order.
func (db *Database) fire(pass *agenda) error {
	for {
		act, ok := pass.pop()
		if !ok {
			return nil
		}
		if db.runCtx != nil {
			if err := db.runCtx.Err(); err != nil {
				return fmt.Errorf("run %s cancelled: %w", db.runID, err)
			}
		}
		if !db.net.terminals[act.Rule.ID].current(act.Match) {
			db.summary.Skipped++
			db.logger.Debug("activation superseded",
				"rule", act.Rule.ID,
				"match_id", act.Match.ID,
			)
			continue
		}
		if err := db.quota.Check(db.runID); err != nil {
			db.logger.Error("max steps quota exceeded",
				"run_id", db.runID,
				"rule", act.Rule.ID,
				"limit", db.maxSteps,
			)
			return err
		}

		db.summary.Fired++
		db.firings = append(db.firings, Firing{
			Seq:     int64(len(db.firings) + 1),
			Rule:    act.Rule.ID,
			MatchID: act.Match.ID,
			RootID:  act.Match.Root.ID,
			Facts:   act.Match.Roots(),
		})
		db.logger.Debug("firing rule",
			"rule", act.Rule.ID,
			"match_id", act.Match.ID,
			"root_id", act.Match.Root.ID,
		)

		db.state = StateActing
		db.acting = append(db.acting, act)
		err := act.Rule.Action(act)
		db.acting = db.acting[:len(db.acting)-1]
		if err != nil {
			db.logger.Debug("rule action failed",
				"rule", act.Rule.ID,
				"match_id", act.Match.ID,
				"error", err,
			)
			return err
		}
	}
}

func (db *Database) currentActivation() *Activation {
	if len(db.acting) == 0 {
		return nil
	}
	return db.acting[len(db.acting)-1]
}

// Clear empties working memory and every node memory. Rules, types and
// id counters are kept; ids are never reused by a database.
func (db *Database) Clear() error {
	if db.state.Running() {
		return errAlreadyRunning()
	}
	db.facts.Reset()
	db.net.clear()
	db.staged = nil
	db.firings = nil
	return nil
}

// Facts returns working memory in insertion order.
func (db *Database) Facts() []*fact.Fact {
	return db.facts.All()
}

// Fact resolves a fact id, including facts created but not yet inserted.
func (db *Database) Fact(id int64) (*fact.Fact, bool) {
	return db.facts.Lookup(id)
}

// Store exposes the fact store for graph walks.
func (db *Database) Store() *fact.Store {
	return db.facts
}

// OutputFacts returns facts of output types in insertion order, for an
// output writer to persist after a run.
func (db *Database) OutputFacts() []*fact.Fact {
	var out []*fact.Fact
	for _, f := range db.facts.All() {
		if f.Type.Output {
			out = append(out, f)
		}
	}
	return out
}

// Firings returns the activations fired since the last Clear.
func (db *Database) Firings() []Firing {
	return slices.Clone(db.firings)
}
