package engine

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/rulescript/internal/env"
	"github.com/roach88/rulescript/internal/fact"
	"github.com/roach88/rulescript/internal/ir"
)

func TestScenarioDouble(t *testing.T) {
	db := newTestDB(t)
	require.NoError(t, db.AddRule(doubleRule()))
	require.NoError(t, db.LinkRules())

	person := mustFact(t, db, "Person", ir.IRObject{"age": ir.IRInt(10)})
	summary, err := db.FireRules(context.Background(), person)
	require.NoError(t, err)

	greetings := ofType(db, "Greeting")
	require.Len(t, greetings, 1)
	g := greetings[0]
	assert.Equal(t, "Age is 20", strField(g, "text"))
	assert.Equal(t, person.ID, g.CreatorID())
	assert.Equal(t, "Double", g.OriginRule())
	assert.False(t, g.IsInitial())

	assert.True(t, person.IsInitial())
	assert.Zero(t, person.CreatorID())
	assert.Empty(t, person.OriginRule())

	assert.Equal(t, "run-1", summary.RunID)
	assert.Equal(t, 1, summary.Seeded)
	assert.Equal(t, 2, summary.Inserted)
	assert.Equal(t, 1, summary.Fired)
	assert.Equal(t, StateIdle, db.State())
}

func invoiceSet(db *Database) []string {
	var out []string
	for _, f := range ofType(db, "Invoice") {
		out = append(out, fmt.Sprintf("%s/%d", strField(f, "customer"), intField(f, "orderId")))
	}
	sort.Strings(out)
	return out
}

func TestScenarioJoinOrderIndependence(t *testing.T) {
	run := func(customerFirst bool) []string {
		db := newTestDB(t)
		require.NoError(t, db.AddRule(invoiceRule(db)))
		require.NoError(t, db.LinkRules())

		order := mustFact(t, db, "Order", ir.IRObject{"id": ir.IRInt(1), "customerId": ir.IRInt(7)})
		other := mustFact(t, db, "Order", ir.IRObject{"id": ir.IRInt(2), "customerId": ir.IRInt(8)})
		customer := mustFact(t, db, "Customer", ir.IRObject{"id": ir.IRInt(7), "name": ir.IRString("ada")})

		seeds := []*fact.Fact{order, other, customer}
		if customerFirst {
			seeds = []*fact.Fact{customer, order, other}
		}
		_, err := db.FireRules(context.Background(), seeds...)
		require.NoError(t, err)
		return invoiceSet(db)
	}

	a := run(true)
	b := run(false)
	assert.Equal(t, []string{"ada/1"}, a)
	assert.Equal(t, a, b)
}

func TestJoinEmitsInMemoryOrder(t *testing.T) {
	db := newTestDB(t)
	require.NoError(t, db.AddRule(invoiceRule(db)))
	require.NoError(t, db.LinkRules())

	o1 := mustFact(t, db, "Order", ir.IRObject{"id": ir.IRInt(1), "customerId": ir.IRInt(7)})
	o2 := mustFact(t, db, "Order", ir.IRObject{"id": ir.IRInt(2), "customerId": ir.IRInt(7)})
	c := mustFact(t, db, "Customer", ir.IRObject{"id": ir.IRInt(7), "name": ir.IRString("ada")})

	_, err := db.FireRules(context.Background(), o1, o2, c)
	require.NoError(t, err)

	invoices := ofType(db, "Invoice")
	require.Len(t, invoices, 2)
	assert.Equal(t, int64(1), intField(invoices[0], "orderId"))
	assert.Equal(t, int64(2), intField(invoices[1], "orderId"))

	// The customer was dispatched last, so it is the root of both matches.
	for _, f := range db.Firings() {
		assert.Equal(t, c.ID, f.RootID)
	}
	assert.Equal(t, c.ID, invoices[0].CreatorID())
}

func TestInsertWhileIdle(t *testing.T) {
	db := newTestDB(t)
	require.NoError(t, db.LinkRules())

	f := mustFact(t, db, "Person", nil)
	err := db.InsertFact(f)
	require.Error(t, err)
	assert.ErrorContains(t, err, "engine isn't running")
	assert.True(t, IsUsageError(err))

	assert.ErrorContains(t, db.UpdateField(f, "age", ir.IRInt(1)), "engine isn't running")
}

func TestFireRulesWhileRunning(t *testing.T) {
	db := newTestDB(t)
	var inner error
	require.NoError(t, db.AddRule(Rule{
		ID:       "Reenter",
		Patterns: []Pattern{{Type: "Person", Bind: "p"}},
		Action: func(a *Activation) error {
			_, inner = a.Database().FireRules(context.Background())
			return nil
		},
	}))
	require.NoError(t, db.LinkRules())

	_, err := db.FireRules(context.Background(), mustFact(t, db, "Person", nil))
	require.NoError(t, err)
	require.Error(t, inner)
	assert.ErrorContains(t, inner, "engine is already running")
	assert.True(t, IsUsageError(inner))
}

func TestInsertDuringMatching(t *testing.T) {
	db := newTestDB(t)
	require.NoError(t, db.AddRule(Rule{
		ID: "Sneaky",
		Patterns: []Pattern{{Type: "Person", Bind: "p", Test: func(f *fact.Fact, _ *env.Env) (bool, error) {
			n, err := db.NewFact("Note")
			if err != nil {
				return false, err
			}
			return false, db.InsertFact(n)
		}}},
		Action: func(a *Activation) error { return nil },
	}))
	require.NoError(t, db.LinkRules())

	_, err := db.FireRules(context.Background(), mustFact(t, db, "Person", nil))
	require.Error(t, err)
	assert.True(t, hasCode(err, ErrCodeMatching))
	assert.Equal(t, StateIdle, db.State())
}

func TestActionErrorPropagatesUnchanged(t *testing.T) {
	boom := errors.New("boom")
	db := newTestDB(t)
	require.NoError(t, db.AddRule(Rule{
		ID:       "Fail",
		Patterns: []Pattern{{Type: "Greeting", Bind: "g"}},
		Action:   func(a *Activation) error { return boom },
	}))
	require.NoError(t, db.AddRule(doubleRule()))
	require.NoError(t, db.LinkRules())

	// The error is raised two inserts deep and still comes back as is.
	_, err := db.FireRules(context.Background(), mustFact(t, db, "Person", nil))
	assert.Equal(t, boom, err)
	assert.Equal(t, StateIdle, db.State(), "state resets after a failed run")

	// The database is usable again.
	require.NoError(t, db.Clear())
	_, err = db.FireRules(context.Background())
	assert.NoError(t, err)
}

func TestProvenanceChain(t *testing.T) {
	db := newTestDB(t)
	require.NoError(t, db.AddRule(doubleRule()))
	require.NoError(t, db.AddRule(Rule{
		ID:       "Answer",
		Patterns: []Pattern{{Type: "Greeting", Bind: "g"}},
		Action: func(a *Activation) error {
			r, err := a.NewFact("Reply")
			if err != nil {
				return err
			}
			if err := r.Set("to", a.Root().Ref()); err != nil {
				return err
			}
			return a.Insert(r)
		},
	}))
	require.NoError(t, db.LinkRules())

	person := mustFact(t, db, "Person", ir.IRObject{"age": ir.IRInt(3)})
	_, err := db.FireRules(context.Background(), person)
	require.NoError(t, err)

	greeting := ofType(db, "Greeting")[0]
	reply := ofType(db, "Reply")[0]
	assert.Equal(t, greeting.ID, reply.CreatorID())
	assert.Equal(t, "Answer", reply.OriginRule())
	assert.Equal(t, []int64{reply.ID, greeting.ID, person.ID}, fact.Chain(db.Store(), reply))
}

func TestProvenanceSingleAssignment(t *testing.T) {
	db := newTestDB(t)
	var note *fact.Fact
	require.NoError(t, db.AddRule(Rule{
		ID:       "Make",
		Patterns: []Pattern{{Type: "Person", Bind: "p"}},
		Action: func(a *Activation) error {
			var err error
			note, err = a.NewFact("Note")
			if err != nil {
				return err
			}
			return a.Insert(note)
		},
	}))
	require.NoError(t, db.AddRule(Rule{
		ID:       "Again",
		Patterns: []Pattern{{Type: "Trigger"}},
		Action: func(a *Activation) error {
			return a.Insert(note)
		},
	}))
	require.NoError(t, db.LinkRules())

	person := mustFact(t, db, "Person", nil)
	trigger := mustFact(t, db, "Trigger", nil)
	summary, err := db.FireRules(context.Background(), person, trigger)
	require.NoError(t, err)

	assert.Equal(t, person.ID, note.CreatorID())
	// Again re-inserted the note; creator and origin rule stay with Make.
	assert.Equal(t, "Make", note.OriginRule())
	assert.Len(t, ofType(db, "Note"), 1, "re-inserting does not duplicate")
	assert.Equal(t, 3, summary.Inserted)
}

func TestProvenanceCyclicGraph(t *testing.T) {
	db := newTestDB(t)
	require.NoError(t, db.AddRule(Rule{
		ID:       "Ring",
		Patterns: []Pattern{{Type: "Trigger"}},
		Action: func(a *Activation) error {
			x, err := a.NewFact("Node")
			if err != nil {
				return err
			}
			y, err := a.NewFact("Node")
			if err != nil {
				return err
			}
			if err := x.Set("next", y.Ref()); err != nil {
				return err
			}
			if err := y.Set("next", x.Ref()); err != nil {
				return err
			}
			return a.Insert(x)
		},
	}))
	require.NoError(t, db.LinkRules())

	trigger := mustFact(t, db, "Trigger", nil)
	_, err := db.FireRules(context.Background(), trigger)
	require.NoError(t, err)

	// Only x was inserted, but y was reached through x and attributed.
	nodes := ofType(db, "Node")
	require.Len(t, nodes, 1)
	next, _ := nodes[0].Get("next")
	y, ok := db.Fact(int64(next.(ir.IRRef)))
	require.True(t, ok)
	assert.Equal(t, trigger.ID, nodes[0].CreatorID())
	assert.Equal(t, trigger.ID, y.CreatorID())
}

func TestOverrideReplacesStaleToken(t *testing.T) {
	db := newTestDB(t)
	var seen []int64
	require.NoError(t, db.AddRule(Rule{
		ID: "Wear",
		Patterns: []Pattern{
			{Type: "Person", Bind: "p"},
			{Type: "Badge", Bind: "b", Join: func(l, r *Match) (bool, error) {
				p, _ := l.Env.Lookup("p")
				b, _ := db.Fact(int64(mustRef(r.Env.Lookup("b"))))
				owner, _ := b.Get("owner")
				return ir.Equal(p, owner), nil
			}},
		},
		Action: func(a *Activation) error {
			p, err := a.Fact("p")
			if err != nil {
				return err
			}
			seen = append(seen, intField(p, "age"))
			return nil
		},
	}))
	require.NoError(t, db.AddRule(Rule{
		ID:       "Grow",
		Patterns: []Pattern{{Type: "Trigger"}},
		Action: func(a *Activation) error {
			p := ofType(a.Database(), "Person")[0]
			return a.Update(p, ir.IRObject{"age": ir.IRInt(11)})
		},
	}))
	require.NoError(t, db.LinkRules())

	person := mustFact(t, db, "Person", ir.IRObject{"age": ir.IRInt(10)})
	badge := mustFact(t, db, "Badge", ir.IRObject{"owner": person.Ref()})
	_, err := db.FireRules(context.Background(), person, badge, mustFact(t, db, "Trigger", nil))
	require.NoError(t, err)

	assert.Equal(t, []int64{10, 11}, seen)
	left, right := db.net.joins[0].Size()
	assert.Equal(t, 1, left, "the updated person replaced its old token")
	assert.Equal(t, 1, right)
	assert.Len(t, ofType(db, "Person"), 1)
}

func mustRef(v ir.IRValue, ok bool) ir.IRRef {
	if !ok {
		return 0
	}
	return v.(ir.IRRef)
}

func TestSupersededActivationSkipped(t *testing.T) {
	db := newTestDB(t)
	var watched []int64
	require.NoError(t, db.AddRule(Rule{
		ID: "Grow",
		Patterns: []Pattern{{Type: "Person", Bind: "p", Test: func(f *fact.Fact, _ *env.Env) (bool, error) {
			return intField(f, "age") < 11, nil
		}}},
		Action: func(a *Activation) error {
			return a.Update(a.Root(), ir.IRObject{"age": ir.IRInt(11)})
		},
	}))
	require.NoError(t, db.AddRule(Rule{
		ID:       "Watch",
		Patterns: []Pattern{{Type: "Person", Bind: "p"}},
		Action: func(a *Activation) error {
			watched = append(watched, intField(a.Root(), "age"))
			return nil
		},
	}))
	require.NoError(t, db.LinkRules())

	summary, err := db.FireRules(context.Background(), mustFact(t, db, "Person", ir.IRObject{"age": ir.IRInt(10)}))
	require.NoError(t, err)

	// Watch's first activation was replaced by the re-inserted person
	// before it could fire.
	assert.Equal(t, []int64{11}, watched)
	assert.Equal(t, 1, summary.Skipped)
	assert.Equal(t, 2, summary.Fired)
}

// ageRule sets the only Person's age when a Trigger arrives.
func ageRule(age int64) Rule {
	return Rule{
		ID:       "Age",
		Patterns: []Pattern{{Type: "Trigger"}},
		Action: func(a *Activation) error {
			p := ofType(a.Database(), "Person")[0]
			return a.Update(p, ir.IRObject{"age": ir.IRInt(age)})
		},
	}
}

func TestUpdateFailingTestRetractsMatch(t *testing.T) {
	db := newTestDB(t)
	var ages []int64
	require.NoError(t, db.AddRule(ageRule(99)))
	require.NoError(t, db.AddRule(Rule{
		ID: "Young",
		Patterns: []Pattern{
			{Type: "Trigger", Bind: "t"},
			{Type: "Person", Bind: "p", Test: func(f *fact.Fact, _ *env.Env) (bool, error) {
				return intField(f, "age") < 18, nil
			}},
		},
		Action: func(a *Activation) error {
			p, err := a.Fact("p")
			if err != nil {
				return err
			}
			ages = append(ages, intField(p, "age"))
			return nil
		},
	}))
	require.NoError(t, db.LinkRules())

	person := mustFact(t, db, "Person", ir.IRObject{"age": ir.IRInt(10)})
	summary, err := db.FireRules(context.Background(), person, mustFact(t, db, "Trigger", nil))
	require.NoError(t, err)

	// Young was queued for the 10-year-old, then Age made the person 99
	// before it could fire.
	assert.Empty(t, ages)
	assert.Equal(t, 1, summary.Fired)
	assert.Equal(t, 1, summary.Skipped)

	left, right := db.net.joins[0].Size()
	assert.Equal(t, 1, left)
	assert.Zero(t, right, "the person no longer passes and was withdrawn")
}

func TestUpdateFailingJoinRetractsMatch(t *testing.T) {
	db := newTestDB(t)
	var fired int
	require.NoError(t, db.AddRule(ageRule(99)))
	require.NoError(t, db.AddRule(Rule{
		ID: "Minor",
		Patterns: []Pattern{
			{Type: "Trigger", Bind: "t"},
			{Type: "Person", Bind: "p", Join: func(_, r *Match) (bool, error) {
				return boundInt(db, r.Env, "p", "age") < 18, nil
			}},
		},
		Action: func(*Activation) error {
			fired++
			return nil
		},
	}))
	require.NoError(t, db.LinkRules())

	summary, err := db.FireRules(context.Background(),
		mustFact(t, db, "Person", ir.IRObject{"age": ir.IRInt(10)}),
		mustFact(t, db, "Trigger", nil))
	require.NoError(t, err)

	assert.Zero(t, fired)
	assert.Equal(t, 1, summary.Skipped)
	left, right := db.net.joins[0].Size()
	assert.Equal(t, 1, left)
	assert.Equal(t, 1, right, "the new token replaced the old one")
}

func TestRetractedFactMatchesAgainAfterUpdate(t *testing.T) {
	db := newTestDB(t)
	var ages []int64
	require.NoError(t, db.AddRule(Rule{
		ID: "Age",
		Patterns: []Pattern{{Type: "Trigger"}},
		Action: func(a *Activation) error {
			p := ofType(a.Database(), "Person")[0]
			if err := a.Update(p, ir.IRObject{"age": ir.IRInt(99)}); err != nil {
				return err
			}
			return a.Update(p, ir.IRObject{"age": ir.IRInt(12)})
		},
	}))
	require.NoError(t, db.AddRule(Rule{
		ID: "Young",
		Patterns: []Pattern{{Type: "Person", Bind: "p", Test: func(f *fact.Fact, _ *env.Env) (bool, error) {
			return intField(f, "age") < 18, nil
		}}},
		Action: func(a *Activation) error {
			ages = append(ages, intField(a.Root(), "age"))
			return nil
		},
	}))
	require.NoError(t, db.LinkRules())

	_, err := db.FireRules(context.Background(),
		mustFact(t, db, "Person", ir.IRObject{"age": ir.IRInt(10)}),
		mustFact(t, db, "Trigger", nil))
	require.NoError(t, err)

	assert.Equal(t, []int64{10, 12}, ages)
}

func TestInsertAssignsIDBeforeAttribution(t *testing.T) {
	var logs bytes.Buffer
	db := newTestDB(t, WithLogger(slog.New(slog.NewTextHandler(&logs, &slog.HandlerOptions{Level: slog.LevelDebug}))))
	var note *fact.Fact
	require.NoError(t, db.AddRule(Rule{
		ID:       "Jot",
		Patterns: []Pattern{{Type: "Trigger"}},
		Action: func(a *Activation) error {
			rt, _ := a.Database().Type("Note")
			note = fact.New(0, rt)
			return a.Insert(note)
		},
	}))
	require.NoError(t, db.LinkRules())

	trigger := mustFact(t, db, "Trigger", nil)
	_, err := db.FireRules(context.Background(), trigger)
	require.NoError(t, err)

	require.NotZero(t, note.ID)
	assert.Equal(t, trigger.ID, note.CreatorID())
	assert.Contains(t, logs.String(), fmt.Sprintf("fact_ids=[%d]", note.ID))
	got, ok := db.Fact(note.ID)
	require.True(t, ok)
	assert.Same(t, note, got)
}

func TestFailedFireRulesKeepsStagedFacts(t *testing.T) {
	db := newTestDB(t)
	require.NoError(t, db.AddRule(doubleRule()))
	require.NoError(t, db.LinkRules())
	require.NoError(t, db.Seed(mustFact(t, db, "Person", ir.IRObject{"age": ir.IRInt(10)})))

	_, err := db.FireRules(context.Background(), nil)
	require.Error(t, err)
	assert.True(t, IsUsageError(err))

	summary, err := db.FireRules(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Seeded)
	assert.Len(t, ofType(db, "Greeting"), 1)
}

func TestDepthBoundFailsLoudly(t *testing.T) {
	db := newTestDB(t, WithMaxDepth(10))
	require.NoError(t, db.AddRule(Rule{
		ID:       "Forever",
		Patterns: []Pattern{{Type: "Counter", Bind: "c"}},
		Action: func(a *Activation) error {
			next := mustFactIn(a, "Counter", ir.IRObject{"n": ir.IRInt(intField(a.Root(), "n") + 1)})
			return a.Insert(next)
		},
	}))
	require.NoError(t, db.LinkRules())

	_, err := db.FireRules(context.Background(), mustFact(t, db, "Counter", nil))
	require.Error(t, err)
	assert.True(t, IsDepthError(err))
	assert.True(t, IsResourceError(err))

	var de *DepthExceededError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, 11, de.Depth)
	assert.Equal(t, 10, de.Limit)
	assert.Equal(t, "Forever", de.Rule)
	assert.Equal(t, StateIdle, db.State())
	assert.Len(t, ofType(db, "Counter"), 10)
}

func mustFactIn(a *Activation, typeName string, fields ir.IRObject) *fact.Fact {
	f, err := a.NewFact(typeName)
	if err != nil {
		panic(err)
	}
	if err := f.SetAll(fields); err != nil {
		panic(err)
	}
	return f
}

func TestQuotaBoundFailsLoudly(t *testing.T) {
	db := newTestDB(t, WithMaxSteps(3))
	require.NoError(t, db.AddRule(Rule{
		ID:       "Touch",
		Patterns: []Pattern{{Type: "Counter"}},
		Action:   func(a *Activation) error { return nil },
	}))
	require.NoError(t, db.LinkRules())

	var seeds []*fact.Fact
	for i := 0; i < 5; i++ {
		seeds = append(seeds, mustFact(t, db, "Counter", ir.IRObject{"n": ir.IRInt(int64(i))}))
	}
	_, err := db.FireRules(context.Background(), seeds...)
	require.Error(t, err)
	assert.True(t, IsQuotaError(err))

	var se *StepsExceededError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, 4, se.Steps)
	assert.Equal(t, 3, se.Limit)
}

func TestInitialFactsMarkedBeforeDispatch(t *testing.T) {
	db := newTestDB(t)
	a := mustFact(t, db, "Person", nil)
	b := mustFact(t, db, "Person", nil)

	var laterSeedMarked []bool
	require.NoError(t, db.AddRule(Rule{
		ID:       "Look",
		Patterns: []Pattern{{Type: "Person"}},
		Action: func(act *Activation) error {
			// b is marked even while a, dispatched first, fires.
			laterSeedMarked = append(laterSeedMarked, b.IsInitial())
			return nil
		},
	}))
	require.NoError(t, db.LinkRules())

	require.NoError(t, db.Seed(a))
	_, err := db.FireRules(context.Background(), b)
	require.NoError(t, err)

	assert.True(t, a.IsInitial())
	assert.Equal(t, []bool{true, true}, laterSeedMarked)
	assert.Equal(t, []int64{a.ID, b.ID}, []int64{db.Facts()[0].ID, db.Facts()[1].ID})
}

func TestIDsMonotonic(t *testing.T) {
	db := newTestDB(t)
	require.NoError(t, db.AddRule(doubleRule()))
	require.NoError(t, db.AddRule(invoiceRule(db)))
	require.NoError(t, db.LinkRules())

	seeds := []*fact.Fact{
		mustFact(t, db, "Person", ir.IRObject{"age": ir.IRInt(1)}),
		mustFact(t, db, "Order", ir.IRObject{"id": ir.IRInt(1), "customerId": ir.IRInt(1)}),
		mustFact(t, db, "Customer", ir.IRObject{"id": ir.IRInt(1)}),
		mustFact(t, db, "Person", ir.IRObject{"age": ir.IRInt(2)}),
	}
	_, err := db.FireRules(context.Background(), seeds...)
	require.NoError(t, err)

	seen := map[int64]bool{}
	var derived []int64
	for _, f := range db.Facts() {
		assert.False(t, seen[f.ID], "fact id %d reused", f.ID)
		seen[f.ID] = true
		if !f.IsInitial() {
			derived = append(derived, f.ID)
		}
	}
	require.Len(t, derived, 3)
	for i := 1; i < len(derived); i++ {
		assert.Less(t, derived[i-1], derived[i])
	}
	assert.Greater(t, derived[0], seeds[len(seeds)-1].ID)

	firings := db.Firings()
	require.Len(t, firings, 3)
	for i := 1; i < len(firings); i++ {
		assert.Less(t, firings[i-1].MatchID, firings[i].MatchID)
		assert.Less(t, firings[i-1].Seq, firings[i].Seq)
	}
}

func TestSubtypeMatchesPattern(t *testing.T) {
	db := newTestDB(t)
	require.NoError(t, db.AddRule(doubleRule()))
	require.NoError(t, db.LinkRules())

	emp := mustFact(t, db, "Employee", ir.IRObject{"age": ir.IRInt(30), "company": ir.IRString("acme")})
	_, err := db.FireRules(context.Background(), emp)
	require.NoError(t, err)

	greetings := ofType(db, "Greeting")
	require.Len(t, greetings, 1)
	assert.Equal(t, "Age is 60", strField(greetings[0], "text"))
}

func TestAddRuleValidation(t *testing.T) {
	noop := func(a *Activation) error { return nil }
	tests := []struct {
		name string
		rule Rule
		code RuntimeErrorCode
	}{
		{"missing id", Rule{Patterns: []Pattern{{Type: "Person"}}, Action: noop}, ErrCodeMissingArgument},
		{"missing action", Rule{ID: "r", Patterns: []Pattern{{Type: "Person"}}}, ErrCodeMissingArgument},
		{"no patterns", Rule{ID: "r", Action: noop}, ErrCodeInvalidRule},
		{"unknown type", Rule{ID: "r", Patterns: []Pattern{{Type: "Ghost"}}, Action: noop}, ErrCodeUnknownType},
		{"join on first", Rule{ID: "r", Patterns: []Pattern{{Type: "Person", Join: func(l, r *Match) (bool, error) { return true, nil }}}, Action: noop}, ErrCodeInvalidRule},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db := newTestDB(t)
			err := db.AddRule(tt.rule)
			require.Error(t, err)
			assert.True(t, hasCode(err, tt.code), "got %v", err)
		})
	}
}

func TestLinkingProtocol(t *testing.T) {
	db := newTestDB(t)
	_, err := db.FireRules(context.Background())
	assert.True(t, hasCode(err, ErrCodeNotLinked))

	require.NoError(t, db.LinkRules())
	assert.True(t, db.Linked())
	assert.True(t, hasCode(db.AddRule(doubleRule()), ErrCodeAlreadyLinked))
	assert.True(t, hasCode(db.DefineType(ir.RecordType{Name: "Late"}), ErrCodeAlreadyLinked))
}

func TestAlphaNodesShared(t *testing.T) {
	db := newTestDB(t)
	a := doubleRule()
	a.Patterns[0].Signature = "Person:p"
	b := doubleRule()
	b.ID = "DoubleAgain"
	b.Patterns[0].Signature = "Person:p"
	require.NoError(t, db.AddRule(a))
	require.NoError(t, db.AddRule(b))
	require.NoError(t, db.LinkRules())

	assert.Len(t, db.net.root.children, 1)
	assert.Equal(t, []string{"Double", "DoubleAgain"}, db.Rules())

	_, err := db.FireRules(context.Background(), mustFact(t, db, "Person", nil))
	require.NoError(t, err)
	assert.Len(t, ofType(db, "Greeting"), 2)
}

func TestClearResetsMemories(t *testing.T) {
	db := newTestDB(t)
	require.NoError(t, db.AddRule(invoiceRule(db)))
	require.NoError(t, db.LinkRules())

	o := mustFact(t, db, "Order", ir.IRObject{"customerId": ir.IRInt(1)})
	_, err := db.FireRules(context.Background(), o)
	require.NoError(t, err)
	left, _ := db.net.joins[0].Size()
	assert.Equal(t, 1, left)

	require.NoError(t, db.Clear())
	left, right := db.net.joins[0].Size()
	assert.Zero(t, left)
	assert.Zero(t, right)
	assert.Empty(t, db.Facts())
	assert.Empty(t, db.Firings())

	// A customer alone no longer pairs with the cleared order.
	c := mustFact(t, db, "Customer", ir.IRObject{"id": ir.IRInt(1)})
	assert.Greater(t, c.ID, o.ID, "ids are never reused")
	_, err = db.FireRules(context.Background(), c)
	require.NoError(t, err)
	assert.Empty(t, ofType(db, "Invoice"))
	assert.Equal(t, "run-2", db.RunID())
}

func TestContextCancellation(t *testing.T) {
	db := newTestDB(t)
	require.NoError(t, db.AddRule(doubleRule()))
	require.NoError(t, db.LinkRules())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := db.FireRules(ctx, mustFact(t, db, "Person", nil))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, StateIdle, db.State())
}

func TestMissingArguments(t *testing.T) {
	db := newTestDB(t)
	require.NoError(t, db.LinkRules())

	assert.True(t, hasCode(db.InsertFact(nil), ErrCodeMissingArgument))
	assert.True(t, hasCode(db.Seed(nil), ErrCodeMissingArgument))
	_, err := db.FireRules(context.Background(), nil)
	assert.True(t, hasCode(err, ErrCodeMissingArgument))
	_, err = db.NewFact("Ghost")
	assert.True(t, hasCode(err, ErrCodeUnknownType))
}

func TestOutputFacts(t *testing.T) {
	db := New(WithLogger(quietLogger()))
	require.NoError(t, db.DefineType(ir.RecordType{Name: "File", Output: true, Fields: []ir.FieldDef{{Name: "path", Type: ir.TypeString}}}))
	require.NoError(t, db.DefineType(ir.RecordType{Name: "Other"}))
	require.NoError(t, db.LinkRules())

	f := mustFact(t, db, "File", ir.IRObject{"path": ir.IRString("a.txt")})
	_, err := db.FireRules(context.Background(), mustFact(t, db, "Other", nil), f)
	require.NoError(t, err)

	out := db.OutputFacts()
	require.Len(t, out, 1)
	assert.Same(t, f, out[0])
}
