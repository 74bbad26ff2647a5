package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/rulescript/internal/ir"
)

func TestMatchKey(t *testing.T) {
	m := &Match{position: "j3", roots: []int64{4, 9}}
	assert.Equal(t, "j3/4,9", m.Key())
	assert.Equal(t, "j3", m.Position())

	roots := m.Roots()
	roots[0] = 99
	assert.Equal(t, []int64{4, 9}, m.Roots(), "Roots returns a copy")
}

func TestPortString(t *testing.T) {
	assert.Equal(t, "left", PortLeft.String())
	assert.Equal(t, "right", PortRight.String())
}

func TestAgendaFIFO(t *testing.T) {
	a := newAgenda()
	first := &Activation{Rule: &Rule{ID: "a"}}
	second := &Activation{Rule: &Rule{ID: "b"}}
	a.push(first)
	a.push(second)
	assert.Equal(t, 2, a.Len())

	got, ok := a.pop()
	require.True(t, ok)
	assert.Same(t, first, got)
	got, _ = a.pop()
	assert.Same(t, second, got)
	_, ok = a.pop()
	assert.False(t, ok)
}

func TestAlphaDropsFailedTokens(t *testing.T) {
	db := newTestDB(t)
	require.NoError(t, db.AddRule(invoiceRule(db)))
	require.NoError(t, db.LinkRules())

	// A Person matches neither alpha node, so no memory holds it.
	_, err := db.FireRules(context.Background(), mustFact(t, db, "Person", nil))
	require.NoError(t, err)
	left, right := db.net.joins[0].Size()
	assert.Zero(t, left)
	assert.Zero(t, right)
}

func TestThreeWayJoinKeepsDistinctPartials(t *testing.T) {
	db := newTestDB(t)
	var fired [][]int64
	require.NoError(t, db.AddRule(Rule{
		ID: "Triple",
		Patterns: []Pattern{
			{Type: "Customer", Bind: "c"},
			{Type: "Order", Bind: "o"},
			{Type: "Note", Bind: "n"},
		},
		Action: func(a *Activation) error {
			fired = append(fired, a.Match.Roots())
			return nil
		},
	}))
	require.NoError(t, db.LinkRules())

	c := mustFact(t, db, "Customer", nil)
	o1 := mustFact(t, db, "Order", nil)
	o2 := mustFact(t, db, "Order", nil)
	n := mustFact(t, db, "Note", nil)
	_, err := db.FireRules(context.Background(), c, o1, o2, n)
	require.NoError(t, err)

	// (c,o1) and (c,o2) both survive in the second join's left memory.
	left, right := db.net.joins[1].Size()
	assert.Equal(t, 2, left)
	assert.Equal(t, 1, right)
	assert.Equal(t, [][]int64{{c.ID, o1.ID, n.ID}, {c.ID, o2.ID, n.ID}}, fired)
}

func TestJoinEnvMergesLeftThenRight(t *testing.T) {
	db := newTestDB(t)
	var names []string
	var bindings ir.IRObject
	require.NoError(t, db.AddRule(Rule{
		ID: "Pair",
		Patterns: []Pattern{
			{Type: "Order", Bind: "o"},
			{Type: "Customer", Bind: "c"},
		},
		Action: func(a *Activation) error {
			names = a.Match.Env.Names()
			bindings = a.Bindings()
			return nil
		},
	}))
	require.NoError(t, db.LinkRules())

	c := mustFact(t, db, "Customer", nil)
	o := mustFact(t, db, "Order", nil)
	_, err := db.FireRules(context.Background(), c, o)
	require.NoError(t, err)

	assert.Equal(t, []string{"o", "c"}, names)
	assert.Equal(t, ir.IRObject{"o": o.Ref(), "c": c.Ref()}, bindings)
}
