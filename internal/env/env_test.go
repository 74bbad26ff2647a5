package env

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/rulescript/internal/ir"
)

func TestLookupFallsThroughToParent(t *testing.T) {
	root := New().Extend("a", ir.IRInt(1))
	child := root.Extend("b", ir.IRInt(2))

	v, ok := child.Lookup("a")
	require.True(t, ok)
	assert.Equal(t, ir.IRInt(1), v)

	_, ok = root.Lookup("b")
	assert.False(t, ok, "parent must not see child bindings")
}

func TestExtendShadows(t *testing.T) {
	e := New().Extend("x", ir.IRInt(1)).Extend("x", ir.IRInt(2))
	v, _ := e.Lookup("x")
	assert.Equal(t, ir.IRInt(2), v)
	assert.Equal(t, []string{"x"}, e.Names())
}

func TestExtendDoesNotMutateReceiver(t *testing.T) {
	base := New().Extend("a", ir.IRInt(1))
	_ = base.Extend("b", ir.IRInt(2))
	assert.Equal(t, []string{"a"}, base.Names())
}

func TestAddAllCopies(t *testing.T) {
	src := New().Extend("p", ir.IRRef(1)).Extend("q", ir.IRRef(2))
	dst := New().AddAll(src)

	// The copy's frame must not share src's chain.
	assert.NotSame(t, src, dst.Parent())
	assert.Equal(t, []string{"p", "q"}, dst.Names())

	v, ok := dst.Lookup("q")
	require.True(t, ok)
	assert.Equal(t, ir.IRRef(2), v)
}

func TestNamesInsertionOrder(t *testing.T) {
	e := New().Extend("c", ir.IRInt(3)).Extend("a", ir.IRInt(1)).Extend("b", ir.IRInt(2))
	assert.Equal(t, []string{"c", "a", "b"}, e.Names())
	assert.Equal(t, 3, e.Len())
}

func TestMerge(t *testing.T) {
	left := New().Extend("o", ir.IRRef(1))
	right := New().Extend("c", ir.IRRef(2))
	merged := Merge(left, right)

	assert.Equal(t, []string{"o", "c"}, merged.Names())
	assert.Equal(t, ir.IRObject{"o": ir.IRRef(1), "c": ir.IRRef(2)}, merged.Object())

	// Inputs are untouched.
	assert.Equal(t, []string{"o"}, left.Names())
	assert.Equal(t, []string{"c"}, right.Names())
}

func TestNilEnv(t *testing.T) {
	var e *Env
	_, ok := e.Lookup("x")
	assert.False(t, ok)
	assert.Empty(t, e.Names())
	assert.Nil(t, e.Parent())
	assert.Equal(t, []string{"x"}, Merge(nil, New().Extend("x", ir.IRNull{})).Names())
}
