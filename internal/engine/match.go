package engine

import (
	"strconv"
	"strings"

	"github.com/roach88/rulescript/internal/env"
	"github.com/roach88/rulescript/internal/fact"
)

// Match is an immutable token flowing through the network. It stands for
// a partial or complete satisfaction of one rule's patterns.
//
// Never modify a Match after creation. Binding a name or merging with a
// join partner always builds a new Match.
type Match struct {
	// ID orders tokens by creation; strictly increasing within a database.
	ID int64

	// Value is the fact this token carries at its current position.
	Value *fact.Fact

	// Root is the top-level fact the token's derivation started from.
	// Provenance and override identity use it.
	Root *fact.Fact

	// Bind is the variable name Value is bound to, if any.
	Bind string

	// Env holds every binding made along the derivation.
	Env *env.Env

	position string
	roots    []int64
}

// Key is the token's structural identity: the network position that
// produced it plus the root ids of every fact it combines. A newer token
// with the same key overrides an older one.
func (m *Match) Key() string {
	return matchKey(m.position, m.roots)
}

func matchKey(position string, roots []int64) string {
	var b strings.Builder
	b.WriteString(position)
	b.WriteByte('/')
	for i, id := range roots {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatInt(id, 10))
	}
	return b.String()
}

// Roots returns the root fact ids combined in this token, in pattern
// order.
func (m *Match) Roots() []int64 {
	out := make([]int64, len(m.roots))
	copy(out, m.roots)
	return out
}

// Position names the network node that produced the token.
func (m *Match) Position() string {
	return m.position
}
