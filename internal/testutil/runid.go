// Package testutil holds deterministic stand-ins and fixtures shared by
// the harness, the CLI and their tests.
package testutil

import (
	"fmt"
	"sync"
)

// DefaultRunID is used when a scenario does not name its run.
const DefaultRunID = "test-run-default"

// FixedRunIDGenerator names every run the same.
//
// The same scenario run with the same FixedRunIDGenerator produces a
// byte-identical snapshot, which golden comparison relies on.
type FixedRunIDGenerator struct {
	id string
}

// NewFixedRunIDGenerator returns a generator for id. If id is empty,
// Generate returns DefaultRunID.
func NewFixedRunIDGenerator(id string) *FixedRunIDGenerator {
	if id == "" {
		id = DefaultRunID
	}
	return &FixedRunIDGenerator{id: id}
}

// Generate implements engine.RunIDGenerator.
func (g *FixedRunIDGenerator) Generate() string {
	return g.id
}

// SequenceRunIDGenerator names runs prefix-1, prefix-2, ...
//
// Safe for concurrent use.
type SequenceRunIDGenerator struct {
	mu     sync.Mutex
	prefix string
	seq    int64
}

// NewSequenceRunIDGenerator returns a generator whose first id is
// prefix-1.
func NewSequenceRunIDGenerator(prefix string) *SequenceRunIDGenerator {
	return &SequenceRunIDGenerator{prefix: prefix}
}

// Generate implements engine.RunIDGenerator.
func (g *SequenceRunIDGenerator) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.seq++
	return fmt.Sprintf("%s-%d", g.prefix, g.seq)
}

// Reset restarts the sequence so the next id is prefix-1.
func (g *SequenceRunIDGenerator) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.seq = 0
}
