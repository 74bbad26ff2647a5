package fact

import "slices"

// Store is the flat, id-indexed fact store of one database.
//
// It tracks two sets: every fact created by the database's factory
// (registered), and the facts actually inserted into working memory, in
// insertion order. References resolve against the registered set, so a
// freshly built fact can point at another that is not yet inserted.
type Store struct {
	registered map[int64]*Fact
	inserted   map[int64]bool
	order      []*Fact
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		registered: make(map[int64]*Fact),
		inserted:   make(map[int64]bool),
	}
}

// Register records a newly created fact under its id.
func (s *Store) Register(f *Fact) {
	s.registered[f.ID] = f
}

// Append adds f to working memory. It reports false if f was already
// present; the insertion position of a fact never changes.
func (s *Store) Append(f *Fact) bool {
	s.registered[f.ID] = f
	if s.inserted[f.ID] {
		return false
	}
	s.inserted[f.ID] = true
	s.order = append(s.order, f)
	return true
}

// Lookup resolves an id among all registered facts.
func (s *Store) Lookup(id int64) (*Fact, bool) {
	f, ok := s.registered[id]
	return f, ok
}

// Contains reports whether the fact with this id is in working memory.
func (s *Store) Contains(id int64) bool {
	return s.inserted[id]
}

// All returns working memory in insertion order.
func (s *Store) All() []*Fact {
	return slices.Clone(s.order)
}

// OfType returns working-memory facts whose type is exactly name.
func (s *Store) OfType(name string) []*Fact {
	var out []*Fact
	for _, f := range s.order {
		if f.Type.Name == name {
			out = append(out, f)
		}
	}
	return out
}

// Len returns the number of facts in working memory.
func (s *Store) Len() int {
	return len(s.order)
}

// Reset discards every fact.
func (s *Store) Reset() {
	clear(s.registered)
	clear(s.inserted)
	s.order = nil
}

// Walk visits root and every registered fact reachable from it through
// reference fields, depth-first in field order. Each id is visited at
// most once. Dangling references are skipped.
func (s *Store) Walk(root *Fact, visit func(*Fact)) {
	visited := make(map[int64]bool)
	stack := []*Fact{root}
	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if visited[f.ID] {
			continue
		}
		visited[f.ID] = true
		visit(f)

		refs := f.refs()
		// Push in reverse so the first reference is visited first.
		for i := len(refs) - 1; i >= 0; i-- {
			if visited[refs[i]] {
				continue
			}
			if next, ok := s.registered[refs[i]]; ok {
				stack = append(stack, next)
			}
		}
	}
}
