package engine

import (
	"fmt"

	"github.com/roach88/rulescript/internal/fact"
	"github.com/roach88/rulescript/internal/ir"
)

// Activation is one complete match of a rule, waiting to fire or firing.
// Actions receive it and use it to read bindings and to change working
// memory.
type Activation struct {
	db    *Database
	Rule  *Rule
	Match *Match
}

// Root returns the root fact of the match.
func (a *Activation) Root() *fact.Fact {
	return a.Match.Root
}

// Lookup returns a bound value.
func (a *Activation) Lookup(name string) (ir.IRValue, bool) {
	return a.Match.Env.Lookup(name)
}

// Fact resolves a name bound to a fact.
func (a *Activation) Fact(name string) (*fact.Fact, error) {
	v, ok := a.Match.Env.Lookup(name)
	if !ok {
		return nil, fmt.Errorf("rule %s: %q is not bound", a.Rule.ID, name)
	}
	ref, ok := v.(ir.IRRef)
	if !ok {
		return nil, fmt.Errorf("rule %s: %q is bound to %s, not a fact", a.Rule.ID, name, ir.Kind(v))
	}
	f, ok := a.db.Fact(int64(ref))
	if !ok {
		return nil, fmt.Errorf("rule %s: %q refers to unknown fact %d", a.Rule.ID, name, ref)
	}
	return f, nil
}

// Bindings resolves every bound name to its value, in binding order.
func (a *Activation) Bindings() ir.IRObject {
	return a.Match.Env.Object()
}

// Database returns the database the activation belongs to.
func (a *Activation) Database() *Database {
	return a.db
}

// NewFact creates a fact of the named type.
func (a *Activation) NewFact(typeName string) (*fact.Fact, error) {
	return a.db.NewFact(typeName)
}

// Insert inserts f on behalf of this activation.
func (a *Activation) Insert(f *fact.Fact) error {
	return a.db.InsertFact(f)
}

// Update sets fields on f and inserts it again so the change is matched.
// Tokens built from the old values are overridden, or retracted when
// the new values no longer match.
func (a *Activation) Update(f *fact.Fact, fields ir.IRObject) error {
	if f == nil {
		return errMissing("fact")
	}
	for _, k := range fields.SortedKeys() {
		if err := a.db.UpdateField(f, k, fields[k]); err != nil {
			return err
		}
	}
	return a.db.InsertFact(f)
}
