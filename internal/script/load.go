package script

import (
	"fmt"

	"github.com/roach88/rulescript/internal/engine"
	"github.com/roach88/rulescript/internal/fact"
	"github.com/roach88/rulescript/internal/ir"
)

// Load defines the ruleset's record types on db, binds every rule and
// links the network. The returned interpreter runs the rules' code.
func Load(db *engine.Database, rs ir.Ruleset, opts ...Option) (*Interpreter, error) {
	for _, rt := range rs.Records {
		if err := db.DefineType(rt); err != nil {
			return nil, fmt.Errorf("record %s: %w", rt.Name, err)
		}
	}
	interp := New(db, opts...)
	for _, spec := range rs.Rules {
		rule, err := interp.Bind(spec)
		if err != nil {
			return nil, err
		}
		if err := db.AddRule(rule); err != nil {
			return nil, err
		}
	}
	if err := db.LinkRules(); err != nil {
		return nil, err
	}
	return interp, nil
}

// Materialize creates facts for seeds, in order. A field written
// {"$label": name} becomes a reference to the seed with that label, so
// seeds can reference each other in any order and form cycles.
func Materialize(db *engine.Database, seeds []ir.SeedFact) ([]*fact.Fact, error) {
	facts := make([]*fact.Fact, len(seeds))
	labels := make(map[string]int64)
	for n, s := range seeds {
		f, err := db.NewFact(s.Type)
		if err != nil {
			return nil, fmt.Errorf("seed %d: %w", n, err)
		}
		if s.Label != "" {
			if _, dup := labels[s.Label]; dup {
				return nil, fmt.Errorf("seed %d: duplicate label %q", n, s.Label)
			}
			labels[s.Label] = f.ID
		}
		facts[n] = f
	}
	for n, s := range seeds {
		fields, err := resolveLabels(s.Fields, labels)
		if err != nil {
			return nil, fmt.Errorf("seed %d (%s): %w", n, s.Type, err)
		}
		if err := facts[n].SetAll(fields.(ir.IRObject)); err != nil {
			return nil, fmt.Errorf("seed %d: %w", n, err)
		}
	}
	return facts, nil
}

func resolveLabels(v ir.IRValue, labels map[string]int64) (ir.IRValue, error) {
	if label, ok := ir.SeedLabel(v); ok {
		id, found := labels[label]
		if !found {
			return nil, fmt.Errorf("unknown label %q", label)
		}
		return ir.IRRef(id), nil
	}
	switch val := v.(type) {
	case nil:
		return ir.IRObject{}, nil
	case ir.IRObject:
		out := make(ir.IRObject, len(val))
		for k, elem := range val {
			r, err := resolveLabels(elem, labels)
			if err != nil {
				return nil, err
			}
			out[k] = r
		}
		return out, nil
	case ir.IRArray:
		out := make(ir.IRArray, len(val))
		for n, elem := range val {
			r, err := resolveLabels(elem, labels)
			if err != nil {
				return nil, err
			}
			out[n] = r
		}
		return out, nil
	}
	return v, nil
}
