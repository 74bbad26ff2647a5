package queryir

import "github.com/roach88/rulescript/internal/ir"

// IDField is the path of a fact's id.
const IDField = "$id"

// Query represents an abstract query over recorded facts.
//
// This is a sealed interface - only types in this package implement it.
type Query interface {
	queryNode() // Marker method - seals interface to this package
}

// Predicate represents a filter condition.
//
// This is a sealed interface - only types in this package implement it.
// Predicates appear in Select.Filter and Join.On; both are evaluated
// against the fact of the Select they belong to (for Join.On, the right
// side).
type Predicate interface {
	predicateNode() // Marker method - seals interface to this package
}

// Select matches the working-memory facts of exactly one record type.
//
// Semantics:
//
//	SELECT <bindings> FROM facts WHERE type = <Type> AND <filter>
//
// Example:
//
//	Select{
//	  Type:   "Invoice",
//	  Filter: &Equals{Field: "discounted", Value: ir.IRBool(true)},
//	  Bindings: map[string]string{
//	    "$id":    "invoice",
//	    "amount": "amount",
//	  },
//	}
//
// Produces bindings: {"invoice": <fact id>, "amount": <value>}
//
// A field that is missing from a fact is left out of that row's
// bindings.
type Select struct {
	Type     string            // Record type name (no subtypes)
	Filter   Predicate         // nil = no filter
	Bindings map[string]string // field path → variable
}

func (Select) queryNode() {}

// Join is an inner join of a query with a further Select.
//
// On is evaluated against the right Select's fact and may use
// BoundEquals to refer to variables bound by Left. A Join without On
// is rejected: cross joins are not supported.
//
// Example:
//
//	Join{
//	  Left:  Select{Type: "Customer", Bindings: map[string]string{"name": "customer"}},
//	  Right: Select{Type: "Invoice", Bindings: map[string]string{"amount": "amount"}},
//	  On:    &BoundEquals{Field: "customer", BoundVar: "customer"},
//	}
type Join struct {
	Left  Query     // Select or Join
	Right Query     // must be a Select
	On    Predicate // required
}

func (Join) queryNode() {}

// Equals compares a field to a literal.
//
// Comparing to ir.IRNull matches a field explicitly set to null, not a
// missing one.
type Equals struct {
	Field string     // Field path in the current fact
	Value ir.IRValue // Literal value
}

func (Equals) predicateNode() {}

// BoundEquals compares a field to a variable bound earlier in the query.
type BoundEquals struct {
	Field    string // Field path in the current fact
	BoundVar string // Variable bound by the left side of a Join
}

func (BoundEquals) predicateNode() {}

// And is a conjunction of predicates. An empty And is always true.
type And struct {
	Predicates []Predicate
}

func (And) predicateNode() {}

// Where builds a Select filter from field → value pairs, in sorted field
// order. It returns nil when fields is empty.
func Where(fields ir.IRObject) Predicate {
	if len(fields) == 0 {
		return nil
	}
	preds := make([]Predicate, 0, len(fields))
	for _, k := range fields.SortedKeys() {
		preds = append(preds, Equals{Field: k, Value: fields[k]})
	}
	if len(preds) == 1 {
		return preds[0]
	}
	return And{Predicates: preds}
}
