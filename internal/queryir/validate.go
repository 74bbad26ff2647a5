package queryir

import (
	"fmt"
	"regexp"
	"slices"
	"strings"

	"github.com/roach88/rulescript/internal/ir"
)

// ValidationResult holds the problems found in a query.
type ValidationResult struct {
	// Valid is false when the query cannot be compiled.
	Valid bool

	// Errors lists the reasons the query is invalid.
	Errors []string

	// Warnings lists legal but suspicious constructs.
	Warnings []string
}

var varName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Validate checks a query before compilation:
//  1. Every Select names a record type
//  2. Field paths are dotted names without quotes or empty segments
//  3. Variables are identifiers and bound at most once
//  4. A Join has an On predicate and a Select on its right
//  5. BoundEquals only refers to variables bound to its left
//
// Variables are bound left to right: a Join's left side first, then its
// right Select. A Select's own bindings are not visible to its filter.
//
// Validate is a pure function with no side effects.
func Validate(query Query) ValidationResult {
	v := &validator{bound: map[string]bool{}}
	v.validateQuery(query)

	return ValidationResult{
		Valid:    len(v.errors) == 0,
		Errors:   v.errors,
		Warnings: v.warnings,
	}
}

// validator accumulates problems during traversal.
type validator struct {
	bound    map[string]bool
	errors   []string
	warnings []string
}

func (v *validator) addError(format string, args ...any) {
	v.errors = append(v.errors, fmt.Sprintf(format, args...))
}

func (v *validator) addWarning(format string, args ...any) {
	v.warnings = append(v.warnings, fmt.Sprintf(format, args...))
}

func (v *validator) validateQuery(q Query) {
	switch query := q.(type) {
	case nil:
		v.addError("nil query")
	case Select:
		v.validateSelect(query, nil)
	case *Select:
		v.validateSelect(*query, nil)
	case Join:
		v.validateJoin(query)
	case *Join:
		v.validateJoin(*query)
	default:
		v.addError("unknown query type: %T", q)
	}
}

// validateSelect checks a Select; on, if set, is the On predicate of the
// Join whose right side it is.
func (v *validator) validateSelect(sel Select, on Predicate) {
	if sel.Type == "" {
		v.addError("select has no record type")
	}
	v.validatePredicate(sel.Filter)
	v.validatePredicate(on)

	if len(sel.Bindings) == 0 {
		v.addWarning("select %s binds nothing - rows will be empty", sel.Type)
	}
	for _, field := range sortedKeys(sel.Bindings) {
		name := sel.Bindings[field]
		v.validatePath(field)
		switch {
		case !varName.MatchString(name):
			v.addError("invalid variable name %q for field %q", name, field)
		case v.bound[name]:
			v.addError("variable %q is bound twice", name)
		}
		v.bound[name] = true
	}
}

func (v *validator) validateJoin(join Join) {
	v.validateQuery(join.Left)

	if join.On == nil {
		v.addError("join has no on predicate - cross joins are not supported")
	}
	switch right := join.Right.(type) {
	case Select:
		v.validateSelect(right, join.On)
	case *Select:
		v.validateSelect(*right, join.On)
	default:
		v.addError("join right side must be a select, got %T", join.Right)
	}
}

func (v *validator) validatePredicate(p Predicate) {
	switch pred := p.(type) {
	case nil:
		// No filter
	case Equals:
		v.validateEquals(pred)
	case *Equals:
		v.validateEquals(*pred)
	case BoundEquals:
		v.validateBoundEquals(pred)
	case *BoundEquals:
		v.validateBoundEquals(*pred)
	case And:
		v.validateAnd(pred)
	case *And:
		v.validateAnd(*pred)
	default:
		v.addError("unknown predicate type: %T", p)
	}
}

func (v *validator) validateEquals(eq Equals) {
	v.validatePath(eq.Field)
	switch eq.Value.(type) {
	case nil:
		v.addError("field %q compared to a missing value", eq.Field)
	case ir.IRNull:
		v.addWarning("field %q compared to null - missing fields never match", eq.Field)
	}
}

func (v *validator) validateBoundEquals(beq BoundEquals) {
	v.validatePath(beq.Field)
	if !v.bound[beq.BoundVar] {
		v.addError("field %q compared to unbound variable %q", beq.Field, beq.BoundVar)
	}
}

func (v *validator) validateAnd(and And) {
	for _, sub := range and.Predicates {
		v.validatePredicate(sub)
	}
}

func (v *validator) validatePath(path string) {
	if path == IDField {
		return
	}
	if strings.Contains(path, `"`) {
		v.addError("field path %q contains a quote", path)
		return
	}
	for _, seg := range strings.Split(path, ".") {
		if seg == "" {
			v.addError("invalid field path %q", path)
			return
		}
	}
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
