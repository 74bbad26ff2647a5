package harness

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/roach88/rulescript/internal/ir"
	"github.com/roach88/rulescript/internal/store"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string             // Assertion type for categorization
	Expected string             // Human-readable expected outcome
	Actual   string             // Human-readable actual outcome
	Facts    []store.FactRecord // Facts of the asserted type, for context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Facts) > 0 {
		fmt.Fprintf(&buf, "\nFacts:\n")
		for _, f := range e.Facts {
			fmt.Fprintf(&buf, "  [%d] %s %s\n", f.ID, f.Type, formatFields(f.Fields))
		}
	}
	return buf.String()
}

// AssertionContext provides the persisted run for provenance assertions.
type AssertionContext struct {
	Store *store.Store
	Ctx   context.Context
	RunID string
}

// EvaluateAssertions evaluates all assertions against the result.
// Returns a slice of error messages for failed assertions.
// The actx parameter provides database access for provenance assertions.
func EvaluateAssertions(result *Result, assertions []Assertion, actx *AssertionContext) []string {
	var errors []string

	for i, assertion := range assertions {
		var err error

		switch assertion.Type {
		case AssertFactCount:
			err = assertFactCount(result, assertion)
		case AssertFactExists:
			err = assertFactExists(result, assertion)
		case AssertCreatedBy:
			err = assertCreatedBy(result, assertion)
		case AssertFired:
			err = assertFired(result, assertion)
		case AssertProvenance:
			if actx == nil || actx.Store == nil {
				err = fmt.Errorf("assertion[%d]: provenance requires database context", i)
			} else {
				err = assertProvenance(actx, result, assertion)
			}
		case AssertOutput:
			err = assertOutput(result, assertion)
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, assertion.Type)
		}

		if err != nil {
			errors = append(errors, err.Error())
		}
	}

	return errors
}

// matching returns the facts of the assertion's type whose fields
// contain the assertion's fields.
func matching(result *Result, a Assertion) ([]store.FactRecord, []store.FactRecord, error) {
	want, err := expectedFields(a.Fields)
	if err != nil {
		return nil, nil, err
	}
	var ofType, out []store.FactRecord
	for _, f := range result.Facts {
		if f.Type != a.FactType || !f.InMemory {
			continue
		}
		ofType = append(ofType, f)
		if matchFields(f.Fields, want) {
			out = append(out, f)
		}
	}
	return out, ofType, nil
}

func assertFactCount(result *Result, a Assertion) error {
	found, ofType, err := matching(result, a)
	if err != nil {
		return err
	}
	if len(found) != *a.Count {
		return &AssertionError{
			Type:     AssertFactCount,
			Expected: fmt.Sprintf("%d %s facts%s", *a.Count, a.FactType, describeFields(a.Fields)),
			Actual:   fmt.Sprintf("%d", len(found)),
			Facts:    ofType,
		}
	}
	return nil
}

func assertFactExists(result *Result, a Assertion) error {
	found, ofType, err := matching(result, a)
	if err != nil {
		return err
	}
	if len(found) == 0 {
		return &AssertionError{
			Type:     AssertFactExists,
			Expected: fmt.Sprintf("a %s fact%s", a.FactType, describeFields(a.Fields)),
			Actual:   "not found in working memory",
			Facts:    ofType,
		}
	}
	return nil
}

// assertCreatedBy passes if any matching fact was inserted by the rule
// (and, if creator_type is set, its creator has that type).
func assertCreatedBy(result *Result, a Assertion) error {
	found, ofType, err := matching(result, a)
	if err != nil {
		return err
	}
	var seen []string
	for _, f := range found {
		if f.OriginRule != a.Rule {
			seen = append(seen, fmt.Sprintf("[%d] by %q", f.ID, f.OriginRule))
			continue
		}
		if a.CreatorType == "" {
			return nil
		}
		creator, ok := result.Fact(f.CreatorID)
		if ok && creator.Type == a.CreatorType {
			return nil
		}
		seen = append(seen, fmt.Sprintf("[%d] by %q from %s", f.ID, f.OriginRule, creator.Type))
	}

	expected := fmt.Sprintf("a %s fact%s inserted by %s", a.FactType, describeFields(a.Fields), a.Rule)
	if a.CreatorType != "" {
		expected += " from a " + a.CreatorType
	}
	actual := "no matching fact"
	if len(seen) > 0 {
		actual = strings.Join(seen, ", ")
	}
	return &AssertionError{Type: AssertCreatedBy, Expected: expected, Actual: actual, Facts: ofType}
}

func assertFired(result *Result, a Assertion) error {
	count := 0
	for _, act := range result.Activations {
		if act.Rule == a.Rule {
			count++
		}
	}
	switch {
	case a.Count == nil && count == 0:
		return &AssertionError{
			Type:     AssertFired,
			Expected: fmt.Sprintf("%s to fire", a.Rule),
			Actual:   "never fired",
		}
	case a.Count != nil && count != *a.Count:
		return &AssertionError{
			Type:     AssertFired,
			Expected: fmt.Sprintf("%d firings of %s", *a.Count, a.Rule),
			Actual:   fmt.Sprintf("%d firings", count),
		}
	}
	return nil
}

// assertProvenance reads the creator chain of the first matching fact
// from the store and compares the origin rules along it.
func assertProvenance(actx *AssertionContext, result *Result, a Assertion) error {
	found, ofType, err := matching(result, a)
	if err != nil {
		return err
	}
	if len(found) == 0 {
		return &AssertionError{
			Type:     AssertProvenance,
			Expected: fmt.Sprintf("a %s fact%s", a.FactType, describeFields(a.Fields)),
			Actual:   "not found in working memory",
			Facts:    ofType,
		}
	}
	chain, err := actx.Store.ProvenanceChain(actx.Ctx, actx.RunID, found[0].ID)
	if err != nil {
		return err
	}
	rules := make([]string, len(chain))
	for i, f := range chain {
		rules[i] = f.OriginRule
	}
	if strings.Join(rules, "\x00") != strings.Join(a.Chain, "\x00") {
		return &AssertionError{
			Type:     AssertProvenance,
			Expected: fmt.Sprintf("chain %q", a.Chain),
			Actual:   fmt.Sprintf("chain %q", rules),
			Facts:    chain,
		}
	}
	return nil
}

func assertOutput(result *Result, a Assertion) error {
	content, ok := result.Outputs[a.Path]
	if !ok {
		paths := make([]string, 0, len(result.Outputs))
		for p := range result.Outputs {
			paths = append(paths, p)
		}
		sort.Strings(paths)
		return &AssertionError{
			Type:     AssertOutput,
			Expected: fmt.Sprintf("output %s", a.Path),
			Actual:   fmt.Sprintf("written: %v", paths),
		}
	}
	if a.Content != nil && content != *a.Content {
		return &AssertionError{
			Type:     AssertOutput,
			Expected: fmt.Sprintf("%s = %q", a.Path, *a.Content),
			Actual:   fmt.Sprintf("%s = %q", a.Path, content),
		}
	}
	return nil
}

// expectedFields converts YAML-decoded field values to IR values.
func expectedFields(fields map[string]any) (ir.IRObject, error) {
	out := make(ir.IRObject, len(fields))
	for k, v := range fields {
		iv, err := ir.FromGo(v)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", k, err)
		}
		out[k] = iv
	}
	return out, nil
}

// matchFields checks if actual contains all expected fields (subset match).
// Extra fields in actual are ignored.
func matchFields(actual, expected ir.IRObject) bool {
	for k, want := range expected {
		got, ok := actual[k]
		if !ok || !ir.Equal(got, want) {
			return false
		}
	}
	return true
}

func describeFields(fields map[string]any) string {
	if len(fields) == 0 {
		return ""
	}
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, fields[k]))
	}
	return " with " + strings.Join(parts, " AND ")
}

func formatFields(fields ir.IRObject) string {
	data, err := ir.MarshalCanonical(fields)
	if err != nil {
		return fmt.Sprintf("%v", fields)
	}
	return string(data)
}
