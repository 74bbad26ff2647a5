package compiler

import (
	"fmt"
	"regexp"

	"cuelang.org/go/cue"

	"github.com/roach88/rulescript/internal/ir"
)

// bindPattern matches names usable as JavaScript parameters.
var bindPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// CompileRule parses a CUE value into a RuleSpec.
//
// The CUE value should be the rule struct itself, e.g.:
//
//	ctx := cuecontext.New()
//	v := ctx.CompileString(`rule: Double: { when: [{type: "Person", bind: "p"}], then: "..." }`)
//	rule, err := CompileRule(v.LookupPath(cue.ParsePath("rule.Double")))
func CompileRule(v cue.Value) (*ir.RuleSpec, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	rule := &ir.RuleSpec{ID: label(v)}

	whenVal := v.LookupPath(cue.ParsePath("when"))
	if !whenVal.Exists() {
		return nil, &CompileError{
			Field:   "when",
			Message: "when clause is required",
			Pos:     v.Pos(),
		}
	}
	iter, err := whenVal.List()
	if err != nil {
		return nil, formatCUEError(err)
	}
	for n := 0; iter.Next(); n++ {
		p, err := parsePattern(iter.Value(), n)
		if err != nil {
			return nil, err
		}
		rule.When = append(rule.When, p)
	}
	if len(rule.When) == 0 {
		return nil, &CompileError{
			Field:   "when",
			Message: "at least one pattern is required",
			Pos:     whenVal.Pos(),
		}
	}

	thenVal := v.LookupPath(cue.ParsePath("then"))
	if !thenVal.Exists() {
		return nil, &CompileError{
			Field:   "then",
			Message: "then clause is required",
			Pos:     v.Pos(),
		}
	}
	rule.Then, err = thenVal.String()
	if err != nil {
		return nil, &CompileError{
			Field:   "then",
			Message: "then must be a string of rule code",
			Pos:     thenVal.Pos(),
		}
	}

	return rule, nil
}

// parsePattern extracts one entry of a when list.
func parsePattern(v cue.Value, n int) (ir.PatternSpec, error) {
	var p ir.PatternSpec
	field := func(name string) string { return fmt.Sprintf("when[%d].%s", n, name) }

	typeVal := v.LookupPath(cue.ParsePath("type"))
	if !typeVal.Exists() {
		return p, &CompileError{
			Field:   field("type"),
			Message: "pattern requires a 'type' field",
			Pos:     v.Pos(),
		}
	}
	typ, err := typeVal.String()
	if err != nil {
		return p, &CompileError{Field: field("type"), Message: "type must be a record type name", Pos: typeVal.Pos()}
	}
	p.Type = typ

	for _, s := range []struct {
		name string
		dst  *string
	}{
		{"bind", &p.Bind},
		{"test", &p.Test},
		{"join", &p.Join},
	} {
		sv := v.LookupPath(cue.ParsePath(s.name))
		if !sv.Exists() {
			continue
		}
		str, err := sv.String()
		if err != nil {
			return p, &CompileError{Field: field(s.name), Message: s.name + " must be a string", Pos: sv.Pos()}
		}
		*s.dst = str
	}
	if p.Bind != "" && !bindPattern.MatchString(p.Bind) {
		return p, &CompileError{
			Field:   field("bind"),
			Message: fmt.Sprintf("invalid bind name %q", p.Bind),
			Pos:     v.LookupPath(cue.ParsePath("bind")).Pos(),
		}
	}

	if mv := v.LookupPath(cue.ParsePath("match")); mv.Exists() {
		val, err := valueFromCUE(mv)
		if err != nil {
			return p, err
		}
		obj, ok := val.(ir.IRObject)
		if !ok {
			return p, &CompileError{Field: field("match"), Message: "match must be a struct", Pos: mv.Pos()}
		}
		p.Match = obj
	}
	return p, nil
}

// valueFromCUE converts a concrete CUE value to an IR value. Struct
// fields keep their declaration order only until the object is built;
// IRObject is unordered.
func valueFromCUE(v cue.Value) (ir.IRValue, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}
	if !v.IsConcrete() {
		return nil, &CompileError{Field: "value", Message: "value must be concrete", Pos: v.Pos()}
	}
	switch v.Kind() {
	case cue.NullKind:
		return ir.IRNull{}, nil
	case cue.BoolKind:
		b, err := v.Bool()
		if err != nil {
			return nil, formatCUEError(err)
		}
		return ir.IRBool(b), nil
	case cue.IntKind:
		i, err := v.Int64()
		if err != nil {
			return nil, formatCUEError(err)
		}
		return ir.IRInt(i), nil
	case cue.StringKind:
		s, err := v.String()
		if err != nil {
			return nil, formatCUEError(err)
		}
		return ir.IRString(s), nil
	case cue.ListKind:
		iter, err := v.List()
		if err != nil {
			return nil, formatCUEError(err)
		}
		arr := ir.IRArray{}
		for iter.Next() {
			elem, err := valueFromCUE(iter.Value())
			if err != nil {
				return nil, err
			}
			arr = append(arr, elem)
		}
		return arr, nil
	case cue.StructKind:
		iter, err := v.Fields()
		if err != nil {
			return nil, formatCUEError(err)
		}
		obj := ir.IRObject{}
		for iter.Next() {
			elem, err := valueFromCUE(iter.Value())
			if err != nil {
				return nil, err
			}
			obj[iter.Label()] = elem
		}
		return obj, nil
	case cue.FloatKind:
		return nil, &CompileError{
			Field:   "value",
			Message: "float values are forbidden - use int instead",
			Pos:     v.Pos(),
		}
	default:
		return nil, &CompileError{
			Field:   "value",
			Message: fmt.Sprintf("unsupported value kind: %v", v.Kind()),
			Pos:     v.Pos(),
		}
	}
}
