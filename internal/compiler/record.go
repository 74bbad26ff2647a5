package compiler

import (
	"fmt"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"

	"github.com/roach88/rulescript/internal/ir"
)

// CompileRecord parses a CUE value into a RecordType.
//
// The CUE value should be the record struct itself, e.g.:
//
//	ctx := cuecontext.New()
//	v := ctx.CompileString(`record: Person: { fields: { name: string, age: int } }`)
//	rt, err := CompileRecord(v.LookupPath(cue.ParsePath("record.Person")))
//
// A field is declared either with a CUE type (string, int, bool, [...],
// {...}) or with a string naming a record type or one of the scalar
// kinds ("any" included). Fields keep their declaration order.
func CompileRecord(v cue.Value) (*ir.RecordType, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	rt := &ir.RecordType{Name: label(v)}

	if ext := v.LookupPath(cue.ParsePath("extends")); ext.Exists() {
		s, err := ext.String()
		if err != nil {
			return nil, &CompileError{Field: "extends", Message: "extends must be a record type name", Pos: ext.Pos()}
		}
		rt.Extends = s
	}

	if out := v.LookupPath(cue.ParsePath("output")); out.Exists() {
		b, err := out.Bool()
		if err != nil {
			return nil, &CompileError{Field: "output", Message: "output must be a bool", Pos: out.Pos()}
		}
		rt.Output = b
	}

	fieldsVal := v.LookupPath(cue.ParsePath("fields"))
	if !fieldsVal.Exists() {
		return rt, nil // a record may carry no data
	}
	iter, err := fieldsVal.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}
	for iter.Next() {
		name := iter.Label()
		typ, err := extractTypeName(iter.Value())
		if err != nil {
			return nil, err
		}
		rt.Fields = append(rt.Fields, ir.FieldDef{Name: name, Type: typ})
	}
	return rt, nil
}

// label returns the last selector of v's path, unquoted.
func label(v cue.Value) string {
	sels := v.Path().Selectors()
	if len(sels) == 0 {
		return ""
	}
	return strings.Trim(sels[len(sels)-1].String(), `"`)
}

// extractTypeName converts a CUE field declaration to an IR type string.
// Floats are forbidden.
func extractTypeName(v cue.Value) (string, error) {
	if v.IsConcrete() && v.Kind() == cue.StringKind {
		s, err := v.String()
		if err != nil {
			return "", formatCUEError(err)
		}
		return s, nil
	}
	switch v.IncompleteKind() {
	case cue.StringKind:
		return ir.TypeString, nil
	case cue.IntKind:
		return ir.TypeInt, nil
	case cue.BoolKind:
		return ir.TypeBool, nil
	case cue.ListKind:
		return ir.TypeArray, nil
	case cue.StructKind:
		return ir.TypeObject, nil
	case cue.TopKind:
		return ir.TypeAny, nil
	case cue.FloatKind, cue.NumberKind:
		return "", &CompileError{
			Field:   "type",
			Message: "float types are forbidden - use int instead",
			Pos:     v.Pos(),
		}
	default:
		return "", &CompileError{
			Field:   "type",
			Message: fmt.Sprintf("unsupported type kind: %v", v.IncompleteKind()),
			Pos:     v.Pos(),
		}
	}
}

// CompileError represents a compilation error with source position.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}

	// CUE errors may contain multiple errors
	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	// Return first error with position info
	firstErr := errs[0]
	positions := errors.Positions(firstErr)
	if len(positions) > 0 {
		return &CompileError{
			Field:   "cue",
			Message: firstErr.Error(),
			Pos:     positions[0],
		}
	}

	return err
}
