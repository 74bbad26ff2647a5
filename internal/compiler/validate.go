package compiler

import (
	"fmt"

	"github.com/hashicorp/go-multierror"

	"github.com/roach88/rulescript/internal/ir"
)

// Validation error codes (E100-E199)
const (
	// Record errors (E101-E109)
	ErrDuplicateName      = "E101" // duplicate record, field or rule name
	ErrUnknownExtends     = "E102" // extends names an undefined record
	ErrExtendsCycle       = "E103" // record extends itself, directly or not
	ErrInvalidFieldType   = "E104" // field type is neither a kind nor a record
	ErrFloatTypeForbidden = "E105" // float types not allowed
	ErrOutputShape        = "E106" // output record lacks string path/content

	// Rule errors (E110-E119)
	ErrNoPatterns      = "E110" // rule has no patterns
	ErrUnknownType     = "E111" // pattern names an undefined record
	ErrUnknownField    = "E112" // match names a field the record lacks
	ErrDuplicateBind   = "E113" // two patterns bind the same name
	ErrJoinOnFirst     = "E114" // first pattern carries a join
	ErrEmptyAction     = "E115" // then is empty
	ErrMatchKind       = "E116" // match literal does not fit the field type
	ErrUnboundPatterns = "E117" // join on a rule with nothing bound

	// Seed fact errors (E120-E129)
	ErrSeedUnknownType  = "E120" // seed names an undefined record
	ErrSeedUnknownField = "E121" // seed sets a field the record lacks
	ErrSeedLabel        = "E122" // duplicate or unknown label
)

// ValidationError represents a schema validation error.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

// ValidateRuleset checks a compiled ruleset. It reports every problem it
// finds, not just the first, as a *multierror.Error of ValidationErrors.
// It returns nil when the ruleset is valid.
func ValidateRuleset(rs ir.Ruleset) error {
	var result *multierror.Error
	add := func(field, code, format string, args ...any) {
		result = multierror.Append(result, ValidationError{
			Field:   field,
			Message: fmt.Sprintf(format, args...),
			Code:    code,
		})
	}

	records := make(map[string]*ir.RecordType, len(rs.Records))
	for i := range rs.Records {
		rt := &rs.Records[i]
		if _, dup := records[rt.Name]; dup {
			add(fmt.Sprintf("records[%d].name", i), ErrDuplicateName, "duplicate record name: %q", rt.Name)
			continue
		}
		records[rt.Name] = rt
	}

	for i, rt := range rs.Records {
		path := fmt.Sprintf("record.%s", rt.Name)
		if rt.Extends != "" {
			if _, ok := records[rt.Extends]; !ok {
				add(path+".extends", ErrUnknownExtends, "unknown record %q", rt.Extends)
			} else if extendsCycle(records, rt.Name) {
				add(path+".extends", ErrExtendsCycle, "record %q extends itself", rt.Name)
			}
		}
		seen := make(map[string]bool, len(rt.Fields))
		for _, fd := range rt.Fields {
			fpath := fmt.Sprintf("%s.fields.%s", path, fd.Name)
			if seen[fd.Name] {
				add(fpath, ErrDuplicateName, "duplicate field name: %q", fd.Name)
			}
			seen[fd.Name] = true
			switch {
			case isFloatType(fd.Type):
				add(fpath, ErrFloatTypeForbidden, "float type forbidden for field %q, use int instead", fd.Name)
			case !ir.IsScalarType(fd.Type) && records[fd.Type] == nil:
				add(fpath, ErrInvalidFieldType, "invalid type %q for field %q", fd.Type, fd.Name)
			}
		}
		if rt.Output {
			for _, name := range []string{"path", "content"} {
				if fd, ok := rs.Records[i].Field(name); !ok || fd.Type != ir.TypeString {
					add(path+".output", ErrOutputShape, "output record needs a string field %q", name)
				}
			}
		}
	}

	ruleIDs := make(map[string]bool, len(rs.Rules))
	for _, r := range rs.Rules {
		path := fmt.Sprintf("rule.%s", r.ID)
		if ruleIDs[r.ID] {
			add(path, ErrDuplicateName, "duplicate rule id: %q", r.ID)
		}
		ruleIDs[r.ID] = true

		if len(r.When) == 0 {
			add(path+".when", ErrNoPatterns, "rule has no patterns")
		}
		if r.Then == "" {
			add(path+".then", ErrEmptyAction, "then is empty")
		}

		binds := make(map[string]bool)
		for n, p := range r.When {
			ppath := fmt.Sprintf("%s.when[%d]", path, n)
			rt, ok := records[p.Type]
			if !ok {
				add(ppath+".type", ErrUnknownType, "unknown record %q", p.Type)
			}
			if p.Bind != "" {
				if binds[p.Bind] {
					add(ppath+".bind", ErrDuplicateBind, "%q is already bound", p.Bind)
				}
				binds[p.Bind] = true
			}
			if p.Join != "" {
				if n == 0 {
					add(ppath+".join", ErrJoinOnFirst, "the first pattern cannot join")
				} else if len(binds) == 0 {
					add(ppath+".join", ErrUnboundPatterns, "join has no bound names to test")
				}
			}
			if rt == nil {
				continue
			}
			for _, k := range p.Match.SortedKeys() {
				fd, ok := rt.Field(k)
				if !ok {
					add(ppath+".match."+k, ErrUnknownField, "%s has no field %q", rt.Name, k)
					continue
				}
				if !literalFits(fd.Type, p.Match[k]) {
					add(ppath+".match."+k, ErrMatchKind, "%s literal cannot equal a %s field", ir.Kind(p.Match[k]), fd.Type)
				}
			}
		}
	}

	labels := make(map[string]bool)
	for n, s := range rs.Facts {
		if s.Label == "" {
			continue
		}
		if labels[s.Label] {
			add(fmt.Sprintf("facts[%d].label", n), ErrSeedLabel, "duplicate label %q", s.Label)
		}
		labels[s.Label] = true
	}
	for n, s := range rs.Facts {
		path := fmt.Sprintf("facts[%d]", n)
		rt, ok := records[s.Type]
		if !ok {
			add(path+".type", ErrSeedUnknownType, "unknown record %q", s.Type)
			continue
		}
		for _, k := range s.Fields.SortedKeys() {
			if _, ok := rt.Field(k); !ok {
				add(path+".fields."+k, ErrSeedUnknownField, "%s has no field %q", rt.Name, k)
			}
			if label, ok := ir.SeedLabel(s.Fields[k]); ok && !labels[label] {
				add(path+".fields."+k, ErrSeedLabel, "unknown label %q", label)
			}
		}
	}

	return result.ErrorOrNil()
}

// Errors flattens a ValidateRuleset result into its ValidationErrors.
func Errors(err error) []ValidationError {
	merr, ok := err.(*multierror.Error)
	if !ok {
		return nil
	}
	out := make([]ValidationError, 0, len(merr.Errors))
	for _, e := range merr.Errors {
		if ve, ok := e.(ValidationError); ok {
			out = append(out, ve)
		}
	}
	return out
}

// extendsCycle reports whether following extends from name returns to it.
func extendsCycle(records map[string]*ir.RecordType, name string) bool {
	seen := map[string]bool{}
	for cur := records[name].Extends; cur != ""; {
		if cur == name {
			return true
		}
		if seen[cur] {
			return false
		}
		seen[cur] = true
		rt, ok := records[cur]
		if !ok {
			return false
		}
		cur = rt.Extends
	}
	return false
}

// literalFits reports whether a match literal could equal a field value.
func literalFits(fieldType string, v ir.IRValue) bool {
	if _, isNull := v.(ir.IRNull); isNull {
		return true
	}
	switch fieldType {
	case ir.TypeAny:
		return true
	case ir.TypeString, ir.TypeInt, ir.TypeBool, ir.TypeArray, ir.TypeObject:
		return ir.Kind(v) == fieldType
	}
	_, isRef := v.(ir.IRRef)
	return isRef
}

// isFloatType checks if a type string represents a float type.
func isFloatType(t string) bool {
	floatTypes := map[string]bool{
		"float":   true,
		"float32": true,
		"float64": true,
		"number":  true,
		"double":  true,
	}
	return floatTypes[t]
}
