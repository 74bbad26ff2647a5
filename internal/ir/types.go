package ir

import "fmt"

// Scalar field type names. Any other field type names a record type and
// holds an IRRef (or IRNull while unset).
const (
	TypeString = "string"
	TypeInt    = "int"
	TypeBool   = "bool"
	TypeArray  = "array"
	TypeObject = "object"
	TypeAny    = "any"
)

// IsScalarType reports whether t is one of the built-in field types.
func IsScalarType(t string) bool {
	switch t {
	case TypeString, TypeInt, TypeBool, TypeArray, TypeObject, TypeAny:
		return true
	}
	return false
}

// FieldDef is one declared field of a record type.
type FieldDef struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// RecordType describes a fact type.
//
// Fields holds the complete field list in declaration order, inherited
// fields first. Output marks types that an output writer persists after
// a run.
type RecordType struct {
	Name    string     `json:"name"`
	Extends string     `json:"extends,omitempty"`
	Fields  []FieldDef `json:"fields"`
	Output  bool       `json:"output,omitempty"`
}

// Field looks up a field definition by name.
func (rt *RecordType) Field(name string) (FieldDef, bool) {
	for _, f := range rt.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return FieldDef{}, false
}

// Validate checks that the type is well formed on its own: it has a
// name, and every field has a name and a type and appears once. Type
// names that refer to other records are checked by the compiler.
func (rt *RecordType) Validate() error {
	if rt.Name == "" {
		return fmt.Errorf("record type has no name")
	}
	seen := make(map[string]bool, len(rt.Fields))
	for i, f := range rt.Fields {
		if f.Name == "" {
			return fmt.Errorf("%s: field %d has no name", rt.Name, i)
		}
		if f.Type == "" {
			return fmt.Errorf("%s.%s: missing type", rt.Name, f.Name)
		}
		if seen[f.Name] {
			return fmt.Errorf("%s.%s: duplicate field", rt.Name, f.Name)
		}
		seen[f.Name] = true
	}
	return nil
}

// FieldNames returns field names in declaration order.
func (rt *RecordType) FieldNames() []string {
	names := make([]string, len(rt.Fields))
	for i, f := range rt.Fields {
		names[i] = f.Name
	}
	return names
}

// ZeroValue returns the initial value of a field of the given type.
func ZeroValue(fieldType string) IRValue {
	switch fieldType {
	case TypeString:
		return IRString("")
	case TypeInt:
		return IRInt(0)
	case TypeBool:
		return IRBool(false)
	case TypeArray:
		return IRArray{}
	case TypeObject:
		return IRObject{}
	default:
		return IRNull{}
	}
}

// PatternSpec is one condition of a rule.
//
// A pattern matches facts whose type is Type or extends it. Match holds
// literal field constraints compared with CompareValues. Test is a
// boolean expression over the fact (visible under Bind). Join is a
// boolean expression over every binding made so far and is only legal
// from the second pattern on.
type PatternSpec struct {
	Type  string   `json:"type"`
	Bind  string   `json:"bind,omitempty"`
	Match IRObject `json:"match,omitempty"`
	Test  string   `json:"test,omitempty"`
	Join  string   `json:"join,omitempty"`
}

// RuleSpec is a compiled rule: its patterns in declaration order and the
// action body run once per complete match.
type RuleSpec struct {
	ID   string        `json:"id"`
	When []PatternSpec `json:"when"`
	Then string        `json:"then"`
}

// SeedFact is an initial fact declared alongside the rules.
type SeedFact struct {
	Label  string   `json:"label,omitempty"`
	Type   string   `json:"type"`
	Fields IRObject `json:"fields"`
}

// Ruleset is everything a compiled rule package declares.
type Ruleset struct {
	Records []RecordType `json:"records"`
	Rules   []RuleSpec   `json:"rules"`
	Facts   []SeedFact   `json:"facts,omitempty"`
}

// Record returns the named record type.
func (rs *Ruleset) Record(name string) (*RecordType, bool) {
	for i := range rs.Records {
		if rs.Records[i].Name == name {
			return &rs.Records[i], true
		}
	}
	return nil, false
}

// LabelKey marks a seed fact field that references another seed fact by
// label, written {"$label": "alice"}. Labels resolve to IRRef when the
// seeds are materialized.
const LabelKey = "$label"

// SeedLabel reports whether v is a {"$label": name} reference.
func SeedLabel(v IRValue) (string, bool) {
	obj, ok := v.(IRObject)
	if !ok || len(obj) != 1 {
		return "", false
	}
	s, ok := obj[LabelKey].(IRString)
	return string(s), ok
}
