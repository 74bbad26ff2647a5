// Package fact holds working-memory facts, the id-indexed store that
// owns them, and the provenance rules that link derived facts to the
// activation that produced them.
//
// Facts reference each other through ir.IRRef ids. Every traversal of
// the fact graph goes through Walk, which carries a visited-id set, so
// cyclic graphs are safe.
package fact

import (
	"fmt"

	"github.com/roach88/rulescript/internal/ir"
)

// Fact is a typed, mutable, identity-bearing record.
type Fact struct {
	ID   int64
	Type *ir.RecordType

	fields     map[string]ir.IRValue
	isInitial  bool
	creatorID  int64
	originRule string
}

// New creates a fact with every declared field at its zero value.
// The id comes from the owning database's record id generator.
func New(id int64, rt *ir.RecordType) *Fact {
	f := &Fact{
		ID:     id,
		Type:   rt,
		fields: make(map[string]ir.IRValue, len(rt.Fields)),
	}
	for _, fd := range rt.Fields {
		f.fields[fd.Name] = ir.ZeroValue(fd.Type)
	}
	return f
}

// TypeName returns the name of the fact's record type.
func (f *Fact) TypeName() string {
	return f.Type.Name
}

// Get returns a field value.
func (f *Fact) Get(name string) (ir.IRValue, bool) {
	v, ok := f.fields[name]
	return v, ok
}

// Set assigns a field after checking it against the record type.
// Facts already in working memory must be changed through the engine,
// which enforces the acting phase and re-dispatches the fact.
func (f *Fact) Set(name string, v ir.IRValue) error {
	fd, ok := f.Type.Field(name)
	if !ok {
		return fmt.Errorf("%s has no field %q", f.Type.Name, name)
	}
	if v == nil {
		v = ir.IRNull{}
	}
	if err := checkKind(fd, v); err != nil {
		return fmt.Errorf("%s.%s: %w", f.Type.Name, name, err)
	}
	f.fields[name] = v
	return nil
}

// SetAll assigns every entry of obj, in sorted key order.
func (f *Fact) SetAll(obj ir.IRObject) error {
	for _, k := range obj.SortedKeys() {
		if err := f.Set(k, obj[k]); err != nil {
			return err
		}
	}
	return nil
}

func checkKind(fd ir.FieldDef, v ir.IRValue) error {
	want := fd.Type
	switch want {
	case ir.TypeAny:
		return nil
	case ir.TypeString, ir.TypeInt, ir.TypeBool, ir.TypeArray, ir.TypeObject:
		if got := ir.Kind(v); got != want {
			return fmt.Errorf("expected %s, got %s", want, got)
		}
		return nil
	default:
		switch v.(type) {
		case ir.IRRef, ir.IRNull:
			return nil
		}
		return fmt.Errorf("expected reference to %s, got %s", want, ir.Kind(v))
	}
}

// Fields returns a snapshot of the field values.
func (f *Fact) Fields() ir.IRObject {
	obj := make(ir.IRObject, len(f.fields))
	for k, v := range f.fields {
		obj[k] = v
	}
	return obj
}

// Ref returns a reference to this fact.
func (f *Fact) Ref() ir.IRRef {
	return ir.IRRef(f.ID)
}

// IsInitial reports whether the fact was in working memory before the
// first dispatch of its run.
func (f *Fact) IsInitial() bool { return f.isInitial }

// MarkInitial flags a seed fact. Provenance never touches initial facts.
func (f *Fact) MarkInitial() { f.isInitial = true }

// CreatorID is the id of the root fact of the activation that first
// inserted this fact, or 0.
func (f *Fact) CreatorID() int64 { return f.creatorID }

// OriginRule is the id of the rule whose action produced this fact.
func (f *Fact) OriginRule() string { return f.originRule }

// String renders the fact for logs and error messages.
func (f *Fact) String() string {
	return fmt.Sprintf("%s#%d", f.Type.Name, f.ID)
}

// refs returns the fact ids referenced by this fact's fields, in field
// declaration order and, inside composite values, element order.
func (f *Fact) refs() []int64 {
	var out []int64
	for _, fd := range f.Type.Fields {
		out = collectRefs(f.fields[fd.Name], out)
	}
	return out
}

func collectRefs(v ir.IRValue, out []int64) []int64 {
	switch val := v.(type) {
	case ir.IRRef:
		out = append(out, int64(val))
	case ir.IRArray:
		for _, elem := range val {
			out = collectRefs(elem, out)
		}
	case ir.IRObject:
		for _, k := range val.SortedKeys() {
			out = collectRefs(val[k], out)
		}
	}
	return out
}
