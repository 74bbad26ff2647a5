package script

import (
	"fmt"

	"github.com/dop251/goja"

	"github.com/roach88/rulescript/internal/fact"
	"github.com/roach88/rulescript/internal/ir"
)

const (
	idKey   = "$id"
	typeKey = "$type"
)

// view builds the JavaScript object for f.
func (i *Interpreter) view(f *fact.Fact) goja.Value {
	obj := i.vm.NewObject()
	_ = obj.Set(idKey, f.ID)
	_ = obj.Set(typeKey, f.TypeName())
	fields := f.Fields()
	for _, k := range fields.SortedKeys() {
		_ = obj.Set(k, i.toJS(fields[k]))
	}
	return obj
}

// toJS converts an IR value into a JavaScript value.
func (i *Interpreter) toJS(v ir.IRValue) goja.Value {
	return i.vm.ToValue(ir.ToGo(v))
}

// fromJS converts a JavaScript value into an IR value. Fact objects
// become references to the fact.
func fromJS(v goja.Value) (ir.IRValue, error) {
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return ir.IRNull{}, nil
	}
	return fromExport(v.Export())
}

func fromExport(x any) (ir.IRValue, error) {
	switch val := x.(type) {
	case map[string]any:
		if id, ok := val[idKey]; ok {
			n, err := ir.FromGo(id)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", idKey, err)
			}
			ref, ok := n.(ir.IRInt)
			if !ok {
				return nil, fmt.Errorf("%s must be an integer, got %s", idKey, ir.Kind(n))
			}
			return ir.IRRef(ref), nil
		}
		if _, ok := val[ir.RefKey]; ok && len(val) == 1 {
			return ir.FromGo(val)
		}
		obj := make(ir.IRObject, len(val))
		for k, elem := range val {
			v, err := fromExport(elem)
			if err != nil {
				return nil, fmt.Errorf("object[%q]: %w", k, err)
			}
			obj[k] = v
		}
		return obj, nil
	case []any:
		arr := make(ir.IRArray, len(val))
		for n, elem := range val {
			v, err := fromExport(elem)
			if err != nil {
				return nil, fmt.Errorf("array[%d]: %w", n, err)
			}
			arr[n] = v
		}
		return arr, nil
	default:
		return ir.FromGo(val)
	}
}

// fieldsArg converts an optional fields argument into an object.
func fieldsArg(v goja.Value) (ir.IRObject, error) {
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return ir.IRObject{}, nil
	}
	conv, err := fromJS(v)
	if err != nil {
		return nil, err
	}
	obj, ok := conv.(ir.IRObject)
	if !ok {
		return nil, fmt.Errorf("fields must be an object, got %s", ir.Kind(conv))
	}
	return obj, nil
}

// factID extracts a fact id from a fact object, a {$ref: id} object or a
// bare number.
func factID(v goja.Value) (int64, error) {
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return 0, fmt.Errorf("expected a fact, got %v", v)
	}
	conv, err := fromJS(v)
	if err != nil {
		return 0, err
	}
	switch val := conv.(type) {
	case ir.IRRef:
		return int64(val), nil
	case ir.IRInt:
		return int64(val), nil
	}
	return 0, fmt.Errorf("expected a fact, got %s", ir.Kind(conv))
}
