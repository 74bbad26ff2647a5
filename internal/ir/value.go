package ir

import (
	"bytes"
	"encoding/json"
	"fmt"
	"slices"
	"strconv"
	"unicode/utf16"
)

// RefKey is the JSON object key that marks a fact reference.
const RefKey = "$ref"

// IRValue is a sealed interface over the values a fact field can hold.
// Only IRNull, IRString, IRInt, IRBool, IRRef, IRArray and IRObject
// implement it. There is no float variant.
type IRValue interface {
	irValue()
}

// IRNull is an unset value. Reference fields start out as IRNull.
type IRNull struct{}

func (IRNull) irValue() {}

// MarshalJSON implements json.Marshaler for IRNull.
func (IRNull) MarshalJSON() ([]byte, error) {
	return []byte("null"), nil
}

// IRString is a string value.
type IRString string

func (IRString) irValue() {}

// IRInt is an integer value. Always int64.
type IRInt int64

func (IRInt) irValue() {}

// IRBool is a boolean value.
type IRBool bool

func (IRBool) irValue() {}

// IRRef references another fact by id. Fact graphs may be cyclic, so a
// field never owns the fact it points at.
type IRRef int64

func (IRRef) irValue() {}

// MarshalJSON encodes a reference as {"$ref": id}.
func (r IRRef) MarshalJSON() ([]byte, error) {
	return []byte(`{"` + RefKey + `":` + strconv.FormatInt(int64(r), 10) + `}`), nil
}

// IRArray is an ordered list of values.
type IRArray []IRValue

func (IRArray) irValue() {}

// IRObject maps string keys to values.
// Use SortedKeys() for deterministic iteration.
type IRObject map[string]IRValue

func (IRObject) irValue() {}

// IRPair is a key-value pair for typed IRObject construction.
type IRPair struct {
	Key   string
	Value IRValue
}

// O is shorthand for IRPair.
// Example: NewIRObjectFromPairs(O("age", IRInt(10)), O("name", IRString("ann")))
func O(key string, value IRValue) IRPair {
	return IRPair{Key: key, Value: value}
}

// NewIRObjectFromPairs creates an IRObject from typed key-value pairs.
func NewIRObjectFromPairs(pairs ...IRPair) IRObject {
	obj := make(IRObject, len(pairs))
	for _, p := range pairs {
		obj[p.Key] = p.Value
	}
	return obj
}

// SortedKeys returns keys in RFC 8785 order (UTF-16 code units).
// Go's native string ordering is UTF-8 and differs for astral runes.
func (obj IRObject) SortedKeys() []string {
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, compareKeysRFC8785)
	return keys
}

func compareKeysRFC8785(a, b string) int {
	return slices.Compare(utf16.Encode([]rune(a)), utf16.Encode([]rune(b)))
}

// Kind names the variant of a value. Used in diagnostics and by the
// field type checks in the engine.
func Kind(v IRValue) string {
	switch v.(type) {
	case nil, IRNull:
		return "null"
	case IRString:
		return "string"
	case IRInt:
		return "int"
	case IRBool:
		return "bool"
	case IRRef:
		return "ref"
	case IRArray:
		return "array"
	case IRObject:
		return "object"
	default:
		return fmt.Sprintf("%T", v)
	}
}

// MarshalJSON implements json.Marshaler for IRObject with sorted keys.
// This is NOT canonical marshaling. Use MarshalCanonical for hashing.
func (obj IRObject) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range obj.SortedKeys() {
		if i > 0 {
			buf.WriteByte(',')
		}
		keyBytes, err := json.Marshal(k)
		if err != nil {
			return nil, fmt.Errorf("marshal key %q: %w", k, err)
		}
		buf.Write(keyBytes)
		buf.WriteByte(':')
		valBytes, err := MarshalIRValue(obj[k])
		if err != nil {
			return nil, fmt.Errorf("marshal value for key %q: %w", k, err)
		}
		buf.Write(valBytes)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// MarshalJSON implements json.Marshaler for IRArray.
func (arr IRArray) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('[')
	for i, elem := range arr {
		if i > 0 {
			buf.WriteByte(',')
		}
		b, err := MarshalIRValue(elem)
		if err != nil {
			return nil, fmt.Errorf("array[%d]: %w", i, err)
		}
		buf.Write(b)
	}
	buf.WriteByte(']')
	return buf.Bytes(), nil
}

// MarshalIRValue marshals an IRValue to JSON bytes.
func MarshalIRValue(v IRValue) ([]byte, error) {
	switch val := v.(type) {
	case nil, IRNull:
		return []byte("null"), nil
	case IRString:
		return json.Marshal(string(val))
	case IRInt:
		return json.Marshal(int64(val))
	case IRBool:
		return json.Marshal(bool(val))
	case IRRef:
		return val.MarshalJSON()
	case IRArray:
		return val.MarshalJSON()
	case IRObject:
		return val.MarshalJSON()
	default:
		return nil, fmt.Errorf("unknown IRValue type: %T", v)
	}
}

// UnmarshalJSON implements json.Unmarshaler for IRObject.
func (obj *IRObject) UnmarshalJSON(data []byte) error {
	v, err := UnmarshalIRValue(data)
	if err != nil {
		return err
	}
	o, ok := v.(IRObject)
	if !ok {
		return fmt.Errorf("expected object, got %s", Kind(v))
	}
	*obj = o
	return nil
}

// UnmarshalJSON implements json.Unmarshaler for IRArray.
func (arr *IRArray) UnmarshalJSON(data []byte) error {
	v, err := UnmarshalIRValue(data)
	if err != nil {
		return err
	}
	a, ok := v.(IRArray)
	if !ok {
		return fmt.Errorf("expected array, got %s", Kind(v))
	}
	*arr = a
	return nil
}

// UnmarshalIRValue decodes JSON into an IRValue. Floats are rejected;
// {"$ref": n} decodes to IRRef(n).
func UnmarshalIRValue(data []byte) (IRValue, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var raw any
	if err := dec.Decode(&raw); err != nil {
		return nil, err
	}
	return FromGo(raw)
}

// FromGo converts a decoded Go value (JSON, YAML, CUE or script export)
// into an IRValue. Integral floats are accepted as ints; anything with a
// fractional part is rejected.
func FromGo(v any) (IRValue, error) {
	switch val := v.(type) {
	case nil:
		return IRNull{}, nil
	case IRValue:
		return val, nil
	case bool:
		return IRBool(val), nil
	case string:
		return IRString(val), nil
	case int:
		return IRInt(val), nil
	case int32:
		return IRInt(val), nil
	case int64:
		return IRInt(val), nil
	case uint64:
		if val > 1<<63-1 {
			return nil, fmt.Errorf("number out of int64 range: %d", val)
		}
		return IRInt(val), nil
	case float64:
		if val != float64(int64(val)) {
			return nil, fmt.Errorf("floats are not supported: %v", val)
		}
		return IRInt(int64(val)), nil
	case json.Number:
		n, err := val.Int64()
		if err != nil {
			return nil, fmt.Errorf("floats are not supported: %s", val)
		}
		return IRInt(n), nil
	case []any:
		arr := make(IRArray, len(val))
		for i, elem := range val {
			irElem, err := FromGo(elem)
			if err != nil {
				return nil, fmt.Errorf("array[%d]: %w", i, err)
			}
			arr[i] = irElem
		}
		return arr, nil
	case map[string]any:
		if ref, ok := refFromMap(val); ok {
			return ref, nil
		}
		obj := make(IRObject, len(val))
		for k, elem := range val {
			irElem, err := FromGo(elem)
			if err != nil {
				return nil, fmt.Errorf("object[%q]: %w", k, err)
			}
			obj[k] = irElem
		}
		return obj, nil
	default:
		return nil, fmt.Errorf("unsupported type: %T", v)
	}
}

func refFromMap(m map[string]any) (IRRef, bool) {
	if len(m) != 1 {
		return 0, false
	}
	raw, ok := m[RefKey]
	if !ok {
		return 0, false
	}
	n, err := FromGo(raw)
	if err != nil {
		return 0, false
	}
	id, ok := n.(IRInt)
	if !ok {
		return 0, false
	}
	return IRRef(id), true
}

// ToGo converts an IRValue into plain Go values (string, int64, bool,
// []any, map[string]any, nil). References become {"$ref": id} maps.
func ToGo(v IRValue) any {
	switch val := v.(type) {
	case nil, IRNull:
		return nil
	case IRString:
		return string(val)
	case IRInt:
		return int64(val)
	case IRBool:
		return bool(val)
	case IRRef:
		return map[string]any{RefKey: int64(val)}
	case IRArray:
		out := make([]any, len(val))
		for i, elem := range val {
			out[i] = ToGo(elem)
		}
		return out
	case IRObject:
		out := make(map[string]any, len(val))
		for k, elem := range val {
			out[k] = ToGo(elem)
		}
		return out
	default:
		return nil
	}
}
