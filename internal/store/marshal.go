package store

import (
	"encoding/json"
	"fmt"

	"github.com/roach88/rulescript/internal/ir"
)

// marshalFields converts fact fields to canonical JSON TEXT for storage.
// Uses RFC 8785 canonical JSON for deterministic serialization.
func marshalFields(fields ir.IRObject) (string, error) {
	if fields == nil {
		fields = ir.IRObject{}
	}
	data, err := ir.MarshalCanonical(fields)
	if err != nil {
		return "", fmt.Errorf("marshal fields: %w", err)
	}
	return string(data), nil
}

// unmarshalFields parses canonical JSON TEXT to IRObject.
// Uses ir.IRObject.UnmarshalJSON which properly handles large integers via json.Number
// to avoid float64 precision loss for values > 2^53, and restores {"$ref": id}
// objects as references.
func unmarshalFields(data string) (ir.IRObject, error) {
	if data == "" || data == "{}" {
		return ir.IRObject{}, nil
	}
	var obj ir.IRObject
	if err := json.Unmarshal([]byte(data), &obj); err != nil {
		return nil, fmt.Errorf("unmarshal fields: %w", err)
	}
	return obj, nil
}

// marshalIDs converts a fact id list to a JSON array.
func marshalIDs(ids []int64) (string, error) {
	if ids == nil {
		ids = []int64{}
	}
	data, err := json.Marshal(ids)
	if err != nil {
		return "", fmt.Errorf("marshal fact ids: %w", err)
	}
	return string(data), nil
}

// unmarshalIDs parses a JSON array of fact ids.
func unmarshalIDs(data string) ([]int64, error) {
	ids := []int64{}
	if data == "" {
		return ids, nil
	}
	if err := json.Unmarshal([]byte(data), &ids); err != nil {
		return nil, fmt.Errorf("unmarshal fact ids: %w", err)
	}
	return ids, nil
}
