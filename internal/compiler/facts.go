package compiler

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"cuelang.org/go/cue"
	"gopkg.in/yaml.v3"

	"github.com/roach88/rulescript/internal/ir"
)

// CompileFacts parses a CUE list of seed facts:
//
//	facts: [
//		{label: "ada", type: "Person", fields: {name: "Ada", age: 36}},
//		{type: "Badge", fields: {owner: {"$label": "ada"}}},
//	]
func CompileFacts(v cue.Value) ([]ir.SeedFact, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}
	iter, err := v.List()
	if err != nil {
		return nil, formatCUEError(err)
	}
	var seeds []ir.SeedFact
	for n := 0; iter.Next(); n++ {
		item := iter.Value()
		var s ir.SeedFact

		typeVal := item.LookupPath(cue.ParsePath("type"))
		if !typeVal.Exists() {
			return nil, &CompileError{
				Field:   fmt.Sprintf("facts[%d].type", n),
				Message: "fact requires a 'type' field",
				Pos:     item.Pos(),
			}
		}
		if s.Type, err = typeVal.String(); err != nil {
			return nil, formatCUEError(err)
		}

		if lv := item.LookupPath(cue.ParsePath("label")); lv.Exists() {
			if s.Label, err = lv.String(); err != nil {
				return nil, formatCUEError(err)
			}
		}

		s.Fields = ir.IRObject{}
		if fv := item.LookupPath(cue.ParsePath("fields")); fv.Exists() {
			val, err := valueFromCUE(fv)
			if err != nil {
				return nil, err
			}
			obj, ok := val.(ir.IRObject)
			if !ok {
				return nil, &CompileError{
					Field:   fmt.Sprintf("facts[%d].fields", n),
					Message: "fields must be a struct",
					Pos:     fv.Pos(),
				}
			}
			s.Fields = obj
		}
		seeds = append(seeds, s)
	}
	return seeds, nil
}

// SeedEntry is the YAML shape of a seed fact.
type SeedEntry struct {
	Label  string         `yaml:"label"`
	Type   string         `yaml:"type"`
	Fields map[string]any `yaml:"fields"`
}

// LoadSeedFacts reads seed facts from a YAML file holding a list of
// {label, type, fields} entries.
func LoadSeedFacts(path string) ([]ir.SeedFact, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading facts file: %w", err)
	}
	seeds, err := ParseSeedFacts(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return seeds, nil
}

// ParseSeedFacts decodes YAML seed facts. Unknown keys are rejected.
func ParseSeedFacts(data []byte) ([]ir.SeedFact, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var raw []SeedEntry
	if err := dec.Decode(&raw); err != nil && err != io.EOF {
		return nil, fmt.Errorf("parsing facts: %w", err)
	}
	return SeedFactsFromYAML(raw)
}

// SeedFactsFromYAML converts decoded YAML entries into seed facts.
// Fields are converted with ir.FromGo, so floats are rejected.
func SeedFactsFromYAML(raw []SeedEntry) ([]ir.SeedFact, error) {
	seeds := make([]ir.SeedFact, 0, len(raw))
	for n, r := range raw {
		if r.Type == "" {
			return nil, fmt.Errorf("facts[%d]: type is required", n)
		}
		fields := ir.IRObject{}
		for k, v := range r.Fields {
			val, err := ir.FromGo(v)
			if err != nil {
				return nil, fmt.Errorf("facts[%d].fields.%s: %w", n, k, err)
			}
			fields[k] = val
		}
		seeds = append(seeds, ir.SeedFact{Label: r.Label, Type: r.Type, Fields: fields})
	}
	return seeds, nil
}
