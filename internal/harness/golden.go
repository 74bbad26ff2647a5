package harness

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/rulescript/internal/ir"
)

// RunSnapshot captures the observable outcome of a scenario: the final
// facts and the firing log. Match ids are left out; they depend on the
// shape of the network rather than on what the rules did.
type RunSnapshot struct {
	ScenarioName string
	RunError     string
	Result       *Result
}

// toCanonicalMap converts a RunSnapshot to a map[string]any for canonical JSON serialization.
// This is required because ir.MarshalCanonical only handles IR types and primitives.
func (s *RunSnapshot) toCanonicalMap() map[string]any {
	facts := make([]any, len(s.Result.Facts))
	for i, f := range s.Result.Facts {
		m := map[string]any{
			"id":        f.ID,
			"type":      f.Type,
			"fields":    f.Fields,
			"in_memory": f.InMemory,
		}
		if f.CreatorID != 0 {
			m["creator_id"] = f.CreatorID
			m["origin_rule"] = f.OriginRule
		}
		facts[i] = m
	}

	firings := make([]any, len(s.Result.Activations))
	for i, a := range s.Result.Activations {
		ids := make([]any, len(a.FactIDs))
		for j, id := range a.FactIDs {
			ids[j] = id
		}
		firings[i] = map[string]any{
			"seq":   a.Seq,
			"rule":  a.Rule,
			"facts": ids,
		}
	}

	out := map[string]any{
		"scenario_name": s.ScenarioName,
		"facts":         facts,
		"firings":       firings,
	}
	if s.RunError != "" {
		out["run_error"] = s.RunError
	}
	if len(s.Result.Outputs) > 0 {
		outputs := make(map[string]any, len(s.Result.Outputs))
		for p, c := range s.Result.Outputs {
			outputs[p] = c
		}
		out["outputs"] = outputs
	}
	return out
}

// Marshal renders the snapshot as indented canonical JSON: keys sorted,
// two-space indentation, trailing newline.
func (s *RunSnapshot) Marshal() ([]byte, error) {
	data, err := ir.MarshalCanonical(s.toCanonicalMap())
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, data, "", "  "); err != nil {
		return nil, err
	}
	buf.WriteByte('\n')
	return buf.Bytes(), nil
}

// RunWithGolden executes a scenario and compares its snapshot against a
// golden file stored in testdata/golden/{scenario.Name}.golden
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Returns error if scenario execution fails.
// Test failure (via goldie) occurs if the snapshot doesn't match the golden file.
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return nil, err
	}
	return result, AssertGolden(t, scenario.Name, result)
}

// AssertGolden compares an existing result against a golden file
// without re-running the scenario.
func AssertGolden(t *testing.T, scenarioName string, result *Result) error {
	t.Helper()

	snapshot := RunSnapshot{
		ScenarioName: scenarioName,
		RunError:     result.RunError,
		Result:       result,
	}
	data, err := snapshot.Marshal()
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, data)
	return nil
}
