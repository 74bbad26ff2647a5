package harness

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// ScenarioNotFoundError is returned when a scenario path doesn't exist.
type ScenarioNotFoundError struct {
	Path string
}

// Error implements the error interface.
func (e *ScenarioNotFoundError) Error() string {
	return fmt.Sprintf("scenario file %q does not exist", e.Path)
}

// FindScenarios expands paths into scenario files. A directory
// contributes every .yaml and .yml file directly inside it, sorted by
// name; a file is taken as is.
func FindScenarios(paths []string) ([]string, error) {
	var out []string
	for _, p := range paths {
		info, err := os.Stat(p)
		if os.IsNotExist(err) {
			return nil, &ScenarioNotFoundError{Path: p}
		}
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			out = append(out, p)
			continue
		}
		entries, err := os.ReadDir(p)
		if err != nil {
			return nil, err
		}
		var found []string
		for _, e := range entries {
			ext := strings.ToLower(filepath.Ext(e.Name()))
			if !e.IsDir() && (ext == ".yaml" || ext == ".yml") {
				found = append(found, filepath.Join(p, e.Name()))
			}
		}
		sort.Strings(found)
		out = append(out, found...)
	}
	return out, nil
}

// SuiteResult summarizes a batch of scenarios.
type SuiteResult struct {
	Total    int               `json:"total"`
	Passed   int               `json:"passed"`
	Failed   int               `json:"failed"`
	Failures []ScenarioFailure `json:"failures,omitempty"`

	// Scenarios lists every scenario run, in order.
	Scenarios []ScenarioOutcome `json:"scenarios"`
}

// ScenarioOutcome is the result of one scenario in a suite.
type ScenarioOutcome struct {
	Scenario string   `json:"scenario"`
	Path     string   `json:"path"`
	Pass     bool     `json:"pass"`
	Errors   []string `json:"errors,omitempty"`
}

// ScenarioFailure describes one scenario that did not pass.
type ScenarioFailure struct {
	Scenario string   `json:"scenario"`
	Path     string   `json:"path"`
	Errors   []string `json:"errors"`
}

// Pass reports whether every scenario passed.
func (r *SuiteResult) Pass() bool {
	return r.Failed == 0
}

// RunSuite loads and runs every scenario file in order. A scenario that
// cannot be loaded or executed counts as failed.
func RunSuite(ctx context.Context, paths []string) *SuiteResult {
	result := &SuiteResult{Scenarios: []ScenarioOutcome{}}
	for _, path := range paths {
		result.Total++

		scenario, err := LoadScenario(path)
		if err != nil {
			result.fail(path, path, fmt.Sprintf("failed to load scenario: %v", err))
			continue
		}

		runResult, err := RunContext(ctx, scenario)
		if err != nil {
			result.fail(scenario.Name, path, fmt.Sprintf("scenario execution failed: %v", err))
			continue
		}
		if !runResult.Pass {
			result.fail(scenario.Name, path, runResult.Errors...)
			continue
		}
		result.Passed++
		result.Scenarios = append(result.Scenarios, ScenarioOutcome{Scenario: scenario.Name, Path: path, Pass: true})
	}
	return result
}

func (r *SuiteResult) fail(name, path string, errs ...string) {
	r.Failed++
	r.Failures = append(r.Failures, ScenarioFailure{Scenario: name, Path: path, Errors: errs})
	r.Scenarios = append(r.Scenarios, ScenarioOutcome{Scenario: name, Path: path, Errors: errs})
}
