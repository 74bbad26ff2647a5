package harness

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"

	"github.com/roach88/rulescript/internal/compiler"
	"github.com/roach88/rulescript/internal/engine"
	"github.com/roach88/rulescript/internal/ir"
	"github.com/roach88/rulescript/internal/output"
	"github.com/roach88/rulescript/internal/script"
	"github.com/roach88/rulescript/internal/store"
	"github.com/roach88/rulescript/internal/testutil"
)

// outputDir is where output facts are written on the in-memory filesystem.
const outputDir = "/out"

// Harness holds the per-scenario resources of one execution.
type Harness struct {
	store  *store.Store
	db     *engine.Database
	fs     afero.Fs
	logger *slog.Logger
}

// Run executes a scenario and returns the result.
//
// Each scenario runs against a fresh engine and a fresh in-memory
// store. The returned error reports problems with the scenario itself
// (rules that do not compile, bad seeds); assertion failures and
// unexpected run errors are recorded in the Result.
func Run(scenario *Scenario) (*Result, error) {
	return RunContext(context.Background(), scenario)
}

// RunContext is Run with a caller-supplied context.
func RunContext(ctx context.Context, scenario *Scenario) (*Result, error) {
	rs, err := CompileRules(scenario.Rules)
	if err != nil {
		return nil, fmt.Errorf("failed to compile rules: %w", err)
	}

	extra, err := compiler.SeedFactsFromYAML(scenario.Facts)
	if err != nil {
		return nil, fmt.Errorf("failed to convert facts: %w", err)
	}
	seeds := append(append([]ir.SeedFact{}, rs.Facts...), extra...)

	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	logger := testutil.QuietLogger()
	opts := []engine.Option{
		engine.WithLogger(logger),
		engine.WithRunIDGenerator(testutil.NewFixedRunIDGenerator(scenario.RunID)),
	}
	if scenario.MaxDepth > 0 {
		opts = append(opts, engine.WithMaxDepth(scenario.MaxDepth))
	}
	if scenario.MaxSteps > 0 {
		opts = append(opts, engine.WithMaxSteps(scenario.MaxSteps))
	}

	h := &Harness{
		store:  st,
		db:     engine.New(opts...),
		fs:     afero.NewMemMapFs(),
		logger: logger,
	}
	if _, err := script.Load(h.db, *rs, script.WithLogger(logger)); err != nil {
		return nil, fmt.Errorf("failed to load rules: %w", err)
	}
	facts, err := script.Materialize(h.db, seeds)
	if err != nil {
		return nil, fmt.Errorf("failed to materialize facts: %w", err)
	}

	result := NewResult()
	summary, runErr := h.db.FireRules(ctx, facts...)
	if runErr != nil {
		result.RunError = runErr.Error()
	}
	if err := h.record(ctx, rs, summary, runErr, result); err != nil {
		return nil, err
	}

	switch {
	case scenario.ExpectError != "" && runErr == nil:
		result.AddError(fmt.Sprintf("expected run to fail with %q, but it succeeded", scenario.ExpectError))
	case scenario.ExpectError != "" && !strings.Contains(runErr.Error(), scenario.ExpectError):
		result.AddError(fmt.Sprintf("expected run error containing %q, got %q", scenario.ExpectError, runErr.Error()))
	case scenario.ExpectError == "" && runErr != nil:
		result.AddError(fmt.Sprintf("run failed: %v", runErr))
	}

	actx := &AssertionContext{Store: st, Ctx: ctx, RunID: result.RunID}
	for _, msg := range EvaluateAssertions(result, scenario.Assertions, actx) {
		result.AddError(msg)
	}

	h.logger.Info("scenario finished",
		"scenario", scenario.Name,
		"pass", result.Pass,
		"facts", len(result.Facts),
		"fired", len(result.Activations),
	)
	return result, nil
}

// record snapshots the run, persists it and reads it back into result,
// then writes the run's output facts. Output facts are only written for
// runs that succeeded.
func (h *Harness) record(ctx context.Context, rs *ir.Ruleset, summary *engine.RunSummary, runErr error, result *Result) error {
	hash, err := ir.RulesetHash(*rs)
	if err != nil {
		return err
	}
	run, err := store.Snapshot(h.db, summary, runErr, hash)
	if err != nil {
		return fmt.Errorf("failed to snapshot run: %w", err)
	}
	if _, err := h.store.WriteRun(ctx, run); err != nil {
		return fmt.Errorf("failed to write run: %w", err)
	}

	result.RunID = run.ID
	if result.Facts, err = h.store.ReadFacts(ctx, run.ID); err != nil {
		return err
	}
	if result.Activations, err = h.store.ReadActivations(ctx, run.ID); err != nil {
		return err
	}

	if runErr != nil {
		return nil
	}
	w := &output.Writer{Fs: h.fs, Dir: outputDir}
	paths, err := w.WriteOutputs(h.db.OutputFacts())
	if err != nil {
		result.AddError(fmt.Sprintf("writing outputs: %v", err))
		return nil
	}
	for _, p := range paths {
		data, err := afero.ReadFile(h.fs, filepath.Join(outputDir, p))
		if err != nil {
			return err
		}
		result.Outputs[p] = string(data)
	}
	return nil
}

// CompileRules compiles and merges rule package directories, then
// validates the merged ruleset.
func CompileRules(dirs []string) (*ir.Ruleset, error) {
	if len(dirs) == 0 {
		return nil, errors.New("no rule directories")
	}
	var merged ir.Ruleset
	for _, dir := range dirs {
		result, errs := compiler.LoadRuleset(dir, compiler.LoadModeFailFast)
		if len(errs) > 0 {
			return nil, fmt.Errorf("%s: %w", dir, errs[0])
		}
		merged.Records = append(merged.Records, result.Ruleset.Records...)
		merged.Rules = append(merged.Rules, result.Ruleset.Rules...)
		merged.Facts = append(merged.Facts, result.Ruleset.Facts...)
	}
	if err := compiler.ValidateRuleset(merged); err != nil {
		return nil, err
	}
	return &merged, nil
}
