package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/rulescript/internal/harness"
)

// TestOptions holds flags for the test command.
type TestOptions struct {
	*RootOptions
	Filter string // scenario filter (glob pattern)
}

// NewTestCommand creates the test command.
func NewTestCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TestOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "test <scenario-file-or-dir>...",
		Short: "Run scenario files",
		Long: `Run YAML scenarios against their rule packages.

Each scenario names rule directories (relative to the scenario file),
extra seed facts, optional bounds and assertions over the final facts,
the firing log, provenance chains and written outputs. A directory
argument runs every .yaml and .yml file in it.

Exit codes:
  0 - All scenarios passed
  1 - One or more scenarios failed
  2 - Command error (invalid paths, etc.)

Examples:
  rulescript test ./scenarios
  rulescript test ./scenarios --filter "billing*"
  rulescript test ./scenarios/greeting.yaml --format json`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTests(opts, args, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Filter, "filter", "", "filter scenarios by glob pattern on the file name")

	return cmd
}

func runTests(opts *TestOptions, args []string, cmd *cobra.Command) error {
	paths, err := harness.FindScenarios(args)
	if err != nil {
		var notFound *harness.ScenarioNotFoundError
		if errors.As(err, &notFound) {
			return NewExitError(ExitCommandError, notFound.Error())
		}
		return WrapExitError(ExitCommandError, "failed to find scenarios", err)
	}
	paths, err = filterScenarios(paths, opts.Filter)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid filter pattern", err)
	}

	if len(paths) == 0 {
		if opts.Format == "json" {
			return outputTestJSON(cmd, &harness.SuiteResult{Scenarios: []harness.ScenarioOutcome{}})
		}
		fmt.Fprintln(cmd.OutOrStdout(), "No scenarios found.")
		return nil
	}

	result := harness.RunSuite(commandContext(cmd), paths)

	if opts.Format == "json" {
		if err := outputTestJSON(cmd, result); err != nil {
			return err
		}
	} else {
		outputTestText(cmd, result)
	}

	if !result.Pass() {
		return NewExitError(ExitFailure, fmt.Sprintf("%d of %d scenario(s) failed", result.Failed, result.Total))
	}
	return nil
}

// filterScenarios keeps the paths whose base name, without extension,
// matches filter. An empty filter keeps everything.
func filterScenarios(paths []string, filter string) ([]string, error) {
	if filter == "" {
		return paths, nil
	}
	var out []string
	for _, p := range paths {
		base := filepath.Base(p)
		name := strings.TrimSuffix(base, filepath.Ext(base))
		matched, err := filepath.Match(filter, name)
		if err != nil {
			return nil, err
		}
		if matched {
			out = append(out, p)
		}
	}
	return out, nil
}

func outputTestJSON(cmd *cobra.Command, result *harness.SuiteResult) error {
	status := "ok"
	var cliErr *CLIError
	if !result.Pass() {
		status = "error"
		cliErr = &CLIError{
			Code:    "E100",
			Message: fmt.Sprintf("%d scenario(s) failed", result.Failed),
		}
	}
	encoder := json.NewEncoder(cmd.OutOrStdout())
	encoder.SetIndent("", "  ")
	return encoder.Encode(CLIResponse{Status: status, Data: result, Error: cliErr})
}

func outputTestText(cmd *cobra.Command, result *harness.SuiteResult) {
	w := cmd.OutOrStdout()
	for _, s := range result.Scenarios {
		if s.Pass {
			fmt.Fprintf(w, "✓ %s\n", s.Scenario)
			continue
		}
		fmt.Fprintf(w, "✗ %s\n", s.Scenario)
		for _, e := range s.Errors {
			fmt.Fprintf(w, "  %s\n", e)
		}
	}
	fmt.Fprintln(w)
	fmt.Fprintf(w, "%d passed, %d failed, %d total\n", result.Passed, result.Failed, result.Total)
}
