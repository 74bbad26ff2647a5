package cli

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/rulescript/internal/compiler"
)

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid    bool                       `json:"valid"`
	Errors   []compiler.ValidationError `json:"errors,omitempty"`
	Warnings []compiler.CycleWarning    `json:"warnings,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <rules-dir>",
		Short: "Validate a rule package without printing IR",
		Long: `Validate the records, rules and seed facts of a CUE rule package.

Reports every schema problem and warns about rule cycles: sets of rules
that can keep inserting facts for each other until the depth bound
stops the run.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true, // Don't print usage on errors
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, rulesDir string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)

	loadResult, loadErrors := compiler.LoadRuleset(rulesDir, compiler.LoadModeCollectAll)
	if loadResult == nil && len(loadErrors) > 0 {
		code, message := parseCompileError(loadErrors[0])
		return outputValidateError(formatter, code, message, nil)
	}

	formatter.VerboseLog("Found %d CUE file(s) in %s", loadResult.FileCount, rulesDir)

	var validationErrors []compiler.ValidationError
	for _, err := range loadErrors {
		code, message := parseCompileError(err)
		validationErrors = append(validationErrors, compiler.ValidationError{
			Field:   "load",
			Message: message,
			Code:    code,
		})
	}
	if err := compiler.ValidateRuleset(loadResult.Ruleset); err != nil {
		validationErrors = append(validationErrors, compiler.Errors(err)...)
	}

	warnings := compiler.AnalyzeCycles(loadResult.Ruleset)
	for _, w := range warnings {
		formatter.VerboseLog("Cycle: %s", strings.Join(w.Path, " → "))
	}

	if len(validationErrors) > 0 {
		return outputValidationErrors(formatter, validationErrors, warnings)
	}
	return outputValidateSuccess(formatter, warnings)
}

// ValidateRulesDir validates the rule package in a directory. Load
// failures that prevent validation are returned as the error.
func ValidateRulesDir(rulesDir string) ([]compiler.ValidationError, error) {
	loadResult, loadErrors := compiler.LoadRuleset(rulesDir, compiler.LoadModeFailFast)
	if len(loadErrors) > 0 {
		return nil, loadErrors[0]
	}
	return compiler.Errors(compiler.ValidateRuleset(loadResult.Ruleset)), nil
}

// outputValidateSuccess outputs successful validation results.
func outputValidateSuccess(formatter *OutputFormatter, warnings []compiler.CycleWarning) error {
	if formatter.Format == "json" {
		return formatter.Success(ValidationResult{Valid: true, Warnings: warnings})
	}

	fmt.Fprintln(formatter.Writer, "✓ Rules valid")
	printCycleWarnings(formatter, warnings)
	return nil
}

func printCycleWarnings(formatter *OutputFormatter, warnings []compiler.CycleWarning) {
	if len(warnings) == 0 {
		return
	}
	fmt.Fprintln(formatter.Writer)
	for _, w := range warnings {
		fmt.Fprintf(formatter.Writer, "⚠ %s\n", w.Message)
		fmt.Fprintf(formatter.Writer, "  %s\n", strings.Join(w.Path, " → "))
	}
}

// outputValidateError outputs a single validation error.
func outputValidateError(formatter *OutputFormatter, code, message string, details interface{}) error {
	_ = formatter.Error(code, message, details)
	// Load errors are command-level errors (exit code 2)
	return NewExitError(ExitCommandError, fmt.Sprintf("%s: %s", code, message))
}

// outputValidationErrors outputs multiple validation errors.
func outputValidationErrors(formatter *OutputFormatter, errs []compiler.ValidationError, warnings []compiler.CycleWarning) error {
	if formatter.Format == "json" {
		response := CLIResponse{
			Status: "error",
			Data: ValidationResult{
				Valid:    false,
				Errors:   errs,
				Warnings: warnings,
			},
			Error: &CLIError{
				Code:    errs[0].Code,
				Message: errs[0].Message,
			},
		}

		encoder := json.NewEncoder(formatter.Writer)
		encoder.SetIndent("", "  ")
		if err := encoder.Encode(response); err != nil {
			return err
		}

		// Validation failures = exit code 1 (test/validation failure)
		return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(errs)))
	}

	fmt.Fprintln(formatter.Writer, "✗ Validation failed")
	fmt.Fprintln(formatter.Writer)

	for _, err := range errs {
		fmt.Fprintf(formatter.Writer, "  %s: %s: %s\n", err.Code, err.Field, err.Message)
	}
	printCycleWarnings(formatter, warnings)

	return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(errs)))
}
