package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/rulescript/internal/compiler"
	"github.com/roach88/rulescript/internal/ir"
)

// CompileOptions holds flags for the compile command.
type CompileOptions struct {
	*RootOptions
	Output string // output file path
}

// CompilationStats holds summary statistics.
type CompilationStats struct {
	RecordCount int
	OutputCount int
	RuleCount   int
	FactCount   int
}

// NewCompileCommand creates the compile command.
func NewCompileCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CompileOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "compile <rules-dir>",
		Short: "Compile a CUE rule package to IR",
		Long: `Compile the records, rules and seed facts of a CUE rule package.

The compiler loads the package, validates it and prints the ruleset IR
as JSON. The IR is what the engine binds and what run hashes cover.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true, // Don't print usage on errors - we handle our own error output
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompile(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "output file path")

	return cmd
}

func runCompile(opts *CompileOptions, rulesDir string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	loadResult, loadErrors := compiler.LoadRuleset(rulesDir, compiler.LoadModeCollectAll)

	// Handle load errors (directory not found, no files, etc.)
	if loadResult == nil && len(loadErrors) > 0 {
		code, message := parseCompileError(loadErrors[0])
		return outputCompileError(formatter, code, message, nil)
	}

	formatter.VerboseLog("Found %d CUE file(s) in %s", loadResult.FileCount, rulesDir)
	for _, rt := range loadResult.Ruleset.Records {
		formatter.VerboseLog("Compiled record: %s", rt.Name)
	}
	for _, r := range loadResult.Ruleset.Rules {
		formatter.VerboseLog("Compiled rule: %s", r.ID)
	}

	if len(loadErrors) > 0 {
		return outputCompileErrors(formatter, loadErrors)
	}
	if err := compiler.ValidateRuleset(loadResult.Ruleset); err != nil {
		return outputCompileErrors(formatter, validationErrs(err))
	}

	rs := &loadResult.Ruleset
	stats := calculateStats(rs)

	if opts.Output != "" {
		if err := writeIRToFile(rs, opts.Output); err != nil {
			return outputCompileError(formatter, ErrCodeWriteFailed, fmt.Sprintf("writing output file: %v", err), nil)
		}
	}

	return outputCompileSuccess(formatter, rs, stats, opts.Output)
}

// validationErrs unpacks a ValidateRuleset error into its parts.
func validationErrs(err error) []error {
	verrs := compiler.Errors(err)
	if len(verrs) == 0 {
		return []error{err}
	}
	out := make([]error, len(verrs))
	for i, ve := range verrs {
		out[i] = ve
	}
	return out
}

// calculateStats computes summary statistics from a ruleset.
func calculateStats(rs *ir.Ruleset) CompilationStats {
	stats := CompilationStats{
		RecordCount: len(rs.Records),
		RuleCount:   len(rs.Rules),
		FactCount:   len(rs.Facts),
	}
	for _, rt := range rs.Records {
		if rt.Output {
			stats.OutputCount++
		}
	}
	return stats
}

// outputCompileSuccess outputs successful compilation results.
func outputCompileSuccess(formatter *OutputFormatter, rs *ir.Ruleset, stats CompilationStats, outputFile string) error {
	if formatter.Format == "json" {
		return formatter.Success(rs)
	}

	fmt.Fprintf(formatter.Writer, "✓ Compiled %d record(s), %d rule(s), %d seed fact(s)\n\n",
		stats.RecordCount, stats.RuleCount, stats.FactCount)

	if len(rs.Records) > 0 {
		fmt.Fprintln(formatter.Writer, "Records:")
		for _, rt := range rs.Records {
			suffix := ""
			if rt.Output {
				suffix = " (output)"
			}
			if rt.Extends != "" {
				suffix += " extends " + rt.Extends
			}
			fmt.Fprintf(formatter.Writer, "  %s: %d field(s)%s\n", rt.Name, len(rt.Fields), suffix)
		}
		fmt.Fprintln(formatter.Writer)
	}

	if len(rs.Rules) > 0 {
		fmt.Fprintln(formatter.Writer, "Rules:")
		for _, r := range rs.Rules {
			types := make([]string, len(r.When))
			for i, p := range r.When {
				types[i] = p.Type
			}
			fmt.Fprintf(formatter.Writer, "  %s: %s → %s\n",
				r.ID, strings.Join(types, " ⋈ "), describeInserts(r))
		}
		fmt.Fprintln(formatter.Writer)
	}

	if outputFile != "" {
		fmt.Fprintf(formatter.Writer, "Wrote ruleset IR to %s\n", outputFile)
	}

	return nil
}

func describeInserts(r ir.RuleSpec) string {
	inserted := compiler.InsertedTypes(r)
	if len(inserted) == 0 {
		return "(no inserts)"
	}
	return strings.Join(inserted, ", ")
}

// outputCompileError outputs a single compilation error.
func outputCompileError(formatter *OutputFormatter, code, message string, details interface{}) error {
	_ = formatter.Error(code, message, details)
	// Compilation errors are command-level errors (exit code 2)
	return WrapExitError(ExitCommandError, fmt.Sprintf("%s: %s", code, message), nil)
}

// outputCompileErrors outputs multiple compilation errors.
func outputCompileErrors(formatter *OutputFormatter, errs []error) error {
	if formatter.Format == "json" {
		cliErrors := make([]CLIError, len(errs))
		for i, err := range errs {
			code, message := parseCompileError(err)
			cliErrors[i] = CLIError{
				Code:    code,
				Message: message,
			}
		}

		response := CLIResponse{
			Status: "error",
			Error:  &cliErrors[0],
			Data:   cliErrors, // Include all errors in data
		}

		encoder := json.NewEncoder(formatter.Writer)
		encoder.SetIndent("", "  ")
		if err := encoder.Encode(response); err != nil {
			return err
		}

		return NewExitError(ExitCommandError, fmt.Sprintf("compilation failed with %d error(s)", len(errs)))
	}

	fmt.Fprintln(formatter.Writer, "✗ Compilation failed")
	fmt.Fprintln(formatter.Writer)

	for _, err := range errs {
		code, message := parseCompileError(err)
		var loadErr *compiler.LoadError
		if errors.As(err, &loadErr) && loadErr.Pos.IsValid() {
			fmt.Fprintf(formatter.Writer, "%s:%d:%d\n",
				loadErr.Pos.Filename(),
				loadErr.Pos.Line(),
				loadErr.Pos.Column())
		}
		fmt.Fprintf(formatter.Writer, "  %s: %s\n\n", code, message)
	}

	return NewExitError(ExitCommandError, fmt.Sprintf("compilation failed with %d error(s)", len(errs)))
}

// parseCompileError extracts error code and message from an error.
func parseCompileError(err error) (string, string) {
	var loadErr *compiler.LoadError
	if errors.As(err, &loadErr) {
		return loadErr.Code, loadErr.Message
	}
	var verr compiler.ValidationError
	if errors.As(err, &verr) {
		return verr.Code, verr.Field + ": " + verr.Message
	}
	var compileErr *compiler.CompileError
	if errors.As(err, &compileErr) {
		return compiler.ErrCodeGeneric, compileErr.Field + ": " + compileErr.Message
	}
	return compiler.ErrCodeGeneric, err.Error()
}

// writeIRToFile writes the ruleset IR to a file.
func writeIRToFile(rs *ir.Ruleset, filename string) error {
	// Indented for readability; canonical JSON is only used for hashing.
	data, err := json.MarshalIndent(rs, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling IR: %w", err)
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("writing file: %w", err)
	}

	return nil
}
