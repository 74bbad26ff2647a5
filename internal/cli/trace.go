package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/roach88/rulescript/internal/ir"
	"github.com/roach88/rulescript/internal/store"
)

// latestRun selects the most recently recorded run.
const latestRun = "latest"

// TraceOptions holds flags for the trace command.
type TraceOptions struct {
	*RootOptions
	Database string
}

// TraceStep is one fact of a provenance chain.
type TraceStep struct {
	ID         int64       `json:"id"`
	Type       string      `json:"type"`
	Fields     ir.IRObject `json:"fields"`
	InMemory   bool        `json:"in_memory"`
	Initial    bool        `json:"initial"`
	OriginRule string      `json:"origin_rule,omitempty"`
}

// TraceResult holds the complete trace output.
type TraceResult struct {
	RunID   string      `json:"run_id"`
	FactID  int64       `json:"fact_id"`
	Chain   []TraceStep `json:"chain"`   // the fact, then its creator, and so on
	Derived []TraceStep `json:"derived"` // facts the traced fact created directly
}

// NewTraceCommand creates the trace command.
func NewTraceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TraceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "trace <run-id> <fact-id>",
		Short: "Show where a recorded fact came from",
		Long: `Query the provenance of a fact in a recorded run.

Prints the chain from the fact to the root that created it, the root's
creator and so on up to a fact nothing created, naming the rule behind
each step. Also lists the facts the traced fact created directly.

Use "latest" as the run id for the most recently recorded run.

Examples:
  rulescript trace --db ./runs.db latest 7
  rulescript trace --db ./runs.db 0192f3c4-... 7 --format json`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrace(opts, args[0], args[1], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")

	return cmd
}

func runTrace(opts *TraceOptions, runID, factArg string, cmd *cobra.Command) error {
	ctx := commandContext(cmd)

	factID, err := strconv.ParseInt(factArg, 10, 64)
	if err != nil || factID <= 0 {
		return NewExitError(ExitCommandError, fmt.Sprintf("invalid fact id %q", factArg))
	}

	st, err := store.Open(opts.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	result, err := buildTrace(ctx, st, runID, factID)
	if errors.Is(err, store.ErrNotFound) {
		return WrapExitError(ExitFailure, "nothing to trace", err)
	}
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to trace fact", err)
	}

	if opts.Format == "json" {
		return outputTraceJSON(cmd, result)
	}
	return outputTraceText(cmd, result, opts.Verbose)
}

func buildTrace(ctx context.Context, st *store.Store, runID string, factID int64) (TraceResult, error) {
	if runID == latestRun {
		run, err := st.LatestRun(ctx)
		if err != nil {
			return TraceResult{}, err
		}
		runID = run.ID
	}

	chain, err := st.ProvenanceChain(ctx, runID, factID)
	if err != nil {
		return TraceResult{}, err
	}
	derived, err := st.Derived(ctx, runID, factID)
	if err != nil {
		return TraceResult{}, err
	}

	return TraceResult{
		RunID:   runID,
		FactID:  factID,
		Chain:   toSteps(chain),
		Derived: toSteps(derived),
	}, nil
}

func toSteps(records []store.FactRecord) []TraceStep {
	steps := make([]TraceStep, len(records))
	for i, r := range records {
		steps[i] = TraceStep{
			ID:         r.ID,
			Type:       r.Type,
			Fields:     r.Fields,
			InMemory:   r.InMemory,
			Initial:    r.Initial,
			OriginRule: r.OriginRule,
		}
	}
	return steps
}

func outputTraceJSON(cmd *cobra.Command, result TraceResult) error {
	encoder := json.NewEncoder(cmd.OutOrStdout())
	encoder.SetIndent("", "  ")
	return encoder.Encode(CLIResponse{Status: "ok", Data: result, RunID: result.RunID})
}

func outputTraceText(cmd *cobra.Command, result TraceResult, verbose bool) error {
	w := cmd.OutOrStdout()

	fmt.Fprintf(w, "Trace for fact %d in run %s\n", result.FactID, result.RunID)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "=== Provenance ===")
	for i, step := range result.Chain {
		fmt.Fprintf(w, "  [%d] %s", step.ID, step.Type)
		if verbose {
			fmt.Fprintf(w, " %s", canonicalFields(step.Fields))
		}
		fmt.Fprintln(w)
		if i+1 < len(result.Chain) {
			fmt.Fprintf(w, "    ↑ %s\n", step.OriginRule)
		}
	}
	last := result.Chain[len(result.Chain)-1]
	switch {
	case last.Initial:
		fmt.Fprintln(w, "    (initial fact)")
	case !last.InMemory:
		fmt.Fprintln(w, "    (created, never inserted)")
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "=== Derived ===")
	if len(result.Derived) == 0 {
		fmt.Fprintln(w, "  (none)")
	}
	for _, step := range result.Derived {
		fmt.Fprintf(w, "  [%d] %s via %s\n", step.ID, step.Type, step.OriginRule)
	}

	return nil
}

func canonicalFields(fields ir.IRObject) string {
	data, err := ir.MarshalCanonical(fields)
	if err != nil {
		return fmt.Sprintf("%v", fields)
	}
	return string(data)
}
