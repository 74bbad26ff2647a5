package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/roach88/rulescript/internal/compiler"
	"github.com/roach88/rulescript/internal/engine"
	"github.com/roach88/rulescript/internal/ir"
	"github.com/roach88/rulescript/internal/output"
	"github.com/roach88/rulescript/internal/script"
	"github.com/roach88/rulescript/internal/store"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Facts    string // extra seed facts (YAML)
	Database string // persist the run here when set
	OutDir   string // write output facts here when set
	MaxDepth int
	MaxSteps int

	// RunIDs allows overriding the run id generator (for testing).
	// If nil, defaults to UUIDv7Generator.
	RunIDs engine.RunIDGenerator
}

// RunResult is the outcome of one run as printed by the run command.
type RunResult struct {
	RunID    string   `json:"run_id"`
	Status   string   `json:"status"`
	Error    string   `json:"error,omitempty"`
	Seeded   int      `json:"seeded"`
	Inserted int      `json:"inserted"`
	Fired    int      `json:"fired"`
	Skipped  int      `json:"skipped"`
	Facts    int      `json:"facts"`
	Seq      int64    `json:"seq,omitempty"` // store sequence, when persisted
	Outputs  []string `json:"outputs,omitempty"`
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	return newRunCommand(&RunOptions{RootOptions: rootOpts})
}

func newRunCommand(opts *RunOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <rules-dir>",
		Short: "Fire a rule package over its seed facts",
		Long: `Compile a CUE rule package, seed its facts and fire rules until no
activation is left.

Seed facts come from the package's facts list followed by the entries of
--facts. With --db the run, its facts and its firing log are stored for
later tracing. With --out every output fact is written as a file.

Example:
  rulescript run ./rules
  rulescript run ./rules --facts seeds.yaml --db ./runs.db --out ./build`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRules(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Facts, "facts", "", "YAML file of extra seed facts")
	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database to record the run in")
	cmd.Flags().StringVar(&opts.OutDir, "out", "", "directory to write output facts to")
	cmd.Flags().IntVar(&opts.MaxDepth, "max-depth", engine.DefaultMaxDepth, "maximum nested insert depth")
	cmd.Flags().IntVar(&opts.MaxSteps, "max-steps", engine.DefaultMaxSteps, "maximum rule firings per run")

	return cmd
}

func runRules(opts *RunOptions, rulesDir string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	slog.Info("compiling rules", "dir", rulesDir)
	rs, err := compiler.Compile(rulesDir)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to compile rules", err)
	}
	seeds := rs.Facts
	if opts.Facts != "" {
		extra, err := compiler.LoadSeedFacts(opts.Facts)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to load facts", err)
		}
		seeds = append(append([]ir.SeedFact{}, seeds...), extra...)
	}
	slog.Info("rules compiled", "records", len(rs.Records), "rules", len(rs.Rules), "seeds", len(seeds))

	runIDs := opts.RunIDs
	if runIDs == nil {
		runIDs = engine.UUIDv7Generator{}
	}
	db := engine.New(
		engine.WithLogger(slog.Default()),
		engine.WithRunIDGenerator(runIDs),
		engine.WithMaxDepth(opts.MaxDepth),
		engine.WithMaxSteps(opts.MaxSteps),
	)
	if _, err := script.Load(db, *rs, script.WithLogger(slog.Default())); err != nil {
		return WrapExitError(ExitCommandError, "failed to load rules", err)
	}
	facts, err := script.Materialize(db, seeds)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to materialize facts", err)
	}

	ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt, syscall.SIGTERM)
	defer stop()

	summary, runErr := db.FireRules(ctx, facts...)
	result := RunResult{
		RunID:  db.RunID(),
		Status: store.StatusOK,
		Facts:  len(db.Facts()),
	}
	if summary != nil {
		result.RunID = summary.RunID
		result.Seeded = summary.Seeded
		result.Inserted = summary.Inserted
		result.Fired = summary.Fired
		result.Skipped = summary.Skipped
	}
	if runErr != nil {
		slog.Error("run failed", "run_id", result.RunID, "error", runErr)
		result.Status = store.StatusFailed
		result.Error = runErr.Error()
	}

	if opts.Database != "" {
		seq, err := persistRun(ctx, opts.Database, db, rs, summary, runErr)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to record run", err)
		}
		result.Seq = seq
	}

	if opts.OutDir != "" && runErr == nil {
		paths, err := output.NewWriter(opts.OutDir).WriteOutputs(db.OutputFacts())
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to write outputs", err)
		}
		result.Outputs = paths
	}

	if err := outputRunResult(formatter, result); err != nil {
		return err
	}
	if runErr != nil {
		return WrapExitError(ExitFailure, fmt.Sprintf("%s: run %s failed", ErrCodeRunFailed, result.RunID), runErr)
	}
	return nil
}

// persistRun snapshots the database and writes the run to the store at path.
func persistRun(ctx context.Context, path string, db *engine.Database, rs *ir.Ruleset, summary *engine.RunSummary, runErr error) (int64, error) {
	hash, err := ir.RulesetHash(*rs)
	if err != nil {
		return 0, err
	}
	run, err := store.Snapshot(db, summary, runErr, hash)
	if err != nil {
		return 0, err
	}

	st, err := store.Open(path)
	if err != nil {
		return 0, err
	}
	defer func() {
		if closeErr := st.Close(); closeErr != nil {
			slog.Error("error closing database", "error", closeErr)
		}
	}()

	// A cancelled run is still recorded.
	seq, err := st.WriteRun(context.WithoutCancel(ctx), run)
	if err != nil {
		return 0, err
	}
	slog.Info("run recorded", "run_id", run.ID, "seq", seq, "facts", len(run.Facts))
	return seq, nil
}

func outputRunResult(formatter *OutputFormatter, result RunResult) error {
	if formatter.Format == "json" {
		return formatter.Success(result)
	}

	mark := "✓"
	if result.Status != store.StatusOK {
		mark = "✗"
	}
	fmt.Fprintf(formatter.Writer, "%s Run %s: %s\n", mark, result.RunID, result.Status)
	fmt.Fprintf(formatter.Writer, "  seeded %d, inserted %d, fired %d, skipped %d\n",
		result.Seeded, result.Inserted, result.Fired, result.Skipped)
	fmt.Fprintf(formatter.Writer, "  %d fact(s) in working memory\n", result.Facts)
	if result.Error != "" {
		fmt.Fprintf(formatter.Writer, "  error: %s\n", result.Error)
	}
	if result.Seq > 0 {
		fmt.Fprintf(formatter.Writer, "  recorded as run #%d\n", result.Seq)
	}
	for _, p := range result.Outputs {
		fmt.Fprintf(formatter.Writer, "  wrote %s\n", p)
	}
	return nil
}

// commandContext returns the command's context if available (for
// testing), otherwise a background context.
func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
