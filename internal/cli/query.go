package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/roach88/rulescript/internal/ir"
	"github.com/roach88/rulescript/internal/queryir"
	"github.com/roach88/rulescript/internal/store"
)

// QueryOptions holds flags for the query command.
type QueryOptions struct {
	*RootOptions
	Database string
	Where    []string
	Bind     []string
}

// QueryResult holds the rows a query returned.
type QueryResult struct {
	RunID string        `json:"run_id"`
	Type  string        `json:"type"`
	Rows  []ir.IRObject `json:"rows"`
}

// NewQueryCommand creates the query command.
func NewQueryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &QueryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "query <run-id> <record-type>",
		Short: "Query the facts a recorded run ended with",
		Long: `Select the working-memory facts of one record type from a recorded run.

--where field=value keeps facts whose field equals value. Values are read
as YAML, so 36 is an integer, true a boolean and "{$ref: 3}" a reference
to fact 3. --bind field[=var] names a field to print; the fact id is
"$id". Without --bind each row holds the fact id.

Use "latest" as the run id for the most recently recorded run.

Examples:
  rulescript query --db ./runs.db latest Greeting --bind text
  rulescript query --db ./runs.db latest Person --where age=36 --bind '$id=person' --bind name`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQuery(opts, args[0], args[1], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	cmd.Flags().StringArrayVar(&opts.Where, "where", nil, "filter as field=value (repeatable)")
	cmd.Flags().StringArrayVar(&opts.Bind, "bind", nil, "output field as field[=var] (repeatable)")
	_ = cmd.MarkFlagRequired("db")

	return cmd
}

func runQuery(opts *QueryOptions, runID, typeName string, cmd *cobra.Command) error {
	ctx := commandContext(cmd)

	q, err := buildSelect(typeName, opts.Where, opts.Bind)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid query", err)
	}
	result := queryir.Validate(q)
	if !result.Valid {
		return NewExitError(ExitCommandError, "invalid query: "+strings.Join(result.Errors, "; "))
	}
	for _, w := range result.Warnings {
		slog.Warn("query", "warning", w)
	}

	st, err := store.Open(opts.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	if runID == latestRun {
		run, err := st.LatestRun(ctx)
		if err != nil {
			return WrapExitError(ExitFailure, "nothing to query", err)
		}
		runID = run.ID
	}

	rows, err := st.Query(ctx, runID, q)
	if errors.Is(err, store.ErrNotFound) {
		return WrapExitError(ExitFailure, "nothing to query", err)
	}
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to query facts", err)
	}

	out := QueryResult{RunID: runID, Type: typeName, Rows: rows}
	if opts.Format == "json" {
		encoder := json.NewEncoder(cmd.OutOrStdout())
		encoder.SetIndent("", "  ")
		return encoder.Encode(CLIResponse{Status: "ok", Data: out, RunID: runID})
	}

	w := cmd.OutOrStdout()
	for _, row := range out.Rows {
		fmt.Fprintln(w, canonicalFields(row))
	}
	fmt.Fprintf(w, "%d row(s)\n", len(out.Rows))
	return nil
}

// buildSelect turns the command's flags into a Select.
func buildSelect(typeName string, where, bind []string) (queryir.Select, error) {
	filter := ir.IRObject{}
	for _, w := range where {
		field, raw, ok := strings.Cut(w, "=")
		if !ok || field == "" {
			return queryir.Select{}, fmt.Errorf("where %q: expected field=value", w)
		}
		if _, dup := filter[field]; dup {
			return queryir.Select{}, fmt.Errorf("where %q: field %s filtered twice", w, field)
		}
		value, err := parseValue(raw)
		if err != nil {
			return queryir.Select{}, fmt.Errorf("where %q: %w", w, err)
		}
		filter[field] = value
	}

	bindings := map[string]string{}
	if len(bind) == 0 {
		bindings[queryir.IDField] = "id"
	}
	for _, b := range bind {
		field, name, ok := strings.Cut(b, "=")
		if !ok {
			name = defaultVarName(field)
		}
		if _, dup := bindings[field]; dup {
			return queryir.Select{}, fmt.Errorf("bind %q: field %s bound twice", b, field)
		}
		bindings[field] = name
	}

	return queryir.Select{
		Type:     typeName,
		Filter:   queryir.Where(filter),
		Bindings: bindings,
	}, nil
}

// parseValue reads a command-line value as YAML.
func parseValue(raw string) (ir.IRValue, error) {
	var v any
	if err := yaml.Unmarshal([]byte(raw), &v); err != nil {
		return nil, err
	}
	return ir.FromGo(v)
}

// defaultVarName names a binding after the last segment of its field
// path: "address.city" binds "city", "$id" binds "id".
func defaultVarName(field string) string {
	if i := strings.LastIndex(field, "."); i >= 0 {
		field = field[i+1:]
	}
	return strings.TrimPrefix(field, "$")
}
