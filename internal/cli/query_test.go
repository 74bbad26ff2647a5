package cli

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/rulescript/internal/ir"
	"github.com/roach88/rulescript/internal/queryir"
)

func TestQueryMissingDatabaseFlag(t *testing.T) {
	_, err := execute(t, NewQueryCommand(&RootOptions{Format: "text"}), "run-1", "Person")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "required flag")
}

func TestQueryDefaultsToFactIDs(t *testing.T) {
	dbPath := recordedGreeting(t)

	out, err := execute(t, NewQueryCommand(&RootOptions{Format: "text"}), "--db", dbPath, "run-1", "Greeting")
	require.NoError(t, err)
	assert.Equal(t, "{\"id\":2}\n1 row(s)\n", out)
}

func TestQueryWhereAndBind(t *testing.T) {
	dbPath := recordedGreeting(t)

	out, err := execute(t, NewQueryCommand(&RootOptions{Format: "text"}),
		"--db", dbPath, "latest", "Greeting",
		"--where", "to={$ref: 1}",
		"--bind", "$id=greeting", "--bind", "text")
	require.NoError(t, err)
	assert.Equal(t, "{\"greeting\":2,\"text\":\"Hello, Ada\"}\n1 row(s)\n", out)
}

func TestQueryNoRows(t *testing.T) {
	dbPath := recordedGreeting(t)

	out, err := execute(t, NewQueryCommand(&RootOptions{Format: "text"}),
		"--db", dbPath, "run-1", "Person", "--where", "age=37")
	require.NoError(t, err)
	assert.Equal(t, "0 row(s)\n", out)
}

func TestQueryJSON(t *testing.T) {
	dbPath := recordedGreeting(t)

	out, err := execute(t, NewQueryCommand(&RootOptions{Format: "json"}),
		"--db", dbPath, "latest", "Person", "--where", "name=Ada", "--bind", "age")
	require.NoError(t, err)

	var resp struct {
		Status string      `json:"status"`
		RunID  string      `json:"run_id"`
		Data   QueryResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "run-1", resp.RunID)
	assert.Equal(t, "Person", resp.Data.Type)
	assert.Equal(t, []ir.IRObject{{"age": ir.IRInt(36)}}, resp.Data.Rows)
}

func TestQueryUnknownRun(t *testing.T) {
	dbPath := recordedGreeting(t)

	_, err := execute(t, NewQueryCommand(&RootOptions{Format: "text"}), "--db", dbPath, "run-9", "Person")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
}

func TestQueryInvalidFlags(t *testing.T) {
	dbPath := recordedGreeting(t)

	tests := []struct {
		name string
		args []string
		want string
	}{
		{name: "where without value", args: []string{"--where", "age"}, want: "expected field=value"},
		{name: "float value", args: []string{"--where", "age=1.5"}, want: "floats are not supported"},
		{name: "bad variable", args: []string{"--bind", "name=not valid"}, want: "invalid variable name"},
		{name: "variable twice", args: []string{"--bind", "name=x", "--bind", "age=x"}, want: "bound twice"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := append([]string{"--db", dbPath, "run-1", "Person"}, tt.args...)
			_, err := execute(t, NewQueryCommand(&RootOptions{Format: "text"}), args...)
			require.Error(t, err)
			assert.Equal(t, ExitCommandError, GetExitCode(err))
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestBuildSelect(t *testing.T) {
	q, err := buildSelect("Person", []string{"name=Ada", "age=36"}, []string{"address.city", "$id"})
	require.NoError(t, err)

	assert.Equal(t, queryir.Select{
		Type: "Person",
		Filter: queryir.And{Predicates: []queryir.Predicate{
			queryir.Equals{Field: "age", Value: ir.IRInt(36)},
			queryir.Equals{Field: "name", Value: ir.IRString("Ada")},
		}},
		Bindings: map[string]string{"address.city": "city", "$id": "id"},
	}, q)
}
