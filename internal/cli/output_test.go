package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOutputFormatter_JSONSuccess(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format: "json",
		Writer: buf,
	}

	err := formatter.Success(map[string]string{"result": "success"})
	require.NoError(t, err)

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.NotNil(t, resp.Data)
	assert.Nil(t, resp.Error)
}

func TestOutputFormatter_JSONError(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format: "json",
		Writer: buf,
	}

	details := map[string]string{"file": "rules.cue", "line": "42"}
	err := formatter.Error("E004", "loading CUE files", details)
	require.NoError(t, err)

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "E004", resp.Error.Code)
	assert.Equal(t, "loading CUE files", resp.Error.Message)
	assert.NotNil(t, resp.Error.Details)
}

func TestOutputFormatter_TextError(t *testing.T) {
	tests := []struct {
		name        string
		verbose     bool
		wantDetails bool
	}{
		{"quiet", false, false},
		{"verbose", true, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := &bytes.Buffer{}
			formatter := &OutputFormatter{
				Format:  "text",
				Writer:  buf,
				Verbose: tt.verbose,
			}

			err := formatter.Error("E001", "compilation failed", map[string]string{"file": "rules.cue"})
			require.NoError(t, err)
			assert.Contains(t, buf.String(), "Error [E001]: compilation failed")
			if tt.wantDetails {
				assert.Contains(t, buf.String(), "Details:")
			} else {
				assert.NotContains(t, buf.String(), "Details:")
			}
		})
	}
}

func TestOutputFormatter_VerboseLogGoesToErrWriter(t *testing.T) {
	out := &bytes.Buffer{}
	errOut := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format:    "json",
		Writer:    out,
		ErrWriter: errOut,
		Verbose:   true,
	}

	formatter.VerboseLog("Compiled rule: %s", "Greet")

	assert.Empty(t, out.String())
	assert.Equal(t, "Compiled rule: Greet\n", errOut.String())
	assert.Same(t, errOut, formatter.GetErrWriter())
}

func TestOutputFormatter_VerboseLogDisabled(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "text", Writer: buf}

	formatter.VerboseLog("Processing %s", "rules.cue")

	assert.Empty(t, buf.String())
	assert.Same(t, buf, formatter.GetErrWriter())
}

func TestExitError(t *testing.T) {
	cause := errors.New("disk full")
	err := WrapExitError(ExitCommandError, "failed to record run", cause)

	assert.Equal(t, "failed to record run: disk full", err.Error())
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Equal(t, ExitCommandError, GetExitCode(fmt.Errorf("run: %w", err)))

	plain := NewExitError(ExitFailure, "2 of 3 scenario(s) failed")
	assert.Equal(t, "2 of 3 scenario(s) failed", plain.Error())
	assert.Nil(t, plain.Unwrap())
}

func TestGetExitCode_DefaultsToFailure(t *testing.T) {
	assert.Equal(t, ExitFailure, GetExitCode(errors.New("boom")))
}
