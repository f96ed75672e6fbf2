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

func execute(t *testing.T, args ...string) (stdout, stderr string, err error) {
	t.Helper()
	cmd := NewRootCommand()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err = cmd.Execute()
	return out.String(), errOut.String(), err
}

func TestRootCommand_RejectsUnknownFormat(t *testing.T) {
	_, _, err := execute(t, "--format", "xml", "validate", "somewhere")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `invalid format "xml"`)
}

func TestValidateCommand_ValidSchema(t *testing.T) {
	stdout, _, err := execute(t, "validate", "../schema/testdata/schema")
	require.NoError(t, err)
	assert.Contains(t, stdout, "Schema valid: 2 entities")
	assert.Contains(t, stdout, "client")
	assert.Contains(t, stdout, "task")
}

func TestValidateCommand_JSONEnvelope(t *testing.T) {
	stdout, _, err := execute(t, "--format", "json", "validate", "../schema/testdata/schema")
	require.NoError(t, err)

	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(stdout), &resp))
	assert.Equal(t, "ok", resp.Status)
}

func TestValidateCommand_MissingDirFails(t *testing.T) {
	stdout, _, err := execute(t, "validate", t.TempDir())
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, stdout, "Error:")
}

func TestJobsRunCommand_RequiresDatabaseFlag(t *testing.T) {
	_, _, err := execute(t, "jobs", "run", "notification-flush")
	require.Error(t, err)
}

func TestGetExitCode(t *testing.T) {
	assert.Equal(t, ExitCommandError, GetExitCode(NewExitError(ExitCommandError, "bad path")))
	assert.Equal(t, ExitFailure, GetExitCode(errors.New("plain")))
	assert.Equal(t, ExitCommandError,
		GetExitCode(fmt.Errorf("outer: %w", WrapExitError(ExitCommandError, "inner", errors.New("cause")))))
}

func TestOutputFormatter(t *testing.T) {
	var buf bytes.Buffer
	text := &OutputFormatter{Format: "text", Writer: &buf}
	require.NoError(t, text.Success("all good"))
	assert.Equal(t, "all good\n", buf.String())

	buf.Reset()
	require.NoError(t, text.Error("broke", nil))
	assert.Equal(t, "Error: broke\n", buf.String())

	buf.Reset()
	jsonOut := &OutputFormatter{Format: "json", Writer: &buf}
	require.NoError(t, jsonOut.Error("broke", map[string]string{"field": "status"}))
	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "broke", resp.Error.Message)
}

func TestOutputFormatter_VerboseLogRouting(t *testing.T) {
	var out, errOut bytes.Buffer
	f := &OutputFormatter{Format: "json", Writer: &out, ErrWriter: &errOut, Verbose: true}
	f.VerboseLog("loaded %d entities", 7)
	assert.Empty(t, out.String(), "diagnostics must not corrupt the JSON payload")
	assert.Equal(t, "loaded 7 entities\n", errOut.String())

	quiet := &OutputFormatter{Format: "text", Writer: &out}
	quiet.VerboseLog("hidden")
	assert.Empty(t, out.String())
}
