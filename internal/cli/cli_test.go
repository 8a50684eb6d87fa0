package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"openclawsetup/internal/constants"
	"openclawsetup/internal/output"

	"github.com/stretchr/testify/assert"
)

func captureOutput(t *testing.T) (*bytes.Buffer, *bytes.Buffer) {
	t.Helper()
	t.Setenv("OCS_DATA_DIR", t.TempDir())
	t.Setenv("OCS_CONFIG", filepath.Join(t.TempDir(), "config.json"))
	var stdout, stderr bytes.Buffer
	output.SetWriter(&stdout, &stderr)
	t.Cleanup(func() { output.SetWriter(os.Stdout, os.Stderr) })
	return &stdout, &stderr
}

func TestExecute_Version(t *testing.T) {
	stdout, _ := captureOutput(t)
	assert.Equal(t, constants.ExitOK, Execute([]string{"version"}))
	assert.Contains(t, stdout.String(), "openclawsetup")
}

func TestExecute_UnknownCommandIsUsageError(t *testing.T) {
	_, stderr := captureOutput(t)
	assert.Equal(t, constants.ExitUsage, Execute([]string{"frobnicate"}))
	assert.Contains(t, stderr.String(), "frobnicate")
}

func TestExecute_UnknownFlagIsUsageError(t *testing.T) {
	captureOutput(t)
	assert.Equal(t, constants.ExitUsage, Execute([]string{"check", "--no-such-flag"}))
}

func TestExecute_SettingsPathHonoursConfigFlag(t *testing.T) {
	stdout, _ := captureOutput(t)
	path := filepath.Join(t.TempDir(), "custom.json")
	assert.Equal(t, constants.ExitOK, Execute([]string{"--config", path, "settings", "path"}))
	assert.Equal(t, path, strings.TrimSpace(stdout.String()))
}

func TestClassifyCommand_ReadsStdin(t *testing.T) {
	stdout, _ := captureOutput(t)
	root := newRootCmd()
	root.SetArgs([]string{"--json", "classify"})
	root.SetIn(strings.NewReader("Error: EACCES: permission denied, mkdir '/usr/local/lib/node_modules'"))

	err := root.Execute()
	assert.NoError(t, err)
	assert.Contains(t, stdout.String(), `"category":"permission_denied"`)
}

func TestClassifyCommand_TooManyArgs(t *testing.T) {
	captureOutput(t)
	assert.Equal(t, constants.ExitUsage, Execute([]string{"classify", "a", "b"}))
}

func TestCodeMapping(t *testing.T) {
	assert.NoError(t, code(constants.ExitOK))
	err := code(constants.ExitPending)
	var ee exitError
	assert.ErrorAs(t, err, &ee)
	assert.Equal(t, constants.ExitPending, ee.code)
}
