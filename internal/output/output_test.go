package output

import (
	"bytes"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func capture(t *testing.T) (*bytes.Buffer, *bytes.Buffer) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	SetWriter(&stdout, &stderr)
	t.Cleanup(func() { SetWriter(os.Stdout, os.Stderr) })
	return &stdout, &stderr
}

func TestColorizeDisabled(t *testing.T) {
	prev := ColorEnabled()
	SetColor(false)
	t.Cleanup(func() { SetColor(prev) })

	assert.Equal(t, "hello", Colorize("success", "hello"))
	assert.Equal(t, "hello", Colorize("danger", "hello"))
}

func TestColorizeEnabled(t *testing.T) {
	prev := ColorEnabled()
	SetColor(true)
	t.Cleanup(func() { SetColor(prev) })

	got := Colorize("danger", "boom")
	assert.Contains(t, got, "boom")
	assert.Contains(t, got, "\x1b[")
	assert.Equal(t, "plain", Colorize("unknown-role", "plain"))
}

func TestDebugfOnlyInDebugMode(t *testing.T) {
	_, stderr := capture(t)
	SetDebug(false)
	Debugf("hidden %d\n", 1)
	assert.Empty(t, stderr.String())

	SetDebug(true)
	t.Cleanup(func() { SetDebug(false) })
	Debugf("shown %d\n", 2)
	assert.Contains(t, stderr.String(), "[调试] shown 2")
}

func TestPrintAndJSON(t *testing.T) {
	stdout, _ := capture(t)
	Printf("a=%s\n", "1")
	Println("b")
	require.NoError(t, JSON(map[string]string{"url": "https://x/?a=1&b=2"}))

	got := stdout.String()
	assert.Contains(t, got, "a=1\nb\n")
	assert.Contains(t, got, `{"url":"https://x/?a=1&b=2"}`)
}

func TestDetectColorSupportEnv(t *testing.T) {
	t.Setenv("FORCE_COLOR", "1")
	assert.True(t, detectColorSupport())

	t.Setenv("FORCE_COLOR", "")
	t.Setenv("NO_COLOR", "1")
	assert.False(t, detectColorSupport())

	t.Setenv("NO_COLOR", "")
	t.Setenv("TERM", "dumb")
	assert.False(t, detectColorSupport())
}
