package openclaw

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigFile_EnsureGatewayDefaults_NewFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "openclaw.json")
	f := NewConfigFile(path)

	changed, err := f.EnsureGatewayDefaults(18789)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, 18789, f.GatewayPort())
	assert.Equal(t, "loopback", f.GatewayBind())

	cfg, err := f.Load()
	require.NoError(t, err)
	gw := cfg["gateway"].(map[string]any)
	assert.Equal(t, "local", gw["mode"])

	changed, err = f.EnsureGatewayDefaults(18789)
	require.NoError(t, err)
	assert.False(t, changed)
}

func TestConfigFile_PreservesExistingValuesAndReadsJSON5(t *testing.T) {
	path := filepath.Join(t.TempDir(), "openclaw.json")
	content := `{
  // user edited
  gateway: { port: 19000, bind: "lan", },
  models: { default: "x" },
}`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	f := NewConfigFile(path)

	changed, err := f.EnsureGatewayDefaults(18789)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, 19000, f.GatewayPort())
	assert.Equal(t, "lan", f.GatewayBind())

	v, ok, err := f.Get("models")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, map[string]any{"default": "x"}, v)
}

func TestConfigFile_SetTopLevel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "openclaw.json")
	f := NewConfigFile(path)

	require.NoError(t, f.SetTopLevel("update", map[string]any{"channel": "stable"}))
	v, ok, err := f.Get("update")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, map[string]any{"channel": "stable"}, v)

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "临时文件应已被 rename")
}

func TestConfigFile_Invalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "openclaw.json")
	require.NoError(t, os.WriteFile(path, []byte("{not valid"), 0o600))
	f := NewConfigFile(path)

	_, err := f.Load()
	assert.Error(t, err)
	assert.Equal(t, 0, f.GatewayPort())
	_, err = f.EnsureGatewayDefaults(18789)
	assert.Error(t, err)
}

func TestConfigFile_MissingIsEmpty(t *testing.T) {
	f := NewConfigFile(filepath.Join(t.TempDir(), "none.json"))
	cfg, err := f.Load()
	require.NoError(t, err)
	assert.Empty(t, cfg)
	assert.False(t, f.Exists())
}
