package prereq

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"openclawsetup/internal/platform"
	"openclawsetup/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestInstaller(plat platform.Platform) *Installer {
	i := New(plat, Options{
		Requirement:         Requirement{FloorMajor: 22, FloorMinor: 12, CeilingMajor: 24},
		RecognitionAttempts: 3,
		RecognitionInterval: time.Millisecond,
	})
	i.sleep = func(context.Context, time.Duration) error { return nil }
	return i
}

func TestParseVersion(t *testing.T) {
	tests := []struct {
		in   string
		want Version
		ok   bool
	}{
		{"v22.12.0", Version{22, 12, 0}, true},
		{"22.11.9", Version{22, 11, 9}, true},
		{"v24.1", Version{24, 1, 0}, true},
		{"node v20.5.1\n", Version{20, 5, 1}, true},
		{"", Version{}, false},
		{"not a version", Version{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			v, err := ParseVersion(tt.in)
			if !tt.ok {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, v)
		})
	}
}

func TestRequirement_Gate(t *testing.T) {
	req := Requirement{FloorMajor: 22, FloorMinor: 12, CeilingMajor: 24}
	tests := []struct {
		in         string
		compatible bool
		tooNew     bool
	}{
		{"v22.12.0", true, false},
		{"v22.11.9", false, false},
		{"v24.0.0", false, true},
		{"v23.0.0", true, false},
		{"v23.99.1", true, false},
		{"v20.18.0", false, false},
		{"v25.2.0", false, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			v, err := ParseVersion(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.compatible, req.IsCompatible(v))
			assert.Equal(t, tt.tooNew, req.IsTooNew(v))
		})
	}
}

func TestRequirement_MeetsFloorMatchesFormula(t *testing.T) {
	req := Requirement{FloorMajor: 22, FloorMinor: 12, CeilingMajor: 24}
	for major := 18; major <= 26; major++ {
		for minor := 0; minor <= 20; minor++ {
			v := Version{Major: major, Minor: minor}
			want := major > 22 || (major == 22 && minor >= 12)
			assert.Equal(t, want, req.MeetsFloor(v), v.String())
			assert.Equal(t, major >= 24, req.IsTooNew(v), v.String())
		}
	}
}

func TestCheck_FreshMachine(t *testing.T) {
	plat := testutil.NewFakePlatform(platform.Linux)
	plat.DiskGB = 1.5

	st := newTestInstaller(plat).Check(context.Background())
	assert.False(t, st.NodeInstalled)
	assert.False(t, st.NodeCompatible)
	assert.False(t, st.NpmInstalled)
	assert.False(t, st.DiskSufficient)
	assert.Equal(t, "linux", st.Platform)
	assert.False(t, st.Ready())
}

func TestCheck_Ready(t *testing.T) {
	plat := testutil.NewFakePlatform(platform.Windows)
	plat.Versions = []string{"v22.14.0"}
	plat.NpmPresent = true
	plat.BuildTools = true
	plat.Security = "Kaspersky"

	st := newTestInstaller(plat).Check(context.Background())
	assert.True(t, st.NodeInstalled)
	assert.Equal(t, "v22.14.0", st.NodeVersion)
	assert.True(t, st.NodeCompatible)
	assert.False(t, st.NodeTooNew)
	assert.True(t, st.DiskSufficient)
	assert.Equal(t, "Kaspersky", st.SecuritySoftware)
	assert.True(t, st.Ready())
}

func TestCheck_TooNew(t *testing.T) {
	plat := testutil.NewFakePlatform(platform.MacOS)
	plat.Versions = []string{"v24.0.0"}
	plat.NpmPresent = true

	st := newTestInstaller(plat).Check(context.Background())
	assert.True(t, st.NodeInstalled)
	assert.False(t, st.NodeCompatible)
	assert.True(t, st.NodeTooNew)
}

func TestEnsureRuntime_AlreadyCompatible(t *testing.T) {
	plat := testutil.NewFakePlatform(platform.Linux)
	plat.Versions = []string{"v22.12.0"}

	out, err := newTestInstaller(plat).EnsureRuntime(context.Background())
	require.NoError(t, err)
	assert.True(t, out.AlreadyPresent)
	assert.Empty(t, plat.CallsWithPrefix("install_runtime"))
}

func TestEnsureRuntime_TooNewIsNotDowngraded(t *testing.T) {
	plat := testutil.NewFakePlatform(platform.Linux)
	plat.Versions = []string{"v24.2.0"}

	out, err := newTestInstaller(plat).EnsureRuntime(context.Background())
	require.NoError(t, err)
	assert.NotEmpty(t, out.Warning)
	assert.Empty(t, plat.CallsWithPrefix("install_runtime"))
}

func TestEnsureRuntime_UnixRecheck(t *testing.T) {
	plat := testutil.NewFakePlatform(platform.Linux)
	plat.Versions = []string{"", "v22.13.1"}

	out, err := newTestInstaller(plat).EnsureRuntime(context.Background())
	require.NoError(t, err)
	assert.False(t, out.RestartRequired)
	assert.Empty(t, out.Warning)
	assert.Equal(t, "v22.13.1", out.Version)
	assert.Len(t, plat.CallsWithPrefix("install_runtime"), 1)
}

func TestEnsureRuntime_UnixRecheckFailureIsSoftWarning(t *testing.T) {
	plat := testutil.NewFakePlatform(platform.MacOS)
	plat.Versions = []string{"v20.1.0"}

	out, err := newTestInstaller(plat).EnsureRuntime(context.Background())
	require.NoError(t, err)
	assert.False(t, out.RestartRequired)
	assert.Contains(t, out.Warning, "v20.1.0")
}

func TestEnsureRuntime_WindowsRecognizedDuringPoll(t *testing.T) {
	plat := testutil.NewFakePlatform(platform.Windows)
	plat.Versions = []string{"", "", "v22.12.0"}

	out, err := newTestInstaller(plat).EnsureRuntime(context.Background())
	require.NoError(t, err)
	assert.False(t, out.RestartRequired)
	assert.Equal(t, "v22.12.0", out.Version)
	assert.Len(t, plat.CallsWithPrefix("refresh"), 2)
}

func TestEnsureRuntime_WindowsRecognizedTooNewIsSoftWarning(t *testing.T) {
	plat := testutil.NewFakePlatform(platform.Windows)
	plat.Versions = []string{"", "v24.11.0"}

	out, err := newTestInstaller(plat).EnsureRuntime(context.Background())
	require.NoError(t, err)
	assert.False(t, out.RestartRequired)
	assert.Equal(t, "v24.11.0", out.Version)
	assert.Contains(t, out.Warning, "v24.11.0")
	assert.Len(t, plat.CallsWithPrefix("refresh"), 1)
}

func TestEnsureRuntime_WindowsNotRecognizedRequiresRestart(t *testing.T) {
	plat := testutil.NewFakePlatform(platform.Windows)
	plat.Versions = []string{""}

	out, err := newTestInstaller(plat).EnsureRuntime(context.Background())
	require.NoError(t, err)
	assert.True(t, out.RestartRequired)
	assert.Len(t, plat.CallsWithPrefix("refresh"), 3)
}

func TestEnsureRuntime_Declined(t *testing.T) {
	plat := testutil.NewFakePlatform(platform.Linux)
	plat.InstallRuntimeFn = func() (string, error) {
		return "", fmt.Errorf("apt-get: %w", platform.ErrElevationDeclined)
	}

	_, err := newTestInstaller(plat).EnsureRuntime(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, platform.ErrElevationDeclined))
	assert.Empty(t, plat.CallsWithPrefix("refresh"))
}

func TestEnsureRuntime_ManualAction(t *testing.T) {
	plat := testutil.NewFakePlatform(platform.MacOS)
	plat.InstallRuntimeFn = func() (string, error) {
		return "已打开 Node.js 下载页面", platform.ErrManualAction
	}

	out, err := newTestInstaller(plat).EnsureRuntime(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, platform.ErrManualAction))
	assert.Equal(t, "已打开 Node.js 下载页面", out.Message)
}
