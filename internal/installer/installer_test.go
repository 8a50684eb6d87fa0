package installer

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"testing"
	"time"

	"openclawsetup/internal/errclass"
	"openclawsetup/internal/openclaw"
	"openclawsetup/internal/platform"
	"openclawsetup/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	cacheFailure   = "npm ERR! code EINTEGRITY\nnpm ERR! sha512-abc integrity checksum failed when using sha512"
	networkFailure = "npm ERR! code ENOTFOUND\nnpm ERR! network request to https://registry.npmjs.org/openclaw failed, reason: getaddrinfo ENOTFOUND registry.npmjs.org"
	gitFailure     = "npm ERR! code ENOENT\nnpm ERR! syscall spawn git\nnpm ERR! path git\nnpm ERR! enoent An unknown git error occurred"
	nativeFailure  = "Error: The specified module could not be found.\n\\\\?\\C:\\openclaw\\node_modules\\sharp\\build\\Release\\sharp.node"
	optionalWarn   = "prebuild-install warn install No prebuilt binaries found (target=22.12.0 runtime=node arch=x64)"
)

// fakeNpm 按顺序返回预设结果，成功时写入入口文件
type fakeNpm struct {
	mu       sync.Mutex
	cli      *openclaw.CLI
	results  []string // "" 表示成功
	installs []platform.Command
	noEntry  bool
}

func (n *fakeNpm) exec(cmd platform.Command) (platform.Result, error) {
	if cmd.Name != "npm" || len(cmd.Args) == 0 || cmd.Args[0] != "install" {
		return platform.Result{}, nil
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	n.installs = append(n.installs, cmd)
	out := ""
	if len(n.results) > 0 {
		out = n.results[0]
		if len(n.results) > 1 {
			n.results = n.results[1:]
		}
	}
	if out == "" {
		if !n.noEntry {
			writeEntry(n.cli)
		}
		return platform.Result{Stdout: "added 312 packages in 41s"}, nil
	}
	return platform.Result{}, &platform.ExitError{Name: cmd.Name, Args: cmd.Args, Code: 1, Output: out}
}

func writeEntry(cli *openclaw.CLI) {
	_ = os.MkdirAll(cli.PackageDir(), 0o755)
	_ = os.WriteFile(cli.EntryPoint(), []byte("#!/usr/bin/env node\n"), 0o644)
}

func setup(t *testing.T, target platform.Target, results ...string) (*Manager, *testutil.FakePlatform, *fakeNpm) {
	t.Helper()
	plat := testutil.NewFakePlatform(target)
	cli := openclaw.NewCLI(plat, filepath.Join(t.TempDir(), "openclaw"), time.Second)
	npm := &fakeNpm{cli: cli, results: results}
	plat.ExecFn = npm.exec
	m := New(plat, cli, errclass.New(string(target)), Options{
		TarballURL:      "https://registry.npmjs.org/openclaw/-/openclaw-2026.2.9.tgz",
		TerminalPoll:    time.Millisecond,
		TerminalTimeout: 50 * time.Millisecond,
	})
	return m, plat, npm
}

func indexOf(calls []string, prefix string) int {
	for i, c := range calls {
		if strings.HasPrefix(c, prefix) {
			return i
		}
	}
	return -1
}

func TestInstall_AlreadyInstalledShortCircuits(t *testing.T) {
	m, plat, npm := setup(t, platform.Linux)
	plat.Paths["openclaw"] = "/fake/bin/openclaw"
	plat.ExecFn = func(cmd platform.Command) (platform.Result, error) {
		if cmd.Name == "/fake/bin/openclaw" {
			return platform.Result{Stdout: "2026.2.9"}, nil
		}
		return npm.exec(cmd)
	}

	out, err := m.Install(context.Background())
	require.NoError(t, err)
	assert.True(t, out.Success)
	assert.True(t, out.AlreadyInstalled)
	assert.Empty(t, plat.CallsWithPrefix("exec npm"))
}

func TestInstall_FreshTarball(t *testing.T) {
	m, plat, npm := setup(t, platform.Linux, "")

	out, err := m.Install(context.Background())
	require.NoError(t, err)
	assert.True(t, out.Success)
	assert.Equal(t, StrategyTarball, out.Strategy)
	require.Len(t, npm.installs, 1)

	cmd := npm.installs[0]
	assert.Equal(t, "https://registry.npmjs.org/openclaw/-/openclaw-2026.2.9.tgz", cmd.Args[1])
	assert.Contains(t, strings.Join(cmd.Args, " "), "--prefix "+m.cli.InstallDir())
	assert.NotContains(t, cmd.Args, "--ignore-scripts")
	assert.Contains(t, cmd.ExtraEnv, "npm_config_cache="+m.cli.CacheDir())
	assert.Empty(t, plat.CallsWithPrefix("terminal"))
}

func TestInstall_IncompleteIsCleanedBeforeInstall(t *testing.T) {
	m, plat, npm := setup(t, platform.Linux, "")
	plat.Paths["openclaw"] = "/fake/bin/openclaw"
	plat.ExecFn = func(cmd platform.Command) (platform.Result, error) {
		if cmd.Name == "/fake/bin/openclaw" {
			return platform.Result{}, &platform.ExitError{Name: cmd.Name, Code: 1, Output: "Error: Cannot find module"}
		}
		return npm.exec(cmd)
	}
	require.NoError(t, os.MkdirAll(m.cli.CacheDir(), 0o755))

	out, err := m.Install(context.Background())
	require.NoError(t, err)
	assert.True(t, out.CleanedUp)

	calls := plat.CallLog()
	cleanup := indexOf(calls, "exec npm uninstall -g openclaw")
	install := indexOf(calls, "exec npm install")
	require.NotEqual(t, -1, cleanup)
	require.NotEqual(t, -1, install)
	assert.Less(t, cleanup, install)
}

func TestInstall_ExitZeroWithoutEntryPointFails(t *testing.T) {
	m, _, npm := setup(t, platform.Linux, "")
	npm.noEntry = true

	out, err := m.Install(context.Background())
	require.Error(t, err)
	assert.False(t, out.Success)
	require.NotNil(t, out.Analysis)
	assert.Contains(t, out.Analysis.Description, "入口文件")
}

func TestInstall_RemediationThenRetrySucceeds(t *testing.T) {
	m, _, npm := setup(t, platform.Linux, cacheFailure, "")
	require.NoError(t, os.MkdirAll(filepath.Join(m.cli.CacheDir(), "_cacache"), 0o755))

	out, err := m.Install(context.Background())
	require.NoError(t, err)
	assert.True(t, out.Success)
	assert.True(t, out.Remediated)
	assert.Len(t, npm.installs, 2)
	assert.NoDirExists(t, filepath.Join(m.cli.CacheDir(), "_cacache"))
}

func TestInstall_RetriesExactlyOnceOnSameCategory(t *testing.T) {
	m, _, npm := setup(t, platform.Linux, cacheFailure)

	out, err := m.Install(context.Background())
	require.Error(t, err)
	assert.Len(t, npm.installs, 2)
	require.NotNil(t, out.Analysis)
	assert.Equal(t, errclass.CorruptPackageCache, out.Analysis.Category)

	var ie *InstallError
	require.True(t, errors.As(err, &ie))
	assert.Contains(t, err.Error(), ie.Analysis.Description)
	assert.Contains(t, err.Error(), ie.Analysis.Remedy)
}

func TestInstall_RetryWithDifferentCategoryReportsNewOne(t *testing.T) {
	m, plat, npm := setup(t, platform.Windows, cacheFailure, networkFailure)

	out, err := m.Install(context.Background())
	require.Error(t, err)
	assert.Len(t, npm.installs, 2)
	assert.Equal(t, errclass.NetworkUnreachable, out.Analysis.Category)
	assert.Empty(t, plat.CallsWithPrefix("terminal"))
}

func TestInstall_RemediationFailureIsTerminal(t *testing.T) {
	m, plat, npm := setup(t, platform.Windows, nativeFailure)
	plat.InstallNativeDependencyFn = func() (string, error) {
		return "", errors.New("winget failed")
	}

	out, err := m.Install(context.Background())
	require.Error(t, err)
	assert.Len(t, npm.installs, 1)
	assert.Equal(t, errclass.MissingNativeRuntimeDependency, out.Analysis.Category)
	assert.False(t, out.Remediated)
}

func TestInstall_RemediationDeclined(t *testing.T) {
	m, plat, _ := setup(t, platform.Windows, nativeFailure)
	plat.InstallNativeDependencyFn = func() (string, error) {
		return "", platform.ErrElevationDeclined
	}

	_, err := m.Install(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, platform.ErrElevationDeclined)
}

func TestInstall_GitDependencyFallsBackToIgnoreScripts(t *testing.T) {
	m, _, npm := setup(t, platform.MacOS, gitFailure, "")

	out, err := m.Install(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StrategyIgnoreScripts, out.Strategy)
	require.Len(t, npm.installs, 2)
	assert.Contains(t, npm.installs[1].Args, "--ignore-scripts")
}

func TestInstall_WindowsNetworkUsesConsole(t *testing.T) {
	m, plat, npm := setup(t, platform.Windows, networkFailure)
	plat.TerminalFn = func(ctx context.Context, command string, probe platform.Probe) (platform.WaitOutcome, error) {
		assert.Contains(t, command, "Invoke-WebRequest")
		assert.Contains(t, command, "openclaw-2026.2.9.tgz")
		writeEntry(m.cli)
		if probe(ctx) {
			return platform.Completed, nil
		}
		return platform.StillInProgress, nil
	}

	out, err := m.Install(context.Background())
	require.NoError(t, err)
	assert.True(t, out.Success)
	assert.Equal(t, StrategyConsole, out.Strategy)
	assert.Len(t, npm.installs, 1)
}

func TestInstall_WindowsConsoleStillRunningIsPending(t *testing.T) {
	m, _, _ := setup(t, platform.Windows, networkFailure)

	out, err := m.Install(context.Background())
	require.NoError(t, err)
	assert.False(t, out.Success)
	assert.True(t, out.Pending)
}

func TestInstall_LinuxNetworkFailureIsTerminal(t *testing.T) {
	m, plat, npm := setup(t, platform.Linux, networkFailure)

	out, err := m.Install(context.Background())
	require.Error(t, err)
	assert.Len(t, npm.installs, 1)
	assert.Equal(t, errclass.NetworkUnreachable, out.Analysis.Category)
	assert.NotEmpty(t, out.Diagnostic)
	assert.Empty(t, plat.CallsWithPrefix("terminal"))
}

func TestInstall_OptionalNativeFailureWithEntryPointSucceeds(t *testing.T) {
	m, plat, npm := setup(t, platform.Linux)
	plat.ExecFn = func(cmd platform.Command) (platform.Result, error) {
		if cmd.Name == "npm" && len(cmd.Args) > 0 && cmd.Args[0] == "install" {
			writeEntry(m.cli)
			return platform.Result{}, &platform.ExitError{Name: "npm", Code: 1, Output: optionalWarn}
		}
		return npm.exec(cmd)
	}

	out, err := m.Install(context.Background())
	require.NoError(t, err)
	assert.True(t, out.Success)
	assert.NotEmpty(t, out.Warning)
}

func makeBundle(t *testing.T, files map[string]string) string {
	t.Helper()
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)
	for name, body := range files {
		require.NoError(t, tw.WriteHeader(&tar.Header{Name: name, Mode: 0o644, Size: int64(len(body)), Typeflag: tar.TypeReg}))
		_, err := tw.Write([]byte(body))
		require.NoError(t, err)
	}
	require.NoError(t, tw.Close())
	require.NoError(t, gz.Close())
	path := filepath.Join(t.TempDir(), "openclaw-bundle.tgz")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
	return path
}

func TestInstall_BundleSkipsNpm(t *testing.T) {
	m, plat, _ := setup(t, platform.Linux)
	m.opts.BundlePath = makeBundle(t, map[string]string{
		"node_modules/openclaw/openclaw.mjs": "#!/usr/bin/env node\n",
		"node_modules/openclaw/package.json": `{"name":"openclaw"}`,
		"node_modules/ws/package.json":       `{"name":"ws"}`,
	})

	out, err := m.Install(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StrategyBundle, out.Strategy)
	assert.Empty(t, plat.CallsWithPrefix("exec npm"))
	assert.FileExists(t, m.cli.LocalBin())
}

func TestInstall_BrokenBundleFallsBackToNpm(t *testing.T) {
	m, _, npm := setup(t, platform.Linux, "")
	path := filepath.Join(t.TempDir(), "bad.tgz")
	require.NoError(t, os.WriteFile(path, []byte("not a gzip stream"), 0o644))
	m.opts.BundlePath = path

	out, err := m.Install(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StrategyTarball, out.Strategy)
	assert.Len(t, npm.installs, 1)
}

type tarEntry struct {
	name     string
	linkname string
	body     string
}

func buildTarGz(t *testing.T, entries ...tarEntry) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)
	for _, e := range entries {
		if e.linkname != "" {
			require.NoError(t, tw.WriteHeader(&tar.Header{Name: e.name, Linkname: e.linkname, Mode: 0o777, Typeflag: tar.TypeSymlink}))
			continue
		}
		require.NoError(t, tw.WriteHeader(&tar.Header{Name: e.name, Mode: 0o644, Size: int64(len(e.body)), Typeflag: tar.TypeReg}))
		_, err := tw.Write([]byte(e.body))
		require.NoError(t, err)
	}
	require.NoError(t, tw.Close())
	require.NoError(t, gz.Close())
	return &buf
}

func TestExtractTarGz_RejectsTraversal(t *testing.T) {
	t.Run("parent path", func(t *testing.T) {
		dest := t.TempDir()
		_, err := extractTarGz(buildTarGz(t, tarEntry{name: "../evil.txt", body: "x"}), dest)
		assert.Error(t, err)
		assert.NoFileExists(t, filepath.Join(filepath.Dir(dest), "evil.txt"))
	})

	t.Run("absolute symlink", func(t *testing.T) {
		outside := t.TempDir()
		dest := t.TempDir()
		_, err := extractTarGz(buildTarGz(t,
			tarEntry{name: "node_modules/evil", linkname: outside},
			tarEntry{name: "node_modules/evil/pwned.txt", body: "x"},
		), dest)
		assert.Error(t, err)
		assert.NoFileExists(t, filepath.Join(outside, "pwned.txt"))
	})

	t.Run("existing symlinked parent", func(t *testing.T) {
		if runtime.GOOS == "windows" {
			t.Skip("需要创建符号链接的权限")
		}
		outside := t.TempDir()
		dest := t.TempDir()
		require.NoError(t, os.MkdirAll(filepath.Join(dest, "node_modules"), 0o755))
		require.NoError(t, os.Symlink(outside, filepath.Join(dest, "node_modules", "evil")))

		_, err := extractTarGz(buildTarGz(t, tarEntry{name: "node_modules/evil/pwned.txt", body: "x"}), dest)
		assert.Error(t, err)
		assert.NoFileExists(t, filepath.Join(outside, "pwned.txt"))
	})

	t.Run("file over symlink", func(t *testing.T) {
		if runtime.GOOS == "windows" {
			t.Skip("需要创建符号链接的权限")
		}
		outside := filepath.Join(t.TempDir(), "victim.txt")
		require.NoError(t, os.WriteFile(outside, []byte("keep"), 0o644))
		dest := t.TempDir()
		require.NoError(t, os.Symlink(outside, filepath.Join(dest, "package.json")))

		n, err := extractTarGz(buildTarGz(t, tarEntry{name: "package.json", body: "{}"}), dest)
		require.NoError(t, err)
		assert.Equal(t, 1, n)
		data, err := os.ReadFile(outside)
		require.NoError(t, err)
		assert.Equal(t, "keep", string(data))
	})
}

func TestExtractTarGz_KeepsRelativeBinLink(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("需要创建符号链接的权限")
	}
	dest := t.TempDir()
	n, err := extractTarGz(buildTarGz(t,
		tarEntry{name: "node_modules/openclaw/openclaw.mjs", body: "// entry"},
		tarEntry{name: "node_modules/.bin/openclaw", linkname: "../openclaw/openclaw.mjs"},
	), dest)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	link, err := os.Readlink(filepath.Join(dest, "node_modules", ".bin", "openclaw"))
	require.NoError(t, err)
	assert.Equal(t, "../openclaw/openclaw.mjs", link)
}

func TestUninstallRemovesInstallDir(t *testing.T) {
	m, plat, _ := setup(t, platform.Linux)
	writeEntry(m.cli)
	require.NoError(t, os.MkdirAll(m.cli.CacheDir(), 0o755))

	require.NoError(t, m.Uninstall(context.Background()))
	assert.NoDirExists(t, m.cli.InstallDir())
	assert.NotEmpty(t, plat.CallsWithPrefix("exec npm uninstall openclaw"))
}

func TestCleanupKeepsInstallDir(t *testing.T) {
	m, _, _ := setup(t, platform.Linux)
	writeEntry(m.cli)
	require.NoError(t, os.MkdirAll(m.cli.CacheDir(), 0o755))

	require.NoError(t, m.Cleanup(context.Background(), openclaw.Installation{State: openclaw.Incomplete, Path: m.cli.PackageDir()}))
	assert.DirExists(t, m.cli.InstallDir())
	assert.NoDirExists(t, m.cli.PackageDir())
	assert.NoDirExists(t, m.cli.CacheDir())
}
