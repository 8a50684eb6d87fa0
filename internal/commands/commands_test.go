package commands

import (
	"bytes"
	"context"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"openclawsetup/internal/appconfig"
	"openclawsetup/internal/constants"
	"openclawsetup/internal/journal"
	"openclawsetup/internal/output"
	"openclawsetup/internal/platform"
	"openclawsetup/internal/prompt"
	"openclawsetup/internal/setup"
	"openclawsetup/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type harness struct {
	plat   *testutil.FakePlatform
	env    *Env
	stdout *bytes.Buffer
	stderr *bytes.Buffer
}

func freePort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := l.Addr().(*net.TCPAddr).Port
	require.NoError(t, l.Close())
	return port
}

func newHarness(t *testing.T, target platform.Target, jsonOut bool) *harness {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	t.Setenv("OPENCLAW_STATE_DIR", filepath.Join(t.TempDir(), ".openclaw"))
	t.Setenv("OPENCLAW_CONFIG_PATH", "")
	t.Cleanup(testutil.SetupTestDB(t))

	var stdout, stderr bytes.Buffer
	output.SetWriter(&stdout, &stderr)
	t.Cleanup(func() { output.SetWriter(os.Stdout, os.Stderr) })
	prevColor := output.ColorEnabled()
	output.SetColor(false)
	t.Cleanup(func() { output.SetColor(prevColor) })

	cfg := appconfig.Default()
	cfg.Install.Dir = filepath.Join(t.TempDir(), "openclaw")
	cfg.Install.BundlePath = ""
	cfg.Gateway.Port = freePort(t)
	cfg.Gateway.StopWaitMillis = 1

	plat := testutil.NewFakePlatform(target)
	plat.NpmPresent = true
	d := setup.Build(cfg, plat, nil)
	ops := journal.NewOperationRepo()
	d.Journal = ops
	d.Settings = journal.NewSettingRepo()

	env := NewEnv(cfg, setup.New(d), ops, jsonOut)
	env.State = journal.NewSettingRepo()
	return &harness{plat: plat, env: env, stdout: &stdout, stderr: &stderr}
}

func stubConfirm(t *testing.T, ok bool, err error) *int {
	t.Helper()
	calls := 0
	prev := confirm
	confirm = func(string, bool) (bool, error) {
		calls++
		return ok, err
	}
	t.Cleanup(func() { confirm = prev })
	return &calls
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, constants.ExitOK, exitCode(nil))
	assert.Equal(t, constants.ExitFailed, exitCode(assert.AnError))
	assert.Equal(t, constants.ExitDeclined, exitCode(platform.ErrElevationDeclined))
	assert.Equal(t, constants.ExitPending, exitCode(platform.ErrManualAction))
}

func TestCheck_ReadyRuntimeJSON(t *testing.T) {
	h := newHarness(t, platform.Linux, true)
	h.plat.Versions = []string{"v22.12.0"}

	code := Check(context.Background(), h.env)
	assert.Equal(t, constants.ExitOK, code)
	assert.Contains(t, h.stdout.String(), `"node_version":"v22.12.0"`)
	assert.Contains(t, h.stdout.String(), `"node_compatible":true`)
}

func TestCheck_MissingRuntime(t *testing.T) {
	h := newHarness(t, platform.Linux, false)
	h.plat.Versions = []string{""}

	code := Check(context.Background(), h.env)
	assert.Equal(t, constants.ExitFailed, code)
	assert.Contains(t, h.stdout.String(), "Node.js")
	assert.Contains(t, h.stdout.String(), "[缺失]")
}

func TestInstall_DeclinedElevationExitsWithDeclined(t *testing.T) {
	h := newHarness(t, platform.Linux, false)
	h.plat.Versions = []string{""}
	h.plat.InstallRuntimeFn = func() (string, error) { return "", platform.ErrElevationDeclined }

	code := Install(context.Background(), h.env, setup.InstallOptions{})
	assert.Equal(t, constants.ExitDeclined, code)
	assert.Empty(t, h.plat.CallsWithPrefix("exec npm"))
}

func TestInstall_ManualActionExitsPending(t *testing.T) {
	h := newHarness(t, platform.MacOS, false)
	h.plat.Versions = []string{""}
	h.plat.InstallRuntimeFn = func() (string, error) { return "已打开下载页面", platform.ErrManualAction }

	code := Install(context.Background(), h.env, setup.InstallOptions{})
	assert.Equal(t, constants.ExitPending, code)
	assert.Contains(t, h.stdout.String(), "[待完成]")
}

func TestInstall_InsufficientDiskFails(t *testing.T) {
	h := newHarness(t, platform.Linux, false)
	h.plat.DiskGB = 0.5

	code := Install(context.Background(), h.env, setup.InstallOptions{})
	assert.Equal(t, constants.ExitFailed, code)
	assert.Contains(t, h.stderr.String(), "0.5GB")
}

func TestUninstall_NonInteractiveRequiresYes(t *testing.T) {
	h := newHarness(t, platform.Linux, false)
	stubConfirm(t, false, prompt.ErrNotInteractive)

	code := Uninstall(context.Background(), h.env, UninstallArgs{})
	assert.Equal(t, constants.ExitUsage, code)
	assert.Empty(t, h.plat.CallLog())
}

func TestUninstall_CancelledByUser(t *testing.T) {
	h := newHarness(t, platform.Linux, false)
	stubConfirm(t, false, nil)

	code := Uninstall(context.Background(), h.env, UninstallArgs{})
	assert.Equal(t, constants.ExitDeclined, code)
	assert.Contains(t, h.stdout.String(), "已取消")
	assert.Empty(t, h.plat.CallLog())
}

func TestUninstall_YesSkipsConfirmation(t *testing.T) {
	h := newHarness(t, platform.Linux, false)
	calls := stubConfirm(t, true, nil)

	Uninstall(context.Background(), h.env, UninstallArgs{Yes: true})
	assert.Zero(t, *calls)
}

func TestGatewayStatus_NotRunningIsNotAnError(t *testing.T) {
	h := newHarness(t, platform.Linux, false)

	code := GatewayStatus(context.Background(), h.env)
	assert.Equal(t, constants.ExitOK, code)
	assert.Contains(t, h.stdout.String(), "未运行")
}

func TestHistory_ListsJournaledOperations(t *testing.T) {
	h := newHarness(t, platform.Linux, false)
	h.plat.Versions = []string{"v22.12.0"}
	Check(context.Background(), h.env)
	h.stdout.Reset()

	code := History(h.env, journal.OperationFilter{Limit: 5})
	assert.Equal(t, constants.ExitOK, code)
	assert.Contains(t, h.stdout.String(), constants.ActionCheck)
	assert.Contains(t, h.stdout.String(), "[成功]")
}

func TestHistory_WithoutJournalFails(t *testing.T) {
	h := newHarness(t, platform.Linux, false)
	h.env.Ops = nil

	code := History(h.env, journal.OperationFilter{})
	assert.Equal(t, constants.ExitFailed, code)
	assert.Contains(t, h.stderr.String(), "操作日志库不可用")
}

func TestClassify_FromStdin(t *testing.T) {
	h := newHarness(t, platform.Linux, false)
	input := "npm ERR! code ENOTFOUND\nnpm ERR! network request failed, reason: getaddrinfo ENOTFOUND registry.npmjs.org"

	code := Classify(strings.NewReader(input), "", false)
	assert.Equal(t, constants.ExitOK, code)
	assert.Contains(t, h.stdout.String(), "network_unreachable")
}

func TestClassify_FromFileJSON(t *testing.T) {
	h := newHarness(t, platform.Linux, false)
	path := filepath.Join(t.TempDir(), "npm.log")
	require.NoError(t, os.WriteFile(path, []byte("npm ERR! code ENOSPC\nnpm ERR! no space left on device"), 0o644))

	code := Classify(strings.NewReader(""), path, true)
	assert.Equal(t, constants.ExitOK, code)
	assert.Contains(t, h.stdout.String(), `"category":"disk_space_exhausted"`)
}

func TestClassify_EmptyInputIsUsageError(t *testing.T) {
	newHarness(t, platform.Linux, false)
	assert.Equal(t, constants.ExitUsage, Classify(strings.NewReader("  \n"), "", false))
}

func TestSettingsShow_RedactsSecrets(t *testing.T) {
	h := newHarness(t, platform.Linux, true)
	h.env.Config.Notify.TelegramToken = "bot-secret-token"
	h.env.Config.Database.PostgresDSN = "postgres://u:pw@db/ocs"

	code := SettingsShow(h.env)
	assert.Equal(t, constants.ExitOK, code)
	out := h.stdout.String()
	assert.NotContains(t, out, "bot-secret-token")
	assert.NotContains(t, out, "u:pw")
	assert.Contains(t, out, "******")
	assert.Equal(t, "bot-secret-token", h.env.Config.Notify.TelegramToken)
}

func TestVersionJSON(t *testing.T) {
	h := newHarness(t, platform.Linux, false)
	assert.Equal(t, constants.ExitOK, Version(true))
	assert.Contains(t, h.stdout.String(), `"openclaw":`)
}
