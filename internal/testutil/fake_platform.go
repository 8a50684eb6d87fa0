package testutil

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync"

	"openclawsetup/internal/platform"
)

// FakePlatform 可编排的 platform.Platform 替身，记录每次调用
type FakePlatform struct {
	mu sync.Mutex

	TargetOS platform.Target
	Calls    []string

	// Versions 依次作为 RuntimeVersion 的返回值，最后一个会重复；"" 表示未安装
	Versions   []string
	NpmPresent bool
	BuildTools bool
	DiskGB     float64
	Security   string
	// Paths 供 LookPath 使用：命令名 → 路径
	Paths map[string]string

	ExecFn                    func(cmd platform.Command) (platform.Result, error)
	ElevatedFn                func(name string, args []string) (string, error)
	TerminalFn                func(ctx context.Context, command string, probe platform.Probe) (platform.WaitOutcome, error)
	StartFn                   func(cmd platform.Command) (int, error)
	ForceStopFn               func(port int) error
	InstallRuntimeFn          func() (string, error)
	InstallBuildToolsFn       func() (string, error)
	InstallNativeDependencyFn func() (string, error)
}

func NewFakePlatform(target platform.Target) *FakePlatform {
	return &FakePlatform{TargetOS: target, DiskGB: 100, Paths: map[string]string{}}
}

func (f *FakePlatform) record(format string, args ...any) {
	f.mu.Lock()
	f.Calls = append(f.Calls, fmt.Sprintf(format, args...))
	f.mu.Unlock()
}

// CallLog 返回调用记录副本
func (f *FakePlatform) CallLog() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.Calls...)
}

// CallsWithPrefix 返回以 prefix 开头的调用
func (f *FakePlatform) CallsWithPrefix(prefix string) []string {
	var out []string
	for _, c := range f.CallLog() {
		if strings.HasPrefix(c, prefix) {
			out = append(out, c)
		}
	}
	return out
}

func (f *FakePlatform) Target() platform.Target { return f.TargetOS }

func (f *FakePlatform) Exec(ctx context.Context, cmd platform.Command) (platform.Result, error) {
	f.record("exec %s", cmd.String())
	if f.ExecFn != nil {
		return f.ExecFn(cmd)
	}
	return platform.Result{}, &platform.SpawnError{Name: cmd.Name, Err: exec.ErrNotFound}
}

func (f *FakePlatform) RunSilent(ctx context.Context, name string, args ...string) (platform.Result, error) {
	return f.Exec(ctx, platform.Command{Name: name, Args: args})
}

func (f *FakePlatform) RunElevated(ctx context.Context, name string, args ...string) (string, error) {
	f.record("elevated %s", strings.TrimSpace(name+" "+strings.Join(args, " ")))
	if f.ElevatedFn != nil {
		return f.ElevatedFn(name, args)
	}
	return "", nil
}

func (f *FakePlatform) OpenTerminalAndWait(ctx context.Context, command string, probe platform.Probe, opts platform.WaitOptions) (platform.WaitOutcome, error) {
	f.record("terminal %s", command)
	if f.TerminalFn != nil {
		return f.TerminalFn(ctx, command, probe)
	}
	if probe(ctx) {
		return platform.Completed, nil
	}
	return platform.StillInProgress, nil
}

func (f *FakePlatform) StartDetached(cmd platform.Command) (int, error) {
	f.record("start %s", cmd.String())
	if f.StartFn != nil {
		return f.StartFn(cmd)
	}
	return 1234, nil
}

func (f *FakePlatform) LookPath(name string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if p, ok := f.Paths[name]; ok {
		return p, nil
	}
	return "", exec.ErrNotFound
}

func (f *FakePlatform) OpenBrowser(ctx context.Context, url string) error {
	f.record("browser %s", url)
	return nil
}

func (f *FakePlatform) RuntimeVersion(ctx context.Context) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls = append(f.Calls, "runtime_version")
	if len(f.Versions) == 0 {
		return "", false
	}
	v := f.Versions[0]
	if len(f.Versions) > 1 {
		f.Versions = f.Versions[1:]
	}
	return v, v != ""
}

func (f *FakePlatform) PackageManagerPresent(ctx context.Context) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.NpmPresent
}

func (f *FakePlatform) BuildToolsPresent(ctx context.Context) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.BuildTools
}

func (f *FakePlatform) FreeDiskGB(path string) float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.DiskGB
}

func (f *FakePlatform) DetectSecuritySoftware(ctx context.Context) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Security
}

func (f *FakePlatform) InstallRuntime(ctx context.Context) (string, error) {
	f.record("install_runtime")
	if f.InstallRuntimeFn != nil {
		return f.InstallRuntimeFn()
	}
	return "installed", nil
}

func (f *FakePlatform) InstallBuildTools(ctx context.Context) (string, error) {
	f.record("install_build_tools")
	if f.InstallBuildToolsFn != nil {
		return f.InstallBuildToolsFn()
	}
	return "build tools installed", nil
}

func (f *FakePlatform) InstallNativeDependency(ctx context.Context) (string, error) {
	f.record("install_native_dependency")
	if f.InstallNativeDependencyFn != nil {
		return f.InstallNativeDependencyFn()
	}
	return "runtime library installed", nil
}

func (f *FakePlatform) RefreshEnvironment() { f.record("refresh") }

func (f *FakePlatform) Env() []string { return os.Environ() }

func (f *FakePlatform) ForceStopGateway(ctx context.Context, port int) error {
	f.record("force_stop %d", port)
	if f.ForceStopFn != nil {
		return f.ForceStopFn(port)
	}
	return nil
}

var _ platform.Platform = (*FakePlatform)(nil)
