// Package platform 封装三种操作系统在进程执行、提权、终端、安装渠道上的差异。
// 每个系统一个实现，启动时按检测到的系统由 New 选择。
package platform

import (
	"context"
	"os"
	"runtime"
	"time"
)

// Target 目标操作系统
type Target string

const (
	Windows Target = "windows"
	MacOS   Target = "darwin"
	Linux   Target = "linux"
)

// Detect 返回当前进程所在的系统
func Detect() Target {
	switch runtime.GOOS {
	case "windows":
		return Windows
	case "darwin":
		return MacOS
	default:
		return Linux
	}
}

// DisplayName 返回展示名
func (t Target) DisplayName() string {
	switch t {
	case Windows:
		return "Windows"
	case MacOS:
		return "macOS"
	default:
		return "Linux"
	}
}

// Platform 平台能力接口
type Platform interface {
	Target() Target

	// Exec 以补全后的 PATH 执行命令
	Exec(ctx context.Context, cmd Command) (Result, error)
	// RunSilent 不显示控制台窗口执行，用于状态探测
	RunSilent(ctx context.Context, name string, args ...string) (Result, error)
	// RunElevated 请求管理员权限执行并等待结束；用户拒绝时返回 ErrElevationDeclined
	RunElevated(ctx context.Context, name string, args ...string) (string, error)
	// OpenTerminalAndWait 打开可见终端运行 command，然后轮询 probe
	OpenTerminalAndWait(ctx context.Context, command string, probe Probe, opts WaitOptions) (WaitOutcome, error)
	// StartDetached 启动脱离当前进程的后台进程
	StartDetached(cmd Command) (int, error)
	LookPath(name string) (string, error)
	OpenBrowser(ctx context.Context, url string) error

	RuntimeVersion(ctx context.Context) (string, bool)
	PackageManagerPresent(ctx context.Context) bool
	BuildToolsPresent(ctx context.Context) bool
	FreeDiskGB(path string) float64
	DetectSecuritySoftware(ctx context.Context) string

	InstallRuntime(ctx context.Context) (string, error)
	InstallBuildTools(ctx context.Context) (string, error)
	InstallNativeDependency(ctx context.Context) (string, error)

	// RefreshEnvironment 重新计算子进程使用的 PATH
	RefreshEnvironment()
	Env() []string

	// ForceStopGateway 强制终止网关进程（Unix 按进程名，Windows 按监听端口）
	ForceStopGateway(ctx context.Context, port int) error
}

// Options 平台实现的参数
type Options struct {
	HomeDir    string
	InstallDir string
	ExtraPaths []string
	// ProbeTimeout 版本探测等短命令的超时
	ProbeTimeout time.Duration
	// InstallTimeout 包管理器安装命令的超时
	InstallTimeout time.Duration
	// GatewayPatterns Unix 下 pkill -f 使用的进程匹配串
	GatewayPatterns []string
	// NodeMajor 各渠道安装的 Node.js 主版本
	NodeMajor int
}

func (o Options) withDefaults() Options {
	if o.HomeDir == "" {
		o.HomeDir, _ = os.UserHomeDir()
	}
	if o.ProbeTimeout <= 0 {
		o.ProbeTimeout = 10 * time.Second
	}
	if o.InstallTimeout <= 0 {
		o.InstallTimeout = 15 * time.Minute
	}
	if len(o.GatewayPatterns) == 0 {
		o.GatewayPatterns = []string{"openclaw-gateway", "openclaw gateway"}
	}
	if o.NodeMajor <= 0 {
		o.NodeMajor = 22
	}
	return o
}

// New 按目标系统创建平台实现
func New(target Target, runner Runner, opts Options) Platform {
	b := newBase(target, runner, opts.withDefaults())
	switch target {
	case Windows:
		b.systemPath = registryPath
		w := &windowsPlatform{base: b, tcpTable: listeningPIDs}
		b.RefreshEnvironment()
		return w
	case MacOS:
		b.RefreshEnvironment()
		return &darwinPlatform{base: b}
	default:
		b.RefreshEnvironment()
		return &linuxPlatform{base: b}
	}
}

// NewHost 为当前系统创建使用真实进程的实现
func NewHost(opts Options) Platform {
	target := Detect()
	return New(target, NewExecRunner(target), opts)
}
