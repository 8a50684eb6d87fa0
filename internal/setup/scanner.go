package setup

import (
	"context"
	"fmt"
	"os"
	"os/user"
	"runtime"
	"strings"
	"time"

	"openclawsetup/internal/constants"
	"openclawsetup/internal/openclaw"
	"openclawsetup/internal/platform"
	"openclawsetup/internal/prereq"
)

// ToolInfo 工具检测信息
type ToolInfo struct {
	Installed bool   `json:"installed"`
	Version   string `json:"version,omitempty"`
	Path      string `json:"path,omitempty"`
}

// EnvironmentReport 环境扫描报告
type EnvironmentReport struct {
	// 系统信息
	OS            string `json:"os"`
	Arch          string `json:"arch"`
	Distro        string `json:"distro,omitempty"`
	DistroVersion string `json:"distro_version,omitempty"`
	Kernel        string `json:"kernel,omitempty"`
	Hostname      string `json:"hostname"`
	CurrentUser   string `json:"current_user"`
	IsRoot        bool   `json:"is_root"`
	IsWSL         bool   `json:"is_wsl"`
	IsDocker      bool   `json:"is_docker"`
	IsSSH         bool   `json:"is_ssh"`

	PackageManager string              `json:"package_manager,omitempty"`
	Tools          map[string]ToolInfo `json:"tools"`
	// ProxyVars 已设置的代理变量名，会原样传给子进程
	ProxyVars []string `json:"proxy_vars,omitempty"`

	Prerequisites prereq.Status `json:"prerequisites"`
	Requirement   string        `json:"requirement"`

	// OpenClaw 状态
	InstallDir       string                `json:"install_dir"`
	Installation     openclaw.Installation `json:"installation"`
	ConfigPath       string                `json:"config_path"`
	ConfigExists     bool                  `json:"config_exists"`
	GatewayState     openclaw.GatewayState `json:"gateway_state"`
	GatewayPort      int                   `json:"gateway_port"`
	GatewayListening bool                  `json:"gateway_listening"`

	Warnings []string `json:"warnings,omitempty"`
	ScanTime string   `json:"scan_time"`
}

// Scan 执行完整环境扫描，只读，不修改任何状态
func (o *Orchestrator) Scan(ctx context.Context) *EnvironmentReport {
	target := o.plat.Target()
	report := &EnvironmentReport{
		OS:       string(target),
		Arch:     runtime.GOARCH,
		Tools:    make(map[string]ToolInfo),
		ScanTime: time.Now().Format(time.RFC3339),
	}

	report.Hostname, _ = os.Hostname()
	report.CurrentUser = currentUser()
	report.IsRoot = target != platform.Windows && os.Geteuid() == 0
	report.IsSSH = os.Getenv("SSH_CONNECTION") != "" || os.Getenv("SSH_CLIENT") != ""
	if target == platform.Linux {
		if data, err := os.ReadFile("/etc/os-release"); err == nil {
			report.Distro, report.DistroVersion = parseOSRelease(string(data))
		}
		if data, err := os.ReadFile("/proc/version"); err == nil {
			report.IsWSL = strings.Contains(strings.ToLower(string(data)), "microsoft")
		}
		report.IsDocker = detectDocker()
	}
	report.Kernel = o.kernel(ctx)
	report.PackageManager = o.packageManager()

	for _, name := range platform.ProxyVars() {
		if os.Getenv(name) != "" {
			report.ProxyVars = append(report.ProxyVars, name)
		}
	}

	report.Prerequisites = o.prereq.Check(ctx)
	report.Requirement = o.prereq.Requirement().String()
	st := report.Prerequisites
	report.Tools["node"] = ToolInfo{Installed: st.NodeInstalled, Version: st.NodeVersion}
	report.Tools["npm"] = o.tool(ctx, constants.NpmBin, "--version")
	report.Tools["git"] = o.tool(ctx, "git", "--version")

	report.InstallDir = o.cli.InstallDir()
	report.Installation = o.cli.Locate(ctx)
	report.Tools["openclaw"] = ToolInfo{
		Installed: report.Installation.State == openclaw.Installed,
		Version:   report.Installation.Version,
		Path:      report.Installation.Path,
	}
	report.ConfigPath = o.config.Path()
	report.ConfigExists = o.config.Exists()
	report.GatewayPort = o.gateway.Port()
	report.GatewayState = openclaw.Stopped
	if report.Installation.State == openclaw.Installed {
		report.GatewayState = o.gateway.Status(ctx)
	}
	report.GatewayListening = o.gateway.Listening()

	report.Warnings = generateWarnings(report)
	return report
}

func (o *Orchestrator) tool(ctx context.Context, name, versionArg string) ToolInfo {
	path, err := o.plat.LookPath(name)
	if err != nil {
		return ToolInfo{}
	}
	info := ToolInfo{Installed: true, Path: path}
	if res, err := o.plat.RunSilent(ctx, path, versionArg); err == nil {
		info.Version = platform.ExtractVersion(res.Stdout)
	}
	return info
}

func (o *Orchestrator) kernel(ctx context.Context) string {
	var res platform.Result
	var err error
	if o.plat.Target() == platform.Windows {
		res, err = o.plat.RunSilent(ctx, "cmd", "/c", "ver")
	} else {
		res, err = o.plat.RunSilent(ctx, "uname", "-r")
	}
	if err != nil {
		return ""
	}
	return strings.TrimSpace(res.Stdout)
}

// packageManager 各系统安装 Node.js 时使用的包管理器
func (o *Orchestrator) packageManager() string {
	var candidates []string
	switch o.plat.Target() {
	case platform.Windows:
		candidates = []string{"winget", "choco", "scoop"}
	case platform.MacOS:
		candidates = []string{"brew"}
	default:
		candidates = []string{"apt-get", "dnf", "pacman", "yum", "zypper", "apk"}
	}
	for _, name := range candidates {
		if _, err := o.plat.LookPath(name); err == nil {
			return name
		}
	}
	return ""
}

func currentUser() string {
	if u, err := user.Current(); err == nil {
		return u.Username
	}
	if name := os.Getenv("USER"); name != "" {
		return name
	}
	return os.Getenv("USERNAME")
}

func detectDocker() bool {
	if _, err := os.Stat("/.dockerenv"); err == nil {
		return true
	}
	data, err := os.ReadFile("/proc/1/cgroup")
	return err == nil && strings.Contains(string(data), "docker")
}

// parseOSRelease 解析 /etc/os-release 的 ID 与 VERSION_ID
func parseOSRelease(data string) (name, version string) {
	for _, line := range strings.Split(data, "\n") {
		line = strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(line, "ID="):
			name = strings.Trim(strings.TrimPrefix(line, "ID="), `"'`)
		case strings.HasPrefix(line, "VERSION_ID="):
			version = strings.Trim(strings.TrimPrefix(line, "VERSION_ID="), `"'`)
		}
	}
	return name, version
}

func generateWarnings(report *EnvironmentReport) []string {
	var warnings []string
	st := report.Prerequisites

	switch {
	case !st.NodeInstalled:
		warnings = append(warnings, fmt.Sprintf("未检测到 Node.js，OpenClaw 需要 Node.js %s", report.Requirement))
	case st.NodeTooNew:
		warnings = append(warnings, fmt.Sprintf("Node.js %s 版本过新，可能与 OpenClaw 不兼容（要求 %s）", st.NodeVersion, report.Requirement))
	case !st.NodeCompatible:
		warnings = append(warnings, fmt.Sprintf("Node.js %s 版本过低，OpenClaw 需要 %s", st.NodeVersion, report.Requirement))
	}
	if st.NodeInstalled && !st.NpmInstalled {
		warnings = append(warnings, "已安装 Node.js 但找不到 npm")
	}
	if !st.DiskSufficient {
		warnings = append(warnings, fmt.Sprintf("磁盘剩余空间不足 (%.1f GB)，建议至少 %.0f GB", st.DiskFreeGB, constants.MinFreeDiskGB))
	}
	if st.SecuritySoftware != "" {
		warnings = append(warnings, fmt.Sprintf("检测到安全软件 %s，可能拦截安装过程", st.SecuritySoftware))
	}
	if report.IsRoot {
		warnings = append(warnings, "不建议以 root 用户运行 OpenClaw")
	}
	if report.IsWSL {
		warnings = append(warnings, "检测到 WSL 环境，部分功能可能受限")
	}
	if report.Installation.State == openclaw.Incomplete {
		warnings = append(warnings, "检测到不完整的 OpenClaw 安装，重新安装时会先清理")
	}
	if report.GatewayState != openclaw.Running && report.GatewayListening {
		warnings = append(warnings, fmt.Sprintf("端口 %d 已被其他程序占用", report.GatewayPort))
	}
	return warnings
}
