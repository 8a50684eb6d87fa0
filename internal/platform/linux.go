package platform

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"openclawsetup/internal/logger"
)

type linuxPlatform struct {
	*base
}

// linuxPackageManager 发行版包管理器及其安装命令，按 apt-get → dnf → pacman 顺序探测
type linuxPackageManager struct {
	Name       string
	Runtime    func(nodeMajor int) []string
	BuildTools []string
	NativeDeps []string
}

var linuxPackageManagers = []linuxPackageManager{
	{
		Name: "apt-get",
		Runtime: func(major int) []string {
			return []string{"sh", "-c", fmt.Sprintf(
				"apt-get update && apt-get install -y ca-certificates curl && curl -fsSL https://deb.nodesource.com/setup_%d.x | bash - && apt-get install -y nodejs", major)}
		},
		BuildTools: []string{"sh", "-c", "apt-get update && apt-get install -y build-essential python3"},
		NativeDeps: []string{"apt-get", "install", "-y", "libstdc++6"},
	},
	{
		Name: "dnf",
		Runtime: func(major int) []string {
			return []string{"sh", "-c", fmt.Sprintf(
				"curl -fsSL https://rpm.nodesource.com/setup_%d.x | bash - && dnf install -y nodejs", major)}
		},
		BuildTools: []string{"dnf", "install", "-y", "gcc-c++", "make", "python3"},
		NativeDeps: []string{"dnf", "install", "-y", "libstdc++"},
	},
	{
		Name: "pacman",
		Runtime: func(int) []string {
			return []string{"pacman", "-Sy", "--needed", "--noconfirm", "nodejs", "npm"}
		},
		BuildTools: []string{"pacman", "-S", "--needed", "--noconfirm", "base-devel", "python"},
		NativeDeps: []string{"pacman", "-S", "--needed", "--noconfirm", "gcc-libs"},
	},
}

var linuxTerminals = []struct {
	Name string
	Flag []string
}{
	{"x-terminal-emulator", []string{"-e"}},
	{"gnome-terminal", []string{"--"}},
	{"konsole", []string{"-e"}},
	{"xfce4-terminal", []string{"-x"}},
	{"xterm", []string{"-e"}},
}

var linuxSecurityProducts = []knownProduct{
	{Match: "falcon-sensor", Name: "CrowdStrike Falcon"},
	{Match: "sentinelagent", Name: "SentinelOne"},
	{Match: "wdavdaemon", Name: "Microsoft Defender for Endpoint"},
	{Match: "sophos", Name: "Sophos"},
	{Match: "esets", Name: "ESET"},
}

func (p *linuxPlatform) packageManager() (linuxPackageManager, bool) {
	for _, pm := range linuxPackageManagers {
		if p.has(pm.Name) {
			return pm, true
		}
	}
	return linuxPackageManager{}, false
}

func (p *linuxPlatform) RunElevated(ctx context.Context, name string, args ...string) (string, error) {
	res, err := p.Exec(ctx, Command{Name: "pkexec", Args: append([]string{name}, args...), Timeout: p.opts.InstallTimeout})
	if err == nil {
		return res.Combined(), nil
	}
	var ee *ExitError
	if errors.As(err, &ee) {
		// 126: 认证对话框被关闭；127 且提示未授权: 认证失败
		if ee.Code == 126 || (ee.Code == 127 && strings.Contains(strings.ToLower(ee.Output), "not authorized")) {
			return "", ErrElevationDeclined
		}
		return res.Combined(), fmt.Errorf("提权执行 %s 失败: %w", name, err)
	}

	// 没有 pkexec 时尝试免密 sudo
	res, sudoErr := p.Exec(ctx, Command{Name: "sudo", Args: append([]string{"-n", name}, args...), Timeout: p.opts.InstallTimeout})
	if sudoErr == nil {
		return res.Combined(), nil
	}
	if strings.Contains(strings.ToLower(OutputOf(sudoErr)), "password is required") {
		return "", fmt.Errorf("需要管理员权限，请在终端执行: sudo %s: %w", shellJoin(name, args), sudoErr)
	}
	return res.Combined(), fmt.Errorf("提权执行 %s 失败: %w", name, sudoErr)
}

func (p *linuxPlatform) OpenTerminalAndWait(ctx context.Context, command string, probe Probe, opts WaitOptions) (WaitOutcome, error) {
	script := command + `; echo; read -r -p "按回车键关闭窗口..." _`
	for _, term := range linuxTerminals {
		if !p.has(term.Name) {
			continue
		}
		args := append(append([]string{}, term.Flag...), "bash", "-c", script)
		if _, err := p.StartDetached(Command{Name: term.Name, Args: args, Visible: true}); err != nil {
			logger.Platform.Warn().Err(err).Str("terminal", term.Name).Msg("打开终端失败，尝试下一个")
			continue
		}
		return p.wait(ctx, probe, opts), nil
	}
	return StillInProgress, fmt.Errorf("未找到可用的终端模拟器: %w", ErrUnsupported)
}

func (p *linuxPlatform) OpenBrowser(ctx context.Context, url string) error {
	_, err := p.RunSilent(ctx, "xdg-open", url)
	return err
}

func (p *linuxPlatform) BuildToolsPresent(ctx context.Context) bool {
	return p.has("make") && (p.has("g++") || p.has("c++"))
}

func (p *linuxPlatform) DetectSecuritySoftware(ctx context.Context) string {
	res, err := p.RunSilent(ctx, "ps", "-eo", "comm=")
	if err != nil {
		return ""
	}
	return matchKnownProduct(res.Stdout, linuxSecurityProducts)
}

func (p *linuxPlatform) InstallRuntime(ctx context.Context) (string, error) {
	pm, ok := p.packageManager()
	if !ok {
		return "", errors.New("未检测到受支持的包管理器（apt-get/dnf/pacman），请手动安装 Node.js")
	}
	cmd := pm.Runtime(p.opts.NodeMajor)
	logger.Platform.Info().Str("pm", pm.Name).Msg("通过包管理器安装 Node.js")
	if _, err := p.RunElevated(ctx, cmd[0], cmd[1:]...); err != nil {
		return "", err
	}
	return fmt.Sprintf("已通过 %s 安装 Node.js", pm.Name), nil
}

func (p *linuxPlatform) InstallBuildTools(ctx context.Context) (string, error) {
	pm, ok := p.packageManager()
	if !ok {
		return "", errors.New("未检测到受支持的包管理器，无法自动安装编译工具")
	}
	if _, err := p.RunElevated(ctx, pm.BuildTools[0], pm.BuildTools[1:]...); err != nil {
		return "", err
	}
	return fmt.Sprintf("已通过 %s 安装编译工具", pm.Name), nil
}

func (p *linuxPlatform) InstallNativeDependency(ctx context.Context) (string, error) {
	pm, ok := p.packageManager()
	if !ok {
		return "", errors.New("未检测到受支持的包管理器，无法自动安装系统运行库")
	}
	if _, err := p.RunElevated(ctx, pm.NativeDeps[0], pm.NativeDeps[1:]...); err != nil {
		return "", err
	}
	return fmt.Sprintf("已通过 %s 安装 C++ 运行库", pm.Name), nil
}

func (p *linuxPlatform) ForceStopGateway(ctx context.Context, port int) error {
	return unixForceStop(ctx, p.base, port)
}
