package platform

import (
	"context"
	"fmt"
	"strings"
	"time"

	"openclawsetup/internal/logger"
)

const nodeDownloadURL = "https://nodejs.org/en/download"

type darwinPlatform struct {
	*base
}

var darwinSecurityProducts = []knownProduct{
	{Match: "littlesnitch", Name: "Little Snitch"},
	{Match: "lulu", Name: "LuLu"},
	{Match: "falcond", Name: "CrowdStrike Falcon"},
	{Match: "sentinelagent", Name: "SentinelOne"},
	{Match: "sophos", Name: "Sophos"},
	{Match: "eset", Name: "ESET"},
	{Match: "mcafee", Name: "McAfee"},
	{Match: "norton", Name: "Norton"},
	{Match: "avast", Name: "Avast"},
}

// appleScriptString 转义为 AppleScript 字符串字面量
func appleScriptString(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `"`, `\"`)
	return `"` + s + `"`
}

func (p *darwinPlatform) RunElevated(ctx context.Context, name string, args ...string) (string, error) {
	script := "do shell script " + appleScriptString(shellJoin(name, args)) + " with administrator privileges"
	res, err := p.Exec(ctx, Command{Name: "osascript", Args: []string{"-e", script}, Timeout: p.opts.InstallTimeout})
	if err == nil {
		return res.Combined(), nil
	}
	out := strings.ToLower(OutputOf(err))
	if strings.Contains(out, "user canceled") || strings.Contains(out, "(-128)") {
		return "", ErrElevationDeclined
	}
	return res.Combined(), fmt.Errorf("提权执行 %s 失败: %w", name, err)
}

func (p *darwinPlatform) OpenTerminalAndWait(ctx context.Context, command string, probe Probe, opts WaitOptions) (WaitOutcome, error) {
	_, err := p.RunSilent(ctx, "osascript",
		"-e", `tell application "Terminal"`,
		"-e", "activate",
		"-e", "do script "+appleScriptString(command),
		"-e", "end tell",
	)
	if err != nil {
		return StillInProgress, fmt.Errorf("打开终端失败: %w", err)
	}
	return p.wait(ctx, probe, opts), nil
}

func (p *darwinPlatform) OpenBrowser(ctx context.Context, url string) error {
	_, err := p.RunSilent(ctx, "open", url)
	return err
}

func (p *darwinPlatform) BuildToolsPresent(ctx context.Context) bool {
	_, err := p.RunSilent(ctx, "xcode-select", "-p")
	return err == nil
}

func (p *darwinPlatform) DetectSecuritySoftware(ctx context.Context) string {
	res, err := p.RunSilent(ctx, "ps", "-axo", "comm=")
	if err != nil {
		return ""
	}
	return matchKnownProduct(res.Stdout, darwinSecurityProducts)
}

func (p *darwinPlatform) InstallRuntime(ctx context.Context) (string, error) {
	formula := fmt.Sprintf("node@%d", p.opts.NodeMajor)
	if !p.has("brew") {
		logger.Platform.Info().Msg("未检测到 Homebrew，打开 Node.js 官方下载页面")
		if err := p.OpenBrowser(ctx, nodeDownloadURL); err != nil {
			return "", fmt.Errorf("未检测到 Homebrew，且无法打开浏览器，请访问 %s 手动安装: %w", nodeDownloadURL, err)
		}
		return "已在浏览器中打开 Node.js 官方下载页面，请安装完成后重试", ErrManualAction
	}

	if _, err := p.runLong(ctx, "brew", "install", formula); err != nil {
		return "", fmt.Errorf("brew install %s 失败: %w", formula, err)
	}
	// keg-only 公式需要 link 到 PATH，失败时依赖 KnownBinDirs 中的 opt 路径
	if _, err := p.runLong(ctx, "brew", "link", "--overwrite", "--force", formula); err != nil {
		logger.Platform.Warn().Err(err).Msg("brew link 失败")
	}
	p.RefreshEnvironment()
	return fmt.Sprintf("已通过 Homebrew 安装 %s", formula), nil
}

func (p *darwinPlatform) InstallBuildTools(ctx context.Context) (string, error) {
	if _, err := p.RunSilent(ctx, "xcode-select", "--install"); err != nil {
		if strings.Contains(strings.ToLower(OutputOf(err)), "already installed") {
			return "Xcode 命令行工具已安装", nil
		}
		return "", fmt.Errorf("启动 Xcode 命令行工具安装失败: %w", err)
	}
	outcome := p.wait(ctx, func(ctx context.Context) bool {
		return p.BuildToolsPresent(ctx)
	}, WaitOptions{Interval: 5 * time.Second, Timeout: p.opts.InstallTimeout})
	if outcome != Completed {
		return "", fmt.Errorf("Xcode 命令行工具仍在安装，请完成系统弹窗中的安装后重试: %w", ErrManualAction)
	}
	return "已安装 Xcode 命令行工具", nil
}

func (p *darwinPlatform) InstallNativeDependency(ctx context.Context) (string, error) {
	return "", fmt.Errorf("macOS 缺少系统运行库时请更新系统或重新安装 Node.js: %w", ErrUnsupported)
}

func (p *darwinPlatform) ForceStopGateway(ctx context.Context, port int) error {
	return unixForceStop(ctx, p.base, port)
}
