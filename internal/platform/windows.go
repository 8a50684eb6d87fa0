package platform

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"openclawsetup/internal/logger"
)

const (
	// winget 按主版本发布 Node.js，如 OpenJS.NodeJS.22
	wingetNodeIDFormat = "OpenJS.NodeJS.%d"
	wingetVCRedistID   = "Microsoft.VCRedist.2015+.x64"
	vcRedistDirectURL  = "https://aka.ms/vs/17/release/vc_redist.x64.exe"
)

type windowsPlatform struct {
	*base
	// tcpTable 通过 iphlpapi 读取监听指定端口的 PID
	tcpTable func(port int) ([]int, error)
}

var windowsSecurityProducts = []knownProduct{
	{Match: "360tray.exe", Name: "360安全卫士"},
	{Match: "360sd.exe", Name: "360杀毒"},
	{Match: "hipstray.exe", Name: "火绒安全"},
	{Match: "hipsdaemon.exe", Name: "火绒安全"},
	{Match: "qqpctray.exe", Name: "腾讯电脑管家"},
	{Match: "kxetray.exe", Name: "金山毒霸"},
	{Match: "avp.exe", Name: "Kaspersky"},
	{Match: "ekrn.exe", Name: "ESET"},
	{Match: "mcshield.exe", Name: "McAfee"},
	{Match: "avastsvc.exe", Name: "Avast"},
	{Match: "nortonsecurity.exe", Name: "Norton"},
}

func wingetNodeID(major int) string {
	return fmt.Sprintf(wingetNodeIDFormat, major)
}

// psQuote PowerShell 单引号字符串
func psQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

func (p *windowsPlatform) powershell(ctx context.Context, script string) (Result, error) {
	return p.RunSilent(ctx, "powershell", "-NoProfile", "-NonInteractive", "-ExecutionPolicy", "Bypass", "-Command", script)
}

func (p *windowsPlatform) RunElevated(ctx context.Context, name string, args ...string) (string, error) {
	script := "$p = Start-Process -FilePath " + psQuote(name)
	if len(args) > 0 {
		quoted := make([]string, len(args))
		for i, a := range args {
			quoted[i] = psQuote(a)
		}
		script += " -ArgumentList @(" + strings.Join(quoted, ",") + ")"
	}
	script += " -Verb RunAs -Wait -PassThru -WindowStyle Hidden; exit $p.ExitCode"

	res, err := p.Exec(ctx, Command{
		Name:    "powershell",
		Args:    []string{"-NoProfile", "-NonInteractive", "-ExecutionPolicy", "Bypass", "-Command", script},
		Timeout: p.opts.InstallTimeout,
	})
	if err == nil {
		return res.Combined(), nil
	}
	out := strings.ToLower(OutputOf(err))
	if strings.Contains(out, "canceled by the user") || strings.Contains(out, "cancelled by the user") ||
		strings.Contains(out, "操作已被用户取消") {
		return "", ErrElevationDeclined
	}
	return res.Combined(), fmt.Errorf("提权执行 %s 失败: %w", name, err)
}

func (p *windowsPlatform) OpenTerminalAndWait(ctx context.Context, command string, probe Probe, opts WaitOptions) (WaitOutcome, error) {
	_, err := p.StartDetached(Command{
		Name:    "powershell",
		Args:    []string{"-NoExit", "-NoProfile", "-ExecutionPolicy", "Bypass", "-Command", command},
		Visible: true,
	})
	if err != nil {
		return StillInProgress, fmt.Errorf("打开 PowerShell 窗口失败: %w", err)
	}
	return p.wait(ctx, probe, opts), nil
}

func (p *windowsPlatform) OpenBrowser(ctx context.Context, url string) error {
	_, err := p.RunSilent(ctx, "rundll32", "url.dll,FileProtocolHandler", url)
	return err
}

// BuildToolsPresent Windows 上检测 VC++ 运行库
func (p *windowsPlatform) BuildToolsPresent(ctx context.Context) bool {
	root := os.Getenv("SystemRoot")
	if root == "" {
		root = `C:\Windows`
	}
	_, err := os.Stat(filepath.Join(root, "System32", "vcruntime140.dll"))
	return err == nil
}

func (p *windowsPlatform) DetectSecuritySoftware(ctx context.Context) string {
	res, err := p.powershell(ctx,
		"Get-CimInstance -Namespace root/SecurityCenter2 -ClassName AntiVirusProduct | Select-Object -ExpandProperty displayName")
	if err == nil {
		for _, line := range strings.Split(res.Stdout, "\n") {
			name := strings.TrimSpace(line)
			lower := strings.ToLower(name)
			if name == "" || strings.Contains(lower, "windows defender") || strings.Contains(lower, "microsoft defender") {
				continue
			}
			return name
		}
	}
	// Server 版本没有 SecurityCenter2，退回进程列表
	res, err = p.RunSilent(ctx, "tasklist", "/FO", "CSV", "/NH")
	if err != nil {
		return ""
	}
	return matchKnownProduct(res.Stdout, windowsSecurityProducts)
}

func (p *windowsPlatform) winget(ctx context.Context, id string) error {
	_, err := p.runLong(ctx, "winget", "install", "--id", id, "-e", "--source", "winget",
		"--accept-package-agreements", "--accept-source-agreements", "--silent")
	if err == nil {
		return nil
	}
	out := strings.ToLower(OutputOf(err))
	if strings.Contains(out, "already installed") || strings.Contains(out, "no available upgrade") ||
		strings.Contains(out, "no newer package") {
		return nil
	}
	return err
}

func (p *windowsPlatform) InstallRuntime(ctx context.Context) (string, error) {
	if !p.has("winget") {
		logger.Platform.Info().Msg("未检测到 winget，打开 Node.js 官方下载页面")
		if err := p.OpenBrowser(ctx, nodeDownloadURL); err != nil {
			return "", fmt.Errorf("未检测到 winget，请访问 %s 手动安装: %w", nodeDownloadURL, err)
		}
		return "已在浏览器中打开 Node.js 官方下载页面，请安装完成后重试", ErrManualAction
	}
	if err := p.winget(ctx, wingetNodeID(p.opts.NodeMajor)); err != nil {
		return "", fmt.Errorf("winget 安装 Node.js 失败: %w", err)
	}
	p.RefreshEnvironment()
	return "已通过 winget 安装 Node.js", nil
}

func (p *windowsPlatform) InstallBuildTools(ctx context.Context) (string, error) {
	return "", fmt.Errorf("请安装 Visual Studio Build Tools 并勾选「使用 C++ 的桌面开发」: %w", ErrUnsupported)
}

func (p *windowsPlatform) InstallNativeDependency(ctx context.Context) (string, error) {
	if !p.has("winget") {
		if err := p.OpenBrowser(ctx, vcRedistDirectURL); err != nil {
			return "", fmt.Errorf("请手动下载安装 VC++ 运行库 %s: %w", vcRedistDirectURL, err)
		}
		return "已打开 VC++ 运行库下载链接，请安装完成后重试", ErrManualAction
	}
	if err := p.winget(ctx, wingetVCRedistID); err != nil {
		return "", fmt.Errorf("安装 VC++ 运行库失败: %w", err)
	}
	return "已安装 VC++ 运行库", nil
}

// ForceStopGateway 找到监听网关端口的进程并强制结束。
// 前台模式运行的网关不响应 gateway stop，只能按端口处理
func (p *windowsPlatform) ForceStopGateway(ctx context.Context, port int) error {
	pids, err := p.tcpTable(port)
	if err != nil {
		logger.Platform.Debug().Err(err).Msg("GetExtendedTcpTable 不可用，改用 netstat")
		res, nerr := p.RunSilent(ctx, "netstat", "-ano", "-p", "TCP")
		if nerr != nil {
			return fmt.Errorf("无法获取端口 %d 的监听进程: %w", port, nerr)
		}
		pids = ParseNetstatListeners(res.Stdout, port)
	}
	if len(pids) == 0 {
		// 兜底：按命令行匹配 node.exe 中的网关进程
		_, _ = p.powershell(ctx, "Get-CimInstance Win32_Process -Filter \"Name='node.exe'\" | "+
			"Where-Object { $_.CommandLine -match 'openclaw' -and $_.CommandLine -match 'gateway' } | "+
			"ForEach-Object { Stop-Process -Id $_.ProcessId -Force -ErrorAction SilentlyContinue }")
		return nil
	}
	var failed []string
	for _, pid := range pids {
		if _, err := p.RunSilent(ctx, "taskkill", "/F", "/T", "/PID", strconv.Itoa(pid)); err != nil {
			failed = append(failed, strconv.Itoa(pid))
		}
	}
	if len(failed) > 0 {
		return fmt.Errorf("结束进程失败: PID %s", strings.Join(failed, ","))
	}
	return nil
}
