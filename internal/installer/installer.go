package installer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"openclawsetup/internal/constants"
	"openclawsetup/internal/errclass"
	"openclawsetup/internal/logger"
	"openclawsetup/internal/openclaw"
	"openclawsetup/internal/platform"
)

// Strategy 安装策略
type Strategy string

const (
	StrategyNone          Strategy = ""
	StrategyBundle        Strategy = "bundle"
	StrategyTarball       Strategy = "npm-tarball"
	StrategyIgnoreScripts Strategy = "npm-ignore-scripts"
	StrategyConsole       Strategy = "console"
)

// Options 安装参数
type Options struct {
	// BundlePath 随安装程序分发的离线包，不存在时跳过
	BundlePath string
	Package    string
	// TarballURL 固定版本的 tarball 地址
	TarballURL      string
	Registry        string
	CommandTimeout  time.Duration
	TerminalTimeout time.Duration
	TerminalPoll    time.Duration
}

// Outcome 一次安装的结果
type Outcome struct {
	Success          bool     `json:"success"`
	Message          string   `json:"message"`
	Strategy         Strategy `json:"strategy,omitempty"`
	AlreadyInstalled bool     `json:"already_installed"`
	CleanedUp        bool     `json:"cleaned_up"`
	// Remediated 执行过一次自动修复
	Remediated bool `json:"remediated"`
	// Pending 可见终端仍在运行，尚未确认结果
	Pending bool `json:"pending"`
	// Warning 成功但有可选组件失败
	Warning string `json:"warning,omitempty"`

	Analysis   *errclass.Analysis `json:"analysis,omitempty"`
	Diagnostic string             `json:"diagnostic,omitempty"`
}

// InstallError 分类后的最终安装失败
type InstallError struct {
	Analysis   errclass.Analysis
	Diagnostic string
	// Cause 修复阶段的底层错误（如用户拒绝提权）
	Cause error
}

func (e *InstallError) Error() string {
	msg := e.Analysis.Description
	if e.Analysis.Remedy != "" {
		msg += "。" + e.Analysis.Remedy
	}
	return msg
}

func (e *InstallError) Unwrap() error { return e.Cause }

// ProgressFunc 安装过程中的阶段与输出回调
type ProgressFunc func(step, message string)

// Manager 工具安装与恢复。平台与分类器均由调用方注入
type Manager struct {
	plat       platform.Platform
	cli        *openclaw.CLI
	classifier *errclass.Classifier
	opts       Options
	progress   ProgressFunc
}

func New(plat platform.Platform, cli *openclaw.CLI, classifier *errclass.Classifier, opts Options) *Manager {
	if opts.Package == "" {
		opts.Package = constants.OpenClawPackage
	}
	if opts.CommandTimeout <= 0 {
		opts.CommandTimeout = 15 * time.Minute
	}
	if opts.TerminalTimeout <= 0 {
		opts.TerminalTimeout = 10 * time.Minute
	}
	if opts.TerminalPoll <= 0 {
		opts.TerminalPoll = 3 * time.Second
	}
	return &Manager{plat: plat, cli: cli, classifier: classifier, opts: opts, progress: func(string, string) {}}
}

// OnProgress 设置进度回调
func (m *Manager) OnProgress(fn ProgressFunc) {
	if fn != nil {
		m.progress = fn
	}
}

// Detect 当前安装状态
func (m *Manager) Detect(ctx context.Context) openclaw.Installation {
	return m.cli.Locate(ctx)
}

// Install 安装 OpenClaw：已安装且可响应时直接返回；不完整的安装先清理再重装
func (m *Manager) Install(ctx context.Context) (Outcome, error) {
	var out Outcome

	inst := m.cli.Locate(ctx)
	switch inst.State {
	case openclaw.Installed:
		m.progress("detect", fmt.Sprintf("OpenClaw %s 已安装", inst.Version))
		return Outcome{Success: true, AlreadyInstalled: true, Message: fmt.Sprintf("OpenClaw %s 已安装: %s", inst.Version, inst.Path)}, nil
	case openclaw.Incomplete:
		logger.Installer.Warn().Str("path", inst.Path).Str("detail", inst.Detail).Msg("检测到不完整的安装，先清理")
		m.progress("cleanup", "检测到不完整的安装，正在清理残留文件")
		if err := m.Cleanup(ctx, inst); err != nil {
			return m.fail(out, errclass.Analysis{
				Category:    errclass.PermissionDenied,
				Description: "清理不完整的安装失败",
				Remedy:      "请关闭正在使用 OpenClaw 的程序后手动删除 " + m.cli.InstallDir(),
			}, err.Error(), err)
		}
		out.CleanedUp = true
	}

	if err := os.MkdirAll(m.cli.InstallDir(), 0o755); err != nil {
		return m.fail(out, m.classifier.Classify(err.Error()), err.Error(), err)
	}

	if m.bundleAvailable() {
		m.progress("bundle", "正在解压离线安装包")
		if err := m.installBundle(); err == nil {
			if m.verify() {
				return m.succeed(out, StrategyBundle), nil
			}
			logger.Installer.Warn().Msg("离线包解压完成但缺少入口文件，改用 npm 安装")
		} else {
			logger.Installer.Warn().Err(err).Msg("离线包解压失败，改用 npm 安装")
		}
	}

	return m.installWithRecovery(ctx, out)
}

// installWithRecovery npm 安装；失败后分类，至多执行一次自动修复并重试一次
func (m *Manager) installWithRecovery(ctx context.Context, out Outcome) (Outcome, error) {
	strategy := StrategyTarball
	output, err := m.npmInstall(ctx, false)
	if err == nil {
		return m.verified(out, strategy, output)
	}
	analysis := m.classifier.Classify(output)
	m.logFailure(strategy, analysis)

	if analysis.RequiresVCS {
		strategy = StrategyIgnoreScripts
		m.progress("install", "依赖需要 git，改为禁用构建脚本安装")
		output, err = m.npmInstall(ctx, true)
		if err == nil {
			return m.verified(out, strategy, output)
		}
		analysis = m.classifier.Classify(output)
		m.logFailure(strategy, analysis)
	}

	if analysis.AutoFixable {
		m.progress("remediate", "正在自动修复: "+analysis.Description)
		if rerr := m.remediate(ctx, analysis.Category); rerr != nil {
			logger.Installer.Error().Err(rerr).Str("category", string(analysis.Category)).Msg("自动修复失败")
			return m.fail(out, analysis, output+"\n"+rerr.Error(), rerr)
		}
		out.Remediated = true

		m.progress("install", "修复完成，重试安装")
		output, err = m.npmInstall(ctx, strategy == StrategyIgnoreScripts)
		if err == nil {
			return m.verified(out, strategy, output)
		}
		retry := m.classifier.Classify(output)
		m.logFailure(strategy, retry)
		if retry.Category == analysis.Category {
			return m.fail(out, analysis, output, nil)
		}
		analysis = retry
	}

	if analysis.Category == errclass.OptionalNativeModuleFailed && m.verify() {
		out = m.succeed(out, strategy)
		out.Warning = analysis.Description + "。" + analysis.Remedy
		return out, nil
	}
	if m.plat.Target() == platform.Windows && !out.Remediated && consoleRecoverable(analysis.Category) {
		return m.installViaConsole(ctx, out, analysis, output)
	}
	return m.fail(out, analysis, output, nil)
}

func consoleRecoverable(c errclass.Category) bool {
	return c == errclass.NetworkUnreachable || c == errclass.TLSCertificateError
}

// installViaConsole 在可见的 PowerShell 窗口中下载并安装，轮询入口文件确认结果
func (m *Manager) installViaConsole(ctx context.Context, out Outcome, analysis errclass.Analysis, output string) (Outcome, error) {
	m.progress("console", "npm 网络受限，正在打开 PowerShell 窗口下载安装")
	probe := func(context.Context) bool { return m.verify() }
	result, err := m.plat.OpenTerminalAndWait(ctx, m.consoleScript(), probe, platform.WaitOptions{
		Interval:  m.opts.TerminalPoll,
		Timeout:   m.opts.TerminalTimeout,
		WatchDirs: []string{m.cli.InstallDir()},
	})
	if err != nil {
		return m.fail(out, analysis, output+"\n"+err.Error(), nil)
	}
	if result == platform.StillInProgress {
		out.Pending = true
		out.Strategy = StrategyConsole
		out.Message = "安装窗口仍在运行，请在窗口中完成安装后重新检测"
		return out, nil
	}
	return m.succeed(out, StrategyConsole), nil
}

func (m *Manager) consoleScript() string {
	dir := m.cli.InstallDir()
	archive := dir + `\` + m.opts.Package + ".tgz"
	steps := []string{
		"$ErrorActionPreference = 'Stop'",
		"$ProgressPreference = 'SilentlyContinue'",
		"$env:npm_config_cache = " + psQuote(m.cli.CacheDir()),
		"Write-Host " + psQuote("正在下载 "+m.opts.TarballURL),
		"Invoke-WebRequest -UseBasicParsing -Uri " + psQuote(m.opts.TarballURL) + " -OutFile " + psQuote(archive),
		"npm install " + psQuote(archive) + " --prefix " + psQuote(dir) + " --no-save --no-fund --no-audit",
		"Remove-Item -Force " + psQuote(archive),
		"Write-Host " + psQuote("OpenClaw 安装完成，可以关闭此窗口"),
	}
	return strings.Join(steps, "; ")
}

// remediate 针对可自动修复的类别执行一次修复
func (m *Manager) remediate(ctx context.Context, category errclass.Category) error {
	switch category {
	case errclass.CorruptPackageCache:
		return m.purgeCache(ctx)
	case errclass.MissingNativeRuntimeDependency:
		msg, err := m.plat.InstallNativeDependency(ctx)
		if err != nil {
			return fmt.Errorf("安装运行库: %w", err)
		}
		m.progress("remediate", msg)
		return nil
	case errclass.PlatformBuildToolsMissing:
		msg, err := m.plat.InstallBuildTools(ctx)
		if err != nil {
			return fmt.Errorf("安装编译工具: %w", err)
		}
		m.progress("remediate", msg)
		return nil
	}
	return fmt.Errorf("%s 没有自动修复方式", category)
}

func (m *Manager) purgeCache(ctx context.Context) error {
	if err := os.RemoveAll(m.cli.CacheDir()); err != nil {
		return fmt.Errorf("清理 npm 缓存: %w", err)
	}
	if _, err := m.plat.Exec(ctx, platform.Command{
		Name:     constants.NpmBin,
		Args:     []string{"cache", "clean", "--force"},
		ExtraEnv: m.npmEnv(),
		Timeout:  2 * time.Minute,
	}); err != nil {
		logger.Installer.Debug().Err(err).Msg("npm cache clean 失败，缓存目录已删除")
	}
	m.progress("remediate", "已清理 npm 缓存")
	return nil
}

func (m *Manager) npmEnv() []string {
	return []string{
		"npm_config_cache=" + m.cli.CacheDir(),
		"npm_config_update_notifier=false",
		"npm_config_fund=false",
	}
}

// npmInstall 以固定版本的 tarball 安装到安装目录，返回合并后的输出
func (m *Manager) npmInstall(ctx context.Context, ignoreScripts bool) (string, error) {
	args := []string{"install", m.opts.TarballURL, "--prefix", m.cli.InstallDir(), "--no-save", "--no-fund", "--no-audit"}
	if ignoreScripts {
		args = append(args, "--ignore-scripts")
	}
	if m.opts.Registry != "" {
		args = append(args, "--registry", m.opts.Registry)
	}
	m.progress("install", "npm "+strings.Join(args, " "))
	res, err := m.plat.Exec(ctx, platform.Command{
		Name:     constants.NpmBin,
		Args:     args,
		Dir:      m.cli.InstallDir(),
		ExtraEnv: m.npmEnv(),
		Timeout:  m.opts.CommandTimeout,
		OnLine:   func(_, line string) { m.progress("log", line) },
	})
	if err != nil {
		output := platform.OutputOf(err)
		if errors.Is(err, context.DeadlineExceeded) || isTimeout(err) {
			output += "\nnpm ERR! network ETIMEDOUT"
		}
		return output, err
	}
	return res.Combined(), nil
}

func isTimeout(err error) bool {
	var ee *platform.ExitError
	return errors.As(err, &ee) && ee.TimedOut
}

// verified npm 退出码为 0 仍需确认入口文件存在
func (m *Manager) verified(out Outcome, strategy Strategy, output string) (Outcome, error) {
	if m.verify() {
		return m.succeed(out, strategy), nil
	}
	return m.fail(out, errclass.Analysis{
		Category:    errclass.Unknown,
		Description: "安装命令已完成，但未找到 OpenClaw 入口文件",
		Remedy:      "安装可能不完整，请重新运行安装；若仍失败请检查安全软件是否隔离了文件",
	}, output, nil)
}

func (m *Manager) verify() bool {
	info, err := os.Stat(m.cli.EntryPoint())
	return err == nil && !info.IsDir() && info.Size() > 0
}

func (m *Manager) succeed(out Outcome, strategy Strategy) Outcome {
	out.Success = true
	out.Strategy = strategy
	out.Message = "OpenClaw 安装成功"
	logger.Installer.Info().Str("strategy", string(strategy)).Bool("remediated", out.Remediated).Msg(out.Message)
	m.progress("done", out.Message)
	return out
}

func (m *Manager) fail(out Outcome, analysis errclass.Analysis, output string, cause error) (Outcome, error) {
	out.Success = false
	out.Analysis = &analysis
	out.Diagnostic = errclass.TruncateRaw(output)
	out.Message = analysis.Description
	logger.Installer.Error().
		Str("category", string(analysis.Category)).
		Str("diagnostic", out.Diagnostic).
		Msg("OpenClaw 安装失败")
	return out, &InstallError{Analysis: analysis, Diagnostic: out.Diagnostic, Cause: cause}
}

func (m *Manager) logFailure(strategy Strategy, a errclass.Analysis) {
	logger.Installer.Warn().
		Str("strategy", string(strategy)).
		Str("category", string(a.Category)).
		Bool("auto_fixable", a.AutoFixable).
		Bool("requires_vcs", a.RequiresVCS).
		Msg("安装失败")
}

func psQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
