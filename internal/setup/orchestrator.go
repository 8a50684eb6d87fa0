package setup

import (
	"context"
	"errors"
	"fmt"
	"time"

	"openclawsetup/internal/constants"
	"openclawsetup/internal/errclass"
	"openclawsetup/internal/installer"
	"openclawsetup/internal/journal"
	"openclawsetup/internal/logger"
	"openclawsetup/internal/openclaw"
	"openclawsetup/internal/platform"
	"openclawsetup/internal/prereq"
	"openclawsetup/internal/tracing"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
)

// Journal 操作记录的写入端
type Journal interface {
	Record(op *journal.Operation) error
}

// Settings 安装状态的键值存储
type Settings interface {
	SetBatch(items map[string]string) error
}

// Notifier 终止性失败的通知渠道
type Notifier interface {
	Failure(ctx context.Context, action, message, detail string)
}

// Deps Orchestrator 的全部依赖，由调用方构造后注入
type Deps struct {
	Platform  platform.Platform
	Prereq    *prereq.Installer
	Installer *installer.Manager
	CLI       *openclaw.CLI
	Config    *openclaw.ConfigFile
	Gateway   *openclaw.Service
	Reporter  *Reporter

	// 以下可选
	Journal  Journal
	Settings Settings
	Notifier Notifier
}

// Orchestrator 组合前置条件、工具安装与网关管理，对外提供完整的安装流程。
// 每个操作都是独立的工作单元，状态只保存在文件系统和进程表中
type Orchestrator struct {
	plat      platform.Platform
	prereq    *prereq.Installer
	installer *installer.Manager
	cli       *openclaw.CLI
	config    *openclaw.ConfigFile
	gateway   *openclaw.Service
	reporter  *Reporter
	journal   Journal
	settings  Settings
	notifier  Notifier
}

func New(d Deps) *Orchestrator {
	o := &Orchestrator{
		plat:      d.Platform,
		prereq:    d.Prereq,
		installer: d.Installer,
		cli:       d.CLI,
		config:    d.Config,
		gateway:   d.Gateway,
		reporter:  d.Reporter,
		journal:   d.Journal,
		settings:  d.Settings,
		notifier:  d.Notifier,
	}
	o.installer.OnProgress(func(step, message string) {
		_ = o.reporter.EmitStep("tool", step, message, 0)
	})
	return o
}

func (o *Orchestrator) Platform() platform.Platform { return o.plat }

func (o *Orchestrator) Gateway() *openclaw.Service { return o.gateway }

func (o *Orchestrator) Config() *openclaw.ConfigFile { return o.config }

// op 一次被记录的操作
type op struct {
	rec   journal.Operation
	start time.Time
	span  trace.Span
}

func (o *Orchestrator) begin(ctx context.Context, action string) (context.Context, *op) {
	id := uuid.NewString()
	ctx, span := tracing.Start(ctx, action,
		tracing.AttrOpID.String(id),
		tracing.AttrAction.String(action),
		tracing.AttrPlatform.String(string(o.plat.Target())),
	)
	logger.Setup.Debug().Str("op_id", id).Str("action", action).Msg("开始操作")
	return ctx, &op{
		rec:   journal.Operation{OpID: id, Action: action, Platform: string(o.plat.Target())},
		start: time.Now(),
		span:  span,
	}
}

// finish 结束 span、写入操作记录，失败时发送通知
func (o *Orchestrator) finish(ctx context.Context, p *op, err error) {
	p.rec.DurationMs = time.Since(p.start).Milliseconds()
	if p.rec.Result == "" {
		p.rec.Result = resultOf(err)
	}
	if p.rec.Message == "" && err != nil {
		p.rec.Message = err.Error()
	}
	p.rec.Detail = platform.Truncate(p.rec.Detail, 2000)
	if p.rec.Category != "" {
		p.span.SetAttributes(tracing.AttrCategory.String(p.rec.Category))
	}
	if p.rec.Strategy != "" {
		p.span.SetAttributes(tracing.AttrStrategy.String(p.rec.Strategy))
	}
	tracing.End(p.span, err)

	ev := logger.Setup.Info()
	if p.rec.Result == constants.ResultFailed {
		ev = logger.Setup.Error().Err(err)
	}
	ev.Str("op_id", p.rec.OpID).Str("action", p.rec.Action).Str("result", p.rec.Result).
		Int64("duration_ms", p.rec.DurationMs).Msg(p.rec.Message)

	if o.journal != nil {
		rec := p.rec
		if jerr := o.journal.Record(&rec); jerr != nil {
			logger.Journal.Warn().Err(jerr).Str("op_id", rec.OpID).Msg("写入操作记录失败")
		}
	}
	if o.notifier != nil && p.rec.Result == constants.ResultFailed {
		o.notifier.Failure(ctx, p.rec.Action, p.rec.Message, p.rec.Detail)
	}
}

// resultOf 用户主动拒绝或需要手动完成的操作不算技术失败
func resultOf(err error) string {
	switch {
	case err == nil:
		return constants.ResultSuccess
	case errors.Is(err, platform.ErrElevationDeclined):
		return constants.ResultDeclined
	case errors.Is(err, platform.ErrManualAction):
		return constants.ResultPending
	default:
		return constants.ResultFailed
	}
}

// CheckPrerequisites 检测运行时、npm、编译工具、磁盘与安全软件，每次重新检测
func (o *Orchestrator) CheckPrerequisites(ctx context.Context) prereq.Status {
	ctx, p := o.begin(ctx, constants.ActionCheck)
	_ = o.reporter.EmitPhase("check", "检测运行环境", 0)

	st := o.prereq.Check(ctx)

	p.rec.Result = constants.ResultSuccess
	p.rec.Message = "运行环境满足要求"
	if !st.Ready() {
		p.rec.Result = constants.ResultWarning
		p.rec.Message = "运行环境不满足要求"
	}
	p.rec.Detail = fmt.Sprintf("node=%s compatible=%t too_new=%t npm=%t disk=%.1fGB",
		st.NodeVersion, st.NodeCompatible, st.NodeTooNew, st.NpmInstalled, st.DiskFreeGB)
	o.finish(ctx, p, nil)

	_ = o.reporter.EmitComplete(p.rec.Message, st)
	return st
}

// InstallRuntime 确保兼容的 Node.js 已安装
func (o *Orchestrator) InstallRuntime(ctx context.Context) (prereq.Outcome, error) {
	ctx, p := o.begin(ctx, constants.ActionInstallRuntime)
	_ = o.reporter.EmitPhase("runtime", "检查 Node.js", 0)

	out, err := o.prereq.EnsureRuntime(ctx)

	p.rec.Message = out.Message
	switch {
	case err != nil:
	case out.RestartRequired:
		p.rec.Result = constants.ResultPending
	case out.Warning != "":
		p.rec.Result = constants.ResultWarning
		p.rec.Detail = out.Warning
	}
	o.finish(ctx, p, err)

	if err != nil {
		_ = o.reporter.EmitError(err.Error(), nil)
		return out, err
	}
	if out.Version != "" {
		o.remember(map[string]string{journal.SettingRuntimeVersion: out.Version})
	}
	_ = o.reporter.EmitSuccess(out.Message, out)
	return out, nil
}

// InstallTool 安装 OpenClaw（含清理、多策略与一次自动修复）
func (o *Orchestrator) InstallTool(ctx context.Context) (installer.Outcome, error) {
	ctx, p := o.begin(ctx, constants.ActionInstallTool)
	_ = o.reporter.EmitPhase("tool", "安装 OpenClaw", 0)

	out, err := o.installer.Install(ctx)

	p.rec.Message = out.Message
	p.rec.Strategy = string(out.Strategy)
	if out.Analysis != nil {
		p.rec.Category = string(out.Analysis.Category)
	}
	p.rec.Detail = out.Diagnostic
	switch {
	case err != nil:
	case out.Pending:
		p.rec.Result = constants.ResultPending
	case out.Warning != "":
		p.rec.Result = constants.ResultWarning
		p.rec.Detail = out.Warning
	}
	o.finish(ctx, p, err)

	if err != nil {
		_ = o.reporter.EmitError(err.Error(), out)
		return out, err
	}
	if out.Success && !out.AlreadyInstalled {
		if inst := o.cli.Locate(ctx); inst.State == openclaw.Installed {
			o.remember(map[string]string{
				journal.SettingInstalledVersion: inst.Version,
				journal.SettingInstalledPath:    inst.Path,
				journal.SettingInstalledAt:      time.Now().Format(time.RFC3339),
			})
		}
	}
	_ = o.reporter.EmitSuccess(out.Message, out)
	return out, nil
}

func (o *Orchestrator) remember(items map[string]string) {
	if o.settings == nil {
		return
	}
	if err := o.settings.SetBatch(items); err != nil {
		logger.Journal.Warn().Err(err).Msg("保存安装状态失败")
	}
}

// EnsureConfig 写入网关默认配置，已有的值保持不变
func (o *Orchestrator) EnsureConfig(ctx context.Context) (bool, error) {
	changed, err := o.config.EnsureGatewayDefaults(o.gateway.Port())
	if !changed && err == nil {
		return false, nil
	}
	_, p := o.begin(ctx, constants.ActionConfigWrite)
	p.rec.Message = "已写入网关默认配置: " + o.config.Path()
	p.rec.Detail = o.config.Path()
	if err != nil {
		err = fmt.Errorf("写入配置文件 %s: %w", o.config.Path(), err)
	}
	o.finish(ctx, p, err)
	return changed, err
}

// InstallOptions InstallPrerequisites 的参数
type InstallOptions struct {
	SkipRuntime bool
}

// InstallReport 完整安装流程的结果
type InstallReport struct {
	Runtime *prereq.Outcome    `json:"runtime,omitempty"`
	Tool    *installer.Outcome `json:"tool,omitempty"`
	// ConfigWritten 本次写入了网关默认配置
	ConfigWritten bool `json:"config_written"`
	// RestartRequired Windows 上新安装的 Node.js 尚未被当前进程识别
	RestartRequired bool     `json:"restart_required"`
	Pending         bool     `json:"pending"`
	Warnings        []string `json:"warnings,omitempty"`
	Message         string   `json:"message"`
}

// InstallPrerequisites 磁盘检查 → Node.js → OpenClaw → 网关默认配置。
// 需要重启或等待终端完成时提前返回，不视为错误
func (o *Orchestrator) InstallPrerequisites(ctx context.Context, opts InstallOptions) (*InstallReport, error) {
	report := &InstallReport{}

	st := o.prereq.Check(ctx)
	if !st.DiskSufficient {
		err := fmt.Errorf("磁盘可用空间 %.1fGB，至少需要 %.0fGB", st.DiskFreeGB, constants.MinFreeDiskGB)
		_, p := o.begin(ctx, constants.ActionInstallTool)
		p.rec.Category = string(errclass.DiskSpaceExhausted)
		o.finish(ctx, p, err)
		_ = o.reporter.EmitError(err.Error(), st)
		return report, err
	}
	if st.SecuritySoftware != "" {
		report.Warnings = append(report.Warnings, fmt.Sprintf("检测到安全软件 %s，安装失败时请暂时关闭实时防护", st.SecuritySoftware))
	}

	if !opts.SkipRuntime {
		rt, err := o.InstallRuntime(ctx)
		report.Runtime = &rt
		if err != nil {
			if errors.Is(err, platform.ErrManualAction) {
				report.Pending = true
				report.Message = "请在浏览器中完成 Node.js 安装后重新运行"
			}
			return report, err
		}
		if rt.Warning != "" {
			report.Warnings = append(report.Warnings, rt.Warning)
		}
		if rt.RestartRequired {
			report.RestartRequired = true
			report.Message = rt.Message
			return report, nil
		}
	}

	tool, err := o.InstallTool(ctx)
	report.Tool = &tool
	if err != nil {
		return report, err
	}
	if tool.Warning != "" {
		report.Warnings = append(report.Warnings, tool.Warning)
	}
	if tool.Pending {
		report.Pending = true
		report.Message = tool.Message
		return report, nil
	}

	changed, err := o.EnsureConfig(ctx)
	if err != nil {
		return report, err
	}
	report.ConfigWritten = changed
	report.Message = "OpenClaw 安装完成"
	_ = o.reporter.EmitComplete(report.Message, report)
	return report, nil
}

// CheckOpenClawInstalled 当前安装状态
func (o *Orchestrator) CheckOpenClawInstalled(ctx context.Context) openclaw.Installation {
	return o.cli.Locate(ctx)
}

// GatewayStatus 网关状态，从不返回错误
func (o *Orchestrator) GatewayStatus(ctx context.Context) openclaw.GatewayState {
	return o.gateway.Status(ctx)
}

func (o *Orchestrator) gatewayOp(ctx context.Context, action, okMsg string, fn func(context.Context) error) error {
	ctx, p := o.begin(ctx, action)
	p.span.SetAttributes(tracing.AttrPort.Int(o.gateway.Port()))
	err := fn(ctx)
	if err == nil {
		p.rec.Message = okMsg
	}
	o.finish(ctx, p, err)
	if err != nil {
		_ = o.reporter.EmitError(err.Error(), nil)
		return err
	}
	_ = o.reporter.EmitSuccess(okMsg, nil)
	return nil
}

func (o *Orchestrator) StartGateway(ctx context.Context) error {
	return o.gatewayOp(ctx, constants.ActionGatewayStart, "网关已启动", o.gateway.Start)
}

func (o *Orchestrator) StopGateway(ctx context.Context) error {
	return o.gatewayOp(ctx, constants.ActionGatewayStop, "网关已停止", o.gateway.Stop)
}

func (o *Orchestrator) RestartGateway(ctx context.Context) error {
	return o.gatewayOp(ctx, constants.ActionGatewayRestart, "网关已重启", o.gateway.Restart)
}

// InstallGatewayService 注册为系统服务，elevate 时请求管理员权限
func (o *Orchestrator) InstallGatewayService(ctx context.Context, elevate bool) (string, error) {
	var out string
	err := o.gatewayOp(ctx, constants.ActionServiceInstall, "网关服务已注册", func(ctx context.Context) error {
		var err error
		out, err = o.gateway.InstallService(ctx, elevate)
		return err
	})
	return out, err
}

// Diagnose 网关诊断
func (o *Orchestrator) Diagnose(ctx context.Context) *openclaw.DiagnoseResult {
	return o.gateway.Diagnose(ctx)
}
