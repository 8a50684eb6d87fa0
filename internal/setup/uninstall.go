package setup

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"openclawsetup/internal/constants"
	"openclawsetup/internal/logger"
	"openclawsetup/internal/openclaw"
)

// UninstallOptions 卸载参数
type UninstallOptions struct {
	// Force 网关停止失败时仍继续删除
	Force bool
	// PurgeConfig 同时删除 OpenClaw 状态目录（配置、会话、日志）
	PurgeConfig bool
}

// UninstallReport 卸载结果
type UninstallReport struct {
	GatewayStopped bool     `json:"gateway_stopped"`
	StopError      string   `json:"stop_error,omitempty"`
	Removed        []string `json:"removed,omitempty"`
	Message        string   `json:"message"`
}

// Uninstall 严格按顺序执行：停止网关 → npm 卸载 → 删除安装目录 → 可选删除状态目录。
// 运行中的网关会占用文件，停止失败且未指定 Force 时在删除任何文件前中止
func (o *Orchestrator) Uninstall(ctx context.Context, opts UninstallOptions) (*UninstallReport, error) {
	report := &UninstallReport{}
	_ = o.reporter.EmitPhase("uninstall", "卸载 OpenClaw", 0)

	_ = o.reporter.EmitStep("uninstall", "stop-gateway", "停止网关...", 10)
	if err := o.StopGateway(ctx); err != nil {
		report.StopError = err.Error()
		if !opts.Force {
			err = fmt.Errorf("已取消卸载，网关仍在运行（可使用 --force 强制卸载）: %w", err)
			ctx, p := o.begin(ctx, constants.ActionUninstall)
			o.finish(ctx, p, err)
			return report, err
		}
		logger.Setup.Warn().Err(err).Msg("网关停止失败，按 force 继续卸载")
	} else {
		report.GatewayStopped = true
	}

	ctx, p := o.begin(ctx, constants.ActionUninstall)
	_ = o.reporter.EmitStep("uninstall", "remove-files", "删除安装目录...", 50)
	if err := o.installer.Uninstall(ctx); err != nil {
		o.finish(ctx, p, err)
		_ = o.reporter.EmitError(err.Error(), report)
		return report, err
	}
	report.Removed = append(report.Removed, o.cli.InstallDir())

	if opts.PurgeConfig {
		_ = o.reporter.EmitStep("uninstall", "purge-config", "删除 OpenClaw 状态目录...", 80)
		dir := openclaw.ResolveStateDir()
		if err := purgeStateDir(dir); err != nil {
			o.finish(ctx, p, err)
			_ = o.reporter.EmitError(err.Error(), report)
			return report, err
		}
		report.Removed = append(report.Removed, dir)
	}

	report.Message = "OpenClaw 已卸载"
	p.rec.Message = report.Message
	p.rec.Detail = fmt.Sprintf("removed=%v force=%t", report.Removed, opts.Force)
	o.finish(ctx, p, nil)
	_ = o.reporter.EmitComplete(report.Message, report)
	return report, nil
}

// purgeStateDir 拒绝删除空路径、根目录和用户主目录
func purgeStateDir(dir string) error {
	if dir == "" {
		return fmt.Errorf("无法确定 OpenClaw 状态目录")
	}
	clean := filepath.Clean(dir)
	home, _ := os.UserHomeDir()
	if clean == filepath.Dir(clean) || (home != "" && clean == filepath.Clean(home)) {
		return fmt.Errorf("拒绝删除目录 %s", clean)
	}
	if err := os.RemoveAll(clean); err != nil {
		return fmt.Errorf("删除状态目录 %s: %w", clean, err)
	}
	return nil
}
