package commands

import (
	"context"
	"fmt"
	"io"

	"openclawsetup/internal/constants"
	"openclawsetup/internal/installer"
	"openclawsetup/internal/output"
	"openclawsetup/internal/setup"
)

// Install 完整安装：Node.js → OpenClaw → 网关默认配置
func Install(ctx context.Context, env *Env, opts setup.InstallOptions) int {
	report, err := env.Orch.InstallPrerequisites(ctx, opts)
	if err != nil {
		if env.JSON {
			env.emit(report, nil)
		} else if report != nil && report.Message != "" {
			output.Printf("%s %s\n", output.Colorize("warning", "[待完成]"), report.Message)
		}
		return env.fail(err)
	}

	env.emit(report, func(w io.Writer) { renderInstallReport(w, report) })
	switch {
	case report.RestartRequired, report.Pending:
		return constants.ExitPending
	default:
		return constants.ExitOK
	}
}

func renderInstallReport(w io.Writer, r *setup.InstallReport) {
	warnings(w, r.Warnings)
	if r.Tool != nil {
		renderToolOutcome(w, *r.Tool)
	}
	if r.ConfigWritten {
		fmt.Fprintln(w, output.Colorize("dim", "已写入网关默认配置"))
	}
	role := "success"
	if r.RestartRequired || r.Pending {
		role = "warning"
	}
	fmt.Fprintln(w, output.Colorize(role, r.Message))
}

// InstallRuntime 只安装 Node.js
func InstallRuntime(ctx context.Context, env *Env) int {
	out, err := env.Orch.InstallRuntime(ctx)
	if err != nil {
		return env.fail(err)
	}
	env.emit(out, func(w io.Writer) {
		if out.Warning != "" {
			warnings(w, []string{out.Warning})
		}
		fmt.Fprintln(w, output.Colorize("success", out.Message))
	})
	if out.RestartRequired {
		return constants.ExitPending
	}
	return constants.ExitOK
}

// InstallTool 只安装 OpenClaw
func InstallTool(ctx context.Context, env *Env) int {
	out, err := env.Orch.InstallTool(ctx)
	if err != nil {
		if env.JSON {
			env.emit(out, nil)
		}
		return env.fail(err)
	}
	env.emit(out, func(w io.Writer) { renderToolOutcome(w, out) })
	if out.Pending {
		return constants.ExitPending
	}
	return constants.ExitOK
}

func renderToolOutcome(w io.Writer, out installer.Outcome) {
	if out.Warning != "" {
		warnings(w, []string{out.Warning})
	}
	if out.Strategy != "" {
		line(w, "安装方式", string(out.Strategy))
	}
	if out.CleanedUp {
		line(w, "清理", "已清理不完整的旧安装")
	}
	if out.Remediated {
		line(w, "自动修复", "已执行")
	}
	if out.Analysis != nil {
		line(w, "错误类别", out.Analysis.Category.Title())
	}
}
