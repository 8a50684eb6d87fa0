package commands

import (
	"context"
	"fmt"
	"io"
	"strings"

	"openclawsetup/internal/constants"
	"openclawsetup/internal/openclaw"
	"openclawsetup/internal/output"
	"openclawsetup/internal/setup"
)

type doctorReport struct {
	Environment *setup.EnvironmentReport `json:"environment"`
	Gateway     *openclaw.DiagnoseResult `json:"gateway"`
}

// Doctor 环境扫描与网关诊断，有失败项时返回 1
func Doctor(ctx context.Context, env *Env) int {
	report := doctorReport{
		Environment: env.Orch.Scan(ctx),
		Gateway:     env.Orch.Diagnose(ctx),
	}
	env.emit(report, func(w io.Writer) { renderReport(w, report) })
	if report.Gateway.Summary == string(openclaw.DiagnoseFail) {
		return constants.ExitFailed
	}
	return constants.ExitOK
}

func renderReport(w io.Writer, report doctorReport) {
	e := report.Environment
	fmt.Fprintln(w, output.Colorize("title", "环境"))
	fmt.Fprintln(w, output.Colorize("dim", "===="))
	system := e.OS + "/" + e.Arch
	if e.Distro != "" {
		system += " " + strings.TrimSpace(e.Distro+" "+e.DistroVersion)
	}
	line(w, "系统", system)
	line(w, "内核", orDash(e.Kernel))
	line(w, "用户", fmt.Sprintf("%s (root: %s)", e.CurrentUser, yesNo(e.IsRoot)))
	line(w, "包管理器", orDash(e.PackageManager))
	for _, name := range []string{"node", "npm", "git"} {
		if t, ok := e.Tools[name]; ok {
			line(w, name, mark(t.Installed)+" "+orDash(t.Version))
		}
	}
	line(w, "安装目录", e.InstallDir)
	line(w, "OpenClaw", fmt.Sprintf("%s %s", e.Installation.State, orDash(e.Installation.Version)))
	line(w, "配置文件", fmt.Sprintf("%s %s", mark(e.ConfigExists), e.ConfigPath))
	if len(e.ProxyVars) > 0 {
		line(w, "代理", strings.Join(e.ProxyVars, ", "))
	}
	warnings(w, e.Warnings)

	fmt.Fprintln(w)
	fmt.Fprintln(w, output.Colorize("title", "诊断"))
	fmt.Fprintln(w, output.Colorize("dim", "===="))
	for _, item := range report.Gateway.Items {
		fmt.Fprintf(w, "%s %s: %s\n", colorDoctorLevel(item.Status), item.Label, item.Detail)
		if item.Suggestion != "" {
			fmt.Fprintf(w, "  %s %s\n", output.Colorize("dim", "建议:"), item.Suggestion)
		}
	}
	if report.Gateway.Message != "" {
		fmt.Fprintln(w, report.Gateway.Message)
	}
}

func colorDoctorLevel(status openclaw.DiagnoseItemStatus) string {
	switch status {
	case openclaw.DiagnoseFail:
		return output.Colorize("danger", "[错误]")
	case openclaw.DiagnoseWarn:
		return output.Colorize("warning", "[警告]")
	case openclaw.DiagnosePass:
		return output.Colorize("success", "[正常]")
	default:
		return "[" + string(status) + "]"
	}
}
