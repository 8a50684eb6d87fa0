package commands

import (
	"context"
	"errors"
	"fmt"
	"io"

	"openclawsetup/internal/constants"
	"openclawsetup/internal/output"
	"openclawsetup/internal/prompt"
	"openclawsetup/internal/setup"
)

// UninstallArgs uninstall 子命令参数
type UninstallArgs struct {
	setup.UninstallOptions
	// Yes 跳过确认
	Yes bool
}

// confirm 可在测试中替换
var confirm = prompt.Confirm

func Uninstall(ctx context.Context, env *Env, args UninstallArgs) int {
	if !args.Yes {
		label := "确认卸载 OpenClaw？"
		if args.PurgeConfig {
			label = "确认卸载 OpenClaw 并删除全部配置与会话数据？"
		}
		ok, err := confirm(label, false)
		if err != nil {
			if errors.Is(err, prompt.ErrNotInteractive) {
				output.Errorf("%s\n", err)
				return constants.ExitUsage
			}
			return env.fail(err)
		}
		if !ok {
			output.Println("已取消")
			return constants.ExitDeclined
		}
	}

	report, err := env.Orch.Uninstall(ctx, args.UninstallOptions)
	if err != nil {
		if env.JSON {
			env.emit(report, nil)
		}
		return env.fail(err)
	}
	env.emit(report, func(w io.Writer) {
		if report.StopError != "" {
			warnings(w, []string{"网关停止失败: " + report.StopError})
		}
		for _, p := range report.Removed {
			fmt.Fprintf(w, "  已删除 %s\n", p)
		}
		fmt.Fprintln(w, output.Colorize("success", report.Message))
	})
	return constants.ExitOK
}
