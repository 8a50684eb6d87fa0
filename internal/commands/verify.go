package commands

import (
	"context"
	"fmt"
	"io"

	"openclawsetup/internal/constants"
	"openclawsetup/internal/output"
)

// Verify 安装后检查，未通过时返回 1
func Verify(ctx context.Context, env *Env) int {
	res := env.Orch.Verify(ctx)
	env.emit(res, func(w io.Writer) {
		line(w, "OpenClaw", mark(res.OpenClawInstalled)+" "+orDash(res.OpenClawVersion))
		line(w, "配置文件", mark(res.ConfigValid)+" "+res.ConfigPath)
		line(w, "网关", fmt.Sprintf("%s (端口 %d)", res.GatewayState, res.GatewayPort))
		for _, e := range res.Errors {
			fmt.Fprintf(w, "%s %s\n", output.Colorize("danger", "[错误]"), e)
		}
		warnings(w, res.Warnings)
	})
	if !res.AllPassed {
		return constants.ExitFailed
	}
	return constants.ExitOK
}
