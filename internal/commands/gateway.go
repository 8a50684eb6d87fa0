package commands

import (
	"context"
	"fmt"
	"io"
	"strings"

	"openclawsetup/internal/constants"
	"openclawsetup/internal/openclaw"
	"openclawsetup/internal/output"
)

type gatewayStatus struct {
	State openclaw.GatewayState `json:"state"`
	Port  int                   `json:"port"`
}

// GatewayStatus 网关状态。未运行不视为失败
func GatewayStatus(ctx context.Context, env *Env) int {
	st := gatewayStatus{
		State: env.Orch.GatewayStatus(ctx),
		Port:  env.Orch.Gateway().Port(),
	}
	env.emit(st, func(w io.Writer) {
		state := output.Colorize("dim", "未运行")
		if st.State == openclaw.Running {
			state = output.Colorize("success", "运行中")
		}
		fmt.Fprintf(w, "网关: %s (端口 %d)\n", state, st.Port)
	})
	return constants.ExitOK
}

func GatewayStart(ctx context.Context, env *Env) int {
	return gatewayAction(env, env.Orch.StartGateway(ctx))
}

func GatewayStop(ctx context.Context, env *Env) int {
	return gatewayAction(env, env.Orch.StopGateway(ctx))
}

func GatewayRestart(ctx context.Context, env *Env) int {
	return gatewayAction(env, env.Orch.RestartGateway(ctx))
}

// GatewayInstallService 注册系统服务，elevate 为 false 时使用配置中的默认值
func GatewayInstallService(ctx context.Context, env *Env, elevate bool) int {
	out, err := env.Orch.InstallGatewayService(ctx, elevate || env.Config.Gateway.ElevateServiceInstall)
	if err != nil {
		return env.fail(err)
	}
	env.emit(map[string]string{"output": out}, func(w io.Writer) {
		if s := strings.TrimSpace(out); s != "" {
			fmt.Fprintln(w, output.Colorize("dim", s))
		}
	})
	return constants.ExitOK
}

// gatewayAction 进度事件已输出结果，这里只负责退出码和 JSON 结果
func gatewayAction(env *Env, err error) int {
	if err != nil {
		return env.fail(err)
	}
	if env.JSON {
		env.emit(map[string]bool{"ok": true}, nil)
	}
	return constants.ExitOK
}
