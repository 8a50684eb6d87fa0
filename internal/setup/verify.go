package setup

import (
	"context"
	"fmt"

	"openclawsetup/internal/openclaw"
)

// VerifyResult 安装后的验证结果
type VerifyResult struct {
	OpenClawInstalled bool                  `json:"openclaw_installed"`
	OpenClawVersion   string                `json:"openclaw_version,omitempty"`
	OpenClawPath      string                `json:"openclaw_path,omitempty"`
	ConfigPath        string                `json:"config_path"`
	ConfigExists      bool                  `json:"config_exists"`
	ConfigValid       bool                  `json:"config_valid"`
	GatewayState      openclaw.GatewayState `json:"gateway_state"`
	GatewayPort       int                   `json:"gateway_port"`
	GatewayListening  bool                  `json:"gateway_listening"`
	AllPassed         bool                  `json:"all_passed"`
	Errors            []string              `json:"errors,omitempty"`
	Warnings          []string              `json:"warnings,omitempty"`
}

// Verify 检查工具能否响应、配置文件能否解析以及网关状态。
// 网关未运行只记为警告，安装本身仍然算通过
func (o *Orchestrator) Verify(ctx context.Context) *VerifyResult {
	res := &VerifyResult{ConfigPath: o.config.Path(), GatewayPort: o.gateway.Port(), GatewayState: openclaw.Stopped}

	_ = o.reporter.EmitStep("verify", "check-install", "检查 OpenClaw 安装...", 10)
	inst := o.cli.Locate(ctx)
	switch inst.State {
	case openclaw.Installed:
		res.OpenClawInstalled = true
		res.OpenClawVersion = inst.Version
		res.OpenClawPath = inst.Path
	case openclaw.Incomplete:
		res.Errors = append(res.Errors, "OpenClaw 安装不完整: "+inst.Detail)
	default:
		res.Errors = append(res.Errors, "OpenClaw 未安装")
	}

	_ = o.reporter.EmitStep("verify", "check-config", "检查配置...", 40)
	res.ConfigExists = o.config.Exists()
	if res.ConfigExists {
		if _, err := o.config.Load(); err != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("配置文件无法解析: %v", err))
		} else {
			res.ConfigValid = true
		}
	} else {
		res.Errors = append(res.Errors, "配置文件不存在: "+res.ConfigPath)
	}

	_ = o.reporter.EmitStep("verify", "check-gateway", "检查 Gateway...", 70)
	if res.OpenClawInstalled {
		res.GatewayState = o.gateway.Status(ctx)
	}
	res.GatewayListening = o.gateway.Listening()
	switch {
	case res.GatewayState == openclaw.Running && !res.GatewayListening:
		res.Warnings = append(res.Warnings, fmt.Sprintf("Gateway 报告运行中，但端口 %d 未监听", res.GatewayPort))
	case res.GatewayState != openclaw.Running:
		res.Warnings = append(res.Warnings, "Gateway 未运行")
	}

	res.AllPassed = res.OpenClawInstalled && res.ConfigValid
	if res.AllPassed {
		_ = o.reporter.EmitSuccess("验证通过", res)
	} else {
		_ = o.reporter.EmitError("验证未通过", res)
	}
	return res
}
