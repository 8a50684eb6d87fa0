package commands

import (
	"fmt"
	"io"
	"sort"

	"openclawsetup/internal/appconfig"
	"openclawsetup/internal/constants"
	"openclawsetup/internal/output"
)

type settingsView struct {
	Path   string            `json:"path"`
	Config appconfig.Config  `json:"config"`
	State  map[string]string `json:"state,omitempty"`
}

// SettingsShow 当前生效的配置以及记录的安装状态
func SettingsShow(env *Env) int {
	view := settingsView{Path: env.Config.Path(), Config: redact(env.Config)}
	if env.State != nil {
		state, err := env.State.GetAll()
		if err != nil {
			output.Debugf("读取安装状态失败: %s\n", err)
		} else {
			view.State = state
		}
	}

	env.emit(view, func(w io.Writer) {
		cfg := view.Config
		fmt.Fprintln(w, output.Colorize("title", "openclawsetup 配置"))
		line(w, "路径", view.Path)
		line(w, "模式", cfg.Log.Mode)
		line(w, "调试输出", yesNo(cfg.IsDebug()))
		line(w, "安装目录", cfg.Install.Dir)
		line(w, "离线包", orDash(cfg.Install.BundlePath))
		line(w, "版本", cfg.Install.Package+"@"+cfg.Install.Version)
		line(w, "Node.js", fmt.Sprintf(">= %d.%d, < %d", cfg.Install.NodeFloorMajor, cfg.Install.NodeFloorMinor, cfg.Install.NodeCeilingMajor))
		line(w, "网关端口", fmt.Sprintf("%d", cfg.Gateway.Port))
		line(w, "操作日志库", cfg.Database.Driver)
		line(w, "失败通知", yesNo(cfg.Notify.Enabled))
		line(w, "追踪", yesNo(cfg.Tracing.Enabled))
		if len(view.State) > 0 {
			fmt.Fprintln(w, output.Colorize("title", "安装状态"))
			keys := make([]string, 0, len(view.State))
			for k := range view.State {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				line(w, k, view.State[k])
			}
		}
	})
	return constants.ExitOK
}

// SettingsPath 配置文件路径
func SettingsPath(env *Env) int {
	output.Println(env.Config.Path())
	return constants.ExitOK
}

// redact 隐藏凭据类字段
func redact(cfg appconfig.Config) appconfig.Config {
	mask := func(s *string) {
		if *s != "" {
			*s = "******"
		}
	}
	mask(&cfg.Database.PostgresDSN)
	mask(&cfg.Notify.TelegramToken)
	mask(&cfg.Notify.SlackToken)
	mask(&cfg.Notify.DiscordToken)
	mask(&cfg.Notify.DingTalkToken)
	mask(&cfg.Notify.DingTalkSecret)
	mask(&cfg.Notify.WebhookURL)
	mask(&cfg.Notify.LarkWebhook)
	return cfg
}
