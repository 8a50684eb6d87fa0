package commands

import (
	"context"
	"errors"
	"io"
	"time"

	"openclawsetup/internal/appconfig"
	"openclawsetup/internal/constants"
	"openclawsetup/internal/journal"
	"openclawsetup/internal/logger"
	"openclawsetup/internal/notify"
	"openclawsetup/internal/output"
	"openclawsetup/internal/platform"
	"openclawsetup/internal/setup"
	"openclawsetup/internal/tracing"
)

// Options 全局命令行参数
type Options struct {
	ConfigPath string
	Debug      bool
	JSON       bool
	// Override 在组装组件前修改配置，用于子命令参数
	Override func(*appconfig.Config)
}

// Env 一次命令执行所需的全部组件
type Env struct {
	Config appconfig.Config
	JSON   bool
	Orch   *setup.Orchestrator
	// Ops 操作日志库不可用时为 nil
	Ops   *journal.OperationRepo
	State *journal.SettingRepo

	closers []func()
}

// LoadConfig 读取配置并应用 --debug
func LoadConfig(opts Options) appconfig.Config {
	cfg, err := appconfig.Load(opts.ConfigPath)
	if err != nil {
		output.Errorf("读取配置失败，使用默认配置: %s\n", err)
	}
	if opts.Debug {
		cfg.Log.Mode = appconfig.ModeDebug
		cfg.Log.Level = "debug"
	}
	output.SetDebug(cfg.IsDebug())
	output.Debugf("已加载配置: %s\n", cfg.Path())
	return cfg
}

// Bootstrap 初始化日志、操作日志库、追踪与通知，并组装 Orchestrator。
// 操作日志库与追踪初始化失败只告警，不影响安装流程
func Bootstrap(opts Options) *Env {
	cfg := LoadConfig(opts)
	if opts.Override != nil {
		opts.Override(&cfg)
	}
	env := &Env{Config: cfg, JSON: opts.JSON}

	logCloser := logger.Init(cfg.Log)
	env.closers = append(env.closers, func() { _ = logCloser.Close() })

	var rep *setup.Reporter
	if opts.JSON {
		rep = setup.NewJSONReporter(output.Writer())
	} else {
		rep = setup.NewFuncReporter(renderEvent)
	}

	plat := platform.NewHost(setup.PlatformOptions(cfg))
	d := setup.Build(cfg, plat, rep)

	if err := journal.Init(cfg.Database, cfg.IsDebug()); err != nil {
		logger.Setup.Warn().Err(err).Msg("操作日志库不可用")
		output.Debugf("操作日志库不可用: %s\n", err)
	} else {
		env.Ops = journal.NewOperationRepo()
		d.Journal = env.Ops
		env.State = journal.NewSettingRepo()
		d.Settings = env.State
		env.closers = append(env.closers, func() { _ = journal.Close() })
	}

	if cfg.Tracing.Enabled {
		tp, err := tracing.Init(cfg.Tracing)
		if err != nil {
			logger.Setup.Warn().Err(err).Msg("追踪初始化失败")
		} else {
			env.closers = append(env.closers, func() {
				ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
				defer cancel()
				_ = tp.Shutdown(ctx)
			})
		}
	}

	if n := notify.FromConfig(cfg.Notify); n.HasChannels() {
		d.Notifier = n
	}

	env.Orch = setup.New(d)
	return env
}

// NewEnv 由已组装好的组件构造 Env（测试用）
func NewEnv(cfg appconfig.Config, orch *setup.Orchestrator, ops *journal.OperationRepo, jsonOut bool) *Env {
	return &Env{Config: cfg, Orch: orch, Ops: ops, JSON: jsonOut}
}

// Close 按初始化的逆序释放资源
func (e *Env) Close() {
	for i := len(e.closers) - 1; i >= 0; i-- {
		e.closers[i]()
	}
	e.closers = nil
}

// exitCode 拒绝提权为 3，需要用户手动完成为 4，其余错误为 1
func exitCode(err error) int {
	switch {
	case err == nil:
		return constants.ExitOK
	case errors.Is(err, platform.ErrElevationDeclined):
		return constants.ExitDeclined
	case errors.Is(err, platform.ErrManualAction):
		return constants.ExitPending
	default:
		return constants.ExitFailed
	}
}

// emit --json 时输出 JSON，否则调用 text 渲染
func (e *Env) emit(v any, text func(w io.Writer)) {
	if e.JSON {
		if err := output.JSON(v); err != nil {
			output.Errorf("%s\n", err)
		}
		return
	}
	text(output.Writer())
}

// fail 输出错误并返回退出码
func (e *Env) fail(err error) int {
	if !e.JSON {
		output.Errorf("%s\n", err)
	}
	return exitCode(err)
}
