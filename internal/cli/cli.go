package cli

import (
	"context"
	"errors"
	"os"
	"os/signal"

	"openclawsetup/internal/appconfig"
	"openclawsetup/internal/commands"
	"openclawsetup/internal/constants"
	"openclawsetup/internal/journal"
	"openclawsetup/internal/output"
	"openclawsetup/internal/setup"
	"openclawsetup/internal/version"

	"github.com/spf13/cobra"
)

var opts commands.Options

// exitError 携带子命令的退出码
type exitError struct{ code int }

func (e exitError) Error() string { return "" }

// Execute 执行命令行并返回退出码
func Execute(args []string) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	root := newRootCmd()
	root.SetArgs(args)
	err := root.ExecuteContext(ctx)
	var ee exitError
	switch {
	case err == nil:
		return constants.ExitOK
	case errors.As(err, &ee):
		return ee.code
	default:
		output.Errorf("%s\n", err)
		return constants.ExitUsage
	}
}

func newRootCmd() *cobra.Command {
	opts = commands.Options{}
	cmd := &cobra.Command{
		Use:           "openclawsetup",
		Short:         "OpenClaw 安装与修复工具",
		Long:          "检测运行环境，安装 Node.js 与 OpenClaw，管理 OpenClaw 网关。",
		Version:       version.String(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&opts.ConfigPath, "config", "", "配置文件路径（默认读取 OCS_CONFIG）")
	cmd.PersistentFlags().BoolVar(&opts.Debug, "debug", false, "输出调试日志")
	cmd.PersistentFlags().BoolVar(&opts.JSON, "json", false, "以 JSON Lines 输出进度与结果")

	cmd.AddCommand(newCheckCmd())
	cmd.AddCommand(newInstallCmd())
	cmd.AddCommand(newUninstallCmd())
	cmd.AddCommand(newGatewayCmd())
	cmd.AddCommand(newDoctorCmd())
	cmd.AddCommand(newVerifyCmd())
	cmd.AddCommand(newClassifyCmd())
	cmd.AddCommand(newHistoryCmd())
	cmd.AddCommand(newSettingsCmd())
	cmd.AddCommand(newVersionCmd())
	return cmd
}

// code 把退出码转换为 cobra 的错误返回
func code(c int) error {
	if c == constants.ExitOK {
		return nil
	}
	return exitError{code: c}
}

// withEnv 组装完整的运行环境后执行 fn
func withEnv(fn func(ctx context.Context, env *commands.Env) int) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, _ []string) error {
		env := commands.Bootstrap(opts)
		defer env.Close()
		return code(fn(cmd.Context(), env))
	}
}

func newCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "检测 Node.js、npm、编译工具与磁盘空间",
		Args:  cobra.NoArgs,
		RunE:  withEnv(commands.Check),
	}
}

func newInstallCmd() *cobra.Command {
	var skipRuntime bool
	var bundle string
	cmd := &cobra.Command{
		Use:   "install",
		Short: "安装 Node.js 与 OpenClaw 并写入网关默认配置",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if bundle != "" {
				opts.Override = func(cfg *appconfig.Config) { cfg.Install.BundlePath = bundle }
			}
			return withEnv(func(ctx context.Context, env *commands.Env) int {
				return commands.Install(ctx, env, setup.InstallOptions{SkipRuntime: skipRuntime})
			})(cmd, nil)
		},
	}
	cmd.Flags().BoolVar(&skipRuntime, "skip-runtime", false, "跳过 Node.js 检查与安装")
	cmd.Flags().StringVar(&bundle, "bundle", "", "离线安装包路径（.tgz）")

	cmd.AddCommand(&cobra.Command{
		Use:   "runtime",
		Short: "只安装 Node.js",
		Args:  cobra.NoArgs,
		RunE:  withEnv(commands.InstallRuntime),
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "tool",
		Short: "只安装 OpenClaw",
		Args:  cobra.NoArgs,
		RunE:  withEnv(commands.InstallTool),
	})
	return cmd
}

func newUninstallCmd() *cobra.Command {
	var args commands.UninstallArgs
	cmd := &cobra.Command{
		Use:   "uninstall",
		Short: "停止网关并卸载 OpenClaw",
		Args:  cobra.NoArgs,
		RunE: withEnv(func(ctx context.Context, env *commands.Env) int {
			return commands.Uninstall(ctx, env, args)
		}),
	}
	cmd.Flags().BoolVar(&args.Force, "force", false, "网关停止失败时仍继续卸载")
	cmd.Flags().BoolVar(&args.PurgeConfig, "purge-config", false, "同时删除 OpenClaw 配置与会话数据")
	cmd.Flags().BoolVarP(&args.Yes, "yes", "y", false, "跳过确认")
	return cmd
}

func newGatewayCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "gateway",
		Short: "管理 OpenClaw 网关",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "start",
		Short: "后台启动网关",
		Args:  cobra.NoArgs,
		RunE:  withEnv(commands.GatewayStart),
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "stop",
		Short: "停止网关",
		Args:  cobra.NoArgs,
		RunE:  withEnv(commands.GatewayStop),
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "restart",
		Short: "重启网关",
		Args:  cobra.NoArgs,
		RunE:  withEnv(commands.GatewayRestart),
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "查看网关状态",
		Args:  cobra.NoArgs,
		RunE:  withEnv(commands.GatewayStatus),
	})

	var elevate bool
	svc := &cobra.Command{
		Use:   "install-service",
		Short: "将网关注册为系统服务",
		Args:  cobra.NoArgs,
		RunE: withEnv(func(ctx context.Context, env *commands.Env) int {
			return commands.GatewayInstallService(ctx, env, elevate)
		}),
	}
	svc.Flags().BoolVar(&elevate, "elevate", false, "以管理员权限注册")
	cmd.AddCommand(svc)
	return cmd
}

func newDoctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "环境扫描与网关诊断",
		Args:  cobra.NoArgs,
		RunE:  withEnv(commands.Doctor),
	}
}

func newVerifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "verify",
		Short: "检查安装结果",
		Args:  cobra.NoArgs,
		RunE:  withEnv(commands.Verify),
	}
}

func newClassifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "classify [FILE]",
		Short: "对安装错误输出分类（默认读取标准输入）",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := ""
			if len(args) == 1 {
				path = args[0]
			}
			commands.LoadConfig(opts)
			return code(commands.Classify(cmd.InOrStdin(), path, opts.JSON))
		},
	}
}

func newHistoryCmd() *cobra.Command {
	var filter journal.OperationFilter
	cmd := &cobra.Command{
		Use:   "history",
		Short: "查看操作记录",
		Args:  cobra.NoArgs,
		RunE: withEnv(func(_ context.Context, env *commands.Env) int {
			return commands.History(env, filter)
		}),
	}
	cmd.Flags().IntVarP(&filter.Limit, "limit", "n", 20, "最多显示的记录数")
	cmd.Flags().StringVar(&filter.Action, "action", "", "按操作类型过滤，例如 tool.install")
	cmd.Flags().StringVar(&filter.Result, "result", "", "按结果过滤：success/failed/declined/pending/warning")
	return cmd
}

func newSettingsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "查看 openclawsetup 配置",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "显示当前配置与安装状态",
		Args:  cobra.NoArgs,
		RunE: withEnv(func(_ context.Context, env *commands.Env) int {
			return commands.SettingsShow(env)
		}),
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "显示配置文件路径",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := commands.LoadConfig(opts)
			return code(commands.SettingsPath(commands.NewEnv(cfg, nil, nil, opts.JSON)))
		},
	})
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "显示版本",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return code(commands.Version(opts.JSON))
		},
	}
}
