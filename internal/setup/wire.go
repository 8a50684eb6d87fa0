package setup

import (
	"openclawsetup/internal/appconfig"
	"openclawsetup/internal/errclass"
	"openclawsetup/internal/installer"
	"openclawsetup/internal/openclaw"
	"openclawsetup/internal/platform"
	"openclawsetup/internal/prereq"
)

// PlatformOptions 由安装器配置得到平台参数
func PlatformOptions(cfg appconfig.Config) platform.Options {
	return platform.Options{
		InstallDir:     cfg.Install.Dir,
		ProbeTimeout:   cfg.Install.VersionProbeTimeout(),
		InstallTimeout: cfg.Install.CommandTimeout(),
		NodeMajor:      cfg.Install.NodeFloorMajor,
	}
}

// Build 按配置构造全部组件。Journal、Settings、Notifier 由调用方按需设置
func Build(cfg appconfig.Config, plat platform.Platform, rep *Reporter) Deps {
	inst := cfg.Install
	cli := openclaw.NewCLI(plat, inst.Dir, inst.VersionProbeTimeout())
	config := openclaw.NewConfigFile("")

	return Deps{
		Platform: plat,
		Prereq: prereq.New(plat, prereq.Options{
			Requirement: prereq.Requirement{
				FloorMajor:   inst.NodeFloorMajor,
				FloorMinor:   inst.NodeFloorMinor,
				CeilingMajor: inst.NodeCeilingMajor,
			},
			InstallDir:          inst.Dir,
			RecognitionAttempts: inst.RecognitionAttempts,
			RecognitionInterval: inst.RecognitionInterval(),
		}),
		Installer: installer.New(plat, cli, errclass.New(string(plat.Target())), installer.Options{
			BundlePath:      inst.BundlePath,
			Package:         inst.Package,
			TarballURL:      inst.TarballFor(),
			Registry:        inst.Registry,
			CommandTimeout:  inst.CommandTimeout(),
			TerminalTimeout: inst.TerminalTimeout(),
			TerminalPoll:    inst.TerminalPoll(),
		}),
		CLI:    cli,
		Config: config,
		Gateway: openclaw.NewService(cli, config, openclaw.ServiceOptions{
			Port:     cfg.Gateway.Port,
			Grace:    cfg.Gateway.Grace(),
			StopWait: cfg.Gateway.StopWait(),
		}),
		Reporter: rep,
	}
}
