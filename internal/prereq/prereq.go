package prereq

import (
	"context"
	"errors"
	"fmt"
	"time"

	"openclawsetup/internal/constants"
	"openclawsetup/internal/logger"
	"openclawsetup/internal/platform"

	"golang.org/x/sync/errgroup"
)

// Status 一次前置条件检测的快照，每次检测重新构造
type Status struct {
	Platform          string  `json:"platform"`
	NodeInstalled     bool    `json:"node_installed"`
	NodeVersion       string  `json:"node_version,omitempty"`
	NodeCompatible    bool    `json:"node_compatible"`
	NodeTooNew        bool    `json:"node_too_new"`
	NpmInstalled      bool    `json:"npm_installed"`
	BuildToolsPresent bool    `json:"build_tools_present"`
	DiskFreeGB        float64 `json:"disk_free_gb"`
	DiskSufficient    bool    `json:"disk_sufficient"`
	SecuritySoftware  string  `json:"security_software,omitempty"`
}

// Ready 运行时兼容、npm 可用且磁盘空间充足
func (s Status) Ready() bool {
	return s.NodeCompatible && s.NpmInstalled && s.DiskSufficient
}

// Options 安装器参数
type Options struct {
	Requirement Requirement
	// InstallDir 用于计算可用磁盘空间
	InstallDir string
	MinDiskGB  float64
	// RecognitionAttempts / RecognitionInterval 仅 Windows 使用
	RecognitionAttempts int
	RecognitionInterval time.Duration
}

// Outcome 运行时安装结果
type Outcome struct {
	Message         string `json:"message"`
	Version         string `json:"version,omitempty"`
	AlreadyPresent  bool   `json:"already_present"`
	RestartRequired bool   `json:"restart_required"`
	// Warning 安装命令成功但复查仍不兼容，不阻止后续流程
	Warning string `json:"warning,omitempty"`
}

// Installer 运行时前置条件检测与安装
type Installer struct {
	plat  platform.Platform
	opts  Options
	sleep func(ctx context.Context, d time.Duration) error
}

func New(plat platform.Platform, opts Options) *Installer {
	if opts.Requirement == (Requirement{}) {
		opts.Requirement = DefaultRequirement()
	}
	if opts.MinDiskGB <= 0 {
		opts.MinDiskGB = constants.MinFreeDiskGB
	}
	if opts.RecognitionAttempts <= 0 {
		opts.RecognitionAttempts = 10
	}
	if opts.RecognitionInterval <= 0 {
		opts.RecognitionInterval = 3 * time.Second
	}
	return &Installer{plat: plat, opts: opts, sleep: sleepCtx}
}

// Requirement 当前使用的版本要求
func (i *Installer) Requirement() Requirement { return i.opts.Requirement }

// Check 并发探测各项前置条件
func (i *Installer) Check(ctx context.Context) Status {
	st := Status{Platform: string(i.plat.Target())}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		st.NodeVersion, st.NodeInstalled = i.plat.RuntimeVersion(gctx)
		return nil
	})
	g.Go(func() error {
		st.NpmInstalled = i.plat.PackageManagerPresent(gctx)
		return nil
	})
	g.Go(func() error {
		st.BuildToolsPresent = i.plat.BuildToolsPresent(gctx)
		return nil
	})
	g.Go(func() error {
		st.DiskFreeGB = i.plat.FreeDiskGB(i.opts.InstallDir)
		return nil
	})
	g.Go(func() error {
		st.SecuritySoftware = i.plat.DetectSecuritySoftware(gctx)
		return nil
	})
	_ = g.Wait()

	if st.NodeInstalled {
		st.NodeCompatible, st.NodeTooNew = i.evaluate(st.NodeVersion)
	}
	st.DiskSufficient = st.DiskFreeGB >= i.opts.MinDiskGB

	logger.Prereq.Info().
		Str("node", st.NodeVersion).
		Bool("compatible", st.NodeCompatible).
		Bool("too_new", st.NodeTooNew).
		Bool("npm", st.NpmInstalled).
		Float64("disk_gb", st.DiskFreeGB).
		Str("security", st.SecuritySoftware).
		Msg("前置条件检测完成")
	return st
}

func (i *Installer) evaluate(raw string) (compatible, tooNew bool) {
	v, err := ParseVersion(raw)
	if err != nil {
		return false, false
	}
	req := i.opts.Requirement
	return req.IsCompatible(v), req.IsTooNew(v)
}

// EnsureRuntime 运行时不兼容时通过系统渠道安装。
// 用户拒绝提权返回 platform.ErrElevationDeclined，浏览器跳转返回 platform.ErrManualAction
func (i *Installer) EnsureRuntime(ctx context.Context) (Outcome, error) {
	current, installed := i.plat.RuntimeVersion(ctx)
	if installed {
		compatible, tooNew := i.evaluate(current)
		if compatible {
			return Outcome{Message: fmt.Sprintf("Node.js %s 已安装", current), Version: current, AlreadyPresent: true}, nil
		}
		if tooNew {
			// 不自动降级用户已有的运行时
			logger.Prereq.Warn().Str("version", current).Msg("Node.js 版本过新")
			return Outcome{
				Message:        fmt.Sprintf("Node.js %s 已安装", current),
				Version:        current,
				AlreadyPresent: true,
				Warning:        fmt.Sprintf("Node.js %s 高于已验证范围 (%s)，可能存在兼容性问题", current, i.opts.Requirement),
			}, nil
		}
	}

	logger.Prereq.Info().Str("current", current).Str("require", i.opts.Requirement.String()).Msg("开始安装 Node.js")
	msg, err := i.plat.InstallRuntime(ctx)
	if err != nil {
		switch {
		case errors.Is(err, platform.ErrElevationDeclined):
			logger.Prereq.Warn().Msg("用户拒绝了 Node.js 安装的管理员权限")
		case errors.Is(err, platform.ErrManualAction):
			logger.Prereq.Info().Msg("已打开 Node.js 下载页面，等待用户手动安装")
		default:
			logger.Prereq.Error().Err(err).Msg("Node.js 安装失败")
		}
		return Outcome{Message: msg}, fmt.Errorf("安装 Node.js: %w", err)
	}

	if i.plat.Target() == platform.Windows {
		return i.awaitRecognition(ctx, msg)
	}

	i.plat.RefreshEnvironment()
	v, _ := i.plat.RuntimeVersion(ctx)
	return i.recheck(msg, v), nil
}

// recheck 安装后复查。不兼容只给出警告，工具安装照常继续
func (i *Installer) recheck(msg, v string) Outcome {
	if compatible, _ := i.evaluate(v); compatible {
		return Outcome{Message: fmt.Sprintf("Node.js %s 安装成功", v), Version: v}
	}
	warning := fmt.Sprintf("安装命令已完成，但未检测到兼容的 Node.js（当前: %s，要求 %s）", displayVersion(v), i.opts.Requirement)
	logger.Prereq.Warn().Str("version", v).Msg(warning)
	return Outcome{Message: msg, Version: v, Warning: warning}
}

// awaitRecognition Windows 安装后新环境变量不一定立即生效，有限次刷新后复查
func (i *Installer) awaitRecognition(ctx context.Context, msg string) (Outcome, error) {
	for attempt := 1; attempt <= i.opts.RecognitionAttempts; attempt++ {
		i.plat.RefreshEnvironment()
		// 已识别到版本就不需要重启，版本是否兼容交给 recheck
		if v, ok := i.plat.RuntimeVersion(ctx); ok {
			logger.Prereq.Info().Int("attempt", attempt).Str("version", v).Msg("Node.js 已被识别")
			return i.recheck(msg, v), nil
		}
		if attempt == i.opts.RecognitionAttempts {
			break
		}
		if err := i.sleep(ctx, i.opts.RecognitionInterval); err != nil {
			break
		}
	}
	logger.Prereq.Warn().Int("attempts", i.opts.RecognitionAttempts).Msg("Node.js 安装完成但当前进程尚未识别")
	return Outcome{
		Message:         "Node.js 已安装，请重启安装程序以使环境变量生效",
		RestartRequired: true,
	}, nil
}

func displayVersion(v string) string {
	if v == "" {
		return "未检测到"
	}
	return v
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
