package installer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"openclawsetup/internal/constants"
	"openclawsetup/internal/logger"
	"openclawsetup/internal/openclaw"
	"openclawsetup/internal/platform"
)

// Cleanup 清理不完整的安装：npm uninstall（尽力而为）→ 删除残留文件 → 清空缓存。
// 损坏的命令位于安装目录之外时同时尝试卸载全局包
func (m *Manager) Cleanup(ctx context.Context, broken openclaw.Installation) error {
	if broken.Path != "" && !within(m.cli.InstallDir(), broken.Path) {
		m.npmUninstallGlobal(ctx)
	}
	m.npmUninstall(ctx)

	dir := m.cli.InstallDir()
	residual := []string{
		m.cli.PackageDir(),
		filepath.Join(dir, "node_modules", ".bin", constants.OpenClawBin),
		filepath.Join(dir, "node_modules", ".bin", constants.OpenClawBin+".cmd"),
		filepath.Join(dir, "node_modules", ".bin", constants.OpenClawBin+".ps1"),
		filepath.Join(dir, "node_modules", ".package-lock.json"),
		filepath.Join(dir, "package-lock.json"),
		m.cli.CacheDir(),
	}
	var errs []error
	for _, p := range residual {
		if err := os.RemoveAll(p); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("清理残留文件: %w", err)
	}
	logger.Installer.Info().Str("dir", dir).Msg("已清理不完整的安装")
	return nil
}

// Uninstall 卸载工具并删除整个安装目录（包括缓存）。调用方负责先停止网关
func (m *Manager) Uninstall(ctx context.Context) error {
	m.npmUninstall(ctx)
	dir := m.cli.InstallDir()
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("删除安装目录 %s: %w", dir, err)
	}
	logger.Installer.Info().Str("dir", dir).Msg("OpenClaw 已卸载")
	return nil
}

func (m *Manager) npmUninstall(ctx context.Context) {
	if _, err := os.Stat(filepath.Join(m.cli.InstallDir(), "node_modules")); err != nil {
		return
	}
	_, err := m.plat.Exec(ctx, platform.Command{
		Name:     constants.NpmBin,
		Args:     []string{"uninstall", m.opts.Package, "--prefix", m.cli.InstallDir(), "--no-save"},
		ExtraEnv: m.npmEnv(),
		Timeout:  3 * time.Minute,
	})
	if err != nil {
		logger.Installer.Debug().Err(err).Msg("npm uninstall 失败，继续删除文件")
	}
}

func (m *Manager) npmUninstallGlobal(ctx context.Context) {
	_, err := m.plat.Exec(ctx, platform.Command{
		Name:    constants.NpmBin,
		Args:    []string{"uninstall", "-g", m.opts.Package},
		Timeout: 3 * time.Minute,
	})
	if err != nil {
		logger.Installer.Debug().Err(err).Msg("npm uninstall -g 失败")
	}
}

func within(dir, path string) bool {
	rel, err := filepath.Rel(dir, path)
	return err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
