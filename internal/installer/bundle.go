package installer

import (
	"archive/tar"
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"openclawsetup/internal/logger"
	"openclawsetup/internal/platform"
)

func (m *Manager) bundleAvailable() bool {
	if m.opts.BundlePath == "" {
		return false
	}
	info, err := os.Stat(m.opts.BundlePath)
	return err == nil && !info.IsDir() && info.Size() > 0
}

// installBundle 将离线包（node_modules 目录树的 tar.gz）解压到安装目录，不调用 npm
func (m *Manager) installBundle() error {
	f, err := os.Open(m.opts.BundlePath)
	if err != nil {
		return fmt.Errorf("打开离线包: %w", err)
	}
	defer f.Close()

	n, err := extractTarGz(f, m.cli.InstallDir())
	if err != nil {
		return fmt.Errorf("解压离线包: %w", err)
	}
	logger.Installer.Info().Int("files", n).Str("bundle", m.opts.BundlePath).Msg("离线包解压完成")
	return m.ensureShim()
}

// extractTarGz 解压到 dest，拒绝越出 dest 的路径
func extractTarGz(r io.Reader, dest string) (int, error) {
	gz, err := gzip.NewReader(r)
	if err != nil {
		return 0, err
	}
	defer gz.Close()

	root, err := filepath.Abs(dest)
	if err != nil {
		return 0, err
	}
	tr := tar.NewReader(gz)
	count := 0
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return count, nil
		}
		if err != nil {
			return count, err
		}
		target, err := safeJoin(root, hdr.Name)
		if err != nil {
			return count, err
		}
		if err := noSymlinkParents(root, target); err != nil {
			return count, err
		}
		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0o755); err != nil {
				return count, err
			}
		case tar.TypeReg:
			if err := writeFile(target, tr, os.FileMode(hdr.Mode)&0o777|0o600); err != nil {
				return count, err
			}
			count++
		case tar.TypeSymlink:
			if filepath.IsAbs(hdr.Linkname) || strings.HasPrefix(hdr.Linkname, "/") {
				return count, fmt.Errorf("非法符号链接: %s -> %s", hdr.Name, hdr.Linkname)
			}
			if _, err := safeJoin(root, filepath.Join(filepath.Dir(hdr.Name), hdr.Linkname)); err != nil {
				return count, err
			}
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return count, err
			}
			_ = os.Remove(target)
			if err := os.Symlink(hdr.Linkname, target); err != nil {
				// Windows 无权限创建符号链接时跳过，入口由 ensureShim 补齐
				logger.Installer.Debug().Err(err).Str("link", hdr.Name).Msg("跳过符号链接")
			}
		}
	}
}

func safeJoin(root, name string) (string, error) {
	target := filepath.Join(root, filepath.FromSlash(name))
	rel, err := filepath.Rel(root, target)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("非法路径: %s", name)
	}
	return target, nil
}

// noSymlinkParents 已存在的上级目录不能是符号链接，否则写入会穿过链接落到 root 之外
func noSymlinkParents(root, target string) error {
	rel, err := filepath.Rel(root, filepath.Dir(target))
	if err != nil {
		return err
	}
	if rel == "." {
		return nil
	}
	cur := root
	for _, part := range strings.Split(rel, string(filepath.Separator)) {
		cur = filepath.Join(cur, part)
		info, err := os.Lstat(cur)
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		if err != nil {
			return err
		}
		if info.Mode()&os.ModeSymlink != 0 {
			return fmt.Errorf("非法路径: %s 经过符号链接", target)
		}
	}
	return nil
}

func writeFile(path string, r io.Reader, mode os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	// 同名符号链接先删掉，O_TRUNC 会跟随链接
	if info, err := os.Lstat(path); err == nil && info.Mode()&os.ModeSymlink != 0 {
		if err := os.Remove(path); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// ensureShim 离线包中没有可执行入口时补一个
func (m *Manager) ensureShim() error {
	bin := m.cli.LocalBin()
	if _, err := os.Lstat(bin); err == nil {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(bin), 0o755); err != nil {
		return err
	}
	if m.plat.Target() == platform.Windows {
		script := "@ECHO off\r\nnode \"%~dp0\\..\\openclaw\\openclaw.mjs\" %*\r\n"
		return os.WriteFile(bin, []byte(script), 0o644)
	}
	script := "#!/bin/sh\nexec node \"$(dirname \"$0\")/../openclaw/openclaw.mjs\" \"$@\"\n"
	return os.WriteFile(bin, []byte(script), 0o755)
}
