package openclaw

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
	"openclawsetup/internal/platform"
)

// ErrNotInstalled 找不到可用的 openclaw 命令
var ErrNotInstalled = errors.New("openclaw 未安装")

// InstallState 工具安装状态
type InstallState string

const (
	NotInstalled InstallState = "not_installed"
	Installed    InstallState = "installed"
	// Incomplete 命令可以解析但无法正常响应，或安装目录残留了不完整的包
	Incomplete InstallState = "incomplete"
)

// Installation Locate 的结果
type Installation struct {
	State   InstallState `json:"state"`
	Path    string       `json:"path,omitempty"`
	Version string       `json:"version,omitempty"`
	Detail  string       `json:"detail,omitempty"`
}

// CLI openclaw 命令行边界：定位、探测并调用外部工具
type CLI struct {
	plat       platform.Platform
	installDir string
	timeout    time.Duration
}

func NewCLI(plat platform.Platform, installDir string, timeout time.Duration) *CLI {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &CLI{plat: plat, installDir: installDir, timeout: timeout}
}

func (c *CLI) Platform() platform.Platform { return c.plat }

func (c *CLI) InstallDir() string { return c.installDir }

// CacheDir 安装目录内的 npm 缓存目录，删除安装目录即可完全清理
func (c *CLI) CacheDir() string {
	return filepath.Join(c.installDir, "."+constants.OpenClawPackage+"-cache")
}

// PackageDir 本地安装的包目录
func (c *CLI) PackageDir() string {
	return filepath.Join(c.installDir, "node_modules", constants.OpenClawPackage)
}

// EntryPoint 安装成功后必须存在的入口文件
func (c *CLI) EntryPoint() string {
	return filepath.Join(c.PackageDir(), constants.OpenClawBin+".mjs")
}

// LocalBin 安装目录下 npm 生成的可执行入口
func (c *CLI) LocalBin() string {
	name := constants.OpenClawBin
	if c.plat.Target() == platform.Windows {
		name += ".cmd"
	}
	return filepath.Join(c.installDir, "node_modules", ".bin", name)
}

// Candidates 按优先级列出可能的安装位置：本地安装目录 → npm 全局目录
func (c *CLI) Candidates() []string {
	out := []string{c.LocalBin()}
	home, _ := os.UserHomeDir()
	if c.plat.Target() == platform.Windows {
		if appData := os.Getenv("APPDATA"); appData != "" {
			out = append(out, filepath.Join(appData, "npm", constants.OpenClawBin+".cmd"))
		}
		return out
	}
	out = append(out,
		"/usr/local/bin/"+constants.OpenClawBin,
		"/opt/homebrew/bin/"+constants.OpenClawBin,
	)
	if home != "" {
		out = append(out,
			filepath.Join(home, ".npm-global", "bin", constants.OpenClawBin),
			filepath.Join(home, ".local", "bin", constants.OpenClawBin),
		)
	}
	return out
}

// resolved 列出实际存在的候选命令，最后追加 PATH 查找结果
func (c *CLI) resolved() []string {
	var paths []string
	seen := map[string]bool{}
	add := func(p string) {
		if p == "" || seen[p] {
			return
		}
		seen[p] = true
		paths = append(paths, p)
	}
	for _, p := range c.Candidates() {
		if fileExists(p) {
			add(p)
		}
	}
	for _, name := range []string{constants.OpenClawBin, constants.OpenClawBin + "-cn"} {
		if p, err := c.plat.LookPath(name); err == nil {
			add(p)
		}
	}
	return paths
}

// Locate 依次探测候选位置，返回第一个能正常响应 --version 的安装。
// 命令存在但探测失败，或安装目录残留了缺少入口文件的包，视为不完整安装
func (c *CLI) Locate(ctx context.Context) Installation {
	var broken *Installation
	for _, p := range c.resolved() {
		v, err := c.version(ctx, p)
		if err == nil {
			logger.Installer.Debug().Str("path", p).Str("version", v).Msg("检测到 openclaw")
			return Installation{State: Installed, Path: p, Version: v}
		}
		logger.Installer.Warn().Err(err).Str("path", p).Msg("openclaw 命令存在但无法响应")
		if broken == nil {
			broken = &Installation{State: Incomplete, Path: p, Detail: platform.Truncate(platform.OutputOf(err), 200)}
		}
	}
	if broken != nil {
		return *broken
	}
	if dirExists(c.PackageDir()) && !fileExists(c.EntryPoint()) {
		return Installation{State: Incomplete, Path: c.PackageDir(), Detail: "安装目录中的 openclaw 包缺少入口文件"}
	}
	return Installation{State: NotInstalled}
}

func (c *CLI) version(ctx context.Context, path string) (string, error) {
	res, err := c.plat.Exec(ctx, platform.Command{Name: path, Args: []string{"--version"}, Timeout: c.timeout})
	if err != nil {
		return "", err
	}
	out := strings.TrimSpace(res.Stdout)
	if v := platform.ExtractVersion(out); v != "" {
		return v, nil
	}
	if out == "" {
		return "", fmt.Errorf("%s --version 没有输出", path)
	}
	return out, nil
}

// Resolve 返回可用于调用的命令路径，没有可用安装时返回 ""
func (c *CLI) Resolve(ctx context.Context) string {
	paths := c.resolved()
	if len(paths) == 0 {
		return ""
	}
	return paths[0]
}

// Run 执行 openclaw 子命令，返回合并后的输出
func (c *CLI) Run(ctx context.Context, args ...string) (string, error) {
	cmd := c.Resolve(ctx)
	if cmd == "" {
		return "", ErrNotInstalled
	}
	res, err := c.plat.Exec(ctx, platform.Command{Name: cmd, Args: args, Timeout: c.timeout})
	out := res.Combined()
	if err != nil {
		return platform.OutputOf(err), fmt.Errorf("openclaw %s: %w", strings.Join(args, " "), err)
	}
	return out, nil
}
