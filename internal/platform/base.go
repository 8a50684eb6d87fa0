package platform

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"openclawsetup/internal/logger"
)

// base 三个平台共用的部分
type base struct {
	target Target
	runner Runner
	opts   Options
	// systemPath 返回系统级 PATH（Windows 从注册表读取），为 nil 时只合并已知目录
	systemPath func() string

	mu   sync.RWMutex
	path []string
}

func newBase(target Target, runner Runner, opts Options) *base {
	return &base{target: target, runner: runner, opts: opts}
}

func (b *base) Target() Target { return b.target }

func (b *base) caseInsensitiveEnv() bool { return b.target == Windows }

func (b *base) RefreshEnvironment() {
	var entries []string
	if b.systemPath != nil {
		entries = append(entries, splitPathList(b.systemPath(), b.target)...)
	}
	entries = append(entries, splitPathList(os.Getenv("PATH"), b.target)...)
	entries = append(entries, b.opts.ExtraPaths...)
	entries = append(entries, KnownBinDirs(b.target, b.opts.HomeDir, b.opts.InstallDir)...)

	merged := dedupPaths(entries, b.caseInsensitiveEnv())
	b.mu.Lock()
	b.path = merged
	b.mu.Unlock()
	logger.Platform.Debug().Int("entries", len(merged)).Msg("PATH 已刷新")
}

// PathEntries 返回当前补全后的 PATH 条目
func (b *base) PathEntries() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return append([]string(nil), b.path...)
}

// Env 返回子进程环境：当前进程环境 + 补全后的 PATH，代理变量原样保留
func (b *base) Env() []string {
	pathKey := "PATH"
	if b.target == Windows {
		pathKey = "Path"
	}
	return mergeEnv(os.Environ(), []string{pathKey + "=" + joinPathList(b.PathEntries(), b.target)}, b.caseInsensitiveEnv())
}

func (b *base) Exec(ctx context.Context, cmd Command) (Result, error) {
	cmd.Env = mergeEnv(b.Env(), cmd.ExtraEnv, b.caseInsensitiveEnv())
	res, err := b.runner.Run(ctx, cmd)
	ev := logger.Platform.Debug()
	if err != nil {
		ev = logger.Platform.Warn().Err(err)
	}
	ev.Str("cmd", cmd.String()).Int("exit", res.ExitCode).Dur("took", res.Duration).Msg("执行命令")
	return res, err
}

func (b *base) RunSilent(ctx context.Context, name string, args ...string) (Result, error) {
	return b.Exec(ctx, Command{Name: name, Args: args, Timeout: b.opts.ProbeTimeout})
}

// runLong 执行安装类长耗时命令
func (b *base) runLong(ctx context.Context, name string, args ...string) (Result, error) {
	return b.Exec(ctx, Command{Name: name, Args: args, Timeout: b.opts.InstallTimeout})
}

func (b *base) StartDetached(cmd Command) (int, error) {
	cmd.Env = mergeEnv(b.Env(), cmd.ExtraEnv, b.caseInsensitiveEnv())
	pid, err := b.runner.Start(cmd)
	if err != nil {
		logger.Platform.Warn().Err(err).Str("cmd", cmd.String()).Msg("后台进程启动失败")
		return 0, err
	}
	logger.Platform.Info().Int("pid", pid).Str("cmd", cmd.String()).Msg("后台进程已启动")
	return pid, nil
}

func (b *base) LookPath(name string) (string, error) {
	return b.runner.LookPath(name, b.Env())
}

func (b *base) has(name string) bool {
	_, err := b.LookPath(name)
	return err == nil
}

func (b *base) RuntimeVersion(ctx context.Context) (string, bool) {
	res, err := b.RunSilent(ctx, "node", "--version")
	if err != nil {
		return "", false
	}
	v := ExtractVersion(res.Stdout)
	if v == "" {
		return "", false
	}
	return "v" + v, true
}

func (b *base) PackageManagerPresent(ctx context.Context) bool {
	_, err := b.RunSilent(ctx, "npm", "--version")
	return err == nil
}

func (b *base) FreeDiskGB(path string) float64 {
	if path == "" {
		path = b.opts.HomeDir
	}
	// 安装目录可能尚未创建，向上找到已存在的目录
	for path != "" {
		if _, err := os.Stat(path); err == nil {
			break
		}
		parent := filepath.Dir(path)
		if parent == path {
			break
		}
		path = parent
	}
	free, err := diskFreeBytes(path)
	if err != nil {
		logger.Platform.Warn().Err(err).Str("path", path).Msg("读取磁盘剩余空间失败")
		return 0
	}
	return float64(free) / (1024 * 1024 * 1024)
}

func (b *base) wait(ctx context.Context, probe Probe, opts WaitOptions) WaitOutcome {
	start := time.Now()
	outcome := Poll(ctx, probe, opts)
	logger.Platform.Info().Str("outcome", outcome.String()).Dur("waited", time.Since(start)).Msg("终端任务轮询结束")
	return outcome
}

// ExtractVersion 从 "v22.12.0"、"node v22.12.0"、"git version 2.40.0" 等输出中提取版本号
func ExtractVersion(output string) string {
	line := strings.TrimSpace(output)
	if i := strings.IndexByte(line, '\n'); i >= 0 {
		line = strings.TrimSpace(line[:i])
	}
	for _, part := range strings.Fields(line) {
		part = strings.TrimPrefix(part, "v")
		if len(part) > 0 && part[0] >= '0' && part[0] <= '9' {
			return part
		}
	}
	return ""
}

// knownProduct 已知会拦截 npm 文件操作的安全软件
type knownProduct struct {
	Match string
	Name  string
}

func matchKnownProduct(listing string, known []knownProduct) string {
	lower := strings.ToLower(listing)
	for _, p := range known {
		if strings.Contains(lower, strings.ToLower(p.Match)) {
			return p.Name
		}
	}
	return ""
}

// shellQuote 单引号包裹，供 sh -c 使用
func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

func shellJoin(name string, args []string) string {
	parts := make([]string, 0, len(args)+1)
	parts = append(parts, shellQuote(name))
	for _, a := range args {
		parts = append(parts, shellQuote(a))
	}
	return strings.Join(parts, " ")
}
