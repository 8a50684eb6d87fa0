package platform

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// Command 描述一次外部进程调用
type Command struct {
	Name string
	Args []string
	Dir  string
	// Env 为完整环境变量，由 Platform 在调用 Runner 前填充
	Env []string
	// ExtraEnv 追加或覆盖的变量（KEY=VALUE）
	ExtraEnv []string
	Timeout  time.Duration
	// Visible 为 true 时显示控制台窗口（仅 Windows 有区别）
	Visible bool
	// OnLine 逐行回调 stdout/stderr 输出
	OnLine func(stream, line string)
	// LogPath 仅用于 Start：后台进程输出写入的文件
	LogPath string
}

func (c Command) String() string {
	return strings.TrimSpace(c.Name + " " + strings.Join(c.Args, " "))
}

// Result 进程执行结果
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
	Duration time.Duration
}

// Combined 合并 stdout 与 stderr
func (r Result) Combined() string {
	out := strings.TrimSpace(r.Stdout)
	errOut := strings.TrimSpace(r.Stderr)
	switch {
	case out == "":
		return errOut
	case errOut == "":
		return out
	default:
		return out + "\n" + errOut
	}
}

// Runner 是所有外部进程调用的唯一出口，测试中以替身替换
type Runner interface {
	Run(ctx context.Context, cmd Command) (Result, error)
	// Start 以脱离父进程的方式启动后台进程，返回 PID
	Start(cmd Command) (int, error)
	LookPath(name string, env []string) (string, error)
}

// ExecRunner 基于 os/exec 的 Runner
type ExecRunner struct {
	windows bool
}

func NewExecRunner(target Target) *ExecRunner {
	return &ExecRunner{windows: target == Windows}
}

func (r *ExecRunner) Run(ctx context.Context, cmd Command) (Result, error) {
	if cmd.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cmd.Timeout)
		defer cancel()
	}

	path, err := r.LookPath(cmd.Name, cmd.Env)
	if err != nil {
		return Result{ExitCode: -1}, &SpawnError{Name: cmd.Name, Err: err}
	}

	c := exec.CommandContext(ctx, path, cmd.Args...)
	c.Dir = cmd.Dir
	if cmd.Env != nil {
		c.Env = cmd.Env
	}
	c.SysProcAttr = sysProcAttr(cmd.Visible, false)
	// 子进程被杀后孙进程可能仍占用输出管道
	c.WaitDelay = 3 * time.Second

	var stdout, stderr bytes.Buffer
	if cmd.OnLine != nil {
		c.Stdout = &lineWriter{buf: &stdout, stream: "stdout", fn: cmd.OnLine}
		c.Stderr = &lineWriter{buf: &stderr, stream: "stderr", fn: cmd.OnLine}
	} else {
		c.Stdout = &stdout
		c.Stderr = &stderr
	}

	start := time.Now()
	runErr := c.Run()
	if lw, ok := c.Stdout.(*lineWriter); ok {
		lw.flush()
	}
	if lw, ok := c.Stderr.(*lineWriter); ok {
		lw.flush()
	}

	res := Result{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: time.Since(start),
	}
	if runErr == nil {
		return res, nil
	}

	var ee *exec.ExitError
	if errors.As(runErr, &ee) {
		res.ExitCode = ee.ExitCode()
		return res, &ExitError{
			Name:     cmd.Name,
			Args:     cmd.Args,
			Code:     res.ExitCode,
			Output:   res.Combined(),
			TimedOut: errors.Is(ctx.Err(), context.DeadlineExceeded),
		}
	}
	res.ExitCode = -1
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return res, &ExitError{Name: cmd.Name, Args: cmd.Args, Code: -1, Output: res.Combined(), TimedOut: true}
	}
	return res, &SpawnError{Name: cmd.Name, Err: runErr}
}

func (r *ExecRunner) Start(cmd Command) (int, error) {
	path, err := r.LookPath(cmd.Name, cmd.Env)
	if err != nil {
		return 0, &SpawnError{Name: cmd.Name, Err: err}
	}

	var out *os.File
	if cmd.LogPath != "" {
		if err := os.MkdirAll(filepath.Dir(cmd.LogPath), 0o700); err == nil {
			out, _ = os.OpenFile(cmd.LogPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
		}
	}
	if out == nil {
		out, _ = os.OpenFile(os.DevNull, os.O_WRONLY, 0)
	}

	c := exec.Command(path, cmd.Args...)
	c.Dir = cmd.Dir
	if cmd.Env != nil {
		c.Env = cmd.Env
	}
	c.Stdin = nil
	if out != nil {
		c.Stdout = out
		c.Stderr = out
	}
	c.SysProcAttr = sysProcAttr(cmd.Visible, true)

	if err := c.Start(); err != nil {
		if out != nil {
			out.Close()
		}
		return 0, &SpawnError{Name: cmd.Name, Err: err}
	}
	pid := c.Process.Pid

	// 回收子进程，避免僵尸进程
	go func() {
		_ = c.Wait()
		if out != nil {
			out.Close()
		}
	}()
	return pid, nil
}

// LookPath 在 env 的 PATH 中查找可执行文件；env 为空时使用当前进程的 PATH
func (r *ExecRunner) LookPath(name string, env []string) (string, error) {
	if strings.ContainsAny(name, `/\`) {
		if isExecutable(name, r.windows) {
			return name, nil
		}
		return "", fmt.Errorf("%s: %w", name, exec.ErrNotFound)
	}
	pathValue, ok := lookupEnv(env, "PATH", r.windows)
	if !ok {
		pathValue = os.Getenv("PATH")
	}
	sep := string(os.PathListSeparator)
	for _, dir := range strings.Split(pathValue, sep) {
		if dir == "" {
			continue
		}
		for _, candidate := range executableNames(name, r.windows) {
			full := filepath.Join(dir, candidate)
			if isExecutable(full, r.windows) {
				return full, nil
			}
		}
	}
	return "", fmt.Errorf("%s: %w", name, exec.ErrNotFound)
}

func executableNames(name string, windows bool) []string {
	if !windows || filepath.Ext(name) != "" {
		return []string{name}
	}
	return []string{name + ".exe", name + ".cmd", name + ".bat", name}
}

func isExecutable(path string, windows bool) bool {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return false
	}
	if windows {
		return true
	}
	return info.Mode()&0o111 != 0
}

// lineWriter 将输出按行回调，同时保留完整内容
type lineWriter struct {
	mu      sync.Mutex
	buf     *bytes.Buffer
	pending []byte
	stream  string
	fn      func(stream, line string)
}

func (w *lineWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.buf.Write(p)
	w.pending = append(w.pending, p...)
	for {
		i := bytes.IndexByte(w.pending, '\n')
		if i < 0 {
			break
		}
		line := strings.TrimRight(string(w.pending[:i]), "\r")
		w.pending = w.pending[i+1:]
		if line != "" {
			w.fn(w.stream, line)
		}
	}
	return len(p), nil
}

func (w *lineWriter) flush() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if line := strings.TrimSpace(string(w.pending)); line != "" {
		w.fn(w.stream, line)
	}
	w.pending = nil
}
