package platform

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrElevationDeclined 用户在权限提升对话框中点击了取消，不应自动重试
	ErrElevationDeclined = errors.New("用户拒绝了管理员权限请求")
	// ErrManualAction 已为用户打开官方下载页面等，需用户手动完成后重试
	ErrManualAction = errors.New("需要手动完成安装")
	// ErrUnsupported 当前平台没有该操作的实现
	ErrUnsupported = errors.New("当前平台不支持该操作")
)

// SpawnError 进程无法启动（命令不存在、无执行权限等）
type SpawnError struct {
	Name string
	Err  error
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("无法启动 %s: %v", e.Name, e.Err)
}

func (e *SpawnError) Unwrap() error { return e.Err }

// ExitError 进程已运行但以非零退出码结束
type ExitError struct {
	Name     string
	Args     []string
	Code     int
	Output   string
	TimedOut bool
}

func (e *ExitError) Error() string {
	cmd := strings.TrimSpace(e.Name + " " + strings.Join(e.Args, " "))
	if e.TimedOut {
		return fmt.Sprintf("%s 执行超时", cmd)
	}
	out := Truncate(strings.TrimSpace(e.Output), 300)
	if out == "" {
		return fmt.Sprintf("%s 退出码 %d", cmd, e.Code)
	}
	return fmt.Sprintf("%s 退出码 %d: %s", cmd, e.Code, out)
}

// IsNotFound 判断错误是否为命令不存在
func IsNotFound(err error) bool {
	var se *SpawnError
	return errors.As(err, &se)
}

// OutputOf 返回错误中携带的进程输出（没有则返回错误文本）
func OutputOf(err error) string {
	if err == nil {
		return ""
	}
	var ee *ExitError
	if errors.As(err, &ee) {
		if strings.TrimSpace(ee.Output) != "" {
			return ee.Output
		}
	}
	return err.Error()
}

// Truncate 按字符截断，超出部分以 "..." 结尾
func Truncate(s string, max int) string {
	r := []rune(s)
	if max <= 0 || len(r) <= max {
		return s
	}
	return string(r[:max]) + "..."
}
