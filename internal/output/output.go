package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
	"github.com/muesli/termenv"
)

var (
	debugMode    bool
	out          io.Writer = os.Stdout
	errOut       io.Writer = os.Stderr
	colorEnabled bool
)

var styles = map[string]lipgloss.Style{
	"title":   lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("6")),
	"success": lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("2")),
	"warning": lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("3")),
	"danger":  lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("1")),
	"dim":     lipgloss.NewStyle().Faint(true),
	"accent":  lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("4")),
}

func init() {
	SetColor(detectColorSupport())
}

func SetDebug(enabled bool) {
	debugMode = enabled
}

func IsDebug() bool {
	return debugMode
}

// SetWriter 替换标准输出与错误输出（测试用），nil 表示保持不变
func SetWriter(stdout, stderr io.Writer) {
	if stdout != nil {
		out = stdout
	}
	if stderr != nil {
		errOut = stderr
	}
}

func Writer() io.Writer {
	return out
}

func Printf(format string, args ...any) {
	fmt.Fprintf(out, format, args...)
}

func Println(msg string) {
	fmt.Fprintln(out, msg)
}

func Debugf(format string, args ...any) {
	if !debugMode {
		return
	}
	fmt.Fprintf(errOut, "[调试] "+format, args...)
}

// Errorf 写到标准错误
func Errorf(format string, args ...any) {
	fmt.Fprintf(errOut, Colorize("danger", "错误: ")+format, args...)
}

// JSON 输出一行 JSON，与进度事件同为 JSON Lines 格式
func JSON(v any) error {
	enc := json.NewEncoder(out)
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}

func SetColor(enabled bool) {
	colorEnabled = enabled
	if enabled {
		lipgloss.SetColorProfile(termenv.ANSI)
	} else {
		lipgloss.SetColorProfile(termenv.Ascii)
	}
}

func ColorEnabled() bool {
	return colorEnabled
}

// Colorize 按角色着色：title success warning danger dim accent，未知角色原样返回
func Colorize(role, text string) string {
	if !colorEnabled {
		return text
	}
	style, ok := styles[role]
	if !ok {
		return text
	}
	return style.Render(text)
}

func detectColorSupport() bool {
	if v := strings.TrimSpace(os.Getenv("FORCE_COLOR")); v != "" && v != "0" {
		return true
	}
	if strings.TrimSpace(os.Getenv("NO_COLOR")) != "" {
		return false
	}
	if strings.EqualFold(strings.TrimSpace(os.Getenv("TERM")), "dumb") {
		return false
	}
	if strings.TrimSpace(os.Getenv("CLICOLOR")) == "0" {
		return false
	}
	fd := os.Stdout.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
