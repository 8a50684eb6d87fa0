package commands

import (
	"fmt"
	"io"
	"strings"

	"openclawsetup/internal/output"
	"openclawsetup/internal/setup"
)

// renderEvent 终端模式下的进度事件渲染
func renderEvent(e setup.Event) {
	msg := strings.TrimSpace(e.Message)
	if msg == "" {
		return
	}
	switch e.Type {
	case setup.EventPhase:
		output.Printf("%s %s\n", output.Colorize("title", "==>"), output.Colorize("title", msg))
	case setup.EventStep:
		output.Printf("  %s %s\n", output.Colorize("accent", "->"), msg)
	case setup.EventProgress:
		if e.Progress > 0 {
			output.Printf("  %s %s\n", output.Colorize("dim", fmt.Sprintf("[%3d%%]", e.Progress)), msg)
			return
		}
		output.Printf("  %s\n", output.Colorize("dim", msg))
	case setup.EventLog:
		if output.IsDebug() {
			output.Printf("  %s\n", output.Colorize("dim", msg))
		}
	case setup.EventSuccess:
		output.Printf("  %s %s\n", output.Colorize("success", "✓"), msg)
	case setup.EventError:
		output.Printf("  %s %s\n", output.Colorize("danger", "✗"), msg)
	case setup.EventComplete:
		output.Printf("%s %s\n", output.Colorize("success", "==>"), msg)
	}
}

func mark(ok bool) string {
	if ok {
		return output.Colorize("success", "[正常]")
	}
	return output.Colorize("danger", "[缺失]")
}

func yesNo(v bool) string {
	if v {
		return "是"
	}
	return "否"
}

func line(w io.Writer, label, value string) {
	fmt.Fprintf(w, "  %-14s %s\n", label, value)
}

func warnings(w io.Writer, items []string) {
	for _, item := range items {
		fmt.Fprintf(w, "%s %s\n", output.Colorize("warning", "[警告]"), item)
	}
}

func orDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}
