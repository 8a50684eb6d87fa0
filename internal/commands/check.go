package commands

import (
	"context"
	"fmt"
	"io"

	"openclawsetup/internal/constants"
	"openclawsetup/internal/output"
	"openclawsetup/internal/prereq"
)

// Check 检测前置条件。运行时兼容且磁盘充足时返回 0
func Check(ctx context.Context, env *Env) int {
	st := env.Orch.CheckPrerequisites(ctx)
	env.emit(st, func(w io.Writer) { renderStatus(w, st) })
	if st.NodeCompatible && st.DiskSufficient {
		return constants.ExitOK
	}
	return constants.ExitFailed
}

func renderStatus(w io.Writer, st prereq.Status) {
	fmt.Fprintln(w, output.Colorize("title", "运行环境"))
	line(w, "平台", st.Platform)
	node := orDash(st.NodeVersion)
	if st.NodeTooNew {
		node += " " + output.Colorize("warning", "(版本过新，可能不兼容)")
	}
	line(w, "Node.js", mark(st.NodeCompatible)+" "+node)
	line(w, "npm", mark(st.NpmInstalled))
	line(w, "编译工具", mark(st.BuildToolsPresent))
	line(w, "磁盘可用", fmt.Sprintf("%s %.1fGB", mark(st.DiskSufficient), st.DiskFreeGB))
	if st.SecuritySoftware != "" {
		line(w, "安全软件", output.Colorize("warning", st.SecuritySoftware))
	}
	if !st.NodeCompatible {
		fmt.Fprintln(w, output.Colorize("dim", "运行 openclawsetup install 安装或升级 Node.js"))
	}
}
