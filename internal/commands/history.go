package commands

import (
	"errors"
	"fmt"
	"io"

	"openclawsetup/internal/constants"
	"openclawsetup/internal/journal"
	"openclawsetup/internal/output"
)

// History 最近的操作记录，按时间倒序
func History(env *Env, filter journal.OperationFilter) int {
	if env.Ops == nil {
		return env.fail(errors.New("操作日志库不可用，请检查 database 配置"))
	}
	ops, err := env.Ops.List(filter)
	if err != nil {
		return env.fail(fmt.Errorf("读取操作记录: %w", err))
	}
	env.emit(ops, func(w io.Writer) {
		if len(ops) == 0 {
			fmt.Fprintln(w, output.Colorize("dim", "暂无操作记录"))
			return
		}
		for _, op := range ops {
			fmt.Fprintf(w, "%s  %-24s %s  %s\n",
				output.Colorize("dim", op.CreatedAt.Format("2006-01-02 15:04:05")),
				op.Action, colorResult(op.Result), op.Message)
			if op.Category != "" {
				fmt.Fprintf(w, "    %s %s\n", output.Colorize("dim", "类别:"), op.Category)
			}
		}
	})
	return constants.ExitOK
}

func colorResult(result string) string {
	switch result {
	case constants.ResultSuccess:
		return output.Colorize("success", "[成功]")
	case constants.ResultFailed:
		return output.Colorize("danger", "[失败]")
	case constants.ResultDeclined:
		return output.Colorize("warning", "[取消]")
	case constants.ResultPending:
		return output.Colorize("accent", "[待完成]")
	case constants.ResultWarning:
		return output.Colorize("warning", "[警告]")
	default:
		return "[" + result + "]"
	}
}
