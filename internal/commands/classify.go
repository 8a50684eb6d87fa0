package commands

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"openclawsetup/internal/constants"
	"openclawsetup/internal/errclass"
	"openclawsetup/internal/output"
)

// Classify 对安装输出做错误分类，path 为空时读取 stdin
func Classify(stdin io.Reader, path string, jsonOut bool) int {
	var data []byte
	var err error
	if path == "" || path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(homePath(path))
	}
	if err != nil {
		output.Errorf("读取输入失败: %s\n", err)
		return constants.ExitFailed
	}
	if strings.TrimSpace(string(data)) == "" {
		output.Errorf("输入为空\n")
		return constants.ExitUsage
	}

	a := errclass.Classify(runtime.GOOS, string(data))
	if jsonOut {
		if err := output.JSON(a); err != nil {
			output.Errorf("%s\n", err)
			return constants.ExitFailed
		}
		return constants.ExitOK
	}
	w := output.Writer()
	fmt.Fprintf(w, "%s %s (%s)\n", output.Colorize("title", "类别:"), a.Category.Title(), a.Category)
	line(w, "说明", a.Description)
	line(w, "建议", a.Remedy)
	line(w, "可自动修复", yesNo(a.AutoFixable))
	if a.RequiresVCS {
		line(w, "需要 git", "是")
	}
	return constants.ExitOK
}

// homePath 展开 shell 未处理的 ~ 前缀
func homePath(path string) string {
	rest, ok := strings.CutPrefix(path, "~")
	if !ok || (rest != "" && rest[0] != '/' && rest[0] != filepath.Separator) {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, rest)
}
