package prompt

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
)

// ErrNotInteractive 标准输入不是终端，无法确认
var ErrNotInteractive = errors.New("标准输入不是终端，请使用 --yes 跳过确认")

var (
	in  io.Reader = os.Stdin
	out io.Writer = os.Stdout
	// interactive 可在测试中替换
	interactive = func() bool {
		fd := os.Stdin.Fd()
		return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
	}
)

func IsInteractive() bool {
	return interactive()
}

// Confirm 交互确认，非终端环境返回 ErrNotInteractive
func Confirm(label string, defaultValue bool) (bool, error) {
	if !IsInteractive() {
		return false, ErrNotInteractive
	}
	return AskBool(label, defaultValue)
}

func AskBool(label string, defaultValue bool) (bool, error) {
	defaultText := "否"
	if defaultValue {
		defaultText = "是"
	}
	fmt.Fprintf(out, "%s [默认:%s]: ", label, defaultText)

	reader := bufio.NewReader(in)
	text, err := reader.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return false, err
	}
	text = strings.TrimSpace(strings.ToLower(text))
	switch text {
	case "":
		return defaultValue, nil
	case "y", "yes", "是", "1", "true":
		return true, nil
	case "n", "no", "否", "0", "false":
		return false, nil
	default:
		return false, fmt.Errorf("无法识别的输入: %s", text)
	}
}
