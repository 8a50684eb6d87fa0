package openclaw

import (
	"os"
	"path/filepath"
	"strings"
)

// ResolveStateDir 解析 OpenClaw 状态目录
// 优先级: OPENCLAW_STATE_DIR → CLAWDBOT_STATE_DIR → ~/.openclaw
func ResolveStateDir() string {
	if dir := strings.TrimSpace(os.Getenv("OPENCLAW_STATE_DIR")); dir != "" {
		return dir
	}
	if dir := strings.TrimSpace(os.Getenv("CLAWDBOT_STATE_DIR")); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".openclaw")
}

// ResolveConfigPath 解析 OpenClaw 配置文件路径
func ResolveConfigPath() string {
	if p := strings.TrimSpace(os.Getenv("OPENCLAW_CONFIG_PATH")); p != "" {
		return p
	}
	stateDir := ResolveStateDir()
	if stateDir == "" {
		return ""
	}
	return filepath.Join(stateDir, "openclaw.json")
}

// ResolveLogDir 网关日志目录
func ResolveLogDir() string {
	stateDir := ResolveStateDir()
	if stateDir == "" {
		stateDir = filepath.Join(os.TempDir(), ".openclaw")
	}
	return filepath.Join(stateDir, "logs")
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
