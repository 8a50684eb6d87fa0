package openclaw

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"openclawsetup/internal/logger"

	"github.com/titanous/json5"
)

// ConfigFile OpenClaw 配置文件（JSON5）。只读写顶层键，完整 schema 归 openclaw 所有。
// 假定只有本进程写入，不处理外部并发修改
type ConfigFile struct {
	path string
}

func NewConfigFile(path string) *ConfigFile {
	if path == "" {
		path = ResolveConfigPath()
	}
	return &ConfigFile{path: path}
}

func (f *ConfigFile) Path() string { return f.path }

func (f *ConfigFile) Exists() bool { return fileExists(f.path) }

// Load 读取配置，文件不存在时返回空对象
func (f *ConfigFile) Load() (map[string]any, error) {
	data, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return map[string]any{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}
	cfg := map[string]any{}
	if len(strings.TrimSpace(string(data))) == 0 {
		return cfg, nil
	}
	if err := json5.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("解析配置文件 %s 失败: %w", f.path, err)
	}
	return cfg, nil
}

// Get 读取顶层键
func (f *ConfigFile) Get(key string) (any, bool, error) {
	cfg, err := f.Load()
	if err != nil {
		return nil, false, err
	}
	v, ok := cfg[key]
	return v, ok, nil
}

// SetTopLevel 读-改-写单个顶层键
func (f *ConfigFile) SetTopLevel(key string, value any) error {
	cfg, err := f.Load()
	if err != nil {
		return err
	}
	cfg[key] = value
	return f.save(cfg)
}

// EnsureGatewayDefaults 补全本地网关配置：mode=local、bind=loopback、port。
// 已有的值保持不变，返回是否写入了文件
func (f *ConfigFile) EnsureGatewayDefaults(port int) (bool, error) {
	cfg, err := f.Load()
	if err != nil {
		return false, err
	}
	gw, _ := cfg["gateway"].(map[string]any)
	if gw == nil {
		gw = map[string]any{}
	}
	changed := false
	setDefault := func(k string, v any) {
		if cur, ok := gw[k]; !ok || cur == nil || cur == "" {
			gw[k] = v
			changed = true
		}
	}
	setDefault("mode", "local")
	setDefault("bind", "loopback")
	setDefault("port", port)
	if !changed {
		return false, nil
	}
	cfg["gateway"] = gw
	if err := f.save(cfg); err != nil {
		return false, err
	}
	logger.Config.Info().Str("path", f.path).Int("port", port).Msg("已写入网关默认配置")
	return true, nil
}

// GatewayPort 配置中的网关端口，未配置返回 0
func (f *ConfigFile) GatewayPort() int {
	cfg, err := f.Load()
	if err != nil {
		return 0
	}
	gw, _ := cfg["gateway"].(map[string]any)
	switch v := gw["port"].(type) {
	case float64:
		return int(v)
	case int:
		return v
	case string:
		p, _ := strconv.Atoi(strings.TrimSpace(v))
		return p
	}
	return 0
}

// GatewayBind 配置中的 bind，未配置返回 ""
func (f *ConfigFile) GatewayBind() string {
	cfg, err := f.Load()
	if err != nil {
		return ""
	}
	gw, _ := cfg["gateway"].(map[string]any)
	if v, ok := gw["bind"].(string); ok {
		return strings.TrimSpace(v)
	}
	return ""
}

// save 先写临时文件再 rename，避免写到一半的配置被读取
func (f *ConfigFile) save(cfg map[string]any) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("序列化配置失败: %w", err)
	}
	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("创建配置目录失败: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".openclaw-*.json.tmp")
	if err != nil {
		return fmt.Errorf("创建临时文件失败: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(append(data, '\n')); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("写入配置失败: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("写入配置失败: %w", err)
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		logger.Config.Warn().Err(err).Msg("设置配置文件权限失败")
	}
	if err := os.Rename(tmpName, f.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("替换配置文件失败: %w", err)
	}
	return nil
}
