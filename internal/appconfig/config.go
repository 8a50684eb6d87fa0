package appconfig

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"openclawsetup/internal/constants"
	"openclawsetup/internal/version"
)

const (
	ModeProduction = "production"
	ModeDebug      = "debug"
)

type LogConfig struct {
	Level      string `json:"level"`
	Mode       string `json:"mode"`
	FilePath   string `json:"file_path"`
	MaxSizeMB  int    `json:"max_size_mb"`
	MaxBackups int    `json:"max_backups"`
	MaxAgeDays int    `json:"max_age_days"`
	Compress   bool   `json:"compress"`
}

type DatabaseConfig struct {
	Driver      string `json:"driver"`
	SQLitePath  string `json:"sqlite_path"`
	PostgresDSN string `json:"postgres_dsn"`
}

type InstallConfig struct {
	Dir        string `json:"dir"`
	BundlePath string `json:"bundle_path"`
	Package    string `json:"package"`
	Version    string `json:"version"`
	TarballURL string `json:"tarball_url"`
	Registry   string `json:"registry"`

	NodeFloorMajor   int `json:"node_floor_major"`
	NodeFloorMinor   int `json:"node_floor_minor"`
	NodeCeilingMajor int `json:"node_ceiling_major"`

	// Windows 安装 Node.js 后的识别轮询
	RecognitionAttempts        int `json:"recognition_attempts"`
	RecognitionIntervalSeconds int `json:"recognition_interval_seconds"`

	TerminalTimeoutSeconds int `json:"terminal_timeout_seconds"`
	TerminalPollSeconds    int `json:"terminal_poll_seconds"`
	CommandTimeoutSeconds  int `json:"command_timeout_seconds"`
	VersionProbeSeconds    int `json:"version_probe_seconds"`
}

type GatewayConfig struct {
	Port                  int  `json:"port"`
	GraceSeconds          int  `json:"grace_seconds"`
	StopWaitMillis        int  `json:"stop_wait_millis"`
	ElevateServiceInstall bool `json:"elevate_service_install"`
}

type NotifyConfig struct {
	Enabled        bool   `json:"enabled"`
	WebhookURL     string `json:"webhook_url"`
	TelegramToken  string `json:"telegram_token"`
	TelegramChatID string `json:"telegram_chat_id"`
	SlackToken     string `json:"slack_token"`
	SlackChannel   string `json:"slack_channel"`
	DiscordToken   string `json:"discord_token"`
	DiscordChannel string `json:"discord_channel"`
	LarkWebhook    string `json:"lark_webhook"`
	DingTalkToken  string `json:"dingtalk_token"`
	DingTalkSecret string `json:"dingtalk_secret"`
}

type TracingConfig struct {
	Enabled  bool   `json:"enabled"`
	FilePath string `json:"file_path"`
}

type Config struct {
	Log      LogConfig      `json:"log"`
	Database DatabaseConfig `json:"database"`
	Install  InstallConfig  `json:"install"`
	Gateway  GatewayConfig  `json:"gateway"`
	Notify   NotifyConfig   `json:"notify"`
	Tracing  TracingConfig  `json:"tracing"`

	path string
}

// DataDir 返回安装器自身的数据目录（配置、日志、操作记录）
func DataDir() string {
	if dir := strings.TrimSpace(os.Getenv("OCS_DATA_DIR")); dir != "" {
		return dir
	}
	base, err := os.UserConfigDir()
	if err != nil {
		return filepath.Join(".", "openclawsetup-data")
	}
	return filepath.Join(base, "openclawsetup")
}

// DefaultInstallDir 返回 OpenClaw 的安装目录，位于系统标准的用户应用数据目录下，
// 从不放在安装器自身的程序目录里
func DefaultInstallDir() string {
	if dir := strings.TrimSpace(os.Getenv("OCS_INSTALL_DIR")); dir != "" {
		return dir
	}
	home, _ := os.UserHomeDir()
	switch runtime.GOOS {
	case "windows":
		if local := os.Getenv("LOCALAPPDATA"); local != "" {
			return filepath.Join(local, "OpenClawSetup", "openclaw")
		}
		return filepath.Join(home, "AppData", "Local", "OpenClawSetup", "openclaw")
	case "darwin":
		return filepath.Join(home, "Library", "Application Support", "OpenClawSetup", "openclaw")
	default:
		if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
			return filepath.Join(xdg, "openclawsetup", "openclaw")
		}
		return filepath.Join(home, ".local", "share", "openclawsetup", "openclaw")
	}
}

// DefaultBundlePath 返回与安装器可执行文件同目录的离线包路径
func DefaultBundlePath() string {
	exe, err := os.Executable()
	if err != nil {
		return ""
	}
	return filepath.Join(filepath.Dir(exe), "resources", "openclaw-bundle.tgz")
}

func Default() Config {
	dataDir := DataDir()
	return Config{
		Log: LogConfig{
			Level:      "info",
			Mode:       ModeProduction,
			FilePath:   filepath.Join(dataDir, "logs", "openclawsetup.log"),
			MaxSizeMB:  10,
			MaxBackups: 3,
			MaxAgeDays: 30,
			Compress:   true,
		},
		Database: DatabaseConfig{
			Driver:     "sqlite",
			SQLitePath: filepath.Join(dataDir, "journal.db"),
		},
		Install: InstallConfig{
			Dir:                        DefaultInstallDir(),
			BundlePath:                 DefaultBundlePath(),
			Package:                    constants.OpenClawPackage,
			Version:                    version.OpenClawPinned,
			Registry:                   "https://registry.npmjs.org",
			NodeFloorMajor:             version.NodeFloorMajor,
			NodeFloorMinor:             version.NodeFloorMinor,
			NodeCeilingMajor:           version.NodeCeilingMajor,
			RecognitionAttempts:        10,
			RecognitionIntervalSeconds: 3,
			TerminalTimeoutSeconds:     600,
			TerminalPollSeconds:        3,
			CommandTimeoutSeconds:      600,
			VersionProbeSeconds:        10,
		},
		Gateway: GatewayConfig{
			Port:                  constants.DefaultGatewayPort,
			GraceSeconds:          3,
			StopWaitMillis:        1500,
			ElevateServiceInstall: runtime.GOOS == "windows",
		},
		Tracing: TracingConfig{
			Enabled:  false,
			FilePath: filepath.Join(dataDir, "logs", "traces.jsonl"),
		},
	}
}

// ConfigPath 返回配置文件路径，OCS_CONFIG 优先
func ConfigPath() string {
	if custom := strings.TrimSpace(os.Getenv("OCS_CONFIG")); custom != "" {
		return custom
	}
	return filepath.Join(DataDir(), "config.json")
}

// Load 读取配置：默认值 → 配置文件 → 环境变量
func Load(path string) (Config, error) {
	if path == "" {
		path = ConfigPath()
	}
	cfg := Default()
	cfg.path = path

	data, err := os.ReadFile(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return cfg, err
	}
	if err == nil && len(strings.TrimSpace(string(data))) > 0 {
		if err := json.Unmarshal(data, &cfg); err != nil {
			d := Default()
			d.path = path
			return d, err
		}
	}

	applyEnvOverrides(&cfg)
	return cfg.Normalize(), nil
}

func Save(cfg Config) error {
	path := cfg.Path()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0o600)
}

// Path 返回该配置对应的文件路径
func (c Config) Path() string {
	if c.path != "" {
		return c.path
	}
	return ConfigPath()
}

func (c Config) IsDebug() bool {
	return strings.EqualFold(strings.TrimSpace(c.Log.Mode), ModeDebug)
}

// Normalize 修正非法或缺省的取值
func (c Config) Normalize() Config {
	d := Default()
	mode := strings.ToLower(strings.TrimSpace(c.Log.Mode))
	if mode != ModeDebug {
		mode = ModeProduction
	}
	c.Log.Mode = mode
	if strings.TrimSpace(c.Install.Dir) == "" {
		c.Install.Dir = d.Install.Dir
	}
	if strings.TrimSpace(c.Install.Package) == "" {
		c.Install.Package = d.Install.Package
	}
	if strings.TrimSpace(c.Install.Version) == "" {
		c.Install.Version = d.Install.Version
	}
	if c.Install.NodeFloorMajor <= 0 {
		c.Install.NodeFloorMajor = d.Install.NodeFloorMajor
		c.Install.NodeFloorMinor = d.Install.NodeFloorMinor
	}
	if c.Install.NodeCeilingMajor <= c.Install.NodeFloorMajor {
		c.Install.NodeCeilingMajor = d.Install.NodeCeilingMajor
	}
	if c.Install.RecognitionAttempts <= 0 {
		c.Install.RecognitionAttempts = d.Install.RecognitionAttempts
	}
	if c.Install.RecognitionIntervalSeconds <= 0 {
		c.Install.RecognitionIntervalSeconds = d.Install.RecognitionIntervalSeconds
	}
	if c.Install.TerminalTimeoutSeconds <= 0 {
		c.Install.TerminalTimeoutSeconds = d.Install.TerminalTimeoutSeconds
	}
	if c.Install.TerminalPollSeconds <= 0 {
		c.Install.TerminalPollSeconds = d.Install.TerminalPollSeconds
	}
	if c.Install.CommandTimeoutSeconds <= 0 {
		c.Install.CommandTimeoutSeconds = d.Install.CommandTimeoutSeconds
	}
	if c.Install.VersionProbeSeconds <= 0 {
		c.Install.VersionProbeSeconds = d.Install.VersionProbeSeconds
	}
	if c.Gateway.Port <= 0 || c.Gateway.Port > 65535 {
		c.Gateway.Port = d.Gateway.Port
	}
	if c.Gateway.GraceSeconds < 0 {
		c.Gateway.GraceSeconds = d.Gateway.GraceSeconds
	}
	if c.Gateway.StopWaitMillis <= 0 {
		c.Gateway.StopWaitMillis = d.Gateway.StopWaitMillis
	}
	return c
}

// TarballFor 返回固定版本的 registry tarball 地址
func (c InstallConfig) TarballFor() string {
	if u := strings.TrimSpace(c.TarballURL); u != "" {
		return u
	}
	registry := strings.TrimRight(strings.TrimSpace(c.Registry), "/")
	if registry == "" {
		registry = "https://registry.npmjs.org"
	}
	name := c.Package
	base := name
	if i := strings.LastIndex(name, "/"); i >= 0 {
		base = name[i+1:]
	}
	return registry + "/" + name + "/-/" + base + "-" + c.Version + ".tgz"
}

func (c InstallConfig) CommandTimeout() time.Duration {
	return time.Duration(c.CommandTimeoutSeconds) * time.Second
}

func (c InstallConfig) VersionProbeTimeout() time.Duration {
	return time.Duration(c.VersionProbeSeconds) * time.Second
}

func (c InstallConfig) RecognitionInterval() time.Duration {
	return time.Duration(c.RecognitionIntervalSeconds) * time.Second
}

func (c InstallConfig) TerminalTimeout() time.Duration {
	return time.Duration(c.TerminalTimeoutSeconds) * time.Second
}

func (c InstallConfig) TerminalPoll() time.Duration {
	return time.Duration(c.TerminalPollSeconds) * time.Second
}

func (c GatewayConfig) Grace() time.Duration {
	return time.Duration(c.GraceSeconds) * time.Second
}

func (c GatewayConfig) StopWait() time.Duration {
	return time.Duration(c.StopWaitMillis) * time.Millisecond
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("OCS_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("OCS_LOG_MODE"); v != "" {
		cfg.Log.Mode = v
	}
	if v := os.Getenv("OCS_LOG_FILE"); v != "" {
		cfg.Log.FilePath = v
	}
	if v := os.Getenv("OCS_DB_DRIVER"); v != "" {
		cfg.Database.Driver = v
	}
	if v := os.Getenv("OCS_DB_SQLITE_PATH"); v != "" {
		cfg.Database.SQLitePath = v
	}
	if v := os.Getenv("OCS_DB_DSN"); v != "" {
		cfg.Database.PostgresDSN = v
	}
	if v := os.Getenv("OCS_INSTALL_DIR"); v != "" {
		cfg.Install.Dir = v
	}
	if v := os.Getenv("OCS_BUNDLE_PATH"); v != "" {
		cfg.Install.BundlePath = v
	}
	if v := os.Getenv("OCS_OPENCLAW_VERSION"); v != "" {
		cfg.Install.Version = v
	}
	if v := os.Getenv("OCS_TARBALL_URL"); v != "" {
		cfg.Install.TarballURL = v
	}
	if v := os.Getenv("OCS_REGISTRY"); v != "" {
		cfg.Install.Registry = v
	}
	if v := os.Getenv("OCS_NODE_FLOOR"); v != "" {
		if major, minor, ok := parseMajorMinor(v); ok {
			cfg.Install.NodeFloorMajor = major
			cfg.Install.NodeFloorMinor = minor
		}
	}
	if v := os.Getenv("OCS_NODE_CEILING"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			cfg.Install.NodeCeilingMajor = p
		}
	}
	if v := os.Getenv("OCS_GATEWAY_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			cfg.Gateway.Port = p
		}
	}
	if v := os.Getenv("OCS_NOTIFY_WEBHOOK"); v != "" {
		cfg.Notify.WebhookURL = v
		cfg.Notify.Enabled = true
	}
	if v := os.Getenv("OCS_TRACING"); v != "" {
		cfg.Tracing.Enabled = strings.EqualFold(v, "true") || v == "1"
	}
}

// parseMajorMinor 解析 "22.12" 形式
func parseMajorMinor(s string) (int, int, bool) {
	parts := strings.SplitN(strings.TrimPrefix(strings.TrimSpace(s), "v"), ".", 3)
	major, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, 0, false
	}
	minor := 0
	if len(parts) > 1 {
		if minor, err = strconv.Atoi(parts[1]); err != nil {
			return 0, 0, false
		}
	}
	return major, minor, true
}
