package logger

import (
	"io"
	"os"
	"path/filepath"

	"openclawsetup/internal/appconfig"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

var Log = zerolog.Nop()

// Module sub-loggers
var (
	Platform   = zerolog.Nop()
	Prereq     = zerolog.Nop()
	Installer  = zerolog.Nop()
	Classifier = zerolog.Nop()
	Gateway    = zerolog.Nop()
	Setup      = zerolog.Nop()
	Config     = zerolog.Nop()
	Journal    = zerolog.Nop()
	Notify     = zerolog.Nop()
)

// Init 初始化日志。debug 模式输出到终端，否则写入滚动日志文件
func Init(cfg appconfig.LogConfig) io.Closer {
	level := parseLevel(cfg.Level)
	zerolog.SetGlobalLevel(level)

	var writer io.Writer
	var closer io.Closer = nopCloser{}

	if cfg.Mode == appconfig.ModeDebug {
		writer = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"}
	} else {
		if err := os.MkdirAll(filepath.Dir(cfg.FilePath), 0o755); err != nil {
			writer = os.Stderr
		} else {
			lj := &lumberjack.Logger{
				Filename:   cfg.FilePath,
				MaxSize:    cfg.MaxSizeMB,
				MaxBackups: cfg.MaxBackups,
				MaxAge:     cfg.MaxAgeDays,
				Compress:   cfg.Compress,
			}
			writer = lj
			closer = lj
		}
	}

	set(zerolog.New(writer).With().Timestamp().Caller().Logger())
	return closer
}

// SetOutput 直接指定输出（测试用）
func SetOutput(w io.Writer) {
	set(zerolog.New(w).With().Timestamp().Logger())
}

func set(root zerolog.Logger) {
	Log = root
	Platform = Log.With().Str("module", "platform").Logger()
	Prereq = Log.With().Str("module", "prereq").Logger()
	Installer = Log.With().Str("module", "installer").Logger()
	Classifier = Log.With().Str("module", "classifier").Logger()
	Gateway = Log.With().Str("module", "gateway").Logger()
	Setup = Log.With().Str("module", "setup").Logger()
	Config = Log.With().Str("module", "config").Logger()
	Journal = Log.With().Str("module", "journal").Logger()
	Notify = Log.With().Str("module", "notify").Logger()
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

func parseLevel(s string) zerolog.Level {
	switch s {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "fatal":
		return zerolog.FatalLevel
	default:
		return zerolog.InfoLevel
	}
}
