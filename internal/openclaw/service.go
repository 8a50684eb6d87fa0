package openclaw

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
	"unicode"

	"openclawsetup/internal/constants"
	"openclawsetup/internal/logger"
	"openclawsetup/internal/platform"
)

// GatewayState 网关运行状态，每次查询实时得出，从不缓存
type GatewayState string

const (
	Running GatewayState = "running"
	Stopped GatewayState = "stopped"
)

// ServiceOptions 网关生命周期参数
type ServiceOptions struct {
	// Port 为 0 时读取配置文件，仍为空则使用默认端口
	Port int
	// Grace 启动后等待的固定时间，不等待就绪
	Grace time.Duration
	// StopWait 优雅停止后复查前的等待
	StopWait time.Duration
	// DownAttempts 强制停止后检查端口释放的次数
	DownAttempts int
}

// Service 网关生命周期管理
type Service struct {
	cli    *CLI
	config *ConfigFile
	opts   ServiceOptions

	portOpen func(port int) bool
	sleep    func(ctx context.Context, d time.Duration) error
}

func NewService(cli *CLI, config *ConfigFile, opts ServiceOptions) *Service {
	if opts.Grace <= 0 {
		opts.Grace = 3 * time.Second
	}
	if opts.StopWait <= 0 {
		opts.StopWait = 1500 * time.Millisecond
	}
	if opts.DownAttempts <= 0 {
		opts.DownAttempts = 5
	}
	return &Service{
		cli:      cli,
		config:   config,
		opts:     opts,
		portOpen: portListening,
		sleep:    sleepCtx,
	}
}

// Port 实际使用的网关端口
func (s *Service) Port() int {
	if s.opts.Port > 0 {
		return s.opts.Port
	}
	if s.config != nil {
		if p := s.config.GatewayPort(); p > 0 {
			return p
		}
	}
	if p, err := strconv.Atoi(strings.TrimSpace(os.Getenv("OPENCLAW_GATEWAY_PORT"))); err == nil && p > 0 {
		return p
	}
	return constants.DefaultGatewayPort
}

func (s *Service) bind() string {
	if s.config != nil {
		if b := s.config.GatewayBind(); b != "" {
			return b
		}
	}
	return "loopback"
}

// Status 通过 gateway status 子命令判断状态。调用失败（未安装、非零退出）一律视为 Stopped
func (s *Service) Status(ctx context.Context) GatewayState {
	out, err := s.cli.Run(ctx, "gateway", "status")
	if err != nil {
		logger.Gateway.Debug().Err(err).Msg("gateway status 调用失败，视为已停止")
		return Stopped
	}
	return ParseStatus(out)
}

// ParseStatus 所有对 gateway status 输出文本的匹配都集中在这里。
// 按行、按单词判断：任一行给出 running/online 即为运行中；
// 同一行里的否定（not running、stopped、dead 等）只作用于该行。
// 服务注册信息（not loaded、disabled）不代表网关状态，前台模式下常与 running 同时出现
func ParseStatus(out string) GatewayState {
	for _, line := range strings.Split(strings.ToLower(out), "\n") {
		if lineRunning(line) {
			return Running
		}
	}
	return Stopped
}

func lineRunning(line string) bool {
	words := strings.FieldsFunc(line, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	running := false
	for i, w := range words {
		switch w {
		case "stopped", "offline", "inactive", "dead":
			return false
		case "running", "online":
			if i > 0 && (words[i-1] == "not" || words[i-1] == "t") {
				return false
			}
			running = true
		}
	}
	return running
}

// Listening 网关端口上是否有监听
func (s *Service) Listening() bool {
	return s.portOpen(s.Port())
}

// LogPath 后台网关输出写入的日志文件
func (s *Service) LogPath() string {
	return filepath.Join(ResolveLogDir(), "gateway.log")
}

// Start 以后台进程启动网关，只等待固定的宽限时间
func (s *Service) Start(ctx context.Context) error {
	cmd := s.cli.Resolve(ctx)
	if cmd == "" {
		return ErrNotInstalled
	}
	port := s.Port()
	logPath := s.LogPath()
	if err := os.MkdirAll(filepath.Dir(logPath), 0o700); err != nil {
		logger.Gateway.Warn().Err(err).Msg("创建网关日志目录失败")
		logPath = ""
	}

	pid, err := s.cli.Platform().StartDetached(platform.Command{
		Name:    cmd,
		Args:    []string{"gateway", "run", "--bind", s.bind(), "--port", strconv.Itoa(port), "--force"},
		LogPath: logPath,
	})
	if err != nil {
		return fmt.Errorf("启动网关进程失败: %w", err)
	}
	logger.Gateway.Info().Int("pid", pid).Int("port", port).Str("log", logPath).Msg("网关进程已启动")

	_ = s.sleep(ctx, s.opts.Grace)
	return nil
}

// Stop 先执行 gateway stop；端口仍被占用时才按平台强制终止。
// 强制终止后端口仍在监听返回错误，否则后续 Start 无法获得端口
func (s *Service) Stop(ctx context.Context) error {
	port := s.Port()
	if _, err := s.cli.Run(ctx, "gateway", "stop"); err != nil {
		logger.Gateway.Warn().Err(err).Msg("gateway stop 失败，检查是否需要强制停止")
	}
	_ = s.sleep(ctx, s.opts.StopWait)

	if !s.stillUp(ctx, port) {
		logger.Gateway.Info().Int("port", port).Msg("网关已停止")
		return nil
	}

	logger.Gateway.Warn().Int("port", port).Msg("网关仍在运行，执行强制停止")
	if err := s.cli.Platform().ForceStopGateway(ctx, port); err != nil {
		logger.Gateway.Warn().Err(err).Msg("强制停止网关出错")
	}
	if s.waitDown(ctx, port) {
		logger.Gateway.Info().Int("port", port).Msg("网关已被强制停止")
		return nil
	}
	logger.Gateway.Error().Int("port", port).Msg("强制停止后端口仍被占用")
	return fmt.Errorf("停止网关失败：端口 %d 仍在监听", port)
}

func (s *Service) stillUp(ctx context.Context, port int) bool {
	if s.portOpen(port) {
		return true
	}
	return s.Status(ctx) == Running
}

func (s *Service) waitDown(ctx context.Context, port int) bool {
	for i := 0; i < s.opts.DownAttempts; i++ {
		if !s.portOpen(port) {
			return true
		}
		if err := s.sleep(ctx, 700*time.Millisecond); err != nil {
			break
		}
	}
	return !s.portOpen(port)
}

// Restart 停止后重新启动；常规启动失败时改用 gateway start（已注册的系统服务）
func (s *Service) Restart(ctx context.Context) error {
	if err := s.Stop(ctx); err != nil {
		return fmt.Errorf("重启网关: %w", err)
	}
	err := s.Start(ctx)
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrNotInstalled) {
		return err
	}
	logger.Gateway.Warn().Err(err).Msg("后台启动失败，尝试 gateway start")
	if _, serr := s.cli.Run(ctx, "gateway", "start"); serr != nil {
		return fmt.Errorf("重启网关失败: %v; gateway start: %w", err, serr)
	}
	return nil
}

// InstallService 通过 gateway install 注册为系统服务（计划任务 / launchd / systemd）
func (s *Service) InstallService(ctx context.Context, elevate bool) (string, error) {
	args := []string{"gateway", "install", "--port", strconv.Itoa(s.Port())}
	if !elevate {
		out, err := s.cli.Run(ctx, args...)
		if err != nil {
			return out, fmt.Errorf("注册网关服务: %w", err)
		}
		return out, nil
	}
	cmd := s.cli.Resolve(ctx)
	if cmd == "" {
		return "", ErrNotInstalled
	}
	out, err := s.cli.Platform().RunElevated(ctx, cmd, args...)
	if err != nil {
		return out, fmt.Errorf("注册网关服务: %w", err)
	}
	logger.Gateway.Info().Msg("网关服务已注册")
	return out, nil
}

func portListening(port int) bool {
	conn, err := net.DialTimeout("tcp", net.JoinHostPort("127.0.0.1", strconv.Itoa(port)), time.Second)
	if err != nil {
		return false
	}
	conn.Close()
	return true
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
