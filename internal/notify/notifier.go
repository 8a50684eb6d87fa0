package notify

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"openclawsetup/internal/appconfig"
	"openclawsetup/internal/logger"

	nfy "github.com/nikoksr/notify"
	nfydd "github.com/nikoksr/notify/service/dingding"
	nfydc "github.com/nikoksr/notify/service/discord"
	nfyhttp "github.com/nikoksr/notify/service/http"
	nfylark "github.com/nikoksr/notify/service/lark"
	nfyslack "github.com/nikoksr/notify/service/slack"
	nfytg "github.com/nikoksr/notify/service/telegram"
)

// Subject 所有通知的标题
const Subject = "OpenClaw Setup"

// Manager wraps nikoksr/notify.Notify and manages channel lifecycle.
type Manager struct {
	mu           sync.RWMutex
	notifier     *nfy.Notify
	channelNames []string
}

// NewManager creates an empty notification manager.
func NewManager() *Manager {
	return &Manager{
		notifier: nfy.New(),
	}
}

// FromConfig 按配置创建并加载渠道；未启用时返回没有渠道的 Manager
func FromConfig(cfg appconfig.NotifyConfig) *Manager {
	m := NewManager()
	if cfg.Enabled {
		m.Reload(cfg)
	}
	return m
}

// Reload rebuilds the channels from the notify section of the installer config.
func (m *Manager) Reload(cfg appconfig.NotifyConfig) {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := nfy.New()
	var names []string

	if cfg.TelegramToken != "" && cfg.TelegramChatID != "" {
		tgSvc, err := nfytg.New(cfg.TelegramToken)
		if err == nil {
			if id, err := strconv.ParseInt(strings.TrimSpace(cfg.TelegramChatID), 10, 64); err == nil {
				tgSvc.AddReceivers(id)
				n.UseServices(tgSvc)
				names = append(names, "telegram")
			} else {
				logger.Notify.Warn().Str("chat_id", cfg.TelegramChatID).Msg("Telegram chat ID 格式无效")
			}
		} else {
			logger.Notify.Warn().Err(err).Msg("Telegram 服务初始化失败")
		}
	}

	if cfg.DingTalkToken != "" {
		n.UseServices(nfydd.New(&nfydd.Config{Token: cfg.DingTalkToken, Secret: cfg.DingTalkSecret}))
		names = append(names, "dingtalk")
	}

	if cfg.LarkWebhook != "" {
		n.UseServices(nfylark.NewWebhookService(cfg.LarkWebhook))
		names = append(names, "lark")
	}

	if cfg.DiscordToken != "" && cfg.DiscordChannel != "" {
		dcSvc := nfydc.New()
		if err := dcSvc.AuthenticateWithBotToken(cfg.DiscordToken); err == nil {
			dcSvc.AddReceivers(strings.TrimSpace(cfg.DiscordChannel))
			n.UseServices(dcSvc)
			names = append(names, "discord")
		} else {
			logger.Notify.Warn().Err(err).Msg("Discord 服务初始化失败")
		}
	}

	if cfg.SlackToken != "" && cfg.SlackChannel != "" {
		slackSvc := nfyslack.New(cfg.SlackToken)
		slackSvc.AddReceivers(strings.TrimSpace(cfg.SlackChannel))
		n.UseServices(slackSvc)
		names = append(names, "slack")
	}

	if cfg.WebhookURL != "" {
		httpSvc := nfyhttp.New()
		httpSvc.AddReceivers(&nfyhttp.Webhook{
			URL:         cfg.WebhookURL,
			Header:      http.Header{"Content-Type": []string{"application/json; charset=utf-8"}},
			ContentType: "application/json; charset=utf-8",
			Method:      http.MethodPost,
			BuildPayload: func(subject, message string) (payload any) {
				return map[string]string{"subject": subject, "message": message}
			},
		})
		n.UseServices(httpSvc)
		names = append(names, "webhook")
	}

	m.notifier = n
	m.channelNames = names

	logger.Notify.Debug().Int("channels", len(names)).Strs("names", names).Msg("通知渠道已加载")
}

// Send dispatches a message to all configured channels.
func (m *Manager) Send(ctx context.Context, text string) {
	m.mu.RLock()
	n := m.notifier
	hasChannels := len(m.channelNames) > 0
	m.mu.RUnlock()

	if n == nil || !hasChannels {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := n.Send(ctx, Subject, text); err != nil {
		logger.Notify.Warn().Err(err).Msg("通知发送失败")
	}
}

// Failure 格式化并发送一次操作失败通知
func (m *Manager) Failure(ctx context.Context, action, message, detail string) {
	text := fmt.Sprintf("\U0001f534 [%s] %s", action, message)
	if detail != "" && len(detail) < 200 {
		text += "\n" + detail
	}
	m.Send(ctx, text)
}

// HasChannels returns true if at least one channel is configured.
func (m *Manager) HasChannels() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.channelNames) > 0
}

// ChannelNames returns the names of all configured channels.
func (m *Manager) ChannelNames() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	result := make([]string, len(m.channelNames))
	copy(result, m.channelNames)
	return result
}
