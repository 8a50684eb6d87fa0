package notify

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"openclawsetup/internal/appconfig"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromConfig_DisabledHasNoChannels(t *testing.T) {
	m := FromConfig(appconfig.NotifyConfig{WebhookURL: "http://127.0.0.1:1"})
	assert.False(t, m.HasChannels())
	m.Send(context.Background(), "ignored")
}

func TestReload_ChannelNames(t *testing.T) {
	m := FromConfig(appconfig.NotifyConfig{
		Enabled:        true,
		WebhookURL:     "http://127.0.0.1:1/hook",
		LarkWebhook:    "http://127.0.0.1:1/lark",
		TelegramChatID: "123",
	})
	assert.ElementsMatch(t, []string{"lark", "webhook"}, m.ChannelNames())
}

func TestFailure_PostsToWebhook(t *testing.T) {
	var mu sync.Mutex
	var got map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		_ = json.Unmarshal(body, &got)
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	m := FromConfig(appconfig.NotifyConfig{Enabled: true, WebhookURL: srv.URL})
	require.True(t, m.HasChannels())
	m.Failure(context.Background(), "tool.install", "安装失败", "npm 缓存已损坏")

	mu.Lock()
	defer mu.Unlock()
	require.NotNil(t, got)
	assert.Equal(t, Subject, got["subject"])
	assert.Contains(t, got["message"], "tool.install")
	assert.Contains(t, got["message"], "npm 缓存已损坏")
}
