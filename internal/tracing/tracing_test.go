package tracing

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"openclawsetup/internal/appconfig"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
)

func TestInit_DisabledIsNoop(t *testing.T) {
	p, err := Init(appconfig.TracingConfig{Enabled: false, FilePath: filepath.Join(t.TempDir(), "t.jsonl")})
	require.NoError(t, err)
	_, span := Start(context.Background(), "noop")
	End(span, nil)
	assert.NoError(t, p.Shutdown(context.Background()))
}

func TestInit_WritesSpansToFile(t *testing.T) {
	prev := otel.GetTracerProvider()
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	path := filepath.Join(t.TempDir(), "logs", "traces.jsonl")
	p, err := Init(appconfig.TracingConfig{Enabled: true, FilePath: path})
	require.NoError(t, err)

	_, span := Start(context.Background(), "tool.install", AttrStrategy.String("npm-tarball"))
	End(span, errors.New("npm 缓存已损坏"))
	require.NoError(t, p.Shutdown(context.Background()))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "tool.install")
	assert.Contains(t, string(data), "npm-tarball")
}
