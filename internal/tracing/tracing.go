// Package tracing 为安装与网关操作提供 OpenTelemetry span。
// 未启用时使用全局 no-op provider。
package tracing

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"openclawsetup/internal/appconfig"
	"openclawsetup/internal/version"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

const TracerName = "openclawsetup"

var (
	AttrOpID     = attribute.Key("ocs.op.id")
	AttrAction   = attribute.Key("ocs.action")
	AttrPlatform = attribute.Key("ocs.platform")
	AttrCategory = attribute.Key("ocs.error.category")
	AttrStrategy = attribute.Key("ocs.install.strategy")
	AttrPort     = attribute.Key("ocs.gateway.port")
)

// Provider 持有 tracer provider 和导出文件
type Provider struct {
	tp   *sdktrace.TracerProvider
	file *os.File
}

// Init 按配置把 span 以 JSON 行写入文件，并设置为全局 provider。
// 未启用时返回的 Provider 的 Shutdown 什么也不做
func Init(cfg appconfig.TracingConfig) (*Provider, error) {
	if !cfg.Enabled || cfg.FilePath == "" {
		return &Provider{}, nil
	}
	if err := os.MkdirAll(filepath.Dir(cfg.FilePath), 0o755); err != nil {
		return nil, fmt.Errorf("创建 trace 目录: %w", err)
	}
	f, err := os.OpenFile(cfg.FilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("打开 trace 文件: %w", err)
	}
	exporter, err := stdouttrace.New(stdouttrace.WithWriter(f))
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("创建 trace 导出器: %w", err)
	}
	res := resource.NewSchemaless(
		attribute.String("service.name", TracerName),
		attribute.String("service.version", version.Version),
	)
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	return &Provider{tp: tp, file: f}, nil
}

// Shutdown 刷新未导出的 span 并关闭文件
func (p *Provider) Shutdown(ctx context.Context) error {
	if p == nil || p.tp == nil {
		return nil
	}
	err := p.tp.Shutdown(ctx)
	if cerr := p.file.Close(); err == nil {
		err = cerr
	}
	return err
}

// Tracer 返回全局 tracer，未初始化时为 no-op
func Tracer() trace.Tracer {
	return otel.Tracer(TracerName)
}

// Start 开始一个内部 span
func Start(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return Tracer().Start(ctx, name,
		trace.WithAttributes(attrs...),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
}

// End 记录错误（如果有）并结束 span
func End(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}
