package logger

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/CodeMonkeyCybersecurity/siteprobe/internal/config"
	"go.opentelemetry.io/contrib/bridges/otelzap"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type Logger struct {
	*zap.SugaredLogger
	tracer     trace.Tracer
	baseLogger *zap.Logger
}

func New(cfg config.LoggerConfig) (*Logger, error) {
	var zapConfig zap.Config

	if cfg.Format == "console" {
		zapConfig = zap.NewDevelopmentConfig()
		zapConfig.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		zapConfig.EncoderConfig.TimeKey = "timestamp"
		zapConfig.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		zapConfig.DisableStacktrace = true
	} else {
		zapConfig = zap.NewProductionConfig()
		zapConfig.EncoderConfig.TimeKey = "timestamp"
		zapConfig.EncoderConfig.EncodeTime = zapcore.RFC3339TimeEncoder
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level: %w", err)
	}
	zapConfig.Level = zap.NewAtomicLevelAt(level)

	zapConfig.OutputPaths = []string{"stderr"}
	if len(cfg.OutputPaths) > 0 {
		zapConfig.OutputPaths = cfg.OutputPaths
	}

	zapConfig.InitialFields = map[string]interface{}{
		"service": "siteprobe",
	}

	baseLogger, err := zapConfig.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}

	// Tee into otelzap so log records carry trace correlation when telemetry is on
	otelCore := otelzap.NewCore("siteprobe",
		otelzap.WithAttributes(attribute.String("service", "siteprobe")),
	)
	core := zapcore.NewTee(baseLogger.Core(), otelCore)
	enhancedLogger := zap.New(core, zap.AddCaller(), zap.AddCallerSkip(1), zap.AddStacktrace(zapcore.ErrorLevel))

	return &Logger{
		SugaredLogger: enhancedLogger.Sugar(),
		tracer:        otel.Tracer("siteprobe/logger"),
		baseLogger:    enhancedLogger,
	}, nil
}

// NewNop returns a logger that discards everything.
func NewNop() *Logger {
	base := zap.NewNop()
	return &Logger{
		SugaredLogger: base.Sugar(),
		tracer:        otel.Tracer("siteprobe/nop"),
		baseLogger:    base,
	}
}

func (l *Logger) WithContext(ctx context.Context) *Logger {
	span := trace.SpanFromContext(ctx)
	if span.IsRecording() {
		spanCtx := span.SpanContext()
		return l.WithFields(
			"trace_id", spanCtx.TraceID().String(),
			"span_id", spanCtx.SpanID().String(),
		)
	}
	return l
}

func (l *Logger) WithFields(fields ...interface{}) *Logger {
	return &Logger{
		SugaredLogger: l.With(fields...),
		tracer:        l.tracer,
		baseLogger:    l.baseLogger,
	}
}

func (l *Logger) WithComponent(component string) *Logger {
	return l.WithFields("component", component)
}

func (l *Logger) WithTarget(target string) *Logger {
	return l.WithFields("target", target)
}

func (l *Logger) WithScanID(scanID string) *Logger {
	return l.WithFields("scan_id", scanID)
}

func (l *Logger) WithDetector(detector string) *Logger {
	return l.WithFields("detector", detector)
}

func (l *Logger) StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return l.tracer.Start(ctx, name, opts...)
}

// Error logging with span status

func (l *Logger) LogError(ctx context.Context, err error, operation string, fields ...interface{}) {
	if err == nil {
		return
	}

	allFields := []interface{}{
		"error", err.Error(),
		"operation", operation,
		"error_type", fmt.Sprintf("%T", err),
	}
	allFields = append(allFields, fields...)

	l.WithContext(ctx).Errorw("Operation failed", allFields...)

	if span := trace.SpanFromContext(ctx); span.IsRecording() {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}

// LogWarning records a recoverable failure: the scan continues.
func (l *Logger) LogWarning(ctx context.Context, err error, operation string, fields ...interface{}) {
	if err == nil {
		return
	}

	allFields := []interface{}{
		"error", err.Error(),
		"operation", operation,
	}
	allFields = append(allFields, fields...)

	l.WithContext(ctx).Warnw("Operation failed, continuing", allFields...)

	if span := trace.SpanFromContext(ctx); span.IsRecording() {
		span.AddEvent("recoverable_error", trace.WithAttributes(
			attribute.String("operation", operation),
			attribute.String("error", err.Error()),
		))
	}
}

func (l *Logger) LogPanic(ctx context.Context, recovered interface{}, operation string, fields ...interface{}) {
	allFields := []interface{}{
		"panic", fmt.Sprintf("%v", recovered),
		"operation", operation,
		"panic_type", fmt.Sprintf("%T", recovered),
	}
	allFields = append(allFields, fields...)

	l.WithContext(ctx).Errorw("Panic recovered", allFields...)

	if span := trace.SpanFromContext(ctx); span.IsRecording() {
		span.SetStatus(codes.Error, fmt.Sprintf("panic: %v", recovered))
	}
}

// LogVulnerability emits a structured record for a finding. Console output
// for humans is handled separately by the findings reporter.
func (l *Logger) LogVulnerability(ctx context.Context, kind, url, severity string, details map[string]string) {
	allFields := []interface{}{
		"vulnerability_detected", true,
		"type", kind,
		"url", url,
		"severity", severity,
	}

	keys := make([]string, 0, len(details))
	for k := range details {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		allFields = append(allFields, k, details[k])
	}

	switch severity {
	case "critical", "high":
		l.WithContext(ctx).Warnw("Vulnerability detected", allFields...)
	default:
		l.WithContext(ctx).Infow("Vulnerability detected", allFields...)
	}

	if span := trace.SpanFromContext(ctx); span.IsRecording() {
		span.AddEvent("vulnerability_detected", trace.WithAttributes(
			attribute.String("type", kind),
			attribute.String("url", url),
			attribute.String("severity", severity),
		))
	}
}

func (l *Logger) LogHTTPRequest(ctx context.Context, method, url string, statusCode int, duration time.Duration, fields ...interface{}) {
	allFields := []interface{}{
		"http_method", method,
		"http_url", url,
		"http_status", statusCode,
		"duration_ms", duration.Milliseconds(),
	}
	allFields = append(allFields, fields...)

	// Target-side errors are expected while probing; keep them at debug.
	l.WithContext(ctx).Debugw("HTTP request completed", allFields...)
}

func (l *Logger) StartOperation(ctx context.Context, operation string, fields ...interface{}) (context.Context, trace.Span) {
	ctx, span := l.StartSpan(ctx, operation)

	allFields := []interface{}{
		"operation", operation,
		"operation_start", true,
	}
	allFields = append(allFields, fields...)

	l.WithContext(ctx).Debugw("Operation started", allFields...)

	return ctx, span
}

func (l *Logger) FinishOperation(ctx context.Context, span trace.Span, operation string, start time.Time, err error, fields ...interface{}) {
	defer span.End()

	duration := time.Since(start)

	allFields := []interface{}{
		"operation", operation,
		"duration_ms", duration.Milliseconds(),
		"operation_end", true,
	}
	allFields = append(allFields, fields...)

	if err != nil {
		l.LogError(ctx, err, operation, allFields...)
		return
	}

	l.WithContext(ctx).Infow("Operation completed", allFields...)
	span.SetStatus(codes.Ok, "completed")
}
