package observability

import (
	"context"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/pitabwire/callcenter/internal/config"
	"github.com/pitabwire/callcenter/model"
)

type loggerKey struct{}

// redacted replaces sensitive values in debug output.
const redacted = "[REDACTED]"

// NewLogger builds the process logger. Every entry carries the service name
// and build version. LogFormat "console" switches to the human-readable
// encoder for local runs.
//
// Levels:
//   - error: backend outages, recovered panics, 5xx responses
//   - warn:  rejected submissions, malformed backend answers, cache failures
//   - info:  screen mount and unmount, submissions, definition reloads
//   - debug: debounce fires, lookup cache traffic, redacted form payloads
func NewLogger(cfg config.ObservabilityConfig) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zapcore.InfoLevel
	}

	enc := zap.NewProductionEncoderConfig()
	enc.TimeKey = "timestamp"
	enc.EncodeTime = zapcore.ISO8601TimeEncoder
	enc.EncodeDuration = zapcore.MillisDurationEncoder

	encoding := "json"
	if cfg.LogFormat == "console" {
		encoding = "console"
		enc.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	return zap.Config{
		Level:            zap.NewAtomicLevelAt(level),
		Encoding:         encoding,
		EncoderConfig:    enc,
		OutputPaths:      []string{"stdout"},
		ErrorOutputPaths: []string{"stderr"},
		InitialFields: map[string]any{
			"service": "callcenter",
			"version": Version,
		},
	}.Build()
}

// WithLogger stores a logger in the context.
func WithLogger(ctx context.Context, logger *zap.Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, logger)
}

// LoggerFrom returns the logger stored in ctx, or fallback.
func LoggerFrom(ctx context.Context, fallback *zap.Logger) *zap.Logger {
	if l, ok := ctx.Value(loggerKey{}).(*zap.Logger); ok && l != nil {
		return l
	}
	return fallback
}

// RequestLogger returns the context logger tagged with the operator behind
// the request. Without a RequestContext it is returned as is.
func RequestLogger(ctx context.Context, fallback *zap.Logger) *zap.Logger {
	logger := LoggerFrom(ctx, fallback)
	rctx := model.RequestContextFrom(ctx)
	if rctx == nil {
		return logger
	}
	return logger.With(operatorFields(rctx)...)
}

func operatorFields(rctx *model.RequestContext) []zap.Field {
	fields := []zap.Field{
		zap.String("subject_id", rctx.SubjectID),
		zap.String("correlation_id", rctx.CorrelationID),
	}
	if rctx.Username != "" {
		fields = append(fields, zap.String("operator", rctx.Username))
	}
	if rctx.TraceID != "" {
		fields = append(fields, zap.String("trace_id", rctx.TraceID))
	}
	return fields
}

// ScreenLogger tags logger with a screen session.
func ScreenLogger(logger *zap.Logger, kind, id string) *zap.Logger {
	return logger.With(zap.String("screen", kind), zap.String("screen_id", id))
}

// sensitive reports whether a form or body field must not reach the logs.
// Password confirmations and every kind of token or cookie are covered.
func sensitive(name string) bool {
	name = strings.ToLower(name)
	switch {
	case strings.HasPrefix(name, "password"),
		strings.HasSuffix(name, "token"),
		strings.HasSuffix(name, "secret"),
		name == "cookie", name == "authorization":
		return true
	}
	return false
}

// RedactBody returns a copy of body with sensitive values replaced, recursing
// into nested objects. extra names further fields to hide.
func RedactBody(body map[string]any, extra []string) map[string]any {
	if body == nil {
		return nil
	}
	out := make(map[string]any, len(body))
	for k, v := range body {
		switch {
		case sensitive(k) || containsFold(extra, k):
			out[k] = redacted
		default:
			if nested, ok := v.(map[string]any); ok {
				v = RedactBody(nested, extra)
			}
			out[k] = v
		}
	}
	return out
}

// RedactForm is RedactBody for a form snapshot.
func RedactForm(form model.FormSnapshot) map[string]any {
	out := make(map[string]any, len(form))
	for k, v := range form {
		if sensitive(k) {
			out[k] = redacted
			continue
		}
		out[k] = v
	}
	return out
}

func containsFold(list []string, s string) bool {
	for _, item := range list {
		if strings.EqualFold(item, s) {
			return true
		}
	}
	return false
}
