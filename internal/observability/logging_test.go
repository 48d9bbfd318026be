package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/pitabwire/callcenter/internal/config"
	"github.com/pitabwire/callcenter/model"
)

// newTestLogger creates a logger that writes JSON to a buffer for assertion.
func newTestLogger(buf *bytes.Buffer) *zap.Logger {
	enc := zapcore.NewJSONEncoder(zapcore.EncoderConfig{
		TimeKey:        "timestamp",
		LevelKey:       "level",
		MessageKey:     "msg",
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.MillisDurationEncoder,
	})
	core := zapcore.NewCore(enc, zapcore.AddSync(buf), zapcore.DebugLevel)
	return zap.New(core)
}

func TestNewLogger_levels(t *testing.T) {
	cases := []struct {
		level     string
		wantDebug bool
	}{
		{"info", false},
		{"debug", true},
		{"bogus", false},
	}
	for _, tc := range cases {
		logger, err := NewLogger(config.ObservabilityConfig{LogLevel: tc.level, LogFormat: "json"})
		if err != nil {
			t.Fatalf("NewLogger(%q) error = %v", tc.level, err)
		}
		if !logger.Core().Enabled(zapcore.InfoLevel) {
			t.Errorf("level %q: info should be enabled", tc.level)
		}
		if got := logger.Core().Enabled(zapcore.DebugLevel); got != tc.wantDebug {
			t.Errorf("level %q: debug enabled = %v, want %v", tc.level, got, tc.wantDebug)
		}
		_ = logger.Sync()
	}
}

func TestLoggerFrom_fallback(t *testing.T) {
	fallback := zap.NewNop()
	if got := LoggerFrom(context.Background(), fallback); got != fallback {
		t.Error("LoggerFrom without a stored logger should return the fallback")
	}

	stored := zap.NewExample()
	ctx := WithLogger(context.Background(), stored)
	if got := LoggerFrom(ctx, fallback); got != stored {
		t.Error("LoggerFrom should return the stored logger")
	}
}

func TestRequestLogger_addsRequestFields(t *testing.T) {
	var buf bytes.Buffer
	logger := newTestLogger(&buf)

	ctx := model.WithRequestContext(context.Background(), &model.RequestContext{
		SubjectID:     "operator-7",
		Username:      "joana",
		CorrelationID: "corr-1",
		TraceID:       "trace-1",
	})
	RequestLogger(ctx, logger).Info("screen mounted")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("decode log entry: %v", err)
	}
	if entry["subject_id"] != "operator-7" {
		t.Errorf("subject_id = %v, want operator-7", entry["subject_id"])
	}
	if entry["correlation_id"] != "corr-1" {
		t.Errorf("correlation_id = %v, want corr-1", entry["correlation_id"])
	}
	if entry["operator"] != "joana" {
		t.Errorf("operator = %v, want joana", entry["operator"])
	}
	if entry["trace_id"] != "trace-1" {
		t.Errorf("trace_id = %v, want trace-1", entry["trace_id"])
	}
}

func TestRequestLogger_withoutRequestContext(t *testing.T) {
	var buf bytes.Buffer
	logger := newTestLogger(&buf)

	RequestLogger(context.Background(), logger).Info("startup")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("decode log entry: %v", err)
	}
	if _, ok := entry["subject_id"]; ok {
		t.Error("subject_id should be absent without a request context")
	}
}

func TestRedactBody(t *testing.T) {
	body := map[string]any{
		"username":  "ana_lima",
		"password1": "Segura#2024",
		"password2": "Segura#2024",
		"perfil": map[string]any{
			"token": "abc",
			"email": "ana@example.com",
		},
	}

	got := RedactBody(body, []string{"email"})

	if got["username"] != "ana_lima" {
		t.Errorf("username = %v, want unchanged", got["username"])
	}
	if got["password1"] != "[REDACTED]" || got["password2"] != "[REDACTED]" {
		t.Errorf("passwords not redacted: %v", got)
	}
	nested := got["perfil"].(map[string]any)
	if nested["token"] != "[REDACTED]" || nested["email"] != "[REDACTED]" {
		t.Errorf("nested fields not redacted: %v", nested)
	}
	if body["password1"] != "Segura#2024" {
		t.Error("RedactBody must not mutate its input")
	}
	if RedactBody(nil, nil) != nil {
		t.Error("RedactBody(nil) should return nil")
	}
}

func TestRedactForm(t *testing.T) {
	got := RedactForm(model.FormSnapshot{"username": "ana", "password1": "x"})
	if got["password1"] != "[REDACTED]" || got["username"] != "ana" {
		t.Errorf("RedactForm = %v", got)
	}
}

func TestNewLogger_consoleFormat(t *testing.T) {
	logger, err := NewLogger(config.ObservabilityConfig{LogLevel: "warn", LogFormat: "console"})
	if err != nil {
		t.Fatalf("NewLogger error = %v", err)
	}
	if logger.Core().Enabled(zapcore.InfoLevel) {
		t.Error("warn level should disable info")
	}
	_ = logger.Sync()
}

func TestScreenLogger(t *testing.T) {
	var buf bytes.Buffer
	ScreenLogger(newTestLogger(&buf), "call_registration", "s-1").Info("screen closed")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("decode log entry: %v", err)
	}
	if entry["screen"] != "call_registration" || entry["screen_id"] != "s-1" {
		t.Errorf("entry = %v", entry)
	}
}

func TestSensitive(t *testing.T) {
	cases := map[string]bool{
		"password1":     true,
		"Password2":     true,
		"csrf_token":    true,
		"client_secret": true,
		"Cookie":        true,
		"authorization": true,
		"username":      false,
		"telefone":      false,
		"tokenizer":     false,
	}
	for name, want := range cases {
		if got := sensitive(name); got != want {
			t.Errorf("sensitive(%q) = %v, want %v", name, got, want)
		}
	}
}
