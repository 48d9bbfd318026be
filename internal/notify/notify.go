// Package notify delivers user-facing notifications (toasts) raised by
// screens and records them in the service log.
package notify

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/pitabwire/callcenter/internal/observability"
	"github.com/pitabwire/callcenter/model"
)

// Level is the severity of a notification.
type Level string

// Notification levels, matching the toast styles of the client.
const (
	LevelInfo    Level = "info"
	LevelSuccess Level = "success"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

// Notification is one message shown to the operator.
type Notification struct {
	Level   Level     `json:"level"`
	Title   string    `json:"title,omitempty"`
	Message string    `json:"message"`
	Code    string    `json:"code,omitempty"`
	At      time.Time `json:"at"`
}

// Sink receives notifications. Implementations must not block for long and
// must be safe for concurrent use.
type Sink interface {
	Notify(ctx context.Context, n Notification)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, n Notification)

// Notify calls f(ctx, n).
func (f SinkFunc) Notify(ctx context.Context, n Notification) { f(ctx, n) }

// Multi fans a notification out to every sink, in order. Nil sinks are
// skipped.
func Multi(sinks ...Sink) Sink {
	return SinkFunc(func(ctx context.Context, n Notification) {
		for _, s := range sinks {
			if s != nil {
				s.Notify(ctx, n)
			}
		}
	})
}

// FromError turns a failed operation into an error notification. Envelope
// messages are shown as they are; anything else becomes the generic internal
// error message.
func FromError(title string, err error) Notification {
	env := model.AsEnvelope(err)
	level := LevelError
	if env.Code == model.ErrValidationError {
		level = LevelWarning
	}
	return Notification{Level: level, Title: title, Message: env.Message, Code: env.Code}
}

// LogSink writes notifications to a zap logger.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink creates a LogSink. A nil logger discards everything.
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger}
}

// Notify implements Sink.
func (s *LogSink) Notify(ctx context.Context, n Notification) {
	logger := observability.RequestLogger(ctx, s.logger)
	fields := []zap.Field{
		zap.String("level", string(n.Level)),
		zap.String("title", n.Title),
		zap.String("message", n.Message),
	}
	if n.Code != "" {
		fields = append(fields, zap.String("code", n.Code))
	}
	switch n.Level {
	case LevelError:
		logger.Warn("notification", fields...)
	default:
		logger.Debug("notification", fields...)
	}
}

// DefaultOutboxSize bounds an Outbox created with a non-positive size.
const DefaultOutboxSize = 20

// Outbox buffers the notifications of one screen session until the next
// snapshot drains them. When full, the oldest notification is dropped.
type Outbox struct {
	mu      sync.Mutex
	items   []Notification
	size    int
	dropped int
	now     func() time.Time
}

// NewOutbox creates an Outbox holding at most size notifications.
func NewOutbox(size int) *Outbox {
	if size <= 0 {
		size = DefaultOutboxSize
	}
	return &Outbox{size: size, now: time.Now}
}

// Notify implements Sink.
func (o *Outbox) Notify(_ context.Context, n Notification) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if n.At.IsZero() {
		n.At = o.now()
	}
	if len(o.items) == o.size {
		copy(o.items, o.items[1:])
		o.items = o.items[:len(o.items)-1]
		o.dropped++
	}
	o.items = append(o.items, n)
}

// Drain returns the buffered notifications, oldest first, and empties the
// outbox.
func (o *Outbox) Drain() []Notification {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := o.items
	o.items = nil
	return out
}

// Len returns the number of buffered notifications.
func (o *Outbox) Len() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.items)
}

// Dropped returns how many notifications were discarded because the outbox
// was full.
func (o *Outbox) Dropped() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.dropped
}
