package screen

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pitabwire/callcenter/internal/config"
	"github.com/pitabwire/callcenter/internal/notify"
	"github.com/pitabwire/callcenter/internal/observability"
	"github.com/pitabwire/callcenter/model"
)

// Factory builds the screen for a freshly mounted session. It runs on the
// session loop.
type Factory func(env *Env, props Props) (Screen, error)

// DefaultFactories maps every screen definition ID to its implementation.
func DefaultFactories() map[string]Factory {
	return map[string]Factory{
		"call_registration":     newCallRegistration,
		"call_history":          newCallHistory,
		"unit_directory":        newUnitDirectory,
		"unit_form":             newUnitForm,
		"user_creation":         newUserCreation,
		"notification_settings": newNotificationSettings,
		"reports":               newReports,
	}
}

// Definitions resolves screen definitions by ID.
type Definitions interface {
	Get(id string) (model.ScreenDefinition, bool)
}

type session struct {
	id       string
	def      model.ScreenDefinition
	loop     *Loop
	screen   Screen
	env      *Env
	lastSeen atomic.Int64
}

func (s *session) touch(now time.Time) { s.lastSeen.Store(now.UnixNano()) }

func (s *session) idleSince() time.Time { return time.Unix(0, s.lastSeen.Load()) }

// Manager owns every mounted screen session.
type Manager struct {
	defs      Definitions
	deps      Deps
	cfg       config.ScreensConfig
	factories map[string]Factory
	settle    bool

	mu       sync.Mutex
	sessions map[string]*session
}

// Option configures a Manager.
type Option func(*Manager)

// WithFactories replaces the screen implementations.
func WithFactories(f map[string]Factory) Option {
	return func(m *Manager) { m.factories = f }
}

// WithSettle makes every rendered view wait for the lookups and submissions
// started by the event that produced it.
func WithSettle() Option {
	return func(m *Manager) { m.settle = true }
}

// NewManager creates a Manager that mounts screens declared in defs.
func NewManager(defs Definitions, deps Deps, cfg config.ScreensConfig, opts ...Option) *Manager {
	m := &Manager{
		defs:      defs,
		deps:      deps.withDefaults(),
		cfg:       cfg,
		factories: DefaultFactories(),
		sessions:  make(map[string]*session),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Mount starts a session for the screen kind and returns its first view.
func (m *Manager) Mount(ctx context.Context, kind string, props Props) (View, error) {
	def, ok := m.defs.Get(kind)
	factory := m.factories[kind]
	if !ok || factory == nil {
		return View{}, model.NewNotFoundError(fmt.Sprintf("screen kind %q not found", kind))
	}
	if m.Len() >= m.cfg.MaxSessions {
		return View{}, model.NewScreenLimitError(m.cfg.MaxSessions)
	}

	id := uuid.NewString()
	ctx, span := observability.StartScreenSpan(ctx, kind, id, "mount")
	defer span.End()
	logger := observability.ScreenLogger(m.deps.Logger, kind, id)
	loop := NewLoop(0, logger)
	env := newEnv(m.deps, def, loop, notify.NewOutbox(m.cfg.OutboxSize), logger)
	s := &session{id: id, def: def, loop: loop, env: env}
	s.touch(m.deps.Now())

	rctx := model.RequestContextFrom(ctx)
	var ferr error
	if err := loop.Do(ctx, func() {
		env.rctx = rctx
		s.screen, ferr = factory(env, props)
	}); err != nil {
		loop.Close()
		return View{}, err
	}
	if ferr != nil {
		loop.Close()
		return View{}, fmt.Errorf("mount %s: %w", kind, ferr)
	}

	m.mu.Lock()
	m.sessions[id] = s
	m.mu.Unlock()
	m.deps.Metrics.RecordScreenMounted(kind)
	logger.Debug("screen mounted")

	return m.render(ctx, s)
}

// Dispatch applies ev to the session and returns the resulting view.
func (m *Manager) Dispatch(ctx context.Context, id string, ev Event) (View, error) {
	s, err := m.get(id)
	if err != nil {
		return View{}, err
	}
	ctx, span := observability.StartScreenSpan(ctx, s.def.ID, id, ev.Type)
	defer span.End()
	rctx := model.RequestContextFrom(ctx)
	var herr error
	if err := s.loop.Do(ctx, func() {
		if rctx != nil {
			s.env.rctx = rctx
		}
		herr = s.screen.Handle(ctx, ev)
		s.env.version++
	}); err != nil {
		return View{}, err
	}
	m.deps.Metrics.RecordScreenEvent(s.def.ID, ev.Type)
	if herr != nil {
		return View{}, herr
	}
	return m.render(ctx, s)
}

// View renders the current state of the session without changing it.
func (m *Manager) View(ctx context.Context, id string) (View, error) {
	s, err := m.get(id)
	if err != nil {
		return View{}, err
	}
	return m.render(ctx, s)
}

// Unmount closes the session.
func (m *Manager) Unmount(id string) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()
	if !ok {
		return model.NewScreenNotFoundError(id)
	}
	m.close(s, false)
	return nil
}

// Reap closes sessions idle for longer than the idle timeout and returns how
// many were closed.
func (m *Manager) Reap(now time.Time) int {
	cutoff := now.Add(-m.cfg.IdleTimeout)
	var idle []*session
	m.mu.Lock()
	for id, s := range m.sessions {
		if s.idleSince().Before(cutoff) {
			idle = append(idle, s)
			delete(m.sessions, id)
		}
	}
	m.mu.Unlock()

	for _, s := range idle {
		m.close(s, true)
	}
	return len(idle)
}

// Run reaps idle sessions until ctx is cancelled, then closes every session.
func (m *Manager) Run(ctx context.Context) error {
	interval := m.cfg.ReapInterval
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			m.CloseAll()
			return nil
		case <-ticker.C:
			if n := m.Reap(m.deps.Now()); n > 0 {
				m.deps.Logger.Info("idle screens reaped", zap.Int("count", n))
			}
		}
	}
}

// Len returns the number of open sessions.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// CloseAll closes every session.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	all := make([]*session, 0, len(m.sessions))
	for id, s := range m.sessions {
		all = append(all, s)
		delete(m.sessions, id)
	}
	m.mu.Unlock()
	for _, s := range all {
		m.close(s, false)
	}
}

func (m *Manager) get(id string) (*session, error) {
	m.mu.Lock()
	s, ok := m.sessions[id]
	m.mu.Unlock()
	if !ok {
		return nil, model.NewScreenNotFoundError(id)
	}
	s.touch(m.deps.Now())
	return s, nil
}

func (m *Manager) close(s *session, reaped bool) {
	s.loop.Close()
	m.deps.Metrics.RecordScreenClosed(s.def.ID, reaped)
	s.env.Logger.Debug("screen closed", zap.Bool("reaped", reaped))
}

func (m *Manager) render(ctx context.Context, s *session) (View, error) {
	if m.settle {
		if err := s.loop.Settle(ctx); err != nil {
			return View{}, err
		}
	}
	var v View
	err := s.loop.Do(ctx, func() {
		v = View{
			ID:            s.id,
			Screen:        s.def.ID,
			Title:         s.def.Title,
			Version:       s.env.version,
			Busy:          s.loop.Busy(),
			State:         s.screen.Snapshot(),
			Notifications: s.env.outbox.Drain(),
		}
	})
	if err != nil {
		return View{}, err
	}
	if v.Notifications == nil {
		v.Notifications = []notify.Notification{}
	}
	return v, nil
}
