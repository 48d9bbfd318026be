package screen

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pitabwire/callcenter/internal/config"
	"github.com/pitabwire/callcenter/internal/definition"
	"github.com/pitabwire/callcenter/internal/observability"
	"github.com/pitabwire/callcenter/model"
)

func TestManager_MountViewUnmount(t *testing.T) {
	h := newHarness(t)

	v := h.mount(t, "notification_settings", Props{})
	assert.NotEmpty(t, v.ID)
	assert.Equal(t, "notification_settings", v.Screen)
	assert.Equal(t, "Configurações de Notificação", v.Title)
	assert.NotNil(t, v.Notifications)
	assert.Equal(t, 1, h.m.Len())

	again, err := h.m.View(h.ctx, v.ID)
	require.NoError(t, err)
	assert.Equal(t, v.ID, again.ID)

	require.NoError(t, h.m.Unmount(v.ID))
	assert.Equal(t, 0, h.m.Len())

	_, err = h.m.Dispatch(h.ctx, v.ID, Event{Type: EventSubmit})
	assert.True(t, model.HasCode(err, model.ErrScreenNotFound))
	assert.True(t, model.HasCode(h.m.Unmount(v.ID), model.ErrScreenNotFound))
}

func TestManager_MountUnknownKind(t *testing.T) {
	h := newHarness(t)
	_, err := h.m.Mount(h.ctx, "dashboard", Props{})
	assert.True(t, model.HasCode(err, model.ErrNotFound))
	assert.Equal(t, 0, h.m.Len())
}

func TestManager_SessionLimit(t *testing.T) {
	defs, err := definition.NewLoader().LoadEmbedded()
	require.NoError(t, err)
	m := NewManager(definition.NewRegistry(defs), Deps{Backend: &fakeBackend{}, Lookups: &fakeLookups{}},
		config.ScreensConfig{IdleTimeout: time.Minute, MaxSessions: 2})
	defer m.CloseAll()

	h := newHarness(t)
	for range 2 {
		_, err := m.Mount(h.ctx, "notification_settings", Props{})
		require.NoError(t, err)
	}
	_, err = m.Mount(h.ctx, "notification_settings", Props{})
	assert.True(t, model.HasCode(err, model.ErrScreenLimit))
}

func TestManager_UnknownEvent(t *testing.T) {
	h := newHarness(t)
	v := h.mount(t, "notification_settings", Props{})

	_, err := h.m.Dispatch(h.ctx, v.ID, Event{Type: EventSort, Field: "nome"})
	assert.True(t, model.HasCode(err, model.ErrUnknownEvent))

	_, err = h.m.Dispatch(h.ctx, v.ID, Event{Type: EventInput, Field: "nope", Value: "x"})
	assert.True(t, model.HasCode(err, model.ErrBadRequest))
}

func TestManager_VersionAdvancesWithEvents(t *testing.T) {
	h := newHarness(t)
	v := h.mount(t, "notification_settings", Props{})

	next := h.input(t, v.ID, "frequencia", "diario")
	assert.Greater(t, next.Version, v.Version)
}

func TestManager_ReapClosesIdleSessions(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := observability.InitMetrics(reg)

	defs, err := definition.NewLoader().LoadEmbedded()
	require.NoError(t, err)
	now := testNow
	m := NewManager(definition.NewRegistry(defs), Deps{
		Backend: &fakeBackend{},
		Lookups: &fakeLookups{},
		Metrics: metrics,
		Now:     func() time.Time { return now },
	}, config.ScreensConfig{IdleTimeout: 10 * time.Minute, MaxSessions: 10})
	defer m.CloseAll()

	h := newHarness(t)
	old, err := m.Mount(h.ctx, "unit_form", Props{})
	require.NoError(t, err)

	now = testNow.Add(8 * time.Minute)
	fresh, err := m.Mount(h.ctx, "unit_form", Props{})
	require.NoError(t, err)

	assert.Equal(t, 1, m.Reap(testNow.Add(15*time.Minute)))
	assert.Equal(t, 1, m.Len())

	_, err = m.View(h.ctx, old.ID)
	assert.True(t, model.HasCode(err, model.ErrScreenNotFound))
	_, err = m.View(h.ctx, fresh.ID)
	assert.NoError(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.ScreensReapedTotal))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.ScreensActive.WithLabelValues("unit_form")))
}

func TestManager_CustomFactory(t *testing.T) {
	calls := 0
	h := newHarness(t, WithFactories(map[string]Factory{
		"unit_form": func(env *Env, props Props) (Screen, error) {
			calls++
			return nil, model.NewBadRequestError("broken")
		},
	}))

	_, err := h.m.Mount(h.ctx, "unit_form", Props{})
	assert.True(t, model.HasCode(err, model.ErrBadRequest))
	assert.Equal(t, 1, calls)
	assert.Equal(t, 0, h.m.Len())

	_, err = h.m.Mount(h.ctx, "call_history", Props{})
	assert.True(t, model.HasCode(err, model.ErrNotFound))
}
