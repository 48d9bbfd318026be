package screen

import (
	"context"
	"net/url"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/pitabwire/callcenter/internal/config"
	"github.com/pitabwire/callcenter/internal/debounce"
	"github.com/pitabwire/callcenter/internal/definition"
	"github.com/pitabwire/callcenter/internal/notify"
	"github.com/pitabwire/callcenter/model"
)

var testNow = time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)

type submitCall struct {
	target  model.SubmitTarget
	payload any
}

type fakeBackend struct {
	mu        sync.Mutex
	submits   []submitCall
	submitErr error
	gate      chan struct{}
	records   map[string][]model.Record
	fetchErr  error
}

func (b *fakeBackend) Submit(ctx context.Context, target model.SubmitTarget, payload any) (model.SubmitResult, error) {
	b.mu.Lock()
	b.submits = append(b.submits, submitCall{target: target, payload: payload})
	gate, err := b.gate, b.submitErr
	b.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return model.SubmitResult{}, ctx.Err()
		}
	}
	if err != nil {
		return model.SubmitResult{}, err
	}
	return model.SubmitResult{Success: true}, nil
}

func (b *fakeBackend) FetchRecords(_ context.Context, path string) ([]model.Record, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.fetchErr != nil {
		return nil, b.fetchErr
	}
	return b.records[path], nil
}

func (b *fakeBackend) ExportURL(exports map[string]string, format string, filters map[string]string) (string, error) {
	path, ok := exports[format]
	if !ok {
		return "", model.NewNotFoundError("exportação " + strings.ToUpper(format) + " não disponível")
	}
	q := url.Values{}
	for k, v := range filters {
		if v != "" {
			q.Set(k, v)
		}
	}
	if len(q) == 0 {
		return "http://backend" + path, nil
	}
	return "http://backend" + path + "?" + q.Encode(), nil
}

func (b *fakeBackend) submitted() []submitCall {
	b.mu.Lock()
	defer b.mu.Unlock()
	return slices.Clone(b.submits)
}

type fakeLookups struct {
	mu         sync.Mutex
	municipios []string
	municipioQ []string
	cnes       map[string]model.CNESEstablishment
	units      map[string]model.UnitSummary
	similar    []string
	taken      []string
	verifyErr  error
}

func (f *fakeLookups) VerifyUnit(_ context.Context, name string) (model.UnitVerification, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.verifyErr != nil {
		return model.UnitVerification{}, f.verifyErr
	}
	if u, ok := f.units[name]; ok {
		return model.UnitVerification{Found: true, Unit: &u}, nil
	}
	return model.UnitVerification{Found: false, Similar: f.similar}, nil
}

func (f *fakeLookups) LookupCNES(_ context.Context, code string) (model.CNESEstablishment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	est, ok := f.cnes[code]
	if !ok {
		return model.CNESEstablishment{}, model.NewNotFoundError("Código CNES não encontrado na base de dados do Ministério da Saúde")
	}
	return est, nil
}

func (f *fakeLookups) Municipios(_ context.Context, q string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.municipioQ = append(f.municipioQ, q)
	var out []string
	for _, m := range f.municipios {
		if strings.Contains(strings.ToLower(m), strings.ToLower(q)) {
			out = append(out, m)
		}
	}
	return out, nil
}

func (f *fakeLookups) CheckUsername(_ context.Context, username string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return !slices.Contains(f.taken, username), nil
}

func (f *fakeLookups) queries() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.municipioQ)
}

type harness struct {
	m       *Manager
	backend *fakeBackend
	lookups *fakeLookups
	sched   *debounce.ManualScheduler
	ctx     context.Context
}

func newHarness(t *testing.T, opts ...Option) *harness {
	t.Helper()
	defs, err := definition.NewLoader().LoadEmbedded()
	require.NoError(t, err)

	h := &harness{
		backend: &fakeBackend{records: map[string][]model.Record{}},
		lookups: &fakeLookups{},
		sched:   debounce.NewManualScheduler(),
		ctx: model.WithRequestContext(context.Background(), &model.RequestContext{
			SubjectID:   "42",
			Username:    "joana",
			DisplayName: "Joana Lima",
		}),
	}
	deps := Deps{
		Backend:   h.backend,
		Lookups:   h.lookups,
		Scheduler: h.sched,
		Now:       func() time.Time { return testNow },
		Lookup:    config.LookupConfig{QuietPeriod: 300 * time.Millisecond, MinLength: 2},
	}
	cfg := config.ScreensConfig{IdleTimeout: time.Minute, ReapInterval: time.Minute, MaxSessions: 10, OutboxSize: 10}
	h.m = NewManager(definition.NewRegistry(defs), deps, cfg, append([]Option{WithSettle()}, opts...)...)
	t.Cleanup(h.m.CloseAll)
	return h
}

func (h *harness) mount(t *testing.T, kind string, props Props) View {
	t.Helper()
	v, err := h.m.Mount(h.ctx, kind, props)
	require.NoError(t, err)
	return v
}

func (h *harness) dispatch(t *testing.T, id string, ev Event) View {
	t.Helper()
	v, err := h.m.Dispatch(h.ctx, id, ev)
	require.NoError(t, err)
	return v
}

// wait advances the debounce clock and returns the settled view.
func (h *harness) wait(t *testing.T, id string, d time.Duration) View {
	t.Helper()
	h.sched.Advance(d)
	v, err := h.m.View(h.ctx, id)
	require.NoError(t, err)
	return v
}

func (h *harness) input(t *testing.T, id, field, value string) View {
	t.Helper()
	return h.dispatch(t, id, Event{Type: EventInput, Field: field, Value: value})
}

func messages(ns []notify.Notification) []string {
	out := make([]string, len(ns))
	for i, n := range ns {
		out[i] = n.Message
	}
	return out
}
