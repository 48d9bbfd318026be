package screen

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/pitabwire/callcenter/internal/config"
	"github.com/pitabwire/callcenter/internal/debounce"
	"github.com/pitabwire/callcenter/internal/layout"
	"github.com/pitabwire/callcenter/internal/notify"
	"github.com/pitabwire/callcenter/internal/observability"
	"github.com/pitabwire/callcenter/internal/validation"
	"github.com/pitabwire/callcenter/model"
)

// Backend submits forms and serves list data and export links.
type Backend interface {
	Submit(ctx context.Context, target model.SubmitTarget, payload any) (model.SubmitResult, error)
	FetchRecords(ctx context.Context, path string) ([]model.Record, error)
	ExportURL(exports map[string]string, format string, filters map[string]string) (string, error)
}

// Lookups answers the remote lookups bound to form fields.
type Lookups interface {
	VerifyUnit(ctx context.Context, name string) (model.UnitVerification, error)
	LookupCNES(ctx context.Context, code string) (model.CNESEstablishment, error)
	Municipios(ctx context.Context, q string) ([]string, error)
	CheckUsername(ctx context.Context, username string) (bool, error)
}

// Deps are shared by every screen session.
type Deps struct {
	Backend   Backend
	Lookups   Lookups
	Validator *validation.Validator
	Logger    *zap.Logger
	Metrics   *observability.Metrics
	// Scheduler drives debounce timers; nil means real time.
	Scheduler debounce.Scheduler
	// Now returns the current time; nil means time.Now.
	Now func() time.Time
	// Lookup supplies quiet periods and minimum lengths for lookups whose
	// definition leaves them unset.
	Lookup config.LookupConfig
}

func (d Deps) withDefaults() Deps {
	if d.Validator == nil {
		d.Validator = validation.New()
	}
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	if d.Scheduler == nil {
		d.Scheduler = debounce.RealScheduler{}
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.Lookup.QuietPeriod <= 0 {
		d.Lookup.QuietPeriod = 300 * time.Millisecond
	}
	if d.Lookup.MinLength <= 0 {
		d.Lookup.MinLength = 2
	}
	return d
}

// Env is what a screen sees of its session: shared dependencies, its
// definition, the loop it runs on and its notification outbox.
type Env struct {
	Deps
	Def    model.ScreenDefinition
	loop   *Loop
	outbox *notify.Outbox
	sink   notify.Sink
	rctx   *model.RequestContext

	// version counts state changes; it is only touched on the loop.
	version uint64
}

func newEnv(deps Deps, def model.ScreenDefinition, loop *Loop, outbox *notify.Outbox, logger *zap.Logger) *Env {
	deps.Logger = logger
	return &Env{
		Deps:   deps,
		Def:    def,
		loop:   loop,
		outbox: outbox,
		sink:   notify.Multi(outbox, notify.NewLogSink(logger)),
	}
}

// Operator returns the operator who last interacted with the screen.
func (e *Env) Operator() *model.RequestContext { return e.rctx }

// Notify queues a notification for the next snapshot.
func (e *Env) Notify(level notify.Level, title, message string) {
	e.sink.Notify(e.context(), notify.Notification{Level: level, Title: title, Message: message})
}

// NotifyError queues an error notification describing err.
func (e *Env) NotifyError(title string, err error) {
	e.sink.Notify(e.context(), notify.FromError(title, err))
}

// Defer registers cleanup run when the session closes.
func (e *Env) Defer(fn func()) { e.loop.Defer(fn) }

// Debouncer creates a debouncer whose callback runs on the session loop and
// is stopped when the session closes. Zero values in cfg fall back to the
// configured lookup defaults.
func (e *Env) Debouncer(cfg debounce.Config, fn func(query string)) *debounce.Debouncer {
	if cfg.QuietPeriod <= 0 {
		cfg.QuietPeriod = e.Lookup.QuietPeriod
	}
	d := debounce.New(cfg, func(q string) {
		e.loop.Post(func() {
			fn(q)
			e.version++
		})
	}, debounce.WithScheduler(e.Scheduler), debounce.WithMetrics(e.Metrics))
	e.Defer(d.Close)
	return d
}

// LookupDebouncer creates the debouncer for the lookup the definition binds
// to field. ok is false when the definition declares none.
func (e *Env) LookupDebouncer(field string, fn func(query string)) (d *debounce.Debouncer, ok bool) {
	lk, ok := e.Def.Lookups[field]
	if !ok {
		return nil, false
	}
	minLength := lk.MinLength
	if minLength <= 0 {
		minLength = e.Lookup.MinLength
	}
	return e.Debouncer(debounce.Config{
		QuietPeriod: lk.QuietPeriod,
		MinLength:   minLength,
		Source:      lk.Source,
	}, fn), true
}

// context carries the operator's credentials to work started off the loop.
func (e *Env) context() context.Context {
	ctx := e.loop.Context()
	if e.rctx != nil {
		ctx = model.WithRequestContext(ctx, e.rctx)
	}
	return ctx
}

// run calls work off the loop and hands its result to then, on the loop.
// Work is cancelled when the session closes.
func run[T any](e *Env, work func(ctx context.Context) (T, error), then func(T, error)) {
	ctx := e.context()
	e.loop.Go(func(context.Context) func() {
		v, err := work(ctx)
		return func() {
			then(v, err)
			e.version++
		}
	})
}

// dropdown positions a suggestion list under the input described by ev.
func dropdown(ev Event, rows int) *layout.Layer {
	if ev.Anchor == nil || ev.Viewport == nil || rows == 0 {
		return nil
	}
	const rowHeight = 36
	l := layout.Place(*ev.Anchor, layout.Size{Width: ev.Anchor.Width, Height: rows * rowHeight}, *ev.Viewport, layout.DefaultOptions)
	return &l
}
