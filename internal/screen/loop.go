package screen

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/pitabwire/callcenter/model"
)

// ErrClosed is returned by Do when the loop has been closed.
var ErrClosed = model.NewScreenClosedError("")

// Loop runs every handler of one screen session on a single goroutine, in
// the order they were posted. Screen state touched only from loop handlers
// needs no locking.
type Loop struct {
	queue   chan func()
	closing chan struct{}
	done    chan struct{}
	ctx     context.Context
	cancel  context.CancelFunc
	logger  *zap.Logger

	mu      sync.Mutex
	closed  bool
	defers  []func()
	tasks   int
	waiters []chan struct{}

	closeOnce sync.Once
}

// NewLoop starts a loop whose queue holds up to size pending handlers.
// Posting to a full queue blocks until there is room or the loop closes.
func NewLoop(size int, logger *zap.Logger) *Loop {
	if size <= 0 {
		size = 64
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	l := &Loop{
		queue:   make(chan func(), size),
		closing: make(chan struct{}),
		done:    make(chan struct{}),
		ctx:     ctx,
		cancel:  cancel,
		logger:  logger,
	}
	go l.run()
	return l
}

// Context is cancelled when the loop closes. Work started with Go receives
// it.
func (l *Loop) Context() context.Context { return l.ctx }

// Post schedules fn on the loop and returns immediately. It reports false
// when the loop is closed and fn will never run.
func (l *Loop) Post(fn func()) bool {
	l.mu.Lock()
	closed := l.closed
	l.mu.Unlock()
	if closed {
		return false
	}
	select {
	case l.queue <- fn:
		return true
	case <-l.closing:
		return false
	}
}

// Do runs fn on the loop and waits for it to finish.
func (l *Loop) Do(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	if !l.Post(func() {
		defer close(finished)
		fn()
	}) {
		return ErrClosed
	}
	select {
	case <-finished:
		return nil
	case <-l.done:
		select {
		case <-finished:
			return nil
		default:
			return ErrClosed
		}
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Go runs work on its own goroutine with the loop's context and posts the
// continuation it returns back onto the loop. A nil continuation is skipped;
// continuations arriving after Close are dropped.
func (l *Loop) Go(work func(ctx context.Context) func()) {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	l.tasks++
	l.mu.Unlock()

	go func() {
		defer l.taskDone()
		then := work(l.ctx)
		if then != nil {
			l.Post(then)
		}
	}()
}

// Defer registers fn to run when the loop closes. Deferred functions run in
// reverse registration order after the last handler.
func (l *Loop) Defer(fn func()) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		go fn()
		return
	}
	l.defers = append(l.defers, fn)
}

// Settle waits until no work started with Go is running and every
// continuation it posted has been handled.
func (l *Loop) Settle(ctx context.Context) error {
	for {
		l.mu.Lock()
		if l.tasks > 0 {
			ch := make(chan struct{})
			l.waiters = append(l.waiters, ch)
			l.mu.Unlock()
			select {
			case <-ch:
				continue
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		l.mu.Unlock()

		if err := l.Do(ctx, func() {}); err != nil {
			return err
		}

		l.mu.Lock()
		idle := l.tasks == 0
		l.mu.Unlock()
		if idle {
			return nil
		}
	}
}

// Close stops accepting handlers, runs the ones already queued, cancels the
// loop context and runs the deferred functions. It must not be called from a
// loop handler.
func (l *Loop) Close() {
	l.closeOnce.Do(func() {
		l.mu.Lock()
		l.closed = true
		defers := l.defers
		l.defers = nil
		l.mu.Unlock()

		l.cancel()
		close(l.closing)
		<-l.done

		for i := len(defers) - 1; i >= 0; i-- {
			l.safely("deferred", defers[i])
		}
	})
}

// Busy reports whether work started with Go is still running.
func (l *Loop) Busy() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.tasks > 0
}

// Closed reports whether Close has been called.
func (l *Loop) Closed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closed
}

func (l *Loop) run() {
	defer close(l.done)
	for {
		select {
		case fn := <-l.queue:
			l.safely("handler", fn)
		case <-l.closing:
			for {
				select {
				case fn := <-l.queue:
					l.safely("handler", fn)
				default:
					return
				}
			}
		}
	}
}

func (l *Loop) safely(what string, fn func()) {
	defer func() {
		if rec := recover(); rec != nil {
			l.logger.Error("screen loop panic recovered",
				zap.String("in", what),
				zap.String("panic", fmt.Sprint(rec)),
			)
		}
	}()
	fn()
}

func (l *Loop) taskDone() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.tasks--
	if l.tasks == 0 {
		for _, ch := range l.waiters {
			close(ch)
		}
		l.waiters = nil
	}
}
