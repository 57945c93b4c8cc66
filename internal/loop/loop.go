// Package loop provides the interaction thread of a console session: a single
// consumer that runs scheduled work one task at a time, in submission order.
//
// Loop is backed by the goja_nodejs event loop so that JavaScript execution
// backends can share the same goroutine as session state updates. Manual is a
// scheduler drained explicitly by its owner, for hosts that already run their
// own tick and for deterministic tests.
package loop

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dop251/goja"
	"github.com/dop251/goja_nodejs/eventloop"
	"github.com/dop251/goja_nodejs/require"
)

// Scheduler queues work onto the interaction thread.
type Scheduler interface {
	// Schedule enqueues fn. It returns false if the scheduler is no longer
	// accepting work, in which case fn will never run.
	Schedule(fn func()) bool
}

// ErrNotRunning is returned when work is submitted to a stopped loop.
var ErrNotRunning = errors.New("event loop not running")

// DefaultSyncTimeout is the maximum duration RunSync waits by default.
const DefaultSyncTimeout = 5 * time.Second

// Loop is a single-goroutine task queue.
//
// Key properties:
//   - tasks run one at a time, in the order they were scheduled
//   - goja.Runtime access is only valid inside ScheduleVM/RunVMSync callbacks
//   - RunSync called from the loop goroutine runs inline instead of deadlocking
type Loop struct {
	loop     *eventloop.EventLoop
	registry *require.Registry

	timeout time.Duration

	// loopGoroutineID and vm are captured once at startup, on the loop.
	loopGoroutineID atomic.Int64
	vm              *goja.Runtime

	mu      sync.RWMutex
	started bool
	stopped bool

	ctx    context.Context
	cancel context.CancelFunc
}

// Option configures a Loop.
type Option func(*Loop)

// WithRegistry shares a CommonJS registry with the loop's runtime.
func WithRegistry(registry *require.Registry) Option {
	return func(l *Loop) { l.registry = registry }
}

// WithSyncTimeout overrides DefaultSyncTimeout. Zero disables the timeout.
func WithSyncTimeout(d time.Duration) Option {
	return func(l *Loop) { l.timeout = d }
}

// New starts a Loop. Cancelling ctx closes it.
func New(ctx context.Context, opts ...Option) (*Loop, error) {
	l := &Loop{timeout: DefaultSyncTimeout}
	for _, opt := range opts {
		opt(l)
	}
	if l.registry == nil {
		l.registry = require.NewRegistry()
	}

	l.loop = eventloop.NewEventLoop(
		eventloop.WithRegistry(l.registry),
	)
	l.ctx, l.cancel = context.WithCancel(context.Background())

	l.loop.Start()
	l.mu.Lock()
	l.started = true
	l.mu.Unlock()

	ready := make(chan struct{})
	if !l.loop.RunOnLoop(func(vm *goja.Runtime) {
		l.vm = vm
		l.loopGoroutineID.Store(goroutineID())
		close(ready)
	}) {
		l.cancel()
		return nil, errors.New("failed to initialize: event loop not running")
	}
	<-ready

	if ctx != nil && ctx.Done() != nil {
		context.AfterFunc(ctx, func() { _ = l.Close() })
	}

	return l, nil
}

// Registry returns the CommonJS registry used by the loop runtime.
func (l *Loop) Registry() *require.Registry {
	return l.registry
}

// Schedule implements Scheduler.
func (l *Loop) Schedule(fn func()) bool {
	if fn == nil {
		return false
	}
	return l.ScheduleVM(func(*goja.Runtime) { fn() })
}

// ScheduleVM enqueues fn with access to the loop's goja.Runtime. The runtime
// must not be retained past the callback.
func (l *Loop) ScheduleVM(fn func(*goja.Runtime)) bool {
	if !l.IsRunning() {
		return false
	}
	return l.loop.RunOnLoop(fn)
}

// RunSync runs fn on the loop and waits for it to return.
func (l *Loop) RunSync(fn func() error) error {
	return l.RunVMSync(func(*goja.Runtime) error { return fn() })
}

// RunVMSync runs fn on the loop with the goja.Runtime and waits for it.
// When called from the loop goroutine itself, fn runs immediately.
func (l *Loop) RunVMSync(fn func(*goja.Runtime) error) error {
	l.mu.RLock()
	if !l.started || l.stopped {
		l.mu.RUnlock()
		return ErrNotRunning
	}
	timeout := l.timeout
	l.mu.RUnlock()

	if l.OnLoop() {
		return fn(l.vm)
	}

	errCh := make(chan error, 1)
	if !l.loop.RunOnLoop(func(vm *goja.Runtime) {
		errCh <- fn(vm)
	}) {
		return ErrNotRunning
	}

	var timer <-chan time.Time
	if timeout > 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		timer = t.C
	}

	select {
	case err := <-errCh:
		return err
	case <-l.Done():
		return errors.New("event loop stopped before completion")
	case <-timer:
		return fmt.Errorf("operation timed out after %v", timeout)
	}
}

// OnLoop reports whether the caller is running on the loop goroutine.
func (l *Loop) OnLoop() bool {
	id := l.loopGoroutineID.Load()
	return id > 0 && id == goroutineID()
}

// Close stops the loop, waiting for already-queued tasks to finish. It is
// safe to call multiple times.
func (l *Loop) Close() error {
	l.mu.Lock()
	if l.stopped {
		l.mu.Unlock()
		return nil
	}
	l.stopped = true
	l.mu.Unlock()

	l.cancel()
	if l.OnLoop() {
		l.loop.StopNoWait()
		return nil
	}
	l.loop.Stop()
	return nil
}

// Done is closed once Close has been called.
func (l *Loop) Done() <-chan struct{} {
	return l.ctx.Done()
}

// IsRunning reports whether the loop accepts work.
func (l *Loop) IsRunning() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.started && !l.stopped
}

var _ Scheduler = (*Loop)(nil)
