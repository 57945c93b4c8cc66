package backend

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/dop251/goja"
	"github.com/dop251/goja_nodejs/require"
	"github.com/joeycumines/one-shot-console/internal/loop"
	"github.com/joeycumines/one-shot-console/internal/outputlog"
)

// errExit interrupts the running script when exit() is called.
var errExit = errors.New("exit")

// Script evaluates JavaScript submissions with goja. All evaluation happens
// on a loop.Loop, one submission at a time.
//
// Globals: print(...) and console.log/info/debug write Normal output,
// console.error/warn write Error output, and exit([code]) terminates the
// backend. The value of each submission is echoed unless it is undefined.
type Script struct {
	vm       *goja.Runtime
	loop     *loop.Loop
	ownsLoop bool
	logger   *slog.Logger
	name     string

	out     chan outputlog.Chunk
	sink    atomic.Pointer[func(outputlog.Chunk)]
	done    chan struct{}
	closing chan struct{}

	running   atomic.Bool
	exitCode  atomic.Int64
	closeOnce sync.Once
	stopOnce  sync.Once
}

type scriptConfig struct {
	loop     *loop.Loop
	registry *require.Registry
	logger   *slog.Logger
	name     string
}

// ScriptOption configures NewScript.
type ScriptOption func(*scriptConfig)

// WithLoop evaluates on an existing loop instead of creating one. The loop is
// not closed by the backend.
func WithLoop(l *loop.Loop) ScriptOption {
	return func(c *scriptConfig) { c.loop = l }
}

// WithRegistry sets the CommonJS registry scripts require modules from. It is
// ignored when WithLoop is given, since the loop carries its own registry.
func WithRegistry(r *require.Registry) ScriptOption {
	return func(c *scriptConfig) { c.registry = r }
}

// WithScriptLogger sets the logger.
func WithScriptLogger(logger *slog.Logger) ScriptOption {
	return func(c *scriptConfig) { c.logger = logger }
}

// WithScriptName sets the source name used in stack traces.
func WithScriptName(name string) ScriptOption {
	return func(c *scriptConfig) { c.name = name }
}

// NewScript starts a JavaScript backend.
func NewScript(ctx context.Context, opts ...ScriptOption) (*Script, error) {
	cfg := scriptConfig{name: "<console>"}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.logger == nil {
		cfg.logger = slog.Default()
	}

	s := &Script{
		loop:    cfg.loop,
		logger:  cfg.logger,
		name:    cfg.name,
		out:     make(chan outputlog.Chunk, outputBuffer),
		done:    make(chan struct{}),
		closing: make(chan struct{}),
	}
	if s.loop == nil {
		var loopOpts []loop.Option
		if cfg.registry != nil {
			loopOpts = append(loopOpts, loop.WithRegistry(cfg.registry))
		}
		l, err := loop.New(ctx, loopOpts...)
		if err != nil {
			return nil, fmt.Errorf("failed to start script loop: %w", err)
		}
		s.loop = l
		s.ownsLoop = true
	}

	if err := s.loop.RunVMSync(s.install); err != nil {
		if s.ownsLoop {
			_ = s.loop.Close()
		}
		return nil, fmt.Errorf("failed to install script globals: %w", err)
	}
	s.running.Store(true)

	if ctx != nil && ctx.Done() != nil {
		context.AfterFunc(ctx, func() { _ = s.Close() })
	}
	return s, nil
}

func (s *Script) install(vm *goja.Runtime) error {
	s.vm = vm
	writer := func(typ outputlog.ContentType) func(goja.FunctionCall) goja.Value {
		return func(call goja.FunctionCall) goja.Value {
			parts := make([]string, len(call.Arguments))
			for i, arg := range call.Arguments {
				parts[i] = arg.String()
			}
			s.emit(outputlog.Chunk{Text: strings.Join(parts, " ") + "\n", Type: typ})
			return goja.Undefined()
		}
	}

	console := vm.NewObject()
	for name, typ := range map[string]outputlog.ContentType{
		"log":   outputlog.Normal,
		"info":  outputlog.Normal,
		"debug": outputlog.Normal,
		"error": outputlog.Error,
		"warn":  outputlog.Error,
	} {
		if err := console.Set(name, writer(typ)); err != nil {
			return err
		}
	}
	if err := vm.Set("console", console); err != nil {
		return err
	}
	if err := vm.Set("print", writer(outputlog.Normal)); err != nil {
		return err
	}
	return vm.Set("exit", func(call goja.FunctionCall) goja.Value {
		var code int64
		if len(call.Arguments) > 0 {
			code = call.Argument(0).ToInteger()
		}
		s.exitCode.Store(code)
		s.stop(fmt.Sprintf("exited with code %d\n", code))
		vm.Interrupt(errExit)
		return goja.Undefined()
	})
}

// Send implements Backend. Evaluation is queued; Send does not wait for it.
func (s *Script) Send(ctx context.Context, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !s.IsRunning() {
		return ErrNotRunning
	}
	if !s.loop.ScheduleVM(func(vm *goja.Runtime) { s.evaluate(vm, text) }) {
		return ErrNotRunning
	}
	return nil
}

func (s *Script) evaluate(vm *goja.Runtime, text string) {
	select {
	case <-s.closing:
		return
	default:
	}
	if !s.IsRunning() {
		return
	}
	v, err := vm.RunScript(s.name, text)
	if err != nil {
		var interrupted *goja.InterruptedError
		if errors.As(err, &interrupted) {
			vm.ClearInterrupt()
			return
		}
		var exception *goja.Exception
		if errors.As(err, &exception) {
			s.emit(outputlog.Chunk{Text: exception.Error() + "\n", Type: outputlog.Error})
			return
		}
		s.emit(outputlog.Chunk{Text: err.Error() + "\n", Type: outputlog.Error})
		return
	}
	if v == nil || goja.IsUndefined(v) {
		return
	}
	s.emit(outputlog.Chunk{Text: v.String() + "\n", Type: outputlog.Normal})
}

func (s *Script) emit(c outputlog.Chunk) {
	if !s.running.Load() && c.Type != outputlog.System {
		return
	}
	if fn := s.sink.Load(); fn != nil {
		(*fn)(c)
		return
	}
	select {
	case s.out <- c:
	case <-s.closing:
	}
}

// stop marks the backend terminated and closes its channels. It runs on the
// loop goroutine, either from exit() or from Close.
func (s *Script) stop(message string) {
	s.stopOnce.Do(func() {
		s.running.Store(false)
		if message != "" {
			s.emit(outputlog.Chunk{Text: message, Type: outputlog.System})
		}
		close(s.out)
		close(s.done)
	})
}

// IsRunning implements Backend. It is false once exit() or Close has been
// called, or once the loop has stopped.
func (s *Script) IsRunning() bool { return s.running.Load() && s.loop.IsRunning() }

// Output implements Backend.
func (s *Script) Output() <-chan outputlog.Chunk { return s.out }

// Done implements Backend.
func (s *Script) Done() <-chan struct{} { return s.done }

// ExitCode returns the code passed to exit(), or 0.
func (s *Script) ExitCode() int { return int(s.exitCode.Load()) }

// SetSink delivers output to fn, on the loop goroutine, as it is produced.
// Output then no longer goes through Output, which is still closed once the
// backend stops. It must be called before the first Send.
func (s *Script) SetSink(fn func(outputlog.Chunk)) {
	if fn == nil {
		s.sink.Store(nil)
		return
	}
	s.sink.Store(&fn)
}

// Loop returns the loop the backend evaluates on.
func (s *Script) Loop() *loop.Loop { return s.loop }

// CloseInput implements Backend. The backend stops once every evaluation
// queued before the call has run.
func (s *Script) CloseInput() error {
	if !s.loop.ScheduleVM(func(*goja.Runtime) { s.stop("") }) {
		s.stop("")
	}
	return nil
}

// Close implements Backend. A running evaluation is interrupted and queued
// evaluations are skipped.
func (s *Script) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.closing)
		if s.loop.IsRunning() {
			s.vm.Interrupt(errExit)
			err = s.loop.RunVMSync(func(vm *goja.Runtime) error {
				vm.ClearInterrupt()
				s.stop("")
				return nil
			})
		}
		if !s.loop.IsRunning() || errors.Is(err, loop.ErrNotRunning) {
			s.stop("")
			err = nil
		}
		if s.ownsLoop {
			err = errors.Join(err, s.loop.Close())
		}
	})
	return err
}

var _ Backend = (*Script)(nil)
