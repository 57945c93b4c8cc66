package session

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/joeycumines/one-shot-console/internal/annotation"
	"github.com/joeycumines/one-shot-console/internal/backend"
	"github.com/joeycumines/one-shot-console/internal/gate"
	"github.com/joeycumines/one-shot-console/internal/history"
	"github.com/joeycumines/one-shot-console/internal/loop"
	"github.com/joeycumines/one-shot-console/internal/outputlog"
	"github.com/joeycumines/one-shot-console/internal/storage"
)

// Identity is the language/runtime identity of a session.
type Identity struct {
	Language string
	Name     string
}

// String returns Name, or Language if Name is empty.
func (i Identity) String() string {
	if i.Name != "" {
		return i.Name
	}
	return i.Language
}

// RejectPolicy decides what happens to the input buffer when the gate
// rejects a submission.
type RejectPolicy int

const (
	// RetainInput keeps the rejected text in the input buffer.
	RetainInput RejectPolicy = iota
	// ClearInput empties the input buffer.
	ClearInput
)

func (p RejectPolicy) String() string {
	switch p {
	case RetainInput:
		return "retain"
	case ClearInput:
		return "clear"
	default:
		return fmt.Sprintf("RejectPolicy(%d)", int(p))
	}
}

// ParseRejectPolicy parses "retain" or "clear".
func ParseRejectPolicy(s string) (RejectPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "retain":
		return RetainInput, nil
	case "clear":
		return ClearInput, nil
	default:
		return 0, fmt.Errorf("unknown reject policy %q (want retain or clear)", s)
	}
}

// Executor is the execution callback. It is called exactly once per accepted
// submission and must not block on the result of the execution.
type Executor func(ctx context.Context, text string) error

// Builder configures a Session. Setters are chainable; invalid values and any
// call made after a successful Build are recorded and reported by Build.
type Builder struct {
	identity Identity

	gate       gate.Gate
	gateExpr   string
	backend    backend.Backend
	executor   Executor
	historyKey *storage.Key
	storage    storage.Backend
	maxEntries int
	provider   annotation.Provider
	scheduler  loop.Scheduler
	logger     *slog.Logger
	onReject   RejectPolicy
	echo       bool
	onError    func(error)
	filter     outputlog.Filter
	ctx        context.Context

	err   *ConfigurationError
	built bool
}

// NewBuilder starts configuring a session for identity.
func NewBuilder(identity Identity) *Builder {
	return &Builder{identity: identity, echo: true}
}

func (b *Builder) set(option string, apply func()) *Builder {
	if b.built {
		b.fail(option, "session already built", nil)
		return b
	}
	apply()
	return b
}

func (b *Builder) fail(option, reason string, err error) {
	if b.err == nil {
		b.err = &ConfigurationError{Option: option, Reason: reason, Err: err}
	}
}

// ExecutionEnabled sets the execution gate. Without it, the gate is
// BackendLiveness when a backend is configured and AlwaysEnabled otherwise.
func (b *Builder) ExecutionEnabled(g gate.Gate) *Builder {
	return b.set("ExecutionEnabled", func() {
		if g == nil {
			b.fail("ExecutionEnabled", "nil gate", nil)
			return
		}
		b.gate = g
	})
}

// ExecutionExpr adds an expression gate, combined with the execution gate.
// The expression sees the variables described by gate.Env.
func (b *Builder) ExecutionExpr(source string) *Builder {
	return b.set("ExecutionExpr", func() { b.gateExpr = source })
}

// Backend attaches an execution backend. Its Send becomes the execution
// callback unless Executor is also set, and its output is appended to the log.
func (b *Builder) Backend(be backend.Backend) *Builder {
	return b.set("Backend", func() { b.backend = be })
}

// Executor sets the execution callback.
func (b *Builder) Executor(fn Executor) *Builder {
	return b.set("Executor", func() { b.executor = fn })
}

// HistoryKey sets the history identity. It is required when execution is
// wired in. An empty persistenceID shares history across all sessions of
// historyType.
func (b *Builder) HistoryKey(historyType, persistenceID string) *Builder {
	return b.set("HistoryKey", func() {
		key := storage.Key{Type: historyType, PersistenceID: persistenceID}
		if err := key.Validate(); err != nil {
			b.fail("HistoryKey", "invalid key", err)
			return
		}
		b.historyKey = &key
	})
}

// HistoryStorage sets where history is loaded from on Build and persisted to
// on Dispose.
func (b *Builder) HistoryStorage(s storage.Backend) *Builder {
	return b.set("HistoryStorage", func() { b.storage = s })
}

// MaxHistoryEntries bounds the persisted history.
func (b *Builder) MaxHistoryEntries(n int) *Builder {
	return b.set("MaxHistoryEntries", func() { b.maxEntries = n })
}

// AnnotationProvider enables the annotation bridge. Without it, no gutter
// metadata is maintained.
func (b *Builder) AnnotationProvider(p annotation.Provider) *Builder {
	return b.set("AnnotationProvider", func() { b.provider = p })
}

// Scheduler sets the interaction thread. Without it, the session uses the
// backend's loop if it has one, or starts its own.
func (b *Builder) Scheduler(s loop.Scheduler) *Builder {
	return b.set("Scheduler", func() { b.scheduler = s })
}

// Logger sets the session logger.
func (b *Builder) Logger(l *slog.Logger) *Builder {
	return b.set("Logger", func() { b.logger = l })
}

// OnReject sets the input buffer policy for rejected submissions.
func (b *Builder) OnReject(p RejectPolicy) *Builder {
	return b.set("OnReject", func() {
		if p != RetainInput && p != ClearInput {
			b.fail("OnReject", p.String(), nil)
			return
		}
		b.onReject = p
	})
}

// EchoInput controls whether accepted submissions are appended to the log as
// UserInput. Enabled by default.
func (b *Builder) EchoInput(echo bool) *Builder {
	return b.set("EchoInput", func() { b.echo = echo })
}

// OnError receives backend failures in addition to the Submit return value.
func (b *Builder) OnError(fn func(error)) *Builder {
	return b.set("OnError", func() { b.onError = fn })
}

// OutputFilter rewrites backend output before it is appended to the log.
// Host text from Print, echoed input and execution errors are not filtered.
func (b *Builder) OutputFilter(f outputlog.Filter) *Builder {
	return b.set("OutputFilter", func() { b.filter = f })
}

// Context bounds the session. Cancelling it stops the output pump.
func (b *Builder) Context(ctx context.Context) *Builder {
	return b.set("Context", func() { b.ctx = ctx })
}

// Err returns the first recorded configuration error.
func (b *Builder) Err() error {
	if b.err == nil {
		return nil
	}
	return b.err
}

type loopOwner interface {
	Loop() *loop.Loop
}

// outputSink is implemented by backends that produce output on their loop
// and can hand it over directly instead of through their output channel.
type outputSink interface {
	SetSink(fn func(outputlog.Chunk))
}

// Build validates the configuration and returns a ready session. On error,
// nothing is started.
func (b *Builder) Build() (*Session, error) {
	if b.built {
		b.fail("Build", "session already built", nil)
	}
	if b.err != nil {
		return nil, b.err
	}
	if strings.TrimSpace(b.identity.Language) == "" {
		return nil, &ConfigurationError{Option: "Identity", Reason: "language is required"}
	}
	if (b.executor != nil || b.backend != nil) && b.historyKey == nil {
		return nil, &ConfigurationError{Option: "HistoryKey", Reason: "required when execution is configured"}
	}
	if b.storage != nil && b.historyKey == nil {
		return nil, &ConfigurationError{Option: "HistoryStorage", Reason: "requires HistoryKey"}
	}

	ctx := b.ctx
	if ctx == nil {
		ctx = context.Background()
	}
	logger := b.logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Session{
		id:       uuid.NewString(),
		identity: b.identity,
		backend:  b.backend,
		storage:  b.storage,
		onReject: b.onReject,
		echo:     b.echo,
		onError:  b.onError,
		filter:   b.filter,
		log:      outputlog.New(),
		pumpDone: make(chan struct{}),
	}
	s.logger = logger.With("session", s.id, "language", b.identity.Language)
	if b.historyKey != nil {
		key := *b.historyKey
		s.historyKey = &key
	}

	s.executor = b.executor
	if s.executor == nil && b.backend != nil {
		s.executor = b.backend.Send
	}

	switch {
	case b.gate != nil:
		s.gate = b.gate
	case b.backend != nil:
		s.gate = gate.BackendLiveness(b.backend)
	default:
		s.gate = gate.AlwaysEnabled()
	}
	if b.gateExpr != "" {
		g, err := gate.Expr(b.gateExpr, s.GateEnv)
		if err != nil {
			return nil, &ConfigurationError{Option: "ExecutionExpr", Reason: "invalid expression", Err: err}
		}
		s.gate = gate.All(s.gate, g)
	}

	s.scheduler = b.scheduler
	if s.scheduler == nil {
		if lo, ok := b.backend.(loopOwner); ok && lo.Loop() != nil {
			s.scheduler = lo.Loop()
		} else {
			l, err := loop.New(ctx)
			if err != nil {
				return nil, fmt.Errorf("failed to start interaction loop: %w", err)
			}
			s.scheduler = l
			s.ownedLoop = l
		}
	}

	if b.provider != nil {
		bridge, err := annotation.NewBridge(s.log, b.provider, s.scheduler, annotation.WithLogger(s.logger))
		if err != nil {
			s.closeOwnedLoop()
			return nil, &ConfigurationError{Option: "AnnotationProvider", Reason: "failed to attach", Err: err}
		}
		s.bridge = bridge
	}

	s.history = history.NewStore(history.WithMaxEntries(b.maxEntries), history.WithLogger(s.logger))
	if s.storage != nil {
		if loaded, err := s.history.Load(ctx, s.storage, *s.historyKey); err != nil {
			s.degraded.Store(true)
			s.logger.Warn("history unavailable, continuing with in-memory history",
				"key", s.historyKey.ID(),
				"error", err)
		} else {
			s.logger.Debug("history loaded", "key", s.historyKey.ID(), "entries", len(loaded))
		}
	}

	// output produced on the interaction thread is appended as it is
	// produced, so it lands between the echoes of the inputs around it
	if lo, ok := b.backend.(loopOwner); ok && lo.Loop() != nil && s.scheduler == loop.Scheduler(lo.Loop()) {
		if sink, ok := b.backend.(outputSink); ok {
			sink.SetSink(s.appendOutput)
		}
	}

	s.ctx, s.cancel = context.WithCancel(ctx)
	if b.backend != nil {
		go s.pump(b.backend.Output())
	} else {
		close(s.pumpDone)
	}

	b.built = true
	return s, nil
}
