// Package session composes an interactive console session: an input buffer,
// a submission history, an output log, an execution gate, and an optional
// annotation bridge, wired to an execution backend.
//
// Sessions are created with a Builder. Submit, SetInput, Print and ClearOutput
// are expected to be called from the session's interaction thread, which Do
// runs work on. Backend output is handed to that thread through the
// configured loop.Scheduler.
package session

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/joeycumines/one-shot-console/internal/annotation"
	"github.com/joeycumines/one-shot-console/internal/backend"
	"github.com/joeycumines/one-shot-console/internal/gate"
	"github.com/joeycumines/one-shot-console/internal/history"
	"github.com/joeycumines/one-shot-console/internal/loop"
	"github.com/joeycumines/one-shot-console/internal/outputlog"
	"github.com/joeycumines/one-shot-console/internal/storage"
)

// HistoryView is the read-only surface of a session's history.
type HistoryView interface {
	Entries() iter.Seq[history.Entry]
	Texts() []string
	Len() int
}

// Session is one interactive console instance.
type Session struct {
	id       string
	identity Identity
	logger   *slog.Logger

	gate     gate.Gate
	executor Executor
	backend  backend.Backend
	onReject RejectPolicy
	echo     bool
	onError  func(error)
	filter   outputlog.Filter

	history    *history.Store
	historyKey *storage.Key
	storage    storage.Backend
	degraded   atomic.Bool

	log       *outputlog.Log
	bridge    *annotation.Bridge
	scheduler loop.Scheduler
	ownedLoop *loop.Loop

	ctx      context.Context
	cancel   context.CancelFunc
	pumpDone chan struct{}

	submissions atomic.Int64

	mu       sync.Mutex
	input    string
	disposed bool
}

// ID returns the random identifier of this session.
func (s *Session) ID() string { return s.id }

// Identity returns the language/runtime identity.
func (s *Session) Identity() Identity { return s.identity }

// Input returns the current input buffer.
func (s *Session) Input() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.input
}

// SetInput replaces the input buffer.
func (s *Session) SetInput(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.disposed {
		s.input = text
	}
}

// History returns a read-only view of the submission history.
func (s *Session) History() HistoryView { return s.history }

// HistoryKey returns the storage key of the history, if any.
func (s *Session) HistoryKey() (storage.Key, bool) {
	if s.historyKey == nil {
		return storage.Key{}, false
	}
	return *s.historyKey, true
}

// HistoryDegraded reports whether loading history from storage failed, in
// which case the session runs with in-memory history only.
func (s *Session) HistoryDegraded() bool { return s.degraded.Load() }

// Log returns a read-only view of the output log.
func (s *Session) Log() outputlog.Viewer { return s.log }

// Subscribe registers a listener on the output log.
func (s *Session) Subscribe(l outputlog.Listener) func() { return s.log.Subscribe(l) }

// Bridge returns the annotation bridge, or nil if none was configured.
func (s *Session) Bridge() *annotation.Bridge { return s.bridge }

// Gate returns the execution gate.
func (s *Session) Gate() gate.Gate { return s.gate }

// Scheduler returns the session's interaction thread.
func (s *Session) Scheduler() loop.Scheduler { return s.scheduler }

// Submissions returns the number of accepted submissions.
func (s *Session) Submissions() int { return int(s.submissions.Load()) }

// GateEnv returns the variables visible to expression gates.
func (s *Session) GateEnv() gate.Env {
	running := true
	if s.backend != nil {
		running = s.backend.IsRunning()
	}
	return gate.Env{
		Running:     running,
		Submissions: s.Submissions(),
		History:     s.history.Len(),
		Language:    s.identity.Language,
	}
}

// CanExecute reports whether a submission would currently be accepted.
func (s *Session) CanExecute() bool {
	s.mu.Lock()
	ok := !s.disposed && s.executor != nil
	s.mu.Unlock()
	return ok && s.gate.CanExecute()
}

// Do runs fn on the interaction thread and waits for it to return, or for
// ctx to be done. Called on that thread, it runs fn inline. A loop.Manual
// scheduler must be drained elsewhere while it waits.
func (s *Session) Do(ctx context.Context, fn func()) error {
	if l, ok := s.scheduler.(interface{ OnLoop() bool }); ok && l.OnLoop() {
		fn()
		return nil
	}
	done := make(chan struct{})
	if !s.scheduler.Schedule(func() {
		defer close(done)
		fn()
	}) {
		return loop.ErrNotRunning
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// SubmitInput submits the current input buffer.
func (s *Session) SubmitInput() error {
	return s.Submit(s.Input())
}

// Submit places text in the input buffer and attempts to execute it.
//
// If the gate is closed, a *RejectedError is returned and neither history nor
// the output log is touched. Otherwise the text is appended to history, the
// input buffer is cleared, the text is echoed to the log, and the execution
// callback is invoked once. Submit does not wait for the backend's output.
//
// The gate is evaluated without holding the session lock, so it may call
// back into the session.
func (s *Session) Submit(text string) error {
	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return ErrDisposed
	}
	s.input = text
	if s.executor == nil {
		s.rejectLocked()
		s.mu.Unlock()
		return &RejectedError{Reason: "execution not configured"}
	}
	s.mu.Unlock()

	open := s.gate.CanExecute()

	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return ErrDisposed
	}
	if !open {
		s.rejectLocked()
		s.mu.Unlock()
		s.logger.Debug("submission rejected", "reason", "execution disabled")
		return &RejectedError{Reason: "execution disabled"}
	}
	entry := s.history.Append(text)
	s.input = ""
	s.submissions.Add(1)
	s.mu.Unlock()

	if s.bridge != nil {
		s.bridge.BeforeEvaluate()
	}
	if s.echo {
		_ = s.log.Append(outputlog.Chunk{Text: text + "\n", Type: outputlog.UserInput})
	}

	if err := s.execute(text); err != nil {
		failure := &BackendFailureError{Text: text, Err: err}
		s.logger.Warn("execution failed", "seq", entry.Seq, "error", err)
		_ = s.log.Append(outputlog.Chunk{Text: err.Error() + "\n", Type: outputlog.Error})
		if s.onError != nil {
			s.onError(failure)
		}
		return failure
	}
	return nil
}

func (s *Session) rejectLocked() {
	if s.onReject == ClearInput {
		s.input = ""
	}
}

func (s *Session) execute(text string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("execution callback panicked: %v", r)
		}
	}()
	return s.executor(s.ctx, text)
}

// WaitOutput blocks until the backend's output stream has ended and every
// chunk it produced has been appended to the log. Without a backend it only
// waits for already scheduled work. Calling it on a Loop's own goroutine
// returns ErrInteractionThread. A loop.Manual scheduler must be drained
// elsewhere while it waits.
func (s *Session) WaitOutput(ctx context.Context) error {
	if l, ok := s.scheduler.(interface{ OnLoop() bool }); ok && l.OnLoop() {
		return ErrInteractionThread
	}
	select {
	case <-s.pumpDone:
	case <-ctx.Done():
		return ctx.Err()
	}
	done := make(chan struct{})
	if !s.scheduler.Schedule(func() { close(done) }) {
		return loop.ErrNotRunning
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Print appends host text to the output log.
func (s *Session) Print(typ outputlog.ContentType, text string) error {
	if s.isDisposed() {
		return ErrDisposed
	}
	return s.log.Append(outputlog.Chunk{Text: text, Type: typ})
}

// ClearOutput empties the output log.
func (s *Session) ClearOutput() error {
	if s.isDisposed() {
		return ErrDisposed
	}
	return s.log.Clear()
}

// PersistHistory flushes history to storage. It is a no-op without storage.
// A degraded session never persists, so that stored history it could not
// read is not overwritten.
func (s *Session) PersistHistory(ctx context.Context) (history.PersistResult, error) {
	if s.storage == nil || s.historyKey == nil {
		return history.PersistResult{}, nil
	}
	if s.HistoryDegraded() {
		return history.PersistResult{}, &history.StorageUnavailableError{
			Op:  "persist",
			Key: *s.historyKey,
			Err: errors.New("history was not loaded"),
		}
	}
	res, err := s.history.Persist(ctx, s.storage, *s.historyKey)
	if err != nil {
		return res, err
	}
	if res.Dropped > 0 {
		s.logger.Info("history truncated on persist",
			"dropped", res.Dropped,
			"written", res.Written,
			"total_dropped", s.history.Dropped())
	}
	return res, nil
}

// Dispose persists history, stops backend output delivery, detaches the
// annotation bridge, and releases the log. The backend itself is not closed.
// A persist failure is logged and returned; disposal still completes.
func (s *Session) Dispose() error {
	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return nil
	}
	s.disposed = true
	s.input = ""
	s.mu.Unlock()

	s.cancel()
	<-s.pumpDone
	if s.bridge != nil {
		s.bridge.Dispose()
	}

	var errs []error
	if _, err := s.PersistHistory(context.WithoutCancel(s.ctx)); err != nil {
		s.logger.Warn("failed to persist history", "error", err)
		errs = append(errs, err)
	}
	s.log.Dispose()
	if err := s.closeOwnedLoop(); err != nil {
		errs = append(errs, err)
	}
	s.logger.Debug("session disposed", "submissions", s.Submissions())
	return errors.Join(errs...)
}

// IsDisposed reports whether Dispose has been called.
func (s *Session) IsDisposed() bool { return s.isDisposed() }

func (s *Session) isDisposed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.disposed
}

func (s *Session) closeOwnedLoop() error {
	if s.ownedLoop == nil {
		return nil
	}
	return s.ownedLoop.Close()
}

// pump hands backend output to the interaction thread.
func (s *Session) pump(out <-chan outputlog.Chunk) {
	defer close(s.pumpDone)
	for {
		select {
		case <-s.ctx.Done():
			return
		case c, ok := <-out:
			if !ok {
				s.logger.Debug("backend output closed")
				return
			}
			if !s.scheduler.Schedule(func() { s.appendOutput(c) }) {
				s.logger.Debug("dropping backend output: scheduler closed", "bytes", len(c.Text))
			}
		}
	}
}

func (s *Session) appendOutput(c outputlog.Chunk) {
	if s.isDisposed() {
		return
	}
	chunks := []outputlog.Chunk{c}
	if s.filter != nil {
		chunks = s.filter(c)
	}
	for _, c := range chunks {
		if err := s.log.Append(c); err != nil && !errors.Is(err, outputlog.ErrDisposed) {
			s.logger.Warn("failed to append backend output", "error", err)
		}
	}
}
