// Package backend provides execution backends for console sessions.
//
// A Backend accepts submitted text, reports liveness, and streams classified
// output chunks. Output is delivered on a channel from a backend-owned
// goroutine; consumers must hand chunks back to their interaction thread
// before touching session state.
package backend

import (
	"context"
	"errors"

	"github.com/joeycumines/one-shot-console/internal/outputlog"
)

// ErrNotRunning is returned by Send after the backend has terminated.
var ErrNotRunning = errors.New("backend not running")

// Backend is an execution backend.
type Backend interface {
	// Send forwards text for execution. It does not wait for the result.
	Send(ctx context.Context, text string) error
	// IsRunning reports whether the backend still accepts input. Once false,
	// it stays false.
	IsRunning() bool
	// Output streams output chunks. It is closed when the backend terminates.
	Output() <-chan outputlog.Chunk
	// Done is closed when the backend has terminated.
	Done() <-chan struct{}
	// CloseInput signals that no more input will be sent. The backend
	// finishes the work it already accepted, then terminates on its own.
	CloseInput() error
	// Close terminates the backend and waits for it to finish.
	Close() error
}

// ExitMarker appears in every System message a backend emits when it
// terminates.
const ExitMarker = "exited"

// outputBuffer is the capacity of each backend's output channel.
const outputBuffer = 64
