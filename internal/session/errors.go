package session

import (
	"errors"
	"fmt"
)

var (
	// ErrRejected matches submissions blocked before reaching the backend.
	ErrRejected = errors.New("submission rejected")
	// ErrBackendFailure matches failures raised by the execution callback.
	ErrBackendFailure = errors.New("backend failure")
	// ErrConfiguration matches invalid or incomplete builder state.
	ErrConfiguration = errors.New("invalid session configuration")
	// ErrDisposed is returned by operations on a disposed session.
	ErrDisposed = errors.New("session disposed")
	// ErrInteractionThread is returned by blocking calls made from the
	// interaction thread, which would otherwise deadlock.
	ErrInteractionThread = errors.New("called from the interaction thread")
)

// RejectedError reports a submission that was not executed. History, the
// output log and the backend are untouched.
type RejectedError struct {
	Reason string
}

func (e *RejectedError) Error() string { return "submission rejected: " + e.Reason }

// Is reports ErrRejected as a match.
func (e *RejectedError) Is(target error) bool { return target == ErrRejected }

// BackendFailureError reports an execution callback that returned an error or
// panicked. The history entry for Text is retained.
type BackendFailureError struct {
	Text string
	Err  error
}

func (e *BackendFailureError) Error() string { return fmt.Sprintf("backend failure: %v", e.Err) }

func (e *BackendFailureError) Unwrap() error { return e.Err }

// Is reports ErrBackendFailure as a match.
func (e *BackendFailureError) Is(target error) bool { return target == ErrBackendFailure }

// ConfigurationError reports invalid builder state. No session is created.
type ConfigurationError struct {
	Option string
	Reason string
	Err    error
}

func (e *ConfigurationError) Error() string {
	msg := "invalid session configuration"
	if e.Option != "" {
		msg += ": " + e.Option
	}
	msg += ": " + e.Reason
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// Is reports ErrConfiguration as a match.
func (e *ConfigurationError) Is(target error) bool { return target == ErrConfiguration }
