package storage

import (
	"context"
	"errors"
	"os"
	"time"
)

// ErrWouldBlock signals that a non-blocking lock attempt failed due to the
// resource being locked by another process.
var ErrWouldBlock = errors.New("file lock would block")

// lockRetryInterval is the delay between non-blocking lock attempts.
var lockRetryInterval = 10 * time.Millisecond

// lockWithContext retries acquireFileLock until it succeeds, fails with an
// error other than ErrWouldBlock, or ctx is done.
func lockWithContext(ctx context.Context, path string) (*os.File, error) {
	for {
		f, err := acquireFileLock(path)
		if err == nil {
			return f, nil
		}
		if f != nil {
			_ = f.Close()
		}
		if !errors.Is(err, ErrWouldBlock) {
			return nil, err
		}
		timer := time.NewTimer(lockRetryInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
}
