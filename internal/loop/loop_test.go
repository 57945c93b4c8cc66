package loop

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/dop251/goja"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newLoop(t *testing.T, opts ...Option) *Loop {
	t.Helper()
	l, err := New(context.Background(), opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })
	return l
}

func TestLoop_RunsInOrder(t *testing.T) {
	l := newLoop(t)

	var (
		mu  sync.Mutex
		got []int
	)
	for i := range 100 {
		require.True(t, l.Schedule(func() {
			mu.Lock()
			got = append(got, i)
			mu.Unlock()
		}))
	}
	require.NoError(t, l.RunSync(func() error { return nil }))

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, got, 100)
	for i, v := range got {
		assert.Equal(t, i, v)
	}
}

func TestLoop_RunSyncReturnsError(t *testing.T) {
	l := newLoop(t)
	boom := errors.New("boom")
	assert.ErrorIs(t, l.RunSync(func() error { return boom }), boom)
}

func TestLoop_RunVMSync(t *testing.T) {
	l := newLoop(t)
	var got int64
	err := l.RunVMSync(func(vm *goja.Runtime) error {
		v, err := vm.RunString("6 * 7")
		if err != nil {
			return err
		}
		got = v.ToInteger()
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, int64(42), got)
}

func TestLoop_OnLoopAndInlineSync(t *testing.T) {
	l := newLoop(t)
	assert.False(t, l.OnLoop())

	var onLoop, inner bool
	err := l.RunSync(func() error {
		onLoop = l.OnLoop()
		// would deadlock if not run inline
		return l.RunSync(func() error {
			inner = true
			return nil
		})
	})
	require.NoError(t, err)
	assert.True(t, onLoop)
	assert.True(t, inner)
}

func TestLoop_Timeout(t *testing.T) {
	l := newLoop(t, WithSyncTimeout(20*time.Millisecond))
	release := make(chan struct{})
	defer close(release)

	err := l.RunSync(func() error {
		<-release
		return nil
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "timed out")
}

func TestLoop_Close(t *testing.T) {
	l, err := New(context.Background())
	require.NoError(t, err)
	assert.True(t, l.IsRunning())

	require.NoError(t, l.Close())
	require.NoError(t, l.Close())
	assert.False(t, l.IsRunning())

	select {
	case <-l.Done():
	default:
		t.Fatal("Done not closed")
	}
	assert.False(t, l.Schedule(func() {}))
	assert.ErrorIs(t, l.RunSync(func() error { return nil }), ErrNotRunning)
}

func TestLoop_ContextCancelCloses(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	l, err := New(ctx)
	require.NoError(t, err)
	cancel()

	select {
	case <-l.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("loop not closed after context cancellation")
	}
}

func TestLoop_ScheduleNil(t *testing.T) {
	l := newLoop(t)
	assert.False(t, l.Schedule(nil))
}

func TestManual(t *testing.T) {
	var m Manual
	var got []string
	require.True(t, m.Schedule(func() {
		got = append(got, "a")
		m.Schedule(func() { got = append(got, "c") })
	}))
	require.True(t, m.Schedule(func() { got = append(got, "b") }))
	assert.False(t, m.Schedule(nil))
	assert.Equal(t, 2, m.Pending())
	assert.Empty(t, got)

	assert.Equal(t, 3, m.Drain())
	assert.Equal(t, []string{"a", "b", "c"}, got)
	assert.Zero(t, m.Drain())

	m.Schedule(func() { got = append(got, "dropped") })
	m.Close()
	assert.False(t, m.Schedule(func() {}))
	assert.Zero(t, m.Drain())
	assert.Len(t, got, 3)
}

func TestParseGoroutineID(t *testing.T) {
	assert.Equal(t, int64(123), parseGoroutineID([]byte("goroutine 123 [running]:\nmain.main()")))
	assert.Zero(t, parseGoroutineID([]byte("garbage")))
	assert.Zero(t, parseGoroutineID(nil))
	assert.Positive(t, goroutineID())
}
