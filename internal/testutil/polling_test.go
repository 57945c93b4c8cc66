package testutil

import (
	"context"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/joeycumines/one-shot-console/internal/loop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPoll_ConvertsToTrue(t *testing.T) {
	calls := 0
	err := Poll(context.Background(), func() bool {
		calls++
		return calls >= 3
	}, 5*time.Second, time.Millisecond)
	require.NoError(t, err)
	require.Equal(t, 3, calls)
}

func TestPoll_Timeout(t *testing.T) {
	err := Poll(context.Background(), func() bool { return false }, 20*time.Millisecond, time.Millisecond)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "timeout")
}

func TestPoll_ContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	called := make(chan struct{})
	go func() {
		<-called
		cancel()
	}()

	var once atomic.Bool
	err := Poll(ctx, func() bool {
		if once.CompareAndSwap(false, true) {
			close(called)
		}
		return false
	}, 5*time.Second, 10*time.Millisecond)
	require.ErrorIs(t, err, context.Canceled)
}

func TestWaitForState(t *testing.T) {
	var n atomic.Int64
	got, err := WaitForState(context.Background(), func() int64 { return n.Add(1) },
		func(v int64) bool { return v >= 4 }, 5*time.Second, time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, int64(4), got)

	s, err := WaitForState(context.Background(), func() string { return "waiting" },
		func(s string) bool { return s == "final" }, 20*time.Millisecond, time.Millisecond)
	require.Error(t, err)
	assert.Empty(t, s, "zero value on timeout")
}

func TestDrainUntil(t *testing.T) {
	var sched loop.Manual
	var sb strings.Builder
	go func() {
		for _, s := range []string{"a", "b", "c"} {
			sched.Schedule(func() { sb.WriteString(s) })
			time.Sleep(time.Millisecond)
		}
	}()
	require.NoError(t, DrainUntil(context.Background(), &sched, func() bool { return sb.String() == "abc" }, DefaultTimeout))
}

func TestNewTestPersistenceID(t *testing.T) {
	a := NewTestPersistenceID(t.Name() + "/sub")
	b := NewTestPersistenceID(t.Name() + "/sub")
	assert.NotEqual(t, a, b)
	assert.True(t, strings.HasPrefix(a, "TestNewTestPersistenceID-_-sub-"))
	assert.NotContains(t, a, "/")
}
