package backend

import (
	"context"
	"testing"
	"time"

	"github.com/dop251/goja"
	gojarequire "github.com/dop251/goja_nodejs/require"
	"github.com/joeycumines/one-shot-console/internal/loop"
	"github.com/joeycumines/one-shot-console/internal/outputlog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newScript(t *testing.T, opts ...ScriptOption) *Script {
	t.Helper()
	s, err := NewScript(context.Background(), opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestScript_Output(t *testing.T) {
	s := newScript(t)
	ctx := context.Background()
	assert.True(t, s.IsRunning())

	require.NoError(t, s.Send(ctx, "print('hi', 1)"))
	assert.Equal(t, []outputlog.Chunk{{Text: "hi 1\n", Type: outputlog.Normal}}, collectUntil(t, s, outputlog.Normal, "hi 1\n"))

	require.NoError(t, s.Send(ctx, "1 + 2"))
	assert.Equal(t, []outputlog.Chunk{{Text: "3\n", Type: outputlog.Normal}}, collectUntil(t, s, outputlog.Normal, "3\n"))

	require.NoError(t, s.Send(ctx, "console.error('bad')"))
	assert.Equal(t, []outputlog.Chunk{{Text: "bad\n", Type: outputlog.Error}}, collectUntil(t, s, outputlog.Error, "bad\n"))

	require.NoError(t, s.Send(ctx, "throw new Error('kaput')"))
	chunks := collectUntil(t, s, outputlog.Error, "kaput")
	require.Len(t, chunks, 1)

	// state persists across submissions and undefined results are not echoed
	require.NoError(t, s.Send(ctx, "var a = 40"))
	require.NoError(t, s.Send(ctx, ""))
	require.NoError(t, s.Send(ctx, "a + 2"))
	assert.Equal(t, []outputlog.Chunk{{Text: "42\n", Type: outputlog.Normal}}, collectUntil(t, s, outputlog.Normal, "42"))

	require.NoError(t, s.Send(ctx, "syntax error here ("))
	collectUntil(t, s, outputlog.Error, "SyntaxError")
}

func TestScript_Exit(t *testing.T) {
	s := newScript(t)
	require.NoError(t, s.Send(context.Background(), "print('before'); exit(3); print('after')"))

	chunks := drain(t, s)
	waitDone(t, s)
	assert.Equal(t, []outputlog.Chunk{
		{Text: "before\n", Type: outputlog.Normal},
		{Text: "exited with code 3\n", Type: outputlog.System},
	}, chunks)
	assert.Equal(t, 3, s.ExitCode())
	assert.ErrorIs(t, s.Send(context.Background(), "1"), ErrNotRunning)
	assert.False(t, s.IsRunning())
}

func TestScript_CloseInterruptsRunningScript(t *testing.T) {
	s, err := NewScript(context.Background())
	require.NoError(t, err)
	require.NoError(t, s.Send(context.Background(), "while (true) {}"))
	require.NoError(t, s.Send(context.Background(), "print('never')"))
	time.Sleep(10 * time.Millisecond)

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
	waitDone(t, s)
	assert.Empty(t, drain(t, s))
	assert.False(t, s.Loop().IsRunning())
}

func TestScript_SharedLoop(t *testing.T) {
	l, err := loop.New(context.Background())
	require.NoError(t, err)
	defer l.Close()

	s, err := NewScript(context.Background(), WithLoop(l))
	require.NoError(t, err)
	require.NoError(t, s.Send(context.Background(), "7 * 6"))
	collectUntil(t, s, outputlog.Normal, "42")

	require.NoError(t, s.Close())
	assert.True(t, l.IsRunning())
	assert.NoError(t, l.RunSync(func() error { return nil }))
}

func TestScript_LoopClosedTerminates(t *testing.T) {
	l, err := loop.New(context.Background())
	require.NoError(t, err)
	s, err := NewScript(context.Background(), WithLoop(l))
	require.NoError(t, err)

	require.NoError(t, l.Close())
	assert.False(t, s.IsRunning())
	assert.ErrorIs(t, s.Send(context.Background(), "1"), ErrNotRunning)
	require.NoError(t, s.Close())
	waitDone(t, s)
}

func TestScript_ContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	s, err := NewScript(ctx)
	require.NoError(t, err)
	cancel()
	waitDone(t, s)

	sendCtx, sendCancel := context.WithCancel(context.Background())
	sendCancel()
	assert.ErrorIs(t, s.Send(sendCtx, "1"), context.Canceled)
}

func TestScript_CloseInputFinishesQueuedWork(t *testing.T) {
	s := newScript(t)
	ctx := context.Background()
	require.NoError(t, s.Send(ctx, "print('a')"))
	require.NoError(t, s.Send(ctx, "print('b')"))
	require.NoError(t, s.CloseInput())

	assert.Equal(t, []outputlog.Chunk{
		{Text: "a\n", Type: outputlog.Normal},
		{Text: "b\n", Type: outputlog.Normal},
	}, drain(t, s))
	waitDone(t, s)
	assert.ErrorIs(t, s.Send(ctx, "1"), ErrNotRunning)
}

func TestScript_Registry(t *testing.T) {
	registry := gojarequire.NewRegistry()
	registry.RegisterNativeModule("test:greet", func(runtime *goja.Runtime, module *goja.Object) {
		_ = module.Get("exports").(*goja.Object).Set("hello", func(name string) string { return "hello " + name })
	})
	s := newScript(t, WithRegistry(registry))

	require.NoError(t, s.Send(context.Background(), "require('test:greet').hello('osc')"))
	assert.Equal(t, []outputlog.Chunk{{Text: "hello osc\n", Type: outputlog.Normal}}, collectUntil(t, s, outputlog.Normal, "hello osc"))
}

func TestScript_SinkReceivesOutputOnLoop(t *testing.T) {
	s := newScript(t)
	var (
		got    []outputlog.Chunk
		onLoop = true
	)
	s.SetSink(func(c outputlog.Chunk) {
		onLoop = onLoop && s.Loop().OnLoop()
		got = append(got, c)
	})

	ctx := context.Background()
	require.NoError(t, s.Send(ctx, "print('a')"))
	require.NoError(t, s.Send(ctx, "exit(2)"))

	// the channel carries nothing and is closed once the backend stops
	assert.Empty(t, drain(t, s))
	waitDone(t, s)
	require.NoError(t, s.Loop().RunSync(func() error {
		assert.Equal(t, []outputlog.Chunk{
			{Text: "a\n", Type: outputlog.Normal},
			{Text: "exited with code 2\n", Type: outputlog.System},
		}, got)
		assert.True(t, onLoop)
		return nil
	}))
}
