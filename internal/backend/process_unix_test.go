//go:build !windows

package backend

import (
	"context"
	"testing"

	"github.com/joeycumines/one-shot-console/internal/outputlog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startProcess(t *testing.T, name string, args []string, opts ...ProcessOption) *Process {
	t.Helper()
	p, err := StartProcess(context.Background(), name, args, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close() })
	return p
}

func TestProcess_EchoesStdin(t *testing.T) {
	p := startProcess(t, "cat", nil)
	assert.True(t, p.IsRunning())
	assert.Positive(t, p.Pid())
	assert.Equal(t, -1, p.ExitCode())

	require.NoError(t, p.Send(context.Background(), "hello"))
	collectUntil(t, p, outputlog.Normal, "hello\n")
	require.NoError(t, p.Send(context.Background(), ""))
	require.NoError(t, p.Send(context.Background(), "world"))
	collectUntil(t, p, outputlog.Normal, "\nworld\n")
}

func TestProcess_Stderr(t *testing.T) {
	p := startProcess(t, "sh", []string{"-c", `while read -r line; do echo "err:$line" >&2; done`})
	require.NoError(t, p.Send(context.Background(), "x"))
	collectUntil(t, p, outputlog.Error, "err:x\n")
}

func TestProcess_ExitIsSticky(t *testing.T) {
	p := startProcess(t, "sh", []string{"-c", "read -r line; echo got:$line; exit 3"})
	require.NoError(t, p.Send(context.Background(), "a"))

	chunks := drain(t, p)
	waitDone(t, p)
	require.NotEmpty(t, chunks)
	assert.Equal(t, outputlog.Chunk{Text: "process exited with code 3\n", Type: outputlog.System}, chunks[len(chunks)-1])
	assert.Equal(t, 3, p.ExitCode())

	assert.ErrorIs(t, p.Send(context.Background(), "b"), ErrNotRunning)
	assert.False(t, p.IsRunning())
}

func TestProcess_Close(t *testing.T) {
	p, err := StartProcess(context.Background(), "sleep", []string{"60"})
	require.NoError(t, err)
	require.NoError(t, p.Close())
	require.NoError(t, p.Close())
	waitDone(t, p)
}

func TestProcess_PTY(t *testing.T) {
	p := startProcess(t, "cat", nil, WithPTY())
	require.NoError(t, p.Send(context.Background(), "via-pty"))
	collectUntil(t, p, outputlog.Normal, "via-pty")
}

func TestProcess_Env(t *testing.T) {
	p := startProcess(t, "sh", []string{"-c", `read -r _; echo "$OSC_TEST_VALUE"`}, WithEnv("OSC_TEST_VALUE=from-env"), WithDir(t.TempDir()))
	require.NoError(t, p.Send(context.Background(), "go"))
	collectUntil(t, p, outputlog.Normal, "from-env")
}

func TestStartProcess_Errors(t *testing.T) {
	_, err := StartProcess(context.Background(), " ", nil)
	assert.Error(t, err)
	_, err = StartProcess(context.Background(), "definitely-not-a-real-command-osc", nil)
	assert.Error(t, err)
}

func TestProcess_CloseInput(t *testing.T) {
	p := startProcess(t, "cat", nil)
	require.NoError(t, p.Send(context.Background(), "last"))
	require.NoError(t, p.CloseInput())

	chunks := drain(t, p)
	waitDone(t, p)
	var text string
	for _, c := range chunks {
		text += c.Text
	}
	assert.Equal(t, "last\nprocess exited\n", text)
	assert.Equal(t, 0, p.ExitCode())
}
