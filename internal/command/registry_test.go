package command

import (
	"bytes"
	"context"
	"errors"
	"flag"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testCommand struct {
	*BaseCommand
	verbose bool
	args    []string
	err     error
}

func newTestCommand(name string) *testCommand {
	return &testCommand{BaseCommand: NewBaseCommand(name, "Test command", name+" [options]")}
}

func (c *testCommand) SetupFlags(fs *flag.FlagSet) {
	fs.BoolVar(&c.verbose, "v", false, "verbose")
}

func (c *testCommand) Execute(_ context.Context, args []string, stdout, _ io.Writer) error {
	c.args = args
	_, _ = io.WriteString(stdout, "ran "+c.Name()+"\n")
	return c.err
}

func TestRegistry(t *testing.T) {
	t.Parallel()
	r := NewRegistry("osc")
	assert.Equal(t, "osc", r.Program())

	r.Register(newTestCommand("b"))
	r.Register(newTestCommand("a"))
	assert.Equal(t, []string{"a", "b"}, r.List())

	cmd, err := r.Get("a")
	require.NoError(t, err)
	assert.Equal(t, "a", cmd.Name())

	_, err = r.Get("missing")
	assert.EqualError(t, err, "command not found: missing")
}

func TestRegistry_RegisterReplaces(t *testing.T) {
	t.Parallel()
	r := NewRegistry("osc")
	first, second := newTestCommand("x"), newTestCommand("x")
	r.Register(first)
	r.Register(second)
	cmd, err := r.Get("x")
	require.NoError(t, err)
	assert.Same(t, second, cmd)
}

func TestRegistry_Run(t *testing.T) {
	t.Parallel()
	r := NewRegistry("osc")
	cmd := newTestCommand("test")
	r.Register(cmd)

	var stdout, stderr bytes.Buffer
	require.NoError(t, r.Run(t.Context(), []string{"test", "-v", "one", "two"}, &stdout, &stderr))
	assert.Equal(t, "ran test\n", stdout.String())
	assert.True(t, cmd.verbose)
	assert.Equal(t, []string{"one", "two"}, cmd.args)
}

func TestRegistry_RunPropagatesError(t *testing.T) {
	t.Parallel()
	r := NewRegistry("osc")
	cmd := newTestCommand("test")
	cmd.err = errors.New("boom")
	r.Register(cmd)

	err := r.Run(t.Context(), []string{"test"}, io.Discard, io.Discard)
	assert.EqualError(t, err, "boom")
}

func TestRegistry_RunUnknown(t *testing.T) {
	t.Parallel()
	r := NewRegistry("osc")
	var stderr bytes.Buffer
	err := r.Run(t.Context(), []string{"nope"}, io.Discard, &stderr)
	require.Error(t, err)
	assert.Contains(t, stderr.String(), "Unknown command: nope")
	assert.Contains(t, stderr.String(), "Use 'osc help'")
}

func TestRegistry_RunHelp(t *testing.T) {
	t.Parallel()
	r := NewRegistry("osc")
	r.Register(NewHelpCommand(r))
	r.Register(newTestCommand("test"))

	for _, args := range [][]string{nil, {"-h"}, {"--help"}} {
		var stdout bytes.Buffer
		require.NoError(t, r.Run(t.Context(), args, &stdout, io.Discard))
		assert.Contains(t, stdout.String(), "Usage: osc <command>")
		assert.Contains(t, stdout.String(), "test")
	}
}

func TestRegistry_RunFlagHelp(t *testing.T) {
	t.Parallel()
	r := NewRegistry("osc")
	r.Register(newTestCommand("test"))

	var stdout, stderr bytes.Buffer
	require.NoError(t, r.Run(t.Context(), []string{"test", "-h"}, &stdout, &stderr))
	assert.Empty(t, stdout.String())
	assert.Contains(t, stderr.String(), "Usage: osc test [options]")
	assert.Contains(t, stderr.String(), "-v")
}

func TestRegistry_RunBadFlag(t *testing.T) {
	t.Parallel()
	r := NewRegistry("osc")
	r.Register(newTestCommand("test"))
	err := r.Run(t.Context(), []string{"test", "--nope"}, io.Discard, io.Discard)
	assert.Error(t, err)
}
