//go:build unix

package termtest

import (
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/joeycumines/go-prompt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTerminal_DrivesPrompt(t *testing.T) {
	term := New(t)

	var (
		mu    sync.Mutex
		lines []string
	)
	executor := func(line string) {
		mu.Lock()
		lines = append(lines, line)
		mu.Unlock()
	}
	p := prompt.New(executor,
		prompt.WithReader(term.Reader()),
		prompt.WithWriter(term.Writer()),
		prompt.WithPrefix("test> "),
		prompt.WithExitChecker(func(in string, breakline bool) bool {
			return breakline && strings.TrimSpace(in) == "quit"
		}),
	)
	done := make(chan struct{})
	go func() {
		defer close(done)
		p.Run()
	}()

	require.NoError(t, term.WaitFor(t.Context(), "test> ", 0))
	offset := term.Len()
	require.NoError(t, term.SendLine("hello"))
	require.NoError(t, term.WaitFor(t.Context(), "hello", offset))
	require.NoError(t, term.SendLine("quit"))

	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("prompt did not exit")
	}
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"hello", "quit"}, lines)
}

func TestTerminal_SendKeys(t *testing.T) {
	term := New(t)
	assert.NoError(t, term.SendKeys("enter"))
	assert.NoError(t, term.SendKeys("CTRL-D"))
	assert.EqualError(t, term.SendKeys("hyper"), "unknown key: hyper")
}

func TestTerminal_OutputStripsEscapes(t *testing.T) {
	term := New(t)
	_, err := term.TTY().WriteString("\x1b[1;31mred\x1b[0m plain")
	require.NoError(t, err)
	require.NoError(t, term.WaitFor(t.Context(), "red plain", 0))
	assert.NotContains(t, term.Output(), "\x1b")
	assert.Equal(t, "", term.OutputSince(term.Len()+10))
}

func TestTerminal_CloseIsBounded(t *testing.T) {
	term := New(t)
	require.NoError(t, term.Type("abc"))

	start := time.Now()
	_ = term.Close()
	assert.Less(t, time.Since(start), 2*closeTimeout)
	assert.NoError(t, term.Close())
	assert.Error(t, term.SendKeys("enter"))
}

func TestTerminal_TypeWaitsForEcho(t *testing.T) {
	term := New(t)
	// the slave side is still in cooked mode, so the line discipline echoes
	require.NoError(t, term.Type("xyz"))
	assert.Contains(t, term.Output(), "xyz")
}
