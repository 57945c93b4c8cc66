//go:build unix

// Package termtest drives go-prompt based code through a pseudo-terminal, so
// that interactive behavior can be tested in-process.
package termtest

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/x/ansi"
	"github.com/creack/pty"
	"github.com/joeycumines/go-prompt"
	"github.com/joeycumines/one-shot-console/internal/testutil"
)

// Size of the emulated terminal.
const (
	Rows = 24
	Cols = 80
)

// KeyDelay is the pause between typed runes.
var KeyDelay = 5 * time.Millisecond

// EchoTimeout bounds how long a keystroke waits for the program to respond.
var EchoTimeout = 500 * time.Millisecond

// closeTimeout bounds how long Close waits for the recorder to stop. A read
// blocked on a master that does not support deadlines may never return.
const closeTimeout = time.Second

var keys = map[string]string{
	"ctrl-c":    "\x03",
	"ctrl-d":    "\x04",
	"ctrl-l":    "\x0c",
	"escape":    "\x1b",
	"tab":       "\t",
	"enter":     "\n",
	"backspace": "\x7f",
	"up":        "\x1b[A",
	"down":      "\x1b[B",
	"right":     "\x1b[C",
	"left":      "\x1b[D",
}

// Terminal is a pty pair. The program under test reads and writes the
// slave side; the test types into, and records, the master side.
type Terminal struct {
	ptm, pts *os.File

	mu     sync.Mutex
	output bytes.Buffer

	done      chan struct{}
	closeOnce sync.Once
}

// New opens a Terminal that is closed when t finishes.
func New(t testing.TB) *Terminal {
	t.Helper()
	ptm, pts, err := pty.Open()
	if err != nil {
		t.Skipf("pty unavailable: %v", err)
	}
	_ = pty.Setsize(ptm, &pty.Winsize{Rows: Rows, Cols: Cols})
	tt := &Terminal{ptm: ptm, pts: pts, done: make(chan struct{})}
	go tt.record()
	t.Cleanup(func() { _ = tt.Close() })
	return tt
}

func (t *Terminal) record() {
	defer close(t.done)
	buf := make([]byte, 4096)
	for {
		n, err := t.ptm.Read(buf)
		if n > 0 {
			t.mu.Lock()
			t.output.Write(buf[:n])
			t.mu.Unlock()
		}
		if err != nil {
			return
		}
	}
}

// TTY returns the slave side.
func (t *Terminal) TTY() *os.File { return t.pts }

// Reader returns a prompt.Reader on the slave side.
func (t *Terminal) Reader() prompt.Reader { return &reader{file: t.pts} }

// Writer returns a prompt.Writer on the slave side.
func (t *Terminal) Writer() prompt.Writer { return &writer{file: t.pts} }

// Type writes s to the terminal one rune at a time. Each rune waits for the
// program to write something back, so that consecutive keys are not read as
// a single chunk.
func (t *Terminal) Type(s string) error {
	for _, r := range s {
		if err := t.press(string(r)); err != nil {
			return err
		}
	}
	return nil
}

func (t *Terminal) press(seq string) error {
	n := t.Len()
	if _, err := t.ptm.WriteString(seq); err != nil {
		return fmt.Errorf("failed to write input: %w", err)
	}
	_ = testutil.Poll(context.Background(), func() bool { return t.Len() > n }, EchoTimeout, time.Millisecond)
	time.Sleep(KeyDelay)
	return nil
}

// SendLine types s followed by Enter.
func (t *Terminal) SendLine(s string) error {
	if err := t.Type(s); err != nil {
		return err
	}
	return t.SendKeys("enter")
}

// SendKeys sends a named key, such as "enter" or "ctrl-d".
func (t *Terminal) SendKeys(name string) error {
	seq, ok := keys[strings.ToLower(name)]
	if !ok {
		return fmt.Errorf("unknown key: %s", name)
	}
	return t.press(seq)
}

// Len returns the number of raw bytes recorded so far.
func (t *Terminal) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.output.Len()
}

// Output returns everything the program wrote, with escape sequences removed.
func (t *Terminal) Output() string { return t.OutputSince(0) }

// OutputSince is Output starting at a raw offset returned by Len.
func (t *Terminal) OutputSince(offset int) string {
	t.mu.Lock()
	defer t.mu.Unlock()
	b := t.output.Bytes()
	if offset > len(b) {
		offset = len(b)
	}
	return ansi.Strip(string(b[offset:]))
}

// WaitFor waits until text appears in the output after offset.
func (t *Terminal) WaitFor(ctx context.Context, text string, offset int) error {
	err := testutil.Poll(ctx, func() bool {
		return strings.Contains(t.OutputSince(offset), text)
	}, testutil.DefaultTimeout, testutil.DefaultInterval)
	if err != nil {
		return fmt.Errorf("%q not found in output %q: %w", text, t.OutputSince(offset), err)
	}
	return nil
}

// Close closes both sides of the pty, waiting at most closeTimeout for the
// recorder to stop.
func (t *Terminal) Close() error {
	var err error
	t.closeOnce.Do(func() {
		err = t.pts.Close()
		if cerr := t.ptm.Close(); err == nil {
			err = cerr
		}
		select {
		case <-t.done:
		case <-time.After(closeTimeout):
		}
	})
	return err
}
