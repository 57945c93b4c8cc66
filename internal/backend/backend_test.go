package backend

import (
	"strings"
	"testing"
	"time"

	"github.com/joeycumines/one-shot-console/internal/outputlog"
	"github.com/stretchr/testify/require"
)

const waitTimeout = 10 * time.Second

// collectUntil reads chunks from b until the concatenated text of chunks of
// type typ contains want.
func collectUntil(t *testing.T, b Backend, typ outputlog.ContentType, want string) []outputlog.Chunk {
	t.Helper()
	var (
		chunks []outputlog.Chunk
		sb     strings.Builder
	)
	timeout := time.After(waitTimeout)
	for {
		select {
		case c, ok := <-b.Output():
			if !ok {
				t.Fatalf("output closed before %q was seen; got %q", want, sb.String())
			}
			chunks = append(chunks, c)
			if c.Type == typ {
				sb.WriteString(c.Text)
				if strings.Contains(sb.String(), want) {
					return chunks
				}
			}
		case <-timeout:
			t.Fatalf("timed out waiting for %q; got %q", want, sb.String())
		}
	}
}

// drain reads chunks until the output channel is closed.
func drain(t *testing.T, b Backend) []outputlog.Chunk {
	t.Helper()
	var chunks []outputlog.Chunk
	timeout := time.After(waitTimeout)
	for {
		select {
		case c, ok := <-b.Output():
			if !ok {
				return chunks
			}
			chunks = append(chunks, c)
		case <-timeout:
			t.Fatal("timed out waiting for output to close")
		}
	}
}

func waitDone(t *testing.T, b Backend) {
	t.Helper()
	select {
	case <-b.Done():
	case <-time.After(waitTimeout):
		t.Fatal("backend did not terminate")
	}
	require.False(t, b.IsRunning())
}
