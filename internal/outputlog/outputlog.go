// Package outputlog implements the output log of a console session: an ordered
// sequence of content-classified chunks addressed by character offsets.
//
// Offsets count bytes of the concatenated chunk text. Mutations notify
// subscribers synchronously, in mutation order, after the log lock has been
// released. Listeners may read the log but must not mutate it.
package outputlog

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// ContentType classifies a chunk of output.
type ContentType int

const (
	Normal ContentType = iota
	System
	Error
	UserInput
)

// String implements fmt.Stringer.
func (c ContentType) String() string {
	switch c {
	case Normal:
		return "normal"
	case System:
		return "system"
	case Error:
		return "error"
	case UserInput:
		return "user-input"
	default:
		return fmt.Sprintf("ContentType(%d)", int(c))
	}
}

// Chunk is a piece of output text with its classification.
type Chunk struct {
	Text string
	Type ContentType
}

// ErrDisposed is returned by mutations on a disposed log.
var ErrDisposed = errors.New("output log disposed")

// EventKind identifies the mutation an Event describes.
type EventKind int

const (
	Appended EventKind = iota
	Truncated
	Cleared
	BulkStarted
	BulkFinished
	Disposed
)

func (k EventKind) String() string {
	switch k {
	case Appended:
		return "appended"
	case Truncated:
		return "truncated"
	case Cleared:
		return "cleared"
	case BulkStarted:
		return "bulk-started"
	case BulkFinished:
		return "bulk-finished"
	case Disposed:
		return "disposed"
	default:
		return fmt.Sprintf("EventKind(%d)", int(k))
	}
}

// Event describes one log mutation.
type Event struct {
	Kind EventKind
	// Offset is where the change starts.
	Offset int
	// OldLength and NewLength are the log lengths before and after.
	OldLength int
	NewLength int
	// Fragment is the inserted text for Appended and the removed text for
	// Truncated and Cleared.
	Fragment string
	// Chunk is set for Appended.
	Chunk Chunk
	// InBulk is true when the event happened inside a bulk update.
	InBulk bool
}

// Listener receives log events.
type Listener func(Event)

// Viewer is the read-only surface of a log.
type Viewer interface {
	Len() int
	Text() string
	Chunks() []Chunk
	LineCount() int
	LineOf(offset int) int
	LineStart(line int) int
	IsDisposed() bool
}

// Observable is a Viewer that can be subscribed to.
type Observable interface {
	Viewer
	Subscribe(l Listener) (unsubscribe func())
	InBulk() bool
}

type storedChunk struct {
	Chunk
	start int
}

// Log is the output log. The zero value is not usable; use New.
type Log struct {
	mu        sync.RWMutex
	chunks    []storedChunk
	length    int
	newlines  []int // offsets of every '\n', ascending
	listeners []listenerEntry
	nextID    int
	bulk      int
	disposed  bool

	// notifyMu serializes listener delivery so events are seen in mutation order.
	notifyMu sync.Mutex
}

type listenerEntry struct {
	id int
	fn Listener
}

// New returns an empty log.
func New() *Log {
	return &Log{}
}

// Subscribe registers l and returns a function that removes it.
func (l *Log) Subscribe(fn Listener) func() {
	if fn == nil {
		return func() {}
	}
	l.mu.Lock()
	id := l.nextID
	l.nextID++
	l.listeners = append(l.listeners, listenerEntry{id: id, fn: fn})
	l.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			defer l.mu.Unlock()
			for i, e := range l.listeners {
				if e.id == id {
					l.listeners = append(l.listeners[:i:i], l.listeners[i+1:]...)
					return
				}
			}
		})
	}
}

// Append adds c to the end of the log. Empty chunks are ignored.
func (l *Log) Append(c Chunk) error {
	l.notifyMu.Lock()
	defer l.notifyMu.Unlock()

	l.mu.Lock()
	if l.disposed {
		l.mu.Unlock()
		return ErrDisposed
	}
	if c.Text == "" {
		l.mu.Unlock()
		return nil
	}
	old := l.length
	l.chunks = append(l.chunks, storedChunk{Chunk: c, start: old})
	for i := 0; i < len(c.Text); i++ {
		if c.Text[i] == '\n' {
			l.newlines = append(l.newlines, old+i)
		}
	}
	l.length += len(c.Text)
	ev := Event{
		Kind:      Appended,
		Offset:    old,
		OldLength: old,
		NewLength: l.length,
		Fragment:  c.Text,
		Chunk:     c,
		InBulk:    l.bulk > 0,
	}
	listeners := l.listenersLocked()
	l.mu.Unlock()

	notify(listeners, ev)
	return nil
}

// Truncate shortens the log to n bytes. Truncating to zero is a Clear.
// Values of n at or beyond the current length are a no-op.
func (l *Log) Truncate(n int) error {
	if n <= 0 {
		return l.Clear()
	}

	l.notifyMu.Lock()
	defer l.notifyMu.Unlock()

	l.mu.Lock()
	if l.disposed {
		l.mu.Unlock()
		return ErrDisposed
	}
	if n >= l.length {
		l.mu.Unlock()
		return nil
	}
	old := l.length
	removed := l.textLocked()[n:]

	// chunks are sorted by start; keep those starting before n, cutting the last
	idx := sort.Search(len(l.chunks), func(i int) bool { return l.chunks[i].start >= n })
	l.chunks = l.chunks[:idx]
	if idx > 0 {
		last := &l.chunks[idx-1]
		if end := last.start + len(last.Text); end > n {
			last.Text = last.Text[:n-last.start]
		}
	}
	nl := sort.SearchInts(l.newlines, n)
	l.newlines = l.newlines[:nl]
	l.length = n

	ev := Event{
		Kind:      Truncated,
		Offset:    n,
		OldLength: old,
		NewLength: n,
		Fragment:  removed,
		InBulk:    l.bulk > 0,
	}
	listeners := l.listenersLocked()
	l.mu.Unlock()

	notify(listeners, ev)
	return nil
}

// Clear empties the log. Clearing an empty log is a no-op.
func (l *Log) Clear() error {
	l.notifyMu.Lock()
	defer l.notifyMu.Unlock()

	l.mu.Lock()
	if l.disposed {
		l.mu.Unlock()
		return ErrDisposed
	}
	if l.length == 0 {
		l.mu.Unlock()
		return nil
	}
	old := l.length
	removed := l.textLocked()
	l.chunks = nil
	l.newlines = nil
	l.length = 0
	ev := Event{
		Kind:      Cleared,
		OldLength: old,
		Fragment:  removed,
		InBulk:    l.bulk > 0,
	}
	listeners := l.listenersLocked()
	l.mu.Unlock()

	notify(listeners, ev)
	return nil
}

// BeginBulk starts a bulk update. Bulk updates nest; only the outermost
// Begin/End pair emits BulkStarted/BulkFinished.
func (l *Log) BeginBulk() error {
	return l.bulkEdge(+1)
}

// EndBulk ends a bulk update started by BeginBulk.
func (l *Log) EndBulk() error {
	return l.bulkEdge(-1)
}

func (l *Log) bulkEdge(delta int) error {
	l.notifyMu.Lock()
	defer l.notifyMu.Unlock()

	l.mu.Lock()
	if l.disposed {
		l.mu.Unlock()
		return ErrDisposed
	}
	if delta < 0 && l.bulk == 0 {
		l.mu.Unlock()
		return errors.New("EndBulk without matching BeginBulk")
	}
	l.bulk += delta
	var ev Event
	switch {
	case delta > 0 && l.bulk == 1:
		ev.Kind = BulkStarted
	case delta < 0 && l.bulk == 0:
		ev.Kind = BulkFinished
	default:
		l.mu.Unlock()
		return nil
	}
	ev.OldLength, ev.NewLength = l.length, l.length
	listeners := l.listenersLocked()
	l.mu.Unlock()

	notify(listeners, ev)
	return nil
}

// Dispose releases the log. Listeners receive a final Disposed event and are
// then dropped; later mutations fail with ErrDisposed.
func (l *Log) Dispose() {
	l.notifyMu.Lock()
	defer l.notifyMu.Unlock()

	l.mu.Lock()
	if l.disposed {
		l.mu.Unlock()
		return
	}
	l.disposed = true
	listeners := l.listenersLocked()
	l.listeners = nil
	ev := Event{Kind: Disposed, OldLength: l.length, NewLength: l.length}
	l.mu.Unlock()

	notify(listeners, ev)
}

// IsDisposed reports whether Dispose has been called.
func (l *Log) IsDisposed() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.disposed
}

// InBulk reports whether a bulk update is in progress.
func (l *Log) InBulk() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.bulk > 0
}

// Len returns the log length in bytes.
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.length
}

// Text returns the full log text.
func (l *Log) Text() string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.textLocked()
}

// Chunks returns a copy of the chunks in order.
func (l *Log) Chunks() []Chunk {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Chunk, len(l.chunks))
	for i, c := range l.chunks {
		out[i] = c.Chunk
	}
	return out
}

// LineCount returns the number of logical lines. An empty log has one line,
// and a trailing newline starts a new (empty) line.
func (l *Log) LineCount() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.newlines) + 1
}

// LineOf returns the zero-based line containing offset. Offsets are clamped
// to [0, Len()].
func (l *Log) LineOf(offset int) int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	offset = max(0, min(offset, l.length))
	return sort.SearchInts(l.newlines, offset)
}

// LineStart returns the offset at which line begins. Lines are clamped to
// [0, LineCount()-1].
func (l *Log) LineStart(line int) int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if line <= 0 {
		return 0
	}
	if line > len(l.newlines) {
		line = len(l.newlines)
	}
	return l.newlines[line-1] + 1
}

func (l *Log) textLocked() string {
	var sb strings.Builder
	sb.Grow(l.length)
	for _, c := range l.chunks {
		sb.WriteString(c.Text)
	}
	return sb.String()
}

func (l *Log) listenersLocked() []Listener {
	out := make([]Listener, len(l.listeners))
	for i, e := range l.listeners {
		out[i] = e.fn
	}
	return out
}

func notify(listeners []Listener, ev Event) {
	for _, fn := range listeners {
		fn(ev)
	}
}

var _ Observable = (*Log)(nil)
