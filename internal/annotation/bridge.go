// Package annotation keeps per-line gutter metadata consistent with an output
// log as the log grows, shrinks, or is cleared.
//
// A Bridge observes an outputlog.Observable and never mutates it. Log events
// are handled synchronously, in the order they are delivered: truncation and
// clearing prune stale ranges immediately, and every mutation requests a
// recompute pass. Recompute passes are scheduled onto a loop.Scheduler and
// coalesced, so a burst of mutations before the scheduled task runs results
// in exactly one pass.
package annotation

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/joeycumines/one-shot-console/internal/loop"
	"github.com/joeycumines/one-shot-console/internal/outputlog"
)

// ErrInvalidRange is returned by AddRange for empty, out of bounds, or
// overlapping ranges.
var ErrInvalidRange = errors.New("invalid annotation range")

// Annotation is the opaque payload of a Range.
type Annotation struct {
	Icon    string
	Tooltip string
	Flag    int
}

// Range maps the log span [Start, End) to an Annotation.
type Range struct {
	Start, End int
	Annotation Annotation
}

// Contains reports whether pos lies within the range.
func (r Range) Contains(pos int) bool { return pos >= r.Start && pos < r.End }

// Provider is the content source for a Bridge.
type Provider interface {
	// BeforeEvaluate is called before a submission is echoed to the log.
	BeforeEvaluate(v outputlog.Viewer)
	// DocumentCleared is called once per transition from non-empty to empty.
	DocumentCleared(v outputlog.Viewer)
	// IsShowSeparatorLine reports whether a separator should be drawn before line.
	IsShowSeparatorLine(line int, v outputlog.Viewer) bool
}

// ChunkAnnotator is an optional Provider capability used by recompute passes
// to create ranges for newly appended chunks.
type ChunkAnnotator interface {
	AnnotateChunk(c outputlog.Chunk, start, end int) (Annotation, bool)
}

// RecomputeListener is an optional Provider capability notified after each
// recompute pass, e.g. to resize a gutter.
type RecomputeListener interface {
	GutterRecomputed(v outputlog.Viewer)
}

// State is the recompute state of a Bridge.
type State int

const (
	Idle State = iota
	PendingRecompute
	Disposed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case PendingRecompute:
		return "pending-recompute"
	case Disposed:
		return "disposed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Bridge synchronizes annotation ranges with an output log.
type Bridge struct {
	log       outputlog.Observable
	provider  Provider
	scheduler loop.Scheduler
	logger    *slog.Logger

	mu          sync.Mutex
	ranges      []Range // sorted by Start, non-overlapping
	annotatedTo int     // chunks starting before this offset have been annotated
	pending     bool
	generation  uint64
	recomputes  int
	disposed    bool
	unsubscribe func()

	inBulk        bool
	bulkStartLen  int
	bulkMinLength int
}

// Option configures a Bridge.
type Option func(*Bridge)

// WithLogger sets the bridge logger.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Bridge) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// NewBridge subscribes a bridge to log. The provider and scheduler are required.
func NewBridge(log outputlog.Observable, provider Provider, scheduler loop.Scheduler, opts ...Option) (*Bridge, error) {
	switch {
	case log == nil:
		return nil, errors.New("annotation bridge: nil log")
	case provider == nil:
		return nil, errors.New("annotation bridge: nil provider")
	case scheduler == nil:
		return nil, errors.New("annotation bridge: nil scheduler")
	}
	b := &Bridge{
		log:       log,
		provider:  provider,
		scheduler: scheduler,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}
	if log.IsDisposed() {
		b.disposed = true
		return b, nil
	}

	b.mu.Lock()
	if log.InBulk() {
		b.inBulk = true
		b.bulkStartLen = log.Len()
		b.bulkMinLength = b.bulkStartLen
	}
	b.unsubscribe = log.Subscribe(b.handle)
	if !b.inBulk && log.Len() > 0 {
		b.scheduleLocked()
	}
	b.mu.Unlock()

	return b, nil
}

// handle processes one log event. It runs on the mutating goroutine.
func (b *Bridge) handle(ev outputlog.Event) {
	b.mu.Lock()
	if b.disposed {
		b.mu.Unlock()
		return
	}

	if ev.Kind == outputlog.Disposed {
		b.disposeLocked()
		b.mu.Unlock()
		return
	}

	if b.inBulk {
		switch ev.Kind {
		case outputlog.Truncated, outputlog.Cleared:
			b.bulkMinLength = min(b.bulkMinLength, ev.NewLength)
		case outputlog.BulkFinished:
			b.inBulk = false
			b.finishBulkLocked(ev.NewLength)
			return
		}
		b.mu.Unlock()
		return
	}

	switch ev.Kind {
	case outputlog.Appended:
		b.scheduleLocked()
	case outputlog.Truncated:
		b.pruneLocked(ev.NewLength)
		b.scheduleLocked()
	case outputlog.Cleared:
		b.clearLocked()
		return
	case outputlog.BulkStarted:
		b.inBulk = true
		b.bulkStartLen = ev.OldLength
		b.bulkMinLength = ev.OldLength
	}
	b.mu.Unlock()
}

// finishBulkLocked unlocks b.mu.
func (b *Bridge) finishBulkLocked(newLength int) {
	if b.bulkMinLength == 0 && b.bulkStartLen > 0 {
		b.clearLocked()
		if newLength == 0 {
			return
		}
		b.mu.Lock()
		if b.disposed {
			b.mu.Unlock()
			return
		}
	} else {
		b.pruneLocked(b.bulkMinLength)
	}
	if newLength > 0 {
		b.scheduleLocked()
	}
	b.mu.Unlock()
}

// clearLocked drops all state, cancels any pending recompute and notifies the
// provider. It unlocks b.mu before calling out.
func (b *Bridge) clearLocked() {
	b.ranges = nil
	b.annotatedTo = 0
	b.cancelLocked()
	b.mu.Unlock()

	b.provider.DocumentCleared(b.log)
}

func (b *Bridge) pruneLocked(length int) {
	kept := b.ranges[:0]
	for _, r := range b.ranges {
		if r.End <= length {
			kept = append(kept, r)
		}
	}
	clear(b.ranges[len(kept):])
	b.ranges = kept
	b.annotatedTo = min(b.annotatedTo, length)
}

func (b *Bridge) cancelLocked() {
	b.pending = false
	b.generation++
}

func (b *Bridge) scheduleLocked() {
	if b.pending {
		return
	}
	b.pending = true
	gen := b.generation
	if !b.scheduler.Schedule(func() { b.recompute(gen) }) {
		b.pending = false
		b.logger.Debug("annotation recompute not scheduled: scheduler closed")
	}
}

func (b *Bridge) recompute(gen uint64) {
	b.mu.Lock()
	if b.disposed || !b.pending || gen != b.generation {
		b.mu.Unlock()
		return
	}
	b.pending = false
	b.recomputes++

	length := b.log.Len()
	b.pruneLocked(length)
	if annotator, ok := b.provider.(ChunkAnnotator); ok {
		var offset int
		for _, c := range b.log.Chunks() {
			start, end := offset, offset+len(c.Text)
			offset = end
			if end > length {
				break
			}
			if start < b.annotatedTo {
				continue
			}
			if a, ok := annotator.AnnotateChunk(c, start, end); ok {
				if err := b.insertLocked(Range{Start: start, End: end, Annotation: a}, length); err != nil {
					b.logger.Debug("skipping chunk annotation", "start", start, "end", end, "error", err)
				}
			}
		}
	}
	b.annotatedTo = length
	b.mu.Unlock()

	if l, ok := b.provider.(RecomputeListener); ok {
		l.GutterRecomputed(b.log)
	}
}

func (b *Bridge) insertLocked(r Range, length int) error {
	if r.Start < 0 || r.Start >= r.End || r.End > length {
		return fmt.Errorf("%w: [%d, %d) with log length %d", ErrInvalidRange, r.Start, r.End, length)
	}
	i := sort.Search(len(b.ranges), func(i int) bool { return b.ranges[i].Start >= r.Start })
	if i > 0 && b.ranges[i-1].End > r.Start {
		return fmt.Errorf("%w: [%d, %d) overlaps [%d, %d)", ErrInvalidRange, r.Start, r.End, b.ranges[i-1].Start, b.ranges[i-1].End)
	}
	if i < len(b.ranges) && b.ranges[i].Start < r.End {
		return fmt.Errorf("%w: [%d, %d) overlaps [%d, %d)", ErrInvalidRange, r.Start, r.End, b.ranges[i].Start, b.ranges[i].End)
	}
	b.ranges = append(b.ranges, Range{})
	copy(b.ranges[i+1:], b.ranges[i:])
	b.ranges[i] = r
	return nil
}

// AddRange annotates [start, end) directly.
func (b *Bridge) AddRange(start, end int, a Annotation) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.disposed {
		return nil
	}
	length := b.log.Len()
	b.pruneLocked(length)
	return b.insertLocked(Range{Start: start, End: end, Annotation: a}, length)
}

// AnnotationAt returns the annotation covering pos.
func (b *Bridge) AnnotationAt(pos int) (Annotation, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.disposed {
		return Annotation{}, false
	}
	b.pruneLocked(b.log.Len())
	i := sort.Search(len(b.ranges), func(i int) bool { return b.ranges[i].End > pos })
	if i < len(b.ranges) && b.ranges[i].Contains(pos) {
		return b.ranges[i].Annotation, true
	}
	return Annotation{}, false
}

// Ranges returns a copy of the current ranges, ordered by Start.
func (b *Bridge) Ranges() []Range {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.disposed {
		return nil
	}
	b.pruneLocked(b.log.Len())
	return append([]Range(nil), b.ranges...)
}

// ShouldDrawSeparator reports whether a separator belongs before line.
func (b *Bridge) ShouldDrawSeparator(line int) bool {
	if b.isDisposed() || line < 0 || line >= b.log.LineCount() {
		return false
	}
	return b.provider.IsShowSeparatorLine(line, b.log)
}

// BeforeEvaluate forwards to the provider.
func (b *Bridge) BeforeEvaluate() {
	if b.isDisposed() {
		return
	}
	b.provider.BeforeEvaluate(b.log)
}

// RecomputeCount returns the number of recompute passes run so far.
func (b *Bridge) RecomputeCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.recomputes
}

// State returns the current recompute state.
func (b *Bridge) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch {
	case b.disposed:
		return Disposed
	case b.pending:
		return PendingRecompute
	default:
		return Idle
	}
}

// Dispose detaches the bridge from the log and cancels any pending recompute.
// No provider callbacks fire afterwards.
func (b *Bridge) Dispose() {
	b.mu.Lock()
	unsubscribe := b.unsubscribe
	b.disposeLocked()
	b.mu.Unlock()
	if unsubscribe != nil {
		unsubscribe()
	}
}

func (b *Bridge) disposeLocked() {
	if b.disposed {
		return
	}
	b.disposed = true
	b.cancelLocked()
	b.ranges = nil
	b.unsubscribe = nil
}

func (b *Bridge) isDisposed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.disposed
}
