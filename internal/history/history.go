// Package history records the inputs submitted to a console session.
//
// A Store is append-only for the life of a session. It can be seeded from and
// flushed to a storage.Backend under a storage.Key. Persist appends the
// entries not yet flushed to whatever the key holds at that moment, so stores
// sharing a key never overwrite each other. Truncation to a maximum size only
// ever happens on Persist, drops the oldest entries first, and is reported
// back to the caller.
package history

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"sync"
	"time"

	"github.com/joeycumines/one-shot-console/internal/storage"
)

// ErrStorageUnavailable matches any error returned when a history could not be
// loaded from or persisted to its backend.
var ErrStorageUnavailable = errors.New("history storage unavailable")

// StorageUnavailableError reports a failed load or persist.
type StorageUnavailableError struct {
	Op  string // "load" or "persist"
	Key storage.Key
	Err error
}

func (e *StorageUnavailableError) Error() string {
	return fmt.Sprintf("history %s %q: %v", e.Op, e.Key.ID(), e.Err)
}

func (e *StorageUnavailableError) Unwrap() error { return e.Err }

// Is reports ErrStorageUnavailable as a match.
func (e *StorageUnavailableError) Is(target error) bool { return target == ErrStorageUnavailable }

// Key is the storage identity of a history.
type Key = storage.Key

// Entry is an immutable record of one submitted input.
type Entry struct {
	Seq  uint64
	Text string
	Time time.Time
}

// PersistResult describes what a Persist call wrote.
type PersistResult struct {
	Written int // entries stored under the key afterwards
	Dropped int // oldest entries removed by this call
}

// Store holds the ordered history of one session.
type Store struct {
	mu         sync.RWMutex
	entries    []Entry
	nextSeq    uint64
	maxEntries int
	dropped    int
	logger     *slog.Logger
	now        func() time.Time

	// flushed is how many leading entries are already in storage, either
	// loaded from it or written by a previous Persist.
	flushed   int
	persistMu sync.Mutex
}

// Option configures a Store.
type Option func(*Store)

// WithMaxEntries bounds the persisted history. Zero or negative means unbounded.
func WithMaxEntries(n int) Option {
	return func(s *Store) { s.maxEntries = n }
}

// WithLogger sets the logger used to report truncation.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithClock overrides the entry timestamp source.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// NewStore returns an empty Store.
func NewStore(opts ...Option) *Store {
	s := &Store{
		nextSeq: 1,
		logger:  slog.Default(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Append records text as the newest entry and returns it.
func (s *Store) Append(text string) Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := Entry{Seq: s.nextSeq, Text: text, Time: s.now()}
	s.nextSeq++
	s.entries = append(s.entries, e)
	return e
}

// Entries returns the entries in insertion order. The sequence iterates over a
// snapshot taken when iteration starts, so it can be ranged over repeatedly and
// is unaffected by concurrent appends.
func (s *Store) Entries() iter.Seq[Entry] {
	return func(yield func(Entry) bool) {
		for _, e := range s.snapshot() {
			if !yield(e) {
				return
			}
		}
	}
}

// Texts returns the entry texts in insertion order.
func (s *Store) Texts() []string {
	snap := s.snapshot()
	out := make([]string, len(snap))
	for i, e := range snap {
		out[i] = e.Text
	}
	return out
}

// Len returns the number of entries.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Dropped returns the total number of entries removed by truncation for the
// key this store was last loaded from or persisted to.
func (s *Store) Dropped() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dropped
}

func (s *Store) snapshot() []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Entry(nil), s.entries...)
}

// Load reads the history stored under key and places it ahead of any entries
// already in the store, which are then treated as not yet flushed. It returns
// the loaded entries. On failure the store is left untouched and a
// *StorageUnavailableError is returned.
func (s *Store) Load(ctx context.Context, backend storage.Backend, key Key) ([]Entry, error) {
	if backend == nil {
		return nil, &StorageUnavailableError{Op: "load", Key: key, Err: errors.New("no storage backend")}
	}
	doc, err := backend.LoadHistory(ctx, key)
	if err != nil {
		return nil, &StorageUnavailableError{Op: "load", Key: key, Err: err}
	}
	if doc == nil {
		return []Entry{}, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	loaded := make([]Entry, len(doc.Entries))
	var maxSeq uint64
	for i, r := range doc.Entries {
		loaded[i] = Entry{Seq: r.Seq, Text: r.Text, Time: r.Timestamp}
		maxSeq = max(maxSeq, r.Seq)
	}

	// in-session entries keep their order but are renumbered after the loaded ones
	current := s.entries
	s.entries = make([]Entry, 0, len(loaded)+len(current))
	s.entries = append(s.entries, loaded...)
	s.nextSeq = maxSeq + 1
	for _, e := range current {
		e.Seq = s.nextSeq
		s.nextSeq++
		s.entries = append(s.entries, e)
	}
	s.dropped = doc.Dropped
	s.flushed = len(loaded)

	return append([]Entry(nil), loaded...), nil
}

// Persist appends the entries added since the last Load or Persist to the
// history stored under key, re-reading it inside the backend's update so
// entries written by other sessions are kept. An appended entry keeps its
// sequence number unless that would not follow the stored ones. When the
// result exceeds the maximum, the oldest entries are dropped from what is
// written and the count is reported. The in-memory entries are not modified.
func (s *Store) Persist(ctx context.Context, backend storage.Backend, key Key) (PersistResult, error) {
	if backend == nil {
		return PersistResult{}, &StorageUnavailableError{Op: "persist", Key: key, Err: errors.New("no storage backend")}
	}

	s.persistMu.Lock()
	defer s.persistMu.Unlock()

	s.mu.RLock()
	pending := append([]Entry(nil), s.entries[s.flushed:]...)
	flushed := len(s.entries)
	maxEntries := s.maxEntries
	s.mu.RUnlock()

	var (
		res   PersistResult
		total int
	)
	err := backend.UpdateHistory(ctx, key, func(current *storage.HistoryDocument) (*storage.HistoryDocument, error) {
		doc := &storage.HistoryDocument{
			Type:          key.Type,
			PersistenceID: key.PersistenceID,
		}
		if current != nil {
			doc.Dropped = current.Dropped
			doc.Entries = append(doc.Entries, current.Entries...)
		}

		var lastSeq uint64
		if n := len(doc.Entries); n > 0 {
			lastSeq = doc.Entries[n-1].Seq
		}
		for _, e := range pending {
			seq := max(e.Seq, lastSeq+1)
			lastSeq = seq
			doc.Entries = append(doc.Entries, storage.EntryRecord{Seq: seq, Text: e.Text, Timestamp: e.Time})
		}

		res = PersistResult{}
		if maxEntries > 0 && len(doc.Entries) > maxEntries {
			res.Dropped = len(doc.Entries) - maxEntries
			doc.Entries = doc.Entries[res.Dropped:]
			doc.Dropped += res.Dropped
		}
		res.Written = len(doc.Entries)
		total = doc.Dropped
		return doc, nil
	})
	if err != nil {
		return PersistResult{}, &StorageUnavailableError{Op: "persist", Key: key, Err: err}
	}

	if res.Dropped > 0 {
		s.logger.Warn("truncating persisted history",
			"key", key.ID(),
			"dropped", res.Dropped,
			"kept", res.Written)
	}

	s.mu.Lock()
	s.dropped = total
	s.flushed = flushed
	s.mu.Unlock()

	return res, nil
}
