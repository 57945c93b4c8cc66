package storage

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// InMemoryBackend implements Backend using process-wide in-memory storage.
// Every instance shares the same store, so histories outlive the sessions
// that wrote them for the lifetime of the process.
type InMemoryBackend struct{}

// Global in-memory storage shared across all instances
var globalInMemoryStore = struct {
	sync.RWMutex
	docs map[string]*HistoryDocument
}{
	docs: make(map[string]*HistoryDocument),
}

// NewInMemoryBackend creates a new in-memory storage backend.
func NewInMemoryBackend() *InMemoryBackend {
	return &InMemoryBackend{}
}

// LoadHistory retrieves a deep copy of the history stored under key.
func (b *InMemoryBackend) LoadHistory(ctx context.Context, key Key) (*HistoryDocument, error) {
	if err := key.Validate(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	globalInMemoryStore.RLock()
	doc, exists := globalInMemoryStore.docs[key.ID()]
	globalInMemoryStore.RUnlock()

	if !exists {
		return nil, nil
	}
	return doc.clone(), nil
}

// SaveHistory stores a deep copy of doc.
func (b *InMemoryBackend) SaveHistory(ctx context.Context, doc *HistoryDocument) error {
	if doc == nil {
		return errors.New("history document cannot be nil")
	}
	if err := doc.Key().Validate(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	doc.Version = CurrentSchemaVersion
	doc.UpdatedAt = time.Now()
	copied := doc.clone()

	globalInMemoryStore.Lock()
	globalInMemoryStore.docs[doc.Key().ID()] = copied
	globalInMemoryStore.Unlock()

	return nil
}

// UpdateHistory holds the store lock while fn runs, so fn must not call back
// into the backend.
func (b *InMemoryBackend) UpdateHistory(ctx context.Context, key Key, fn UpdateFunc) error {
	if err := key.Validate(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	globalInMemoryStore.Lock()
	defer globalInMemoryStore.Unlock()

	var current *HistoryDocument
	if doc, ok := globalInMemoryStore.docs[key.ID()]; ok {
		current = doc.clone()
	}
	doc, err := fn(current)
	if err != nil {
		return err
	}
	if doc == nil {
		return errors.New("history document cannot be nil")
	}
	if doc.Key() != key {
		return fmt.Errorf("history key mismatch: update returned %q, want %q", doc.Key(), key)
	}
	doc.Version = CurrentSchemaVersion
	doc.UpdatedAt = time.Now()
	globalInMemoryStore.docs[key.ID()] = doc.clone()
	return nil
}

// DeleteHistory removes the history stored under key.
func (b *InMemoryBackend) DeleteHistory(ctx context.Context, key Key) error {
	if err := key.Validate(); err != nil {
		return err
	}
	globalInMemoryStore.Lock()
	delete(globalInMemoryStore.docs, key.ID())
	globalInMemoryStore.Unlock()
	return nil
}

// Close releases any resources (no-op for in-memory backend).
func (b *InMemoryBackend) Close() error {
	return nil
}

// ClearAllInMemoryHistories clears the in-memory store (for testing).
func ClearAllInMemoryHistories() {
	globalInMemoryStore.Lock()
	globalInMemoryStore.docs = make(map[string]*HistoryDocument)
	globalInMemoryStore.Unlock()
}

// Ensure InMemoryBackend implements Backend at compile time
var _ Backend = (*InMemoryBackend)(nil)
