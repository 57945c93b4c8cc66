package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Key identifies a persisted history. Sessions of the same Type share history
// unless they specify distinct PersistenceID values.
type Key struct {
	Type          string `json:"type"`
	PersistenceID string `json:"persistence_id,omitempty"`
}

// ID returns the storage identity of the key: Type alone when PersistenceID is
// empty, otherwise Type/PersistenceID.
func (k Key) ID() string {
	if k.PersistenceID == "" {
		return k.Type
	}
	return k.Type + "/" + k.PersistenceID
}

// String implements fmt.Stringer.
func (k Key) String() string { return k.ID() }

// Validate reports whether the key can be used for persistence.
func (k Key) Validate() error {
	if strings.TrimSpace(k.Type) == "" {
		return errors.New("history type cannot be empty")
	}
	if strings.Contains(k.Type, "/") {
		return fmt.Errorf("history type %q cannot contain '/'", k.Type)
	}
	return nil
}

// UpdateFunc computes a new document from the stored one.
type UpdateFunc func(current *HistoryDocument) (*HistoryDocument, error)

// Backend defines the contract for history persistence mechanisms.
type Backend interface {
	// LoadHistory retrieves the history stored under key.
	// It MUST return (nil, nil) if nothing has been stored yet.
	LoadHistory(ctx context.Context, key Key) (*HistoryDocument, error)

	// SaveHistory atomically replaces the history stored under doc.Key().
	SaveHistory(ctx context.Context, doc *HistoryDocument) error

	// UpdateHistory atomically reads the history stored under key, passes it
	// to fn (nil if nothing is stored), and saves the document fn returns.
	// No other write to key happens in between. If fn returns an error,
	// nothing is saved and that error is returned.
	UpdateHistory(ctx context.Context, key Key, fn UpdateFunc) error

	// DeleteHistory removes the history stored under key. Deleting a key
	// that does not exist is not an error.
	DeleteHistory(ctx context.Context, key Key) error

	// Close releases any backend resources.
	Close() error
}
