package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"
)

// FileSystemBackend implements Backend using one JSON file per key.
// Writes are serialized across processes with a per-key lock file.
type FileSystemBackend struct {
	dir string
}

// NewFileSystemBackend creates a file system backend rooted at dir.
// An empty dir selects the default HistoryDirectory.
func NewFileSystemBackend(dir string) (*FileSystemBackend, error) {
	if dir == "" {
		var err error
		dir, err = historyDirectory()
		if err != nil {
			return nil, fmt.Errorf("failed to get history directory: %w", err)
		}
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create history directory: %w", err)
	}
	return &FileSystemBackend{dir: dir}, nil
}

// Dir returns the directory the backend reads and writes.
func (b *FileSystemBackend) Dir() string {
	return b.dir
}

// LoadHistory retrieves the history stored under key.
// It returns (nil, nil) if the history file does not exist.
func (b *FileSystemBackend) LoadHistory(ctx context.Context, key Key) (*HistoryDocument, error) {
	if err := key.Validate(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	return b.read(key)
}

func (b *FileSystemBackend) read(key Key) (*HistoryDocument, error) {
	data, err := os.ReadFile(HistoryFilePath(b.dir, key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read history file: %w", err)
	}

	var doc HistoryDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to unmarshal history: %w", err)
	}
	if doc.Key() != key {
		return nil, fmt.Errorf("history key mismatch: file holds %q, requested %q", doc.Key(), key)
	}

	return &doc, nil
}

// SaveHistory atomically replaces the history file for doc.Key().
func (b *FileSystemBackend) SaveHistory(ctx context.Context, doc *HistoryDocument) error {
	if doc == nil {
		return errors.New("history document cannot be nil")
	}
	key := doc.Key()
	if err := key.Validate(); err != nil {
		return err
	}

	lock, err := lockWithContext(ctx, HistoryLockFilePath(b.dir, key))
	if err != nil {
		return fmt.Errorf("failed to acquire history lock: %w", err)
	}
	defer releaseFileLock(lock)

	return b.write(doc)
}

// UpdateHistory holds the key's lock file across the read and the write.
func (b *FileSystemBackend) UpdateHistory(ctx context.Context, key Key, fn UpdateFunc) error {
	if err := key.Validate(); err != nil {
		return err
	}

	lock, err := lockWithContext(ctx, HistoryLockFilePath(b.dir, key))
	if err != nil {
		return fmt.Errorf("failed to acquire history lock: %w", err)
	}
	defer releaseFileLock(lock)

	current, err := b.read(key)
	if err != nil {
		return err
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
	return b.write(doc)
}

func (b *FileSystemBackend) write(doc *HistoryDocument) error {
	key := doc.Key()
	saved := doc.clone()
	saved.Version = CurrentSchemaVersion
	saved.UpdatedAt = time.Now()

	data, err := json.MarshalIndent(saved, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal history: %w", err)
	}

	if err := AtomicWriteFile(HistoryFilePath(b.dir, key), data, 0644); err != nil {
		return fmt.Errorf("failed to write history file: %w", err)
	}

	doc.Version = saved.Version
	doc.UpdatedAt = saved.UpdatedAt
	return nil
}

// DeleteHistory removes the history file for key.
func (b *FileSystemBackend) DeleteHistory(ctx context.Context, key Key) error {
	if err := key.Validate(); err != nil {
		return err
	}

	lock, err := lockWithContext(ctx, HistoryLockFilePath(b.dir, key))
	if err != nil {
		return fmt.Errorf("failed to acquire history lock: %w", err)
	}
	defer releaseFileLock(lock)

	if err := os.Remove(HistoryFilePath(b.dir, key)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove history file: %w", err)
	}
	return nil
}

// Close is a no-op; locks are only held for the duration of a write.
func (b *FileSystemBackend) Close() error {
	return nil
}

// Ensure FileSystemBackend implements Backend at compile time
var _ Backend = (*FileSystemBackend)(nil)
