package storage

import (
	"errors"
	"os"
	"path/filepath"
	"sort"
	"time"
)

// HistoryInfo holds lightweight metadata for a history file discovered on disk.
type HistoryInfo struct {
	Key       Key       `json:"key"`
	Path      string    `json:"path"`
	Size      int64     `json:"size"`
	UpdatedAt time.Time `json:"updatedAt"`
	// Writing is true when another process held the key's lock at scan time.
	Writing bool `json:"writing"`
}

// ScanHistories inspects the backend's directory and returns one HistoryInfo
// per history file, sorted by key.
func (b *FileSystemBackend) ScanHistories() ([]HistoryInfo, error) {
	entries, err := os.ReadDir(b.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return []HistoryInfo{}, nil
		}
		return nil, err
	}

	out := make([]HistoryInfo, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		key, ok := keyFromFileName(e.Name())
		if !ok {
			continue
		}
		path := filepath.Join(b.dir, e.Name())
		fi, err := os.Stat(path)
		if err != nil {
			continue
		}

		info := HistoryInfo{
			Key:       key,
			Path:      path,
			Size:      fi.Size(),
			UpdatedAt: fi.ModTime(),
		}

		// Probe the lock without waiting. The lock artifact is left in place.
		if f, err := acquireFileLock(HistoryLockFilePath(b.dir, key)); err == nil {
			_ = releaseFileLock(f)
		} else if errors.Is(err, ErrWouldBlock) {
			info.Writing = true
		}

		out = append(out, info)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Key.ID() < out[j].Key.ID() })
	return out, nil
}
