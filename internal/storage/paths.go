package storage

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
)

const (
	historyFileSuffix = ".history.json"
	historyLockSuffix = ".history.lock"
)

// historyDirectory is a variable so the test suite can point it at a
// temporary directory.
var historyDirectory = HistoryDirectory

// SetTestPaths overrides the default history directory.
// This should only be used in tests.
func SetTestPaths(dir string) {
	historyDirectory = func() (string, error) { return dir, nil }
}

// ResetPaths restores the default history directory.
// This should only be used in tests.
func ResetPaths() {
	historyDirectory = HistoryDirectory
}

// HistoryDirectory returns the default directory for persisted histories:
// {UserConfigDir}/one-shot-console/history/
func HistoryDirectory() (string, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user config directory: %w", err)
	}
	return filepath.Join(configDir, "one-shot-console", "history"), nil
}

// fileBaseName maps a key to a file-system safe, reversible base name.
func fileBaseName(key Key) string {
	return url.PathEscape(key.ID())
}

// keyFromFileName is the inverse of fileBaseName for history files.
func keyFromFileName(name string) (Key, bool) {
	base, ok := strings.CutSuffix(name, historyFileSuffix)
	if !ok || base == "" {
		return Key{}, false
	}
	id, err := url.PathUnescape(base)
	if err != nil {
		return Key{}, false
	}
	typ, pid, _ := strings.Cut(id, "/")
	return Key{Type: typ, PersistenceID: pid}, true
}

// HistoryFilePath returns the path of the history file for key inside dir.
func HistoryFilePath(dir string, key Key) string {
	return filepath.Join(dir, fileBaseName(key)+historyFileSuffix)
}

// HistoryLockFilePath returns the path of the lock file for key inside dir.
func HistoryLockFilePath(dir string, key Key) string {
	return filepath.Join(dir, fileBaseName(key)+historyLockSuffix)
}
