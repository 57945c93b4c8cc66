package storage

import (
	"fmt"
	"sort"
)

// BackendFactory creates a Backend. dir is only meaningful to backends that
// persist to disk; an empty value selects their default location.
type BackendFactory func(dir string) (Backend, error)

// BackendRegistry maps backend names to their factory functions.
var BackendRegistry = make(map[string]BackendFactory)

func init() {
	// Register the file system backend as the default
	BackendRegistry["fs"] = func(dir string) (Backend, error) {
		return NewFileSystemBackend(dir)
	}

	BackendRegistry["memory"] = func(string) (Backend, error) {
		return NewInMemoryBackend(), nil
	}
}

// GetBackend retrieves a backend by name and creates an instance.
func GetBackend(name, dir string) (Backend, error) {
	factory, ok := BackendRegistry[name]
	if !ok {
		return nil, fmt.Errorf("unknown storage backend: %s", name)
	}
	return factory(dir)
}

// BackendNames returns the registered backend names, sorted.
func BackendNames() []string {
	names := make([]string, 0, len(BackendRegistry))
	for name := range BackendRegistry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
