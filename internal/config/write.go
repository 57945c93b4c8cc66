package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joeycumines/one-shot-console/internal/storage"
)

// SetKeyInFile updates or adds key in section ("" for global) of the config
// file at path, preserving comments and layout. An existing line is replaced
// in place. A new global key is inserted before the first section header; a
// new section key is appended to the end of its section, and a missing
// section is appended to the file.
func SetKeyInFile(path, section, key, value string) error {
	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("reading config file: %w", err)
	}

	var lines []string
	if len(data) > 0 {
		lines = strings.Split(strings.TrimSuffix(string(data), "\n"), "\n")
	}

	newLine := key
	if value != "" {
		newLine = key + " " + value
	}

	var (
		current   string
		inTarget  = section == ""
		seen      = section == ""
		insertAt  = -1
		lastMatch = -1
	)
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "[") && strings.HasSuffix(trimmed, "]") {
			if inTarget && insertAt < 0 {
				insertAt = lastContent(lines, i)
			}
			current = strings.TrimSpace(strings.Trim(trimmed, "[]"))
			inTarget = current == section
			if inTarget {
				seen = true
				lastMatch = i
			}
			continue
		}
		if !inTarget {
			continue
		}
		if trimmed != "" {
			lastMatch = i
		}
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}
		if name, _, _ := strings.Cut(trimmed, " "); name == key {
			lines[i] = newLine
			return writeLines(path, lines)
		}
	}

	switch {
	case !seen:
		if len(lines) > 0 && strings.TrimSpace(lines[len(lines)-1]) != "" {
			lines = append(lines, "")
		}
		lines = append(lines, "["+section+"]", newLine)
	case insertAt >= 0:
		lines = append(lines[:insertAt], append([]string{newLine}, lines[insertAt:]...)...)
	case lastMatch >= 0:
		lines = append(lines[:lastMatch+1], append([]string{newLine}, lines[lastMatch+1:]...)...)
	default:
		lines = append(lines, newLine)
	}
	return writeLines(path, lines)
}

// lastContent returns the index just past the last non-blank line before i,
// so that blank lines separating sections are kept.
func lastContent(lines []string, i int) int {
	for i > 0 && strings.TrimSpace(lines[i-1]) == "" {
		i--
	}
	return i
}

func writeLines(path string, lines []string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	return storage.AtomicWriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0644)
}
