package config

import (
	"strconv"
	"strings"

	"github.com/joeycumines/one-shot-console/internal/argv"
)

// AutoPersistenceID asks for a persistence ID derived from the terminal.
const AutoPersistenceID = "auto"

// HistoryConfig is the resolved [history] section.
type HistoryConfig struct {
	Backend       string
	Dir           string
	MaxEntries    int
	Type          string
	PersistenceID string
}

// ConsoleConfig is the resolved [console] section.
type ConsoleConfig struct {
	Language string
	Prefix   string
	Gate     string
	OnReject string
	Echo     bool
	Backend  string
	Command  []string
	PTY      bool
	Color    string
	Dir      string

	SystemOutput string
	DropPrefix   []string
}

// History resolves the [history] section against the default schema.
// Invalid values fall back to their defaults; they were already reported as
// warnings when the file was loaded.
func (c *Config) History() HistoryConfig {
	r := resolver{c: c, s: DefaultSchema(), section: SectionHistory}
	return HistoryConfig{
		Backend:       r.enum("backend"),
		Dir:           r.str("dir"),
		MaxEntries:    r.int("max-entries"),
		Type:          r.str("type"),
		PersistenceID: r.str("persistence-id"),
	}
}

// Console resolves the [console] section against the default schema.
func (c *Config) Console() ConsoleConfig {
	r := resolver{c: c, s: DefaultSchema(), section: SectionConsole}
	return ConsoleConfig{
		Language: r.str("language"),
		Prefix:   r.str("prefix"),
		Gate:     r.str("gate"),
		OnReject: r.enum("on-reject"),
		Echo:     r.bool("echo"),
		Backend:  r.enum("backend"),
		Command:  r.command("command"),
		PTY:      r.bool("pty"),
		Color:    r.enum("color"),
		Dir:      r.str("dir"),

		SystemOutput: r.enum("system-output"),
		DropPrefix:   r.command("drop-prefix"),
	}
}

type resolver struct {
	c       *Config
	s       *ConfigSchema
	section string
}

func (r resolver) str(key string) string {
	return r.s.ResolveSection(r.c, r.section, key)
}

func (r resolver) def(key string) string {
	if opt := r.s.Lookup(r.section, key); opt != nil {
		return opt.Default
	}
	return ""
}

func (r resolver) enum(key string) string {
	v := strings.ToLower(r.str(key))
	if opt := r.s.Lookup(r.section, key); opt != nil && opt.validate(v) != nil {
		return opt.Default
	}
	return v
}

func (r resolver) bool(key string) bool {
	b, err := parseBool(r.str(key))
	if err != nil {
		b, _ = parseBool(r.def(key))
	}
	return b
}

func (r resolver) int(key string) int {
	i, err := strconv.Atoi(strings.TrimSpace(r.str(key)))
	if err != nil {
		i, _ = strconv.Atoi(r.def(key))
	}
	return i
}

func (r resolver) command(key string) []string {
	args, err := argv.Split(r.str(key))
	if err != nil {
		return nil
	}
	return args
}
