package config

import (
	"fmt"
	"os"
	"slices"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/joeycumines/one-shot-console/internal/argv"
)

// OptionType represents the expected type of a configuration option value.
type OptionType string

const (
	// TypeString is a plain string value (the default for all config values).
	TypeString OptionType = "string"
	// TypeBool is a boolean value (true/false/yes/no/1/0/on/off).
	TypeBool OptionType = "bool"
	// TypeInt is an integer value.
	TypeInt OptionType = "int"
	// TypeDuration is a Go time.Duration value (e.g. "30s", "5m", "1h").
	TypeDuration OptionType = "duration"
	// TypeEnum is one of ConfigOption.Values.
	TypeEnum OptionType = "enum"
	// TypeCommand is a command line with shell-style quoting.
	TypeCommand OptionType = "command"
)

// Section names.
const (
	SectionHistory = "history"
	SectionConsole = "console"
)

// ConfigOption declares a single configuration option with its type, default,
// documentation, and environment variable override.
type ConfigOption struct {
	// Key is the option name as it appears in the config file (kebab-case).
	Key string
	// Type is the expected value type for validation.
	Type OptionType
	// Values lists the accepted values of a TypeEnum option.
	Values []string
	// Default is the default value as a string, or "" for no default.
	Default string
	// Description is a human-readable description of the option.
	Description string
	// Section is "" for global options, or a section name.
	Section string
	// EnvVar is the environment variable that overrides this option, or "".
	EnvVar string
}

// ConfigSchema declares the expected configuration options.
type ConfigSchema struct {
	options   []*ConfigOption
	bySection map[string]map[string]*ConfigOption // "" holds global options
}

// NewSchema creates a new empty ConfigSchema.
func NewSchema() *ConfigSchema {
	return &ConfigSchema{bySection: make(map[string]map[string]*ConfigOption)}
}

// Register adds a ConfigOption to the schema. Registering a key twice in the
// same section replaces the earlier option.
func (s *ConfigSchema) Register(opt ConfigOption) {
	ref := new(ConfigOption)
	*ref = opt
	sec := s.bySection[opt.Section]
	if sec == nil {
		sec = make(map[string]*ConfigOption)
		s.bySection[opt.Section] = sec
	}
	if old, ok := sec[opt.Key]; ok {
		s.options = slices.DeleteFunc(s.options, func(o *ConfigOption) bool { return o == old })
	}
	sec[opt.Key] = ref
	s.options = append(s.options, ref)
}

// RegisterAll adds multiple ConfigOptions to the schema.
func (s *ConfigSchema) RegisterAll(opts []ConfigOption) {
	for _, opt := range opts {
		s.Register(opt)
	}
}

// Lookup returns the ConfigOption for a key in a given section ("" for global).
// Returns nil if the key is not registered.
func (s *ConfigSchema) Lookup(section, key string) *ConfigOption {
	return s.bySection[section][key]
}

// IsKnown reports whether key is registered in section. Global keys are known
// in every section, since section lookups fall back to them.
func (s *ConfigSchema) IsKnown(section, key string) bool {
	return s.Lookup(section, key) != nil || s.Lookup("", key) != nil
}

// SectionOptions returns the options registered for section, in
// registration order. Use "" for global options.
func (s *ConfigSchema) SectionOptions(section string) []ConfigOption {
	var out []ConfigOption
	for _, o := range s.options {
		if o.Section == section {
			out = append(out, *o)
		}
	}
	return out
}

// Sections returns the sorted non-global section names.
func (s *ConfigSchema) Sections() []string {
	out := make([]string, 0, len(s.bySection))
	for sec := range s.bySection {
		if sec != "" {
			out = append(out, sec)
		}
	}
	sort.Strings(out)
	return out
}

// Resolve returns the effective value of a global option. See ResolveSection.
func (s *ConfigSchema) Resolve(c *Config, key string) string {
	return s.ResolveSection(c, "", key)
}

// ResolveSection returns the effective value for key by checking, in order:
// (1) the environment variable declared in the schema, (2) the config value
// (for sections, the section then the global value), (3) the schema default.
func (s *ConfigSchema) ResolveSection(c *Config, section, key string) string {
	opt := s.Lookup(section, key)
	if opt != nil && opt.EnvVar != "" {
		if v, ok := os.LookupEnv(opt.EnvVar); ok {
			return v
		}
	}
	if c != nil {
		if v, ok := c.GetSectionOption(section, key); ok {
			return v
		}
	}
	if opt != nil {
		return opt.Default
	}
	return ""
}

// ValidateConfig checks a loaded Config against the schema and returns a
// sorted list of human-readable issues (empty if the config is valid).
func ValidateConfig(c *Config, s *ConfigSchema) []string {
	var issues []string

	for key, value := range c.Global {
		opt := s.Lookup("", key)
		if opt == nil {
			issues = append(issues, fmt.Sprintf("unknown global option: %q (value: %q)", key, value))
			continue
		}
		if err := opt.validate(value); err != nil {
			issues = append(issues, fmt.Sprintf("global option %q: %v", key, err))
		}
	}

	for section, opts := range c.Sections {
		if _, ok := s.bySection[section]; !ok {
			issues = append(issues, fmt.Sprintf("unknown section: [%s]", section))
			continue
		}
		for key, value := range opts {
			opt := s.Lookup(section, key)
			if opt == nil {
				opt = s.Lookup("", key)
			}
			if opt == nil {
				issues = append(issues, fmt.Sprintf("unknown option in [%s]: %q (value: %q)", section, key, value))
				continue
			}
			if err := opt.validate(value); err != nil {
				issues = append(issues, fmt.Sprintf("option %q in [%s]: %v", key, section, err))
			}
		}
	}

	sort.Strings(issues)
	return issues
}

func (o *ConfigOption) validate(value string) error {
	switch o.Type {
	case TypeString, "":
		return nil
	case TypeBool:
		if _, err := parseBool(value); err != nil {
			return fmt.Errorf("expected bool, got %q", value)
		}
	case TypeInt:
		if _, err := strconv.Atoi(value); err != nil {
			return fmt.Errorf("expected int, got %q", value)
		}
	case TypeDuration:
		if _, err := time.ParseDuration(value); err != nil {
			return fmt.Errorf("expected duration, got %q", value)
		}
	case TypeCommand:
		if _, err := argv.Split(value); err != nil {
			return fmt.Errorf("invalid command line: %w", err)
		}
	case TypeEnum:
		if !slices.Contains(o.Values, strings.ToLower(value)) {
			return fmt.Errorf("expected one of %s, got %q", strings.Join(o.Values, "|"), value)
		}
	default:
		return fmt.Errorf("unknown option type %q", o.Type)
	}
	return nil
}

// --- Typed getters ---

// GetString returns the global option value for key, or "" if not set.
func (c *Config) GetString(key string) string {
	v, _ := c.GetGlobalOption(key)
	return v
}

// GetBool returns the global option value for key parsed as a boolean. Returns
// false if the key is not set or the value cannot be parsed.
func (c *Config) GetBool(key string) bool {
	v, ok := c.GetGlobalOption(key)
	if !ok {
		return false
	}
	b, err := parseBool(v)
	return err == nil && b
}

// GetInt returns the global option value for key parsed as an integer. Returns
// 0 if the key is not set or the value cannot be parsed.
func (c *Config) GetInt(key string) int {
	v, ok := c.GetGlobalOption(key)
	if !ok {
		return 0
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return 0
	}
	return i
}

// --- Help text generation ---

// FormatHelp returns a formatted, human-readable reference of all registered
// options in the schema, grouped by section.
func (s *ConfigSchema) FormatHelp() string {
	var b strings.Builder

	if globals := s.SectionOptions(""); len(globals) > 0 {
		b.WriteString("Global Options:\n")
		for _, o := range globals {
			writeOptionHelp(&b, o)
		}
	}

	for _, sec := range s.Sections() {
		opts := s.SectionOptions(sec)
		if len(opts) == 0 {
			continue
		}
		fmt.Fprintf(&b, "\n[%s] Options:\n", sec)
		for _, o := range opts {
			writeOptionHelp(&b, o)
		}
	}

	return b.String()
}

func writeOptionHelp(b *strings.Builder, o ConfigOption) {
	fmt.Fprintf(b, "  %-20s %s", o.Key, o.Description)
	parts := make([]string, 0, 3)
	switch o.Type {
	case "", TypeString:
	case TypeEnum:
		parts = append(parts, "one of: "+strings.Join(o.Values, "|"))
	default:
		parts = append(parts, fmt.Sprintf("type: %s", o.Type))
	}
	if o.Default != "" {
		parts = append(parts, fmt.Sprintf("default: %s", o.Default))
	}
	if o.EnvVar != "" {
		parts = append(parts, fmt.Sprintf("env: %s", o.EnvVar))
	}
	if len(parts) > 0 {
		fmt.Fprintf(b, " (%s)", strings.Join(parts, ", "))
	}
	b.WriteString("\n")
}

// --- Default schema ---

// DefaultSchema returns the schema of every known option.
func DefaultSchema() *ConfigSchema {
	s := NewSchema()
	s.RegisterAll([]ConfigOption{
		{Key: "verbose", Type: TypeBool, Default: "false", Description: "Enable verbose output"},
		{Key: "log.file", Type: TypeString, Description: "Log file path (JSON output)", EnvVar: "OSC_LOG_FILE"},
		{Key: "log.level", Type: TypeEnum, Values: []string{"debug", "info", "warn", "error"}, Default: "info", Description: "Log level", EnvVar: "OSC_LOG_LEVEL"},

		{Section: SectionHistory, Key: "backend", Type: TypeEnum, Values: []string{"fs", "memory"}, Default: "fs", Description: "History storage backend", EnvVar: "OSC_HISTORY_BACKEND"},
		{Section: SectionHistory, Key: "dir", Type: TypeString, Description: "History directory (fs backend)", EnvVar: "OSC_HISTORY_DIR"},
		{Section: SectionHistory, Key: "max-entries", Type: TypeInt, Default: "1000", Description: "Maximum persisted entries per history, 0 for unbounded"},
		{Section: SectionHistory, Key: "type", Type: TypeString, Description: "History type, defaults to the console language"},
		{Section: SectionHistory, Key: "persistence-id", Type: TypeString, Description: "History persistence ID; \"auto\" derives one from the terminal"},

		{Section: SectionConsole, Key: "language", Type: TypeString, Default: "javascript", Description: "Language identity of the console"},
		{Section: SectionConsole, Key: "prefix", Type: TypeString, Default: "> ", Description: "Prompt prefix"},
		{Section: SectionConsole, Key: "gate", Type: TypeString, Description: "Execution gate expression (variables: running, submissions, history, language)"},
		{Section: SectionConsole, Key: "on-reject", Type: TypeEnum, Values: []string{"retain", "clear"}, Default: "retain", Description: "Input buffer policy for rejected submissions"},
		{Section: SectionConsole, Key: "echo", Type: TypeBool, Default: "true", Description: "Echo submitted input to the output log"},
		{Section: SectionConsole, Key: "backend", Type: TypeEnum, Values: []string{"script", "process"}, Default: "script", Description: "Execution backend"},
		{Section: SectionConsole, Key: "command", Type: TypeCommand, Description: "Command line of the process backend, with shell-style quoting"},
		{Section: SectionConsole, Key: "pty", Type: TypeBool, Default: "false", Description: "Run the process backend on a pseudo-terminal"},
		{Section: SectionConsole, Key: "dir", Type: TypeString, Description: "Working directory of the process backend"},
		{Section: SectionConsole, Key: "system-output", Type: TypeEnum, Values: []string{"all", "exit"}, Default: "all", Description: "Backend system messages to show: all, or only exit status"},
		{Section: SectionConsole, Key: "drop-prefix", Type: TypeCommand, Description: "Backend output lines starting with any of these shell-quoted prefixes are hidden"},
		{Section: SectionConsole, Key: "color", Type: TypeEnum, Values: []string{"auto", "always", "never"}, Default: "auto", Description: "Colored output"},
	})
	return s
}
