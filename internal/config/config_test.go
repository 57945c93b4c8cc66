package config

import (
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
)

func TestConfigParsing(t *testing.T) {
	configContent := `# Global options
verbose true
log.level debug

[history]
backend memory
max-entries 50

[console]
prefix js>  
command python3 -i -q`

	config, err := LoadFromReader(strings.NewReader(configContent))
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if value, ok := config.GetGlobalOption("verbose"); !ok || value != "true" {
		t.Errorf("Expected verbose=true, got %s (exists: %v)", value, ok)
	}

	if value, ok := config.GetSectionOption("history", "backend"); !ok || value != "memory" {
		t.Errorf("Expected history.backend=memory, got %s (exists: %v)", value, ok)
	}

	// trailing whitespace is trimmed
	if value, ok := config.GetSectionOption("console", "prefix"); !ok || value != "js>" {
		t.Errorf("Expected console.prefix=js>, got %q (exists: %v)", value, ok)
	}

	// sections fall back to global options
	if value, ok := config.GetSectionOption("console", "log.level"); !ok || value != "debug" {
		t.Errorf("Expected console log.level fallback, got %s (exists: %v)", value, ok)
	}

	if value, ok := config.GetSectionOption("nonexistent", "option"); ok {
		t.Errorf("Expected nonexistent option to not exist, but got %s", value)
	}

	if config.HasWarnings() {
		t.Errorf("Expected no warnings, got %v", config.GetWarnings())
	}
}

func TestEmptyConfig(t *testing.T) {
	config, err := LoadFromReader(strings.NewReader(""))
	if err != nil {
		t.Fatalf("Failed to load empty config: %v", err)
	}
	if len(config.Global) != 0 || len(config.Sections) != 0 {
		t.Errorf("Expected empty config, got %v %v", config.Global, config.Sections)
	}
}

func TestConfigWarnings(t *testing.T) {
	configContent := `bogus 1
log.level loud

[console]
on-reject drop
echo maybe

[nope]
x y`

	config, err := LoadFromReader(strings.NewReader(configContent))
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	want := []string{
		`global option "log.level": expected one of debug|info|warn|error, got "loud"`,
		`option "echo" in [console]: expected bool, got "maybe"`,
		`option "on-reject" in [console]: expected one of retain|clear, got "drop"`,
		`unknown global option: "bogus" (value: "1")`,
		`unknown section: [nope]`,
	}
	got := config.GetWarnings()
	if len(got) != len(want) {
		t.Fatalf("Expected %d warnings, got %d: %v", len(want), len(got), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("warning %d: expected %q, got %q", i, want[i], got[i])
		}
	}
}

func TestLoadFromPath(t *testing.T) {
	dir := t.TempDir()

	t.Run("missing file", func(t *testing.T) {
		config, err := LoadFromPath(filepath.Join(dir, "missing"))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(config.Global) != 0 {
			t.Errorf("expected empty config")
		}
	})

	path := filepath.Join(dir, "config")
	if err := os.WriteFile(path, []byte("verbose true\n"), 0644); err != nil {
		t.Fatal(err)
	}

	t.Run("regular file", func(t *testing.T) {
		config, err := LoadFromPath(path)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !config.GetBool("verbose") {
			t.Errorf("expected verbose")
		}
	})

	t.Run("symlink rejected", func(t *testing.T) {
		link := filepath.Join(dir, "link")
		if err := os.Symlink(path, link); err != nil {
			t.Skipf("symlinks unavailable: %v", err)
		}
		if _, err := LoadFromPath(link); err == nil || !strings.Contains(err.Error(), "symlink not allowed") {
			t.Fatalf("expected symlink error, got %v", err)
		}
	})
}

func TestSectionDefaults(t *testing.T) {
	config := NewConfig()

	h := config.History()
	if h.Backend != "fs" || h.MaxEntries != 1000 || h.Type != "" || h.PersistenceID != "" {
		t.Errorf("unexpected history defaults: %+v", h)
	}

	c := config.Console()
	if c.Language != "javascript" || c.Prefix != "> " || !c.Echo || c.OnReject != "retain" || c.Backend != "script" || c.PTY || c.Color != "auto" {
		t.Errorf("unexpected console defaults: %+v", c)
	}
	if c.Command != nil {
		t.Errorf("expected no command, got %v", c.Command)
	}
	if c.Dir != "" || c.SystemOutput != "all" || c.DropPrefix != nil {
		t.Errorf("unexpected output defaults: %+v", c)
	}
}

func TestSectionValues(t *testing.T) {
	config, err := LoadFromReader(strings.NewReader(`[history]
backend MEMORY
max-entries x
persistence-id auto

[console]
backend process
command sh -i
pty yes
echo off
on-reject bogus
dir /srv/app
system-output EXIT
drop-prefix "pydev debugger" '#'`))
	if err != nil {
		t.Fatal(err)
	}

	h := config.History()
	if h.Backend != "memory" {
		t.Errorf("expected memory backend, got %q", h.Backend)
	}
	if h.MaxEntries != 1000 {
		t.Errorf("expected invalid max-entries to fall back to default, got %d", h.MaxEntries)
	}
	if h.PersistenceID != AutoPersistenceID {
		t.Errorf("expected auto persistence id, got %q", h.PersistenceID)
	}

	c := config.Console()
	if c.Backend != "process" || !c.PTY || c.Echo || c.OnReject != "retain" {
		t.Errorf("unexpected console: %+v", c)
	}
	if strings.Join(c.Command, " ") != "sh -i" {
		t.Errorf("unexpected command: %q", c.Command)
	}
	if c.Dir != "/srv/app" || c.SystemOutput != "exit" {
		t.Errorf("unexpected process options: %+v", c)
	}
	if len(c.DropPrefix) != 2 || c.DropPrefix[0] != "pydev debugger" || c.DropPrefix[1] != "#" {
		t.Errorf("unexpected drop-prefix: %q", c.DropPrefix)
	}
}

func TestSectionEnvOverride(t *testing.T) {
	t.Setenv("OSC_HISTORY_BACKEND", "memory")
	t.Setenv("OSC_HISTORY_DIR", "/tmp/h")

	config, err := LoadFromReader(strings.NewReader("[history]\nbackend fs\ndir /var/h\n"))
	if err != nil {
		t.Fatal(err)
	}
	h := config.History()
	if h.Backend != "memory" || h.Dir != "/tmp/h" {
		t.Errorf("expected env overrides, got %+v", h)
	}
}

func TestParseBool(t *testing.T) {
	for _, s := range []string{"true", "YES", "1", "on"} {
		if b, err := parseBool(s); err != nil || !b {
			t.Errorf("parseBool(%q) = %v, %v", s, b, err)
		}
	}
	for _, s := range []string{"false", "No", "0", "off"} {
		if b, err := parseBool(s); err != nil || b {
			t.Errorf("parseBool(%q) = %v, %v", s, b, err)
		}
	}
	if _, err := parseBool("maybe"); err == nil {
		t.Error("expected error")
	}
}

func TestConsoleCommandQuoting(t *testing.T) {
	config, err := LoadFromReader(strings.NewReader("[console]\ncommand python3 -c 'import code; code.interact()'\n"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []string{"python3", "-c", "import code; code.interact()"}
	if got := config.Console().Command; !slices.Equal(got, want) {
		t.Errorf("expected %q, got %q", want, got)
	}

	config.SetSectionOption(SectionConsole, "command", "sh -c 'unterminated")
	if got := config.Console().Command; got != nil {
		t.Errorf("expected invalid command to resolve to nil, got %q", got)
	}
}
