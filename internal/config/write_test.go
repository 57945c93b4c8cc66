package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeAndRead(t *testing.T, initial, section, key, value string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config")
	if initial != "" {
		require.NoError(t, os.WriteFile(path, []byte(initial), 0644))
	}
	require.NoError(t, SetKeyInFile(path, section, key, value))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}

func TestSetKeyInFile(t *testing.T) {
	for _, tc := range []struct {
		name    string
		initial string
		section string
		key     string
		value   string
		want    string
	}{
		{
			name: "empty file global",
			key:  "verbose", value: "true",
			want: "verbose true\n",
		},
		{
			name:    "append global",
			initial: "# comment\nverbose true\n",
			key:     "log.level", value: "debug",
			want: "# comment\nverbose true\nlog.level debug\n",
		},
		{
			name:    "update global in place",
			initial: "verbose true\nlog.level info\n",
			key:     "verbose", value: "false",
			want: "verbose false\nlog.level info\n",
		},
		{
			name:    "global before first section",
			initial: "verbose true\n\n[console]\nverbose false\n",
			key:     "log.level", value: "warn",
			want: "verbose true\nlog.level warn\n\n[console]\nverbose false\n",
		},
		{
			name:    "global key in section is not matched",
			initial: "[console]\nprefix $\n",
			key:     "prefix", value: "#",
			want: "prefix #\n[console]\nprefix $\n",
		},
		{
			name:    "new section",
			initial: "verbose true\n",
			section: "history", key: "backend", value: "memory",
			want: "verbose true\n\n[history]\nbackend memory\n",
		},
		{
			name:    "append to middle section",
			initial: "[console]\nprefix $\n\n[history]\ndir /x\n",
			section: "console", key: "echo", value: "false",
			want: "[console]\nprefix $\necho false\n\n[history]\ndir /x\n",
		},
		{
			name:    "update section key",
			initial: "[console]\nprefix $\n# keep\npty no\n",
			section: "console", key: "pty", value: "yes",
			want: "[console]\nprefix $\n# keep\npty yes\n",
		},
		{
			name:    "empty section",
			initial: "[history]\n",
			section: "history", key: "dir", value: "/h",
			want: "[history]\ndir /h\n",
		},
		{
			name:    "empty value",
			initial: "[console]\ngate running\n",
			section: "console", key: "gate",
			want: "[console]\ngate\n",
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, writeAndRead(t, tc.initial, tc.section, tc.key, tc.value))
		})
	}
}

func TestSetKeyInFile_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config")
	require.NoError(t, SetKeyInFile(path, "", "verbose", "true"))
	require.NoError(t, SetKeyInFile(path, SectionConsole, "command", "python3 -i"))
	require.NoError(t, SetKeyInFile(path, SectionHistory, "max-entries", "10"))
	require.NoError(t, SetKeyInFile(path, SectionConsole, "backend", "process"))

	c, err := LoadFromPath(path)
	require.NoError(t, err)
	assert.Empty(t, c.GetWarnings())
	assert.True(t, c.GetBool("verbose"))
	assert.Equal(t, []string{"python3", "-i"}, c.Console().Command)
	assert.Equal(t, "process", c.Console().Backend)
	assert.Equal(t, 10, c.History().MaxEntries)
}
