package terminalid

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func envOf(m map[string]string) Env {
	return func(key string) (string, bool) {
		v, ok := m[key]
		return v, ok
	}
}

func noTmux(context.Context) (string, error) { return "", errors.New("no tmux") }

func TestDetect_Priority(t *testing.T) {
	tmux := func(context.Context) (string, error) { return "$1:@2:%3", nil }

	for _, tc := range []struct {
		name     string
		explicit string
		env      map[string]string
		tmux     func(context.Context) (string, error)
		source   string
		prefix   string
		exact    string
	}{
		{name: "explicit", explicit: "work", env: map[string]string{EnvOverride: "other"}, source: "explicit", exact: "ex--work"},
		{name: "explicit namespaced", explicit: "team--a/b", source: "explicit", exact: "team--a_b"},
		{name: "env", env: map[string]string{EnvOverride: "x y"}, source: "env", exact: "ex--x_y"},
		{name: "tmux", env: map[string]string{"TMUX_PANE": "%3", "STY": "1.pts"}, tmux: tmux, source: "tmux", exact: "tmux--s1.w2.p3"},
		{name: "tmux failure falls through", env: map[string]string{"TMUX_PANE": "%3", "STY": "1.pts"}, tmux: noTmux, source: "screen", prefix: "screen--"},
		{name: "ssh", env: map[string]string{"SSH_CONNECTION": "1.2.3.4 5 6.7.8.9 22"}, source: "ssh", prefix: "ssh--"},
		{name: "terminal", env: map[string]string{"TERM_SESSION_ID": "w0t0p0:abc"}, source: "terminal", prefix: "terminal--"},
		{name: "fallback", env: map[string]string{}, source: "uuid", prefix: "uuid--"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			q := tc.tmux
			if q == nil {
				q = noTmux
			}
			id, err := New(WithEnv(envOf(tc.env)), WithTmuxQuery(q)).Detect(context.Background(), tc.explicit)
			require.NoError(t, err)
			assert.Equal(t, tc.source, id.Source)
			if tc.exact != "" {
				assert.Equal(t, tc.exact, id.Value)
			} else {
				assert.True(t, strings.HasPrefix(id.Value, tc.prefix), id.Value)
			}
		})
	}
}

func TestDetect_Stable(t *testing.T) {
	d := New(WithEnv(envOf(map[string]string{"SSH_CONNECTION": "1.2.3.4 5 6.7.8.9 22"})), WithTmuxQuery(noTmux))
	a, err := d.Detect(context.Background(), "")
	require.NoError(t, err)
	b, err := d.Detect(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.Len(t, strings.TrimPrefix(a.Value, "ssh--"), hashLength)
}

func TestFormat_Truncates(t *testing.T) {
	long := strings.Repeat("a", 200)
	v := format(NamespaceExplicit, long)
	assert.Len(t, v, maxLength)
	assert.NotEqual(t, v, format(NamespaceExplicit, long+"b"))
}

func TestFormatTmux_NonStandard(t *testing.T) {
	assert.Equal(t, "tmux--sname.w1.p2", formatTmux("$name:@1:%2"))
	assert.Equal(t, "tmux--feature_login", formatTmux("feature/login"))
}

func TestSanitize(t *testing.T) {
	assert.Equal(t, "a_b_c.d-e_f", sanitize(`a/b\c.d-e_f`))
}
