package argv

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplit(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		in   string
		want []string
	}{
		{"empty", "", nil},
		{"whitespace only", " \t\n", nil},
		{"simple", "a b c", []string{"a", "b", "c"}},
		{"runs of whitespace", "  a   b\tc\n", []string{"a", "b", "c"}},
		{"single quotes", "'a b' c", []string{"a b", "c"}},
		{"single quotes keep backslash", `'a\b'`, []string{`a\b`}},
		{"double quotes", `"a b" c`, []string{"a b", "c"}},
		{"double quote escapes", `"a\"b\\c\$d"`, []string{`a"b\c$d`}},
		{"double quote literal backslash", `"a\nb"`, []string{`a\nb`}},
		{"escaped space", `a\ b c`, []string{"a b", "c"}},
		{"line continuation", "a\\\nb c", []string{"ab", "c"}},
		{"adjacent quoting", `a'b c'"d"e`, []string{"ab cde"}},
		{"empty quoted", `'' ""`, []string{"", ""}},
		{"quote chars inside other quotes", `"it's" 'say "hi"'`, []string{"it's", `say "hi"`}},
		{"newline inside quotes", "'a\nb'", []string{"a\nb"}},
		{"unicode", "日本 '語 x'", []string{"日本", "語 x"}},
		{"python command", `python3 -i -c "import sys"`, []string{"python3", "-i", "-c", "import sys"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Split(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSplit_Errors(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in   string
		want error
	}{
		{"'abc", ErrUnterminatedQuote},
		{`a "b`, ErrUnterminatedQuote},
		{`"a\"`, ErrUnterminatedQuote},
		{`a\`, ErrTrailingEscape},
	}
	for _, tt := range tests {
		_, err := Split(tt.in)
		assert.ErrorIs(t, err, tt.want, tt.in)
	}
}

func TestQuote(t *testing.T) {
	t.Parallel()
	tests := map[string]string{
		"":          "''",
		"plain":     "plain",
		"-a=b/c.d":  "-a=b/c.d",
		"a b":       "'a b'",
		"it's":      `'it'\''s'`,
		"$HOME":     "'$HOME'",
		"line\nend": "'line\nend'",
	}
	for in, want := range tests {
		assert.Equal(t, want, Quote(in), in)
	}
}

func TestJoinRoundTrip(t *testing.T) {
	t.Parallel()
	for _, args := range [][]string{
		{"python3", "-i"},
		{"sh", "-c", `echo "it's $HOME"`},
		{"", "a b", `back\slash`, "tab\there"},
	} {
		got, err := Split(Join(args))
		require.NoError(t, err)
		assert.Equal(t, args, got)
	}
}
