// Package argv splits and quotes command lines using POSIX shell quoting,
// without expansion, globbing or comments.
package argv

import (
	"errors"
	"strings"
)

var (
	// ErrUnterminatedQuote is returned for a quote with no closing match.
	ErrUnterminatedQuote = errors.New("unterminated quote")
	// ErrTrailingEscape is returned when the input ends with a lone backslash.
	ErrTrailingEscape = errors.New("trailing backslash")
)

type state int

const (
	stateSpace state = iota
	stateWord
	stateSingle
	stateDouble
)

// Split parses s into arguments.
//
// Unquoted whitespace separates arguments. Single quotes preserve their
// contents literally. Inside double quotes a backslash only escapes $, `, ",
// \ and newline. Outside quotes a backslash escapes any character, and a
// backslash-newline is removed.
func Split(s string) ([]string, error) {
	var (
		args []string
		buf  strings.Builder
		st   = stateSpace
		esc  bool
	)
	emit := func() {
		args = append(args, buf.String())
		buf.Reset()
	}
	for _, r := range s {
		if esc {
			esc = false
			switch {
			case st == stateDouble && !strings.ContainsRune("$`\"\\\n", r):
				buf.WriteRune('\\')
				buf.WriteRune(r)
			case r == '\n':
			default:
				buf.WriteRune(r)
				if st == stateSpace {
					st = stateWord
				}
			}
			continue
		}
		switch st {
		case stateSingle:
			if r == '\'' {
				st = stateWord
			} else {
				buf.WriteRune(r)
			}
		case stateDouble:
			switch r {
			case '"':
				st = stateWord
			case '\\':
				esc = true
			default:
				buf.WriteRune(r)
			}
		default:
			switch r {
			case ' ', '\t', '\n', '\r':
				if st == stateWord {
					emit()
					st = stateSpace
				}
			case '\\':
				esc = true
			case '\'':
				st = stateSingle
			case '"':
				st = stateDouble
			default:
				buf.WriteRune(r)
				st = stateWord
			}
		}
	}
	switch {
	case esc:
		return nil, ErrTrailingEscape
	case st == stateSingle || st == stateDouble:
		return nil, ErrUnterminatedQuote
	case st == stateWord:
		emit()
	}
	return args, nil
}

// Quote returns arg quoted so that Split yields it back unchanged.
func Quote(arg string) string {
	if arg == "" {
		return "''"
	}
	if !strings.ContainsFunc(arg, needsQuote) {
		return arg
	}
	return "'" + strings.ReplaceAll(arg, "'", `'\''`) + "'"
}

// Join quotes and joins args into a single command line.
func Join(args []string) string {
	quoted := make([]string, len(args))
	for i, a := range args {
		quoted[i] = Quote(a)
	}
	return strings.Join(quoted, " ")
}

func needsQuote(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		return false
	}
	return !strings.ContainsRune("-_./:=@%+,", r)
}
