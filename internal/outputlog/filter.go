package outputlog

import (
	"strings"
)

// Filter rewrites a chunk of backend output before it reaches the log. It
// returns the chunks to append in its place: the chunk itself, nothing to drop
// it, or any replacement.
type Filter func(Chunk) []Chunk

// Chain applies filters in order, feeding each one the output of the last.
// Nil filters are skipped.
func Chain(filters ...Filter) Filter {
	return func(c Chunk) []Chunk {
		out := []Chunk{c}
		for _, f := range filters {
			if f == nil {
				continue
			}
			var next []Chunk
			for _, c := range out {
				next = append(next, f(c)...)
			}
			out = next
			if len(out) == 0 {
				break
			}
		}
		return out
	}
}

// KeepSystemContaining drops System chunks whose text contains none of
// markers. Other chunk types pass through.
func KeepSystemContaining(markers ...string) Filter {
	return func(c Chunk) []Chunk {
		if c.Type != System {
			return []Chunk{c}
		}
		for _, m := range markers {
			if strings.Contains(c.Text, m) {
				return []Chunk{c}
			}
		}
		return nil
	}
}

// DropLinesWithPrefix removes every line starting with one of prefixes from
// chunks of any type. A chunk left empty is dropped. Lines are matched within
// a chunk, so a line written in pieces is only matched by its first piece.
func DropLinesWithPrefix(prefixes ...string) Filter {
	return func(c Chunk) []Chunk {
		if len(prefixes) == 0 {
			return []Chunk{c}
		}
		var (
			b       strings.Builder
			removed bool
		)
		for _, ln := range strings.SplitAfter(c.Text, "\n") {
			if ln != "" && hasAnyPrefix(ln, prefixes) {
				removed = true
				continue
			}
			b.WriteString(ln)
		}
		if !removed {
			return []Chunk{c}
		}
		if b.Len() == 0 {
			return nil
		}
		return []Chunk{{Text: b.String(), Type: c.Type}}
	}
}

func hasAnyPrefix(s string, prefixes []string) bool {
	for _, p := range prefixes {
		if p != "" && strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}
