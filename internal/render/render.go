// Package render draws an output log as terminal text, with an optional
// gutter column of annotation icons and separator rules between evaluations.
package render

import (
	"io"
	"strings"

	"charm.land/lipgloss/v2"
	"github.com/joeycumines/one-shot-console/internal/annotation"
	"github.com/joeycumines/one-shot-console/internal/outputlog"
	"github.com/rivo/uniseg"
)

// Styles are applied per content type. Styles are only ever given single
// lines, since lipgloss pads multi-line blocks to a common width.
type Styles struct {
	Normal    lipgloss.Style
	System    lipgloss.Style
	Error     lipgloss.Style
	Input     lipgloss.Style
	Gutter    lipgloss.Style
	Separator lipgloss.Style
}

// DefaultStyles returns the colored styles used on terminals.
func DefaultStyles() Styles {
	return Styles{
		Normal:    lipgloss.NewStyle(),
		System:    lipgloss.NewStyle().Foreground(lipgloss.Color("244")).Italic(true),
		Error:     lipgloss.NewStyle().Foreground(lipgloss.Color("196")),
		Input:     lipgloss.NewStyle().Foreground(lipgloss.Color("39")).Bold(true),
		Gutter:    lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
		Separator: lipgloss.NewStyle().Foreground(lipgloss.Color("240")), // grey
	}
}

// PlainStyles returns styles that emit no escape sequences.
func PlainStyles() Styles {
	s := lipgloss.NewStyle()
	return Styles{Normal: s, System: s, Error: s, Input: s, Gutter: s, Separator: s}
}

func (s Styles) forType(t outputlog.ContentType) lipgloss.Style {
	switch t {
	case outputlog.System:
		return s.System
	case outputlog.Error:
		return s.Error
	case outputlog.UserInput:
		return s.Input
	default:
		return s.Normal
	}
}

// Renderer draws logs. The zero value is not usable; use New.
type Renderer struct {
	Styles Styles
	// SeparatorChar is repeated Width times to draw a separator rule.
	SeparatorChar string
	Width         int
}

// Option configures New.
type Option func(*Renderer)

// New returns a Renderer with default styles.
func New(opts ...Option) Renderer {
	r := Renderer{
		Styles:        DefaultStyles(),
		SeparatorChar: "─",
		Width:         40,
	}
	for _, opt := range opts {
		opt(&r)
	}
	return r
}

// WithStyles sets the styles.
func WithStyles(s Styles) Option {
	return func(r *Renderer) { r.Styles = s }
}

// WithPlain disables styling.
func WithPlain() Option {
	return WithStyles(PlainStyles())
}

// WithWidth sets the width of separator rules.
func WithWidth(w int) Option {
	return func(r *Renderer) { r.Width = w }
}

// WithSeparatorChar sets the separator rule character.
func WithSeparatorChar(c string) Option {
	return func(r *Renderer) { r.SeparatorChar = c }
}

type segment struct {
	text string
	typ  outputlog.ContentType
}

type line struct {
	start, end int // [start, end] where end is the newline offset or the log length
	segments   []segment
}

// splitLines groups a chunk snapshot into logical lines.
func splitLines(chunks []outputlog.Chunk) []line {
	lines := []line{{}}
	var offset int
	for _, c := range chunks {
		text := c.Text
		for {
			cur := &lines[len(lines)-1]
			i := strings.IndexByte(text, '\n')
			if i < 0 {
				if text != "" {
					cur.segments = append(cur.segments, segment{text: text, typ: c.Type})
				}
				offset += len(text)
				cur.end = offset
				break
			}
			if i > 0 {
				cur.segments = append(cur.segments, segment{text: text[:i], typ: c.Type})
			}
			offset += i
			cur.end = offset
			offset++
			lines = append(lines, line{start: offset, end: offset})
			text = text[i+1:]
		}
	}
	return lines
}

// Render writes every line of v. When b is non-nil, each line is prefixed by
// a gutter holding the icon of the first annotation touching it, and
// separator rules are drawn where b requests them. A trailing empty line is
// not drawn.
func (r Renderer) Render(w io.Writer, v outputlog.Viewer, b *annotation.Bridge) error {
	_, err := io.WriteString(w, r.RenderString(v, b))
	return err
}

// RenderString is Render into a string.
func (r Renderer) RenderString(v outputlog.Viewer, b *annotation.Bridge) string {
	if v == nil || v.IsDisposed() {
		return ""
	}
	lines := splitLines(v.Chunks())
	if last := lines[len(lines)-1]; len(last.segments) == 0 {
		lines = lines[:len(lines)-1]
	}
	if len(lines) == 0 {
		return ""
	}

	var (
		ranges []annotation.Range
		gutter int
	)
	if b != nil {
		ranges = b.Ranges()
		gutter = 1
		for _, rg := range ranges {
			gutter = max(gutter, uniseg.StringWidth(rg.Annotation.Icon))
		}
	}

	var sb strings.Builder
	ri := 0
	for n, ln := range lines {
		if b != nil {
			if b.ShouldDrawSeparator(n) {
				sb.WriteString(strings.Repeat(" ", gutter+1))
				sb.WriteString(r.Styles.Separator.Render(strings.Repeat(r.SeparatorChar, max(r.Width, 0))))
				sb.WriteByte('\n')
			}
			for ri < len(ranges) && ranges[ri].End <= ln.start {
				ri++
			}
			var icon string
			if ri < len(ranges) && ranges[ri].Start <= ln.end {
				icon = ranges[ri].Annotation.Icon
			}
			pad := gutter - uniseg.StringWidth(icon)
			if icon != "" {
				sb.WriteString(r.Styles.Gutter.Render(icon))
			}
			sb.WriteString(strings.Repeat(" ", pad+1))
		}
		for _, seg := range ln.segments {
			sb.WriteString(r.Styles.forType(seg.typ).Render(seg.text))
		}
		sb.WriteByte('\n')
	}
	return sb.String()
}

// Chunk styles a single chunk for streaming output. Newlines are preserved.
func (r Renderer) Chunk(c outputlog.Chunk) string {
	style := r.Styles.forType(c.Type)
	parts := strings.Split(c.Text, "\n")
	for i, p := range parts {
		if p != "" {
			parts[i] = style.Render(p)
		}
	}
	return strings.Join(parts, "\n")
}
