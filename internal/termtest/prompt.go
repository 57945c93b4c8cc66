//go:build unix

package termtest

import (
	"fmt"
	"os"

	"github.com/joeycumines/go-prompt"
	"golang.org/x/term"
)

// reader puts the slave side into raw mode for the lifetime of the prompt.
type reader struct {
	file  *os.File
	state *term.State
}

func (r *reader) Open() error {
	st, err := term.MakeRaw(int(r.file.Fd()))
	if err != nil {
		return fmt.Errorf("failed to set raw mode: %w", err)
	}
	r.state = st
	return nil
}

func (r *reader) Close() error {
	if r.state == nil {
		return nil
	}
	return term.Restore(int(r.file.Fd()), r.state)
}

func (r *reader) Read(p []byte) (int, error) { return r.file.Read(p) }

func (r *reader) GetWinSize() *prompt.WinSize { return &prompt.WinSize{Row: Rows, Col: Cols} }

// writer emits plain VT100 sequences.
type writer struct {
	file *os.File
}

func (w *writer) Write(p []byte) (int, error) { return w.file.Write(p) }
func (w *writer) WriteString(s string) (int, error) { return w.file.WriteString(s) }
func (w *writer) WriteRaw(data []byte) { _, _ = w.file.Write(data) }
func (w *writer) WriteRawString(data string) { _, _ = w.file.WriteString(data) }
func (w *writer) Flush() error { return nil }
func (w *writer) EraseScreen() { w.WriteRawString("\x1b[2J") }
func (w *writer) EraseUp() { w.WriteRawString("\x1b[1J") }
func (w *writer) EraseDown() { w.WriteRawString("\x1b[J") }
func (w *writer) EraseStartOfLine() { w.WriteRawString("\x1b[1K") }
func (w *writer) EraseEndOfLine() { w.WriteRawString("\x1b[K") }
func (w *writer) EraseLine() { w.WriteRawString("\x1b[2K") }
func (w *writer) ShowCursor() { w.WriteRawString("\x1b[?25h") }
func (w *writer) HideCursor() { w.WriteRawString("\x1b[?25l") }
func (w *writer) CursorGoTo(row, col int) { w.WriteRawString(fmt.Sprintf("\x1b[%d;%dH", row, col)) }
func (w *writer) CursorUp(n int) { w.move(n, 'A') }
func (w *writer) CursorDown(n int) { w.move(n, 'B') }
func (w *writer) CursorForward(n int) { w.move(n, 'C') }
func (w *writer) CursorBackward(n int) { w.move(n, 'D') }
func (w *writer) AskForCPR() {}
func (w *writer) SaveCursor() { w.WriteRawString("\x1b7") }
func (w *writer) UnSaveCursor() { w.WriteRawString("\x1b8") }
func (w *writer) ScrollDown() { w.WriteRawString("\x1bD") }
func (w *writer) ScrollUp() { w.WriteRawString("\x1bM") }
func (w *writer) SetTitle(string) {}
func (w *writer) ClearTitle() {}
func (w *writer) SetColor(prompt.Color, prompt.Color, bool) {}
func (w *writer) SetDisplayAttributes(prompt.Color, prompt.Color, ...prompt.DisplayAttribute) {
}

func (w *writer) move(n int, dir byte) {
	if n > 0 {
		w.WriteRawString(fmt.Sprintf("\x1b[%d%c", n, dir))
	}
}
