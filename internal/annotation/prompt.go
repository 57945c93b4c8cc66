package annotation

import (
	"sync"

	"github.com/joeycumines/one-shot-console/internal/outputlog"
)

// Gutter icons used by PromptProvider.
const (
	InputIcon = ">"
	ErrorIcon = "!"
)

// PromptProvider is the default Provider for REPL sessions. It marks echoed
// input and error output in the gutter, and requests a separator before the
// line on which each evaluation starts.
type PromptProvider struct {
	mu         sync.Mutex
	separators map[int]struct{}
}

// NewPromptProvider returns an empty PromptProvider.
func NewPromptProvider() *PromptProvider {
	return &PromptProvider{separators: make(map[int]struct{})}
}

// BeforeEvaluate records the line the next evaluation starts on. The first
// line never gets a separator.
func (p *PromptProvider) BeforeEvaluate(v outputlog.Viewer) {
	line := v.LineOf(v.Len())
	if line == 0 {
		return
	}
	p.mu.Lock()
	p.separators[line] = struct{}{}
	p.mu.Unlock()
}

// DocumentCleared forgets every recorded separator.
func (p *PromptProvider) DocumentCleared(outputlog.Viewer) {
	p.mu.Lock()
	clear(p.separators)
	p.mu.Unlock()
}

// IsShowSeparatorLine implements Provider.
func (p *PromptProvider) IsShowSeparatorLine(line int, v outputlog.Viewer) bool {
	if line >= v.LineCount() {
		return false
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.separators[line]
	return ok
}

// AnnotateChunk implements ChunkAnnotator.
func (p *PromptProvider) AnnotateChunk(c outputlog.Chunk, _, _ int) (Annotation, bool) {
	switch c.Type {
	case outputlog.UserInput:
		return Annotation{Icon: InputIcon, Tooltip: "input"}, true
	case outputlog.Error:
		return Annotation{Icon: ErrorIcon, Tooltip: "error"}, true
	default:
		return Annotation{}, false
	}
}

// GutterRecomputed drops separators for lines that no longer exist.
func (p *PromptProvider) GutterRecomputed(v outputlog.Viewer) {
	n := v.LineCount()
	p.mu.Lock()
	defer p.mu.Unlock()
	for line := range p.separators {
		if line >= n {
			delete(p.separators, line)
		}
	}
}

var (
	_ Provider          = (*PromptProvider)(nil)
	_ ChunkAnnotator    = (*PromptProvider)(nil)
	_ RecomputeListener = (*PromptProvider)(nil)
)
