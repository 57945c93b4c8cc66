package render

import (
	"bytes"
	"testing"

	"github.com/joeycumines/one-shot-console/internal/annotation"
	"github.com/joeycumines/one-shot-console/internal/loop"
	"github.com/joeycumines/one-shot-console/internal/outputlog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func appendAll(t *testing.T, log *outputlog.Log, chunks ...outputlog.Chunk) {
	t.Helper()
	for _, c := range chunks {
		require.NoError(t, log.Append(c))
	}
}

func promptBridge(t *testing.T, log *outputlog.Log) (*annotation.Bridge, *loop.Manual) {
	t.Helper()
	sched := &loop.Manual{}
	b, err := annotation.NewBridge(log, annotation.NewPromptProvider(), sched)
	require.NoError(t, err)
	t.Cleanup(b.Dispose)
	return b, sched
}

func TestRender_WithGutter(t *testing.T) {
	log := outputlog.New()
	b, sched := promptBridge(t, log)

	appendAll(t, log,
		outputlog.Chunk{Text: "1+1\n", Type: outputlog.UserInput},
		outputlog.Chunk{Text: "2\n", Type: outputlog.Normal},
	)
	b.BeforeEvaluate()
	appendAll(t, log,
		outputlog.Chunk{Text: "x\n", Type: outputlog.UserInput},
		outputlog.Chunk{Text: "boom\n", Type: outputlog.Error},
	)
	sched.Drain()

	var buf bytes.Buffer
	r := New(WithPlain(), WithWidth(3))
	require.NoError(t, r.Render(&buf, log, b))
	assert.Equal(t, "> 1+1\n  2\n  ───\n> x\n! boom\n", buf.String())
}

func TestRender_NoBridge(t *testing.T) {
	log := outputlog.New()
	appendAll(t, log,
		outputlog.Chunk{Text: "1+1\n", Type: outputlog.UserInput},
		outputlog.Chunk{Text: "2\nabc", Type: outputlog.Normal},
	)
	assert.Equal(t, "1+1\n2\nabc\n", New(WithPlain()).RenderString(log, nil))
}

func TestRender_LineSpanningChunks(t *testing.T) {
	log := outputlog.New()
	appendAll(t, log,
		outputlog.Chunk{Text: "foo", Type: outputlog.Normal},
		outputlog.Chunk{Text: "bar\nbaz\n", Type: outputlog.Error},
	)
	assert.Equal(t, "foobar\nbaz\n", New(WithPlain()).RenderString(log, nil))
}

func TestRender_WideIcon(t *testing.T) {
	log := outputlog.New()
	b, sched := promptBridge(t, log)
	appendAll(t, log, outputlog.Chunk{Text: "a\nb\n"})
	sched.Drain()
	require.NoError(t, b.AddRange(0, 1, annotation.Annotation{Icon: "界"}))

	assert.Equal(t, "界 a\n   b\n", New(WithPlain()).RenderString(log, b))
}

func TestRender_Empty(t *testing.T) {
	r := New(WithPlain())
	assert.Empty(t, r.RenderString(nil, nil))

	log := outputlog.New()
	assert.Empty(t, r.RenderString(log, nil))

	appendAll(t, log, outputlog.Chunk{Text: "x\n"})
	log.Dispose()
	assert.Empty(t, r.RenderString(log, nil))
}

func TestRender_SeparatorChar(t *testing.T) {
	log := outputlog.New()
	b, sched := promptBridge(t, log)
	appendAll(t, log, outputlog.Chunk{Text: "a\n"})
	b.BeforeEvaluate()
	appendAll(t, log, outputlog.Chunk{Text: "b\n", Type: outputlog.UserInput})
	sched.Drain()

	r := New(WithPlain(), WithWidth(2), WithSeparatorChar("="))
	assert.Equal(t, "  a\n  ==\n> b\n", r.RenderString(log, b))
}

func TestRenderer_Chunk(t *testing.T) {
	r := New(WithPlain())
	assert.Equal(t, "a\n\nb\n", r.Chunk(outputlog.Chunk{Text: "a\n\nb\n", Type: outputlog.Error}))
	assert.Empty(t, r.Chunk(outputlog.Chunk{}))
}

func TestDefaultStyles_Differ(t *testing.T) {
	s := DefaultStyles()
	assert.NotEqual(t, s.Error.GetForeground(), s.Input.GetForeground())
}
