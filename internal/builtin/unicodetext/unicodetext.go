package unicodetext

import (
	"fmt"
	"strings"

	"github.com/dop251/goja"
	"github.com/rivo/uniseg"
)

// Require is the CommonJS loader of "osc:unicodetext".
//
// API (JS):
//
//	const unicodetext = require('osc:unicodetext');
//	unicodetext.width("你好");               // 4
//	unicodetext.truncate("Long string", 5); // "Lo..."
func Require(runtime *goja.Runtime, module *goja.Object) {
	exports := module.Get("exports").(*goja.Object)

	_ = exports.Set("width", func(s string) int {
		return uniseg.StringWidth(s)
	})

	_ = exports.Set("truncate", func(call goja.FunctionCall) goja.Value {
		if len(call.Arguments) < 2 {
			panic(runtime.NewGoError(fmt.Errorf("truncate requires at least 2 arguments (string, maxWidth)")))
		}
		tail := "..."
		if len(call.Arguments) > 2 {
			tail = call.Argument(2).String()
		}
		return runtime.ToValue(Truncate(call.Argument(0).String(), int(call.Argument(1).ToInteger()), tail))
	})
}

// Truncate shortens s so its display width does not exceed maxWidth, ending
// it with tail when anything was cut. Grapheme clusters are never split. A
// tail wider than maxWidth is returned as is.
func Truncate(s string, maxWidth int, tail string) string {
	if uniseg.StringWidth(s) <= maxWidth {
		return s
	}
	tailWidth := uniseg.StringWidth(tail)
	if tailWidth > maxWidth {
		return tail
	}
	target := maxWidth - tailWidth

	var (
		b       strings.Builder
		width   int
		cluster string
		w       int
		state   = -1
	)
	for len(s) > 0 {
		cluster, s, w, state = uniseg.FirstGraphemeClusterInString(s, state)
		if width+w > target {
			break
		}
		width += w
		b.WriteString(cluster)
	}
	b.WriteString(tail)
	return b.String()
}
