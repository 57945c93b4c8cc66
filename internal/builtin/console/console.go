// Package console provides "osc:console", a script's view of the console
// session it runs in.
package console

import (
	"github.com/dop251/goja"
)

// Host is the session surface exposed to scripts. Its methods are called on
// the interaction thread.
type Host interface {
	Language() string
	History() []string
	Submissions() int
	ClearOutput() error
}

// Require returns the CommonJS loader of "osc:console".
//
// API (JS):
//
//	const console = require('osc:console');
//	console.language;       // "javascript"
//	console.history();      // every submission so far, oldest first
//	console.submissions();  // accepted submissions in this session
//	console.clear();        // empty the output log
//
// history() includes the submission currently being evaluated.
func Require(host Host) func(runtime *goja.Runtime, module *goja.Object) {
	return func(runtime *goja.Runtime, module *goja.Object) {
		exports := module.Get("exports").(*goja.Object)

		_ = exports.Set("language", host.Language())
		_ = exports.Set("history", func() goja.Value {
			texts := host.History()
			if texts == nil {
				texts = []string{}
			}
			return runtime.ToValue(texts)
		})
		_ = exports.Set("submissions", host.Submissions)
		_ = exports.Set("clear", func() {
			if err := host.ClearOutput(); err != nil {
				panic(runtime.NewGoError(err))
			}
		})
	}
}
