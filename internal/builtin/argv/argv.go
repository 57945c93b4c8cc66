package argv

import (
	"github.com/dop251/goja"
	"github.com/joeycumines/one-shot-console/internal/argv"
)

// Require is the CommonJS loader of "osc:argv", shell-style command line
// splitting and quoting.
//
// API (JS):
//
//	const argv = require('osc:argv');
//	argv.split("git commit -m 'a b'"); // ["git", "commit", "-m", "a b"]
//	argv.quote("a b");                 // "'a b'"
//	argv.join(["echo", "it's"]);       // "echo 'it'\''s'"
//
// split throws on an unterminated quote or a trailing escape.
func Require(runtime *goja.Runtime, module *goja.Object) {
	exports := module.Get("exports").(*goja.Object)

	_ = exports.Set("split", func(s string) goja.Value {
		args, err := argv.Split(s)
		if err != nil {
			panic(runtime.NewGoError(err))
		}
		if args == nil {
			args = []string{}
		}
		return runtime.ToValue(args)
	})
	_ = exports.Set("quote", argv.Quote)
	_ = exports.Set("join", func(args []string) string {
		return argv.Join(args)
	})
}
