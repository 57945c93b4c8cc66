// Package builtin registers the native modules available to the JavaScript
// backend through require("osc:...").
package builtin

import (
	"github.com/dop251/goja_nodejs/require"
	argvmod "github.com/joeycumines/one-shot-console/internal/builtin/argv"
	consolemod "github.com/joeycumines/one-shot-console/internal/builtin/console"
	templatemod "github.com/joeycumines/one-shot-console/internal/builtin/template"
	"github.com/joeycumines/one-shot-console/internal/builtin/unicodetext"
)

// Prefix namespaces every native module.
const Prefix = "osc:"

// Register adds the native modules to registry. The osc:console module is
// only registered when host is non-nil.
func Register(registry *require.Registry, host consolemod.Host) {
	registry.RegisterNativeModule(Prefix+"argv", argvmod.Require)
	registry.RegisterNativeModule(Prefix+"unicodetext", unicodetext.Require)
	registry.RegisterNativeModule(Prefix+"text/template", templatemod.Require)
	if host != nil {
		registry.RegisterNativeModule(Prefix+"console", consolemod.Require(host))
	}
}
