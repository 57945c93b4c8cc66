package template

import (
	"bytes"
	"fmt"
	"text/template"

	"github.com/dop251/goja"
	"github.com/joeycumines/one-shot-console/internal/argv"
	"github.com/joeycumines/one-shot-console/internal/builtin/unicodetext"
	"github.com/rivo/uniseg"
)

// Require is the CommonJS loader of "osc:text/template", Go's text/template
// for console scripts.
//
// API (JS):
//
//	const template = require('osc:text/template');
//	template.execute("Hello {{.name}}!", {name: "World"});
//
//	const t = template.new("greeting")
//	    .funcs({upper: s => s.toUpperCase()})
//	    .parse("Hello {{.name | upper}}!");
//	t.execute({name: "World"}); // "Hello WORLD!"
//
// Every template has the functions width, truncate and quote.
func Require(runtime *goja.Runtime, module *goja.Object) {
	exports := module.Get("exports").(*goja.Object)

	_ = exports.Set("new", func(name string) goja.Value {
		return newWrapper(runtime, name)
	})

	_ = exports.Set("execute", func(call goja.FunctionCall) goja.Value {
		if len(call.Arguments) < 1 {
			panic(runtime.NewGoError(fmt.Errorf("execute requires at least 1 argument (template text)")))
		}
		tmpl, err := template.New("execute").Funcs(defaultFuncs()).Parse(call.Argument(0).String())
		if err != nil {
			panic(runtime.NewGoError(err))
		}
		return runtime.ToValue(execute(runtime, tmpl, call.Argument(1)))
	})
}

func defaultFuncs() template.FuncMap {
	return template.FuncMap{
		"width":    uniseg.StringWidth,
		"truncate": func(maxWidth int, s string) string { return unicodetext.Truncate(s, maxWidth, "...") },
		"quote":    argv.Quote,
	}
}

func execute(runtime *goja.Runtime, tmpl *template.Template, data goja.Value) string {
	var v any
	if data != nil && !goja.IsUndefined(data) {
		v = data.Export()
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, v); err != nil {
		panic(runtime.NewGoError(err))
	}
	return buf.String()
}

func newWrapper(runtime *goja.Runtime, name string) goja.Value {
	tmpl := template.New(name).Funcs(defaultFuncs())
	obj := runtime.NewObject()

	_ = obj.Set("name", func() string { return tmpl.Name() })

	_ = obj.Set("parse", func(text string) goja.Value {
		t, err := tmpl.Parse(text)
		if err != nil {
			panic(runtime.NewGoError(err))
		}
		tmpl = t
		return obj
	})

	_ = obj.Set("execute", func(call goja.FunctionCall) goja.Value {
		return runtime.ToValue(execute(runtime, tmpl, call.Argument(0)))
	})

	_ = obj.Set("delims", func(left, right string) goja.Value {
		tmpl = tmpl.Delims(left, right)
		return obj
	})

	_ = obj.Set("funcs", func(call goja.FunctionCall) goja.Value {
		src := call.Argument(0)
		if goja.IsUndefined(src) || goja.IsNull(src) {
			panic(runtime.NewTypeError("funcs requires an object"))
		}
		funcs := make(template.FuncMap)
		fnObj := src.ToObject(runtime)
		for _, key := range fnObj.Keys() {
			fn, ok := goja.AssertFunction(fnObj.Get(key))
			if !ok {
				panic(runtime.NewTypeError(fmt.Sprintf("funcs: %q is not a function", key)))
			}
			funcs[key] = wrapFunc(runtime, fn)
		}
		tmpl = tmpl.Funcs(funcs)
		return obj
	})

	return obj
}

// wrapFunc adapts a JavaScript function to a template function. Template
// execution happens inside a JS call, so the runtime is already on its own
// goroutine.
func wrapFunc(runtime *goja.Runtime, fn goja.Callable) func(args ...any) (any, error) {
	return func(args ...any) (result any, err error) {
		defer func() {
			if r := recover(); r != nil {
				if e, ok := r.(error); ok {
					err = e
				} else {
					err = fmt.Errorf("%v", r)
				}
			}
		}()
		values := make([]goja.Value, len(args))
		for i, arg := range args {
			values[i] = runtime.ToValue(arg)
		}
		v, err := fn(goja.Undefined(), values...)
		if err != nil {
			return nil, err
		}
		return v.Export(), nil
	}
}
