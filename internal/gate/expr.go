package gate

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// Env is the variable set visible to expression gates.
type Env struct {
	Running     bool   `expr:"running"`
	Submissions int    `expr:"submissions"`
	History     int    `expr:"history"`
	Language    string `expr:"language"`
}

// ExprGate evaluates a compiled expr-lang boolean expression against a fresh
// Env on every call. Evaluation errors close the gate.
type ExprGate struct {
	source  string
	program *vm.Program
	env     func() Env

	mu      sync.Mutex
	lastErr error
}

// Expr compiles source, e.g. `running && submissions < 100`. The env
// function must be side-effect free; it is called on every CanExecute.
func Expr(source string, env func() Env) (*ExprGate, error) {
	if source == "" {
		return nil, errors.New("gate expression cannot be empty")
	}
	if env == nil {
		return nil, errors.New("gate expression requires an environment")
	}
	program, err := expr.Compile(source,
		expr.Env(Env{}),
		expr.AsBool(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to compile gate expression %q: %w", source, err)
	}
	return &ExprGate{
		source:  source,
		program: program,
		env:     env,
	}, nil
}

// CanExecute implements Gate.
func (g *ExprGate) CanExecute() bool {
	result, err := expr.Run(g.program, g.env())
	if err == nil {
		if b, ok := result.(bool); ok {
			g.setErr(nil)
			return b
		}
		err = fmt.Errorf("expression returned non-boolean result: %T", result)
	}
	g.setErr(err)
	slog.Warn("gate expression failed", "expression", g.source, "error", err)
	return false
}

// Source returns the expression text.
func (g *ExprGate) Source() string {
	return g.source
}

// LastError returns the error from the most recent evaluation, if any.
func (g *ExprGate) LastError() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.lastErr
}

func (g *ExprGate) setErr(err error) {
	g.mu.Lock()
	g.lastErr = err
	g.mu.Unlock()
}

var _ Gate = (*ExprGate)(nil)
