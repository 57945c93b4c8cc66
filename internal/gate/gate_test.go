package gate

import (
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBackend struct {
	running atomic.Bool
	calls   atomic.Int32
}

func (f *fakeBackend) IsRunning() bool {
	f.calls.Add(1)
	return f.running.Load()
}

func TestAlwaysEnabled(t *testing.T) {
	assert.True(t, AlwaysEnabled().CanExecute())
}

func TestFunc(t *testing.T) {
	open := false
	g := Func(func() bool { return open })
	assert.False(t, g.CanExecute())
	open = true
	assert.True(t, g.CanExecute())

	var nilFunc Func
	assert.False(t, nilFunc.CanExecute())
}

func TestBackendLiveness_StickyTermination(t *testing.T) {
	b := &fakeBackend{}
	b.running.Store(true)
	g := BackendLiveness(b)

	assert.True(t, g.CanExecute())
	assert.False(t, g.Terminated())

	b.running.Store(false)
	assert.False(t, g.CanExecute())
	assert.True(t, g.Terminated())

	// a backend that claims to be alive again must not reopen the gate
	b.running.Store(true)
	calls := b.calls.Load()
	assert.False(t, g.CanExecute())
	assert.Equal(t, calls, b.calls.Load(), "terminated gate should not consult the backend")
}

func TestBackendLiveness_NilBackend(t *testing.T) {
	g := BackendLiveness(nil)
	assert.False(t, g.CanExecute())
	assert.True(t, g.Terminated())
}

func TestAll(t *testing.T) {
	tests := []struct {
		name  string
		gates []Gate
		want  bool
	}{
		{"empty", nil, true},
		{"nil entries ignored", []Gate{nil, AlwaysEnabled()}, true},
		{"all open", []Gate{AlwaysEnabled(), Func(func() bool { return true })}, true},
		{"one closed", []Gate{AlwaysEnabled(), Func(func() bool { return false })}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, All(tt.gates...).CanExecute())
		})
	}
}

func TestAll_ShortCircuits(t *testing.T) {
	var evaluated bool
	g := All(Func(func() bool { return false }), Func(func() bool { evaluated = true; return true }))
	assert.False(t, g.CanExecute())
	assert.False(t, evaluated)
}

func TestExpr(t *testing.T) {
	env := Env{Running: true, Submissions: 2, Language: "js"}
	g, err := Expr(`running && submissions < 3 && language == "js"`, func() Env { return env })
	require.NoError(t, err)
	assert.Equal(t, `running && submissions < 3 && language == "js"`, g.Source())

	assert.True(t, g.CanExecute())
	assert.NoError(t, g.LastError())

	env.Submissions = 3
	assert.False(t, g.CanExecute())

	env.Submissions = 0
	env.Running = false
	assert.False(t, g.CanExecute())
}

func TestExpr_CompileErrors(t *testing.T) {
	_, err := Expr("", func() Env { return Env{} })
	require.Error(t, err)

	_, err = Expr("running", nil)
	require.Error(t, err)

	_, err = Expr("running &&", func() Env { return Env{} })
	require.Error(t, err)

	// non-boolean expressions are rejected at compile time
	_, err = Expr("submissions + 1", func() Env { return Env{} })
	require.Error(t, err)

	// unknown variables are rejected at compile time
	_, err = Expr("nope", func() Env { return Env{} })
	require.Error(t, err)
}
