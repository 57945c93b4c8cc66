package backend

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"

	"github.com/creack/pty"
	"github.com/joeycumines/one-shot-console/internal/outputlog"
)

// Process runs an interactive child process. Each submission is written to
// the process's stdin followed by a newline.
type Process struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	tty    *os.File
	logger *slog.Logger

	out     chan outputlog.Chunk
	done    chan struct{}
	closing chan struct{}

	running atomic.Bool
	writeMu sync.Mutex

	closeOnce sync.Once
	waitErr   error
}

type processConfig struct {
	pty    bool
	dir    string
	env    []string
	logger *slog.Logger
}

// ProcessOption configures StartProcess.
type ProcessOption func(*processConfig)

// WithPTY runs the process on a pseudo-terminal. Stdout and stderr are merged
// into a single Normal stream.
func WithPTY() ProcessOption {
	return func(c *processConfig) { c.pty = true }
}

// WithDir sets the working directory of the process.
func WithDir(dir string) ProcessOption {
	return func(c *processConfig) { c.dir = dir }
}

// WithEnv appends to the inherited environment.
func WithEnv(env ...string) ProcessOption {
	return func(c *processConfig) { c.env = append(c.env, env...) }
}

// WithProcessLogger sets the logger.
func WithProcessLogger(logger *slog.Logger) ProcessOption {
	return func(c *processConfig) { c.logger = logger }
}

// StartProcess starts name with args. The process is killed if ctx is
// cancelled.
func StartProcess(ctx context.Context, name string, args []string, opts ...ProcessOption) (*Process, error) {
	if strings.TrimSpace(name) == "" {
		return nil, errors.New("process backend: empty command")
	}
	cfg := processConfig{logger: slog.Default()}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.logger == nil {
		cfg.logger = slog.Default()
	}

	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = cfg.dir
	if len(cfg.env) > 0 {
		cmd.Env = append(os.Environ(), cfg.env...)
	}

	p := &Process{
		cmd:     cmd,
		logger:  cfg.logger,
		out:     make(chan outputlog.Chunk, outputBuffer),
		done:    make(chan struct{}),
		closing: make(chan struct{}),
	}

	var readers []streamReader
	if cfg.pty {
		tty, err := pty.Start(cmd)
		if err != nil {
			return nil, fmt.Errorf("failed to start %s on pty: %w", name, err)
		}
		p.tty = tty
		p.stdin = tty
		readers = append(readers, streamReader{r: tty, typ: outputlog.Normal})
	} else {
		stdin, err := cmd.StdinPipe()
		if err != nil {
			return nil, fmt.Errorf("failed to open stdin: %w", err)
		}
		stdout, err := cmd.StdoutPipe()
		if err != nil {
			return nil, fmt.Errorf("failed to open stdout: %w", err)
		}
		stderr, err := cmd.StderrPipe()
		if err != nil {
			return nil, fmt.Errorf("failed to open stderr: %w", err)
		}
		if err := cmd.Start(); err != nil {
			return nil, fmt.Errorf("failed to start %s: %w", name, err)
		}
		p.stdin = stdin
		readers = append(readers,
			streamReader{r: stdout, typ: outputlog.Normal},
			streamReader{r: stderr, typ: outputlog.Error},
		)
	}

	p.running.Store(true)
	p.logger.Debug("process backend started", "command", name, "pid", p.Pid(), "pty", cfg.pty, "dir", cfg.dir)

	var wg sync.WaitGroup
	for _, sr := range readers {
		wg.Go(func() { p.pump(sr) })
	}
	go func() {
		wg.Wait()
		p.waitErr = cmd.Wait()
		p.running.Store(false)
		if p.tty != nil {
			_ = p.tty.Close()
		}
		p.emit(outputlog.Chunk{Text: exitMessage(p.waitErr), Type: outputlog.System})
		p.logger.Debug("process backend exited", "command", name, "pid", p.Pid(), "error", p.waitErr)
		close(p.out)
		close(p.done)
	}()

	return p, nil
}

type streamReader struct {
	r   io.Reader
	typ outputlog.ContentType
}

func (p *Process) pump(sr streamReader) {
	buf := make([]byte, 4096)
	for {
		n, err := sr.r.Read(buf)
		if n > 0 {
			p.emit(outputlog.Chunk{Text: string(buf[:n]), Type: sr.typ})
		}
		if err != nil {
			// EIO is how a pty reports that the child side closed
			if !errors.Is(err, io.EOF) && !errors.Is(err, os.ErrClosed) && !errors.Is(err, syscall.EIO) {
				p.logger.Debug("process output read failed", "error", err)
			}
			return
		}
	}
}

func (p *Process) emit(c outputlog.Chunk) {
	select {
	case p.out <- c:
	case <-p.closing:
	}
}

// Send implements Backend.
func (p *Process) Send(ctx context.Context, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !p.IsRunning() {
		return ErrNotRunning
	}
	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	if _, err := io.WriteString(p.stdin, text+"\n"); err != nil {
		return fmt.Errorf("failed to write to process: %w", err)
	}
	return nil
}

// IsRunning implements Backend.
func (p *Process) IsRunning() bool { return p.running.Load() }

// Output implements Backend.
func (p *Process) Output() <-chan outputlog.Chunk { return p.out }

// Done implements Backend.
func (p *Process) Done() <-chan struct{} { return p.done }

// Pid returns the process ID.
func (p *Process) Pid() int { return p.cmd.Process.Pid }

// ExitCode returns the exit code once the process has terminated, or -1.
func (p *Process) ExitCode() int {
	select {
	case <-p.done:
		return p.cmd.ProcessState.ExitCode()
	default:
		return -1
	}
}

// CloseInput implements Backend. Without a PTY, stdin is closed; on a PTY
// the terminal's EOF character is written instead.
func (p *Process) CloseInput() error {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	if p.tty != nil {
		if !p.IsRunning() {
			return nil
		}
		if _, err := p.tty.Write([]byte{4}); err != nil && !errors.Is(err, os.ErrClosed) {
			return fmt.Errorf("failed to send EOF: %w", err)
		}
		return nil
	}
	if err := p.stdin.Close(); err != nil && !errors.Is(err, os.ErrClosed) {
		return fmt.Errorf("failed to close stdin: %w", err)
	}
	return nil
}

// Close closes stdin, kills the process if it is still running, and waits for
// it to exit. Unread output is discarded.
func (p *Process) Close() error {
	var err error
	p.closeOnce.Do(func() {
		close(p.closing)
		p.writeMu.Lock()
		if p.tty == nil {
			_ = p.stdin.Close()
		}
		p.writeMu.Unlock()
		if p.IsRunning() {
			if kerr := p.cmd.Process.Kill(); kerr != nil && !errors.Is(kerr, os.ErrProcessDone) {
				err = fmt.Errorf("failed to kill process: %w", kerr)
			}
		}
		<-p.done
	})
	return err
}

func exitMessage(err error) string {
	if err == nil {
		return "process exited\n"
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return fmt.Sprintf("process exited with code %d\n", exitErr.ExitCode())
	}
	return fmt.Sprintf("process exited: %v\n", err)
}

var _ Backend = (*Process)(nil)
