package command

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dop251/goja_nodejs/require"
	"github.com/joeycumines/go-prompt"
	"github.com/joeycumines/one-shot-console/internal/annotation"
	"github.com/joeycumines/one-shot-console/internal/argv"
	"github.com/joeycumines/one-shot-console/internal/backend"
	"github.com/joeycumines/one-shot-console/internal/builtin"
	"github.com/joeycumines/one-shot-console/internal/config"
	"github.com/joeycumines/one-shot-console/internal/outputlog"
	"github.com/joeycumines/one-shot-console/internal/render"
	"github.com/joeycumines/one-shot-console/internal/session"
	"github.com/joeycumines/one-shot-console/internal/terminalid"
	"golang.org/x/term"
)

// ExitCodeError carries the exit code of a backend that terminated with a
// non-zero status.
type ExitCodeError struct {
	Code int
}

func (e *ExitCodeError) Error() string { return fmt.Sprintf("backend exited with code %d", e.Code) }

type exitCoder interface {
	ExitCode() int
}

// RunCommand starts an interactive console session.
type RunCommand struct {
	*BaseCommand
	config        *config.Config
	stdin         io.Reader
	isTTY         func() bool
	promptOptions []prompt.Option

	flags          *flag.FlagSet
	logFile        string
	logLevel       string
	backend        string
	pty            bool
	dir            string
	env            []string
	systemOutput   string
	dropPrefix     []string
	language       string
	historyBackend string
	historyDir     string
	historyType    string
	persistenceID  string
	gate           string
	onReject       string
	echo           bool
	color          string
	prefix         string
	transcript     bool
	drainTimeout   time.Duration
}

// RunOption configures NewRunCommand.
type RunOption func(*RunCommand)

// WithStdin replaces os.Stdin. A non-file reader is never a terminal.
func WithStdin(r io.Reader) RunOption {
	return func(c *RunCommand) { c.stdin = r }
}

// WithPromptIO runs the interactive prompt on r and w, regardless of stdin.
func WithPromptIO(r prompt.Reader, w prompt.Writer) RunOption {
	return func(c *RunCommand) {
		c.isTTY = func() bool { return true }
		c.promptOptions = append(c.promptOptions, prompt.WithReader(r), prompt.WithWriter(w))
	}
}

// NewRunCommand creates a new run command.
func NewRunCommand(cfg *config.Config, opts ...RunOption) *RunCommand {
	c := &RunCommand{
		BaseCommand: NewBaseCommand(
			"run",
			"Start a console session",
			"run [options] [command [args...]]",
		),
		config: cfg,
		stdin:  os.Stdin,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.isTTY == nil {
		c.isTTY = func() bool {
			f, ok := c.stdin.(*os.File)
			return ok && term.IsTerminal(int(f.Fd()))
		}
	}
	return c
}

// SetupFlags configures the flags for the run command.
func (c *RunCommand) SetupFlags(fs *flag.FlagSet) {
	c.flags = fs
	fs.StringVar(&c.logFile, "log-file", "", "Log file path (JSON output)")
	fs.StringVar(&c.logLevel, "log-level", "", "Log level: debug, info, warn, error")
	fs.StringVar(&c.backend, "backend", "", "Execution backend: script or process (implied by a command)")
	fs.BoolVar(&c.pty, "pty", false, "Run the process backend on a pseudo-terminal")
	fs.StringVar(&c.dir, "dir", "", "Working directory of the process backend")
	fs.Func("env", "Set KEY=VALUE in the process backend's environment (repeatable)", func(v string) error {
		if k, _, ok := strings.Cut(v, "="); !ok || k == "" {
			return fmt.Errorf("expected KEY=VALUE, got %q", v)
		}
		c.env = append(c.env, v)
		return nil
	})
	fs.StringVar(&c.systemOutput, "system-output", "", "Backend system messages to show: all or exit")
	fs.Func("drop-prefix", "Hide backend output lines starting with this text (repeatable)", func(v string) error {
		c.dropPrefix = append(c.dropPrefix, v)
		return nil
	})
	fs.StringVar(&c.language, "language", "", "Language identity of the console")
	fs.StringVar(&c.historyBackend, "history-backend", "", "History storage backend: fs or memory")
	fs.StringVar(&c.historyDir, "history-dir", "", "History directory (fs backend)")
	fs.StringVar(&c.historyType, "history-type", "", "History type (defaults to the language)")
	fs.StringVar(&c.persistenceID, "persistence-id", "", `History persistence ID, or "auto"`)
	fs.StringVar(&c.gate, "gate", "", "Execution gate expression")
	fs.StringVar(&c.onReject, "on-reject", "", "Input policy for rejected submissions: retain or clear")
	fs.BoolVar(&c.echo, "echo", true, "Echo submitted input to the output log")
	fs.StringVar(&c.color, "color", "", "Colored output: auto, always, never")
	fs.StringVar(&c.prefix, "prefix", "", "Prompt prefix")
	fs.BoolVar(&c.transcript, "transcript", false, "Print an annotated transcript on exit instead of streaming output")
	fs.DurationVar(&c.drainTimeout, "drain-timeout", 10*time.Second, "How long to wait for output after input ends")
}

func (c *RunCommand) isSet(name string) bool {
	if c.flags == nil {
		return false
	}
	var set bool
	c.flags.Visit(func(f *flag.Flag) {
		if f.Name == name {
			set = true
		}
	})
	return set
}

// settings resolves the console and history sections, applying flags and
// positional arguments on top.
func (c *RunCommand) settings(args []string) (config.ConsoleConfig, config.HistoryConfig) {
	cc, hc := c.config.Console(), c.config.History()
	_, languageConfigured := c.config.GetSectionOption(config.SectionConsole, "language")

	if len(args) > 0 {
		cc.Backend = "process"
		cc.Command = args
	}
	if c.backend != "" {
		cc.Backend = strings.ToLower(c.backend)
	}
	if c.isSet("pty") {
		cc.PTY = c.pty
	}
	if c.isSet("echo") {
		cc.Echo = c.echo
	}
	for _, o := range []struct {
		dst *string
		v   string
	}{
		{&cc.Language, c.language},
		{&cc.Gate, c.gate},
		{&cc.OnReject, c.onReject},
		{&cc.Color, c.color},
		{&cc.Prefix, c.prefix},
		{&cc.Dir, c.dir},
		{&cc.SystemOutput, strings.ToLower(c.systemOutput)},
		{&hc.Type, c.historyType},
		{&hc.PersistenceID, c.persistenceID},
	} {
		if o.v != "" {
			*o.dst = o.v
		}
	}
	if len(c.dropPrefix) > 0 {
		cc.DropPrefix = c.dropPrefix
	}
	if cc.Backend == "process" && c.language == "" && !languageConfigured && len(cc.Command) > 0 {
		cc.Language = filepath.Base(cc.Command[0])
	}
	if hc.Type == "" {
		hc.Type = cc.Language
	}
	return cc, hc
}

func (c *RunCommand) startBackend(ctx context.Context, cc config.ConsoleConfig, host *sessionHost, logger *slog.Logger) (backend.Backend, session.Identity, error) {
	identity := session.Identity{Language: cc.Language}
	switch cc.Backend {
	case "script":
		identity.Name = cc.Language + " (goja)"
		registry := require.NewRegistry()
		builtin.Register(registry, host)
		b, err := backend.NewScript(ctx, backend.WithScriptLogger(logger), backend.WithRegistry(registry))
		return b, identity, err
	case "process":
		if len(cc.Command) == 0 {
			return nil, identity, errors.New("process backend requires a command")
		}
		identity.Name = argv.Join(cc.Command)
		opts := []backend.ProcessOption{backend.WithProcessLogger(logger), backend.WithDir(cc.Dir)}
		if cc.PTY {
			opts = append(opts, backend.WithPTY())
		}
		if len(c.env) > 0 {
			opts = append(opts, backend.WithEnv(c.env...))
		}
		b, err := backend.StartProcess(ctx, cc.Command[0], cc.Command[1:], opts...)
		return b, identity, err
	default:
		return nil, identity, fmt.Errorf("unknown backend: %s", cc.Backend)
	}
}

// Execute runs a console session until input ends or the backend exits.
func (c *RunCommand) Execute(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	lc, err := resolveLogConfig(c.logFile, c.logLevel, c.config)
	if err != nil {
		return err
	}
	defer lc.Close()
	logger := lc.logger(stderr)

	cc, hc := c.settings(args)
	policy, err := session.ParseRejectPolicy(cc.OnReject)
	if err != nil {
		return err
	}
	filter, err := outputFilter(cc)
	if err != nil {
		return err
	}

	if hc.PersistenceID == config.AutoPersistenceID {
		id, err := terminalid.New().Detect(ctx, "")
		if err != nil {
			return err
		}
		logger.Debug("detected terminal", "id", id.Value, "source", id.Source)
		hc.PersistenceID = id.Value
	}

	store, err := openStorage(hc, c.historyBackend, c.historyDir)
	if err != nil {
		return err
	}
	defer store.Close()

	host := new(sessionHost)
	be, identity, err := c.startBackend(ctx, cc, host, logger)
	if err != nil {
		return fmt.Errorf("failed to start backend: %w", err)
	}
	defer be.Close()

	b := session.NewBuilder(identity).
		Backend(be).
		HistoryKey(hc.Type, hc.PersistenceID).
		HistoryStorage(store).
		MaxHistoryEntries(hc.MaxEntries).
		AnnotationProvider(annotation.NewPromptProvider()).
		Logger(logger).
		OnReject(policy).
		EchoInput(cc.Echo).
		OutputFilter(filter).
		Context(ctx)
	if cc.Gate != "" {
		b.ExecutionExpr(cc.Gate)
	}
	sess, err := b.Build()
	if err != nil {
		return err
	}
	host.sess.Store(sess)
	defer func() {
		if derr := sess.Dispose(); derr != nil {
			_, _ = fmt.Fprintf(stderr, "Warning: %v\n", derr)
		}
	}()
	if sess.HistoryDegraded() {
		_, _ = fmt.Fprintln(stderr, "Warning: history could not be loaded; this session's history will not be saved")
	}

	r := render.New(c.renderOptions(cc.Color, stdout)...)
	interactive := c.isTTY()
	if !c.transcript || interactive {
		out := &syncWriter{w: stdout}
		unsubscribe := sess.Subscribe(func(ev outputlog.Event) {
			switch {
			case ev.Kind == outputlog.Cleared && interactive:
				_, _ = io.WriteString(out, clearScreen)
			case ev.Kind != outputlog.Appended, interactive && ev.Chunk.Type == outputlog.UserInput:
			default:
				_, _ = io.WriteString(out, r.Chunk(ev.Chunk))
			}
		})
		defer unsubscribe()
	}

	if interactive {
		c.runPrompt(ctx, sess, cc, stdout, stderr)
	} else {
		c.runLines(ctx, sess, logger)
	}

	if err := be.CloseInput(); err != nil {
		logger.Debug("failed to close backend input", "error", err)
	}
	waitCtx, cancel := context.WithTimeout(ctx, c.drainTimeout)
	defer cancel()
	if err := sess.WaitOutput(waitCtx); err != nil {
		logger.Warn("backend output did not finish", "error", err)
	}

	if c.transcript && !interactive {
		if err := r.Render(stdout, sess.Log(), sess.Bridge()); err != nil {
			return err
		}
	}

	select {
	case <-be.Done():
		if ec, ok := be.(exitCoder); ok && ec.ExitCode() > 0 {
			return &ExitCodeError{Code: ec.ExitCode()}
		}
	default:
	}
	return nil
}

func (c *RunCommand) renderOptions(color string, stdout io.Writer) []render.Option {
	switch color {
	case "always":
		return nil
	case "never":
		return []render.Option{render.WithPlain()}
	}
	if _, ok := os.LookupEnv("NO_COLOR"); ok {
		return []render.Option{render.WithPlain()}
	}
	if f, ok := stdout.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		if w, _, err := term.GetSize(int(f.Fd())); err == nil && w > 0 {
			return []render.Option{render.WithWidth(min(w, 80))}
		}
		return nil
	}
	return []render.Option{render.WithPlain()}
}

// outputFilter builds the backend output filter from the console settings.
// It returns nil when nothing is filtered.
func outputFilter(cc config.ConsoleConfig) (outputlog.Filter, error) {
	var filters []outputlog.Filter
	switch cc.SystemOutput {
	case "", "all":
	case "exit":
		filters = append(filters, outputlog.KeepSystemContaining(backend.ExitMarker))
	default:
		return nil, fmt.Errorf("unknown system-output %q (want all or exit)", cc.SystemOutput)
	}
	if len(cc.DropPrefix) > 0 {
		filters = append(filters, outputlog.DropLinesWithPrefix(cc.DropPrefix...))
	}
	if len(filters) == 0 {
		return nil, nil
	}
	return outputlog.Chain(filters...), nil
}

// runLines submits each line of stdin until input ends or a submission is
// rejected. Each line is submitted on the interaction thread, after the
// output of script evaluations already queued there.
func (c *RunCommand) runLines(ctx context.Context, sess *session.Session, logger *slog.Logger) {
	scanner := bufio.NewScanner(c.stdin)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		var err error
		if derr := sess.Do(ctx, func() { err = sess.Submit(line) }); derr != nil {
			logger.Warn("stopping: interaction thread unavailable", "error", derr)
			return
		}
		if errors.Is(err, session.ErrRejected) {
			logger.Info("stopping: submission rejected", "error", err)
			return
		}
	}
	if err := scanner.Err(); err != nil {
		logger.Warn("failed to read input", "error", err)
	}
}

// clearScreen homes the cursor and erases the display.
const clearScreen = "\x1b[H\x1b[2J"

// runPrompt reads submissions with go-prompt until Enter is pressed while
// execution is disabled. Ctrl-L clears the output log.
func (c *RunCommand) runPrompt(ctx context.Context, sess *session.Session, cc config.ConsoleConfig, stdout, stderr io.Writer) {
	executor := func(line string) {
		var err error
		if derr := sess.Do(ctx, func() { err = sess.Submit(line) }); derr != nil {
			err = derr
		}
		var rejected *session.RejectedError
		switch {
		case err == nil, errors.Is(err, session.ErrBackendFailure):
		case errors.As(err, &rejected):
			_, _ = fmt.Fprintf(stderr, "rejected: %s\n", rejected.Reason)
		default:
			_, _ = fmt.Fprintf(stderr, "submit failed: %v\n", err)
		}
	}
	options := []prompt.Option{
		prompt.WithPrefix(cc.Prefix),
		prompt.WithExitChecker(func(_ string, breakline bool) bool {
			return breakline && !sess.CanExecute()
		}),
		prompt.WithKeyBind(prompt.KeyBind{
			Key: prompt.ControlL,
			Fn: func(*prompt.Prompt) bool {
				var err error
				if derr := sess.Do(ctx, func() { err = sess.ClearOutput() }); derr != nil {
					err = derr
				}
				if err != nil {
					_, _ = fmt.Fprintf(stderr, "clear failed: %v\n", err)
				}
				return true
			},
		}),
	}
	if cc.Color != "never" {
		options = append(options, prompt.WithPrefixTextColor(prompt.Cyan))
	}
	if texts := sess.History().Texts(); len(texts) > 0 {
		options = append(options, prompt.WithHistory(texts))
	}
	options = append(options, c.promptOptions...)
	prompt.New(executor, options...).Run()
	_, _ = fmt.Fprintln(stdout)
}

// syncWriter serializes writes from the interaction thread and the prompt.
type syncWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (w *syncWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.w.Write(p)
}

// sessionHost exposes a session to osc:console. The backend starts before
// the session is built, so the session is attached afterwards.
type sessionHost struct {
	sess atomic.Pointer[session.Session]
}

func (h *sessionHost) Language() string { return h.sess.Load().Identity().Language }

func (h *sessionHost) History() []string { return h.sess.Load().History().Texts() }

func (h *sessionHost) Submissions() int { return h.sess.Load().Submissions() }

func (h *sessionHost) ClearOutput() error { return h.sess.Load().ClearOutput() }
