// Package terminalid derives a stable identifier for the terminal a console
// runs in, so that history can be kept per terminal pane instead of shared by
// every console of a type.
//
// Identifiers have the form {namespace}--{payload} and only contain
// characters that are safe in file names.
package terminalid

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

// EnvOverride, when set, is used verbatim (after sanitizing) as the ID.
const EnvOverride = "OSC_TERMINAL_ID"

const (
	maxLength  = 80
	delimiter  = "--"
	hashLength = 16
)

// Namespaces, one per detection source.
const (
	NamespaceExplicit = "ex"
	NamespaceTmux     = "tmux"
	NamespaceScreen   = "screen"
	NamespaceSSH      = "ssh"
	NamespaceTerminal = "terminal"
	NamespaceUUID     = "uuid"
)

// ID is a detected terminal identifier.
type ID struct {
	Value  string
	Source string
}

func (id ID) String() string { return id.Value }

// Env looks up environment variables. os.LookupEnv satisfies it.
type Env func(key string) (string, bool)

// Detector resolves terminal IDs. The zero value is not usable; use New.
type Detector struct {
	env  Env
	tmux func(ctx context.Context) (string, error)
}

// Option configures a Detector.
type Option func(*Detector)

// WithEnv replaces the environment lookup.
func WithEnv(env Env) Option {
	return func(d *Detector) { d.env = env }
}

// WithTmuxQuery replaces the query used to ask tmux for the current pane.
func WithTmuxQuery(fn func(ctx context.Context) (string, error)) Option {
	return func(d *Detector) { d.tmux = fn }
}

// New returns a Detector reading the process environment.
func New(opts ...Option) *Detector {
	d := &Detector{env: os.LookupEnv, tmux: queryTmux}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Detect returns the ID of the current terminal. Sources are tried in order:
// the explicit value, EnvOverride, tmux, GNU screen, SSH, the macOS terminal
// session, and finally a random UUID (which is never stable).
func (d *Detector) Detect(ctx context.Context, explicit string) (ID, error) {
	if explicit != "" {
		return ID{Value: formatExplicit(explicit), Source: "explicit"}, nil
	}
	if v := d.get(EnvOverride); v != "" {
		return ID{Value: formatExplicit(v), Source: "env"}, nil
	}
	if d.get("TMUX_PANE") != "" && d.tmux != nil {
		if raw, err := d.tmux(ctx); err == nil && raw != "" {
			return ID{Value: formatTmux(raw), Source: "tmux"}, nil
		}
	}
	if v := d.get("STY"); v != "" {
		return ID{Value: hashed(NamespaceScreen, "screen:"+v), Source: "screen"}, nil
	}
	if v := d.get("SSH_CONNECTION"); v != "" {
		return ID{Value: hashed(NamespaceSSH, "ssh:"+strings.Join(strings.Fields(v), ":")), Source: "ssh"}, nil
	}
	if v := d.get("TERM_SESSION_ID"); v != "" {
		return ID{Value: hashed(NamespaceTerminal, "terminal:"+v), Source: "terminal"}, nil
	}
	u, err := uuid.NewRandom()
	if err != nil {
		return ID{}, fmt.Errorf("failed to generate terminal id: %w", err)
	}
	return ID{Value: format(NamespaceUUID, u.String()), Source: "uuid"}, nil
}

func (d *Detector) get(key string) string {
	if d.env == nil {
		return ""
	}
	v, _ := d.env(key)
	return v
}

func queryTmux(ctx context.Context) (string, error) {
	path, err := exec.LookPath("tmux")
	if err != nil {
		return "", err
	}
	ctx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
	defer cancel()
	out, err := exec.CommandContext(ctx, path, "display-message", "-p", "#{session_id}:#{window_id}:#{pane_id}").Output()
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}

// tmuxPane matches "$0:@0:%0" (session:window:pane).
var tmuxPane = regexp.MustCompile(`^\$(\w+):@(\w+):%(\w+)$`)

func formatTmux(raw string) string {
	if m := tmuxPane.FindStringSubmatch(raw); m != nil {
		return format(NamespaceTmux, fmt.Sprintf("s%s.w%s.p%s", m[1], m[2], m[3]))
	}
	return format(NamespaceTmux, strings.NewReplacer("$", "s", "@", "w", "%", "p", ":", ".").Replace(raw))
}

func formatExplicit(v string) string {
	if ns, payload, ok := strings.Cut(v, delimiter); ok && ns != "" {
		return format(sanitize(ns), payload)
	}
	return format(NamespaceExplicit, v)
}

func hashed(namespace, v string) string {
	return format(namespace, hash(v)[:hashLength])
}

// format sanitizes payload and, when the result is too long, truncates it
// with a suffix taken from the hash of the unsanitized payload.
func format(namespace, payload string) string {
	sum := hash(payload)
	payload = sanitize(payload)
	limit := maxLength - len(namespace) - len(delimiter)
	if len(payload) > limit {
		if keep := limit - 9; keep >= 8 {
			payload = payload[:keep] + "_" + sum[:8]
		} else {
			payload = sum[:max(limit, 0)]
		}
	}
	return namespace + delimiter + payload
}

func sanitize(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, s)
}

func hash(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}
