package command

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/joeycumines/one-shot-console/internal/config"
	"github.com/joeycumines/one-shot-console/internal/storage"
)

// historyScanner is implemented by backends that can enumerate their keys.
type historyScanner interface {
	ScanHistories() ([]storage.HistoryInfo, error)
}

// openStorage opens the history backend named by the flags, falling back to
// the [history] section.
func openStorage(hc config.HistoryConfig, backendFlag, dirFlag string) (storage.Backend, error) {
	name, dir := hc.Backend, hc.Dir
	if backendFlag != "" {
		name = backendFlag
	}
	if dirFlag != "" {
		dir = dirFlag
	}
	b, err := storage.GetBackend(name, dir)
	if err != nil {
		return nil, fmt.Errorf("failed to open history storage: %w", err)
	}
	return b, nil
}

// HistoryCommand lists, shows and clears persisted histories.
type HistoryCommand struct {
	*BaseCommand
	config *config.Config

	backend string
	dir     string
	clear   bool
	limit   int
	json    bool
}

// NewHistoryCommand creates a new history command.
func NewHistoryCommand(cfg *config.Config) *HistoryCommand {
	return &HistoryCommand{
		BaseCommand: NewBaseCommand(
			"history",
			"List, show or clear persisted console histories",
			"history [options] [type [persistence-id]]",
		),
		config: cfg,
	}
}

// SetupFlags configures the flags for the history command.
func (c *HistoryCommand) SetupFlags(fs *flag.FlagSet) {
	fs.StringVar(&c.backend, "backend", "", "History storage backend (fs, memory)")
	fs.StringVar(&c.dir, "dir", "", "History directory (fs backend)")
	fs.BoolVar(&c.clear, "clear", false, "Delete the named history")
	fs.IntVar(&c.limit, "limit", 0, "Show only the newest N entries")
	fs.BoolVar(&c.json, "json", false, "Output JSON")
}

// Execute runs the history command.
func (c *HistoryCommand) Execute(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	if len(args) > 2 {
		_, _ = fmt.Fprintf(stderr, "unexpected arguments: %v\n", args[2:])
		return fmt.Errorf("unexpected arguments")
	}

	b, err := openStorage(c.config.History(), c.backend, c.dir)
	if err != nil {
		return err
	}
	defer b.Close()

	if len(args) == 0 {
		if c.clear {
			return fmt.Errorf("--clear requires a history type")
		}
		return c.list(b, stdout)
	}

	key := storage.Key{Type: args[0]}
	if len(args) == 2 {
		key.PersistenceID = args[1]
	}
	if err := key.Validate(); err != nil {
		return err
	}

	if c.clear {
		if err := b.DeleteHistory(ctx, key); err != nil {
			return fmt.Errorf("failed to clear history %s: %w", key, err)
		}
		_, _ = fmt.Fprintf(stdout, "Cleared history %s\n", key)
		return nil
	}
	return c.show(ctx, b, key, stdout)
}

func (c *HistoryCommand) list(b storage.Backend, stdout io.Writer) error {
	scanner, ok := b.(historyScanner)
	if !ok {
		return fmt.Errorf("history backend cannot list histories; name a history type")
	}
	infos, err := scanner.ScanHistories()
	if err != nil {
		return fmt.Errorf("failed to scan histories: %w", err)
	}

	if c.json {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(infos)
	}

	if len(infos) == 0 {
		_, _ = fmt.Fprintln(stdout, "No histories found.")
		return nil
	}
	w := tabwriter.NewWriter(stdout, 0, 8, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "KEY\tSIZE\tUPDATED\t")
	for _, info := range infos {
		status := ""
		if info.Writing {
			status = "(writing)"
		}
		_, _ = fmt.Fprintf(w, "%s\t%d\t%s\t%s\n", info.Key, info.Size, info.UpdatedAt.Format(time.DateTime), status)
	}
	return w.Flush()
}

func (c *HistoryCommand) show(ctx context.Context, b storage.Backend, key storage.Key, stdout io.Writer) error {
	doc, err := b.LoadHistory(ctx, key)
	if err != nil {
		return fmt.Errorf("failed to load history %s: %w", key, err)
	}
	if doc == nil {
		doc = &storage.HistoryDocument{Type: key.Type, PersistenceID: key.PersistenceID}
	}
	entries := doc.Entries
	if c.limit > 0 && len(entries) > c.limit {
		entries = entries[len(entries)-c.limit:]
	}

	if c.json {
		out := *doc
		out.Entries = entries
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	}

	if len(doc.Entries) == 0 {
		_, _ = fmt.Fprintf(stdout, "History %s is empty.\n", key)
		return nil
	}
	for _, e := range entries {
		_, _ = fmt.Fprintf(stdout, "%5d  %s\n", e.Seq, e.Text)
	}
	if doc.Dropped > 0 {
		_, _ = fmt.Fprintf(stdout, "(%d older entries dropped)\n", doc.Dropped)
	}
	return nil
}
