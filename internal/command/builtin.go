package command

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"io"
	"maps"
	"slices"
	"strings"
	"text/tabwriter"

	"github.com/joeycumines/one-shot-console/internal/config"
)

// HelpCommand displays help information for commands.
type HelpCommand struct {
	*BaseCommand
	registry *Registry
}

// NewHelpCommand creates a new help command.
func NewHelpCommand(registry *Registry) *HelpCommand {
	return &HelpCommand{
		BaseCommand: NewBaseCommand(
			"help",
			"Display help information for commands",
			"help [command]",
		),
		registry: registry,
	}
}

// Execute displays help information.
func (c *HelpCommand) Execute(_ context.Context, args []string, stdout, stderr io.Writer) error {
	program := c.registry.Program()
	if len(args) == 0 {
		_, _ = fmt.Fprintf(stdout, "%s - interactive console sessions with persistent history\n\n", program)
		_, _ = fmt.Fprintf(stdout, "Usage: %s <command> [options] [args...]\n\n", program)
		_, _ = fmt.Fprintln(stdout, "Commands:")

		w := tabwriter.NewWriter(stdout, 0, 8, 2, ' ', 0)
		for _, name := range c.registry.List() {
			if cmd, err := c.registry.Get(name); err == nil {
				_, _ = fmt.Fprintf(w, "  %s\t%s\n", name, cmd.Description())
			}
		}
		_ = w.Flush()

		_, _ = fmt.Fprintf(stdout, "\nUse '%s help <command>' for more information about a command.\n", program)
		return nil
	}

	cmd, err := c.registry.Get(args[0])
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Unknown command: %s\n", args[0])
		return err
	}

	_, _ = fmt.Fprintf(stdout, "Command: %s\n", cmd.Name())
	_, _ = fmt.Fprintf(stdout, "Description: %s\n", cmd.Description())
	_, _ = fmt.Fprintf(stdout, "Usage: %s %s\n", program, cmd.Usage())

	fs := flag.NewFlagSet(cmd.Name(), flag.ContinueOnError)
	var buf bytes.Buffer
	fs.SetOutput(&buf)
	cmd.SetupFlags(fs)
	fs.PrintDefaults()
	if buf.Len() > 0 {
		_, _ = fmt.Fprintln(stdout, "\nFlags:")
		_, _ = fmt.Fprint(stdout, buf.String())
	}
	return nil
}

// VersionCommand displays version information.
type VersionCommand struct {
	*BaseCommand
	version string
}

// NewVersionCommand creates a new version command.
func NewVersionCommand(version string) *VersionCommand {
	return &VersionCommand{
		BaseCommand: NewBaseCommand("version", "Display version information", "version"),
		version:     version,
	}
}

// Execute displays version information.
func (c *VersionCommand) Execute(_ context.Context, args []string, stdout, stderr io.Writer) error {
	if len(args) > 0 {
		_, _ = fmt.Fprintf(stderr, "unexpected arguments: %v\n", args)
		return fmt.Errorf("unexpected arguments")
	}
	_, _ = fmt.Fprintf(stdout, "one-shot-console version %s\n", c.version)
	return nil
}

// ConfigCommand reads and writes configuration options.
type ConfigCommand struct {
	*BaseCommand
	config     *config.Config
	configPath string

	section    string
	showGlobal bool
	showAll    bool
}

// NewConfigCommand creates a new config command. With an empty configPath,
// set values only live in memory.
func NewConfigCommand(cfg *config.Config, configPath string) *ConfigCommand {
	return &ConfigCommand{
		BaseCommand: NewBaseCommand(
			"config",
			"Manage configuration settings",
			"config [options] [key [value...]] | validate | schema",
		),
		config:     cfg,
		configPath: configPath,
	}
}

// SetupFlags configures the flags for the config command.
func (c *ConfigCommand) SetupFlags(fs *flag.FlagSet) {
	fs.StringVar(&c.section, "section", "", "Section of the key, e.g. history or console")
	fs.BoolVar(&c.showGlobal, "global", false, "Show only global configuration")
	fs.BoolVar(&c.showAll, "all", false, "Show all configuration")
}

// Execute manages configuration.
func (c *ConfigCommand) Execute(_ context.Context, args []string, stdout, stderr io.Writer) error {
	if len(args) == 0 {
		switch {
		case c.showAll:
			c.printOptions(stdout, "Global configuration:", c.config.Global)
			for _, name := range slices.Sorted(maps.Keys(c.config.Sections)) {
				c.printOptions(stdout, "["+name+"]", c.config.Sections[name])
			}
		case c.showGlobal:
			c.printOptions(stdout, "Global configuration:", c.config.Global)
		default:
			_, _ = fmt.Fprintln(stdout, "Configuration management:")
			_, _ = fmt.Fprintln(stdout, "  config [--section s] <key>          - Get configuration value")
			_, _ = fmt.Fprintln(stdout, "  config [--section s] <key> <value>  - Set configuration value")
			_, _ = fmt.Fprintln(stdout, "  config --global                     - Show global configuration")
			_, _ = fmt.Fprintln(stdout, "  config --all                        - Show all configuration")
			_, _ = fmt.Fprintln(stdout, "  config validate                     - Validate configuration")
			_, _ = fmt.Fprintln(stdout, "  config schema                       - Describe every option")
		}
		return nil
	}

	if c.section == "" && len(args) == 1 {
		switch args[0] {
		case "validate":
			return c.validate(stdout, stderr)
		case "schema":
			_, _ = fmt.Fprint(stdout, config.DefaultSchema().FormatHelp())
			return nil
		}
	}

	key := args[0]
	schema := config.DefaultSchema()
	if !schema.IsKnown(c.section, key) {
		_, _ = fmt.Fprintf(stderr, "Warning: unknown option %s\n", c.describe(key))
	}

	if len(args) == 1 {
		v, ok := c.config.GetSectionOption(c.section, key)
		if !ok {
			if opt := schema.Lookup(c.section, key); opt != nil && opt.Default != "" {
				_, _ = fmt.Fprintf(stdout, "%s: %s (default)\n", c.describe(key), opt.Default)
				return nil
			}
			_, _ = fmt.Fprintf(stdout, "%s: not set\n", c.describe(key))
			return nil
		}
		_, _ = fmt.Fprintf(stdout, "%s: %s\n", c.describe(key), v)
		return nil
	}

	value := strings.Join(args[1:], " ")
	if c.section == "" {
		c.config.SetGlobalOption(key, value)
	} else {
		c.config.SetSectionOption(c.section, key, value)
	}
	if c.configPath != "" {
		if err := config.SetKeyInFile(c.configPath, c.section, key, value); err != nil {
			return fmt.Errorf("failed to save config: %w", err)
		}
	}
	_, _ = fmt.Fprintf(stdout, "Set %s = %s\n", c.describe(key), value)
	return nil
}

func (c *ConfigCommand) describe(key string) string {
	if c.section == "" {
		return key
	}
	return "[" + c.section + "] " + key
}

func (c *ConfigCommand) printOptions(w io.Writer, title string, opts map[string]string) {
	_, _ = fmt.Fprintln(w, title)
	for _, key := range slices.Sorted(maps.Keys(opts)) {
		_, _ = fmt.Fprintf(w, "  %s: %s\n", key, opts[key])
	}
}

func (c *ConfigCommand) validate(stdout, stderr io.Writer) error {
	issues := config.ValidateConfig(c.config, config.DefaultSchema())
	if len(issues) == 0 {
		_, _ = fmt.Fprintln(stdout, "Configuration is valid.")
		return nil
	}
	for _, issue := range issues {
		_, _ = fmt.Fprintf(stderr, "  %s\n", issue)
	}
	return fmt.Errorf("configuration has %d issue(s)", len(issues))
}
