package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joeycumines/one-shot-console/internal/command"
	"github.com/joeycumines/one-shot-console/internal/config"
)

const version = "0.1.0"

func main() {
	if err := run(); err != nil {
		var exit *command.ExitCodeError
		if errors.As(err, &exit) {
			os.Exit(exit.Code)
		}
		_, _ = fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	configPath, err := config.GetConfigPath()
	if err != nil {
		configPath = ""
	}
	cfg, err := config.Load()
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
		cfg = config.NewConfig()
	}

	registry := command.NewRegistry("osc")
	registry.Register(command.NewHelpCommand(registry))
	registry.Register(command.NewVersionCommand(version))
	registry.Register(command.NewConfigCommand(cfg, configPath))
	registry.Register(command.NewRunCommand(cfg))
	registry.Register(command.NewHistoryCommand(cfg))

	return registry.Run(ctx, os.Args[1:], os.Stdout, os.Stderr)
}
