// Command parley runs the multi-agent chat relay: a WebSocket gateway in
// front of a set of AI providers that take turns responding to a room.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/germanamz/parley/cmd/parley/internal/gateway"
	"github.com/germanamz/parley/pkg/engine"
	"github.com/joho/godotenv"
)

func main() {
	// Handle subcommands before flag parsing.
	if len(os.Args) > 1 && os.Args[1] == "join" {
		if err := runJoin(os.Args[2:]); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: parley [flags]\n       parley join [flags]\n\nFlags:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nCommands:\n  join    Connect to a running gateway as a terminal chat client\n")
	}

	cfgPath := flag.String("config", "parley.yaml", "path to configuration file")
	envPath := flag.String("env", ".env", "path to .env file with provider credentials")
	flag.Parse()

	if err := run(*cfgPath, *envPath); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(cfgPath, envPath string) error {
	if err := loadDotEnv(envPath); err != nil {
		return fmt.Errorf("load env: %w", err)
	}

	cfg, err := engine.LoadConfig(cfgPath)
	if err != nil {
		return err
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	e, err := engine.New(cfg, logger)
	if err != nil {
		return err
	}

	g := gateway.New(e, cfg.Secret, logger)

	srv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           g.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("gateway listening", "addr", cfg.Listen, "agents", e.AgentNames())
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}

	return nil
}

// loadDotEnv loads environment variables from path. Missing files are
// ignored so the credentials can come from the real environment instead.
func loadDotEnv(path string) error {
	err := godotenv.Load(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}
