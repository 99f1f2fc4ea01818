// Package main is the entry point for the mailcode batch processor.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/shineum/mailcode-lite/internal/config"
	"github.com/shineum/mailcode-lite/internal/server"
	"github.com/shineum/mailcode-lite/internal/servertls"
)

const usage = `usage: mailcode [-config file] <command> [flags]

commands:
  run     process credential lines and write NDJSON outcomes to stdout
  serve   start the HTTP API
`

func main() {
	configPath := flag.String("config", "", "path to YAML configuration file (optional)")
	flag.Usage = func() {
		fmt.Fprint(flag.CommandLine.Output(), usage)
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	// Load configuration
	cfg, err := loadConfig(*configPath)
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	go func() {
		sig := <-sigCh
		slog.Info("received signal, initiating shutdown", "signal", sig)
		cancel()
	}()

	switch cmd, args := flag.Arg(0), flag.Args()[1:]; cmd {
	case "run":
		// Stdout carries outcomes, so logs go to stderr.
		setupLogger(os.Stderr, cfg.Logging.Level)
		if err := runCommand(ctx, cfg, args, os.Stdin, os.Stdout); err != nil {
			slog.Error("run failed", "error", err)
			os.Exit(1)
		}

	case "serve":
		setupLogger(os.Stdout, cfg.Logging.Level)
		if err := serveCommand(ctx, cfg); err != nil {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
		slog.Info("mailcode stopped")

	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n", cmd)
		flag.Usage()
		os.Exit(2)
	}
}

// serveCommand starts the HTTP API and blocks until ctx is cancelled.
func serveCommand(ctx context.Context, cfg *config.Config) error {
	p, err := buildPipeline(cfg)
	if err != nil {
		return err
	}
	rep, err := selectReporter(ctx, cfg, os.Stdout)
	if err != nil {
		return err
	}

	tlsConfig, err := servertls.Build(cfg.Server.TLS.Mode, cfg.Server.TLS.CertFile, cfg.Server.TLS.KeyFile, cfg.Server.TLS.Hosts)
	if err != nil {
		return fmt.Errorf("failed to setup TLS: %w", err)
	}

	srv := server.New(server.Config{
		ListenAddr:      cfg.Server.Listen,
		TLSConfig:       tlsConfig,
		Pipeline:        p,
		Reporter:        rep,
		Mode:            batchMode(cfg),
		Types:           cfg.Batch.Types,
		Concurrency:     cfg.Batch.Concurrency,
		DefaultClientID: cfg.Batch.DefaultClientID,
	})

	slog.Info("starting mailcode",
		"listen", cfg.Server.Listen,
		"token_backend", cfg.Token.Backend,
		"reporter", rep.Name(),
		"tls_mode", cfg.Server.TLS.Mode,
	)

	// Blocks until context is cancelled
	return srv.ListenAndServe(ctx)
}

// loadConfig loads configuration from the specified path (YAML + env override)
// or from environment variables only if no path is given.
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFromFile(path)
	}
	return config.Load()
}

// setupLogger configures the global slog logger with JSON output and the
// specified log level.
func setupLogger(w io.Writer, level string) {
	var logLevel slog.Level

	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "info":
		logLevel = slog.LevelInfo
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: logLevel,
	})
	slog.SetDefault(slog.New(handler))
}
