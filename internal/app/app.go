// Package app wires configuration, the backend clients and the HTTP server
// into the mirdb commands.
package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/johnmaccormick/mirDB/internal/config"
	"github.com/johnmaccormick/mirDB/internal/db"
	"github.com/johnmaccormick/mirDB/internal/handlers"
	"github.com/johnmaccormick/mirDB/internal/httpserver"
	"github.com/johnmaccormick/mirDB/internal/logging"
)

// sweepInterval is how often idle browser contexts are evicted.
const sweepInterval = 5 * time.Minute

// Run executes the command named by args[0]: serve (the default), migrate or
// seed.
func Run(ctx context.Context, args []string) error {
	command := "serve"
	if len(args) > 0 {
		command, args = args[0], args[1:]
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := logging.New(os.Stdout, cfg.LogLevel)
	slog.SetDefault(logger)
	ctx = logging.WithLogger(ctx, logger)

	switch command {
	case "serve":
		return serve(ctx, cfg)
	case "migrate":
		return runMigrations(ctx, cfg, args, os.Stdout)
	case "seed":
		return runSeed(ctx, cfg, args, os.Stdout)
	default:
		return fmt.Errorf("unknown command %q (expected serve, migrate or seed)", command)
	}
}

func serve(ctx context.Context, cfg config.Config) error {
	logger := logging.FromContext(ctx)

	var pool db.Pool
	if cfg.CatalogSource == config.CatalogSourcePostgres {
		p, err := db.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer p.Close()
		pool = p
	}

	deps, registry, err := buildDependencies(cfg, pool, logger)
	if err != nil {
		return err
	}
	go registry.Run(ctx, sweepInterval)

	logger.Info("serving mirdb",
		"port", cfg.AppPort,
		"catalog", cfg.CatalogSource,
		"base_path", cfg.BasePath,
		"backend_configured", cfg.SupabaseURL != "" && cfg.SupabaseAnonKey != "",
	)
	return httpserver.New(cfg.AppPort, handlers.NewRouter(deps)).Run(ctx)
}

func printf(out io.Writer, format string, args ...any) {
	_, _ = fmt.Fprintf(out, format, args...)
}
