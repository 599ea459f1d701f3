package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/prismd/prismd/internal/config"
	"github.com/prismd/prismd/internal/engine"
	"github.com/prismd/prismd/internal/highlight"
	"github.com/prismd/prismd/internal/logging"
	"github.com/prismd/prismd/internal/pool"
	"github.com/prismd/prismd/internal/registry"
	"github.com/prismd/prismd/internal/server"
)

var serveCmd = &cobra.Command{
	Use:     "serve",
	Aliases: []string{"s"},
	Short:   "Start the highlighting server",
	Long: `Start the batch-highlighting HTTP server.

The server accepts binary batch frames on POST /v1/html, spreads the
files across a bounded worker pool, and answers with one rendered
document or one typed failure per submitted file.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().IntP("port", "p", 8443, "port to listen on")
	serveCmd.Flags().String("host", "0.0.0.0", "host to bind to")
	serveCmd.Flags().Int("max-workers", config.DefaultMaxWorkers, "maximum concurrently executing highlight jobs")
	serveCmd.Flags().String("class-map", "", "YAML file of scope to CSS class overrides")
	viper.BindPFlag("server.port", serveCmd.Flags().Lookup("port"))
	viper.BindPFlag("server.host", serveCmd.Flags().Lookup("host"))
	viper.BindPFlag("pool.max_workers", serveCmd.Flags().Lookup("max-workers"))
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if err := config.Validate(cfg); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	log := newLogger(cfg)
	ctx := cmd.Context()

	renderer := highlight.NewHTMLRenderer()
	if path, _ := cmd.Flags().GetString("class-map"); path != "" {
		if err := renderer.LoadClassMap(path); err != nil {
			return err
		}
	}

	workers := pool.New(pool.Config{
		MaxWorkers:  cfg.Pool.MaxWorkers,
		QueueDepth:  cfg.Pool.QueueDepth,
		IdleTimeout: cfg.Pool.IdleTimeout,
		Logger:      log,
	})
	defer workers.Close()

	reg := registry.Default()
	coord := engine.NewCoordinator(engine.Config{
		Registry:       reg,
		Pool:           workers,
		Renderer:       renderer,
		DefaultTimeout: cfg.DefaultTimeout(),
		MaxTimeout:     cfg.MaxTimeout(),
		Logger:         log,
	})

	srv := server.New(cfg, coord, reg, log)

	if cfg.Telemetry.Enabled {
		go reportTelemetry(ctx, log, workers)
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start(ctx) }()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		log.Info(ctx, "signal received", "signal", sig.String())
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return <-errCh
}

// reportTelemetry logs request counters and pool occupancy periodically.
func reportTelemetry(ctx context.Context, log logging.Logger, workers *pool.Pool) {
	counters := server.Counters()
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			log.Info(ctx, "telemetry",
				"requests", counters.Requests.Load(),
				"errors", counters.Errors.Load(),
				"in_flight", counters.InFlight.Load(),
				"workers", workers.Workers(),
				"queue_len", workers.QueueLen(),
			)
		}
	}
}

func newLogger(cfg *config.Config) logging.Logger {
	return logging.NewLogger(&logging.LoggerConfig{
		Level:  logging.ParseLevel(cfg.Log.Level),
		Format: cfg.Log.Format,
		Output: os.Stderr,
	})
}
