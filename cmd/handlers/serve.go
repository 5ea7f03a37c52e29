package handlers

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"kynews/internal/config"
	"kynews/internal/logger"
	"kynews/internal/server"

	"github.com/spf13/cobra"
)

// NewServeCmd creates the serve command for starting the HTTP server
func NewServeCmd() *cobra.Command {
	var (
		port          int
		host          string
		withScheduler bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the news API server",
		Long: `Start the kynews HTTP server.

The server provides:
  • Paginated item listing and search with county and scope filters
  • Mirrored article images
  • Health check, status, and admin endpoints

The server reads from the database populated by 'kynewsd ingest'. Run
ingestion separately, or pass --with-scheduler to run it inside this
process on the configured interval.

Examples:
  # Start server on the configured port
  kynewsd serve

  # Start on a custom port with in-process ingestion
  kynewsd serve --port 3000 --with-scheduler`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), port, host, withScheduler)
		},
	}

	cmd.Flags().IntVar(&port, "port", 0, "HTTP server port (default from config: 8080)")
	cmd.Flags().StringVar(&host, "host", "", "HTTP server host (default from config: 0.0.0.0)")
	cmd.Flags().BoolVar(&withScheduler, "with-scheduler", false, "Run the ingestion scheduler in this process")

	return cmd
}

func runServe(ctx context.Context, port int, host string, withScheduler bool) error {
	log := logger.Get()

	cfg := config.Get()
	if port != 0 {
		cfg.Server.Port = port
	}
	if host != "" {
		cfg.Server.Host = host
	}

	db, err := getDatabase()
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	if err := db.Ping(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w\n\n"+
			"Make sure PostgreSQL is running and the connection string is correct.\n"+
			"Run 'kynewsd migrate up' to initialize the database schema.", err)
	}

	kv := openCache(cfg)
	if kv != nil {
		defer func() { _ = kv.Close() }()
	}

	mirror := buildMirror(cfg, db)
	ingestor, closeLLM, err := buildIngestor(ctx, cfg, db, kv, mirror)
	if err != nil {
		return fmt.Errorf("failed to build ingestion pipeline: %w", err)
	}
	defer closeLLM()

	schedulerCtx, stopScheduler := context.WithCancel(ctx)
	defer stopScheduler()
	if withScheduler {
		log.Info("Starting in-process ingestion scheduler", "interval", cfg.Ingest.Interval)
		go func() {
			if err := ingestor.Run(schedulerCtx, cfg.Ingest.Interval); err != nil && schedulerCtx.Err() == nil {
				logger.Error("ingestion scheduler stopped", err)
			}
		}()
	}

	srv := server.New(db, kv, mirror, ingestor, cfg)

	serverErrors := make(chan error, 1)
	go func() {
		log.Info(fmt.Sprintf("Server listening on http://%s:%d", cfg.Server.Host, cfg.Server.Port))
		serverErrors <- srv.Start()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		return fmt.Errorf("server error: %w", err)

	case sig := <-shutdown:
		log.Info("Server shutdown initiated", "signal", sig.String())
		stopScheduler()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown failed: %w", err)
		}
		log.Info("Server stopped successfully")
	}

	return nil
}
