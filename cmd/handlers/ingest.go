package handlers

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"kynews/internal/config"
	"kynews/internal/logger"

	"github.com/spf13/cobra"
)

// NewIngestCmd creates the ingest command for running the fetch pipeline
func NewIngestCmd() *cobra.Command {
	var loop bool

	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Fetch, classify, and store articles from all enabled feeds",
		Long: `Run the ingestion pipeline over every enabled feed.

Each cycle:
  • Conditionally fetches feeds and listing pages (ETag / Last-Modified)
  • Parses RSS/Atom or scrapes article links out of HTML listings
  • Fetches article bodies for items with thin feed content
  • Classifies items by Kentucky county and scope
  • Deduplicates on canonical URL and upserts into the store
  • Mirrors hero images and generates summaries when configured

One feed failing never stops the others; per-feed outcomes are recorded
with the run.

Examples:
  # Run one cycle and exit (for cron)
  kynewsd ingest

  # Run continuously on the configured interval
  kynewsd ingest --loop`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIngest(cmd.Context(), loop)
		},
	}

	cmd.Flags().BoolVar(&loop, "loop", false, "Keep running on the configured interval")

	return cmd
}

func runIngest(ctx context.Context, loop bool) error {
	log := logger.Get()
	cfg := config.Get()

	db, err := getDatabase()
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	kv := openCache(cfg)
	if kv != nil {
		defer func() { _ = kv.Close() }()
	}

	ingestor, closeLLM, err := buildIngestor(ctx, cfg, db, kv, buildMirror(cfg, db))
	if err != nil {
		return fmt.Errorf("failed to build ingestion pipeline: %w", err)
	}
	defer closeLLM()

	if !loop {
		run, err := ingestor.RunOnce(ctx)
		if err != nil {
			if kv != nil {
				_ = kv.RecordError(ctx, "ingest", err.Error())
			}
			return err
		}
		fmt.Printf("Run %s: %d feeds, %d items seen, %d upserted, %d errors\n",
			run.ID, run.FeedsProcessed, run.ItemsSeen, run.ItemsUpserted, run.Errors)
		return nil
	}

	log.Info("Starting ingestion scheduler", "interval", cfg.Ingest.Interval)

	loopCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig := <-shutdown
		log.Info("Ingestion shutdown initiated", "signal", sig.String())
		cancel()
	}()

	if err := ingestor.Run(loopCtx, cfg.Ingest.Interval); err != nil && err != context.Canceled {
		return err
	}
	return nil
}
