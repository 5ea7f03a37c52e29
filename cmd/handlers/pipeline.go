package handlers

import (
	"context"

	"kynews/internal/cache"
	"kynews/internal/classify"
	"kynews/internal/config"
	"kynews/internal/enrich"
	"kynews/internal/ingest"
	"kynews/internal/llm"
	"kynews/internal/logger"
	"kynews/internal/media"
	"kynews/internal/persistence"
	"kynews/internal/scraper"
	"kynews/internal/summarize"
)

// openCache connects to Redis. The cache is optional everywhere it is
// used, so a connection failure only logs.
func openCache(cfg *config.Config) *cache.Cache {
	kv, err := cache.New(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, cfg.Cache.ErrorEventTTL)
	if err != nil {
		logger.Warn("redis unavailable, continuing without response cache and rate limiting", "error", err.Error())
		return nil
	}
	return kv
}

// buildMirror constructs the image mirror when object storage is
// configured, nil otherwise.
func buildMirror(cfg *config.Config, db persistence.Database) *media.Mirror {
	mc := cfg.Media
	if mc.Bucket == "" || mc.AccessKey == "" || mc.SecretKey == "" {
		return nil
	}

	store, err := media.NewS3Store(media.S3Options{
		Endpoint: mc.Endpoint,
		Region:   mc.Region,
		Key:      mc.AccessKey,
		Secret:   mc.SecretKey,
		Bucket:   mc.Bucket,
	})
	if err != nil {
		logger.Warn("object storage misconfigured, image mirroring disabled", "error", err.Error())
		return nil
	}

	return media.New(store, db.Media(), db.Items(), media.Options{
		UserAgent: cfg.Ingest.UserAgent,
		Timeout:   cfg.Ingest.ArticleTimeout,
		MaxBytes:  cfg.Media.MaxBytes,
	})
}

// buildSummarizer constructs the AI summarizer when an API key is
// configured. The returned closer releases the LLM connection.
func buildSummarizer(ctx context.Context, cfg *config.Config, db persistence.Database, kv *cache.Cache) (*summarize.Summarizer, func(), error) {
	if cfg.AI.APIKey == "" {
		logger.Info("no AI API key configured, summarization disabled")
		return nil, func() {}, nil
	}

	client, err := llm.NewClient(ctx, cfg.AI.APIKey, cfg.AI.Model)
	if err != nil {
		return nil, nil, err
	}

	opts := summarize.DefaultOptions()
	if cfg.Cache.SummaryTTL > 0 {
		opts.CacheTTL = cfg.Cache.SummaryTTL
	}

	var blobs summarize.BlobCache
	if kv != nil {
		blobs = kv
	}

	s := summarize.New(client, db.Summaries(), db.Reviews(), blobs, opts)
	return s, func() { _ = client.Close() }, nil
}

// buildIngestor wires the full fetch pipeline around an already-built
// mirror, so serve mode shares one mirror between the server and the
// scheduler. The closer must run when the caller is done with it.
func buildIngestor(ctx context.Context, cfg *config.Config, db persistence.Database, kv *cache.Cache, mirror *media.Mirror) (*ingest.Ingestor, func(), error) {
	summarizer, closeLLM, err := buildSummarizer(ctx, cfg, db, kv)
	if err != nil {
		return nil, nil, err
	}

	fetcher := ingest.NewFetcher(nil, cfg.Ingest.ListingTimeout, cfg.Ingest.UserAgent)
	sc := scraper.New(scraper.Options{
		MetaCandidates:  cfg.Ingest.MetaCandidates,
		MetaConcurrency: cfg.Ingest.MetaConcurrency,
		MetaTimeout:     cfg.Ingest.MetaTimeout,
		UserAgent:       cfg.Ingest.UserAgent,
	})
	en := enrich.New(cfg.Ingest.ArticleTimeout, cfg.Ingest.UserAgent)
	cl := classify.New(cfg.App.StateCode)

	ing := ingest.New(db, fetcher, sc, en, cl, mirror, summarizer, ingest.Options{
		Concurrency: cfg.Ingest.Concurrency,
		UserAgent:   cfg.Ingest.UserAgent,
		StateCode:   cfg.App.StateCode,
		KYOnly:      cfg.Ingest.KYOnly,
	})
	return ing, closeLLM, nil
}
