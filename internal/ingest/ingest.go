// Package ingest runs the feed ingestion pipeline: fetch each enabled
// feed, parse or scrape it, enrich and classify the articles, and fold
// them into the store.
package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"kynews/internal/classify"
	"kynews/internal/core"
	"kynews/internal/enrich"
	"kynews/internal/feedparse"
	"kynews/internal/logger"
	"kynews/internal/media"
	"kynews/internal/persistence"
	"kynews/internal/scraper"
	"kynews/internal/summarize"
	"kynews/internal/urlutil"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// Error labels recorded in per-feed run metrics.
const (
	errFetch = "fetch_error"
	errParse = "parse_error"
	errStore = "store_error"
)

// minContentChars is the threshold below which an RSS item's article
// page is fetched for the full body.
const minContentChars = 600

// Options configures the ingestor.
type Options struct {
	Concurrency int
	UserAgent   string
	StateCode   string
	KYOnly      bool // Drop items the classifier leaves outside the home state
}

// Ingestor drives one ingestion cycle across all enabled feeds.
type Ingestor struct {
	db         persistence.Database
	fetcher    *Fetcher
	scraper    *scraper.Scraper
	enricher   *enrich.Enricher
	classifier *classify.Classifier
	mirror     *media.Mirror         // optional
	summarizer *summarize.Summarizer // optional
	opts       Options
}

// New creates an ingestor. mirror and summarizer may be nil; the
// pipeline then skips those stages.
func New(db persistence.Database, fetcher *Fetcher, sc *scraper.Scraper, en *enrich.Enricher, cl *classify.Classifier, mirror *media.Mirror, summarizer *summarize.Summarizer, opts Options) *Ingestor {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 8
	}
	if opts.StateCode == "" {
		opts.StateCode = "KY"
	}
	return &Ingestor{
		db:         db,
		fetcher:    fetcher,
		scraper:    sc,
		enricher:   en,
		classifier: cl,
		mirror:     mirror,
		summarizer: summarizer,
		opts:       opts,
	}
}

// feedOutcome is one feed's slice of a run, gathered by the fan-out.
type feedOutcome struct {
	feedID        string
	itemsSeen     int
	itemsUpserted int
	errLabel      string
	failedTier    string // Last classifier rejection tier seen in this feed
}

// RunOnce processes every enabled feed with a bounded fan-out and
// records the run. One feed failing never stops the others.
func (ing *Ingestor) RunOnce(ctx context.Context) (*core.FetchRun, error) {
	feeds, err := ing.db.Feeds().ListEnabled(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list feeds: %w", err)
	}

	run := &core.FetchRun{
		ID:        uuid.NewString(),
		StartedAt: time.Now().UTC(),
	}

	var mu sync.Mutex
	outcomes := make([]feedOutcome, 0, len(feeds))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(ing.opts.Concurrency)
	for _, feed := range feeds {
		g.Go(func() error {
			outcome := ing.processFeed(gctx, &feed)
			mu.Lock()
			outcomes = append(outcomes, outcome)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	run.FinishedAt = time.Now().UTC()
	run.FeedsProcessed = len(outcomes)
	for _, o := range outcomes {
		run.ItemsSeen += o.itemsSeen
		run.ItemsUpserted += o.itemsUpserted
		if o.itemsUpserted > 0 {
			run.FeedsUpdated++
		}
		if o.errLabel != "" {
			run.Errors++
		}
	}

	if err := ing.db.Runs().CreateRun(ctx, run); err != nil {
		return run, fmt.Errorf("failed to record run: %w", err)
	}
	for _, o := range outcomes {
		metrics := &core.FeedRunMetrics{
			RunID:         run.ID,
			FeedID:        o.feedID,
			ItemsSeen:     o.itemsSeen,
			ItemsUpserted: o.itemsUpserted,
			Error:         o.errLabel,
			FailedTier:    o.failedTier,
			RecordedAt:    time.Now().UTC(),
		}
		if err := ing.db.Runs().RecordFeedMetrics(ctx, metrics); err != nil {
			logger.Warn("failed to record feed metrics", "feed_id", o.feedID, "error", err.Error())
		}
	}

	logger.Info("ingestion run finished",
		"run_id", run.ID,
		"feeds", run.FeedsProcessed,
		"updated", run.FeedsUpdated,
		"items_seen", run.ItemsSeen,
		"items_upserted", run.ItemsUpserted,
		"errors", run.Errors,
	)
	return run, nil
}

// Run ticks RunOnce on the given interval until the context ends.
func (ing *Ingestor) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	if _, err := ing.RunOnce(ctx); err != nil {
		logger.Error("ingestion run failed", err)
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := ing.RunOnce(ctx); err != nil {
				logger.Error("ingestion run failed", err)
			}
		}
	}
}

func (ing *Ingestor) processFeed(ctx context.Context, feed *core.Feed) feedOutcome {
	outcome := feedOutcome{feedID: feed.ID}
	log := logger.With("ingest").With("feed_id", feed.ID)

	result, err := ing.fetcher.Fetch(ctx, feed.URL, feed.ETag, feed.LastModified)
	if err != nil {
		log.Warn("feed fetch failed", "error", err.Error())
		outcome.errLabel = errFetch
		return outcome
	}

	now := time.Now().UTC()
	if err := ing.db.Feeds().UpdateValidators(ctx, feed.ID, result.ETag, result.LastModified, now); err != nil {
		log.Warn("failed to update feed validators", "error", err.Error())
	}
	if result.NotModified {
		return outcome
	}

	items, err := ing.parse(ctx, feed, result.Body)
	if err != nil {
		log.Warn("feed parse failed", "error", err.Error())
		outcome.errLabel = errParse
		return outcome
	}
	outcome.itemsSeen = len(items)

	for _, parsed := range items {
		upserted, failedTier, err := ing.ingestItem(ctx, feed, &parsed)
		if failedTier != "" {
			outcome.failedTier = failedTier
		}
		if err != nil {
			log.Warn("item ingest failed", "link", parsed.Link, "error", err.Error())
			if outcome.errLabel == "" {
				outcome.errLabel = errStore
			}
			continue
		}
		if upserted {
			outcome.itemsUpserted++
		}
	}
	return outcome
}

// parse routes the fetched body through the RSS parser or the scraper
// based on the feed's fetch mode.
func (ing *Ingestor) parse(ctx context.Context, feed *core.Feed, body string) ([]core.ParsedItem, error) {
	if feed.FetchMode == core.FetchModeScrape {
		kind := feed.ScraperID
		if kind == "" {
			if u, err := url.Parse(feed.URL); err == nil {
				kind = scraper.KindForHost(u.Hostname())
			} else {
				kind = core.ScraperGenericNews
			}
		}
		return ing.scraper.Scrape(ctx, body, feed.URL, kind)
	}
	return feedparse.Parse(body)
}

// ingestItem classifies, enriches, and upserts one parsed article. The
// classifier's rejection tier, when any, is returned for run metrics.
func (ing *Ingestor) ingestItem(ctx context.Context, feed *core.Feed, parsed *core.ParsedItem) (bool, string, error) {
	canonical, err := urlutil.Canonicalize(parsed.Link)
	if err != nil {
		return false, "", fmt.Errorf("bad link: %w", err)
	}

	item := &core.Item{
		ID:          uuid.NewString(),
		Title:       strings.TrimSpace(parsed.Title),
		URL:         canonical,
		Author:      parsed.Author,
		PublishedAt: parsed.Published,
		Summary:     parsed.Snippet,
		Content:     parsed.Content,
		ImageURL:    parsed.ImageURL,
		FetchedAt:   time.Now().UTC(),
	}
	if item.Title == "" {
		return false, "", fmt.Errorf("item has no title")
	}

	var articleStatus int
	if len(item.Content) < minContentChars && ing.enricher != nil {
		articleStatus = ing.enrichItem(ctx, item)
	}
	if item.Content != "" {
		sum := sha256.Sum256([]byte(item.Content))
		item.ContentHash = hex.EncodeToString(sum[:])
	}

	classification := ing.classifier.Classify(item.Title, item.Content+" "+item.Summary)
	item.RegionScope = ing.resolveScope(feed, classification)
	if ing.opts.KYOnly && item.RegionScope != core.ScopeKY {
		return false, classification.FailedTier, nil
	}
	locations := ing.resolveLocations(feed, item.RegionScope, classification.Locations)

	tx, err := ing.db.BeginTx(ctx)
	if err != nil {
		return false, classification.FailedTier, fmt.Errorf("failed to begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	id, err := tx.Items().Upsert(ctx, item)
	if err != nil {
		return false, classification.FailedTier, err
	}
	if err := tx.FeedItems().Link(ctx, feed.ID, id); err != nil {
		return false, classification.FailedTier, err
	}
	if err := tx.Locations().ReplaceForItem(ctx, id, locations); err != nil {
		return false, classification.FailedTier, err
	}
	if err := tx.Commit(); err != nil {
		return false, classification.FailedTier, fmt.Errorf("failed to commit item: %w", err)
	}
	item.ID = id

	if articleStatus != 0 {
		if err := ing.db.Items().UpdateArticleStatus(ctx, id, articleStatus, time.Now().UTC()); err != nil {
			logger.Warn("failed to record article status", "item_id", id, "error", err.Error())
		}
	}

	ing.mirrorImage(ctx, item)
	ing.summarizeItem(ctx, item)
	return true, classification.FailedTier, nil
}

// enrichItem fetches the article page for its readable body and richer
// metadata. Failures leave the feed-provided fields in place; the HTTP
// status is returned verbatim for bookkeeping.
func (ing *Ingestor) enrichItem(ctx context.Context, item *core.Item) int {
	result, err := ing.enricher.FetchArticle(ctx, item.URL)
	if err != nil {
		if result != nil {
			return result.StatusCode
		}
		return 0
	}

	if len(result.Text) > len(item.Content) {
		item.Content = result.Text
	}
	meta := result.Meta
	if meta.Published != nil && item.PublishedAt == nil {
		item.PublishedAt = meta.Published
	}
	if item.Author == "" {
		item.Author = meta.Author
	}
	if item.Summary == "" {
		item.Summary = meta.Snippet
	}
	if item.ImageURL == "" {
		item.ImageURL = meta.ImageURL
	}
	if meta.CanonicalURL != "" {
		if canonical, err := urlutil.Canonicalize(meta.CanonicalURL); err == nil {
			item.URL = canonical
		}
	}
	return result.StatusCode
}

// resolveScope trusts a Kentucky-scope feed for its own items; items
// from wider feeds must pass the classifier.
func (ing *Ingestor) resolveScope(feed *core.Feed, classification core.Classification) string {
	if feed.RegionScope == core.ScopeKY {
		return core.ScopeKY
	}
	return classification.RegionScope
}

// resolveLocations fills gaps the classifier left (the feed's default
// county) and adds the state-wide tag every home-state item carries
// alongside its county rows.
func (ing *Ingestor) resolveLocations(feed *core.Feed, scope string, locations []core.ItemLocation) []core.ItemLocation {
	if len(locations) == 0 && feed.DefaultCounty != "" {
		locations = []core.ItemLocation{{StateCode: feed.StateCode, County: feed.DefaultCounty}}
	}
	if scope != core.ScopeKY {
		return locations
	}
	for _, loc := range locations {
		if loc.StateCode == ing.opts.StateCode && loc.County == "" {
			return locations
		}
	}
	return append(locations, core.ItemLocation{StateCode: ing.opts.StateCode, County: ""})
}

func (ing *Ingestor) mirrorImage(ctx context.Context, item *core.Item) {
	if ing.mirror == nil || item.ImageURL == "" || strings.HasPrefix(item.ImageURL, media.ServePrefix) {
		return
	}
	if _, err := ing.mirror.MirrorImage(ctx, item.ID, item.ImageURL); err != nil {
		logger.Debug("image mirror skipped", "item_id", item.ID, "error", err.Error())
	}
}

func (ing *Ingestor) summarizeItem(ctx context.Context, item *core.Item) {
	if ing.summarizer == nil || item.RegionScope != core.ScopeKY || len(item.Content) < summarize.MinSourceChars {
		return
	}
	record, err := ing.summarizer.Summarize(ctx, item)
	if err != nil {
		logger.Warn("summarization failed", "item_id", item.ID, "error", err.Error())
		return
	}
	if record == nil || record.Summary == item.Summary {
		return
	}
	if err := ing.db.Items().UpdateSummary(ctx, item.ID, record.Summary); err != nil {
		logger.Warn("failed to propagate summary", "item_id", item.ID, "error", err.Error())
		return
	}
	item.Summary = record.Summary
}
