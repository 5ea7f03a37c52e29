// Package persistence provides database abstraction interfaces for the
// news store: feeds, items, geo tags, summaries, media, and run metrics.
package persistence

import (
	"context"
	"time"

	"kynews/internal/core"
)

// FeedRepository handles feed persistence operations
type FeedRepository interface {
	// Upsert inserts a feed or updates it in place by ID
	Upsert(ctx context.Context, feed *core.Feed) error

	// Get retrieves a feed by ID
	Get(ctx context.Context, id string) (*core.Feed, error)

	// List retrieves all feeds
	List(ctx context.Context) ([]core.Feed, error)

	// ListEnabled retrieves the feeds the scheduler should fetch
	ListEnabled(ctx context.Context) ([]core.Feed, error)

	// UpdateValidators records the conditional-fetch validators after a poll
	UpdateValidators(ctx context.Context, id, etag, lastModified string, checkedAt time.Time) error

	// Delete removes a feed by ID
	Delete(ctx context.Context, id string) error
}

// ItemQuery carries the filters and keyset cursor for item listing.
// Cursor fields are both set or both empty.
type ItemQuery struct {
	Scope         string     // ky, national, or all
	FeedID        string     // Restrict to items surfaced by one feed
	StateCode     string     // Geo filter state, required when Counties is set
	Counties      []string   // Geo filter; an item matching any listed county passes
	Category      string     // Feed category filter, joined through feed_items
	Search        string     // Case-insensitive token match over title, summary, and content
	WidenCounties []string   // Counties named inside the search term; matching geo tags pass even on a weak text match
	OldestFirst   bool       // Invert sort and cursor direction (search sort=oldest)
	Hours         int        // Recency window; 0 means unbounded
	Limit         int
	AfterTime     *time.Time // Keyset cursor: COALESCE(published_at, fetched_at) of the last row
	AfterID       string     // Keyset cursor tiebreaker
}

// ItemRepository handles article persistence operations
type ItemRepository interface {
	// Upsert inserts an item or folds it into the existing row with the
	// same canonical URL, returning the stable item ID either way
	Upsert(ctx context.Context, item *core.Item) (string, error)

	// Get retrieves an item by ID
	Get(ctx context.Context, id string) (*core.Item, error)

	// GetByURL retrieves an item by canonical URL
	GetByURL(ctx context.Context, url string) (*core.Item, error)

	// List retrieves items for the read path, newest first, drafts excluded
	List(ctx context.Context, q ItemQuery) ([]core.Item, error)

	// UpdateArticleStatus records the outcome of an article-body fetch
	UpdateArticleStatus(ctx context.Context, id string, status int, checkedAt time.Time) error

	// UpdateContent stores the extracted readable text and its hash
	UpdateContent(ctx context.Context, id, content, contentHash string) error

	// UpdateImageURL rewrites the hero image URL after mirroring
	UpdateImageURL(ctx context.Context, id, imageURL string) error

	// UpdateSummary propagates a generated summary onto the item row
	UpdateSummary(ctx context.Context, id, summary string) error

	// CountSince counts non-draft items newer than the given time
	CountSince(ctx context.Context, since time.Time) (int, error)
}

// FeedItemRepository records which feeds surfaced which items
type FeedItemRepository interface {
	// Link records the (feed, item) pair, idempotently
	Link(ctx context.Context, feedID, itemID string) error
}

// CountyCount is one row of the county facet listing.
type CountyCount struct {
	StateCode string `json:"state"`
	County    string `json:"county"`
	Items     int    `json:"items"`
}

// LocationRepository handles item geo tags
type LocationRepository interface {
	// ReplaceForItem swaps the item's location set atomically
	ReplaceForItem(ctx context.Context, itemID string, locations []core.ItemLocation) error

	// ListForItem retrieves the item's location tags
	ListForItem(ctx context.Context, itemID string) ([]core.ItemLocation, error)

	// CountByCounty lists counties with their non-draft item counts,
	// restricted to the last hours when hours > 0
	CountByCounty(ctx context.Context, stateCode string, hours int) ([]CountyCount, error)
}

// SummaryRepository handles the authoritative AI summary cache rows
type SummaryRepository interface {
	// Get retrieves the summary row for an item, nil on miss
	Get(ctx context.Context, itemID string) (*core.ItemAISummary, error)

	// Upsert stores a generated summary, replacing any previous row
	Upsert(ctx context.Context, summary *core.ItemAISummary) error
}

// ReviewRepository handles the human review queue for generated summaries
type ReviewRepository interface {
	// Enqueue inserts a pending review or refreshes the reason on an
	// existing pending row; resolved rows are left alone
	Enqueue(ctx context.Context, itemID, reason string) error

	// Get retrieves the review row for an item, nil when absent
	Get(ctx context.Context, itemID string) (*core.SummaryReview, error)

	// ListByStatus retrieves review rows in a given status, oldest first
	ListByStatus(ctx context.Context, status string, limit int) ([]core.SummaryReview, error)

	// Resolve records a reviewer decision
	Resolve(ctx context.Context, itemID, status, reviewer, reviewedSummary, note string) error
}

// MediaRepository handles mirrored hero-image records
type MediaRepository interface {
	// Upsert stores the mirror record for an item, one row per item
	Upsert(ctx context.Context, media *core.ItemMedia) error

	// Get retrieves the mirror record for an item, nil when absent
	Get(ctx context.Context, itemID string) (*core.ItemMedia, error)

	// GetByKey retrieves a mirror record by object-store key
	GetByKey(ctx context.Context, key string) (*core.ItemMedia, error)
}

// RunRepository handles ingestion run bookkeeping
type RunRepository interface {
	// CreateRun records a completed ingestion cycle
	CreateRun(ctx context.Context, run *core.FetchRun) error

	// RecordFeedMetrics records one feed's slice of a run
	RecordFeedMetrics(ctx context.Context, metrics *core.FeedRunMetrics) error

	// LatestRun retrieves the most recent run, nil when none exist
	LatestRun(ctx context.Context) (*core.FetchRun, error)
}

// Database aggregates all repositories over one connection pool
type Database interface {
	Feeds() FeedRepository
	Items() ItemRepository
	FeedItems() FeedItemRepository
	Locations() LocationRepository
	Summaries() SummaryRepository
	Reviews() ReviewRepository
	Media() MediaRepository
	Runs() RunRepository

	// Close closes the database connection
	Close() error

	// Ping verifies the database connection
	Ping(ctx context.Context) error

	// BeginTx starts a transaction scoped over the same repositories
	BeginTx(ctx context.Context) (Transaction, error)
}

// Transaction exposes the repositories bound to one database transaction
type Transaction interface {
	Commit() error
	Rollback() error

	Feeds() FeedRepository
	Items() ItemRepository
	FeedItems() FeedItemRepository
	Locations() LocationRepository
	Summaries() SummaryRepository
	Reviews() ReviewRepository
	Media() MediaRepository
	Runs() RunRepository
}
