package core

import (
	"strings"
	"time"
)

// DraftSentinelPrefix marks an item as a draft: items whose published_at
// serializes with this prefix are excluded from all public reads.
const DraftSentinelPrefix = "9999"

// RegionScope values for feeds and items.
const (
	ScopeKY       = "ky"
	ScopeNational = "national"
	ScopeAll      = "all"
)

// Fetch modes for a feed.
const (
	FetchModeRSS    = "rss"
	FetchModeScrape = "scrape"
)

// Scraper kinds controlling path-shape scoring in the HTML scraper.
const (
	ScraperGenericNews      = "generic-news"
	ScraperGannettStory     = "gannett-story"
	ScraperTownNewsArticle  = "townnews-article"
	ScraperMcClatchyArticle = "mcclatchy-article"
)

// Feed represents a configured ingestion source.
type Feed struct {
	ID            string     `json:"id"`             // Unique identifier for the feed
	Name          string     `json:"name"`           // Display name
	Category      string     `json:"category"`       // Topic category (news, sports, weather, ...)
	URL           string     `json:"url"`            // Origin URL (feed or listing page)
	StateCode     string     `json:"state_code"`     // Two-letter state code, default KY
	DefaultCounty string     `json:"default_county"` // County applied when classification finds none
	RegionScope   string     `json:"region_scope"`   // ky or national
	FetchMode     string     `json:"fetch_mode"`     // rss or scrape
	ScraperID     string     `json:"scraper_id"`     // Scraper kind hint, empty for auto-detect
	Enabled       bool       `json:"enabled"`        // Whether the scheduler picks this feed up
	ETag          string     `json:"etag"`           // Last-seen ETag validator
	LastModified  string     `json:"last_modified"`  // Last-seen Last-Modified validator
	LastCheckedAt *time.Time `json:"last_checked_at"`
}

// Item represents a deduplicated article.
type Item struct {
	ID               string     `json:"id"`    // Opaque identifier, stable across re-ingests of the same URL
	Title            string     `json:"title"` // Article title
	URL              string     `json:"url"`   // Canonical URL, unique across the store
	Author           string     `json:"author,omitempty"`
	RegionScope      string     `json:"region_scope"` // ky or national
	PublishedAt      *time.Time `json:"published_at"` // nil when unknown; far-future sentinel denotes draft
	Summary          string     `json:"summary,omitempty"`
	Content          string     `json:"content,omitempty"`   // Readable-text excerpt
	ImageURL         string     `json:"image_url,omitempty"` // Hero image, rewritten after mirroring
	FetchedAt        time.Time  `json:"fetched_at"`
	ContentHash      string     `json:"content_hash,omitempty"`
	ArticleCheckedAt *time.Time `json:"article_checked_at,omitempty"` // Last article-body fetch attempt
	ArticleStatus    int        `json:"article_status,omitempty"`     // HTTP status of the last article fetch, verbatim
	Locations        []ItemLocation `json:"locations,omitempty"`
}

// IsDraft reports whether the item carries the far-future draft sentinel.
func (i *Item) IsDraft() bool {
	if i.PublishedAt == nil {
		return false
	}
	return strings.HasPrefix(i.PublishedAt.UTC().Format(time.RFC3339), DraftSentinelPrefix)
}

// SortTime is the keyset sort key: published_at when present, else fetched_at.
func (i *Item) SortTime() time.Time {
	if i.PublishedAt != nil {
		return i.PublishedAt.UTC()
	}
	return i.FetchedAt.UTC()
}

// FeedItem links a feed to an item it surfaced. Composite primary key.
type FeedItem struct {
	FeedID string `json:"feed_id"`
	ItemID string `json:"item_id"`
}

// ItemLocation is a geo tag for an item. County is empty for the
// state-wide tag. Composite primary key (item_id, state_code, county).
type ItemLocation struct {
	ItemID    string `json:"item_id,omitempty"`
	StateCode string `json:"state"`
	County    string `json:"county"`
}

// ItemAISummary is the authoritative cache row for a generated summary.
// source_hash covers the prompt version and the truncated article text;
// a change in either invalidates the row.
type ItemAISummary struct {
	ItemID      string    `json:"item_id"`
	Summary     string    `json:"summary"`
	Model       string    `json:"model"`
	SourceHash  string    `json:"source_hash"`
	GeneratedAt time.Time `json:"generated_at"`
}

// ItemMedia records a mirrored hero image. Exactly one row per item.
type ItemMedia struct {
	ItemID      string    `json:"item_id"`
	SourceURL   string    `json:"source_url"`   // Original upstream image URL
	Key         string    `json:"key"`          // Object-store key, news/<item_id>.<ext>
	ContentType string    `json:"content_type"`
	ByteCount   int64     `json:"byte_count"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Review-queue statuses and reasons.
const (
	ReviewPending  = "pending"
	ReviewApproved = "approved"
	ReviewRejected = "rejected"
	ReviewEdited   = "edited"

	ReasonAutoGenerated   = "auto_generated"
	ReasonSummaryTooShort = "summary_too_short"
	ReasonSummaryTooLong  = "summary_too_long"
)

// SummaryReview is an admin-visible review-queue row for a generated summary.
type SummaryReview struct {
	ItemID          string     `json:"item_id"`
	Status          string     `json:"status"` // pending, approved, rejected, edited
	Reason          string     `json:"reason"`
	Reviewer        string     `json:"reviewer,omitempty"`
	ReviewedAt      *time.Time `json:"reviewed_at,omitempty"`
	ReviewedSummary string     `json:"reviewed_summary,omitempty"`
	Note            string     `json:"note,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// FetchRun summarizes one ingestion cycle across all feeds.
type FetchRun struct {
	ID             string    `json:"id"`
	StartedAt      time.Time `json:"started_at"`
	FinishedAt     time.Time `json:"finished_at"`
	FeedsProcessed int       `json:"feeds_processed"`
	FeedsUpdated   int       `json:"feeds_updated"`
	ItemsSeen      int       `json:"items_seen"`
	ItemsUpserted  int       `json:"items_upserted"`
	Errors         int       `json:"errors"`
}

// FeedRunMetrics is the per-feed slice of a fetch run.
type FeedRunMetrics struct {
	RunID         string    `json:"run_id"`
	FeedID        string    `json:"feed_id"`
	ItemsSeen     int       `json:"items_seen"`
	ItemsUpserted int       `json:"items_upserted"`
	Error         string    `json:"error,omitempty"` // fetch_error, parse_error, ... empty on success
	FailedTier    string    `json:"failed_tier,omitempty"`
	RecordedAt    time.Time `json:"recorded_at"`
}

// ParsedItem is the uniform record produced by both the RSS/Atom parser
// and the HTML scraper, before classification and upsert.
type ParsedItem struct {
	Title       string     `json:"title"`
	Link        string     `json:"link"` // Canonicalized by the pipeline before identity use
	GUID        string     `json:"guid"`
	Published   *time.Time `json:"published"` // nil when the source date was absent or unparseable
	RawDate     string     `json:"raw_date"`  // Original date string for diagnostics
	Snippet     string     `json:"snippet"`   // HTML-stripped, capped at 2000 chars
	Content     string     `json:"content"`   // HTML-stripped, capped at 50000 chars
	Author      string     `json:"author"`
	ImageURL    string     `json:"image_url"`
	Score       int        `json:"score,omitempty"` // Scraper candidate score; zero for RSS items
}

// Relevance tiers recorded by the classifier.
const (
	TierTitle         = "tier1_title"
	TierBody          = "tier2_body"
	TierAmbiguousCity = "tier3_ambiguous_city"
)

// Classification is the classifier output for one article.
type Classification struct {
	RegionScope string         `json:"region_scope"` // ky or national
	Locations   []ItemLocation `json:"locations"`
	Tier        string         `json:"tier,omitempty"`        // Tier that accepted the item
	FailedTier  string         `json:"failed_tier,omitempty"` // Set when rejected, e.g. tier3_ambiguous_city
	OtherStates []string       `json:"other_states,omitempty"`
}
