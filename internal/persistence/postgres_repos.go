package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"kynews/internal/core"
)

// postgresFeedRepo implements FeedRepository for PostgreSQL
type postgresFeedRepo struct {
	db *sql.DB
	tx *sql.Tx
}

func (r *postgresFeedRepo) query() querier {
	if r.tx != nil {
		return r.tx
	}
	return r.db
}

func (r *postgresFeedRepo) Upsert(ctx context.Context, feed *core.Feed) error {
	query := `
		INSERT INTO feeds (
			id, name, category, url, state_code, default_county,
			region_scope, fetch_mode, scraper_id, enabled, etag, last_modified
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			category = EXCLUDED.category,
			url = EXCLUDED.url,
			state_code = EXCLUDED.state_code,
			default_county = EXCLUDED.default_county,
			region_scope = EXCLUDED.region_scope,
			fetch_mode = EXCLUDED.fetch_mode,
			scraper_id = EXCLUDED.scraper_id,
			enabled = EXCLUDED.enabled
	`
	_, err := r.query().ExecContext(ctx, query,
		feed.ID, feed.Name, feed.Category, feed.URL, feed.StateCode,
		feed.DefaultCounty, feed.RegionScope, feed.FetchMode,
		feed.ScraperID, feed.Enabled, feed.ETag, feed.LastModified,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert feed: %w", err)
	}
	return nil
}

const feedColumns = `
	id, name, category, url, state_code, default_county,
	region_scope, fetch_mode, scraper_id, enabled, etag, last_modified,
	last_checked_at`

func (r *postgresFeedRepo) Get(ctx context.Context, id string) (*core.Feed, error) {
	query := `SELECT` + feedColumns + ` FROM feeds WHERE id = $1`
	row := r.query().QueryRowContext(ctx, query, id)

	feed, err := scanFeed(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan feed: %w", err)
	}
	return feed, nil
}

func (r *postgresFeedRepo) List(ctx context.Context) ([]core.Feed, error) {
	return r.list(ctx, `SELECT`+feedColumns+` FROM feeds ORDER BY name`)
}

func (r *postgresFeedRepo) ListEnabled(ctx context.Context) ([]core.Feed, error) {
	return r.list(ctx, `SELECT`+feedColumns+` FROM feeds WHERE enabled ORDER BY name`)
}

func (r *postgresFeedRepo) list(ctx context.Context, query string) ([]core.Feed, error) {
	rows, err := r.query().QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list feeds: %w", err)
	}
	defer rows.Close()

	var feeds []core.Feed
	for rows.Next() {
		feed, err := scanFeed(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan feed: %w", err)
		}
		feeds = append(feeds, *feed)
	}
	return feeds, rows.Err()
}

func (r *postgresFeedRepo) UpdateValidators(ctx context.Context, id, etag, lastModified string, checkedAt time.Time) error {
	query := `UPDATE feeds SET etag = $2, last_modified = $3, last_checked_at = $4 WHERE id = $1`
	_, err := r.query().ExecContext(ctx, query, id, etag, lastModified, checkedAt)
	return err
}

func (r *postgresFeedRepo) Delete(ctx context.Context, id string) error {
	_, err := r.query().ExecContext(ctx, `DELETE FROM feeds WHERE id = $1`, id)
	return err
}

func scanFeed(scan func(...interface{}) error) (*core.Feed, error) {
	var feed core.Feed
	var lastChecked sql.NullTime

	err := scan(
		&feed.ID, &feed.Name, &feed.Category, &feed.URL, &feed.StateCode,
		&feed.DefaultCounty, &feed.RegionScope, &feed.FetchMode,
		&feed.ScraperID, &feed.Enabled, &feed.ETag, &feed.LastModified,
		&lastChecked,
	)
	if err != nil {
		return nil, err
	}
	if lastChecked.Valid {
		t := lastChecked.Time.UTC()
		feed.LastCheckedAt = &t
	}
	return &feed, nil
}

// postgresFeedItemRepo implements FeedItemRepository for PostgreSQL
type postgresFeedItemRepo struct {
	db *sql.DB
	tx *sql.Tx
}

func (r *postgresFeedItemRepo) query() querier {
	if r.tx != nil {
		return r.tx
	}
	return r.db
}

func (r *postgresFeedItemRepo) Link(ctx context.Context, feedID, itemID string) error {
	query := `
		INSERT INTO feed_items (feed_id, item_id)
		VALUES ($1, $2)
		ON CONFLICT (feed_id, item_id) DO NOTHING
	`
	_, err := r.query().ExecContext(ctx, query, feedID, itemID)
	if err != nil {
		return fmt.Errorf("failed to link feed item: %w", err)
	}
	return nil
}

// postgresLocationRepo implements LocationRepository for PostgreSQL
type postgresLocationRepo struct {
	db *sql.DB
	tx *sql.Tx
}

func (r *postgresLocationRepo) query() querier {
	if r.tx != nil {
		return r.tx
	}
	return r.db
}

// ReplaceForItem swaps the item's tag set. Callers that need atomicity
// run it inside a transaction from Database.BeginTx.
func (r *postgresLocationRepo) ReplaceForItem(ctx context.Context, itemID string, locations []core.ItemLocation) error {
	if _, err := r.query().ExecContext(ctx, `DELETE FROM item_locations WHERE item_id = $1`, itemID); err != nil {
		return fmt.Errorf("failed to clear item locations: %w", err)
	}

	query := `
		INSERT INTO item_locations (item_id, state_code, county)
		VALUES ($1, $2, $3)
		ON CONFLICT (item_id, state_code, county) DO NOTHING
	`
	for _, loc := range locations {
		if _, err := r.query().ExecContext(ctx, query, itemID, loc.StateCode, loc.County); err != nil {
			return fmt.Errorf("failed to insert item location: %w", err)
		}
	}
	return nil
}

func (r *postgresLocationRepo) ListForItem(ctx context.Context, itemID string) ([]core.ItemLocation, error) {
	query := `
		SELECT item_id, state_code, county FROM item_locations
		WHERE item_id = $1 ORDER BY state_code, county
	`
	rows, err := r.query().QueryContext(ctx, query, itemID)
	if err != nil {
		return nil, fmt.Errorf("failed to list item locations: %w", err)
	}
	defer rows.Close()

	var locations []core.ItemLocation
	for rows.Next() {
		var loc core.ItemLocation
		if err := rows.Scan(&loc.ItemID, &loc.StateCode, &loc.County); err != nil {
			return nil, err
		}
		locations = append(locations, loc)
	}
	return locations, rows.Err()
}

func (r *postgresLocationRepo) CountByCounty(ctx context.Context, stateCode string, hours int) ([]CountyCount, error) {
	query := `
		SELECT il.state_code, il.county, COUNT(DISTINCT il.item_id)
		FROM item_locations il
		JOIN items i ON i.id = il.item_id
		WHERE il.state_code = $1 AND il.county <> ''
		  AND (i.published_at IS NULL OR i.published_at < ` + draftCutoff + `)
		  AND ($2 <= 0 OR COALESCE(i.published_at, i.fetched_at) >= NOW() - $2 * INTERVAL '1 hour')
		GROUP BY il.state_code, il.county
		ORDER BY il.county
	`
	rows, err := r.query().QueryContext(ctx, query, stateCode, hours)
	if err != nil {
		return nil, fmt.Errorf("failed to count counties: %w", err)
	}
	defer rows.Close()

	var counts []CountyCount
	for rows.Next() {
		var c CountyCount
		if err := rows.Scan(&c.StateCode, &c.County, &c.Items); err != nil {
			return nil, err
		}
		counts = append(counts, c)
	}
	return counts, rows.Err()
}

// postgresSummaryRepo implements SummaryRepository for PostgreSQL
type postgresSummaryRepo struct {
	db *sql.DB
	tx *sql.Tx
}

func (r *postgresSummaryRepo) query() querier {
	if r.tx != nil {
		return r.tx
	}
	return r.db
}

func (r *postgresSummaryRepo) Get(ctx context.Context, itemID string) (*core.ItemAISummary, error) {
	query := `
		SELECT item_id, summary, model, source_hash, generated_at
		FROM item_ai_summaries WHERE item_id = $1
	`
	var s core.ItemAISummary
	err := r.query().QueryRowContext(ctx, query, itemID).Scan(
		&s.ItemID, &s.Summary, &s.Model, &s.SourceHash, &s.GeneratedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan summary: %w", err)
	}
	return &s, nil
}

func (r *postgresSummaryRepo) Upsert(ctx context.Context, summary *core.ItemAISummary) error {
	query := `
		INSERT INTO item_ai_summaries (item_id, summary, model, source_hash, generated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (item_id) DO UPDATE SET
			summary = EXCLUDED.summary,
			model = EXCLUDED.model,
			source_hash = EXCLUDED.source_hash,
			generated_at = EXCLUDED.generated_at
	`
	_, err := r.query().ExecContext(ctx, query,
		summary.ItemID, summary.Summary, summary.Model,
		summary.SourceHash, summary.GeneratedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert summary: %w", err)
	}
	return nil
}

// postgresReviewRepo implements ReviewRepository for PostgreSQL
type postgresReviewRepo struct {
	db *sql.DB
	tx *sql.Tx
}

func (r *postgresReviewRepo) query() querier {
	if r.tx != nil {
		return r.tx
	}
	return r.db
}

// Enqueue keeps one review row per item. A regenerated summary refreshes
// the reason on a still-pending row; a resolved row keeps its decision.
func (r *postgresReviewRepo) Enqueue(ctx context.Context, itemID, reason string) error {
	query := `
		INSERT INTO summary_review_queue (item_id, status, reason, created_at, updated_at)
		VALUES ($1, $2, $3, NOW(), NOW())
		ON CONFLICT (item_id) DO UPDATE SET
			reason = EXCLUDED.reason,
			updated_at = NOW()
		WHERE summary_review_queue.status = $2
	`
	_, err := r.query().ExecContext(ctx, query, itemID, core.ReviewPending, reason)
	if err != nil {
		return fmt.Errorf("failed to enqueue review: %w", err)
	}
	return nil
}

const reviewColumns = `
	item_id, status, reason, reviewer, reviewed_at, reviewed_summary,
	note, created_at, updated_at`

func (r *postgresReviewRepo) Get(ctx context.Context, itemID string) (*core.SummaryReview, error) {
	query := `SELECT` + reviewColumns + ` FROM summary_review_queue WHERE item_id = $1`
	row := r.query().QueryRowContext(ctx, query, itemID)

	review, err := scanReview(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan review: %w", err)
	}
	return review, nil
}

func (r *postgresReviewRepo) ListByStatus(ctx context.Context, status string, limit int) ([]core.SummaryReview, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `
		SELECT` + reviewColumns + ` FROM summary_review_queue
		WHERE status = $1 ORDER BY created_at LIMIT $2
	`
	rows, err := r.query().QueryContext(ctx, query, status, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list reviews: %w", err)
	}
	defer rows.Close()

	var reviews []core.SummaryReview
	for rows.Next() {
		review, err := scanReview(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan review: %w", err)
		}
		reviews = append(reviews, *review)
	}
	return reviews, rows.Err()
}

func (r *postgresReviewRepo) Resolve(ctx context.Context, itemID, status, reviewer, reviewedSummary, note string) error {
	query := `
		UPDATE summary_review_queue SET
			status = $2, reviewer = $3, reviewed_at = NOW(),
			reviewed_summary = $4, note = $5, updated_at = NOW()
		WHERE item_id = $1
	`
	result, err := r.query().ExecContext(ctx, query, itemID, status, reviewer, reviewedSummary, note)
	if err != nil {
		return fmt.Errorf("failed to resolve review: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("no review row for item %s", itemID)
	}
	return nil
}

func scanReview(scan func(...interface{}) error) (*core.SummaryReview, error) {
	var review core.SummaryReview
	var reviewedAt sql.NullTime

	err := scan(
		&review.ItemID, &review.Status, &review.Reason, &review.Reviewer,
		&reviewedAt, &review.ReviewedSummary, &review.Note,
		&review.CreatedAt, &review.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if reviewedAt.Valid {
		t := reviewedAt.Time.UTC()
		review.ReviewedAt = &t
	}
	return &review, nil
}

// postgresMediaRepo implements MediaRepository for PostgreSQL
type postgresMediaRepo struct {
	db *sql.DB
	tx *sql.Tx
}

func (r *postgresMediaRepo) query() querier {
	if r.tx != nil {
		return r.tx
	}
	return r.db
}

func (r *postgresMediaRepo) Upsert(ctx context.Context, media *core.ItemMedia) error {
	query := `
		INSERT INTO item_media (item_id, source_url, key, content_type, byte_count, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (item_id) DO UPDATE SET
			source_url = EXCLUDED.source_url,
			key = EXCLUDED.key,
			content_type = EXCLUDED.content_type,
			byte_count = EXCLUDED.byte_count,
			updated_at = EXCLUDED.updated_at
	`
	_, err := r.query().ExecContext(ctx, query,
		media.ItemID, media.SourceURL, media.Key, media.ContentType,
		media.ByteCount, media.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert media: %w", err)
	}
	return nil
}

const mediaColumns = `item_id, source_url, key, content_type, byte_count, updated_at`

func (r *postgresMediaRepo) Get(ctx context.Context, itemID string) (*core.ItemMedia, error) {
	query := `SELECT ` + mediaColumns + ` FROM item_media WHERE item_id = $1`
	return r.scanOne(r.query().QueryRowContext(ctx, query, itemID))
}

func (r *postgresMediaRepo) GetByKey(ctx context.Context, key string) (*core.ItemMedia, error) {
	query := `SELECT ` + mediaColumns + ` FROM item_media WHERE key = $1`
	return r.scanOne(r.query().QueryRowContext(ctx, query, key))
}

func (r *postgresMediaRepo) scanOne(row *sql.Row) (*core.ItemMedia, error) {
	var m core.ItemMedia
	err := row.Scan(&m.ItemID, &m.SourceURL, &m.Key, &m.ContentType, &m.ByteCount, &m.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan media: %w", err)
	}
	return &m, nil
}

// postgresRunRepo implements RunRepository for PostgreSQL
type postgresRunRepo struct {
	db *sql.DB
	tx *sql.Tx
}

func (r *postgresRunRepo) query() querier {
	if r.tx != nil {
		return r.tx
	}
	return r.db
}

func (r *postgresRunRepo) CreateRun(ctx context.Context, run *core.FetchRun) error {
	query := `
		INSERT INTO fetch_runs (
			id, started_at, finished_at, feeds_processed, feeds_updated,
			items_seen, items_upserted, errors
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := r.query().ExecContext(ctx, query,
		run.ID, run.StartedAt, run.FinishedAt, run.FeedsProcessed,
		run.FeedsUpdated, run.ItemsSeen, run.ItemsUpserted, run.Errors,
	)
	if err != nil {
		return fmt.Errorf("failed to insert fetch run: %w", err)
	}
	return nil
}

func (r *postgresRunRepo) RecordFeedMetrics(ctx context.Context, metrics *core.FeedRunMetrics) error {
	query := `
		INSERT INTO feed_run_metrics (
			run_id, feed_id, items_seen, items_upserted, error, failed_tier, recorded_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (run_id, feed_id) DO UPDATE SET
			items_seen = EXCLUDED.items_seen,
			items_upserted = EXCLUDED.items_upserted,
			error = EXCLUDED.error,
			failed_tier = EXCLUDED.failed_tier,
			recorded_at = EXCLUDED.recorded_at
	`
	_, err := r.query().ExecContext(ctx, query,
		metrics.RunID, metrics.FeedID, metrics.ItemsSeen,
		metrics.ItemsUpserted, metrics.Error, metrics.FailedTier,
		metrics.RecordedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to record feed metrics: %w", err)
	}
	return nil
}

func (r *postgresRunRepo) LatestRun(ctx context.Context) (*core.FetchRun, error) {
	query := `
		SELECT id, started_at, finished_at, feeds_processed, feeds_updated,
		       items_seen, items_upserted, errors
		FROM fetch_runs ORDER BY started_at DESC LIMIT 1
	`
	var run core.FetchRun
	err := r.query().QueryRowContext(ctx, query).Scan(
		&run.ID, &run.StartedAt, &run.FinishedAt, &run.FeedsProcessed,
		&run.FeedsUpdated, &run.ItemsSeen, &run.ItemsUpserted, &run.Errors,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan fetch run: %w", err)
	}
	return &run, nil
}
