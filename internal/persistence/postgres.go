package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"kynews/internal/core"

	"github.com/lib/pq"
)

// draftCutoff excludes draft-sentinel rows from every public read. Items
// scheduled as drafts carry a far-future published_at.
const draftCutoff = "TIMESTAMP WITH TIME ZONE '9999-01-01 00:00:00+00'"

// PostgresDB implements the Database interface for PostgreSQL
type PostgresDB struct {
	db        *sql.DB
	feeds     FeedRepository
	items     ItemRepository
	feedItems FeedItemRepository
	locations LocationRepository
	summaries SummaryRepository
	reviews   ReviewRepository
	media     MediaRepository
	runs      RunRepository
}

// NewPostgresDB creates a new PostgreSQL database connection
func NewPostgresDB(connectionString string) (*PostgresDB, error) {
	db, err := sql.Open("postgres", connectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	pgDB := &PostgresDB{db: db}
	pgDB.feeds = &postgresFeedRepo{db: db}
	pgDB.items = &postgresItemRepo{db: db}
	pgDB.feedItems = &postgresFeedItemRepo{db: db}
	pgDB.locations = &postgresLocationRepo{db: db}
	pgDB.summaries = &postgresSummaryRepo{db: db}
	pgDB.reviews = &postgresReviewRepo{db: db}
	pgDB.media = &postgresMediaRepo{db: db}
	pgDB.runs = &postgresRunRepo{db: db}

	return pgDB, nil
}

func (p *PostgresDB) Feeds() FeedRepository          { return p.feeds }
func (p *PostgresDB) Items() ItemRepository          { return p.items }
func (p *PostgresDB) FeedItems() FeedItemRepository  { return p.feedItems }
func (p *PostgresDB) Locations() LocationRepository  { return p.locations }
func (p *PostgresDB) Summaries() SummaryRepository   { return p.summaries }
func (p *PostgresDB) Reviews() ReviewRepository      { return p.reviews }
func (p *PostgresDB) Media() MediaRepository         { return p.media }
func (p *PostgresDB) Runs() RunRepository            { return p.runs }

func (p *PostgresDB) Close() error {
	return p.db.Close()
}

func (p *PostgresDB) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

func (p *PostgresDB) BeginTx(ctx context.Context) (Transaction, error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	return &postgresTx{
		tx:        tx,
		feeds:     &postgresFeedRepo{db: p.db, tx: tx},
		items:     &postgresItemRepo{db: p.db, tx: tx},
		feedItems: &postgresFeedItemRepo{db: p.db, tx: tx},
		locations: &postgresLocationRepo{db: p.db, tx: tx},
		summaries: &postgresSummaryRepo{db: p.db, tx: tx},
		reviews:   &postgresReviewRepo{db: p.db, tx: tx},
		media:     &postgresMediaRepo{db: p.db, tx: tx},
		runs:      &postgresRunRepo{db: p.db, tx: tx},
	}, nil
}

// postgresTx implements Transaction interface
type postgresTx struct {
	tx        *sql.Tx
	feeds     FeedRepository
	items     ItemRepository
	feedItems FeedItemRepository
	locations LocationRepository
	summaries SummaryRepository
	reviews   ReviewRepository
	media     MediaRepository
	runs      RunRepository
}

func (t *postgresTx) Commit() error                  { return t.tx.Commit() }
func (t *postgresTx) Rollback() error                { return t.tx.Rollback() }
func (t *postgresTx) Feeds() FeedRepository          { return t.feeds }
func (t *postgresTx) Items() ItemRepository          { return t.items }
func (t *postgresTx) FeedItems() FeedItemRepository  { return t.feedItems }
func (t *postgresTx) Locations() LocationRepository  { return t.locations }
func (t *postgresTx) Summaries() SummaryRepository   { return t.summaries }
func (t *postgresTx) Reviews() ReviewRepository      { return t.reviews }
func (t *postgresTx) Media() MediaRepository         { return t.media }
func (t *postgresTx) Runs() RunRepository            { return t.runs }

// querier is the common surface of *sql.DB and *sql.Tx the repos need.
type querier interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// postgresItemRepo implements ItemRepository for PostgreSQL
type postgresItemRepo struct {
	db *sql.DB
	tx *sql.Tx
}

func (r *postgresItemRepo) query() querier {
	if r.tx != nil {
		return r.tx
	}
	return r.db
}

// Upsert folds a re-ingested article into the row holding its canonical
// URL. The first insert wins the ID and fetched_at; later ingests only
// improve fields (longer content, a date where none was known, a
// non-empty author).
func (r *postgresItemRepo) Upsert(ctx context.Context, item *core.Item) (string, error) {
	query := `
		INSERT INTO items (
			id, title, url, author, region_scope, published_at,
			summary, content, image_url, fetched_at, content_hash
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (url) DO UPDATE SET
			title = CASE WHEN EXCLUDED.title <> '' THEN EXCLUDED.title ELSE items.title END,
			author = CASE WHEN EXCLUDED.author <> '' THEN EXCLUDED.author ELSE items.author END,
			region_scope = EXCLUDED.region_scope,
			published_at = COALESCE(items.published_at, EXCLUDED.published_at),
			summary = CASE WHEN EXCLUDED.summary <> '' THEN EXCLUDED.summary ELSE items.summary END,
			content = CASE WHEN length(EXCLUDED.content) > length(items.content) THEN EXCLUDED.content ELSE items.content END,
			image_url = CASE WHEN EXCLUDED.image_url <> '' AND items.image_url NOT LIKE '/api/media/%' THEN EXCLUDED.image_url ELSE items.image_url END,
			content_hash = CASE WHEN EXCLUDED.content_hash <> '' THEN EXCLUDED.content_hash ELSE items.content_hash END
		RETURNING id
	`

	var id string
	err := r.query().QueryRowContext(ctx, query,
		item.ID, item.Title, item.URL, item.Author, item.RegionScope,
		nullTime(item.PublishedAt), item.Summary, item.Content,
		item.ImageURL, item.FetchedAt, item.ContentHash,
	).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("failed to upsert item: %w", err)
	}
	return id, nil
}

const itemColumns = `
	i.id, i.title, i.url, i.author, i.region_scope, i.published_at,
	i.summary, i.content, i.image_url, i.fetched_at, i.content_hash,
	i.article_checked_at, i.article_status`

func (r *postgresItemRepo) Get(ctx context.Context, id string) (*core.Item, error) {
	query := `SELECT` + itemColumns + ` FROM items i WHERE i.id = $1`
	return scanItem(r.query().QueryRowContext(ctx, query, id))
}

func (r *postgresItemRepo) GetByURL(ctx context.Context, url string) (*core.Item, error) {
	query := `SELECT` + itemColumns + ` FROM items i WHERE i.url = $1`
	return scanItem(r.query().QueryRowContext(ctx, query, url))
}

// List builds the filtered, keyset-paginated read query. The sort key
// is COALESCE(published_at, fetched_at) with the ID as tiebreaker,
// newest first unless OldestFirst inverts it, so a cursor row is never
// skipped or repeated between pages.
func (r *postgresItemRepo) List(ctx context.Context, q ItemQuery) ([]core.Item, error) {
	conds := []string{"(i.published_at IS NULL OR i.published_at < " + draftCutoff + ")"}
	var args []interface{}

	arg := func(v interface{}) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if q.Scope != "" && q.Scope != core.ScopeAll {
		conds = append(conds, "i.region_scope = "+arg(q.Scope))
	}
	if q.FeedID != "" {
		conds = append(conds, fmt.Sprintf(`EXISTS (
			SELECT 1 FROM feed_items fi
			WHERE fi.item_id = i.id AND fi.feed_id = %s
		)`, arg(q.FeedID)))
	}
	if len(q.Counties) > 0 {
		// Every ky item also carries a state-wide tag, so the county
		// filter must match the named counties exactly.
		conds = append(conds, fmt.Sprintf(`EXISTS (
			SELECT 1 FROM item_locations il
			WHERE il.item_id = i.id AND il.state_code = %s
			  AND il.county = ANY(%s)
		)`, arg(q.StateCode), arg(pq.Array(q.Counties))))
	}
	if q.Category != "" {
		conds = append(conds, fmt.Sprintf(`EXISTS (
			SELECT 1 FROM feed_items fi
			JOIN feeds f ON f.id = fi.feed_id
			WHERE fi.item_id = i.id AND f.category = %s
		)`, arg(q.Category)))
	}
	if q.Search != "" {
		// OR of per-token substring matches over title, summary, and
		// content. When the query names a county, geo-tagged items pass
		// even if the text match is weak.
		var ors []string
		for _, token := range strings.Fields(q.Search) {
			p := arg("%" + escapeLike(token) + "%")
			ors = append(ors, fmt.Sprintf("i.title ILIKE %s OR i.summary ILIKE %s OR i.content ILIKE %s", p, p, p))
		}
		if len(q.WidenCounties) > 0 {
			ors = append(ors, fmt.Sprintf(`EXISTS (
				SELECT 1 FROM item_locations il
				WHERE il.item_id = i.id AND il.county = ANY(%s)
			)`, arg(pq.Array(q.WidenCounties))))
		}
		if len(ors) > 0 {
			conds = append(conds, "("+strings.Join(ors, " OR ")+")")
		}
	}
	if q.Hours > 0 {
		conds = append(conds, fmt.Sprintf("COALESCE(i.published_at, i.fetched_at) >= NOW() - %s * INTERVAL '1 hour'", arg(q.Hours)))
	}

	cmp, dir := "<", "DESC"
	if q.OldestFirst {
		cmp, dir = ">", "ASC"
	}
	if q.AfterTime != nil && q.AfterID != "" {
		conds = append(conds, fmt.Sprintf("(COALESCE(i.published_at, i.fetched_at), i.id) %s (%s, %s)", cmp, arg(*q.AfterTime), arg(q.AfterID)))
	}

	limit := q.Limit
	if limit <= 0 {
		limit = 50
	}

	query := `SELECT` + itemColumns + `
		FROM items i
		WHERE ` + strings.Join(conds, " AND ") + `
		ORDER BY COALESCE(i.published_at, i.fetched_at) ` + dir + `, i.id ` + dir + `
		LIMIT ` + arg(limit)

	rows, err := r.query().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list items: %w", err)
	}
	defer rows.Close()

	var items []core.Item
	for rows.Next() {
		item, err := scanItemRow(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *item)
	}
	return items, rows.Err()
}

func (r *postgresItemRepo) UpdateArticleStatus(ctx context.Context, id string, status int, checkedAt time.Time) error {
	query := `UPDATE items SET article_status = $2, article_checked_at = $3 WHERE id = $1`
	_, err := r.query().ExecContext(ctx, query, id, status, checkedAt)
	return err
}

func (r *postgresItemRepo) UpdateContent(ctx context.Context, id, content, contentHash string) error {
	query := `UPDATE items SET content = $2, content_hash = $3 WHERE id = $1`
	_, err := r.query().ExecContext(ctx, query, id, content, contentHash)
	return err
}

func (r *postgresItemRepo) UpdateImageURL(ctx context.Context, id, imageURL string) error {
	query := `UPDATE items SET image_url = $2 WHERE id = $1`
	_, err := r.query().ExecContext(ctx, query, id, imageURL)
	return err
}

func (r *postgresItemRepo) UpdateSummary(ctx context.Context, id, summary string) error {
	query := `UPDATE items SET summary = $2 WHERE id = $1`
	_, err := r.query().ExecContext(ctx, query, id, summary)
	return err
}

func (r *postgresItemRepo) CountSince(ctx context.Context, since time.Time) (int, error) {
	query := `
		SELECT COUNT(*) FROM items i
		WHERE (i.published_at IS NULL OR i.published_at < ` + draftCutoff + `)
		  AND COALESCE(i.published_at, i.fetched_at) >= $1
	`
	var count int
	if err := r.query().QueryRowContext(ctx, query, since).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count items: %w", err)
	}
	return count, nil
}

func scanItem(row *sql.Row) (*core.Item, error) {
	var item core.Item
	var publishedAt, checkedAt sql.NullTime
	var status sql.NullInt64

	err := row.Scan(
		&item.ID, &item.Title, &item.URL, &item.Author, &item.RegionScope,
		&publishedAt, &item.Summary, &item.Content, &item.ImageURL,
		&item.FetchedAt, &item.ContentHash, &checkedAt, &status,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan item: %w", err)
	}
	applyItemNulls(&item, publishedAt, checkedAt, status)
	return &item, nil
}

func scanItemRow(rows *sql.Rows) (*core.Item, error) {
	var item core.Item
	var publishedAt, checkedAt sql.NullTime
	var status sql.NullInt64

	err := rows.Scan(
		&item.ID, &item.Title, &item.URL, &item.Author, &item.RegionScope,
		&publishedAt, &item.Summary, &item.Content, &item.ImageURL,
		&item.FetchedAt, &item.ContentHash, &checkedAt, &status,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to scan item: %w", err)
	}
	applyItemNulls(&item, publishedAt, checkedAt, status)
	return &item, nil
}

func applyItemNulls(item *core.Item, publishedAt, checkedAt sql.NullTime, status sql.NullInt64) {
	if publishedAt.Valid {
		t := publishedAt.Time.UTC()
		item.PublishedAt = &t
	}
	if checkedAt.Valid {
		t := checkedAt.Time.UTC()
		item.ArticleCheckedAt = &t
	}
	if status.Valid {
		item.ArticleStatus = int(status.Int64)
	}
}

func nullTime(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return *t
}

// escapeLike neutralizes LIKE metacharacters in user search input.
func escapeLike(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `%`, `\%`)
	s = strings.ReplaceAll(s, `_`, `\_`)
	return s
}
