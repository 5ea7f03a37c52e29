// Package cache wraps Redis for the service's expiring state: cached API
// responses, summary blobs, rate-limit counters, and recent error events.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"

	"kynews/internal/core"

	"github.com/redis/go-redis/v9"
)

const (
	responsePrefix = "api-cache:v2:"
	summaryPrefix  = "ai-summary:v2:"
	ratePrefix     = "rl:v2:"
	errorEventsKey = "error-events:v2"

	// rateSlack keeps a counter alive slightly past its minute so a
	// request arriving at the window edge still sees it.
	rateSlack = 30 * time.Second

	errorEventsMax = 100

	defaultErrorEventTTL = 720 * time.Hour
)

// Cache is a thin client over one Redis connection pool.
type Cache struct {
	rdb           *redis.Client
	errorEventTTL time.Duration
}

// New connects to Redis and verifies the connection. errorEventTTL
// bounds how long the rolling error log survives without new events; a
// non-positive value falls back to 30 days.
func New(addr, password string, db int, errorEventTTL time.Duration) (*Cache, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}
	if errorEventTTL <= 0 {
		errorEventTTL = defaultErrorEventTTL
	}
	return &Cache{rdb: rdb, errorEventTTL: errorEventTTL}, nil
}

func (c *Cache) Close() error {
	return c.rdb.Close()
}

func (c *Cache) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// ResponseEnvelope is the cached form of one API response. The ETag is
// derived from the payload, so a rebuilt-but-identical response keeps
// its validator.
type ResponseEnvelope struct {
	ETag     string          `json:"etag"`
	Payload  json.RawMessage `json:"payload"`
	CachedAt time.Time       `json:"cachedAt"`
}

/// ResponseKey builds the cache key for a request: the path plus the
// query sorted by parameter name, so parameter order never splits the
// cache.
func ResponseKey(path string, query url.Values) string {
	if len(query) == 0 {
		return responsePrefix + path
	}

	names := make([]string, 0, len(query))
	for name := range query {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	for _, name := range names {
		values := append([]string(nil), query[name]...)
		sort.Strings(values)
		for _, v := range values {
			if b.Len() > 0 {
				b.WriteByte('&')
			}
			b.WriteString(url.QueryEscape(name))
			b.WriteByte('=')
			b.WriteString(url.QueryEscape(v))
		}
	}
	return responsePrefix + path + "?" + b.String()
}

// ETagFor derives a strong validator from the response payload.
func ETagFor(payload []byte) string {
	sum := sha256.Sum256(payload)
	return `"` + hex.EncodeToString(sum[:])[:32] + `"`
}

// GetResponse retrieves a cached response envelope. A miss returns
// (nil, nil).
func (c *Cache) GetResponse(ctx context.Context, key string) (*ResponseEnvelope, error) {
	data, err := c.rdb.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get cached response: %w", err)
	}

	var env ResponseEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("failed to decode cached response: %w", err)
	}
	return &env, nil
}

// SetResponse stores a response envelope with the given TTL.
func (c *Cache) SetResponse(ctx context.Context, key string, env *ResponseEnvelope, ttl time.Duration) error {
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("failed to encode response envelope: %w", err)
	}
	if err := c.rdb.Set(ctx, key, data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to cache response: %w", err)
	}
	return nil
}

// GetSummary retrieves a cached summary blob. A miss returns (nil, nil).
func (c *Cache) GetSummary(ctx context.Context, itemID string) (*core.ItemAISummary, error) {
	data, err := c.rdb.Get(ctx, summaryPrefix+itemID).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get cached summary: %w", err)
	}

	var summary core.ItemAISummary
	if err := json.Unmarshal(data, &summary); err != nil {
		return nil, fmt.Errorf("failed to decode cached summary: %w", err)
	}
	return &summary, nil
}

// SetSummary stores a summary blob with the given TTL.
func (c *Cache) SetSummary(ctx context.Context, itemID string, summary *core.ItemAISummary, ttl time.Duration) error {
	data, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("failed to encode summary: %w", err)
	}
	if err := c.rdb.Set(ctx, summaryPrefix+itemID, data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to cache summary: %w", err)
	}
	return nil
}

// RateKey builds the minute-windowed counter key for a client.
func RateKey(bucket, ip string, now time.Time) string {
	return fmt.Sprintf("%s%s:%s:%d", ratePrefix, bucket, ip, now.Unix()/60)
}

// IncrRate bumps the client's counter for the current minute and returns
// the new count. The key expires shortly after its minute ends.
func (c *Cache) IncrRate(ctx context.Context, bucket, ip string, now time.Time) (int64, error) {
	key := RateKey(bucket, ip, now)

	pipe := c.rdb.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, time.Minute+rateSlack)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("failed to bump rate counter: %w", err)
	}
	return incr.Val(), nil
}

// ErrorEvent is one entry in the rolling error log surfaced by the
// status endpoint.
type ErrorEvent struct {
	Component string    `json:"component"`
	Message   string    `json:"message"`
	At        time.Time `json:"at"`
}

// RecordError pushes an event onto the rolling error list.
func (c *Cache) RecordError(ctx context.Context, component, message string) error {
	data, err := json.Marshal(ErrorEvent{
		Component: component,
		Message:   message,
		At:        time.Now().UTC(),
	})
	if err != nil {
		return err
	}

	pipe := c.rdb.TxPipeline()
	pipe.LPush(ctx, errorEventsKey, data)
	pipe.LTrim(ctx, errorEventsKey, 0, errorEventsMax-1)
	pipe.Expire(ctx, errorEventsKey, c.errorEventTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to record error event: %w", err)
	}
	return nil
}

// RecentErrors returns the newest error events, most recent first.
func (c *Cache) RecentErrors(ctx context.Context, limit int) ([]ErrorEvent, error) {
	if limit <= 0 || limit > errorEventsMax {
		limit = errorEventsMax
	}
	raw, err := c.rdb.LRange(ctx, errorEventsKey, 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read error events: %w", err)
	}

	events := make([]ErrorEvent, 0, len(raw))
	for _, entry := range raw {
		var ev ErrorEvent
		if err := json.Unmarshal([]byte(entry), &ev); err != nil {
			continue // skip malformed entries rather than failing the read
		}
		events = append(events, ev)
	}
	return events, nil
}
