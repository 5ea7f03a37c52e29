// Package media mirrors article hero images into object storage so the
// API never hotlinks upstream image servers.
package media

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"kynews/internal/core"
	"kynews/internal/urlutil"
)

const (
	// MaxImageBytes caps a mirrored image at 10 MiB.
	MaxImageBytes = 10 << 20

	// ServePrefix is where the API serves mirrored objects from.
	ServePrefix = "/api/media/"

	// CacheControl is attached to every stored object and echoed when
	// serving it; mirrored keys are immutable.
	CacheControl = "public, max-age=2592000, immutable"

	keyPrefix      = "news/"
	defaultTimeout = 12 * time.Second
)

// extensions maps upstream content types to object key extensions.
// Anything else is mirrored with a generic extension.
var extensions = map[string]string{
	"image/jpeg": "jpg",
	"image/png":  "png",
	"image/gif":  "gif",
	"image/webp": "webp",
	"image/avif": "avif",
}

// ObjectStore is the object-storage surface the mirror needs. Metadata
// travels with the object so a bucket entry can be traced back to its
// item and upstream URL.
type ObjectStore interface {
	Put(ctx context.Context, key string, body io.Reader, contentType string, metadata map[string]string) error
	Get(ctx context.Context, key string) (io.ReadCloser, string, error)
}

// MediaRecords persists one mirror record per item.
type MediaRecords interface {
	Upsert(ctx context.Context, media *core.ItemMedia) error
	Get(ctx context.Context, itemID string) (*core.ItemMedia, error)
	GetByKey(ctx context.Context, key string) (*core.ItemMedia, error)
}

// ItemImages rewrites an item's hero image URL after mirroring.
type ItemImages interface {
	UpdateImageURL(ctx context.Context, id, imageURL string) error
}

// Options configures a Mirror.
type Options struct {
	UserAgent    string
	Timeout      time.Duration
	MaxBytes     int64        // Image size cap; defaults to MaxImageBytes
	HTTPClient   *http.Client // Optional; tests inject one
	AllowPrivate bool         // Permit loopback/private hosts, for local development
}

// Mirror downloads hero images and stores them under stable keys.
type Mirror struct {
	store   ObjectStore
	records MediaRecords
	items   ItemImages
	client  *http.Client
	opts    Options
}

// New creates a mirror.
func New(store ObjectStore, records MediaRecords, items ItemImages, opts Options) *Mirror {
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.MaxBytes <= 0 {
		opts.MaxBytes = MaxImageBytes
	}
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: opts.Timeout}
	}
	return &Mirror{
		store:   store,
		records: records,
		items:   items,
		client:  client,
		opts:    opts,
	}
}

// KeyFor builds the stable object key for an item's hero image.
func KeyFor(itemID, contentType string) string {
	ext, ok := extensions[normalizeContentType(contentType)]
	if !ok {
		ext = "bin"
	}
	return keyPrefix + itemID + "." + ext
}

// MirrorImage downloads the item's hero image, uploads it, records the
// mirror row, and rewrites the item's image URL to the serving path.
// It returns the new image URL.
func (m *Mirror) MirrorImage(ctx context.Context, itemID, sourceURL string) (string, error) {
	if sourceURL == "" {
		return "", fmt.Errorf("no source URL for item %s", itemID)
	}
	if strings.HasPrefix(sourceURL, ServePrefix) {
		return sourceURL, nil // already mirrored
	}

	parsed, err := url.Parse(sourceURL)
	if err != nil || parsed.Scheme != "https" {
		return "", fmt.Errorf("refusing non-https image URL %q", sourceURL)
	}
	if !m.opts.AllowPrivate && urlutil.IsPrivateHost(parsed.Hostname()) {
		return "", fmt.Errorf("refusing private host %q", parsed.Hostname())
	}

	// The exact source URL was mirrored before; its key is still good.
	if existing, err := m.records.Get(ctx, itemID); err == nil && existing != nil && existing.SourceURL == sourceURL {
		return ServePrefix + existing.Key, nil
	}

	data, contentType, err := m.download(ctx, sourceURL)
	if err != nil {
		return "", err
	}

	key := KeyFor(itemID, contentType)
	metadata := map[string]string{"item_id": itemID, "source_url": sourceURL}
	if err := m.store.Put(ctx, key, bytes.NewReader(data), contentType, metadata); err != nil {
		return "", err
	}

	if err := m.records.Upsert(ctx, &core.ItemMedia{
		ItemID:      itemID,
		SourceURL:   sourceURL,
		Key:         key,
		ContentType: contentType,
		ByteCount:   int64(len(data)),
		UpdatedAt:   time.Now().UTC(),
	}); err != nil {
		return "", fmt.Errorf("failed to record mirror: %w", err)
	}

	servedURL := ServePrefix + strings.TrimPrefix(key, "/")
	if err := m.items.UpdateImageURL(ctx, itemID, servedURL); err != nil {
		return "", fmt.Errorf("failed to rewrite image URL: %w", err)
	}
	return servedURL, nil
}

// Open retrieves a mirrored object for serving. The key must belong to a
// recorded mirror; unknown keys are rejected before touching the store.
func (m *Mirror) Open(ctx context.Context, key string) (io.ReadCloser, string, error) {
	record, err := m.records.GetByKey(ctx, key)
	if err != nil {
		return nil, "", err
	}
	if record == nil {
		return nil, "", fmt.Errorf("unknown media key %q", key)
	}
	return m.store.Get(ctx, key)
}

// Resolve looks up the mirror record behind a serving key. When the key
// is stale (the item was re-mirrored under a different extension), the
// item's current record is returned instead so callers can redirect.
// Nil means the key never belonged to a mirror.
func (m *Mirror) Resolve(ctx context.Context, key string) (*core.ItemMedia, error) {
	record, err := m.records.GetByKey(ctx, key)
	if err != nil || record != nil {
		return record, err
	}

	base := strings.TrimPrefix(key, keyPrefix)
	if base == key {
		return nil, nil
	}
	if i := strings.LastIndexByte(base, '.'); i > 0 {
		base = base[:i]
	}
	return m.records.Get(ctx, base)
}

func (m *Mirror) download(ctx context.Context, imageURL string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		return nil, "", err
	}
	req.Header.Set("User-Agent", m.opts.UserAgent)
	req.Header.Set("Accept", "image/*")

	resp, err := m.client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("image fetch failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, "", fmt.Errorf("image fetch returned status %d", resp.StatusCode)
	}

	contentType := normalizeContentType(resp.Header.Get("Content-Type"))
	if !strings.HasPrefix(contentType, "image/") {
		return nil, "", fmt.Errorf("not an image: content type %q", contentType)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, m.opts.MaxBytes+1))
	if err != nil {
		return nil, "", fmt.Errorf("image read failed: %w", err)
	}
	if len(data) == 0 {
		return nil, "", fmt.Errorf("empty image body")
	}
	if int64(len(data)) > m.opts.MaxBytes {
		return nil, "", fmt.Errorf("image exceeds %d bytes", m.opts.MaxBytes)
	}
	return data, contentType, nil
}

func normalizeContentType(ct string) string {
	ct = strings.TrimSpace(strings.ToLower(ct))
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = strings.TrimSpace(ct[:i])
	}
	return ct
}
