package ingest

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// maxFeedBytes caps a listing or feed document read.
const maxFeedBytes = 5 << 20

// FetchResult is the outcome of one conditional feed fetch.
type FetchResult struct {
	Body         string
	ETag         string
	LastModified string
	NotModified  bool
	StatusCode   int
}

// Fetcher performs conditional GETs against feed and listing URLs.
type Fetcher struct {
	client    *http.Client
	userAgent string
}

// NewFetcher creates a fetcher. A nil client gets a default with the
// given timeout.
func NewFetcher(client *http.Client, timeout time.Duration, userAgent string) *Fetcher {
	if client == nil {
		if timeout <= 0 {
			timeout = 15 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}
	return &Fetcher{client: client, userAgent: userAgent}
}

// Fetch issues a GET with the stored validators. A 304 comes back as
// NotModified with no body; any stored validator is echoed back so the
// caller keeps it.
func (f *Fetcher) Fetch(ctx context.Context, url, etag, lastModified string) (*FetchResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	if etag != "" {
		req.Header.Set("If-None-Match", etag)
	}
	if lastModified != "" {
		req.Header.Set("If-Modified-Since", lastModified)
	}
	req.Header.Set("User-Agent", f.userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", url, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusNotModified {
		return &FetchResult{
			NotModified:  true,
			ETag:         etag,
			LastModified: lastModified,
			StatusCode:   resp.StatusCode,
		}, nil
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("fetch %s returned status %d", url, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxFeedBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", url, err)
	}

	return &FetchResult{
		Body:         string(body),
		ETag:         resp.Header.Get("ETag"),
		LastModified: resp.Header.Get("Last-Modified"),
		StatusCode:   resp.StatusCode,
	}, nil
}
