// Package enrich fetches article pages and extracts readable text, hero
// images, and published-time metadata.
package enrich

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

const (
	// MaxBodyChars caps how much of an article page is read.
	MaxBodyChars = 2_000_000
	// MaxExcerptChars caps the stored readable-text excerpt.
	MaxExcerptChars = 10_000
	// minRegionChars is the floor below which a scored content region is
	// considered empty and the <body> fallback kicks in.
	minRegionChars = 220
)

var navTermRe = regexp.MustCompile(`(?i)\b(subscribe|newsletter|sign in|log in|advertisement|cookie|privacy policy|related stories|read more|share this)\b`)

// contentRegionSelectors are scored in document order; class-based
// selectors cover the common CMS body containers.
var contentRegionSelectors = []string{
	"article",
	"main",
	"section[class*='story'], div[class*='story']",
	"section[class*='article-body'], div[class*='article-body']",
	"section[class*='entry-content'], div[class*='entry-content']",
	"section[class*='post-content'], div[class*='post-content']",
	"section[class*='article-content'], div[class*='article-content']",
	"[role='main']",
}

// Meta holds page metadata pulled from a fixed priority of tags.
type Meta struct {
	CanonicalURL string
	Title        string
	Snippet      string
	Published    *time.Time
	Author       string
	ImageURL     string
}

// Result is the outcome of one article fetch.
type Result struct {
	StatusCode int    // Upstream status, recorded verbatim
	Text       string // Readable excerpt, capped at MaxExcerptChars
	Meta       Meta
}

// Enricher fetches and extracts article pages.
type Enricher struct {
	client    *http.Client
	userAgent string
}

// New creates an enricher with the given article-fetch timeout.
func New(timeout time.Duration, userAgent string) *Enricher {
	return &Enricher{
		client:    &http.Client{Timeout: timeout},
		userAgent: userAgent,
	}
}

// FetchArticle fetches the article URL and extracts readable text and
// metadata. Non-HTML content types and non-2xx statuses are errors; the
// status code is returned either way so callers can record it verbatim.
func (e *Enricher) FetchArticle(ctx context.Context, articleURL string) (*Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, articleURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", e.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch article %s: %w", articleURL, err)
	}
	defer func() { _ = resp.Body.Close() }()

	result := &Result{StatusCode: resp.StatusCode}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return result, fmt.Errorf("article fetch %s returned status %d", articleURL, resp.StatusCode)
	}

	ctype := resp.Header.Get("Content-Type")
	if ctype != "" && !strings.Contains(ctype, "text/html") && !strings.Contains(ctype, "application/xhtml") {
		return result, fmt.Errorf("unsupported content type %q for %s", ctype, articleURL)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxBodyChars))
	if err != nil {
		return result, fmt.Errorf("failed to read article body: %w", err)
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(body)))
	if err != nil {
		return result, fmt.Errorf("failed to parse article HTML: %w", err)
	}

	result.Meta = ExtractMeta(doc)
	result.Text = ExtractContent(doc)
	return result, nil
}

// ExtractMeta pulls page metadata using the fixed tag priority shared by
// the enricher and the scraper's meta pass.
func ExtractMeta(doc *goquery.Document) Meta {
	m := Meta{}

	m.Title = firstNonEmpty(
		metaContent(doc, "meta[property='og:title']"),
		metaContent(doc, "meta[name='twitter:title']"),
		strings.TrimSpace(doc.Find("head title").First().Text()),
	)

	m.Snippet = firstNonEmpty(
		metaContent(doc, "meta[property='og:description']"),
		metaContent(doc, "meta[name='description']"),
	)

	if raw := firstNonEmpty(
		metaContent(doc, "meta[property='article:published_time']"),
		metaContent(doc, "meta[name='parsely-pub-date']"),
		metaContent(doc, "meta[itemprop='datePublished']"),
		timeDatetime(doc),
	); raw != "" {
		if t := parseMetaTime(raw); t != nil {
			m.Published = t
		}
	}

	m.Author = firstNonEmpty(
		metaContent(doc, "meta[name='author']"),
		metaContent(doc, "meta[property='article:author']"),
	)

	// Hero images are https-only; anything else is dropped.
	img := firstNonEmpty(
		metaContent(doc, "meta[property='og:image']"),
		metaContent(doc, "meta[name='twitter:image']"),
	)
	if strings.HasPrefix(img, "https://") {
		m.ImageURL = img
	}

	m.CanonicalURL = firstNonEmpty(
		linkHref(doc, "link[rel='canonical']"),
		metaContent(doc, "meta[property='og:url']"),
	)

	return m
}

// ExtractContent scores candidate content regions and returns the text of
// the best one, falling back to a stripped <body> when nothing scores.
func ExtractContent(doc *goquery.Document) string {
	bestScore := 0
	bestText := ""

	for _, selector := range contentRegionSelectors {
		doc.Find(selector).Each(func(_ int, region *goquery.Selection) {
			text, paragraphs := regionText(region)
			score := len(text) + paragraphs - 40*len(navTermRe.FindAllString(text, -1))
			if score > bestScore {
				bestScore = score
				bestText = text
			}
		})
	}

	if bestScore <= 0 || len(bestText) < minRegionChars {
		bestText = bodyFallback(doc)
	}

	return truncateRunes(bestText, MaxExcerptChars)
}

// regionText extracts block-level text from a region with paragraph breaks.
func regionText(region *goquery.Selection) (string, int) {
	var b strings.Builder
	paragraphs := 0
	region.Find("p, h1, h2, h3, li, blockquote").Each(func(_ int, block *goquery.Selection) {
		text := strings.TrimSpace(block.Text())
		if text == "" {
			return
		}
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(text)
		paragraphs++
	})
	return b.String(), paragraphs
}

func bodyFallback(doc *goquery.Document) string {
	body := doc.Find("body").Clone()
	body.Find("script, style, nav, footer, header, aside, form, iframe, noscript").Remove()
	text, _ := regionText(body)
	return text
}

func metaContent(doc *goquery.Document, selector string) string {
	content, _ := doc.Find(selector).First().Attr("content")
	return strings.TrimSpace(content)
}

func linkHref(doc *goquery.Document, selector string) string {
	href, _ := doc.Find(selector).First().Attr("href")
	return strings.TrimSpace(href)
}

func timeDatetime(doc *goquery.Document) string {
	dt, _ := doc.Find("time[datetime]").First().Attr("datetime")
	return strings.TrimSpace(dt)
}

// parseMetaTime coerces the date formats seen in article meta tags to UTC.
func parseMetaTime(raw string) *time.Time {
	formats := []string{
		time.RFC3339,
		"2006-01-02T15:04:05Z0700",
		"2006-01-02T15:04:05",
		"2006-01-02 15:04:05",
		"2006-01-02",
		time.RFC1123,
		time.RFC1123Z,
	}
	raw = strings.TrimSpace(raw)
	for _, format := range formats {
		if t, err := time.Parse(format, raw); err == nil {
			utc := t.UTC()
			return &utc
		}
	}
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func truncateRunes(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}
