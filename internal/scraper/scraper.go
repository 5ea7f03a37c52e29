// Package scraper discovers article links on HTML listing pages for sites
// that publish no usable feed, scores the candidates by path shape, and
// enriches the best of them from their own pages.
package scraper

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"sort"
	"strings"
	"time"

	"kynews/internal/core"
	"kynews/internal/enrich"
	"kynews/internal/urlutil"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/sync/errgroup"
)

const (
	// MinScore is the discard threshold for scored candidates.
	MinScore = 30
	// DefaultMetaCandidates is how many top candidates get a page fetch.
	DefaultMetaCandidates = 16
	// DefaultMetaConcurrency bounds the inner meta-fetch fan-out.
	DefaultMetaConcurrency = 4

	maxJSONDepth = 8
)

// hostKinds maps hostname fragments to scraper kinds when no explicit
// scraper_id is configured.
var hostKinds = map[string]string{
	"courier-journal.com": core.ScraperGannettStory,
	"courierpress.com":    core.ScraperGannettStory,
	"thegleaner.com":      core.ScraperGannettStory,
	"cincinnati.com":      core.ScraperGannettStory,
	"kentucky.com":        core.ScraperMcClatchyArticle,
	"bgdailynews.com":     core.ScraperTownNewsArticle,
	"messenger-inquirer.com": core.ScraperTownNewsArticle,
	"thenewsenterprise.com":  core.ScraperTownNewsArticle,
	"state-journal.com":      core.ScraperTownNewsArticle,
}

// KindForHost resolves a scraper kind from a hostname, defaulting to
// generic-news.
func KindForHost(host string) string {
	host = strings.ToLower(host)
	for fragment, kind := range hostKinds {
		if strings.Contains(host, fragment) {
			return kind
		}
	}
	return core.ScraperGenericNews
}

// Candidate is a discovered article link with its score and any fields
// recovered during discovery.
type Candidate struct {
	URL       string
	Title     string
	Snippet   string
	Published *time.Time
	Author    string
	ImageURL  string
	Score     int
}

// Options configures a Scraper.
type Options struct {
	MetaCandidates  int
	MetaConcurrency int
	MetaTimeout     time.Duration
	UserAgent       string
	HTTPClient      *http.Client // Optional; tests inject a TLS-trusting client
}

// Scraper turns listing pages into parsed items.
type Scraper struct {
	opts   Options
	client *http.Client
}

// New creates a scraper. Zero option fields fall back to defaults.
func New(opts Options) *Scraper {
	if opts.MetaCandidates <= 0 {
		opts.MetaCandidates = DefaultMetaCandidates
	}
	if opts.MetaConcurrency <= 0 {
		opts.MetaConcurrency = DefaultMetaConcurrency
	}
	if opts.MetaTimeout <= 0 {
		opts.MetaTimeout = 9 * time.Second
	}
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: opts.MetaTimeout}
	}
	return &Scraper{
		opts:   opts,
		client: client,
	}
}

// Scrape discovers, scores, enriches, and normalizes article candidates
// from a listing page. kind selects the CMS path-shape bonuses.
func (s *Scraper) Scrape(ctx context.Context, listingHTML, baseURL, kind string) ([]core.ParsedItem, error) {
	candidates, err := Discover(listingHTML, baseURL, kind)
	if err != nil {
		return nil, err
	}

	s.enrichTop(ctx, candidates)

	items := make([]core.ParsedItem, 0, len(candidates))
	for _, c := range candidates {
		items = append(items, core.ParsedItem{
			Title:     c.Title,
			Link:      c.URL,
			Published: c.Published,
			Snippet:   c.Snippet,
			Author:    c.Author,
			ImageURL:  c.ImageURL,
			Score:     c.Score,
		})
	}
	return items, nil
}

// Discover runs the three discovery strategies over a listing page and
// returns deduplicated candidates above MinScore, best first.
func Discover(listingHTML, baseURL, kind string) ([]*Candidate, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL %q: %w", baseURL, err)
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(listingHTML))
	if err != nil {
		return nil, fmt.Errorf("failed to parse listing HTML: %w", err)
	}

	byURL := make(map[string]*Candidate)

	for _, c := range structuredDataCandidates(doc, base) {
		mergeCandidate(byURL, c, kind)
	}
	for _, c := range anchorCandidates(doc, base) {
		mergeCandidate(byURL, c, kind)
	}
	for _, c := range looseURLCandidates(listingHTML, base) {
		mergeCandidate(byURL, c, kind)
	}

	candidates := make([]*Candidate, 0, len(byURL))
	for _, c := range byURL {
		if c.Score >= MinScore {
			candidates = append(candidates, c)
		}
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].Score != candidates[j].Score {
			return candidates[i].Score > candidates[j].Score
		}
		return candidates[i].URL < candidates[j].URL
	})
	return candidates, nil
}

// mergeCandidate canonicalizes, scores, and folds a candidate into the
// URL-keyed set, keeping the richer fields when strategies overlap.
func mergeCandidate(byURL map[string]*Candidate, c *Candidate, kind string) {
	canonical, err := urlutil.Canonicalize(c.URL)
	if err != nil {
		return
	}
	c.URL = canonical
	c.Score = scoreCandidate(canonical, c.Title, kind)

	existing, ok := byURL[canonical]
	if !ok {
		byURL[canonical] = c
		return
	}
	// Structured data runs first and carries the richer fields; later
	// strategies only fill gaps.
	if existing.Title == "" {
		existing.Title = c.Title
	}
	if existing.Snippet == "" {
		existing.Snippet = c.Snippet
	}
	if existing.Published == nil {
		existing.Published = c.Published
	}
	if existing.Author == "" {
		existing.Author = c.Author
	}
	if existing.ImageURL == "" {
		existing.ImageURL = c.ImageURL
	}
	if s := scoreCandidate(canonical, existing.Title, kind); s > existing.Score {
		existing.Score = s
	}
}

// enrichTop fetches the individual pages of the best candidates with a
// bounded fan-out and merges their metadata. The enricher wins on
// canonical URL and published-at; the higher-scoring title wins ties.
func (s *Scraper) enrichTop(ctx context.Context, candidates []*Candidate) {
	top := candidates
	if len(top) > s.opts.MetaCandidates {
		top = top[:s.opts.MetaCandidates]
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.MetaConcurrency)

	for _, c := range top {
		g.Go(func() error {
			meta, err := s.fetchMeta(ctx, c.URL)
			if err != nil {
				return nil // best-effort; the candidate keeps its listing fields
			}
			applyMeta(c, meta)
			return nil
		})
	}
	_ = g.Wait()
}

func applyMeta(c *Candidate, meta *enrich.Meta) {
	if meta.CanonicalURL != "" {
		if canonical, err := urlutil.Canonicalize(meta.CanonicalURL); err == nil {
			c.URL = canonical
		}
	}
	if meta.Published != nil {
		c.Published = meta.Published
	}
	if meta.Title != "" && len(meta.Title) > len(c.Title) {
		c.Title = meta.Title
	}
	if c.Snippet == "" {
		c.Snippet = meta.Snippet
	}
	if c.Author == "" {
		c.Author = meta.Author
	}
	if meta.ImageURL != "" {
		c.ImageURL = meta.ImageURL
	}
}

func (s *Scraper) fetchMeta(ctx context.Context, pageURL string) (*enrich.Meta, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", s.opts.UserAgent)
	req.Header.Set("Accept", "text/html")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("meta fetch %s returned status %d", pageURL, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, enrich.MaxBodyChars))
	if err != nil {
		return nil, err
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(body)))
	if err != nil {
		return nil, err
	}
	meta := enrich.ExtractMeta(doc)
	return &meta, nil
}

// looseURLRe is the fallback strategy: any absolute URL in the raw HTML.
var looseURLRe = regexp.MustCompile(`https?://[^\s"'<>\\)]+`)

func looseURLCandidates(listingHTML string, base *url.URL) []*Candidate {
	seen := make(map[string]bool)
	var out []*Candidate
	for _, raw := range looseURLRe.FindAllString(listingHTML, -1) {
		u, err := url.Parse(raw)
		if err != nil || u.Host == "" {
			continue
		}
		if !sameSite(u.Host, base.Host) || seen[raw] {
			continue
		}
		seen[raw] = true
		out = append(out, &Candidate{URL: raw})
	}
	return out
}

func anchorCandidates(doc *goquery.Document, base *url.URL) []*Candidate {
	var out []*Candidate
	doc.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		href, _ := a.Attr("href")
		href = strings.TrimSpace(href)
		if href == "" || strings.HasPrefix(href, "#") || strings.HasPrefix(href, "javascript:") || strings.HasPrefix(href, "mailto:") {
			return
		}
		ref, err := url.Parse(href)
		if err != nil {
			return
		}
		abs := base.ResolveReference(ref)
		if !sameSite(abs.Host, base.Host) {
			return
		}
		out = append(out, &Candidate{
			URL:   abs.String(),
			Title: strings.TrimSpace(a.Text()),
		})
	})
	return out
}

// sameSite keeps the scraper on the listing's registrable domain,
// tolerating subdomain differences like www.
func sameSite(host, baseHost string) bool {
	host = strings.ToLower(strings.TrimPrefix(host, "www."))
	baseHost = strings.ToLower(strings.TrimPrefix(baseHost, "www."))
	return host == baseHost || strings.HasSuffix(host, "."+baseHost) || strings.HasSuffix(baseHost, "."+host)
}
