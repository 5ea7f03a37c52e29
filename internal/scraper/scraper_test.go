package scraper

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"kynews/internal/core"
)

const listingPage = `<!DOCTYPE html>
<html><head>
<script type="application/ld+json">
{
  "@context": "https://schema.org",
  "@type": "ItemList",
  "itemListElement": [
    {"@type": "ListItem", "position": 1, "url": "https://example.com/news/2024/05/06/creek-flooding-closes-roads/"},
    {"@type": "NewsArticle", "headline": "School board approves new budget for next year",
     "url": "https://example.com/news/2024/05/05/school-board-budget/",
     "datePublished": "2024-05-05T16:00:00Z",
     "description": "The board voted 4-1.",
     "author": {"@type": "Person", "name": "Sam Writer"},
     "image": {"@type": "ImageObject", "url": "https://example.com/img/board.jpg"}}
  ]
}
</script>
</head>
<body>
<a href="/news/2024/05/06/creek-flooding-closes-roads/">Creek flooding closes several county roads</a>
<a href="/sports/2024/05/06/high-school-baseball-regional/">High school baseball regional set</a>
<a href="/tag/flooding/">Flooding coverage</a>
<a href="/search?q=rain">Search</a>
<a href="/static/logo.png">logo</a>
<a href="https://othersite.example.net/story">external</a>
<a href="/about">About</a>
</body></html>`

func TestKindForHost(t *testing.T) {
	tests := map[string]string{
		"www.courier-journal.com": core.ScraperGannettStory,
		"kentucky.com":            core.ScraperMcClatchyArticle,
		"www.bgdailynews.com":     core.ScraperTownNewsArticle,
		"smalltownpaper.org":      core.ScraperGenericNews,
	}
	for host, want := range tests {
		if got := KindForHost(host); got != want {
			t.Errorf("KindForHost(%q) = %q, want %q", host, got, want)
		}
	}
}

func TestDiscover(t *testing.T) {
	candidates, err := Discover(listingPage, "https://example.com/news/", core.ScraperGenericNews)
	if err != nil {
		t.Fatalf("Discover returned error: %v", err)
	}

	urls := make(map[string]*Candidate)
	for _, c := range candidates {
		urls[c.URL] = c
	}

	flooding := "https://example.com/news/2024/05/06/creek-flooding-closes-roads"
	if _, ok := urls[flooding]; !ok {
		t.Fatalf("flooding article missing from candidates: %v", keys(urls))
	}
	if c := urls[flooding]; c.Title == "" {
		t.Error("anchor title was not merged into the ld+json candidate")
	}

	budget := "https://example.com/news/2024/05/05/school-board-budget"
	c, ok := urls[budget]
	if !ok {
		t.Fatalf("budget article missing from candidates")
	}
	if c.Author != "Sam Writer" {
		t.Errorf("author = %q", c.Author)
	}
	if c.Published == nil {
		t.Error("datePublished not parsed")
	}
	if c.ImageURL != "https://example.com/img/board.jpg" {
		t.Errorf("image = %q", c.ImageURL)
	}

	for _, bad := range []string{"/tag/flooding", "/search", "/static/logo.png", "othersite.example.net"} {
		for u := range urls {
			if strings.Contains(u, bad) {
				t.Errorf("candidate %q should have been discarded", u)
			}
		}
	}
}

func TestDiscoverOrdering(t *testing.T) {
	candidates, err := Discover(listingPage, "https://example.com/", core.ScraperGenericNews)
	if err != nil {
		t.Fatalf("Discover returned error: %v", err)
	}
	for i := 1; i < len(candidates); i++ {
		if candidates[i-1].Score < candidates[i].Score {
			t.Fatalf("candidates not sorted by score: %d before %d", candidates[i-1].Score, candidates[i].Score)
		}
	}
}

func TestScoreCandidate(t *testing.T) {
	tests := []struct {
		name  string
		url   string
		title string
		kind  string
		min   int
		max   int
	}{
		{
			name:  "dated news path with title",
			url:   "https://example.com/news/2024/05/06/creek-flooding-closes-roads",
			title: "Creek flooding closes several county roads",
			kind:  core.ScraperGenericNews,
			min:   MinScore,
			max:   1000,
		},
		{
			name: "asset is heavily penalized",
			url:  "https://example.com/static/logo.png",
			kind: core.ScraperGenericNews,
			max:  MinScore - 1,
		},
		{
			name: "tag page is penalized",
			url:  "https://example.com/tag/flooding",
			kind: core.ScraperGenericNews,
			max:  MinScore - 1,
		},
		{
			name:  "gannett story bonus",
			url:   "https://example.com/story/news/local/2024/05/06/creek-flooding/123/",
			title: "Creek flooding closes roads",
			kind:  core.ScraperGannettStory,
			min:   150,
			max:   1000,
		},
		{
			name:  "mcclatchy article bonus",
			url:   "https://example.com/news/local/article2891234.html",
			title: "Creek flooding closes roads",
			kind:  core.ScraperMcClatchyArticle,
			min:   90,
			max:   1000,
		},
		{
			name:  "townnews article bonus",
			url:   "https://example.com/news/article_ab12-cd34.html",
			title: "Creek flooding closes roads",
			kind:  core.ScraperTownNewsArticle,
			min:   90,
			max:   1000,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := scoreCandidate(tt.url, tt.title, tt.kind)
			if tt.min != 0 && got < tt.min {
				t.Errorf("score = %d, want >= %d", got, tt.min)
			}
			if tt.max != 0 && got > tt.max {
				t.Errorf("score = %d, want <= %d", got, tt.max)
			}
		})
	}
}

func TestScorePenaltiesAreMonotonic(t *testing.T) {
	clean := scoreCandidate("https://example.com/news/2024/05/06/story-title", "A reasonably long title", core.ScraperGenericNews)
	ap := scoreCandidate("https://example.com/news/ap/2024/05/06/story-title", "A reasonably long title", core.ScraperGenericNews)
	if ap >= clean {
		t.Errorf("syndicated path should score below clean path: %d >= %d", ap, clean)
	}
}

func TestScrapeEnrichesTopCandidates(t *testing.T) {
	articleHTML := `<html><head>
<meta property="og:title" content="Creek flooding closes several roads in Pike County">
<meta property="article:published_time" content="2024-05-06T11:00:00Z">
<link rel="canonical" href="https://example.com/news/2024/05/06/creek-flooding-closes-roads">
<meta property="og:image" content="https://example.com/img/creek.jpg">
</head><body><article><p>body</p></article></body></html>`

	var metaFetches int
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		metaFetches++
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(articleHTML))
	}))
	defer srv.Close()

	base, _ := url.Parse(srv.URL)
	listing := strings.ReplaceAll(listingPage, "example.com", base.Host)

	s := New(Options{MetaCandidates: 2, MetaConcurrency: 2, UserAgent: "test", HTTPClient: srv.Client()})
	items, err := s.Scrape(context.Background(), listing, srv.URL, core.ScraperGenericNews)
	if err != nil {
		t.Fatalf("Scrape returned error: %v", err)
	}
	if len(items) == 0 {
		t.Fatal("no items scraped")
	}
	if metaFetches == 0 || metaFetches > 2 {
		t.Errorf("meta fetches = %d, want 1..2", metaFetches)
	}

	found := false
	for _, item := range items {
		if item.Published != nil && strings.Contains(item.Title, "Pike County") {
			found = true
		}
	}
	if !found {
		t.Errorf("no item carries the enriched title and date: %+v", items)
	}
}

func keys(m map[string]*Candidate) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
