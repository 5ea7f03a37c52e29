package scraper

import (
	"net/url"
	"regexp"
	"strings"

	"kynews/internal/core"
)

var (
	datePathRe      = regexp.MustCompile(`/20\d{2}/\d{1,2}/\d{1,2}(/|$)`)
	mcclatchyPathRe = regexp.MustCompile(`/article\d+\.html$`)
	townnewsPathRe  = regexp.MustCompile(`/article_[\w-]+\.html$`)
	assetExtRe      = regexp.MustCompile(`\.(jpe?g|png|gif|webp|avif|svg|ico|css|js|mjs|json|xml|rss|pdf|zip|mp4|mp3|woff2?)$`)
)

var topicalPrefixes = []string{
	"/news/", "/local/", "/sports/", "/politics/", "/business/",
	"/weather/", "/education/", "/crime/", "/community/", "/state/",
}

// scoreCandidate scores a canonical URL by path shape. Base rewards for
// article-looking paths, CMS-specific bonuses per scraper kind, and
// monotonic penalties for assets and non-article pages. Candidates below
// MinScore are discarded by the caller.
func scoreCandidate(canonicalURL, title, kind string) int {
	u, err := url.Parse(canonicalURL)
	if err != nil {
		return 0
	}
	path := strings.ToLower(u.Path)
	score := 0

	if len(strings.TrimSpace(title)) >= 12 {
		score += 40
	}
	if datePathRe.MatchString(path) {
		score += 60
	}
	for _, prefix := range topicalPrefixes {
		if strings.Contains(path, prefix) {
			score += 30
			break
		}
	}
	if pathDepth(path) >= 4 {
		score += 20
	}

	switch kind {
	case core.ScraperGannettStory:
		if strings.Contains(path, "/story/") {
			score += 50
		}
	case core.ScraperTownNewsArticle:
		if townnewsPathRe.MatchString(path) {
			score += 50
		}
	case core.ScraperMcClatchyArticle:
		if mcclatchyPathRe.MatchString(path) {
			score += 50
		}
	}

	// Penalties are monotonic: they only ever lower the score.
	if assetExtRe.MatchString(path) {
		score -= 250
	}
	if containsAny(path, "/tag/", "/tags/", "/topic/", "/topics/", "/author/", "/authors/", "/staff/") {
		score -= 140
	}
	if strings.Contains(path, "/search") {
		score -= 60
	}
	if strings.Contains(path, "/ap/") {
		score -= 25
	}
	if containsAny(path, "/video/", "/videos/", "/photo/", "/photos/", "/gallery/") {
		score -= 35
	}

	return score
}

func pathDepth(path string) int {
	depth := 0
	for _, seg := range strings.Split(path, "/") {
		if seg != "" {
			depth++
		}
	}
	return depth
}

func containsAny(s string, substrings ...string) bool {
	for _, sub := range substrings {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
