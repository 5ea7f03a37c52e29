package scraper

import (
	"encoding/json"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// articleTypes are the schema.org @type values treated as news articles.
var articleTypes = map[string]bool{
	"NewsArticle":           true,
	"Article":               true,
	"ReportageNewsArticle":  true,
	"BlogPosting":           true,
	"LiveBlogPosting":       true,
	"AnalysisNewsArticle":   true,
	"BackgroundNewsArticle": true,
}

// structuredDataCandidates parses every ld+json block on the page and
// walks arbitrary JSON for news-article shapes, including entries nested
// inside ItemList wrappers.
func structuredDataCandidates(doc *goquery.Document, base *url.URL) []*Candidate {
	var out []*Candidate
	doc.Find(`script[type="application/ld+json"]`).Each(func(_ int, script *goquery.Selection) {
		var node interface{}
		if err := json.Unmarshal([]byte(script.Text()), &node); err != nil {
			return
		}
		walkJSON(node, 0, base, &out)
	})
	return out
}

// walkJSON descends at most maxJSONDepth levels collecting candidates.
func walkJSON(node interface{}, depth int, base *url.URL, out *[]*Candidate) {
	if depth > maxJSONDepth {
		return
	}
	switch v := node.(type) {
	case []interface{}:
		for _, child := range v {
			walkJSON(child, depth+1, base, out)
		}
	case map[string]interface{}:
		if c := candidateFromNode(v, base); c != nil {
			*out = append(*out, c)
		}
		for _, child := range v {
			walkJSON(child, depth+1, base, out)
		}
	}
}

// candidateFromNode extracts a candidate from a node whose @type is an
// article shape, or from an ItemList entry carrying a url.
func candidateFromNode(node map[string]interface{}, base *url.URL) *Candidate {
	typ := jsonString(node["@type"])
	link := ""

	switch {
	case articleTypes[typ]:
		link = firstString(node["url"], node["@id"], node["mainEntityOfPage"])
	case typ == "ListItem":
		link = firstString(node["url"], node["item"])
	default:
		return nil
	}

	link = resolveLink(link, base)
	if link == "" {
		return nil
	}

	c := &Candidate{
		URL:      link,
		Title:    firstString(node["headline"], node["name"]),
		Snippet:  jsonString(node["description"]),
		Author:   authorString(node["author"]),
		ImageURL: imageString(node["image"]),
	}
	if raw := jsonString(node["datePublished"]); raw != "" {
		if t, err := time.Parse(time.RFC3339, raw); err == nil {
			utc := t.UTC()
			c.Published = &utc
		}
	}
	return c
}

func resolveLink(link string, base *url.URL) string {
	link = strings.TrimSpace(link)
	if link == "" {
		return ""
	}
	ref, err := url.Parse(link)
	if err != nil {
		return ""
	}
	abs := base.ResolveReference(ref)
	if abs.Host == "" || !sameSite(abs.Host, base.Host) {
		return ""
	}
	return abs.String()
}

// jsonString coerces the string-ish shapes ld+json uses: plain strings,
// {"@id": ...} references, and single-element arrays.
func jsonString(v interface{}) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case map[string]interface{}:
		return firstString(t["@id"], t["url"], t["name"])
	case []interface{}:
		if len(t) > 0 {
			return jsonString(t[0])
		}
	}
	return ""
}

func firstString(values ...interface{}) string {
	for _, v := range values {
		if s := jsonString(v); s != "" {
			return s
		}
	}
	return ""
}

func authorString(v interface{}) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case map[string]interface{}:
		return jsonString(t["name"])
	case []interface{}:
		if len(t) > 0 {
			return authorString(t[0])
		}
	}
	return ""
}

func imageString(v interface{}) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case map[string]interface{}:
		return firstString(t["url"], t["contentUrl"])
	case []interface{}:
		if len(t) > 0 {
			return imageString(t[0])
		}
	}
	return ""
}
