// Package feedparse normalizes RSS 2.0 and Atom payloads into the uniform
// parsed-item record consumed by the ingestion pipeline.
package feedparse

import (
	"fmt"
	"strings"
	"time"

	"kynews/internal/core"

	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed"
)

const (
	snippetMaxChars = 2000
	contentMaxChars = 50000
)

// Parse decodes an RSS or Atom body into ordered parsed items. The gofeed
// layer handles both shapes (plus CDATA and <link rel="alternate">
// resolution); normalization applies the image priority, date coercion,
// and HTML stripping rules on top.
func Parse(body string) ([]core.ParsedItem, error) {
	parsed, err := gofeed.NewParser().ParseString(body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse feed: %w", err)
	}

	items := make([]core.ParsedItem, 0, len(parsed.Items))
	for _, it := range parsed.Items {
		if it == nil || strings.TrimSpace(it.Link) == "" {
			continue
		}
		items = append(items, normalizeItem(it))
	}
	return items, nil
}

func normalizeItem(it *gofeed.Item) core.ParsedItem {
	content := it.Content
	if content == "" {
		content = it.Description
	}

	item := core.ParsedItem{
		Title:    strings.TrimSpace(StripHTML(it.Title)),
		Link:     strings.TrimSpace(it.Link),
		GUID:     it.GUID,
		RawDate:  rawDate(it),
		Snippet:  truncateRunes(StripHTML(it.Description), snippetMaxChars),
		Content:  truncateRunes(StripHTML(content), contentMaxChars),
		Author:   authorName(it),
		ImageURL: pickImage(it, content),
	}

	// Invalid or absent dates stay nil; the pipeline never substitutes
	// the current time here.
	if t := publishedTime(it); t != nil {
		utc := t.UTC()
		item.Published = &utc
	}
	return item
}

func publishedTime(it *gofeed.Item) *time.Time {
	if it.PublishedParsed != nil {
		return it.PublishedParsed
	}
	if it.UpdatedParsed != nil {
		return it.UpdatedParsed
	}
	return nil
}

func rawDate(it *gofeed.Item) string {
	if it.Published != "" {
		return it.Published
	}
	return it.Updated
}

func authorName(it *gofeed.Item) string {
	if len(it.Authors) > 0 && it.Authors[0] != nil {
		return strings.TrimSpace(it.Authors[0].Name)
	}
	if it.Author != nil {
		return strings.TrimSpace(it.Author.Name)
	}
	return ""
}

// pickImage applies the fixed image priority: enclosure, media:content,
// media:thumbnail, itunes:image, then the first <img> in the content HTML.
func pickImage(it *gofeed.Item, contentHTML string) string {
	for _, enc := range it.Enclosures {
		if enc != nil && enc.URL != "" && strings.HasPrefix(enc.Type, "image/") {
			return enc.URL
		}
	}
	if u := mediaExtensionURL(it, "content"); u != "" {
		return u
	}
	if u := mediaExtensionURL(it, "thumbnail"); u != "" {
		return u
	}
	if it.ITunesExt != nil && it.ITunesExt.Image != "" {
		return it.ITunesExt.Image
	}
	if it.Image != nil && it.Image.URL != "" {
		return it.Image.URL
	}
	return firstImgSrc(contentHTML)
}

func mediaExtensionURL(it *gofeed.Item, name string) string {
	media, ok := it.Extensions["media"]
	if !ok {
		return ""
	}
	for _, ext := range media[name] {
		if u := ext.Attrs["url"]; u != "" {
			return u
		}
	}
	return ""
}

// firstImgSrc returns the src of the first <img> in an HTML fragment.
func firstImgSrc(html string) string {
	if !strings.Contains(html, "<img") {
		return ""
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return ""
	}
	src, _ := doc.Find("img").First().Attr("src")
	return src
}

// StripHTML removes markup from a fragment, returning collapsed text.
func StripHTML(fragment string) string {
	if fragment == "" {
		return ""
	}
	if !strings.ContainsAny(fragment, "<&") {
		return strings.TrimSpace(fragment)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	if err != nil {
		return strings.TrimSpace(fragment)
	}
	return strings.TrimSpace(strings.Join(strings.Fields(doc.Text()), " "))
}

func truncateRunes(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}
