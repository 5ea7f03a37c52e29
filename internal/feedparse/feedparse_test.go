package feedparse

import (
	"strings"
	"testing"
)

const rssBody = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0" xmlns:media="http://search.yahoo.com/mrss/">
  <channel>
    <title>Pikeville Daily</title>
    <item>
      <title><![CDATA[Flood warning in Pike County]]></title>
      <link>http://example.com/news/flood-warning?utm_source=rss</link>
      <guid>flood-1</guid>
      <pubDate>Mon, 06 May 2024 14:30:00 GMT</pubDate>
      <description><![CDATA[<p>Heavy rains across <b>Kentucky</b>.</p>]]></description>
      <media:content url="https://img.example.com/flood.jpg" type="image/jpeg"/>
    </item>
    <item>
      <title>No date story</title>
      <link>http://example.com/news/no-date</link>
      <pubDate>not a real date</pubDate>
      <description>Something happened.</description>
    </item>
  </channel>
</rss>`

const atomBody = `<?xml version="1.0" encoding="utf-8"?>
<feed xmlns="http://www.w3.org/2005/Atom">
  <title>Lexington Wire</title>
  <entry>
    <title>Council passes budget</title>
    <link rel="alternate" href="https://example.org/2024/05/06/budget"/>
    <link rel="self" href="https://example.org/feed/entry/1"/>
    <id>urn:entry:1</id>
    <published>2024-05-06T09:00:00Z</published>
    <summary>The city council passed the budget.</summary>
    <content type="html">&lt;p&gt;Details inside.&lt;/p&gt;&lt;img src="https://example.org/hero.png"/&gt;</content>
  </entry>
</feed>`

func TestParseRSS(t *testing.T) {
	items, err := Parse(rssBody)
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("got %d items, want 2", len(items))
	}

	first := items[0]
	if first.Title != "Flood warning in Pike County" {
		t.Errorf("title = %q", first.Title)
	}
	if first.Published == nil {
		t.Fatal("published is nil, want parsed date")
	}
	if got := first.Published.Format("2006-01-02T15:04"); got != "2024-05-06T14:30" {
		t.Errorf("published = %s", got)
	}
	if strings.Contains(first.Snippet, "<") {
		t.Errorf("snippet not HTML-stripped: %q", first.Snippet)
	}
	if !strings.Contains(first.Snippet, "Heavy rains across Kentucky") {
		t.Errorf("snippet = %q", first.Snippet)
	}
	if first.ImageURL != "https://img.example.com/flood.jpg" {
		t.Errorf("image = %q, want media:content url", first.ImageURL)
	}

	// Invalid dates must become nil, never the current time.
	if items[1].Published != nil {
		t.Errorf("invalid pubDate parsed to %v, want nil", items[1].Published)
	}
}

func TestParseAtom(t *testing.T) {
	items, err := Parse(atomBody)
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("got %d items, want 1", len(items))
	}

	item := items[0]
	if item.Link != "https://example.org/2024/05/06/budget" {
		t.Errorf("link = %q, want the rel=alternate target", item.Link)
	}
	if item.Published == nil || item.Published.Hour() != 9 {
		t.Errorf("published = %v", item.Published)
	}
	if item.ImageURL != "https://example.org/hero.png" {
		t.Errorf("image = %q, want first <img> fallback", item.ImageURL)
	}
}

func TestParseRejectsGarbage(t *testing.T) {
	if _, err := Parse("this is not xml at all"); err == nil {
		t.Fatal("Parse accepted non-feed input")
	}
}

func TestStripHTMLCaps(t *testing.T) {
	long := "<p>" + strings.Repeat("word ", 600) + "</p>"
	items, err := Parse(strings.Replace(rssBody, "Something happened.", long, 1))
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	if got := len([]rune(items[1].Snippet)); got > 2000 {
		t.Errorf("snippet length = %d, want <= 2000", got)
	}
}
