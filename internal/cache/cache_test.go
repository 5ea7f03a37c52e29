package cache

import (
	"net/url"
	"strings"
	"testing"
	"time"
)

func TestResponseKeySortsQuery(t *testing.T) {
	a := ResponseKey("/api/items", url.Values{"scope": {"ky"}, "county": {"Pike"}})
	b := ResponseKey("/api/items", url.Values{"county": {"Pike"}, "scope": {"ky"}})
	if a != b {
		t.Errorf("parameter order split the cache key: %q vs %q", a, b)
	}
	if !strings.HasPrefix(a, responsePrefix+"/api/items?") {
		t.Errorf("unexpected key shape: %q", a)
	}
	if !strings.Contains(a, "county=Pike&scope=ky") {
		t.Errorf("query not sorted by name: %q", a)
	}
}

func TestResponseKeyNoQuery(t *testing.T) {
	if got := ResponseKey("/api/counties", nil); got != responsePrefix+"/api/counties" {
		t.Errorf("ResponseKey = %q", got)
	}
}

func TestResponseKeyEscapesValues(t *testing.T) {
	key := ResponseKey("/api/search", url.Values{"q": {"pike county flood"}})
	if strings.Contains(key, " ") {
		t.Errorf("unescaped space in key: %q", key)
	}
}

func TestETagFor(t *testing.T) {
	payload := []byte(`{"items":[]}`)
	etag := ETagFor(payload)

	if !strings.HasPrefix(etag, `"`) || !strings.HasSuffix(etag, `"`) {
		t.Errorf("etag not quoted: %q", etag)
	}
	// Quoted 32 hex chars.
	if len(etag) != 34 {
		t.Errorf("etag length = %d, want 34", len(etag))
	}
	if etag != ETagFor(payload) {
		t.Error("etag not deterministic")
	}
	if etag == ETagFor([]byte(`{"items":[1]}`)) {
		t.Error("different payloads produced the same etag")
	}
}

func TestRateKeyWindows(t *testing.T) {
	base := time.Date(2024, 5, 6, 12, 0, 30, 0, time.UTC)

	same := RateKey("read", "203.0.113.9", base.Add(20*time.Second))
	if RateKey("read", "203.0.113.9", base) != same {
		t.Error("same minute produced different keys")
	}

	next := RateKey("read", "203.0.113.9", base.Add(time.Minute))
	if next == same {
		t.Error("next minute reused the previous key")
	}

	if RateKey("write", "203.0.113.9", base) == RateKey("read", "203.0.113.9", base) {
		t.Error("buckets share a counter")
	}
}
