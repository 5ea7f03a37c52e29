package persistence

import (
	"database/sql"
	"strings"
	"testing"
	"time"

	"kynews/internal/core"
	"kynews/internal/logger"
)

func TestEscapeLike(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"flood", "flood"},
		{"100% chance", `100\% chance`},
		{"item_locations", `item\_locations`},
		{`back\slash`, `back\\slash`},
	}
	for _, tt := range tests {
		if got := escapeLike(tt.in); got != tt.want {
			t.Errorf("escapeLike(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestNullTime(t *testing.T) {
	if got := nullTime(nil); got != nil {
		t.Errorf("nullTime(nil) = %v, want nil", got)
	}
	ts := time.Date(2024, 5, 6, 12, 0, 0, 0, time.UTC)
	if got := nullTime(&ts); got != ts {
		t.Errorf("nullTime(&ts) = %v, want %v", got, ts)
	}
}

func TestApplyItemNulls(t *testing.T) {
	var item core.Item
	published := sql.NullTime{Time: time.Date(2024, 5, 6, 12, 0, 0, 0, time.UTC), Valid: true}
	checked := sql.NullTime{}
	status := sql.NullInt64{Int64: 404, Valid: true}

	applyItemNulls(&item, published, checked, status)

	if item.PublishedAt == nil || !item.PublishedAt.Equal(published.Time) {
		t.Errorf("publishedAt = %v", item.PublishedAt)
	}
	if item.ArticleCheckedAt != nil {
		t.Errorf("articleCheckedAt should stay nil: %v", item.ArticleCheckedAt)
	}
	if item.ArticleStatus != 404 {
		t.Errorf("articleStatus = %d, want 404", item.ArticleStatus)
	}
}

func TestDraftCutoffExcludesSentinel(t *testing.T) {
	// The sentinel year must sort past the cutoff used in read queries.
	if !strings.Contains(draftCutoff, "9999-01-01") {
		t.Fatalf("draft cutoff %q does not match the sentinel year", draftCutoff)
	}
	sentinel := time.Date(9999, 1, 2, 0, 0, 0, 0, time.UTC)
	if !strings.HasPrefix(sentinel.Format(time.RFC3339), core.DraftSentinelPrefix) {
		t.Fatalf("sentinel date does not carry the draft prefix")
	}
}

func TestLoadMigrations(t *testing.T) {
	logger.Init("error")
	m := &MigrationManager{log: logger.Get()}

	migrations, err := m.loadMigrations()
	if err != nil {
		t.Fatalf("loadMigrations returned error: %v", err)
	}
	if len(migrations) == 0 {
		t.Fatal("no embedded migrations found")
	}
	if migrations[0].Version != 1 {
		t.Errorf("first migration version = %d, want 1", migrations[0].Version)
	}
	for i := 1; i < len(migrations); i++ {
		if migrations[i-1].Version >= migrations[i].Version {
			t.Fatalf("migrations not sorted by version")
		}
	}
	if !strings.Contains(migrations[0].SQL, "CREATE TABLE") {
		t.Errorf("initial migration does not create tables")
	}
}
