package summarize

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"kynews/internal/core"
)

// mockLLM returns scripted responses in order.
type mockLLM struct {
	responses []string
	calls     int
	prompts   []string
}

func (m *mockLLM) GenerateText(_ context.Context, prompt string) (string, error) {
	m.prompts = append(m.prompts, prompt)
	if m.calls >= len(m.responses) {
		return "", fmt.Errorf("unexpected call %d", m.calls)
	}
	resp := m.responses[m.calls]
	m.calls++
	return resp, nil
}

func (m *mockLLM) ModelName() string { return "test-model" }

type mockStore struct {
	rows map[string]*core.ItemAISummary
}

func newMockStore() *mockStore {
	return &mockStore{rows: make(map[string]*core.ItemAISummary)}
}

func (m *mockStore) Get(_ context.Context, itemID string) (*core.ItemAISummary, error) {
	return m.rows[itemID], nil
}

func (m *mockStore) Upsert(_ context.Context, summary *core.ItemAISummary) error {
	m.rows[summary.ItemID] = summary
	return nil
}

type mockQueue struct {
	reasons map[string]string
}

func newMockQueue() *mockQueue {
	return &mockQueue{reasons: make(map[string]string)}
}

func (m *mockQueue) Enqueue(_ context.Context, itemID, reason string) error {
	m.reasons[itemID] = reason
	return nil
}

type mockBlobs struct {
	rows map[string]*core.ItemAISummary
}

func newMockBlobs() *mockBlobs {
	return &mockBlobs{rows: make(map[string]*core.ItemAISummary)}
}

func (m *mockBlobs) GetSummary(_ context.Context, itemID string) (*core.ItemAISummary, error) {
	return m.rows[itemID], nil
}

func (m *mockBlobs) SetSummary(_ context.Context, itemID string, summary *core.ItemAISummary, _ time.Duration) error {
	m.rows[itemID] = summary
	return nil
}

func wordsOf(n int) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = fmt.Sprintf("word%d", i)
	}
	return strings.Join(parts, " ")
}

func sentencesOf(words int) string {
	var b strings.Builder
	for i := 0; i < words; i++ {
		b.WriteString(fmt.Sprintf("word%d", i))
		if (i+1)%10 == 0 {
			b.WriteString(". ")
		} else {
			b.WriteString(" ")
		}
	}
	return strings.TrimSpace(b.String())
}

func testItem() *core.Item {
	return &core.Item{
		ID:      "item-1",
		Title:   "Creek flooding closes roads",
		Content: "Heavy rain flooded several roads in Pike County on Monday. " + wordsOf(300),
	}
}

func TestSummarizeGeneratesAndStores(t *testing.T) {
	llm := &mockLLM{responses: []string{wordsOf(250)}}
	store := newMockStore()
	queue := newMockQueue()
	blobs := newMockBlobs()
	s := New(llm, store, queue, blobs, DefaultOptions())

	item := testItem()
	got, err := s.Summarize(context.Background(), item)
	if err != nil {
		t.Fatalf("Summarize returned error: %v", err)
	}

	if got.Model != "test-model" {
		t.Errorf("model = %q", got.Model)
	}
	if got.SourceHash != SourceHash(item.Content) {
		t.Error("source hash mismatch")
	}
	if store.rows[item.ID] == nil {
		t.Error("summary not stored")
	}
	if blobs.rows[item.ID] == nil {
		t.Error("summary not written to blob cache")
	}
	if queue.reasons[item.ID] != core.ReasonAutoGenerated {
		t.Errorf("review reason = %q, want %q", queue.reasons[item.ID], core.ReasonAutoGenerated)
	}
	if llm.calls != 1 {
		t.Errorf("llm calls = %d, want 1", llm.calls)
	}
}

func TestSummarizeBlobCacheHit(t *testing.T) {
	llm := &mockLLM{}
	store := newMockStore()
	blobs := newMockBlobs()
	item := testItem()

	blobs.rows[item.ID] = &core.ItemAISummary{
		ItemID:     item.ID,
		Summary:    wordsOf(220),
		SourceHash: SourceHash(item.Content),
	}

	s := New(llm, store, newMockQueue(), blobs, DefaultOptions())
	got, err := s.Summarize(context.Background(), item)
	if err != nil {
		t.Fatalf("Summarize returned error: %v", err)
	}
	if llm.calls != 0 {
		t.Errorf("llm called on cache hit: %d", llm.calls)
	}
	if got != blobs.rows[item.ID] {
		t.Error("cached summary not returned")
	}
}

func TestSummarizeStoredRowBackfillsBlob(t *testing.T) {
	llm := &mockLLM{}
	store := newMockStore()
	blobs := newMockBlobs()
	item := testItem()

	store.rows[item.ID] = &core.ItemAISummary{
		ItemID:     item.ID,
		Summary:    wordsOf(220),
		SourceHash: SourceHash(item.Content),
	}

	s := New(llm, store, newMockQueue(), blobs, DefaultOptions())
	if _, err := s.Summarize(context.Background(), item); err != nil {
		t.Fatalf("Summarize returned error: %v", err)
	}
	if llm.calls != 0 {
		t.Errorf("llm called despite valid stored row: %d", llm.calls)
	}
	if blobs.rows[item.ID] == nil {
		t.Error("stored row not backfilled into blob cache")
	}
}

func TestSummarizeStaleHashRegenerates(t *testing.T) {
	llm := &mockLLM{responses: []string{wordsOf(250)}}
	store := newMockStore()
	item := testItem()

	store.rows[item.ID] = &core.ItemAISummary{
		ItemID:     item.ID,
		Summary:    wordsOf(220),
		SourceHash: "stale",
	}

	s := New(llm, store, newMockQueue(), nil, DefaultOptions())
	got, err := s.Summarize(context.Background(), item)
	if err != nil {
		t.Fatalf("Summarize returned error: %v", err)
	}
	if llm.calls != 1 {
		t.Errorf("llm calls = %d, want 1", llm.calls)
	}
	if got.SourceHash == "stale" {
		t.Error("stale summary returned")
	}
}

func TestSummarizeRepairPassFixesLength(t *testing.T) {
	llm := &mockLLM{responses: []string{wordsOf(500), wordsOf(300)}}
	queue := newMockQueue()
	s := New(llm, newMockStore(), queue, nil, DefaultOptions())

	item := testItem()
	got, err := s.Summarize(context.Background(), item)
	if err != nil {
		t.Fatalf("Summarize returned error: %v", err)
	}
	if llm.calls != 2 {
		t.Fatalf("llm calls = %d, want 2 (first pass + repair)", llm.calls)
	}
	if !strings.Contains(llm.prompts[1], "500 words") {
		t.Errorf("repair prompt does not name the offending length")
	}
	if wc := wordCount(got.Summary); wc != 300 {
		t.Errorf("repaired word count = %d", wc)
	}
	if queue.reasons[item.ID] != core.ReasonAutoGenerated {
		t.Errorf("review reason = %q", queue.reasons[item.ID])
	}
}

func TestSummarizeTrimsWhenRepairRunsLong(t *testing.T) {
	llm := &mockLLM{responses: []string{sentencesOf(500), sentencesOf(450)}}
	queue := newMockQueue()
	s := New(llm, newMockStore(), queue, nil, DefaultOptions())

	item := testItem()
	got, err := s.Summarize(context.Background(), item)
	if err != nil {
		t.Fatalf("Summarize returned error: %v", err)
	}
	if llm.calls != 2 {
		t.Fatalf("llm calls = %d, want exactly one repair pass", llm.calls)
	}
	if wc := wordCount(got.Summary); wc > 400 {
		t.Errorf("trimmed summary still %d words", wc)
	}
	if !strings.HasSuffix(got.Summary, ".") {
		t.Errorf("trim did not end at a sentence boundary: %q", got.Summary[len(got.Summary)-20:])
	}
	if queue.reasons[item.ID] != core.ReasonSummaryTooLong {
		t.Errorf("review reason = %q, want %q", queue.reasons[item.ID], core.ReasonSummaryTooLong)
	}
}

func TestSummarizeShortAfterRepairNotPersisted(t *testing.T) {
	llm := &mockLLM{responses: []string{wordsOf(120), wordsOf(150)}}
	store := newMockStore()
	queue := newMockQueue()
	blobs := newMockBlobs()
	s := New(llm, store, queue, blobs, DefaultOptions())

	item := testItem()
	got, err := s.Summarize(context.Background(), item)
	if err != nil {
		t.Fatalf("Summarize returned error: %v", err)
	}
	if got != nil {
		t.Fatalf("summary = %+v, want nil for a repair still under the floor", got)
	}
	if llm.calls != 2 {
		t.Errorf("llm calls = %d, want first pass + repair", llm.calls)
	}
	if len(store.rows) != 0 {
		t.Error("under-floor summary was persisted")
	}
	if len(blobs.rows) != 0 {
		t.Error("under-floor summary was written to the blob cache")
	}
	if len(queue.reasons) != 0 {
		t.Errorf("review queued for a discarded summary: %v", queue.reasons)
	}
}

func TestSummarizeCachedOutOfBoundsRegenerates(t *testing.T) {
	llm := &mockLLM{responses: []string{wordsOf(250)}}
	store := newMockStore()
	blobs := newMockBlobs()
	item := testItem()

	// Both layers hold a matching-hash entry that no longer satisfies
	// the word window.
	stale := &core.ItemAISummary{
		ItemID:     item.ID,
		Summary:    wordsOf(50),
		SourceHash: SourceHash(item.Content),
	}
	blobs.rows[item.ID] = stale
	store.rows[item.ID] = stale

	s := New(llm, store, newMockQueue(), blobs, DefaultOptions())
	got, err := s.Summarize(context.Background(), item)
	if err != nil {
		t.Fatalf("Summarize returned error: %v", err)
	}
	if llm.calls != 1 {
		t.Errorf("llm calls = %d, want regeneration despite the hash match", llm.calls)
	}
	if wc := wordCount(got.Summary); wc != 250 {
		t.Errorf("word count = %d, want the regenerated 250", wc)
	}
}

func TestSummarizeThinArticleRejected(t *testing.T) {
	llm := &mockLLM{}
	s := New(llm, newMockStore(), newMockQueue(), nil, DefaultOptions())

	item := &core.Item{ID: "thin", Title: "Brief", Content: "Crews responded to a small brush fire."}
	if _, err := s.Summarize(context.Background(), item); err == nil {
		t.Fatal("expected rejection for an article under the text floor")
	}
	if llm.calls != 0 {
		t.Errorf("llm called for a thin article: %d", llm.calls)
	}
}

func TestSummarizeEmptyItem(t *testing.T) {
	s := New(&mockLLM{}, newMockStore(), newMockQueue(), nil, DefaultOptions())
	if _, err := s.Summarize(context.Background(), &core.Item{ID: "empty"}); err == nil {
		t.Fatal("expected error for item without text")
	}
}

func TestSourceHash(t *testing.T) {
	a := SourceHash("some article text")
	if a != SourceHash("some article text") {
		t.Error("hash not deterministic")
	}
	if a == SourceHash("different text") {
		t.Error("different texts share a hash")
	}
	// Text beyond the truncation cap does not affect the hash.
	long := strings.Repeat("x", MaxSourceChars)
	if SourceHash(long) != SourceHash(long+" extra tail") {
		t.Error("tail beyond the cap changed the hash")
	}
}

func TestTrimToWords(t *testing.T) {
	text := "First sentence here. Second sentence follows. Third one trails on and on"
	got := trimToWords(text, 6)
	if got != "First sentence here. Second sentence follows." {
		t.Errorf("trimToWords = %q", got)
	}

	noBoundary := "one two three four five six seven"
	if got := trimToWords(noBoundary, 3); got != "one two three" {
		t.Errorf("hard cut = %q", got)
	}

	short := "already short."
	if got := trimToWords(short, 10); got != short {
		t.Errorf("short input modified: %q", got)
	}
}
