// Package summarize generates bounded article summaries, caches them by
// source hash, and routes every generated summary through the review
// queue.
package summarize

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"kynews/internal/core"
	"kynews/internal/logger"
)

// LLMClient defines the interface for LLM operations
type LLMClient interface {
	// GenerateText generates text from a prompt
	GenerateText(ctx context.Context, prompt string) (string, error)

	// ModelName identifies the backing model for the summary record
	ModelName() string
}

// SummaryStore is the authoritative summary cache, one row per item.
type SummaryStore interface {
	Get(ctx context.Context, itemID string) (*core.ItemAISummary, error)
	Upsert(ctx context.Context, summary *core.ItemAISummary) error
}

// ReviewQueue receives every generated summary for human review.
type ReviewQueue interface {
	Enqueue(ctx context.Context, itemID, reason string) error
}

// BlobCache is the fast expiring layer in front of SummaryStore.
// Implementations may be absent; the summarizer works without one.
type BlobCache interface {
	GetSummary(ctx context.Context, itemID string) (*core.ItemAISummary, error)
	SetSummary(ctx context.Context, itemID string, summary *core.ItemAISummary, ttl time.Duration) error
}

// Options configures the summarizer behavior
type Options struct {
	MinWords int
	MaxWords int
	CacheTTL time.Duration
}

// DefaultOptions returns the production bounds.
func DefaultOptions() Options {
	return Options{
		MinWords: 200,
		MaxWords: 400,
		CacheTTL: 30 * 24 * time.Hour,
	}
}

// Summarizer generates and caches article summaries.
type Summarizer struct {
	llm     LLMClient
	store   SummaryStore
	reviews ReviewQueue
	blobs   BlobCache // may be nil
	opts    Options
}

// New creates a summarizer. blobs may be nil when no fast cache is
// configured.
func New(llm LLMClient, store SummaryStore, reviews ReviewQueue, blobs BlobCache, opts Options) *Summarizer {
	if opts.MinWords <= 0 {
		opts.MinWords = DefaultOptions().MinWords
	}
	if opts.MaxWords <= opts.MinWords {
		opts.MaxWords = DefaultOptions().MaxWords
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = DefaultOptions().CacheTTL
	}
	return &Summarizer{
		llm:     llm,
		store:   store,
		reviews: reviews,
		blobs:   blobs,
		opts:    opts,
	}
}

// SourceHash derives the cache validator from the prompt version and the
// truncated article text. Either changing invalidates the summary.
func SourceHash(text string) string {
	sum := sha256.Sum256([]byte(PromptVersion + ":" + truncateContent(text, MaxSourceChars)))
	return hex.EncodeToString(sum[:])
}

// Summarize returns the summary for an item, generating one only when no
// cached summary matches the current source hash.
func (s *Summarizer) Summarize(ctx context.Context, item *core.Item) (*core.ItemAISummary, error) {
	if item == nil {
		return nil, fmt.Errorf("item is nil")
	}

	text := sourceText(item)
	if len(text) < MinSourceChars {
		return nil, fmt.Errorf("item %s has %d chars of text, need %d to summarize", item.ID, len(text), MinSourceChars)
	}
	hash := SourceHash(text)

	// Fast layer first; entries are revalidated against the source hash
	// and the current word window, so a re-extracted article or a policy
	// change never serves a stale summary.
	if s.blobs != nil {
		cached, err := s.blobs.GetSummary(ctx, item.ID)
		if err != nil {
			logger.Warn("summary blob cache read failed", "item_id", item.ID, "error", err.Error())
		} else if cached != nil && cached.SourceHash == hash && s.inBounds(cached.Summary) {
			return cached, nil
		}
	}

	stored, err := s.store.Get(ctx, item.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to read stored summary: %w", err)
	}
	if stored != nil && stored.SourceHash == hash && s.inBounds(stored.Summary) {
		s.backfillBlob(ctx, item.ID, stored)
		return stored, nil
	}

	summary, reason, err := s.generate(ctx, item.Title, text)
	if err != nil {
		return nil, err
	}
	if summary == "" {
		// The repair pass could not reach the word floor. Nothing is
		// persisted; the next source change retries from scratch.
		logger.Debug("summary below word floor after repair, discarded", "item_id", item.ID)
		return nil, nil
	}

	record := &core.ItemAISummary{
		ItemID:      item.ID,
		Summary:     summary,
		Model:       s.llm.ModelName(),
		SourceHash:  hash,
		GeneratedAt: time.Now().UTC(),
	}

	if err := s.store.Upsert(ctx, record); err != nil {
		return nil, fmt.Errorf("failed to store summary: %w", err)
	}
	if err := s.reviews.Enqueue(ctx, item.ID, reason); err != nil {
		logger.Warn("failed to enqueue summary review", "item_id", item.ID, "error", err.Error())
	}
	s.backfillBlob(ctx, item.ID, record)

	return record, nil
}

// generate runs the first pass, then at most one repair pass when the
// word count misses the window, then a sentence-boundary trim when the
// repair still runs long. A repair still under the floor returns an
// empty summary so the caller persists nothing. The returned reason
// records how the summary left the pipeline.
func (s *Summarizer) generate(ctx context.Context, title, text string) (string, string, error) {
	prompt := BuildSummaryPrompt(title, text, s.opts.MinWords, s.opts.MaxWords)
	summary, err := s.llm.GenerateText(ctx, prompt)
	if err != nil {
		return "", "", fmt.Errorf("failed to generate summary: %w", err)
	}
	summary = strings.TrimSpace(summary)

	words := wordCount(summary)
	if words >= s.opts.MinWords && words <= s.opts.MaxWords {
		return summary, core.ReasonAutoGenerated, nil
	}

	repaired, err := s.llm.GenerateText(ctx, BuildRepairPrompt(summary, s.opts.MinWords, s.opts.MaxWords, words))
	if err != nil {
		logger.Warn("summary repair pass failed", "error", err.Error())
	} else if r := strings.TrimSpace(repaired); r != "" {
		summary = r
		words = wordCount(summary)
	}

	switch {
	case words > s.opts.MaxWords:
		summary = trimToWords(summary, s.opts.MaxWords)
		return summary, core.ReasonSummaryTooLong, nil
	case words < s.opts.MinWords:
		return "", "", nil
	default:
		return summary, core.ReasonAutoGenerated, nil
	}
}

// inBounds re-checks a summary against the current word window; cached
// entries written under older bounds fail it and regenerate.
func (s *Summarizer) inBounds(summary string) bool {
	words := wordCount(summary)
	return words >= s.opts.MinWords && words <= s.opts.MaxWords
}

func (s *Summarizer) backfillBlob(ctx context.Context, itemID string, record *core.ItemAISummary) {
	if s.blobs == nil {
		return
	}
	if err := s.blobs.SetSummary(ctx, itemID, record, s.opts.CacheTTL); err != nil {
		logger.Warn("summary blob cache write failed", "item_id", itemID, "error", err.Error())
	}
}

// sourceText prefers the extracted article body over the feed snippet.
func sourceText(item *core.Item) string {
	if strings.TrimSpace(item.Content) != "" {
		return item.Content
	}
	return strings.TrimSpace(item.Summary)
}

func wordCount(s string) int {
	return len(strings.Fields(s))
}

// trimToWords cuts at the last sentence boundary at or before the word
// limit, falling back to a hard word cut when no boundary fits.
func trimToWords(s string, maxWords int) string {
	words := strings.Fields(s)
	if len(words) <= maxWords {
		return s
	}

	hard := strings.Join(words[:maxWords], " ")
	for i := len(hard) - 1; i >= 0; i-- {
		switch hard[i] {
		case '.', '!', '?':
			return strings.TrimSpace(hard[:i+1])
		}
	}
	return hard
}
