package summarize

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// PromptVersion participates in the source hash: bump it when a prompt
// change should invalidate every cached summary.
const PromptVersion = "v2"

// MaxSourceChars bounds the article text fed to the model and hashed
// into the cache key.
const MaxSourceChars = 20000

// MinSourceChars is the floor below which an article is too thin to
// summarize at all.
const MinSourceChars = 300

// BuildSummaryPrompt creates the first-pass summarization prompt.
func BuildSummaryPrompt(title, content string, minWords, maxWords int) string {
	var prompt strings.Builder

	prompt.WriteString("Summarize the following news article for a regional news reader.\n\n")
	prompt.WriteString("Requirements:\n")
	prompt.WriteString(fmt.Sprintf("- Length: between %d and %d words\n", minWords, maxWords))
	prompt.WriteString("- Plain prose, no headings, no bullet points, no markdown\n")
	prompt.WriteString("- Keep specific names, places, numbers, and dates from the article\n")
	prompt.WriteString("- State only what the article says; never add outside facts\n")
	prompt.WriteString("- Write only the summary, no preamble or commentary\n\n")

	if title != "" {
		prompt.WriteString(fmt.Sprintf("Title: %s\n\n", title))
	}
	prompt.WriteString("Article:\n")
	prompt.WriteString(truncateContent(content, MaxSourceChars))
	prompt.WriteString("\n")

	return prompt.String()
}

// BuildRepairPrompt asks the model to rewrite an out-of-bounds summary
// back into the word window without introducing new material.
func BuildRepairPrompt(summary string, minWords, maxWords, gotWords int) string {
	var prompt strings.Builder

	direction := "Expand"
	if gotWords > maxWords {
		direction = "Shorten"
	}

	prompt.WriteString(fmt.Sprintf(
		"The following summary is %d words but must be between %d and %d words.\n",
		gotWords, minWords, maxWords))
	prompt.WriteString(direction)
	prompt.WriteString(" it to fit. Keep every concrete fact, drop nothing important, add nothing new.\n")
	prompt.WriteString("Write only the revised summary.\n\n")
	prompt.WriteString(summary)
	prompt.WriteString("\n")

	return prompt.String()
}

// truncateContent caps content at a rune boundary.
func truncateContent(content string, maxChars int) string {
	if utf8.RuneCountInString(content) <= maxChars {
		return content
	}
	runes := []rune(content)
	return string(runes[:maxChars])
}
