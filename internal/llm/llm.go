// Package llm wraps the Gemini client behind the one call the service
// needs: prompt in, plain text out.
package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

const (
	// DefaultModel is the Gemini model used for summarization.
	DefaultModel = "gemini-1.5-flash"

	// Generation settings. Summaries are bounded prose, so the output
	// budget is small and the temperature low for consistency.
	maxOutputTokens = 900
	temperature     = 0.2
)

// Client is a Gemini-backed text generator.
type Client struct {
	client *genai.Client
	model  string
}

// NewClient creates a Gemini client. An empty model selects DefaultModel.
func NewClient(ctx context.Context, apiKey, model string) (*Client, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini API key is required; set GEMINI_API_KEY")
	}
	if model == "" {
		model = DefaultModel
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return &Client{client: client, model: model}, nil
}

// ModelName returns the configured model identifier.
func (c *Client) ModelName() string {
	return c.model
}

// Close releases the underlying connection.
func (c *Client) Close() error {
	return c.client.Close()
}

// GenerateText sends a prompt and returns the concatenated text parts of
// the first candidate. Non-text parts are skipped rather than failing
// the call.
func (c *Client) GenerateText(ctx context.Context, prompt string) (string, error) {
	model := c.client.GenerativeModel(c.model)
	model.SetMaxOutputTokens(maxOutputTokens)
	model.SetTemperature(temperature)

	resp, err := model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", fmt.Errorf("failed to generate content: %w", err)
	}

	text := extractText(resp)
	if text == "" {
		return "", fmt.Errorf("empty response from model %s", c.model)
	}
	return text, nil
}

// extractText tolerates the response shapes the API produces: missing
// candidates, nil content, and mixed part types.
func extractText(resp *genai.GenerateContentResponse) string {
	if resp == nil {
		return ""
	}
	var b strings.Builder
	for _, candidate := range resp.Candidates {
		if candidate == nil || candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if text, ok := part.(genai.Text); ok {
				b.WriteString(string(text))
			}
		}
		if b.Len() > 0 {
			break // first candidate with text wins
		}
	}
	return strings.TrimSpace(b.String())
}
