package sentiment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const anthropicSystemPrompt = `You are a sentiment classifier for news headlines.
Reply with a single JSON object and nothing else: {"negative": <0..1>, "positive": <0..1>}.
The two numbers are probabilities and must sum to 1.`

// AnthropicScorer 用 Claude 对标题做二分类
type AnthropicScorer struct {
	client *anthropic.Client
	model  anthropic.Model
}

func NewAnthropicScorer(apiKey string, opts ...option.RequestOption) *AnthropicScorer {
	client := anthropic.NewClient(append([]option.RequestOption{option.WithAPIKey(apiKey)}, opts...)...)
	return &AnthropicScorer{client: &client, model: anthropic.ModelClaudeHaiku4_5}
}

func (s *AnthropicScorer) Score(ctx context.Context, text string) (Sentiment, error) {
	resp, err := s.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     s.model,
		MaxTokens: 64,
		System: []anthropic.TextBlockParam{
			{Text: anthropicSystemPrompt},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock("Headline: " + text)),
		},
	})
	if err != nil {
		return Sentiment{}, fmt.Errorf("anthropic API error: %w", err)
	}
	if len(resp.Content) == 0 {
		return Sentiment{}, errors.New("no response from anthropic")
	}
	return parseSentimentJSON(resp.Content[0].Text)
}

func parseSentimentJSON(content string) (Sentiment, error) {
	content = cleanJSONResponse(content)
	var parsed struct {
		Negative float64 `json:"negative"`
		Positive float64 `json:"positive"`
	}
	if err := json.Unmarshal([]byte(content), &parsed); err != nil {
		return Sentiment{}, fmt.Errorf("failed to parse response: %w, content: %s", err, content)
	}
	return normalize(parsed.Negative, parsed.Positive)
}

func cleanJSONResponse(content string) string {
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")
	content = strings.TrimSpace(content)

	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start >= 0 && end > start {
		content = content[start : end+1]
	}
	return content
}
