// Package summarizer is the Conversation Summarizer: it flattens a
// conversation's message history into a bulleted chronological digest the
// client can use to compact its own in-memory history. The prompt pairs a
// concrete good/bad example to steer format compliance, generalized from a
// document-content summary to a conversation-digest summary. Per DESIGN.md
// open question #3, summaries are never persisted server-side: this
// package has no storage dependency at all.
package summarizer

import (
	"context"
	"fmt"
	"strings"

	"github.com/ghiac/voicecoach/log"
	"github.com/ghiac/voicecoach/model"
	openai "github.com/sashabaranov/go-openai"
)

const systemPrompt = `You are a conversation summarizer for a voice coaching assistant.
Generate a concise bulleted chronological digest of the conversation so far.

Requirements:
- One bullet per notable turn or topic shift, in chronological order
- Use short declarative bullets: "Agent introduced the meal-logging flow", "User shared they ate oatmeal for breakfast"
- Do not invent details that were not said
- Maximum 10 bullets
- Return only the bullet list, no preamble or closing remarks

Example good digest:
- Agent introduced itself and asked about breakfast
- User shared they ate oatmeal with berries
- Agent asked for portion size
- User estimated one cup

Example bad digest:
"The conversation covered a discussion about breakfast and some food items." (too vague, not bulleted, not chronological)
`

// chatClient is the subset of *openai.Client this package depends on.
type chatClient interface {
	CreateChatCompletion(ctx context.Context, request openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// Config tunes the Summarizer's model selection.
type Config struct {
	Model     string
	MaxTokens int
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{Model: "gpt-4o-mini", MaxTokens: 300}
}

// Summarizer is the Conversation Summarizer.
type Summarizer struct {
	client chatClient
	cfg    Config
}

// New builds a Summarizer over a configured OpenAI-compatible client.
func New(client *openai.Client, cfg Config) *Summarizer {
	d := DefaultConfig()
	if cfg.Model == "" {
		cfg.Model = d.Model
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = d.MaxTokens
	}
	return &Summarizer{client: client, cfg: cfg}
}

// Flatten renders a message history as "speaker: text" lines, the shape
// asks the LLM to digest.
func Flatten(messages []model.Message) string {
	lines := make([]string, 0, len(messages))
	for _, m := range messages {
		speaker := "User"
		if m.Type == model.MessageAI {
			speaker = "Agent"
		}
		lines = append(lines, fmt.Sprintf("%s: %s", speaker, m.Content))
	}
	return strings.Join(lines, "\n")
}

// Summarize flattens the given history and returns the
// model's bullet digest verbatim. Never persists anything.
func (s *Summarizer) Summarize(ctx context.Context, messages []model.Message) (string, error) {
	if len(messages) == 0 {
		return "", nil
	}

	flattened := Flatten(messages)
	resp, err := s.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:     s.cfg.Model,
		MaxTokens: s.cfg.MaxTokens,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: "Summarize this conversation:\n\n" + flattened},
		},
	})
	if err != nil {
		log.Log.Warnf("[Summarizer] request failed: %v", err)
		return "", fmt.Errorf("summarizer: request failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("summarizer: no response from LLM")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}
