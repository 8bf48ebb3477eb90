// Package llm is the LLM Adapter: a single complete() operation that
// mediates a strict-JSON contract with the upstream completion provider,
// with timeout, retry/backoff, and a JSON-repair pipeline.
package llm

import (
	"context"
	"time"

	"github.com/ghiac/voicecoach/log"
	openai "github.com/sashabaranov/go-openai"
)

// IntentResponse is the four-key strict-JSON contract the system prompt
// demands of the upstream model.
type IntentResponse struct {
	ID          string            `json:"id"`
	IsCompleted bool              `json:"isCompleted"`
	Fields      map[string]string `json:"fields"`
	NextPrompt  string            `json:"nextPrompt"`
}

// defaultIntentResponse is returned whenever parsing or all retries fail
// (the fallback contract for exhausted retries).
func defaultIntentResponse() IntentResponse {
	return IntentResponse{Fields: map[string]string{}}
}

// Config tunes the retry/backoff/timeout behavior.
type Config struct {
	Model        string
	Timeout      time.Duration // default 8s
	MaxAttempts  int           // default 3
	BackoffBase  time.Duration // default 1s
	BackoffCap   time.Duration // default 3s
}

// DefaultConfig returns the default timeout/retry/backoff settings.
func DefaultConfig() Config {
	return Config{
		Model:       "gpt-4o-mini",
		Timeout:     8 * time.Second,
		MaxAttempts: 3,
		BackoffBase: 1 * time.Second,
		BackoffCap:  3 * time.Second,
	}
}

// chatClient is the subset of *openai.Client this package depends on, so
// tests can supply a fake.
type chatClient interface {
	CreateChatCompletion(ctx context.Context, request openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// Adapter is the LLM Adapter.
type Adapter struct {
	client chatClient
	cfg    Config
}

// New builds an Adapter over a configured OpenAI-compatible client.
func New(client *openai.Client, cfg Config) *Adapter {
	return &Adapter{client: client, cfg: applyDefaults(cfg)}
}

func applyDefaults(cfg Config) Config {
	d := DefaultConfig()
	if cfg.Model == "" {
		cfg.Model = d.Model
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = d.Timeout
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = d.MaxAttempts
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = d.BackoffBase
	}
	if cfg.BackoffCap <= 0 {
		cfg.BackoffCap = d.BackoffCap
	}
	return cfg
}

// Complete calls the upstream model with
// systemPrompt/userPrompt, retrying up to MaxAttempts times with exponential
// backoff on timeout or transport failure, and running every successful
// response through the JSON-repair pipeline. On exhaustion it returns the
// default IntentResponse (empty id and nextPrompt, empty fields map) together
// with the last attempt's error, so the response is always usable and the
// error lets orchestration logging tell "used fallback" apart from "got a
// real (possibly empty) answer".
func (a *Adapter) Complete(ctx context.Context, systemPrompt, userPrompt string) (IntentResponse, error) {
	var lastErr error

	for attempt := 0; attempt < a.cfg.MaxAttempts; attempt++ {
		if attempt > 0 {
			backoff := a.cfg.BackoffBase * time.Duration(1<<uint(attempt-1))
			if backoff > a.cfg.BackoffCap {
				backoff = a.cfg.BackoffCap
			}
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return defaultIntentResponse(), ctx.Err()
			}
		}

		callCtx, cancel := context.WithTimeout(ctx, a.cfg.Timeout)
		resp, err := a.client.CreateChatCompletion(callCtx, openai.ChatCompletionRequest{
			Model: a.cfg.Model,
			Messages: []openai.ChatCompletionMessage{
				{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
				{Role: openai.ChatMessageRoleUser, Content: userPrompt},
			},
		})
		cancel()

		if err != nil {
			lastErr = err
			log.Log.Warnf("[LLMAdapter] attempt %d/%d failed: %v", attempt+1, a.cfg.MaxAttempts, err)
			continue
		}
		if len(resp.Choices) == 0 {
			lastErr = errEmptyResponse
			log.Log.Warnf("[LLMAdapter] attempt %d/%d: empty choices", attempt+1, a.cfg.MaxAttempts)
			continue
		}

		raw := resp.Choices[0].Message.Content
		parsed, ok := parseIntentResponse(raw)
		if !ok {
			lastErr = errUnparseable
			log.Log.Warnf("[LLMAdapter] attempt %d/%d: could not parse JSON from response", attempt+1, a.cfg.MaxAttempts)
			continue
		}

		if resp.Usage.TotalTokens > 0 {
			log.Log.Infof("[LLMAdapter] completion ok | model=%s prompt=%d completion=%d total=%d",
				a.cfg.Model, resp.Usage.PromptTokens, resp.Usage.CompletionTokens, resp.Usage.TotalTokens)
		}
		return parsed, nil
	}

	log.Log.Errorf("[LLMAdapter] all %d attempts exhausted, returning default IntentResponse: %v", a.cfg.MaxAttempts, lastErr)
	return defaultIntentResponse(), lastErr
}
