// Package tts is the TTS Adapter: synthesize(text) -> audio bytes plus
// an estimated duration, provider-selectable between Google and ElevenLabs.
// Neither provider has a pack-grounded Go client among the retrieved
// examples, so this adapter is built directly on stdlib net/http (DESIGN.md
// stdlib justification), the same way llmutils/context.go wraps
// net/http.RoundTripper rather than adopting a heavier client framework.
package tts

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/ghiac/voicecoach/llmutils"
	"github.com/ghiac/voicecoach/log"
)

// ErrNotConfigured is returned by Synthesize when no provider key is set,
// per the "disabled gracefully" contract.
var ErrNotConfigured = errors.New("tts: no provider configured")

const (
	ProviderGoogle     = "google"
	ProviderElevenLabs = "elevenlabs"

	wordsPerMinute  = 150
	minDurationMS   = 1000
)

// Result is the synthesized-speech payload.
type Result struct {
	Audio      []byte
	DurationMS int
}

// Config configures the Adapter.
type Config struct {
	Provider     string
	GoogleKey    string
	ElevenLabKey string
	Voice        string
	Timeout      time.Duration
}

// Adapter is the TTS Adapter.
type Adapter struct {
	cfg    Config
	client *http.Client
}

// New builds an Adapter. httpClient may be nil, in which case a plain
// http.Client is used.
func New(cfg Config, httpClient *http.Client) *Adapter {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &Adapter{cfg: cfg, client: llmutils.NewHTTPClientWithUserIDHeader(httpClient)}
}

// Synthesize strips SSML-like tags, calls the configured
// provider, and estimate speaking duration from the stripped word count.
func (a *Adapter) Synthesize(ctx context.Context, text string) (Result, error) {
	plain := StripSSML(text)
	duration := EstimateDurationMS(plain)

	switch a.cfg.Provider {
	case ProviderGoogle:
		if a.cfg.GoogleKey == "" {
			return Result{}, ErrNotConfigured
		}
		audio, err := a.synthesizeGoogle(ctx, plain)
		if err != nil {
			return Result{}, err
		}
		return Result{Audio: audio, DurationMS: duration}, nil
	case ProviderElevenLabs:
		if a.cfg.ElevenLabKey == "" {
			return Result{}, ErrNotConfigured
		}
		audio, err := a.synthesizeElevenLabs(ctx, plain)
		if err != nil {
			return Result{}, err
		}
		return Result{Audio: audio, DurationMS: duration}, nil
	default:
		return Result{}, ErrNotConfigured
	}
}

func (a *Adapter) synthesizeGoogle(ctx context.Context, text string) ([]byte, error) {
	body, err := json.Marshal(map[string]any{
		"input":       map[string]string{"text": text},
		"voice":       map[string]string{"languageCode": "en-US", "name": a.cfg.Voice},
		"audioConfig": map[string]string{"audioEncoding": "MP3"},
	})
	if err != nil {
		return nil, fmt.Errorf("tts: marshal google request: %w", err)
	}

	url := "https://texttospeech.googleapis.com/v1/text:synthesize?key=" + a.cfg.GoogleKey
	var decoded struct {
		AudioContent string `json:"audioContent"`
	}
	if err := a.postJSON(ctx, url, nil, body, &decoded); err != nil {
		return nil, err
	}
	audio, err := base64.StdEncoding.DecodeString(decoded.AudioContent)
	if err != nil {
		return nil, fmt.Errorf("tts: decode google audioContent: %w", err)
	}
	return audio, nil
}

func (a *Adapter) synthesizeElevenLabs(ctx context.Context, text string) ([]byte, error) {
	body, err := json.Marshal(map[string]any{
		"text":     text,
		"model_id": "eleven_monolingual_v1",
	})
	if err != nil {
		return nil, fmt.Errorf("tts: marshal elevenlabs request: %w", err)
	}

	voice := a.cfg.Voice
	if voice == "" {
		voice = "21m00Tcm4TlvDq8ikWAM"
	}
	url := "https://api.elevenlabs.io/v1/text-to-speech/" + voice
	headers := map[string]string{"xi-api-key": a.cfg.ElevenLabKey}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("tts: build elevenlabs request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	ctx, cancel := context.WithTimeout(ctx, a.cfg.Timeout)
	defer cancel()
	resp, err := a.client.Do(req.WithContext(ctx))
	if err != nil {
		log.Log.Warnf("[TTSAdapter] elevenlabs request failed: %v", err)
		return nil, fmt.Errorf("tts: elevenlabs request: %w", err)
	}
	defer resp.Body.Close()

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("tts: read elevenlabs response: %w", err)
	}
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("tts: elevenlabs status %d: %s", resp.StatusCode, string(audio))
	}
	return audio, nil
}

func (a *Adapter) postJSON(ctx context.Context, url string, headers map[string]string, body []byte, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("tts: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	ctx, cancel := context.WithTimeout(ctx, a.cfg.Timeout)
	defer cancel()
	resp, err := a.client.Do(req.WithContext(ctx))
	if err != nil {
		log.Log.Warnf("[TTSAdapter] request to %s failed: %v", url, err)
		return fmt.Errorf("tts: request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("tts: read response: %w", err)
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("tts: status %d: %s", resp.StatusCode, string(raw))
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("tts: decode response: %w", err)
	}
	return nil
}

var ssmlTagPattern = regexp.MustCompile(`<[^>]+>`)

// StripSSML removes any SSML-like tags (<speak>, <prosody>, <emphasis>,
// <break/>, or any other tag), keeping the punctuation around them. Each run
// of whitespace, including one left where a tag was removed, is collapsed to
// a single space and the ends are trimmed; applying it twice gives the same
// result as applying it once.
func StripSSML(text string) string {
	stripped := ssmlTagPattern.ReplaceAllString(text, "")
	return strings.Join(strings.Fields(stripped), " ")
}

// EstimateDurationMS estimates speaking duration at 150 words per minute,
// floored at 1000ms.
func EstimateDurationMS(plainText string) int {
	words := len(strings.Fields(plainText))
	if words == 0 {
		return minDurationMS
	}
	ms := (words * 60 * 1000) / wordsPerMinute
	if ms < minDurationMS {
		return minDurationMS
	}
	return ms
}
