// Package realtime is the Realtime Credential Issuer: it mints a
// short-lived client secret the browser can use to open a realtime-voice
// session directly with the upstream provider, without ever handing the
// browser the long-lived API key. No pack example wraps this endpoint, so
// this issuer is built on stdlib net/http (DESIGN.md stdlib justification),
// reusing llmutils' context-tagging RoundTripper the same way tts.Adapter
// does.
package realtime

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ghiac/voicecoach/llmutils"
	"github.com/ghiac/voicecoach/log"
)

// ErrDisabled is returned by Mint when the issuer is not configured/enabled,
// per the "disabled gracefully" contract.
var ErrDisabled = errors.New("realtime: credential issuance is disabled")

// Credential is the ephemeral client-secret payload handed back to the
// browser.
type Credential struct {
	ClientSecret ClientSecret `json:"client_secret"`
	Model        string       `json:"model"`
	Voice        string       `json:"voice"`
}

// ClientSecret is the short-lived token and its expiry.
type ClientSecret struct {
	Value     string    `json:"value"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Config configures the Issuer.
type Config struct {
	Enabled bool
	APIKey  string
	BaseURL string
	Model   string
	Voice   string
	Timeout time.Duration
}

// Issuer is the Realtime Credential Issuer.
type Issuer struct {
	cfg    Config
	client *http.Client
}

// New builds an Issuer. httpClient may be nil.
func New(cfg Config, httpClient *http.Client) *Issuer {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &Issuer{cfg: cfg, client: llmutils.NewHTTPClientWithUserIDHeader(httpClient)}
}

// Mint requests a fresh ephemeral credential scoped to this
// session/user from the upstream provider. Returns ErrDisabled when the
// issuer is unconfigured rather than attempting a call that would fail.
func (iss *Issuer) Mint(ctx context.Context, sessionID, userID, email string) (Credential, error) {
	if !iss.cfg.Enabled || iss.cfg.APIKey == "" {
		return Credential{}, ErrDisabled
	}

	reqBody, err := json.Marshal(map[string]any{
		"model": iss.cfg.Model,
		"voice": iss.cfg.Voice,
		"metadata": map[string]string{
			"sessionId": sessionID,
			"userId":    userID,
			"userEmail": email,
		},
	})
	if err != nil {
		return Credential{}, fmt.Errorf("realtime: marshal mint request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, iss.cfg.BaseURL, bytes.NewReader(reqBody))
	if err != nil {
		return Credential{}, fmt.Errorf("realtime: build mint request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+iss.cfg.APIKey)

	ctx, cancel := context.WithTimeout(ctx, iss.cfg.Timeout)
	defer cancel()
	resp, err := iss.client.Do(req.WithContext(ctx))
	if err != nil {
		log.Log.Warnf("[RealtimeIssuer] mint request failed: %v", err)
		return Credential{}, fmt.Errorf("realtime: mint request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return Credential{}, fmt.Errorf("realtime: read mint response: %w", err)
	}
	if resp.StatusCode >= 300 {
		return Credential{}, fmt.Errorf("realtime: mint status %d: %s", resp.StatusCode, string(raw))
	}

	var decoded struct {
		ClientSecret struct {
			Value     string `json:"value"`
			ExpiresAt int64  `json:"expires_at"`
		} `json:"client_secret"`
	}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return Credential{}, fmt.Errorf("realtime: decode mint response: %w", err)
	}

	cred := Credential{
		ClientSecret: ClientSecret{
			Value:     decoded.ClientSecret.Value,
			ExpiresAt: time.Unix(decoded.ClientSecret.ExpiresAt, 0),
		},
		Model: iss.cfg.Model,
		Voice: iss.cfg.Voice,
	}
	log.Log.Infof("[RealtimeIssuer] minted credential for session=%s expiring=%s", sessionID, cred.ClientSecret.ExpiresAt)
	return cred, nil
}
