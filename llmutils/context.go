package llmutils

import (
	"net/http"

	"github.com/ghiac/voicecoach/model"
	"github.com/sashabaranov/go-openai"
)

// correlationRoundTripper tags every outbound request to an upstream
// provider (LLM, TTS, realtime) with the user and WebSocket session it is
// being made on behalf of, so provider-side logs can be correlated back to
// a live connection.
type correlationRoundTripper struct {
	Transport http.RoundTripper
}

// RoundTrip implements http.RoundTripper, adding X-User-ID and X-Session-ID
// headers from ctx when present. Either may be absent (e.g. a standalone
// tts_request made before client_ready_request has bound a session).
func (c *correlationRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	if userID, ok := model.GetUserIDFromContext(req.Context()); ok {
		req.Header.Set("X-User-ID", userID)
	}
	if sessionID, ok := model.GetSessionIDFromContext(req.Context()); ok {
		req.Header.Set("X-Session-ID", sessionID)
	}

	transport := c.Transport
	if transport == nil {
		transport = http.DefaultTransport
	}
	return transport.RoundTrip(req)
}

// NewHTTPClientWithUserIDHeader wraps baseClient so every request it sends
// carries the calling user/session as correlation headers.
func NewHTTPClientWithUserIDHeader(baseClient *http.Client) *http.Client {
	if baseClient == nil {
		baseClient = http.DefaultClient
	}

	var transport http.RoundTripper = baseClient.Transport
	if transport == nil {
		transport = http.DefaultTransport
	}

	return &http.Client{
		Transport:     &correlationRoundTripper{Transport: transport},
		Timeout:       baseClient.Timeout,
		CheckRedirect: baseClient.CheckRedirect,
		Jar:           baseClient.Jar,
	}
}

// NewOpenAIClientWithUserIDHeader builds an OpenAI-compatible client whose
// underlying HTTP transport tags requests with the caller's user/session.
func NewOpenAIClientWithUserIDHeader(apiKey string, baseURL string, baseHTTPClient *http.Client) *openai.Client {
	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}
	config.HTTPClient = NewHTTPClientWithUserIDHeader(baseHTTPClient)

	return openai.NewClientWithConfig(config)
}
