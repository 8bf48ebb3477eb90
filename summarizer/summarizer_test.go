package summarizer

import (
	"context"
	"testing"
	"time"

	"github.com/ghiac/voicecoach/model"
	openai "github.com/sashabaranov/go-openai"
)

type fakeChatClient struct {
	lastReq  openai.ChatCompletionRequest
	response string
	err      error
}

func (f *fakeChatClient) CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	f.lastReq = req
	if f.err != nil {
		return openai.ChatCompletionResponse{}, f.err
	}
	return openai.ChatCompletionResponse{
		Choices: []openai.ChatCompletionChoice{{Message: openai.ChatCompletionMessage{Content: f.response}}},
	}, nil
}

func TestFlatten(t *testing.T) {
	messages := []model.Message{
		{Type: model.MessageAI, Content: "Hi, what did you eat?", Timestamp: time.Now()},
		{Type: model.MessageUser, Content: "Oatmeal.", Timestamp: time.Now()},
	}
	got := Flatten(messages)
	want := "Agent: Hi, what did you eat?\nUser: Oatmeal."
	if got != want {
		t.Errorf("Flatten = %q, want %q", got, want)
	}
}

func TestSummarize_EmptyHistoryShortCircuits(t *testing.T) {
	fake := &fakeChatClient{}
	s := &Summarizer{client: fake, cfg: DefaultConfig()}

	summary, err := s.Summarize(context.Background(), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if summary != "" {
		t.Errorf("expected empty summary for empty history, got %q", summary)
	}
	if fake.lastReq.Model != "" {
		t.Error("expected no LLM call for empty history")
	}
}

func TestSummarize_ReturnsVerbatimBulletDigest(t *testing.T) {
	fake := &fakeChatClient{response: "- Agent greeted the user\n- User logged oatmeal for breakfast"}
	s := &Summarizer{client: fake, cfg: DefaultConfig()}

	messages := []model.Message{
		{Type: model.MessageAI, Content: "Hi!"},
		{Type: model.MessageUser, Content: "I had oatmeal."},
	}
	summary, err := s.Summarize(context.Background(), messages)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if summary != fake.response {
		t.Errorf("Summarize = %q, want verbatim %q", summary, fake.response)
	}
	if fake.lastReq.Model != DefaultConfig().Model {
		t.Errorf("used model %q, want %q", fake.lastReq.Model, DefaultConfig().Model)
	}
}

func TestSummarize_NoChoicesIsError(t *testing.T) {
	s := &Summarizer{client: zeroChoiceClient{}, cfg: DefaultConfig()}

	_, err := s.Summarize(context.Background(), []model.Message{{Type: model.MessageUser, Content: "hi"}})
	if err == nil {
		t.Fatal("expected an error when the LLM returns no choices")
	}
}

type zeroChoiceClient struct{}

func (zeroChoiceClient) CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	return openai.ChatCompletionResponse{}, nil
}
