package orchestrator

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/ghiac/voicecoach/model"
)

func TestFallbackPrompt(t *testing.T) {
	cases := map[string]string{
		"":                 "Could you please clarify or provide more details?",
		"What did you eat": "What did you eat?",
		"What did you eat?": "What did you eat?",
		"  ":                "Could you please clarify or provide more details?",
	}
	for in, want := range cases {
		if got := fallbackPrompt(in); got != want {
			t.Errorf("fallbackPrompt(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestParseIntentIDHeader(t *testing.T) {
	text := "Some context.\nIntent ID:\n1002\nMore context after."
	if got := parseIntentIDHeader(text); got != "1002" {
		t.Errorf("parseIntentIDHeader = %q, want 1002", got)
	}
}

func TestParseIntentIDHeader_Missing(t *testing.T) {
	if got := parseIntentIDHeader("no header here"); got != "" {
		t.Errorf("parseIntentIDHeader = %q, want empty", got)
	}
}

func TestFirstNonEmpty(t *testing.T) {
	if got := firstNonEmpty("", "", "third"); got != "third" {
		t.Errorf("firstNonEmpty = %q, want third", got)
	}
	if got := firstNonEmpty("first", "second"); got != "first" {
		t.Errorf("firstNonEmpty = %q, want first", got)
	}
	if got := firstNonEmpty("", ""); got != "" {
		t.Errorf("firstNonEmpty = %q, want empty", got)
	}
}

func TestSplitCommaList(t *testing.T) {
	got := splitCommaList("oatmeal,  berries ,,banana")
	want := []string{"oatmeal", "berries", "banana"}
	if len(got) != len(want) {
		t.Fatalf("splitCommaList = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("splitCommaList[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestSplitCommaList_Empty(t *testing.T) {
	if got := splitCommaList(""); got != nil {
		t.Errorf("splitCommaList(\"\") = %v, want nil", got)
	}
}

func TestParseUserMessageData_BareString(t *testing.T) {
	raw := json.RawMessage(`"I had oatmeal"`)
	data, ok := parseUserMessageData(raw)
	if !ok {
		t.Fatal("expected parse to succeed for a bare string")
	}
	if data.Prompt != "I had oatmeal" {
		t.Errorf("Prompt = %q, want %q", data.Prompt, "I had oatmeal")
	}
}

func TestParseUserMessageData_StructuredObject(t *testing.T) {
	raw := json.RawMessage(`{"prompt":"I had oatmeal","agentId":"coach","intentId":1000}`)
	data, ok := parseUserMessageData(raw)
	if !ok {
		t.Fatal("expected parse to succeed for a structured object")
	}
	if data.Prompt != "I had oatmeal" || data.AgentID != "coach" || data.IntentID.String() != "1000" {
		t.Errorf("unexpected parsed data: %+v", data)
	}
}

func TestParseUserMessageData_Malformed(t *testing.T) {
	if _, ok := parseUserMessageData(json.RawMessage(`not json`)); ok {
		t.Fatal("expected parse to fail for malformed data")
	}
}

func TestBuildUserInfo_NewUser(t *testing.T) {
	user := &model.User{Stats: model.UserStats{}}
	info := buildUserInfo(user, nil)
	if info.HasInteractedBefore {
		t.Error("expected HasInteractedBefore=false for a user with no prior sessions")
	}
}

func TestBuildUserInfo_ReturningUser(t *testing.T) {
	lastActive := time.Now().Add(-24 * time.Hour)
	user := &model.User{Stats: model.UserStats{TotalSessions: 3, TotalMeals: 5, LastActive: &lastActive}}
	mealDate := time.Now().Add(-time.Hour)
	sessions := []*model.Session{
		{StartTime: time.Now(), Context: model.SessionContext{LastMealType: "breakfast", LastMealDate: &mealDate, Engagement: 8}},
		{StartTime: time.Now().Add(-48 * time.Hour), Context: model.SessionContext{Engagement: 4}},
	}

	info := buildUserInfo(user, sessions)
	if !info.HasInteractedBefore {
		t.Error("expected HasInteractedBefore=true")
	}
	if info.LastMealType != "breakfast" {
		t.Errorf("LastMealType = %q, want breakfast", info.LastMealType)
	}
	if info.AverageEngagement != 6 {
		t.Errorf("AverageEngagement = %v, want 6", info.AverageEngagement)
	}
	if info.UserStats.TotalMeals != 5 {
		t.Errorf("UserStats.TotalMeals = %d, want 5", info.UserStats.TotalMeals)
	}
}

func TestTaskExecutor_RunsAndCancelsCleanly(t *testing.T) {
	e := newTaskExecutor(context.Background())
	done := make(chan struct{})
	e.Go(func(ctx context.Context) {
		close(done)
	})
	<-done
	e.Cancel()
}

func TestTaskExecutor_RecoversFromPanic(t *testing.T) {
	e := newTaskExecutor(context.Background())
	ran := make(chan struct{})
	e.Go(func(ctx context.Context) {
		defer close(ran)
		panic("boom")
	})
	<-ran
	e.Cancel()
}
