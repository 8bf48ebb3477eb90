package store

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/ghiac/voicecoach/model"
	"go.mongodb.org/mongo-driver/bson"
)

// newTestStore connects to a live MongoDB instance for integration testing.
// Set MONGODB_URI to override the default local connection string; the test
// is skipped entirely when no instance is reachable.
func newTestStore(t *testing.T) *MongoDBStore {
	t.Helper()
	uri := os.Getenv("MONGODB_URI")
	if uri == "" {
		uri = "mongodb://localhost:27017"
	}
	s, err := NewMongoDBStore(MongoDBStoreConfig{URI: uri, Database: "voicecoach_test"})
	if err != nil {
		t.Skipf("skipping: MongoDB not available: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.Close(ctx)
	})
	return s
}

func TestMongoDBStore_UserFindOrCreateIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	email := "voicecoach-test-user@example.com"

	first, err := s.FindOrCreateUserByEmail(ctx, email)
	if err != nil {
		t.Fatalf("FindOrCreateUserByEmail: %v", err)
	}
	second, err := s.FindOrCreateUserByEmail(ctx, email)
	if err != nil {
		t.Fatalf("FindOrCreateUserByEmail (second call): %v", err)
	}
	if first.ID != second.ID {
		t.Errorf("expected the same user record on repeat calls, got %v and %v", first.ID, second.ID)
	}
	if first.FirstName != "Voicecoach" {
		t.Errorf("unexpected derived FirstName: %q", first.FirstName)
	}
}

func TestMongoDBStore_SessionFindOrCreateRace(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	sessionID := "race-session-1"

	const n = 10
	results := make(chan *model.Session, n)
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		go func() {
			sess, err := s.FindOrCreateSession(ctx, sessionID, "user1", "user1@example.com")
			results <- sess
			errs <- err
		}()
	}

	var first *model.Session
	for i := 0; i < n; i++ {
		if err := <-errs; err != nil {
			t.Fatalf("FindOrCreateSession: %v", err)
		}
		sess := <-results
		if first == nil {
			first = sess
		} else if sess.SessionID != first.SessionID || sess.UserID != first.UserID {
			t.Errorf("expected every concurrent caller to see the same winning session record")
		}
	}
}

func TestMongoDBStore_AppendMessageCreatesConversationOnce(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	sessionID := "conv-session-1"

	createdFirst, err := s.AppendMessage(ctx, sessionID, model.NewUserMessage("hello"))
	if err != nil {
		t.Fatalf("AppendMessage: %v", err)
	}
	if !createdFirst {
		t.Error("expected the first AppendMessage call to report a new conversation")
	}

	createdSecond, err := s.AppendMessage(ctx, sessionID, model.NewAIMessage("hi there"))
	if err != nil {
		t.Fatalf("AppendMessage: %v", err)
	}
	if createdSecond {
		t.Error("expected the second AppendMessage call not to report a new conversation")
	}

	conv, err := s.GetConversation(ctx, sessionID)
	if err != nil {
		t.Fatalf("GetConversation: %v", err)
	}
	if len(conv.Messages) != 2 {
		t.Fatalf("expected 2 messages in the conversation, got %d", len(conv.Messages))
	}
}

func TestMongoDBStore_PutAgentSectionIntentRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	agent := model.Agent{AgentID: "test-agent", Name: "Test Agent"}
	if err := s.PutAgent(ctx, agent); err != nil {
		t.Fatalf("PutAgent: %v", err)
	}

	section := model.Section{SectionID: "main", Name: "Main", Order: 0}
	if err := s.PutSection(ctx, agent.AgentID, section); err != nil {
		t.Fatalf("PutSection: %v", err)
	}

	intent := model.Intent{IDWithinSection: 1000, Order: 0, Intent: "Ask what was eaten"}
	if err := s.PutIntent(ctx, agent.AgentID, section.SectionID, intent); err != nil {
		t.Fatalf("PutIntent: %v", err)
	}

	got, err := s.GetAgent(ctx, agent.AgentID)
	if err != nil || got == nil {
		t.Fatalf("GetAgent: %v, got=%v", err, got)
	}
	sections, err := s.ListSections(ctx, agent.AgentID)
	if err != nil || len(sections) != 1 {
		t.Fatalf("ListSections: %v, got %d", err, len(sections))
	}
	intents, err := s.ListIntents(ctx, agent.AgentID, section.SectionID)
	if err != nil || len(intents) != 1 || intents[0].IDWithinSection != 1000 {
		t.Fatalf("ListIntents: %v, got %+v", err, intents)
	}
}

func TestMongoDBStore_CreateOrAppendIntentResponseMerges(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	first := &model.IntentBuilderResponse{
		UserID: "user1", SessionID: "sess1", ConversationID: "sess1",
		SectionID: "main", IntentID: 1000,
		Fields: map[string]string{"mealType": "breakfast"},
	}
	if err := s.CreateOrAppendIntentResponse(ctx, first); err != nil {
		t.Fatalf("CreateOrAppendIntentResponse (insert): %v", err)
	}

	second := &model.IntentBuilderResponse{
		UserID: "user1", SessionID: "sess1", ConversationID: "sess1",
		SectionID: "main", IntentID: 1000,
		Fields: map[string]string{"foodsLogged": "oatmeal"}, IsCompleted: true,
	}
	if err := s.CreateOrAppendIntentResponse(ctx, second); err != nil {
		t.Fatalf("CreateOrAppendIntentResponse (merge): %v", err)
	}

	var merged model.IntentBuilderResponse
	filter := bson.M{"sessionId": "sess1", "conversationId": "sess1", "sectionId": "main", "intentId": 1000}
	if err := s.intentResp.FindOne(ctx, filter).Decode(&merged); err != nil {
		t.Fatalf("decode merged intent response: %v", err)
	}
	if merged.Fields["mealType"] != "breakfast" {
		t.Errorf("expected merged response to retain mealType, got %+v", merged.Fields)
	}
	if merged.Fields["foodsLogged"] != "oatmeal" {
		t.Errorf("expected merged response to carry foodsLogged, got %+v", merged.Fields)
	}
	if !merged.IsCompleted {
		t.Error("expected merged response to be marked completed")
	}
}

func TestMongoDBStore_CreateFoodEntry(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	entry, ok := model.NewFoodEntry("user1", "breakfast", model.NormalizeFoodsLogged([]string{"oatmeal"}), nil)
	if !ok {
		t.Fatal("expected NewFoodEntry to succeed")
	}
	if err := s.CreateFoodEntry(ctx, entry); err != nil {
		t.Fatalf("CreateFoodEntry: %v", err)
	}
}
