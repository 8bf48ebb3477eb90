package catalog

import (
	"context"
	"testing"

	"github.com/ghiac/voicecoach/model"
)

// fakeStorage is a minimal in-memory store.Storage covering only what the
// Catalog needs: GetAgent, ListSections, ListIntents.
type fakeStorage struct {
	agent    *model.Agent
	sections []model.Section
	intents  map[string][]model.Intent // keyed by sectionId
	calls    int
}

func (f *fakeStorage) FindOrCreateUserByEmail(ctx context.Context, email string) (*model.User, error) {
	panic("not used by Catalog")
}
func (f *fakeStorage) GetUser(ctx context.Context, email string) (*model.User, error) {
	panic("not used by Catalog")
}
func (f *fakeStorage) PutUser(ctx context.Context, user *model.User) error {
	panic("not used by Catalog")
}
func (f *fakeStorage) FindOrCreateSession(ctx context.Context, sessionID, userID, email string) (*model.Session, error) {
	panic("not used by Catalog")
}
func (f *fakeStorage) GetSession(ctx context.Context, sessionID string) (*model.Session, error) {
	panic("not used by Catalog")
}
func (f *fakeStorage) UpdateSessionStatus(ctx context.Context, sessionID string, status model.SessionStatus) error {
	panic("not used by Catalog")
}
func (f *fakeStorage) UpdateSessionContext(ctx context.Context, sessionID string, ctxUpdate model.SessionContext) error {
	panic("not used by Catalog")
}
func (f *fakeStorage) ListSessionsByUser(ctx context.Context, userID string, limit int) ([]*model.Session, error) {
	panic("not used by Catalog")
}
func (f *fakeStorage) AppendMessage(ctx context.Context, sessionID string, msg model.Message) (bool, error) {
	panic("not used by Catalog")
}
func (f *fakeStorage) GetConversation(ctx context.Context, sessionID string) (*model.Conversation, error) {
	panic("not used by Catalog")
}
func (f *fakeStorage) UpdateConversationSummary(ctx context.Context, sessionID string, summary model.ConversationSummary) error {
	panic("not used by Catalog")
}

func (f *fakeStorage) GetAgent(ctx context.Context, agentID string) (*model.Agent, error) {
	f.calls++
	if f.agent == nil || f.agent.AgentID != agentID {
		return nil, nil
	}
	return f.agent, nil
}
func (f *fakeStorage) ListSections(ctx context.Context, agentID string) ([]model.Section, error) {
	return f.sections, nil
}
func (f *fakeStorage) ListIntents(ctx context.Context, agentID, sectionID string) ([]model.Intent, error) {
	return f.intents[sectionID], nil
}
func (f *fakeStorage) PutAgent(ctx context.Context, agent model.Agent) error {
	f.agent = &agent
	return nil
}
func (f *fakeStorage) PutSection(ctx context.Context, agentID string, section model.Section) error {
	section.AgentID = agentID
	f.sections = append(f.sections, section)
	return nil
}
func (f *fakeStorage) PutIntent(ctx context.Context, agentID, sectionID string, intent model.Intent) error {
	if f.intents == nil {
		f.intents = make(map[string][]model.Intent)
	}
	f.intents[sectionID] = append(f.intents[sectionID], intent)
	return nil
}

func (f *fakeStorage) CreateOrAppendIntentResponse(ctx context.Context, resp *model.IntentBuilderResponse) error {
	panic("not used by Catalog")
}
func (f *fakeStorage) CreateFoodEntry(ctx context.Context, entry *model.FoodEntry) error {
	panic("not used by Catalog")
}
func (f *fakeStorage) Close(ctx context.Context) error { return nil }

func TestGetCompiledAgent_NotFound(t *testing.T) {
	storage := &fakeStorage{}
	c := New(storage)

	compiled, err := c.GetCompiledAgent(context.Background(), "missing")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if compiled != nil {
		t.Fatalf("expected nil for a missing agent, got %+v", compiled)
	}
}

func TestGetCompiledAgent_SplitsIntroductionAndSortsBySectionOrder(t *testing.T) {
	storage := &fakeStorage{
		agent: &model.Agent{AgentID: "coach", Name: "Coach"},
		sections: []model.Section{
			{SectionID: "main", AgentID: "coach", Order: 1, About: "Main section"},
			{SectionID: "intro", AgentID: "coach", Order: 0, About: "Intro section"},
		},
		intents: map[string][]model.Intent{
			"intro": {{IDWithinSection: 1, Order: 0, Intent: "Introduction to the agent"}},
			"main":  {{IDWithinSection: 1001, Order: 1, Intent: "Ask meal type"}, {IDWithinSection: 1000, Order: 0, Intent: "Ask what was eaten"}},
		},
	}
	c := New(storage)

	compiled, err := c.GetCompiledAgent(context.Background(), "coach")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if compiled == nil {
		t.Fatal("expected a compiled agent")
	}
	if len(compiled.Sections) != 2 || compiled.Sections[0].SectionID != "intro" {
		t.Fatalf("expected sections sorted by order (intro first), got %+v", compiled.Sections)
	}

	introSection := compiled.Sections[0]
	if len(introSection.Introduction) != 1 || len(introSection.Intents) != 0 {
		t.Errorf("expected the low-id intent to be split into Introduction, got %+v", introSection)
	}

	mainSection := compiled.Sections[1]
	if len(mainSection.Intents) != 2 || mainSection.Intents[0].IDWithinSection != 1000 {
		t.Errorf("expected main section intents sorted by order, got %+v", mainSection.Intents)
	}
	if mainSection.Intents[0].Context != "Main section" {
		t.Errorf("expected section About to fall back as Context, got %q", mainSection.Intents[0].Context)
	}
}

func TestGetCompiledAgent_UsesCache(t *testing.T) {
	storage := &fakeStorage{agent: &model.Agent{AgentID: "coach", Name: "Coach"}}
	c := New(storage)

	if _, err := c.GetCompiledAgent(context.Background(), "coach"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := c.GetCompiledAgent(context.Background(), "coach"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if storage.calls != 1 {
		t.Errorf("expected a single storage call thanks to caching, got %d", storage.calls)
	}
}

func TestInvalidateCache(t *testing.T) {
	storage := &fakeStorage{agent: &model.Agent{AgentID: "coach", Name: "Coach"}}
	c := New(storage)

	c.GetCompiledAgent(context.Background(), "coach")
	c.InvalidateCache("coach")
	c.GetCompiledAgent(context.Background(), "coach")

	if storage.calls != 2 {
		t.Errorf("expected InvalidateCache to force a re-fetch, got %d calls", storage.calls)
	}
}

func TestApplySeed(t *testing.T) {
	storage := &fakeStorage{}
	doc := &SeedDocument{
		Agent: SeedAgent{AgentID: "coach", Name: "Coach"},
		Sections: []SeedSection{
			{SectionID: "main", Name: "Main", Order: 0, Intents: []SeedIntent{
				{ID: 1000, Order: 0, Intent: "Ask what was eaten"},
			}},
		},
	}

	if err := ApplySeed(context.Background(), storage, doc); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if storage.agent == nil || storage.agent.AgentID != "coach" {
		t.Fatalf("expected agent to be upserted, got %+v", storage.agent)
	}
	if len(storage.sections) != 1 || storage.sections[0].SectionID != "main" {
		t.Fatalf("expected section to be upserted, got %+v", storage.sections)
	}
	if len(storage.intents["main"]) != 1 {
		t.Fatalf("expected intent to be upserted under section main, got %+v", storage.intents)
	}
}
