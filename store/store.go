// Package store is the Storage Gateway: typed persistence of users,
// sessions, conversations, agents with their sections and intents, intent
// responses, and food entries (compiled agents are assembled by the catalog
// package and are not stored), with the per-collection uniqueness/index discipline
// documented on MongoDBStore.
package store

import (
	"context"

	"github.com/ghiac/voicecoach/model"
)

// Storage is the port the rest of the system depends on; MongoDBStore is the
// only implementation, but handlers and tests are written against this
// interface so a fake can stand in during unit tests.
type Storage interface {
	// Users
	FindOrCreateUserByEmail(ctx context.Context, email string) (*model.User, error)
	GetUser(ctx context.Context, email string) (*model.User, error)
	PutUser(ctx context.Context, user *model.User) error

	// Sessions
	FindOrCreateSession(ctx context.Context, sessionID, userID, email string) (*model.Session, error)
	GetSession(ctx context.Context, sessionID string) (*model.Session, error)
	UpdateSessionStatus(ctx context.Context, sessionID string, status model.SessionStatus) error
	UpdateSessionContext(ctx context.Context, sessionID string, ctxUpdate model.SessionContext) error
	ListSessionsByUser(ctx context.Context, userID string, limit int) ([]*model.Session, error)

	// Conversations
	AppendMessage(ctx context.Context, sessionID string, msg model.Message) (bool, error)
	GetConversation(ctx context.Context, sessionID string) (*model.Conversation, error)
	UpdateConversationSummary(ctx context.Context, sessionID string, summary model.ConversationSummary) error

	// Agent Catalog sources
	GetAgent(ctx context.Context, agentID string) (*model.Agent, error)
	ListSections(ctx context.Context, agentID string) ([]model.Section, error)
	ListIntents(ctx context.Context, agentID, sectionID string) ([]model.Intent, error)
	PutAgent(ctx context.Context, agent model.Agent) error
	PutSection(ctx context.Context, agentID string, section model.Section) error
	PutIntent(ctx context.Context, agentID, sectionID string, intent model.Intent) error

	// Intent responses
	CreateOrAppendIntentResponse(ctx context.Context, resp *model.IntentBuilderResponse) error

	// Food entries
	CreateFoodEntry(ctx context.Context, entry *model.FoodEntry) error

	Close(ctx context.Context) error
}
