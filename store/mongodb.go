package store

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ghiac/voicecoach/log"
	"github.com/ghiac/voicecoach/model"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoDBStore is the MongoDB-backed Storage Gateway: pooled connection
// (pool sizing, retryable writes/reads, unique partial indexes,
// ping-verified connect).
type MongoDBStore struct {
	client   *mongo.Client
	database *mongo.Database

	users         *mongo.Collection
	sessions      *mongo.Collection
	conversations *mongo.Collection
	agents        *mongo.Collection
	sections      *mongo.Collection
	intents       *mongo.Collection
	intentResp    *mongo.Collection
	foodEntries   *mongo.Collection

	// keyLocks serializes IntentBuilderResponse merges per (sessionId,
	// conversationId, sectionId, intentId) so createOrAppend's
	// read-modify-write is atomic within this process without requiring a
	// Mongo transaction; getOrCreateLock below hands out the per-key mutexes.
	keyLocks  map[string]*sync.Mutex
	keyLockMu sync.Mutex
}

// MongoDBStoreConfig configures the connection.
type MongoDBStoreConfig struct {
	URI      string
	Database string
}

// DefaultMongoDBStoreConfig returns sane defaults for local development.
func DefaultMongoDBStoreConfig() MongoDBStoreConfig {
	return MongoDBStoreConfig{URI: "mongodb://localhost:27017", Database: "voicecoach"}
}

// NewMongoDBStore connects, pings, and ensures indexes.
func NewMongoDBStore(cfg MongoDBStoreConfig) (*MongoDBStore, error) {
	if cfg.URI == "" {
		cfg.URI = "mongodb://localhost:27017"
	}
	if cfg.Database == "" {
		cfg.Database = "voicecoach"
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	clientOptions := options.Client().
		ApplyURI(cfg.URI).
		SetMaxPoolSize(100).
		SetMinPoolSize(10).
		SetMaxConnIdleTime(30 * time.Minute).
		SetRetryWrites(true).
		SetRetryReads(true).
		SetServerSelectionTimeout(5 * time.Second)

	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongodb: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("failed to ping mongodb: %w", err)
	}

	db := client.Database(cfg.Database)
	s := &MongoDBStore{
		client:        client,
		database:      db,
		users:         db.Collection("users"),
		sessions:      db.Collection("sessions"),
		conversations: db.Collection("conversations"),
		agents:        db.Collection("agents"),
		sections:      db.Collection("sections"),
		intents:       db.Collection("intents"),
		intentResp:    db.Collection("intent_responses"),
		foodEntries:   db.Collection("foodEntries"),
		keyLocks:      make(map[string]*sync.Mutex),
	}

	if err := s.initIndexes(ctx); err != nil {
		client.Disconnect(ctx)
		return nil, fmt.Errorf("failed to create indexes: %w", err)
	}

	log.Log.Infof("[Store] ✅ Connected to MongoDB | Database: %s", cfg.Database)
	return s, nil
}

// initIndexes creates the uniqueness/compound indexes the Storage Gateway relies on.
func (s *MongoDBStore) initIndexes(ctx context.Context) error {
	if _, err := s.users.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "email", Value: 1}},
		Options: options.Index().SetUnique(true),
	}); err != nil {
		return fmt.Errorf("users.email index: %w", err)
	}

	if _, err := s.sessions.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "sessionId", Value: 1}},
		Options: options.Index().SetUnique(true),
	}); err != nil {
		return fmt.Errorf("sessions.sessionId index: %w", err)
	}
	if _, err := s.sessions.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "userId", Value: 1}, {Key: "startTime", Value: -1}},
	}); err != nil {
		return fmt.Errorf("sessions.userId_startTime index: %w", err)
	}

	if _, err := s.conversations.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "sessionId", Value: 1}},
		Options: options.Index().SetUnique(true),
	}); err != nil {
		return fmt.Errorf("conversations.sessionId index: %w", err)
	}

	if _, err := s.intents.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "sectionId", Value: 1}, {Key: "idWithinSection", Value: 1}},
		Options: options.Index().SetUnique(true).SetPartialFilterExpression(bson.M{
			"sectionId": bson.M{"$exists": true},
		}),
	}); err != nil {
		return fmt.Errorf("intents.sectionId_idWithinSection index: %w", err)
	}

	if _, err := s.intentResp.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{
			{Key: "sessionId", Value: 1},
			{Key: "conversationId", Value: 1},
			{Key: "sectionId", Value: 1},
			{Key: "intentId", Value: 1},
		},
		Options: options.Index().SetUnique(true),
	}); err != nil {
		return fmt.Errorf("intent_responses composite index: %w", err)
	}

	if _, err := s.foodEntries.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "userId", Value: 1}, {Key: "date", Value: -1}},
	}); err != nil {
		return fmt.Errorf("foodEntries.userId_date index: %w", err)
	}

	return nil
}

// Close disconnects the underlying client.
func (s *MongoDBStore) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

// --------------------------------------------------------------------------
// Users
// --------------------------------------------------------------------------

// GetUser looks up a user by lowercased email; returns (nil, nil) if absent.
func (s *MongoDBStore) GetUser(ctx context.Context, email string) (*model.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	var user model.User
	err := s.users.FindOne(ctx, bson.M{"email": email}).Decode(&user)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return &user, nil
}

// FindOrCreateUserByEmail implements findOrCreateByEmail semantics: create
// on first contact, and on a races-induced duplicate key, read back the
// winner instead of failing.
func (s *MongoDBStore) FindOrCreateUserByEmail(ctx context.Context, email string) (*model.User, error) {
	existing, err := s.GetUser(ctx, email)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	user := model.NewUser(email)
	_, err = s.users.InsertOne(ctx, user)
	if err == nil {
		return user, nil
	}
	if mongo.IsDuplicateKeyError(err) {
		return s.GetUser(ctx, email)
	}
	return nil, fmt.Errorf("create user: %w", err)
}

// PutUser upserts a full user record by email.
func (s *MongoDBStore) PutUser(ctx context.Context, user *model.User) error {
	user.UpdatedAt = time.Now()
	_, err := s.users.ReplaceOne(ctx, bson.M{"email": user.Email}, user, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("put user: %w", err)
	}
	return nil
}

// --------------------------------------------------------------------------
// Sessions
// --------------------------------------------------------------------------

// GetSession looks up a Session by sessionId; returns (nil, nil) if absent.
func (s *MongoDBStore) GetSession(ctx context.Context, sessionID string) (*model.Session, error) {
	var session model.Session
	err := s.sessions.FindOne(ctx, bson.M{"sessionId": sessionID}).Decode(&session)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	return &session, nil
}

// FindOrCreateSession implements Session.findOrCreate, including its
// concurrent-creation race contract: one caller wins the insert, the other
// catches the duplicate key on sessionId and reads the winner's record back.
// Never raises on the duplicate case.
func (s *MongoDBStore) FindOrCreateSession(ctx context.Context, sessionID, userID, email string) (*model.Session, error) {
	existing, err := s.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	session := model.NewSession(sessionID, userID, email)
	_, err = s.sessions.InsertOne(ctx, session)
	if err == nil {
		return session, nil
	}
	if mongo.IsDuplicateKeyError(err) {
		return s.GetSession(ctx, sessionID)
	}
	return nil, fmt.Errorf("create session: %w", err)
}

// UpdateSessionStatus sets the Session.Status field (and EndTime when
// transitioning to a terminal status).
func (s *MongoDBStore) UpdateSessionStatus(ctx context.Context, sessionID string, status model.SessionStatus) error {
	update := bson.M{"status": status}
	if status == model.SessionCompleted || status == model.SessionAbandoned {
		update["endTime"] = time.Now()
	}
	_, err := s.sessions.UpdateOne(ctx, bson.M{"sessionId": sessionID}, bson.M{"$set": update})
	if err != nil {
		return fmt.Errorf("update session status: %w", err)
	}
	return nil
}

// UpdateSessionContext merges non-zero fields of ctxUpdate into the Session's
// context map.
func (s *MongoDBStore) UpdateSessionContext(ctx context.Context, sessionID string, ctxUpdate model.SessionContext) error {
	set := bson.M{}
	if ctxUpdate.LastMealType != "" {
		set["context.lastMealType"] = ctxUpdate.LastMealType
	}
	if ctxUpdate.LastMealDate != nil {
		set["context.lastMealDate"] = ctxUpdate.LastMealDate
	}
	if ctxUpdate.Engagement != 0 {
		set["context.engagement"] = ctxUpdate.Engagement
	}
	if ctxUpdate.Mood != "" {
		set["context.mood"] = ctxUpdate.Mood
	}
	if len(set) == 0 {
		return nil
	}
	_, err := s.sessions.UpdateOne(ctx, bson.M{"sessionId": sessionID}, bson.M{"$set": set})
	if err != nil {
		return fmt.Errorf("update session context: %w", err)
	}
	return nil
}

// ListSessionsByUser returns the most recent sessions for a user, newest
// first.
func (s *MongoDBStore) ListSessionsByUser(ctx context.Context, userID string, limit int) ([]*model.Session, error) {
	if limit <= 0 {
		limit = 20
	}
	cur, err := s.sessions.Find(ctx, bson.M{"userId": userID},
		options.Find().SetSort(bson.D{{Key: "startTime", Value: -1}}).SetLimit(int64(limit)))
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer cur.Close(ctx)

	var out []*model.Session
	if err := cur.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("decode sessions: %w", err)
	}
	return out, nil
}

// --------------------------------------------------------------------------
// Conversations
// --------------------------------------------------------------------------

// GetConversation looks up a Conversation by sessionId; returns (nil, nil) if
// absent.
func (s *MongoDBStore) GetConversation(ctx context.Context, sessionID string) (*model.Conversation, error) {
	var conv model.Conversation
	err := s.conversations.FindOne(ctx, bson.M{"sessionId": sessionID}).Decode(&conv)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get conversation: %w", err)
	}
	return &conv, nil
}

// AppendMessage implements Conversation.appendMessage: creates the
// document if absent, otherwise appends in insertion order. Returns whether
// a new Conversation document was created.
func (s *MongoDBStore) AppendMessage(ctx context.Context, sessionID string, msg model.Message) (bool, error) {
	res, err := s.conversations.UpdateOne(ctx,
		bson.M{"sessionId": sessionID},
		bson.M{
			"$push":        bson.M{"messages": msg},
			"$setOnInsert": bson.M{"summary.completionStatus": model.CompletionIncomplete},
		},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return false, fmt.Errorf("append message: %w", err)
	}
	return res.UpsertedCount > 0, nil
}

// UpdateConversationSummary overwrites the Conversation's summary
// sub-document.
func (s *MongoDBStore) UpdateConversationSummary(ctx context.Context, sessionID string, summary model.ConversationSummary) error {
	_, err := s.conversations.UpdateOne(ctx,
		bson.M{"sessionId": sessionID},
		bson.M{"$set": bson.M{"summary": summary}},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("update conversation summary: %w", err)
	}
	return nil
}

// --------------------------------------------------------------------------
// Agent Catalog sources
// --------------------------------------------------------------------------

// GetAgent loads the agent header; returns (nil, nil) if absent.
func (s *MongoDBStore) GetAgent(ctx context.Context, agentID string) (*model.Agent, error) {
	var agent model.Agent
	err := s.agents.FindOne(ctx, bson.M{"agentId": agentID}).Decode(&agent)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get agent: %w", err)
	}
	return &agent, nil
}

// ListSections returns all sections for an agent, sorted by order.
func (s *MongoDBStore) ListSections(ctx context.Context, agentID string) ([]model.Section, error) {
	cur, err := s.sections.Find(ctx, bson.M{"agentId": agentID},
		options.Find().SetSort(bson.D{{Key: "order", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("list sections: %w", err)
	}
	defer cur.Close(ctx)

	var out []model.Section
	if err := cur.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("decode sections: %w", err)
	}
	return out, nil
}

// ListIntents returns all intents for a section, sorted by (order,
// idWithinSection).
func (s *MongoDBStore) ListIntents(ctx context.Context, agentID, sectionID string) ([]model.Intent, error) {
	cur, err := s.intents.Find(ctx, bson.M{"agentId": agentID, "sectionId": sectionID},
		options.Find().SetSort(bson.D{{Key: "order", Value: 1}, {Key: "idWithinSection", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("list intents: %w", err)
	}
	defer cur.Close(ctx)

	var out []model.Intent
	if err := cur.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("decode intents: %w", err)
	}
	return out, nil
}

// PutAgent upserts an agent header, used by the catalog seed loader to
// bootstrap a deployment from a static definition file.
func (s *MongoDBStore) PutAgent(ctx context.Context, agent model.Agent) error {
	_, err := s.agents.ReplaceOne(ctx, bson.M{"agentId": agent.AgentID}, agent, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("put agent: %w", err)
	}
	return nil
}

// PutSection upserts a section under an agent.
func (s *MongoDBStore) PutSection(ctx context.Context, agentID string, section model.Section) error {
	section.AgentID = agentID
	_, err := s.sections.ReplaceOne(ctx,
		bson.M{"agentId": agentID, "sectionId": section.SectionID},
		section, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("put section: %w", err)
	}
	return nil
}

// PutIntent upserts an intent under an agent/section.
func (s *MongoDBStore) PutIntent(ctx context.Context, agentID, sectionID string, intent model.Intent) error {
	_, err := s.intents.ReplaceOne(ctx,
		bson.M{"agentId": agentID, "sectionId": sectionID, "idWithinSection": intent.IDWithinSection},
		bson.M{
			"agentId":         agentID,
			"sectionId":       sectionID,
			"idWithinSection": intent.IDWithinSection,
			"order":           intent.Order,
			"intent":          intent.Intent,
			"isMandatory":     intent.IsMandatory,
			"retryLimit":      intent.RetryLimit,
			"fieldsToExtract": intent.FieldsToExtract,
			"context":         intent.Context,
		},
		options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("put intent: %w", err)
	}
	return nil
}

// --------------------------------------------------------------------------
// Intent responses
// --------------------------------------------------------------------------

func intentRespKey(sessionID, conversationID, sectionID string, intentID int) string {
	return fmt.Sprintf("%s|%s|%s|%d", sessionID, conversationID, sectionID, intentID)
}

// getOrCreateLock returns the mutex guarding a given composite key,
// creating it under keyLockMu on first use.
func (s *MongoDBStore) getOrCreateLock(key string) *sync.Mutex {
	s.keyLockMu.Lock()
	defer s.keyLockMu.Unlock()
	if lock, ok := s.keyLocks[key]; ok {
		return lock
	}
	lock := &sync.Mutex{}
	s.keyLocks[key] = lock
	return lock
}

// CreateOrAppendIntentResponse implements
// IntentBuilderResponse.createOrAppend: idempotent per (sessionId,
// conversationId, sectionId, intentId), merging fields last-write-wins and
// advancing isCompleted monotonically.
func (s *MongoDBStore) CreateOrAppendIntentResponse(ctx context.Context, resp *model.IntentBuilderResponse) error {
	key := intentRespKey(resp.SessionID, resp.ConversationID, resp.SectionID, resp.IntentID)
	lock := s.getOrCreateLock(key)
	lock.Lock()
	defer lock.Unlock()

	filter := bson.M{
		"sessionId":      resp.SessionID,
		"conversationId": resp.ConversationID,
		"sectionId":      resp.SectionID,
		"intentId":       resp.IntentID,
	}

	var existing model.IntentBuilderResponse
	err := s.intentResp.FindOne(ctx, filter).Decode(&existing)
	switch err {
	case nil:
		existing.MergeFrom(resp.LatestTranscript, resp.IntentPrompt, resp.Fields, resp.IsCompleted)
		_, err := s.intentResp.ReplaceOne(ctx, filter, existing)
		if err != nil {
			return fmt.Errorf("update intent response: %w", err)
		}
		return nil
	case mongo.ErrNoDocuments:
		now := time.Now()
		resp.CreatedAt, resp.UpdatedAt = now, now
		if resp.Fields == nil {
			resp.Fields = make(map[string]string)
		}
		_, insertErr := s.intentResp.InsertOne(ctx, resp)
		if insertErr == nil {
			return nil
		}
		if mongo.IsDuplicateKeyError(insertErr) {
			// Lost a race with a concurrent writer for this exact key;
			// fold our update into theirs.
			var winner model.IntentBuilderResponse
			if findErr := s.intentResp.FindOne(ctx, filter).Decode(&winner); findErr != nil {
				return fmt.Errorf("read back intent response after race: %w", findErr)
			}
			winner.MergeFrom(resp.LatestTranscript, resp.IntentPrompt, resp.Fields, resp.IsCompleted)
			if _, err := s.intentResp.ReplaceOne(ctx, filter, winner); err != nil {
				return fmt.Errorf("merge intent response after race: %w", err)
			}
			return nil
		}
		return fmt.Errorf("create intent response: %w", insertErr)
	default:
		return fmt.Errorf("find intent response: %w", err)
	}
}

// --------------------------------------------------------------------------
// Food entries
// --------------------------------------------------------------------------

// CreateFoodEntry inserts a FoodEntry row. Validation (meal type, non-empty
// foods) happens in model.NewFoodEntry before this is ever called.
func (s *MongoDBStore) CreateFoodEntry(ctx context.Context, entry *model.FoodEntry) error {
	_, err := s.foodEntries.InsertOne(ctx, entry)
	if err != nil {
		return fmt.Errorf("create food entry: %w", err)
	}
	return nil
}
