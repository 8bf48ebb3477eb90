package model

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Context key for user ID, threaded through outbound adapter calls the same
// way the source tags requests for observability.
type userIDKey struct{}

// WithUserID adds user_id to context.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey{}, userID)
}

// GetUserIDFromContext retrieves user_id from context.
func GetUserIDFromContext(ctx context.Context) (string, bool) {
	userID, ok := ctx.Value(userIDKey{}).(string)
	return userID, ok
}

// Context key for the live WebSocket session ID, threaded the same way so
// outbound LLM/TTS/realtime calls can be correlated back to a connection.
type sessionIDKey struct{}

// WithSessionID adds the sessionId to context.
func WithSessionID(ctx context.Context, sessionID string) context.Context {
	return context.WithValue(ctx, sessionIDKey{}, sessionID)
}

// GetSessionIDFromContext retrieves the sessionId from context.
func GetSessionIDFromContext(ctx context.Context) (string, bool) {
	sessionID, ok := ctx.Value(sessionIDKey{}).(string)
	return sessionID, ok
}

// SessionStatus is the persisted lifecycle status of a Session.
type SessionStatus string

const (
	SessionActive    SessionStatus = "active"
	SessionCompleted SessionStatus = "completed"
	SessionAbandoned SessionStatus = "abandoned"
)

// SessionContext is the opaque-ish bag of derived signals the orchestrator
// maintains about a session's conversational state.
type SessionContext struct {
	LastMealType string         `bson:"lastMealType,omitempty" json:"lastMealType,omitempty"`
	LastMealDate *time.Time     `bson:"lastMealDate,omitempty" json:"lastMealDate,omitempty"`
	Engagement   int            `bson:"engagement" json:"engagement"` // 0-10
	Mood         Mood           `bson:"mood,omitempty" json:"mood,omitempty"`
	Completion   map[string]any `bson:"completion,omitempty" json:"completion,omitempty"`
}

// Session is unique by SessionID (client-supplied).
type Session struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"-"`
	SessionID string             `bson:"sessionId" json:"sessionId"`
	UserID    string             `bson:"userId" json:"userId"`
	UserEmail string             `bson:"userEmail" json:"userEmail"`
	StartTime time.Time          `bson:"startTime" json:"startTime"`
	EndTime   *time.Time         `bson:"endTime,omitempty" json:"endTime,omitempty"`
	Status    SessionStatus      `bson:"status" json:"status"`
	Context   SessionContext     `bson:"context" json:"context"`
}

// NewSession builds a fresh, active Session record.
func NewSession(sessionID, userID, email string) *Session {
	return &Session{
		SessionID: sessionID,
		UserID:    userID,
		UserEmail: email,
		StartTime: time.Now(),
		Status:    SessionActive,
		Context:   SessionContext{},
	}
}

// Cursor is the per-session record of fields extracted so far. Per the
// client-drives-cursor, server-validates-and-persists split, the client owns
// section/intent advancement; the server only accumulates and validates the
// fields the client reports completed against it.
type Cursor struct {
	CompletedFields map[string]string
}

// NewCursor returns an empty Cursor ready to accumulate fields.
func NewCursor() *Cursor {
	return &Cursor{CompletedFields: make(map[string]string)}
}

// MergeFields merges newly extracted fields into CompletedFields,
// last-write-wins per field name (mirrors IntentBuilderResponse semantics).
func (c *Cursor) MergeFields(fields map[string]string) {
	if c.CompletedFields == nil {
		c.CompletedFields = make(map[string]string)
	}
	for k, v := range fields {
		if v != "" {
			c.CompletedFields[k] = v
		}
	}
}
