package model

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// IntentBuilderResponse is the append log of per-intent extracted fields
// keyed by (userId, sessionId, conversationId, sectionId, intentId).
// conversationId is the keying field since Conversation is 1:1 with Session;
// agentId is retained as a reference-only column, not part of the key.
type IntentBuilderResponse struct {
	ID             primitive.ObjectID `bson:"_id,omitempty" json:"-"`
	UserID         string             `bson:"userId" json:"userId"`
	SessionID      string             `bson:"sessionId" json:"sessionId"`
	ConversationID string             `bson:"conversationId" json:"conversationId"`
	AgentID        string             `bson:"agentId,omitempty" json:"agentId,omitempty"`
	SectionID      string             `bson:"sectionId" json:"sectionId"`
	IntentID       int                `bson:"intentId" json:"intentId"`

	LatestTranscript string            `bson:"latestTranscript" json:"latestTranscript"`
	IntentPrompt     string            `bson:"intentPrompt" json:"intentPrompt"`
	Fields           map[string]string `bson:"fields" json:"fields"`
	IsCompleted      bool              `bson:"isCompleted" json:"isCompleted"`

	CreatedAt time.Time `bson:"createdAt" json:"createdAt"`
	UpdatedAt time.Time `bson:"updatedAt" json:"updatedAt"`
}

// MergeFrom applies a new extraction onto an existing record per the
// createOrAppend contract: fields merge last-write-wins per name (but a
// blank incoming value never overwrites a previously-set one), and
// isCompleted only ever flips false->true, never back.
func (r *IntentBuilderResponse) MergeFrom(transcript, intentPrompt string, fields map[string]string, isCompleted bool) {
	if r.Fields == nil {
		r.Fields = make(map[string]string)
	}
	for k, v := range fields {
		if v != "" {
			r.Fields[k] = v
		}
	}
	if transcript != "" {
		r.LatestTranscript = transcript
	}
	if intentPrompt != "" {
		r.IntentPrompt = intentPrompt
	}
	if isCompleted {
		r.IsCompleted = true
	}
	r.UpdatedAt = time.Now()
}
