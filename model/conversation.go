package model

import (
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// CompletionStatus is the Conversation.Summary lifecycle field.
type CompletionStatus string

const (
	CompletionIncomplete CompletionStatus = "incomplete"
	CompletionComplete   CompletionStatus = "complete"
	CompletionAbandoned  CompletionStatus = "abandoned"
)

// ConversationSummary is the derived meal-logging sub-document carried on a
// Conversation. completionStatus="complete" implies isCompleteMeal=true
// (enforced by SetComplete, never by direct field assignment).
type ConversationSummary struct {
	MealType         string           `bson:"mealType,omitempty" json:"mealType,omitempty"`
	FoodsLogged      []string         `bson:"foodsLogged,omitempty" json:"foodsLogged,omitempty"`
	TotalCalories    *float64         `bson:"totalCalories,omitempty" json:"totalCalories,omitempty"`
	CompletionStatus CompletionStatus `bson:"completionStatus" json:"completionStatus"`
	IsCompleteMeal   bool             `bson:"isCompleteMeal" json:"isCompleteMeal"`
}

// SetComplete marks the summary complete and upholds the
// completionStatus->isCompleteMeal invariant in one place.
func (s *ConversationSummary) SetComplete(mealType string, foods []string, totalCalories *float64) {
	s.MealType = mealType
	s.FoodsLogged = foods
	s.TotalCalories = totalCalories
	s.CompletionStatus = CompletionComplete
	s.IsCompleteMeal = true
}

// Conversation is 1:1 with Session via SessionID; an ordered, append-only
// message log plus a derived Summary.
type Conversation struct {
	ID        primitive.ObjectID  `bson:"_id,omitempty" json:"-"`
	SessionID string              `bson:"sessionId" json:"sessionId"`
	Messages  []Message           `bson:"messages" json:"messages"`
	Summary   ConversationSummary `bson:"summary" json:"summary"`
}

// NewConversation builds an empty Conversation for a session, with an
// incomplete summary.
func NewConversation(sessionID string) *Conversation {
	return &Conversation{
		SessionID: sessionID,
		Messages:  []Message{},
		Summary:   ConversationSummary{CompletionStatus: CompletionIncomplete},
	}
}
