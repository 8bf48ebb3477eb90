package orchestrator

import (
	"encoding/json"
	"time"

	"github.com/ghiac/voicecoach/model"
)

// Frame is the wire envelope for every message in both directions.
type Frame struct {
	Type      string          `json:"type"`
	SessionID string          `json:"sessionId,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp int64           `json:"timestamp,omitempty"`
}

// Client -> server frame types.
const (
	TypeRealtimeSessionRequest  = "realtime_session_request"
	TypeClientReadyRequest      = "client_ready_request"
	TypeUserMessage             = "user_message"
	TypeTTSRequest               = "tts_request"
	TypeConversationSummaryReq  = "conversation_summary_request"
	TypeConversationCompleted   = "conversation_completed"
	TypeTest                    = "test"
)

// Server -> client frame types.
const (
	TypeRealtimeSessionResponse = "realtime_session_response"
	TypeClientReadyResponse     = "client_ready_response"
	TypeAIResponse              = "ai_response"
	TypeTTSResponse             = "tts_response"
	TypeConversationSummaryResp = "conversation_summary_response"
	TypeStatus                  = "status"
	TypeError                   = "error"
)

// realtimeSessionRequestData is the payload of a realtime_session_request.
type realtimeSessionRequestData struct {
	UserEmail string `json:"userEmail"`
}

// clientReadyRequestData is the payload of a client_ready_request.
type clientReadyRequestData struct {
	AgentID   string `json:"agentId"`
	UserEmail string `json:"userEmail,omitempty"`
}

// userMessageData is the structured form of a user_message payload; the
// client may also send a bare JSON string, handled separately.
type userMessageData struct {
	Prompt          string            `json:"prompt"`
	UserTranscript  string            `json:"userTranscript,omitempty"`
	ConversationID  string            `json:"conversationId,omitempty"`
	AgentID         string            `json:"agentId,omitempty"`
	SectionID       string            `json:"sectionId,omitempty"`
	IntentID        json.Number       `json:"intentId,omitempty"`
	IntentPrompt    string            `json:"intentPrompt,omitempty"`
	SttConfidence   *float64          `json:"sttConfidence,omitempty"`
	SttAlternatives []string          `json:"sttAlternatives,omitempty"`
}

// ttsRequestData is the payload of a standalone tts_request.
type ttsRequestData struct {
	Text string `json:"text"`
	Data string `json:"data"`
}

func (d ttsRequestData) text() string {
	if d.Text != "" {
		return d.Text
	}
	return d.Data
}

// conversationTurn is one entry of a conversation_summary_request's history.
type conversationTurn struct {
	Speaker string `json:"speaker"`
	Text    string `json:"text"`
}

// conversationSummaryRequestData is the payload of a
// conversation_summary_request.
type conversationSummaryRequestData struct {
	ConversationHistory []conversationTurn `json:"conversationHistory"`
	AgentID             string             `json:"agentId,omitempty"`
}

// conversationCompletedData is the payload of a conversation_completed frame.
type conversationCompletedData struct {
	CompletedFields     map[string]string  `json:"completedFields"`
	ConversationHistory []conversationTurn `json:"conversationHistory"`
	AgentID             string             `json:"agentId"`
}

// intentResponseWire is the ai_response.data.intentResponse shape.
type intentResponseWire struct {
	ID          string            `json:"id"`
	IsCompleted bool              `json:"isCompleted"`
	Fields      map[string]string `json:"fields"`
	NextPrompt  string            `json:"nextPrompt"`
}

// UserInfo is the wire snapshot of a user's history returned alongside
// client_ready_response.
type UserInfo struct {
	HasInteractedBefore bool       `json:"hasInteractedBefore"`
	TotalConversations  int        `json:"totalConversations"`
	TotalSessions       int        `json:"totalSessions"`
	LastInteractionDate *time.Time `json:"lastInteractionDate,omitempty"`
	LastSessionDate     *time.Time `json:"lastSessionDate,omitempty"`
	AverageEngagement   float64    `json:"averageEngagement"`
	LastMealType        string     `json:"lastMealType,omitempty"`
	LastMealDate        *time.Time `json:"lastMealDate,omitempty"`
	UserStats           userStatsWire `json:"userStats"`
}

type userStatsWire struct {
	TotalMeals    int `json:"totalMeals"`
	TotalSessions int `json:"totalSessions"`
}

// buildUserInfo derives a UserInfo snapshot from a User row and that user's
// recent sessions. Engagement is averaged over the sessions
// returned by ListSessionsByUser (already bounded by the caller).
func buildUserInfo(user *model.User, sessions []*model.Session) UserInfo {
	info := UserInfo{
		HasInteractedBefore: user.Stats.TotalSessions > 0,
		TotalConversations:  user.Stats.TotalSessions,
		TotalSessions:       user.Stats.TotalSessions,
		LastInteractionDate: user.Stats.LastActive,
		UserStats: userStatsWire{
			TotalMeals:    user.Stats.TotalMeals,
			TotalSessions: user.Stats.TotalSessions,
		},
	}

	if len(sessions) == 0 {
		return info
	}

	mostRecent := sessions[0]
	info.LastSessionDate = &mostRecent.StartTime
	info.LastMealType = mostRecent.Context.LastMealType
	info.LastMealDate = mostRecent.Context.LastMealDate

	sum := 0
	for _, s := range sessions {
		sum += s.Context.Engagement
	}
	info.AverageEngagement = float64(sum) / float64(len(sessions))
	return info
}
