package orchestrator

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/ghiac/voicecoach/log"
	"github.com/ghiac/voicecoach/model"
	"github.com/ghiac/voicecoach/realtime"
	"github.com/ghiac/voicecoach/registry"
	"github.com/ghiac/voicecoach/tts"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// RegisterRoutes wires the WebSocket endpoint onto a gin.Engine, hanging
// the handler directly off the router rather than a sub-framework.
func (o *Orchestrator) RegisterRoutes(router *gin.Engine) {
	router.GET("/ws", o.HandleWebSocket)
	router.GET("/healthz", o.handleHealth)
}

func (o *Orchestrator) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "liveSessions": o.Registry.Len()})
}

// state is the per-session lifecycle state. It is tracked for
// logging/observability; transitions are driven by the frame handlers below
// rather than enforced as a hard gate.
type state string

const (
	stateConnecting    state = "connecting"
	stateAuthenticated state = "authenticated"
	stateAwaitingAgent state = "awaiting_agent"
	stateInIntent      state = "in_intent"
	stateCompleted     state = "completed"
	stateAbandoned     state = "abandoned"
)

// connection is the per-WebSocket handler state: exactly one reader
// goroutine plus a bounded pool of background task goroutines.
type connection struct {
	o *Orchestrator

	ws      *websocket.Conn
	writeMu sync.Mutex

	sessionID string
	userEmail string
	userID    string

	regState *registry.SessionState
	executor *taskExecutor

	connID string
	log    *log.Logger

	mu        sync.Mutex
	state     state
	agent     *model.CompiledAgent
	completed bool
}

// HandleWebSocket implements the WebSocket endpoint and connect sequence.
func (o *Orchestrator) HandleWebSocket(c *gin.Context) {
	sessionID := c.Query("sessionId")
	userEmail := c.Query("userEmail")

	if sessionID == "" || userEmail == "" {
		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			log.Log.Warnf("[Orchestrator] upgrade failed before param validation: %v", err)
			return
		}
		msg := websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "sessionId and userEmail are required")
		conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		conn.Close()
		return
	}

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Log.Warnf("[Orchestrator] upgrade failed: %v", err)
		return
	}

	conn := &connection{
		o:         o,
		ws:        ws,
		sessionID: sessionID,
		userEmail: userEmail,
		state:     stateConnecting,
		connID:    uuid.NewString(),
		log:       log.Log.WithSession(sessionID),
	}
	conn.log.Infof("[Orchestrator] connection %s opened", conn.connID)
	conn.run()
}

func (c *connection) run() {
	defer c.ws.Close()

	ctx := context.Background()

	user, err := c.o.Storage.FindOrCreateUserByEmail(ctx, c.userEmail)
	if err != nil {
		log.Log.Errorf("[Orchestrator] findOrCreateUserByEmail(%s) failed: %v", c.userEmail, err)
		c.sendError("could not resolve user")
		return
	}
	c.userID = user.ID.Hex()
	ctx = model.WithUserID(ctx, c.userID)
	ctx = model.WithSessionID(ctx, c.sessionID)

	regState, err := c.o.Registry.FindOrJoin(ctx, c.sessionID, c.userID, c.userEmail)
	if err != nil {
		c.log.Errorf("[Orchestrator] FindOrJoin failed: %v", err)
		c.sendError("could not resolve session")
		return
	}
	c.regState = regState
	c.setState(stateAuthenticated)

	c.executor = newTaskExecutor(ctx)
	defer c.executor.Cancel()

	c.ws.SetReadDeadline(time.Now().Add(c.o.Config.PongWait))
	c.ws.SetPongHandler(func(string) error {
		c.ws.SetReadDeadline(time.Now().Add(c.o.Config.PongWait))
		c.regState.Touch(c.o.Clock.Now())
		return nil
	})

	stopPing := make(chan struct{})
	defer close(stopPing)
	go c.pingLoop(stopPing)

	defer func() {
		c.o.Registry.Evict(c.sessionID)
		c.mu.Lock()
		completed := c.completed
		c.mu.Unlock()
		if !completed {
			evictCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := c.o.Storage.UpdateSessionStatus(evictCtx, c.sessionID, model.SessionAbandoned); err != nil {
				c.log.Warnf("[Orchestrator] failed to mark abandoned on disconnect: %v", err)
			}
		}
	}()

	for {
		_, raw, err := c.ws.ReadMessage()
		if err != nil {
			c.log.Infof("[Orchestrator] read loop ended: %v", err)
			return
		}
		c.regState.Touch(c.o.Clock.Now())

		var frame Frame
		if err := json.Unmarshal(raw, &frame); err != nil {
			c.sendError("malformed frame")
			continue
		}
		c.dispatch(ctx, frame)
	}
}

func (c *connection) pingLoop(stop <-chan struct{}) {
	ticker := time.NewTicker(c.o.Config.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.writeMu.Lock()
			err := c.ws.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(10*time.Second))
			c.writeMu.Unlock()
			if err != nil {
				c.log.Warnf("[Orchestrator] ping failed: %v", err)
				return
			}
		case <-stop:
			return
		}
	}
}

func (c *connection) setState(s state) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = s
}

// dispatch routes one inbound frame per the client-to-server dispatch table. Unknown
// types are logged and ignored; handler panics are caught by the
// executor/goroutine recover where applicable, but these are run
// synchronously in the reader so a failure here must degrade to an error
// frame, never drop the connection.
func (c *connection) dispatch(ctx context.Context, frame Frame) {
	switch frame.Type {
	case TypeRealtimeSessionRequest:
		c.handleRealtimeSessionRequest(ctx, frame)
	case TypeClientReadyRequest:
		c.handleClientReadyRequest(ctx, frame)
	case TypeUserMessage:
		c.handleUserMessage(ctx, frame)
	case TypeTTSRequest:
		c.handleTTSRequest(ctx, frame)
	case TypeConversationSummaryReq:
		c.handleConversationSummaryRequest(ctx, frame)
	case TypeConversationCompleted:
		c.handleConversationCompleted(ctx, frame)
	case TypeTest:
		c.writeFrame(TypeTest, frame.Data)
	default:
		c.log.Debugf("[Orchestrator] ignoring unknown frame type %q", frame.Type)
	}
}

func (c *connection) handleRealtimeSessionRequest(ctx context.Context, frame Frame) {
	var data realtimeSessionRequestData
	_ = json.Unmarshal(frame.Data, &data)
	email := data.UserEmail
	if email == "" {
		email = c.userEmail
	}

	cred, err := c.o.Realtime.Mint(ctx, c.sessionID, c.userID, email)
	if errors.Is(err, realtime.ErrDisabled) {
		c.sendError("realtime voice is not available")
		return
	}
	if err != nil {
		c.log.Warnf("[Orchestrator] realtime mint failed: %v", err)
		c.sendError("could not start realtime voice session")
		return
	}
	c.writeJSON(TypeRealtimeSessionResponse, cred)
}

func (c *connection) handleClientReadyRequest(ctx context.Context, frame Frame) {
	var data clientReadyRequestData
	if err := json.Unmarshal(frame.Data, &data); err != nil || data.AgentID == "" {
		c.sendError("client_ready_request requires an agentId")
		return
	}

	if !c.o.Registry.AllowGreeting(c.userID) {
		c.sendError("greeting rate limit exceeded, please retry shortly")
		return
	}

	compiled, err := c.o.Catalog.GetCompiledAgent(ctx, data.AgentID)
	if err != nil {
		c.log.Errorf("[Orchestrator] GetCompiledAgent(%s) failed: %v", data.AgentID, err)
		c.sendError("could not load agent")
		return
	}
	if compiled == nil {
		c.sendError("unknown agent")
		return
	}

	c.mu.Lock()
	c.agent = compiled
	c.mu.Unlock()
	c.setState(stateAwaitingAgent)

	user, err := c.o.Storage.GetUser(ctx, c.userEmail)
	if err != nil || user == nil {
		c.log.Warnf("[Orchestrator] GetUser(%s) failed on client_ready_request: %v", c.userEmail, err)
		c.sendError("could not load user")
		return
	}
	sessions, err := c.o.Storage.ListSessionsByUser(ctx, c.userID, 20)
	if err != nil {
		c.log.Warnf("[Orchestrator] ListSessionsByUser(%s) failed: %v", c.userID, err)
	}

	c.writeJSON(TypeClientReadyResponse, map[string]any{
		"agent":    compiled,
		"userInfo": buildUserInfo(user, sessions),
	})
}

// handleUserMessage implements the intent loop contract.
func (c *connection) handleUserMessage(ctx context.Context, frame Frame) {
	data, ok := parseUserMessageData(frame.Data)
	if !ok {
		c.sendError("malformed user_message")
		return
	}

	c.setState(stateInIntent)

	conversationID := data.ConversationID
	if conversationID == "" {
		conversationID = c.sessionID
	}
	agentID := data.AgentID
	if agentID == "" {
		c.mu.Lock()
		if c.agent != nil {
			agentID = c.agent.AgentID
		}
		c.mu.Unlock()
	}

	userPrompt := data.Prompt
	if userPrompt == "" {
		userPrompt = data.UserTranscript
	}

	resp, err := c.o.LLM.Complete(ctx, intentSystemPrompt, userPrompt)
	if err != nil {
		c.log.Warnf("[Orchestrator] LLM.Complete failed: %v", err)
	}

	nextPrompt := resp.NextPrompt
	if nextPrompt == "" {
		nextPrompt = fallbackPrompt(data.IntentPrompt)
	}

	wire := intentResponseWire{
		ID:          resp.ID,
		IsCompleted: resp.IsCompleted,
		Fields:      resp.Fields,
		NextPrompt:  nextPrompt,
	}
	// Send-early: the textual reply must precede any background side effect.
	c.writeJSON(TypeAIResponse, map[string]any{"intentResponse": wire})

	if resp.IsCompleted {
		c.regState.Cursor().MergeFields(resp.Fields)
	}

	effectiveIntentID := firstNonEmpty(
		data.IntentID.String(),
		resp.ID,
		parseIntentIDHeader(data.IntentPrompt),
	)

	c.executor.Go(func(taskCtx context.Context) {
		c.synthesizeAndSend(taskCtx, nextPrompt)
	})

	c.executor.Go(func(taskCtx context.Context) {
		c.persistTurn(taskCtx, userPrompt, nextPrompt)
	})

	if effectiveIntentID != "" && (len(resp.Fields) > 0 || resp.IsCompleted) {
		c.executor.Go(func(taskCtx context.Context) {
			c.persistIntentResponse(taskCtx, conversationID, agentID, data.SectionID, effectiveIntentID, userPrompt, data.IntentPrompt, resp.Fields, resp.IsCompleted)
		})
	}

	if resp.IsCompleted {
		if mealType, ok := model.IsValidMealType(resp.Fields["mealType"]); ok {
			foods := splitCommaList(resp.Fields["foodsLogged"])
			if len(foods) > 0 {
				c.executor.Go(func(taskCtx context.Context) {
					c.finalizeMeal(taskCtx, string(mealType), foods, resp.Fields["totalCalories"])
				})
			}
		}
	}
}

func (c *connection) synthesizeAndSend(ctx context.Context, text string) {
	result, err := c.o.TTS.Synthesize(ctx, text)
	if errors.Is(err, tts.ErrNotConfigured) {
		return
	}
	if err != nil {
		c.log.Warnf("[Orchestrator] TTS.Synthesize failed: %v", err)
		c.sendError("speech synthesis failed")
		return
	}
	c.writeJSON(TypeTTSResponse, map[string]any{
		"text":     text,
		"audio":    base64.StdEncoding.EncodeToString(result.Audio),
		"duration": result.DurationMS,
	})
}

func (c *connection) persistTurn(ctx context.Context, userText, aiText string) {
	if userText != "" {
		if _, err := c.o.Storage.AppendMessage(ctx, c.sessionID, model.NewUserMessage(userText)); err != nil {
			c.log.Warnf("[Orchestrator] AppendMessage(user) failed: %v", err)
		}
	}
	if aiText != "" {
		if _, err := c.o.Storage.AppendMessage(ctx, c.sessionID, model.NewAIMessage(aiText)); err != nil {
			c.log.Warnf("[Orchestrator] AppendMessage(ai) failed: %v", err)
		}
	}
}

func (c *connection) persistIntentResponse(ctx context.Context, conversationID, agentID, sectionID, intentIDStr, transcript, intentPrompt string, fields map[string]string, isCompleted bool) {
	intentID, err := strconv.Atoi(intentIDStr)
	if err != nil {
		return
	}
	now := time.Now()
	resp := &model.IntentBuilderResponse{
		UserID:           c.userID,
		SessionID:        c.sessionID,
		ConversationID:   conversationID,
		AgentID:          agentID,
		SectionID:        sectionID,
		IntentID:         intentID,
		LatestTranscript: transcript,
		IntentPrompt:     intentPrompt,
		Fields:           fields,
		IsCompleted:      isCompleted,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := c.o.Storage.CreateOrAppendIntentResponse(ctx, resp); err != nil {
		c.log.Warnf("[Orchestrator] CreateOrAppendIntentResponse failed: %v", err)
	}
}

func (c *connection) finalizeMeal(ctx context.Context, mealType string, foods []string, totalCaloriesRaw string) {
	var totalCalories *float64
	if v, err := strconv.ParseFloat(totalCaloriesRaw, 64); err == nil {
		totalCalories = &v
	}

	entry, ok := model.NewFoodEntry(c.userID, mealType, model.NormalizeFoodsLogged(foods), totalCalories)
	if !ok {
		return
	}
	if err := c.o.Storage.CreateFoodEntry(ctx, entry); err != nil {
		c.log.Warnf("[Orchestrator] CreateFoodEntry failed: %v", err)
		return
	}

	summary := model.ConversationSummary{}
	summary.SetComplete(mealType, foods, totalCalories)
	if err := c.o.Storage.UpdateConversationSummary(ctx, c.sessionID, summary); err != nil {
		c.log.Warnf("[Orchestrator] UpdateConversationSummary failed: %v", err)
	}
	if err := c.o.Storage.UpdateSessionContext(ctx, c.sessionID, model.SessionContext{LastMealType: mealType, LastMealDate: timePtr(time.Now())}); err != nil {
		c.log.Warnf("[Orchestrator] UpdateSessionContext failed: %v", err)
	}
}

func (c *connection) handleTTSRequest(ctx context.Context, frame Frame) {
	var data ttsRequestData
	_ = json.Unmarshal(frame.Data, &data)
	text := data.text()
	if text == "" {
		c.sendError("tts_request requires text")
		return
	}

	result, err := c.o.TTS.Synthesize(ctx, text)
	if errors.Is(err, tts.ErrNotConfigured) {
		c.sendError("text-to-speech is not configured")
		return
	}
	if err != nil {
		c.log.Warnf("[Orchestrator] standalone TTS.Synthesize failed: %v", err)
		c.sendError("speech synthesis failed")
		return
	}
	c.writeJSON(TypeTTSResponse, map[string]any{
		"text":     text,
		"audio":    base64.StdEncoding.EncodeToString(result.Audio),
		"duration": result.DurationMS,
	})
}

func (c *connection) handleConversationSummaryRequest(ctx context.Context, frame Frame) {
	var data conversationSummaryRequestData
	if err := json.Unmarshal(frame.Data, &data); err != nil {
		c.sendError("malformed conversation_summary_request")
		return
	}

	messages := make([]model.Message, 0, len(data.ConversationHistory))
	for _, turn := range data.ConversationHistory {
		msgType := model.MessageUser
		if strings.EqualFold(turn.Speaker, "agent") || strings.EqualFold(turn.Speaker, "ai") {
			msgType = model.MessageAI
		}
		messages = append(messages, model.Message{Type: msgType, Content: turn.Text, Timestamp: time.Now()})
	}

	summary, err := c.o.Summarizer.Summarize(ctx, messages)
	if err != nil {
		c.log.Warnf("[Orchestrator] Summarize failed: %v", err)
		c.sendError("could not summarize conversation")
		return
	}
	c.writeJSON(TypeConversationSummaryResp, map[string]any{"summary": summary})
}

func (c *connection) handleConversationCompleted(ctx context.Context, frame Frame) {
	var data conversationCompletedData
	if err := json.Unmarshal(frame.Data, &data); err != nil {
		c.sendError("malformed conversation_completed")
		return
	}

	if mealType, ok := model.IsValidMealType(data.CompletedFields["mealType"]); ok {
		foods := splitCommaList(data.CompletedFields["foodsLogged"])
		if len(foods) > 0 {
			var totalCalories *float64
			if v, err := strconv.ParseFloat(data.CompletedFields["totalCalories"], 64); err == nil {
				totalCalories = &v
			}
			entry, ok := model.NewFoodEntry(c.userID, string(mealType), model.NormalizeFoodsLogged(foods), totalCalories)
			if ok {
				if err := c.o.Storage.CreateFoodEntry(ctx, entry); err != nil {
					c.log.Warnf("[Orchestrator] CreateFoodEntry failed on conversation_completed: %v", err)
				}
			}
			summary := model.ConversationSummary{}
			summary.SetComplete(string(mealType), foods, totalCalories)
			if err := c.o.Storage.UpdateConversationSummary(ctx, c.sessionID, summary); err != nil {
				c.log.Warnf("[Orchestrator] UpdateConversationSummary failed on conversation_completed: %v", err)
			}
		}
	}

	if err := c.o.Storage.UpdateSessionStatus(ctx, c.sessionID, model.SessionCompleted); err != nil {
		c.log.Warnf("[Orchestrator] UpdateSessionStatus(completed) failed: %v", err)
	}
	c.mu.Lock()
	c.completed = true
	c.mu.Unlock()
	c.setState(stateCompleted)

	c.writeJSON(TypeStatus, map[string]string{"message": "conversation completed"})
}

// writeFrame serializes and sends a Frame; gorilla/websocket requires a
// single writer per connection, enforced here with writeMu.
func (c *connection) writeFrame(frameType string, data json.RawMessage) {
	frame := Frame{Type: frameType, SessionID: c.sessionID, Data: data, Timestamp: time.Now().UnixMilli()}
	raw, err := json.Marshal(frame)
	if err != nil {
		log.Log.Errorf("[Orchestrator] failed to marshal outbound frame %s: %v", frameType, err)
		return
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.ws.SetWriteDeadline(time.Now().Add(10 * time.Second))
	if err := c.ws.WriteMessage(websocket.TextMessage, raw); err != nil {
		c.log.Warnf("[Orchestrator] write failed: %v", err)
	}
}

func (c *connection) writeJSON(frameType string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		log.Log.Errorf("[Orchestrator] failed to marshal payload for %s: %v", frameType, err)
		return
	}
	c.writeFrame(frameType, data)
}

func (c *connection) sendError(message string) {
	c.writeJSON(TypeError, map[string]string{"message": message})
}

const intentSystemPrompt = `You are a voice-driven meal-logging assistant conducting one intent at a time.
Return strictly a JSON object with exactly four keys: id, isCompleted, fields, nextPrompt.
No markdown, no code fences, no prose outside the JSON object.
When isCompleted is false, nextPrompt should be a natural follow-up question that keeps the conversation moving toward completing the current intent.
When isCompleted is true, nextPrompt should be a warm transition into the next topic.
fields must contain only the structured values you were able to extract from the user's message, using the field names provided in the intent's fieldsToExtract.`

// fallbackPrompt covers the case where the LLM returns an empty
// nextPrompt, derive one from the client-supplied intentPrompt.
func fallbackPrompt(intentPrompt string) string {
	intentPrompt = strings.TrimSpace(intentPrompt)
	if intentPrompt == "" {
		return "Could you please clarify or provide more details?"
	}
	if strings.HasSuffix(intentPrompt, "?") {
		return intentPrompt
	}
	return intentPrompt + "?"
}

// parseIntentIDHeader extracts an id from a text prompt header of the form
// "Intent ID:\n<id>", the last-resort source in the
// effectiveIntentId selection.
func parseIntentIDHeader(text string) string {
	const marker = "Intent ID:\n"
	idx := strings.Index(text, marker)
	if idx == -1 {
		return ""
	}
	rest := text[idx+len(marker):]
	if nl := strings.IndexByte(rest, '\n'); nl != -1 {
		rest = rest[:nl]
	}
	return strings.TrimSpace(rest)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func splitCommaList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func timePtr(t time.Time) *time.Time { return &t }

// parseUserMessageData accepts either a bare JSON string or the full
// structured object for a user_message frame's data.
func parseUserMessageData(raw json.RawMessage) (userMessageData, bool) {
	var asString string
	if err := json.Unmarshal(raw, &asString); err == nil {
		return userMessageData{Prompt: asString}, true
	}

	var data userMessageData
	if err := json.Unmarshal(raw, &data); err != nil {
		return userMessageData{}, false
	}
	return data, true
}
