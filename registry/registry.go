// Package registry is the Session Registry: the single shared mutable
// structure in the system, mapping sessionId to live SessionState, with
// compare-and-set find-or-join semantics, idle eviction, and a per-user
// greeting rate limiter. Join races are resolved with the same
// double-checked-locking idiom store.MongoDBStore uses for its composite-key
// locks, generalized here to a full map of live sessions instead of a map of
// mutexes.
package registry

import (
	"context"
	"sync"
	"time"

	"github.com/ghiac/voicecoach/log"
	"github.com/ghiac/voicecoach/model"
	"github.com/ghiac/voicecoach/store"
)

// Clock abstracts time.Now so tests can drive the idle sweep deterministically.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock is the production Clock.
var SystemClock Clock = systemClock{}

// SessionState is the in-memory record the Registry holds for one live
// session.
type SessionState struct {
	SessionID string
	UserID    string
	UserEmail string
	AgentID   string

	mu           sync.Mutex
	lastActivity time.Time
	isProcessing bool
	cursor       *model.Cursor
}

// Touch updates lastActivity to now; called on every inbound frame.
func (s *SessionState) Touch(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastActivity = now
}

// IdleSince reports how long the session has been idle as of now.
func (s *SessionState) IdleSince(now time.Time) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return now.Sub(s.lastActivity)
}

// SetProcessing marks whether a handler is currently mutating this session,
// and returns the previous value (for reentrancy checks upstream).
func (s *SessionState) SetProcessing(v bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev := s.isProcessing
	s.isProcessing = v
	return prev
}

// Cursor returns the session's intent cursor, lazily creating one.
func (s *SessionState) Cursor() *model.Cursor {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cursor == nil {
		s.cursor = model.NewCursor()
	}
	return s.cursor
}

// Registry is the Session Registry.
type Registry struct {
	storage store.Storage
	clock   Clock

	idleThreshold     time.Duration
	greetingMinGap    time.Duration

	mu       sync.Mutex
	sessions map[string]*SessionState

	greetMu  sync.Mutex
	lastGreet map[string]time.Time

	stopOnce sync.Once
	stopCh   chan struct{}
}

// Config tunes the Registry's policies.
type Config struct {
	IdleSweepInterval time.Duration
	IdleThreshold     time.Duration
	GreetingMinGap    time.Duration
	Clock             Clock
}

// New builds a Registry and starts its idle-eviction sweep goroutine.
func New(storage store.Storage, cfg Config) *Registry {
	clock := cfg.Clock
	if clock == nil {
		clock = SystemClock
	}
	sweep := cfg.IdleSweepInterval
	if sweep <= 0 {
		sweep = 60 * time.Second
	}
	idle := cfg.IdleThreshold
	if idle <= 0 {
		idle = 5 * time.Minute
	}
	gap := cfg.GreetingMinGap
	if gap <= 0 {
		gap = 5 * time.Second
	}

	r := &Registry{
		storage:        storage,
		clock:          clock,
		idleThreshold:  idle,
		greetingMinGap: gap,
		sessions:       make(map[string]*SessionState),
		lastGreet:      make(map[string]time.Time),
		stopCh:         make(chan struct{}),
	}
	go r.sweepLoop(sweep)
	return r
}

// FindOrJoin implements the connect-time lookup and CAS join
// contract: looking up a sessionId not yet in the Registry first checks the
// persisted store, then calls Session.findOrCreate via storage, then tries
// to register a freshly built SessionState. If another goroutine won the
// race and already registered one, this caller's locally-built state is
// discarded and the winner's is returned.
func (r *Registry) FindOrJoin(ctx context.Context, sessionID, userID, userEmail string) (*SessionState, error) {
	if existing := r.get(sessionID); existing != nil {
		return existing, nil
	}

	sess, err := r.storage.FindOrCreateSession(ctx, sessionID, userID, userEmail)
	if err != nil {
		return nil, err
	}

	candidate := &SessionState{
		SessionID:    sessionID,
		UserID:       sess.UserID,
		UserEmail:    sess.UserEmail,
		lastActivity: r.clock.Now(),
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if winner, ok := r.sessions[sessionID]; ok {
		return winner, nil
	}
	r.sessions[sessionID] = candidate
	return candidate, nil
}

func (r *Registry) get(sessionID string) *SessionState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sessions[sessionID]
}

// Evict removes a session from the Registry (on socket close or idle sweep).
func (r *Registry) Evict(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, sessionID)
}

// AllowGreeting implements the per-user greeting rate limit: at most one
// greeting request per GreetingMinGap, shared across all sessions of the
// same user.
func (r *Registry) AllowGreeting(userID string) bool {
	now := r.clock.Now()

	r.greetMu.Lock()
	defer r.greetMu.Unlock()
	last, ok := r.lastGreet[userID]
	if ok && now.Sub(last) < r.greetingMinGap {
		return false
	}
	r.lastGreet[userID] = now
	return true
}

// sweepLoop evicts idle sessions every interval until Stop is called.
func (r *Registry) sweepLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			r.sweepOnce()
		case <-r.stopCh:
			return
		}
	}
}

func (r *Registry) sweepOnce() {
	now := r.clock.Now()

	r.mu.Lock()
	idle := make([]string, 0)
	for id, s := range r.sessions {
		if s.IdleSince(now) > r.idleThreshold {
			idle = append(idle, id)
		}
	}
	for _, id := range idle {
		delete(r.sessions, id)
	}
	r.mu.Unlock()

	for _, id := range idle {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := r.storage.UpdateSessionStatus(ctx, id, model.SessionCompleted); err != nil {
			log.Log.Warnf("[Registry] idle-evict: failed to mark session %s completed: %v", id, err)
		} else {
			log.Log.Infof("[Registry] idle-evicted session %s", id)
		}
		cancel()
	}
}

// Stop halts the idle-eviction sweep goroutine.
func (r *Registry) Stop() {
	r.stopOnce.Do(func() { close(r.stopCh) })
}

// Len reports the number of live sessions (test/observability helper).
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}
