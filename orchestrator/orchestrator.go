// Package orchestrator is the Session Orchestrator: the WebSocket endpoint,
// frame router, and intent-loop that ties every other component together,
// handling connection mechanics (ping/pong heartbeat, single-writer mutex,
// upgrade-then-loop) and the per-session lifecycle.
package orchestrator

import (
	"context"
	"sync"
	"time"

	"github.com/ghiac/voicecoach/catalog"
	"github.com/ghiac/voicecoach/llm"
	"github.com/ghiac/voicecoach/log"
	"github.com/ghiac/voicecoach/realtime"
	"github.com/ghiac/voicecoach/registry"
	"github.com/ghiac/voicecoach/store"
	"github.com/ghiac/voicecoach/summarizer"
	"github.com/ghiac/voicecoach/tts"
)

// Clock abstracts time.Now for deterministic tests.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock is the production Clock.
var SystemClock Clock = systemClock{}

// Config tunes connection-level policy.
type Config struct {
	PingInterval time.Duration
	PongWait     time.Duration
}

// DefaultConfig returns the heartbeat defaults (30s ping).
func DefaultConfig() Config {
	return Config{PingInterval: 30 * time.Second, PongWait: 90 * time.Second}
}

// Orchestrator is the Session Orchestrator, constructed with every
// collaborator it depends on, rather than reaching for package-level
// singletons.
type Orchestrator struct {
	Storage    store.Storage
	LLM        *llm.Adapter
	TTS        *tts.Adapter
	Realtime   *realtime.Issuer
	Catalog    *catalog.Catalog
	Registry   *registry.Registry
	Summarizer *summarizer.Summarizer
	Clock      Clock
	Config     Config
}

// New builds an Orchestrator from its collaborators.
func New(storage store.Storage, llmAdapter *llm.Adapter, ttsAdapter *tts.Adapter, realtimeIssuer *realtime.Issuer, cat *catalog.Catalog, reg *registry.Registry, summ *summarizer.Summarizer, clock Clock, cfg Config) *Orchestrator {
	if clock == nil {
		clock = SystemClock
	}
	d := DefaultConfig()
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = d.PingInterval
	}
	if cfg.PongWait <= 0 {
		cfg.PongWait = d.PongWait
	}
	return &Orchestrator{
		Storage:    storage,
		LLM:        llmAdapter,
		TTS:        ttsAdapter,
		Realtime:   realtimeIssuer,
		Catalog:    cat,
		Registry:   reg,
		Summarizer: summ,
		Clock:      clock,
		Config:     cfg,
	}
}

// taskExecutor is the bounded background task executor: every background
// task for a session runs under a
// context derived from the session's own cancellation context, tracked by a
// WaitGroup, never spawned as an unbounded bare goroutine.
type taskExecutor struct {
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func newTaskExecutor(parent context.Context) *taskExecutor {
	ctx, cancel := context.WithCancel(parent)
	return &taskExecutor{ctx: ctx, cancel: cancel}
}

// Go runs fn in a tracked goroutine with the executor's context. fn should
// return promptly if ctx is cancelled.
func (e *taskExecutor) Go(fn func(ctx context.Context)) {
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				log.Log.Errorf("[Orchestrator] background task panicked: %v", r)
			}
		}()
		fn(e.ctx)
	}()
}

// Cancel stops accepting new work context and cancels all in-flight tasks,
// then waits for them to return.
func (e *taskExecutor) Cancel() {
	e.cancel()
	e.wg.Wait()
}
