// Command voicecoach runs the WebSocket session orchestrator server:
// load config, construct the dependency chain bottom-up, register routes,
// serve, and shut down gracefully on signal.
package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ghiac/voicecoach/catalog"
	"github.com/ghiac/voicecoach/config"
	"github.com/ghiac/voicecoach/llm"
	"github.com/ghiac/voicecoach/llmutils"
	"github.com/ghiac/voicecoach/log"
	"github.com/ghiac/voicecoach/orchestrator"
	"github.com/ghiac/voicecoach/realtime"
	"github.com/ghiac/voicecoach/registry"
	"github.com/ghiac/voicecoach/store"
	"github.com/ghiac/voicecoach/summarizer"
	"github.com/ghiac/voicecoach/tts"
)

func main() {
	seedPath := flag.String("seed", "", "path to a YAML agent definition file to upsert into storage on startup")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Log.Errorf("failed to load configuration: %v", err)
		os.Exit(1)
	}

	log.Log.Infof("=== Voicecoach Server ===")
	log.Log.Infof("HTTP address: %s", cfg.GetAddress())
	log.Log.Infof("Mongo database: %s", cfg.Mongo.Database)
	log.Log.Infof("Realtime voice enabled: %v", cfg.Realtime.Enabled)

	storage, err := store.NewMongoDBStore(store.MongoDBStoreConfig{
		URI:      cfg.Mongo.URI,
		Database: cfg.Mongo.Database,
	})
	if err != nil {
		log.Log.Errorf("failed to connect to storage: %v", err)
		os.Exit(1)
	}

	cat := catalog.New(storage)

	if *seedPath != "" {
		doc, err := catalog.LoadSeedFile(*seedPath)
		if err != nil {
			log.Log.Errorf("failed to load seed file %s: %v", *seedPath, err)
			os.Exit(1)
		}
		seedCtx, cancel := context.WithTimeout(context.Background(), cfg.Timeouts.Storage*5)
		err = catalog.ApplySeed(seedCtx, storage, doc)
		cancel()
		if err != nil {
			log.Log.Errorf("failed to apply seed file %s: %v", *seedPath, err)
			os.Exit(1)
		}
		cat.InvalidateCache(doc.Agent.AgentID)
	}

	openaiClient := llmutils.NewOpenAIClientWithUserIDHeader(cfg.LLM.APIKey, cfg.LLM.BaseURL, &http.Client{Timeout: cfg.Timeouts.LLM})
	llmAdapter := llm.New(openaiClient, llm.Config{
		Model:   cfg.LLM.Model,
		Timeout: cfg.Timeouts.LLM,
	})

	ttsAdapter := tts.New(tts.Config{
		Provider:     cfg.TTS.Provider,
		GoogleKey:    cfg.TTS.GoogleKey,
		ElevenLabKey: cfg.TTS.ElevenLabKey,
		Voice:        cfg.TTS.Voice,
		Timeout:      cfg.Timeouts.TTS,
	}, nil)

	realtimeIssuer := realtime.New(realtime.Config{
		Enabled: cfg.Realtime.Enabled,
		APIKey:  cfg.Realtime.APIKey,
		BaseURL: cfg.Realtime.BaseURL,
		Model:   cfg.Realtime.Model,
		Voice:   cfg.Realtime.Voice,
		Timeout: cfg.Timeouts.Realtime,
	}, nil)

	reg := registry.New(storage, registry.Config{
		IdleSweepInterval: cfg.Registry.IdleSweepInterval,
		IdleThreshold:     cfg.Registry.IdleThreshold,
		GreetingMinGap:    cfg.Registry.GreetingMinGap,
	})
	defer reg.Stop()

	summ := summarizer.New(openaiClient, summarizer.DefaultConfig())

	orch := orchestrator.New(storage, llmAdapter, ttsAdapter, realtimeIssuer, cat, reg, summ, nil, orchestrator.DefaultConfig())

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	orch.RegisterRoutes(router)

	srv := &http.Server{
		Addr:    cfg.GetAddress(),
		Handler: router,
	}

	go func() {
		log.Log.Infof("listening on %s", cfg.GetAddress())
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Log.Errorf("server error: %v", err)
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	log.Log.Infof("shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Log.Errorf("graceful shutdown failed: %v", err)
	}
	if err := storage.Close(ctx); err != nil {
		log.Log.Errorf("storage close failed: %v", err)
	}
}
