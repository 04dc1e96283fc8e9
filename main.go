package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/voyago/concierge/api"
	"github.com/voyago/concierge/assist"
	"github.com/voyago/concierge/classify"
	"github.com/voyago/concierge/config"
	"github.com/voyago/concierge/domain"
	"github.com/voyago/concierge/engine"
	"github.com/voyago/concierge/hub"
	"github.com/voyago/concierge/janitor"
	"github.com/voyago/concierge/policy"
	"github.com/voyago/concierge/speech"
	"github.com/voyago/concierge/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	log.Printf("Starting concierge...")
	log.Printf("HTTP Port: %d", cfg.HTTPPort)
	log.Printf("Database: %s", cfg.DatabaseURL)

	db, err := store.NewSQLiteStore(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to initialize store: %v", err)
	}
	defer db.Close()

	ctx := context.Background()
	policyEngine, err := policy.NewEngine(ctx, policy.DefaultPolicy)
	if err != nil {
		log.Fatalf("Failed to initialize policy engine: %v", err)
	}

	var assistClient *assist.Client
	if cfg.AssistantURL != "" {
		assistClient = assist.NewClient(cfg.AssistantURL, cfg.AssistantAPIKey, cfg.AssistantTimeout)
	}
	responder := assist.NewService(assistClient, policyEngine)

	var classifyClient *classify.Client
	if cfg.ClassifyURL != "" {
		classifyClient = classify.NewClient(cfg.ClassifyURL, cfg.ClassifyTimeout)
	}
	classifier := classify.NewService(classifyClient)

	var synth speech.Synthesizer
	if cfg.SpeechURL != "" {
		synth = speech.NewHTTPSynthesizer(cfg.SpeechURL, cfg.SpeechTimeout)
	}

	eventHub := hub.New()
	go eventHub.Run()

	eng := engine.New(db, responder, classifier,
		engine.WithThinkingDelay(cfg.ThinkingDelay),
		engine.WithPersonality(cfg.Personality),
		engine.WithNotifier(eventHub),
		engine.WithCompletion(func(sess *domain.Session) {
			log.Printf("Session %s complete: code=%s category=%s", sess.SessionID, sess.IssuedCode, sess.Category)
		}),
	)

	sweeper := janitor.New(db, cfg.JanitorSchedule, cfg.SessionRetention)
	if err := sweeper.Start(); err != nil {
		log.Fatalf("Failed to start janitor: %v", err)
	}

	h := api.NewHandler(db, eng, eventHub, synth, cfg.SpeechVoice)

	server := echo.New()
	server.HideBanner = true
	server.Use(middleware.Logger())
	server.Use(middleware.Recover())
	server.Use(middleware.CORS())

	h.RegisterRoutes(server)

	go func() {
		addr := fmt.Sprintf(":%d", cfg.HTTPPort)
		if err := server.Start(addr); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	log.Printf("Concierge API started on port %d", cfg.HTTPPort)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down concierge...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Failed to shutdown server gracefully: %v", err)
	}

	sweeper.Stop()
	eng.Close()
	eventHub.Stop()

	log.Println("Concierge stopped")
}
