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

	"hirelane.com/interview-orchestrator/internal/api"
	"hirelane.com/interview-orchestrator/internal/audio"
	"hirelane.com/interview-orchestrator/internal/auth"
	"hirelane.com/interview-orchestrator/internal/config"
	"hirelane.com/interview-orchestrator/internal/interview"
	"hirelane.com/interview-orchestrator/internal/llm"
	"hirelane.com/interview-orchestrator/internal/store"
	"hirelane.com/interview-orchestrator/internal/tts"
)

func main() {
	cfg := config.Load()

	log.SetFlags(log.LstdFlags | log.Lshortfile)
	if cfg.LogLevel == "DEBUG" {
		log.Println("Service starting in DEBUG mode")
	}

	dbStore, err := store.NewSQLiteStore(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer dbStore.Close()

	llmService, err := llm.NewService(context.Background(), cfg.GeminiAPIKey, cfg.GeminiModel)
	if err != nil {
		log.Fatalf("Failed to initialize LLM service: %v", err)
	}
	defer llmService.Close()

	var audioPipeline interview.AudioRenderer
	if cfg.ElevenLabsKey != "" && cfg.SupabaseURL != "" && cfg.SupabaseServiceKey != "" {
		objectStore, err := audio.NewSupabaseStore(cfg.SupabaseURL, cfg.SupabaseServiceKey, cfg.SupabaseBucket)
		if err != nil {
			log.Fatalf("Failed to initialize audio storage: %v", err)
		}
		ttsClient := tts.NewElevenLabsClient(cfg.ElevenLabsKey, cfg.ElevenLabsVoiceID)
		audioPipeline = audio.NewPipeline(ttsClient, objectStore, cfg.SignedURLTTL)
	} else {
		log.Println("Audio pipeline disabled; interviews will run text-only")
	}

	interviewService := interview.NewService(dbStore, llmService, audioPipeline,
		cfg.EndCommands, cfg.TimerDurationMinutes, cfg.PersistRetries)

	apiHandler := api.NewAPIHandler(interviewService, auth.NewTokenValidator(cfg.JWTSecret))
	router := api.NewRouter(apiHandler)

	serverAddr := fmt.Sprintf(":%s", cfg.HTTPPort)

	srv := &http.Server{
		Addr:         serverAddr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second, // LLM and TTS calls can take time
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.Printf("Starting server on %s. Press Ctrl+C to quit.", serverAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Could not listen on %s: %v\n", serverAddr, err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server exiting gracefully")
}
