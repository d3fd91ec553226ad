package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"codesync/internal/api"
	"codesync/internal/config"
	"codesync/internal/db"
	"codesync/internal/openai"
	"codesync/internal/repository"
	"codesync/internal/services"
	"codesync/internal/services/collaboration"
	"codesync/internal/telemetry"
)

const version = "0.1.0"

// roomStore is the persistence the server needs; both repository
// implementations satisfy it
type roomStore interface {
	api.RoomRepository
	collaboration.RoomStore
}

func main() {
	log.Println("🚀 Starting codesync room server...")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("❌ Failed to load config: %v", err)
	}

	// Tracing first so everything after it is traced
	shutdownTracing := telemetry.ShutdownFunc(telemetry.Noop)
	if cfg.TracingEnabled {
		shutdownTracing, err = telemetry.InitJaeger("codesync", version, cfg.JaegerEndpoint)
		if err != nil {
			log.Printf("⚠️  Failed to initialize Jaeger: %v (continuing without tracing)", err)
			shutdownTracing = telemetry.Noop
		}
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(ctx); err != nil {
			log.Printf("⚠️  Failed to shutdown Jaeger: %v", err)
		}
	}()

	var rooms roomStore
	switch cfg.Store {
	case config.StoreMemory:
		rooms = repository.NewMemoryRoomRepository()
		log.Println("✓ Using in-memory room store")
	case config.StoreRedis:
		redisRepo, err := repository.NewRedisRoomRepository(context.Background(), cfg.RedisAddr)
		if err != nil {
			log.Fatalf("❌ Failed to connect to Redis: %v", err)
		}
		defer redisRepo.Close()
		rooms = redisRepo
		log.Printf("✓ Using Redis room store at %s", cfg.RedisAddr)
	default:
		database, err := db.NewGorm(cfg)
		if err != nil {
			log.Fatalf("❌ Failed to connect to database: %v", err)
		}
		defer database.Close()
		rooms = repository.NewRoomRepository(database.DB)
	}

	// Without a key the suggestion service answers from its rules
	var ai services.ChatCompleter
	if cfg.OpenAIAPIKey != "" {
		ai = openai.NewClient(cfg.OpenAIAPIKey).
			WithBaseURL(cfg.OpenAIBaseURL).
			WithModel(cfg.OpenAIModel)
		log.Println("✓ OpenAI client initialized")
	} else {
		log.Println("⚠️  OPENAI_API_KEY not set, using rule-based suggestions")
	}
	suggestions := services.NewSuggestionService(ai)

	sessionManager := collaboration.NewSessionManager(rooms, cfg.MaxConnectionsPerRoom)
	sessionManager.Start()

	wsHandler := collaboration.NewWebSocketHandler(sessionManager, rooms, cfg.AllowedOrigins)
	handler := api.NewHandler(rooms, suggestions, sessionManager, wsHandler)
	router := api.SetupRoutes(handler, cfg.AllowedOrigins)

	server := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("🌐 Server listening on http://%s", cfg.Addr())
		log.Printf("   POST   /rooms          - Create room")
		log.Printf("   GET    /ws/:roomId     - Join room (WebSocket)")
		log.Printf("   POST   /autocomplete   - Code suggestion")
		log.Printf("   GET    /debug/rooms    - Connections per room")
		log.Printf("   Max connections per room: %d", cfg.MaxConnectionsPerRoom)

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("❌ Server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("🛑 Shutting down server...")

	// Hijacked websocket connections are not tracked by http.Server
	sessionManager.Shutdown()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Printf("⚠️  Server forced to shutdown: %v", err)
	}

	log.Println("✓ Server shutdown complete")
}
