package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/xaenox/campus-chat/internal/api"
	"github.com/xaenox/campus-chat/internal/assistant"
	"github.com/xaenox/campus-chat/internal/auth"
	"github.com/xaenox/campus-chat/internal/models"
	"github.com/xaenox/campus-chat/internal/ratelimit"
	"github.com/xaenox/campus-chat/internal/storage"
	"github.com/xaenox/campus-chat/internal/tools"
	"github.com/xaenox/campus-chat/pkg/config"
	"go.uber.org/zap"
)

func main() {
	// Initialize logger
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	// Load configuration
	cfg, err := config.LoadConfig("config.yaml")
	if err != nil {
		logger.Fatal("Failed to load config", zap.Error(err), zap.String("path", "config.yaml"))
	}

	// Initialize storage
	var store storage.Storage
	if cfg.Database.UseInMemory {
		logger.Info("Using in-memory storage")
		store = storage.NewMemoryStorage()
	} else {
		logger.Info("Using PostgreSQL storage")
		store, err = storage.NewPostgresStorage(storage.DatabaseConfig{
			Host:        cfg.Database.Host,
			Port:        cfg.Database.Port,
			User:        cfg.Database.User,
			Password:    cfg.Database.Password,
			DBName:      cfg.Database.DBName,
			SSLMode:     cfg.Database.SSLMode,
			UseInMemory: cfg.Database.UseInMemory,
		})
		if err != nil {
			logger.Fatal("Failed to initialize storage", zap.Error(err))
		}
	}
	defer store.Close()

	// Initialize the query tool and the assistant
	registry := tools.NewRegistry(tools.NewQueryTool(store, logger))
	asst := assistant.New(
		assistant.NewOpenAIBackend(cfg.OpenAI.APIKey),
		registry,
		assistant.Config{
			Model:       cfg.OpenAI.Model,
			MaxTokens:   cfg.OpenAI.MaxTokens,
			Temperature: cfg.OpenAI.Temperature,
			MaxSteps:    cfg.Chat.MaxSteps,
		},
		logger,
	)

	// Rate limiting: stub unless explicitly enabled
	var limits ratelimit.Store = ratelimit.Stub{}
	if cfg.Chat.RateLimitEnabled {
		logger.Info("Rate limiting enabled")
		limits = ratelimit.NewStorageStore(store)
	}

	sessions := auth.NewSessions(store, logger)
	quotas := map[models.UserType]int{
		models.UserTypeGuest: cfg.Chat.GuestDailyMessages,
	}

	handler := api.NewHandler(asst, sessions, limits, quotas, cfg.Server.RequestTimeout, logger)
	router := api.NewRouter(handler)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.Server.RequestTimeout + 30*time.Second, // must outlast the chat ceiling
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logger.Info("Starting server", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server error", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Fatal("Server forced to shutdown", zap.Error(err))
	}
	logger.Info("Server exited gracefully")
}
