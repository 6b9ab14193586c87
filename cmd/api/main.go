package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/cadencevoice/cadence/internal/config"
	"github.com/cadencevoice/cadence/internal/database"
	"github.com/cadencevoice/cadence/internal/repository/turnstore"
	"github.com/cadencevoice/cadence/internal/server"
	"github.com/cadencevoice/cadence/internal/turn/ledger"
	"github.com/cadencevoice/cadence/internal/turn/registry"
	"github.com/cadencevoice/cadence/pkg/Logger"
	llmollama "github.com/cadencevoice/cadence/pkg/llm/ollama"
	llmopenai "github.com/cadencevoice/cadence/pkg/llm/openai"
	"github.com/cadencevoice/cadence/pkg/llm/router"
)

// Entry point for the turn detection server. Wires config, storage, the
// LLM mux, and the session routes, then serves until interrupted.
func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	logger := Logger.New(cfg.Debug)
	logger.Info("Logger initialized")

	// Durable turn storage is optional; the decision core runs in memory.
	var store turnstore.Store
	if cfg.DB.Enabled() {
		db, err := database.InitDB(cfg)
		if err != nil {
			logger.Fatalf("Failed to connect to database: %v", err)
		}
		if err := database.MigrateDB(db); err != nil {
			logger.Fatalf("Failed to migrate database: %v", err)
		}
		store = turnstore.NewGormStore(db)
		logger.Info("Turn store connected")
	}

	// Ledger archiving is likewise optional.
	var archiver *ledger.Archiver
	if cfg.Redis.Enabled() {
		rdb, err := database.NewRedis(cfg.Redis)
		if err != nil {
			logger.Warnf("Redis unavailable, ledger archiving disabled: %v", err)
		} else {
			archiver = ledger.NewArchiver(rdb, logger)
			logger.Info("Ledger archiver connected")
		}
	}

	mux, err := buildMux(cfg, logger)
	if err != nil {
		logger.Fatalf("Failed to assemble LLM mux: %v", err)
	}

	reg := registry.New(archiver, logger)

	engine := gin.Default()
	dep := server.NewServerDependencies(logger, cfg, mux, store, reg)
	ws := server.InitializeRoutes(cfg, engine, dep)

	srv := &http.Server{
		Addr:    cfg.Addr,
		Handler: engine.Handler(),
	}
	go func() {
		logger.Infof("Listening on %s", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("Server exited: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down")
	if err := ws.Close(); err != nil {
		logger.Errorf("Connection teardown error: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Errorf("Shutdown error: %v", err)
	}
	logger.Info("Shutdown complete")
}

// buildMux registers every configured completion backend and picks the
// default from config.
func buildMux(cfg *config.Settings, logger *Logger.Logger) (*router.Mux, error) {
	packs := make([]router.AdapterPack, 0, 2)

	if cfg.LLM.OpenAIAPIKey != "" {
		packs = append(packs, router.AdapterPack{
			Name:    "openai",
			Adapter: llmopenai.New(cfg.LLM.OpenAIAPIKey, cfg.LLM.OpenAIModel),
		})
	}

	if len(cfg.LLM.Ollama.Models) > 0 {
		urls := make([]string, 0, len(cfg.LLM.Ollama.Models))
		for _, m := range cfg.LLM.Ollama.Models {
			urls = append(urls, m.URL)
		}
		provider := llmollama.NewProvider(urls, logger)
		packs = append(packs, router.AdapterPack{
			Name:    "ollama",
			Adapter: llmollama.New(provider, cfg.LLM.Ollama.Models[0].Name),
		})
	}

	return router.New(cfg.LLM.Provider, packs...)
}
