package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/cadencevoice/cadence/internal/config"
	wshandler "github.com/cadencevoice/cadence/internal/handlers/websocket"
	"github.com/cadencevoice/cadence/internal/repository/turnstore"
	"github.com/cadencevoice/cadence/internal/turn/judge"
	"github.com/cadencevoice/cadence/internal/turn/registry"
	"github.com/cadencevoice/cadence/pkg/Logger"
)

type Dependencies struct {
	Logger    *Logger.Logger
	Configs   *config.Settings
	Completer judge.Completer
	Store     turnstore.Store
	Registry  *registry.Registry
}

func NewServerDependencies(
	logger *Logger.Logger,
	cfg *config.Settings,
	completer judge.Completer,
	store turnstore.Store,
	reg *registry.Registry,
) Dependencies {
	return Dependencies{
		Logger:    logger,
		Configs:   cfg,
		Completer: completer,
		Store:     store,
		Registry:  reg,
	}
}

func InitializeRoutes(cfg *config.Settings, r *gin.Engine, dep Dependencies) *wshandler.Handler {
	r.GET("/", func(ctx *gin.Context) { ctx.JSON(http.StatusOK, gin.H{"message": "Server healthy"}) })
	r.GET("/health", func(ctx *gin.Context) { ctx.JSON(http.StatusOK, gin.H{"status": "ok"}) })

	ws := wshandler.NewHandler(dep.Logger, cfg, dep.Completer, dep.Store, dep.Registry)
	ws.RegisterRoutes(r)

	// Side-effect-free diagnostics over the live sessions.
	r.GET("/sessions", func(ctx *gin.Context) {
		ctx.JSON(http.StatusOK, gin.H{
			"count":    dep.Registry.Count(),
			"sessions": dep.Registry.Stats(),
		})
	})
	r.GET("/sessions/:id/judgments", func(ctx *gin.Context) {
		id, err := uuid.Parse(ctx.Param("id"))
		if err != nil {
			ctx.JSON(http.StatusBadRequest, gin.H{"error": "invalid session id"})
			return
		}
		orch, err := dep.Registry.Get(id)
		if err != nil {
			ctx.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
			return
		}
		ctx.JSON(http.StatusOK, gin.H{
			"sessionId": id.String(),
			"judgments": orch.Ledger().Recent(cfg.Turn.RecentJudgmentWindow),
		})
	})

	return ws
}
