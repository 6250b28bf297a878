package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"concierge/backend/internal/adapter"
	"concierge/backend/internal/agent"
	"concierge/backend/internal/history"
	"concierge/backend/internal/orchestrator"
	"concierge/backend/internal/transport"
	"concierge/backend/pkg/config"
	"concierge/backend/pkg/logger"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	// Load configuration first so the logger knows the environment
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("Failed to load configuration: %v", err))
	}

	if err := logger.Init(cfg.Env); err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	defer logger.Sync()

	log := logger.Get()
	log.Info("Starting concierge server...")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Transcript store: Neo4j when configured, in-memory otherwise
	var repo history.Repository
	if cfg.Neo4jEnabled {
		neoRepo, err := history.NewNeo4jRepository(ctx, cfg.Neo4jURI, cfg.Neo4jUser, cfg.Neo4jPassword)
		if err != nil {
			log.Fatal("Failed to connect transcript store", zap.Error(err))
		}
		repo = neoRepo
		log.Info("Transcript store connected", zap.String("uri", cfg.Neo4jURI))
	} else {
		repo = history.NewMemoryRepository()
		log.Info("Using in-memory transcript store")
	}
	defer func() {
		if err := repo.Close(context.Background()); err != nil {
			log.Warn("Transcript store close failed", zap.Error(err))
		}
	}()

	// Agent stack
	llm := adapter.NewLLMAdapter(cfg.LiteLLMURL, cfg.OpenRouterAPIKey, cfg.ModelID)
	registry := agent.NewRegistry()
	agent.RegisterDefaults(registry, llm)

	orch := orchestrator.New(orchestrator.Options{
		Config:     orchestrationConfig(cfg),
		Registry:   registry,
		Classifier: agent.NewKeywordClassifier(),
		Validator:  agent.NewHeuristicValidator(),
		Selector:   agent.NewRandomSelector(time.Now().UnixNano()),
		History:    repo,
	})

	hub := transport.NewHub(orch)
	orch.SetTransport(hub)

	// HTTP surface
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(ginLogger(log))
	router.Use(gin.Recovery())
	transport.RegisterRoutes(router, hub)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info("Server listening", zap.String("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Info("Shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error("Server exited with error", zap.Error(err))
	}
	log.Info("Server exited")
}

// orchestrationConfig maps app config onto the engine's tuning
func orchestrationConfig(cfg *config.Config) orchestrator.Config {
	oc := orchestrator.DefaultConfig()
	oc.Decay.EngagementDecayAfter = cfg.EngagementDecayAfter
	oc.Decay.EngagementDecayStep = cfg.EngagementDecayStep
	oc.Decay.EngagementFloor = cfg.EngagementFloor
	oc.Decay.SatisfactionDecayAfter = cfg.SatisfactionDecayAfter
	oc.Decay.SatisfactionDecayStep = cfg.SatisfactionDecayStep
	oc.Decay.SatisfactionFloor = cfg.SatisfactionFloor
	oc.HoldIdleHandoffAfter = cfg.HoldIdleHandoffAfter
	oc.LowEngagement = cfg.LowEngagement
	oc.StatusTickInterval = cfg.StatusTickInterval
	oc.GreetingDelay = cfg.GreetingDelay
	oc.KickoffDelay = cfg.KickoffDelay
	oc.HoldUpdateInterval = cfg.HoldUpdateInterval
	oc.QueueSettleDelay = cfg.QueueSettleDelay
	oc.InvocationTimeout = cfg.InvocationTimeout
	return oc
}

// ginLogger is a custom logger middleware for Gin
func ginLogger(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		raw := c.Request.URL.RawQuery

		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()

		if raw != "" {
			path = path + "?" + raw
		}

		log.Info("HTTP Request",
			zap.Int("status", status),
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.Duration("latency", latency),
			zap.String("ip", c.ClientIP()),
		)
	}
}
