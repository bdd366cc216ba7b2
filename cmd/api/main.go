package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/tutor-agent/backend/internal/analysis"
	"github.com/tutor-agent/backend/internal/api/handlers"
	"github.com/tutor-agent/backend/internal/cache/redis"
	"github.com/tutor-agent/backend/internal/embedding"
	"github.com/tutor-agent/backend/internal/engagement"
	"github.com/tutor-agent/backend/internal/kg/builder"
	"github.com/tutor-agent/backend/internal/kg/dot"
	"github.com/tutor-agent/backend/internal/kg/neo4j"
	"github.com/tutor-agent/backend/internal/llm"
	"github.com/tutor-agent/backend/internal/memory"
	"github.com/tutor-agent/backend/internal/metrics"
	"github.com/tutor-agent/backend/internal/middleware/ratelimit"
	"github.com/tutor-agent/backend/internal/middleware/security"
	"github.com/tutor-agent/backend/internal/middleware/validation"
	"github.com/tutor-agent/backend/internal/nlp/prose"
	"github.com/tutor-agent/backend/internal/pipeline"
	"github.com/tutor-agent/backend/internal/session"
	"github.com/tutor-agent/backend/internal/storage/sqlite"
	"github.com/tutor-agent/backend/internal/vector/zilliz"
	"github.com/tutor-agent/backend/pkg/config"
	appLogger "github.com/tutor-agent/backend/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	err = appLogger.Init(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.OutputPath)
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer appLogger.Sync()

	appLogger.Info("Starting Tutor Agent API Server")
	metrics.Init()

	ctx := context.Background()
	pingers := map[string]handlers.Pinger{}

	sqliteClient, err := sqlite.NewClient(cfg.SQLite.Path)
	if err != nil {
		appLogger.Fatal("Failed to create SQLite client", zap.Error(err))
	}
	defer sqliteClient.Close()

	if err := sqliteClient.InitSchema(); err != nil {
		appLogger.Fatal("Failed to initialize schema", zap.Error(err))
	}
	pingers["sqlite"] = sqliteClient

	var redisClient *redis.Client
	if cfg.Redis.Enabled {
		redisClient, err = redis.NewClient(ctx, cfg.Redis.Host, cfg.Redis.Port, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			appLogger.Fatal("Failed to create Redis client", zap.Error(err))
		}
		defer redisClient.Close()
		pingers["redis"] = redisClient
	}

	// Embeddings: OpenAI when enabled, otherwise the offline hashing embedder.
	var (
		embedder  embedding.Embedder
		responder pipeline.Responder = pipeline.PlaceholderResponder{}
		vectorDim = cfg.Memory.Dimension
	)
	if cfg.LLM.Enabled {
		llmClient := llm.NewClient(llm.Options{
			APIKey:         cfg.LLM.APIKey,
			Model:          cfg.LLM.Model,
			EmbeddingModel: cfg.LLM.EmbeddingModel,
			Temperature:    cfg.LLM.Temperature,
			MaxTokens:      cfg.LLM.MaxTokens,
		})
		embedder = llmClient
		responder = pipeline.NewLLMResponder(llmClient)
	} else {
		hashing := embedding.NewHashingEmbedder(cfg.Memory.LocalDim)
		embedder = hashing
		if vectorDim == 0 {
			vectorDim = hashing.Dim()
		}
	}
	if redisClient != nil {
		embedder = embedding.NewCachedEmbedder(embedder, redisClient, time.Duration(cfg.Redis.EmbeddingTTL)*time.Second)
	}

	var archive *zilliz.Client
	if cfg.Zilliz.Enabled {
		if vectorDim == 0 {
			appLogger.Fatal("memory.dimension must be set when the memory archive is enabled with remote embeddings")
		}
		archive, err = zilliz.NewClient(ctx, cfg.Zilliz.Endpoint, cfg.Zilliz.CollectionName, vectorDim)
		if err != nil {
			appLogger.Fatal("Failed to create Zilliz client", zap.Error(err))
		}
		defer archive.Close()

		if err := archive.CreateCollection(ctx); err != nil {
			appLogger.Fatal("Failed to create collection", zap.Error(err))
		}
	}

	memCfg := memory.Config{
		Metric:    memory.Metric(cfg.Memory.Metric),
		Threshold: cfg.Memory.Threshold,
		Dimension: vectorDim,
	}
	var sessionArchive session.Archive
	if archive != nil {
		sessionArchive = archive
	}
	registry, err := session.NewRegistry(memCfg, time.Duration(cfg.Memory.SessionTTL)*time.Second, sessionArchive)
	if err != nil {
		appLogger.Fatal("Failed to create session registry", zap.Error(err))
	}

	var renderer builder.Renderer
	switch cfg.Graph.Renderer {
	case "neo4j":
		neo4jClient, err := neo4j.NewClient(ctx, cfg.Neo4j.URI, cfg.Neo4j.Username, cfg.Neo4j.Password, cfg.Neo4j.Database)
		if err != nil {
			appLogger.Fatal("Failed to create Neo4j client", zap.Error(err))
		}
		defer neo4jClient.Close(context.Background())
		renderer = neo4jClient
		pingers["neo4j"] = neo4jClient
	case "dot":
		dotRenderer, err := dot.NewRenderer(ctx, cfg.Graph.DotDir, cfg.Graph.Format)
		if err != nil {
			appLogger.Fatal("Failed to create diagram renderer", zap.Error(err))
		}
		defer dotRenderer.Close()
		renderer = dotRenderer
	}

	phrases, err := analysis.PhraseRankerByName(cfg.Analysis.Phrases)
	if err != nil {
		appLogger.Fatal("Invalid analysis.phrases", zap.Error(err))
	}
	relations, err := analysis.RelationExtractorByName(cfg.Analysis.Relations)
	if err != nil {
		appLogger.Fatal("Invalid analysis.relations", zap.Error(err))
	}

	var sensor engagement.Sensor
	if redisClient != nil {
		sensor = redisClient
	}
	monitor := engagement.NewMonitor(sensor, time.Duration(cfg.Engagement.TimeoutMs)*time.Millisecond)

	deps := pipeline.Deps{
		Analyzer:   analysis.NewExtractor(prose.NewAnalyzer(), phrases, relations, cfg.Analysis.MaxPhrases),
		Graph:      builder.NewBuilder(renderer),
		Embedder:   embedder,
		Memories:   registry,
		Engagement: monitor,
		Responder:  responder,
		History:    sqliteClient,
	}
	if archive != nil {
		deps.Archive = archive
	}
	engine, err := pipeline.NewEngine(deps)
	if err != nil {
		appLogger.Fatal("Failed to create pipeline", zap.Error(err))
	}

	app := fiber.New(fiber.Config{
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		BodyLimit:    cfg.Server.BodyLimit,
	})

	limiter := ratelimit.New(ratelimit.Config{
		MaxRequestsPerMinute: cfg.Server.RateLimit,
		Logger:               appLogger.GetLogger(),
	})
	defer limiter.Stop()

	allowOrigins := "*"
	if len(cfg.Server.AllowedOrigins) > 0 {
		allowOrigins = strings.Join(cfg.Server.AllowedOrigins, ", ")
	}

	app.Use(recover.New())
	app.Use(logger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: allowOrigins,
		AllowHeaders: "Origin, Content-Type, Accept, X-Session-ID",
		AllowMethods: "GET, POST, OPTIONS",
	}))
	app.Use(security.HeadersMiddleware(security.HeadersConfig{
		AllowedOrigins: cfg.Server.AllowedOrigins,
		IsDevelopment:  cfg.Server.IsDevelopment,
	}))

	var affect handlers.AffectPublisher
	if redisClient != nil {
		affect = redisClient
	}
	tutorHandler := handlers.NewTutorHandler(engine, sqliteClient, affect, time.Duration(cfg.Redis.AffectTTL)*time.Second)
	askChecks := validation.Config{
		MaxQueryLength: cfg.Server.MaxQueryLength,
		Logger:         appLogger.GetLogger(),
	}
	wsHandler := handlers.NewWebSocketHandler(engine, askChecks, limiter)
	healthHandler := handlers.NewHealthHandler(pingers)

	app.Get("/metrics", metrics.MetricsHandler())

	api := app.Group("/api/v1")
	api.Get("/health", healthHandler.Health)

	tutor := api.Group("/tutor", limiter.Middleware(), validation.Middleware(askChecks))
	tutor.Post("/ask", tutorHandler.Ask)
	tutor.Get("/history", tutorHandler.History)
	tutor.Post("/engagement", tutorHandler.Engagement)
	tutor.Post("/feedback", tutorHandler.Feedback)

	ws := api.Group("/ws", limiter.Middleware(), func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	ws.Get("/", websocket.New(wsHandler.HandleConnection))

	stopGauge := make(chan struct{})
	go reportSessions(registry, stopGauge)
	defer close(stopGauge)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	appLogger.Info("Server starting", zap.String("address", addr))

	go func() {
		if err := app.Listen(addr); err != nil {
			appLogger.Fatal("Server failed to start", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	appLogger.Info("Server shutting down gracefully...")
	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		appLogger.Error("Server shutdown failed", zap.Error(err))
	}
	appLogger.Info("Server stopped")
}

func reportSessions(registry *session.Registry, stop <-chan struct{}) {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			metrics.ActiveSessions.Set(float64(registry.Len()))
		}
	}
}
