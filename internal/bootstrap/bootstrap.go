package bootstrap

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"time"

	"github.com/kirillkom/filings-rag-assistant/internal/config"
	"github.com/kirillkom/filings-rag-assistant/internal/core/domain"
	"github.com/kirillkom/filings-rag-assistant/internal/core/ports"
	"github.com/kirillkom/filings-rag-assistant/internal/core/usecase"
	"github.com/kirillkom/filings-rag-assistant/internal/infrastructure/auth"
	"github.com/kirillkom/filings-rag-assistant/internal/infrastructure/llm/ollama"
	"github.com/kirillkom/filings-rag-assistant/internal/infrastructure/metadata/table"
	"github.com/kirillkom/filings-rag-assistant/internal/infrastructure/queue/nats"
	"github.com/kirillkom/filings-rag-assistant/internal/infrastructure/repository/postgres"
	"github.com/kirillkom/filings-rag-assistant/internal/infrastructure/resilience"
	"github.com/kirillkom/filings-rag-assistant/internal/infrastructure/vector/qdrant"
	"github.com/kirillkom/filings-rag-assistant/internal/infrastructure/webpage"
	"github.com/kirillkom/filings-rag-assistant/internal/infrastructure/websearch/tavily"
	"github.com/kirillkom/filings-rag-assistant/internal/observability/metrics"
)

type App struct {
	Config  config.Config
	Logger  *slog.Logger
	Metrics *metrics.HTTPServerMetrics

	Sessions *postgres.SessionRepository
	Queue    *nats.Queue

	QueryUC   *usecase.QueryUseCase
	AgentUC   *usecase.AgentUseCase
	HistoryUC *usecase.HistoryUseCase
	Auth      *auth.TokenService

	closeFn func()
}

func New(ctx context.Context, cfg config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	m := metrics.NewHTTPServerMetrics("api")
	executor := NewExecutor(cfg, logger, m.RecordBreakerState)

	sessions, closeDB, err := OpenSessionStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	queue := ConnectTurnQueue(cfg, executor, logger)
	var publisher ports.TurnEventPublisher
	if queue != nil {
		publisher = queue
	}

	llm := ollama.New(ollama.Options{
		BaseURL:    cfg.OllamaURL,
		ChatModel:  cfg.OllamaChatModel,
		EmbedModel: cfg.OllamaEmbedModel,
		Timeout:    time.Duration(cfg.OllamaTimeoutSeconds) * time.Second,
		Executor:   executor,
		Usage:      m,
	})
	embedder := ollama.NewEmbedder(llm)

	vectorDB := qdrant.New(qdrant.Options{
		BaseURL:     cfg.QdrantURL,
		Collection:  cfg.QdrantCollection,
		APIKey:      cfg.QdrantAPIKey,
		ContentKey:  cfg.QdrantContentKey,
		MetadataKey: cfg.QdrantMetadataKey,
		Executor:    executor,
	})
	if err := vectorDB.Ping(ctx); err != nil {
		logger.Warn("qdrant_unreachable", "collection", cfg.QdrantCollection, "error", err)
	}

	companies := loadCompanyTable(cfg, logger)
	fetcher := webpage.New(webpage.Options{
		Timeout:  time.Duration(cfg.PageFetchTimeoutSeconds) * time.Second,
		MaxChars: cfg.PageFetchMaxChars,
		CacheTTL: time.Duration(cfg.PageCacheTTLSeconds) * time.Second,
		Executor: resilience.NewExecutor(executorConfig(cfg).NoRetry(), resilience.WithLogger(logger)),
		Logger:   logger,
	})
	search := tavily.New(tavily.Options{
		BaseURL:    cfg.TavilyURL,
		APIKey:     cfg.TavilyAPIKey,
		MaxResults: cfg.TavilyMaxResults,
		Executor:   executor,
	})
	if cfg.TavilyAPIKey == "" {
		logger.Warn("tavily_api_key_missing", "effect", "web search fallback returns error-shaped evidence")
	}

	retriever := usecase.NewSelfQueryRetriever(llm, embedder, vectorDB, cfg.RetrieverTopK, logger)
	grader := usecase.NewDocumentGrader(llm, logger, m)
	metadata := usecase.NewCompanyMetadataLookup(companies, fetcher, logger)
	web := usecase.NewWebSearchFallback(search)

	router := usecase.NewInstrumentedRouter(
		usecase.NewCascadeRouter(llm, retriever, grader, metadata, web, logger),
		logger, m,
	)
	generator := usecase.NewInstrumentedGenerator(usecase.NewGroundedAnswerGenerator(llm, logger), logger, m)

	queryUC := usecase.NewQueryUseCase(retriever, router, generator, sessions, publisher, cfg.HistoryWindow, logger)
	agentUC := usecase.NewAgentUseCase(usecase.AgentDeps{
		LLM:       llm,
		Retriever: retriever,
		Grader:    grader,
		Metadata:  metadata,
		Web:       web,
		Router:    router,
		Generator: generator,
		Sessions:  sessions,
	}, domain.AgentLimits{
		MaxIterations:  cfg.AgentMaxIterations,
		Timeout:        time.Duration(cfg.AgentTimeoutSeconds) * time.Second,
		PlannerTimeout: time.Duration(cfg.AgentPlannerTimeoutSeconds) * time.Second,
		ToolTimeout:    time.Duration(cfg.AgentToolTimeoutSeconds) * time.Second,
	}, logger, m)

	tokens, err := NewTokenService(cfg, logger)
	if err != nil {
		closeDB()
		if queue != nil {
			queue.Close()
		}
		return nil, err
	}

	return &App{
		Config:  cfg,
		Logger:  logger,
		Metrics: m,

		Sessions: sessions,
		Queue:    queue,

		QueryUC:   queryUC,
		AgentUC:   agentUC,
		HistoryUC: usecase.NewHistoryUseCase(sessions),
		Auth:      tokens,

		closeFn: func() {
			if queue != nil {
				queue.Close()
			}
			closeDB()
		},
	}, nil
}

func (a *App) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}

// OpenSessionStore connects to Postgres and makes sure the session schema exists.
func OpenSessionStore(ctx context.Context, cfg config.Config) (*postgres.SessionRepository, func(), error) {
	db, err := postgres.OpenDB(ctx, cfg.PostgresDSN, postgres.PoolOptions{MaxOpenConns: cfg.PostgresMaxOpenConns})
	if err != nil {
		return nil, nil, fmt.Errorf("open postgres: %w", err)
	}
	repo := postgres.NewSessionRepository(db)
	if err := repo.EnsureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("ensure schema: %w", err)
	}
	return repo, func() { _ = db.Close() }, nil
}

// ConnectTurnQueue returns nil when turn events are disabled or NATS cannot be reached.
func ConnectTurnQueue(cfg config.Config, executor *resilience.Executor, logger *slog.Logger) *nats.Queue {
	if !cfg.TurnEventsEnabled {
		return nil
	}
	queue, err := nats.Connect(cfg.NATSURL, cfg.NATSSubject, nats.Options{
		Executor: executor,
		Logger:   logger,
	})
	if err != nil {
		logger.Warn("turn_events_disabled", "url", cfg.NATSURL, "error", err)
		return nil
	}
	return queue
}

func NewExecutor(cfg config.Config, logger *slog.Logger, listener resilience.StateListener) *resilience.Executor {
	return resilience.NewExecutor(
		executorConfig(cfg),
		resilience.WithLogger(logger),
		resilience.WithStateListener(listener),
	)
}

func executorConfig(cfg config.Config) resilience.Config {
	rc := resilience.DefaultConfig()
	if cfg.ResilienceRetryMaxAttempts > 0 {
		rc.RetryMaxAttempts = cfg.ResilienceRetryMaxAttempts
	}
	rc.BreakerEnabled = cfg.ResilienceBreakerEnabled
	return rc
}

// NewTokenService falls back to an ephemeral secret and the admin/admin user
// when nothing is configured, logging a warning for each.
func NewTokenService(cfg config.Config, logger *slog.Logger) (*auth.TokenService, error) {
	secret := cfg.AuthTokenSecret
	if secret == "" {
		buf := make([]byte, 32)
		if _, err := rand.Read(buf); err != nil {
			return nil, fmt.Errorf("generate token secret: %w", err)
		}
		secret = hex.EncodeToString(buf)
		logger.Warn("auth_token_secret_missing", "effect", "tokens do not survive restarts")
	}

	users, err := auth.ParseUsers(cfg.AuthUsers)
	if err != nil {
		return nil, err
	}
	if len(users) == 0 {
		hash, err := auth.HashPassword("admin")
		if err != nil {
			return nil, err
		}
		users = map[string]string{"admin": hash}
		logger.Warn("auth_users_missing", "effect", "default admin credentials are active")
	}

	return auth.NewTokenService(auth.Options{
		Secret: secret,
		TTL:    time.Duration(cfg.AuthTokenTTLMinutes) * time.Minute,
		Users:  users,
	})
}

func loadCompanyTable(cfg config.Config, logger *slog.Logger) *table.Table {
	companies, err := table.Load(cfg.MetadataTablePath)
	if err != nil {
		logger.Warn("metadata_table_unavailable", "path", cfg.MetadataTablePath, "error", err)
		return table.New(nil)
	}
	logger.Info("metadata_table_loaded", "path", cfg.MetadataTablePath, "rows", companies.Len())
	return companies
}
