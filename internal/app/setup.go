package app

import (
	"context"
	"fmt"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"github.com/firebase/genkit/go/plugins/googlegenai"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/time/rate"

	"github.com/koopa0/tutor/db"
	"github.com/koopa0/tutor/internal/agent"
	"github.com/koopa0/tutor/internal/chunk"
	"github.com/koopa0/tutor/internal/config"
	"github.com/koopa0/tutor/internal/document"
	"github.com/koopa0/tutor/internal/index"
	"github.com/koopa0/tutor/internal/ingest"
	"github.com/koopa0/tutor/internal/log"
	"github.com/koopa0/tutor/internal/session"
	"github.com/koopa0/tutor/internal/tools"
)

// Model-call pacing shared by every session. Gemini free-tier quotas are per
// project, not per session.
const (
	modelCallsPerSecond = 2
	modelCallBurst      = 4
)

// Setup creates and initializes the application from a validated config.
// Returns an App with embedded cleanup; call Close() to release.
func Setup(ctx context.Context, cfg *config.Config, logger log.Logger) (_ *App, retErr error) {
	if cfg == nil {
		return nil, config.ErrConfigNil
	}
	if logger == nil {
		logger = log.NewNop()
	}

	a := &App{Config: cfg, Logger: logger}

	// On error, release everything already initialized.
	defer func() {
		if retErr != nil {
			if err := a.Close(); err != nil {
				logger.Warn("cleanup during setup failure", "error", err)
			}
		}
	}()

	g, err := provideGenkit(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	a.Genkit = g

	a.Model = genkit.LookupModel(g, cfg.FullModelName())
	if a.Model == nil {
		return nil, fmt.Errorf("model %q not found for provider %q", cfg.ModelName, cfg.Provider)
	}

	a.Embedder = googlegenai.GoogleAIEmbedder(g, cfg.EmbedderModel)
	if a.Embedder == nil {
		return nil, fmt.Errorf("embedder %q not found for provider %q", cfg.EmbedderModel, cfg.Provider)
	}

	idx, pool, err := provideIndex(ctx, cfg, a.Embedder, logger)
	if err != nil {
		return nil, err
	}
	a.Index = idx
	a.Pool = pool

	a.Sessions = session.NewStore(cfg.MaxHistory)

	registry, err := provideTools(g, idx, cfg, logger)
	if err != nil {
		return nil, err
	}
	a.Registry = registry

	orchestrator, err := agent.New(agent.Config{
		Genkit:       g,
		Model:        a.Model,
		Index:        idx,
		Registry:     registry,
		Sessions:     a.Sessions,
		MaxToolTurns: cfg.MaxToolTurns,
		Limiter:      rate.NewLimiter(rate.Limit(modelCallsPerSecond), modelCallBurst),
		Logger:       logger.With("component", "agent"),
	})
	if err != nil {
		return nil, err
	}
	a.Orchestrator = orchestrator

	chunker, err := chunk.New(cfg.ChunkSize, cfg.ChunkOverlap)
	if err != nil {
		return nil, err
	}
	a.Ingestor = ingest.New(idx, document.NewProcessor(chunker), logger.With("component", "ingest"))

	return a, nil
}

// provideGenkit initializes genkit with the configured AI provider plugin.
func provideGenkit(ctx context.Context, cfg *config.Config, logger log.Logger) (*genkit.Genkit, error) {
	g := genkit.Init(ctx, genkit.WithPlugins(&googlegenai.GoogleAI{}))
	if g == nil {
		return nil, fmt.Errorf("initializing genkit with %s provider", cfg.Provider)
	}
	logger.Info("genkit initialized", "provider", cfg.Provider, "model", cfg.ModelName)
	return g, nil
}

// provideIndex selects the index backend. Postgres gets a pooled connection
// after migrations; the local backend needs no external service.
func provideIndex(ctx context.Context, cfg *config.Config, embedder ai.Embedder, logger log.Logger) (index.Index, *pgxpool.Pool, error) {
	switch cfg.Backend {
	case config.BackendPostgres:
		pool, err := provideDBPool(ctx, cfg)
		if err != nil {
			return nil, nil, err
		}
		store, err := index.NewStore(index.StoreConfig{
			Pool:           pool,
			Embedder:       embedder,
			MatchThreshold: cfg.MatchThreshold,
			Logger:         logger.With("component", "index"),
		})
		if err != nil {
			pool.Close()
			return nil, nil, err
		}
		return store, pool, nil

	default: // config.BackendLocal, enforced by Validate
		local, err := index.NewLocal(index.LocalConfig{
			Path:           cfg.LocalPath,
			Embedder:       embedder,
			MatchThreshold: cfg.MatchThreshold,
			Logger:         logger.With("component", "index"),
		})
		if err != nil {
			return nil, nil, err
		}
		return local, nil, nil
	}
}

// provideDBPool runs migrations and opens a pgx pool with sane limits.
func provideDBPool(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	if err := db.Migrate(cfg.PostgresURL()); err != nil {
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.PostgresURL())
	if err != nil {
		return nil, fmt.Errorf("parsing connection config: %w", err)
	}
	poolCfg.MaxConns = 10
	poolCfg.MinConns = 2
	poolCfg.MaxConnLifetime = 30 * time.Minute
	poolCfg.MaxConnIdleTime = 5 * time.Minute
	poolCfg.HealthCheckPeriod = 1 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	pingCtx, pingCancel := context.WithTimeout(ctx, 5*time.Second)
	defer pingCancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	return pool, nil
}

// provideTools builds the registry with the search and outline tools.
func provideTools(g *genkit.Genkit, idx index.Index, cfg *config.Config, logger log.Logger) (*tools.Registry, error) {
	registry := tools.NewRegistry(logger.With("component", "tools"))

	if err := registry.Register(tools.NewSearchTool(g, idx, cfg.MaxResults, logger)); err != nil {
		return nil, fmt.Errorf("registering search tool: %w", err)
	}
	if err := registry.Register(tools.NewOutlineTool(g, idx, logger)); err != nil {
		return nil, fmt.Errorf("registering outline tool: %w", err)
	}
	return registry, nil
}
