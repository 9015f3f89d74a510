// Package app provides application initialization and dependency wiring.
//
// App is the container that Setup assembles: genkit, the index backend, the
// session store, the tool registry, the orchestrator, and the ingestor. Call
// Close to release resources in reverse order of construction.
package app

import (
	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/koopa0/tutor/internal/agent"
	"github.com/koopa0/tutor/internal/config"
	"github.com/koopa0/tutor/internal/index"
	"github.com/koopa0/tutor/internal/ingest"
	"github.com/koopa0/tutor/internal/log"
	"github.com/koopa0/tutor/internal/session"
	"github.com/koopa0/tutor/internal/tools"
)

// App is the core application container.
type App struct {
	Config *config.Config

	Genkit   *genkit.Genkit
	Model    ai.Model
	Embedder ai.Embedder

	// Pool is set only for the postgres backend.
	Pool  *pgxpool.Pool
	Index index.Index

	Sessions     *session.Store
	Registry     *tools.Registry
	Orchestrator *agent.Orchestrator
	Ingestor     *ingest.Ingestor

	Logger log.Logger
}

// Close gracefully releases all resources.
func (a *App) Close() error {
	if a.Logger != nil {
		a.Logger.Info("shutting down application")
	}

	if a.Pool != nil {
		a.Pool.Close()
		a.Logger.Info("database pool closed")
	}
	return nil
}
