// Package api exposes the query pipeline over a small JSON HTTP surface.
//
// The transport stays thin: handlers validate input, call into the
// orchestrator or stores, and map error kinds to status codes. All domain
// behavior lives below this package.
package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/koopa0/tutor/internal/agent"
	"github.com/koopa0/tutor/internal/log"
	"github.com/koopa0/tutor/internal/session"
)

// Answerer resolves one query within a session. Satisfied by
// agent.Orchestrator; narrowed here so handlers can be tested with a stub.
type Answerer interface {
	Answer(ctx context.Context, query, sessionID string) (*agent.Response, error)
}

// CourseLister reports what the index currently holds. Satisfied by any
// index.Index implementation.
type CourseLister interface {
	CourseCount(ctx context.Context) (int, error)
	CourseTitles(ctx context.Context) ([]string, error)
}

// ServerConfig contains configuration for creating the API server.
type ServerConfig struct {
	Answerer    Answerer       // Required
	Courses     CourseLister   // Required
	Sessions    *session.Store // Required
	CORSOrigins []string       // Allowed origins for CORS
	Logger      log.Logger
}

// Server is the JSON API HTTP server.
type Server struct {
	mux *http.ServeMux
}

// NewServer creates a server with all routes configured.
func NewServer(cfg ServerConfig) (*Server, error) {
	switch {
	case cfg.Answerer == nil:
		return nil, errors.New("api: answerer is required")
	case cfg.Courses == nil:
		return nil, errors.New("api: course lister is required")
	case cfg.Sessions == nil:
		return nil, errors.New("api: session store is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = log.NewNop()
	}

	qh := &queryHandler{answerer: cfg.Answerer, sessions: cfg.Sessions, logger: logger}
	ch := &coursesHandler{courses: cfg.Courses, logger: logger}
	sh := &sessionHandler{sessions: cfg.Sessions, logger: logger}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/query", qh.query)
	mux.HandleFunc("GET /api/courses", ch.list)
	mux.HandleFunc("POST /api/sessions", sh.create)
	mux.HandleFunc("DELETE /api/sessions/{id}", sh.clear)

	// Middleware stack, outermost first:
	//   Recovery -> Logging -> CORS -> Routes
	var handler http.Handler = mux
	handler = corsMiddleware(cfg.CORSOrigins)(handler)
	handler = loggingMiddleware(logger)(handler)
	handler = recoveryMiddleware(logger)(handler)

	// Health probe bypasses the middleware stack.
	topMux := http.NewServeMux()
	topMux.HandleFunc("GET /healthz", health)
	topMux.Handle("/", handler)

	return &Server{mux: topMux}, nil
}

// Handler returns the server as an http.Handler.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// health is a liveness probe for container orchestrators.
func health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
