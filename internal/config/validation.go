package config

import (
	"fmt"
	"os"
	"slices"
)

// Validate validates configuration values.
// Returns sentinel errors that can be checked with errors.Is().
func (c *Config) Validate() error {
	if c == nil {
		return ErrConfigNil
	}

	// 1. API Key validation (required for all AI operations)
	if os.Getenv("GEMINI_API_KEY") == "" {
		return fmt.Errorf("%w: GEMINI_API_KEY environment variable is required\n"+
			"Get your API key at: https://ai.google.dev/gemini-api/docs/api-key",
			ErrMissingAPIKey)
	}

	// 2. Model configuration validation
	if c.ModelName == "" {
		return fmt.Errorf("%w: model_name cannot be empty", ErrInvalidModelName)
	}
	if c.EmbedderModel == "" {
		return fmt.Errorf("%w: embedder_model cannot be empty", ErrInvalidEmbedderModel)
	}

	// 3. Chunking validation. Overlap must stay strictly below size or
	// ingestion cannot make forward progress.
	if c.ChunkSize < 1 {
		return fmt.Errorf("%w: chunk_size must be positive, got %d", ErrInvalidChunking, c.ChunkSize)
	}
	if c.ChunkOverlap < 0 || c.ChunkOverlap >= c.ChunkSize {
		return fmt.Errorf("%w: chunk_overlap must be in [0, chunk_size), got overlap=%d size=%d",
			ErrInvalidChunking, c.ChunkOverlap, c.ChunkSize)
	}

	// 4. Retrieval validation
	if c.MaxResults < 1 || c.MaxResults > 50 {
		return fmt.Errorf("%w: must be between 1 and 50, got %d", ErrInvalidMaxResults, c.MaxResults)
	}
	if c.MatchThreshold < 0.0 || c.MatchThreshold > 1.0 {
		return fmt.Errorf("%w: must be between 0.0 and 1.0, got %.2f", ErrInvalidMatchThreshold, c.MatchThreshold)
	}

	// 5. Conversation validation
	if c.MaxHistory < 0 {
		return fmt.Errorf("%w: must be non-negative, got %d", ErrInvalidMaxHistory, c.MaxHistory)
	}
	if c.MaxToolTurns < 1 || c.MaxToolTurns > 10 {
		return fmt.Errorf("%w: must be between 1 and 10, got %d", ErrInvalidMaxToolTurns, c.MaxToolTurns)
	}

	// 6. Storage validation
	switch c.Backend {
	case BackendPostgres:
		if c.PostgresHost == "" {
			return fmt.Errorf("%w: host cannot be empty", ErrInvalidPostgresHost)
		}
		if c.PostgresPort < 1 || c.PostgresPort > 65535 {
			return fmt.Errorf("%w: must be between 1 and 65535, got %d", ErrInvalidPostgresPort, c.PostgresPort)
		}
		if c.PostgresDBName == "" {
			return fmt.Errorf("%w: database name cannot be empty", ErrInvalidPostgresDBName)
		}
		validSSLModes := []string{"disable", "require", "verify-ca", "verify-full"}
		if !slices.Contains(validSSLModes, c.PostgresSSLMode) {
			return fmt.Errorf("%w: postgres_ssl_mode %q is not valid, must be one of: %v",
				ErrInvalidBackend, c.PostgresSSLMode, validSSLModes)
		}
	case BackendLocal:
		if c.LocalPath == "" {
			return fmt.Errorf("%w: local_path cannot be empty for the local backend", ErrInvalidBackend)
		}
	default:
		return fmt.Errorf("%w: %q is not supported, must be %q or %q",
			ErrInvalidBackend, c.Backend, BackendPostgres, BackendLocal)
	}

	// 7. Server validation
	if c.ServerPort < 1 || c.ServerPort > 65535 {
		return fmt.Errorf("%w: must be between 1 and 65535, got %d", ErrInvalidServerPort, c.ServerPort)
	}

	return nil
}
