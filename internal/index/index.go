// Package index provides semantic retrieval over ingested course material.
//
// Two implementations back the same interface: a PostgreSQL + pgvector store
// for shared deployments, and an embedded chromem store for local mode and
// tests. Both generate embeddings through a genkit ai.Embedder.
package index

import (
	"context"
	"errors"
	"fmt"

	"github.com/firebase/genkit/go/ai"

	"github.com/koopa0/tutor/internal/document"
)

// VectorDimension is the embedding width stored in the index.
// gemini-embedding-001 truncates to 768 via OutputDimensionality; the
// pgvector schema and the mock embedder both use this width.
const VectorDimension = 768

// ErrEmptyEmbedding indicates the embedder returned no vector for an input.
var ErrEmptyEmbedding = errors.New("embedder returned empty embedding")

// Match is one retrieval hit. LessonNumber is nil for content that precedes
// the first lesson marker of its course.
type Match struct {
	Text         string
	CourseTitle  string
	LessonNumber *int
	LessonLink   string
	Score        float64
}

// Index is the retrieval surface consumed by tools, ingestion and the agent.
//
// Implementations are safe for concurrent use. Writes (UpsertCourse,
// UpsertChunks, Clear) are serialized by the ingestion layer; reads may run
// concurrently with each other.
type Index interface {
	// UpsertCourse stores course metadata. Re-upserting an existing title
	// replaces its metadata.
	UpsertCourse(ctx context.Context, course *document.Course) error

	// UpsertChunks embeds and stores content chunks.
	UpsertChunks(ctx context.Context, chunks []document.Chunk) error

	// Search returns up to k chunks most similar to query, optionally
	// restricted to one course title and one lesson number.
	Search(ctx context.Context, query string, k int, courseFilter *string, lessonFilter *int) ([]Match, error)

	// ResolveCourse maps a possibly-partial course name to an ingested
	// title. ok is false when nothing matches confidently enough.
	ResolveCourse(ctx context.Context, name string) (title string, ok bool, err error)

	// CourseCount returns the number of ingested courses.
	CourseCount(ctx context.Context) (int, error)

	// CourseTitles returns all ingested course titles.
	CourseTitles(ctx context.Context) ([]string, error)

	// GetCourse returns full course metadata for an exact title.
	GetCourse(ctx context.Context, title string) (*document.Course, bool, error)

	// Clear removes every course and chunk.
	Clear(ctx context.Context) error
}

// embedTexts generates one embedding per input text in a single request.
func embedTexts(ctx context.Context, embedder ai.Embedder, texts []string) ([][]float32, error) {
	docs := make([]*ai.Document, len(texts))
	for i, t := range texts {
		docs[i] = &ai.Document{Content: []*ai.Part{ai.NewTextPart(t)}}
	}

	resp, err := embedder.Embed(ctx, &ai.EmbedRequest{Input: docs})
	if err != nil {
		return nil, fmt.Errorf("generating embeddings: %w", err)
	}
	if len(resp.Embeddings) != len(texts) {
		return nil, fmt.Errorf("expected %d embeddings, got %d", len(texts), len(resp.Embeddings))
	}

	out := make([][]float32, len(texts))
	for i, e := range resp.Embeddings {
		if len(e.Embedding) == 0 {
			return nil, fmt.Errorf("%w: input %d", ErrEmptyEmbedding, i)
		}
		out[i] = e.Embedding
	}
	return out, nil
}

// embedText generates a single embedding.
func embedText(ctx context.Context, embedder ai.Embedder, text string) ([]float32, error) {
	vecs, err := embedTexts(ctx, embedder, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}
