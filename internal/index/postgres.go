package index

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/firebase/genkit/go/ai"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/koopa0/tutor/internal/document"
	"github.com/koopa0/tutor/internal/log"
)

// Store is the PostgreSQL + pgvector implementation of Index.
//
// Embeddings are generated through the configured ai.Embedder at upsert and
// search time. All SQL is parameterized; course titles and user queries never
// reach the statement text.
type Store struct {
	pool           *pgxpool.Pool
	embedder       ai.Embedder
	matchThreshold float64
	logger         log.Logger
}

// StoreConfig configures a Store.
type StoreConfig struct {
	Pool     *pgxpool.Pool
	Embedder ai.Embedder

	// MatchThreshold is the minimum cosine similarity for semantic course
	// name resolution. Zero disables the semantic tier.
	MatchThreshold float64

	Logger log.Logger
}

// NewStore creates a Store. The pool's lifetime is managed by the caller.
func NewStore(cfg StoreConfig) (*Store, error) {
	if cfg.Pool == nil {
		return nil, errors.New("index: pool is required")
	}
	if cfg.Embedder == nil {
		return nil, errors.New("index: embedder is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.NewNop()
	}
	return &Store{
		pool:           cfg.Pool,
		embedder:       cfg.Embedder,
		matchThreshold: cfg.MatchThreshold,
		logger:         logger,
	}, nil
}

// UpsertCourse stores course metadata and the title embedding used for
// fuzzy course name resolution.
func (s *Store) UpsertCourse(ctx context.Context, course *document.Course) error {
	lessons, err := json.Marshal(course.Lessons)
	if err != nil {
		return fmt.Errorf("marshaling lessons for %q: %w", course.Title, err)
	}

	vec, err := embedText(ctx, s.embedder, course.Title)
	if err != nil {
		return fmt.Errorf("embedding course title %q: %w", course.Title, err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO courses (title, link, instructor, lessons, title_embedding)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (title) DO UPDATE SET
			link = EXCLUDED.link,
			instructor = EXCLUDED.instructor,
			lessons = EXCLUDED.lessons,
			title_embedding = EXCLUDED.title_embedding`,
		course.Title, course.Link, course.Instructor, lessons, pgvector.NewVector(vec))
	if err != nil {
		return fmt.Errorf("upserting course %q: %w", course.Title, err)
	}

	s.logger.Debug("upserted course", "title", course.Title, "lessons", len(course.Lessons))
	return nil
}

// UpsertChunks embeds chunk texts in one batch and inserts them.
func (s *Store) UpsertChunks(ctx context.Context, chunks []document.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	texts := make([]string, len(chunks))
	for i, ch := range chunks {
		texts[i] = ch.Text
	}
	vecs, err := embedTexts(ctx, s.embedder, texts)
	if err != nil {
		return fmt.Errorf("embedding %d chunks: %w", len(chunks), err)
	}

	batch := &pgx.Batch{}
	for i, ch := range chunks {
		batch.Queue(`
			INSERT INTO chunks (course_title, lesson_number, lesson_link, chunk_index, content, embedding)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (course_title, chunk_index) DO UPDATE SET
				lesson_number = EXCLUDED.lesson_number,
				lesson_link = EXCLUDED.lesson_link,
				content = EXCLUDED.content,
				embedding = EXCLUDED.embedding`,
			ch.CourseTitle, ch.LessonNumber, ch.LessonLink, ch.Index, ch.Text, pgvector.NewVector(vecs[i]))
	}

	results := s.pool.SendBatch(ctx, batch)
	defer results.Close()
	for range chunks {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("inserting chunks: %w", err)
		}
	}

	s.logger.Debug("upserted chunks", "count", len(chunks))
	return nil
}

// Search embeds the query and returns the k nearest chunks by cosine
// distance, optionally filtered by course title and lesson number.
func (s *Store) Search(ctx context.Context, query string, k int, courseFilter *string, lessonFilter *int) ([]Match, error) {
	vec, err := embedText(ctx, s.embedder, query)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}

	rows, err := s.pool.Query(ctx, `
		SELECT content, course_title, lesson_number, lesson_link,
		       1 - (embedding <=> $1) AS similarity
		FROM chunks
		WHERE ($2::text IS NULL OR course_title = $2)
		  AND ($3::int IS NULL OR lesson_number = $3)
		ORDER BY embedding <=> $1
		LIMIT $4`,
		pgvector.NewVector(vec), courseFilter, lessonFilter, k)
	if err != nil {
		return nil, fmt.Errorf("searching chunks: %w", err)
	}
	defer rows.Close()

	var matches []Match
	for rows.Next() {
		var m Match
		if err := rows.Scan(&m.Text, &m.CourseTitle, &m.LessonNumber, &m.LessonLink, &m.Score); err != nil {
			return nil, fmt.Errorf("scanning search row: %w", err)
		}
		matches = append(matches, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating search rows: %w", err)
	}
	return matches, nil
}

// ResolveCourse resolves a possibly-partial course name in three tiers:
// exact title, case-insensitive substring, then nearest title embedding
// above the configured similarity threshold.
func (s *Store) ResolveCourse(ctx context.Context, name string) (string, bool, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", false, nil
	}

	var title string
	err := s.pool.QueryRow(ctx,
		`SELECT title FROM courses WHERE title = $1`, name).Scan(&title)
	if err == nil {
		return title, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return "", false, fmt.Errorf("resolving course %q: %w", name, err)
	}

	// Substring tier. Shortest containing title wins so "MCP" prefers
	// "MCP: Build Rich-Context AI Apps" over longer incidental matches.
	err = s.pool.QueryRow(ctx, `
		SELECT title FROM courses
		WHERE title ILIKE '%' || $1 || '%'
		ORDER BY length(title)
		LIMIT 1`, name).Scan(&title)
	if err == nil {
		return title, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return "", false, fmt.Errorf("resolving course %q: %w", name, err)
	}

	if s.matchThreshold <= 0 {
		return "", false, nil
	}

	vec, err := embedText(ctx, s.embedder, name)
	if err != nil {
		return "", false, fmt.Errorf("embedding course name %q: %w", name, err)
	}

	var similarity float64
	err = s.pool.QueryRow(ctx, `
		SELECT title, 1 - (title_embedding <=> $1) AS similarity
		FROM courses
		ORDER BY title_embedding <=> $1
		LIMIT 1`, pgvector.NewVector(vec)).Scan(&title, &similarity)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("resolving course %q: %w", name, err)
	}
	if similarity < s.matchThreshold {
		s.logger.Debug("course resolution below threshold",
			"name", name, "best", title, "similarity", similarity)
		return "", false, nil
	}
	return title, true, nil
}

// CourseCount returns the number of ingested courses.
func (s *Store) CourseCount(ctx context.Context) (int, error) {
	var count int
	if err := s.pool.QueryRow(ctx, `SELECT count(*) FROM courses`).Scan(&count); err != nil {
		return 0, fmt.Errorf("counting courses: %w", err)
	}
	return count, nil
}

// CourseTitles returns all course titles in insertion-independent sorted order.
func (s *Store) CourseTitles(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT title FROM courses ORDER BY title`)
	if err != nil {
		return nil, fmt.Errorf("listing courses: %w", err)
	}
	defer rows.Close()

	var titles []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, fmt.Errorf("scanning title: %w", err)
		}
		titles = append(titles, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating titles: %w", err)
	}
	return titles, nil
}

// GetCourse returns full course metadata for an exact title.
func (s *Store) GetCourse(ctx context.Context, title string) (*document.Course, bool, error) {
	var course document.Course
	var lessons []byte
	err := s.pool.QueryRow(ctx,
		`SELECT title, link, instructor, lessons FROM courses WHERE title = $1`, title).
		Scan(&course.Title, &course.Link, &course.Instructor, &lessons)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("loading course %q: %w", title, err)
	}
	if err := json.Unmarshal(lessons, &course.Lessons); err != nil {
		return nil, false, fmt.Errorf("parsing lessons for %q: %w", title, err)
	}
	return &course, true, nil
}

// Clear removes all courses and chunks. Chunks cascade from courses.
func (s *Store) Clear(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM courses`); err != nil {
		return fmt.Errorf("clearing index: %w", err)
	}
	s.logger.Info("cleared index")
	return nil
}
