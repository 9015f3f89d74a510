package index

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"runtime"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/firebase/genkit/go/ai"
	chromem "github.com/philippgille/chromem-go"

	"github.com/koopa0/tutor/internal/document"
	"github.com/koopa0/tutor/internal/log"
)

const (
	coursesCollection = "courses"
	chunksCollection  = "chunks"
)

// Local is the embedded chromem-go implementation of Index. It serves local
// mode (no PostgreSQL) and unit tests. With a non-empty path the store
// persists to disk and survives restarts.
type Local struct {
	db       *chromem.DB
	courses  *chromem.Collection
	chunks   *chromem.Collection
	embedder ai.Embedder
	embedFn  chromem.EmbeddingFunc

	matchThreshold float64
	logger         log.Logger

	mu      sync.RWMutex
	byTitle map[string]*document.Course
}

// LocalConfig configures a Local store.
type LocalConfig struct {
	// Path is the on-disk location. Empty means in-memory only.
	Path string

	Embedder ai.Embedder

	// MatchThreshold is the minimum cosine similarity for semantic course
	// name resolution. Zero disables the semantic tier.
	MatchThreshold float64

	Logger log.Logger
}

// NewLocal opens or creates a Local store.
func NewLocal(cfg LocalConfig) (*Local, error) {
	if cfg.Embedder == nil {
		return nil, errors.New("index: embedder is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.NewNop()
	}

	var db *chromem.DB
	var err error
	if cfg.Path == "" {
		db = chromem.NewDB()
	} else {
		db, err = chromem.NewPersistentDB(cfg.Path, false)
		if err != nil {
			return nil, fmt.Errorf("opening local store at %s: %w", cfg.Path, err)
		}
	}

	embedFn := newEmbeddingFunc(cfg.Embedder)
	l := &Local{
		db:             db,
		embedder:       cfg.Embedder,
		embedFn:        embedFn,
		matchThreshold: cfg.MatchThreshold,
		logger:         logger,
		byTitle:        make(map[string]*document.Course),
	}
	if err := l.openCollections(); err != nil {
		return nil, err
	}
	if err := l.reloadCourses(context.Background()); err != nil {
		return nil, err
	}
	return l, nil
}

// newEmbeddingFunc bridges a genkit ai.Embedder into chromem's callback.
// chromem normalizes vectors itself.
func newEmbeddingFunc(embedder ai.Embedder) chromem.EmbeddingFunc {
	return func(ctx context.Context, text string) ([]float32, error) {
		return embedText(ctx, embedder, text)
	}
}

func (l *Local) openCollections() error {
	var err error
	l.courses, err = l.db.GetOrCreateCollection(coursesCollection, nil, l.embedFn)
	if err != nil {
		return fmt.Errorf("opening courses collection: %w", err)
	}
	l.chunks, err = l.db.GetOrCreateCollection(chunksCollection, nil, l.embedFn)
	if err != nil {
		return fmt.Errorf("opening chunks collection: %w", err)
	}
	return nil
}

// reloadCourses rebuilds the in-memory course map from a persisted store.
// chromem has no document listing, so all course docs are pulled through a
// ranked query with a fixed unit probe vector.
func (l *Local) reloadCourses(ctx context.Context) error {
	count := l.courses.Count()
	if count == 0 {
		return nil
	}

	probe := make([]float32, VectorDimension)
	probe[0] = 1
	results, err := l.courses.QueryEmbedding(ctx, probe, count, nil, nil)
	if err != nil {
		return fmt.Errorf("reloading courses: %w", err)
	}
	for _, res := range results {
		course, err := courseFromMetadata(res.ID, res.Metadata)
		if err != nil {
			return err
		}
		l.byTitle[course.Title] = course
	}
	l.logger.Debug("reloaded courses", "count", len(results))
	return nil
}

// UpsertCourse stores course metadata. The title doubles as document content
// so semantic name resolution searches over title embeddings.
func (l *Local) UpsertCourse(ctx context.Context, course *document.Course) error {
	lessons, err := json.Marshal(course.Lessons)
	if err != nil {
		return fmt.Errorf("marshaling lessons for %q: %w", course.Title, err)
	}

	doc := chromem.Document{
		ID:      course.Title,
		Content: course.Title,
		Metadata: map[string]string{
			"link":       course.Link,
			"instructor": course.Instructor,
			"lessons":    string(lessons),
		},
	}
	if err := l.courses.AddDocuments(ctx, []chromem.Document{doc}, 1); err != nil {
		return fmt.Errorf("upserting course %q: %w", course.Title, err)
	}

	l.mu.Lock()
	l.byTitle[course.Title] = course
	l.mu.Unlock()
	return nil
}

// UpsertChunks embeds and stores content chunks.
func (l *Local) UpsertChunks(ctx context.Context, chunks []document.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	docs := make([]chromem.Document, len(chunks))
	for i, ch := range chunks {
		meta := map[string]string{
			"course_title": ch.CourseTitle,
			"lesson_link":  ch.LessonLink,
			"chunk_index":  strconv.Itoa(ch.Index),
		}
		if ch.LessonNumber != nil {
			meta["lesson_number"] = strconv.Itoa(*ch.LessonNumber)
		}
		docs[i] = chromem.Document{
			ID:       fmt.Sprintf("%s#%d", ch.CourseTitle, ch.Index),
			Content:  ch.Text,
			Metadata: meta,
		}
	}
	if err := l.chunks.AddDocuments(ctx, docs, runtime.NumCPU()); err != nil {
		return fmt.Errorf("upserting %d chunks: %w", len(chunks), err)
	}
	return nil
}

// Search returns up to k chunks ranked by cosine similarity.
func (l *Local) Search(ctx context.Context, query string, k int, courseFilter *string, lessonFilter *int) ([]Match, error) {
	total := l.chunks.Count()
	if total == 0 {
		return nil, nil
	}
	if k > total {
		k = total
	}

	where := map[string]string{}
	if courseFilter != nil {
		where["course_title"] = *courseFilter
	}
	if lessonFilter != nil {
		where["lesson_number"] = strconv.Itoa(*lessonFilter)
	}
	if len(where) == 0 {
		where = nil
	}

	results, err := l.chunks.Query(ctx, query, k, where, nil)
	if err != nil {
		return nil, fmt.Errorf("searching chunks: %w", err)
	}

	matches := make([]Match, 0, len(results))
	for _, res := range results {
		m := Match{
			Text:        res.Content,
			CourseTitle: res.Metadata["course_title"],
			LessonLink:  res.Metadata["lesson_link"],
			Score:       float64(res.Similarity),
		}
		if raw, ok := res.Metadata["lesson_number"]; ok {
			n, err := strconv.Atoi(raw)
			if err != nil {
				return nil, fmt.Errorf("corrupt lesson number %q on chunk %s", raw, res.ID)
			}
			m.LessonNumber = &n
		}
		matches = append(matches, m)
	}
	return matches, nil
}

// ResolveCourse resolves a possibly-partial course name: exact title,
// case-insensitive substring, then nearest title embedding above the
// configured threshold.
func (l *Local) ResolveCourse(ctx context.Context, name string) (string, bool, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", false, nil
	}

	l.mu.RLock()
	if _, ok := l.byTitle[name]; ok {
		l.mu.RUnlock()
		return name, true, nil
	}
	var best string
	lower := strings.ToLower(name)
	for title := range l.byTitle {
		if strings.Contains(strings.ToLower(title), lower) {
			if best == "" || len(title) < len(best) {
				best = title
			}
		}
	}
	l.mu.RUnlock()
	if best != "" {
		return best, true, nil
	}

	if l.matchThreshold <= 0 || l.courses.Count() == 0 {
		return "", false, nil
	}

	results, err := l.courses.Query(ctx, name, 1, nil, nil)
	if err != nil {
		return "", false, fmt.Errorf("resolving course %q: %w", name, err)
	}
	if len(results) == 0 || float64(results[0].Similarity) < l.matchThreshold {
		return "", false, nil
	}
	return results[0].ID, true, nil
}

// CourseCount returns the number of ingested courses.
func (l *Local) CourseCount(context.Context) (int, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.byTitle), nil
}

// CourseTitles returns all course titles in sorted order.
func (l *Local) CourseTitles(context.Context) ([]string, error) {
	l.mu.RLock()
	titles := make([]string, 0, len(l.byTitle))
	for title := range l.byTitle {
		titles = append(titles, title)
	}
	l.mu.RUnlock()
	sort.Strings(titles)
	return titles, nil
}

// GetCourse returns full course metadata for an exact title.
func (l *Local) GetCourse(_ context.Context, title string) (*document.Course, bool, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	course, ok := l.byTitle[title]
	if !ok {
		return nil, false, nil
	}
	cp := *course
	cp.Lessons = append([]document.Lesson(nil), course.Lessons...)
	return &cp, true, nil
}

// Clear drops and recreates both collections.
func (l *Local) Clear(context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, name := range []string{coursesCollection, chunksCollection} {
		if err := l.db.DeleteCollection(name); err != nil {
			return fmt.Errorf("clearing collection %s: %w", name, err)
		}
	}
	if err := l.openCollections(); err != nil {
		return err
	}
	l.byTitle = make(map[string]*document.Course)
	l.logger.Info("cleared index")
	return nil
}

func courseFromMetadata(title string, meta map[string]string) (*document.Course, error) {
	course := &document.Course{
		Title:      title,
		Link:       meta["link"],
		Instructor: meta["instructor"],
	}
	if raw := meta["lessons"]; raw != "" {
		if err := json.Unmarshal([]byte(raw), &course.Lessons); err != nil {
			return nil, fmt.Errorf("parsing lessons for %q: %w", title, err)
		}
	}
	return course, nil
}
