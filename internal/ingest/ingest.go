// Package ingest loads a folder of course documents into the index.
//
// Ingestion is idempotent: a file whose parsed course title is already indexed
// is skipped, so re-running over the same folder adds nothing. One malformed
// file never aborts the folder; its error is recorded per file and processing
// continues.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gofrs/flock"

	"github.com/koopa0/tutor/internal/document"
	"github.com/koopa0/tutor/internal/index"
	"github.com/koopa0/tutor/internal/log"
)

// ErrLocked indicates another ingestion currently holds the folder lock.
var ErrLocked = errors.New("another ingestion is already running")

// lockFileName guards a docs folder against concurrent ingest processes.
const lockFileName = ".tutor.lock"

// FileResult reports what happened to one file of the folder.
type FileResult struct {
	Name        string
	CourseTitle string
	Chunks      int
	Skipped     bool
	Err         error
}

// Summary aggregates a whole folder run.
type Summary struct {
	CoursesAdded int
	ChunksAdded  int
	Files        []FileResult
}

// Ingestor runs folder ingestion against an index.
type Ingestor struct {
	index     index.Index
	processor *document.Processor
	logger    log.Logger
}

// New creates an Ingestor.
func New(idx index.Index, processor *document.Processor, logger log.Logger) *Ingestor {
	if logger == nil {
		logger = log.NewNop()
	}
	return &Ingestor{
		index:     idx,
		processor: processor,
		logger:    logger,
	}
}

// Ingest processes every course document directly under path.
//
// Only .txt and .md files are considered. clearExisting wipes the index before
// the run. The returned Summary is valid even on error: it covers the files
// processed up to the failure point.
func (i *Ingestor) Ingest(ctx context.Context, path string, clearExisting bool) (*Summary, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("ingest: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("ingest: %s is not a directory", path)
	}

	lock := flock.New(filepath.Join(path, lockFileName))
	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("ingest: acquiring folder lock: %w", err)
	}
	if !locked {
		return nil, ErrLocked
	}
	defer lock.Unlock() //nolint:errcheck

	if clearExisting {
		i.logger.Info("clearing index before ingestion")
		if err := i.index.Clear(ctx); err != nil {
			return nil, fmt.Errorf("ingest: clearing index: %w", err)
		}
	}

	existing, err := i.existingTitles(ctx)
	if err != nil {
		return nil, fmt.Errorf("ingest: listing indexed courses: %w", err)
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, fmt.Errorf("ingest: %w", err)
	}

	summary := &Summary{}
	for _, entry := range entries {
		if entry.IsDir() || !isCourseFile(entry.Name()) {
			continue
		}
		if err := ctx.Err(); err != nil {
			return summary, err
		}

		result := i.ingestFile(ctx, filepath.Join(path, entry.Name()), existing)
		summary.Files = append(summary.Files, result)
		if result.Err != nil {
			i.logger.Warn("file skipped after error", "file", result.Name, "error", result.Err)
			continue
		}
		if result.Skipped {
			i.logger.Debug("course already indexed", "file", result.Name, "course", result.CourseTitle)
			continue
		}
		summary.CoursesAdded++
		summary.ChunksAdded += result.Chunks
		i.logger.Info("course ingested",
			"file", result.Name, "course", result.CourseTitle, "chunks", result.Chunks)
	}

	return summary, nil
}

// ingestFile parses and indexes one file. existing is updated on success so
// duplicate titles within the same run are caught too.
func (i *Ingestor) ingestFile(ctx context.Context, path string, existing map[string]bool) FileResult {
	result := FileResult{Name: filepath.Base(path)}

	course, chunks, err := i.processor.Process(path)
	if err != nil {
		result.Err = err
		return result
	}
	result.CourseTitle = course.Title

	if existing[course.Title] {
		result.Skipped = true
		return result
	}

	if err := i.index.UpsertCourse(ctx, course); err != nil {
		result.Err = fmt.Errorf("indexing course: %w", err)
		return result
	}
	if err := i.index.UpsertChunks(ctx, chunks); err != nil {
		result.Err = fmt.Errorf("indexing chunks: %w", err)
		return result
	}

	existing[course.Title] = true
	result.Chunks = len(chunks)
	return result
}

func (i *Ingestor) existingTitles(ctx context.Context) (map[string]bool, error) {
	titles, err := i.index.CourseTitles(ctx)
	if err != nil {
		return nil, err
	}
	existing := make(map[string]bool, len(titles))
	for _, title := range titles {
		existing[title] = true
	}
	return existing, nil
}

func isCourseFile(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".txt", ".md":
		return true
	}
	return false
}
