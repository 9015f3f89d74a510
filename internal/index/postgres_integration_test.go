package index

import (
	"context"
	"testing"

	"github.com/koopa0/tutor/internal/document"
	"github.com/koopa0/tutor/internal/log"
	"github.com/koopa0/tutor/internal/testutil"
)

// newStore spins up a pgvector container and returns a Store backed by it.
// Skipped when Docker is unavailable.
func newStore(t *testing.T, threshold float64) *Store {
	t.Helper()
	db, cleanup := testutil.SetupTestDB(t)
	t.Cleanup(cleanup)

	g := testutil.SetupGenkit(t)
	mock := testutil.NewMockEmbedder(VectorDimension)
	embedder := mock.RegisterEmbedder(g)

	store, err := NewStore(StoreConfig{
		Pool:           db.Pool,
		Embedder:       embedder,
		MatchThreshold: threshold,
		Logger:         log.NewNop(),
	})
	if err != nil {
		t.Fatal(err)
	}
	return store
}

func TestStore_RoundTrip(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}
	store := newStore(t, 0)
	ctx := context.Background()

	seedCourse(t, store, "Postgres Course",
		document.Lesson{Number: 1, Title: "Schemas", Link: "https://example.com/1"})
	seedChunks(t, store, "Postgres Course",
		"Relational schemas organize tables.",
		"Indexes accelerate lookups.")

	count, err := store.CourseCount(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if count != 1 {
		t.Fatalf("count: got %d", count)
	}

	matches, err := store.Search(ctx, "Indexes accelerate lookups.", 1, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(matches) != 1 {
		t.Fatalf("expected 1 match, got %d", len(matches))
	}
	if matches[0].Text != "Indexes accelerate lookups." {
		t.Errorf("top match: got %q", matches[0].Text)
	}
	if matches[0].Score < 0.99 {
		t.Errorf("identical text should score ~1, got %f", matches[0].Score)
	}

	course, ok, err := store.GetCourse(ctx, "Postgres Course")
	if err != nil || !ok {
		t.Fatalf("course lookup: ok=%v err=%v", ok, err)
	}
	if len(course.Lessons) != 1 || course.Lessons[0].Title != "Schemas" {
		t.Errorf("lessons: %+v", course.Lessons)
	}
}

func TestStore_FiltersAndResolve(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}
	store := newStore(t, 0)
	ctx := context.Background()

	seedCourse(t, store, "Compilers")
	seedCourse(t, store, "Distributed Systems")
	seedChunks(t, store, "Compilers", "Lexing turns bytes into tokens.", "Parsing builds trees.")
	seedChunks(t, store, "Distributed Systems", "Consensus is hard.")

	course := "Compilers"
	matches, err := store.Search(ctx, "tokens", 10, &course, nil)
	if err != nil {
		t.Fatal(err)
	}
	for _, m := range matches {
		if m.CourseTitle != "Compilers" {
			t.Errorf("course filter leaked %q", m.CourseTitle)
		}
	}

	matches, err = store.Search(ctx, "anything", 10, &course, intPtr(1))
	if err != nil {
		t.Fatal(err)
	}
	for _, m := range matches {
		if m.LessonNumber == nil || *m.LessonNumber != 1 {
			t.Errorf("lesson filter leaked %v", m.LessonNumber)
		}
	}

	title, ok, err := store.ResolveCourse(ctx, "Distributed Systems")
	if err != nil || !ok || title != "Distributed Systems" {
		t.Errorf("exact resolve: title=%q ok=%v err=%v", title, ok, err)
	}
	title, ok, err = store.ResolveCourse(ctx, "distributed")
	if err != nil || !ok || title != "Distributed Systems" {
		t.Errorf("substring resolve: title=%q ok=%v err=%v", title, ok, err)
	}
	_, ok, err = store.ResolveCourse(ctx, "no such course anywhere")
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Error("expected unresolvable name")
	}
}

func TestStore_ClearAndReingest(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}
	store := newStore(t, 0)
	ctx := context.Background()

	seedCourse(t, store, "Ephemeral")
	seedChunks(t, store, "Ephemeral", "Gone soon.")

	if err := store.Clear(ctx); err != nil {
		t.Fatal(err)
	}
	count, err := store.CourseCount(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if count != 0 {
		t.Fatalf("courses survived clear: %d", count)
	}
	matches, err := store.Search(ctx, "Gone soon.", 5, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(matches) != 0 {
		t.Errorf("chunks survived clear (cascade broken): %d", len(matches))
	}

	// Same content can be ingested again after a clear.
	seedCourse(t, store, "Ephemeral")
	seedChunks(t, store, "Ephemeral", "Gone soon.")
	count, err = store.CourseCount(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if count != 1 {
		t.Errorf("reingest after clear: count=%d", count)
	}
}
