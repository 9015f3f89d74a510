package agent

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/firebase/genkit/go/ai"
	"go.uber.org/goleak"

	"github.com/koopa0/tutor/internal/document"
	"github.com/koopa0/tutor/internal/index"
	"github.com/koopa0/tutor/internal/log"
	"github.com/koopa0/tutor/internal/session"
	"github.com/koopa0/tutor/internal/testutil"
	"github.com/koopa0/tutor/internal/tools"
)

// TestMain guards the orchestrator's goroutines. Genkit initialization
// installs signal handling that stays alive for the process, so those
// goroutines are filtered out.
func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		goleak.IgnoreAnyFunction("os/signal.NotifyContext.func1"),
		goleak.IgnoreTopFunction("os/signal.signal_recv"),
		goleak.IgnoreTopFunction("os/signal.loop"),
	)
}

func intPtr(n int) *int { return &n }

type fixture struct {
	orchestrator *Orchestrator
	llm          *testutil.MockLLM
	sessions     *session.Store
	index        index.Index
}

// newFixture wires an orchestrator over an embedded index and a mock model.
// seed controls whether course material is ingested.
func newFixture(t *testing.T, seed bool) *fixture {
	t.Helper()
	g := testutil.SetupGenkit(t)

	mockEmbed := testutil.NewMockEmbedder(index.VectorDimension)
	embedder := mockEmbed.RegisterEmbedder(g)
	idx, err := index.NewLocal(index.LocalConfig{Embedder: embedder, Logger: log.NewNop()})
	if err != nil {
		t.Fatal(err)
	}

	if seed {
		ctx := context.Background()
		course := &document.Course{
			Title: "Building RAG Applications",
			Link:  "https://example.com/rag",
			Lessons: []document.Lesson{
				{Number: 1, Title: "Chunking", Link: "https://example.com/rag/1"},
			},
		}
		if err := idx.UpsertCourse(ctx, course); err != nil {
			t.Fatal(err)
		}
		if err := idx.UpsertChunks(ctx, []document.Chunk{
			{Text: "Chunking splits documents into overlapping windows.", CourseTitle: course.Title,
				LessonNumber: intPtr(1), LessonLink: "https://example.com/rag/1", Index: 0},
		}); err != nil {
			t.Fatal(err)
		}
	}

	registry := tools.NewRegistry(log.NewNop())
	if err := registry.Register(tools.NewSearchTool(g, idx, 5, log.NewNop())); err != nil {
		t.Fatal(err)
	}
	if err := registry.Register(tools.NewOutlineTool(g, idx, log.NewNop())); err != nil {
		t.Fatal(err)
	}

	llm := testutil.NewMockLLM("fallback answer")
	model := llm.RegisterModel(g)
	sessions := session.NewStore(2)

	orch, err := New(Config{
		Genkit:       g,
		Model:        model,
		Index:        idx,
		Registry:     registry,
		Sessions:     sessions,
		MaxToolTurns: 2,
		Logger:       log.NewNop(),
	})
	if err != nil {
		t.Fatal(err)
	}

	return &fixture{orchestrator: orch, llm: llm, sessions: sessions, index: idx}
}

func TestAnswer_DirectWithoutTools(t *testing.T) {
	f := newFixture(t, true)
	f.llm.AddResponse("what is go", "Go is a programming language.")

	id := f.sessions.Create()
	resp, err := f.orchestrator.Answer(context.Background(), "What is Go?", id)
	if err != nil {
		t.Fatal(err)
	}
	if resp.Answer != "Go is a programming language." {
		t.Errorf("answer: got %q", resp.Answer)
	}
	if len(resp.Sources) != 0 {
		t.Errorf("expected no sources, got %+v", resp.Sources)
	}
	if calls := f.llm.Calls(); len(calls) != 1 {
		t.Errorf("expected 1 model call, got %d", len(calls))
	}
	turns := f.sessions.History(id)
	if len(turns) != 2 || turns[1].Content != "Go is a programming language." {
		t.Errorf("exchange not recorded: %+v", turns)
	}
}

func TestAnswer_ToolLoopCollectsSources(t *testing.T) {
	f := newFixture(t, true)
	f.llm.AddToolResponse("chunking", []*ai.ToolRequest{{
		Name:  tools.SearchToolName,
		Input: map[string]any{"query": "Chunking splits documents into overlapping windows."},
	}}, "")
	f.llm.AddResponse("chunking", "Chunking splits documents into overlapping windows for retrieval.")

	id := f.sessions.Create()
	resp, err := f.orchestrator.Answer(context.Background(), "How does chunking work?", id)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(resp.Answer, "Chunking splits documents") {
		t.Errorf("answer: got %q", resp.Answer)
	}
	if len(resp.Sources) == 0 {
		t.Fatal("expected sources from the search tool")
	}
	if resp.Sources[0].Text != "Building RAG Applications - Lesson 1" {
		t.Errorf("source text: got %q", resp.Sources[0].Text)
	}
	if resp.Sources[0].Link != "https://example.com/rag/1" {
		t.Errorf("source link: got %q", resp.Sources[0].Link)
	}
	if calls := f.llm.Calls(); len(calls) != 2 {
		t.Errorf("expected 2 model calls (tool turn + finalize), got %d", len(calls))
	}
}

func TestAnswer_SystemPromptSentOncePerCall(t *testing.T) {
	f := newFixture(t, true)
	f.llm.AddToolResponse("chunking", []*ai.ToolRequest{{
		Name:  tools.SearchToolName,
		Input: map[string]any{"query": "chunking"},
	}}, "")
	f.llm.AddResponse("chunking", "Chunking splits documents into overlapping windows.")

	id := f.sessions.Create()
	if _, err := f.orchestrator.Answer(context.Background(), "How does chunking work?", id); err != nil {
		t.Fatal(err)
	}

	calls := f.llm.Calls()
	if len(calls) != 2 {
		t.Fatalf("expected 2 model calls, got %d", len(calls))
	}
	// The follow-up generation after a tool turn must not accumulate a
	// second copy of the system prompt from the carried history.
	for i, call := range calls {
		if call.SystemMessages != 1 {
			t.Errorf("call %d: got %d system messages, want 1", i, call.SystemMessages)
		}
	}
}

func TestAnswer_UnknownToolContinuesLoop(t *testing.T) {
	f := newFixture(t, true)
	f.llm.AddToolResponse("weather", []*ai.ToolRequest{{
		Name:  "get_weather",
		Input: map[string]any{"city": "Taipei"},
	}}, "")
	f.llm.AddResponse("weather", "I cannot check the weather.")

	id := f.sessions.Create()
	resp, err := f.orchestrator.Answer(context.Background(), "What is the weather?", id)
	if err != nil {
		t.Fatalf("unknown tool must not abort the query: %v", err)
	}
	if resp.Answer != "I cannot check the weather." {
		t.Errorf("answer: got %q", resp.Answer)
	}
}

func TestAnswer_ToolTurnCapForcesFinalization(t *testing.T) {
	f := newFixture(t, true)
	// Two rounds of tool requests, one per permitted turn.
	for range 2 {
		f.llm.AddToolResponse("keep searching", []*ai.ToolRequest{{
			Name:  tools.SearchToolName,
			Input: map[string]any{"query": "windows"},
		}}, "")
	}

	id := f.sessions.Create()
	resp, err := f.orchestrator.Answer(context.Background(), "keep searching please", id)
	if err != nil {
		t.Fatal(err)
	}
	if resp.Answer != "fallback answer" {
		t.Errorf("answer: got %q", resp.Answer)
	}

	calls := f.llm.Calls()
	if len(calls) != 3 {
		t.Fatalf("expected 3 model calls (2 tool turns + forced finalize), got %d", len(calls))
	}
	if !calls[0].HadTools || !calls[1].HadTools {
		t.Error("tool turns must advertise tools")
	}
	if calls[2].HadTools {
		t.Error("finalization turn must not advertise tools")
	}
}

func TestAnswer_EmptyIndexShortCircuit(t *testing.T) {
	f := newFixture(t, false)

	id := f.sessions.Create()
	resp, err := f.orchestrator.Answer(context.Background(), "anything at all", id)
	if err != nil {
		t.Fatal(err)
	}
	if resp.Answer != "No course materials loaded." {
		t.Errorf("answer: got %q", resp.Answer)
	}
	if calls := f.llm.Calls(); len(calls) != 0 {
		t.Errorf("expected no model calls, got %d", len(calls))
	}
}

func TestAnswer_ModelFailure(t *testing.T) {
	f := newFixture(t, true)
	f.llm.FailWith(errors.New("upstream 500"))

	id := f.sessions.Create()
	_, err := f.orchestrator.Answer(context.Background(), "anything", id)
	if !errors.Is(err, ErrModelCall) {
		t.Fatalf("expected ErrModelCall, got %v", err)
	}
	if turns := f.sessions.History(id); len(turns) != 0 {
		t.Errorf("failed query must not be recorded: %+v", turns)
	}
}

func TestAnswer_CanceledContextSkipsRecording(t *testing.T) {
	f := newFixture(t, true)
	f.llm.AddResponse("anything", "too late")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	id := f.sessions.Create()
	_, err := f.orchestrator.Answer(ctx, "anything", id)
	if err == nil {
		t.Fatal("expected error from canceled context")
	}
	if turns := f.sessions.History(id); len(turns) != 0 {
		t.Errorf("canceled query must not be recorded: %+v", turns)
	}
}

func TestAnswer_HistoryCarriesAcrossQueries(t *testing.T) {
	f := newFixture(t, true)
	f.llm.AddResponse("first question", "first answer")
	f.llm.AddResponse("second question", "second answer")

	id := f.sessions.Create()
	if _, err := f.orchestrator.Answer(context.Background(), "first question", id); err != nil {
		t.Fatal(err)
	}
	if _, err := f.orchestrator.Answer(context.Background(), "second question", id); err != nil {
		t.Fatal(err)
	}

	turns := f.sessions.History(id)
	if len(turns) != 4 {
		t.Fatalf("expected 2 exchanges, got %d turns", len(turns))
	}
	if turns[0].Content != "first question" || turns[3].Content != "second answer" {
		t.Errorf("history order: %+v", turns)
	}
}

func TestNew_Validation(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Error("expected error for empty config")
	}
}
