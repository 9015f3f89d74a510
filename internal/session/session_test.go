package session

import (
	"fmt"
	"strings"
	"sync"
	"testing"

	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestCreate_UniqueIDs(t *testing.T) {
	store := NewStore(2)
	a := store.Create()
	b := store.Create()
	if a == "" || b == "" {
		t.Fatal("empty session id")
	}
	if a == b {
		t.Fatalf("duplicate ids: %s", a)
	}
}

func TestHistory_UnknownSession(t *testing.T) {
	store := NewStore(2)
	if got := store.History("nope"); got != nil {
		t.Errorf("expected nil history, got %v", got)
	}
	if got := store.FormatHistory("nope"); got != "" {
		t.Errorf("expected empty string, got %q", got)
	}
}

func TestAppend_OrderAndRoles(t *testing.T) {
	store := NewStore(5)
	id := store.Create()

	store.Append(id, "first question", "first answer")
	store.Append(id, "second question", "second answer")

	turns := store.History(id)
	if len(turns) != 4 {
		t.Fatalf("expected 4 turns, got %d", len(turns))
	}
	want := []Turn{
		{Role: RoleUser, Content: "first question"},
		{Role: RoleAssistant, Content: "first answer"},
		{Role: RoleUser, Content: "second question"},
		{Role: RoleAssistant, Content: "second answer"},
	}
	for i, w := range want {
		if turns[i] != w {
			t.Errorf("turn %d: got %+v, want %+v", i, turns[i], w)
		}
	}
}

func TestAppend_PrunesToWindow(t *testing.T) {
	store := NewStore(2)
	id := store.Create()

	for i := range 5 {
		store.Append(id, fmt.Sprintf("q%d", i), fmt.Sprintf("a%d", i))
	}

	turns := store.History(id)
	if len(turns) != 4 {
		t.Fatalf("expected 2 exchanges retained, got %d turns", len(turns))
	}
	// Oldest retained exchange is the fourth one.
	if turns[0].Content != "q3" || turns[3].Content != "a4" {
		t.Errorf("wrong window retained: %+v", turns)
	}
}

func TestAppend_ZeroHistoryKeepsNothing(t *testing.T) {
	store := NewStore(0)
	id := store.Create()
	store.Append(id, "q", "a")
	if turns := store.History(id); len(turns) != 0 {
		t.Errorf("expected no retained turns, got %d", len(turns))
	}
}

func TestAppend_UnknownIDCreatesSession(t *testing.T) {
	store := NewStore(2)
	store.Append("external-id", "q", "a")
	if turns := store.History("external-id"); len(turns) != 2 {
		t.Errorf("expected implicit session, got %d turns", len(turns))
	}
}

func TestClear(t *testing.T) {
	store := NewStore(2)
	id := store.Create()
	store.Append(id, "q", "a")

	store.Clear(id)
	if turns := store.History(id); len(turns) != 0 {
		t.Errorf("expected cleared history, got %d turns", len(turns))
	}

	// The id stays usable.
	store.Append(id, "q2", "a2")
	if turns := store.History(id); len(turns) != 2 {
		t.Errorf("session unusable after clear: %d turns", len(turns))
	}

	// Clearing an unknown id is a no-op.
	store.Clear("missing")
}

func TestFormatHistory(t *testing.T) {
	store := NewStore(3)
	id := store.Create()
	store.Append(id, "What is chunking?", "Splitting text into pieces.")

	got := store.FormatHistory(id)
	want := "User: What is chunking?\nAssistant: Splitting text into pieces."
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestConcurrentSessions(t *testing.T) {
	store := NewStore(2)
	const sessions = 8
	const exchanges = 50

	ids := make([]string, sessions)
	for i := range ids {
		ids[i] = store.Create()
	}

	var wg sync.WaitGroup
	for _, id := range ids {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range exchanges {
				store.Append(id, fmt.Sprintf("q%d", i), fmt.Sprintf("a%d", i))
				_ = store.History(id)
				_ = store.FormatHistory(id)
			}
		}()
	}
	wg.Wait()

	for _, id := range ids {
		turns := store.History(id)
		if len(turns) != 4 {
			t.Errorf("session %s: %d turns after pruning", id, len(turns))
		}
		// Each retained exchange pairs its own question and answer.
		for i := 0; i < len(turns); i += 2 {
			q := strings.TrimPrefix(turns[i].Content, "q")
			a := strings.TrimPrefix(turns[i+1].Content, "a")
			if q != a {
				t.Errorf("session %s: mismatched exchange %s/%s", id, turns[i].Content, turns[i+1].Content)
			}
		}
	}
}
