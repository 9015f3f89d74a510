// Package session keeps short-lived conversation state in process memory.
//
// A session is a bounded window of user/assistant exchanges identified by a
// UUID. Nothing is persisted; restarting the process drops all sessions.
package session

import (
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// Role identifies the author of a conversation turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is a single message within a session.
type Turn struct {
	Role    Role
	Content string
}

// Store holds sessions keyed by id. Safe for concurrent use: distinct
// sessions only contend on the map lock, appends within one session are
// ordered by its own mutex.
type Store struct {
	maxHistory int

	mu       sync.RWMutex
	sessions map[string]*state
}

// state is one session's turns plus its append lock.
type state struct {
	mu    sync.Mutex
	turns []Turn
}

// NewStore creates a Store retaining at most maxHistory exchanges per
// session (2 x maxHistory turns). maxHistory of 0 disables history.
func NewStore(maxHistory int) *Store {
	return &Store{
		maxHistory: maxHistory,
		sessions:   make(map[string]*state),
	}
}

// Create registers a new empty session and returns its id.
func (s *Store) Create() string {
	id := uuid.NewString()
	s.mu.Lock()
	s.sessions[id] = &state{}
	s.mu.Unlock()
	return id
}

// History returns a copy of the session's turns, oldest first.
// An unknown id yields nil.
func (s *Store) History(id string) []Turn {
	s.mu.RLock()
	st, ok := s.sessions[id]
	s.mu.RUnlock()
	if !ok {
		return nil
	}

	st.mu.Lock()
	defer st.mu.Unlock()
	return append([]Turn(nil), st.turns...)
}

// Append records one completed exchange and prunes the window to the
// retention bound. Appending to an unknown id creates the session, so a
// caller-supplied id keeps working after a process restart.
func (s *Store) Append(id, userMsg, assistantMsg string) {
	s.mu.Lock()
	st, ok := s.sessions[id]
	if !ok {
		st = &state{}
		s.sessions[id] = st
	}
	s.mu.Unlock()

	st.mu.Lock()
	defer st.mu.Unlock()
	st.turns = append(st.turns,
		Turn{Role: RoleUser, Content: userMsg},
		Turn{Role: RoleAssistant, Content: assistantMsg})

	if keep := 2 * s.maxHistory; len(st.turns) > keep {
		st.turns = append([]Turn(nil), st.turns[len(st.turns)-keep:]...)
	}
}

// Clear empties a session's history but keeps the id valid.
func (s *Store) Clear(id string) {
	s.mu.RLock()
	st, ok := s.sessions[id]
	s.mu.RUnlock()
	if !ok {
		return
	}
	st.mu.Lock()
	st.turns = nil
	st.mu.Unlock()
}

// FormatHistory renders the session's turns for prompt composition:
//
//	User: ...
//	Assistant: ...
//
// Empty string when the session is unknown or has no turns.
func (s *Store) FormatHistory(id string) string {
	turns := s.History(id)
	if len(turns) == 0 {
		return ""
	}

	var b strings.Builder
	for i, turn := range turns {
		if i > 0 {
			b.WriteByte('\n')
		}
		switch turn.Role {
		case RoleAssistant:
			fmt.Fprintf(&b, "Assistant: %s", turn.Content)
		default:
			fmt.Fprintf(&b, "User: %s", turn.Content)
		}
	}
	return b.String()
}
