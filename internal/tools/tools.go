// Package tools defines the capabilities the model may invoke while answering
// a query, and the registry that executes them.
//
// A tool returns a textual observation for the model plus the sources that
// produced it. Sources flow back through the orchestrator to the caller so
// answers can cite the material they were grounded on. Tool-level failures
// that the model can recover from (unresolvable course name, unavailable
// search backend) are reported as observations, not errors.
package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/firebase/genkit/go/ai"

	"github.com/koopa0/tutor/internal/log"
)

// ErrUnknownTool indicates a requested tool name is not registered.
var ErrUnknownTool = errors.New("unknown tool")

// Source identifies a piece of course material an observation was built from.
type Source struct {
	Text string `json:"text"`
	Link string `json:"link,omitempty"`
}

// Tool is one model-invocable capability.
//
// Register returns the genkit tool used to advertise the name, description
// and input schema to the model; execution itself always goes through
// Execute so the orchestrator controls the loop and collects sources.
type Tool interface {
	Name() string
	Register() ai.Tool
	Execute(ctx context.Context, args map[string]any) (string, []Source, error)
}

// Registry holds the registered tools. Safe for concurrent use after
// registration; Register is called during wiring only.
type Registry struct {
	mu     sync.RWMutex
	tools  map[string]Tool
	order  []Tool
	logger log.Logger
}

// NewRegistry creates an empty Registry.
func NewRegistry(logger log.Logger) *Registry {
	if logger == nil {
		logger = log.NewNop()
	}
	return &Registry{
		tools:  make(map[string]Tool),
		logger: logger,
	}
}

// Register adds a tool. Duplicate names are rejected.
func (r *Registry) Register(t Tool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[t.Name()]; exists {
		return fmt.Errorf("tool %q already registered", t.Name())
	}
	r.tools[t.Name()] = t
	r.order = append(r.order, t)
	return nil
}

// Get returns a registered tool by name.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// Refs returns the genkit tool references to advertise, in registration order.
func (r *Registry) Refs() []ai.ToolRef {
	r.mu.RLock()
	defer r.mu.RUnlock()
	refs := make([]ai.ToolRef, len(r.order))
	for i, t := range r.order {
		refs[i] = t.Register()
	}
	return refs
}

// Execute runs a tool by name. An unregistered name returns ErrUnknownTool;
// the orchestrator turns that into an observation so the loop can continue.
func (r *Registry) Execute(ctx context.Context, name string, args map[string]any) (string, []Source, error) {
	t, ok := r.Get(name)
	if !ok {
		return "", nil, fmt.Errorf("%w: %q", ErrUnknownTool, name)
	}

	obs, sources, err := t.Execute(ctx, args)
	if err != nil {
		return "", nil, fmt.Errorf("executing tool %q: %w", name, err)
	}
	r.logger.Debug("tool executed", "tool", name, "sources", len(sources))
	return obs, sources, nil
}

// decodeArgs maps loosely-typed tool arguments onto a typed input struct
// through a JSON round trip, matching how the model's arguments arrive.
func decodeArgs(args map[string]any, into any) error {
	raw, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("encoding tool arguments: %w", err)
	}
	if err := json.Unmarshal(raw, into); err != nil {
		return fmt.Errorf("decoding tool arguments: %w", err)
	}
	return nil
}
