// Package agent orchestrates the answer loop: compose the prompt, let the
// model decide whether to call tools, execute the calls, and finalize.
//
// The loop is an explicit bounded state machine rather than a fire-and-forget
// generation: each round of tool requests is executed through the Registry so
// sources are collected per call, and after MaxToolTurns rounds one last
// generation without tools forces a final answer.
package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"golang.org/x/time/rate"

	"github.com/koopa0/tutor/internal/index"
	"github.com/koopa0/tutor/internal/log"
	"github.com/koopa0/tutor/internal/session"
	"github.com/koopa0/tutor/internal/tools"
)

// systemPrompt frames the assistant and its tool protocol. The model sees
// tool schemas separately via the registry's genkit definitions.
const systemPrompt = `You are an AI assistant specialized in course materials and educational content.

Available tools:
- search_course_content: search inside course materials for specific topics
- get_course_outline: get a course's title, link and complete lesson list

Tool usage:
- Use search_course_content for questions about specific topics covered in the courses.
- Use get_course_outline for questions about a course's structure or lesson list.
- Answer general knowledge questions directly without tools.
- If a search returns nothing relevant, say so; do not invent course content.

Responses are brief, accurate and grounded in the retrieved material. No
meta-commentary about the search process.`

// emptyIndexAnswer is returned without a model call when nothing has been
// ingested yet.
const emptyIndexAnswer = "No course materials loaded."

// Response is a completed answer with the sources its tool calls surfaced.
type Response struct {
	Answer  string
	Sources []tools.Source
}

// Config wires an Orchestrator.
type Config struct {
	Genkit   *genkit.Genkit
	Model    ai.Model
	Index    index.Index
	Registry *tools.Registry
	Sessions *session.Store

	// MaxToolTurns bounds the number of tool-execution rounds per query.
	MaxToolTurns int

	// Limiter, when set, paces model calls. Shared across sessions.
	Limiter *rate.Limiter

	Logger log.Logger
}

// Orchestrator answers queries through the bounded model/tool loop.
// Safe for concurrent use; one call handles one query sequentially.
type Orchestrator struct {
	g            *genkit.Genkit
	model        ai.Model
	index        index.Index
	registry     *tools.Registry
	sessions     *session.Store
	maxToolTurns int
	limiter      *rate.Limiter
	logger       log.Logger
}

// New creates an Orchestrator.
func New(cfg Config) (*Orchestrator, error) {
	switch {
	case cfg.Genkit == nil:
		return nil, errors.New("agent: genkit instance is required")
	case cfg.Model == nil:
		return nil, errors.New("agent: model is required")
	case cfg.Index == nil:
		return nil, errors.New("agent: index is required")
	case cfg.Registry == nil:
		return nil, errors.New("agent: registry is required")
	case cfg.Sessions == nil:
		return nil, errors.New("agent: session store is required")
	case cfg.MaxToolTurns < 1:
		return nil, errors.New("agent: max tool turns must be at least 1")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.NewNop()
	}
	return &Orchestrator{
		g:            cfg.Genkit,
		model:        cfg.Model,
		index:        cfg.Index,
		registry:     cfg.Registry,
		sessions:     cfg.Sessions,
		maxToolTurns: cfg.MaxToolTurns,
		limiter:      cfg.Limiter,
		logger:       logger,
	}, nil
}

// Answer resolves one query within a session.
//
// The exchange is recorded in the session only when the query completes; a
// canceled context abandons the query without touching history.
func (o *Orchestrator) Answer(ctx context.Context, query, sessionID string) (*Response, error) {
	count, err := o.index.CourseCount(ctx)
	if err != nil {
		o.logger.Warn("course count failed, continuing without short-circuit", "error", err)
	} else if count == 0 {
		o.sessions.Append(sessionID, query, emptyIndexAnswer)
		return &Response{Answer: emptyIndexAnswer}, nil
	}

	messages := o.composeMessages(sessionID, query)

	var sources []tools.Source
	var resp *ai.ModelResponse

	for turn := 0; ; turn++ {
		offerTools := turn < o.maxToolTurns
		resp, err = o.generate(ctx, messages, offerTools)
		if err != nil {
			return nil, err
		}

		requests := resp.ToolRequests()
		if !offerTools || len(requests) == 0 {
			break
		}

		o.logger.Debug("executing tool requests",
			"session_id", sessionID, "turn", turn, "count", len(requests))

		parts := make([]*ai.Part, 0, len(requests))
		for _, req := range requests {
			obs, reqSources := o.executeRequest(ctx, req)
			sources = append(sources, reqSources...)
			parts = append(parts, ai.NewToolResponsePart(&ai.ToolResponse{
				Name:   req.Name,
				Ref:    req.Ref,
				Output: obs,
			}))
		}

		// generate applies the system prompt itself; carrying the rendered
		// system message forward would duplicate it on every tool turn.
		history := resp.History()
		next := make([]*ai.Message, 0, len(history)+1)
		for _, msg := range history {
			if msg.Role == ai.RoleSystem {
				continue
			}
			next = append(next, msg)
		}
		messages = append(next, &ai.Message{
			Role:    ai.RoleTool,
			Content: parts,
		})
	}

	answer := resp.Text()

	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	o.sessions.Append(sessionID, query, answer)

	return &Response{Answer: answer, Sources: sources}, nil
}

// composeMessages turns the session window plus the current query into the
// model message list.
func (o *Orchestrator) composeMessages(sessionID, query string) []*ai.Message {
	turns := o.sessions.History(sessionID)
	messages := make([]*ai.Message, 0, len(turns)+1)
	for _, turn := range turns {
		switch turn.Role {
		case session.RoleAssistant:
			messages = append(messages, ai.NewModelMessage(ai.NewTextPart(turn.Content)))
		default:
			messages = append(messages, ai.NewUserMessage(ai.NewTextPart(turn.Content)))
		}
	}
	return append(messages, ai.NewUserMessage(ai.NewTextPart(query)))
}

// generate performs one model call. When offerTools is false the model has
// no tools available and must produce a final answer.
func (o *Orchestrator) generate(ctx context.Context, messages []*ai.Message, offerTools bool) (*ai.ModelResponse, error) {
	if o.limiter != nil {
		if err := o.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("%w: rate limiter: %v", ErrModelCall, err)
		}
	}

	opts := []ai.GenerateOption{
		ai.WithModel(o.model),
		ai.WithSystem(systemPrompt),
		ai.WithMessages(messages...),
	}
	if offerTools {
		opts = append(opts,
			ai.WithTools(o.registry.Refs()...),
			ai.WithReturnToolRequests(true))
	}

	resp, err := genkit.Generate(ctx, o.g, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrModelCall, err)
	}
	return resp, nil
}

// executeRequest runs one tool request. Failures become observations so the
// loop continues; only the model call itself can abort a query.
func (o *Orchestrator) executeRequest(ctx context.Context, req *ai.ToolRequest) (string, []tools.Source) {
	args, err := argsMap(req.Input)
	if err != nil {
		o.logger.Warn("malformed tool arguments", "tool", req.Name, "error", err)
		return fmt.Sprintf("tool '%s' received malformed arguments", req.Name), nil
	}

	obs, sources, err := o.registry.Execute(ctx, req.Name, args)
	if errors.Is(err, tools.ErrUnknownTool) {
		return fmt.Sprintf("tool '%s' not found", req.Name), nil
	}
	if err != nil {
		o.logger.Warn("tool execution failed", "tool", req.Name, "error", err)
		return fmt.Sprintf("tool '%s' failed: %v", req.Name, err), nil
	}
	return obs, sources
}

// argsMap normalizes a tool request's input into a string-keyed map.
func argsMap(input any) (map[string]any, error) {
	if input == nil {
		return map[string]any{}, nil
	}
	if m, ok := input.(map[string]any); ok {
		return m, nil
	}
	raw, err := json.Marshal(input)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	return m, nil
}
