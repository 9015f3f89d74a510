package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"

	"github.com/koopa0/tutor/internal/index"
	"github.com/koopa0/tutor/internal/log"
)

// SearchToolName is the name the model uses to invoke content search.
const SearchToolName = "search_course_content"

// searchInput is the model-facing argument schema for SearchTool.
type searchInput struct {
	Query        string `json:"query" jsonschema_description:"What to search for in the course content"`
	CourseName   string `json:"course_name,omitempty" jsonschema_description:"Course title to restrict the search to (partial matches supported)"`
	LessonNumber *int   `json:"lesson_number,omitempty" jsonschema_description:"Specific lesson number to search within (e.g. 1, 2, 3)"`
}

// SearchTool retrieves course content by semantic similarity, optionally
// scoped to one course and lesson.
type SearchTool struct {
	index      index.Index
	maxResults int
	logger     log.Logger
	tool       ai.Tool
}

// NewSearchTool creates a SearchTool and defines its genkit tool so the
// schema is advertised to the model.
func NewSearchTool(g *genkit.Genkit, idx index.Index, maxResults int, logger log.Logger) *SearchTool {
	if logger == nil {
		logger = log.NewNop()
	}
	t := &SearchTool{
		index:      idx,
		maxResults: maxResults,
		logger:     logger,
	}
	t.tool = genkit.DefineTool(g, SearchToolName,
		"Search course materials with smart course name matching and lesson filtering",
		func(ctx *ai.ToolContext, input searchInput) (string, error) {
			obs, _, err := t.run(ctx, input)
			return obs, err
		})
	return t
}

// Name implements Tool.
func (t *SearchTool) Name() string { return SearchToolName }

// Register implements Tool.
func (t *SearchTool) Register() ai.Tool { return t.tool }

// Execute implements Tool.
func (t *SearchTool) Execute(ctx context.Context, args map[string]any) (string, []Source, error) {
	var input searchInput
	if err := decodeArgs(args, &input); err != nil {
		return "", nil, err
	}
	return t.run(ctx, input)
}

// run performs the search. Recoverable problems (unresolvable course,
// backend failure) become observations so the model can adjust or report.
func (t *SearchTool) run(ctx context.Context, input searchInput) (string, []Source, error) {
	var courseFilter *string
	if name := strings.TrimSpace(input.CourseName); name != "" {
		title, ok, err := t.index.ResolveCourse(ctx, name)
		if err != nil {
			t.logger.Warn("course resolution failed", "name", name, "error", err)
			return fmt.Sprintf("Search is currently unavailable: %v", err), nil, nil
		}
		if !ok {
			return fmt.Sprintf("No course found matching '%s'", name), nil, nil
		}
		courseFilter = &title
	}

	matches, err := t.index.Search(ctx, input.Query, t.maxResults, courseFilter, input.LessonNumber)
	if err != nil {
		t.logger.Warn("search failed", "query", input.Query, "error", err)
		return fmt.Sprintf("Search is currently unavailable: %v", err), nil, nil
	}

	if len(matches) == 0 {
		return emptyResultMessage(courseFilter, input.LessonNumber), nil, nil
	}

	var b strings.Builder
	sources := make([]Source, 0, len(matches))
	for i, m := range matches {
		if i > 0 {
			b.WriteString("\n\n")
		}
		header := m.CourseTitle
		if m.LessonNumber != nil {
			header = fmt.Sprintf("%s - Lesson %d", m.CourseTitle, *m.LessonNumber)
		}
		fmt.Fprintf(&b, "[%s]\n%s", header, m.Text)
		sources = append(sources, Source{Text: header, Link: m.LessonLink})
	}
	return b.String(), sources, nil
}

// emptyResultMessage describes an empty result set including any filters,
// so the model can tell the user what was searched.
func emptyResultMessage(courseFilter *string, lessonFilter *int) string {
	var b strings.Builder
	b.WriteString("No relevant content found")
	if courseFilter != nil {
		fmt.Fprintf(&b, " in course '%s'", *courseFilter)
	}
	if lessonFilter != nil {
		fmt.Fprintf(&b, " in lesson %d", *lessonFilter)
	}
	b.WriteString(".")
	return b.String()
}
