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

// OutlineToolName is the name the model uses to fetch a course outline.
const OutlineToolName = "get_course_outline"

type outlineInput struct {
	CourseName string `json:"course_name" jsonschema_description:"Course title to get the outline for (partial matches supported)"`
}

// OutlineTool returns a course's title, link and complete numbered lesson
// list, letting the model answer structural questions without a content
// search.
type OutlineTool struct {
	index  index.Index
	logger log.Logger
	tool   ai.Tool
}

// NewOutlineTool creates an OutlineTool and defines its genkit tool.
func NewOutlineTool(g *genkit.Genkit, idx index.Index, logger log.Logger) *OutlineTool {
	if logger == nil {
		logger = log.NewNop()
	}
	t := &OutlineTool{
		index:  idx,
		logger: logger,
	}
	t.tool = genkit.DefineTool(g, OutlineToolName,
		"Get the full outline of a course: title, link, and all lesson numbers and titles",
		func(ctx *ai.ToolContext, input outlineInput) (string, error) {
			obs, _, err := t.run(ctx, input)
			return obs, err
		})
	return t
}

// Name implements Tool.
func (t *OutlineTool) Name() string { return OutlineToolName }

// Register implements Tool.
func (t *OutlineTool) Register() ai.Tool { return t.tool }

// Execute implements Tool.
func (t *OutlineTool) Execute(ctx context.Context, args map[string]any) (string, []Source, error) {
	var input outlineInput
	if err := decodeArgs(args, &input); err != nil {
		return "", nil, err
	}
	return t.run(ctx, input)
}

func (t *OutlineTool) run(ctx context.Context, input outlineInput) (string, []Source, error) {
	name := strings.TrimSpace(input.CourseName)
	if name == "" {
		return "No course found matching ''", nil, nil
	}

	title, ok, err := t.index.ResolveCourse(ctx, name)
	if err != nil {
		t.logger.Warn("course resolution failed", "name", name, "error", err)
		return fmt.Sprintf("Course lookup is currently unavailable: %v", err), nil, nil
	}
	if !ok {
		return fmt.Sprintf("No course found matching '%s'", name), nil, nil
	}

	course, found, err := t.index.GetCourse(ctx, title)
	if err != nil {
		t.logger.Warn("course load failed", "title", title, "error", err)
		return fmt.Sprintf("Course lookup is currently unavailable: %v", err), nil, nil
	}
	if !found {
		return fmt.Sprintf("No course found matching '%s'", name), nil, nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Course: %s\n", course.Title)
	if course.Link != "" {
		fmt.Fprintf(&b, "Course Link: %s\n", course.Link)
	}
	fmt.Fprintf(&b, "Lessons (%d):", len(course.Lessons))
	for _, lesson := range course.Lessons {
		fmt.Fprintf(&b, "\n%d. %s", lesson.Number, lesson.Title)
	}

	sources := []Source{{Text: course.Title, Link: course.Link}}
	return b.String(), sources, nil
}
