// Package document parses course material files into courses, lessons and chunks.
//
// A course file starts with a header block:
//
//	Course Title: Building RAG Applications
//	Course Link: https://example.com/course
//	Course Instructor: Ada Lovelace
//
// followed by lesson sections introduced by markers of the form "Lesson N: Title",
// each optionally followed by a "Lesson Link: URL" line. Text between markers is
// the lesson content. Parsing is pure; index writes happen in ingest.
package document

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/koopa0/tutor/internal/chunk"
)

// ErrMalformedHeader indicates the file is missing the Course Title header line.
var ErrMalformedHeader = errors.New("malformed course header")

// Header field prefixes. Matching is case-sensitive, like the lesson markers.
const (
	titlePrefix      = "Course Title:"
	linkPrefix       = "Course Link:"
	instructorPrefix = "Course Instructor:"
	lessonLinkPrefix = "Lesson Link:"
	lessonPrefix     = "Lesson "
)

// Course is one ingested course: the unit of deduplication. Title is the
// unique key; a course is immutable once ingested.
type Course struct {
	Title      string   `json:"title"`
	Link       string   `json:"link,omitempty"`
	Instructor string   `json:"instructor,omitempty"`
	Lessons    []Lesson `json:"lessons"`
}

// Lesson is one section of a course, ordered by marker position in the source.
type Lesson struct {
	Number int    `json:"number"`
	Title  string `json:"title"`
	Link   string `json:"link,omitempty"`
}

// Chunk is one embeddable slice of course content. Index increases
// monotonically across the whole course, not per lesson. LessonNumber is nil
// for content that precedes the first lesson marker.
type Chunk struct {
	Text         string
	CourseTitle  string
	LessonNumber *int
	LessonLink   string
	Index        int
}

// Processor parses course files and splits their content into chunks.
type Processor struct {
	chunker *chunk.Chunker
}

// NewProcessor creates a Processor that chunks lesson content with c.
func NewProcessor(c *chunk.Chunker) *Processor {
	return &Processor{chunker: c}
}

// Process parses the course file at path.
func (p *Processor) Process(path string) (*Course, []Chunk, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("opening course file: %w", err)
	}
	defer f.Close()
	return p.ProcessReader(path, f)
}

// ProcessReader parses course content from r. name is used in error messages only.
func (p *Processor) ProcessReader(name string, r io.Reader) (*Course, []Chunk, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var lines []string
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, nil, fmt.Errorf("reading %s: %w", name, err)
	}

	course, rest, err := parseHeader(name, lines)
	if err != nil {
		return nil, nil, err
	}

	chunks := p.parseBody(course, rest)
	return course, chunks, nil
}

// parseHeader consumes the header block and returns the remaining body lines.
// Header fields may appear in any order; the block ends at the first line that
// is not a header field. Only the title is required.
func parseHeader(name string, lines []string) (*Course, []string, error) {
	course := &Course{}
	i := 0
	for ; i < len(lines); i++ {
		line := strings.TrimSpace(lines[i])
		if line == "" {
			continue
		}
		switch {
		case strings.HasPrefix(line, titlePrefix):
			course.Title = strings.TrimSpace(strings.TrimPrefix(line, titlePrefix))
		case strings.HasPrefix(line, linkPrefix):
			course.Link = strings.TrimSpace(strings.TrimPrefix(line, linkPrefix))
		case strings.HasPrefix(line, instructorPrefix):
			course.Instructor = strings.TrimSpace(strings.TrimPrefix(line, instructorPrefix))
		default:
			// First body line ends the header block.
			goto done
		}
	}
done:
	if course.Title == "" {
		return nil, nil, fmt.Errorf("%w: %s has no %q line", ErrMalformedHeader, name, titlePrefix)
	}
	return course, lines[i:], nil
}

// section is the accumulated content of one lesson (or of the preamble before
// the first marker, with a nil number).
type section struct {
	number *int
	link   string
	text   []string
}

// parseBody splits the body into lesson sections, records lessons on the
// course, and chunks each section's content.
func (p *Processor) parseBody(course *Course, lines []string) []Chunk {
	var sections []section
	current := section{}

	flush := func() {
		if len(current.text) > 0 || current.number != nil {
			sections = append(sections, current)
		}
	}

	for i := 0; i < len(lines); i++ {
		line := lines[i]
		if num, title, ok := parseLessonMarker(line); ok {
			flush()
			current = section{number: &num}
			lesson := Lesson{Number: num, Title: title}
			if i+1 < len(lines) {
				if next := strings.TrimSpace(lines[i+1]); strings.HasPrefix(next, lessonLinkPrefix) {
					lesson.Link = strings.TrimSpace(strings.TrimPrefix(next, lessonLinkPrefix))
					current.link = lesson.Link
					i++
				}
			}
			course.Lessons = append(course.Lessons, lesson)
			continue
		}
		current.text = append(current.text, line)
	}
	flush()

	var chunks []Chunk
	idx := 0
	for _, sec := range sections {
		content := strings.TrimSpace(strings.Join(sec.text, "\n"))
		if content == "" {
			continue
		}
		for _, text := range p.chunker.Split(content) {
			chunks = append(chunks, Chunk{
				Text:         text,
				CourseTitle:  course.Title,
				LessonNumber: sec.number,
				LessonLink:   sec.link,
				Index:        idx,
			})
			idx++
		}
	}
	return chunks
}

// parseLessonMarker matches lines of the form "Lesson N: Title".
// Matching is case-sensitive and the number must immediately follow "Lesson ".
func parseLessonMarker(line string) (int, string, bool) {
	trimmed := strings.TrimSpace(line)
	if !strings.HasPrefix(trimmed, lessonPrefix) {
		return 0, "", false
	}
	rest := trimmed[len(lessonPrefix):]
	colon := strings.Index(rest, ":")
	if colon < 1 {
		return 0, "", false
	}
	num, err := strconv.Atoi(strings.TrimSpace(rest[:colon]))
	if err != nil {
		return 0, "", false
	}
	return num, strings.TrimSpace(rest[colon+1:]), true
}
