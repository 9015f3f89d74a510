package chunk

import (
	"strings"
	"testing"
)

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name    string
		size    int
		overlap int
		wantErr error
	}{
		{name: "valid", size: 800, overlap: 100},
		{name: "zero overlap", size: 100, overlap: 0},
		{name: "zero size", size: 0, overlap: 0, wantErr: ErrInvalidSize},
		{name: "negative size", size: -1, overlap: 0, wantErr: ErrInvalidSize},
		{name: "negative overlap", size: 100, overlap: -1, wantErr: ErrOverlapTooLarge},
		{name: "overlap equals size", size: 100, overlap: 100, wantErr: ErrOverlapTooLarge},
		{name: "overlap exceeds size", size: 100, overlap: 150, wantErr: ErrOverlapTooLarge},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := New(tt.size, tt.overlap)
			if tt.wantErr != nil {
				if err == nil {
					t.Fatalf("expected error %v, got nil", tt.wantErr)
				}
				if !strings.Contains(err.Error(), tt.wantErr.Error()) {
					t.Errorf("expected %v, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if c.Size() != tt.size || c.Overlap() != tt.overlap {
				t.Errorf("got size=%d overlap=%d", c.Size(), c.Overlap())
			}
		})
	}
}

func TestSplitSentences(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []string
	}{
		{
			name: "basic",
			text: "First sentence. Second sentence! Third?",
			want: []string{"First sentence.", "Second sentence!", "Third?"},
		},
		{
			name: "no terminal punctuation",
			text: "a fragment without an ending",
			want: []string{"a fragment without an ending"},
		},
		{
			name: "trailing fragment",
			text: "Done here. and then some",
			want: []string{"Done here.", "and then some"},
		},
		{
			name: "abbreviation style dots stay together",
			text: "Wait... really? Yes.",
			want: []string{"Wait... really?", "Yes."},
		},
		{
			name: "ellipsis ending a sentence still splits",
			text: "He paused... Then he left.",
			want: []string{"He paused...", "Then he left."},
		},
		{
			name: "ellipsis at end of text",
			text: "And so on...",
			want: []string{"And so on..."},
		},
		{
			name: "newlines as whitespace",
			text: "Line one.\nLine two.",
			want: []string{"Line one.", "Line two."},
		},
		{name: "empty", text: ""},
		{name: "whitespace only", text: "  \n\t "},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SplitSentences(tt.text)
			if len(got) != len(tt.want) {
				t.Fatalf("got %d sentences %q, want %d %q", len(got), got, len(tt.want), tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("sentence %d: got %q, want %q", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestSplit_EmptyInput(t *testing.T) {
	c, err := New(800, 100)
	if err != nil {
		t.Fatal(err)
	}
	if got := c.Split(""); got != nil {
		t.Errorf("expected nil for empty input, got %q", got)
	}
	if got := c.Split("   \n  "); got != nil {
		t.Errorf("expected nil for whitespace input, got %q", got)
	}
}

func TestSplit_SingleChunkWhenUnderBudget(t *testing.T) {
	c, err := New(800, 100)
	if err != nil {
		t.Fatal(err)
	}
	text := "Short lesson. Only two sentences."
	got := c.Split(text)
	if len(got) != 1 {
		t.Fatalf("expected 1 chunk, got %d: %q", len(got), got)
	}
	if got[0] != text {
		t.Errorf("expected chunk to equal input, got %q", got[0])
	}
}

func TestSplit_RespectsBudget(t *testing.T) {
	c, err := New(50, 10)
	if err != nil {
		t.Fatal(err)
	}
	text := "Alpha is the first letter. Beta comes after alpha. Gamma follows beta here. Delta is the fourth one."
	chunks := c.Split(text)
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}
	for i, ch := range chunks {
		if len(ch) > 50 {
			t.Errorf("chunk %d exceeds budget (%d chars): %q", i, len(ch), ch)
		}
	}
}

func TestSplit_OverlapCarriesTrailingSentence(t *testing.T) {
	c, err := New(60, 30)
	if err != nil {
		t.Fatal(err)
	}
	text := "One short sentence here. Another sentence follows it. A third one closes out. And then a fourth arrives."
	chunks := c.Split(text)
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d: %q", len(chunks), chunks)
	}
	for i := 1; i < len(chunks); i++ {
		prev := SplitSentences(chunks[i-1])
		cur := SplitSentences(chunks[i])
		if len(prev) == 0 || len(cur) == 0 {
			t.Fatalf("empty chunk at %d", i)
		}
		if prev[len(prev)-1] != cur[0] {
			t.Errorf("chunk %d does not start with predecessor's last sentence:\nprev=%q\ncur=%q", i, chunks[i-1], chunks[i])
		}
	}
}

func TestSplit_OversizedSentenceEmittedWhole(t *testing.T) {
	c, err := New(20, 5)
	if err != nil {
		t.Fatal(err)
	}
	long := "This single sentence is far longer than the twenty character budget."
	chunks := c.Split(long)
	if len(chunks) != 1 {
		t.Fatalf("expected 1 oversized chunk, got %d: %q", len(chunks), chunks)
	}
	if chunks[0] != long {
		t.Errorf("oversized sentence must not be truncated, got %q", chunks[0])
	}
}

func TestSplit_Terminates(t *testing.T) {
	// Overlap nearly as large as size must still make forward progress.
	c, err := New(30, 29)
	if err != nil {
		t.Fatal(err)
	}
	text := strings.Repeat("Ten chars. ", 50)
	chunks := c.Split(text)
	if len(chunks) == 0 {
		t.Fatal("expected chunks")
	}
	if len(chunks) > 200 {
		t.Fatalf("suspiciously many chunks (%d), packing likely not progressing", len(chunks))
	}
}

func TestSplit_Deterministic(t *testing.T) {
	c, err := New(80, 20)
	if err != nil {
		t.Fatal(err)
	}
	text := "Sentence number one. Sentence number two. Sentence number three. Sentence number four. Sentence number five."
	a := c.Split(text)
	b := c.Split(text)
	if len(a) != len(b) {
		t.Fatalf("non-deterministic chunk count: %d vs %d", len(a), len(b))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Errorf("chunk %d differs between runs", i)
		}
	}
}

func TestSplit_AllContentPreserved(t *testing.T) {
	c, err := New(60, 15)
	if err != nil {
		t.Fatal(err)
	}
	text := "Neural nets learn weights. Gradients flow backward. Losses shrink over epochs. Models eventually converge."
	joined := strings.Join(c.Split(text), " ")
	for _, s := range SplitSentences(text) {
		if !strings.Contains(joined, s) {
			t.Errorf("sentence %q missing from chunks", s)
		}
	}
}
