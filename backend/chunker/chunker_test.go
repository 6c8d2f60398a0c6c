package chunker_test

import (
	"fmt"
	"strings"
	"testing"

	"github.com/johnmichaelkuczynski/neurotext.uk-sub001/backend/chunker"
	"github.com/johnmichaelkuczynski/neurotext.uk-sub001/backend/textutil"
)

func paragraph(words int) string {
	parts := make([]string, words)
	for i := range parts {
		parts[i] = fmt.Sprintf("w%d", i)
	}
	return strings.Join(parts, " ")
}

func TestSplitRespectsBudget(t *testing.T) {
	t.Parallel()

	var paras []string
	for range 8 {
		paras = append(paras, paragraph(120))
	}
	text := strings.Join(paras, "\n\n")

	chunks := chunker.Split(text, 300)
	if len(chunks) == 0 {
		t.Fatal("no chunks produced")
	}
	for _, c := range chunks {
		if c.WordCount > 300 {
			t.Errorf("chunk %d has %d words, budget 300", c.Index, c.WordCount)
		}
	}
}

func TestSplitReassemblesToOriginal(t *testing.T) {
	t.Parallel()

	text := "First paragraph here. It has two sentences.\n\nSecond paragraph follows. It also has some words in it.\n\nThird and final paragraph closes the document."

	chunks := chunker.Split(text, 10)
	got := textutil.NormalizeWhitespace(chunker.Reassemble(chunks))
	want := textutil.NormalizeWhitespace(text)
	if got != want {
		t.Errorf("reassembled text differs:\ngot:  %q\nwant: %q", got, want)
	}
}

func TestSplitIndicesAreSequential(t *testing.T) {
	t.Parallel()

	text := strings.Join([]string{paragraph(50), paragraph(50), paragraph(50)}, "\n\n")
	chunks := chunker.Split(text, 60)
	for i, c := range chunks {
		if c.Index != i {
			t.Errorf("chunk at position %d has index %d", i, c.Index)
		}
	}
}

func TestSplitOversizedSentence(t *testing.T) {
	t.Parallel()

	// One sentence with no terminators, three times the budget.
	text := paragraph(90)
	chunks := chunker.Split(text, 30)

	if len(chunks) != 3 {
		t.Fatalf("len(chunks) = %d, want 3", len(chunks))
	}
	total := 0
	for _, c := range chunks {
		if c.WordCount > 30 {
			t.Errorf("chunk %d over budget: %d words", c.Index, c.WordCount)
		}
		total += c.WordCount
	}
	if total != 90 {
		t.Errorf("total words = %d, want 90; content was dropped or duplicated", total)
	}
}

func TestSplitChunkCountForLongDocument(t *testing.T) {
	t.Parallel()

	// 40 paragraphs of 1000 words against a 1000-word budget: each
	// paragraph exactly fills one chunk.
	var paras []string
	for range 40 {
		paras = append(paras, paragraph(1000))
	}
	text := strings.Join(paras, "\n\n")

	chunks := chunker.Split(text, 1000)
	if len(chunks) != 40 {
		t.Errorf("len(chunks) = %d, want 40", len(chunks))
	}
}

func TestSplitEmptyInput(t *testing.T) {
	t.Parallel()

	if chunks := chunker.Split("", 100); len(chunks) != 0 {
		t.Errorf("expected no chunks for empty input, got %d", len(chunks))
	}
	if chunks := chunker.Split("\n\n  \n\n", 100); len(chunks) != 0 {
		t.Errorf("expected no chunks for blank input, got %d", len(chunks))
	}
}
