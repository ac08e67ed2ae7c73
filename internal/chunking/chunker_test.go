package chunking

import (
	"fmt"
	"strings"
	"testing"

	"insight-backend/internal/shared/util"
)

func TestChunkEmptyInput(t *testing.T) {
	if got := Chunk("", 800); got != nil {
		t.Fatalf("expected no chunks for empty input, got %d", len(got))
	}
	if got := Chunk("   \n\t ", 800); got != nil {
		t.Fatalf("expected no chunks for whitespace input, got %d", len(got))
	}
}

func TestChunkShortInputSingleChunk(t *testing.T) {
	text := "The cat sat. It was happy."
	chunks := Chunk(text, 800)
	if len(chunks) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(chunks))
	}
	if chunks[0].Text != text {
		t.Fatalf("chunk text = %q, want %q", chunks[0].Text, text)
	}
	if chunks[0].WordCount != 6 {
		t.Fatalf("word count = %d, want 6", chunks[0].WordCount)
	}
	if !chunks[0].Selected {
		t.Fatal("chunk should default to selected")
	}
}

func TestChunkAtThresholdStaysSingle(t *testing.T) {
	words := make([]string, 10)
	for i := range words {
		words[i] = "word"
	}
	text := strings.Join(words, " ") + "."
	chunks := Chunk(text, 10)
	if len(chunks) != 1 {
		t.Fatalf("input at threshold should be single chunk, got %d", len(chunks))
	}
}

func TestChunkSentenceBoundaries(t *testing.T) {
	// 4 sentences, 5 words each; budget 10 → two chunks of two sentences.
	var b strings.Builder
	for i := 0; i < 4; i++ {
		fmt.Fprintf(&b, "Sentence number %d has words. ", i)
	}
	chunks := Chunk(strings.TrimSpace(b.String()), 10)
	if len(chunks) != 2 {
		t.Fatalf("expected 2 chunks, got %d", len(chunks))
	}
	for i, ch := range chunks {
		if ch.Index != i {
			t.Fatalf("chunk %d has index %d", i, ch.Index)
		}
		if ch.WordCount != 10 {
			t.Fatalf("chunk %d has %d words, want 10", i, ch.WordCount)
		}
		if !strings.HasSuffix(ch.Text, ".") {
			t.Fatalf("chunk %d does not end at a sentence boundary: %q", i, ch.Text)
		}
	}
}

func TestChunkCoverageReconstructsSentences(t *testing.T) {
	var sentences []string
	for i := 0; i < 30; i++ {
		sentences = append(sentences, fmt.Sprintf("This is sentence number %d of the sample input text!", i))
	}
	text := strings.Join(sentences, " ")
	chunks := Chunk(text, 25)

	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}
	for i, ch := range chunks {
		if ch.Index != i {
			t.Fatalf("indices not contiguous: chunk %d has index %d", i, ch.Index)
		}
	}

	var joined []string
	for _, ch := range chunks {
		joined = append(joined, ch.Text)
	}
	if strings.Join(joined, " ") != text {
		t.Fatal("concatenated chunks do not reconstruct the original sentence sequence")
	}

	total := 0
	for _, ch := range chunks {
		total += ch.WordCount
	}
	if total != util.CountWords(text) {
		t.Fatalf("chunk word counts sum to %d, input has %d", total, util.CountWords(text))
	}
}

func TestChunkOversizedSentenceKeptWhole(t *testing.T) {
	long := "word " + strings.Repeat("and word ", 30) + "end."
	text := "Short one. " + long + " Short two."
	chunks := Chunk(text, 10)

	found := false
	for _, ch := range chunks {
		if strings.Contains(ch.Text, "end.") {
			found = true
			if ch.WordCount <= 10 {
				t.Fatalf("oversized sentence chunk has only %d words", ch.WordCount)
			}
			if strings.Contains(ch.Text, "Short one.") || strings.Contains(ch.Text, "Short two.") {
				t.Fatalf("oversized sentence chunk absorbed neighbors: %q", ch.Text)
			}
		}
	}
	if !found {
		t.Fatal("oversized sentence missing from chunks")
	}
}

func TestApplySelection(t *testing.T) {
	chunks := []TextChunk{
		{Index: 0, Text: "a", Selected: true},
		{Index: 1, Text: "b", Selected: true},
		{Index: 2, Text: "c", Selected: true},
	}

	out := ApplySelection(chunks, []int{0, 2})
	if out[0].Selected != true || out[1].Selected != false || out[2].Selected != true {
		t.Fatalf("unexpected selection: %+v", out)
	}
	// Input slice is left untouched.
	if !chunks[1].Selected {
		t.Fatal("ApplySelection mutated its input")
	}

	all := ApplySelection(chunks, nil)
	for _, ch := range all {
		if !ch.Selected {
			t.Fatal("empty selection should keep all chunks selected")
		}
	}
}

func TestSelectedText(t *testing.T) {
	chunks := []TextChunk{
		{Index: 0, Text: "First part.", Selected: true},
		{Index: 1, Text: "Skipped part.", Selected: false},
		{Index: 2, Text: "Last part.", Selected: true},
	}
	got := SelectedText(chunks)
	want := "First part.\n\nLast part."
	if got != want {
		t.Fatalf("SelectedText = %q, want %q", got, want)
	}
}
