package chunking

import (
	"strings"

	"insight-backend/internal/shared/util"
)

// DefaultMaxWords is the canonical chunk budget. Inputs at or below this
// word count bypass chunking entirely and flow through as a single chunk.
const DefaultMaxWords = 800

// TextChunk is a sentence-aligned contiguous slice of oversized input text.
// Selected is owned by the caller: a human may deselect chunks before an
// evaluation starts; the set itself is never re-derived mid-run.
type TextChunk struct {
	Index     int    `json:"index"`
	Text      string `json:"text"`
	WordCount int    `json:"wordCount"`
	Selected  bool   `json:"selected"`
}

// Chunk splits text into sentence-aligned chunks of at most maxWords words.
// Inputs at or below the budget return exactly one chunk holding the trimmed
// text. A single sentence longer than the budget still becomes its own chunk;
// sentences are never split. Empty input returns no chunks.
func Chunk(text string, maxWords int) []TextChunk {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil
	}
	if maxWords <= 0 {
		maxWords = DefaultMaxWords
	}

	if util.CountWords(trimmed) <= maxWords {
		return []TextChunk{{
			Index:     0,
			Text:      trimmed,
			WordCount: util.CountWords(trimmed),
			Selected:  true,
		}}
	}

	sentences := splitSentences(trimmed)

	var chunks []TextChunk
	var current []string
	currentWords := 0

	flush := func() {
		if len(current) == 0 {
			return
		}
		joined := strings.Join(current, " ")
		chunks = append(chunks, TextChunk{
			Index:     len(chunks),
			Text:      joined,
			WordCount: util.CountWords(joined),
			Selected:  true,
		})
		current = current[:0]
		currentWords = 0
	}

	for _, sentence := range sentences {
		words := util.CountWords(sentence)
		if currentWords > 0 && currentWords+words > maxWords {
			flush()
		}
		current = append(current, sentence)
		currentWords += words
	}
	flush()

	return chunks
}

// splitSentences splits on terminal punctuation (. ! ?), keeping the
// terminator attached to its sentence. Trailing text without a terminator
// still forms a final sentence.
func splitSentences(text string) []string {
	var sentences []string
	var b strings.Builder

	runes := []rune(text)
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		b.WriteRune(r)
		if r == '.' || r == '!' || r == '?' {
			// Consume any run of closing terminators ("?!", "...").
			for i+1 < len(runes) && (runes[i+1] == '.' || runes[i+1] == '!' || runes[i+1] == '?') {
				i++
				b.WriteRune(runes[i])
			}
			if s := strings.TrimSpace(b.String()); s != "" {
				sentences = append(sentences, s)
			}
			b.Reset()
		}
	}
	if s := strings.TrimSpace(b.String()); s != "" {
		sentences = append(sentences, s)
	}
	return sentences
}

// SelectedText joins the text of selected chunks in index order.
func SelectedText(chunks []TextChunk) string {
	var parts []string
	for _, ch := range chunks {
		if ch.Selected {
			parts = append(parts, ch.Text)
		}
	}
	return strings.Join(parts, "\n\n")
}

// ApplySelection marks only the given indices as selected. An empty or nil
// index list leaves every chunk selected, which is the documented default.
func ApplySelection(chunks []TextChunk, indices []int) []TextChunk {
	if len(indices) == 0 {
		return chunks
	}
	wanted := make(map[int]struct{}, len(indices))
	for _, idx := range indices {
		wanted[idx] = struct{}{}
	}
	out := make([]TextChunk, len(chunks))
	copy(out, chunks)
	for i := range out {
		_, ok := wanted[out[i].Index]
		out[i].Selected = ok
	}
	return out
}
