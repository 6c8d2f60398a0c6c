package chunker

import (
	"regexp"
	"strings"

	"github.com/johnmichaelkuczynski/neurotext.uk-sub001/backend/textutil"
)

// Chunk is a bounded, ordered segment of a document. Concatenating chunks
// in index order reproduces the original text up to whitespace
// normalization at chunk boundaries.
type Chunk struct {
	Index     int
	Text      string
	WordCount int
}

var paragraphBreak = regexp.MustCompile(`\n\s*\n`)

// sentenceEnd matches a terminator followed by whitespace. Splitting keeps
// the terminator with the preceding sentence.
var sentenceEnd = regexp.MustCompile(`([.!?])\s+`)

// Split cuts text into chunks of at most maxWords words each, preferring
// paragraph boundaries, falling back to sentence boundaries inside an
// oversized paragraph, and slicing on raw word offsets only when a single
// sentence alone exceeds the budget. Content is never dropped.
func Split(text string, maxWords int) []Chunk {
	if maxWords <= 0 {
		maxWords = 1000
	}

	var pieces []string
	for _, para := range paragraphBreak.Split(text, -1) {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}
		if textutil.CountWords(para) <= maxWords {
			pieces = append(pieces, para)
			continue
		}
		pieces = append(pieces, splitParagraph(para, maxWords)...)
	}

	var chunks []Chunk
	var current []string
	currentWords := 0

	flush := func() {
		if len(current) == 0 {
			return
		}
		text := strings.Join(current, "\n\n")
		chunks = append(chunks, Chunk{
			Index:     len(chunks),
			Text:      text,
			WordCount: textutil.CountWords(text),
		})
		current = nil
		currentWords = 0
	}

	for _, piece := range pieces {
		words := textutil.CountWords(piece)
		if currentWords+words > maxWords && currentWords > 0 {
			flush()
		}
		current = append(current, piece)
		currentWords += words
	}
	flush()

	return chunks
}

// splitParagraph breaks one over-budget paragraph into pieces of at most
// maxWords, greedily accumulating sentences and hard-slicing any single
// sentence that cannot fit on its own.
func splitParagraph(para string, maxWords int) []string {
	sentences := splitSentences(para)

	var pieces []string
	var current []string
	currentWords := 0

	flush := func() {
		if len(current) > 0 {
			pieces = append(pieces, strings.Join(current, " "))
			current = nil
			currentWords = 0
		}
	}

	for _, sentence := range sentences {
		words := textutil.CountWords(sentence)
		if words > maxWords {
			flush()
			pieces = append(pieces, sliceWords(sentence, maxWords)...)
			continue
		}
		if currentWords+words > maxWords && currentWords > 0 {
			flush()
		}
		current = append(current, sentence)
		currentWords += words
	}
	flush()

	return pieces
}

func splitSentences(text string) []string {
	marked := sentenceEnd.ReplaceAllString(text, "$1\x00")
	var sentences []string
	for _, s := range strings.Split(marked, "\x00") {
		s = strings.TrimSpace(s)
		if s != "" {
			sentences = append(sentences, s)
		}
	}
	return sentences
}

func sliceWords(text string, maxWords int) []string {
	fields := strings.Fields(text)
	var pieces []string
	for start := 0; start < len(fields); start += maxWords {
		end := min(start+maxWords, len(fields))
		pieces = append(pieces, strings.Join(fields[start:end], " "))
	}
	return pieces
}

// Reassemble joins chunks in index order. Callers compare the result to the
// original document under whitespace normalization.
func Reassemble(chunks []Chunk) string {
	parts := make([]string, len(chunks))
	for _, c := range chunks {
		parts[c.Index] = c.Text
	}
	return strings.Join(parts, "\n\n")
}
