package textutil

import (
	"regexp"
	"strings"
)

// CountWords counts whitespace-separated tokens. This is the single word
// count definition used everywhere: selector thresholds, chunk budgets and
// expansion targets all agree with each other because of it.
func CountWords(text string) int {
	return len(strings.Fields(text))
}

var whitespaceRun = regexp.MustCompile(`\s+`)

// NormalizeWhitespace collapses all whitespace runs to single spaces and
// trims the ends. Chunk reassembly is compared under this normalization.
func NormalizeWhitespace(text string) string {
	return strings.TrimSpace(whitespaceRun.ReplaceAllString(text, " "))
}

// TruncateWords returns at most n words of text, joined by single spaces.
func TruncateWords(text string, n int) string {
	fields := strings.Fields(text)
	if len(fields) <= n {
		return strings.Join(fields, " ")
	}
	return strings.Join(fields[:n], " ")
}
