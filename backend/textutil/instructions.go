package textutil

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	explicitTarget  = regexp.MustCompile(`(?i)\b(\d{3,6})\s*words?\b`)
	percentIncrease = regexp.MustCompile(`(?i)\b(?:increase|expand|lengthen|grow)\b[^.%]*?\bby\s+(\d{1,4})\s*%`)
	expansionIntent = regexp.MustCompile(`(?i)\b(expand|expansion|lengthen|elaborate at length|increase the length|increase .{0,20}\bword|make (?:it|this) longer|double the length|increase)\b`)
)

// ExpansionDirective is the parsed form of a user instruction that asks for
// the text to be grown to a target size.
type ExpansionDirective struct {
	TargetWords int
	// Explicit is true when the instruction named a concrete number, either
	// directly or as a percentage of the input.
	Explicit bool
}

// ParseExpansionDirective inspects raw user instructions for expansion
// intent. inputWords is the word count of the source text; when the
// instruction carries no explicit target the default is smallInputDefault
// for inputs under smallInputWords, and twice the input otherwise.
//
// Returns ok=false when the instructions carry no expansion intent at all.
func ParseExpansionDirective(instructions string, inputWords, smallInputWords, smallInputDefault int) (ExpansionDirective, bool) {
	trimmed := strings.TrimSpace(instructions)
	if trimmed == "" {
		return ExpansionDirective{}, false
	}

	if m := percentIncrease.FindStringSubmatch(trimmed); m != nil {
		pct, err := strconv.Atoi(m[1])
		if err == nil && pct > 0 {
			// "increase by 150%" grows the input by 150%, it does not
			// shrink it to 150% of itself.
			return ExpansionDirective{
				TargetWords: inputWords * (100 + pct) / 100,
				Explicit:    true,
			}, true
		}
	}

	hasIntent := expansionIntent.MatchString(trimmed)

	if m := explicitTarget.FindStringSubmatch(trimmed); m != nil {
		target, err := strconv.Atoi(m[1])
		if err == nil && target > 0 && (hasIntent || target > inputWords) {
			return ExpansionDirective{TargetWords: target, Explicit: true}, true
		}
	}

	if !hasIntent {
		return ExpansionDirective{}, false
	}

	target := inputWords * 2
	if inputWords < smallInputWords {
		target = smallInputDefault
	}
	return ExpansionDirective{TargetWords: target}, true
}
