package textutil

import "strings"

// Position is one pipe-delimited line of a position list: a discrete claim
// or option with its surrounding fields, kept in original line order.
type Position struct {
	Line   int
	Fields []string
}

const positionMinFields = 3

// IsPositionList reports whether text is shaped like a position list:
// at least two non-empty lines, a clear majority of which carry the
// pipe-delimited field structure.
func IsPositionList(text string) bool {
	lines := nonEmptyLines(text)
	if len(lines) < 2 {
		return false
	}

	wellFormed := 0
	for _, line := range lines {
		if len(splitFields(line)) >= positionMinFields {
			wellFormed++
		}
	}
	return wellFormed*3 >= len(lines)*2
}

// ParsePositionList splits text into position records. Lines with too few
// fields are counted as malformed and skipped, never merged into neighbors.
func ParsePositionList(text string) (positions []Position, malformed int) {
	for i, line := range nonEmptyLines(text) {
		fields := splitFields(line)
		if len(fields) < positionMinFields {
			malformed++
			continue
		}
		positions = append(positions, Position{Line: i, Fields: fields})
	}
	return positions, malformed
}

func nonEmptyLines(text string) []string {
	var lines []string
	for _, line := range strings.Split(text, "\n") {
		if strings.TrimSpace(line) != "" {
			lines = append(lines, line)
		}
	}
	return lines
}

func splitFields(line string) []string {
	parts := strings.Split(line, "|")
	fields := make([]string, 0, len(parts))
	for _, p := range parts {
		fields = append(fields, strings.TrimSpace(p))
	}
	return fields
}
