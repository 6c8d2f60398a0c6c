package strategy

import (
	"encoding/json"
	"fmt"
	"strings"
)

// unmarshalLenient decodes provider JSON, tolerating the markdown code
// fences and surrounding prose models habitually add.
func unmarshalLenient(data []byte, v any) error {
	s := strings.TrimSpace(string(data))

	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		if i := strings.LastIndex(s, "```"); i >= 0 {
			s = s[:i]
		}
		s = strings.TrimSpace(s)
	}

	if err := json.Unmarshal([]byte(s), v); err == nil {
		return nil
	}

	// Fall back to the outermost balanced object.
	start := strings.Index(s, "{")
	if start < 0 {
		return fmt.Errorf("no JSON object in response")
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		switch {
		case escaped:
			escaped = false
		case c == '\\' && inString:
			escaped = true
		case c == '"':
			inString = !inString
		case inString:
		case c == '{':
			depth++
		case c == '}':
			depth--
			if depth == 0 {
				return json.Unmarshal([]byte(s[start:i+1]), v)
			}
		}
	}
	return fmt.Errorf("unbalanced JSON object in response")
}
