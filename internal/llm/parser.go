package llm

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/koehnden/dragon-lens/internal/common"
)

// cleanMarkdownWrapper strips code fences the model sometimes wraps JSON in.
func cleanMarkdownWrapper(content string) string {
	content = strings.TrimSpace(content)
	if strings.HasPrefix(content, "```") {
		if idx := strings.Index(content, "\n"); idx >= 0 {
			content = content[idx+1:]
		}
		content = strings.TrimSuffix(strings.TrimSpace(content), "```")
	}
	return strings.TrimSpace(content)
}

// ExtractJSON recovers the first balanced JSON array or object from a model
// response, tolerating prose before and after it. Returns
// common.ErrParseFailure when no balanced payload exists.
func ExtractJSON(content string) (string, error) {
	content = cleanMarkdownWrapper(content)

	start := -1
	for i, r := range content {
		if r == '[' || r == '{' {
			start = i
			break
		}
	}
	if start < 0 {
		return "", fmt.Errorf("%w: no JSON payload in response", common.ErrParseFailure)
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(content); i++ {
		c := content[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '[', '{':
			depth++
		case ']', '}':
			depth--
			if depth == 0 {
				return content[start : i+1], nil
			}
		}
	}
	return "", fmt.Errorf("%w: unbalanced JSON in response", common.ErrParseFailure)
}

// ParseJSONResponse extracts and decodes the JSON payload of a model
// response into v.
func ParseJSONResponse(content string, v any) error {
	payload, err := ExtractJSON(content)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(payload), v); err != nil {
		return fmt.Errorf("%w: %v", common.ErrParseFailure, err)
	}
	return nil
}
