package llm

import (
	"encoding/json"
	"fmt"
	"strings"
)

// StripCodeFences removes a surrounding markdown code fence, if present.
func StripCodeFences(text string) string {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "```") {
		return text
	}

	lines := strings.Split(text, "\n")
	endIdx := len(lines) - 1
	for i := len(lines) - 1; i > 0; i-- {
		if strings.TrimSpace(lines[i]) == "```" {
			endIdx = i
			break
		}
	}
	return strings.Join(lines[1:endIdx], "\n")
}

// DecodeJSONResponse decodes an LLM response into v, handling markdown code
// fences and leading prose before the JSON object. The returned error carries
// enough detail to feed back into a retry prompt.
func DecodeJSONResponse(text string, v any) error {
	cleaned := StripCodeFences(text)
	if cleaned == "" {
		return fmt.Errorf("empty response")
	}

	// Some models emit commentary before the JSON object; cut to the
	// first brace.
	if idx := strings.IndexByte(cleaned, '{'); idx > 0 {
		cleaned = cleaned[idx:]
	}

	if err := json.Unmarshal([]byte(cleaned), v); err != nil {
		preview := cleaned
		if len(preview) > 200 {
			preview = preview[:200]
		}
		return fmt.Errorf("response is not valid JSON (%v): %s", err, preview)
	}
	return nil
}
