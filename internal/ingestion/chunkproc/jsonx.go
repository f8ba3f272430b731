package chunkproc

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

var (
	fenceRe         = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)```")
	trailingCommaRe = regexp.MustCompile(`,\s*([}\]])`)
)

// parseModelJSON decodes LLM output that is almost, but not always, valid
// JSON. Code fences are unwrapped and the outermost object or array isolated,
// then decoded strictly; only when that fails are trailing commas stripped.
// The comma rewrite is a fallback because it cannot tell structure from
// string contents. The raw text is decoded strictly as a last resort.
func parseModelJSON(raw string, out any) error {
	candidate := isolateModelJSON(raw)
	if err := json.Unmarshal([]byte(candidate), out); err == nil {
		return nil
	}
	cleaned := trailingCommaRe.ReplaceAllString(candidate, "$1")
	if err := json.Unmarshal([]byte(cleaned), out); err == nil {
		return nil
	}
	if err := json.Unmarshal([]byte(strings.TrimSpace(raw)), out); err != nil {
		return fmt.Errorf("parse model JSON: %w; text=%s", err, truncate(raw, 300))
	}
	return nil
}

func isolateModelJSON(raw string) string {
	s := strings.TrimSpace(raw)

	if m := fenceRe.FindStringSubmatch(s); len(m) == 2 {
		s = strings.TrimSpace(m[1])
	}

	// isolate the outermost object or array
	start := strings.IndexAny(s, "{[")
	if start >= 0 {
		var end int
		if s[start] == '{' {
			end = strings.LastIndex(s, "}")
		} else {
			end = strings.LastIndex(s, "]")
		}
		if end > start {
			s = s[start : end+1]
		}
	}
	return s
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
