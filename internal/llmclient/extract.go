package llmclient

import (
	"encoding/json"
	"regexp"
	"strings"
)

// extractJSONCandidate implements the first three steps of spec.md §4.D's
// generate_structured fallback: (1) a fenced ```json block, (2) the first
// balanced `{...}` object found in the text, (3) if the result is a JSON
// array, its first element. Ported in spirit from
// agent_go/pkg/mcpagent/structured_output.go's cleanContentForJSON /
// removeMarkdownArtifacts, generalized to return a candidate string rather
// than mutate in place.
func extractJSONCandidate(raw string) string {
	cleaned := strings.TrimSpace(raw)

	if fenced := extractFencedBlock(cleaned); fenced != "" {
		cleaned = fenced
	} else if obj := firstBalancedObject(cleaned); obj != "" {
		cleaned = obj
	}

	cleaned = strings.TrimSpace(cleaned)

	var arr []json.RawMessage
	if err := json.Unmarshal([]byte(cleaned), &arr); err == nil && len(arr) > 0 {
		return string(arr[0])
	}

	return cleaned
}

var fencedBlockRE = regexp.MustCompile("(?s)```(?:json)?\\s*\\n?(.*?)```")

func extractFencedBlock(text string) string {
	m := fencedBlockRE.FindStringSubmatch(text)
	if len(m) < 2 {
		return ""
	}
	return strings.TrimSpace(m[1])
}

// firstBalancedObject scans for the first `{` and returns the text up to
// its matching closing `}`, tolerating nested braces.
func firstBalancedObject(text string) string {
	start := strings.Index(text, "{")
	if start == -1 {
		return ""
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		ch := text[i]
		if inString {
			if escaped {
				escaped = false
			} else if ch == '\\' {
				escaped = true
			} else if ch == '"' {
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return text[start : i+1]
			}
		}
	}
	return ""
}

var (
	evidenceRE   = regexp.MustCompile(`(?is)evidence["']?\s*[:=]\s*["']?([^"'\n]+)`)
	reasoningRE  = regexp.MustCompile(`(?is)reasoning["']?\s*[:=]\s*["']?([^"'\n]+)`)
	finalOutRE   = regexp.MustCompile(`(?is)final_output["']?\s*[:=]\s*["']?([^"'\n]+)`)
	dateFieldRE  = regexp.MustCompile(`\b(\d{4}-\d{2}-\d{2}|\d{2}/\d{2}/\d{4})\b`)
)

// synthesizeFromText is the last-resort step (4) of the fallback: it
// heuristically pulls evidence/reasoning/final_output/date out of raw,
// unstructured text and builds a minimal JSON object from them, the date as
// a {date_value, source} object. Returns ok=false if nothing recognizable
// was found.
func synthesizeFromText(raw string) ([]byte, bool) {
	obj := map[string]any{}
	if m := evidenceRE.FindStringSubmatch(raw); len(m) > 1 {
		obj["evidence"] = strings.TrimSpace(m[1])
	}
	if m := reasoningRE.FindStringSubmatch(raw); len(m) > 1 {
		obj["reasoning"] = strings.TrimSpace(m[1])
	}
	if m := finalOutRE.FindStringSubmatch(raw); len(m) > 1 {
		obj["final_output"] = strings.TrimSpace(m[1])
	}
	if m := dateFieldRE.FindStringSubmatch(raw); len(m) > 1 {
		obj["date"] = map[string]string{"date_value": m[1], "source": "extracted_from_text"}
	}
	if len(obj) == 0 {
		return nil, false
	}
	data, err := json.Marshal(obj)
	if err != nil {
		return nil, false
	}
	return data, true
}
