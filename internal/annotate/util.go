package annotate

import "strings"

// splitPipe tokenizes a note's pipe-delimited gold_annotations field, per
// spec.md §4.E.2 step 7.
func splitPipe(s string) []string {
	var out []string
	for _, part := range strings.Split(s, "|") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

// splitKeyValue splits one gold-annotation token on its first colon into
// a (prompt_type, value) pair.
func splitKeyValue(token string) (key, value string, ok bool) {
	idx := strings.Index(token, ":")
	if idx < 0 {
		return "", "", false
	}
	return strings.TrimSpace(token[:idx]), strings.TrimSpace(token[idx+1:]), true
}

func equalFoldTrim(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}
