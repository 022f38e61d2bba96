package annotate

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	slashDateRE = regexp.MustCompile(`^(\d{1,2})/(\d{1,2})/(\d{4})$`)
	isoDateRE   = regexp.MustCompile(`^(\d{4})-(\d{2})-(\d{2})$`)
)

// normalizeDate accepts D/M/Y, DD/MM/YYYY, or YYYY-MM-DD and returns the
// canonical YYYY-MM-DD form, per spec.md §4.E.4's date field rule.
func normalizeDate(s string) (string, bool) {
	s = strings.TrimSpace(s)
	if m := isoDateRE.FindStringSubmatch(s); m != nil {
		return s, true
	}
	if m := slashDateRE.FindStringSubmatch(s); m != nil {
		day, month, year := atoi(m[1]), atoi(m[2]), atoi(m[3])
		if day < 1 || day > 31 || month < 1 || month > 12 {
			return "", false
		}
		return fmt.Sprintf("%04d-%02d-%02d", year, month, day), true
	}
	return "", false
}

func matchDateField(expected, predicted string) bool {
	normExp, okExp := normalizeDate(expected)
	normPred, okPred := normalizeDate(predicted)
	if !okExp || !okPred {
		return strings.EqualFold(strings.TrimSpace(expected), strings.TrimSpace(predicted))
	}
	return normExp == normPred
}
