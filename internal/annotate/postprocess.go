package annotate

import (
	"regexp"
	"strings"

	"github.com/clinicalpipe/annotator/internal/model"
)

// standardAbsenceIndicator is the canonical phrase the contract asks the
// LLM to emit when a field has no supporting evidence in the note, ported
// from original_source/backend/lib/annotation_normalizer.py's
// STANDARD_ABSENCE_INDICATOR.
const standardAbsenceIndicator = "Not applicable"

// absencePatterns mirrors annotation_normalizer.py's ABSENCE_PATTERNS: a
// set of loose phrasings models tend to emit in place of the canonical
// phrase, normalized to it so downstream comparisons never have to special
// case them.
var absencePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)^\s*not\s+applicable\s*\.?\s*$`),
	regexp.MustCompile(`(?i)^\s*n/?a\s*\.?\s*$`),
	regexp.MustCompile(`(?i)^\s*none\s+(stated|mentioned|specified|reported|found)\s*\.?\s*$`),
	regexp.MustCompile(`(?i)^\s*no\s+(information|data|mention)\s+(available|found|provided)\s*\.?\s*$`),
	regexp.MustCompile(`(?i)^\s*\[?\s*(select|choose|insert|enter)\b.*\]?\s*$`),
	regexp.MustCompile(`(?i)^\s*not\s+(stated|specified|mentioned|found|available|reported)\s+in\s+(the\s+)?(note|text)\s*\.?\s*$`),
	regexp.MustCompile(`(?i)^\s*unknown\s*\.?\s*$`),
}

// isAbsenceIndicator reports whether text is some variant of "no value
// found", including the bare placeholder-template shape.
func isAbsenceIndicator(text string) bool {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return true
	}
	for _, p := range absencePatterns {
		if p.MatchString(trimmed) {
			return true
		}
	}
	return false
}

// extractLabel recovers a "Label: value" prefix, mirroring
// annotation_normalizer.py's _extract_label so the standardized phrase can
// be reattached to the field's label instead of dropping it.
func extractLabel(text string) (label string, ok bool) {
	idx := strings.Index(text, ":")
	if idx <= 0 || idx > 80 {
		return "", false
	}
	candidate := strings.TrimSpace(text[:idx])
	if candidate == "" || strings.ContainsAny(candidate, ".!?") {
		return "", false
	}
	return candidate, true
}

// normalizeAbsenceIndicator rewrites any absence-like value to the
// canonical phrase, preserving a "Label:" prefix when present (spec.md
// §4.E.2 step 4, annotation_normalizer.py's normalize_absence_indicator).
func normalizeAbsenceIndicator(text string) string {
	if label, ok := extractLabel(text); ok {
		remainder := strings.TrimSpace(text[strings.Index(text, ":")+1:])
		if isAbsenceIndicator(remainder) {
			return label + ": " + standardAbsenceIndicator
		}
		return strings.TrimSpace(text)
	}
	if !isAbsenceIndicator(text) {
		return strings.TrimSpace(text)
	}
	return standardAbsenceIndicator
}

// metaNarrationPrefixes strips boilerplate models prepend before the
// actual answer ("Based on the note, ...", "According to the text, ..."),
// grounded on the "verbose reasoning pattern" cleanup in prompt_wrapper.py.
var metaNarrationPrefixes = []*regexp.Regexp{
	regexp.MustCompile(`(?i)^\s*(based on|according to|looking at|from)\s+the\s+(note|text|clinical note|report)[,:]?\s*`),
	regexp.MustCompile(`(?i)^\s*(the\s+)?(final\s+)?(output|answer|annotation)\s*(is)?\s*:?\s*`),
}

func stripMetaNarration(text string) string {
	out := text
	for _, p := range metaNarrationPrefixes {
		out = p.ReplaceAllString(out, "")
	}
	return strings.TrimSpace(out)
}

// negationCues is the fixed phrase list used to detect an implicit
// negation when the model didn't set is_negated explicitly but its
// reasoning describes one, grounded on the same absence-detection idiom
// as isAbsenceIndicator (annotation_normalizer.py treats negation as a
// sibling concern to absence).
var negationCues = []string{
	"no evidence of", "ruled out", "absence of", "negative for",
	"denies", "without evidence of", "no signs of", "excluded",
}

func detectNegationCues(text string) bool {
	lower := strings.ToLower(text)
	for _, cue := range negationCues {
		if strings.Contains(lower, cue) {
			return true
		}
	}
	return false
}

// resolveDateInfo applies the date provenance contract: prefer a date the
// model extracted from the note text; fall back to the note's CSV date
// when the model found none there, per spec.md §4.E.2 step 3 and
// prompt_wrapper.py's update_prompt_placeholders date handling.
func resolveDateInfo(d *dateJSON, note model.Note) *model.DateInfo {
	if d != nil && strings.TrimSpace(d.DateValue) != "" && strings.EqualFold(d.Source, string(model.DateExtractedFromText)) {
		return &model.DateInfo{
			DateValue: strings.TrimSpace(d.DateValue),
			Source:    model.DateExtractedFromText,
		}
	}
	if d != nil && strings.TrimSpace(d.CSVDate) != "" {
		return &model.DateInfo{
			DateValue: strings.TrimSpace(d.CSVDate),
			Source:    model.DateDerivedFromCSV,
			CSVDate:   strings.TrimSpace(d.CSVDate),
		}
	}
	if note.Date != "" {
		return &model.DateInfo{
			DateValue: note.Date,
			Source:    model.DateDerivedFromCSV,
			CSVDate:   note.Date,
		}
	}
	if d != nil && strings.TrimSpace(d.DateValue) != "" {
		return &model.DateInfo{DateValue: strings.TrimSpace(d.DateValue), Source: model.DateExtractedFromText}
	}
	return nil
}
