package annotate

import (
	"regexp"
	"strings"

	"github.com/clinicalpipe/annotator/internal/model"
)

// bracketPlaceholderRE matches an unresolved template placeholder like
// "[select ICD-O-3 code]" or "[DD/MM/YYYY]" still sitting in an
// annotation's output — the "[select value]" phrasing prompt templates
// use to mark a field the model should have filled in.
var bracketPlaceholderRE = regexp.MustCompile(`^\s*\[[^\]]*\]\s*$`)

func isBracketPlaceholder(v string) bool {
	return bracketPlaceholderRE.MatchString(v)
}

// templatePlaceholderRE extracts bracket placeholders from a prompt
// template so the per-field regex can bind the literal text between them.
var templatePlaceholderRE = regexp.MustCompile(`\[[^\]]*\]`)

type templateField struct {
	name string
	kind string // date | categorical | text
}

// buildFieldExtractor parses a template's placeholders and inter-placeholder
// literals into a regex that non-greedily captures each placeholder's
// value, per spec.md §4.E.4.
func buildFieldExtractor(template string) (*regexp.Regexp, []templateField) {
	locs := templatePlaceholderRE.FindAllStringIndex(template, -1)
	if len(locs) == 0 {
		return nil, nil
	}

	var pattern strings.Builder
	var fields []templateField
	prevEnd := 0
	for i, loc := range locs {
		literal := template[prevEnd:loc[0]]
		pattern.WriteString(regexp.QuoteMeta(literal))

		inner := strings.Trim(template[loc[0]:loc[1]], "[]")
		fields = append(fields, templateField{name: fieldName(inner), kind: classifyFieldType(inner)})

		prevEnd = loc[1]

		// A trailing placeholder with no literal after it has nothing to
		// bound a lazy capture, so it would always match empty; use a
		// greedy capture there, which naturally runs to the end of input.
		isLastWithNoTrailingLiteral := i == len(locs)-1 && prevEnd == len(template)
		if isLastWithNoTrailingLiteral {
			pattern.WriteString("(.*)")
		} else {
			pattern.WriteString("(.*?)")
		}
	}
	if prevEnd < len(template) {
		pattern.WriteString(regexp.QuoteMeta(template[prevEnd:]))
	}

	re, err := regexp.Compile("(?s)" + pattern.String())
	if err != nil {
		return nil, nil
	}
	return re, fields
}

func fieldName(placeholder string) string {
	name := strings.TrimSpace(placeholder)
	if name == "" {
		return "field"
	}
	return name
}

func classifyFieldType(placeholder string) string {
	lower := strings.ToLower(placeholder)
	if strings.Contains(lower, "date") || strings.Contains(lower, "dd/mm") || strings.Contains(lower, "yyyy") {
		return "date"
	}
	if strings.Contains(lower, "/") || strings.HasPrefix(strings.TrimSpace(lower), "select") {
		return "categorical"
	}
	return "text"
}

// evaluateTemplateFields runs the per-field extraction+comparison pass of
// spec.md §4.E.4 when the template carries placeholders, returning nil
// when it doesn't (or the literal skeleton doesn't match either side,
// meaning per-field extraction isn't possible).
func evaluateTemplateFields(template, expected, predicted string) []model.FieldEvaluation {
	re, fields := buildFieldExtractor(template)
	if re == nil {
		return nil
	}

	expMatch := re.FindStringSubmatch(expected)
	predMatch := re.FindStringSubmatch(predicted)
	if expMatch == nil && predMatch == nil {
		return nil
	}

	var out []model.FieldEvaluation
	for i, f := range fields {
		var expVal, predVal string
		if expMatch != nil && i+1 < len(expMatch) {
			expVal = strings.TrimSpace(expMatch[i+1])
		}
		if predMatch != nil && i+1 < len(predMatch) {
			predVal = strings.TrimSpace(predMatch[i+1])
		}
		out = append(out, evaluateOneField(f, expVal, predVal))
	}
	return out
}

func evaluateOneField(f templateField, expected, predicted string) model.FieldEvaluation {
	eval := model.FieldEvaluation{
		FieldName: f.name,
		FieldType: f.kind,
		Expected:  expected,
		Predicted: predicted,
	}

	expBracket := isBracketPlaceholder(expected)
	predBracket := isBracketPlaceholder(predicted)
	expAbsence := isAbsenceIndicator(expected) && !expBracket
	expEmpty := strings.TrimSpace(expected) == ""
	predEmpty := strings.TrimSpace(predicted) == ""

	switch {
	case expAbsence && predBracket:
		// Testable property: a gold absence indicator paired with a
		// still-unresolved placeholder in the prediction is a successful
		// (if vacuous) extraction, not a mismatch.
		eval.MatchType = "extraction_success"
		eval.Match = true
	case expBracket && predBracket:
		eval.MatchType = "both_placeholder"
		eval.Match = true
	case expBracket && !predBracket && !predEmpty:
		eval.MatchType = "extraction_success"
		eval.Match = true
	case !expBracket && !expEmpty && predBracket:
		eval.MatchType = "extraction_failed"
		eval.Match = false
	case expEmpty && !predEmpty:
		eval.MatchType = "false_positive"
		eval.Match = false
	default:
		eval.Match = matchByFieldType(f.kind, expected, predicted)
		if eval.Match {
			eval.MatchType = "match"
		} else {
			eval.MatchType = "mismatch"
		}
	}

	return eval
}

func matchByFieldType(kind, expected, predicted string) bool {
	switch kind {
	case "date":
		return matchDateField(expected, predicted)
	case "categorical":
		return matchCategoricalField(expected, predicted)
	default:
		return matchTextField(expected, predicted)
	}
}

var negationPrefixes = []string{"in", "un", "non"}

func matchCategoricalField(expected, predicted string) bool {
	a, b := strings.ToLower(strings.TrimSpace(expected)), strings.ToLower(strings.TrimSpace(predicted))
	if a == b {
		return true
	}
	diff := len(a) - len(b)
	if diff < 0 {
		diff = -diff
	}
	if diff > 3 {
		return false
	}
	shorter, longer := a, b
	if len(b) < len(a) {
		shorter, longer = b, a
	}
	if !strings.HasSuffix(longer, shorter) && !strings.HasPrefix(longer, shorter) {
		return false
	}
	prefix := strings.TrimSuffix(longer, shorter)
	for _, neg := range negationPrefixes {
		if prefix == neg {
			return false
		}
	}
	return true
}

func matchTextField(expected, predicted string) bool {
	if exactMatchStrings(expected, predicted) {
		return true
	}
	return cosineSimilarityScore(expected, predicted) >= 0.8
}
