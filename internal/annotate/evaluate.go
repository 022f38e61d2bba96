package annotate

import (
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/clinicalpipe/annotator/internal/model"
)

// normalizeString mirrors evaluation_engine.py's normalize_string: Unicode
// NFKC, lowercase, trim, with an optional trailing-punctuation strip for
// the flexible-match pass.
func normalizeString(text string, removeTrailingPunctuation bool) string {
	normalized := norm.NFKC.String(text)
	normalized = strings.ToLower(strings.TrimSpace(normalized))
	if removeTrailingPunctuation {
		normalized = trailingPunctuationRE.ReplaceAllString(normalized, "")
		normalized = strings.TrimSpace(normalized)
	}
	return normalized
}

var trailingPunctuationRE = regexp.MustCompile(`[.,;:!?]+$`)

// exactMatchStrings is evaluation_engine.py's exact_match: strict
// normalized equality, with a flexible-punctuation fallback.
func exactMatchStrings(expected, predicted string) bool {
	normExpected := normalizeString(expected, false)
	normPredicted := normalizeString(predicted, false)

	if normExpected == "" && normPredicted == "" {
		return true
	}
	if normExpected == "" || normPredicted == "" {
		return false
	}
	if normExpected == normPredicted {
		return true
	}

	flexExpected := normalizeString(expected, true)
	flexPredicted := normalizeString(predicted, true)
	return flexExpected != "" && flexExpected == flexPredicted
}

// cosineSimilarityScore is a pure-Go stand-in for evaluation_engine.py's
// sklearn TfidfVectorizer + cosine_similarity pairing: term-frequency
// vectors weighted by inverse document frequency over the two-document
// corpus {expected, predicted}, compared by cosine.
func cosineSimilarityScore(expected, predicted string) float64 {
	if expected == "" && predicted == "" {
		return 1.0
	}
	if expected == "" || predicted == "" {
		return 0.0
	}

	docs := [][]string{tokenize(expected), tokenize(predicted)}
	df := map[string]int{}
	for _, doc := range docs {
		seen := map[string]bool{}
		for _, tok := range doc {
			if !seen[tok] {
				df[tok]++
				seen[tok] = true
			}
		}
	}
	if len(df) == 0 {
		return 1.0
	}

	vectors := make([]map[string]float64, 2)
	for i, doc := range docs {
		tf := map[string]int{}
		for _, tok := range doc {
			tf[tok]++
		}
		vec := map[string]float64{}
		for tok, count := range tf {
			idf := 1.0 + math.Log(2.0/float64(df[tok]))
			vec[tok] = float64(count) * idf
		}
		vectors[i] = vec
	}

	return cosine(vectors[0], vectors[1])
}

var tokenPattern = regexp.MustCompile(`[a-zA-Z0-9áéíóúñç]+`)

func tokenize(text string) []string {
	return tokenPattern.FindAllString(strings.ToLower(text), -1)
}

func cosine(a, b map[string]float64) float64 {
	var dot, normA, normB float64
	for tok, va := range a {
		dot += va * b[tok]
		normA += va * va
	}
	for _, vb := range b {
		normB += vb * vb
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// --- structured sub-value extraction (evaluation_engine.py) ---

var (
	dateREs = []*regexp.Regexp{
		regexp.MustCompile(`\d{2}/\d{2}/\d{4}`),
		regexp.MustCompile(`\d{4}-\d{2}-\d{2}`),
		regexp.MustCompile(`\d{1,2}/\d{1,2}/\d{4}`),
	}
	numberUnitRE  = regexp.MustCompile(`(?i)(\d+\.?\d*)\s*(mm|cm|Gy|HPF|years|years\.|cycles|fractions|fr\.?|mg/m2)`)
	keyValueRE    = regexp.MustCompile(`([^:]+):\s*([^\n,;]+)`)
	keyBracketRE  = regexp.MustCompile(`([^\[]+)\[\s*([^\]]+)\]`)
)

func extractDates(text string) []string {
	set := map[string]bool{}
	for _, re := range dateREs {
		for _, m := range re.FindAllString(text, -1) {
			set[m] = true
		}
	}
	return sortedKeys(set)
}

func extractNumbersWithUnits(text string) []string {
	var out []string
	for _, m := range numberUnitRE.FindAllStringSubmatch(text, -1) {
		out = append(out, m[1]+" "+strings.ToLower(m[2]))
	}
	return out
}

func extractKeyValuePairs(text string) [][2]string {
	var out [][2]string
	for _, m := range keyValueRE.FindAllStringSubmatch(text, -1) {
		k, v := strings.TrimSpace(m[1]), strings.TrimSpace(m[2])
		if k != "" && v != "" {
			out = append(out, [2]string{k, v})
		}
	}
	for _, m := range keyBracketRE.FindAllStringSubmatch(text, -1) {
		k, v := strings.TrimSpace(m[1]), strings.TrimSpace(m[2])
		if k != "" && v != "" {
			out = append(out, [2]string{k, v})
		}
	}
	return out
}

func extractEnumerationValues(text string) []string {
	if strings.Contains(text, ";") {
		var values []string
		for _, v := range strings.Split(text, ";") {
			v = strings.TrimSpace(v)
			if v != "" {
				values = append(values, v)
			}
		}
		if len(values) > 1 {
			return values
		}
	}
	if strings.Contains(text, ",") {
		parts := strings.Split(text, ",")
		allShort := true
		var values []string
		for _, v := range parts {
			v = strings.TrimSpace(v)
			values = append(values, v)
			if len(v) >= 50 {
				allShort = false
			}
		}
		if len(values) > 1 && allShort {
			return values
		}
	}
	return nil
}

type structuredValues struct {
	dates     []string
	numbers   []string
	pairs     [][2]string
	enumerate []string
}

func extractStructuredValues(text string) structuredValues {
	return structuredValues{
		dates:     extractDates(text),
		numbers:   extractNumbersWithUnits(text),
		pairs:     extractKeyValuePairs(text),
		enumerate: extractEnumerationValues(text),
	}
}

// compareValues mirrors evaluation_engine.py's compare_values, emitting
// one ValueDetail per sub-value category that appears in either side.
func compareValues(expected, predicted structuredValues) (details []model.ValueDetail, total, matched int) {
	if len(expected.dates) > 0 || len(predicted.dates) > 0 {
		total++
		match := sameSet(expected.dates, predicted.dates)
		if match {
			matched++
		}
		details = append(details, model.ValueDetail{
			Field: "dates", Expected: strings.Join(sortedCopy(expected.dates), ", "),
			Predicted: strings.Join(sortedCopy(predicted.dates), ", "), Match: match,
		})
	}

	if len(expected.numbers) > 0 || len(predicted.numbers) > 0 {
		total++
		match := sameSet(expected.numbers, predicted.numbers)
		if match {
			matched++
		}
		details = append(details, model.ValueDetail{
			Field: "numbers_with_units", Expected: strings.Join(expected.numbers, ", "),
			Predicted: strings.Join(predicted.numbers, ", "), Match: match,
		})
	}

	if len(expected.pairs) > 0 || len(predicted.pairs) > 0 {
		total++
		match := samePairSet(expected.pairs, predicted.pairs)
		if match {
			matched++
		}
		details = append(details, model.ValueDetail{
			Field: "key_value_pairs", Expected: joinPairs(expected.pairs),
			Predicted: joinPairs(predicted.pairs), Match: match,
		})
	}

	if len(expected.enumerate) > 0 || len(predicted.enumerate) > 0 {
		total++
		expNorm := normalizeAll(expected.enumerate)
		predNorm := normalizeAll(predicted.enumerate)
		match := sameSet(expNorm, predNorm)
		if match {
			matched++
		}
		details = append(details, model.ValueDetail{
			Field: "enumerations", Expected: strings.Join(sortedCopy(expNorm), ", "),
			Predicted: strings.Join(sortedCopy(predNorm), ", "), Match: match,
		})
	}

	return details, total, matched
}

func normalizeAll(in []string) []string {
	out := make([]string, len(in))
	for i, v := range in {
		out[i] = normalizeString(v, false)
	}
	return out
}

func sameSet(a, b []string) bool {
	return setOf(a).equals(setOf(b))
}

type strSet map[string]bool

func setOf(values []string) strSet {
	s := strSet{}
	for _, v := range values {
		s[v] = true
	}
	return s
}

func (s strSet) equals(other strSet) bool {
	if len(s) != len(other) {
		return false
	}
	for k := range s {
		if !other[k] {
			return false
		}
	}
	return true
}

func samePairSet(a, b [][2]string) bool {
	norm := func(pairs [][2]string) strSet {
		s := strSet{}
		for _, p := range pairs {
			s[normalizeString(p[0], false)+"\x00"+normalizeString(p[1], false)] = true
		}
		return s
	}
	return norm(a).equals(norm(b))
}

func joinPairs(pairs [][2]string) string {
	parts := make([]string, len(pairs))
	for i, p := range pairs {
		parts[i] = p[0] + ": " + p[1]
	}
	return strings.Join(parts, "; ")
}

func sortedKeys(set map[string]bool) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func sortedCopy(in []string) []string {
	out := append([]string(nil), in...)
	sort.Strings(out)
	return out
}

// EvaluateAnnotation is the full evaluation contract of spec.md §4.E.4:
// prompt-level exact/similarity match, typed sub-value comparison, and,
// when the template carries placeholders, a per-field evaluation honoring
// the four placeholder-semantics rules.
func EvaluateAnnotation(expected, predicted, template string) model.EvaluationResult {
	isExact := exactMatchStrings(expected, predicted)
	similarity := cosineSimilarityScore(expected, predicted)
	highSimilarity := similarity >= 0.8

	details, total, matched := compareValues(extractStructuredValues(expected), extractStructuredValues(predicted))

	result := model.EvaluationResult{
		ExactMatch:      isExact,
		SimilarityScore: round4(similarity),
		HighSimilarity:  highSimilarity,
		OverallMatch:    isExact || highSimilarity,
		ExpectedText:    expected,
		PredictedText:   predicted,
		TotalValues:     total,
		ValuesMatched:   matched,
		ValueDetails:    details,
	}
	if result.OverallMatch {
		result.MatchType = "match"
	} else {
		result.MatchType = "mismatch"
	}
	if total > 0 {
		rate := round4(float64(matched) / float64(total))
		result.ValueMatchRate = &rate
	}

	if fields := evaluateTemplateFields(template, expected, predicted); len(fields) > 0 {
		result.FieldEvaluations = fields
	}

	return result
}

func round4(f float64) float64 {
	return float64(int64(f*10000+0.5)) / 10000
}

// BatchEvaluate aggregates per-pair evaluations into summary statistics,
// mirroring evaluation_engine.py's batch_evaluate.
func BatchEvaluate(evaluations []model.EvaluationResult) map[string]float64 {
	stats := map[string]float64{
		"total": float64(len(evaluations)),
	}
	if len(evaluations) == 0 {
		return stats
	}

	var exact, highSim, overall float64
	var simSum, rateSum, rateCount float64
	for _, e := range evaluations {
		if e.ExactMatch {
			exact++
		}
		if e.HighSimilarity {
			highSim++
		}
		if e.OverallMatch {
			overall++
		}
		simSum += e.SimilarityScore
		if e.ValueMatchRate != nil {
			rateSum += *e.ValueMatchRate
			rateCount++
		}
	}

	total := float64(len(evaluations))
	stats["exact_matches"] = exact
	stats["exact_match_rate"] = round4(exact / total)
	stats["high_similarity_matches"] = highSim
	stats["high_similarity_rate"] = round4(highSim / total)
	stats["overall_matches"] = overall
	stats["overall_match_rate"] = round4(overall / total)
	stats["avg_similarity"] = round4(simSum / total)
	if rateCount > 0 {
		stats["avg_value_match_rate"] = round4(rateSum / rateCount)
	}
	return stats
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}
