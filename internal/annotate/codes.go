package annotate

import (
	"context"
	"regexp"
	"strings"

	"github.com/clinicalpipe/annotator/internal/dictionary"
	"github.com/clinicalpipe/annotator/internal/model"
)

// isHistologyOrSitePrompt flags prompt types whose annotation
// concerns a tumor's histology or anatomical site, the only prompts that
// trigger ICD-O-3 resolution (spec.md §4.E.2 step 6), ported from
// original_source/backend/lib/icdo3_extractor.py's
// is_histology_or_site_prompt.
func isHistologyOrSitePrompt(promptType string) bool {
	lower := strings.ToLower(promptType)
	if strings.Contains(lower, "histolog") {
		return true
	}
	return strings.Contains(lower, "site") && strings.Contains(lower, "tumor")
}

var (
	morphologyPattern = regexp.MustCompile(`(\d{4}/\d)`)
	topographyPattern = regexp.MustCompile(`([Cc]\d{2}\.\d)`)
	combinedPattern   = regexp.MustCompile(`(\d{4}/\d)\s*-\s*([Cc]\d{2}\.\d)`)
)

// extractCodesFromText regex-scans text for already-present ICD-O-3 codes,
// the fallback strategy icdo3_llm_extractor.py's _extract_codes_from_text
// uses when the LLM declines to emit a clean code pair.
func extractCodesFromText(text string) (morphology, topography string) {
	if m := combinedPattern.FindStringSubmatch(text); m != nil {
		return m[1], strings.ToUpper(m[2])
	}
	if m := morphologyPattern.FindString(text); m != "" {
		morphology = m
	}
	if m := topographyPattern.FindString(text); m != "" {
		topography = strings.ToUpper(m)
	}
	return morphology, topography
}

// resolveICDO3 resolves the histology/site annotation to a ranked list of
// diagnosis-code candidates, preferring codes already present in the
// annotation or note text and falling back to free-text matching against
// the dictionary (spec.md §4.E.2 step 6, icdo3_llm_extractor.py's
// extract_histology_topography_with_llm combined with the CSV-lookup path
// in icdo3_extractor.py).
func (e *Engine) resolveICDO3(ctx context.Context, noteText, annotationText, promptType string) *model.ICDO3CodeInfo {
	if e.dict == nil {
		return nil
	}

	q := dictionary.Query{HistologyText: annotationText}

	morph, topo := extractCodesFromText(annotationText)
	if morph == "" && topo == "" {
		morph, topo = extractCodesFromText(noteText)
	}
	q.MorphologyCode = morph
	q.TopographyCode = topo

	if strings.Contains(strings.ToLower(promptType), "site") {
		q.TopographyText = annotationText
		q.HistologyText = ""
	}

	candidates := e.dict.FindTopCandidates(q, 5)
	if len(candidates) == 0 {
		return nil
	}

	info := &model.ICDO3CodeInfo{
		Candidates: make([]model.ICDO3Candidate, 0, len(candidates)),
	}
	for _, c := range candidates {
		info.Candidates = append(info.Candidates, model.ICDO3Candidate{
			Query:          c.Row["Query"],
			MorphologyCode: c.Row["Morphology"],
			TopographyCode: c.Row["Topography"],
			Name:           c.Row["NAME"],
			Score:          c.Score,
			Method:         c.Method,
		})
	}
	info.SyncSelection()
	return info
}
