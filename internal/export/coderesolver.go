package export

import (
	"encoding/json"
	"os"
	"regexp"
	"strings"

	"github.com/agnivade/levenshtein"
)

// coreVariableToCategory maps a core_variable to the category label used as
// the top-level key inside id2codes_dict.json's "Category - Label" encoding,
// ported from code_resolver.py's CORE_VARIABLE_TO_CATEGORY.
var coreVariableToCategory = map[string]string{
	"Patient.sex":                      "Sex",
	"Patient.race":                     "Race",
	"Patient.smoking":                  "Smoking",
	"Patient.alcohol":                  "Alcohol",
	"Patient.ecogPs":                   "ECOG PS label",
	"Patient.karnofsyIndex":            "Karnofsy index label",
	"Patient.otherGeneticSyndrome":     "Other Genetic syndrome",
	"Diagnosis.histology":              "Histology",
	"Diagnosis.histologyGroup":         "Histology group",
	"Diagnosis.histologySubgroup":      "Histology subgroup",
	"Diagnosis.subsite":                "Subsite",
	"Diagnosis.site":                   "Site",
	"Diagnosis.tumourDepth":            "Deep depth ",
	"Diagnosis.typeOfBiopsy":           "Type of biopsy",
	"Diagnosis.grading":                "Grading",
	"Diagnosis.stageAtDiagnosis":       "Clinical Staging",
	"Diagnosis.cT":                     "cT",
	"Diagnosis.cN":                     "cN",
	"Diagnosis.cM":                     "cM",
	"Diagnosis.pT":                     "pT",
	"Diagnosis.pN":                     "pN",
	"Diagnosis.pM":                     "pM",
	"Diagnosis.pathologicalStaging":    "Pathological staging",
	"Diagnosis.extraNodalExtension":    "Extra-nodal extension (rEne)",
	"Diagnosis.crpTested":              "CRP – C reactive protein tested ",
	"Diagnosis.otherImagingForMetastasis": "Other imaging for metastasis",
	"Surgery.surgeryType":              "Surgery type",
	"Surgery.intent":                   "Intent",
	"Surgery.typeOfSurgicalApproach":   "Type of surgical approach on Tumour",
	"Surgery.marginsAfterSurgery":      "Margins after surgery",
	"Surgery.lateralityOfDissection":   "Laterality of the dissection",
	"Surgery.surgicalComplications":    "Surgical complications (Clavien-Dindo Classification)",
	"Surgery.surgicalSpecimenGrading":  "Grading",
	"Surgery.necrosisInSurgicalSpecimen": "Necrosis",
	"Surgery.reExcision":               "Re-excision",
	"SystemicTreatment.typeOfSystemicTreatment": "type of systemic treatment",
	"SystemicTreatment.setting":        "Setting",
	"SystemicTreatment.chemotherapyInfo": "Chemotherapy info",
	"SystemicTreatment.regimen":        "Regimen",
	"SystemicTreatment.treatmentResponse": "Overall Treatment response (based on imaging alone; no recist or other criteria)",
	"SystemicTreatment.reasonForEndOfTreatment": "Reason for end of treatment",
	"Radiotherapy.setting":             "Setting",
	"Radiotherapy.beamQuality":         "Beam quality",
	"Radiotherapy.treatmentTechnique":  "Treatment technique",
	"Radiotherapy.treatmentCompleted":  "RT Treatment Completed as Planned?",
	"EpisodeEvent.diseaseStatus":       "Disease status",
	"EpisodeEvent.recurrenceType":      "Recurrence type",
	"PatientFollowUp.statusAtLastFollowUp": "Status of patient at last follow-up",
	"CancerEpisode.previousCancerTreatment": "Previous cancer treatment",
	"CancerEpisode.adverseEventDuration": "Adverse event duration",
}

var embeddedCodePattern = regexp.MustCompile(`[(\[]\d{4}/\d[)\]]`)

// normalizeCodeLabel mirrors code_resolver.py's _normalize: lowercase, strip
// embedded ICD-O-3 codes and trailing punctuation, collapse whitespace.
func normalizeCodeLabel(text string) string {
	if text == "" {
		return ""
	}
	t := strings.ToLower(strings.TrimSpace(text))
	t = embeddedCodePattern.ReplaceAllString(t, "")
	t = strings.TrimRight(t, ".;,")
	t = strings.Join(strings.Fields(t), " ")
	return t
}

// CodeResolver resolves free-text labels to IDEA4RC CodeableConcept code
// IDs, grounded on original_source/backend/lib/code_resolver.py.
type CodeResolver struct {
	// index is category_normalized -> label_normalized -> code_id
	index map[string]map[string]string
}

// idToDescription is the on-disk shape of id2codes_dict.json: a flat map of
// code_id to a "Category - Label" description string.
type idToDescription map[string]string

// LoadCodeResolver reads id2codes_dict.json from path and builds the
// reverse category/label index.
func LoadCodeResolver(path string) (*CodeResolver, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var raw idToDescription
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}

	r := &CodeResolver{index: map[string]map[string]string{}}
	for codeID, description := range raw {
		parts := strings.SplitN(description, " - ", 2)
		if len(parts) != 2 {
			continue
		}
		category := normalizeCodeLabel(parts[0])
		label := normalizeCodeLabel(parts[1])
		if r.index[category] == nil {
			r.index[category] = map[string]string{}
		}
		r.index[category][label] = codeID
	}
	return r, nil
}

// Resolve looks up value against the category implied by core_variable,
// trying exact, then longest-containment, then fuzzy (Levenshtein-ratio
// >= 0.75) matching in that order. method is one of "exact", "contains",
// "fuzzy", "unresolved".
func (r *CodeResolver) Resolve(value, coreVariable string) (codeID string, confidence float64, method string) {
	category, ok := coreVariableToCategory[coreVariable]
	if !ok {
		return "", 0, "unresolved"
	}
	entries := r.index[normalizeCodeLabel(category)]
	if len(entries) == 0 {
		return "", 0, "unresolved"
	}
	valNorm := normalizeCodeLabel(value)
	if valNorm == "" {
		return "", 0, "unresolved"
	}

	if id, ok := entries[valNorm]; ok {
		return id, 1.0, "exact"
	}

	bestContainsLen := 0
	bestContainsID := ""
	for label, id := range entries {
		if strings.Contains(label, valNorm) || strings.Contains(valNorm, label) {
			if len(label) > bestContainsLen {
				bestContainsLen = len(label)
				bestContainsID = id
			}
		}
	}
	if bestContainsID != "" {
		return bestContainsID, 0.9, "contains"
	}

	bestRatio := 0.0
	bestFuzzyID := ""
	for label, id := range entries {
		ratio := levenshteinRatio(valNorm, label)
		if ratio > bestRatio {
			bestRatio = ratio
			bestFuzzyID = id
		}
	}
	if bestRatio >= 0.75 && bestFuzzyID != "" {
		return bestFuzzyID, round3(bestRatio), "fuzzy"
	}

	return "", 0, "unresolved"
}

// levenshteinRatio expresses edit distance as a SequenceMatcher-style
// similarity ratio in [0,1], standing in for difflib.SequenceMatcher.ratio().
func levenshteinRatio(a, b string) float64 {
	if a == "" && b == "" {
		return 1
	}
	maxLen := len(a)
	if len(b) > maxLen {
		maxLen = len(b)
	}
	if maxLen == 0 {
		return 1
	}
	dist := levenshtein.ComputeDistance(a, b)
	return 1 - float64(dist)/float64(maxLen)
}

func round3(f float64) float64 {
	return float64(int64(f*1000+0.5)) / 1000
}
