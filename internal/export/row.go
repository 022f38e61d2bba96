// Package export builds the two CSV exports (label, coded) that sit at the
// end of the pipeline: a shared row kernel walks a session's annotations
// once, and each export format streams those rows with its own column set.
// Grounded on original_source/backend/routes/sessions.py's
// _build_export_rows/_build_prompt_to_core_variable_mapping/_get_data_type_for_variable
// family of functions.
package export

import (
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/clinicalpipe/annotator/internal/model"
	"github.com/clinicalpipe/annotator/internal/prompts"
)

// Row is one export line before format-specific columns (match_confidence,
// match_method) are layered on by the coded exporter.
type Row struct {
	NoteID         string
	PromptType     string
	PatientID      string
	OriginalSource string
	CoreVariable   string
	DateRef        string
	Value          string
	RecordID       int
	LinkedTo       string
	Quality        string
	Types          string
	ICDO3Code      string
	Entity         string
}

// builtinCoreVariables is the fixed fallback table consulted when a prompt
// carries no entity_mapping of its own, ported from
// _build_prompt_to_core_variable_mapping's "predefined_mapping".
var builtinCoreVariables = map[string]string{
	"histological-tipo-int": "Diagnosis.histologySubgroup",
	"histological":          "Diagnosis.histologySubgroup",
	"tumorsite-int":         "Diagnosis.subsite",
	"tumorsite":             "Diagnosis.subsite",
	"biopsygrading-int":     "Diagnosis.grading",
	"biopsygrading":         "Diagnosis.grading",
	"ageatdiagnosis-int":    "Diagnosis.ageAtDiagnosis",
	"ageatdiagnosis":        "Diagnosis.ageAtDiagnosis",
	"tumorbiopsytype-int":   "Diagnosis.typeOfBiopsy",
	"tumorbiopsytype":       "Diagnosis.typeOfBiopsy",
	"biopsymitoticcount-int": "Diagnosis.biopsyMitoticCount",
	"biopsymitoticcount":      "Diagnosis.biopsyMitoticCount",
	"tumordepth-int":          "Diagnosis.tumourDepth",
	"tumordiameter-int":       "Diagnosis.tumourLongestDiameterClinical",
	"tumordiameter":           "Diagnosis.tumourLongestDiameterClinical",
	"necrosis_in_biopsy-int":  "Diagnosis.necrosisInBiopsy",
	"necrosis_in_biopsy":      "Diagnosis.necrosisInBiopsy",
	"stage_at_diagnosis-int":  "Diagnosis.stageAtDiagnosis",
	"stage_at_diagnosis":      "Diagnosis.stageAtDiagnosis",

	"gender-int":             "Patient.sex",
	"gender":                 "Patient.sex",
	"patient-bmi":            "Patient.bmi",
	"patient-weightheight":   "Patient.bmi",

	"patient-status-int": "PatientFollowUp.statusAtLastFollowUp",
	"patient-status":     "PatientFollowUp.statusAtLastFollowUp",
	"last_contact_date":  "PatientFollowUp.lastContact",

	"surgerymargins-int":             "Surgery.marginsAfterSurgery",
	"surgerymargins":                 "Surgery.marginsAfterSurgery",
	"surgerytype-fs30-int":           "Surgery.surgeryType",
	"surgerytype":                    "Surgery.surgeryType",
	"surgical-specimen-grading-int":  "Surgery.surgicalSpecimenGrading",
	"surgical-mitotic-count-int":     "Surgery.surgicalSpecimenMitoticCount",
	"necrosis_in_surgical-int":       "Surgery.necrosisInSurgicalSpecimen",
	"necrosis_in_surgical":           "Surgery.necrosisInSurgicalSpecimen",
	"reexcision-int":                 "Surgery.reExcision",

	"chemotherapy_start-int": "SystemicTreatment.startDateSystemicTreatment",
	"chemotherapy_start":     "SystemicTreatment.startDateSystemicTreatment",
	"chemotherapy_end-int":   "SystemicTreatment.endDateSystemicTreatment",
	"chemotherapy_end":       "SystemicTreatment.endDateSystemicTreatment",
	"response-to-int":        "SystemicTreatment.treatmentResponse",

	"radiotherapy_start-int": "Radiotherapy.startDate",
	"radiotherapy_start":     "Radiotherapy.startDate",
	"radiotherapy_end-int":   "Radiotherapy.endDate",
	"radiotherapy_end":       "Radiotherapy.endDate",

	"recur_or_prog-int":   "EpisodeEvent.diseaseStatus",
	"recur_or_prog":       "EpisodeEvent.diseaseStatus",
	"recurrencetype-int":  "EpisodeEvent.recurrenceType",
	"recurrencetype":      "EpisodeEvent.recurrenceType",

	"previous_cancer_treatment-int": "CancerEpisode.previousCancerTreatment",
	"previous_cancer_treatment":     "CancerEpisode.previousCancerTreatment",
	"occurrence_cancer-int":         "CancerEpisode.occurrenceOfOtherCancer",
	"occurrence_cancer":             "CancerEpisode.occurrenceOfOtherCancer",
}

// coreVariableFor resolves a prompt's core_variable: the library's loaded
// entity_mapping, then the builtin table, then the prompt_type itself.
func coreVariableFor(lib *prompts.Library, promptType string) string {
	if lib != nil {
		if tmpl, err := lib.Get(promptType); err == nil {
			if cv := tmpl.Template.Mapping.CoreVariable(); cv != "" {
				return cv
			}
		}
	}
	if cv, ok := builtinCoreVariables[promptType]; ok {
		return cv
	}
	return promptType
}

// entityOf splits a core_variable's Entity.field string on the first dot.
func entityOf(coreVariable string) string {
	if i := strings.IndexByte(coreVariable, '.'); i >= 0 {
		return coreVariable[:i]
	}
	return coreVariable
}

// valueExtractPatterns strip template-formatted prose down to the raw
// value, ported from _extract_value_from_annotation's ordered regex list.
var valueExtractPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?is)^Biopsy grading.*?:\s*(.+?)\.?$`),
	regexp.MustCompile(`(?is)^Patient's gender\s+(.+?)\.?$`),
	regexp.MustCompile(`(?is)^Histological type:\s*(.+?)\.?$`),
	regexp.MustCompile(`(?is)^Tumor site.*?:\s*(.+?)\.?$`),
	regexp.MustCompile(`(?is)^Age at diagnosis:\s*(.+?)\.?$`),
	regexp.MustCompile(`(?is)^Margins after surgery:\s*(.+?)\.?$`),
	regexp.MustCompile(`(?is)^[^:]+:\s*(.+?)\.?$`),
	regexp.MustCompile(`(?is)^Annotation:\s*(.+?)\.?$`),
}

// extractValue strips a known template prefix from an annotation, returning
// just the value. Falls through to the trimmed text when nothing matches.
func extractValue(annotationText string) string {
	text := strings.TrimSpace(annotationText)
	if text == "" {
		return ""
	}
	for _, re := range valueExtractPatterns {
		if m := re.FindStringSubmatch(text); m != nil {
			return strings.TrimSuffix(strings.TrimSpace(m[1]), ".")
		}
	}
	return strings.TrimSuffix(text, ".")
}

var (
	ddmmyyyyRE = regexp.MustCompile(`^\d{1,2}/\d{1,2}/\d{4}$`)
	isoPrefixRE = regexp.MustCompile(`^(\d{4})-(\d{2})-(\d{2})`)
)

// normalizeDateRef renders a date string as DD/MM/YYYY for export,
// ported from _normalize_date. Unparseable input passes through unchanged.
func normalizeDateRef(dateStr string) string {
	dateStr = strings.TrimSpace(dateStr)
	if dateStr == "" {
		return ""
	}
	if ddmmyyyyRE.MatchString(dateStr) {
		return dateStr
	}
	if m := isoPrefixRE.FindStringSubmatch(dateStr); m != nil {
		return m[3] + "/" + m[2] + "/" + m[1]
	}
	return dateStr
}

// dataTypeFor infers a row's `types` column from field-name heuristics,
// ported from _get_data_type_for_variable.
func dataTypeFor(coreVariable string) string {
	field := strings.ToLower(coreVariable)
	if i := strings.IndexByte(field, '.'); i >= 0 {
		field = field[i+1:]
	}

	switch {
	case containsAny(field, "date", "lastcontact", "startdate", "enddate"):
		return "date in the ISO format ISO8601  https://en.wikipedia.org/wiki/ISO_8601"
	case containsAny(field, "age", "count", "number", "cycles"):
		return "Integer"
	case containsAny(field, "bmi", "diameter", "dose", "fractions"):
		return "float"
	case containsAny(field, "rupture", "hyperthermia", "completed"):
		return "boolean"
	case field == "patient" || field == "cancerepisode" || field == "episodeevent" || field == "systemictreatment":
		return "reference"
	case containsAny(field, "hospital", "location", "doneby", "definedat"):
		return "String"
	default:
		return "CodeableConcept"
	}
}

func containsAny(s string, substrs ...string) bool {
	for _, sub := range substrs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// orderedPromptTypes walks a note's annotated prompt types in the session's
// configured order first, then any remainder (e.g. a retired prompt type
// still holding an annotation) in sorted order, so export output is stable
// across runs regardless of Go's randomized map iteration.
func orderedPromptTypes(byPrompt map[string]*model.AnnotationResult, ordered []string) []string {
	seen := map[string]bool{}
	out := make([]string, 0, len(byPrompt))
	for _, pt := range ordered {
		if _, ok := byPrompt[pt]; ok && !seen[pt] {
			out = append(out, pt)
			seen[pt] = true
		}
	}
	var rest []string
	for pt := range byPrompt {
		if !seen[pt] {
			rest = append(rest, pt)
		}
	}
	sort.Strings(rest)
	return append(out, rest...)
}

// recordKey identifies the (patient, entity, date) triple that shares a
// record_id across fields describing the same clinical event.
type recordKey struct {
	patientID, entity, dateRef string
}

// BuildRows walks every (note, prompt) annotation with non-empty
// annotation_text and produces the shared row set both exports start from.
// lib may be nil, in which case only the builtin core-variable table and
// pass-through fallback apply.
func BuildRows(sess *model.Session, lib *prompts.Library) []Row {
	tracker := map[recordKey]int{}
	nextRecordID := 0

	var rows []Row
	for _, note := range sess.Notes {
		byPrompt, ok := sess.Annotations[note.NoteID]
		if !ok {
			continue
		}
		noteID := note.NoteID
		patientID := note.PatientID
		noteDate := normalizeDateRef(note.Date)

		for _, promptType := range orderedPromptTypes(byPrompt, sess.PromptTypes) {
			ann := byPrompt[promptType]
			if ann == nil || strings.TrimSpace(ann.AnnotationText) == "" {
				continue
			}

			value := extractValue(ann.AnnotationText)
			coreVariable := coreVariableFor(lib, promptType)
			entity := entityOf(coreVariable)

			dateRef := noteDate
			if ann.DateInfo != nil && ann.DateInfo.DateValue != "" {
				dateRef = normalizeDateRef(ann.DateInfo.DateValue)
			}

			key := recordKey{patientID, entity, dateRef}
			id, seen := tracker[key]
			if !seen {
				nextRecordID++
				id = nextRecordID
				tracker[key] = id
			}

			icdo3Code := ""
			if ann.ICDO3 != nil {
				icdo3Code = ann.ICDO3.Code
			}

			rows = append(rows, Row{
				NoteID:         noteID,
				PromptType:     promptType,
				PatientID:      patientID,
				OriginalSource: "NLP_LLM",
				CoreVariable:   coreVariable,
				DateRef:        dateRef,
				Value:          value,
				RecordID:       id,
				Types:          dataTypeFor(coreVariable),
				ICDO3Code:      icdo3Code,
				Entity:         entity,
			})
		}
	}
	return rows
}

func itoa(n int) string {
	return strconv.Itoa(n)
}
