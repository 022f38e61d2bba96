package export

import (
	"encoding/csv"
	"io"
	"strconv"

	"github.com/clinicalpipe/annotator/internal/model"
	"github.com/clinicalpipe/annotator/internal/prompts"
)

// diagnosisMergeVars are the two core variables merged into a single
// Diagnosis.diagnosisCode row by the unified ICD-O-3 selection, per
// spec.md §4.G.
var diagnosisMergeVars = map[string]bool{
	"Diagnosis.histologySubgroup": true,
	"Diagnosis.subsite":           true,
}

// CodedRow is a Row plus the two columns the coded export adds.
type CodedRow struct {
	Row
	MatchConfidence string
	MatchMethod     string
}

// CodedColumns is the stable column order for the coded export.
var CodedColumns = []string{
	"patient_id", "original_source", "core_variable", "date_ref",
	"value", "record_id", "linked_to", "quality", "types",
	"icdo3_code", "entity", "match_confidence", "match_method",
}

// valueCodeLookup returns, per prompt type, the first field mapping's
// value_code_mappings table, mirroring export_session_coded's
// value_code_lookup construction.
func valueCodeLookup(lib *prompts.Library) map[string]map[string]string {
	lookup := map[string]map[string]string{}
	if lib == nil {
		return lookup
	}
	for _, promptType := range lib.All() {
		tmpl, err := lib.Get(promptType)
		if err != nil || tmpl.Template.Mapping == nil {
			continue
		}
		for _, fm := range tmpl.Template.Mapping.Fields {
			if len(fm.ValueToCodeMap) > 0 {
				lookup[promptType] = fm.ValueToCodeMap
				break
			}
		}
	}
	return lookup
}

// BuildCodedRows resolves every CodeableConcept row's value to a code,
// merges histology+subsite rows into one diagnosisCode row per note using
// the session's saved unified selection, and passes non-coded rows through
// unchanged. Grounded on export_session_coded.
func BuildCodedRows(sess *model.Session, lib *prompts.Library, resolver *CodeResolver, rows []Row) []CodedRow {
	lookup := valueCodeLookup(lib)

	diagAdded := map[string]bool{}
	var out []CodedRow

	for _, row := range rows {
		if diagnosisMergeVars[row.CoreVariable] {
			if diagAdded[row.NoteID] {
				continue
			}
			diagAdded[row.NoteID] = true

			queryCode := ""
			if sess.UnifiedCodes != nil {
				if u, ok := sess.UnifiedCodes[row.NoteID]; ok && u != nil {
					queryCode = u.Code
				}
			}

			value, confidence, method := queryCode, 1.0, "unified_icdo3"
			if queryCode == "" {
				value, confidence, method = "UNRESOLVED::no_unified_icdo3_code", 0.0, "unresolved"
			}

			merged := row
			merged.CoreVariable = "Diagnosis.diagnosisCode"
			merged.Types = "CodeableConcept"
			merged.ICDO3Code = queryCode
			merged.Entity = "Diagnosis"
			merged.Value = value
			out = append(out, CodedRow{
				Row:             merged,
				MatchConfidence: formatConfidence(confidence),
				MatchMethod:     method,
			})
			continue
		}

		if row.Types != "CodeableConcept" {
			out = append(out, CodedRow{Row: row})
			continue
		}

		rawValue := row.Value
		if vcm, ok := lookup[row.PromptType]; ok {
			if code, ok := vcm[rawValue]; ok {
				out = append(out, CodedRow{
					Row:             withValue(row, code),
					MatchConfidence: formatConfidence(1.0),
					MatchMethod:     "value_code_mapping",
				})
				continue
			}
		}

		codeID, confidence, method := "", 0.0, "unresolved"
		if resolver != nil {
			codeID, confidence, method = resolver.Resolve(rawValue, row.CoreVariable)
		}
		value := codeID
		if codeID == "" {
			value = "UNRESOLVED::" + rawValue
		}
		out = append(out, CodedRow{
			Row:             withValue(row, value),
			MatchConfidence: formatConfidence(confidence),
			MatchMethod:     method,
		})
	}

	return out
}

func withValue(r Row, value string) Row {
	r.Value = value
	return r
}

func formatConfidence(c float64) string {
	return strconv.FormatFloat(c, 'f', -1, 64)
}

// WriteCodedCSV streams the coded export.
func WriteCodedCSV(w io.Writer, rows []CodedRow) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(CodedColumns); err != nil {
		return err
	}
	for _, r := range rows {
		record := []string{
			r.PatientID, r.OriginalSource, r.CoreVariable, r.DateRef,
			r.Value, itoa(r.RecordID), r.LinkedTo, r.Quality, r.Types,
			r.ICDO3Code, r.Entity, r.MatchConfidence, r.MatchMethod,
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
