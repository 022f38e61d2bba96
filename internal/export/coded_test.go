package export

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinicalpipe/annotator/internal/model"
)

func TestBuildCodedRows_MergesHistologyAndSubsiteIntoDiagnosisCode(t *testing.T) {
	sess := buildTestSession()
	sess.UnifiedCodes = map[string]*model.UnifiedICDO3Code{
		"n1": {Code: "9180/3-C40.9", Name: "Osteosarcoma of long bones of limb"},
	}
	rows := BuildRows(sess, nil)

	coded := BuildCodedRows(sess, nil, nil, rows)

	var diagRows int
	for _, r := range coded {
		if r.CoreVariable == "Diagnosis.diagnosisCode" {
			diagRows++
			assert.Equal(t, "9180/3-C40.9", r.Value)
			assert.Equal(t, "unified_icdo3", r.MatchMethod)
		}
		assert.NotEqual(t, "Diagnosis.histologySubgroup", r.CoreVariable)
		assert.NotEqual(t, "Diagnosis.subsite", r.CoreVariable)
	}
	assert.Equal(t, 1, diagRows, "the two diagnosis source rows collapse into exactly one")
}

func TestBuildCodedRows_NoUnifiedCodeEmitsUnresolved(t *testing.T) {
	sess := buildTestSession()
	rows := BuildRows(sess, nil)

	coded := BuildCodedRows(sess, nil, nil, rows)

	for _, r := range coded {
		if r.CoreVariable == "Diagnosis.diagnosisCode" {
			assert.Equal(t, "UNRESOLVED::no_unified_icdo3_code", r.Value)
			assert.Equal(t, "unresolved", r.MatchMethod)
		}
	}
}

func TestBuildCodedRows_NonCodeableConceptPassesThrough(t *testing.T) {
	sess := &model.Session{
		Notes: []model.Note{{NoteID: "n1", PatientID: "p1", Date: "01/01/2021"}},
		PromptTypes: []string{"ageatdiagnosis-int"},
		Annotations: map[string]map[string]*model.AnnotationResult{
			"n1": {"ageatdiagnosis-int": {AnnotationText: "Age at diagnosis: 54"}},
		},
	}
	rows := BuildRows(sess, nil)
	require.Len(t, rows, 1)
	require.Equal(t, "Integer", rows[0].Types)

	coded := BuildCodedRows(sess, nil, nil, rows)
	require.Len(t, coded, 1)
	assert.Equal(t, "54", coded[0].Value)
	assert.Equal(t, "", coded[0].MatchMethod)
}

func TestWriteCodedCSV_Header(t *testing.T) {
	var buf strings.Builder
	require.NoError(t, WriteCodedCSV(&buf, nil))
	assert.Contains(t, buf.String(), "match_confidence,match_method")
}
