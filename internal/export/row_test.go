package export

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinicalpipe/annotator/internal/model"
)

func TestCoreVariableFor_FallsBackToBuiltinTable(t *testing.T) {
	assert.Equal(t, "Patient.sex", coreVariableFor(nil, "gender-int"))
	assert.Equal(t, "some-unknown-prompt", coreVariableFor(nil, "some-unknown-prompt"))
}

func TestEntityOf(t *testing.T) {
	assert.Equal(t, "Diagnosis", entityOf("Diagnosis.histologySubgroup"))
	assert.Equal(t, "gender-int", entityOf("gender-int"))
}

func TestExtractValue_StripsTemplatePrefix(t *testing.T) {
	assert.Equal(t, "3", extractValue("Biopsy grading (FNCLCC): 3."))
	assert.Equal(t, "male", extractValue("Patient's gender male."))
	assert.Equal(t, "Undifferentiated sarcoma (8805/3)", extractValue("Histological type: Undifferentiated sarcoma (8805/3)."))
}

func TestNormalizeDateRef(t *testing.T) {
	assert.Equal(t, "05/06/2021", normalizeDateRef("05/06/2021"))
	assert.Equal(t, "05/06/2021", normalizeDateRef("2021-06-05"))
	assert.Equal(t, "", normalizeDateRef(""))
}

func TestDataTypeFor(t *testing.T) {
	assert.Equal(t, "Integer", dataTypeFor("Diagnosis.ageAtDiagnosis"))
	assert.Equal(t, "float", dataTypeFor("Patient.bmi"))
	assert.Equal(t, "CodeableConcept", dataTypeFor("Diagnosis.histologySubgroup"))
	assert.Contains(t, dataTypeFor("PatientFollowUp.lastContact"), "ISO")
}

func buildTestSession() *model.Session {
	return &model.Session{
		Notes: []model.Note{
			{NoteID: "n1", PatientID: "p1", Date: "01/01/2021"},
		},
		PromptTypes: []string{"gender-int", "histological-tipo-int", "tumorsite-int"},
		Annotations: map[string]map[string]*model.AnnotationResult{
			"n1": {
				"gender-int":            {AnnotationText: "Patient's gender male."},
				"histological-tipo-int": {AnnotationText: "Histological type: Osteosarcoma (9180/3)."},
				"tumorsite-int":         {AnnotationText: "Tumor site: Femur."},
			},
		},
	}
}

func TestBuildRows_AssignsSharedRecordIDByPatientEntityDate(t *testing.T) {
	sess := buildTestSession()
	rows := BuildRows(sess, nil)
	require.Len(t, rows, 3)

	assert.Equal(t, "Patient.sex", rows[0].CoreVariable)
	assert.Equal(t, "male", rows[0].Value)
	assert.Equal(t, "Diagnosis", rows[1].Entity)
	assert.Equal(t, "Diagnosis", rows[2].Entity)
	assert.Equal(t, rows[1].RecordID, rows[2].RecordID, "same entity+date fields should share a record id")
	assert.NotEqual(t, rows[0].RecordID, rows[1].RecordID, "different entities should not share a record id")
}

func TestBuildRows_SkipsEmptyAnnotationText(t *testing.T) {
	sess := buildTestSession()
	sess.Annotations["n1"]["gender-int"] = &model.AnnotationResult{AnnotationText: "  "}
	rows := BuildRows(sess, nil)
	require.Len(t, rows, 2)
	assert.Equal(t, "histological-tipo-int", rows[0].PromptType)
	assert.Equal(t, "tumorsite-int", rows[1].PromptType)
}

func TestOrderedPromptTypes_SessionOrderFirstThenSortedRemainder(t *testing.T) {
	byPrompt := map[string]*model.AnnotationResult{
		"z-orphan":   {},
		"gender-int": {},
	}
	out := orderedPromptTypes(byPrompt, []string{"gender-int"})
	assert.Equal(t, []string{"gender-int", "z-orphan"}, out)
}
