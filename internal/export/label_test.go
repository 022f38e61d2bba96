package export

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteLabelCSV_HeaderAndRow(t *testing.T) {
	rows := []Row{
		{PatientID: "p1", OriginalSource: "NLP_LLM", CoreVariable: "Patient.sex",
			DateRef: "01/01/2021", Value: "male", RecordID: 1, Types: "CodeableConcept", Entity: "Patient"},
	}

	var buf strings.Builder
	require.NoError(t, WriteLabelCSV(&buf, rows))

	out := buf.String()
	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "patient_id,original_source,core_variable,date_ref,value,record_id,linked_to,quality,types,icdo3_code,entity", lines[0])
	assert.Contains(t, lines[1], "p1,NLP_LLM,Patient.sex,01/01/2021,male,1")
}
