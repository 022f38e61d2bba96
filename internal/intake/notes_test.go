package intake

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseNotesCSV_BasicRow(t *testing.T) {
	input := "text,date,p_id,note_id,report_type\n" +
		"Patient presents with fatigue.,01/01/2021,p1,n1,pathology\n"

	notes, err := ParseNotesCSV(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, notes, 1)
	assert.Equal(t, "Patient presents with fatigue.", notes[0].Text)
	assert.Equal(t, "01/01/2021", notes[0].Date)
	assert.Equal(t, "p1", notes[0].PatientID)
	assert.Equal(t, "n1", notes[0].NoteID)
	assert.Equal(t, "pathology", notes[0].ReportType)
}

func TestParseNotesCSV_UnquotedCommaInTextIsNotTruncated(t *testing.T) {
	input := "text,date,p_id,note_id,report_type\n" +
		"Patient has, stage III cancer,01/01/2021,p1,n1,pathology\n"

	notes, err := ParseNotesCSV(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, notes, 1)
	assert.Equal(t, "Patient has, stage III cancer", notes[0].Text)
	assert.Equal(t, "01/01/2021", notes[0].Date)
	assert.Equal(t, "p1", notes[0].PatientID)
	assert.Equal(t, "n1", notes[0].NoteID)
	assert.Equal(t, "pathology", notes[0].ReportType)
}

func TestParseNotesCSV_TextNotInFirstColumn(t *testing.T) {
	input := "note_id,p_id,date,text,report_type\n" +
		"n1,p1,01/01/2021,Patient has, cancer,pathology\n"

	notes, err := ParseNotesCSV(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, notes, 1)
	assert.Equal(t, "Patient has, cancer", notes[0].Text)
	assert.Equal(t, "n1", notes[0].NoteID)
	assert.Equal(t, "p1", notes[0].PatientID)
	assert.Equal(t, "01/01/2021", notes[0].Date)
	assert.Equal(t, "pathology", notes[0].ReportType)
}

func TestParseNotesCSV_SemicolonDelimiter(t *testing.T) {
	input := "text;date;p_id;note_id;report_type\n" +
		"Patient presents with, a comma in text;01/01/2021;p1;n1;pathology\n"

	notes, err := ParseNotesCSV(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, notes, 1)
	assert.Equal(t, "Patient presents with, a comma in text", notes[0].Text)
}

func TestParseNotesCSV_OptionalAnnotationsColumn(t *testing.T) {
	input := "text,date,p_id,note_id,report_type,annotations\n" +
		"Note text.,01/01/2021,p1,n1,pathology,\"prompt_a=foo|prompt_b=bar\"\n"

	notes, err := ParseNotesCSV(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, notes, 1)
	assert.Equal(t, "prompt_a=foo|prompt_b=bar", notes[0].GoldAnnotations)
	assert.True(t, notes[0].HasGold())
}

func TestParseNotesCSV_MissingRequiredColumnErrors(t *testing.T) {
	input := "date,p_id,note_id,report_type\n01/01/2021,p1,n1,pathology\n"
	_, err := ParseNotesCSV(strings.NewReader(input))
	assert.Error(t, err)
}
