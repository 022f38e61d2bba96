package intake

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFewshotCSV_GroupsByPromptType(t *testing.T) {
	input := "prompt_type,note_text,annotation\n" +
		"biopsygrading-int,Note one.,Grade: G2\n" +
		"biopsygrading-int,Note two.,Grade: G1\n" +
		"sex-int,Note three.,Sex: male\n"

	grouped, err := ParseFewshotCSV(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, grouped["biopsygrading-int"], 2)
	require.Len(t, grouped["sex-int"], 1)
	assert.Equal(t, "Note one.", grouped["biopsygrading-int"][0].NoteText)
	assert.Equal(t, "Grade: G2", grouped["biopsygrading-int"][0].GoldAnnotation)
	assert.Equal(t, "Sex: male", grouped["sex-int"][0].GoldAnnotation)
}

func TestParseFewshotCSV_SkipsBlankPromptType(t *testing.T) {
	input := "prompt_type,note_text,annotation\n,Note.,Anno.\n"
	grouped, err := ParseFewshotCSV(strings.NewReader(input))
	require.NoError(t, err)
	assert.Empty(t, grouped)
}

func TestParseFewshotCSV_MissingRequiredColumnErrors(t *testing.T) {
	input := "note_text,annotation\nNote.,Anno.\n"
	_, err := ParseFewshotCSV(strings.NewReader(input))
	assert.Error(t, err)
}
