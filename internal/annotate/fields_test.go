package annotate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvaluateTemplateFields_BothPlaceholder(t *testing.T) {
	template := "Gender: [select male/female]."
	fields := evaluateTemplateFields(template, "Gender: [select male/female].", "Gender: [select male/female].")
	require.Len(t, fields, 1)
	assert.Equal(t, "both_placeholder", fields[0].MatchType)
	assert.True(t, fields[0].Match)
}

func TestEvaluateTemplateFields_ExtractionSuccess(t *testing.T) {
	template := "Gender: [select male/female]."
	fields := evaluateTemplateFields(template, "Gender: [select male/female].", "Gender: male.")
	require.Len(t, fields, 1)
	assert.Equal(t, "extraction_success", fields[0].MatchType)
	assert.True(t, fields[0].Match)
}

func TestEvaluateTemplateFields_ExtractionFailed(t *testing.T) {
	template := "Gender: [select male/female]."
	fields := evaluateTemplateFields(template, "Gender: male.", "Gender: [select male/female].")
	require.Len(t, fields, 1)
	assert.Equal(t, "extraction_failed", fields[0].MatchType)
	assert.False(t, fields[0].Match)
}

func TestEvaluateTemplateFields_AbsenceIndicatorWithPlaceholderIsExtractionSuccess(t *testing.T) {
	// Testable property: a gold absence indicator paired with a
	// placeholder-containing prediction counts as extraction_success.
	template := "Gender: [select male/female]."
	fields := evaluateTemplateFields(template, "Gender: Not applicable.", "Gender: [select male/female].")
	require.Len(t, fields, 1)
	assert.Equal(t, "extraction_success", fields[0].MatchType)
	assert.True(t, fields[0].Match)
}

func TestEvaluateTemplateFields_FalsePositive(t *testing.T) {
	template := "Note: [free text]"
	fields := evaluateTemplateFields(template, "Note: ", "Note: incidental finding")
	require.Len(t, fields, 1)
	assert.Equal(t, "false_positive", fields[0].MatchType)
	assert.False(t, fields[0].Match)
}

func TestEvaluateTemplateFields_CategoricalFuzzyMatch(t *testing.T) {
	template := "Status: [select negative/positive]"
	fields := evaluateTemplateFields(template, "Status: positive", "Status: positives")
	require.Len(t, fields, 1)
	assert.True(t, fields[0].Match)
}

func TestEvaluateTemplateFields_CategoricalNegationPrefixMismatch(t *testing.T) {
	template := "Invasion: [select invasive/noninvasive]"
	fields := evaluateTemplateFields(template, "Invasion: invasive", "Invasion: noninvasive")
	require.Len(t, fields, 1)
	assert.False(t, fields[0].Match)
}

func TestEvaluateTemplateFields_DateField(t *testing.T) {
	template := "Date: [DD/MM/YYYY]"
	fields := evaluateTemplateFields(template, "Date: 05/06/2021", "Date: 2021-06-05")
	require.Len(t, fields, 1)
	assert.Equal(t, "date", fields[0].FieldType)
	assert.True(t, fields[0].Match)
}

func TestEvaluateTemplateFields_NoPlaceholdersReturnsNil(t *testing.T) {
	assert.Nil(t, evaluateTemplateFields("a plain template with no placeholders", "x", "y"))
}
