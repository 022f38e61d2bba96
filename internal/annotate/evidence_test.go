package annotate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFindEvidenceSpan_ExactMatch(t *testing.T) {
	note := "Patient presents with a 3cm mass in the upper left lobe. No lymph node involvement noted."
	span, ok := findEvidenceSpan(note, "3cm mass in the upper left lobe", "site-int")
	require.True(t, ok)
	assert.Equal(t, "3cm mass in the upper left lobe", span.Text)
	assert.Equal(t, "site-int", span.PromptType)
}

func TestFindEvidenceSpan_CaseInsensitive(t *testing.T) {
	note := "The patient denies fever or chills."
	span, ok := findEvidenceSpan(note, "DENIES FEVER", "symptom-int")
	require.True(t, ok)
	assert.Equal(t, "denies fever", span.Text)
}

func TestFindEvidenceSpan_AccentNormalized(t *testing.T) {
	note := "Diagnóstico: carcinoma de células escamosas del pulmón derecho."
	span, ok := findEvidenceSpan(note, "diagnostico: carcinoma de celulas escamosas", "histological-tipo-int")
	require.True(t, ok)
	assert.Contains(t, span.Text, "Diagnóstico")
}

func TestFindEvidenceSpan_FirstWordAnchorFallback(t *testing.T) {
	note := "Histopathology confirms invasive ductal carcinoma with clear margins observed throughout."
	// Evidence paraphrases slightly, so exact and normalized search both miss;
	// the anchor strategy should still recover a plausible span.
	span, ok := findEvidenceSpan(note, "invasive ductal carcinoma clear margins", "histological-tipo-int")
	require.True(t, ok)
	assert.Contains(t, span.Text, "invasive")
}

func TestFindEvidenceSpan_NoMatch(t *testing.T) {
	_, ok := findEvidenceSpan("The patient is stable.", "metastatic spread to liver", "site-int")
	assert.False(t, ok)
}

func TestFindEvidenceSpan_EmptyEvidence(t *testing.T) {
	_, ok := findEvidenceSpan("some note text", "", "gender-int")
	assert.False(t, ok)
}
