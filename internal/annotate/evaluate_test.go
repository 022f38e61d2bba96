package annotate

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/clinicalpipe/annotator/internal/model"
)

func TestExactMatchStrings(t *testing.T) {
	assert.True(t, exactMatchStrings("Male", "male"))
	assert.True(t, exactMatchStrings("", ""))
	assert.False(t, exactMatchStrings("male", ""))
	assert.True(t, exactMatchStrings("Adenocarcinoma.", "adenocarcinoma"))
	assert.False(t, exactMatchStrings("adenocarcinoma", "squamous cell carcinoma"))
}

func TestCosineSimilarityScore_IdenticalIsOne(t *testing.T) {
	score := cosineSimilarityScore("invasive ductal carcinoma", "invasive ductal carcinoma")
	assert.InDelta(t, 1.0, score, 0.001)
}

func TestCosineSimilarityScore_DisjointIsZero(t *testing.T) {
	score := cosineSimilarityScore("invasive ductal carcinoma", "renal cell tumor")
	assert.Less(t, score, 0.2)
}

func TestEvaluateAnnotation_ExactMatch(t *testing.T) {
	result := EvaluateAnnotation("Gender: male", "Gender: male", "")
	assert.True(t, result.ExactMatch)
	assert.True(t, result.OverallMatch)
	assert.Equal(t, "match", result.MatchType)
}

func TestEvaluateAnnotation_HighSimilarityCountsAsMatch(t *testing.T) {
	result := EvaluateAnnotation(
		"Histology: invasive ductal carcinoma grade 2",
		"Histology: invasive ductal carcinoma, grade 2",
		"")
	assert.False(t, result.ExactMatch)
	assert.True(t, result.OverallMatch)
	assert.True(t, result.HighSimilarity)
}

func TestEvaluateAnnotation_Mismatch(t *testing.T) {
	result := EvaluateAnnotation("Gender: male", "Gender: female", "")
	assert.False(t, result.OverallMatch)
	assert.Equal(t, "mismatch", result.MatchType)
}

func TestCompareValues_DatesMatch(t *testing.T) {
	exp := extractStructuredValues("Surgery performed on 12/03/2020.")
	pred := extractStructuredValues("Surgery on 12/03/2020 as documented.")
	details, total, matched := compareValues(exp, pred)
	assert.Equal(t, 1, total)
	assert.Equal(t, 1, matched)
	assert.Equal(t, "dates", details[0].Field)
}

func TestCompareValues_NumbersWithUnitsMismatch(t *testing.T) {
	exp := extractStructuredValues("Tumor size 45 mm.")
	pred := extractStructuredValues("Tumor size 30 mm.")
	_, total, matched := compareValues(exp, pred)
	assert.Equal(t, 1, total)
	assert.Equal(t, 0, matched)
}

func TestBatchEvaluate_Empty(t *testing.T) {
	stats := BatchEvaluate(nil)
	assert.Equal(t, float64(0), stats["total"])
}

func TestBatchEvaluate_AggregatesRates(t *testing.T) {
	results := []model.EvaluationResult{
		{ExactMatch: true, HighSimilarity: true, OverallMatch: true, SimilarityScore: 1.0},
		{ExactMatch: false, HighSimilarity: false, OverallMatch: false, SimilarityScore: 0.2},
	}
	stats := BatchEvaluate(results)
	assert.Equal(t, float64(2), stats["total"])
	assert.Equal(t, float64(1), stats["exact_matches"])
	assert.InDelta(t, 0.5, stats["exact_match_rate"], 0.0001)
}
