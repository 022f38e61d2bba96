package dictionary

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTestCSV(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "codes.csv")
	content := "Query,Morphology,Topography,NAME\n" +
		"8140/3-C34.1,8140/3,C34.1,Adenocarcinoma of upper lobe lung\n" +
		"8140/3-C34.9,8140/3,C34.9,Adenocarcinoma of lung NOS\n" +
		"8070/3-C32.0,8070/3,C32.0,Squamous cell carcinoma of glottis\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestResolveExactQueryCode(t *testing.T) {
	idx := New(writeTestCSV(t))
	require.NoError(t, idx.Load())

	row, score, method := idx.Resolve(Query{QueryCode: "8140/3-C34.1"})
	require.NotNil(t, row)
	assert.Equal(t, 1.0, score)
	assert.Equal(t, "exact", method)
	assert.Equal(t, "Adenocarcinoma of upper lobe lung", row.get("NAME"))
}

func TestResolveCombinedCode(t *testing.T) {
	idx := New(writeTestCSV(t))
	require.NoError(t, idx.Load())

	row, score, method := idx.Resolve(Query{MorphologyCode: "8140/3", TopographyCode: "C34.9"})
	require.NotNil(t, row)
	assert.Equal(t, 0.9, score)
	assert.Equal(t, "combined", method)
}

func TestResolvePartialMorphologyFallback(t *testing.T) {
	idx := New(writeTestCSV(t))
	require.NoError(t, idx.Load())

	row, score, method := idx.Resolve(Query{MorphologyCode: "8070/3"})
	require.NotNil(t, row)
	assert.Equal(t, 0.3, score)
	assert.Equal(t, "partial_morphology", method)
}

func TestResolveNoMatch(t *testing.T) {
	idx := New(writeTestCSV(t))
	require.NoError(t, idx.Load())

	row, score, method := idx.Resolve(Query{QueryCode: "9999/9-Z99.9"})
	assert.Nil(t, row)
	assert.Equal(t, 0.0, score)
	assert.Equal(t, "no_match", method)
}

func TestFindTopCandidatesDedupesAndSorts(t *testing.T) {
	idx := New(writeTestCSV(t))
	require.NoError(t, idx.Load())

	cands := idx.FindTopCandidates(Query{MorphologyCode: "8140/3"}, 5)
	require.Len(t, cands, 2)
	for i := 1; i < len(cands); i++ {
		assert.GreaterOrEqual(t, cands[i-1].Score, cands[i].Score)
	}
}

func TestValidateCombination(t *testing.T) {
	idx := New(writeTestCSV(t))
	require.NoError(t, idx.Load())

	result := idx.ValidateCombination("8140/3", "C34.1")
	assert.True(t, result.Valid)
	assert.Equal(t, "8140/3-C34.1", result.QueryCode)

	result = idx.ValidateCombination("8140/3", "Z99.9")
	assert.False(t, result.Valid)
	assert.True(t, result.MorphologyValid)
	assert.False(t, result.TopographyValid)
}

func TestTopographiesForMorphology(t *testing.T) {
	idx := New(writeTestCSV(t))
	require.NoError(t, idx.Load())

	opts := idx.TopographiesFor("8140/3", 10)
	require.Len(t, opts, 2)
	assert.Equal(t, "C34.1", opts[0].Code)
	assert.Equal(t, "C34.9", opts[1].Code)
}

func TestSearchByTextExactCodeWins(t *testing.T) {
	idx := New(writeTestCSV(t))
	require.NoError(t, idx.Load())

	results := idx.SearchByText("8140/3-C34.1", "", "", 10)
	require.NotEmpty(t, results)
	assert.Equal(t, 1.0, results[0].MatchScore)
}

func TestLoadMissingFileReturnsUnavailable(t *testing.T) {
	idx := New(filepath.Join(t.TempDir(), "missing.csv"))
	err := idx.Load()
	require.Error(t, err)
}
