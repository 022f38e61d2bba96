package annotate

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/clinicalpipe/annotator/internal/dictionary"
)

func TestIsHistologyOrSitePrompt(t *testing.T) {
	cases := map[string]bool{
		"histological-tipo-int": true,
		"tumor-site-int":        true,
		"gender-int":            false,
		"site-description-int":  false, // no "tumor" qualifier
	}
	for promptType, want := range cases {
		if got := isHistologyOrSitePrompt(promptType); got != want {
			t.Errorf("isHistologyOrSitePrompt(%q) = %v, want %v", promptType, got, want)
		}
	}
}

func TestExtractCodesFromText(t *testing.T) {
	morph, topo := extractCodesFromText("Diagnosis coded as 8500/3 - C50.9 in the registry.")
	require.Equal(t, "8500/3", morph)
	require.Equal(t, "C50.9", topo)
}

func newTestDictionary(t *testing.T) *dictionary.Index {
	t.Helper()
	path := filepath.Join(t.TempDir(), "icdo3.csv")
	content := "Query,Morphology,Topography,NAME\n" +
		"8500/3-C50.9,8500/3,C50.9,Infiltrating duct carcinoma of breast\n" +
		"8140/3-C34.9,8140/3,C34.9,Adenocarcinoma of lung\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	idx := dictionary.New(path)
	require.NoError(t, idx.Load())
	return idx
}

func TestEngine_ResolveICDO3_ExactCodeInText(t *testing.T) {
	e := &Engine{dict: newTestDictionary(t)}
	info := e.resolveICDO3(context.Background(), "note text", "Invasive ductal carcinoma 8500/3 - C50.9", "histological-tipo-int")
	require.NotNil(t, info)
	require.NotEmpty(t, info.Candidates)
	require.Equal(t, "8500/3-C50.9", info.Code)
}

func TestEngine_ResolveICDO3_NoDictionaryReturnsNil(t *testing.T) {
	e := &Engine{}
	info := e.resolveICDO3(context.Background(), "note", "some text", "histological-tipo-int")
	require.Nil(t, info)
}
