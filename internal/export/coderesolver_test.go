package export

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTestDict(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "id2codes_dict.json")
	content := `{
		"SEX-M": "Sex - Male",
		"SEX-F": "Sex - Female",
		"GRD-1": "Grading - Well differentiated (G1)",
		"GRD-2": "Grading - Moderately differentiated (G2)"
	}`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestCodeResolver_ExactMatch(t *testing.T) {
	r, err := LoadCodeResolver(writeTestDict(t))
	require.NoError(t, err)

	id, confidence, method := r.Resolve("Male", "Patient.sex")
	assert.Equal(t, "SEX-M", id)
	assert.Equal(t, 1.0, confidence)
	assert.Equal(t, "exact", method)
}

func TestCodeResolver_FuzzyMatch(t *testing.T) {
	r, err := LoadCodeResolver(writeTestDict(t))
	require.NoError(t, err)

	id, _, method := r.Resolve("Well diferentiated (G1)", "Diagnosis.grading")
	assert.Equal(t, "GRD-1", id)
	assert.Contains(t, []string{"exact", "contains", "fuzzy"}, method)
}

func TestCodeResolver_UnknownCoreVariable(t *testing.T) {
	r, err := LoadCodeResolver(writeTestDict(t))
	require.NoError(t, err)

	id, confidence, method := r.Resolve("anything", "Diagnosis.unknownField")
	assert.Equal(t, "", id)
	assert.Equal(t, 0.0, confidence)
	assert.Equal(t, "unresolved", method)
}

func TestCodeResolver_NoMatch(t *testing.T) {
	r, err := LoadCodeResolver(writeTestDict(t))
	require.NoError(t, err)

	id, _, method := r.Resolve("completely unrelated nonsense text here", "Patient.sex")
	assert.Equal(t, "", id)
	assert.Equal(t, "unresolved", method)
}
