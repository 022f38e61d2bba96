package annotate

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/clinicalpipe/annotator/internal/model"
	"github.com/clinicalpipe/annotator/internal/prompts"
)

func TestAssemblePrompt_SimpleSubstitutesNoteOnly(t *testing.T) {
	out := assemblePrompt("Report: {note}", "patient is stable", nil, prompts.Simple, "")
	assert.Equal(t, "Report: patient is stable", out)
}

func TestAssemblePrompt_StructuredAppendsJSONContract(t *testing.T) {
	out := assemblePrompt("### Input:\n{note}", "patient is stable", nil, prompts.Structured, "01/01/2020")
	assert.Contains(t, out, "patient is stable")
	assert.Contains(t, out, "Output Format (JSON)")
	assert.Contains(t, out, "CSV Date: 01/01/2020")
}

func TestAssemblePrompt_RendersFewshots(t *testing.T) {
	examples := []model.FewShotExample{{NoteText: "note A", GoldAnnotation: "Gender: male"}}
	out := assemblePrompt("{fewshots}\n{note}", "note B", examples, prompts.Simple, "")
	assert.Contains(t, out, "note A")
	assert.Contains(t, out, "Gender: male")
	assert.Contains(t, out, "note B")
}

func TestCsvDateFor(t *testing.T) {
	assert.Equal(t, "01/01/2020", csvDateFor(model.Note{Date: "01/01/2020"}))
	assert.Equal(t, "", csvDateFor(model.Note{}))
}
