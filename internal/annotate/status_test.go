package annotate

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/clinicalpipe/annotator/internal/model"
)

func TestDetermineStatus_Error(t *testing.T) {
	r := model.AnnotationResult{AnnotationText: "ERROR: LLM timed out"}
	assert.Equal(t, model.StatusError, determineStatus(r))
}

func TestDetermineStatus_IncompleteByEllipsis(t *testing.T) {
	r := model.AnnotationResult{AnnotationText: "male", Reasoning: "The note states the patient is male, and also..."}
	assert.Equal(t, model.StatusIncomplete, determineStatus(r))
}

func TestDetermineStatus_IncompleteByLength(t *testing.T) {
	r := model.AnnotationResult{AnnotationText: "male", Reasoning: strings.Repeat("a", 901)}
	assert.Equal(t, model.StatusIncomplete, determineStatus(r))
}

func TestDetermineStatus_EmptyAnnotationWithExplicitUnavailability(t *testing.T) {
	r := model.AnnotationResult{AnnotationText: "", Reasoning: "The date is not stated anywhere in the note."}
	assert.Equal(t, model.StatusSuccess, determineStatus(r))
}

func TestDetermineStatus_Success(t *testing.T) {
	r := model.AnnotationResult{AnnotationText: "Gender: male", Reasoning: "The note explicitly states the patient is male."}
	assert.Equal(t, model.StatusSuccess, determineStatus(r))
}
