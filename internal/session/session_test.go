package session

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinicalpipe/annotator/internal/model"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	return New(filepath.Join(t.TempDir(), "sessions"))
}

func TestCreateFromNotes_EvaluationModeUpgrade(t *testing.T) {
	store := newTestStore(t)

	notes := []model.Note{
		{NoteID: "N1", PatientID: "P1", ReportType: "CCE", Text: "x"},
		{NoteID: "N2", PatientID: "P1", ReportType: "CCE", Text: "y", GoldAnnotations: "gender-int: male"},
	}
	sess, err := store.CreateFromNotes("s1", "", notes, []string{"gender-int"})
	require.NoError(t, err)
	assert.Equal(t, model.ModeEvaluation, sess.EvaluationMode)

	fetched, err := store.Get(sess.SessionID)
	require.NoError(t, err)
	assert.Equal(t, sess.SessionID, fetched.SessionID)
	assert.Len(t, fetched.Notes, 2)
}

func TestCreateFromNotes_NoGoldStaysValidation(t *testing.T) {
	store := newTestStore(t)
	notes := []model.Note{{NoteID: "N1", PatientID: "P1", ReportType: "CCE", Text: "x"}}
	sess, err := store.CreateFromNotes("s1", "", notes, nil)
	require.NoError(t, err)
	assert.Equal(t, model.ModeValidation, sess.EvaluationMode)
}

func TestApplyPatch_MappingPrunesOrphanedAnnotations(t *testing.T) {
	store := newTestStore(t)
	notes := []model.Note{
		{NoteID: "N1", PatientID: "P1", ReportType: "Pathology", Text: "x"},
		{NoteID: "N2", PatientID: "P1", ReportType: "CCE", Text: "y"},
	}
	sess, err := store.CreateFromNotes("s1", "", notes, []string{"biopsygrading-int", "gender-int"})
	require.NoError(t, err)

	_, err = store.SaveAnnotation(sess.SessionID, "N1", "biopsygrading-int", &model.AnnotationResult{PromptType: "biopsygrading-int", Status: model.StatusSuccess})
	require.NoError(t, err)
	_, err = store.SaveAnnotation(sess.SessionID, "N1", "gender-int", &model.AnnotationResult{PromptType: "gender-int", Status: model.StatusSuccess})
	require.NoError(t, err)

	updated, err := store.ApplyPatch(sess.SessionID, Patch{
		ReportTypeMapping: map[string][]string{"Pathology": {"biopsygrading-int"}, "CCE": {"gender-int"}},
	})
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{"biopsygrading-int", "gender-int"}, updated.PromptTypes)
	assert.Contains(t, updated.Annotations["N1"], "biopsygrading-int")
	assert.NotContains(t, updated.Annotations["N1"], "gender-int")
}

func TestRemovePromptTypes_RejectsEmptyingSession(t *testing.T) {
	store := newTestStore(t)
	notes := []model.Note{{NoteID: "N1", PatientID: "P1", ReportType: "CCE", Text: "x"}}
	sess, err := store.CreateFromNotes("s1", "", notes, []string{"gender-int"})
	require.NoError(t, err)

	_, err = store.RemovePromptTypes(sess.SessionID, []string{"gender-int"})
	require.Error(t, err)
}

func TestRemovePromptTypes_CascadesAnnotations(t *testing.T) {
	store := newTestStore(t)
	notes := []model.Note{{NoteID: "N1", PatientID: "P1", ReportType: "CCE", Text: "x"}}
	sess, err := store.CreateFromNotes("s1", "", notes, []string{"gender-int", "biopsygrading-int"})
	require.NoError(t, err)
	_, err = store.SaveAnnotation(sess.SessionID, "N1", "gender-int", &model.AnnotationResult{PromptType: "gender-int"})
	require.NoError(t, err)

	updated, err := store.RemovePromptTypes(sess.SessionID, []string{"gender-int"})
	require.NoError(t, err)
	assert.NotContains(t, updated.Annotations["N1"], "gender-int")
	assert.Equal(t, []string{"biopsygrading-int"}, updated.PromptTypes)
}

func TestICDO3Selection_SyncsTopLevelFields(t *testing.T) {
	store := newTestStore(t)
	notes := []model.Note{{NoteID: "N1", PatientID: "P1", ReportType: "Pathology", Text: "x"}}
	sess, err := store.CreateFromNotes("s1", "", notes, []string{"histological-tipo-int"})
	require.NoError(t, err)

	result := &model.AnnotationResult{
		PromptType: "histological-tipo-int",
		ICDO3: &model.ICDO3CodeInfo{
			Candidates: []model.ICDO3Candidate{
				{Query: "8805/3-C71.7", Name: "A", Score: 0.9, Method: "combined"},
				{Query: "8802/3-C71.7", Name: "B", Score: 0.5, Method: "text"},
			},
		},
	}
	_, err = store.SaveAnnotation(sess.SessionID, "N1", "histological-tipo-int", result)
	require.NoError(t, err)

	updated, err := store.RecordICDO3Selection(sess.SessionID, "N1", "histological-tipo-int", 1, true)
	require.NoError(t, err)
	got := updated.Annotations["N1"]["histological-tipo-int"].ICDO3
	assert.Equal(t, 1, got.SelectedCandidateIndex)
	assert.Equal(t, "8802/3-C71.7", got.Code)
	assert.Equal(t, "B", got.Description)
	assert.True(t, got.UserSelected)
}

func TestList_SortedByUpdatedAtDescending(t *testing.T) {
	store := newTestStore(t)
	first, err := store.CreateFromNotes("first", "", nil, nil)
	require.NoError(t, err)
	time.Sleep(10 * time.Millisecond)
	second, err := store.CreateFromNotes("second", "", nil, nil)
	require.NoError(t, err)

	time.Sleep(10 * time.Millisecond)
	// Touch "first" again so it sorts ahead of "second".
	_, err = store.ApplyPatch(first.SessionID, Patch{Name: strPtr("first-renamed")})
	require.NoError(t, err)

	list, err := store.List()
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, first.SessionID, list[0].SessionID)
	assert.Equal(t, second.SessionID, list[1].SessionID)
}

func strPtr(s string) *string { return &s }
