package fewshot

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinicalpipe/annotator/internal/model"
)

func TestGetOnMissingFileReturnsEmpty(t *testing.T) {
	store := New(filepath.Join(t.TempDir(), "fewshot.json"))
	examples, err := store.Get(context.Background(), "biopsygrading-fbk", "", 3)
	require.NoError(t, err)
	assert.Empty(t, examples)
}

func TestUploadThenGetRoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fewshot.json")
	store := New(path)

	err := store.Upload("biopsygrading-fbk", []model.FewShotExample{
		{NoteText: "note one", GoldAnnotation: "annotation one"},
		{NoteText: "note two", GoldAnnotation: "annotation two"},
	})
	require.NoError(t, err)

	_, err = os.Stat(path)
	require.NoError(t, err)

	reloaded := New(path)
	examples, err := reloaded.Get(context.Background(), "biopsygrading-fbk", "", 10)
	require.NoError(t, err)
	assert.Len(t, examples, 2)
}

func TestGetTruncatesToK(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fewshot.json")
	store := New(path)
	require.NoError(t, store.Upload("x-fbk", []model.FewShotExample{
		{NoteText: "a"}, {NoteText: "b"}, {NoteText: "c"},
	}))

	examples, err := store.Get(context.Background(), "x-fbk", "", 2)
	require.NoError(t, err)
	assert.Len(t, examples, 2)
}

func TestDeleteAllClears(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fewshot.json")
	store := New(path)
	require.NoError(t, store.Upload("x-fbk", []model.FewShotExample{{NoteText: "a"}}))
	require.NoError(t, store.DeleteAll("x-fbk"))
	assert.Equal(t, 0, store.Count("x-fbk"))
}

type stubReranker struct{ called bool }

func (s *stubReranker) Rerank(_ context.Context, _ string, _ string, examples []model.FewShotExample, k int) ([]model.FewShotExample, error) {
	s.called = true
	if k >= len(examples) {
		return examples, nil
	}
	return examples[:k], nil
}

func TestCustomRerankerIsInvoked(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fewshot.json")
	reranker := &stubReranker{}
	store := New(path, WithReranker(reranker))
	require.NoError(t, store.Upload("x-fbk", []model.FewShotExample{{NoteText: "a"}}))

	_, err := store.Get(context.Background(), "x-fbk", "query", 1)
	require.NoError(t, err)
	assert.True(t, reranker.called)
}
