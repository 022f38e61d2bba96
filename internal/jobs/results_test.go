package jobs

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinicalpipe/annotator/internal/apperr"
)

func newTestResultStore(t *testing.T) *ResultStore {
	t.Helper()
	store, err := NewResultStore(filepath.Join(t.TempDir(), "results.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestResultStore_SaveAndReadTable(t *testing.T) {
	store := newTestResultStore(t)
	tbl := Table{Columns: []string{"record_id", "entity"}, Rows: [][]string{{"1", "tumor"}, {"2", "node"}}}

	require.NoError(t, store.SaveTable("job-1", "quality_check", tbl))

	got, err := store.ReadTable("job-1", "quality_check")
	require.NoError(t, err)
	assert.Equal(t, tbl.Columns, got.Columns)
	assert.ElementsMatch(t, tbl.Rows, got.Rows)
}

func TestResultStore_SaveTable_ReplacesExisting(t *testing.T) {
	store := newTestResultStore(t)
	first := Table{Columns: []string{"a"}, Rows: [][]string{{"1"}}}
	second := Table{Columns: []string{"a", "b"}, Rows: [][]string{{"2", "x"}}}

	require.NoError(t, store.SaveTable("job-1", "linked_data", first))
	require.NoError(t, store.SaveTable("job-1", "linked_data", second))

	got, err := store.ReadTable("job-1", "linked_data")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, got.Columns)
	assert.Equal(t, [][]string{{"2", "x"}}, got.Rows)
}

func TestResultStore_ReadTable_MissingReturnsNotFound(t *testing.T) {
	store := newTestResultStore(t)
	_, err := store.ReadTable("missing-job", "quality_check")
	require.Error(t, err)
	assert.Equal(t, apperr.NotFound, apperr.KindOf(err))
}

func TestResultStore_TableName_RejectsUnsafeCharacters(t *testing.T) {
	store := newTestResultStore(t)
	tbl := Table{Columns: []string{"a"}, Rows: [][]string{{"1"}}}

	err := store.SaveTable(`job"; DROP TABLE pipeline_status; --`, "quality_check", tbl)
	require.Error(t, err)
	assert.Equal(t, apperr.InputInvalid, apperr.KindOf(err))
}
