package jobs

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultLinkStage_GroupsByPatientEntityDate(t *testing.T) {
	in := Table{
		Columns: []string{"patient_id", "entity", "date", "value"},
		Rows: [][]string{
			{"P1", "tumor", "2020-01-01", "a"},
			{"P1", "tumor", "2020-01-01", "b"},
			{"P1", "node", "2020-01-01", "c"},
			{"P2", "tumor", "2020-01-01", "d"},
		},
	}
	out, err := DefaultLinkStage{}.Link(context.Background(), in)
	require.NoError(t, err)

	idx := out.ColumnIndex("record_id")
	require.GreaterOrEqual(t, idx, 0)
	assert.Equal(t, out.Rows[0][idx], out.Rows[1][idx], "same patient/entity/date should share record_id")
	assert.NotEqual(t, out.Rows[0][idx], out.Rows[2][idx], "different entity should not share record_id")
	assert.NotEqual(t, out.Rows[0][idx], out.Rows[3][idx], "different patient should not share record_id")
}

func TestDefaultQCStage_FlagsMissingFields(t *testing.T) {
	in := Table{
		Columns: []string{"a", "b", "c"},
		Rows: [][]string{
			{"1", "2", "3"},
			{"", "", "x"},
		},
	}
	out, err := DefaultQCStage{}.QualityCheck(context.Background(), in, "sarcoma")
	require.NoError(t, err)

	statusIdx := out.ColumnIndex("qc_status")
	require.GreaterOrEqual(t, statusIdx, 0)
	assert.Equal(t, "ok", out.Rows[0][statusIdx])
	assert.Equal(t, "missing_fields", out.Rows[1][statusIdx])

	typeIdx := out.ColumnIndex("qc_disease_type")
	require.GreaterOrEqual(t, typeIdx, 0)
	assert.Equal(t, "sarcoma", out.Rows[0][typeIdx])
}

func TestDefaultMetadataFillStage_WritesCompletenessSummary(t *testing.T) {
	in := Table{
		Columns: []string{"a", "b"},
		Rows: [][]string{
			{"1", ""},
			{"2", "x"},
		},
	}
	outPath := filepath.Join(t.TempDir(), "discoverability.csv")
	path, err := DefaultMetadataFillStage{}.Fill(context.Background(), in, outPath)
	require.NoError(t, err)
	assert.Equal(t, outPath, path)

	summary, err := ReadTableFile(outPath)
	require.NoError(t, err)
	assert.Equal(t, []string{"column", "non_blank_count", "total_rows", "completeness"}, summary.Columns)
	assert.Equal(t, "2", summary.Rows[0][1]) // column "a" fully populated
	assert.Equal(t, "1", summary.Rows[1][1]) // column "b" half populated
}

func TestDefaultTextProcessingStage_PassesStructuredThrough(t *testing.T) {
	structured := Table{Columns: []string{"a"}, Rows: [][]string{{"1"}}}
	processed, llm, err := DefaultTextProcessingStage{}.Process(context.Background(), structured, Table{}, "")
	require.NoError(t, err)
	assert.Equal(t, structured, processed)
	assert.Empty(t, llm.Columns)
}

func TestLocalExecutor_UsesDefaultsWhenNilCollaboratorsGiven(t *testing.T) {
	exec := NewLocalExecutor(nil, nil, nil, nil)
	in := Table{Columns: []string{"patient_id", "entity", "date"}, Rows: [][]string{{"P1", "tumor", "2020-01-01"}}}

	linked, err := exec.RunLink(context.Background(), in)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, linked.ColumnIndex("record_id"), 0)

	qcOut, err := exec.RunQC(context.Background(), linked, "sarcoma")
	require.NoError(t, err)
	assert.GreaterOrEqual(t, qcOut.ColumnIndex("qc_status"), 0)

	outPath := filepath.Join(t.TempDir(), "fill.csv")
	path, err := exec.RunFill(context.Background(), in, outPath)
	require.NoError(t, err)
	assert.Equal(t, outPath, path)

	processed, llm, err := exec.RunProcessTexts(context.Background(), in, Table{}, "sarcoma")
	require.NoError(t, err)
	assert.Equal(t, in, processed)
	assert.Empty(t, llm.Columns)
}
