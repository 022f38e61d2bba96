package jobs

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadTableCSV_CommaDelimited(t *testing.T) {
	in := "patient_id,entity,date\nP1,tumor,2020-01-01\nP2,node,2020-02-02\n"
	tbl, err := ReadTableCSV(strings.NewReader(in))
	require.NoError(t, err)
	assert.Equal(t, []string{"patient_id", "entity", "date"}, tbl.Columns)
	assert.Len(t, tbl.Rows, 2)
	assert.Equal(t, []string{"P2", "node", "2020-02-02"}, tbl.Rows[1])
}

func TestReadTableCSV_SemicolonDelimited(t *testing.T) {
	in := "patient_id;entity;date\nP1;tumor;2020-01-01\n"
	tbl, err := ReadTableCSV(strings.NewReader(in))
	require.NoError(t, err)
	assert.Equal(t, []string{"patient_id", "entity", "date"}, tbl.Columns)
	assert.Equal(t, []string{"P1", "tumor", "2020-01-01"}, tbl.Rows[0])
}

func TestReadTableCSV_Empty(t *testing.T) {
	tbl, err := ReadTableCSV(strings.NewReader(""))
	require.NoError(t, err)
	assert.Nil(t, tbl.Columns)
	assert.Nil(t, tbl.Rows)
}

func TestTable_WithColumn_AppendsNewColumn(t *testing.T) {
	tbl := Table{Columns: []string{"a", "b"}, Rows: [][]string{{"1", "2"}, {"3", "4"}}}
	out := tbl.WithColumn("c", []string{"x", "y"})
	assert.Equal(t, []string{"a", "b", "c"}, out.Columns)
	assert.Equal(t, []string{"1", "2", "x"}, out.Rows[0])
	assert.Equal(t, []string{"3", "4", "y"}, out.Rows[1])
	// original untouched
	assert.Equal(t, []string{"a", "b"}, tbl.Columns)
}

func TestTable_WithColumn_OverwritesExistingColumn(t *testing.T) {
	tbl := Table{Columns: []string{"a", "b"}, Rows: [][]string{{"1", "2"}}}
	out := tbl.WithColumn("b", []string{"replaced"})
	assert.Equal(t, []string{"a", "b"}, out.Columns)
	assert.Equal(t, []string{"1", "replaced"}, out.Rows[0])
}

func TestTable_ColumnIndex(t *testing.T) {
	tbl := Table{Columns: []string{"a", "b", "c"}}
	assert.Equal(t, 1, tbl.ColumnIndex("b"))
	assert.Equal(t, -1, tbl.ColumnIndex("missing"))
}

func TestWriteTableCSV_RoundTrips(t *testing.T) {
	tbl := Table{Columns: []string{"a", "b"}, Rows: [][]string{{"1", "2"}, {"3", "4"}}}
	var buf bytes.Buffer
	require.NoError(t, WriteTableCSV(&buf, tbl))

	roundTripped, err := ReadTableCSV(&buf)
	require.NoError(t, err)
	assert.Equal(t, tbl, roundTripped)
}

func TestReadWriteTableFile_RoundTrips(t *testing.T) {
	path := t.TempDir() + "/table.csv"
	tbl := Table{Columns: []string{"record_id", "value"}, Rows: [][]string{{"1", "alpha"}}}
	require.NoError(t, WriteTableFile(path, tbl))

	roundTripped, err := ReadTableFile(path)
	require.NoError(t, err)
	assert.Equal(t, tbl, roundTripped)
}
