package jobs

import (
	"bytes"
	"encoding/csv"
	"io"
	"os"
	"strings"
)

// Table is a generic, column-named spreadsheet held entirely in memory as
// strings — the Go stand-in for the pandas DataFrame the original pipeline
// stages (link_rows, quality_check, fill_metadata, process_texts) pass
// between each other. Every cell round-trips through the results database
// as text, matching spec.md §6's "column types are preserved as strings
// where necessary".
type Table struct {
	Columns []string
	Rows    [][]string
}

// ColumnIndex returns the column's position, or -1 if absent.
func (t Table) ColumnIndex(name string) int {
	for i, c := range t.Columns {
		if c == name {
			return i
		}
	}
	return -1
}

// WithColumn returns a copy of t with column name added (or overwritten)
// using values, one per row. Rows shorter than the original are padded
// with "".
func (t Table) WithColumn(name string, values []string) Table {
	idx := t.ColumnIndex(name)
	out := Table{Rows: make([][]string, len(t.Rows))}
	if idx >= 0 {
		out.Columns = append([]string(nil), t.Columns...)
	} else {
		out.Columns = append(append([]string(nil), t.Columns...), name)
	}
	for i, row := range t.Rows {
		newRow := append([]string(nil), row...)
		if idx >= 0 {
			for len(newRow) <= idx {
				newRow = append(newRow, "")
			}
			newRow[idx] = values[i]
		} else {
			newRow = append(newRow, values[i])
		}
		out.Rows[i] = newRow
	}
	return out
}

// ReadTableCSV reads a generic CSV into a Table, sniffing comma vs.
// semicolon the same way internal/intake sniffs notes CSVs.
func ReadTableCSV(r io.Reader) (Table, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return Table{}, err
	}
	if len(data) == 0 {
		return Table{}, nil
	}
	headerLine := string(data)
	if idx := strings.IndexByte(headerLine, '\n'); idx >= 0 {
		headerLine = headerLine[:idx]
	}
	delim := ','
	if strings.Count(headerLine, ";") > strings.Count(headerLine, ",") {
		delim = ';'
	}

	reader := csv.NewReader(bytes.NewReader(data))
	reader.Comma = delim
	reader.FieldsPerRecord = -1
	records, err := reader.ReadAll()
	if err != nil {
		return Table{}, err
	}
	if len(records) == 0 {
		return Table{}, nil
	}
	return Table{Columns: records[0], Rows: records[1:]}, nil
}

// ReadTableFile reads a Table from a CSV file on disk. The file is always
// parsed as CSV; XLSX input is neither detected nor refused here (the
// core's intake surface declares CSV only; Excel support is the thin upload
// layer's concern per spec.md §1).
func ReadTableFile(path string) (Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return Table{}, err
	}
	defer f.Close()
	return ReadTableCSV(f)
}

// WriteTableCSV streams a Table out as CSV.
func WriteTableCSV(w io.Writer, t Table) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(t.Columns); err != nil {
		return err
	}
	for _, row := range t.Rows {
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteTableFile writes a Table to a CSV file on disk.
func WriteTableFile(path string, t Table) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return WriteTableCSV(f, t)
}
