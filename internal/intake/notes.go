// Package intake parses the two CSV inputs that enter the pipeline from
// outside: the notes spreadsheet and the few-shot example spreadsheet.
// Grounded on spec.md §6's column contracts; no single teacher or pack file
// does CSV intake, so the delimiter sniffing and column-count reconstruction
// here are original, built on stdlib `encoding/csv` (documented
// standard-library justification: this is a narrow, bespoke parsing
// algorithm, not a general CSV concern any corpus library addresses).
package intake

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"github.com/clinicalpipe/annotator/internal/model"
)

var requiredNoteColumns = []string{"text", "date", "p_id", "note_id", "report_type"}

// sniffDelimiter picks comma or semicolon by counting occurrences in the
// header line, defaulting to comma on a tie.
func sniffDelimiter(headerLine string) rune {
	if strings.Count(headerLine, ";") > strings.Count(headerLine, ",") {
		return ';'
	}
	return ','
}

// ParseNotesCSV reads a notes spreadsheet, accepting comma or semicolon as
// the field delimiter and reconstructing rows whose `text` field contains
// unquoted delimiter characters: when a row splits into more fields than
// the header declares, the excess splits are folded back into the `text`
// column rather than truncating it, per spec.md testable property #5.
func ParseNotesCSV(r io.Reader) ([]model.Note, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	firstLine := raw
	if i := strings.IndexByte(string(raw), '\n'); i >= 0 {
		firstLine = raw[:i]
	}
	delim := sniffDelimiter(string(firstLine))

	cr := csv.NewReader(strings.NewReader(string(raw)))
	cr.Comma = delim
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("reading notes CSV header: %w", err)
	}
	colIndex := map[string]int{}
	for i, name := range header {
		colIndex[strings.ToLower(strings.TrimSpace(name))] = i
	}
	for _, col := range requiredNoteColumns {
		if _, ok := colIndex[col]; !ok {
			return nil, fmt.Errorf("notes CSV missing required column %q", col)
		}
	}
	textIdx := colIndex["text"]
	annotationsIdx, hasAnnotations := colIndex["annotations"]

	var notes []model.Note
	rowNum := 1
	for {
		fields, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("notes CSV row %d: %w", rowNum, err)
		}
		rowNum++

		fields = reconstructRow(fields, len(header), textIdx, delim)

		note := model.Note{
			Text:       fields[textIdx],
			Date:       fieldAt(fields, colIndex["date"]),
			PatientID:  fieldAt(fields, colIndex["p_id"]),
			NoteID:     fieldAt(fields, colIndex["note_id"]),
			ReportType: fieldAt(fields, colIndex["report_type"]),
		}
		if hasAnnotations {
			note.GoldAnnotations = fieldAt(fields, annotationsIdx)
		}
		notes = append(notes, note)
	}
	return notes, nil
}

// reconstructRow folds excess fields produced by an unquoted delimiter
// inside `text` back into the text column. Fields strictly after textIdx
// are assumed to be the known trailing columns (date/p_id/note_id/
// report_type/annotations); anything beyond the header's column count that
// would otherwise land in those trailing slots is merged into text instead,
// rejoined with the file's own delimiter.
func reconstructRow(fields []string, wantCols, textIdx int, delim rune) []string {
	if len(fields) <= wantCols {
		for len(fields) < wantCols {
			fields = append(fields, "")
		}
		return fields
	}

	excess := len(fields) - wantCols
	trailingCount := wantCols - textIdx - 1

	prefix := append([]string(nil), fields[:textIdx]...)
	textParts := fields[textIdx : textIdx+1+excess]
	trailing := fields[textIdx+1+excess : textIdx+1+excess+trailingCount]

	merged := strings.Join(textParts, string(delim))
	out := append(prefix, merged)
	out = append(out, trailing...)
	return out
}

func fieldAt(fields []string, idx int) string {
	if idx < 0 || idx >= len(fields) {
		return ""
	}
	return fields[idx]
}
