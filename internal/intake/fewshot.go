package intake

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"github.com/clinicalpipe/annotator/internal/model"
)

// ParseFewshotCSV reads a few-shot example spreadsheet with columns
// prompt_type, note_text, annotation and groups the rows by prompt_type,
// ready to hand one slice at a time to fewshot.Store.Upload.
func ParseFewshotCSV(r io.Reader) (map[string][]model.FewShotExample, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("reading fewshot CSV header: %w", err)
	}
	colIndex := map[string]int{}
	for i, name := range header {
		colIndex[strings.ToLower(strings.TrimSpace(name))] = i
	}
	for _, col := range []string{"prompt_type", "note_text", "annotation"} {
		if _, ok := colIndex[col]; !ok {
			return nil, fmt.Errorf("fewshot CSV missing required column %q", col)
		}
	}

	out := map[string][]model.FewShotExample{}
	rowNum := 1
	for {
		fields, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("fewshot CSV row %d: %w", rowNum, err)
		}
		rowNum++

		promptType := strings.TrimSpace(fieldAt(fields, colIndex["prompt_type"]))
		if promptType == "" {
			continue
		}
		out[promptType] = append(out[promptType], model.FewShotExample{
			NoteText:       fieldAt(fields, colIndex["note_text"]),
			GoldAnnotation: fieldAt(fields, colIndex["annotation"]),
		})
	}
	return out, nil
}
