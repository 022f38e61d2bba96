package export

import (
	"encoding/csv"
	"io"
)

// LabelColumns is the stable column order for the label export, ported
// from export_session_for_pipeline's `columns` list.
var LabelColumns = []string{
	"patient_id", "original_source", "core_variable", "date_ref",
	"value", "record_id", "linked_to", "quality", "types",
	"icdo3_code", "entity",
}

// WriteLabelCSV streams rows as the label export: extracted text values,
// no code resolution.
func WriteLabelCSV(w io.Writer, rows []Row) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(LabelColumns); err != nil {
		return err
	}
	for _, r := range rows {
		record := []string{
			r.PatientID, r.OriginalSource, r.CoreVariable, r.DateRef,
			r.Value, itoa(r.RecordID), r.LinkedTo, r.Quality, r.Types,
			r.ICDO3Code, r.Entity,
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
