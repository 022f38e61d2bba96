package jobs

import (
	"context"
	"strconv"
	"strings"
)

// LinkStage is the row-linking collaborator spec.md §1 treats as an opaque
// component external to the core: it groups per-field rows that describe
// the same clinical event under a shared record_id. Only its interface is
// specified; original_source's link_service/linking_service.py was not
// retrieved with the rest of the pack, so the default implementation below
// is a minimal, narrowly-scoped stand-in grounded on internal/export's own
// (patient_id, entity, date_ref)-keyed record_id assignment, not a port of
// an unseen algorithm.
type LinkStage interface {
	Link(ctx context.Context, in Table) (Table, error)
}

// QCStage is the quality-check collaborator, likewise external per
// spec.md §1. It is expected to annotate or filter rows by data-quality
// criteria specific to a disease type; the default implementation appends
// a pass/fail column so the job runtime's wiring is exercisable without
// guessing at an unseen scoring algorithm.
type QCStage interface {
	QualityCheck(ctx context.Context, in Table, diseaseType string) (Table, error)
}

// MetadataFillStage backs the discoverability job shape: it computes
// metadata-completeness information for an uploaded spreadsheet and
// returns the path of a written output file (spec.md §4.H shape 4).
type MetadataFillStage interface {
	Fill(ctx context.Context, in Table, outPath string) (string, error)
}

// TextProcessingStage backs full_pipeline's first step: turning free-text
// notes plus structured rows into processed/structured rows, optionally
// alongside a table of LLM annotations (spec.md §4.H shape 3). The real
// implementation lives downstream of the Annotation Engine; this default
// is a pass-through that never touches LLM infrastructure in the Job
// Runtime's own process per Design Notes ("two concurrency scopes").
type TextProcessingStage interface {
	Process(ctx context.Context, structured, freeText Table, diseaseType string) (processed, llmAnnotations Table, err error)
}

// DefaultLinkStage groups rows sharing (patient_id, entity, date) under one
// record_id, mirroring internal/export's row-kernel grouping key so the
// job runtime's default wiring is consistent with the export engine's
// notion of "the same event".
type DefaultLinkStage struct{}

func (DefaultLinkStage) Link(_ context.Context, in Table) (Table, error) {
	patientIdx := in.ColumnIndex("patient_id")
	if patientIdx < 0 {
		patientIdx = in.ColumnIndex("p_id")
	}
	entityIdx := in.ColumnIndex("entity")
	dateIdx := in.ColumnIndex("date")

	ids := map[string]int{}
	next := 1
	recordIDs := make([]string, len(in.Rows))
	for i, row := range in.Rows {
		key := cellAt(row, patientIdx) + "|" + cellAt(row, entityIdx) + "|" + cellAt(row, dateIdx)
		id, ok := ids[key]
		if !ok {
			id = next
			ids[key] = id
			next++
		}
		recordIDs[i] = strconv.Itoa(id)
	}
	return in.WithColumn("record_id", recordIDs), nil
}

func cellAt(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return row[idx]
}

// DefaultQCStage appends a qc_status column: "missing_fields" when more
// than half of a row's cells are blank, otherwise "ok". It exists so the
// full_pipeline/continue_from_session shapes have something concrete to
// checkpoint and persist; it does not encode the source's disease-specific
// sarcoma/head_and_neck crosstab rules (not retrieved with the pack).
type DefaultQCStage struct{}

func (DefaultQCStage) QualityCheck(_ context.Context, in Table, diseaseType string) (Table, error) {
	statusCol := "qc_status"
	values := make([]string, len(in.Rows))
	for i, row := range in.Rows {
		blank := 0
		for _, v := range row {
			if strings.TrimSpace(v) == "" {
				blank++
			}
		}
		if blank > len(row)/2 {
			values[i] = "missing_fields"
		} else {
			values[i] = "ok"
		}
	}
	out := in.WithColumn(statusCol, values)
	if diseaseType != "" {
		typeValues := make([]string, len(out.Rows))
		for i := range typeValues {
			typeValues[i] = diseaseType
		}
		out = out.WithColumn("qc_disease_type", typeValues)
	}
	return out, nil
}

// DefaultMetadataFillStage computes a simple discoverability summary (row
// count, non-blank-cell ratio per column) and writes it as a CSV file,
// returning its path as the job's result (spec.md §4.H shape 4: "persist
// an output file path as the job's result").
type DefaultMetadataFillStage struct{}

func (DefaultMetadataFillStage) Fill(_ context.Context, in Table, outPath string) (string, error) {
	summary := Table{Columns: []string{"column", "non_blank_count", "total_rows", "completeness"}}
	for ci, col := range in.Columns {
		nonBlank := 0
		for _, row := range in.Rows {
			if ci < len(row) && strings.TrimSpace(row[ci]) != "" {
				nonBlank++
			}
		}
		completeness := "0"
		if len(in.Rows) > 0 {
			completeness = strconv.FormatFloat(float64(nonBlank)/float64(len(in.Rows)), 'f', 4, 64)
		}
		summary.Rows = append(summary.Rows, []string{col, strconv.Itoa(nonBlank), strconv.Itoa(len(in.Rows)), completeness})
	}
	if err := WriteTableFile(outPath, summary); err != nil {
		return "", err
	}
	return outPath, nil
}

// DefaultTextProcessingStage passes the structured rows through unchanged
// and returns no LLM annotations table, since the Job Runtime does not
// itself fan out to the LLM (that is the Annotation Engine's concurrency
// scope, kept separate per Design Notes "two concurrency scopes").
// Deployments that want free-text extraction inline with full_pipeline
// wire a TextProcessingStage backed by annotate.Engine at composition time.
type DefaultTextProcessingStage struct{}

func (DefaultTextProcessingStage) Process(_ context.Context, structured, _ Table, _ string) (Table, Table, error) {
	return structured, Table{}, nil
}
