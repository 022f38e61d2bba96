package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/clinicalpipe/annotator/internal/apperr"
)

// StageExecutor runs one named stage operation to completion. It is the
// single abstraction the Job Runtime programs against, per Design Notes'
// call for a unified "task with a cancel token" rather than branching on
// isolation mechanism at every call site: subprocessExecutor forks a real
// OS process per call (production), localExecutor runs the same stage
// interfaces in-process (tests, and any embedding that doesn't need
// process-level isolation).
type StageExecutor interface {
	RunLink(ctx context.Context, in Table) (Table, error)
	RunQC(ctx context.Context, in Table, diseaseType string) (Table, error)
	RunFill(ctx context.Context, in Table, outPath string) (string, error)
	RunProcessTexts(ctx context.Context, structured, freeText Table, diseaseType string) (processed, llm Table, err error)
}

// localExecutor runs stages directly in the calling goroutine. Useful for
// tests and for embedders that don't need OS-process isolation.
type localExecutor struct {
	link LinkStage
	qc   QCStage
	fill MetadataFillStage
	text TextProcessingStage
}

// NewLocalExecutor builds a StageExecutor backed by in-process stage
// implementations, defaulting to the jobs package's Default* stand-ins
// when a collaborator is nil.
func NewLocalExecutor(link LinkStage, qc QCStage, fill MetadataFillStage, text TextProcessingStage) StageExecutor {
	if link == nil {
		link = DefaultLinkStage{}
	}
	if qc == nil {
		qc = DefaultQCStage{}
	}
	if fill == nil {
		fill = DefaultMetadataFillStage{}
	}
	if text == nil {
		text = DefaultTextProcessingStage{}
	}
	return localExecutor{link: link, qc: qc, fill: fill, text: text}
}

func (e localExecutor) RunLink(ctx context.Context, in Table) (Table, error) {
	return e.link.Link(ctx, in)
}

func (e localExecutor) RunQC(ctx context.Context, in Table, diseaseType string) (Table, error) {
	return e.qc.QualityCheck(ctx, in, diseaseType)
}

func (e localExecutor) RunFill(ctx context.Context, in Table, outPath string) (string, error) {
	return e.fill.Fill(ctx, in, outPath)
}

func (e localExecutor) RunProcessTexts(ctx context.Context, structured, freeText Table, diseaseType string) (Table, Table, error) {
	return e.text.Process(ctx, structured, freeText, diseaseType)
}

// stageSpec is the JSON file a subprocessExecutor writes for the
// "__run-stage" child to read — the Go analogue of pickling args for
// multiprocessing.Process in original_source/pipeline/api/app.py.
type stageSpec struct {
	Op           string `json:"op"` // link | qc | fill_metadata | process_texts
	InputPath    string `json:"input_path,omitempty"`
	FreeTextPath string `json:"free_text_path,omitempty"`
	OutputPath   string `json:"output_path,omitempty"`
	LLMOutPath   string `json:"llm_output_path,omitempty"`
	DiseaseType  string `json:"disease_type,omitempty"`
}

// subprocessExecutor forks a fresh OS process per stage call, per
// spec.md §4.H/§5's process-level isolation requirement.
type subprocessExecutor struct {
	sup     *Supervisor
	jobID   string
	workDir string
	seq     int
}

// NewSubprocessExecutor builds a StageExecutor that re-execs the running
// binary for every stage call, scoped to one job's scratch directory.
func NewSubprocessExecutor(sup *Supervisor, jobID, workDir string) StageExecutor {
	return &subprocessExecutor{sup: sup, jobID: jobID, workDir: workDir}
}

func (e *subprocessExecutor) nextPath(suffix string) string {
	e.seq++
	return fmt.Sprintf("%s/%d-%s", e.workDir, e.seq, suffix)
}

func (e *subprocessExecutor) writeSpec(spec stageSpec) (string, error) {
	path := e.nextPath(spec.Op + ".spec.json")
	data, err := json.Marshal(spec)
	if err != nil {
		return "", apperr.Wrap(apperr.JobFailure, "failed to encode stage spec", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", apperr.Wrap(apperr.JobFailure, "failed to write stage spec", err)
	}
	return path, nil
}

func (e *subprocessExecutor) RunLink(ctx context.Context, in Table) (Table, error) {
	inPath := e.nextPath("link-in.csv")
	outPath := e.nextPath("link-out.csv")
	if err := WriteTableFile(inPath, in); err != nil {
		return Table{}, apperr.Wrap(apperr.JobFailure, "failed to stage link input", err)
	}
	specPath, err := e.writeSpec(stageSpec{Op: "link", InputPath: inPath, OutputPath: outPath})
	if err != nil {
		return Table{}, err
	}
	if err := e.sup.Run(ctx, e.jobID, specPath); err != nil {
		return Table{}, err
	}
	return ReadTableFile(outPath)
}

func (e *subprocessExecutor) RunQC(ctx context.Context, in Table, diseaseType string) (Table, error) {
	inPath := e.nextPath("qc-in.csv")
	outPath := e.nextPath("qc-out.csv")
	if err := WriteTableFile(inPath, in); err != nil {
		return Table{}, apperr.Wrap(apperr.JobFailure, "failed to stage qc input", err)
	}
	specPath, err := e.writeSpec(stageSpec{Op: "qc", InputPath: inPath, OutputPath: outPath, DiseaseType: diseaseType})
	if err != nil {
		return Table{}, err
	}
	if err := e.sup.Run(ctx, e.jobID, specPath); err != nil {
		return Table{}, err
	}
	return ReadTableFile(outPath)
}

func (e *subprocessExecutor) RunFill(ctx context.Context, in Table, outPath string) (string, error) {
	inPath := e.nextPath("fill-in.csv")
	if err := WriteTableFile(inPath, in); err != nil {
		return "", apperr.Wrap(apperr.JobFailure, "failed to stage fill input", err)
	}
	specPath, err := e.writeSpec(stageSpec{Op: "fill_metadata", InputPath: inPath, OutputPath: outPath})
	if err != nil {
		return "", err
	}
	if err := e.sup.Run(ctx, e.jobID, specPath); err != nil {
		return "", err
	}
	return outPath, nil
}

func (e *subprocessExecutor) RunProcessTexts(ctx context.Context, structured, freeText Table, diseaseType string) (Table, Table, error) {
	structuredPath := e.nextPath("structured-in.csv")
	freeTextPath := e.nextPath("freetext-in.csv")
	outPath := e.nextPath("processed-out.csv")
	llmOutPath := e.nextPath("llm-out.csv")
	if err := WriteTableFile(structuredPath, structured); err != nil {
		return Table{}, Table{}, apperr.Wrap(apperr.JobFailure, "failed to stage structured input", err)
	}
	if err := WriteTableFile(freeTextPath, freeText); err != nil {
		return Table{}, Table{}, apperr.Wrap(apperr.JobFailure, "failed to stage free-text input", err)
	}
	specPath, err := e.writeSpec(stageSpec{
		Op: "process_texts", InputPath: structuredPath, FreeTextPath: freeTextPath,
		OutputPath: outPath, LLMOutPath: llmOutPath, DiseaseType: diseaseType,
	})
	if err != nil {
		return Table{}, Table{}, err
	}
	if err := e.sup.Run(ctx, e.jobID, specPath); err != nil {
		return Table{}, Table{}, err
	}
	processed, err := ReadTableFile(outPath)
	if err != nil {
		return Table{}, Table{}, err
	}
	llm, _ := ReadTableFile(llmOutPath) // optional: absent when there are no LLM annotations
	return processed, llm, nil
}
