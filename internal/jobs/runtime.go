package jobs

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/google/uuid"

	"github.com/clinicalpipe/annotator/internal/apperr"
	"github.com/clinicalpipe/annotator/internal/logging"
	"github.com/clinicalpipe/annotator/internal/model"
)

// ExecutorFactory builds the StageExecutor a single job's run will use.
// Production wiring returns a fresh subprocessExecutor scoped to the job's
// own scratch directory; tests return a shared in-process executor.
type ExecutorFactory func(jobID string) StageExecutor

// Runtime is the Job Runtime component: it registers, runs, checkpoints,
// and finalizes the five canonical job shapes (spec.md §4.H), each inside
// its own cancellable OS-process subprocess per heavy step.
type Runtime struct {
	status        *Store
	results       *ResultStore
	newExecutor   ExecutorFactory
	sup           *Supervisor // optional: enables immediate force-kill
	sessionExport SessionExporter
	dataDir       string

	mu        sync.Mutex
	cancelFns map[string]context.CancelFunc
}

// NewRuntime constructs the Job Runtime. sup may be nil when newExecutor
// never produces a subprocessExecutor (e.g. tests using NewLocalExecutor).
func NewRuntime(status *Store, results *ResultStore, newExecutor ExecutorFactory, sup *Supervisor, sessionExport SessionExporter, dataDir string) *Runtime {
	return &Runtime{
		status: status, results: results, newExecutor: newExecutor, sup: sup,
		sessionExport: sessionExport, dataDir: dataDir, cancelFns: map[string]context.CancelFunc{},
	}
}

func (r *Runtime) setCancel(jobID string, fn context.CancelFunc) {
	r.mu.Lock()
	r.cancelFns[jobID] = fn
	r.mu.Unlock()
}

func (r *Runtime) clearCancel(jobID string) {
	r.mu.Lock()
	delete(r.cancelFns, jobID)
	r.mu.Unlock()
}

func (r *Runtime) begin(stage model.JobStage) (string, context.Context, error) {
	jobID := uuid.NewString()
	if err := r.status.Register(jobID, stage); err != nil {
		return "", nil, err
	}
	ctx, cancel := context.WithCancel(context.Background())
	r.setCancel(jobID, cancel)
	return jobID, ctx, nil
}

// checkpoint persists a named waypoint per spec.md §4.H's lifecycle.
func (r *Runtime) checkpoint(jobID, step string, progress int) {
	_ = r.status.UpdateStatus(jobID, step, progress, "")
}

func (r *Runtime) logf(jobID, level, format string, args ...any) {
	_ = r.status.AppendLog(jobID, level, fmt.Sprintf(format, args...))
}

// finish records the terminal outcome of a run, translating a cancelled
// context or an AppError's Kind into the right terminal step per
// spec.md §7's propagation policy.
func (r *Runtime) finish(jobID string, err error) {
	defer r.clearCancel(jobID)
	if err == nil {
		return
	}
	if apperr.KindOf(err) == apperr.Cancelled {
		r.logf(jobID, "warn", "job cancelled: %v", err)
		_ = r.status.UpdateStatus(jobID, string(model.StepCancelled), 100, err.Error())
		return
	}
	r.logf(jobID, "error", "job failed: %v", err)
	_ = r.status.UpdateStatus(jobID, string(model.StepFailed), 100, err.Error())
}

func (r *Runtime) recoverToFailure(jobID string) {
	if rec := recover(); rec != nil {
		r.logf(jobID, "error", "job panicked: %v", rec)
		_ = r.status.UpdateStatus(jobID, string(model.StepFailed), 100, fmt.Sprintf("panic: %v", rec))
		r.clearCancel(jobID)
	}
}

// StartQualityCheckOnly registers and launches the quality_check_only
// shape: read spreadsheet -> QC stage -> persist "{job}_quality_check".
func (r *Runtime) StartQualityCheckOnly(data []byte, diseaseType string) (string, error) {
	jobID, ctx, err := r.begin(model.StageQualityCheckOnly)
	if err != nil {
		return "", err
	}
	go r.runQualityCheckOnly(ctx, jobID, data, diseaseType)
	return jobID, nil
}

func (r *Runtime) runQualityCheckOnly(ctx context.Context, jobID string, data []byte, diseaseType string) {
	defer r.recoverToFailure(jobID)
	log := logging.WithJob("jobs", jobID)
	executor := r.newExecutor(jobID)

	r.checkpoint(jobID, "Initializing", 0)
	r.logf(jobID, "info", "quality-check task initialised for disease_type=%s", diseaseType)

	r.checkpoint(jobID, "Loading data", 10)
	in, err := ReadTableCSV(bytes.NewReader(data))
	if err != nil {
		r.finish(jobID, apperr.Wrap(apperr.InputInvalid, "failed to read uploaded spreadsheet", err))
		return
	}

	r.checkpoint(jobID, "Running quality check", 60)
	out, err := executor.RunQC(ctx, in, diseaseType)
	if err != nil {
		r.finish(jobID, err)
		return
	}

	r.checkpoint(jobID, "Saving results", 90)
	if err := r.results.SaveTable(jobID, "quality_check", out); err != nil {
		r.finish(jobID, err)
		return
	}

	_ = r.status.UpdateStatus(jobID, string(model.StepCompleted), 100, "Quality-check finished.")
	log.Info("quality-check task completed")
	r.clearCancel(jobID)
}

// StartLinkRowsOnly registers and launches the link_rows_only shape.
func (r *Runtime) StartLinkRowsOnly(data []byte, diseaseType string) (string, error) {
	jobID, ctx, err := r.begin(model.StageLinkRowsOnly)
	if err != nil {
		return "", err
	}
	go r.runLinkRowsOnly(ctx, jobID, data, diseaseType)
	return jobID, nil
}

func (r *Runtime) runLinkRowsOnly(ctx context.Context, jobID string, data []byte, diseaseType string) {
	defer r.recoverToFailure(jobID)
	executor := r.newExecutor(jobID)

	r.checkpoint(jobID, "Initializing", 0)
	r.logf(jobID, "info", "link-row task initialised for disease_type=%s", diseaseType)

	r.checkpoint(jobID, "Loading data", 10)
	in, err := ReadTableCSV(bytes.NewReader(data))
	if err != nil {
		r.finish(jobID, apperr.Wrap(apperr.InputInvalid, "failed to read uploaded spreadsheet", err))
		return
	}

	r.checkpoint(jobID, "Linking rows", 60)
	linked, err := executor.RunLink(ctx, in)
	if err != nil {
		r.finish(jobID, err)
		return
	}

	if err := r.results.SaveTable(jobID, "linked_data", linked); err != nil {
		r.finish(jobID, err)
		return
	}

	_ = r.status.UpdateStatus(jobID, string(model.StepCompleted), 100, "Link-rows finished.")
	r.clearCancel(jobID)
}

// StartFullPipeline registers and launches the full_pipeline shape: text
// processing -> linking -> QC, persisting each intermediate table.
func (r *Runtime) StartFullPipeline(data, textData []byte, diseaseType string) (string, error) {
	jobID, ctx, err := r.begin(model.StageFullPipeline)
	if err != nil {
		return "", err
	}
	go r.runFullPipeline(ctx, jobID, data, textData, diseaseType)
	return jobID, nil
}

func (r *Runtime) runFullPipeline(ctx context.Context, jobID string, data, textData []byte, diseaseType string) {
	defer r.recoverToFailure(jobID)
	executor := r.newExecutor(jobID)

	r.checkpoint(jobID, "Initializing", 0)
	r.logf(jobID, "info", "pipeline initialization started for disease_type=%s", diseaseType)

	r.checkpoint(jobID, "Loading data", 10)
	structured, err := ReadTableCSV(bytes.NewReader(data))
	if err != nil {
		r.finish(jobID, apperr.Wrap(apperr.InputInvalid, "failed to read structured spreadsheet", err))
		return
	}
	freeText, err := ReadTableCSV(bytes.NewReader(textData))
	if err != nil {
		r.finish(jobID, apperr.Wrap(apperr.InputInvalid, "failed to read free-text spreadsheet", err))
		return
	}

	r.checkpoint(jobID, "Processing free texts", 30)
	processed, llmAnnotations, err := executor.RunProcessTexts(ctx, structured, freeText, diseaseType)
	if err != nil {
		r.finish(jobID, err)
		return
	}
	if len(llmAnnotations.Columns) > 0 {
		if err := r.results.SaveTable(jobID, "llm_annotations", llmAnnotations); err != nil {
			r.finish(jobID, err)
			return
		}
	}
	if err := r.results.SaveTable(jobID, "processed_texts", processed); err != nil {
		r.finish(jobID, err)
		return
	}

	r.checkpoint(jobID, "Linking rows", 60)
	linked, err := executor.RunLink(ctx, processed)
	if err != nil {
		r.finish(jobID, err)
		return
	}
	if err := r.results.SaveTable(jobID, "linked_data", linked); err != nil {
		r.finish(jobID, err)
		return
	}

	r.checkpoint(jobID, "Performing data quality checks", 90)
	qcOut, err := executor.RunQC(ctx, linked, diseaseType)
	if err != nil {
		r.finish(jobID, err)
		return
	}
	if err := r.results.SaveTable(jobID, "quality_check", qcOut); err != nil {
		r.finish(jobID, err)
		return
	}

	_ = r.status.UpdateStatus(jobID, string(model.StepCompleted), 100, "Pipeline completed successfully!")
	r.clearCancel(jobID)
}

// StartDiscoverability registers and launches the discoverability shape.
func (r *Runtime) StartDiscoverability(data []byte) (string, error) {
	jobID, ctx, err := r.begin(model.StageDiscoverability)
	if err != nil {
		return "", err
	}
	go r.runDiscoverability(ctx, jobID, data)
	return jobID, nil
}

func (r *Runtime) runDiscoverability(ctx context.Context, jobID string, data []byte) {
	defer r.recoverToFailure(jobID)
	executor := r.newExecutor(jobID)

	r.checkpoint(jobID, "Initializing", 5)
	r.checkpoint(jobID, "Loading data", 10)
	in, err := ReadTableCSV(bytes.NewReader(data))
	if err != nil {
		r.finish(jobID, apperr.Wrap(apperr.InputInvalid, "failed to read uploaded spreadsheet", err))
		return
	}

	r.checkpoint(jobID, "Computing discoverability", 70)
	outPath := filepath.Join(r.dataDir, "discoverability", jobID+".csv")
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		r.finish(jobID, apperr.Wrap(apperr.JobFailure, "failed to create discoverability output directory", err))
		return
	}
	resultPath, err := executor.RunFill(ctx, in, outPath)
	if err != nil {
		r.finish(jobID, err)
		return
	}

	_ = r.status.UpdateStatus(jobID, string(model.StepCompleted), 100, resultPath)
	r.clearCancel(jobID)
}

// StartContinueFromSession registers and launches the
// continue_from_session shape.
func (r *Runtime) StartContinueFromSession(structuredData []byte, sessionID, diseaseType string) (string, error) {
	if r.sessionExport == nil {
		return "", apperr.New(apperr.InputInvalid, "continue_from_session requires a session exporter")
	}
	jobID, ctx, err := r.begin(model.StageContinueFromSession)
	if err != nil {
		return "", err
	}
	go r.runContinueFromSession(ctx, jobID, structuredData, sessionID, diseaseType)
	return jobID, nil
}

func (r *Runtime) runContinueFromSession(ctx context.Context, jobID string, structuredData []byte, sessionID, diseaseType string) {
	defer r.recoverToFailure(jobID)
	executor := r.newExecutor(jobID)

	r.checkpoint(jobID, "Fetching validated NLP data", 10)
	r.logf(jobID, "info", "fetching validated annotations for session %s", sessionID)
	nlpTable, err := r.sessionExport.ExportLabelCSV(ctx, sessionID)
	if err != nil {
		r.finish(jobID, err)
		return
	}

	r.checkpoint(jobID, "Loading structured data", 20)
	structuredTable, err := ReadTableCSV(bytes.NewReader(structuredData))
	if err != nil {
		r.finish(jobID, apperr.Wrap(apperr.InputInvalid, "failed to read structured spreadsheet", err))
		return
	}

	r.checkpoint(jobID, "Merging data", 30)
	merged := mergeTables(structuredTable, nlpTable)
	if err := r.results.SaveTable(jobID, "processed_texts", merged); err != nil {
		r.finish(jobID, err)
		return
	}

	r.checkpoint(jobID, "Linking rows", 50)
	linked, err := executor.RunLink(ctx, merged)
	if err != nil {
		r.finish(jobID, err)
		return
	}
	if err := r.results.SaveTable(jobID, "linked_data", linked); err != nil {
		r.finish(jobID, err)
		return
	}

	r.checkpoint(jobID, "Running quality checks", 80)
	qcOut, err := executor.RunQC(ctx, linked, diseaseType)
	if err != nil {
		r.finish(jobID, err)
		return
	}
	if err := r.results.SaveTable(jobID, "quality_check", qcOut); err != nil {
		r.finish(jobID, err)
		return
	}

	_ = r.status.UpdateStatus(jobID, string(model.StepCompleted), 100, "Pipeline completed with validated NLP data")
	r.clearCancel(jobID)
}

// mergeTables offsets the NLP table's record_id past the structured
// table's maximum so the two sets of rows never collide, aligns both
// tables' column sets (missing cells become ""), then appends the NLP
// rows after the structured rows. Grounded on
// original_source/pipeline/api/app.py's run_continue_pipeline_task merge
// step.
func mergeTables(structured, nlp Table) Table {
	maxID := 0
	if idx := structured.ColumnIndex("record_id"); idx >= 0 {
		for _, row := range structured.Rows {
			if idx < len(row) {
				if n, err := strconv.Atoi(row[idx]); err == nil && n > maxID {
					maxID = n
				}
			}
		}
	}
	if idx := nlp.ColumnIndex("record_id"); idx >= 0 && maxID > 0 {
		offsetValues := make([]string, len(nlp.Rows))
		for i, row := range nlp.Rows {
			n := 0
			if idx < len(row) {
				n, _ = strconv.Atoi(row[idx])
			}
			offsetValues[i] = strconv.Itoa(n + maxID)
		}
		nlp = nlp.WithColumn("record_id", offsetValues)
	}

	columns := append([]string(nil), structured.Columns...)
	colSet := map[string]bool{}
	for _, c := range columns {
		colSet[c] = true
	}
	for _, c := range nlp.Columns {
		if !colSet[c] {
			columns = append(columns, c)
			colSet[c] = true
		}
	}

	out := Table{Columns: columns}
	out.Rows = append(out.Rows, alignRows(structured, columns)...)
	out.Rows = append(out.Rows, alignRows(nlp, columns)...)
	return out
}

func alignRows(t Table, columns []string) [][]string {
	idxOf := make([]int, len(columns))
	for i, c := range columns {
		idxOf[i] = t.ColumnIndex(c)
	}
	out := make([][]string, len(t.Rows))
	for r, row := range t.Rows {
		newRow := make([]string, len(columns))
		for i, srcIdx := range idxOf {
			if srcIdx >= 0 && srcIdx < len(row) {
				newRow[i] = row[srcIdx]
			}
		}
		out[r] = newRow
	}
	return out
}

// Cancel requests a graceful stop: the running context is cancelled, which
// propagates into the Supervisor's select on ctx.Done() (see Supervisor.Run)
// to SIGTERM-then-SIGKILL the in-flight subprocess.
func (r *Runtime) Cancel(jobID string) error {
	job, err := r.status.Get(jobID)
	if err != nil {
		return err
	}
	if job.IsTerminal() {
		return nil
	}
	_ = r.status.UpdateStatus(jobID, "Cancelling", job.Progress, job.Result)

	r.mu.Lock()
	cancel, ok := r.cancelFns[jobID]
	r.mu.Unlock()
	if ok {
		cancel()
	}
	if r.sup != nil {
		r.sup.Cancel(jobID)
	}
	return nil
}

// Kill force-kills jobID's in-flight subprocess immediately, for callers
// that don't want to wait out Cancel's graceful window.
func (r *Runtime) Kill(jobID string) error {
	job, err := r.status.Get(jobID)
	if err != nil {
		return err
	}
	if job.IsTerminal() {
		return nil
	}

	r.mu.Lock()
	cancel, ok := r.cancelFns[jobID]
	r.mu.Unlock()
	if ok {
		cancel()
	}

	killed := false
	if r.sup != nil {
		killed = r.sup.Kill(jobID)
	}
	msg := "Kill requested"
	if killed {
		msg = "Force-killed by user"
	}
	return r.status.UpdateStatus(jobID, string(model.StepCancelled), 100, msg)
}

// Status returns a job's durable status row.
func (r *Runtime) Status(jobID string) (*model.Job, error) {
	return r.status.Get(jobID)
}

// Logs returns a job's log stream.
func (r *Runtime) Logs(jobID string) ([]model.LogEntry, error) {
	return r.status.Logs(jobID)
}

// RecentTasks returns the most recently started jobs.
func (r *Runtime) RecentTasks(limit int) ([]model.Job, error) {
	return r.status.RecentTasks(limit)
}

// Result fetches one job stage's output table.
func (r *Runtime) Result(jobID, stage string) (Table, error) {
	return r.results.ReadTable(jobID, stage)
}
