package jobs

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinicalpipe/annotator/internal/model"
)

func newTestRuntime(t *testing.T, sessionExport SessionExporter) *Runtime {
	t.Helper()
	status, err := NewStore(filepath.Join(t.TempDir(), "status.db"))
	require.NoError(t, err)
	t.Cleanup(func() { status.Close() })

	results, err := NewResultStore(filepath.Join(t.TempDir(), "results.db"))
	require.NoError(t, err)
	t.Cleanup(func() { results.Close() })

	factory := func(string) StageExecutor { return NewLocalExecutor(nil, nil, nil, nil) }
	return NewRuntime(status, results, factory, nil, sessionExport, t.TempDir())
}

func waitForTerminal(t *testing.T, rt *Runtime, jobID string) *model.Job {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		job, err := rt.Status(jobID)
		require.NoError(t, err)
		if job.IsTerminal() {
			return job
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("job %s did not reach a terminal state in time", jobID)
	return nil
}

const sampleSheet = "patient_id,entity,date\nP1,tumor,2020-01-01\nP2,node,2020-02-02\n"

func TestRuntime_StartQualityCheckOnly_Completes(t *testing.T) {
	rt := newTestRuntime(t, nil)
	jobID, err := rt.StartQualityCheckOnly([]byte(sampleSheet), "sarcoma")
	require.NoError(t, err)

	job := waitForTerminal(t, rt, jobID)
	assert.Equal(t, string(model.StepCompleted), job.Step)
	assert.Equal(t, 100, job.Progress)

	out, err := rt.Result(jobID, "quality_check")
	require.NoError(t, err)
	assert.GreaterOrEqual(t, out.ColumnIndex("qc_status"), 0)
}

func TestRuntime_StartQualityCheckOnly_BadInputFails(t *testing.T) {
	rt := newTestRuntime(t, nil)
	jobID, err := rt.StartQualityCheckOnly([]byte("\"unterminated"), "sarcoma")
	require.NoError(t, err)

	job := waitForTerminal(t, rt, jobID)
	assert.Equal(t, string(model.StepFailed), job.Step)
	assert.NotEmpty(t, job.Result)
}

func TestRuntime_StartLinkRowsOnly_Completes(t *testing.T) {
	rt := newTestRuntime(t, nil)
	jobID, err := rt.StartLinkRowsOnly([]byte(sampleSheet), "sarcoma")
	require.NoError(t, err)

	job := waitForTerminal(t, rt, jobID)
	assert.Equal(t, string(model.StepCompleted), job.Step)

	out, err := rt.Result(jobID, "linked_data")
	require.NoError(t, err)
	assert.GreaterOrEqual(t, out.ColumnIndex("record_id"), 0)
}

func TestRuntime_StartFullPipeline_Completes(t *testing.T) {
	rt := newTestRuntime(t, nil)
	textSheet := "patient_id,entity,date\nP1,tumor,2020-01-01\n"
	jobID, err := rt.StartFullPipeline([]byte(sampleSheet), []byte(textSheet), "sarcoma")
	require.NoError(t, err)

	job := waitForTerminal(t, rt, jobID)
	assert.Equal(t, string(model.StepCompleted), job.Step)
	assert.Equal(t, "Pipeline completed successfully!", job.Result)

	for _, stage := range []string{"processed_texts", "linked_data", "quality_check"} {
		_, err := rt.Result(jobID, stage)
		assert.NoError(t, err, "expected stage %q to be persisted", stage)
	}
}

func TestRuntime_StartDiscoverability_WritesOutputPath(t *testing.T) {
	rt := newTestRuntime(t, nil)
	jobID, err := rt.StartDiscoverability([]byte(sampleSheet))
	require.NoError(t, err)

	job := waitForTerminal(t, rt, jobID)
	assert.Equal(t, string(model.StepCompleted), job.Step)
	assert.Contains(t, job.Result, jobID)
}

type fakeSessionExporter struct {
	table Table
	err   error
}

func (f fakeSessionExporter) ExportLabelCSV(_ context.Context, _ string) (Table, error) {
	return f.table, f.err
}

func TestRuntime_StartContinueFromSession_MergesAndCompletes(t *testing.T) {
	nlp := Table{
		Columns: []string{"record_id", "patient_id", "entity", "date"},
		Rows:    [][]string{{"1", "P9", "node", "2021-01-01"}},
	}
	rt := newTestRuntime(t, fakeSessionExporter{table: nlp})

	structured := "record_id,patient_id,entity,date\n5,P1,tumor,2020-01-01\n"
	jobID, err := rt.StartContinueFromSession([]byte(structured), "session-1", "sarcoma")
	require.NoError(t, err)

	job := waitForTerminal(t, rt, jobID)
	assert.Equal(t, string(model.StepCompleted), job.Step)

	merged, err := rt.Result(jobID, "processed_texts")
	require.NoError(t, err)
	assert.Len(t, merged.Rows, 2)
	recIdx := merged.ColumnIndex("record_id")
	require.GreaterOrEqual(t, recIdx, 0)
	assert.Equal(t, "5", merged.Rows[0][recIdx])
	assert.Equal(t, "6", merged.Rows[1][recIdx], "nlp record_id should be offset past the structured table's max")
}

func TestRuntime_StartContinueFromSession_WithoutExporterFails(t *testing.T) {
	rt := newTestRuntime(t, nil)
	_, err := rt.StartContinueFromSession([]byte(sampleSheet), "session-1", "sarcoma")
	require.Error(t, err)
}

func TestRuntime_Cancel_MarksTerminal(t *testing.T) {
	rt := newTestRuntime(t, nil)
	jobID, err := rt.StartQualityCheckOnly([]byte(sampleSheet), "sarcoma")
	require.NoError(t, err)

	require.NoError(t, rt.Cancel(jobID))

	// the in-process local executor runs synchronously and may have already
	// completed; Cancel on an already-terminal job is a harmless no-op.
	job, err := rt.Status(jobID)
	require.NoError(t, err)
	assert.True(t, job.IsTerminal() || job.Step == "Cancelling")
}

func TestRuntime_RecentTasksAndLogs(t *testing.T) {
	rt := newTestRuntime(t, nil)
	jobID, err := rt.StartQualityCheckOnly([]byte(sampleSheet), "sarcoma")
	require.NoError(t, err)
	waitForTerminal(t, rt, jobID)

	tasks, err := rt.RecentTasks(5)
	require.NoError(t, err)
	require.NotEmpty(t, tasks)
	assert.Equal(t, jobID, tasks[0].JobID)

	logs, err := rt.Logs(jobID)
	require.NoError(t, err)
	assert.NotEmpty(t, logs)
}
