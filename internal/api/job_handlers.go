package api

import (
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/clinicalpipe/annotator/internal/jobs"
)

// readUploadedFile reads the named multipart field into memory. Stage
// inputs are small spreadsheets, so buffering them whole (rather than
// streaming into the subprocess) keeps the job-start handlers simple.
func readUploadedFile(c *gin.Context, field string) ([]byte, bool) {
	file, _, err := c.Request.FormFile(field)
	if err != nil {
		badRequest(c, "missing multipart file field \""+field+"\"")
		return nil, false
	}
	defer file.Close()
	data, err := io.ReadAll(file)
	if err != nil {
		badRequest(c, err.Error())
		return nil, false
	}
	return data, true
}

// RunQualityCheckOnly starts a job that runs the quality-check stage alone
// over an uploaded structured-data spreadsheet.
func (d *Deps) RunQualityCheckOnly(c *gin.Context) {
	data, ok := readUploadedFile(c, "file")
	if !ok {
		return
	}
	jobID, err := d.Jobs.StartQualityCheckOnly(data, c.PostForm("disease_type"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"job_id": jobID})
}

// RunLinkRowsOnly starts a job that runs the row-linking stage alone over
// an uploaded structured-data spreadsheet.
func (d *Deps) RunLinkRowsOnly(c *gin.Context) {
	data, ok := readUploadedFile(c, "file")
	if !ok {
		return
	}
	jobID, err := d.Jobs.StartLinkRowsOnly(data, c.PostForm("disease_type"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"job_id": jobID})
}

// RunFullPipeline starts a job chaining link-rows, quality-check, and
// (when a free-text spreadsheet is attached) LLM annotation over free-text
// reports matched against the structured rows.
func (d *Deps) RunFullPipeline(c *gin.Context) {
	data, ok := readUploadedFile(c, "file")
	if !ok {
		return
	}
	var textData []byte
	if textFile, _, err := c.Request.FormFile("text_file"); err == nil {
		defer textFile.Close()
		textData, err = io.ReadAll(textFile)
		if err != nil {
			badRequest(c, err.Error())
			return
		}
	}
	jobID, err := d.Jobs.StartFullPipeline(data, textData, c.PostForm("disease_type"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"job_id": jobID})
}

// RunDiscoverability starts a job that reports which prompt types an
// uploaded spreadsheet's report types can resolve against.
func (d *Deps) RunDiscoverability(c *gin.Context) {
	data, ok := readUploadedFile(c, "file")
	if !ok {
		return
	}
	jobID, err := d.Jobs.StartDiscoverability(data)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"job_id": jobID})
}

// RunContinueFromSession starts a job that resumes the full pipeline from
// an existing annotation session's results, feeding its exported rows back
// through linking and quality-check alongside newly uploaded structured
// data.
func (d *Deps) RunContinueFromSession(c *gin.Context) {
	data, ok := readUploadedFile(c, "file")
	if !ok {
		return
	}
	sessionID := c.PostForm("session_id")
	if sessionID == "" {
		badRequest(c, "missing required form field \"session_id\"")
		return
	}
	jobID, err := d.Jobs.StartContinueFromSession(data, sessionID, c.PostForm("disease_type"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"job_id": jobID})
}

// RecentJobs lists the most recently started jobs, newest first.
func (d *Deps) RecentJobs(c *gin.Context) {
	limit := 20
	if v := c.Query("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	jobsList, err := d.Jobs.RecentTasks(limit)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"jobs": jobsList})
}

// JobStatus reports one job's current stage, step, and progress.
func (d *Deps) JobStatus(c *gin.Context) {
	job, err := d.Jobs.Status(c.Param("jobID"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, job)
}

// JobLogs returns a job's accumulated log lines.
func (d *Deps) JobLogs(c *gin.Context) {
	logs, err := d.Jobs.Logs(c.Param("jobID"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"logs": logs})
}

// JobResult streams one completed stage's output table as CSV. Unknown
// job/stage pairs report 404, matching the original job-result route.
func (d *Deps) JobResult(c *gin.Context) {
	table, err := d.Jobs.Result(c.Param("jobID"), c.Param("stage"))
	if err != nil {
		fail(c, err)
		return
	}
	c.Header("Content-Type", "text/csv")
	if err := jobs.WriteTableCSV(c.Writer, table); err != nil {
		fail(c, err)
		return
	}
}

// CancelJob requests cooperative cancellation of a running job.
func (d *Deps) CancelJob(c *gin.Context) {
	if err := d.Jobs.Cancel(c.Param("jobID")); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// KillJob forcibly terminates a running job's subprocess.
func (d *Deps) KillJob(c *gin.Context) {
	if err := d.Jobs.Kill(c.Param("jobID")); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}
