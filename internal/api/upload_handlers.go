package api

import (
	"bytes"
	"io"
	"net/http"
	"sort"

	"github.com/gin-gonic/gin"

	"github.com/clinicalpipe/annotator/internal/intake"
	"github.com/clinicalpipe/annotator/internal/model"
)

// UploadCSV previews a notes spreadsheet without creating a session: the
// caller reviews the parsed notes and report types, then calls
// POST /api/sessions to actually start a working session from them. This
// mirrors the original upload_csv route, which never persisted a session
// either.
func (d *Deps) UploadCSV(c *gin.Context) {
	file, _, err := c.Request.FormFile("file")
	if err != nil {
		badRequest(c, "missing multipart file field \"file\"")
		return
	}
	defer file.Close()

	notes, err := intake.ParseNotesCSV(file)
	if err != nil {
		badRequest(c, err.Error())
		return
	}

	reportTypes := uniqueReportTypes(notes)
	hasAnnotations := false
	for _, n := range notes {
		if n.HasGold() {
			hasAnnotations = true
			break
		}
	}

	preview := notes
	if len(preview) > 10 {
		preview = preview[:10]
	}

	c.JSON(http.StatusOK, gin.H{
		"success":         true,
		"row_count":       len(notes),
		"report_types":    reportTypes,
		"has_annotations": hasAnnotations,
		"preview":         preview,
		"notes":           notes,
	})
}

func uniqueReportTypes(notes []model.Note) []string {
	seen := map[string]bool{}
	var out []string
	for _, n := range notes {
		if n.ReportType == "" || seen[n.ReportType] {
			continue
		}
		seen[n.ReportType] = true
		out = append(out, n.ReportType)
	}
	sort.Strings(out)
	return out
}

// UploadFewshots ingests a few-shot examples spreadsheet, grouped by prompt
// type, and persists each group to the few-shot store.
func (d *Deps) UploadFewshots(c *gin.Context) {
	file, _, err := c.Request.FormFile("file")
	if err != nil {
		badRequest(c, "missing multipart file field \"file\"")
		return
	}
	defer file.Close()

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, file); err != nil {
		badRequest(c, err.Error())
		return
	}

	byPromptType, err := intake.ParseFewshotCSV(bytes.NewReader(buf.Bytes()))
	if err != nil {
		badRequest(c, err.Error())
		return
	}

	counts := map[string]int{}
	var promptTypes []string
	for promptType, examples := range byPromptType {
		if err := d.Fewshots.Upload(promptType, examples); err != nil {
			fail(c, err)
			return
		}
		counts[promptType] = len(examples)
		promptTypes = append(promptTypes, promptType)
	}
	sort.Strings(promptTypes)

	c.JSON(http.StatusOK, gin.H{
		"success":          true,
		"prompt_types":     promptTypes,
		"counts_by_prompt": counts,
	})
}

// FewshotsStatus reports per-prompt-type few-shot availability and counts.
func (d *Deps) FewshotsStatus(c *gin.Context) {
	total := 0
	counts := map[string]int{}
	var withFewshots []string
	for _, promptType := range d.Prompts.All() {
		n := d.Fewshots.Count(promptType)
		if n > 0 {
			counts[promptType] = n
			withFewshots = append(withFewshots, promptType)
			total += n
		}
	}
	c.JSON(http.StatusOK, gin.H{
		"simple_fewshots_available": len(withFewshots) > 0,
		"prompt_types_with_fewshots": withFewshots,
		"counts_by_prompt":           counts,
		"total_examples":             total,
	})
}

// DeleteFewshots clears every prompt type's few-shot examples.
func (d *Deps) DeleteFewshots(c *gin.Context) {
	cleared := 0
	for _, promptType := range d.Prompts.All() {
		if d.Fewshots.Count(promptType) == 0 {
			continue
		}
		if err := d.Fewshots.DeleteAll(promptType); err != nil {
			fail(c, err)
			return
		}
		cleared++
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "prompt_types_cleared": cleared})
}

// GetReportTypeMappings returns the saved report-type -> prompt-type
// mapping for a center, used to prefill session creation.
func (d *Deps) GetReportTypeMappings(c *gin.Context) {
	center := c.Query("center")
	if center == "" {
		all, err := d.reportTypeMappings.All()
		if err != nil {
			fail(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"mappings": all})
		return
	}
	mapping, err := d.reportTypeMappings.Get(center)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"center": center, "mapping": mapping})
}

// SaveReportTypeMappings persists the report-type -> prompt-type mapping
// for one center.
func (d *Deps) SaveReportTypeMappings(c *gin.Context) {
	var req struct {
		Center  string              `json:"center" binding:"required"`
		Mapping map[string][]string `json:"mapping" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	if err := d.reportTypeMappings.Save(req.Center, req.Mapping); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}
