package api

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/clinicalpipe/annotator/internal/annotate"
	"github.com/clinicalpipe/annotator/internal/apperr"
	"github.com/clinicalpipe/annotator/internal/export"
	"github.com/clinicalpipe/annotator/internal/model"
	"github.com/clinicalpipe/annotator/internal/session"
)

type createSessionRequest struct {
	Name        string       `json:"name" binding:"required"`
	Description string       `json:"description"`
	Notes       []model.Note `json:"notes" binding:"required"`
	PromptTypes []string     `json:"prompt_types"`
}

// CreateSession starts a new working session from a set of notes, mirroring
// the original create_session route: notes come from a prior UploadCSV
// preview, not a fresh file.
func (d *Deps) CreateSession(c *gin.Context) {
	var req createSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	sess, err := d.Sessions.CreateFromNotes(req.Name, req.Description, req.Notes, req.PromptTypes)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, sess)
}

// ListSessions returns every session, most recently updated first.
func (d *Deps) ListSessions(c *gin.Context) {
	sessions, err := d.Sessions.List()
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"sessions": sessions})
}

// GetSession fetches one session by ID.
func (d *Deps) GetSession(c *gin.Context) {
	sess, err := d.Sessions.Get(c.Param("sessionID"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, sess)
}

type patchSessionRequest struct {
	Name              *string             `json:"name"`
	Description       *string             `json:"description"`
	ReportTypeMapping map[string][]string `json:"report_type_mapping"`
	ClearMapping      bool                `json:"clear_mapping"`
}

// PatchSession applies a partial update: name, description, and/or the
// report-type -> prompt-type mapping used to scope batch annotation.
func (d *Deps) PatchSession(c *gin.Context) {
	var req patchSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	sess, err := d.Sessions.ApplyPatch(c.Param("sessionID"), session.Patch{
		Name:              req.Name,
		Description:       req.Description,
		ReportTypeMapping: req.ReportTypeMapping,
		ClearMapping:      req.ClearMapping,
	})
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, sess)
}

// DeleteSession removes a session permanently.
func (d *Deps) DeleteSession(c *gin.Context) {
	if err := d.Sessions.Delete(c.Param("sessionID")); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

type promptTypesRequest struct {
	PromptTypes []string `json:"prompt_types" binding:"required"`
}

// AddPromptTypes extends the set of prompt types a session annotates against.
func (d *Deps) AddPromptTypes(c *gin.Context) {
	var req promptTypesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	sess, err := d.Sessions.AddPromptTypes(c.Param("sessionID"), req.PromptTypes)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, sess)
}

// RemovePromptTypes shrinks the set of prompt types a session annotates
// against. Emptying the set entirely is rejected by the store with a 400
// (apperr.Conflict), not silently allowed.
func (d *Deps) RemovePromptTypes(c *gin.Context) {
	var req promptTypesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	sess, err := d.Sessions.RemovePromptTypes(c.Param("sessionID"), req.PromptTypes)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, sess)
}

type annotateOneRequest struct {
	NoteID      string   `json:"note_id" binding:"required"`
	PromptTypes []string `json:"prompt_types" binding:"required"`
	UseFewshots bool     `json:"use_fewshots"`
	FewshotK    int      `json:"fewshot_k"`
}

// AnnotateOne runs the annotation engine for a single note against one or
// more prompt types, persisting each produced result onto the session.
func (d *Deps) AnnotateOne(c *gin.Context) {
	sessionID := c.Param("sessionID")
	var req annotateOneRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	sess, err := d.Sessions.Get(sessionID)
	if err != nil {
		fail(c, err)
		return
	}

	batch, err := d.Engine.ProcessOne(c.Request.Context(), sess, req.NoteID, req.PromptTypes, annotate.Options{
		UseFewshots: req.UseFewshots,
		FewshotK:    req.FewshotK,
	})
	if err != nil {
		d.failLLM(c, err)
		return
	}

	for i := range batch.Results {
		result := batch.Results[i]
		if _, err := d.Sessions.SaveAnnotation(sessionID, req.NoteID, result.PromptType, &result); err != nil {
			fail(c, err)
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"results": batch.Results, "elapsed_ms": batch.Elapsed.Milliseconds()})
}

type annotateBatchRequest struct {
	NoteIDs     []string `json:"note_ids"`
	PromptTypes []string `json:"prompt_types"`
	UseFewshots bool     `json:"use_fewshots"`
	FewshotK    int      `json:"fewshot_k"`
}

// AnnotateBatch fans the annotation engine out across many notes at once.
// An empty note_ids list is valid input (scenario: nothing selected yet)
// and returns an empty result set without touching the LLM endpoint.
func (d *Deps) AnnotateBatch(c *gin.Context) {
	sessionID := c.Param("sessionID")
	var req annotateBatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	sess, err := d.Sessions.Get(sessionID)
	if err != nil {
		fail(c, err)
		return
	}

	batch, err := d.Engine.ProcessBatch(c.Request.Context(), sess, req.NoteIDs, req.PromptTypes, annotate.Options{
		UseFewshots: req.UseFewshots,
		FewshotK:    req.FewshotK,
	})
	if err != nil {
		d.failLLM(c, err)
		return
	}

	noteIDs := expandedNoteIDs(sess, req.NoteIDs, req.PromptTypes)
	for i := range batch.Results {
		if i >= len(noteIDs) {
			break
		}
		result := batch.Results[i]
		if _, err := d.Sessions.SaveAnnotation(sessionID, noteIDs[i], result.PromptType, &result); err != nil {
			fail(c, err)
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"results": batch.Results, "elapsed_ms": batch.Elapsed.Milliseconds()})
}

// expandedNoteIDs rebuilds the note-ID-per-result ordering that
// annotate.Engine.ProcessBatch produces internally: for each note, in
// order, each requested prompt type that survives the session's
// report-type allow-list contributes one result slot.
func expandedNoteIDs(sess *model.Session, noteIDs, promptTypes []string) []string {
	var out []string
	for _, noteID := range noteIDs {
		note, ok := sess.NoteByID(noteID)
		if !ok {
			continue
		}
		allowed := map[string]bool{}
		for _, p := range sess.AllowedPromptTypes(note.ReportType) {
			allowed[p] = true
		}
		for _, promptType := range promptTypes {
			if allowed[promptType] {
				out = append(out, noteID)
			}
		}
	}
	return out
}

// failLLM reports an engine error, naming the configured LLM endpoint in
// the body when the failure is LLM unavailability so the 503 response is
// actionable (scenario: endpoint down, operator needs to know which one).
func (d *Deps) failLLM(c *gin.Context, err error) {
	status := apperr.HTTPStatus(apperr.KindOf(err))
	body := gin.H{"error": err.Error()}
	if apperr.KindOf(err) == apperr.Unavailable {
		body["endpoint"] = d.Config.LLM.Endpoint
	}
	c.JSON(status, body)
}

// ExportLabelCSV streams the session's flattened, un-coded label rows.
func (d *Deps) ExportLabelCSV(c *gin.Context) {
	sessionID := c.Param("sessionID")
	sess, err := d.Sessions.Get(sessionID)
	if err != nil {
		fail(c, err)
		return
	}
	rows := export.BuildRows(sess, d.Prompts)
	c.Header("Content-Type", "text/csv")
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%s_label.csv", sessionID))
	if err := export.WriteLabelCSV(c.Writer, rows); err != nil {
		fail(c, err)
		return
	}
}

// ExportCodedCSV streams the session's rows with ICD-O-3/value codes
// resolved, falling back to UNRESOLVED values when the code resolver or a
// unified code is unavailable.
func (d *Deps) ExportCodedCSV(c *gin.Context) {
	sessionID := c.Param("sessionID")
	sess, err := d.Sessions.Get(sessionID)
	if err != nil {
		fail(c, err)
		return
	}
	rows := export.BuildRows(sess, d.Prompts)
	coded := export.BuildCodedRows(sess, d.Prompts, d.CodeResolver, rows)
	c.Header("Content-Type", "text/csv")
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%s_coded.csv", sessionID))
	if err := export.WriteCodedCSV(c.Writer, coded); err != nil {
		fail(c, err)
		return
	}
}

type icdo3SelectRequest struct {
	NoteID       string `json:"note_id" binding:"required"`
	PromptType   string `json:"prompt_type" binding:"required"`
	CandidateIdx int    `json:"candidate_index"`
	UserSelected bool   `json:"user_selected"`
}

// ICDO3Select records which ranked ICD-O-3 candidate a reviewer chose for
// one note/prompt-type annotation.
func (d *Deps) ICDO3Select(c *gin.Context) {
	var req icdo3SelectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	sess, err := d.Sessions.RecordICDO3Selection(c.Param("sessionID"), req.NoteID, req.PromptType, req.CandidateIdx, req.UserSelected)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, sess)
}

type icdo3CombineRequest struct {
	NoteID          string `json:"note_id" binding:"required"`
	Code            string `json:"code" binding:"required"`
	Name            string `json:"name"`
	MorphologyCode  string `json:"morphology_code"`
	TopographyCode  string `json:"topography_code"`
	UserSelected    bool   `json:"user_selected"`
}

// ICDO3Combine saves the single unified diagnosis code for a note, built
// from a chosen morphology and topography, validating the combination
// against the dictionary first.
func (d *Deps) ICDO3Combine(c *gin.Context) {
	var req icdo3CombineRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	validation := d.Dictionary.ValidateCombination(req.MorphologyCode, req.TopographyCode)
	unified := model.UnifiedICDO3Code{
		Code:             req.Code,
		Name:             req.Name,
		MorphologyCode:   req.MorphologyCode,
		TopographyCode:   req.TopographyCode,
		MorphologyValid:  validation.MorphologyValid,
		TopographyValid:  validation.TopographyValid,
		CombinationValid: validation.Valid,
		UserSelected:     req.UserSelected,
	}

	sess, err := d.Sessions.SaveUnifiedCode(c.Param("sessionID"), req.NoteID, unified)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, sess)
}
