// Package model holds the data types shared across the annotation pipeline:
// notes, prompt templates, annotation results, sessions, and jobs. Keeping
// them in one package avoids import cycles between the components that
// produce and consume them (annotate, session, export, jobs).
package model

import "time"

// Note is a clinical document, immutable once loaded into a session.
type Note struct {
	NoteID          string `json:"note_id"`
	PatientID       string `json:"patient_id"`
	Date            string `json:"date,omitempty"`
	ReportType      string `json:"report_type"`
	Text            string `json:"text"`
	GoldAnnotations string `json:"gold_annotations,omitempty"`
}

// HasGold reports whether the note carries a gold-annotation column.
func (n Note) HasGold() bool {
	return n.GoldAnnotations != ""
}

// FieldMapping describes one placeholder->target-field rule inside an
// EntityMapping.
type FieldMapping struct {
	Placeholder     string            `json:"placeholder"`
	TargetEntity    string            `json:"target_entity"`
	TargetField     string            `json:"target_field"`
	HardcodedValue  string            `json:"hardcoded_value,omitempty"`
	ValueToCodeMap  map[string]string `json:"value_code_mappings,omitempty"`
}

// EntityMapping declares how an annotation maps onto the external data
// model: a target entity, an optional textual trigger, and field mappings.
type EntityMapping struct {
	TargetEntity string         `json:"target_entity"`
	Trigger      string         `json:"trigger,omitempty"`
	Fields       []FieldMapping `json:"fields"`
}

// CoreVariable returns the prompt's canonical Entity.field string drawn from
// the first field mapping, or "" if there is none.
func (m *EntityMapping) CoreVariable() string {
	if m == nil || len(m.Fields) == 0 {
		return ""
	}
	f := m.Fields[0]
	if f.TargetEntity == "" || f.TargetField == "" {
		return ""
	}
	return f.TargetEntity + "." + f.TargetField
}

// Template is a tagged sum: a prompt is either a bare template string or a
// template plus an EntityMapping. See Design Note "Dynamic prompt data".
type Template struct {
	Text    string         `json:"template"`
	Mapping *EntityMapping `json:"entity_mapping,omitempty"`
}

// PromptTemplate is a loaded, center-suffixed prompt, keyed by PromptType.
type PromptTemplate struct {
	PromptType string // e.g. "biopsygrading-int", always center-suffixed
	Center     string
	Template   Template
	SourcePath string
	ModTime    time.Time
}

// FewShotExample is a (note_text, gold_annotation) pair scoped to a prompt.
type FewShotExample struct {
	NoteText       string `json:"note_text"`
	GoldAnnotation string `json:"annotation"`
}

// EvidenceSpan is an offset range into a note's text locating the evidence
// for one annotation.
type EvidenceSpan struct {
	Start      int    `json:"start"`
	End        int    `json:"end"`
	Text       string `json:"text"`
	PromptType string `json:"prompt_type"`
}

// DateSource distinguishes how an annotation's date_info was derived.
type DateSource string

const (
	DateExtractedFromText DateSource = "extracted_from_text"
	DateDerivedFromCSV    DateSource = "derived_from_csv"
)

// DateInfo records an annotation's resolved date and its provenance.
type DateInfo struct {
	DateValue string     `json:"date_value,omitempty"`
	Source    DateSource `json:"source,omitempty"`
	CSVDate   string     `json:"csv_date,omitempty"`
}

// Status is the outcome of processing one (note, prompt) pair.
type Status string

const (
	StatusSuccess    Status = "success"
	StatusError      Status = "error"
	StatusIncomplete Status = "incomplete"
)

// ValueDetail is one typed-sub-value comparison inside an evaluation
// (dates, numbers-with-units, key/value pairs, enumerations).
type ValueDetail struct {
	Field     string `json:"field"`
	Expected  string `json:"expected"`
	Predicted string `json:"predicted"`
	Match     bool   `json:"match"`
}

// FieldEvaluation is the per-placeholder outcome inside a templated
// annotation's evaluation.
type FieldEvaluation struct {
	FieldName    string `json:"field_name"`
	FieldType    string `json:"field_type"` // date | categorical | text
	Expected     string `json:"expected"`
	Predicted    string `json:"predicted"`
	Match        bool   `json:"match"`
	MatchType    string `json:"match_type"` // both_placeholder | extraction_success | extraction_failed | false_positive | match | mismatch
}

// EvaluationResult is the outcome of comparing a prediction against a gold
// annotation for one (note, prompt) pair.
type EvaluationResult struct {
	NoteID           string            `json:"note_id,omitempty"`
	PromptType       string            `json:"prompt_type,omitempty"`
	ExactMatch       bool              `json:"exact_match"`
	SimilarityScore  float64           `json:"similarity_score"`
	HighSimilarity   bool              `json:"high_similarity"`
	OverallMatch     bool              `json:"overall_match"`
	MatchType        string            `json:"match_type"` // "match" | "mismatch"
	ExpectedText     string            `json:"expected_annotation"`
	PredictedText    string            `json:"predicted_annotation"`
	TotalValues      int               `json:"total_values"`
	ValuesMatched    int               `json:"values_matched"`
	ValueDetails     []ValueDetail     `json:"value_details,omitempty"`
	ValueMatchRate   *float64          `json:"value_match_rate,omitempty"`
	FieldEvaluations []FieldEvaluation `json:"field_evaluations,omitempty"`
}

// ICDO3Candidate is one ranked dictionary row returned from a code
// resolution query.
type ICDO3Candidate struct {
	Query          string  `json:"query"`
	MorphologyCode string  `json:"morphology_code"`
	TopographyCode string  `json:"topography_code"`
	Name           string  `json:"name"`
	Score          float64 `json:"score"`
	Method         string  `json:"method"`
}

// ICDO3CodeInfo is the resolved diagnosis-code information attached to a
// histology- or site-oriented annotation.
type ICDO3CodeInfo struct {
	Code                   string            `json:"code"`
	MorphologyCode         string            `json:"morphology_code"`
	TopographyCode         string            `json:"topography_code"`
	Description            string            `json:"description"`
	MatchMethod            string            `json:"match_method"`
	MatchScore             float64           `json:"match_score"`
	Candidates             []ICDO3Candidate  `json:"candidates,omitempty"`
	SelectedCandidateIndex int               `json:"selected_candidate_index"`
	UserSelected           bool              `json:"user_selected"`
}

// SyncSelection keeps the top-level fields mirrored to the selected
// candidate, enforcing the invariant in spec.md §3.
func (c *ICDO3CodeInfo) SyncSelection() {
	if c == nil || len(c.Candidates) == 0 {
		return
	}
	if c.SelectedCandidateIndex < 0 || c.SelectedCandidateIndex >= len(c.Candidates) {
		c.SelectedCandidateIndex = 0
	}
	sel := c.Candidates[c.SelectedCandidateIndex]
	c.Code = sel.Query
	c.MorphologyCode = sel.MorphologyCode
	c.TopographyCode = sel.TopographyCode
	c.Description = sel.Name
	c.MatchMethod = sel.Method
	c.MatchScore = sel.Score
}

// UnifiedICDO3Code is the per-note merged histology+topography selection.
type UnifiedICDO3Code struct {
	Code                string `json:"code"`
	Name                string `json:"name"`
	MorphologyCode      string `json:"morphology_code"`
	TopographyCode      string `json:"topography_code"`
	MorphologyValid     bool   `json:"morphology_valid"`
	TopographyValid     bool   `json:"topography_valid"`
	CombinationValid    bool   `json:"combination_valid"`
	UserSelected         bool  `json:"user_selected"`
}

// EditInfo records who edited an annotation result and when.
type EditInfo struct {
	EditedBy string    `json:"edited_by"`
	EditedAt time.Time `json:"edited_at"`
	Edited   bool      `json:"edited"`
}

// AnnotationResult is produced by the Annotation Engine for one
// (note, prompt) pair.
type AnnotationResult struct {
	PromptType      string             `json:"prompt_type"`
	AnnotationText  string             `json:"annotation_text"`
	EvidenceText    string             `json:"evidence_text,omitempty"`
	EvidenceSpans   []EvidenceSpan     `json:"evidence_spans,omitempty"`
	Reasoning       string             `json:"reasoning,omitempty"`
	IsNegated       bool               `json:"is_negated"`
	DateInfo        *DateInfo          `json:"date_info,omitempty"`
	RawPrompt       string             `json:"raw_prompt,omitempty"`
	RawResponse     string             `json:"raw_response,omitempty"`
	Status          Status             `json:"status"`
	Evaluation      *EvaluationResult  `json:"evaluation_result,omitempty"`
	ICDO3           *ICDO3CodeInfo     `json:"icdo3_code,omitempty"`
	Edit            *EditInfo          `json:"edit,omitempty"`
	DurationMillis  int64              `json:"duration_millis"`
}

// EvaluationMode selects whether a session scores predictions against gold
// annotations.
type EvaluationMode string

const (
	ModeValidation EvaluationMode = "validation"
	ModeEvaluation EvaluationMode = "evaluation"
)

// Session is a working scope bundling a notes set, a prompt set, and their
// annotations.
type Session struct {
	SessionID         string                                  `json:"session_id"`
	Name              string                                  `json:"name"`
	Description       string                                  `json:"description,omitempty"`
	CreatedAt         time.Time                                `json:"created_at"`
	UpdatedAt         time.Time                                `json:"updated_at"`
	Notes             []Note                                   `json:"notes"`
	Annotations       map[string]map[string]*AnnotationResult   `json:"annotations"` // note_id -> prompt_type -> result
	PromptTypes       []string                                  `json:"prompt_types"`
	ReportTypeMapping map[string][]string                       `json:"report_type_mapping,omitempty"`
	EvaluationMode    EvaluationMode                             `json:"evaluation_mode"`
	UnifiedCodes      map[string]*UnifiedICDO3Code               `json:"unified_icdo3_codes,omitempty"`
}

// NoteByID returns the note with the given ID, or false if absent.
func (s *Session) NoteByID(noteID string) (Note, bool) {
	for _, n := range s.Notes {
		if n.NoteID == noteID {
			return n, true
		}
	}
	return Note{}, false
}

// HasPromptType reports whether prompt type p is active for the session.
func (s *Session) HasPromptType(p string) bool {
	for _, pt := range s.PromptTypes {
		if pt == p {
			return true
		}
	}
	return false
}

// AllowedPromptTypes returns the prompt types allowed for a note, honoring
// the report-type mapping when one is configured for that report type. When
// no mapping entry exists for the report type, all active session prompt
// types are allowed.
func (s *Session) AllowedPromptTypes(reportType string) []string {
	if s.ReportTypeMapping == nil {
		return s.PromptTypes
	}
	allow, ok := s.ReportTypeMapping[reportType]
	if !ok {
		return s.PromptTypes
	}
	return allow // may be empty: open question #3, silently skip
}

// JobStage names the five canonical job shapes.
type JobStage string

const (
	StageQualityCheckOnly     JobStage = "quality_check_only"
	StageLinkRowsOnly         JobStage = "link_rows_only"
	StageFullPipeline         JobStage = "full_pipeline"
	StageDiscoverability      JobStage = "discoverability"
	StageContinueFromSession  JobStage = "continue_from_session"
)

// JobStep is the terminal and intermediate status vocabulary for a job.
type JobStep string

const (
	StepQueued    JobStep = "Queued"
	StepCompleted JobStep = "Completed"
	StepFailed    JobStep = "Failed"
	StepCancelled JobStep = "Cancelled"
)

// Job is a durable record of one pipeline run.
type Job struct {
	JobID     string    `json:"job_id"`
	Stage     JobStage  `json:"stage"`
	Step      string    `json:"step"`
	Progress  int       `json:"progress"`
	Result    string    `json:"result,omitempty"`
	StartedAt time.Time `json:"started_at"`
}

// IsTerminal reports whether the job's step is one of the three terminal
// states, per invariant #4 in spec.md §8.
func (j Job) IsTerminal() bool {
	switch JobStep(j.Step) {
	case StepCompleted, StepFailed, StepCancelled:
		return true
	default:
		return false
	}
}

// LogEntry is one line of a job's append-only log stream.
type LogEntry struct {
	JobID     string    `json:"job_id"`
	Timestamp time.Time `json:"timestamp"`
	Level     string    `json:"level"`
	Message   string    `json:"message"`
}

// Preset is a reusable (name, center, mapping) tuple.
type Preset struct {
	PresetID          string              `json:"preset_id"`
	Name              string              `json:"name"`
	Center            string              `json:"center"`
	ReportTypeMapping map[string][]string `json:"report_type_mapping"`
	Description       string              `json:"description,omitempty"`
}
