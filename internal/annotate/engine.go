// Package annotate is the Annotation Engine: for a (note, prompt) pair it
// assembles a prompt, calls the LLM Client, parses and normalizes the
// structured response, locates evidence spans, resolves diagnosis codes,
// and optionally scores the result against a gold annotation. Fan-out
// across many pairs runs under a bounded golang.org/x/sync/semaphore gate,
// playing the role the channel gates play in
// jinterlante1206-AleutianLocal/services/trace/agent/classifier/llm_classifier.go
// and .../services/trace/graph/hld_queries.go, combined with
// golang.org/x/sync/errgroup for cancellation-aware fan-out as
// jinterlante1206-AleutianLocal/services/trace/analysis/enhanced_analyzer.go
// does for its enricher stages.
package annotate

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/clinicalpipe/annotator/internal/apperr"
	"github.com/clinicalpipe/annotator/internal/dictionary"
	"github.com/clinicalpipe/annotator/internal/fewshot"
	"github.com/clinicalpipe/annotator/internal/llmclient"
	"github.com/clinicalpipe/annotator/internal/logging"
	"github.com/clinicalpipe/annotator/internal/model"
	"github.com/clinicalpipe/annotator/internal/prompts"
)

// Config configures the Engine's single concurrency knob and default
// fan-out behavior.
type Config struct {
	// MaxConcurrency bounds in-flight LLM calls. Default 8,
	// VLLM_CONCURRENCY-overridable at the config layer (spec.md §4.E.3).
	MaxConcurrency int
}

// Options configures one process_one/process_batch call.
type Options struct {
	UseFewshots bool
	FewshotK    int
}

// Engine is the Annotation Engine component.
type Engine struct {
	llm      *llmclient.Client
	prompts  *prompts.Library
	fewshots *fewshot.Store
	dict     *dictionary.Index
	cfg      Config
}

// New constructs an Engine from its collaborators.
func New(llm *llmclient.Client, promptLib *prompts.Library, fewshotStore *fewshot.Store, dict *dictionary.Index, cfg Config) *Engine {
	if cfg.MaxConcurrency <= 0 {
		cfg.MaxConcurrency = 8
	}
	return &Engine{llm: llm, prompts: promptLib, fewshots: fewshotStore, dict: dict, cfg: cfg}
}

// pair is one (note, prompt) unit of work, tagged with its submission
// index so process_batch can return results in input order regardless of
// completion order (Open Question #1 resolution, SPEC_FULL.md §11).
type pair struct {
	index      int
	note       model.Note
	promptType string
}

// BatchResult is the outcome of a batch fan-out: per-pair results in
// submission order, plus the rolled-up wall-clock.
type BatchResult struct {
	Results  []model.AnnotationResult
	Elapsed  time.Duration
}

// ProcessOne fans out every allowed prompt for a single note.
func (e *Engine) ProcessOne(ctx context.Context, sess *model.Session, noteID string, promptTypes []string, opts Options) (BatchResult, error) {
	return e.ProcessBatch(ctx, sess, []string{noteID}, promptTypes, opts)
}

// ProcessBatch flattens the full (note_ids × prompt_types) cross-product
// into a single task set, honoring the session's report_type_mapping, and
// fans it out under a bounded semaphore so short-tail pairs fill slots
// left idle by long-tail pairs (spec.md §4.E.3).
func (e *Engine) ProcessBatch(ctx context.Context, sess *model.Session, noteIDs []string, promptTypes []string, opts Options) (BatchResult, error) {
	start := time.Now()
	log := logging.WithSession("annotate", sess.SessionID)

	if len(noteIDs) == 0 {
		return BatchResult{Results: nil, Elapsed: time.Since(start)}, nil
	}

	if available, reason := e.llm.Available(ctx); !available {
		return BatchResult{}, apperr.New(apperr.Unavailable, "LLM endpoint unavailable: "+reason)
	}

	var pairs []pair
	for _, noteID := range noteIDs {
		note, ok := sess.NoteByID(noteID)
		if !ok {
			continue
		}
		allowed := map[string]bool{}
		for _, pt := range sess.AllowedPromptTypes(note.ReportType) {
			allowed[pt] = true
		}
		for _, promptType := range promptTypes {
			if !allowed[promptType] {
				continue
			}
			pairs = append(pairs, pair{note: note, promptType: promptType})
		}
	}
	for i := range pairs {
		pairs[i].index = i
	}

	results := make([]model.AnnotationResult, len(pairs))

	sem := semaphore.NewWeighted(int64(e.cfg.MaxConcurrency))
	g, gctx := errgroup.WithContext(ctx)

	for _, p := range pairs {
		p := p
		g.Go(func() error {
			result := e.processPair(gctx, sem, sess, p.note, p.promptType, opts)
			results[p.index] = result
			return nil
		})
	}
	_ = g.Wait() // per-pair errors are recorded on the result, never aborted

	log.WithField("pairs", len(pairs)).Info("batch annotation complete")
	return BatchResult{Results: results, Elapsed: time.Since(start)}, nil
}

// processPair runs the full per-pair algorithm of spec.md §4.E.2. It never
// returns an error: failures are recorded on the AnnotationResult per
// §4.E.5 so one bad pair cannot abort the batch.
func (e *Engine) processPair(ctx context.Context, sem *semaphore.Weighted, sess *model.Session, note model.Note, promptType string, opts Options) model.AnnotationResult {
	pairStart := time.Now()
	log := logging.WithSession("annotate", sess.SessionID).WithField("prompt_type", promptType).WithField("note_id", note.NoteID)

	tmpl, err := e.prompts.Get(promptType)
	if err != nil {
		return errorResult(promptType, "", "failed to load prompt: "+err.Error(), pairStart)
	}

	var examples []model.FewShotExample
	if opts.UseFewshots {
		k := opts.FewshotK
		if k <= 0 {
			k = defaultFewshotK
		}
		if ex, err := e.fewshots.Get(ctx, promptType, note.Text, k); err == nil {
			examples = ex
		}
	}

	classification := prompts.Classify(tmpl.Template.Text)
	assembled := assemblePrompt(tmpl.Template.Text, note.Text, examples, classification, csvDateFor(note))

	var raw, normalized string
	var parsed structuredResponse

	if classification == prompts.Structured {
		if err := sem.Acquire(ctx, 1); err != nil {
			return errorResult(promptType, assembled, "cancelled before generation: "+err.Error(), pairStart)
		}
		schema, _ := llmclient.SchemaFor(structuredResponse{})
		rawResp, genErr := e.llm.GenerateStructured(ctx, assembled, schema, &parsed)
		sem.Release(1)
		raw = rawResp
		if genErr != nil {
			log.WithError(genErr).Warn("structured generation failed")
			return errorResult(promptType, assembled, genErr.Error(), pairStart)
		}
		normalized = parsed.FinalOutput
	} else {
		if err := sem.Acquire(ctx, 1); err != nil {
			return errorResult(promptType, assembled, "cancelled before generation: "+err.Error(), pairStart)
		}
		genResult, genErr := e.llm.Generate(ctx, assembled, llmclient.GenerateOptions{Temperature: 0})
		sem.Release(1)
		if genErr != nil {
			log.WithError(genErr).Warn("generation failed")
			return errorResult(promptType, assembled, genErr.Error(), pairStart)
		}
		raw = genResult.Raw
		normalized = genResult.Normalized
		parsed.Evidence = normalized
		parsed.FinalOutput = normalized
	}

	cleaned := stripMetaNarration(normalized)
	finalOutput := normalizeAbsenceIndicator(cleaned)
	isNegated := parsed.IsNegated || (finalOutput == standardAbsenceIndicator && detectNegationCues(parsed.Reasoning+" "+cleaned))

	dateInfo := resolveDateInfo(parsed.Date, note)

	var spans []model.EvidenceSpan
	if span, ok := findEvidenceSpan(note.Text, parsed.Evidence, promptType); ok {
		spans = []model.EvidenceSpan{span}
	}

	result := model.AnnotationResult{
		PromptType:     promptType,
		AnnotationText: finalOutput,
		EvidenceText:   parsed.Evidence,
		EvidenceSpans:  spans,
		Reasoning:      parsed.Reasoning,
		IsNegated:      isNegated,
		DateInfo:       dateInfo,
		RawPrompt:      assembled,
		RawResponse:    raw,
		DurationMillis: time.Since(pairStart).Milliseconds(),
	}

	if isHistologyOrSitePrompt(promptType) {
		result.ICDO3 = e.resolveICDO3(ctx, note.Text, finalOutput, promptType)
	}

	if sess.EvaluationMode == model.ModeEvaluation {
		if gold, ok := goldFor(note, promptType); ok {
			eval := EvaluateAnnotation(gold, finalOutput, tmpl.Template.Text)
			eval.NoteID = note.NoteID
			eval.PromptType = promptType
			result.Evaluation = &eval
		}
	}

	result.Status = determineStatus(result)
	return result
}

const defaultFewshotK = 3

func errorResult(promptType, rawPrompt, message string, start time.Time) model.AnnotationResult {
	return model.AnnotationResult{
		PromptType:     promptType,
		AnnotationText: "ERROR: " + message,
		RawPrompt:      rawPrompt,
		Status:         model.StatusError,
		DurationMillis: time.Since(start).Milliseconds(),
	}
}

func goldFor(note model.Note, promptType string) (string, bool) {
	if !note.HasGold() {
		return "", false
	}
	for _, token := range splitPipe(note.GoldAnnotations) {
		key, value, ok := splitKeyValue(token)
		if ok && equalFoldTrim(key, promptType) {
			return value, true
		}
	}
	return "", false
}
