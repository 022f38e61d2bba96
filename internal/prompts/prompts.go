// Package prompts loads the per-center prompt-template directory tree,
// adapts each template's placeholder tokens, and exposes a flat,
// center-suffixed lookup. Mirrors the adaptation rules in
// original_source/backend/lib/prompt_adapter.py, generalized from the
// single "INT" category it hard-coded to any category, since spec defines
// loading per-center prompts.json files uniformly.
package prompts

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/clinicalpipe/annotator/internal/apperr"
	"github.com/clinicalpipe/annotator/internal/model"
)

// Classification is the output of Classify.
type Classification string

const (
	Simple     Classification = "Simple"
	Structured Classification = "Structured"
)

// rawPromptData is the on-disk shape of one entry in a center's
// prompts.json: either a bare string template, or an object with a
// template plus an optional entity_mapping.
type rawPromptData struct {
	Template      string               `json:"template"`
	EntityMapping *model.EntityMapping `json:"entity_mapping,omitempty"`
}

func (r *rawPromptData) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		r.Template = s
		return nil
	}
	type alias rawPromptData
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	*r = rawPromptData(a)
	return nil
}

// Library is the loaded, mtime-cached prompt template set.
type Library struct {
	root string

	mu        sync.RWMutex
	byType    map[string]model.PromptTemplate
	fileMTime map[string]time.Time // center dir -> prompts.json mtime
}

// New constructs a Library rooted at a directory containing one
// subdirectory per center.
func New(root string) *Library {
	return &Library{
		root:      root,
		byType:    map[string]model.PromptTemplate{},
		fileMTime: map[string]time.Time{},
	}
}

// Load walks the center subdirectories in sorted order and (re)builds the
// flat prompt-type map.
func (l *Library) Load() error {
	entries, err := os.ReadDir(l.root)
	if err != nil {
		return apperr.Wrap(apperr.Unavailable, "failed to read prompt library root", err)
	}

	var centers []string
	for _, e := range entries {
		if e.IsDir() {
			centers = append(centers, e.Name())
		}
	}
	sort.Strings(centers)

	l.mu.Lock()
	defer l.mu.Unlock()

	for _, center := range centers {
		if err := l.loadCenter(center); err != nil {
			return err
		}
	}
	return nil
}

// ReloadIfChanged re-reads only the centers whose prompts.json mtime
// changed since the last load.
func (l *Library) ReloadIfChanged() error {
	entries, err := os.ReadDir(l.root)
	if err != nil {
		return apperr.Wrap(apperr.Unavailable, "failed to read prompt library root", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		center := e.Name()
		path := filepath.Join(l.root, center, "prompts.json")
		info, err := os.Stat(path)
		if err != nil {
			continue
		}
		if cached, ok := l.fileMTime[center]; ok && !info.ModTime().After(cached) {
			continue
		}
		if err := l.loadCenter(center); err != nil {
			return err
		}
	}
	return nil
}

// loadCenter must be called with l.mu held.
func (l *Library) loadCenter(center string) error {
	path := filepath.Join(l.root, center, "prompts.json")
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return apperr.Wrap(apperr.Unavailable, "failed to stat prompts.json for "+center, err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return apperr.Wrap(apperr.Unavailable, "failed to read prompts.json for "+center, err)
	}

	var raw map[string]rawPromptData
	if err := json.Unmarshal(data, &raw); err != nil {
		return apperr.Wrap(apperr.InputInvalid, "malformed prompts.json for "+center, err)
	}

	suffix := "-" + strings.ToLower(center)
	for key, entry := range raw {
		promptType := key + suffix
		l.byType[promptType] = model.PromptTemplate{
			PromptType: promptType,
			Center:     center,
			Template: model.Template{
				Text:    adapt(entry.Template),
				Mapping: entry.EntityMapping,
			},
			SourcePath: path,
			ModTime:    info.ModTime(),
		}
	}
	l.fileMTime[center] = info.ModTime()
	return nil
}

var verboseReasoningRE = regexp.MustCompile(
	`(?s)# Reasoning Requirements \(Traceability\)\s*\n` +
		`For every entity extracted, you MUST follow this internal logic:\s*\n` +
		`1\. \*\*Evidence\*\*:.*?\n` +
		`2\. \*\*Clinical Validation\*\*:.*?\n` +
		`3\. \*\*Inference\*\*:.*?\n` +
		`Generate the response in a structured JSON format\.[^\n]*`)

const conciseReasoningBlock = `# Reasoning Requirements (Traceability)
For every entity extracted, you MUST follow this internal logic:
1. **Evidence**: Locate the exact literal phrase or sentence from the note.
2. **Clinical Validation**: Determine if the finding is current, a past medical history (PMH), or a suspicion.
3. **Inference**: Briefly explain the logic used to map the natural language to the standard value.

IMPORTANT: Keep the reasoning field CONCISE. Provide only essential points in 2-3 sentences maximum. Avoid verbosity or repetition.
Generate the response in a structured JSON format. Ensure the ` + "`reasoning`" + ` and ` + "`evidence`" + ` fields are populated BEFORE the final values.`

// adapt rewrites a raw template's placeholder tokens into the runtime
// vocabulary the Annotation Engine expects, per
// original_source/backend/lib/prompt_adapter.py:adapt_int_prompts.
func adapt(template string) string {
	out := strings.ReplaceAll(template, "{{note_original_text}}", "{note}")
	out = strings.ReplaceAll(out, "{few_shot_examples}", "{fewshots}")
	out = strings.ReplaceAll(out, "{static_samples}\n", "")
	out = strings.ReplaceAll(out, "{static_samples}", "")
	out = strings.ReplaceAll(out, "{{annotation}}", "")
	out = verboseReasoningRE.ReplaceAllString(out, conciseReasoningBlock)
	return strings.TrimSpace(out)
}

// Get returns the adapted template for a fully-suffixed prompt type.
func (l *Library) Get(promptType string) (model.PromptTemplate, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	t, ok := l.byType[promptType]
	if !ok {
		return model.PromptTemplate{}, apperr.New(apperr.NotFound, "unknown prompt type: "+promptType)
	}
	return t, nil
}

// All returns every loaded prompt type, sorted.
func (l *Library) All() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]string, 0, len(l.byType))
	for k := range l.byType {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

var (
	structuredMarkerRE = regexp.MustCompile(`(?i)\b(json|reasoning|evidence)\b`)
	inputSectionRE     = regexp.MustCompile(`(?i)^#+\s*input\b|^input\s*:`)
)

// Classify returns Simple for short templates with no JSON/reasoning/
// evidence vocabulary and no explicit input section; otherwise Structured.
// Short is defined, as in the original adapter's informal usage, as a
// template under 400 characters once surrounding whitespace is trimmed.
func Classify(template string) Classification {
	stripped := strings.TrimSpace(template)
	if len(stripped) < 400 && !structuredMarkerRE.MatchString(stripped) {
		for _, line := range strings.Split(stripped, "\n") {
			if inputSectionRE.MatchString(strings.TrimSpace(line)) {
				return Structured
			}
		}
		return Simple
	}
	return Structured
}

// Put creates or updates a prompt (CRUD). bareKey is the identifier
// without its center suffix.
func (l *Library) Put(center, bareKey string, tmpl model.Template) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.writeCenter(center, func(raw map[string]rawPromptData) {
		raw[bareKey] = rawPromptData{Template: tmpl.Text, EntityMapping: tmpl.Mapping}
	})
}

// Rename moves a prompt from oldKey to newKey within a center.
func (l *Library) Rename(center, oldKey, newKey string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.writeCenter(center, func(raw map[string]rawPromptData) {
		if v, ok := raw[oldKey]; ok {
			delete(raw, oldKey)
			raw[newKey] = v
		}
	})
}

// Delete removes a prompt from a center.
func (l *Library) Delete(center, bareKey string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.writeCenter(center, func(raw map[string]rawPromptData) {
		delete(raw, bareKey)
	})
}

// CreateCenter creates an empty center directory and prompts.json.
func (l *Library) CreateCenter(center string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	dir := filepath.Join(l.root, center)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return apperr.Wrap(apperr.Unavailable, "failed to create center directory", err)
	}
	return l.writeCenter(center, func(raw map[string]rawPromptData) {})
}

// writeCenter must be called with l.mu held. It reads the center's current
// prompts.json (keys de-suffixed), applies mutate, and writes the result
// back, then refreshes the in-memory index for that center.
func (l *Library) writeCenter(center string, mutate func(map[string]rawPromptData)) error {
	dir := filepath.Join(l.root, center)
	path := filepath.Join(dir, "prompts.json")

	raw := map[string]rawPromptData{}
	if data, err := os.ReadFile(path); err == nil {
		if err := json.Unmarshal(data, &raw); err != nil {
			return apperr.Wrap(apperr.InputInvalid, "malformed prompts.json for "+center, err)
		}
	} else if !os.IsNotExist(err) {
		return apperr.Wrap(apperr.Unavailable, "failed to read prompts.json for "+center, err)
	}

	mutate(raw)

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return apperr.Wrap(apperr.Unavailable, "failed to create center directory", err)
	}
	out, err := json.MarshalIndent(raw, "", "  ")
	if err != nil {
		return apperr.Wrap(apperr.Unavailable, "failed to encode prompts.json", err)
	}

	tmp := path + fmt.Sprintf(".tmp-%d", time.Now().UnixNano())
	if err := os.WriteFile(tmp, out, 0o644); err != nil {
		return apperr.Wrap(apperr.Unavailable, "failed to write prompts.json", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return apperr.Wrap(apperr.Unavailable, "failed to swap prompts.json", err)
	}

	for pt, entry := range l.byType {
		if entry.Center == center {
			delete(l.byType, pt)
		}
	}
	delete(l.fileMTime, center)
	return l.loadCenter(center)
}
