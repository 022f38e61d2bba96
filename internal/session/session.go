// Package session is the Session Store: a per-session JSON file under a
// directory, written atomically and cached in memory until the file's
// mtime advances. Grounded on planner's document CRUD handlers adapted
// from a directory-of-files model to a single JSON document, and on
// planner/services/job_queue.go's update-then-persist idiom.
package session

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/clinicalpipe/annotator/internal/apperr"
	"github.com/clinicalpipe/annotator/internal/model"
)

// Store is the directory of per-session JSON files.
type Store struct {
	dir string

	mu     sync.Mutex
	cache  map[string]*cachedSession
}

type cachedSession struct {
	session *model.Session
	mtime   time.Time
}

// New constructs a Store rooted at dir. The directory is created lazily on
// first write.
func New(dir string) *Store {
	return &Store{dir: dir, cache: map[string]*cachedSession{}}
}

func (s *Store) path(sessionID string) string {
	return filepath.Join(s.dir, sessionID+".json")
}

// CreateFromNotes builds a new session from an uploaded-notes list,
// auto-upgrading evaluation_mode to "evaluation" when any note carries a
// gold-annotation column.
func (s *Store) CreateFromNotes(name, description string, notes []model.Note, promptTypes []string) (*model.Session, error) {
	now := time.Now()
	mode := model.ModeValidation
	for _, n := range notes {
		if n.HasGold() {
			mode = model.ModeEvaluation
			break
		}
	}

	sess := &model.Session{
		SessionID:      uuid.NewString(),
		Name:           name,
		Description:    description,
		CreatedAt:      now,
		UpdatedAt:      now,
		Notes:          notes,
		Annotations:    map[string]map[string]*model.AnnotationResult{},
		PromptTypes:    promptTypes,
		EvaluationMode: mode,
	}
	if err := s.save(sess); err != nil {
		return nil, err
	}
	return sess, nil
}

// Get fetches a session, serving the in-memory cache when the file's mtime
// has not advanced.
func (s *Store) Get(sessionID string) (*model.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadLocked(sessionID)
}

// loadLocked must be called with s.mu held.
func (s *Store) loadLocked(sessionID string) (*model.Session, error) {
	path := s.path(sessionID)
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, apperr.New(apperr.NotFound, "session not found: "+sessionID)
		}
		return nil, apperr.Wrap(apperr.Unavailable, "failed to stat session file", err)
	}

	if cached, ok := s.cache[sessionID]; ok && !info.ModTime().After(cached.mtime) {
		return cached.session, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, apperr.Wrap(apperr.Unavailable, "failed to read session file", err)
	}
	var sess model.Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, apperr.Wrap(apperr.InputInvalid, "malformed session file", err)
	}

	if migrate(&sess) {
		if err := s.save(&sess); err != nil {
			return nil, err
		}
		return &sess, nil
	}

	s.cache[sessionID] = &cachedSession{session: &sess, mtime: info.ModTime()}
	return &sess, nil
}

// migrate applies the backwards-compat rule: if evaluation_mode is absent
// and any note carries gold annotations, flip to evaluation and persist.
func migrate(sess *model.Session) bool {
	if sess.EvaluationMode != "" {
		return false
	}
	for _, n := range sess.Notes {
		if n.HasGold() {
			sess.EvaluationMode = model.ModeEvaluation
			return true
		}
	}
	sess.EvaluationMode = model.ModeValidation
	return true
}

// save serializes sess, writes it to a temp path, and renames it into
// place, then refreshes the in-memory cache.
func (s *Store) save(sess *model.Session) error {
	if sess.Annotations == nil {
		sess.Annotations = map[string]map[string]*model.AnnotationResult{}
	}
	sess.UpdatedAt = time.Now()

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return apperr.Wrap(apperr.Unavailable, "failed to create sessions directory", err)
	}

	data, err := json.MarshalIndent(sess, "", "  ")
	if err != nil {
		return apperr.Wrap(apperr.Unavailable, "failed to encode session", err)
	}

	path := s.path(sess.SessionID)
	tmp := path + fmt.Sprintf(".tmp-%d", time.Now().UnixNano())
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return apperr.Wrap(apperr.Unavailable, "failed to write session file", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return apperr.Wrap(apperr.Unavailable, "failed to swap session file", err)
	}

	info, err := os.Stat(path)
	if err == nil {
		s.cache[sess.SessionID] = &cachedSession{session: sess, mtime: info.ModTime()}
	}
	return nil
}

// Patch is the set of optionally-present fields a PATCH may change.
type Patch struct {
	Name              *string
	Description       *string
	ReportTypeMapping map[string][]string
	ClearMapping      bool
}

// ApplyPatch updates a session's name/description/report-type mapping.
// Changing the mapping prunes annotations whose prompt is no longer
// allowed for their note's report type, and recomputes PromptTypes as the
// mapping's value-union (invariant in spec.md §3).
func (s *Store) ApplyPatch(sessionID string, p Patch) (*model.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, err := s.loadLocked(sessionID)
	if err != nil {
		return nil, err
	}

	if p.Name != nil {
		sess.Name = *p.Name
	}
	if p.Description != nil {
		sess.Description = *p.Description
	}
	if p.ClearMapping {
		sess.ReportTypeMapping = nil
	} else if p.ReportTypeMapping != nil {
		sess.ReportTypeMapping = p.ReportTypeMapping
		sess.PromptTypes = unionValues(p.ReportTypeMapping)
		pruneOrphanedAnnotations(sess)
	}

	if err := s.save(sess); err != nil {
		return nil, err
	}
	return sess, nil
}

func unionValues(mapping map[string][]string) []string {
	seen := map[string]bool{}
	var out []string
	for _, vals := range mapping {
		for _, v := range vals {
			if !seen[v] {
				seen[v] = true
				out = append(out, v)
			}
		}
	}
	sort.Strings(out)
	return out
}

// pruneOrphanedAnnotations removes annotations whose prompt is no longer
// allowed for their note's report type, per spec.md §3's invariant.
func pruneOrphanedAnnotations(sess *model.Session) {
	for noteID, byPrompt := range sess.Annotations {
		note, ok := sess.NoteByID(noteID)
		if !ok {
			delete(sess.Annotations, noteID)
			continue
		}
		allowed := map[string]bool{}
		for _, pt := range sess.AllowedPromptTypes(note.ReportType) {
			allowed[pt] = true
		}
		for promptType := range byPrompt {
			if !allowed[promptType] {
				delete(byPrompt, promptType)
			}
		}
	}
}

// AddPromptTypes appends new prompt types to the active set.
func (s *Store) AddPromptTypes(sessionID string, add []string) (*model.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, err := s.loadLocked(sessionID)
	if err != nil {
		return nil, err
	}
	existing := map[string]bool{}
	for _, pt := range sess.PromptTypes {
		existing[pt] = true
	}
	for _, pt := range add {
		if !existing[pt] {
			sess.PromptTypes = append(sess.PromptTypes, pt)
			existing[pt] = true
		}
	}
	if err := s.save(sess); err != nil {
		return nil, err
	}
	return sess, nil
}

// RemovePromptTypes removes prompt types from the active set, cascading
// deletion of now-orphaned annotations. Rejects removing the last prompt
// type (Conflict), per spec.md §6's 400 on an emptying removal.
func (s *Store) RemovePromptTypes(sessionID string, remove []string) (*model.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, err := s.loadLocked(sessionID)
	if err != nil {
		return nil, err
	}

	removeSet := map[string]bool{}
	for _, pt := range remove {
		removeSet[pt] = true
	}
	var kept []string
	for _, pt := range sess.PromptTypes {
		if !removeSet[pt] {
			kept = append(kept, pt)
		}
	}
	if len(kept) == 0 {
		return nil, apperr.New(apperr.Conflict, "cannot remove every prompt type from a session")
	}
	sess.PromptTypes = kept

	for _, byPrompt := range sess.Annotations {
		for promptType := range byPrompt {
			if removeSet[promptType] {
				delete(byPrompt, promptType)
			}
		}
	}

	if err := s.save(sess); err != nil {
		return nil, err
	}
	return sess, nil
}

// Delete removes a session's file and cache entry.
func (s *Store) Delete(sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.cache, sessionID)
	if err := os.Remove(s.path(sessionID)); err != nil {
		if os.IsNotExist(err) {
			return apperr.New(apperr.NotFound, "session not found: "+sessionID)
		}
		return apperr.Wrap(apperr.Unavailable, "failed to delete session file", err)
	}
	return nil
}

// List returns every session, sorted by updated_at descending.
func (s *Store) List() ([]*model.Session, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, apperr.Wrap(apperr.Unavailable, "failed to read sessions directory", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*model.Session
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".json" {
			continue
		}
		sessionID := e.Name()[:len(e.Name())-len(".json")]
		sess, err := s.loadLocked(sessionID)
		if err != nil {
			continue
		}
		out = append(out, sess)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return out, nil
}

// SaveAnnotation records (or overwrites) the AnnotationResult for one
// (note, prompt) pair and persists the session. The caller is responsible
// for the invariants in spec.md §8 (note/prompt membership); SaveAnnotation
// does not second-guess a caller that already validated the pair.
func (s *Store) SaveAnnotation(sessionID, noteID, promptType string, result *model.AnnotationResult) (*model.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, err := s.loadLocked(sessionID)
	if err != nil {
		return nil, err
	}
	if sess.Annotations[noteID] == nil {
		sess.Annotations[noteID] = map[string]*model.AnnotationResult{}
	}
	sess.Annotations[noteID][promptType] = result

	if err := s.save(sess); err != nil {
		return nil, err
	}
	return sess, nil
}

// RecordICDO3Selection switches the selected candidate for one annotation.
func (s *Store) RecordICDO3Selection(sessionID, noteID, promptType string, index int, userSelected bool) (*model.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, err := s.loadLocked(sessionID)
	if err != nil {
		return nil, err
	}
	byPrompt, ok := sess.Annotations[noteID]
	if !ok {
		return nil, apperr.New(apperr.NotFound, "note has no annotations: "+noteID)
	}
	result, ok := byPrompt[promptType]
	if !ok || result.ICDO3 == nil {
		return nil, apperr.New(apperr.NotFound, "annotation has no ICD-O-3 candidates")
	}
	if index < 0 || index >= len(result.ICDO3.Candidates) {
		return nil, apperr.New(apperr.InputInvalid, "candidate index out of range")
	}
	result.ICDO3.SelectedCandidateIndex = index
	result.ICDO3.UserSelected = userSelected
	result.ICDO3.SyncSelection()

	if err := s.save(sess); err != nil {
		return nil, err
	}
	return sess, nil
}

// SaveUnifiedCode records a per-note unified ICD-O-3 diagnosis code.
func (s *Store) SaveUnifiedCode(sessionID, noteID string, code model.UnifiedICDO3Code) (*model.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, err := s.loadLocked(sessionID)
	if err != nil {
		return nil, err
	}
	if sess.UnifiedCodes == nil {
		sess.UnifiedCodes = map[string]*model.UnifiedICDO3Code{}
	}
	sess.UnifiedCodes[noteID] = &code

	if err := s.save(sess); err != nil {
		return nil, err
	}
	return sess, nil
}
