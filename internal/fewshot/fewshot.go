// Package fewshot stores per-prompt-type (note, gold annotation) example
// pairs in a single JSON file, loaded lazily and rewritten atomically.
// Grounded on the temp-file-then-rename idiom used for document persistence
// across the teacher's stores.
package fewshot

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/clinicalpipe/annotator/internal/apperr"
	"github.com/clinicalpipe/annotator/internal/model"
)

// Reranker optionally reorders examples for a prompt type by relevance to
// a query, so the Store can return better-than-first-k examples. The core
// default implementation just returns the first k; a vector-backed
// implementation is an optional collaborator behind this interface.
type Reranker interface {
	Rerank(ctx context.Context, promptType string, query string, examples []model.FewShotExample, k int) ([]model.FewShotExample, error)
}

// firstKReranker is the core's default Reranker: no ranking, just
// truncation, matching spec.md 4.C's "no embedding ranking in the core".
type firstKReranker struct{}

func (firstKReranker) Rerank(_ context.Context, _ string, _ string, examples []model.FewShotExample, k int) ([]model.FewShotExample, error) {
	if k >= len(examples) {
		return examples, nil
	}
	return examples[:k], nil
}

// Store is the lazily-loaded, atomically-rewritten few-shot example file.
type Store struct {
	path     string
	reranker Reranker

	mu      sync.RWMutex
	loaded  bool
	byType  map[string][]model.FewShotExample
}

// Option configures a Store at construction.
type Option func(*Store)

// WithReranker overrides the default first-k reranker.
func WithReranker(r Reranker) Option {
	return func(s *Store) { s.reranker = r }
}

// New constructs a Store bound to a single JSON file path.
func New(path string, opts ...Option) *Store {
	s := &Store{path: path, reranker: firstKReranker{}, byType: map[string][]model.FewShotExample{}}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) ensureLoaded() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loaded {
		return nil
	}
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			s.loaded = true
			return nil
		}
		return apperr.Wrap(apperr.Unavailable, "failed to read few-shot store", err)
	}
	var raw map[string][]model.FewShotExample
	if err := json.Unmarshal(data, &raw); err != nil {
		return apperr.Wrap(apperr.InputInvalid, "malformed few-shot store file", err)
	}
	s.byType = raw
	s.loaded = true
	return nil
}

// Get returns up to k examples for promptType, reranked by query if a
// non-default Reranker is configured.
func (s *Store) Get(ctx context.Context, promptType, query string, k int) ([]model.FewShotExample, error) {
	if err := s.ensureLoaded(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	examples := append([]model.FewShotExample(nil), s.byType[promptType]...)
	s.mu.RUnlock()

	if len(examples) == 0 {
		return nil, nil
	}
	return s.reranker.Rerank(ctx, promptType, query, examples, k)
}

// Upload appends examples for a prompt type and rewrites the file.
func (s *Store) Upload(promptType string, examples []model.FewShotExample) error {
	if err := s.ensureLoaded(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byType[promptType] = append(s.byType[promptType], examples...)
	return s.saveLocked()
}

// DeleteAll clears every example for a prompt type.
func (s *Store) DeleteAll(promptType string) error {
	if err := s.ensureLoaded(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.byType, promptType)
	return s.saveLocked()
}

// saveLocked must be called with s.mu held.
func (s *Store) saveLocked() error {
	data, err := json.MarshalIndent(s.byType, "", "  ")
	if err != nil {
		return apperr.Wrap(apperr.Unavailable, "failed to encode few-shot store", err)
	}

	if dir := filepath.Dir(s.path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return apperr.Wrap(apperr.Unavailable, "failed to create few-shot store directory", err)
		}
	}

	tmp := s.path + fmt.Sprintf(".tmp-%d", time.Now().UnixNano())
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return apperr.Wrap(apperr.Unavailable, "failed to write few-shot store", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		os.Remove(tmp)
		return apperr.Wrap(apperr.Unavailable, "failed to swap few-shot store", err)
	}
	return nil
}

// Count returns the number of examples stored for a prompt type.
func (s *Store) Count(promptType string) int {
	if err := s.ensureLoaded(); err != nil {
		return 0
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byType[promptType])
}
