// Package presets stores reusable (name, center, report_type_mapping)
// tuples in a single JSON file, the same lazily-loaded /
// atomically-rewritten shape as internal/fewshot's Store, since both are
// small named collections with no concurrency needs beyond the process.
package presets

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/clinicalpipe/annotator/internal/apperr"
	"github.com/clinicalpipe/annotator/internal/model"
)

// Store is the lazily-loaded, atomically-rewritten preset collection.
type Store struct {
	path string

	mu     sync.RWMutex
	loaded bool
	byID   map[string]*model.Preset
}

// New constructs a Store bound to a single JSON file path.
func New(path string) *Store {
	return &Store{path: path, byID: map[string]*model.Preset{}}
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
		return apperr.Wrap(apperr.Unavailable, "failed to read preset store", err)
	}
	var raw map[string]*model.Preset
	if err := json.Unmarshal(data, &raw); err != nil {
		return apperr.Wrap(apperr.InputInvalid, "malformed preset store file", err)
	}
	s.byID = raw
	s.loaded = true
	return nil
}

// Create assigns a new UUID and persists the preset, matching spec.md 4.F's
// "Preset...identified by UUID".
func (s *Store) Create(name, center string, mapping map[string][]string, description string) (*model.Preset, error) {
	if err := s.ensureLoaded(); err != nil {
		return nil, err
	}
	p := &model.Preset{
		PresetID:          uuid.NewString(),
		Name:              name,
		Center:            center,
		ReportTypeMapping: mapping,
		Description:       description,
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byID[p.PresetID] = p
	if err := s.saveLocked(); err != nil {
		return nil, err
	}
	return p, nil
}

// Get fetches one preset by ID.
func (s *Store) Get(presetID string) (*model.Preset, error) {
	if err := s.ensureLoaded(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.byID[presetID]
	if !ok {
		return nil, apperr.New(apperr.NotFound, "preset not found: "+presetID)
	}
	return p, nil
}

// List returns every preset, in no particular order.
func (s *Store) List() ([]*model.Preset, error) {
	if err := s.ensureLoaded(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*model.Preset, 0, len(s.byID))
	for _, p := range s.byID {
		out = append(out, p)
	}
	return out, nil
}

// Update replaces a preset's mutable fields in place.
func (s *Store) Update(presetID, name, center string, mapping map[string][]string, description string) (*model.Preset, error) {
	if err := s.ensureLoaded(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.byID[presetID]
	if !ok {
		return nil, apperr.New(apperr.NotFound, "preset not found: "+presetID)
	}
	if name != "" {
		p.Name = name
	}
	if center != "" {
		p.Center = center
	}
	if mapping != nil {
		p.ReportTypeMapping = mapping
	}
	if description != "" {
		p.Description = description
	}
	if err := s.saveLocked(); err != nil {
		return nil, err
	}
	return p, nil
}

// Delete removes a preset.
func (s *Store) Delete(presetID string) error {
	if err := s.ensureLoaded(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byID[presetID]; !ok {
		return apperr.New(apperr.NotFound, "preset not found: "+presetID)
	}
	delete(s.byID, presetID)
	return s.saveLocked()
}

// saveLocked must be called with s.mu held.
func (s *Store) saveLocked() error {
	data, err := json.MarshalIndent(s.byID, "", "  ")
	if err != nil {
		return apperr.Wrap(apperr.Unavailable, "failed to encode preset store", err)
	}

	if dir := filepath.Dir(s.path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return apperr.Wrap(apperr.Unavailable, "failed to create preset store directory", err)
		}
	}

	tmp := s.path + fmt.Sprintf(".tmp-%d", time.Now().UnixNano())
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return apperr.Wrap(apperr.Unavailable, "failed to write preset store", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		os.Remove(tmp)
		return apperr.Wrap(apperr.Unavailable, "failed to swap preset store", err)
	}
	return nil
}
