package api

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/clinicalpipe/annotator/internal/apperr"
)

// reportTypeMappingStore persists the center-scoped report-type -> prompt
// types mapping used to prefill a new session's mapping before any session
// exists: {center: {report_type: [prompt_types]}}. This sits alongside,
// but separate from, the per-session model.Session.ReportTypeMapping field
// sessions carry once created.
type reportTypeMappingStore struct {
	path string

	mu     sync.RWMutex
	loaded bool
	data   map[string]map[string][]string
}

func newReportTypeMappingStore(path string) *reportTypeMappingStore {
	return &reportTypeMappingStore{path: path, data: map[string]map[string][]string{}}
}

func (s *reportTypeMappingStore) ensureLoaded() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loaded {
		return nil
	}
	raw, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			s.loaded = true
			return nil
		}
		return apperr.Wrap(apperr.Unavailable, "failed to read report-type mappings", err)
	}
	var parsed map[string]map[string][]string
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return apperr.Wrap(apperr.InputInvalid, "malformed report-type mappings file", err)
	}
	s.data = parsed
	s.loaded = true
	return nil
}

// Get returns the mapping for one center, or an empty map if none is saved.
func (s *reportTypeMappingStore) Get(center string) (map[string][]string, error) {
	if err := s.ensureLoaded(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if m, ok := s.data[center]; ok {
		return m, nil
	}
	return map[string][]string{}, nil
}

// All returns every center's mapping.
func (s *reportTypeMappingStore) All() (map[string]map[string][]string, error) {
	if err := s.ensureLoaded(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data, nil
}

// Save replaces the mapping for one center and persists the whole file.
func (s *reportTypeMappingStore) Save(center string, mapping map[string][]string) error {
	if err := s.ensureLoaded(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[center] = mapping

	out, err := json.MarshalIndent(s.data, "", "  ")
	if err != nil {
		return apperr.Wrap(apperr.Unavailable, "failed to encode report-type mappings", err)
	}
	if dir := filepath.Dir(s.path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return apperr.Wrap(apperr.Unavailable, "failed to create report-type mappings directory", err)
		}
	}
	tmp := s.path + fmt.Sprintf(".tmp-%d", time.Now().UnixNano())
	if err := os.WriteFile(tmp, out, 0o644); err != nil {
		return apperr.Wrap(apperr.Unavailable, "failed to write report-type mappings", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		os.Remove(tmp)
		return apperr.Wrap(apperr.Unavailable, "failed to swap report-type mappings", err)
	}
	return nil
}
