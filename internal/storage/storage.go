// Package storage keeps saved runs in memory for the serve command.
package storage

import (
	"log/slog"
	"path/filepath"
	"strings"
	"sync"

	"github.com/lehigh-university-libraries/ragtest/internal/models"
	"github.com/lehigh-university-libraries/ragtest/internal/results"
)

// Entry is a loaded run and the files it came from
type Entry struct {
	ID          string
	ResultsPath string
	ReportPath  string
	Run         *models.Run
}

type RunStore struct {
	runs map[string]*Entry
	mu   sync.RWMutex
}

func New() *RunStore {
	return &RunStore{
		runs: make(map[string]*Entry),
	}
}

// Load replaces the store's contents with every results file in dir. Files
// that fail to parse are logged and skipped. It returns the number of runs
// loaded.
func (s *RunStore) Load(dir string) (int, error) {
	paths, err := results.List(dir)
	if err != nil {
		return 0, err
	}

	runs := make(map[string]*Entry, len(paths))
	for _, path := range paths {
		run, err := results.LoadYAML(path)
		if err != nil {
			slog.Warn("Skipping unreadable results file", "path", path, "err", err)
			continue
		}
		id := run.ID
		if id == "" {
			id = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
		}
		if _, dup := runs[id]; dup {
			continue
		}
		runs[id] = &Entry{
			ID:          id,
			ResultsPath: path,
			ReportPath:  results.ReportPathFor(path),
			Run:         run,
		}
	}

	s.mu.Lock()
	s.runs = runs
	s.mu.Unlock()
	return len(runs), nil
}

func (s *RunStore) Get(id string) (*Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, exists := s.runs[id]
	return entry, exists
}

func (s *RunStore) GetAll() map[string]*Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make(map[string]*Entry, len(s.runs))
	for k, v := range s.runs {
		result[k] = v
	}
	return result
}

func (s *RunStore) Delete(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.runs, id)
}
