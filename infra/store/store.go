// Package store persists the controller state that survives restarts: the
// last observed state of charge and the last published schedule.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/bvweerd/battery-controller/core/logger"
	"github.com/bvweerd/battery-controller/core/model"
)

// state is the on-disk document.
type state struct {
	SoCWh      *float64        `json:"soc_wh,omitempty"`
	ObservedAt time.Time       `json:"observed_at,omitempty"`
	Schedule   *model.Schedule `json:"schedule,omitempty"`
}

// FileStore keeps the state in a single JSON file, replaced atomically on
// every write so a crash never leaves a torn document.
type FileStore struct {
	path string
	log  logger.Logger

	mu sync.Mutex
	st state
}

// NewFileStore opens or creates the state file at path. A missing file is
// an empty state, not an error.
func NewFileStore(path string, log logger.Logger) (*FileStore, error) {
	if log == nil {
		log = logger.NopLogger{}
	}
	s := &FileStore{path: path, log: log}
	b, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return s, nil
	case err != nil:
		return nil, fmt.Errorf("reading state file %s: %w", path, err)
	}
	if err := json.Unmarshal(b, &s.st); err != nil {
		// A corrupt state file is recoverable: start fresh rather than
		// refuse to boot.
		log.Warnf("state file %s is corrupt, starting empty: %v", path, err)
		s.st = state{}
	}
	return s, nil
}

// LastSoC returns the last persisted state of charge.
func (s *FileStore) LastSoC() (float64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.st.SoCWh == nil {
		return 0, false
	}
	return *s.st.SoCWh, true
}

// SaveSoC persists a successfully observed state of charge.
func (s *FileStore) SaveSoC(socWh float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.SoCWh = &socWh
	s.st.ObservedAt = time.Now().UTC()
	return s.flush()
}

// LoadSchedule returns the last persisted schedule.
func (s *FileStore) LoadSchedule() (*model.Schedule, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.Schedule, s.st.Schedule != nil
}

// SaveSchedule persists the newly published schedule.
func (s *FileStore) SaveSchedule(sched *model.Schedule) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.Schedule = sched
	return s.flush()
}

// flush writes the state to a sibling temp file and renames it into place.
// Callers hold the mutex.
func (s *FileStore) flush() error {
	b, err := json.MarshalIndent(s.st, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding state: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(s.path), filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp state file: %w", err)
	}
	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("writing state: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("closing state file: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("replacing state file: %w", err)
	}
	return nil
}
