// Package progress persists the engine's resumable cursor.
package progress

import (
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/sheet-enricher/internal/model"
)

// Store loads and saves the cursor.
type Store interface {
	Load() (model.Progress, error)
	Save(p model.Progress) error
}

// FileStore keeps the cursor in a human-readable JSON file.
type FileStore struct {
	path     string
	defaults model.Progress
}

// NewFileStore returns a store backed by path. defaults apply when the file
// is missing or a key is absent.
func NewFileStore(path string, defaults model.Progress) *FileStore {
	return &FileStore{path: path, defaults: defaults}
}

// Path returns the backing file path.
func (s *FileStore) Path() string {
	return s.path
}

// stored mirrors model.Progress with optional keys.
type stored struct {
	RowStart         *int `json:"row_start"`
	MaxCountPerCycle *int `json:"max_count_per_cycle"`
}

// Load reads the cursor. A missing or empty file yields the defaults.
func (s *FileStore) Load() (model.Progress, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) || (err == nil && len(data) == 0) {
		zap.L().Info("progress: no saved state, using defaults",
			zap.String("path", s.path),
			zap.Int("row_start", s.defaults.RowStart),
			zap.Int("max_count_per_cycle", s.defaults.MaxCountPerCycle),
		)
		return s.defaults, nil
	}
	if err != nil {
		return model.Progress{}, eris.Wrapf(err, "progress: read %s", s.path)
	}

	var raw stored
	if err := json.Unmarshal(data, &raw); err != nil {
		return model.Progress{}, eris.Wrapf(err, "progress: decode %s", s.path)
	}

	p := s.defaults
	if raw.RowStart != nil {
		p.RowStart = *raw.RowStart
	}
	if raw.MaxCountPerCycle != nil {
		p.MaxCountPerCycle = *raw.MaxCountPerCycle
	}
	if err := p.Validate(); err != nil {
		return model.Progress{}, eris.Wrapf(err, "progress: invalid state in %s", s.path)
	}
	return p, nil
}

// Save overwrites the cursor file. The write goes to a temp file in the same
// directory that is renamed over the target.
func (s *FileStore) Save(p model.Progress) error {
	if err := p.Validate(); err != nil {
		return err
	}
	data, err := json.MarshalIndent(p, "", "    ")
	if err != nil {
		return eris.Wrap(err, "progress: encode")
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return eris.Wrap(err, "progress: create temp file")
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return eris.Wrap(err, "progress: write temp file")
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return eris.Wrap(err, "progress: close temp file")
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		_ = os.Remove(tmpName)
		return eris.Wrapf(err, "progress: replace %s", s.path)
	}
	return nil
}
