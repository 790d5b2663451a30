package compose

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Artifact is the on-disk composite for one run. Each run gets its own
// path; Release deletes it and is safe to call more than once.
type Artifact struct {
	Path   string
	logger *zap.Logger
}

func WriteArtifact(dir string, data []byte, logger *zap.Logger) (*Artifact, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	path := filepath.Join(dir, "composite-"+uuid.NewString()+".png")
	if err := os.WriteFile(path, data, 0o600); err != nil {
		// a partial write may still have created the file
		_ = os.Remove(path)
		return nil, fmt.Errorf("write artifact %s: %w", path, err)
	}
	return &Artifact{Path: path, logger: logger}, nil
}

func (a *Artifact) Open() (*os.File, error) {
	return os.Open(a.Path)
}

// Release never fails: a missing file is fine and anything else is logged.
func (a *Artifact) Release() {
	err := os.Remove(a.Path)
	switch {
	case err == nil:
		a.logger.Debug("removed composite artifact", zap.String("path", a.Path))
	case errors.Is(err, os.ErrNotExist):
		a.logger.Debug("composite artifact already gone", zap.String("path", a.Path))
	default:
		a.logger.Warn("failed to remove composite artifact", zap.String("path", a.Path), zap.Error(err))
	}
}
