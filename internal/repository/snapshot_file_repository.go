package repository

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/noah-isme/attendance-sheet/internal/models"
	appErrors "github.com/noah-isme/attendance-sheet/pkg/errors"
	"github.com/noah-isme/attendance-sheet/pkg/storage"
)

// FileSnapshotRepository keeps the session snapshot in <dir>/<sessionID>.json.
type FileSnapshotRepository struct {
	path string
}

// NewFileSnapshotRepository constructs the repository.
func NewFileSnapshotRepository(dir, sessionID string) *FileSnapshotRepository {
	return &FileSnapshotRepository{path: filepath.Join(dir, sessionID+".json")}
}

// Driver names the backend.
func (r *FileSnapshotRepository) Driver() string { return DriverFile }

// Path returns the snapshot file location.
func (r *FileSnapshotRepository) Path() string { return r.path }

// Load reads the snapshot. An undecodable file is moved aside to
// <path>.corrupt so the next Store starts clean.
func (r *FileSnapshotRepository) Load(ctx context.Context) (models.SessionState, error) {
	if err := ctx.Err(); err != nil {
		return models.SessionState{}, err
	}
	payload, err := os.ReadFile(r.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return models.SessionState{}, appErrors.ErrSnapshotNotFound
		}
		return models.SessionState{}, fmt.Errorf("read snapshot %s: %w", r.path, err)
	}

	state, err := decodeSnapshot(payload)
	if err != nil {
		corrupt := r.path + ".corrupt"
		if renameErr := os.Rename(r.path, corrupt); renameErr != nil {
			return models.SessionState{}, fmt.Errorf("%w (and could not move aside: %v)", err, renameErr)
		}
		return models.SessionState{}, fmt.Errorf("%w (moved to %s)", err, corrupt)
	}
	return state, nil
}

// Store replaces the snapshot atomically.
func (r *FileSnapshotRepository) Store(ctx context.Context, state models.SessionState) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	payload, err := encodeSnapshot(state)
	if err != nil {
		return err
	}
	if err := storage.WriteFileAtomic(r.path, payload, 0o600); err != nil {
		return fmt.Errorf("store snapshot %s: %w", r.path, err)
	}
	return nil
}
