package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/attendance-sheet/internal/models"
	appErrors "github.com/noah-isme/attendance-sheet/pkg/errors"
)

const snapshotSchema = `CREATE TABLE IF NOT EXISTS attendance_snapshots (
    session_id TEXT PRIMARY KEY,
    payload JSONB NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`

// PostgresSnapshotRepository keeps one snapshot row per session identifier.
type PostgresSnapshotRepository struct {
	db        *sqlx.DB
	sessionID string
}

// NewPostgresSnapshotRepository constructs the repository.
func NewPostgresSnapshotRepository(db *sqlx.DB, sessionID string) *PostgresSnapshotRepository {
	return &PostgresSnapshotRepository{db: db, sessionID: sessionID}
}

// Driver names the backend.
func (r *PostgresSnapshotRepository) Driver() string { return DriverPostgres }

// EnsureSchema creates the snapshot table when missing.
func (r *PostgresSnapshotRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, snapshotSchema); err != nil {
		return fmt.Errorf("ensure attendance_snapshots: %w", err)
	}
	return nil
}

// Load fetches the snapshot for the configured session.
func (r *PostgresSnapshotRepository) Load(ctx context.Context) (models.SessionState, error) {
	const query = `SELECT payload FROM attendance_snapshots WHERE session_id = $1`
	var payload []byte
	if err := r.db.GetContext(ctx, &payload, query, r.sessionID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.SessionState{}, appErrors.ErrSnapshotNotFound
		}
		return models.SessionState{}, fmt.Errorf("load snapshot: %w", err)
	}
	return decodeSnapshot(payload)
}

// Store upserts the snapshot; the last writer wins.
func (r *PostgresSnapshotRepository) Store(ctx context.Context, state models.SessionState) error {
	const query = `INSERT INTO attendance_snapshots (session_id, payload, updated_at)
VALUES ($1, $2::jsonb, NOW())
ON CONFLICT (session_id)
DO UPDATE SET payload = EXCLUDED.payload, updated_at = EXCLUDED.updated_at`
	payload, err := encodeSnapshot(state)
	if err != nil {
		return err
	}
	if _, err := r.db.ExecContext(ctx, query, r.sessionID, string(payload)); err != nil {
		return fmt.Errorf("store snapshot: %w", err)
	}
	return nil
}
