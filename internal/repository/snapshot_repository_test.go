package repository

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/attendance-sheet/internal/models"
	appErrors "github.com/noah-isme/attendance-sheet/pkg/errors"
)

func sampleState() models.SessionState {
	return models.SessionState{
		CurrentIndex: 1,
		Rows: map[int]models.EmployeeRow{
			0: {
				Code: "E001", Name: "Alice", Month: 2, Year: 2024,
				Days: []models.DayRecord{
					{Day: 1, Status: models.StatusPresent, CheckIn: models.NewClock(22, 0), CheckOut: models.NewClock(6, 0), Hours: 8},
				},
				Counts:          models.StatusCounts{Present: 1},
				TotalAttendance: 1,
				TotalOvertime:   0,
			},
		},
	}
}

func TestFileSnapshotRepositoryRoundTrip(t *testing.T) {
	repo := NewFileSnapshotRepository(filepath.Join(t.TempDir(), "backup"), "attendance-entry")
	ctx := context.Background()

	_, err := repo.Load(ctx)
	require.True(t, errors.Is(err, appErrors.ErrSnapshotNotFound))

	state := sampleState()
	require.NoError(t, repo.Store(ctx, state))

	got, err := repo.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, state, got)

	info, err := os.Stat(repo.Path())
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestFileSnapshotRepositoryLastStoreWins(t *testing.T) {
	repo := NewFileSnapshotRepository(t.TempDir(), "s")
	ctx := context.Background()
	require.NoError(t, repo.Store(ctx, sampleState()))
	require.NoError(t, repo.Store(ctx, models.SessionState{CurrentIndex: 0}))

	got, err := repo.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, got.CurrentIndex)
	assert.Empty(t, got.Rows)
	assert.NotNil(t, got.Rows)
}

func TestFileSnapshotRepositoryCorruptFileMovedAside(t *testing.T) {
	dir := t.TempDir()
	repo := NewFileSnapshotRepository(dir, "s")
	require.NoError(t, os.WriteFile(repo.Path(), []byte("{not json"), 0o600))

	_, err := repo.Load(context.Background())
	require.Error(t, err)
	assert.False(t, errors.Is(err, appErrors.ErrSnapshotNotFound))

	_, statErr := os.Stat(repo.Path() + ".corrupt")
	assert.NoError(t, statErr)

	_, err = repo.Load(context.Background())
	assert.True(t, errors.Is(err, appErrors.ErrSnapshotNotFound))
}

func TestFileSnapshotRepositoryRejectsNegativeIndex(t *testing.T) {
	repo := NewFileSnapshotRepository(t.TempDir(), "s")
	require.NoError(t, os.WriteFile(repo.Path(), []byte(`{"currentIndex":-3,"rows":{}}`), 0o600))

	_, err := repo.Load(context.Background())
	require.Error(t, err)
}

func newSnapshotDBMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	sqlxDB := sqlx.NewDb(db, "postgres")
	return sqlxDB, mock, func() {
		sqlxDB.Close()
		db.Close()
	}
}

func TestPostgresSnapshotRepositoryLoad(t *testing.T) {
	db, mock, cleanup := newSnapshotDBMock(t)
	defer cleanup()
	repo := NewPostgresSnapshotRepository(db, "attendance-entry")

	payload, err := encodeSnapshot(sampleState())
	require.NoError(t, err)
	mock.ExpectQuery("SELECT payload FROM attendance_snapshots").
		WithArgs("attendance-entry").
		WillReturnRows(sqlmock.NewRows([]string{"payload"}).AddRow(payload))

	got, err := repo.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, sampleState(), got)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresSnapshotRepositoryLoadMissing(t *testing.T) {
	db, mock, cleanup := newSnapshotDBMock(t)
	defer cleanup()
	repo := NewPostgresSnapshotRepository(db, "attendance-entry")

	mock.ExpectQuery("SELECT payload FROM attendance_snapshots").
		WithArgs("attendance-entry").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.Load(context.Background())
	assert.True(t, errors.Is(err, appErrors.ErrSnapshotNotFound))
}

func TestPostgresSnapshotRepositoryStore(t *testing.T) {
	db, mock, cleanup := newSnapshotDBMock(t)
	defer cleanup()
	repo := NewPostgresSnapshotRepository(db, "attendance-entry")

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS attendance_snapshots").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("INSERT INTO attendance_snapshots").
		WithArgs("attendance-entry", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	require.NoError(t, repo.EnsureSchema(context.Background()))
	require.NoError(t, repo.Store(context.Background(), sampleState()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresSnapshotRepositoryStoreError(t *testing.T) {
	db, mock, cleanup := newSnapshotDBMock(t)
	defer cleanup()
	repo := NewPostgresSnapshotRepository(db, "attendance-entry")

	mock.ExpectExec("INSERT INTO attendance_snapshots").
		WillReturnError(errors.New("connection lost"))

	err := repo.Store(context.Background(), sampleState())
	require.ErrorContains(t, err, "connection lost")
}

func TestRedisSnapshotRepositoryUnreachable(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
	repo := NewRedisSnapshotRepository(client, "attendance:snapshot:", "attendance-entry")
	defer repo.Close()

	assert.Equal(t, "attendance:snapshot:attendance-entry", repo.Key())
	assert.Equal(t, DriverRedis, repo.Driver())

	_, err := repo.Load(context.Background())
	require.Error(t, err)
	assert.False(t, errors.Is(err, appErrors.ErrSnapshotNotFound))
	require.Error(t, repo.Store(context.Background(), sampleState()))
}

func newMiniredisRepository(t *testing.T) (*RedisSnapshotRepository, *miniredis.Miniredis) {
	t.Helper()
	server := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	repo := NewRedisSnapshotRepository(client, "attendance:snapshot:", "attendance-entry")
	t.Cleanup(func() { _ = repo.Close() })
	return repo, server
}

func TestRedisSnapshotRepositoryRoundTrip(t *testing.T) {
	repo, server := newMiniredisRepository(t)

	require.NoError(t, repo.Store(context.Background(), sampleState()))
	got, err := repo.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, sampleState(), got)

	raw, err := server.Get(repo.Key())
	require.NoError(t, err)
	assert.Contains(t, raw, `"currentIndex":1`)
	assert.Zero(t, server.TTL(repo.Key()), "snapshot must not expire")

	next := sampleState()
	next.CurrentIndex = 2
	require.NoError(t, repo.Store(context.Background(), next))
	got, err = repo.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, got.CurrentIndex)
}

func TestRedisSnapshotRepositoryMissingKey(t *testing.T) {
	repo, _ := newMiniredisRepository(t)

	_, err := repo.Load(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrSnapshotNotFound))
}

func TestRedisSnapshotRepositoryCorruptPayload(t *testing.T) {
	repo, server := newMiniredisRepository(t)
	require.NoError(t, server.Set(repo.Key(), "{not json"))

	_, err := repo.Load(context.Background())
	require.Error(t, err)
	assert.False(t, errors.Is(err, appErrors.ErrSnapshotNotFound))
}
