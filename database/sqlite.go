package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteDB implements CatalogStore using SQLite. Times are stored in UTC.
type SQLiteDB struct {
	db *sql.DB
}

// NewSQLiteDB opens (or creates) the SQLite catalog at dbPath.
func NewSQLiteDB(dbPath string) (*SQLiteDB, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}

	if err := initTables(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize tables: %w", err)
	}

	return &SQLiteDB{db: db}, nil
}

// initTables creates the catalog tables if they don't exist
func initTables(db *sql.DB) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS cameras (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL UNIQUE
		)`,
		`CREATE TABLE IF NOT EXISTS recordings (
			id TEXT PRIMARY KEY,
			camera_id TEXT NOT NULL REFERENCES cameras(id),
			filename TEXT NOT NULL,
			filepath TEXT NOT NULL UNIQUE,
			file_size_bytes INTEGER NOT NULL DEFAULT 0 CHECK (file_size_bytes >= 0),
			start_time TIMESTAMP NOT NULL,
			end_time TIMESTAMP,
			duration_seconds INTEGER,
			resolution TEXT,
			fps INTEGER,
			codec TEXT,
			bitrate_bps INTEGER,
			storage_tier TEXT NOT NULL DEFAULT 'hot',
			created_at TIMESTAMP NOT NULL,
			UNIQUE (camera_id, start_time)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_recordings_start_time ON recordings (start_time)`,
		`CREATE INDEX IF NOT EXISTS idx_recordings_camera_id ON recordings (camera_id)`,
		`CREATE INDEX IF NOT EXISTS idx_recordings_storage_tier ON recordings (storage_tier)`,
	}
	for _, stmt := range statements {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// ListCameras returns all cameras ordered by name.
func (s *SQLiteDB) ListCameras(ctx context.Context) ([]Camera, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name FROM cameras ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to query cameras: %w", err)
	}
	defer rows.Close()

	var cameras []Camera
	for rows.Next() {
		var c Camera
		if err := rows.Scan(&c.ID, &c.Name); err != nil {
			return nil, fmt.Errorf("failed to scan camera row: %w", err)
		}
		cameras = append(cameras, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating camera rows: %w", err)
	}
	return cameras, nil
}

// UpsertCameras inserts cameras, renaming existing ids.
func (s *SQLiteDB) UpsertCameras(ctx context.Context, cameras []Camera) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, c := range cameras {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO cameras (id, name) VALUES (?, ?)
			ON CONFLICT (id) DO UPDATE SET name = excluded.name
		`, c.ID, c.Name); err != nil {
			return fmt.Errorf("failed to upsert camera %s: %w", c.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit cameras: %w", err)
	}
	return nil
}

// RecordingExistsByFilepath reports whether a recording with path exists.
func (s *SQLiteDB) RecordingExistsByFilepath(ctx context.Context, path string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM recordings WHERE filepath = ?)`, path).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check recording %s: %w", path, err)
	}
	return exists, nil
}

// InsertRecording adds rec, ignoring uniqueness conflicts.
func (s *SQLiteDB) InsertRecording(ctx context.Context, rec Recording) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO recordings (
			id, camera_id, filename, filepath, file_size_bytes,
			start_time, end_time, duration_seconds, resolution, fps,
			codec, bitrate_bps, storage_tier, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT DO NOTHING
	`,
		rec.ID,
		rec.CameraID,
		rec.Filename,
		rec.Filepath,
		rec.FileSizeBytes,
		rec.StartTime.UTC(),
		nullTime(rec.EndTime),
		nullInt(rec.DurationSeconds),
		rec.Resolution,
		nullInt(rec.FPS),
		rec.Codec,
		rec.BitrateBps,
		rec.StorageTier,
		rec.CreatedAt.UTC(),
	)
	if err != nil {
		return false, fmt.Errorf("failed to insert recording %s: %w", rec.Filepath, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return n > 0, nil
}

// GetRecording returns the recording with id, or nil if none.
func (s *SQLiteDB) GetRecording(ctx context.Context, id string) (*Recording, error) {
	row := s.db.QueryRowContext(ctx, selectRecording+` WHERE r.id = ?`, id)
	rec, err := scanRecording(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get recording %s: %w", id, err)
	}
	return rec, nil
}

const sqliteFilterWhere = `
	WHERE (?1 IS NULL OR r.camera_id = ?1)
	  AND (?2 IS NULL OR r.start_time >= ?2)
	  AND (?3 IS NULL OR r.start_time <= ?3)
	  AND (?4 IS NULL OR r.storage_tier = ?4)
	  AND (?5 IS NULL OR r.filename LIKE ?5 ESCAPE '\')
	  AND (?6 IS NULL OR r.duration_seconds >= ?6)
	  AND (?7 IS NULL OR r.duration_seconds <= ?7)
	  AND (?8 IS NULL OR r.resolution = ?8)
	  AND (?9 IS NULL OR r.codec = ?9)`

// ListRecordings returns one page of recordings matching filter, newest
// first, and the total number of matches.
func (s *SQLiteDB) ListRecordings(ctx context.Context, filter RecordingFilter) ([]Recording, int, error) {
	filter = filter.Normalize()
	args := filterArgs(filter)

	var total int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM recordings r`+sqliteFilterWhere, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count recordings: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		selectRecording+sqliteFilterWhere+` ORDER BY r.start_time DESC LIMIT ?10 OFFSET ?11`,
		append(args, filter.Limit, filter.Offset())...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query recordings: %w", err)
	}
	defer rows.Close()

	recordings := []Recording{}
	for rows.Next() {
		rec, err := scanRecording(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan recording row: %w", err)
		}
		recordings = append(recordings, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("error iterating recording rows: %w", err)
	}
	return recordings, total, nil
}

// DeleteRecording removes the recording with id in one transaction.
func (s *SQLiteDB) DeleteRecording(ctx context.Context, id string, onDeleted func(filepath string)) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var path string
	err = tx.QueryRowContext(ctx, `SELECT filepath FROM recordings WHERE id = ?`, id).Scan(&path)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to look up recording %s: %w", id, err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM recordings WHERE id = ?`, id); err != nil {
		return false, fmt.Errorf("failed to delete recording %s: %w", id, err)
	}

	if onDeleted != nil {
		onDeleted(path)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit delete of %s: %w", id, err)
	}
	return true, nil
}

// GetRecordingStats summarizes the catalog.
func (s *SQLiteDB) GetRecordingStats(ctx context.Context) (*RecordingStats, error) {
	stats := &RecordingStats{ByCamera: []CameraStats{}, ByStorageTier: []TierStats{}}

	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(SUM(file_size_bytes), 0), COALESCE(SUM(duration_seconds), 0)
		FROM recordings
	`).Scan(&stats.TotalRecordings, &stats.TotalSizeBytes, &stats.TotalDurationSeconds)
	if err != nil {
		return nil, fmt.Errorf("failed to query recording totals: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, statsByCameraQuery)
	if err != nil {
		return nil, fmt.Errorf("failed to query camera stats: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var cs CameraStats
		if err := rows.Scan(&cs.CameraID, &cs.CameraName, &cs.Count, &cs.TotalSizeBytes, &cs.TotalDurationSeconds); err != nil {
			return nil, fmt.Errorf("failed to scan camera stats: %w", err)
		}
		stats.ByCamera = append(stats.ByCamera, cs)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating camera stats: %w", err)
	}

	tierRows, err := s.db.QueryContext(ctx, statsByTierQuery)
	if err != nil {
		return nil, fmt.Errorf("failed to query tier stats: %w", err)
	}
	defer tierRows.Close()
	for tierRows.Next() {
		var ts TierStats
		if err := tierRows.Scan(&ts.StorageTier, &ts.Count, &ts.TotalSizeBytes); err != nil {
			return nil, fmt.Errorf("failed to scan tier stats: %w", err)
		}
		stats.ByStorageTier = append(stats.ByStorageTier, ts)
	}
	if err := tierRows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tier stats: %w", err)
	}

	return stats, nil
}

// Ping checks the database connection.
func (s *SQLiteDB) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection
func (s *SQLiteDB) Close() error {
	return s.db.Close()
}

// selectRecording is shared with the Postgres backend.
const selectRecording = `
	SELECT r.id, r.camera_id, COALESCE(c.name, ''), r.filename, r.filepath,
	       r.file_size_bytes, r.start_time, r.end_time, r.duration_seconds,
	       r.resolution, r.fps, r.codec, r.bitrate_bps, r.storage_tier, r.created_at
	FROM recordings r
	LEFT JOIN cameras c ON c.id = r.camera_id`

const statsByCameraQuery = `
	SELECT c.id, c.name, COUNT(r.id),
	       COALESCE(SUM(r.file_size_bytes), 0), COALESCE(SUM(r.duration_seconds), 0)
	FROM cameras c
	LEFT JOIN recordings r ON r.camera_id = c.id
	GROUP BY c.id, c.name
	ORDER BY c.name`

const statsByTierQuery = `
	SELECT storage_tier, COUNT(*), COALESCE(SUM(file_size_bytes), 0)
	FROM recordings
	GROUP BY storage_tier
	ORDER BY storage_tier`

// filterArgs returns the nine filter parameters in placeholder order.
func filterArgs(f RecordingFilter) []any {
	var search any
	if f.Search != "" {
		search = likePattern(f.Search)
	}
	return []any{
		nullString(f.CameraID),
		nullTime(f.StartDate),
		nullTime(f.EndDate),
		nullString(f.StorageTier),
		search,
		nullInt(f.MinDuration),
		nullInt(f.MaxDuration),
		nullString(f.Resolution),
		nullString(f.Codec),
	}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecording(row rowScanner) (*Recording, error) {
	var (
		rec        Recording
		endTime    sql.NullTime
		duration   sql.NullInt64
		resolution sql.NullString
		fps        sql.NullInt64
		codec      sql.NullString
		bitrate    sql.NullInt64
	)
	err := row.Scan(
		&rec.ID,
		&rec.CameraID,
		&rec.CameraName,
		&rec.Filename,
		&rec.Filepath,
		&rec.FileSizeBytes,
		&rec.StartTime,
		&endTime,
		&duration,
		&resolution,
		&fps,
		&codec,
		&bitrate,
		&rec.StorageTier,
		&rec.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if endTime.Valid {
		t := endTime.Time
		rec.EndTime = &t
	}
	if duration.Valid {
		d := int(duration.Int64)
		rec.DurationSeconds = &d
	}
	if resolution.Valid {
		rec.Resolution = &resolution.String
	}
	if fps.Valid {
		f := int(fps.Int64)
		rec.FPS = &f
	}
	if codec.Valid {
		rec.Codec = &codec.String
	}
	if bitrate.Valid {
		rec.BitrateBps = &bitrate.Int64
	}
	rec.StartTime = rec.StartTime.Local()
	rec.CreatedAt = rec.CreatedAt.Local()
	if rec.EndTime != nil {
		t := rec.EndTime.Local()
		rec.EndTime = &t
	}
	return &rec, nil
}

var _ CatalogStore = (*SQLiteDB)(nil)
