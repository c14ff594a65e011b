package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresDB implements CatalogStore on a pgx connection pool.
type PostgresDB struct {
	pool *pgxpool.Pool
}

// NewPostgresDB connects to databaseURL and ensures the schema exists.
func NewPostgresDB(ctx context.Context, databaseURL string, maxConns int32) (*PostgresDB, error) {
	poolConfig, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}
	if maxConns > 0 {
		poolConfig.MaxConns = maxConns
	}
	poolConfig.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := initPostgresTables(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to initialize tables: %w", err)
	}

	return &PostgresDB{pool: pool}, nil
}

func initPostgresTables(ctx context.Context, pool *pgxpool.Pool) error {
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
			file_size_bytes BIGINT NOT NULL DEFAULT 0 CHECK (file_size_bytes >= 0),
			start_time TIMESTAMPTZ NOT NULL,
			end_time TIMESTAMPTZ,
			duration_seconds INTEGER,
			resolution TEXT,
			fps INTEGER,
			codec TEXT,
			bitrate_bps BIGINT,
			storage_tier TEXT NOT NULL DEFAULT 'hot',
			created_at TIMESTAMPTZ NOT NULL,
			UNIQUE (camera_id, start_time)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_recordings_start_time ON recordings (start_time)`,
		`CREATE INDEX IF NOT EXISTS idx_recordings_camera_id ON recordings (camera_id)`,
		`CREATE INDEX IF NOT EXISTS idx_recordings_storage_tier ON recordings (storage_tier)`,
	}
	for _, stmt := range statements {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func (p *PostgresDB) ListCameras(ctx context.Context) ([]Camera, error) {
	rows, err := p.pool.Query(ctx, `SELECT id, name FROM cameras ORDER BY name`)
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

func (p *PostgresDB) UpsertCameras(ctx context.Context, cameras []Camera) error {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, c := range cameras {
		if _, err := tx.Exec(ctx, `
			INSERT INTO cameras (id, name) VALUES ($1, $2)
			ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name
		`, c.ID, c.Name); err != nil {
			return fmt.Errorf("failed to upsert camera %s: %w", c.ID, err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit cameras: %w", err)
	}
	return nil
}

func (p *PostgresDB) RecordingExistsByFilepath(ctx context.Context, path string) (bool, error) {
	var exists bool
	err := p.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM recordings WHERE filepath = $1)`, path).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check recording %s: %w", path, err)
	}
	return exists, nil
}

func (p *PostgresDB) InsertRecording(ctx context.Context, rec Recording) (bool, error) {
	tag, err := p.pool.Exec(ctx, `
		INSERT INTO recordings (
			id, camera_id, filename, filepath, file_size_bytes,
			start_time, end_time, duration_seconds, resolution, fps,
			codec, bitrate_bps, storage_tier, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT DO NOTHING
	`,
		rec.ID,
		rec.CameraID,
		rec.Filename,
		rec.Filepath,
		rec.FileSizeBytes,
		rec.StartTime,
		rec.EndTime,
		rec.DurationSeconds,
		rec.Resolution,
		rec.FPS,
		rec.Codec,
		rec.BitrateBps,
		rec.StorageTier,
		rec.CreatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("failed to insert recording %s: %w", rec.Filepath, err)
	}
	return tag.RowsAffected() > 0, nil
}

func (p *PostgresDB) GetRecording(ctx context.Context, id string) (*Recording, error) {
	row := p.pool.QueryRow(ctx, selectRecording+` WHERE r.id = $1`, id)
	rec, err := scanRecording(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get recording %s: %w", id, err)
	}
	return rec, nil
}

const postgresFilterWhere = `
	WHERE ($1::text IS NULL OR r.camera_id = $1)
	  AND ($2::timestamptz IS NULL OR r.start_time >= $2)
	  AND ($3::timestamptz IS NULL OR r.start_time <= $3)
	  AND ($4::text IS NULL OR r.storage_tier = $4)
	  AND ($5::text IS NULL OR r.filename ILIKE $5 ESCAPE '\')
	  AND ($6::int IS NULL OR r.duration_seconds >= $6)
	  AND ($7::int IS NULL OR r.duration_seconds <= $7)
	  AND ($8::text IS NULL OR r.resolution = $8)
	  AND ($9::text IS NULL OR r.codec = $9)`

func (p *PostgresDB) ListRecordings(ctx context.Context, filter RecordingFilter) ([]Recording, int, error) {
	filter = filter.Normalize()
	args := filterArgs(filter)

	var total int
	if err := p.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM recordings r`+postgresFilterWhere, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count recordings: %w", err)
	}

	rows, err := p.pool.Query(ctx,
		selectRecording+postgresFilterWhere+` ORDER BY r.start_time DESC LIMIT $10 OFFSET $11`,
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

func (p *PostgresDB) DeleteRecording(ctx context.Context, id string, onDeleted func(filepath string)) (bool, error) {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var path string
	err = tx.QueryRow(ctx, `SELECT filepath FROM recordings WHERE id = $1 FOR UPDATE`, id).Scan(&path)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to look up recording %s: %w", id, err)
	}

	if _, err := tx.Exec(ctx, `DELETE FROM recordings WHERE id = $1`, id); err != nil {
		return false, fmt.Errorf("failed to delete recording %s: %w", id, err)
	}

	if onDeleted != nil {
		onDeleted(path)
	}

	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("failed to commit delete of %s: %w", id, err)
	}
	return true, nil
}

func (p *PostgresDB) GetRecordingStats(ctx context.Context) (*RecordingStats, error) {
	stats := &RecordingStats{ByCamera: []CameraStats{}, ByStorageTier: []TierStats{}}

	err := p.pool.QueryRow(ctx, `
		SELECT COUNT(*), COALESCE(SUM(file_size_bytes), 0)::bigint, COALESCE(SUM(duration_seconds), 0)::bigint
		FROM recordings
	`).Scan(&stats.TotalRecordings, &stats.TotalSizeBytes, &stats.TotalDurationSeconds)
	if err != nil {
		return nil, fmt.Errorf("failed to query recording totals: %w", err)
	}

	rows, err := p.pool.Query(ctx, `
		SELECT c.id, c.name, COUNT(r.id),
		       COALESCE(SUM(r.file_size_bytes), 0)::bigint, COALESCE(SUM(r.duration_seconds), 0)::bigint
		FROM cameras c
		LEFT JOIN recordings r ON r.camera_id = c.id
		GROUP BY c.id, c.name
		ORDER BY c.name
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query camera stats: %w", err)
	}
	for rows.Next() {
		var cs CameraStats
		if err := rows.Scan(&cs.CameraID, &cs.CameraName, &cs.Count, &cs.TotalSizeBytes, &cs.TotalDurationSeconds); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan camera stats: %w", err)
		}
		stats.ByCamera = append(stats.ByCamera, cs)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating camera stats: %w", err)
	}

	tierRows, err := p.pool.Query(ctx, `
		SELECT storage_tier, COUNT(*), COALESCE(SUM(file_size_bytes), 0)::bigint
		FROM recordings
		GROUP BY storage_tier
		ORDER BY storage_tier
	`)
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

func (p *PostgresDB) Ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

func (p *PostgresDB) Close() error {
	p.pool.Close()
	return nil
}

var _ CatalogStore = (*PostgresDB)(nil)
