package database

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/puddle/v2"
)

// Default and maximum page sizes for ListRecordings.
const (
	DefaultPageLimit = 50
	MaxPageLimit     = 500
)

// Storage tiers assigned to recordings. Only StorageTierHot is assigned here;
// other values come from the tiering process.
const (
	StorageTierHot  = "hot"
	StorageTierCold = "cold"
)

// Camera is the externally owned camera reference data.
type Camera struct {
	ID   string `json:"id" validate:"required"`
	Name string `json:"name" validate:"required"`
}

// Recording is one catalogued video file. Pointer fields are technical
// attributes that may be absent.
type Recording struct {
	ID              string     `json:"id"`
	CameraID        string     `json:"cameraId"`
	CameraName      string     `json:"cameraName,omitempty"`
	Filename        string     `json:"filename"`
	Filepath        string     `json:"filepath"`
	FileSizeBytes   int64      `json:"fileSizeBytes"`
	StartTime       time.Time  `json:"startTime"`
	EndTime         *time.Time `json:"endTime"`
	DurationSeconds *int       `json:"durationSeconds"`
	Resolution      *string    `json:"resolution"`
	FPS             *int       `json:"fps"`
	Codec           *string    `json:"codec"`
	BitrateBps      *int64     `json:"bitrateBps"`
	StorageTier     string     `json:"storageTier"`
	CreatedAt       time.Time  `json:"createdAt"`
}

// RecordingFilter is the closed set of filters accepted by ListRecordings.
// Nil or empty fields are not applied.
type RecordingFilter struct {
	CameraID    string
	StartDate   *time.Time
	EndDate     *time.Time
	StorageTier string
	Search      string
	MinDuration *int
	MaxDuration *int
	Resolution  string
	Codec       string
	Page        int
	Limit       int
}

// Normalize clamps paging to sane values.
func (f RecordingFilter) Normalize() RecordingFilter {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.Limit < 1 {
		f.Limit = DefaultPageLimit
	}
	if f.Limit > MaxPageLimit {
		f.Limit = MaxPageLimit
	}
	return f
}

// Offset returns the row offset for the filter's page.
func (f RecordingFilter) Offset() int {
	return (f.Page - 1) * f.Limit
}

// CameraStats aggregates recordings of one camera.
type CameraStats struct {
	CameraID             string `json:"cameraId"`
	CameraName           string `json:"cameraName"`
	Count                int64  `json:"count"`
	TotalSizeBytes       int64  `json:"totalSizeBytes"`
	TotalDurationSeconds int64  `json:"totalDurationSeconds"`
}

// TierStats aggregates recordings of one storage tier.
type TierStats struct {
	StorageTier    string `json:"storageTier"`
	Count          int64  `json:"count"`
	TotalSizeBytes int64  `json:"totalSizeBytes"`
}

// RecordingStats is the catalog summary.
type RecordingStats struct {
	TotalRecordings      int64         `json:"totalRecordings"`
	TotalSizeBytes       int64         `json:"totalSizeBytes"`
	TotalDurationSeconds int64         `json:"totalDurationSeconds"`
	ByCamera             []CameraStats `json:"byCamera"`
	ByStorageTier        []TierStats   `json:"byStorageTier"`
}

// CatalogStore is the recordings catalog.
type CatalogStore interface {
	// Cameras
	ListCameras(ctx context.Context) ([]Camera, error)
	UpsertCameras(ctx context.Context, cameras []Camera) error

	// Recordings
	RecordingExistsByFilepath(ctx context.Context, path string) (bool, error)
	// InsertRecording reports false when a row with the same filepath or
	// (camera, start time) already exists.
	InsertRecording(ctx context.Context, rec Recording) (bool, error)
	// GetRecording returns nil, nil when no row matches.
	GetRecording(ctx context.Context, id string) (*Recording, error)
	ListRecordings(ctx context.Context, filter RecordingFilter) ([]Recording, int, error)
	// DeleteRecording removes the row inside a transaction and calls onDeleted
	// with its filepath before commit. It reports false when no row matches.
	DeleteRecording(ctx context.Context, id string, onDeleted func(filepath string)) (bool, error)
	GetRecordingStats(ctx context.Context) (*RecordingStats, error)

	Ping(ctx context.Context) error
	Close() error
}

// IsUnavailable reports whether err means the store cannot serve further
// requests in this call chain, as opposed to a failure of one statement.
// It covers both backends: database/sql connection errors for SQLite, and
// refused connections, timeouts and a closed pool for Postgres.
func IsUnavailable(err error) bool {
	if err == nil {
		return false
	}
	var connectErr *pgconn.ConnectError
	return errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, sql.ErrConnDone) ||
		errors.Is(err, driver.ErrBadConn) ||
		errors.Is(err, puddle.ErrClosedPool) ||
		errors.As(err, &connectErr) ||
		pgconn.Timeout(err)
}

// likePattern escapes LIKE wildcards in a user search term and wraps it for
// substring matching with ESCAPE '\'.
func likePattern(search string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(search) + "%"
}

// nullable helpers turn zero filter values into SQL NULL.

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}

func nullInt(v *int) any {
	if v == nil {
		return nil
	}
	return *v
}

// Open returns the catalog store for driver ("sqlite" or "postgres").
func Open(ctx context.Context, driver, sqlitePath, postgresURL string, maxConns int) (CatalogStore, error) {
	switch driver {
	case "", "sqlite":
		return NewSQLiteDB(sqlitePath)
	case "postgres":
		return NewPostgresDB(ctx, postgresURL, int32(maxConns))
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}
}
