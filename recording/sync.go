package recording

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"vms-recordings/database"
	"vms-recordings/metadata"
)

// BatchExtractor extracts metadata for many files at once. Files that fail
// are absent from the result.
type BatchExtractor interface {
	ExtractBatch(ctx context.Context, paths []string) map[string]*metadata.VideoMetadata
}

// SyncResult counts the outcome of one scan. Files already in the catalog
// are scanned but counted neither as synced nor as errors.
type SyncResult struct {
	Scanned int `json:"scanned"`
	Synced  int `json:"synced"`
	Errors  int `json:"errors"`
}

// SyncOptions configures a Synchronizer.
type SyncOptions struct {
	Root        string // recordings root; one subdirectory per camera name
	Extension   string // e.g. ".mp4"
	StorageTier string // tier assigned to new recordings
}

// Synchronizer reconciles the recordings directory tree with the catalog.
type Synchronizer struct {
	store     database.CatalogStore
	extractor BatchExtractor
	opts      SyncOptions
	now       func() time.Time
	log       *zap.Logger
}

// NewSynchronizer creates a synchronizer. Root is made absolute so stored
// file paths are canonical.
func NewSynchronizer(store database.CatalogStore, extractor BatchExtractor, opts SyncOptions, log *zap.Logger) (*Synchronizer, error) {
	root, err := filepath.Abs(opts.Root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve recordings root %s: %w", opts.Root, err)
	}
	opts.Root = root
	if opts.Extension == "" {
		opts.Extension = ".mp4"
	}
	if !strings.HasPrefix(opts.Extension, ".") {
		opts.Extension = "." + opts.Extension
	}
	if opts.StorageTier == "" {
		opts.StorageTier = database.StorageTierHot
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Synchronizer{
		store:     store,
		extractor: extractor,
		opts:      opts,
		now:       time.Now,
		log:       log,
	}, nil
}

// Root returns the absolute recordings root.
func (s *Synchronizer) Root() string { return s.opts.Root }

type candidate struct {
	name  string
	path  string
	start time.Time
}

// ScanAndSync walks every camera directory and ingests files not yet in the
// catalog. Per-file failures are counted in Errors; only a failure to list
// cameras, a lost store connection or cancellation returns an error.
func (s *Synchronizer) ScanAndSync(ctx context.Context) (SyncResult, error) {
	var result SyncResult
	started := time.Now()

	cameras, err := s.store.ListCameras(ctx)
	if err != nil {
		return result, fmt.Errorf("failed to list cameras: %w", err)
	}

	for _, cam := range cameras {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		if err := s.syncCamera(ctx, cam, &result); err != nil {
			return result, err
		}
	}

	s.log.Info("[sync] scan complete",
		zap.Int("cameras", len(cameras)),
		zap.Int("scanned", result.Scanned),
		zap.Int("synced", result.Synced),
		zap.Int("errors", result.Errors),
		zap.Duration("took", time.Since(started)))
	return result, nil
}

func (s *Synchronizer) syncCamera(ctx context.Context, cam database.Camera, result *SyncResult) error {
	log := s.log.With(zap.String("camera", cam.Name))
	dir := filepath.Join(s.opts.Root, cam.Name)

	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		log.Info("[sync] camera directory not found, skipping", zap.String("dir", dir))
		return nil
	}
	if err != nil {
		log.Warn("[sync] cannot read camera directory, skipping", zap.String("dir", dir), zap.Error(err))
		return nil
	}

	var candidates []candidate
	for _, entry := range entries {
		if entry.IsDir() || !strings.EqualFold(filepath.Ext(entry.Name()), s.opts.Extension) {
			continue
		}
		result.Scanned++
		path := filepath.Join(dir, entry.Name())

		exists, err := s.store.RecordingExistsByFilepath(ctx, path)
		if err != nil {
			if database.IsUnavailable(err) {
				return err
			}
			result.Errors++
			log.Error("[sync] existence check failed", zap.String("path", path), zap.Error(err))
			continue
		}
		if exists {
			continue
		}

		start, ok := metadata.ParseFilenameTimestamp(entry.Name())
		if !ok {
			result.Errors++
			log.Warn("[sync] not ingesting file", zap.String("path", path), zap.Error(metadata.ErrTimestampUnparseable))
			continue
		}
		candidates = append(candidates, candidate{name: entry.Name(), path: path, start: start})
	}
	if len(candidates) == 0 {
		return nil
	}

	paths := make([]string, len(candidates))
	for i, c := range candidates {
		paths[i] = c.path
	}
	metas := s.extractor.ExtractBatch(ctx, paths)
	if err := ctx.Err(); err != nil {
		return err
	}

	for _, c := range candidates {
		meta, ok := metas[c.path]
		if !ok {
			result.Errors++
			continue
		}

		inserted, err := s.store.InsertRecording(ctx, s.newRecording(cam, c, meta))
		if err != nil {
			if database.IsUnavailable(err) {
				return err
			}
			result.Errors++
			log.Error("[sync] insert failed", zap.String("path", c.path), zap.Error(err))
			continue
		}
		if !inserted {
			log.Info("[sync] recording with same start time already catalogued",
				zap.String("path", c.path), zap.Time("start", c.start))
			continue
		}
		result.Synced++
		log.Debug("[sync] recording ingested", zap.String("path", c.path))
	}
	return nil
}

func (s *Synchronizer) newRecording(cam database.Camera, c candidate, meta *metadata.VideoMetadata) database.Recording {
	duration := meta.Duration
	end := metadata.EndTime(c.start, duration)
	codec := meta.Codec

	rec := database.Recording{
		ID:              uuid.NewString(),
		CameraID:        cam.ID,
		CameraName:      cam.Name,
		Filename:        c.name,
		Filepath:        c.path,
		FileSizeBytes:   meta.FileSize,
		StartTime:       c.start,
		EndTime:         &end,
		DurationSeconds: &duration,
		Codec:           &codec,
		StorageTier:     s.opts.StorageTier,
		CreatedAt:       s.now(),
	}
	if meta.Resolution != "" {
		resolution := meta.Resolution
		rec.Resolution = &resolution
	}
	if meta.FPS > 0 {
		fps := meta.FPS
		rec.FPS = &fps
	}
	if meta.Bitrate > 0 {
		bitrate := meta.Bitrate
		rec.BitrateBps = &bitrate
	}
	return rec
}
