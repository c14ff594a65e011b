package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"vms-recordings/config"
	"vms-recordings/database"
	"vms-recordings/metadata"
	"vms-recordings/metrics"
	"vms-recordings/monitoring"
	"vms-recordings/recording"
)

// Sync triggers recorded in metrics.
const (
	TriggerHTTP    = "http"
	TriggerCron    = "cron"
	TriggerStartup = "startup"
	TriggerCLI     = "cli"
)

// ErrShuttingDown is returned by Sync once Shutdown has been called.
var ErrShuttingDown = errors.New("recording service is shutting down")

// Scanner runs one full catalog scan.
type Scanner interface {
	ScanAndSync(ctx context.Context) (recording.SyncResult, error)
}

// ProberHealth reports whether the external prober can run.
type ProberHealth interface {
	Available(ctx context.Context) error
}

// RecordingService is the entry point used by the HTTP API, the cron job
// and the sync command.
type RecordingService struct {
	store          database.CatalogStore
	scanner        Scanner
	files          *recording.FileServer
	deleter        *recording.Deleter
	prober         ProberHealth
	metrics        *metrics.SyncMetrics
	recordingsRoot string
	group          singleflight.Group
	log            *zap.Logger

	mu       sync.Mutex
	closing  bool
	scanning sync.WaitGroup
}

// NewRecordingService wires the recording components together.
func NewRecordingService(
	store database.CatalogStore,
	scanner Scanner,
	files *recording.FileServer,
	deleter *recording.Deleter,
	prober ProberHealth,
	syncMetrics *metrics.SyncMetrics,
	recordingsRoot string,
	log *zap.Logger,
) *RecordingService {
	if log == nil {
		log = zap.NewNop()
	}
	if syncMetrics == nil {
		syncMetrics = metrics.NewSyncMetrics(log)
	}
	return &RecordingService{
		store:          store,
		scanner:        scanner,
		files:          files,
		deleter:        deleter,
		prober:         prober,
		metrics:        syncMetrics,
		recordingsRoot: recordingsRoot,
		log:            log,
	}
}

// Sync runs a scan. Callers arriving while a scan is in flight wait for
// that scan and receive its result. The scan itself is not cancelled when a
// waiting caller gives up.
func (s *RecordingService) Sync(ctx context.Context, trigger string) (recording.SyncResult, error) {
	s.mu.Lock()
	closing := s.closing
	s.mu.Unlock()
	if closing {
		return recording.SyncResult{}, ErrShuttingDown
	}

	ch := s.group.DoChan("scan", func() (any, error) {
		s.mu.Lock()
		if s.closing {
			s.mu.Unlock()
			return recording.SyncResult{}, ErrShuttingDown
		}
		s.scanning.Add(1)
		s.mu.Unlock()
		defer s.scanning.Done()

		run := s.metrics.Start(trigger)
		result, err := s.scanner.ScanAndSync(context.WithoutCancel(ctx))
		s.metrics.Finish(run, result.Scanned, result.Synced, result.Errors, err)
		return result, err
	})

	select {
	case <-ctx.Done():
		return recording.SyncResult{}, ctx.Err()
	case res := <-ch:
		if res.Shared {
			s.log.Debug("[sync] joined in-flight scan", zap.String("trigger", trigger))
		}
		result, _ := res.Val.(recording.SyncResult)
		return result, res.Err
	}
}

// Shutdown refuses new scans and waits for a running one to finish, so the
// store can be closed afterwards. It returns ctx.Err() if ctx ends first.
func (s *RecordingService) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closing = true
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.scanning.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		s.log.Warn("[service] shutdown before scan finished", zap.Error(ctx.Err()))
		return ctx.Err()
	}
}

// LastSync returns scan metrics.
func (s *RecordingService) LastSync() metrics.SyncSnapshot {
	return s.metrics.Snapshot()
}

// List returns a page of recordings and the total match count.
func (s *RecordingService) List(ctx context.Context, filter database.RecordingFilter) ([]database.Recording, int, error) {
	return s.store.ListRecordings(ctx, filter)
}

// Search is List with the attribute filters (duration, resolution, codec)
// expected to be set.
func (s *RecordingService) Search(ctx context.Context, filter database.RecordingFilter) ([]database.Recording, int, error) {
	s.log.Debug("[service] search",
		zap.String("query", filter.Search),
		zap.String("resolution", filter.Resolution),
		zap.String("codec", filter.Codec))
	return s.store.ListRecordings(ctx, filter)
}

// Get returns one recording or recording.ErrNotFound.
func (s *RecordingService) Get(ctx context.Context, id string) (*database.Recording, error) {
	rec, err := s.store.GetRecording(ctx, id)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, recording.ErrNotFound
	}
	return rec, nil
}

// Delete removes a recording; false means it did not exist.
func (s *RecordingService) Delete(ctx context.Context, id string) (bool, error) {
	return s.deleter.Delete(ctx, id)
}

// Serve streams a recording to w.
func (s *RecordingService) Serve(ctx context.Context, w http.ResponseWriter, id, rangeHeader string, disposition recording.Disposition) error {
	return s.files.Serve(ctx, w, id, rangeHeader, disposition)
}

// StatsReport is the catalog summary with human-readable totals.
type StatsReport struct {
	*database.RecordingStats
	TotalSizeFormatted     string                   `json:"totalSizeFormatted"`
	TotalDurationFormatted string                   `json:"totalDurationFormatted"`
	Storage                *monitoring.StorageUsage `json:"storage,omitempty"`
}

// Stats summarizes the catalog and the recordings volume.
func (s *RecordingService) Stats(ctx context.Context) (*StatsReport, error) {
	stats, err := s.store.GetRecordingStats(ctx)
	if err != nil {
		return nil, err
	}
	report := &StatsReport{
		RecordingStats:         stats,
		TotalSizeFormatted:     metadata.FormatFileSize(stats.TotalSizeBytes),
		TotalDurationFormatted: metadata.FormatDuration(stats.TotalDurationSeconds),
	}
	if usage, err := monitoring.GetStorageUsage(ctx, s.recordingsRoot); err != nil {
		s.log.Warn("[stats] storage usage unavailable", zap.Error(err))
	} else {
		report.Storage = &usage
	}
	return report, nil
}

// HealthReport describes the service dependencies.
type HealthReport struct {
	Status   string                   `json:"status"`
	Database string                   `json:"database"`
	FFprobe  string                   `json:"ffprobe"`
	Storage  *monitoring.StorageUsage `json:"storage,omitempty"`
}

// Health checks the catalog store, the prober and the recordings volume.
func (s *RecordingService) Health(ctx context.Context) HealthReport {
	report := HealthReport{Status: "ok", Database: "ok", FFprobe: "ok"}

	if err := s.store.Ping(ctx); err != nil {
		s.log.Warn("[health] database unreachable", zap.Error(err))
		report.Status = "degraded"
		report.Database = "unavailable"
	}
	if s.prober != nil {
		if err := s.prober.Available(ctx); err != nil {
			s.log.Warn("[health] ffprobe unavailable", zap.Error(err))
			report.Status = "degraded"
			report.FFprobe = "unavailable"
		}
	}
	if usage, err := monitoring.GetStorageUsage(ctx, s.recordingsRoot); err != nil {
		report.Status = "degraded"
	} else {
		report.Storage = &usage
	}
	return report
}

// SeedCameras writes configured cameras to the catalog.
func (s *RecordingService) SeedCameras(ctx context.Context, cameras []database.Camera) error {
	if len(cameras) == 0 {
		return nil
	}
	if err := s.store.UpsertCameras(ctx, cameras); err != nil {
		return fmt.Errorf("failed to seed cameras: %w", err)
	}
	s.log.Info("[service] cameras seeded", zap.Int("count", len(cameras)))
	return nil
}

// Options configures NewFromOptions.
type Options struct {
	RecordingsPath    string
	VideoExtension    string
	VideoContentType  string
	StorageTier       string
	MetadataBatchSize int
	Prober            metadata.Prober
}

// OptionsFromConfig maps the recordings settings of cfg, probing with
// the configured ffprobe binary.
func OptionsFromConfig(cfg config.Config) Options {
	return Options{
		RecordingsPath:    cfg.RecordingsPath,
		VideoExtension:    cfg.VideoExtension,
		VideoContentType:  cfg.VideoContentType,
		StorageTier:       cfg.DefaultStorageTier,
		MetadataBatchSize: cfg.MetadataBatchSize,
		Prober:            metadata.NewFFProbe(cfg.FFprobePath, cfg.ProbeTimeout),
	}
}

// NewFromOptions builds the extractor, synchronizer, file server and deleter
// around store.
func NewFromOptions(store database.CatalogStore, opts Options, log *zap.Logger) (*RecordingService, error) {
	if log == nil {
		log = zap.NewNop()
	}
	extractor := metadata.NewExtractor(opts.Prober, opts.MetadataBatchSize, log.Named("metadata"))
	syncer, err := recording.NewSynchronizer(store, extractor, recording.SyncOptions{
		Root:        opts.RecordingsPath,
		Extension:   opts.VideoExtension,
		StorageTier: opts.StorageTier,
	}, log.Named("sync"))
	if err != nil {
		return nil, err
	}

	var health ProberHealth
	if h, ok := opts.Prober.(ProberHealth); ok {
		health = h
	}

	return NewRecordingService(
		store,
		syncer,
		recording.NewFileServer(store, opts.VideoContentType, log.Named("serve")),
		recording.NewDeleter(store, log.Named("delete")),
		health,
		metrics.NewSyncMetrics(log.Named("metrics")),
		syncer.Root(),
		log.Named("service"),
	), nil
}
