package service

import (
	"context"
	"errors"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vms-recordings/config"
	"vms-recordings/database"
	"vms-recordings/metadata"
	"vms-recordings/metadata/metadatatest"
	"vms-recordings/recording"
)

type blockingScanner struct {
	calls   atomic.Int32
	release chan struct{}
	started chan struct{}
	once    sync.Once
	result  recording.SyncResult
}

func (b *blockingScanner) ScanAndSync(ctx context.Context) (recording.SyncResult, error) {
	b.calls.Add(1)
	b.once.Do(func() { close(b.started) })
	<-b.release
	return b.result, nil
}

type failingProber struct{}

func (failingProber) Available(context.Context) error { return errors.New("exec: ffprobe not found") }

func newTestService(t *testing.T) (*RecordingService, *database.SQLiteDB, string) {
	t.Helper()
	dir := t.TempDir()

	store, err := database.NewSQLiteDB(filepath.Join(dir, "catalog.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	root := filepath.Join(dir, "recordings")
	require.NoError(t, os.MkdirAll(root, 0755))

	svc, err := NewFromOptions(store, Options{
		RecordingsPath:    root,
		VideoExtension:    ".mp4",
		VideoContentType:  "video/mp4",
		StorageTier:       database.StorageTierHot,
		MetadataBatchSize: 2,
		Prober:            &metadatatest.FakeProber{Default: metadatatest.VideoDocument("60", 1280, 720, "30/1")},
	}, nil)
	require.NoError(t, err)
	return svc, store, root
}

func writeVideo(t *testing.T, root, camera, name string) {
	t.Helper()
	dir := filepath.Join(root, camera)
	require.NoError(t, os.MkdirAll(dir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("0123456789"), 0644))
}

func TestSyncJoinsInFlightScan(t *testing.T) {
	scanner := &blockingScanner{
		release: make(chan struct{}),
		started: make(chan struct{}),
		result:  recording.SyncResult{Scanned: 4, Synced: 3, Errors: 1},
	}
	svc := NewRecordingService(nil, scanner, nil, nil, nil, nil, t.TempDir(), nil)

	var wg sync.WaitGroup
	results := make([]recording.SyncResult, 2)
	wg.Add(1)
	go func() {
		defer wg.Done()
		results[0], _ = svc.Sync(context.Background(), TriggerHTTP)
	}()
	<-scanner.started

	wg.Add(1)
	go func() {
		defer wg.Done()
		results[1], _ = svc.Sync(context.Background(), TriggerCron)
	}()

	// give the second caller time to join before releasing the scan
	time.Sleep(50 * time.Millisecond)
	close(scanner.release)
	wg.Wait()

	assert.Equal(t, int32(1), scanner.calls.Load())
	assert.Equal(t, scanner.result, results[0])
	assert.Equal(t, scanner.result, results[1])

	snap := svc.LastSync()
	assert.Equal(t, int64(1), snap.TotalRuns)
	require.NotNil(t, snap.Last)
	assert.Equal(t, TriggerHTTP, snap.Last.Trigger)
}

func TestSyncCallerCancelDoesNotAbortScan(t *testing.T) {
	scanner := &blockingScanner{
		release: make(chan struct{}),
		started: make(chan struct{}),
		result:  recording.SyncResult{Scanned: 1, Synced: 1},
	}
	svc := NewRecordingService(nil, scanner, nil, nil, nil, nil, t.TempDir(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := svc.Sync(ctx, TriggerHTTP)
		done <- err
	}()
	<-scanner.started
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)

	close(scanner.release)
	assert.Eventually(t, func() bool { return svc.LastSync().TotalRuns == 1 }, time.Second, 10*time.Millisecond)
	assert.Equal(t, 1, svc.LastSync().Last.Synced)
}

func TestServiceSyncAndRead(t *testing.T) {
	svc, _, root := newTestService(t)
	ctx := context.Background()
	require.NoError(t, svc.SeedCameras(ctx, []database.Camera{{ID: "cam-1", Name: "cam1"}}))

	writeVideo(t, root, "cam1", "cam1_20251020_143025.mp4")
	writeVideo(t, root, "cam1", "cam1_20251020_143525.mp4")

	result, err := svc.Sync(ctx, TriggerCLI)
	require.NoError(t, err)
	assert.Equal(t, recording.SyncResult{Scanned: 2, Synced: 2}, result)

	recs, total, err := svc.List(ctx, database.RecordingFilter{CameraID: "cam-1"})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	require.Len(t, recs, 2)

	rec, err := svc.Get(ctx, recs[0].ID)
	require.NoError(t, err)
	assert.Equal(t, recs[0].Filepath, rec.Filepath)

	w := httptest.NewRecorder()
	require.NoError(t, svc.Serve(ctx, w, rec.ID, "bytes=2-5", recording.Inline))
	assert.Equal(t, "2345", w.Body.String())

	deleted, err := svc.Delete(ctx, rec.ID)
	require.NoError(t, err)
	assert.True(t, deleted)
	_, err = svc.Get(ctx, rec.ID)
	assert.ErrorIs(t, err, recording.ErrNotFound)
	assert.NoFileExists(t, rec.Filepath)
}

func TestGetUnknownRecording(t *testing.T) {
	svc, _, _ := newTestService(t)
	_, err := svc.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, recording.ErrNotFound)
}

func TestStatsFormatsTotals(t *testing.T) {
	svc, store, root := newTestService(t)
	ctx := context.Background()
	require.NoError(t, store.UpsertCameras(ctx, []database.Camera{{ID: "cam-1", Name: "cam1"}}))

	duration := 3723
	inserted, err := store.InsertRecording(ctx, database.Recording{
		ID:              "rec-1",
		CameraID:        "cam-1",
		Filename:        "cam1_20251020_143025.mp4",
		Filepath:        filepath.Join(root, "cam1", "cam1_20251020_143025.mp4"),
		FileSizeBytes:   1536,
		StartTime:       time.Date(2025, 10, 20, 14, 30, 25, 0, time.Local),
		DurationSeconds: &duration,
		StorageTier:     database.StorageTierHot,
	})
	require.NoError(t, err)
	require.True(t, inserted)

	report, err := svc.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), report.TotalRecordings)
	assert.Equal(t, "1.5 KB", report.TotalSizeFormatted)
	assert.Equal(t, "1h 2m 3s", report.TotalDurationFormatted)
	require.NotNil(t, report.Storage)
	assert.Equal(t, root, report.Storage.Path)
}

func TestHealth(t *testing.T) {
	svc, _, _ := newTestService(t)
	report := svc.Health(context.Background())
	assert.Equal(t, "ok", report.Status)
	assert.Equal(t, "ok", report.Database)

	svc.prober = failingProber{}
	report = svc.Health(context.Background())
	assert.Equal(t, "degraded", report.Status)
	assert.Equal(t, "unavailable", report.FFprobe)
}

func TestHealthDatabaseDown(t *testing.T) {
	svc, store, _ := newTestService(t)
	require.NoError(t, store.Close())

	report := svc.Health(context.Background())
	assert.Equal(t, "degraded", report.Status)
	assert.Equal(t, "unavailable", report.Database)
}

func TestSeedCamerasEmpty(t *testing.T) {
	svc, store, _ := newTestService(t)
	require.NoError(t, svc.SeedCameras(context.Background(), nil))

	cams, err := store.ListCameras(context.Background())
	require.NoError(t, err)
	assert.Empty(t, cams)
}

func TestOptionsFromConfig(t *testing.T) {
	opts := OptionsFromConfig(config.Config{
		RecordingsPath:     "/srv/recordings",
		VideoExtension:     ".mkv",
		VideoContentType:   "video/x-matroska",
		DefaultStorageTier: database.StorageTierCold,
		MetadataBatchSize:  3,
		FFprobePath:        "/usr/local/bin/ffprobe",
		ProbeTimeout:       10 * time.Second,
	})
	assert.Equal(t, "/srv/recordings", opts.RecordingsPath)
	assert.Equal(t, ".mkv", opts.VideoExtension)
	assert.Equal(t, database.StorageTierCold, opts.StorageTier)
	assert.Equal(t, 3, opts.MetadataBatchSize)

	probe, ok := opts.Prober.(*metadata.FFProbe)
	require.True(t, ok)
	assert.Equal(t, "/usr/local/bin/ffprobe", probe.Binary)
	assert.Equal(t, 10*time.Second, probe.Timeout)
}

func TestShutdownWaitsForRunningScan(t *testing.T) {
	scanner := &blockingScanner{
		release: make(chan struct{}),
		started: make(chan struct{}),
		result:  recording.SyncResult{Scanned: 2, Synced: 2},
	}
	svc := NewRecordingService(nil, scanner, nil, nil, nil, nil, t.TempDir(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	go svc.Sync(ctx, TriggerStartup)
	<-scanner.started
	cancel()

	short, cancelShort := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancelShort()
	assert.ErrorIs(t, svc.Shutdown(short), context.DeadlineExceeded)

	_, err := svc.Sync(context.Background(), TriggerHTTP)
	assert.ErrorIs(t, err, ErrShuttingDown)
	assert.Equal(t, int32(1), scanner.calls.Load())

	close(scanner.release)
	require.NoError(t, svc.Shutdown(context.Background()))
	assert.Equal(t, int64(1), svc.LastSync().TotalRuns)
}

func TestShutdownIdle(t *testing.T) {
	svc, _, _ := newTestService(t)
	require.NoError(t, svc.Shutdown(context.Background()))

	_, err := svc.Sync(context.Background(), TriggerCron)
	assert.ErrorIs(t, err, ErrShuttingDown)
}
