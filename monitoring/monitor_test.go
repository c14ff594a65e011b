package monitoring

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestGetStorageUsage(t *testing.T) {
	dir := t.TempDir()
	usage, err := GetStorageUsage(context.Background(), dir)
	require.NoError(t, err)
	assert.Equal(t, dir, usage.Path)
	assert.Greater(t, usage.TotalBytes, uint64(0))
	assert.LessOrEqual(t, usage.UsedPercent, 100.0)
}

func TestGetStorageUsageMissingPath(t *testing.T) {
	_, err := GetStorageUsage(context.Background(), filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)
}

func TestGetResourceUsage(t *testing.T) {
	usage, err := GetResourceUsage(context.Background())
	require.NoError(t, err)
	assert.Greater(t, usage.MemoryUsedMB, 0.0)
	assert.Greater(t, usage.NumGoroutines, 0)
}

func TestStartMonitoringStopsWithContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	StartMonitoring(ctx, 10*time.Millisecond, t.TempDir(), zap.NewNop())
	time.Sleep(30 * time.Millisecond)
	cancel()
}
