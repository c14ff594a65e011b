package monitoring

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"
	"go.uber.org/zap"
)

// ResourceUsage is the service process footprint.
type ResourceUsage struct {
	CPUPercent    float64 `json:"cpuPercent"`
	MemoryUsedMB  float64 `json:"memoryUsedMb"`
	MemoryTotalMB float64 `json:"memoryTotalMb"`
	MemoryPercent float64 `json:"memoryPercent"`
	NumGoroutines int     `json:"numGoroutines"`
}

// StorageUsage describes the volume holding the recordings root.
type StorageUsage struct {
	Path        string  `json:"path"`
	TotalBytes  uint64  `json:"totalBytes"`
	UsedBytes   uint64  `json:"usedBytes"`
	FreeBytes   uint64  `json:"freeBytes"`
	UsedPercent float64 `json:"usedPercent"`
}

// GetStorageUsage reports usage of the file system containing path.
func GetStorageUsage(ctx context.Context, path string) (StorageUsage, error) {
	u, err := disk.UsageWithContext(ctx, path)
	if err != nil {
		return StorageUsage{}, fmt.Errorf("error getting disk usage for %s: %w", path, err)
	}
	return StorageUsage{
		Path:        path,
		TotalBytes:  u.Total,
		UsedBytes:   u.Used,
		FreeBytes:   u.Free,
		UsedPercent: u.UsedPercent,
	}, nil
}

// GetResourceUsage reports this process's CPU and memory use.
func GetResourceUsage(ctx context.Context) (ResourceUsage, error) {
	var usage ResourceUsage

	proc, err := process.NewProcessWithContext(ctx, int32(os.Getpid()))
	if err != nil {
		return usage, fmt.Errorf("error getting process: %w", err)
	}

	cpuPercent, err := proc.CPUPercentWithContext(ctx)
	if err != nil {
		return usage, fmt.Errorf("error getting CPU usage: %w", err)
	}
	usage.CPUPercent = cpuPercent

	virtualMem, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return usage, fmt.Errorf("error getting memory info: %w", err)
	}

	procMem, err := proc.MemoryInfoWithContext(ctx)
	if err != nil {
		return usage, fmt.Errorf("error getting process memory: %w", err)
	}

	usage.MemoryUsedMB = float64(procMem.RSS) / 1024 / 1024
	usage.MemoryTotalMB = float64(virtualMem.Total) / 1024 / 1024
	if virtualMem.Total > 0 {
		usage.MemoryPercent = float64(procMem.RSS) / float64(virtualMem.Total) * 100
	}
	usage.NumGoroutines = runtime.NumGoroutine()

	return usage, nil
}

// StartMonitoring logs process and recordings-volume usage every interval
// until ctx is done.
func StartMonitoring(ctx context.Context, interval time.Duration, recordingsPath string, log *zap.Logger) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}

			if usage, err := GetResourceUsage(ctx); err != nil {
				log.Warn("[monitor] resource usage unavailable", zap.Error(err))
			} else {
				log.Info("[monitor] resource usage",
					zap.Float64("cpuPercent", usage.CPUPercent),
					zap.Float64("memoryUsedMb", usage.MemoryUsedMB),
					zap.Float64("memoryPercent", usage.MemoryPercent),
					zap.Int("goroutines", usage.NumGoroutines))
			}

			if storage, err := GetStorageUsage(ctx, recordingsPath); err != nil {
				log.Warn("[monitor] storage usage unavailable", zap.Error(err))
			} else {
				log.Info("[monitor] recordings volume",
					zap.String("path", storage.Path),
					zap.Uint64("freeBytes", storage.FreeBytes),
					zap.Float64("usedPercent", storage.UsedPercent))
			}
		}
	}()
}
