package metrics

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// SyncRun records the timing and outcome of one catalog scan.
type SyncRun struct {
	Trigger    string        `json:"trigger"`
	StartedAt  time.Time     `json:"startedAt"`
	FinishedAt *time.Time    `json:"finishedAt,omitempty"`
	Duration   time.Duration `json:"durationNs"`
	Scanned    int           `json:"scanned"`
	Synced     int           `json:"synced"`
	Errors     int           `json:"errors"`
	Error      string        `json:"error,omitempty"`
}

// SyncSnapshot is a copy of the collector state.
type SyncSnapshot struct {
	Running     bool     `json:"running"`
	Current     *SyncRun `json:"current,omitempty"`
	Last        *SyncRun `json:"last,omitempty"`
	TotalRuns   int64    `json:"totalRuns"`
	FailedRuns  int64    `json:"failedRuns"`
	TotalSynced int64    `json:"totalSynced"`
	TotalErrors int64    `json:"totalErrors"`
}

// SyncMetrics tracks scan runs across triggers (HTTP, cron, CLI).
type SyncMetrics struct {
	mu          sync.Mutex
	current     *SyncRun
	last        *SyncRun
	totalRuns   int64
	failedRuns  int64
	totalSynced int64
	totalErrors int64
	log         *zap.Logger
}

// NewSyncMetrics creates an empty collector.
func NewSyncMetrics(log *zap.Logger) *SyncMetrics {
	if log == nil {
		log = zap.NewNop()
	}
	return &SyncMetrics{log: log}
}

// Start marks the beginning of a scan.
func (m *SyncMetrics) Start(trigger string) *SyncRun {
	m.mu.Lock()
	defer m.mu.Unlock()
	run := &SyncRun{Trigger: trigger, StartedAt: time.Now()}
	m.current = run
	m.log.Info("[Metrics] sync started", zap.String("trigger", trigger))
	return run
}

// Finish records the outcome of run. err is the scan-level error, if any.
func (m *SyncMetrics) Finish(run *SyncRun, scanned, synced, errCount int, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	run.FinishedAt = &now
	run.Duration = now.Sub(run.StartedAt)
	run.Scanned = scanned
	run.Synced = synced
	run.Errors = errCount
	if err != nil {
		run.Error = err.Error()
		m.failedRuns++
	}

	m.totalRuns++
	m.totalSynced += int64(synced)
	m.totalErrors += int64(errCount)
	m.last = run
	if m.current == run {
		m.current = nil
	}

	m.log.Info("[Metrics] sync finished",
		zap.String("trigger", run.Trigger),
		zap.Duration("duration", run.Duration),
		zap.Int("scanned", scanned),
		zap.Int("synced", synced),
		zap.Int("errors", errCount),
		zap.Error(err))
}

// Snapshot returns a copy of the current state.
func (m *SyncMetrics) Snapshot() SyncSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	snap := SyncSnapshot{
		Running:     m.current != nil,
		TotalRuns:   m.totalRuns,
		FailedRuns:  m.failedRuns,
		TotalSynced: m.totalSynced,
		TotalErrors: m.totalErrors,
	}
	if m.current != nil {
		c := *m.current
		snap.Current = &c
	}
	if m.last != nil {
		l := *m.last
		snap.Last = &l
	}
	return snap
}
