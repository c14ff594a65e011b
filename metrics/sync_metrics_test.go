package metrics

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSyncMetrics(t *testing.T) {
	m := NewSyncMetrics(nil)

	snap := m.Snapshot()
	assert.False(t, snap.Running)
	assert.Nil(t, snap.Last)

	run := m.Start("http")
	snap = m.Snapshot()
	assert.True(t, snap.Running)
	require.NotNil(t, snap.Current)
	assert.Equal(t, "http", snap.Current.Trigger)

	m.Finish(run, 10, 7, 1, nil)
	snap = m.Snapshot()
	assert.False(t, snap.Running)
	require.NotNil(t, snap.Last)
	assert.Equal(t, 10, snap.Last.Scanned)
	assert.Equal(t, 7, snap.Last.Synced)
	assert.Equal(t, 1, snap.Last.Errors)
	assert.NotNil(t, snap.Last.FinishedAt)
	assert.Empty(t, snap.Last.Error)

	run = m.Start("cron")
	m.Finish(run, 3, 0, 0, errors.New("failed to list cameras"))
	snap = m.Snapshot()
	assert.Equal(t, int64(2), snap.TotalRuns)
	assert.Equal(t, int64(1), snap.FailedRuns)
	assert.Equal(t, int64(7), snap.TotalSynced)
	assert.Equal(t, int64(1), snap.TotalErrors)
	assert.Equal(t, "cron", snap.Last.Trigger)
	assert.Equal(t, "failed to list cameras", snap.Last.Error)
}

func TestSyncMetricsSnapshotIsCopy(t *testing.T) {
	m := NewSyncMetrics(nil)
	m.Finish(m.Start("cli"), 1, 1, 0, nil)

	snap := m.Snapshot()
	snap.Last.Synced = 99
	assert.Equal(t, 1, m.Snapshot().Last.Synced)
}
