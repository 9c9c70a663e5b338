package metrics

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMetrics(t *testing.T) {
	m := NewMetrics()

	assert.NotNil(t, m)
	assert.NotNil(t, m.electionDuration)
	assert.False(t, m.startTime.IsZero())
}

func TestMetrics_RecordRequestVote(t *testing.T) {
	m := NewMetrics()

	m.RecordRequestVote()
	m.RecordRequestVote()
	assert.Equal(t, uint64(2), m.requestVoteCount.Load())
}

func TestMetrics_RecordHeartbeat(t *testing.T) {
	m := NewMetrics()

	for i := 0; i < 5; i++ {
		m.RecordHeartbeat()
	}
	assert.Equal(t, uint64(5), m.heartbeatCount.Load())
}

func TestMetrics_RecordElection(t *testing.T) {
	m := NewMetrics()

	m.RecordElection()
	m.RecordElection()
	m.RecordElectionWon()
	m.RecordStepDown()

	assert.Equal(t, uint64(2), m.electionCount.Load())
	assert.Equal(t, uint64(1), m.electionsWon.Load())
	assert.Equal(t, uint64(1), m.stepDownCount.Load())
}

func TestMetrics_RecordElectionDuration(t *testing.T) {
	m := NewMetrics()

	m.RecordElectionDuration(200 * time.Millisecond)
	m.RecordElectionDuration(300 * time.Millisecond)

	m.electionMu.Lock()
	assert.Len(t, m.electionDuration, 2)
	assert.Equal(t, 200*time.Millisecond, m.electionDuration[0])
	m.electionMu.Unlock()
}

func TestMetrics_GetElectionStats(t *testing.T) {
	t.Run("empty", func(t *testing.T) {
		m := NewMetrics()
		assert.Equal(t, LatencyStats{}, m.GetElectionStats())
	})

	t.Run("calculates statistics", func(t *testing.T) {
		m := NewMetrics()
		for i := 1; i <= 100; i++ {
			m.RecordElectionDuration(time.Duration(i) * time.Millisecond)
		}

		stats := m.GetElectionStats()
		assert.Equal(t, 100, stats.Count)
		assert.Equal(t, 1.0, stats.Min)
		assert.Equal(t, 100.0, stats.Max)
		assert.InDelta(t, 50.5, stats.Mean, 0.01)
		assert.InDelta(t, 50.5, stats.P50, 0.01)
		assert.InDelta(t, 95.05, stats.P95, 0.01)
		assert.InDelta(t, 99.01, stats.P99, 0.01)
		assert.Greater(t, stats.StdDev, 0.0)
	})

	t.Run("does not reorder recorded durations", func(t *testing.T) {
		m := NewMetrics()
		m.RecordElectionDuration(3 * time.Millisecond)
		m.RecordElectionDuration(1 * time.Millisecond)

		_ = m.GetElectionStats()

		m.electionMu.Lock()
		assert.Equal(t, 3*time.Millisecond, m.electionDuration[0])
		m.electionMu.Unlock()
	})
}

func TestPercentile(t *testing.T) {
	assert.Equal(t, 0.0, percentile(nil, 50))
	assert.Equal(t, 7.0, percentile([]float64{7}, 99))
	assert.Equal(t, 2.0, percentile([]float64{1, 2, 3}, 50))
	assert.InDelta(t, 1.5, percentile([]float64{1, 2}, 50), 1e-9)
}

func TestMetrics_GetReport(t *testing.T) {
	m := NewMetrics()

	m.RecordRequestVote()
	m.RecordRequestVote()
	m.RecordHeartbeat()
	m.RecordElection()
	m.RecordElectionWon()
	m.RecordElectionDuration(10 * time.Millisecond)

	report := m.GetReport(3)

	assert.Equal(t, 3, report.ClusterSize)
	assert.Equal(t, uint64(2), report.RequestVoteCount)
	assert.Equal(t, uint64(1), report.HeartbeatCount)
	assert.Equal(t, uint64(1), report.ElectionCount)
	assert.Equal(t, uint64(1), report.ElectionsWon)
	assert.Equal(t, uint64(0), report.StepDowns)
	assert.Equal(t, 1, report.ElectionStats.Count)
	assert.GreaterOrEqual(t, report.Duration, 0.0)
	assert.False(t, report.EndTime.Before(report.StartTime))
}

func TestReport_PrintReport(t *testing.T) {
	m := NewMetrics()
	m.RecordElection()
	m.RecordElectionWon()
	m.RecordElectionDuration(5 * time.Millisecond)

	report := m.GetReport(5)

	var sb strings.Builder
	report.PrintReport(&sb)

	out := sb.String()
	assert.Contains(t, out, "RAFT ELECTION REPORT")
	assert.Contains(t, out, "Cluster Size: 5 nodes")
	assert.Contains(t, out, "Won: 1")
	assert.Contains(t, out, "P50 Duration")
}

func TestReport_SaveJSON(t *testing.T) {
	m := NewMetrics()
	m.RecordHeartbeat()
	report := m.GetReport(3)

	path := filepath.Join(t.TempDir(), "report.json")
	require.NoError(t, report.SaveJSON(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var decoded Report
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, 3, decoded.ClusterSize)
	assert.Equal(t, uint64(1), decoded.HeartbeatCount)

	t.Run("fails on missing directory", func(t *testing.T) {
		err := report.SaveJSON(filepath.Join(t.TempDir(), "missing", "report.json"))
		assert.Error(t, err)
	})
}

func TestMetrics_Reset(t *testing.T) {
	m := NewMetrics()

	m.RecordRequestVote()
	m.RecordHeartbeat()
	m.RecordElection()
	m.RecordElectionWon()
	m.RecordStepDown()
	m.RecordElectionDuration(time.Millisecond)

	m.startMu.RLock()
	oldStart := m.startTime
	m.startMu.RUnlock()

	time.Sleep(5 * time.Millisecond)
	m.Reset()

	report := m.GetReport(1)
	assert.Zero(t, report.RequestVoteCount)
	assert.Zero(t, report.HeartbeatCount)
	assert.Zero(t, report.ElectionCount)
	assert.Zero(t, report.ElectionsWon)
	assert.Zero(t, report.StepDowns)
	assert.Zero(t, report.ElectionStats.Count)
	assert.True(t, report.StartTime.After(oldStart))
}

func TestMetrics_Concurrency(t *testing.T) {
	m := NewMetrics()

	const goroutines = 10
	const perGoroutine = 100

	var wg sync.WaitGroup
	wg.Add(goroutines)
	for i := 0; i < goroutines; i++ {
		go func() {
			defer wg.Done()
			for j := 0; j < perGoroutine; j++ {
				m.RecordRequestVote()
				m.RecordHeartbeat()
				m.RecordElection()
				m.RecordElectionDuration(time.Millisecond)
				_ = m.GetElectionStats()
			}
		}()
	}
	wg.Wait()

	report := m.GetReport(3)
	assert.Equal(t, uint64(goroutines*perGoroutine), report.RequestVoteCount)
	assert.Equal(t, uint64(goroutines*perGoroutine), report.HeartbeatCount)
	assert.Equal(t, uint64(goroutines*perGoroutine), report.ElectionCount)
	assert.Equal(t, goroutines*perGoroutine, report.ElectionStats.Count)
}
