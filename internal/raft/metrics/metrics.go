package metrics

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Metrics collects in-memory statistics about elections and heartbeats. It satisfies server.MetricsCollector and
// is shared by every node of an in-process cluster to produce one report.
type Metrics struct {
	// RPC counters
	requestVoteCount atomic.Uint64
	heartbeatCount   atomic.Uint64

	// Leader election metrics
	electionCount    atomic.Uint64
	electionsWon     atomic.Uint64
	stepDownCount    atomic.Uint64
	electionDuration []time.Duration
	electionMu       sync.Mutex

	startMu   sync.RWMutex
	startTime time.Time
}

// NewMetrics creates a new metrics collector
func NewMetrics() *Metrics {
	return &Metrics{
		electionDuration: make([]time.Duration, 0, 100),
		startTime:        time.Now(),
	}
}

// RecordRequestVote increments the RequestVote RPC counter
func (m *Metrics) RecordRequestVote() {
	m.requestVoteCount.Add(1)
}

// RecordHeartbeat increments the heartbeat counter
func (m *Metrics) RecordHeartbeat() {
	m.heartbeatCount.Add(1)
}

// RecordElection records that a node started an election
func (m *Metrics) RecordElection() {
	m.electionCount.Add(1)
}

// RecordElectionWon records that a candidate became leader
func (m *Metrics) RecordElectionWon() {
	m.electionsWon.Add(1)
}

// RecordStepDown records a Candidate or Leader reverting to Follower
func (m *Metrics) RecordStepDown() {
	m.stepDownCount.Add(1)
}

// RecordElectionDuration records how long a won election took, from the start of the round to leadership
func (m *Metrics) RecordElectionDuration(duration time.Duration) {
	m.electionMu.Lock()
	m.electionDuration = append(m.electionDuration, duration)
	m.electionMu.Unlock()
}

// LatencyStats contains percentile statistics for durations
type LatencyStats struct {
	Count  int     `json:"count"`
	Min    float64 `json:"min_ms"`
	Max    float64 `json:"max_ms"`
	Mean   float64 `json:"mean_ms"`
	P50    float64 `json:"p50_ms"`
	P95    float64 `json:"p95_ms"`
	P99    float64 `json:"p99_ms"`
	StdDev float64 `json:"stddev_ms"`
}

// GetElectionStats returns statistics about won elections
func (m *Metrics) GetElectionStats() LatencyStats {
	m.electionMu.Lock()
	durations := make([]time.Duration, len(m.electionDuration))
	copy(durations, m.electionDuration)
	m.electionMu.Unlock()

	return computeStats(durations)
}

func computeStats(durations []time.Duration) LatencyStats {
	if len(durations) == 0 {
		return LatencyStats{}
	}

	sort.Slice(durations, func(i, j int) bool {
		return durations[i] < durations[j]
	})

	durationsMs := make([]float64, len(durations))
	var sum float64
	for i, dur := range durations {
		ms := float64(dur.Microseconds()) / 1000.0
		durationsMs[i] = ms
		sum += ms
	}

	mean := sum / float64(len(durationsMs))

	var variance float64
	for _, dur := range durationsMs {
		diff := dur - mean
		variance += diff * diff
	}

	return LatencyStats{
		Count:  len(durations),
		Min:    durationsMs[0],
		Max:    durationsMs[len(durationsMs)-1],
		Mean:   mean,
		P50:    percentile(durationsMs, 50),
		P95:    percentile(durationsMs, 95),
		P99:    percentile(durationsMs, 99),
		StdDev: math.Sqrt(variance / float64(len(durationsMs))),
	}
}

// percentile calculates the nth percentile from sorted data
func percentile(sorted []float64, p int) float64 {
	if len(sorted) == 0 {
		return 0
	}
	index := float64(p) / 100.0 * float64(len(sorted)-1)
	lower := int(math.Floor(index))
	upper := int(math.Ceil(index))
	if lower == upper {
		return sorted[lower]
	}
	// Linear interpolation
	weight := index - float64(lower)
	return sorted[lower]*(1-weight) + sorted[upper]*weight
}

// Report contains all collected metrics
type Report struct {
	ClusterSize int       `json:"cluster_size"`
	Duration    float64   `json:"duration_seconds"`
	StartTime   time.Time `json:"start_time"`
	EndTime     time.Time `json:"end_time"`

	RequestVoteCount uint64 `json:"request_vote_count"`
	HeartbeatCount   uint64 `json:"heartbeat_count"`

	ElectionCount uint64       `json:"election_count"`
	ElectionsWon  uint64       `json:"elections_won"`
	StepDowns     uint64       `json:"step_downs"`
	ElectionStats LatencyStats `json:"election_stats"`
}

// GetReport generates a report for a cluster of clusterSize nodes
func (m *Metrics) GetReport(clusterSize int) Report {
	m.startMu.RLock()
	start := m.startTime
	m.startMu.RUnlock()

	end := time.Now()
	return Report{
		ClusterSize:      clusterSize,
		Duration:         end.Sub(start).Seconds(),
		StartTime:        start,
		EndTime:          end,
		RequestVoteCount: m.requestVoteCount.Load(),
		HeartbeatCount:   m.heartbeatCount.Load(),
		ElectionCount:    m.electionCount.Load(),
		ElectionsWon:     m.electionsWon.Load(),
		StepDowns:        m.stepDownCount.Load(),
		ElectionStats:    m.GetElectionStats(),
	}
}

// PrintReport writes the report in a human-readable format
func (r *Report) PrintReport(w io.Writer) {
	rule := strings.Repeat("=", 48)
	fmt.Fprintln(w, rule)
	fmt.Fprintln(w, "RAFT ELECTION REPORT")
	fmt.Fprintln(w, rule)
	fmt.Fprintf(w, "Cluster Size: %d nodes\n", r.ClusterSize)
	fmt.Fprintf(w, "Duration: %.2f seconds\n", r.Duration)

	fmt.Fprintf(w, "\nRPC Counts:\n")
	fmt.Fprintf(w, "  RequestVote: %d\n", r.RequestVoteCount)
	fmt.Fprintf(w, "  Heartbeats: %d\n", r.HeartbeatCount)

	fmt.Fprintf(w, "\nLeader Elections:\n")
	fmt.Fprintf(w, "  Started: %d\n", r.ElectionCount)
	fmt.Fprintf(w, "  Won: %d\n", r.ElectionsWon)
	fmt.Fprintf(w, "  Step-downs: %d\n", r.StepDowns)
	if r.ElectionStats.Count > 0 {
		fmt.Fprintf(w, "  Avg Duration: %.3f ms\n", r.ElectionStats.Mean)
		fmt.Fprintf(w, "  P50 Duration: %.3f ms\n", r.ElectionStats.P50)
		fmt.Fprintf(w, "  P95 Duration: %.3f ms\n", r.ElectionStats.P95)
	}
	fmt.Fprintln(w, rule)
}

// SaveJSON saves the report to a JSON file
func (r *Report) SaveJSON(filename string) error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	return nil
}

// Reset clears all collected metrics (useful for running multiple simulations)
func (m *Metrics) Reset() {
	m.electionMu.Lock()
	m.electionDuration = make([]time.Duration, 0, 100)
	m.electionMu.Unlock()

	m.requestVoteCount.Store(0)
	m.heartbeatCount.Store(0)
	m.electionCount.Store(0)
	m.electionsWon.Store(0)
	m.stepDownCount.Store(0)

	m.startMu.Lock()
	m.startTime = time.Now()
	m.startMu.Unlock()
}
