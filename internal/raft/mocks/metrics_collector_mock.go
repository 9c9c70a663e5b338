package mocks

import (
	"sync"
	"time"
)

// MockMetricsCollector is a mock implementation of server.MetricsCollector for testing
type MockMetricsCollector struct {
	mu                sync.RWMutex
	RequestVoteCount  int
	HeartbeatCount    int
	ElectionCount     int
	ElectionsWonCount int
	StepDownCount     int
	ElectionDurations []time.Duration
}

// NewMockMetricsCollector creates a new mock metrics collector
func NewMockMetricsCollector() *MockMetricsCollector {
	return &MockMetricsCollector{
		ElectionDurations: make([]time.Duration, 0),
	}
}

func (m *MockMetricsCollector) RecordRequestVote() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.RequestVoteCount++
}

func (m *MockMetricsCollector) RecordHeartbeat() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.HeartbeatCount++
}

func (m *MockMetricsCollector) RecordElection() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ElectionCount++
}

func (m *MockMetricsCollector) RecordElectionWon() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ElectionsWonCount++
}

func (m *MockMetricsCollector) RecordStepDown() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.StepDownCount++
}

func (m *MockMetricsCollector) RecordElectionDuration(duration time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ElectionDurations = append(m.ElectionDurations, duration)
}

// Snapshot returns a copy of the counters that is safe to inspect while nodes are still recording
func (m *MockMetricsCollector) Snapshot() MockMetricsCollector {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return MockMetricsCollector{
		RequestVoteCount:  m.RequestVoteCount,
		HeartbeatCount:    m.HeartbeatCount,
		ElectionCount:     m.ElectionCount,
		ElectionsWonCount: m.ElectionsWonCount,
		StepDownCount:     m.StepDownCount,
		ElectionDurations: append([]time.Duration(nil), m.ElectionDurations...),
	}
}

// Reset clears all recorded metrics
func (m *MockMetricsCollector) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.RequestVoteCount = 0
	m.HeartbeatCount = 0
	m.ElectionCount = 0
	m.ElectionsWonCount = 0
	m.StepDownCount = 0
	m.ElectionDurations = make([]time.Duration, 0)
}
