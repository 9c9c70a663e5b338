package mocks

import (
	"sync"

	"raft-election/internal/raft"
)

// MockStableStore is a mock implementation of storage.StableStore for testing
type MockStableStore struct {
	mu       sync.RWMutex
	term     uint64
	votedFor *raft.NodeID

	// Error injection for testing
	GetCurrentTermError error
	SetCurrentTermError error
	GetVotedForError    error
	SetVotedForError    error
	CloseError          error

	SetCurrentTermCalls int
	SetVotedForCalls    int
	Closed              bool
}

// NewMockStableStore creates a new mock stable store
func NewMockStableStore() *MockStableStore {
	return &MockStableStore{}
}

func (m *MockStableStore) GetCurrentTerm() (uint64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.GetCurrentTermError != nil {
		return 0, m.GetCurrentTermError
	}
	return m.term, nil
}

func (m *MockStableStore) SetCurrentTerm(term uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.SetCurrentTermCalls++
	if m.SetCurrentTermError != nil {
		return m.SetCurrentTermError
	}
	m.term = term
	return nil
}

func (m *MockStableStore) GetVotedFor() (*raft.NodeID, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.GetVotedForError != nil {
		return nil, m.GetVotedForError
	}
	if m.votedFor == nil {
		return nil, nil
	}
	v := *m.votedFor
	return &v, nil
}

func (m *MockStableStore) SetVotedFor(candidateID *raft.NodeID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.SetVotedForCalls++
	if m.SetVotedForError != nil {
		return m.SetVotedForError
	}
	if candidateID == nil {
		m.votedFor = nil
		return nil
	}
	v := *candidateID
	m.votedFor = &v
	return nil
}

func (m *MockStableStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Closed = true
	return m.CloseError
}

// SetFailures changes the injected errors while nodes may be using the store
func (m *MockStableStore) SetFailures(setTerm, setVote error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.SetCurrentTermError = setTerm
	m.SetVotedForError = setVote
}
