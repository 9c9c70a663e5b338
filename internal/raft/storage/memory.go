package storage

import (
	"sync"

	"raft-election/internal/raft"
)

// MemoryStore is a StableStore that forgets everything when the process exits. It is the default for
// in-process clusters.
type MemoryStore struct {
	mu       sync.RWMutex
	term     uint64
	votedFor *raft.NodeID
	closed   bool
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (m *MemoryStore) GetCurrentTerm() (uint64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return 0, ErrClosed
	}
	return m.term, nil
}

func (m *MemoryStore) SetCurrentTerm(term uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	m.term = term
	return nil
}

func (m *MemoryStore) GetVotedFor() (*raft.NodeID, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrClosed
	}
	if m.votedFor == nil {
		return nil, nil
	}
	id := *m.votedFor
	return &id, nil
}

func (m *MemoryStore) SetVotedFor(candidateID *raft.NodeID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	if candidateID == nil {
		m.votedFor = nil
		return nil
	}
	id := *candidateID
	m.votedFor = &id
	return nil
}

func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}
