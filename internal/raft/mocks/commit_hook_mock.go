package mocks

import (
	"github.com/stretchr/testify/mock"

	"raft-election/internal/raft"
)

// MockCommitHook records OnQuorumAck calls through testify/mock
type MockCommitHook struct {
	mock.Mock
}

func (m *MockCommitHook) OnQuorumAck(term uint64, acked []raft.NodeID) {
	m.Called(term, acked)
}
