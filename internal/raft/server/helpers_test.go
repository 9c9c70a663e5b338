package server

import (
	"context"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/require"

	"raft-election/internal/raft"
)

// fixedConfig makes every election timeout exactly 150ms so tests can reason about when timers fire
func fixedConfig() Config {
	cfg := DefaultConfig()
	cfg.ElectionTimeoutMin = 150 * time.Millisecond
	cfg.ElectionTimeoutMax = 150*time.Millisecond + 1
	return cfg
}

func newTestNode(t *testing.T, id raft.NodeID, cfg Config, opts ...Option) (*Node, *clock.Mock) {
	t.Helper()

	mockClock := clock.NewMock()
	opts = append([]Option{
		WithClock(mockClock),
		WithRand(rand.New(rand.NewSource(int64(id)))),
	}, opts...)

	n, err := New(id, cfg, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = n.Stop() })
	return n, mockClock
}

// stubTransport answers on behalf of fake peers. Unless overridden, every peer grants its vote and accepts
// heartbeats, echoing the request term.
type stubTransport struct {
	peers []raft.NodeID

	mu            sync.Mutex
	voteFn        func(peer raft.NodeID, req *raft.RequestVoteRequest) (*raft.RequestVoteResponse, error)
	appendFn      func(peer raft.NodeID, req *raft.AppendEntriesRequest) (*raft.AppendEntriesResponse, error)
	voteCalls     int
	appendCalls   int
	appendReqs    []raft.AppendEntriesRequest
	lastVoteTerms []uint64
}

func newStubTransport(peers ...raft.NodeID) *stubTransport {
	return &stubTransport{peers: peers}
}

func (s *stubTransport) Peers() []raft.NodeID {
	return append([]raft.NodeID(nil), s.peers...)
}

func (s *stubTransport) RequestVote(_ context.Context, peer raft.NodeID, req *raft.RequestVoteRequest) (*raft.RequestVoteResponse, error) {
	s.mu.Lock()
	s.voteCalls++
	s.lastVoteTerms = append(s.lastVoteTerms, req.Term)
	fn := s.voteFn
	s.mu.Unlock()

	if fn != nil {
		return fn(peer, req)
	}
	return &raft.RequestVoteResponse{Term: req.Term, VoteGranted: true}, nil
}

func (s *stubTransport) AppendEntries(_ context.Context, peer raft.NodeID, req *raft.AppendEntriesRequest) (*raft.AppendEntriesResponse, error) {
	s.mu.Lock()
	s.appendCalls++
	s.appendReqs = append(s.appendReqs, *req)
	fn := s.appendFn
	s.mu.Unlock()

	if fn != nil {
		return fn(peer, req)
	}
	return &raft.AppendEntriesResponse{Term: req.Term, Success: true}, nil
}

func (s *stubTransport) setVoteFn(fn func(peer raft.NodeID, req *raft.RequestVoteRequest) (*raft.RequestVoteResponse, error)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.voteFn = fn
}

func (s *stubTransport) setAppendFn(fn func(peer raft.NodeID, req *raft.AppendEntriesRequest) (*raft.AppendEntriesResponse, error)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.appendFn = fn
}

func (s *stubTransport) heartbeats() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.appendCalls
}

func (s *stubTransport) votes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.voteCalls
}

func denyAll(_ raft.NodeID, req *raft.RequestVoteRequest) (*raft.RequestVoteResponse, error) {
	return &raft.RequestVoteResponse{Term: req.Term, VoteGranted: false}, nil
}

// advanceUntil moves the mock clock forward in steps until cond holds or max has elapsed
func advanceUntil(t *testing.T, c *clock.Mock, step, max time.Duration, cond func() bool) bool {
	t.Helper()
	for elapsed := time.Duration(0); elapsed <= max; elapsed += step {
		if cond() {
			return true
		}
		c.Add(step)
	}
	return cond()
}

const (
	waitFor = 2 * time.Second
	tick    = 5 * time.Millisecond
)
