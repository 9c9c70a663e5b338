package mocks

import (
	"context"
	"errors"
	"sync"
	"time"

	"raft-election/internal/raft"
)

// ErrDropped is returned for calls to a peer whose link has been cut
var ErrDropped = errors.New("mocks: message dropped")

// FaultyTransport wraps a raft.Transport and lets tests cut links or delay calls per peer
type FaultyTransport struct {
	inner raft.Transport

	mu      sync.RWMutex
	dropped map[raft.NodeID]bool
	delay   map[raft.NodeID]time.Duration
	calls   map[raft.NodeID]int
}

func NewFaultyTransport(inner raft.Transport) *FaultyTransport {
	return &FaultyTransport{
		inner:   inner,
		dropped: make(map[raft.NodeID]bool),
		delay:   make(map[raft.NodeID]time.Duration),
		calls:   make(map[raft.NodeID]int),
	}
}

// Drop makes every call to peer fail until Restore is called
func (f *FaultyTransport) Drop(peer raft.NodeID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dropped[peer] = true
}

func (f *FaultyTransport) Restore(peer raft.NodeID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.dropped, peer)
}

// Delay holds every call to peer for d before forwarding it. The wait honors ctx.
func (f *FaultyTransport) Delay(peer raft.NodeID, d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.delay[peer] = d
}

// Calls returns how many calls were attempted against peer, dropped ones included
func (f *FaultyTransport) Calls(peer raft.NodeID) int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.calls[peer]
}

func (f *FaultyTransport) Peers() []raft.NodeID {
	return f.inner.Peers()
}

func (f *FaultyTransport) RequestVote(ctx context.Context, peer raft.NodeID, req *raft.RequestVoteRequest) (*raft.RequestVoteResponse, error) {
	if err := f.before(ctx, peer); err != nil {
		return nil, err
	}
	return f.inner.RequestVote(ctx, peer, req)
}

func (f *FaultyTransport) AppendEntries(ctx context.Context, peer raft.NodeID, req *raft.AppendEntriesRequest) (*raft.AppendEntriesResponse, error) {
	if err := f.before(ctx, peer); err != nil {
		return nil, err
	}
	return f.inner.AppendEntries(ctx, peer, req)
}

func (f *FaultyTransport) before(ctx context.Context, peer raft.NodeID) error {
	f.mu.Lock()
	f.calls[peer]++
	dropped := f.dropped[peer]
	delay := f.delay[peer]
	f.mu.Unlock()

	if dropped {
		return ErrDropped
	}
	if delay > 0 {
		t := time.NewTimer(delay)
		defer t.Stop()
		select {
		case <-t.C:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}
