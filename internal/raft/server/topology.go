package server

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"raft-election/internal/raft"
)

// Topology is the membership of a cluster, built before any node starts. Once frozen it is immutable and hands each
// member a Transport that reaches every other member.
type Topology struct {
	mu     sync.Mutex
	peers  map[raft.NodeID]raft.Peer
	frozen bool
}

func NewTopology() *Topology {
	return &Topology{
		peers: make(map[raft.NodeID]raft.Peer),
	}
}

// Register adds the handle through which id is reached. Registering an id twice replaces its handle.
func (t *Topology) Register(id raft.NodeID, peer raft.Peer) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.frozen {
		return fmt.Errorf("register %v: %w", id, ErrTopologyFrozen)
	}
	t.peers[id] = peer
	return nil
}

// Add registers a local node under its own id
func (t *Topology) Add(n *Node) error {
	return t.Register(n.ID(), n)
}

// Freeze ends registration. Only a frozen topology hands out transports.
func (t *Topology) Freeze() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.frozen = true
}

// Members returns every registered id in ascending order
func (t *Topology) Members() []raft.NodeID {
	t.mu.Lock()
	defer t.mu.Unlock()
	return sortedIDs(t.peers, nil)
}

// TransportFor returns the transport id uses to reach the other members. The topology is frozen by the call if it
// was not already.
func (t *Topology) TransportFor(id raft.NodeID) (*LocalTransport, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.peers[id]; !ok {
		return nil, fmt.Errorf("transport for %v: %w", id, ErrUnknownPeer)
	}
	t.frozen = true

	peers := make(map[raft.NodeID]raft.Peer, len(t.peers)-1)
	for pid, p := range t.peers {
		if pid != id {
			peers[pid] = p
		}
	}
	self := id
	return &LocalTransport{
		peers: peers,
		order: sortedIDs(peers, &self),
	}, nil
}

func sortedIDs[V any](m map[raft.NodeID]V, except *raft.NodeID) []raft.NodeID {
	ids := make([]raft.NodeID, 0, len(m))
	for id := range m {
		if except != nil && id == *except {
			continue
		}
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// LocalTransport reaches peers living in the same process by calling their handlers directly. It is immutable.
type LocalTransport struct {
	peers map[raft.NodeID]raft.Peer
	order []raft.NodeID
}

func (l *LocalTransport) Peers() []raft.NodeID {
	out := make([]raft.NodeID, len(l.order))
	copy(out, l.order)
	return out
}

func (l *LocalTransport) RequestVote(ctx context.Context, peer raft.NodeID, req *raft.RequestVoteRequest) (*raft.RequestVoteResponse, error) {
	p, ok := l.peers[peer]
	if !ok {
		return nil, fmt.Errorf("request vote from %v: %w", peer, ErrUnknownPeer)
	}
	return p.RequestVote(ctx, req)
}

func (l *LocalTransport) AppendEntries(ctx context.Context, peer raft.NodeID, req *raft.AppendEntriesRequest) (*raft.AppendEntriesResponse, error) {
	p, ok := l.peers[peer]
	if !ok {
		return nil, fmt.Errorf("append entries to %v: %w", peer, ErrUnknownPeer)
	}
	return p.AppendEntries(ctx, req)
}

// isolatedTransport is the transport of a node that was never bound to a topology: a cluster of one
type isolatedTransport struct{}

func (isolatedTransport) Peers() []raft.NodeID { return nil }

func (isolatedTransport) RequestVote(_ context.Context, peer raft.NodeID, _ *raft.RequestVoteRequest) (*raft.RequestVoteResponse, error) {
	return nil, fmt.Errorf("request vote from %v: %w", peer, ErrUnknownPeer)
}

func (isolatedTransport) AppendEntries(_ context.Context, peer raft.NodeID, _ *raft.AppendEntriesRequest) (*raft.AppendEntriesResponse, error) {
	return nil, fmt.Errorf("append entries to %v: %w", peer, ErrUnknownPeer)
}
