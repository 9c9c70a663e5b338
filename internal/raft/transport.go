package raft

import "context"

// Peer is the handle through which a node is addressed by others. A local *server.Node satisfies it directly;
// remote nodes are reached through a Transport.
type Peer interface {
	RequestVote(ctx context.Context, req *RequestVoteRequest) (*RequestVoteResponse, error)
	AppendEntries(ctx context.Context, req *AppendEntriesRequest) (*AppendEntriesResponse, error)
}

// Transport is the capability a node is handed to reach its peers. Implementations are built from a fixed
// topology and must be safe for concurrent use.
type Transport interface {
	// Peers returns the ids of every other voting member, in a stable order
	Peers() []NodeID
	RequestVote(ctx context.Context, peer NodeID, req *RequestVoteRequest) (*RequestVoteResponse, error)
	AppendEntries(ctx context.Context, peer NodeID, req *AppendEntriesRequest) (*AppendEntriesResponse, error)
}

// CommitHook is the extension point a replication layer plugs into. The Leader calls OnQuorumAck after a round
// of AppendEntries for term was accepted by a majority of the cluster; acked includes the leader itself.
type CommitHook interface {
	OnQuorumAck(term uint64, acked []NodeID)
}

// NopCommitHook is the default CommitHook; it ignores every acknowledgement
type NopCommitHook struct{}

func (NopCommitHook) OnQuorumAck(uint64, []NodeID) {}
