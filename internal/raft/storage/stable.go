package storage

import "raft-election/internal/raft"

// StableStore holds the state a node must not forget across restarts: the latest term it has seen and whom it
// voted for in that term ("Updated on stable storage before responding to RPCs", Figure 2 of the
// [Raft paper](https://raft.github.io/raft.pdf)).
type StableStore interface {
	// GetCurrentTerm returns the persisted term, 0 if none was ever stored
	GetCurrentTerm() (uint64, error)
	SetCurrentTerm(term uint64) error

	// GetVotedFor returns the candidate voted for in the current term, nil if no vote was cast
	GetVotedFor() (*raft.NodeID, error)
	// SetVotedFor persists the vote; nil clears it
	SetVotedFor(candidateID *raft.NodeID) error

	Close() error
}
