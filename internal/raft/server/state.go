package server

import (
	"sync"

	"raft-election/internal/raft"
)

// nodeState is container for different state variables as defined in Figure 2 from the
// [Raft paper](https://raft.github.io/raft.pdf).
// Every field is guarded by mu. Methods with the Locked suffix expect the caller to hold it.
type nodeState struct {
	// Protects all fields below
	mu sync.Mutex

	// The state of the node as per Section 5.1 from the [Raft paper](https://raft.github.io/raft.pdf). When a node
	// initially starts it is a Follower as per Section 5.2 from the paper.
	state State
	// The latest term the node has seen. It is a [logical clock](https://dl.acm.org/doi/pdf/10.1145/359545.359563)
	// used to detect obsolete info, such as stale leaders. It is initialized to 0 on first boot of the cluster, and
	// increases monotonically, as per Section 5.1 from the [Raft paper](https://raft.github.io/raft.pdf)
	currentTerm uint64
	// The ID of the Candidate that this node has voted for in the currentTerm. It is nil at the beginning of a new
	// term, as no votes are issued.
	votedFor *raft.NodeID
	// A Log is a collection of raft.LogEntry objects. Elections only read its tail.
	log *raft.Log
	// Index of the highest log entry known to be committed. Advanced by a replication layer, never by elections.
	commitIndex uint64
	// Index of the highest log entry applied to a state machine
	lastApplied uint64
	// The last node that sent us a valid AppendEntries in currentTerm
	leaderID *raft.NodeID
}

// setTermLocked adopts term if it is newer. Observing a newer term invalidates the vote and the leader hint, which
// were only meaningful for the previous term.
func (s *nodeState) setTermLocked(term uint64) bool {
	if term <= s.currentTerm {
		return false
	}
	s.currentTerm = term
	s.votedFor = nil
	s.leaderID = nil
	return true
}

func (s *nodeState) statusLocked() Status {
	return Status{
		State:        s.state.String(),
		Term:         s.currentTerm,
		VotedFor:     copyID(s.votedFor),
		LeaderID:     copyID(s.leaderID),
		CommitIndex:  s.commitIndex,
		LastApplied:  s.lastApplied,
		LastLogIndex: s.log.LastIndex(),
	}
}

func copyID(id *raft.NodeID) *raft.NodeID {
	if id == nil {
		return nil
	}
	v := *id
	return &v
}

func sameID(a, b *raft.NodeID) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
