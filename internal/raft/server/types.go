package server

import (
	"time"

	"raft-election/internal/pubsub"
	"raft-election/internal/raft"
)

// A State is a custom type representing the state of a node at any given point: leader, follower, or candidate
type State uint64

// As Golang does not support Enums this is a common pattern for implementing one
const (
	Follower State = iota
	Candidate
	Leader
)

// String returns the string representation of the State
func (s State) String() string {
	switch s {
	case Leader:
		return "Leader"
	case Follower:
		return "Follower"
	case Candidate:
		return "Candidate"
	default:
		return "Unknown"
	}
}

const (
	// NodeShutDown event is sent when the node is stopped. The payload for this event is the node's raft.NodeID.
	NodeShutDown pubsub.EventType = iota
	// StateChanged is sent on every role transition, with a StateChangedPayload.
	StateChanged
	// ElectionStarted is sent when a node becomes Candidate for a new term, with an ElectionStartedPayload.
	ElectionStarted
	// LeaderElected is sent when a candidate has received enough votes to become leader, with a
	// LeaderElectedPayload.
	LeaderElected
)

// StateChangedPayload travels with StateChanged events
type StateChangedPayload struct {
	ID   raft.NodeID
	From State
	To   State
	// The term the node is in after the transition
	Term uint64
}

type ElectionStartedPayload struct {
	ID   raft.NodeID
	Term uint64
}

// LeaderElectedPayload travels with LeaderElected events so observers can check there is at most one leader per
// term.
type LeaderElectedPayload struct {
	ID    raft.NodeID
	Term  uint64
	Votes int
}

// Status is a read-only snapshot of a node
type Status struct {
	ID           raft.NodeID  `json:"id"`
	State        string       `json:"state"`
	Term         uint64       `json:"term"`
	VotedFor     *raft.NodeID `json:"voted_for,omitempty"`
	LeaderID     *raft.NodeID `json:"leader_id,omitempty"`
	CommitIndex  uint64       `json:"commit_index"`
	LastApplied  uint64       `json:"last_applied"`
	LastLogIndex uint64       `json:"last_log_index"`
	ClusterSize  int          `json:"cluster_size"`
}

// MetricsCollector is an optional interface for collecting performance metrics
type MetricsCollector interface {
	RecordRequestVote()
	RecordHeartbeat()
	RecordElection()
	RecordElectionWon()
	RecordStepDown()
	RecordElectionDuration(duration time.Duration)
}

type nopMetrics struct{}

func (nopMetrics) RecordRequestVote()                   {}
func (nopMetrics) RecordHeartbeat()                     {}
func (nopMetrics) RecordElection()                      {}
func (nopMetrics) RecordElectionWon()                   {}
func (nopMetrics) RecordStepDown()                      {}
func (nopMetrics) RecordElectionDuration(time.Duration) {}
