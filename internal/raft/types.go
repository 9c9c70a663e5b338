package raft

import "strconv"

// NodeID is the unique identifier of a node in the cluster
type NodeID uint64

// String returns the decimal form of the id, which is also how it appears in gRPC targets ("raft:///3")
func (id NodeID) String() string {
	return strconv.FormatUint(uint64(id), 10)
}

// ParseNodeID parses the decimal form produced by NodeID.String
func ParseNodeID(s string) (NodeID, error) {
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, err
	}
	return NodeID(v), nil
}

// RequestVoteRequest is sent by a Candidate to gather votes, as per Section 5.2 from the
// [Raft paper](https://raft.github.io/raft.pdf)
type RequestVoteRequest struct {
	// The candidate's term
	Term uint64 `json:"term"`
	// The candidate requesting the vote
	CandidateID NodeID `json:"candidate_id"`
	// Index of the candidate's last log entry (0 if the log is empty)
	LastLogIndex uint64 `json:"last_log_index"`
	// Term of the candidate's last log entry (0 if the log is empty)
	LastLogTerm uint64 `json:"last_log_term"`
}

// RequestVoteResponse is the reply to a RequestVoteRequest
type RequestVoteResponse struct {
	// The currentTerm of the voter, for the candidate to update itself
	Term uint64 `json:"term"`
	// True means the candidate received the vote
	VoteGranted bool `json:"vote_granted"`
}

// AppendEntriesRequest is sent by the Leader. With no Entries it is a heartbeat (Section 5.2).
type AppendEntriesRequest struct {
	Term         uint64     `json:"term"`
	LeaderID     NodeID     `json:"leader_id"`
	PrevLogIndex uint64     `json:"prev_log_index"`
	PrevLogTerm  uint64     `json:"prev_log_term"`
	Entries      []LogEntry `json:"entries,omitempty"`
	LeaderCommit uint64     `json:"leader_commit"`
}

// AppendEntriesResponse is the reply to an AppendEntriesRequest
type AppendEntriesResponse struct {
	// The currentTerm of the follower, for the leader to update itself
	Term uint64 `json:"term"`
	// True if the follower accepted the leader for Term
	Success bool `json:"success"`
}
