// Package quorum holds the majority arithmetic shared by the Raft election tally, the leader's heartbeat
// acknowledgements and the Paxos promise/accept phases.
package quorum

// Size returns the minimum number of members that form a majority of a group of n voting members, i.e.
// floor(n/2) + 1. A group of zero members has no quorum, so Size(0) is 1 and can never be reached.
func Size(n int) int {
	if n < 0 {
		n = 0
	}
	return n/2 + 1
}

// Reached reports whether votes, counted out of n voting members (including the caller itself), is strictly more
// than half of n.
func Reached(votes, n int) bool {
	if n <= 0 {
		return false
	}
	return votes >= Size(n)
}
