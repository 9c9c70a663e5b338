package raft

import "sync"

// LogEntry is a single entry of the replicated log. Its position in the Log is its Index (1-based).
type LogEntry struct {
	Index uint64 `json:"index"`
	Term  uint64 `json:"term"`
	Data  []byte `json:"data,omitempty"`
}

// Log is an in-memory ordered sequence of LogEntry objects. The election core only ever reads its tail to
// decide whether a candidate's log is at least as up-to-date as the voter's (Section 5.4.1); appending real
// entries is the job of a replication layer built on top of CommitHook.
type Log struct {
	mu      sync.RWMutex
	entries []LogEntry
}

// NewLog returns an empty log
func NewLog() *Log {
	return &Log{}
}

// Append adds entries to the end of the log, assigning consecutive indexes
func (l *Log) Append(entries ...LogEntry) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, e := range entries {
		e.Index = uint64(len(l.entries)) + 1
		l.entries = append(l.entries, e)
	}
}

// LastIndex returns the index of the last entry, or 0 if the log is empty
func (l *Log) LastIndex() uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return uint64(len(l.entries))
}

// LastTerm returns the term of the last entry, or 0 if the log is empty
func (l *Log) LastTerm() uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if len(l.entries) == 0 {
		return 0
	}
	return l.entries[len(l.entries)-1].Term
}

// Len returns the number of entries in the log
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

// IsUpToDate reports whether a log ending at (lastIndex, lastTerm) is at least as up-to-date as this one.
// Section 5.4.1: the log with the later last term wins; with equal last terms the longer log wins.
func (l *Log) IsUpToDate(lastIndex, lastTerm uint64) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var localIndex, localTerm uint64
	if n := len(l.entries); n > 0 {
		localIndex = uint64(n)
		localTerm = l.entries[n-1].Term
	}

	return lastTerm > localTerm || (lastTerm == localTerm && lastIndex >= localIndex)
}
