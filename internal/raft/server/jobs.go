package server

import (
	"context"

	"go.uber.org/zap"

	"raft-election/internal/quorum"
	"raft-election/internal/raft"
)

/*
In this file we define the background jobs that run in a Node. Each job owns a stop channel that is closed by the
transition that ends it, in order to exit promptly and prevent go routine leakage.
See: https://medium.com/@srajsonu/understanding-and-preventing-goroutine-leaks-in-go-623cac542954
*/

// heartbeatJob is the Leader's periodic broadcast of empty AppendEntries RPCs (Section 5.2). It lives for exactly
// one leadership term.
type heartbeatJob struct {
	term   uint64
	stopCh chan struct{}

	// ctx bounds the peer calls of the job. It is the node context at the time the job started.
	ctx context.Context
}

func (h *heartbeatJob) stopped() bool {
	select {
	case <-h.stopCh:
		return true
	case <-h.ctx.Done():
		return true
	default:
		return false
	}
}

// startHeartbeatLocked launches the heartbeat job for the current term. The first broadcast happens immediately.
func (n *Node) startHeartbeatLocked() {
	job := &heartbeatJob{
		term:   n.currentTerm,
		ctx:    n.ctx,
		stopCh: make(chan struct{}),
	}
	n.heartbeat = job

	n.jobs.Add(1)
	go n.runHeartbeatJob(job)
}

// stopHeartbeatLocked ends the heartbeat job, if any. It does not wait for the goroutine, which re-validates its
// term under the lock before every round and so cannot act on behalf of a stale leadership.
func (n *Node) stopHeartbeatLocked() {
	if n.heartbeat == nil {
		return
	}
	close(n.heartbeat.stopCh)
	n.heartbeat = nil
}

// runHeartbeatJob broadcasts every HeartbeatInterval, measured from the start of the previous round. A round that
// overruns the interval is followed by the next one right away.
func (n *Node) runHeartbeatJob(job *heartbeatJob) {
	defer n.jobs.Done()

	logger := n.logger.With(zap.Uint64("term", job.term))
	logger.Debug("Started heartbeat job")
	defer logger.Debug("Stopped heartbeat job")

	for {
		next := n.clock.Now().Add(n.cfg.HeartbeatInterval)
		if !n.broadcastHeartbeat(job) {
			return
		}

		wait := next.Sub(n.clock.Now())
		if wait <= 0 {
			continue
		}
		timer := n.clock.Timer(wait)
		select {
		case <-timer.C:
		case <-job.stopCh:
			timer.Stop()
			return
		case <-job.ctx.Done():
			timer.Stop()
			return
		}
	}
}

// broadcastHeartbeat sends one round of heartbeats to every peer, one after the other. It returns false once the
// job should exit.
func (n *Node) broadcastHeartbeat(job *heartbeatJob) bool {
	n.mu.Lock()
	if job.stopped() || n.state != Leader || n.currentTerm != job.term {
		n.mu.Unlock()
		return false
	}
	req := &raft.AppendEntriesRequest{
		Term:         job.term,
		LeaderID:     n.id,
		PrevLogIndex: n.log.LastIndex(),
		PrevLogTerm:  n.log.LastTerm(),
		LeaderCommit: n.commitIndex,
	}
	peers := n.transport.Peers()
	n.mu.Unlock()

	acked := []raft.NodeID{n.id}
	for _, peer := range peers {
		if job.stopped() {
			return false
		}

		n.metrics.RecordHeartbeat()
		resp, err := n.transport.AppendEntries(SetCallerID(job.ctx, n.id), peer, req)
		if err != nil {
			n.logger.Debug("Heartbeat missed", zap.Stringer("peer", peer), zap.Error(err))
			continue
		}

		if resp.Term > job.term {
			n.observeTerm(resp.Term, "heartbeat response")
			return false
		}
		if resp.Success {
			acked = append(acked, peer)
		}
	}

	if quorum.Reached(len(acked), n.clusterSize) {
		n.mu.Lock()
		current := !job.stopped() && n.state == Leader && n.currentTerm == job.term
		n.mu.Unlock()
		if current {
			n.commitHook.OnQuorumAck(job.term, acked)
		}
	}
	return true
}

// observeTerm steps the node down if term is newer than its own. Used when a newer term is learned from a response
// rather than a request.
func (n *Node) observeTerm(term uint64, source string) {
	n.mu.Lock()
	defer n.unlock()

	if n.stopped || term <= n.currentTerm {
		return
	}
	n.logger.Info("Observed newer term", zap.Uint64("term", term), zap.String("source", source))
	n.stepDownLocked(term)
	if err := n.persistLocked(); err != nil {
		n.logger.Warn("Failed to persist term", zap.Error(err))
	}
}
