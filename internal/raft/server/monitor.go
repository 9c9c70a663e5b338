package server

import (
	"sync"

	"go.uber.org/zap"

	"raft-election/internal/pubsub"
	"raft-election/internal/raft"
)

// Monitor watches the events published by every node of a cluster on a shared PubSubClient. It keeps the leader
// of each term and flags a term that saw two different leaders, which would break Election Safety (Figure 3 from
// the [Raft paper](https://raft.github.io/raft.pdf)).
type Monitor struct {
	leaderElectedChan chan *pubsub.Event[LeaderElectedPayload]
	stateChangedChan  chan *pubsub.Event[StateChangedPayload]
	doneChan          chan struct{}
	wg                sync.WaitGroup

	pubSub *pubsub.PubSubClient
	subs   map[pubsub.EventType]pubsub.SubscriberID
	logger *zap.Logger

	mu          sync.Mutex
	leaders     map[uint64]raft.NodeID
	violations  []uint64
	transitions int
}

func NewMonitor(ps *pubsub.PubSubClient, logger *zap.Logger) *Monitor {
	m := &Monitor{
		leaderElectedChan: make(chan *pubsub.Event[LeaderElectedPayload], 64),
		stateChangedChan:  make(chan *pubsub.Event[StateChangedPayload], 256),
		doneChan:          make(chan struct{}),
		pubSub:            ps,
		subs:              make(map[pubsub.EventType]pubsub.SubscriberID),
		logger:            logger,
		leaders:           make(map[uint64]raft.NodeID),
	}

	// Leader events must never be dropped, a missed one would hide a violation
	m.subs[LeaderElected] = pubsub.Subscribe(ps, LeaderElected, m.leaderElectedChan, pubsub.SubscriptionOptions{IsBlocking: true})
	m.subs[StateChanged] = pubsub.Subscribe(ps, StateChanged, m.stateChangedChan, pubsub.SubscriptionOptions{IsBlocking: false})

	m.wg.Add(1)
	go m.run()
	return m
}

func (m *Monitor) run() {
	defer m.wg.Done()
	for {
		select {
		case ev, ok := <-m.leaderElectedChan:
			if !ok {
				return
			}
			m.recordLeader(ev.Payload)
		case ev, ok := <-m.stateChangedChan:
			if !ok {
				return
			}
			m.mu.Lock()
			m.transitions++
			m.mu.Unlock()
			m.logger.Debug("State changed",
				zap.Stringer("node_id", ev.Payload.ID),
				zap.Stringer("from", ev.Payload.From),
				zap.Stringer("to", ev.Payload.To),
				zap.Uint64("term", ev.Payload.Term))
		case <-m.doneChan:
			return
		}
	}
}

func (m *Monitor) recordLeader(p LeaderElectedPayload) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if prev, ok := m.leaders[p.Term]; ok && prev != p.ID {
		m.violations = append(m.violations, p.Term)
		m.logger.Error("Two leaders elected in the same term",
			zap.Uint64("term", p.Term),
			zap.Stringer("first", prev),
			zap.Stringer("second", p.ID))
		return
	}
	m.leaders[p.Term] = p.ID
	m.logger.Info("Leader elected", zap.Stringer("leader_id", p.ID), zap.Uint64("term", p.Term), zap.Int("votes", p.Votes))
}

// Leaders returns the leader of every term that elected one
func (m *Monitor) Leaders() map[uint64]raft.NodeID {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make(map[uint64]raft.NodeID, len(m.leaders))
	for term, id := range m.leaders {
		out[term] = id
	}
	return out
}

// Violations returns the terms in which more than one leader was elected
func (m *Monitor) Violations() []uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]uint64(nil), m.violations...)
}

// Transitions returns how many role changes were observed. Events dropped by a full buffer are not counted.
func (m *Monitor) Transitions() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.transitions
}

// Close unsubscribes and waits for the monitor goroutine to exit
func (m *Monitor) Close() {
	for eventType, id := range m.subs {
		m.pubSub.Unsubscribe(eventType, id)
	}
	close(m.doneChan)
	m.wg.Wait()
}
