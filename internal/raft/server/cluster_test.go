package server

import (
	"context"
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"raft-election/internal/pubsub"
	"raft-election/internal/raft"
	"raft-election/internal/raft/mocks"
)

func newTestCluster(t *testing.T, size int, ps *pubsub.PubSubClient) (*Cluster, *clock.Mock) {
	t.Helper()

	mockClock := clock.NewMock()
	c, err := NewCluster(size, DefaultConfig(), func(id raft.NodeID) []Option {
		return []Option{
			WithClock(mockClock),
			WithRand(rand.New(rand.NewSource(int64(id) * 7919))),
			WithLogger(zap.NewNop()),
			WithPubSub(ps),
		}
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Stop() })
	return c, mockClock
}

// converged reports whether there is a leader and every node is its follower in the same term
func converged(c *Cluster) bool {
	leader := c.Leader()
	if leader == nil {
		return false
	}
	term := leader.CurrentTerm()
	for _, n := range c.Nodes() {
		if n == leader {
			continue
		}
		s := n.Status()
		if s.State != Follower.String() || s.Term != term || s.LeaderID == nil || *s.LeaderID != leader.ID() {
			return false
		}
	}
	return true
}

func TestCluster_ElectsSingleLeader(t *testing.T) {
	for _, size := range []int{3, 5} {
		t.Run(fmt.Sprintf("nodes=%d", size), func(t *testing.T) {
			ps := pubsub.NewPubSub()
			defer ps.GracefulShutdown()
			monitor := NewMonitor(ps, zaptest.NewLogger(t))
			defer monitor.Close()

			c, mockClock := newTestCluster(t, size, ps)
			require.NoError(t, c.Start(context.Background()))

			require.True(t, advanceUntil(t, mockClock, 10*time.Millisecond, 10*time.Second, func() bool { return converged(c) }),
				"cluster of %d did not converge", size)

			leader := c.Leader()
			leaders := 0
			for _, n := range c.Nodes() {
				if n.State() == Leader {
					leaders++
				}
			}
			assert.Equal(t, 1, leaders)

			// Heartbeats keep the leader in place
			term := leader.CurrentTerm()
			for i := 0; i < 100; i++ {
				mockClock.Add(10 * time.Millisecond)
			}
			assert.Same(t, leader, c.Leader())
			assert.Equal(t, term, leader.CurrentTerm())

			assert.Eventually(t, func() bool { return len(monitor.Leaders()) > 0 }, waitFor, tick)
			assert.Empty(t, monitor.Violations())
		})
	}
}

func TestCluster_ReelectsWhenLeaderIsPartitioned(t *testing.T) {
	c, mockClock := newTestCluster(t, 5, nil)

	faulty := make(map[raft.NodeID]*mocks.FaultyTransport)
	require.NoError(t, c.BindTransports(func(id raft.NodeID, tr raft.Transport) raft.Transport {
		faulty[id] = mocks.NewFaultyTransport(tr)
		return faulty[id]
	}))
	require.NoError(t, c.Start(context.Background()))

	require.True(t, advanceUntil(t, mockClock, 10*time.Millisecond, 10*time.Second, func() bool { return converged(c) }))
	old := c.Leader()
	oldTerm := old.CurrentTerm()

	// Cut the leader off in both directions
	for id, f := range faulty {
		if id == old.ID() {
			for _, peer := range f.Peers() {
				f.Drop(peer)
			}
		} else {
			f.Drop(old.ID())
		}
	}

	require.True(t, advanceUntil(t, mockClock, 10*time.Millisecond, 10*time.Second, func() bool {
		l := c.Leader()
		return l != nil && l != old
	}))

	newLeader := c.Leader()
	assert.Greater(t, newLeader.CurrentTerm(), oldTerm)

	// Once healed, the old leader hears of the newer term and steps down
	for _, f := range faulty {
		for _, peer := range f.Peers() {
			f.Restore(peer)
		}
	}
	assert.True(t, advanceUntil(t, mockClock, 10*time.Millisecond, 10*time.Second, func() bool {
		return old.State() == Follower && converged(c)
	}))
}

func TestNewCluster_Invalid(t *testing.T) {
	_, err := NewCluster(0, DefaultConfig(), nil)
	assert.ErrorIs(t, err, ErrInvalidConfig)

	cfg := DefaultConfig()
	cfg.HeartbeatInterval = 0
	_, err = NewCluster(3, cfg, nil)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestCluster_Accessors(t *testing.T) {
	c, _ := newTestCluster(t, 3, nil)

	nodes := c.Nodes()
	require.Len(t, nodes, 3)
	for i, n := range nodes {
		assert.Equal(t, raft.NodeID(i+1), n.ID())
		assert.Equal(t, 3, n.Status().ClusterSize)
	}
	assert.Same(t, nodes[1], c.Node(2))
	assert.Nil(t, c.Node(9))
	assert.Nil(t, c.Leader())

	nodes[0].StartElection()
	assert.Same(t, nodes[0], c.Leader())
}
