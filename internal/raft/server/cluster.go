package server

import (
	"context"
	"fmt"

	"go.uber.org/multierr"

	"raft-election/internal/raft"
)

// Cluster is a set of in-process nodes wired over LocalTransports. It is the simulation harness used by the sim
// command and by tests.
type Cluster struct {
	nodes    []*Node
	topology *Topology
}

// NewCluster builds n nodes with ids 1..n and a full-mesh topology. nodeOpts, if not nil, returns the options of
// each node; the transport is always the one built from the topology.
func NewCluster(n int, cfg Config, nodeOpts func(id raft.NodeID) []Option) (*Cluster, error) {
	if n <= 0 {
		return nil, fmt.Errorf("%w: cluster needs at least one node, got %d", ErrInvalidConfig, n)
	}

	c := &Cluster{
		nodes:    make([]*Node, 0, n),
		topology: NewTopology(),
	}

	for i := 1; i <= n; i++ {
		id := raft.NodeID(i)

		var opts []Option
		if nodeOpts != nil {
			opts = nodeOpts(id)
		}

		node, err := New(id, cfg, opts...)
		if err != nil {
			return nil, multierr.Append(fmt.Errorf("create node %v: %w", id, err), c.closeAll())
		}
		c.nodes = append(c.nodes, node)

		if err := c.topology.Add(node); err != nil {
			return nil, multierr.Append(err, c.closeAll())
		}
	}
	c.topology.Freeze()

	for _, node := range c.nodes {
		t, err := c.topology.TransportFor(node.ID())
		if err != nil {
			return nil, multierr.Append(err, c.closeAll())
		}
		if err := node.Bind(t); err != nil {
			return nil, multierr.Append(err, c.closeAll())
		}
	}

	return c, nil
}

// BindTransports rewires every node through wrap, which receives the topology transport of each node. It must be
// called before Start; tests use it to inject faults.
func (c *Cluster) BindTransports(wrap func(id raft.NodeID, t raft.Transport) raft.Transport) error {
	for _, node := range c.nodes {
		t, err := c.topology.TransportFor(node.ID())
		if err != nil {
			return err
		}
		if err := node.Bind(wrap(node.ID(), t)); err != nil {
			return err
		}
	}
	return nil
}

func (c *Cluster) Start(ctx context.Context) error {
	for _, node := range c.nodes {
		if err := node.Start(ctx); err != nil {
			return fmt.Errorf("start node %v: %w", node.ID(), err)
		}
	}
	return nil
}

// Stop stops every node and returns all their errors combined
func (c *Cluster) Stop() error {
	return c.closeAll()
}

func (c *Cluster) closeAll() error {
	var err error
	for _, node := range c.nodes {
		err = multierr.Append(err, node.Stop())
	}
	return err
}

// Nodes returns the members ordered by id
func (c *Cluster) Nodes() []*Node {
	out := make([]*Node, len(c.nodes))
	copy(out, c.nodes)
	return out
}

// Node returns the member with the given id, or nil
func (c *Cluster) Node(id raft.NodeID) *Node {
	for _, n := range c.nodes {
		if n.ID() == id {
			return n
		}
	}
	return nil
}

// Leader returns the Leader with the highest term, or nil if no node is Leader. Nodes of an older term may still
// believe they lead until they hear from the newer leader.
func (c *Cluster) Leader() *Node {
	var leader *Node
	var leaderTerm uint64
	for _, n := range c.nodes {
		s := n.Status()
		if s.State == Leader.String() && (leader == nil || s.Term > leaderTerm) {
			leader, leaderTerm = n, s.Term
		}
	}
	return leader
}
