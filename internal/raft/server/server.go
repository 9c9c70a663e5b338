package server

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"raft-election/internal/pubsub"
	"raft-election/internal/quorum"
	"raft-election/internal/raft"
	"raft-election/internal/raft/storage"
)

// Node is a single member of a Raft cluster running leader election and heartbeats. It satisfies raft.Peer, so
// in-process peers call its RPC handlers directly and GRPCServer exposes them over the network.
type Node struct {
	nodeState

	// The ID of the node in the cluster
	id  raft.NodeID
	cfg Config
	// Number of voting members, self included, used for every quorum decision
	clusterSize int
	// transport is the capability used to reach the peers. It is fixed once the node starts.
	transport  raft.Transport
	commitHook raft.CommitHook
	stable     storage.StableStore
	// What was last written to stable, so unchanged values are not rewritten on every RPC
	persistedTerm uint64
	persistedVote *raft.NodeID

	clock  clock.Clock
	rand   *rand.Rand
	logger *zap.Logger
	// pubSub is used to send events about the state of the node to subscribed listeners
	pubSub  *pubsub.PubSubClient
	metrics MetricsCollector

	timer             electionTimer
	heartbeat         *heartbeatJob
	electionStartedAt time.Time

	started bool
	stopped bool
	// ctx bounds every peer call made by the node. It is cancelled by Stop.
	ctx    context.Context
	cancel context.CancelFunc
	// Tracks background jobs so Stop can wait for them
	jobs sync.WaitGroup

	// Events produced while holding mu, published by unlock once it is released
	pending []func()
}

// Option configures a Node
type Option func(*Node)

func WithLogger(logger *zap.Logger) Option {
	return func(n *Node) {
		n.logger = logger
	}
}

// WithClock sets the clock driving the election timer and the heartbeat ticker. Tests pass clock.NewMock().
func WithClock(c clock.Clock) Option {
	return func(n *Node) {
		n.clock = c
	}
}

// WithRand sets the source of randomized election timeouts. It is only used under the node lock.
func WithRand(r *rand.Rand) Option {
	return func(n *Node) {
		n.rand = r
	}
}

func WithPubSub(p *pubsub.PubSubClient) Option {
	return func(n *Node) {
		n.pubSub = p
	}
}

func WithMetrics(m MetricsCollector) Option {
	return func(n *Node) {
		n.metrics = m
	}
}

// WithStableStore sets where the current term and vote are persisted. The node closes it on Stop.
func WithStableStore(s storage.StableStore) Option {
	return func(n *Node) {
		n.stable = s
	}
}

func WithCommitHook(h raft.CommitHook) Option {
	return func(n *Node) {
		n.commitHook = h
	}
}

// WithTransport hands the node its peers at construction time. See also Bind.
func WithTransport(t raft.Transport) Option {
	return func(n *Node) {
		n.transport = t
	}
}

// WithLog replaces the empty log a node starts with
func WithLog(l *raft.Log) Option {
	return func(n *Node) {
		n.log = l
	}
}

// New creates a Follower with an empty log. Its term and vote are loaded from the stable store, so a node
// restarted on a persistent store never moves back in time.
func New(id raft.NodeID, cfg Config, opts ...Option) (*Node, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	// https://go.dev/doc/effective_go#composite_literals
	n := &Node{
		nodeState: nodeState{
			state: Follower,
			log:   raft.NewLog(),
		},
		id:         id,
		cfg:        cfg,
		transport:  isolatedTransport{},
		commitHook: raft.NopCommitHook{},
		stable:     storage.NewMemoryStore(),
		clock:      clock.New(),
		logger:     zap.NewNop(),
		metrics:    nopMetrics{},
	}
	for _, opt := range opts {
		opt(n)
	}

	if n.rand == nil {
		n.rand = rand.New(rand.NewSource(time.Now().UnixNano() + int64(id)))
	}
	n.logger = n.logger.With(zap.Stringer("node_id", id))
	n.timer.clock = n.clock
	n.clusterSize = cfg.clusterSize(len(n.transport.Peers()))
	n.ctx, n.cancel = context.WithCancel(context.Background())

	term, err := n.stable.GetCurrentTerm()
	if err != nil {
		return nil, fmt.Errorf("failed to load current term: %w", err)
	}
	votedFor, err := n.stable.GetVotedFor()
	if err != nil {
		return nil, fmt.Errorf("failed to load vote: %w", err)
	}
	n.currentTerm, n.persistedTerm = term, term
	n.votedFor, n.persistedVote = votedFor, copyID(votedFor)

	return n, nil
}

// Bind hands the node the transport built for it from a frozen Topology. It must be called before Start.
func (n *Node) Bind(t raft.Transport) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.started {
		return ErrAlreadyStarted
	}
	n.transport = t
	n.clusterSize = n.cfg.clusterSize(len(t.Peers()))
	return nil
}

// Start arms the election timer, or restarts the heartbeat job of a node that is already Leader. ctx bounds the peer
// calls the node makes until Stop.
func (n *Node) Start(ctx context.Context) error {
	n.mu.Lock()
	defer n.unlock()

	if n.stopped {
		return ErrNodeStopped
	}
	if n.started {
		return ErrAlreadyStarted
	}
	n.started = true
	n.cancel()
	n.ctx, n.cancel = context.WithCancel(ctx)

	n.logger.Info("Node started",
		zap.Uint64("term", n.currentTerm),
		zap.Int("cluster_size", n.clusterSize),
		zap.Stringers("peers", n.transport.Peers()))

	// An election won through StartElection before Start left a heartbeat job bound to the context cancelled above
	if n.state == Leader {
		n.stopHeartbeatLocked()
		n.startHeartbeatLocked()
		return nil
	}
	n.armTimerLocked()
	return nil
}

// Stop cancels the election timer, stops the heartbeat job and closes the stable store. It is safe to call more
// than once.
func (n *Node) Stop() error {
	n.mu.Lock()
	if n.stopped {
		n.mu.Unlock()
		return nil
	}
	n.stopped = true
	n.timer.stop()
	n.stopHeartbeatLocked()
	n.cancel()
	publishLocked(n, NodeShutDown, n.id)
	n.unlock()

	n.jobs.Wait()
	n.logger.Info("Node stopped")
	return n.stable.Close()
}

// RequestVote handles the RequestVote RPC from a candidate, as per Figure 2 and Section 5.2 from the
// [Raft paper](https://raft.github.io/raft.pdf). A denied vote is not an error.
func (n *Node) RequestVote(ctx context.Context, req *raft.RequestVoteRequest) (*raft.RequestVoteResponse, error) {
	n.mu.Lock()
	defer n.unlock()

	if n.stopped {
		return nil, ErrNodeStopped
	}

	// If one node's current term is smaller than the other's, it updates its current term to the larger value and
	// reverts to follower state (Section 5.1). This happens before the vote is considered.
	if req.Term > n.currentTerm {
		n.stepDownLocked(req.Term)
	}

	granted := n.grantVoteLocked(req)

	// Updated on stable storage before responding to RPCs (Figure 2)
	if err := n.persistLocked(); err != nil {
		n.logger.Warn("Failed to persist vote", zap.Stringer("candidate_id", req.CandidateID), zap.Error(err))
		return nil, err
	}

	n.logger.Debug("Handled RequestVote",
		zap.Stringer("candidate_id", req.CandidateID),
		zap.Uint64("term", req.Term),
		zap.Bool("granted", granted))

	return &raft.RequestVoteResponse{
		Term:        n.currentTerm,
		VoteGranted: granted,
	}, nil
}

// grantVoteLocked applies the vote rule of Figure 2. Two denials go beyond the paper's rule on purpose: a stale term,
// and a candidate other than the leader already heard from in this term. Together they keep one granted candidate
// per term even though a same-term AppendEntries clears votedFor.
func (n *Node) grantVoteLocked(req *raft.RequestVoteRequest) bool {
	// Reply false if term < currentTerm (Section 5.1)
	if req.Term < n.currentTerm {
		return false
	}
	// At most one candidate per term. Voting again for the same candidate is a no-op.
	if n.votedFor != nil && *n.votedFor != req.CandidateID {
		return false
	}
	// A leader for this term has already been heard from, so someone else holds a majority of this term's votes
	if n.leaderID != nil && *n.leaderID != req.CandidateID {
		return false
	}
	// Election restriction (Section 5.4.1)
	if !n.log.IsUpToDate(req.LastLogIndex, req.LastLogTerm) {
		return false
	}

	candidate := req.CandidateID
	n.votedFor = &candidate
	return true
}

// AppendEntries handles the AppendEntries RPC from a leader. With no entries it is a heartbeat. Replicating
// entries and advancing commitIndex is left to a CommitHook on the leader side; entries are not applied here.
func (n *Node) AppendEntries(ctx context.Context, req *raft.AppendEntriesRequest) (*raft.AppendEntriesResponse, error) {
	n.mu.Lock()
	defer n.unlock()

	if n.stopped {
		return nil, ErrNodeStopped
	}

	// If a node receives a request with a stale term number, it rejects the request (Section 5.1). The timer keeps
	// running, a stale leader must not keep us from electing a new one.
	if req.Term < n.currentTerm {
		n.logger.Debug("Ignoring stale AppendEntries",
			zap.Stringer("leader_id", req.LeaderID),
			zap.Uint64("term", req.Term),
			zap.Uint64("current_term", n.currentTerm))
		return &raft.AppendEntriesResponse{
			Term:    n.currentTerm,
			Success: false,
		}, nil
	}

	// A valid leader exists for this term: candidates and stale leaders revert to follower
	n.stepDownLocked(req.Term)
	n.votedFor = nil
	leader := req.LeaderID
	n.leaderID = &leader

	// Reset election timeout since we received communication from a leader
	n.armTimerLocked()

	if err := n.persistLocked(); err != nil {
		n.logger.Warn("Failed to persist term", zap.Error(err))
		return nil, err
	}

	return &raft.AppendEntriesResponse{
		Term:    n.currentTerm,
		Success: true,
	}, nil
}

// StartElection is called when a node does not receive heartbeats from a Leader over an ElectionTimeout period, as
// per Section 5.2 from the [Raft paper](https://raft.github.io/raft.pdf). A Leader ignores it.
func (n *Node) StartElection() {
	n.runElection(nil)
}

// onElectionTimeout is the election timer callback. It runs on the clock's goroutine.
func (n *Node) onElectionTimeout(epoch uint64) {
	n.runElection(&epoch)
}

// runElection runs one election round. When epoch is set the round was triggered by the timer armed with that
// epoch, and is abandoned if the timer has since been reset or stopped.
func (n *Node) runElection(epoch *uint64) {
	n.mu.Lock()
	if n.stopped || n.state == Leader || (epoch != nil && *epoch != n.timer.epoch) {
		n.mu.Unlock()
		return
	}

	// The timer stays disarmed while votes are requested. The round ends by winning, by rearming it or by
	// stepping down, which rearms it.
	n.timer.stop()

	// 1. Increment the currentTerm of the node and transition to a Candidate state
	from := n.state
	n.currentTerm++
	n.state = Candidate
	n.leaderID = nil
	// 2. The node votes for itself
	self := n.id
	n.votedFor = &self

	term := n.currentTerm
	n.electionStartedAt = n.clock.Now()
	logger := n.logger.With(zap.Uint64("term", term))

	if err := n.persistLocked(); err != nil {
		// Soliciting votes without a durable self-vote could let us vote twice in this term after a restart
		logger.Error("Failed to persist election term, retrying after timeout", zap.Error(err))
		n.armTimerLocked()
		n.unlock()
		return
	}

	req := &raft.RequestVoteRequest{
		Term:         term,
		CandidateID:  n.id,
		LastLogIndex: n.log.LastIndex(),
		LastLogTerm:  n.log.LastTerm(),
	}
	peers := n.transport.Peers()
	ctx := n.ctx

	n.metrics.RecordElection()
	if from != Candidate {
		publishLocked(n, StateChanged, StateChangedPayload{ID: n.id, From: from, To: Candidate, Term: term})
	}
	publishLocked(n, ElectionStarted, ElectionStartedPayload{ID: n.id, Term: term})
	logger.Info("Started election", zap.Int("peers", len(peers)))
	n.unlock()

	// 3. Send a RequestVote RPC to all peers in the cluster. The lock is not held: two candidates asking each other
	// for votes at the same time would otherwise deadlock.
	votes := 1
	for _, peer := range peers {
		if ctx.Err() != nil {
			break
		}

		n.metrics.RecordRequestVote()
		resp, err := n.transport.RequestVote(SetCallerID(ctx, n.id), peer, req)
		if err != nil {
			// An unreachable peer counts as a denied vote
			logger.Debug("RequestVote failed", zap.Stringer("peer", peer), zap.Error(err))
			continue
		}

		if resp.Term > term {
			n.observeTerm(resp.Term, "vote response")
			return
		}
		if resp.VoteGranted {
			votes++
		}
	}

	n.mu.Lock()
	defer n.unlock()

	// Something else happened while votes were collected: a leader was heard from, a newer term was seen, or the
	// node was stopped
	if n.stopped || n.state != Candidate || n.currentTerm != term {
		logger.Debug("Election round superseded", zap.Int("votes", votes))
		return
	}

	if quorum.Reached(votes, n.clusterSize) {
		n.becomeLeaderLocked(votes)
		return
	}

	// Neither won nor lost: stay Candidate, the next timeout starts a new round with a higher term (Section 5.2)
	logger.Info("Election not won", zap.Int("votes", votes), zap.Int("cluster_size", n.clusterSize))
	n.armTimerLocked()
}

// becomeLeaderLocked completes a won election: the timer is cancelled and the heartbeat job takes over
func (n *Node) becomeLeaderLocked(votes int) {
	n.timer.stop()

	from := n.state
	n.state = Leader
	self := n.id
	n.leaderID = &self

	n.metrics.RecordElectionWon()
	n.metrics.RecordElectionDuration(n.clock.Now().Sub(n.electionStartedAt))
	n.logger.Info("Election won", zap.Uint64("term", n.currentTerm), zap.Int("votes", votes))

	publishLocked(n, StateChanged, StateChangedPayload{ID: n.id, From: from, To: Leader, Term: n.currentTerm})
	publishLocked(n, LeaderElected, LeaderElectedPayload{ID: n.id, Term: n.currentTerm, Votes: votes})

	n.startHeartbeatLocked()
}

// stepDownLocked adopts term if it is newer and reverts to Follower. A Candidate or Leader reverting also stops its
// heartbeat job and rearms the election timer, within the same critical section.
func (n *Node) stepDownLocked(term uint64) {
	n.setTermLocked(term)

	from := n.state
	n.state = Follower
	n.stopHeartbeatLocked()
	if from == Follower {
		return
	}

	n.metrics.RecordStepDown()
	n.logger.Info("Stepping down", zap.Stringer("from", from), zap.Uint64("term", n.currentTerm))
	publishLocked(n, StateChanged, StateChangedPayload{ID: n.id, From: from, To: Follower, Term: n.currentTerm})
	n.armTimerLocked()
}

// armTimerLocked (re)arms the election timer with a fresh random timeout. It does nothing before Start or after
// Stop.
func (n *Node) armTimerLocked() {
	if !n.started || n.stopped {
		return
	}
	d := randomTimeout(n.rand, n.cfg.ElectionTimeoutMin, n.cfg.ElectionTimeoutMax)
	epoch := n.timer.reset(d, n.onElectionTimeout)
	n.logger.Debug("Armed election timer", zap.Duration("timeout", d), zap.Uint64("epoch", epoch))
}

func (n *Node) persistLocked() error {
	if n.currentTerm != n.persistedTerm {
		if err := n.stable.SetCurrentTerm(n.currentTerm); err != nil {
			return fmt.Errorf("failed to persist current term: %w", err)
		}
		n.persistedTerm = n.currentTerm
	}
	if !sameID(n.votedFor, n.persistedVote) {
		if err := n.stable.SetVotedFor(n.votedFor); err != nil {
			return fmt.Errorf("failed to persist vote: %w", err)
		}
		n.persistedVote = copyID(n.votedFor)
	}
	return nil
}

// unlock releases mu and then publishes the events produced while it was held, so subscribers never run under the
// node lock.
func (n *Node) unlock() {
	pending := n.pending
	n.pending = nil
	n.mu.Unlock()

	for _, publish := range pending {
		publish()
	}
}

func publishLocked[T any](n *Node, eventType pubsub.EventType, payload T) {
	if n.pubSub == nil {
		return
	}
	ps := n.pubSub
	n.pending = append(n.pending, func() {
		pubsub.Publish(ps, pubsub.NewEvent(eventType, payload))
	})
}

func (n *Node) ID() raft.NodeID {
	return n.id
}

func (n *Node) State() State {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.state
}

func (n *Node) CurrentTerm() uint64 {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.currentTerm
}

// Status returns a consistent snapshot of the node
func (n *Node) Status() Status {
	n.mu.Lock()
	defer n.mu.Unlock()

	s := n.statusLocked()
	s.ID = n.id
	s.ClusterSize = n.clusterSize
	return s
}

// timerArmed reports whether an election timeout is pending. Used by tests.
func (n *Node) timerArmed() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.timer.armed()
}
