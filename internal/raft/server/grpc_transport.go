package server

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"

	"raft-election/internal/raft"
)

// GRPCTransport reaches remote peers over gRPC. It holds one client connection per peer, created up front from a
// fixed id -> address map.
type GRPCTransport struct {
	self      raft.NodeID
	clusterID string
	// The maximum time to wait for a single RPC. Section 5.6 states that broadcast time should be an order of
	// magnitude less than the election timeout.
	timeout time.Duration
	conns   map[raft.NodeID]*grpc.ClientConn
	order   []raft.NodeID
	logger  *zap.Logger
}

// GRPCTransportConfig configures NewGRPCTransport
type GRPCTransportConfig struct {
	Self      raft.NodeID
	ClusterID string
	// Peers maps every other member to its host:port. An entry for Self is ignored.
	Peers   map[raft.NodeID]string
	Timeout time.Duration
	Logger  *zap.Logger
	// DialOptions are appended to the defaults, e.g. grpc.WithContextDialer for in-memory listeners
	DialOptions []grpc.DialOption
}

func NewGRPCTransport(cfg GRPCTransportConfig) (*GRPCTransport, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	t := &GRPCTransport{
		self:      cfg.Self,
		clusterID: cfg.ClusterID,
		timeout:   cfg.Timeout,
		conns:     make(map[raft.NodeID]*grpc.ClientConn, len(cfg.Peers)),
		logger:    logger,
	}

	builder := newRaftBuilder(cfg.Peers)
	opts := append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithResolvers(builder),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(codecName)),
	}, cfg.DialOptions...)

	for id := range cfg.Peers {
		if id == cfg.Self {
			continue
		}
		conn, err := grpc.NewClient(raftTarget(id), opts...)
		if err != nil {
			return nil, multierr.Append(fmt.Errorf("failed establishing a gRPC channel to peer %v: %w", id, err), t.Close())
		}
		t.conns[id] = conn
	}
	self := cfg.Self
	t.order = sortedIDs(cfg.Peers, &self)

	return t, nil
}

func (t *GRPCTransport) Peers() []raft.NodeID {
	out := make([]raft.NodeID, len(t.order))
	copy(out, t.order)
	return out
}

func (t *GRPCTransport) RequestVote(ctx context.Context, peer raft.NodeID, req *raft.RequestVoteRequest) (*raft.RequestVoteResponse, error) {
	resp := new(raft.RequestVoteResponse)
	if err := t.invoke(ctx, peer, requestVoteMethod, req, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

func (t *GRPCTransport) AppendEntries(ctx context.Context, peer raft.NodeID, req *raft.AppendEntriesRequest) (*raft.AppendEntriesResponse, error) {
	resp := new(raft.AppendEntriesResponse)
	if err := t.invoke(ctx, peer, appendEntriesMethod, req, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

func (t *GRPCTransport) invoke(ctx context.Context, peer raft.NodeID, method string, req, resp any) error {
	conn, ok := t.conns[peer]
	if !ok {
		return fmt.Errorf("%s to %v: %w", method, peer, ErrUnknownPeer)
	}

	if t.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.timeout)
		defer cancel()
	}
	ctx = metadata.AppendToOutgoingContext(ctx,
		clusterIDMetadataKey, t.clusterID,
		callerIDMetadataKey, t.self.String())

	if err := conn.Invoke(ctx, method, req, resp); err != nil {
		return fmt.Errorf("%s to %v: %w", method, peer, err)
	}
	return nil
}

// Close closes all gRPC client connections initiated by the transport
func (t *GRPCTransport) Close() error {
	var err error
	for id, conn := range t.conns {
		if cerr := conn.Close(); cerr != nil {
			err = multierr.Append(err, fmt.Errorf("close connection to %v: %w", id, cerr))
		}
	}
	t.logger.Debug("All gRPC client connections closed")
	return err
}
