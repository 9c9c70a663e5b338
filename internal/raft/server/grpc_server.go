package server

import (
	"context"
	"errors"
	"net"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"raft-election/internal/raft"
)

const (
	electionServiceName = "raft.Election"
	requestVoteMethod   = "/raft.Election/RequestVote"
	appendEntriesMethod = "/raft.Election/AppendEntries"

	// Metadata keys carried by every request
	clusterIDMetadataKey = "raft-cluster-id"
	callerIDMetadataKey  = "raft-node-id"
)

// electionServiceDesc describes the election RPCs to gRPC. Any raft.Peer can serve them.
var electionServiceDesc = grpc.ServiceDesc{
	ServiceName: electionServiceName,
	HandlerType: (*raft.Peer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "RequestVote",
			Handler:    requestVoteHandler,
		},
		{
			MethodName: "AppendEntries",
			Handler:    appendEntriesHandler,
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "raft/election",
}

func requestVoteHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(raft.RequestVoteRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(raft.Peer).RequestVote(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: requestVoteMethod,
	}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(raft.Peer).RequestVote(ctx, req.(*raft.RequestVoteRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func appendEntriesHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(raft.AppendEntriesRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(raft.Peer).AppendEntries(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: appendEntriesMethod,
	}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(raft.Peer).AppendEntries(ctx, req.(*raft.AppendEntriesRequest))
	}
	return interceptor(ctx, in, info, handler)
}

// GRPCServer exposes a node to remote peers over gRPC
type GRPCServer struct {
	server    *grpc.Server
	clusterID string
	logger    *zap.Logger
}

// NewGRPCServer registers peer on a new gRPC server. Requests from another cluster are rejected with
// codes.FailedPrecondition.
func NewGRPCServer(peer raft.Peer, clusterID string, logger *zap.Logger, opts ...grpc.ServerOption) *GRPCServer {
	s := &GRPCServer{
		clusterID: clusterID,
		logger:    logger,
	}

	opts = append([]grpc.ServerOption{
		grpc.ConnectionTimeout(30 * time.Second),
		grpc.ChainUnaryInterceptor(s.clusterInterceptor),
	}, opts...)
	s.server = grpc.NewServer(opts...)
	s.server.RegisterService(&electionServiceDesc, peer)
	return s
}

func (s *GRPCServer) clusterInterceptor(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	md, _ := metadata.FromIncomingContext(ctx)

	got := firstValue(md, clusterIDMetadataKey)
	if got != s.clusterID {
		s.logger.Warn("Rejected request from another cluster",
			zap.String("method", info.FullMethod),
			zap.String("cluster_id", got))
		return nil, status.Errorf(codes.FailedPrecondition, "cluster id mismatch: expected %q, got %q", s.clusterID, got)
	}
	ctx = SetClusterID(ctx, got)

	if v := firstValue(md, callerIDMetadataKey); v != "" {
		if id, err := raft.ParseNodeID(v); err == nil {
			ctx = SetCallerID(ctx, id)
		}
	}

	resp, err := handler(ctx, req)
	if errors.Is(err, ErrNodeStopped) {
		return nil, status.Error(codes.Unavailable, err.Error())
	}
	return resp, err
}

func firstValue(md metadata.MD, key string) string {
	if vals := md.Get(key); len(vals) > 0 {
		return vals[0]
	}
	return ""
}

// Serve blocks accepting connections on lis until the server is stopped
func (s *GRPCServer) Serve(lis net.Listener) error {
	s.logger.Info("Serving election RPCs", zap.Stringer("addr", lis.Addr()))
	return s.server.Serve(lis)
}

// GracefulStop stops accepting new requests and waits for pending ones, in order to prevent interrupting a pending
// response to a peer
func (s *GRPCServer) GracefulStop() {
	s.server.GracefulStop()
}

func (s *GRPCServer) Stop() {
	s.server.Stop()
}
