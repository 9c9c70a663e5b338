package server

import (
	"context"

	"raft-election/internal"
	"raft-election/internal/raft"
)

var (
	callerID  = internal.NewCtxKey[raft.NodeID]("callerID")
	clusterID = internal.NewCtxKey[string]("clusterID")
)

// SetCallerID records which node issued the request carried by ctx
func SetCallerID(ctx context.Context, id raft.NodeID) context.Context {
	return internal.SetCtxKey(ctx, callerID, id)
}

func GetCallerID(ctx context.Context) (raft.NodeID, bool) {
	return internal.GetCtxKey(ctx, callerID)
}

// SetClusterID records the cluster a gRPC request was accepted for
func SetClusterID(ctx context.Context, id string) context.Context {
	return internal.SetCtxKey(ctx, clusterID, id)
}

func GetClusterID(ctx context.Context) (string, bool) {
	return internal.GetCtxKey(ctx, clusterID)
}
