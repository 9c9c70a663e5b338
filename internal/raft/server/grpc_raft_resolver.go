package server

import (
	"fmt"
	"strings"

	"google.golang.org/grpc/resolver"

	"raft-election/internal/raft"
)

// ---- gRPC name resolver ("raft" scheme) ----
// Targets are "raft:///<node id>". Each GRPCTransport builds its own resolver from the fixed id -> address map it
// was created with and passes it to grpc.NewClient with grpc.WithResolvers, so nothing is registered globally.

const raftScheme = "raft"

func raftTarget(id raft.NodeID) string {
	return fmt.Sprintf("%s:///%s", raftScheme, id) // "raft:///3"
}

type raftBuilder struct {
	addrs map[raft.NodeID]string
}

func newRaftBuilder(addrs map[raft.NodeID]string) raftBuilder {
	copied := make(map[raft.NodeID]string, len(addrs))
	for id, addr := range addrs {
		copied[id] = addr
	}
	return raftBuilder{addrs: copied}
}

func (raftBuilder) Scheme() string { return raftScheme }

func (b raftBuilder) Build(target resolver.Target, cc resolver.ClientConn, _ resolver.BuildOptions) (resolver.Resolver, error) {
	// Accept "raft:///3" or "raft://cluster/3".
	endpoint := target.Endpoint()
	if endpoint == "" {
		// Some versions carry endpoint in URL.Path when using triple slash.
		endpoint = strings.TrimPrefix(target.URL.Path, "/")
	}
	if endpoint == "" {
		return nil, fmt.Errorf("raft resolver: empty target endpoint: %+v", target)
	}

	id, err := raft.ParseNodeID(endpoint)
	if err != nil {
		return nil, fmt.Errorf("raft resolver: %w", err)
	}
	addr, ok := b.addrs[id]
	if !ok || addr == "" {
		return nil, fmt.Errorf("raft resolver: no address for node %v: %w", id, ErrUnknownPeer)
	}

	r := &raftResolver{addr: addr, cc: cc}
	r.pushCurrent()
	return r, nil
}

type raftResolver struct {
	addr string
	cc   resolver.ClientConn
}

func (r *raftResolver) ResolveNow(resolver.ResolveNowOptions) { r.pushCurrent() }

func (r *raftResolver) Close() {}

func (r *raftResolver) pushCurrent() {
	if err := r.cc.UpdateState(resolver.State{
		Addresses: []resolver.Address{{Addr: r.addr}},
	}); err != nil {
		r.cc.ReportError(err)
	}
}
