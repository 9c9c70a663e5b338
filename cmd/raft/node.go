package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"raft-election/internal/cli"
	"raft-election/internal/pubsub"
	"raft-election/internal/raft"
	"raft-election/internal/raft/metrics"
	"raft-election/internal/raft/server"
	"raft-election/internal/raft/storage"
)

const shutdownTimeout = 5 * time.Second

type nodeOptions struct {
	id        uint64
	listen    string
	httpAddr  string
	peers     []string
	dataDir   string
	clusterID string
	cfg       server.Config
}

func newNodeCommand(v *viper.Viper, g *globalOptions) *cobra.Command {
	o := &nodeOptions{cfg: server.DefaultConfig()}

	opts := []cli.Opt{
		cli.NewOpt(&o.id, "id", uint64(1), "id of this node"),
		cli.NewOpt(&o.listen, "listen", ":7001", "address of the election gRPC service"),
		cli.NewOpt(&o.httpAddr, "http", ":8001", "address of the /status and /metrics endpoints (empty disables them)"),
		cli.NewOpt(&o.peers, "peers", []string{}, "other members as id=host:port, e.g. 2=localhost:7002,3=localhost:7003"),
		cli.NewOpt(&o.dataDir, "data-dir", "", "directory of the bbolt file holding term and vote (empty keeps them in memory)"),
		cli.NewOpt(&o.clusterID, "cluster-id", "", "identifier shared by every member; requests from another cluster are rejected"),
		cli.NewOpt(&o.cfg.ClusterSize, "cluster-size", 0, "number of voting members, self included (0 derives it from --peers)"),
	}
	opts = append(opts, electionOptions(&o.cfg)...)

	return cli.NewCommand(v, &cli.Program{
		Name:  "node",
		Short: "Run a single node reachable over gRPC",
		Opts:  opts,
		Run: func(cmd *cobra.Command, _ []string) error {
			log, err := g.logger(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runNode(ctx, o, log)
		},
	})
}

// parsePeers turns id=host:port entries into the address map of a GRPCTransport
func parsePeers(entries []string) (map[raft.NodeID]string, error) {
	peers := make(map[raft.NodeID]string, len(entries))
	for _, entry := range entries {
		idStr, addr, ok := strings.Cut(strings.TrimSpace(entry), "=")
		if !ok || addr == "" {
			return nil, fmt.Errorf("invalid peer %q: expected id=host:port", entry)
		}
		id, err := raft.ParseNodeID(idStr)
		if err != nil {
			return nil, fmt.Errorf("invalid peer id in %q: %w", entry, err)
		}
		if _, dup := peers[id]; dup {
			return nil, fmt.Errorf("peer %v listed twice", id)
		}
		peers[id] = addr
	}
	return peers, nil
}

func openStableStore(dataDir string, id raft.NodeID) (storage.StableStore, error) {
	if dataDir == "" {
		return storage.NewMemoryStore(), nil
	}
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data dir: %w", err)
	}
	return storage.NewBboltStore(filepath.Join(dataDir, fmt.Sprintf("node-%v.db", id)))
}

func runNode(ctx context.Context, o *nodeOptions, log *zap.Logger) error {
	id := raft.NodeID(o.id)
	log = log.With(zap.Stringer("node", id))

	peers, err := parsePeers(o.peers)
	if err != nil {
		return err
	}
	if _, ok := peers[id]; ok {
		return fmt.Errorf("--peers must not list this node (%v)", id)
	}

	if o.clusterID == "" {
		o.clusterID = uuid.NewString()
		log.Warn("No cluster id given, peers must be started with the generated one", zap.String("cluster_id", o.clusterID))
	}

	store, err := openStableStore(o.dataDir, id)
	if err != nil {
		return err
	}

	registry := prometheus.NewRegistry()
	promMetrics := metrics.NewPrometheusMetrics()
	for _, c := range promMetrics.PrometheusCollectors() {
		registry.MustRegister(c)
	}
	electionMetrics := metrics.NewMetrics()

	ps := pubsub.NewPubSub(pubsub.WithLogger(log))
	defer ps.GracefulShutdown()

	node, err := server.New(id, o.cfg,
		server.WithLogger(log),
		server.WithPubSub(ps),
		server.WithStableStore(store),
		server.WithMetrics(metrics.Fanout{electionMetrics, promMetrics.ForNode(id)}),
	)
	if err != nil {
		return multierr.Append(err, store.Close())
	}

	transport, err := server.NewGRPCTransport(server.GRPCTransportConfig{
		Self:      id,
		ClusterID: o.clusterID,
		Peers:     peers,
		Timeout:   o.cfg.RPCTimeout,
		Logger:    log,
	})
	if err != nil {
		return multierr.Append(err, node.Stop())
	}
	if err := node.Bind(transport); err != nil {
		return multierr.Combine(err, node.Stop(), transport.Close())
	}

	lis, err := net.Listen("tcp", o.listen)
	if err != nil {
		return multierr.Combine(fmt.Errorf("failed to listen on %s: %w", o.listen, err), node.Stop(), transport.Close())
	}
	grpcServer := server.NewGRPCServer(node, o.clusterID, log)

	var httpServer *http.Server
	if o.httpAddr != "" {
		httpServer = &http.Server{
			Addr:              o.httpAddr,
			Handler:           newRouter(node, registry, electionMetrics, node.Status().ClusterSize),
			ReadHeaderTimeout: 5 * time.Second,
		}
	}

	if err := node.Start(ctx); err != nil {
		return multierr.Combine(err, lis.Close(), node.Stop(), transport.Close())
	}
	log.Info("Node started", zap.Int("cluster_size", node.Status().ClusterSize), zap.String("cluster_id", o.clusterID))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return grpcServer.Serve(lis)
	})
	if httpServer != nil {
		g.Go(func() error {
			log.Info("Serving status and metrics", zap.String("addr", httpServer.Addr))
			if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
	}
	g.Go(func() error {
		// Runs on a signal as well as on a failed listener
		<-gctx.Done()
		log.Info("Shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		var errs error
		if httpServer != nil {
			errs = multierr.Append(errs, httpServer.Shutdown(shutdownCtx))
		}
		grpcServer.GracefulStop()
		errs = multierr.Append(errs, node.Stop())
		errs = multierr.Append(errs, transport.Close())
		return errs
	})

	return g.Wait()
}
