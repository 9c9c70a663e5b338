package main

import (
	"context"
	"fmt"
	"io"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"raft-election/internal/cli"
	"raft-election/internal/pubsub"
	"raft-election/internal/raft"
	"raft-election/internal/raft/metrics"
	"raft-election/internal/raft/server"
)

type simOptions struct {
	nodes    int
	duration time.Duration
	output   string
	cfg      server.Config
}

func newSimCommand(v *viper.Viper, g *globalOptions) *cobra.Command {
	o := &simOptions{cfg: server.DefaultConfig()}

	opts := []cli.Opt{
		cli.NewOpt(&o.nodes, "nodes", 5, "number of in-process nodes"),
		cli.NewOpt(&o.duration, "duration", 5*time.Second, "how long the cluster runs before the report"),
		cli.NewOpt(&o.output, "output", "", "output JSON file for the metrics report (optional)"),
	}
	opts = append(opts, electionOptions(&o.cfg)...)

	return cli.NewCommand(v, &cli.Program{
		Name:  "sim",
		Short: "Run an in-process cluster and report on its elections",
		Opts:  opts,
		Run: func(cmd *cobra.Command, _ []string) error {
			log, err := g.logger(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runSim(ctx, cmd.OutOrStdout(), o, log)
		},
	})
}

// runSim starts o.nodes nodes over in-process transports, lets them run for o.duration and prints each node's
// state and term followed by the election report. A term with two leaders fails the run.
func runSim(ctx context.Context, w io.Writer, o *simOptions, log *zap.Logger) (err error) {
	if o.nodes <= 0 {
		return fmt.Errorf("%w: --nodes must be positive, got %d", server.ErrInvalidConfig, o.nodes)
	}

	runID := uuid.New()
	log = log.With(zap.Stringer("run", runID))

	// Every node publishes on the same bus
	ps := pubsub.NewPubSub(pubsub.WithLogger(log), pubsub.WithBufferSize(64*o.nodes))
	defer ps.GracefulShutdown()

	monitor := server.NewMonitor(ps, log)
	defer monitor.Close()

	m := metrics.NewMetrics()
	cluster, err := server.NewCluster(o.nodes, o.cfg, func(id raft.NodeID) []server.Option {
		return []server.Option{
			server.WithLogger(log.With(zap.Stringer("node", id))),
			server.WithPubSub(ps),
			server.WithMetrics(m),
		}
	})
	if err != nil {
		return err
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, "========================================")
	fmt.Fprintln(w, "RAFT ELECTION SIMULATION")
	fmt.Fprintln(w, "========================================")
	fmt.Fprintf(w, "Run:      %s\n", runID)
	fmt.Fprintf(w, "Nodes:    %d\n", o.nodes)
	fmt.Fprintf(w, "Duration: %v\n", o.duration)
	fmt.Fprintln(w)

	if err := cluster.Start(ctx); err != nil {
		return multierr.Append(err, cluster.Stop())
	}
	defer func() {
		err = multierr.Append(err, cluster.Stop())
	}()

	select {
	case <-ctx.Done():
		log.Info("Simulation interrupted")
	case <-time.After(o.duration):
	}

	for _, node := range cluster.Nodes() {
		st := node.Status()
		fmt.Fprintf(w, "Node %v: state=%s term=%d\n", st.ID, st.State, st.Term)
	}
	if leader := cluster.Leader(); leader != nil {
		fmt.Fprintf(w, "Leader: node %v (term %d)\n", leader.ID(), leader.CurrentTerm())
	} else {
		fmt.Fprintln(w, "Leader: none")
	}
	fmt.Fprintf(w, "Terms with a leader: %d, state transitions: %d\n", len(monitor.Leaders()), monitor.Transitions())

	report := m.GetReport(o.nodes)
	report.PrintReport(w)

	if o.output != "" {
		if err := report.SaveJSON(o.output); err != nil {
			return err
		}
		fmt.Fprintf(w, "Metrics saved to %s\n", o.output)
	}

	if violations := monitor.Violations(); len(violations) > 0 {
		return fmt.Errorf("election safety violated in terms %v", violations)
	}
	return nil
}
