package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"raft-election/internal/cli"
	"raft-election/internal/paxos"
)

type paxosOptions struct {
	acceptors int
	value     string
}

func newPaxosCommand(v *viper.Viper, g *globalOptions) *cobra.Command {
	o := &paxosOptions{}

	return cli.NewCommand(v, &cli.Program{
		Name:  "paxos",
		Short: "Run a single-decree Paxos round against in-process acceptors",
		Opts: []cli.Opt{
			cli.NewOpt(&o.acceptors, "acceptors", 3, "number of acceptors"),
			cli.NewOpt(&o.value, "value", "Value1", "value to propose"),
		},
		Run: func(cmd *cobra.Command, _ []string) error {
			log, err := g.logger(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()
			return runPaxos(cmd.OutOrStdout(), o, log)
		},
	})
}

func runPaxos(w io.Writer, o *paxosOptions, log *zap.Logger) error {
	acceptors := make([]*paxos.Acceptor, o.acceptors)
	voters := make([]paxos.Voter, o.acceptors)
	for i := range acceptors {
		acceptors[i] = paxos.NewAcceptor()
		voters[i] = acceptors[i]
	}

	proposer := paxos.NewProposer(o.value, voters, log)
	result, err := proposer.Propose()
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "Proposal %d (%q): %s\n", proposer.Number(), o.value, result)
	for i, a := range acceptors {
		if p, ok := a.Accepted(); ok {
			fmt.Fprintf(w, "  Acceptor %d accepted proposal %d (%q)\n", i+1, p.Number, p.Value)
		} else {
			fmt.Fprintf(w, "  Acceptor %d accepted nothing\n", i+1)
		}
	}
	return nil
}
