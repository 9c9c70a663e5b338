package main

import (
	"github.com/BurntSushi/toml"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"raft-election/internal/cli"
	"raft-election/internal/raft/server"
)

func newPrintConfigCommand(v *viper.Viper, _ *globalOptions) *cobra.Command {
	cfg := server.DefaultConfig()
	opts := append(electionOptions(&cfg),
		cli.NewOpt(&cfg.ClusterSize, "cluster-size", 0, "number of voting members, self included"),
	)

	return cli.NewCommand(v, &cli.Program{
		Name:  "print-config",
		Short: "Print the resolved election config as TOML",
		Opts:  opts,
		Run: func(cmd *cobra.Command, _ []string) error {
			if err := cfg.Validate(); err != nil {
				return err
			}
			return toml.NewEncoder(cmd.OutOrStdout()).Encode(cfg)
		},
	})
}
