package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"raft-election/internal/cli"
	"raft-election/internal/logger"
	"raft-election/internal/raft/server"
)

const envPrefix = "raft"

// globalOptions are shared by every subcommand
type globalOptions struct {
	configPath string
	log        logger.Config
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	v := cli.NewViper(envPrefix)
	g := &globalOptions{log: logger.NewConfig()}

	opts := []cli.Opt{
		cli.NewOpt(&g.configPath, "config", "", "path to a TOML config file"),
		cli.NewOpt(&g.log.Level, "log-level", g.log.Level, "minimum log level (debug, info, warn, error)"),
		cli.NewOpt(&g.log.Format, "log-format", g.log.Format, "log encoding (console, logfmt, json)"),
	}

	root := &cobra.Command{
		Use:          "raft",
		Short:        "Raft leader election and heartbeats",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			// The config path itself can only come from the flag or the environment
			if err := cli.ApplyOptions(v, cmd, opts[:1]); err != nil {
				return err
			}
			if err := cli.ReadConfigFile(v, g.configPath); err != nil {
				return err
			}
			return cli.ApplyOptions(v, cmd, opts[1:])
		},
	}
	cli.BindPersistentOptions(root, opts)

	root.AddCommand(
		newSimCommand(v, g),
		newNodeCommand(v, g),
		newPaxosCommand(v, g),
		newPrintConfigCommand(v, g),
	)
	return root
}

func (g *globalOptions) logger(cmd *cobra.Command) (*zap.Logger, error) {
	log, err := logger.New(cmd.ErrOrStderr(), g.log)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}
	return log, nil
}

// electionOptions binds the election timing of server.Config to flags, env vars and the config file
func electionOptions(cfg *server.Config) []cli.Opt {
	return []cli.Opt{
		cli.NewOpt(&cfg.ElectionTimeoutMin, "election-timeout-min", cfg.ElectionTimeoutMin, "lower bound of the randomized election timeout"),
		cli.NewOpt(&cfg.ElectionTimeoutMax, "election-timeout-max", cfg.ElectionTimeoutMax, "upper bound of the randomized election timeout"),
		cli.NewOpt(&cfg.HeartbeatInterval, "heartbeat-interval", cfg.HeartbeatInterval, "interval between leader heartbeats"),
		cli.NewOpt(&cfg.RPCTimeout, "rpc-timeout", cfg.RPCTimeout, "deadline of a single peer call"),
	}
}
