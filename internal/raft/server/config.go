package server

import (
	"fmt"
	"time"
)

// Config holds the timing parameters of a node. The defaults follow the end of Section 9.3 from the
// [Raft paper](https://raft.github.io/raft.pdf): election timeouts chosen randomly from 150-300ms, with the
// broadcast time (heartbeats) an order of magnitude below them.
type Config struct {
	// ElectionTimeoutMin is the inclusive lower bound of the randomized election timeout
	ElectionTimeoutMin time.Duration `mapstructure:"election-timeout-min" toml:"election-timeout-min"`
	// ElectionTimeoutMax is the exclusive upper bound of the randomized election timeout
	ElectionTimeoutMax time.Duration `mapstructure:"election-timeout-max" toml:"election-timeout-max"`
	// HeartbeatInterval is the period between two heartbeat broadcasts of a Leader
	HeartbeatInterval time.Duration `mapstructure:"heartbeat-interval" toml:"heartbeat-interval"`
	// ClusterSize is the number of voting members, self included. 0 derives it from the peers handed to the node.
	ClusterSize int `mapstructure:"cluster-size" toml:"cluster-size"`
	// RPCTimeout bounds a single call made by the gRPC transport
	RPCTimeout time.Duration `mapstructure:"rpc-timeout" toml:"rpc-timeout"`
}

func DefaultConfig() Config {
	return Config{
		ElectionTimeoutMin: 150 * time.Millisecond,
		ElectionTimeoutMax: 300 * time.Millisecond,
		HeartbeatInterval:  50 * time.Millisecond,
		RPCTimeout:         50 * time.Millisecond,
	}
}

// Validate returns an error wrapping ErrInvalidConfig if the timings cannot produce a working cluster
func (c Config) Validate() error {
	switch {
	case c.ElectionTimeoutMin <= 0:
		return fmt.Errorf("%w: election timeout min must be positive, got %v", ErrInvalidConfig, c.ElectionTimeoutMin)
	case c.ElectionTimeoutMax <= c.ElectionTimeoutMin:
		return fmt.Errorf("%w: election timeout max (%v) must be greater than min (%v)",
			ErrInvalidConfig, c.ElectionTimeoutMax, c.ElectionTimeoutMin)
	case c.HeartbeatInterval <= 0:
		return fmt.Errorf("%w: heartbeat interval must be positive, got %v", ErrInvalidConfig, c.HeartbeatInterval)
	case c.HeartbeatInterval >= c.ElectionTimeoutMin:
		// Followers would time out between two heartbeats of a healthy leader
		return fmt.Errorf("%w: heartbeat interval (%v) must be less than election timeout min (%v)",
			ErrInvalidConfig, c.HeartbeatInterval, c.ElectionTimeoutMin)
	case c.ClusterSize < 0:
		return fmt.Errorf("%w: cluster size must not be negative, got %d", ErrInvalidConfig, c.ClusterSize)
	case c.RPCTimeout < 0:
		return fmt.Errorf("%w: rpc timeout must not be negative, got %v", ErrInvalidConfig, c.RPCTimeout)
	}
	return nil
}

// clusterSize returns the configured size, or peers+1 when unset
func (c Config) clusterSize(peers int) int {
	if c.ClusterSize > 0 {
		return c.ClusterSize
	}
	return peers + 1
}
