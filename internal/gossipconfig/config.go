// Package gossipconfig defines the externally configurable surface of a
// chitchat node: everything an operator sets via flags or YAML to bind a
// node into a cluster.
package gossipconfig

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/pflag"
)

// FailureDetectorConfig mirrors chitchat.FailureDetectorConfig in
// externally settable form.
type FailureDetectorConfig struct {
	PhiThreshold        float64       `json:"phi_threshold" yaml:"phi_threshold"`
	SamplingWindowSize  int           `json:"sampling_window_size" yaml:"sampling_window_size"`
	InitialInterval     time.Duration `json:"initial_interval" yaml:"initial_interval"`
	MaxInterval         time.Duration `json:"max_interval" yaml:"max_interval"`
	DeadNodeGracePeriod time.Duration `json:"dead_node_grace_period" yaml:"dead_node_grace_period"`
}

func (c *FailureDetectorConfig) registerFlags(fs *pflag.FlagSet, prefix string) {
	fs.Float64Var(
		&c.PhiThreshold,
		prefix+"phi-threshold",
		c.PhiThreshold,
		"Suspicion score at which a peer is classified unreachable.",
	)
	fs.IntVar(
		&c.SamplingWindowSize,
		prefix+"sampling-window-size",
		c.SamplingWindowSize,
		"Number of recent heartbeat inter-arrival intervals kept to estimate a peer's expected heartbeat interval.",
	)
	fs.DurationVar(
		&c.InitialInterval,
		prefix+"initial-interval",
		c.InitialInterval,
		"Assumed heartbeat interval for a peer before its first real sample arrives.",
	)
	fs.DurationVar(
		&c.MaxInterval,
		prefix+"max-interval",
		c.MaxInterval,
		"Longest measured heartbeat interval that is recorded; longer gaps are dropped, so one long pause cannot mask a later real failure.",
	)
	fs.DurationVar(
		&c.DeadNodeGracePeriod,
		prefix+"dead-node-grace-period",
		c.DeadNodeGracePeriod,
		"How long a dead peer's record is kept before it is garbage collected outright.",
	)
}

func (c *FailureDetectorConfig) validate() error {
	if c.PhiThreshold <= 0 {
		return fmt.Errorf("phi threshold must be positive")
	}
	if c.SamplingWindowSize <= 0 {
		return fmt.Errorf("sampling window size must be positive")
	}
	if c.InitialInterval <= 0 {
		return fmt.Errorf("initial interval must be positive")
	}
	if c.MaxInterval <= 0 {
		return fmt.Errorf("max interval must be positive")
	}
	if c.DeadNodeGracePeriod <= 0 {
		return fmt.Errorf("dead node grace period must be positive")
	}
	return nil
}

// Config is the complete externally configurable surface of a chitchat
// node.
type Config struct {
	// NodeID is this node's stable logical name. If unset, a random UUID
	// is generated at startup.
	NodeID string `json:"node_id" yaml:"node_id"`

	// ClusterID gossip rounds with a peer reporting a different ClusterID
	// are rejected.
	ClusterID string `json:"cluster_id" yaml:"cluster_id"`

	// BindAddr is the UDP address to listen for gossip traffic on.
	BindAddr string `json:"bind_addr" yaml:"bind_addr"`

	// AdvertiseAddr is the address advertised to other nodes. If unset, it
	// is derived from BindAddr, falling back to the node's private IP.
	AdvertiseAddr string `json:"advertise_addr" yaml:"advertise_addr"`

	// StatusAddr is the TCP address the HTTP status/introspection server
	// listens on.
	StatusAddr string `json:"status_addr" yaml:"status_addr"`

	// SeedNodes are addresses (IPs or resolvable domains) used to discover
	// the rest of the cluster on startup and on every re-resolution tick.
	SeedNodes []string `json:"seed_nodes" yaml:"seed_nodes"`

	// GossipInterval is the rate at which this node initiates a gossip
	// round.
	GossipInterval time.Duration `json:"gossip_interval" yaml:"gossip_interval"`

	// GossipCount is how many live and how many dead/unreachable peers are
	// contacted per gossip round.
	GossipCount int `json:"gossip_count" yaml:"gossip_count"`

	// MaxPacketSize bounds the size of any single UDP datagram sent.
	MaxPacketSize int `json:"max_packet_size" yaml:"max_packet_size"`

	// MarkedForDeletionGracePeriod is how long a tombstoned key-value is
	// kept before it is permanently compacted away.
	MarkedForDeletionGracePeriod time.Duration `json:"marked_for_deletion_grace_period" yaml:"marked_for_deletion_grace_period"`

	// SeedReresolveInterval is how often SeedNodes is re-resolved to pick
	// up newly joined seeds behind a domain name.
	SeedReresolveInterval time.Duration `json:"seed_reresolve_interval" yaml:"seed_reresolve_interval"`

	FailureDetector FailureDetectorConfig `json:"failure_detector" yaml:"failure_detector"`
}

// Default returns the reference configuration: a fresh random NodeID, a
// 500ms gossip interval and a 24h dead-node grace period, matching
// quickwit's chitchat defaults.
func Default() *Config {
	return &Config{
		NodeID:                       uuid.NewString(),
		ClusterID:                    "default-cluster",
		BindAddr:                     ":7280",
		StatusAddr:                   ":7281",
		GossipInterval:               500 * time.Millisecond,
		GossipCount:                  3,
		MaxPacketSize:                1400,
		MarkedForDeletionGracePeriod: 24 * time.Hour,
		SeedReresolveInterval:        30 * time.Second,
		FailureDetector: FailureDetectorConfig{
			PhiThreshold:        8.0,
			SamplingWindowSize:  1000,
			InitialInterval:     5 * time.Second,
			MaxInterval:         10 * time.Second,
			DeadNodeGracePeriod: 24 * time.Hour,
		},
	}
}

// RegisterFlags registers every field of Config under prefix (typically
// "chitchat").
func (c *Config) RegisterFlags(fs *pflag.FlagSet, prefix string) {
	prefix = prefix + "."

	fs.StringVar(&c.NodeID, prefix+"node-id", c.NodeID, "This node's stable logical name. Defaults to a random UUID.")
	fs.StringVar(&c.ClusterID, prefix+"cluster-id", c.ClusterID, "Cluster ID gossip peers must match to be accepted.")
	fs.StringVar(&c.BindAddr, prefix+"bind-addr", c.BindAddr, "UDP address to listen for gossip traffic on.")
	fs.StringVar(&c.AdvertiseAddr, prefix+"advertise-addr", c.AdvertiseAddr, "Address to advertise to other nodes. Defaults to the bind address, or the node's private IP if the bind address has no host.")
	fs.StringVar(&c.StatusAddr, prefix+"status-addr", c.StatusAddr, "TCP address the HTTP status/introspection server listens on.")
	fs.StringSliceVar(&c.SeedNodes, prefix+"seed-nodes", c.SeedNodes, "Addresses used to discover the cluster on startup.")
	fs.DurationVar(&c.GossipInterval, prefix+"gossip-interval", c.GossipInterval, "Rate at which this node initiates a gossip round.")
	fs.IntVar(&c.GossipCount, prefix+"gossip-count", c.GossipCount, "Number of live and number of dead/unreachable peers contacted per gossip round.")
	fs.IntVar(&c.MaxPacketSize, prefix+"max-packet-size", c.MaxPacketSize, "Maximum size of any UDP datagram sent.")
	fs.DurationVar(&c.MarkedForDeletionGracePeriod, prefix+"marked-for-deletion-grace-period", c.MarkedForDeletionGracePeriod, "How long a tombstoned key-value is kept before being compacted away.")
	fs.DurationVar(&c.SeedReresolveInterval, prefix+"seed-reresolve-interval", c.SeedReresolveInterval, "How often seed node addresses are re-resolved.")

	c.FailureDetector.registerFlags(fs, prefix+"failure-detector.")
}

// Validate checks the configuration is complete and internally consistent.
func (c *Config) Validate() error {
	if c.NodeID == "" {
		return fmt.Errorf("missing node id")
	}
	if c.ClusterID == "" {
		return fmt.Errorf("missing cluster id")
	}
	if c.BindAddr == "" {
		return fmt.Errorf("missing bind addr")
	}
	if c.StatusAddr == "" {
		return fmt.Errorf("missing status addr")
	}
	if c.GossipInterval <= 0 {
		return fmt.Errorf("gossip interval must be positive")
	}
	if c.GossipCount <= 0 {
		return fmt.Errorf("gossip count must be positive")
	}
	if c.MaxPacketSize <= 0 {
		return fmt.Errorf("max packet size must be positive")
	}
	if c.MarkedForDeletionGracePeriod <= 0 {
		return fmt.Errorf("marked for deletion grace period must be positive")
	}
	if c.SeedReresolveInterval <= 0 {
		return fmt.Errorf("seed reresolve interval must be positive")
	}
	return c.FailureDetector.validate()
}
