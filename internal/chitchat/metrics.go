package chitchat

import "github.com/prometheus/client_golang/prometheus"

// Metrics exposes prometheus instrumentation for the gossip coordinator and
// cluster state.
type Metrics struct {
	// PacketBytesInbound is the total number of bytes read from UDP.
	PacketBytesInbound prometheus.Counter

	// PacketBytesOutbound is the total number of bytes written to UDP.
	PacketBytesOutbound prometheus.Counter

	// DigestEntriesInbound is the total number of per-node digest entries
	// received.
	DigestEntriesInbound prometheus.Counter

	// DigestEntriesOutbound is the total number of per-node digest entries
	// sent.
	DigestEntriesOutbound prometheus.Counter

	// DeltaKeyValuesInbound is the total number of key-value mutations
	// received.
	DeltaKeyValuesInbound prometheus.Counter

	// DeltaKeyValuesOutbound is the total number of key-value mutations
	// sent.
	DeltaKeyValuesOutbound prometheus.Counter

	// BadClusterTotal is the total number of gossip rounds rejected because
	// the peer's cluster ID didn't match ours.
	BadClusterTotal prometheus.Counter

	// NodesLive is the current number of nodes classified live.
	NodesLive prometheus.Gauge

	// NodesDead is the current number of nodes classified dead.
	NodesDead prometheus.Gauge

	// KeyValues is the number of stored entries, labelled by node_id and
	// deleted.
	KeyValues *prometheus.GaugeVec
}

// NewMetrics creates a Metrics with every collector initialized but not yet
// registered.
func NewMetrics() *Metrics {
	return &Metrics{
		PacketBytesInbound: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "chitchat",
			Subsystem: "gossip",
			Name:      "packet_bytes_inbound_total",
			Help:      "Total number of bytes read from UDP",
		}),
		PacketBytesOutbound: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "chitchat",
			Subsystem: "gossip",
			Name:      "packet_bytes_outbound_total",
			Help:      "Total number of bytes written to UDP",
		}),
		DigestEntriesInbound: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "chitchat",
			Subsystem: "gossip",
			Name:      "digest_entries_inbound_total",
			Help:      "Total number of inbound per-node digest entries",
		}),
		DigestEntriesOutbound: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "chitchat",
			Subsystem: "gossip",
			Name:      "digest_entries_outbound_total",
			Help:      "Total number of outbound per-node digest entries",
		}),
		DeltaKeyValuesInbound: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "chitchat",
			Subsystem: "gossip",
			Name:      "delta_key_values_inbound_total",
			Help:      "Total number of inbound key-value mutations",
		}),
		DeltaKeyValuesOutbound: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "chitchat",
			Subsystem: "gossip",
			Name:      "delta_key_values_outbound_total",
			Help:      "Total number of outbound key-value mutations",
		}),
		BadClusterTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "chitchat",
			Subsystem: "gossip",
			Name:      "bad_cluster_total",
			Help:      "Total number of gossip rounds rejected for a cluster ID mismatch",
		}),
		NodesLive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "chitchat",
			Subsystem: "gossip",
			Name:      "nodes_live",
			Help:      "Current number of nodes classified live",
		}),
		NodesDead: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "chitchat",
			Subsystem: "gossip",
			Name:      "nodes_dead",
			Help:      "Current number of nodes classified dead",
		}),
		KeyValues: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "chitchat",
			Subsystem: "gossip",
			Name:      "key_values",
			Help:      "Number of stored key-value entries",
		}, []string{"node_id", "deleted"}),
	}
}

// Register adds every collector to reg.
func (m *Metrics) Register(reg *prometheus.Registry) {
	reg.MustRegister(
		m.PacketBytesInbound,
		m.PacketBytesOutbound,
		m.DigestEntriesInbound,
		m.DigestEntriesOutbound,
		m.DeltaKeyValuesInbound,
		m.DeltaKeyValuesOutbound,
		m.BadClusterTotal,
		m.NodesLive,
		m.NodesDead,
		m.KeyValues,
	)
}
