package chitchat

import "time"

// CoordinatorConfig tunes the gossip round: how many peers to contact per
// tick and how many bytes a single outbound datagram may occupy.
type CoordinatorConfig struct {
	// GossipCount is how many peers are contacted on each tick: one live
	// peer selection and one dead/unreachable peer selection, repeated this
	// many times.
	GossipCount int
	// MaxPacketSize bounds the serialized size of any message this node
	// sends. The MTU available for a SynAck/Ack's Delta is this value minus
	// the space the Digest, the message envelope, the sender ID and the
	// delta's node count already consumed.
	MaxPacketSize int
}

// DefaultCoordinatorConfig returns reasonable defaults for a LAN or
// well-connected WAN deployment.
func DefaultCoordinatorConfig() CoordinatorConfig {
	return CoordinatorConfig{
		GossipCount:   3,
		MaxPacketSize: 1400,
	}
}

// Coordinator drives the Syn/SynAck/Ack gossip handshake and the periodic
// liveness bookkeeping. It has no knowledge of sockets: callers feed it
// inbound messages and ask it for an outbound message to send, and
// separately drive Tick to learn which peers to contact next and to run
// per-round maintenance (heartbeat, failure detection, garbage collection).
type Coordinator struct {
	state *ClusterState
	cfg   CoordinatorConfig
	rng   RNG
	clock Clock
}

// NewCoordinator creates a Coordinator driving state.
func NewCoordinator(state *ClusterState, cfg CoordinatorConfig, rng RNG, clock Clock) *Coordinator {
	return &Coordinator{state: state, cfg: cfg, rng: rng, clock: clock}
}

// OnSyn handles an inbound Syn, returning the SynAck (or BadCluster) to
// send back. A mismatched cluster ID is reported to the metrics counter
// and results in a BadCluster reply instead of leaking any state to a peer
// outside this cluster.
func (c *Coordinator) OnSyn(syn *SynMessage) *Message {
	if syn.ClusterID != c.state.ClusterID() {
		if c.state.metrics != nil {
			c.state.metrics.BadClusterTotal.Inc()
		}
		return NewBadCluster()
	}

	c.state.ReportHeartbeat(syn.SenderID)

	localDigest := c.state.ComputeDigest()
	mtu := c.remainingMTUAfterDigest(localDigest)
	delta := c.state.ComputeDelta(syn.Digest, mtu)
	return NewSynAck(c.state.SelfID(), localDigest, delta)
}

// OnSynAck handles an inbound SynAck, applying its Delta to the local
// state and returning the Ack to send back with whatever the SynAck's
// Digest showed the responder was missing.
func (c *Coordinator) OnSynAck(synAck *SynAckMessage) *Message {
	c.state.ReportHeartbeat(synAck.SenderID)
	c.state.ApplyDelta(synAck.Delta)

	// Envelope (type + wire version), sender ID and the delta's node count.
	mtu := c.cfg.MaxPacketSize - 2 - encodedIDSize(c.state.SelfID()) - 2
	if mtu < 0 {
		mtu = 0
	}
	delta := c.state.ComputeDelta(synAck.Digest, mtu)
	return NewAck(c.state.SelfID(), delta)
}

// OnAck handles an inbound Ack, reporting a liveness sample for its sender
// and applying its Delta to the local state.
func (c *Coordinator) OnAck(ack *AckMessage) {
	c.state.ReportHeartbeat(ack.SenderID)
	c.state.ApplyDelta(ack.Delta)
}

// BuildSyn constructs the Syn this node sends to initiate a gossip round.
func (c *Coordinator) BuildSyn() *Message {
	return NewSyn(c.state.SelfID(), c.state.ClusterID(), c.state.ComputeDigest())
}

func (c *Coordinator) remainingMTUAfterDigest(d *Digest) int {
	// Envelope (type + wire version), sender ID and the delta's node count.
	budget := c.cfg.MaxPacketSize - encodedDigestSize(d) - 2 - encodedIDSize(c.state.SelfID()) - 2
	if budget < 0 {
		return 0
	}
	return budget
}

func encodedDigestSize(d *Digest) int {
	if d == nil {
		return 2
	}
	size := 2
	for id := range d.NodeDigests {
		size += encodedIDSize(id) + 8 + 8 + 8
	}
	return size
}

// SelectGossipTargets chooses up to cfg.GossipCount live peers and up to
// cfg.GossipCount dead/unreachable peers to gossip with this tick, plus
// whether a seed address should also be contacted this round even if it is
// not currently a known live peer (so two islands that both believe the
// other side is unreachable, or a node that has never heard from any seed
// at all, still eventually reconnect).
//
// The local node is never selected. Per round, the dead selection is made
// with probability len(dead)/(len(live)+1), mirroring quickwit's chitchat:
// the more peers currently look dead relative to the live set, the more
// gossip effort is steered at confirming whether they really are.
func (c *Coordinator) SelectGossipTargets() (live []ID, dead []ID, includeSeed bool) {
	var liveIDs []ID
	for _, id := range c.state.LiveNodeIDs() {
		if id != c.state.SelfID() {
			liveIDs = append(liveIDs, id)
		}
	}
	deadIDs := c.state.DeadNodeIDs()

	live = pickRandomSubset(liveIDs, c.cfg.GossipCount, c.rng)

	deadProbability := float64(len(deadIDs)) / float64(len(liveIDs)+1)
	if len(deadIDs) > 0 && c.rng.Float64() < deadProbability {
		dead = pickRandomSubset(deadIDs, c.cfg.GossipCount, c.rng)
	}

	// Always give seeds a small independent chance of being gossiped with,
	// so a node that only ever hears about seeds through other live peers
	// doesn't lose that path entirely once it has its own live set.
	includeSeed = c.rng.Float64() < 1.0/float64(len(liveIDs)+1)

	return live, dead, includeSeed
}

func pickRandomSubset(ids []ID, n int, rng RNG) []ID {
	if len(ids) == 0 {
		return nil
	}
	cp := make([]ID, len(ids))
	copy(cp, ids)
	rng.Shuffle(len(cp), func(i, j int) { cp[i], cp[j] = cp[j], cp[i] })
	if n > len(cp) {
		n = len(cp)
	}
	return cp[:n]
}

// Tick runs the coordinator's per-round maintenance: advancing the local
// heartbeat, recomputing liveness for every tracked peer against the
// failure detector's Phi threshold, and garbage collecting tombstones and
// long-dead peer records. Callers invoke this once per gossip interval,
// independent of (and typically just before) calling SelectGossipTargets.
func (c *Coordinator) Tick(markedForDeletionGrace time.Duration) {
	c.state.IncHeartbeat()

	now := c.clock.Now()
	for _, id := range c.state.AllNodeIDs() {
		if id == c.state.SelfID() {
			continue
		}
		c.state.failureDetector.UpdateLiveness(id, now)
	}
	c.state.refreshWatches()

	c.state.GCKeysMarkedForDeletion(markedForDeletionGrace)
	c.state.GCDeadNodes()
}
