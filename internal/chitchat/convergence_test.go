package chitchat

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type convergenceNode struct {
	state       *ClusterState
	coordinator *Coordinator
}

func newConvergenceNode(t *testing.T, id ID, clock Clock) *convergenceNode {
	t.Helper()
	cfg := ClusterStateConfig{ClusterID: "test-cluster", SelfID: id}
	fd := NewFailureDetector(DefaultFailureDetectorConfig())
	state := NewClusterState(cfg, clock, NewRand(42), fd, NewMetrics())
	coord := NewCoordinator(state, DefaultCoordinatorConfig(), NewRand(42), clock)
	return &convergenceNode{state: state, coordinator: coord}
}

// gossipRound drives one full Syn/SynAck/Ack exchange between a and b,
// entirely in memory, mirroring what the transport loop does over UDP.
func gossipRound(a, b *convergenceNode) {
	syn := a.coordinator.BuildSyn()
	synAckMsg := b.coordinator.OnSyn(syn.Syn)
	ackMsg := a.coordinator.OnSynAck(synAckMsg.SynAck)
	b.coordinator.OnAck(ackMsg.Ack)
}

func TestConvergenceTwoNodesSyncKeyValues(t *testing.T) {
	clock := NewVirtualClock(time.Unix(0, 0))
	a := newConvergenceNode(t, ID{NodeID: "a", GossipAdvertiseAddr: "10.0.0.1:7000"}, clock)
	b := newConvergenceNode(t, ID{NodeID: "b", GossipAdvertiseAddr: "10.0.0.2:7000"}, clock)

	a.state.SetLocal("role", "leader")
	b.state.SetLocal("role", "follower")

	gossipRound(a, b)

	v, ok := b.state.Get(a.state.SelfID(), "role")
	require.True(t, ok)
	assert.Equal(t, "leader", v)

	v, ok = a.state.Get(b.state.SelfID(), "role")
	require.True(t, ok)
	assert.Equal(t, "follower", v)
}

func TestConvergencePropagatesDeletes(t *testing.T) {
	clock := NewVirtualClock(time.Unix(0, 0))
	a := newConvergenceNode(t, ID{NodeID: "a", GossipAdvertiseAddr: "10.0.0.1:7000"}, clock)
	b := newConvergenceNode(t, ID{NodeID: "b", GossipAdvertiseAddr: "10.0.0.2:7000"}, clock)

	a.state.SetLocal("k", "v")
	gossipRound(a, b)
	_, ok := b.state.Get(a.state.SelfID(), "k")
	require.True(t, ok)

	a.state.DeleteLocal("k")
	gossipRound(a, b)
	_, ok = b.state.Get(a.state.SelfID(), "k")
	assert.False(t, ok)
}

func TestConvergenceRejectsDifferentCluster(t *testing.T) {
	clock := NewVirtualClock(time.Unix(0, 0))
	a := newConvergenceNode(t, ID{NodeID: "a", GossipAdvertiseAddr: "10.0.0.1:7000"}, clock)

	cfg := ClusterStateConfig{ClusterID: "other-cluster", SelfID: ID{NodeID: "b", GossipAdvertiseAddr: "10.0.0.2:7000"}}
	fd := NewFailureDetector(DefaultFailureDetectorConfig())
	otherState := NewClusterState(cfg, clock, NewRand(1), fd, NewMetrics())
	otherCoord := NewCoordinator(otherState, DefaultCoordinatorConfig(), NewRand(1), clock)

	syn := a.coordinator.BuildSyn()
	reply := otherCoord.OnSyn(syn.Syn)
	require.NotNil(t, reply.BadCluster)
}

func TestConvergenceThreeNodesViaRelay(t *testing.T) {
	clock := NewVirtualClock(time.Unix(0, 0))
	a := newConvergenceNode(t, ID{NodeID: "a", GossipAdvertiseAddr: "10.0.0.1:7000"}, clock)
	b := newConvergenceNode(t, ID{NodeID: "b", GossipAdvertiseAddr: "10.0.0.2:7000"}, clock)
	c := newConvergenceNode(t, ID{NodeID: "c", GossipAdvertiseAddr: "10.0.0.3:7000"}, clock)

	a.state.SetLocal("k", "from-a")

	// a <-> b learns b about a; b <-> c relays a's state to c without a and
	// c ever having gossiped directly.
	gossipRound(a, b)
	gossipRound(b, c)

	v, ok := c.state.Get(a.state.SelfID(), "k")
	require.True(t, ok)
	assert.Equal(t, "from-a", v)
}
