package transport

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chitchatlabs/chitchat/internal/chitchat"
	"github.com/chitchatlabs/chitchat/pkg/log"
)

type testNode struct {
	transport *Transport
	state     *chitchat.ClusterState
}

func newTestNode(t *testing.T, nodeID string) *testNode {
	t.Helper()

	conn, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	self := chitchat.ID{NodeID: nodeID, GossipAdvertiseAddr: conn.LocalAddr().String()}
	cfg := chitchat.ClusterStateConfig{ClusterID: "test-cluster", SelfID: self}
	fd := chitchat.NewFailureDetector(chitchat.DefaultFailureDetectorConfig())
	metrics := chitchat.NewMetrics()
	state := chitchat.NewClusterState(cfg, &chitchat.SystemClock{}, chitchat.NewRand(1), fd, metrics)
	coord := chitchat.NewCoordinator(state, chitchat.DefaultCoordinatorConfig(), chitchat.NewRand(1), &chitchat.SystemClock{})

	transport := New(conn, coord, metrics, nil, Config{
		GossipInterval:         20 * time.Millisecond,
		MaxPacketSize:          1400,
		MarkedForDeletionGrace: time.Hour,
	}, log.NewNopLogger())

	go func() { _ = transport.Serve() }()
	t.Cleanup(func() { _ = transport.Close() })

	return &testNode{transport: transport, state: state}
}

// TestTransportConvergesOverUDP gossips two real UDP sockets and checks
// their state converges, exercising the encode/decode path end to end
// rather than the in-memory shortcut convergence_test.go uses.
func TestTransportConvergesOverUDP(t *testing.T) {
	a := newTestNode(t, "a")
	b := newTestNode(t, "b")

	a.state.SetLocal("role", "leader")
	b.state.SetLocal("role", "follower")

	bAddr := b.state.SelfID().GossipAdvertiseAddr
	udpAddr, err := net.ResolveUDPAddr("udp", bAddr)
	require.NoError(t, err)

	syn := a.transport.coordinator.BuildSyn()
	a.transport.send(udpAddr, syn)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		_, aKnowsB := a.state.Get(b.state.SelfID(), "role")
		_, bKnowsA := b.state.Get(a.state.SelfID(), "role")
		if aKnowsB && bKnowsA {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	v, ok := a.state.Get(b.state.SelfID(), "role")
	require.True(t, ok)
	assert.Equal(t, "follower", v)

	v, ok = b.state.Get(a.state.SelfID(), "role")
	require.True(t, ok)
	assert.Equal(t, "leader", v)
}
