package chitchat

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCoordinatorOnSynRejectsBadCluster(t *testing.T) {
	clock := NewVirtualClock(time.Unix(0, 0))
	self := ID{NodeID: "self", GossipAdvertiseAddr: "10.0.0.1:7000"}
	cfg := ClusterStateConfig{ClusterID: "cluster-a", SelfID: self}
	state := NewClusterState(cfg, clock, NewRand(1), NewFailureDetector(DefaultFailureDetectorConfig()), NewMetrics())
	coord := NewCoordinator(state, DefaultCoordinatorConfig(), NewRand(1), clock)

	reply := coord.OnSyn(&SynMessage{
		SenderID:  ID{NodeID: "peer", GossipAdvertiseAddr: "10.0.0.2:7000"},
		ClusterID: "cluster-b",
		Digest:    NewDigest(),
	})
	require.NotNil(t, reply.BadCluster)
}

func TestCoordinatorTickAdvancesHeartbeatAndGCs(t *testing.T) {
	clock := NewVirtualClock(time.Unix(0, 0))
	self := ID{NodeID: "self", GossipAdvertiseAddr: "10.0.0.1:7000"}
	cfg := ClusterStateConfig{ClusterID: "cluster-a", SelfID: self}
	fdCfg := DefaultFailureDetectorConfig()
	fdCfg.DeadNodeGracePeriod = time.Minute
	state := NewClusterState(cfg, clock, NewRand(1), NewFailureDetector(fdCfg), NewMetrics())
	coord := NewCoordinator(state, DefaultCoordinatorConfig(), NewRand(1), clock)

	coord.Tick(time.Second)
	_, ok := state.Get(self, HeartbeatKey)
	require.True(t, ok)
}

func TestCoordinatorSelectGossipTargetsBoundedByGossipCount(t *testing.T) {
	clock := NewVirtualClock(time.Unix(0, 0))
	self := ID{NodeID: "self", GossipAdvertiseAddr: "10.0.0.1:7000"}
	cfg := ClusterStateConfig{ClusterID: "cluster-a", SelfID: self}
	state := NewClusterState(cfg, clock, NewRand(1), NewFailureDetector(DefaultFailureDetectorConfig()), NewMetrics())
	for i := 0; i < 10; i++ {
		peer := ID{NodeID: "peer", GenerationID: uint64(i), GossipAdvertiseAddr: "10.0.0.2:7000"}
		state.ReportHeartbeat(peer)
	}

	coordCfg := DefaultCoordinatorConfig()
	coordCfg.GossipCount = 2
	coord := NewCoordinator(state, coordCfg, NewRand(1), clock)

	live, _, _ := coord.SelectGossipTargets()
	assert.LessOrEqual(t, len(live), 2)
}
