package chitchat

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSortedStaleNodesUnknownOutranksKnown(t *testing.T) {
	known := ID{NodeID: "known", GossipAdvertiseAddr: "10.0.0.1:7000"}
	unknown := ID{NodeID: "unknown", GossipAdvertiseAddr: "10.0.0.2:7000"}

	local := map[ID]*NodeState{}
	local[known] = NewNodeState(known)
	local[known].Set("k", "v")
	local[unknown] = NewNodeState(unknown)
	local[unknown].Set("k", "v")

	peerDigest := NewDigest()
	peerDigest.Add(known, NodeDigest{MaxVersion: 0})

	order := SortedStaleNodes(local, peerDigest, NewRand(1))
	require.Len(t, order, 2)
	assert.Equal(t, unknown, order[0], "a node the peer has never heard of must be described before one it already knows")
}

func TestSortedStaleNodesRanksKnownByStaleCount(t *testing.T) {
	few := ID{NodeID: "few", GossipAdvertiseAddr: "10.0.0.1:7000"}
	many := ID{NodeID: "many", GossipAdvertiseAddr: "10.0.0.2:7000"}

	local := map[ID]*NodeState{}
	local[few] = NewNodeState(few)
	local[few].Set("k", "v")
	local[many] = NewNodeState(many)
	local[many].Set("k1", "v")
	local[many].Set("k2", "v")
	local[many].Set("k3", "v")

	peerDigest := NewDigest()
	peerDigest.Add(few, NodeDigest{MaxVersion: 0})
	peerDigest.Add(many, NodeDigest{MaxVersion: 0})

	order := SortedStaleNodes(local, peerDigest, NewRand(1))
	require.Len(t, order, 2)
	assert.Equal(t, many, order[0])
}

func TestDeltaBuilderStopsAtMTU(t *testing.T) {
	id := ID{NodeID: "node-1", GossipAdvertiseAddr: "10.0.0.1:7000"}
	mut := KVMutation{Key: "k", Value: "v", Version: 1, Status: StatusSet}

	budget := encodedIDSize(id) + nodeDeltaHeaderSize + encodedKVMutationSize(mut)
	b := NewDeltaBuilder(budget)

	require.True(t, b.TryAddNode(id))
	require.True(t, b.TryAddKV(id, mut))
	// A second mutation should not fit in the remaining budget.
	assert.False(t, b.TryAddKV(id, KVMutation{Key: "k2", Value: "v2", Version: 2, Status: StatusSet}))

	delta := b.Build()
	require.Len(t, delta.NodeDeltas[id].Mutations, 1)
}
