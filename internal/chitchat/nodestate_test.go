package chitchat

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testID() ID {
	return ID{NodeID: "node-1", GenerationID: 1, GossipAdvertiseAddr: "10.0.0.1:7000"}
}

func TestNodeStateSetAndGet(t *testing.T) {
	ns := NewNodeState(testID())

	_, ok := ns.Get("key")
	assert.False(t, ok)

	ns.Set("key", "value")
	v, ok := ns.Get("key")
	require.True(t, ok)
	assert.Equal(t, "value", v)
	assert.EqualValues(t, 1, ns.MaxVersion())

	// Re-setting an identical value is a no-op and must not bump version.
	ns.Set("key", "value")
	assert.EqualValues(t, 1, ns.MaxVersion())

	ns.Set("key", "value2")
	assert.EqualValues(t, 2, ns.MaxVersion())
}

func TestNodeStateDeleteTombstones(t *testing.T) {
	ns := NewNodeState(testID())
	ns.Set("key", "value")

	now := time.Unix(1000, 0)
	ns.Delete("key", now)

	_, ok := ns.Get("key")
	assert.False(t, ok, "a tombstoned key must not be visible via Get")

	vv, ok := ns.GetVersioned("key")
	require.True(t, ok)
	assert.True(t, vv.Status.IsTombstone())
	assert.Equal(t, now, vv.Status.At)
}

func TestNodeStateSetWithTTL(t *testing.T) {
	ns := NewNodeState(testID())
	now := time.Unix(1000, 0)
	ns.SetWithTTL("key", "value", now, 5*time.Second)

	v, ok := ns.Get("key")
	require.True(t, ok)
	assert.Equal(t, "value", v)

	vv, _ := ns.GetVersioned("key")
	assert.Equal(t, StatusDeleteAfterTTL, vv.Status.Tag)
	assert.Equal(t, now.Add(5*time.Second), vv.Status.At)
}

func TestNodeStateIterPrefixExcludesTombstones(t *testing.T) {
	ns := NewNodeState(testID())
	ns.Set("a/1", "x")
	ns.Set("a/2", "y")
	ns.Set("b/1", "z")
	ns.Delete("a/2", time.Unix(0, 0))

	kvs := ns.IterPrefix("a/")
	require.Len(t, kvs, 1)
	assert.Equal(t, "a/1", kvs[0].Key)
}

func TestNodeStateStaleKeyValuesOrderedByVersion(t *testing.T) {
	ns := NewNodeState(testID())
	ns.Set("k1", "v1")
	ns.Set("k2", "v2")
	ns.Set("k3", "v3")

	stale := ns.StaleKeyValues(1)
	require.Len(t, stale, 2)
	assert.Equal(t, "k2", stale[0].Key)
	assert.Equal(t, "k3", stale[1].Key)
	assert.Equal(t, 2, ns.NumStaleKeyValues(1))
}

func TestNodeStateApplyDeltaRejectsStaleAndGCdVersions(t *testing.T) {
	ns := NewNodeState(testID())
	ns.Set("k", "v1")
	now := time.Unix(0, 0)

	var events []KeyChangeEvent
	changed := ns.ApplyDelta(NodeDelta{
		MaxVersion: 1,
		Mutations: []KVMutation{
			{Key: "k", Value: "stale", Version: 1, Status: StatusSet},
		},
	}, now, &events)
	assert.False(t, changed, "a mutation at a version no newer than what's stored must be ignored")
	v, _ := ns.Get("k")
	assert.Equal(t, "v1", v)
	assert.Empty(t, events)

	changed = ns.ApplyDelta(NodeDelta{
		Heartbeat:  5,
		MaxVersion: 2,
		Mutations: []KVMutation{
			{Key: "k", Value: "v2", Version: 2, Status: StatusSet},
		},
	}, now, &events)
	assert.True(t, changed)
	v, _ = ns.Get("k")
	assert.Equal(t, "v2", v)
	require.Len(t, events, 1)
	assert.Equal(t, "k", events[0].Key)
	assert.EqualValues(t, 5, ns.Heartbeat)
}

func TestNodeStateGCPermanentlyExcludesCompactedVersions(t *testing.T) {
	ns := NewNodeState(testID())
	now := time.Unix(1000, 0)
	ns.Set("k", "v")
	ns.Delete("k", now)

	ns.GCKeysMarkedForDeletion(time.Minute, now.Add(2*time.Minute))
	_, ok := ns.GetVersioned("k")
	assert.False(t, ok)
	assert.EqualValues(t, 2, ns.LastGCVersion())

	// A delta replaying the old, now-collected version must not resurrect
	// the tombstone.
	var events []KeyChangeEvent
	changed := ns.ApplyDelta(NodeDelta{
		MaxVersion: 2,
		Mutations: []KVMutation{
			{Key: "k", Value: "v", Version: 2, Status: StatusSet},
		},
	}, now, &events)
	assert.False(t, changed)
	_, ok = ns.GetVersioned("k")
	assert.False(t, ok)
}

func TestNodeStateApplyDeltaResetsWhenBehindLastGCVersion(t *testing.T) {
	// node1 sets a=1..a=10, deletes a, waits past grace, runs GC (bumping
	// last_gc_version to 11). A receiver with empty state for node1 gets a
	// delta with from_version_excluded=0, last_gc_version=11 and must
	// install a fresh NodeState whose last_gc_version is 11.
	ns := NewNodeState(testID())
	now := time.Unix(0, 0)

	var events []KeyChangeEvent
	changed := ns.ApplyDelta(NodeDelta{
		Heartbeat:           3,
		FromVersionExcluded: 0,
		LastGCVersion:       11,
		MaxVersion:          11,
		Mutations: []KVMutation{
			{Key: "b", Value: "fresh", Version: 12, Status: StatusSet},
		},
	}, now, &events)

	require.True(t, changed)
	assert.EqualValues(t, 11, ns.LastGCVersion())
	assert.EqualValues(t, 12, ns.MaxVersion())
	v, ok := ns.Get("b")
	require.True(t, ok)
	assert.Equal(t, "fresh", v)
	// Nothing survives from before the reset.
	_, ok = ns.GetVersioned("a")
	assert.False(t, ok)
}

func TestNodeStateApplyDeltaIgnoresStaleFromFuture(t *testing.T) {
	ns := NewNodeState(testID())
	ns.Set("k", "v1")

	var events []KeyChangeEvent
	changed := ns.ApplyDelta(NodeDelta{
		FromVersionExcluded: 99,
		MaxVersion:          100,
		Mutations: []KVMutation{
			{Key: "k", Value: "v100", Version: 100, Status: StatusSet},
		},
	}, time.Unix(0, 0), &events)

	assert.False(t, changed, "a delta computed against a future we don't have must be ignored entirely")
	v, _ := ns.Get("k")
	assert.Equal(t, "v1", v)
	assert.Empty(t, events)
}

func TestNodeStateApplyDeltaRejectsResetThatWouldNotAdvance(t *testing.T) {
	// A fresh NodeState falls below the delta's last_gc_version, so
	// resetForDelta is invoked, but the delta carries neither a
	// max_version nor any mutations: it has nothing that would actually
	// advance us, and must be rejected rather than installed as an empty
	// reset.
	ns := NewNodeState(testID())
	now := time.Unix(0, 0)

	var events []KeyChangeEvent
	changed := ns.ApplyDelta(NodeDelta{
		FromVersionExcluded: 0,
		LastGCVersion:       5,
	}, now, &events)

	assert.False(t, changed, "a reset carrying no content must be rejected")
	assert.EqualValues(t, 0, ns.LastGCVersion())
	assert.EqualValues(t, 0, ns.MaxVersion())
	assert.Empty(t, events)
}
