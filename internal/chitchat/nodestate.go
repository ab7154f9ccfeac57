package chitchat

import (
	"sort"
	"strings"
	"time"
)

// NodeState is one peer's versioned view: a monotonically increasing
// heartbeat plus a versioned key-value map. Every mutation bumps MaxVersion;
// LastGCVersion is the floor below which tombstoned entries have already
// been compacted away and must never be resent or reapplied.
type NodeState struct {
	ID        ID
	Heartbeat Heartbeat

	maxVersion    Version
	lastGCVersion Version
	keyValues     map[string]VersionedValue
}

// NewNodeState creates an empty NodeState for id.
func NewNodeState(id ID) *NodeState {
	return &NodeState{
		ID:        id,
		keyValues: make(map[string]VersionedValue),
	}
}

// MaxVersion returns the highest version assigned to any key-value in this
// node's history, including compacted-away tombstones.
func (n *NodeState) MaxVersion() Version { return n.maxVersion }

// LastGCVersion returns the floor below which tombstones have been
// compacted away; mutations at or below this version must not be
// reintroduced.
func (n *NodeState) LastGCVersion() Version { return n.lastGCVersion }

// NumKeyValues reports the number of entries currently held, including
// not-yet-collected tombstones.
func (n *NodeState) NumKeyValues() int { return len(n.keyValues) }

func (n *NodeState) nextVersion() Version {
	n.maxVersion++
	return n.maxVersion
}

// Set inserts or overwrites key with a live value. Re-setting an identical
// live value is a no-op and does not bump the version.
func (n *NodeState) Set(key, value string) {
	if existing, ok := n.keyValues[key]; ok && existing.Status.Tag == StatusSet && existing.Value == value {
		return
	}
	n.keyValues[key] = VersionedValue{
		Value:   value,
		Version: n.nextVersion(),
		Status:  DeletionStatus{Tag: StatusSet},
	}
}

// SetWithTTL inserts or overwrites key with value under
// StatusDeleteAfterTTL, recording the deadline now+ttl in Status.At.
// NodeState itself never acts on the deadline; for the local node,
// ClusterState.GCKeysMarkedForDeletion tombstones the key once it passes.
func (n *NodeState) SetWithTTL(key, value string, now time.Time, ttl time.Duration) {
	deadline := now.Add(ttl)
	if existing, ok := n.keyValues[key]; ok && existing.Status.Tag == StatusDeleteAfterTTL &&
		existing.Value == value && existing.Status.At.Equal(deadline) {
		return
	}
	n.keyValues[key] = VersionedValue{
		Value:   value,
		Version: n.nextVersion(),
		Status:  DeletionStatus{Tag: StatusDeleteAfterTTL, At: deadline},
	}
}

// Delete immediately tombstones key at now. A no-op if key is already
// tombstoned.
func (n *NodeState) Delete(key string, now time.Time) {
	existing, ok := n.keyValues[key]
	if ok && existing.Status.Tag == StatusDeleted {
		return
	}
	n.keyValues[key] = VersionedValue{
		Value:   "",
		Version: n.nextVersion(),
		Status:  DeletionStatus{Tag: StatusDeleted, At: now},
	}
}

// Get returns the live value for key, or ok=false if absent or tombstoned.
func (n *NodeState) Get(key string) (string, bool) {
	v, ok := n.keyValues[key]
	if !ok || v.Status.IsTombstone() {
		return "", false
	}
	return v.Value, true
}

// GetVersioned returns the full VersionedValue for key regardless of
// deletion status.
func (n *NodeState) GetVersioned(key string) (VersionedValue, bool) {
	v, ok := n.keyValues[key]
	return v, ok
}

// IterPrefix returns all live (non-tombstoned) key-values whose key has the
// given prefix, sorted by key for determinism.
func (n *NodeState) IterPrefix(prefix string) []KeyValue {
	var out []KeyValue
	for k, v := range n.keyValues {
		if v.Status.IsTombstone() {
			continue
		}
		if !strings.HasPrefix(k, prefix) {
			continue
		}
		out = append(out, KeyValue{Key: k, Value: v})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// StaleKeyValues returns every key-value (including tombstones) with
// Version strictly greater than sinceVersion, ascending by version. This is
// the set a delta must carry to bring a peer who last saw sinceVersion up
// to date.
func (n *NodeState) StaleKeyValues(sinceVersion Version) []KeyValue {
	var out []KeyValue
	for k, v := range n.keyValues {
		if v.Version > sinceVersion {
			out = append(out, KeyValue{Key: k, Value: v})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Value.Version < out[j].Value.Version })
	return out
}

// NumStaleKeyValues reports len(StaleKeyValues(sinceVersion)) without
// allocating; used by delta staleness-priority scoring.
func (n *NodeState) NumStaleKeyValues(sinceVersion Version) int {
	count := 0
	for _, v := range n.keyValues {
		if v.Version > sinceVersion {
			count++
		}
	}
	return count
}

// ApplyDelta applies an incoming NodeDelta for this node. If this NodeState
// has fallen behind the sender's LastGCVersion (our max_version is no
// greater than it and our own LastGCVersion is below it), it has no hope of
// catching up incrementally and the whole NodeState is reset in place
// before any mutation is applied (see resetForDelta). A mutation
// is then applied only if its version is greater than both the version this
// NodeState held before the delta started (captured once, so mutations
// within the same delta cannot suppress each other) and, for a tombstone
// mutation, the LastGCVersion floor, so a delta can never resurrect a
// previously-compacted tombstone or replay an older write out of order.
// Applied changes are appended to events. Reports whether anything changed.
func (n *NodeState) ApplyDelta(delta NodeDelta, now time.Time, events *[]KeyChangeEvent) bool {
	if delta.FromVersionExcluded > n.maxVersion {
		// Stale-from-future: the sender computed this delta against a
		// history we no longer have (we were reset since). Ignore it
		// entirely; the next gossip round recomputes from our current
		// digest.
		return false
	}

	if !(n.maxVersion > delta.LastGCVersion || n.lastGCVersion >= delta.LastGCVersion) {
		if !n.resetForDelta(delta) {
			return false
		}
	}

	changed := false
	if delta.Heartbeat > n.Heartbeat {
		n.Heartbeat = delta.Heartbeat
		changed = true
	}

	currentMaxVersion := n.maxVersion
	for _, mut := range delta.Mutations {
		if mut.Version <= currentMaxVersion {
			continue
		}
		if mut.Status == StatusDeleted && mut.Version <= n.lastGCVersion {
			continue
		}
		if existing, ok := n.keyValues[mut.Key]; ok && mut.Version <= existing.Version {
			continue
		}
		status := DeletionStatus{Tag: mut.Status}
		if mut.Status != StatusSet {
			status.At = now
		}
		n.keyValues[mut.Key] = VersionedValue{
			Value:   mut.Value,
			Version: mut.Version,
			Status:  status,
		}
		if mut.Version > n.maxVersion {
			n.maxVersion = mut.Version
		}
		changed = true
		if events != nil {
			*events = append(*events, KeyChangeEvent{
				NodeID: n.ID,
				Key:    mut.Key,
				Value:  mut.Value,
				Status: status.Tag,
			})
		}
	}
	if delta.MaxVersion > n.maxVersion {
		n.maxVersion = delta.MaxVersion
	}
	return changed
}

// resetForDelta decides whether delta (whose LastGCVersion this NodeState
// has fallen behind) would actually advance this NodeState, and if so replaces
// it with a fresh one so the mutations that follow apply against a clean
// slate. Reports whether the reset happened; false means the delta is
// stale relative to what we already have and must be ignored.
func (n *NodeState) resetForDelta(delta NodeDelta) bool {
	deltaMaxVersion := delta.MaxVersion
	for _, mut := range delta.Mutations {
		if mut.Version > deltaMaxVersion {
			deltaMaxVersion = mut.Version
		}
	}
	if deltaMaxVersion == 0 {
		return false
	}
	if lexLessOrEqual(delta.LastGCVersion, deltaMaxVersion, n.lastGCVersion, n.maxVersion) {
		// Would not advance us past what we already have; reject.
		return false
	}

	var freshMaxVersion Version
	if len(delta.Mutations) == 0 && delta.MaxVersion > 0 {
		freshMaxVersion = delta.MaxVersion
	}
	n.Reset(0, make(map[string]VersionedValue), freshMaxVersion, delta.LastGCVersion)
	return true
}

// lexLessOrEqual reports whether (lgA, mvA) is lexicographically no greater
// than (lgB, mvB), comparing LastGCVersion first and MaxVersion as the
// tiebreaker.
func lexLessOrEqual(lgA, mvA, lgB, mvB Version) bool {
	if lgA != lgB {
		return lgA < lgB
	}
	return mvA <= mvB
}

// GCKeysMarkedForDeletion permanently removes tombstones whose deletion
// instant is older than now-grace, and raises LastGCVersion to the highest
// version among the keys it collected so a later delta can never
// reintroduce them.
func (n *NodeState) GCKeysMarkedForDeletion(grace time.Duration, now time.Time) {
	for k, v := range n.keyValues {
		if v.Status.Tag != StatusDeleted {
			continue
		}
		if now.Sub(v.Status.At) < grace {
			continue
		}
		if v.Version > n.lastGCVersion {
			n.lastGCVersion = v.Version
		}
		delete(n.keyValues, k)
	}
}

// DigestEntry summarizes this node's state for inclusion in a Digest.
func (n *NodeState) DigestEntry() NodeDigest {
	return NodeDigest{
		Heartbeat:     n.Heartbeat,
		MaxVersion:    n.maxVersion,
		LastGCVersion: n.lastGCVersion,
	}
}

// Reset replaces this node's entire key-value space with kvs, discarding
// everything previously held. Used by resetForDelta when an incoming
// NodeDelta has fallen behind LastGCVersion and cannot be applied
// incrementally, and is equally suited to a peer's generation ID changing,
// since a restarted node's version counter starts over and must not be
// merged with the stale history kept under the old generation.
func (n *NodeState) Reset(heartbeat Heartbeat, kvs map[string]VersionedValue, maxVersion, lastGCVersion Version) {
	n.Heartbeat = heartbeat
	n.keyValues = kvs
	n.maxVersion = maxVersion
	n.lastGCVersion = lastGCVersion
}
