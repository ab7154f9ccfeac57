package chitchat

import (
	"sort"
	"strconv"
	"sync"
	"time"
)

// ReadinessPredicate decides whether the local node should report itself
// ready, given the set of peers currently classified live. Typical
// predicates require a minimum live cluster size before flipping to ready.
type ReadinessPredicate func(liveNodeIDs []ID, selfID ID) bool

// ClusterStateConfig configures a ClusterState.
type ClusterStateConfig struct {
	ClusterID                   string
	SelfID                      ID
	MarkedForDeletionGracePeriod time.Duration
	IsReady                     ReadinessPredicate
}

// ClusterState owns the local node's view of the whole cluster: every known
// peer's NodeState, the failure detector tracking their liveness, and the
// listener registry and watch channels that let the rest of the process
// react to changes. Every exported mutator takes the single internal mutex
// for the duration of the in-memory update only; it is always released
// before any listener callback or watch broadcast runs, so a listener can
// safely call back into the ClusterState without deadlocking.
type ClusterState struct {
	mu    sync.Mutex
	cfg   ClusterStateConfig
	nodes map[ID]*NodeState

	clock           Clock
	rng             RNG
	failureDetector *FailureDetector
	listeners       *ListenerRegistry
	metrics         *Metrics

	liveNodesWatch *Watch[[]ID]
	readyWatch     *Watch[bool]
}

// NewClusterState creates a ClusterState containing only the local node.
func NewClusterState(cfg ClusterStateConfig, clock Clock, rng RNG, fd *FailureDetector, metrics *Metrics) *ClusterState {
	cs := &ClusterState{
		cfg:             cfg,
		nodes:           make(map[ID]*NodeState),
		clock:           clock,
		rng:             rng,
		failureDetector: fd,
		listeners:       NewListenerRegistry(),
		metrics:         metrics,
		liveNodesWatch:  NewWatch[[]ID](nil),
		readyWatch:      NewWatch(false),
	}
	cs.nodes[cfg.SelfID] = NewNodeState(cfg.SelfID)
	return cs
}

// SelfID returns the local node's ID.
func (cs *ClusterState) SelfID() ID { return cs.cfg.SelfID }

// ClusterID returns the configured cluster ID, used to reject gossip with
// peers from a different cluster.
func (cs *ClusterState) ClusterID() string { return cs.cfg.ClusterID }

// Listeners returns the registry other packages subscribe to for key
// change notifications.
func (cs *ClusterState) Listeners() *ListenerRegistry { return cs.listeners }

// WatchLiveNodes returns the watch broadcasting the current live peer set
// (including the local node) whenever it changes.
func (cs *ClusterState) WatchLiveNodes() *Watch[[]ID] { return cs.liveNodesWatch }

// WatchReady returns the watch broadcasting the local node's readiness.
func (cs *ClusterState) WatchReady() *Watch[bool] { return cs.readyWatch }

// SetLocal sets key to value on the local node.
func (cs *ClusterState) SetLocal(key, value string) {
	var event KeyChangeEvent
	cs.mu.Lock()
	self := cs.nodes[cs.cfg.SelfID]
	self.Set(key, value)
	event = KeyChangeEvent{NodeID: cs.cfg.SelfID, Key: key, Value: value, Status: StatusSet}
	cs.mu.Unlock()
	cs.listeners.Dispatch([]KeyChangeEvent{event})
}

// SetLocalWithTTL sets key to value on the local node, to be tombstoned by
// the first GCKeysMarkedForDeletion call after ttl elapses.
func (cs *ClusterState) SetLocalWithTTL(key, value string, ttl time.Duration) {
	var event KeyChangeEvent
	now := cs.clock.Now()
	cs.mu.Lock()
	self := cs.nodes[cs.cfg.SelfID]
	self.SetWithTTL(key, value, now, ttl)
	event = KeyChangeEvent{NodeID: cs.cfg.SelfID, Key: key, Value: value, Status: StatusDeleteAfterTTL}
	cs.mu.Unlock()
	cs.listeners.Dispatch([]KeyChangeEvent{event})
}

// DeleteLocal immediately tombstones key on the local node.
func (cs *ClusterState) DeleteLocal(key string) {
	now := cs.clock.Now()
	var event KeyChangeEvent
	cs.mu.Lock()
	self := cs.nodes[cs.cfg.SelfID]
	self.Delete(key, now)
	event = KeyChangeEvent{NodeID: cs.cfg.SelfID, Key: key, Status: StatusDeleted}
	cs.mu.Unlock()
	cs.listeners.Dispatch([]KeyChangeEvent{event})
}

// IncHeartbeat bumps the local node's heartbeat counter and republishes it
// under HeartbeatKey so peers can observe liveness progress from the
// key-value stream alone. Called once per outbound gossip tick.
func (cs *ClusterState) IncHeartbeat() {
	cs.mu.Lock()
	self := cs.nodes[cs.cfg.SelfID]
	self.Heartbeat++
	self.Set(HeartbeatKey, strconv.FormatUint(uint64(self.Heartbeat), 10))
	cs.mu.Unlock()
}

// Get returns the live value of key on node id.
func (cs *ClusterState) Get(id ID, key string) (string, bool) {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	ns, ok := cs.nodes[id]
	if !ok {
		return "", false
	}
	return ns.Get(key)
}

// NodeExists reports whether id is currently tracked.
func (cs *ClusterState) NodeExists(id ID) bool {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	_, ok := cs.nodes[id]
	return ok
}

// AllNodeIDs returns every tracked node, including the local node and dead
// peers not yet garbage collected.
func (cs *ClusterState) AllNodeIDs() []ID {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	out := make([]ID, 0, len(cs.nodes))
	for id := range cs.nodes {
		out = append(out, id)
	}
	return out
}

// LiveNodeIDs returns every peer the failure detector currently classifies
// live, plus the local node (which is always live to itself).
func (cs *ClusterState) LiveNodeIDs() []ID {
	live := cs.failureDetector.LiveNodes()
	return append(live, cs.cfg.SelfID)
}

// DeadNodeIDs returns every peer the failure detector currently classifies
// dead.
func (cs *ClusterState) DeadNodeIDs() []ID {
	return cs.failureDetector.DeadNodes()
}

// ComputeDigest summarizes every tracked node's state, excluding peers the
// failure detector has scheduled for deletion: once a dead peer is halfway
// to final garbage collection, this node stops advertising it so the rest
// of the cluster can converge on forgetting it too.
func (cs *ClusterState) ComputeDigest() *Digest {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	excluded := cs.scheduledForDeletionSetLocked()
	d := NewDigest()
	for id, ns := range cs.nodes {
		if _, skip := excluded[id]; skip {
			continue
		}
		d.Add(id, ns.DigestEntry())
	}
	return d
}

// ComputeDelta builds a Delta bringing a peer who reported peerDigest up to
// date, bounded so the encoded result fits in mtuBudget bytes. Peers
// scheduled for deletion are excluded, same as ComputeDigest. Nodes and
// key-values are chosen by SortedStaleNodes priority; once a key-value
// fails to fit, no further nodes are considered, since they would rank no
// higher in priority order. A node whose entry in peerDigest shows both
// last_gc_version and max_version below our own last_gc_version for it (the
// peer missed tombstones we have already garbage-collected) is offered with
// from_version_excluded=0, signaling the receiver must reset rather than
// apply incrementally.
func (cs *ClusterState) ComputeDelta(peerDigest *Digest, mtuBudget int) *Delta {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	excluded := cs.scheduledForDeletionSetLocked()
	candidates := make(map[ID]*NodeState, len(cs.nodes))
	for id, ns := range cs.nodes {
		if _, skip := excluded[id]; skip {
			continue
		}
		candidates[id] = ns
	}

	order := SortedStaleNodes(candidates, peerDigest, cs.rng)
	b := NewDeltaBuilder(mtuBudget)
outer:
	for _, id := range order {
		ns := candidates[id]

		var digestLastGC, digestMax Version
		if peerDigest != nil {
			if entry, ok := peerDigest.Get(id); ok {
				digestLastGC, digestMax = entry.LastGCVersion, entry.MaxVersion
			}
		}
		if ns.MaxVersion() <= digestMax {
			continue // nothing newer to offer
		}

		fromVersionExcluded := digestMax
		if digestLastGC < ns.LastGCVersion() && digestMax < ns.LastGCVersion() {
			// The peer missed tombstones we have already compacted away;
			// it cannot catch up incrementally.
			fromVersionExcluded = 0
		}

		if !b.TryAddNode(id) {
			break
		}
		b.SetNodeHeader(id, ns.Heartbeat, fromVersionExcluded, ns.LastGCVersion())
		addedKV := false
		for _, kv := range ns.StaleKeyValues(fromVersionExcluded) {
			mut := KVMutation{
				Key:     kv.Key,
				Value:   kv.Value.Value,
				Version: kv.Value.Version,
				Status:  kv.Value.Status.Tag,
			}
			if !b.TryAddKV(id, mut) {
				break outer
			}
			addedKV = true
		}
		if !addedKV {
			b.SetMaxVersion(id, ns.MaxVersion())
		}
	}
	return b.Build()
}

// scheduledForDeletionSetLocked must be called with cs.mu held; it reads
// the failure detector, which keeps its own lock, so this is safe despite
// the outer lock already being taken.
func (cs *ClusterState) scheduledForDeletionSetLocked() map[ID]struct{} {
	ids := cs.failureDetector.ScheduledForDeletionNodes(cs.clock.Now())
	set := make(map[ID]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}

// ApplyDelta merges an incoming Delta into the local view, creating
// NodeState entries for previously unknown nodes, and fires listener
// callbacks once with every change the whole delta produced.
func (cs *ClusterState) ApplyDelta(delta *Delta) {
	if delta == nil || delta.IsEmpty() {
		return
	}
	now := cs.clock.Now()
	var events []KeyChangeEvent
	cs.mu.Lock()
	for id, nd := range delta.NodeDeltas {
		ns, ok := cs.nodes[id]
		if !ok {
			ns = NewNodeState(id)
			cs.nodes[id] = ns
		}
		ns.ApplyDelta(nd, now, &events)
	}
	cs.mu.Unlock()

	cs.listeners.Dispatch(events)
	cs.refreshWatches()
}

// ReportHeartbeat feeds the failure detector a liveness sample for id and
// reclassifies it, firing watch updates on a live/dead transition or when
// id is observed for the very first time.
func (cs *ClusterState) ReportHeartbeat(id ID) {
	now := cs.clock.Now()
	isNew := !cs.failureDetector.Tracks(id)
	cs.failureDetector.ReportHeartbeat(id, now)
	_, changed := cs.failureDetector.UpdateLiveness(id, now)
	if changed || isNew {
		cs.refreshWatches()
	}
}

// GCKeysMarkedForDeletion tombstones every local key whose TTL deadline has
// passed, then permanently removes tombstones older than grace on every
// tracked node.
func (cs *ClusterState) GCKeysMarkedForDeletion(grace time.Duration) {
	now := cs.clock.Now()
	cs.mu.Lock()
	self := cs.nodes[cs.cfg.SelfID]
	for _, kv := range self.IterPrefix("") {
		if kv.Value.Status.Tag == StatusDeleteAfterTTL && !now.Before(kv.Value.Status.At) {
			self.Delete(kv.Key, now)
		}
	}
	for _, ns := range cs.nodes {
		ns.GCKeysMarkedForDeletion(grace, now)
	}
	cs.mu.Unlock()
}

// GCDeadNodes drops NodeState entries for peers the failure detector has
// held as dead for at least its configured grace period.
func (cs *ClusterState) GCDeadNodes() []ID {
	now := cs.clock.Now()
	removed := cs.failureDetector.GarbageCollect(now)
	if len(removed) == 0 {
		return nil
	}
	cs.mu.Lock()
	for _, id := range removed {
		delete(cs.nodes, id)
	}
	cs.mu.Unlock()
	cs.refreshWatches()
	return removed
}

// ScheduledForDeletionNodeIDs returns dead peers halfway to final
// collection, a set the coordinator stops describing in outbound digests
// so the rest of the cluster converges on forgetting them too.
func (cs *ClusterState) ScheduledForDeletionNodeIDs() []ID {
	return cs.failureDetector.ScheduledForDeletionNodes(cs.clock.Now())
}

// NodeSnapshot is a point-in-time view of one peer's state, suitable for
// JSON serialization by an introspection API.
type NodeSnapshot struct {
	ID            ID         `json:"id"`
	Heartbeat     Heartbeat  `json:"heartbeat"`
	MaxVersion    Version    `json:"max_version"`
	LastGCVersion Version    `json:"last_gc_version"`
	Live          bool       `json:"live"`
	KeyValues     []KeyValue `json:"key_values"`
}

// ClusterSnapshot is a point-in-time view of the whole cluster as seen by
// the local node.
type ClusterSnapshot struct {
	SelfID ID             `json:"self_id"`
	Ready  bool           `json:"ready"`
	Nodes  []NodeSnapshot `json:"nodes"`
}

// Snapshot returns a point-in-time view of every tracked node, for an
// introspection API to serialize. Nodes are sorted by NodeID for
// determinism.
func (cs *ClusterState) Snapshot() ClusterSnapshot {
	cs.mu.Lock()
	liveSet := make(map[ID]struct{})
	for _, id := range cs.liveNodeIDsLocked() {
		liveSet[id] = struct{}{}
	}
	nodes := make([]NodeSnapshot, 0, len(cs.nodes))
	for id, ns := range cs.nodes {
		_, live := liveSet[id]
		nodes = append(nodes, NodeSnapshot{
			ID:            id,
			Heartbeat:     ns.Heartbeat,
			MaxVersion:    ns.MaxVersion(),
			LastGCVersion: ns.LastGCVersion(),
			Live:          live,
			KeyValues:     ns.IterPrefix(""),
		})
	}
	cs.mu.Unlock()

	sort.Slice(nodes, func(i, j int) bool { return nodes[i].ID.NodeID < nodes[j].ID.NodeID })

	ready := false
	if cs.cfg.IsReady != nil {
		ready, _ = cs.readyWatch.Get()
	}
	return ClusterSnapshot{SelfID: cs.cfg.SelfID, Ready: ready, Nodes: nodes}
}

// NodeSnapshot returns a point-in-time view of a single node, or ok=false
// if it is not tracked.
func (cs *ClusterState) NodeSnapshot(id ID) (NodeSnapshot, bool) {
	cs.mu.Lock()
	ns, ok := cs.nodes[id]
	if !ok {
		cs.mu.Unlock()
		return NodeSnapshot{}, false
	}
	live := cs.failureDetectorLiveLocked(id)
	snapshot := NodeSnapshot{
		ID:            id,
		Heartbeat:     ns.Heartbeat,
		MaxVersion:    ns.MaxVersion(),
		LastGCVersion: ns.LastGCVersion(),
		Live:          live,
		KeyValues:     ns.IterPrefix(""),
	}
	cs.mu.Unlock()
	return snapshot, true
}

// liveNodeIDsLocked must be called with cs.mu held; it reads the failure
// detector, which keeps its own lock, so this is safe despite the outer
// lock already being taken.
func (cs *ClusterState) liveNodeIDsLocked() []ID {
	live := cs.failureDetector.LiveNodes()
	return append(live, cs.cfg.SelfID)
}

func (cs *ClusterState) failureDetectorLiveLocked(id ID) bool {
	if id == cs.cfg.SelfID {
		return true
	}
	for _, live := range cs.failureDetector.LiveNodes() {
		if live == id {
			return true
		}
	}
	return false
}

func (cs *ClusterState) refreshWatches() {
	liveIDs := cs.LiveNodeIDs()
	cs.liveNodesWatch.Set(liveIDs)
	if cs.cfg.IsReady != nil {
		cs.readyWatch.Set(cs.cfg.IsReady(liveIDs, cs.cfg.SelfID))
	}
}
