package chitchat

import "sort"

// NodeDelta carries one node's heartbeat, the from_version_excluded floor
// this delta was computed against, the sender's last_gc_version, an
// optional max_version ceiling (set only when no key-value mutations were
// included, so a receiver with nothing new to learn still advances its
// perception of the sender), and the key-value mutations themselves.
//
// FromVersionExcluded of 0 signals a full reset: the receiver has fallen
// behind the sender's last_gc_version and must replace its whole NodeState
// rather than apply the mutations incrementally.
type NodeDelta struct {
	Heartbeat           Heartbeat
	FromVersionExcluded Version
	LastGCVersion       Version
	MaxVersion          Version
	Mutations           []KVMutation
}

// Delta is the payload of a SynAck or Ack: the set of per-node mutations
// the sender chose to include, bounded by the gossip round's MTU budget.
type Delta struct {
	NodeDeltas map[ID]NodeDelta
}

// NewDelta creates an empty Delta.
func NewDelta() *Delta {
	return &Delta{NodeDeltas: make(map[ID]NodeDelta)}
}

// IsEmpty reports whether the delta carries no node deltas at all.
func (d *Delta) IsEmpty() bool { return len(d.NodeDeltas) == 0 }

// staleNodeRank is this package's ordering key for which node's stale
// key-values get priority when the outbound delta cannot fit everything: a
// node the receiver has never heard of outranks one it already knows about,
// since learning a new peer exists matters more than catching up a few of
// its keys. Among unknown nodes the one with the lowest max_version goes
// first (it is cheapest to fully describe); among known nodes the one with
// the most stale key-values goes first (it has the most to gain from this
// round).
type staleNodeRank struct {
	id         ID
	knownToPeer bool
	maxVersion  Version
	numStale    int
}

// SortedStaleNodes orders every locally tracked node by how urgently it
// should be included in the next outbound delta, given what the peer's
// digest says it already knows. peerDigest may be nil or incomplete; any
// local node absent from it is treated as unknown to the peer. rng breaks
// ties so that repeated rounds against a quiescent cluster don't always
// starve the same tail of the ordering.
func SortedStaleNodes(local map[ID]*NodeState, peerDigest *Digest, rng RNG) []ID {
	ids := make([]ID, 0, len(local))
	for id := range local {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].Less(ids[j]) })
	rng.Shuffle(len(ids), func(i, j int) { ids[i], ids[j] = ids[j], ids[i] })

	ranks := make([]staleNodeRank, 0, len(ids))
	for _, id := range ids {
		ns := local[id]
		var peerEntry NodeDigest
		known := false
		if peerDigest != nil {
			peerEntry, known = peerDigest.Get(id)
		}
		if !known {
			ranks = append(ranks, staleNodeRank{id: id, knownToPeer: false, maxVersion: ns.MaxVersion()})
			continue
		}
		numStale := ns.NumStaleKeyValues(peerEntry.MaxVersion)
		if numStale == 0 && ns.Heartbeat <= peerEntry.Heartbeat {
			continue
		}
		ranks = append(ranks, staleNodeRank{id: id, knownToPeer: true, numStale: numStale})
	}

	sort.SliceStable(ranks, func(i, j int) bool {
		a, b := ranks[i], ranks[j]
		if a.knownToPeer != b.knownToPeer {
			return !a.knownToPeer
		}
		if !a.knownToPeer {
			return a.maxVersion < b.maxVersion
		}
		return a.numStale > b.numStale
	})

	out := make([]ID, len(ranks))
	for i, r := range ranks {
		out[i] = r.id
	}
	return out
}

// DeltaBuilder accumulates a Delta while tracking how many serialized bytes
// have been committed, so the gossip coordinator can stop adding content
// the instant it would exceed the configured MTU.
type DeltaBuilder struct {
	delta *Delta
	mtu   int
	used  int
}

// NewDeltaBuilder creates a builder with mtuBudget bytes available for
// node headers and key-value mutations.
func NewDeltaBuilder(mtuBudget int) *DeltaBuilder {
	return &DeltaBuilder{delta: NewDelta(), mtu: mtuBudget}
}

// Remaining reports how many bytes are still available in the MTU budget.
func (b *DeltaBuilder) Remaining() int { return b.mtu - b.used }

// TryAddNode reserves space for id and its node header (see
// nodeDeltaHeaderSize) and, on success, starts an (initially empty)
// NodeDelta for it.
func (b *DeltaBuilder) TryAddNode(id ID) bool {
	if _, ok := b.delta.NodeDeltas[id]; ok {
		return true
	}
	cost := encodedIDSize(id) + nodeDeltaHeaderSize
	if b.used+cost > b.mtu {
		return false
	}
	b.used += cost
	b.delta.NodeDeltas[id] = NodeDelta{}
	return true
}

// SetNodeHeader fills in the header fields reserved by a prior TryAddNode
// call for id: the peer's current heartbeat, the from_version_excluded
// floor this delta was computed against (0 signals a full reset the
// receiver must perform), and the sender's last_gc_version.
func (b *DeltaBuilder) SetNodeHeader(id ID, heartbeat Heartbeat, fromVersionExcluded, lastGCVersion Version) {
	nd := b.delta.NodeDeltas[id]
	nd.Heartbeat = heartbeat
	nd.FromVersionExcluded = fromVersionExcluded
	nd.LastGCVersion = lastGCVersion
	b.delta.NodeDeltas[id] = nd
}

// SetMaxVersion records id's current max_version on a NodeDelta that
// carries no key-value mutations, so a receiver with nothing new to learn
// still advances its perception of id's version and stops re-offering it
// on the next round.
func (b *DeltaBuilder) SetMaxVersion(id ID, maxVersion Version) {
	nd := b.delta.NodeDeltas[id]
	nd.MaxVersion = maxVersion
	b.delta.NodeDeltas[id] = nd
}

// TryAddKV appends mut to id's NodeDelta if it fits in the remaining MTU
// budget. id must have already been added via TryAddNode.
func (b *DeltaBuilder) TryAddKV(id ID, mut KVMutation) bool {
	cost := encodedKVMutationSize(mut)
	if b.used+cost > b.mtu {
		return false
	}
	nd := b.delta.NodeDeltas[id]
	nd.Mutations = append(nd.Mutations, mut)
	b.delta.NodeDeltas[id] = nd
	b.used += cost
	return true
}

// Build returns the accumulated Delta.
func (b *DeltaBuilder) Build() *Delta { return b.delta }
