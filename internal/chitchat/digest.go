package chitchat

// NodeDigest is the compact per-node summary exchanged in a Digest: enough
// for the receiver to decide what it is missing without transmitting any
// key-value payload.
type NodeDigest struct {
	Heartbeat     Heartbeat
	MaxVersion    Version
	LastGCVersion Version
}

// Digest is a point-in-time summary of every node a sender knows about. It
// is the first message exchanged in a gossip round (carried inside Syn and
// SynAck) and drives delta computation on the receiving side.
type Digest struct {
	NodeDigests map[ID]NodeDigest
}

// NewDigest creates an empty Digest.
func NewDigest() *Digest {
	return &Digest{NodeDigests: make(map[ID]NodeDigest)}
}

// Add records id's digest entry.
func (d *Digest) Add(id ID, entry NodeDigest) {
	d.NodeDigests[id] = entry
}

// Get returns id's digest entry, if the sender reported one.
func (d *Digest) Get(id ID) (NodeDigest, bool) {
	entry, ok := d.NodeDigests[id]
	return entry, ok
}

// Len reports the number of nodes the digest describes.
func (d *Digest) Len() int { return len(d.NodeDigests) }
