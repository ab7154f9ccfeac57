package chitchat

// messageType is the one-byte tag that opens every UDP datagram exchanged
// between two chitchat nodes.
type messageType uint8

const (
	messageTypeSyn messageType = iota + 1
	messageTypeSynAck
	messageTypeAck
	messageTypeBadCluster
)

func (t messageType) String() string {
	switch t {
	case messageTypeSyn:
		return "syn"
	case messageTypeSynAck:
		return "syn_ack"
	case messageTypeAck:
		return "ack"
	case messageTypeBadCluster:
		return "bad_cluster"
	default:
		return "unknown"
	}
}

// Message is the envelope for the three-step gossip handshake (Syn,
// SynAck, Ack) plus the BadCluster rejection. Exactly one of the typed
// fields is populated, matching which Type the message carries.
type Message struct {
	Type messageType

	Syn        *SynMessage
	SynAck     *SynAckMessage
	Ack        *AckMessage
	BadCluster *BadClusterMessage
}

// SynMessage opens a gossip round: the initiator's ID (so the responder can
// report a liveness sample for it), cluster ID (so the peer can reject a
// cross-cluster gossip attempt) and its view of the cluster, summarized as
// a Digest.
type SynMessage struct {
	SenderID  ID
	ClusterID string
	Digest    *Digest
}

// SynAckMessage responds to a Syn with the responder's ID, its own Digest,
// and a Delta bringing the initiator up to date on whatever the
// responder's Digest showed the initiator was missing.
type SynAckMessage struct {
	SenderID ID
	Digest   *Digest
	Delta    *Delta
}

// AckMessage completes the round: the initiator's ID (so the responder can
// report a liveness sample for it) and a Delta bringing the responder up to
// date on whatever the responder's Digest (from SynAck) showed the
// responder was missing.
type AckMessage struct {
	SenderID ID
	Delta    *Delta
}

// BadClusterMessage is returned instead of a SynAck when the Syn's
// ClusterID does not match the responder's own, so the initiator learns the
// peer belongs to a different cluster instead of silently timing out. The
// transport only logs it; later rounds may still select that peer.
type BadClusterMessage struct{}

// NewSyn builds a Syn envelope.
func NewSyn(senderID ID, clusterID string, digest *Digest) *Message {
	return &Message{Type: messageTypeSyn, Syn: &SynMessage{SenderID: senderID, ClusterID: clusterID, Digest: digest}}
}

// NewSynAck builds a SynAck envelope.
func NewSynAck(senderID ID, digest *Digest, delta *Delta) *Message {
	return &Message{Type: messageTypeSynAck, SynAck: &SynAckMessage{SenderID: senderID, Digest: digest, Delta: delta}}
}

// NewAck builds an Ack envelope.
func NewAck(senderID ID, delta *Delta) *Message {
	return &Message{Type: messageTypeAck, Ack: &AckMessage{SenderID: senderID, Delta: delta}}
}

// NewBadCluster builds a BadCluster envelope.
func NewBadCluster() *Message {
	return &Message{Type: messageTypeBadCluster, BadCluster: &BadClusterMessage{}}
}
