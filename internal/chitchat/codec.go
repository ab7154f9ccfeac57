package chitchat

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// wireVersion guards against decoding a message encoded by an incompatible
// future revision of this codec.
const wireVersion uint8 = 1

// nodeDeltaHeaderSize is the encoded size, in bytes, of a NodeDelta's fixed
// header (heartbeat + from_version_excluded + last_gc_version + max_version
// + mutation count), excluding its ID and its mutations.
const nodeDeltaHeaderSize = 8 + 8 + 8 + 8 + 2

// encodedIDSize returns the number of bytes id occupies on the wire.
func encodedIDSize(id ID) int {
	return encodedStringSize(id.NodeID) + 8 + encodedStringSize(id.GossipAdvertiseAddr)
}

// encodedKVMutationSize returns the number of bytes mut occupies on the
// wire.
func encodedKVMutationSize(mut KVMutation) int {
	return encodedStringSize(mut.Key) + encodedStringSize(mut.Value) + 8 + 1
}

func encodedStringSize(s string) int {
	return 2 + len(s)
}

// EncodeMessage serializes msg into its binary wire form: one byte for the
// message type, one byte for the wire version, then the type-specific
// payload.
func EncodeMessage(msg *Message) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte(byte(msg.Type))
	buf.WriteByte(wireVersion)

	switch msg.Type {
	case messageTypeSyn:
		if msg.Syn == nil {
			return nil, fmt.Errorf("chitchat: encode syn: missing payload")
		}
		writeID(&buf, msg.Syn.SenderID)
		writeString(&buf, msg.Syn.ClusterID)
		writeDigest(&buf, msg.Syn.Digest)
	case messageTypeSynAck:
		if msg.SynAck == nil {
			return nil, fmt.Errorf("chitchat: encode syn_ack: missing payload")
		}
		writeID(&buf, msg.SynAck.SenderID)
		writeDigest(&buf, msg.SynAck.Digest)
		writeDelta(&buf, msg.SynAck.Delta)
	case messageTypeAck:
		if msg.Ack == nil {
			return nil, fmt.Errorf("chitchat: encode ack: missing payload")
		}
		writeID(&buf, msg.Ack.SenderID)
		writeDelta(&buf, msg.Ack.Delta)
	case messageTypeBadCluster:
		// No payload.
	default:
		return nil, fmt.Errorf("chitchat: encode: unknown message type %d", msg.Type)
	}
	return buf.Bytes(), nil
}

// DecodeMessage parses a binary wire-format message previously produced by
// EncodeMessage.
func DecodeMessage(b []byte) (*Message, error) {
	r := bytes.NewReader(b)
	typByte, err := r.ReadByte()
	if err != nil {
		return nil, fmt.Errorf("chitchat: decode: read type: %w", err)
	}
	version, err := r.ReadByte()
	if err != nil {
		return nil, fmt.Errorf("chitchat: decode: read version: %w", err)
	}
	if version != wireVersion {
		return nil, fmt.Errorf("chitchat: decode: unsupported wire version %d", version)
	}

	typ := messageType(typByte)
	msg := &Message{Type: typ}
	switch typ {
	case messageTypeSyn:
		senderID, err := readID(r)
		if err != nil {
			return nil, fmt.Errorf("chitchat: decode syn: sender_id: %w", err)
		}
		clusterID, err := readString(r)
		if err != nil {
			return nil, fmt.Errorf("chitchat: decode syn: cluster_id: %w", err)
		}
		digest, err := readDigest(r)
		if err != nil {
			return nil, fmt.Errorf("chitchat: decode syn: digest: %w", err)
		}
		msg.Syn = &SynMessage{SenderID: senderID, ClusterID: clusterID, Digest: digest}
	case messageTypeSynAck:
		senderID, err := readID(r)
		if err != nil {
			return nil, fmt.Errorf("chitchat: decode syn_ack: sender_id: %w", err)
		}
		digest, err := readDigest(r)
		if err != nil {
			return nil, fmt.Errorf("chitchat: decode syn_ack: digest: %w", err)
		}
		delta, err := readDelta(r)
		if err != nil {
			return nil, fmt.Errorf("chitchat: decode syn_ack: delta: %w", err)
		}
		msg.SynAck = &SynAckMessage{SenderID: senderID, Digest: digest, Delta: delta}
	case messageTypeAck:
		senderID, err := readID(r)
		if err != nil {
			return nil, fmt.Errorf("chitchat: decode ack: sender_id: %w", err)
		}
		delta, err := readDelta(r)
		if err != nil {
			return nil, fmt.Errorf("chitchat: decode ack: delta: %w", err)
		}
		msg.Ack = &AckMessage{SenderID: senderID, Delta: delta}
	case messageTypeBadCluster:
		msg.BadCluster = &BadClusterMessage{}
	default:
		return nil, fmt.Errorf("chitchat: decode: unknown message type %d", typ)
	}
	return msg, nil
}

func writeString(buf *bytes.Buffer, s string) {
	var lenBuf [2]byte
	binary.BigEndian.PutUint16(lenBuf[:], uint16(len(s)))
	buf.Write(lenBuf[:])
	buf.WriteString(s)
}

func readString(r *bytes.Reader) (string, error) {
	var lenBuf [2]byte
	if _, err := readFull(r, lenBuf[:]); err != nil {
		return "", err
	}
	n := binary.BigEndian.Uint16(lenBuf[:])
	strBuf := make([]byte, n)
	if _, err := readFull(r, strBuf); err != nil {
		return "", err
	}
	return string(strBuf), nil
}

func readFull(r *bytes.Reader, b []byte) (int, error) {
	total := 0
	for total < len(b) {
		n, err := r.Read(b[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

func writeUint64(buf *bytes.Buffer, v uint64) {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	buf.Write(b[:])
}

func readUint64(r *bytes.Reader) (uint64, error) {
	var b [8]byte
	if _, err := readFull(r, b[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(b[:]), nil
}

func writeUint16(buf *bytes.Buffer, v uint16) {
	var b [2]byte
	binary.BigEndian.PutUint16(b[:], v)
	buf.Write(b[:])
}

func readUint16(r *bytes.Reader) (uint16, error) {
	var b [2]byte
	if _, err := readFull(r, b[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(b[:]), nil
}

func writeID(buf *bytes.Buffer, id ID) {
	writeString(buf, id.NodeID)
	writeUint64(buf, id.GenerationID)
	writeString(buf, id.GossipAdvertiseAddr)
}

func readID(r *bytes.Reader) (ID, error) {
	nodeID, err := readString(r)
	if err != nil {
		return ID{}, err
	}
	gen, err := readUint64(r)
	if err != nil {
		return ID{}, err
	}
	addr, err := readString(r)
	if err != nil {
		return ID{}, err
	}
	return ID{NodeID: nodeID, GenerationID: gen, GossipAdvertiseAddr: addr}, nil
}

func writeDigest(buf *bytes.Buffer, d *Digest) {
	if d == nil {
		writeUint16(buf, 0)
		return
	}
	writeUint16(buf, uint16(d.Len()))
	for id, entry := range d.NodeDigests {
		writeID(buf, id)
		writeUint64(buf, uint64(entry.Heartbeat))
		writeUint64(buf, uint64(entry.MaxVersion))
		writeUint64(buf, uint64(entry.LastGCVersion))
	}
}

func readDigest(r *bytes.Reader) (*Digest, error) {
	count, err := readUint16(r)
	if err != nil {
		return nil, err
	}
	d := NewDigest()
	for i := uint16(0); i < count; i++ {
		id, err := readID(r)
		if err != nil {
			return nil, err
		}
		heartbeat, err := readUint64(r)
		if err != nil {
			return nil, err
		}
		maxVersion, err := readUint64(r)
		if err != nil {
			return nil, err
		}
		lastGC, err := readUint64(r)
		if err != nil {
			return nil, err
		}
		d.Add(id, NodeDigest{
			Heartbeat:     Heartbeat(heartbeat),
			MaxVersion:    Version(maxVersion),
			LastGCVersion: Version(lastGC),
		})
	}
	return d, nil
}

func writeDelta(buf *bytes.Buffer, d *Delta) {
	if d == nil {
		writeUint16(buf, 0)
		return
	}
	writeUint16(buf, uint16(len(d.NodeDeltas)))
	for id, nd := range d.NodeDeltas {
		writeID(buf, id)
		writeUint64(buf, uint64(nd.Heartbeat))
		writeUint64(buf, uint64(nd.FromVersionExcluded))
		writeUint64(buf, uint64(nd.LastGCVersion))
		writeUint64(buf, uint64(nd.MaxVersion))
		writeUint16(buf, uint16(len(nd.Mutations)))
		for _, mut := range nd.Mutations {
			writeString(buf, mut.Key)
			writeString(buf, mut.Value)
			writeUint64(buf, uint64(mut.Version))
			buf.WriteByte(byte(mut.Status))
		}
	}
}

func readDelta(r *bytes.Reader) (*Delta, error) {
	count, err := readUint16(r)
	if err != nil {
		return nil, err
	}
	d := NewDelta()
	for i := uint16(0); i < count; i++ {
		id, err := readID(r)
		if err != nil {
			return nil, err
		}
		heartbeat, err := readUint64(r)
		if err != nil {
			return nil, err
		}
		fromVersionExcluded, err := readUint64(r)
		if err != nil {
			return nil, err
		}
		lastGCVersion, err := readUint64(r)
		if err != nil {
			return nil, err
		}
		maxVersion, err := readUint64(r)
		if err != nil {
			return nil, err
		}
		numMutations, err := readUint16(r)
		if err != nil {
			return nil, err
		}
		nd := NodeDelta{
			Heartbeat:           Heartbeat(heartbeat),
			FromVersionExcluded: Version(fromVersionExcluded),
			LastGCVersion:       Version(lastGCVersion),
			MaxVersion:          Version(maxVersion),
		}
		for j := uint16(0); j < numMutations; j++ {
			key, err := readString(r)
			if err != nil {
				return nil, err
			}
			value, err := readString(r)
			if err != nil {
				return nil, err
			}
			version, err := readUint64(r)
			if err != nil {
				return nil, err
			}
			statusByte, err := r.ReadByte()
			if err != nil {
				return nil, err
			}
			nd.Mutations = append(nd.Mutations, KVMutation{
				Key:     key,
				Value:   value,
				Version: Version(version),
				Status:  StatusTag(statusByte),
			})
		}
		d.NodeDeltas[id] = nd
	}
	return d, nil
}
