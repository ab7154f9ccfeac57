package chitchat

import "time"

// StatusTag is the wire-level shape of a DeletionStatus: it never carries a
// timestamp on the wire, since the timestamp is stamped locally at apply
// time using the receiver's own clock (see DeletionStatus).
type StatusTag uint8

const (
	// StatusSet means the entry is live.
	StatusSet StatusTag = iota
	// StatusDeleteAfterTTL means the entry is live but scheduled to become a
	// tombstone: the owning node tombstones it once the deadline it stored
	// in DeletionStatus.At has passed.
	StatusDeleteAfterTTL
	// StatusDeleted means the entry is a tombstone: the value is cleared and
	// the entry is retained only until garbage collection.
	StatusDeleted
)

func (t StatusTag) String() string {
	switch t {
	case StatusSet:
		return "set"
	case StatusDeleteAfterTTL:
		return "delete_after_ttl"
	case StatusDeleted:
		return "deleted"
	default:
		return "unknown"
	}
}

// DeletionStatus is the runtime status of a VersionedValue. At is the local
// wall/monotonic instant the status was entered, except for a
// StatusDeleteAfterTTL entry set locally, where it is the expiry deadline;
// it is the zero time for StatusSet.
type DeletionStatus struct {
	Tag StatusTag
	At  time.Time
}

// IsTombstone reports whether the entry is a deleted marker that should be
// excluded from Get and iteration over live values.
func (s DeletionStatus) IsTombstone() bool {
	return s.Tag == StatusDeleted
}

// VersionedValue is a single key's value, its version and its deletion
// status.
type VersionedValue struct {
	Value   string
	Version Version
	Status  DeletionStatus
}

// KVMutation is the wire-level representation of one key mutation carried by
// a NodeDelta: it carries a StatusTag, not a DeletionStatus, since the
// timestamp is assigned by the receiver applying the mutation.
type KVMutation struct {
	Key     string
	Value   string
	Version Version
	Status  StatusTag
}

// KeyValue pairs a key with its VersionedValue; used by iteration helpers
// that need to return an ordered sequence of entries.
type KeyValue struct {
	Key   string
	Value VersionedValue
}
