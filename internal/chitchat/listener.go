package chitchat

import (
	"strings"
	"sync"
)

// KeyChangeEvent describes a single key-value mutation that was just
// applied to the cluster state, whether because a delta arrived from the
// network or a local Set/Delete call ran.
type KeyChangeEvent struct {
	NodeID ID
	Key    string
	Value  string
	Status StatusTag
}

// ListenerRegistry dispatches batches of KeyChangeEvents to subscribers
// filtered by key prefix. A single apply_delta call fires each matching
// listener at most once, with every event from that call batched together,
// so a listener never has to deduplicate repeat notifications for the same
// round.
type ListenerRegistry struct {
	mu        sync.Mutex
	listeners []registeredListener
}

type registeredListener struct {
	prefix string
	fn     func(events []KeyChangeEvent)
}

// NewListenerRegistry creates an empty registry.
func NewListenerRegistry() *ListenerRegistry {
	return &ListenerRegistry{}
}

// Subscribe registers fn to be called with every batch of KeyChangeEvents
// whose Key starts with prefix. An empty prefix matches every key.
func (r *ListenerRegistry) Subscribe(prefix string, fn func(events []KeyChangeEvent)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listeners = append(r.listeners, registeredListener{prefix: prefix, fn: fn})
}

// Dispatch groups events by matching listener and invokes each matched
// listener exactly once with its filtered batch. Listeners with no
// matching events in this batch are not called. Dispatch must be invoked
// outside of the cluster state's mutex, since a listener may call back
// into the cluster state.
func (r *ListenerRegistry) Dispatch(events []KeyChangeEvent) {
	if len(events) == 0 {
		return
	}
	r.mu.Lock()
	listeners := make([]registeredListener, len(r.listeners))
	copy(listeners, r.listeners)
	r.mu.Unlock()

	for _, l := range listeners {
		var matched []KeyChangeEvent
		for _, e := range events {
			if strings.HasPrefix(e.Key, l.prefix) {
				matched = append(matched, e)
			}
		}
		if len(matched) > 0 {
			l.fn(matched)
		}
	}
}
