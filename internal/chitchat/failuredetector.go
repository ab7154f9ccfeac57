package chitchat

import (
	"sync"
	"time"
)

// FailureDetectorConfig tunes the Phi-Accrual failure detector. The
// defaults mirror quickwit's chitchat crate: a node crosses into suspicion
// once its Phi score reaches 8.0, computed from a rolling window of the
// last 1000 heartbeat inter-arrival intervals, and a dead node's state is
// kept around for 24h after it is classified dead before it is eligible for
// garbage collection (giving operators a window to notice and investigate
// before the membership record disappears for good).
type FailureDetectorConfig struct {
	PhiThreshold        float64
	SamplingWindowSize  int
	InitialInterval     time.Duration
	MaxInterval         time.Duration
	DeadNodeGracePeriod time.Duration
}

// DefaultFailureDetectorConfig returns the chitchat reference defaults.
func DefaultFailureDetectorConfig() FailureDetectorConfig {
	return FailureDetectorConfig{
		PhiThreshold:        8.0,
		SamplingWindowSize:  1000,
		InitialInterval:     5 * time.Second,
		MaxInterval:         10 * time.Second,
		DeadNodeGracePeriod: 24 * time.Hour,
	}
}

type nodeLiveness struct {
	window    *samplingWindow
	deadSince time.Time
}

func (l *nodeLiveness) isDead() bool { return !l.deadSince.IsZero() }

// FailureDetector tracks, per peer, a Phi-Accrual suspicion score derived
// from observed heartbeat arrival timing, and classifies each peer as live
// or dead relative to PhiThreshold.
type FailureDetector struct {
	mu    sync.Mutex
	cfg   FailureDetectorConfig
	nodes map[ID]*nodeLiveness
}

// NewFailureDetector creates a FailureDetector with no tracked peers.
func NewFailureDetector(cfg FailureDetectorConfig) *FailureDetector {
	return &FailureDetector{
		cfg:   cfg,
		nodes: make(map[ID]*nodeLiveness),
	}
}

func (d *FailureDetector) windowFor(id ID) *nodeLiveness {
	nl, ok := d.nodes[id]
	if !ok {
		nl = &nodeLiveness{window: newSamplingWindow(d.cfg.SamplingWindowSize, d.cfg.InitialInterval, d.cfg.MaxInterval)}
		d.nodes[id] = nl
	}
	return nl
}

// ReportHeartbeat records that id's heartbeat advanced (or any progress
// indicating liveness, such as a totally unknown node's first digest entry
// being observed) at time now.
func (d *FailureDetector) ReportHeartbeat(id ID, now time.Time) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.windowFor(id).window.Add(now)
}

// Tracks reports whether id already has failure-detector state, i.e.
// whether a heartbeat has ever been reported for it or UpdateLiveness has
// ever been called for it.
func (d *FailureDetector) Tracks(id ID) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.nodes[id]
	return ok
}

// Phi returns id's current suspicion score, or 0 if id has never been
// reported.
func (d *FailureDetector) Phi(id ID, now time.Time) float64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	nl, ok := d.nodes[id]
	if !ok {
		return 0
	}
	return nl.window.Phi(now)
}

// UpdateLiveness recomputes id's Phi score against now and reclassifies it
// as live or dead. live reports the new classification; changed reports
// whether this call flipped the classification from its previous value, so
// callers can fire OnUnreachable/OnReachable-style transitions exactly
// once per crossing.
func (d *FailureDetector) UpdateLiveness(id ID, now time.Time) (live bool, changed bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	nl := d.windowFor(id)
	phi := nl.window.Phi(now)
	wasDead := nl.isDead()
	// A dead peer's window was replaced at death; until a new heartbeat is
	// reported it holds no samples and the peer stays dead.
	isLive := phi < d.cfg.PhiThreshold && !(wasDead && nl.window.lastArrival.IsZero())
	switch {
	case isLive && wasDead:
		nl.deadSince = time.Time{}
		changed = true
	case !isLive && !wasDead:
		nl.deadSince = now
		nl.window = newSamplingWindow(d.cfg.SamplingWindowSize, d.cfg.InitialInterval, d.cfg.MaxInterval)
		changed = true
	}
	return isLive, changed
}

// LiveNodes returns every tracked peer currently classified live.
func (d *FailureDetector) LiveNodes() []ID {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []ID
	for id, nl := range d.nodes {
		if !nl.isDead() {
			out = append(out, id)
		}
	}
	return out
}

// DeadNodes returns every tracked peer currently classified dead.
func (d *FailureDetector) DeadNodes() []ID {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []ID
	for id, nl := range d.nodes {
		if nl.isDead() {
			out = append(out, id)
		}
	}
	return out
}

// ScheduledForDeletionNodes returns dead peers that have been dead for at
// least half of DeadNodeGracePeriod: the point at which the cluster state
// should stop propagating them in digests to let the rest of the cluster
// converge on forgetting them before the hard cutoff removes their record
// entirely.
func (d *FailureDetector) ScheduledForDeletionNodes(now time.Time) []ID {
	d.mu.Lock()
	defer d.mu.Unlock()
	half := d.cfg.DeadNodeGracePeriod / 2
	var out []ID
	for id, nl := range d.nodes {
		if nl.isDead() && now.Sub(nl.deadSince) >= half {
			out = append(out, id)
		}
	}
	return out
}

// GarbageCollect removes tracked state for every peer dead for at least
// DeadNodeGracePeriod, returning the removed IDs so the caller can also
// drop their NodeState.
func (d *FailureDetector) GarbageCollect(now time.Time) []ID {
	d.mu.Lock()
	defer d.mu.Unlock()
	var removed []ID
	for id, nl := range d.nodes {
		if nl.isDead() && now.Sub(nl.deadSince) >= d.cfg.DeadNodeGracePeriod {
			removed = append(removed, id)
			delete(d.nodes, id)
		}
	}
	return removed
}

// Remove discards all state for id, used when the cluster state evicts a
// node outright (e.g. on an explicit leave).
func (d *FailureDetector) Remove(id ID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.nodes, id)
}
