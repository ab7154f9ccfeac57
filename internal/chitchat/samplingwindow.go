package chitchat

import "time"

// intervalRing is a fixed-size circular buffer of inter-arrival intervals
// (in nanoseconds) with a running sum so the mean is O(1) to update.
type intervalRing struct {
	intervals []int64
	index     int
	full      bool
	sum       int64
	mean      float64
}

func newIntervalRing(size int) *intervalRing {
	return &intervalRing{intervals: make([]int64, size)}
}

func (r *intervalRing) Mean() float64 { return r.mean }

func (r *intervalRing) Add(interval int64) {
	if r.index == len(r.intervals) {
		r.index = 0
		r.full = true
	}
	if r.full {
		r.sum -= r.intervals[r.index]
	}
	r.intervals[r.index] = interval
	r.index++
	r.sum += interval
	r.mean = float64(r.sum) / float64(r.size())
}

func (r *intervalRing) size() int {
	if r.full {
		return len(r.intervals)
	}
	return r.index
}

// samplingWindow tracks a single peer's recent heartbeat arrival times and
// derives a Phi suspicion score from them, per the Phi-Accrual failure
// detector. The first interval is seeded with initialInterval rather than
// measured, so a freshly discovered node is not flagged suspicious before
// it has a real sample to compare against. An interval longer than
// maxInterval is dropped rather than recorded, so a single abnormally long
// pause (a GC stall, a slow seed resolution) does not get baked into the
// mean at all and mask a genuine later failure.
type samplingWindow struct {
	lastArrival     time.Time
	ring            *intervalRing
	initialInterval time.Duration
	maxInterval     time.Duration
}

func newSamplingWindow(sampleSize int, initialInterval, maxInterval time.Duration) *samplingWindow {
	return &samplingWindow{
		ring:            newIntervalRing(sampleSize),
		initialInterval: initialInterval,
		maxInterval:     maxInterval,
	}
}

// Add records a heartbeat arrival at now. An interval exceeding maxInterval
// is discarded rather than recorded: lastArrival still advances, but the
// outlier never enters the ring.
func (w *samplingWindow) Add(now time.Time) {
	if w.lastArrival.IsZero() {
		w.ring.Add(w.initialInterval.Nanoseconds())
	} else {
		interval := now.Sub(w.lastArrival)
		if interval <= w.maxInterval {
			w.ring.Add(interval.Nanoseconds())
		}
	}
	w.lastArrival = now
}

// Phi computes the suspicion score at now given the samples collected so
// far. It returns 0 while no sample has been added yet.
func (w *samplingWindow) Phi(now time.Time) float64 {
	if w.lastArrival.IsZero() || w.ring.Mean() <= 0 {
		return 0
	}
	elapsed := float64(now.Sub(w.lastArrival).Nanoseconds())
	return elapsed / w.ring.Mean()
}
