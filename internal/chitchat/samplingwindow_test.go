package chitchat

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSamplingWindowPhi(t *testing.T) {
	tests := []struct {
		Name        string
		ExpectedPhi float64
		Timestamps  []int64
		Now         int64
		SampleSize  int
	}{
		{
			Name:        "bootstrap phi",
			ExpectedPhi: 0.05,
			Timestamps:  []int64{100},
			Now:         200,
			SampleSize:  10,
		},
		{
			Name:        "low phi",
			ExpectedPhi: 1.0,
			Timestamps:  []int64{100, 200, 300, 400, 500, 600},
			Now:         700,
			SampleSize:  5,
		},
		{
			Name:        "high phi",
			ExpectedPhi: 14.0,
			Timestamps:  []int64{100, 200, 300, 400, 500, 600},
			Now:         2000,
			SampleSize:  5,
		},
	}
	for _, test := range tests {
		t.Run(test.Name, func(t *testing.T) {
			window := newSamplingWindow(test.SampleSize, 2000*time.Nanosecond, time.Hour)
			for _, ts := range test.Timestamps {
				window.Add(time.Unix(0, ts))
			}

			assert.InEpsilon(t, test.ExpectedPhi, window.Phi(time.Unix(0, test.Now)), 0.01)
		})
	}
}

func TestSamplingWindowDropsLongGaps(t *testing.T) {
	window := newSamplingWindow(5, time.Nanosecond, 50*time.Nanosecond)
	window.Add(time.Unix(0, 0))
	// A single 10000ns gap exceeds maxInterval and must be dropped
	// entirely, not recorded at a clamped value, so the mean stays at the
	// bootstrap sample.
	window.Add(time.Unix(0, 10000))
	assert.InEpsilon(t, 1.0, window.ring.Mean(), 0.01)
	assert.Equal(t, time.Unix(0, 10000), window.lastArrival)
}

func TestIntervalRingWrapsAndRecomputesMean(t *testing.T) {
	ring := newIntervalRing(3)
	ring.Add(10)
	ring.Add(20)
	ring.Add(30)
	assert.InEpsilon(t, 20.0, ring.Mean(), 0.001)

	// Wraps around, evicting the oldest sample (10).
	ring.Add(60)
	assert.InEpsilon(t, float64(20+30+60)/3, ring.Mean(), 0.001)
}
