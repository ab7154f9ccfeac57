package chitchat

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFailureDetectorPhi(t *testing.T) {
	tests := []struct {
		Name                   string
		ExpectedSuspicionLevel float64
		Timestamps             []int64
		Now                    int64
		SampleSize             int
	}{
		{
			Name:                   "bootstrap status",
			ExpectedSuspicionLevel: 0.05,
			Timestamps:             []int64{100},
			Now:                    200,
			SampleSize:             10,
		},
		{
			Name:                   "low phi",
			ExpectedSuspicionLevel: 1.0,
			Timestamps:             []int64{100, 200, 300, 400, 500, 600},
			Now:                    700,
			SampleSize:             5,
		},
		{
			Name:                   "high phi",
			ExpectedSuspicionLevel: 14.0,
			Timestamps:             []int64{100, 200, 300, 400, 500, 600},
			Now:                    2000,
			SampleSize:             5,
		},
	}
	id := ID{NodeID: "node-1", GossipAdvertiseAddr: "10.0.0.1:7000"}
	for _, test := range tests {
		t.Run(test.Name, func(t *testing.T) {
			cfg := DefaultFailureDetectorConfig()
			cfg.SamplingWindowSize = test.SampleSize
			cfg.InitialInterval = 2000 * time.Nanosecond
			cfg.MaxInterval = time.Hour
			fd := NewFailureDetector(cfg)
			for _, ts := range test.Timestamps {
				fd.ReportHeartbeat(id, time.Unix(0, ts))
			}

			assert.InEpsilon(t, test.ExpectedSuspicionLevel, fd.Phi(id, time.Unix(0, test.Now)), 0.01)
		})
	}
}

func TestFailureDetectorLivenessTransitions(t *testing.T) {
	cfg := DefaultFailureDetectorConfig()
	cfg.PhiThreshold = 8.0
	cfg.SamplingWindowSize = 5
	cfg.InitialInterval = time.Second
	cfg.MaxInterval = time.Hour
	fd := NewFailureDetector(cfg)

	id := ID{NodeID: "node-1", GossipAdvertiseAddr: "10.0.0.1:7000"}
	start := time.Unix(0, 0)
	fd.ReportHeartbeat(id, start)
	live, changed := fd.UpdateLiveness(id, start.Add(time.Second))
	require.True(t, live)
	require.False(t, changed)
	assert.Contains(t, fd.LiveNodes(), id)

	// A long silence should eventually push phi past the threshold and flip
	// the node dead exactly once.
	later := start.Add(time.Hour)
	live, changed = fd.UpdateLiveness(id, later)
	assert.False(t, live)
	assert.True(t, changed)
	assert.Contains(t, fd.DeadNodes(), id)

	live, changed = fd.UpdateLiveness(id, later.Add(time.Second))
	assert.False(t, live)
	assert.False(t, changed, "classification must not flip again while still dead")
}

func TestFailureDetectorGarbageCollection(t *testing.T) {
	cfg := DefaultFailureDetectorConfig()
	cfg.DeadNodeGracePeriod = time.Minute
	cfg.SamplingWindowSize = 5
	cfg.InitialInterval = time.Second
	cfg.MaxInterval = time.Hour
	fd := NewFailureDetector(cfg)

	id := ID{NodeID: "node-1", GossipAdvertiseAddr: "10.0.0.1:7000"}
	start := time.Unix(0, 0)
	fd.ReportHeartbeat(id, start)
	_, _ = fd.UpdateLiveness(id, start.Add(time.Second))

	deadAt := start.Add(time.Hour)
	live, changed := fd.UpdateLiveness(id, deadAt)
	require.False(t, live)
	require.True(t, changed)

	halfway := deadAt.Add(cfg.DeadNodeGracePeriod / 2)
	assert.Contains(t, fd.ScheduledForDeletionNodes(halfway), id)

	assert.Empty(t, fd.GarbageCollect(deadAt.Add(cfg.DeadNodeGracePeriod/2)))
	removed := fd.GarbageCollect(deadAt.Add(cfg.DeadNodeGracePeriod + time.Second))
	assert.Equal(t, []ID{id}, removed)
	assert.Empty(t, fd.LiveNodes())
	assert.Empty(t, fd.DeadNodes())
}
