package normalize

import (
	"testing"
	"time"

	"stellabench/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func record(duration time.Duration) types.RunRecord {
	return types.RunRecord{Subject: "lightftp", Fuzzer: "aflnet", Trial: 1, Duration: duration}
}

func sample(ts float64, branches, states, transitions uint64) types.CoverageSample {
	return types.CoverageSample{
		Timestamp: ts,
		CoverageCount: types.CoverageCount{
			Branches:    branches,
			States:      states,
			Transitions: transitions,
		},
	}
}

func branchValues(s types.NormalizedSeries) []uint64 {
	out := make([]uint64, len(s.Buckets))
	for i, b := range s.Buckets {
		out[i] = b.Branches
	}
	return out
}

func TestNormalizeStepHold(t *testing.T) {
	// 10 minute run, minute buckets: the 65s sample lands in bucket 1
	// (60-120s), the 400s sample in bucket 6 (360-420s), everything else
	// carries forward.
	samples := []types.CoverageSample{
		sample(0, 0, 0, 0),
		sample(65, 4, 1, 0),
		sample(400, 10, 2, 1),
	}

	series := Normalize(record(10*time.Minute), samples, time.Minute)
	require.Len(t, series.Buckets, 10)
	assert.Equal(t, []uint64{0, 4, 4, 4, 4, 4, 10, 10, 10, 10}, branchValues(series))
	assert.Equal(t, 6, series.LastSampleBucket)
}

func TestNormalizeEmptyInput(t *testing.T) {
	series := Normalize(record(5*time.Minute), nil, time.Minute)
	require.Len(t, series.Buckets, 5)
	assert.Equal(t, []uint64{0, 0, 0, 0, 0}, branchValues(series))
	assert.Equal(t, -1, series.LastSampleBucket)
}

func TestNormalizeBucketCountCeil(t *testing.T) {
	// 150s at 60s buckets needs 3 buckets to cover the tail
	series := Normalize(record(150*time.Second), nil, time.Minute)
	assert.Len(t, series.Buckets, 3)
}

func TestNormalizeDiscardsSamplesPastDuration(t *testing.T) {
	samples := []types.CoverageSample{
		sample(30, 2, 1, 0),
		sample(601, 99, 9, 9), // logged during cleanup after the deadline
	}

	series := Normalize(record(10*time.Minute), samples, time.Minute)
	assert.Equal(t, uint64(2), series.Buckets[9].Branches)
	assert.Equal(t, 0, series.LastSampleBucket)
}

func TestNormalizeSortsUnsortedInput(t *testing.T) {
	samples := []types.CoverageSample{
		sample(400, 10, 2, 1),
		sample(0, 0, 0, 0),
		sample(65, 4, 1, 0),
	}

	series := Normalize(record(10*time.Minute), samples, time.Minute)
	assert.Equal(t, []uint64{0, 4, 4, 4, 4, 4, 10, 10, 10, 10}, branchValues(series))
}

func TestNormalizeMonotone(t *testing.T) {
	samples := []types.CoverageSample{
		sample(10, 1, 0, 0),
		sample(90, 5, 1, 1),
		sample(230, 7, 2, 1),
		sample(231, 9, 2, 2),
		sample(500, 20, 4, 6),
	}

	series := Normalize(record(10*time.Minute), samples, time.Minute)
	values := branchValues(series)
	for i := 1; i < len(values); i++ {
		assert.GreaterOrEqual(t, values[i], values[i-1], "coverage must never regress through resampling")
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	samples := []types.CoverageSample{
		sample(0, 0, 0, 0),
		sample(65, 4, 1, 0),
		sample(400, 10, 2, 1),
	}

	once := Normalize(record(10*time.Minute), samples, time.Minute)
	twice := Normalize(record(10*time.Minute), Samples(once), time.Minute)
	assert.Equal(t, once.Buckets, twice.Buckets)
}
