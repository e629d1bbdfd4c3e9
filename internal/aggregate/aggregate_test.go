package aggregate

import (
	"testing"
	"time"

	"stellabench/config"
	"stellabench/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func series(trial int, branches ...uint64) types.NormalizedSeries {
	buckets := make([]types.CoverageCount, len(branches))
	for i, b := range branches {
		buckets[i] = types.CoverageCount{Branches: b, States: b / 2, Transitions: b / 4}
	}
	return types.NormalizedSeries{
		Record: types.RunRecord{
			Subject:  "lightftp",
			Fuzzer:   "aflnet",
			Trial:    trial,
			Duration: time.Duration(len(branches)) * time.Minute,
		},
		BucketWidth:      time.Minute,
		Buckets:          buckets,
		LastSampleBucket: len(buckets) - 1,
	}
}

func TestAggregateMeanAndStdDev(t *testing.T) {
	cohort := []types.NormalizedSeries{
		series(1, 0, 2, 4),
		series(2, 0, 3, 5),
	}

	curve, err := Aggregate(cohort, config.PolicyShrink)
	require.NoError(t, err)
	require.Len(t, curve.Points, 3)

	assert.Equal(t, 0.0, curve.Points[0].Branches.Mean)
	assert.Equal(t, 2.5, curve.Points[1].Branches.Mean)
	assert.Equal(t, 4.5, curve.Points[2].Branches.Mean)
	// sample stddev of {2,3} with Bessel's correction
	assert.InDelta(t, 0.707, curve.Points[1].Branches.StdDev, 0.01)
	assert.Equal(t, 2, curve.Points[1].Trials)
	assert.Equal(t, 2, curve.TrialCount)
}

func TestAggregateSingleTrial(t *testing.T) {
	curve, err := Aggregate([]types.NormalizedSeries{series(1, 0, 2, 4)}, config.PolicyShrink)
	require.NoError(t, err)

	for _, p := range curve.Points {
		assert.Zero(t, p.Branches.StdDev, "single trial reports zero dispersion, not NaN")
		assert.Equal(t, 1, p.Trials)
	}
	assert.Equal(t, 2.0, curve.Points[1].Branches.Mean)
}

func TestAggregateIdenticalTrials(t *testing.T) {
	cohort := []types.NormalizedSeries{
		series(1, 1, 5, 9),
		series(2, 1, 5, 9),
		series(3, 1, 5, 9),
	}

	curve, err := Aggregate(cohort, config.PolicyShrink)
	require.NoError(t, err)
	assert.Equal(t, 5.0, curve.Points[1].Branches.Mean)
	assert.Zero(t, curve.Points[1].Branches.StdDev)
	assert.Zero(t, curve.Points[2].Branches.StdDev)
}

func TestAggregateEmptyCohort(t *testing.T) {
	_, err := Aggregate(nil, config.PolicyShrink)
	require.ErrorIs(t, err, ErrEmptyCohort)
}

func TestAggregateInconsistentBucketing(t *testing.T) {
	cohort := []types.NormalizedSeries{
		series(1, 0, 2, 4),
		series(2, 0, 3), // one bucket short
	}

	_, err := Aggregate(cohort, config.PolicyShrink)
	require.ErrorIs(t, err, ErrInconsistentBucketing)

	var bucketErr *InconsistentBucketingError
	require.ErrorAs(t, err, &bucketErr)
	assert.Equal(t, 2, bucketErr.Record.Trial)
	assert.Equal(t, 2, bucketErr.Got)
	assert.Equal(t, 3, bucketErr.Want)
}

func TestAggregateShrinkPolicy(t *testing.T) {
	long := series(1, 2, 4, 6)
	short := series(2, 2, 4, 4)
	short.LastSampleBucket = 1 // crashed during the second bucket

	curve, err := Aggregate([]types.NormalizedSeries{long, short}, config.PolicyShrink)
	require.NoError(t, err)

	assert.Equal(t, 2, curve.Points[1].Trials)
	assert.Equal(t, 4.0, curve.Points[1].Branches.Mean)
	// the short trial drops out of the last bucket entirely
	assert.Equal(t, 1, curve.Points[2].Trials)
	assert.Equal(t, 6.0, curve.Points[2].Branches.Mean)
	assert.Zero(t, curve.Points[2].Branches.StdDev)
}

func TestAggregateHoldPolicy(t *testing.T) {
	long := series(1, 2, 4, 6)
	short := series(2, 2, 4, 4)
	short.LastSampleBucket = 1

	curve, err := Aggregate([]types.NormalizedSeries{long, short}, config.PolicyHold)
	require.NoError(t, err)

	// the short trial's held value stays in the denominator
	assert.Equal(t, 2, curve.Points[2].Trials)
	assert.Equal(t, 5.0, curve.Points[2].Branches.Mean)
}
