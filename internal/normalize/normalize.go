// Package normalize resamples irregular coverage snapshots onto the fixed
// bucket grid that cross-trial averaging requires.
package normalize

import (
	"math"
	"sort"
	"time"

	"stellabench/internal/types"
)

// BucketCount returns the grid size for a run of the given duration.
func BucketCount(duration, bucketWidth time.Duration) int {
	return int(math.Ceil(duration.Seconds() / bucketWidth.Seconds()))
}

// Normalize resamples a run's coverage samples onto a fixed grid of
// ceil(duration/bucketWidth) buckets. Bucket i covers
// [i*width, (i+1)*width); its value is the last sample with timestamp at or
// before the bucket's end, carried forward from the previous bucket when
// nothing falls in range, zero for the first bucket. Step-hold only: no
// value is ever interpolated or invented.
//
// Samples are sorted ascending by timestamp first if needed (stable, so
// ties keep source order); samples past the configured duration are
// discarded, the fuzzer logged them during cleanup after its deadline.
// An empty input yields an all-zero series, not an error.
//
// Coverage is cumulative in each dimension, so for sorted input the output
// buckets are non-decreasing as well. Single left-to-right scan,
// O(samples + buckets).
func Normalize(rec types.RunRecord, samples []types.CoverageSample, bucketWidth time.Duration) types.NormalizedSeries {
	if !sort.SliceIsSorted(samples, func(i, j int) bool {
		return samples[i].Timestamp < samples[j].Timestamp
	}) {
		sorted := make([]types.CoverageSample, len(samples))
		copy(sorted, samples)
		sort.SliceStable(sorted, func(i, j int) bool {
			return sorted[i].Timestamp < sorted[j].Timestamp
		})
		samples = sorted
	}

	duration := rec.Duration.Seconds()
	width := bucketWidth.Seconds()
	buckets := make([]types.CoverageCount, BucketCount(rec.Duration, bucketWidth))

	var held types.CoverageCount
	lastSampleBucket := -1
	j := 0
	for i := range buckets {
		bucketEnd := float64(i+1) * width
		for j < len(samples) && samples[j].Timestamp <= bucketEnd {
			if samples[j].Timestamp > duration {
				j = len(samples) // past the deadline, drop the tail
				break
			}
			held = samples[j].CoverageCount
			lastSampleBucket = i
			j++
		}
		buckets[i] = held
	}

	return types.NormalizedSeries{
		Record:           rec,
		BucketWidth:      bucketWidth,
		Buckets:          buckets,
		LastSampleBucket: lastSampleBucket,
	}
}

// Samples converts a normalized series back into a sample sequence (one
// sample per bucket, stamped at the bucket end clamped to the run
// duration). Normalizing the result at the same bucket width reproduces
// the series.
func Samples(s types.NormalizedSeries) []types.CoverageSample {
	duration := s.Record.Duration.Seconds()
	width := s.BucketWidth.Seconds()
	out := make([]types.CoverageSample, len(s.Buckets))
	for i, b := range s.Buckets {
		ts := float64(i+1) * width
		if ts > duration {
			ts = duration
		}
		out[i] = types.CoverageSample{Timestamp: ts, CoverageCount: b}
	}
	return out
}
