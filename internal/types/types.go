package types

import (
	"fmt"
	"time"
)

// RunRecord identifies one fuzzing trial discovered on disk. It is immutable
// once a trial's artifact directory has been found; the directory itself is
// owned by the external harness, not by us.
type RunRecord struct {
	Subject  string
	Fuzzer   string
	Trial    int
	Duration time.Duration
	Dir      string // path to the unpacked artifact directory
}

func (r RunRecord) Key() CohortKey {
	return CohortKey{Subject: r.Subject, Fuzzer: r.Fuzzer}
}

func (r RunRecord) String() string {
	return fmt.Sprintf("%s/%s/%d", r.Subject, r.Fuzzer, r.Trial)
}

// CohortKey groups the repeated trials of one (subject, fuzzer) pair.
type CohortKey struct {
	Subject string
	Fuzzer  string
}

func (k CohortKey) String() string {
	return k.Subject + "/" + k.Fuzzer
}

// CoverageCount holds the three cumulative coverage dimensions reported by
// the fuzzers' instrumentation.
type CoverageCount struct {
	Branches    uint64
	States      uint64
	Transitions uint64
}

// CoverageSample is one timestamped coverage snapshot. Timestamps are
// seconds since run start; counts are cumulative and never regress within
// a well-formed run.
type CoverageSample struct {
	Timestamp float64
	CoverageCount
}

// NormalizedSeries is a run's samples resampled onto a fixed bucket grid
// using step-hold interpolation.
type NormalizedSeries struct {
	Record      RunRecord
	BucketWidth time.Duration
	Buckets     []CoverageCount

	// LastSampleBucket is the index of the last bucket backed by a real
	// sample, or -1 when the run produced no usable samples. Buckets past
	// it only carry the held value; the aggregation policy decides whether
	// they still count as contributions.
	LastSampleBucket int
}

// BucketStat is a per-bucket mean plus dispersion across a trial cohort.
type BucketStat struct {
	Mean   float64
	StdDev float64
}

// CurvePoint aggregates one time bucket across all trials of a cohort.
// Trials records how many trials contributed to this bucket, which shrinks
// over time under the shrink policy for runs that ended early.
type CurvePoint struct {
	Branches    BucketStat
	States      BucketStat
	Transitions BucketStat
	Trials      int
}

// AggregatedCurve is the mean coverage curve of one (subject, fuzzer)
// cohort with a dispersion band.
type AggregatedCurve struct {
	Subject     string
	Fuzzer      string
	BucketWidth time.Duration
	Duration    time.Duration
	TrialCount  int
	Points      []CurvePoint
}

// ComparisonReport joins the aggregated curves of every fuzzer that ran
// against one subject. All curves share bucket width and duration; the
// comparator refuses to build a report otherwise.
type ComparisonReport struct {
	Subject     string
	BucketWidth time.Duration
	Duration    time.Duration
	Curves      []AggregatedCurve // sorted by fuzzer name
}

// TrialCounts returns the cohort size per fuzzer, for report metadata.
func (r *ComparisonReport) TrialCounts() map[string]int {
	counts := make(map[string]int, len(r.Curves))
	for _, c := range r.Curves {
		counts[c.Fuzzer] = c.TrialCount
	}
	return counts
}
