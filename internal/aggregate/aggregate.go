// Package aggregate folds the normalized series of a trial cohort into a
// mean curve with a dispersion band.
package aggregate

import (
	"errors"
	"fmt"

	"stellabench/config"
	"stellabench/internal/types"

	"gonum.org/v1/gonum/stat"
)

var (
	// ErrEmptyCohort is returned when a (subject, fuzzer) key has zero
	// trials. Callers skip reporting that key rather than fabricate data.
	ErrEmptyCohort = errors.New("empty cohort")

	// ErrInconsistentBucketing is returned when a trial's bucket count
	// differs from its cohort. The trial must be re-normalized or excluded
	// by the caller, never truncated implicitly.
	ErrInconsistentBucketing = errors.New("inconsistent bucketing")
)

// InconsistentBucketingError identifies the offending trial so the caller
// can exclude just that one and retry.
type InconsistentBucketingError struct {
	Record types.RunRecord
	Got    int
	Want   int
}

func (e *InconsistentBucketingError) Error() string {
	return fmt.Sprintf("%s: %d buckets, cohort has %d: %s", e.Record, e.Got, e.Want, ErrInconsistentBucketing)
}

func (e *InconsistentBucketingError) Unwrap() error {
	return ErrInconsistentBucketing
}

// Aggregate combines the normalized series of one (subject, fuzzer) cohort
// into per-bucket arithmetic means and sample standard deviations
// (Bessel's correction; a single trial reports zero dispersion).
//
// The policy decides what trials that ended before the configured duration
// contribute past their last real sample:
//
//   - config.PolicyShrink: nothing; the bucket's mean is taken over the
//     remaining trials and the per-bucket trial count shrinks.
//   - config.PolicyHold: the held (carried-forward) value, as if coverage
//     had stayed flat to the end.
func Aggregate(cohort []types.NormalizedSeries, policy string) (types.AggregatedCurve, error) {
	if len(cohort) == 0 {
		return types.AggregatedCurve{}, ErrEmptyCohort
	}

	want := len(cohort[0].Buckets)
	for _, s := range cohort[1:] {
		if len(s.Buckets) != want {
			return types.AggregatedCurve{}, &InconsistentBucketingError{
				Record: s.Record,
				Got:    len(s.Buckets),
				Want:   want,
			}
		}
	}

	rec := cohort[0].Record
	points := make([]types.CurvePoint, want)
	branches := make([]float64, 0, len(cohort))
	states := make([]float64, 0, len(cohort))
	transitions := make([]float64, 0, len(cohort))

	for i := range points {
		branches, states, transitions = branches[:0], states[:0], transitions[:0]
		for _, s := range cohort {
			if policy == config.PolicyShrink && i > s.LastSampleBucket {
				continue // trial ended before this bucket
			}
			branches = append(branches, float64(s.Buckets[i].Branches))
			states = append(states, float64(s.Buckets[i].States))
			transitions = append(transitions, float64(s.Buckets[i].Transitions))
		}
		points[i] = types.CurvePoint{
			Branches:    bucketStat(branches),
			States:      bucketStat(states),
			Transitions: bucketStat(transitions),
			Trials:      len(branches),
		}
	}

	return types.AggregatedCurve{
		Subject:     rec.Subject,
		Fuzzer:      rec.Fuzzer,
		BucketWidth: cohort[0].BucketWidth,
		Duration:    rec.Duration,
		TrialCount:  len(cohort),
		Points:      points,
	}, nil
}

func bucketStat(values []float64) types.BucketStat {
	if len(values) == 0 {
		return types.BucketStat{}
	}
	mean, stddev := stat.MeanStdDev(values, nil)
	if len(values) < 2 {
		stddev = 0 // dispersion undefined for a single contribution
	}
	return types.BucketStat{Mean: mean, StdDev: stddev}
}
