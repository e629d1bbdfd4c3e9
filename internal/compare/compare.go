// Package compare aligns the aggregated curves of one subject across all
// fuzzers for joint reporting. Pure grouping and validation: no new
// statistics are computed here.
package compare

import (
	"errors"
	"fmt"
	"sort"

	"stellabench/internal/types"
)

// ErrIncomparableCurves is returned when the curves for one subject do not
// share bucket width and duration. Fatal for that subject's comparison
// only; sibling subjects proceed.
var ErrIncomparableCurves = errors.New("incomparable curves")

// Compare validates that every curve for the subject lives on the same time
// grid and builds the comparison report, curves in sorted fuzzer order so
// downstream output is deterministic.
func Compare(subject string, curves []types.AggregatedCurve) (types.ComparisonReport, error) {
	if len(curves) == 0 {
		return types.ComparisonReport{}, fmt.Errorf("%s: no curves to compare: %w", subject, ErrIncomparableCurves)
	}

	ref := curves[0]
	for _, c := range curves[1:] {
		if c.BucketWidth != ref.BucketWidth || c.Duration != ref.Duration || len(c.Points) != len(ref.Points) {
			return types.ComparisonReport{}, fmt.Errorf(
				"%s: fuzzer %s uses %s buckets over %s, fuzzer %s uses %s over %s: %w",
				subject,
				ref.Fuzzer, ref.BucketWidth, ref.Duration,
				c.Fuzzer, c.BucketWidth, c.Duration,
				ErrIncomparableCurves)
		}
	}

	sorted := make([]types.AggregatedCurve, len(curves))
	copy(sorted, curves)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Fuzzer < sorted[j].Fuzzer })

	return types.ComparisonReport{
		Subject:     subject,
		BucketWidth: ref.BucketWidth,
		Duration:    ref.Duration,
		Curves:      sorted,
	}, nil
}
