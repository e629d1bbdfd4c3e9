// Package report serializes comparison reports: a CSV table and two plot
// families per subject, plus a manifest of everything skipped. The table is
// the hard contract: identical input produces byte-identical output.
package report

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"

	"stellabench/internal/types"

	"github.com/google/uuid"
)

// WriteTable writes one row per time bucket: the bucket end in seconds,
// then mean, stddev and contributing-trial count per fuzzer and coverage
// dimension. The file lands atomically: written to a temporary sibling and
// renamed on success, so an aborted pipeline leaves no partial table.
func WriteTable(rep types.ComparisonReport, path string) error {
	tmp := path + ".tmp-" + uuid.New().String()
	file, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("failed to create table file: %w", err)
	}
	defer os.Remove(tmp) // no-op after a successful rename

	w := csv.NewWriter(file)

	header := []string{"time_s"}
	for _, curve := range rep.Curves {
		for _, dim := range []string{"branches", "states", "transitions"} {
			header = append(header,
				curve.Fuzzer+"_"+dim+"_mean",
				curve.Fuzzer+"_"+dim+"_stddev")
		}
		header = append(header, curve.Fuzzer+"_n")
	}
	if err := w.Write(header); err != nil {
		file.Close()
		return fmt.Errorf("failed to write table header: %w", err)
	}

	buckets := 0
	if len(rep.Curves) > 0 {
		buckets = len(rep.Curves[0].Points)
	}
	width := rep.BucketWidth.Seconds()

	for i := 0; i < buckets; i++ {
		row := []string{formatFloat(float64(i+1) * width)}
		for _, curve := range rep.Curves {
			p := curve.Points[i]
			for _, s := range []types.BucketStat{p.Branches, p.States, p.Transitions} {
				row = append(row, formatFloat(s.Mean), formatFloat(s.StdDev))
			}
			row = append(row, strconv.Itoa(p.Trials))
		}
		if err := w.Write(row); err != nil {
			file.Close()
			return fmt.Errorf("failed to write table row: %w", err)
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		file.Close()
		return fmt.Errorf("failed to flush table: %w", err)
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("failed to close table file: %w", err)
	}
	return os.Rename(tmp, path)
}

// formatFloat keeps the shortest exact decimal representation, which is
// deterministic for a given value.
func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
