package artifact

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"stellabench/internal/types"
)

// CoverageFileName is the per-run coverage log written by the fuzzing
// containers: one snapshot per line, `time,branches,states,transitions`,
// timestamps in seconds since run start. Lines starting with '#' are
// comments or headers.
const CoverageFileName = "cov_over_time.csv"

var (
	// ErrCorrupt marks a run directory missing its expected sub-artifacts.
	// Fatal for that one trial; the trial is excluded from aggregation.
	ErrCorrupt = errors.New("artifact corrupt")

	// ErrIncomplete marks a run whose coverage log stops well short of the
	// configured duration. Non-fatal: the samples read so far are still
	// returned and the trial contributes its available prefix.
	ErrIncomplete = errors.New("artifact incomplete")
)

// ReadRun parses one trial's artifact directory into an ordered sequence of
// coverage samples. Malformed lines, including a truncated last line from a
// trial killed mid-write, are discarded rather than failing the read. The
// returned samples are sorted ascending by timestamp (stable, ties keep
// file order).
//
// Read-only: never mutates the run directory.
func ReadRun(rec types.RunRecord) ([]types.CoverageSample, error) {
	covPath := filepath.Join(rec.Dir, CoverageFileName)
	file, err := os.Open(covPath)
	if err != nil {
		return nil, fmt.Errorf("%s: missing coverage log: %w", rec, ErrCorrupt)
	}
	defer file.Close()

	var samples []types.CoverageSample
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		sample, ok := parseSample(scanner.Text())
		if !ok {
			continue
		}
		samples = append(samples, sample)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("%s: reading coverage log: %w", rec, ErrCorrupt)
	}

	sort.SliceStable(samples, func(i, j int) bool {
		return samples[i].Timestamp < samples[j].Timestamp
	})

	if short(samples, rec) {
		return samples, fmt.Errorf("%s: coverage log stops early: %w", rec, ErrIncomplete)
	}
	return samples, nil
}

// short reports whether the log ends noticeably before the configured
// duration. A small slack absorbs the snapshot cadence and process
// cleanup lag at the end of a healthy run.
func short(samples []types.CoverageSample, rec types.RunRecord) bool {
	duration := rec.Duration.Seconds()
	slack := duration / 20
	if len(samples) == 0 {
		return true
	}
	return samples[len(samples)-1].Timestamp < duration-slack
}

func parseSample(line string) (types.CoverageSample, bool) {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return types.CoverageSample{}, false
	}

	fields := strings.Split(line, ",")
	if len(fields) < 4 {
		return types.CoverageSample{}, false
	}

	ts, err := strconv.ParseFloat(strings.TrimSpace(fields[0]), 64)
	if err != nil || ts < 0 {
		return types.CoverageSample{}, false
	}

	counts := make([]uint64, 3)
	for i := range counts {
		v, err := strconv.ParseUint(strings.TrimSpace(fields[i+1]), 10, 64)
		if err != nil {
			return types.CoverageSample{}, false
		}
		counts[i] = v
	}

	return types.CoverageSample{
		Timestamp: ts,
		CoverageCount: types.CoverageCount{
			Branches:    counts[0],
			States:      counts[1],
			Transitions: counts[2],
		},
	}, true
}
