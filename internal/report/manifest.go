package report

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/olekukonko/tablewriter"
)

// Skip reasons recorded in the manifest. Every trial or subject excluded
// from the output shows up here; nothing is dropped silently.
const (
	SkipArtifactCorrupt       = "artifact_corrupt"
	SkipArtifactIncomplete    = "artifact_incomplete" // warning: trial still contributes its prefix
	SkipInconsistentBucketing = "inconsistent_bucketing"
	SkipEmptyCohort           = "empty_cohort"
	SkipIncomparableCurves    = "incomparable_curves"
	SkipMissingTrials         = "missing_trials" // fewer artifacts found than configured
)

type SkipEntry struct {
	Subject string `json:"subject"`
	Fuzzer  string `json:"fuzzer,omitempty"`
	Trial   int    `json:"trial,omitempty"`
	Reason  string `json:"reason"`
	Detail  string `json:"detail,omitempty"`
}

type ReportEntry struct {
	Subject     string         `json:"subject"`
	TablePath   string         `json:"table"`
	PlotPaths   []string       `json:"plots"`
	TrialCounts map[string]int `json:"trial_counts"`
}

// Manifest records one analysis batch: what was produced and everything
// that was skipped along the way, with reasons. It is the one place a user
// can check that a missing curve was a data problem, not a silent drop.
type Manifest struct {
	BatchID     string        `json:"batch_id"`
	GeneratedAt time.Time     `json:"generated_at"`
	BucketWidth string        `json:"bucket_width"`
	Duration    string        `json:"duration"`
	Reports     []ReportEntry `json:"reports"`
	Skipped     []SkipEntry   `json:"skipped"`
}

func NewManifest(batchID string, bucketWidth, duration time.Duration) *Manifest {
	return &Manifest{
		BatchID:     batchID,
		GeneratedAt: time.Now().UTC(),
		BucketWidth: bucketWidth.String(),
		Duration:    duration.String(),
	}
}

func (m *Manifest) AddSkip(entry SkipEntry) {
	m.Skipped = append(m.Skipped, entry)
}

func (m *Manifest) AddReport(entry ReportEntry) {
	m.Reports = append(m.Reports, entry)
}

// Write stores the manifest as JSON, atomically like every other output.
func (m *Manifest) Write(path string) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal manifest: %w", err)
	}
	tmp := path + ".tmp-" + uuid.New().String()
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write manifest: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to move manifest into place: %w", err)
	}
	return nil
}

// PrintSummary renders a human-readable batch summary.
func (m *Manifest) PrintSummary(w io.Writer) {
	fmt.Fprintf(w, "batch %s: %d report(s), %d skip(s)\n", m.BatchID, len(m.Reports), len(m.Skipped))

	if len(m.Reports) > 0 {
		table := tablewriter.NewWriter(w)
		table.SetHeader([]string{"Subject", "Table", "Trials"})
		for _, r := range m.Reports {
			table.Append([]string{r.Subject, r.TablePath, formatTrialCounts(r.TrialCounts)})
		}
		table.Render()
	}

	if len(m.Skipped) > 0 {
		table := tablewriter.NewWriter(w)
		table.SetHeader([]string{"Subject", "Fuzzer", "Trial", "Reason", "Detail"})
		for _, s := range m.Skipped {
			trial := ""
			if s.Trial != 0 || s.Reason == SkipArtifactCorrupt || s.Reason == SkipArtifactIncomplete {
				trial = fmt.Sprintf("%d", s.Trial)
			}
			table.Append([]string{s.Subject, s.Fuzzer, trial, s.Reason, s.Detail})
		}
		table.Render()
	}
}

func formatTrialCounts(counts map[string]int) string {
	out := ""
	total := 0
	for _, n := range counts {
		total += n
	}
	out = fmt.Sprintf("%d across %d fuzzer(s)", total, len(counts))
	return out
}
