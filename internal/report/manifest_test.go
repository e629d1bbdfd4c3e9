package report

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManifestRoundTrip(t *testing.T) {
	m := NewManifest("batch-1", time.Minute, 10*time.Minute)
	m.AddReport(ReportEntry{
		Subject:     "lightftp",
		TablePath:   "analysis/lightftp.csv",
		PlotPaths:   []string{"analysis/lightftp-code-cov.png"},
		TrialCounts: map[string]int{"aflnet": 4},
	})
	m.AddSkip(SkipEntry{
		Subject: "proftpd",
		Fuzzer:  "stella",
		Trial:   2,
		Reason:  SkipArtifactCorrupt,
		Detail:  "missing coverage log",
	})

	path := filepath.Join(t.TempDir(), "manifest.json")
	require.NoError(t, m.Write(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var loaded Manifest
	require.NoError(t, json.Unmarshal(data, &loaded))
	assert.Equal(t, "batch-1", loaded.BatchID)
	require.Len(t, loaded.Skipped, 1)
	assert.Equal(t, SkipArtifactCorrupt, loaded.Skipped[0].Reason)
	require.Len(t, loaded.Reports, 1)
	assert.Equal(t, 4, loaded.Reports[0].TrialCounts["aflnet"])
}

func TestManifestPrintSummary(t *testing.T) {
	m := NewManifest("batch-2", time.Minute, 10*time.Minute)
	m.AddReport(ReportEntry{Subject: "lightftp", TablePath: "lightftp.csv", TrialCounts: map[string]int{"aflnet": 4, "stella": 3}})
	m.AddSkip(SkipEntry{Subject: "proftpd", Reason: SkipIncomparableCurves})

	var buf bytes.Buffer
	m.PrintSummary(&buf)

	out := buf.String()
	assert.Contains(t, out, "batch-2")
	assert.Contains(t, out, "lightftp")
	assert.Contains(t, out, SkipIncomparableCurves)
}
