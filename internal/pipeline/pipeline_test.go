package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"stellabench/config"
	"stellabench/internal/report"
	"stellabench/pkg/mq"
	"stellabench/pkg/telemetry"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// testCampaign builds a campaign rooted in a fresh temp dir: ten minutes of
// fuzzing, one-minute buckets, results and output side by side.
func testCampaign(t *testing.T, subjects, fuzzers []string, trials int) (*config.Campaign, *config.AppConfig) {
	t.Helper()
	root := t.TempDir()

	campaign := &config.Campaign{
		Subjects:        subjects,
		Fuzzers:         fuzzers,
		Trials:          trials,
		FuzzedTime:      10,
		BucketWidth:     time.Minute,
		ResultsDir:      filepath.Join(root, "results"),
		OutputDir:       filepath.Join(root, "analysis"),
		EarlyExitPolicy: config.PolicyShrink,
	}
	require.NoError(t, os.MkdirAll(campaign.ResultsDir, 0755))

	campaignFile := filepath.Join(root, "campaign.yaml")
	require.NoError(t, os.WriteFile(campaignFile, []byte("subjects: [lightftp]\n"), 0644))

	cfg := &config.AppConfig{
		CampaignFile: campaignFile,
		ReadWorkers:  4,
	}
	return campaign, cfg
}

func testPipeline(campaign *config.Campaign, cfg *config.AppConfig) *Pipeline {
	logger := zap.NewNop()
	return New(Params{
		Config:        cfg,
		Campaign:      campaign,
		Logger:        logger,
		Notifier:      mq.NewNotifier(nil, logger),
		TracerFactory: telemetry.NewTracerFactory(telemetry.TracerFactoryParams{}),
	})
}

// writeTrial writes a complete coverage log whose samples run to the end of
// the ten-minute trial, one per bucket, growing by step each minute.
func writeTrial(t *testing.T, campaign *config.Campaign, subject, fuzzer string, trial int, step uint64) {
	t.Helper()
	dir := filepath.Join(campaign.ResultsDir, fmt.Sprintf("out-%s-%s-%d", subject, fuzzer, trial))
	require.NoError(t, os.MkdirAll(dir, 0755))

	content := "# time,branches,states,transitions\n"
	for minute := 1; minute <= 10; minute++ {
		cov := uint64(minute) * step
		content += fmt.Sprintf("%d,%d,%d,%d\n", minute*60, cov, cov/2, cov/2)
	}
	path := filepath.Join(dir, "cov_over_time.csv")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func skipReasons(m *report.Manifest) []string {
	reasons := make([]string, 0, len(m.Skipped))
	for _, s := range m.Skipped {
		reasons = append(reasons, s.Reason)
	}
	return reasons
}

func TestPipelineEndToEnd(t *testing.T) {
	campaign, cfg := testCampaign(t, []string{"lightftp"}, []string{"aflnet", "stella"}, 2)
	for trial := 1; trial <= 2; trial++ {
		writeTrial(t, campaign, "lightftp", "aflnet", trial, 10)
		writeTrial(t, campaign, "lightftp", "stella", trial, 15)
	}

	manifest, err := testPipeline(campaign, cfg).Run(context.Background())
	require.NoError(t, err)

	assert.Empty(t, manifest.Skipped)
	require.Len(t, manifest.Reports, 1)
	rep := manifest.Reports[0]
	assert.Equal(t, "lightftp", rep.Subject)
	assert.Equal(t, map[string]int{"aflnet": 2, "stella": 2}, rep.TrialCounts)

	assert.FileExists(t, filepath.Join(campaign.OutputDir, "lightftp.csv"))
	assert.FileExists(t, filepath.Join(campaign.OutputDir, "lightftp-code-cov.png"))
	assert.FileExists(t, filepath.Join(campaign.OutputDir, "lightftp-state-cov.png"))
	assert.FileExists(t, filepath.Join(campaign.OutputDir, "manifest.json"))
	assert.FileExists(t, filepath.Join(campaign.OutputDir, "campaign.yaml"))
}

func TestPipelineCorruptTrialIsolated(t *testing.T) {
	campaign, cfg := testCampaign(t, []string{"lightftp"}, []string{"aflnet"}, 3)
	writeTrial(t, campaign, "lightftp", "aflnet", 1, 10)
	writeTrial(t, campaign, "lightftp", "aflnet", 2, 12)

	// trial 3 exists but has no coverage log at all
	corrupt := filepath.Join(campaign.ResultsDir, "out-lightftp-aflnet-3")
	require.NoError(t, os.MkdirAll(corrupt, 0755))

	manifest, err := testPipeline(campaign, cfg).Run(context.Background())
	require.NoError(t, err)

	// the corrupt trial costs only itself, the other two still produce a report
	require.Len(t, manifest.Reports, 1)
	assert.Equal(t, map[string]int{"aflnet": 2}, manifest.Reports[0].TrialCounts)
	reasons := skipReasons(manifest)
	assert.Contains(t, reasons, report.SkipArtifactCorrupt)
	assert.Contains(t, reasons, report.SkipMissingTrials)
}

func TestPipelineIncompleteTrialKeepsPrefix(t *testing.T) {
	campaign, cfg := testCampaign(t, []string{"lightftp"}, []string{"aflnet"}, 2)
	writeTrial(t, campaign, "lightftp", "aflnet", 1, 10)

	// trial 2 died after four of ten minutes
	dir := filepath.Join(campaign.ResultsDir, "out-lightftp-aflnet-2")
	require.NoError(t, os.MkdirAll(dir, 0755))
	content := "60,5,2,2\n120,8,3,3\n180,9,4,4\n240,11,5,5\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "cov_over_time.csv"), []byte(content), 0644))

	manifest, err := testPipeline(campaign, cfg).Run(context.Background())
	require.NoError(t, err)

	// the short trial is flagged but still contributes its prefix
	require.Len(t, manifest.Reports, 1)
	assert.Equal(t, map[string]int{"aflnet": 2}, manifest.Reports[0].TrialCounts)
	assert.Equal(t, []string{report.SkipArtifactIncomplete}, skipReasons(manifest))
}

func TestPipelineMissingSubjectIsolated(t *testing.T) {
	campaign, cfg := testCampaign(t, []string{"lightftp", "proftpd"}, []string{"aflnet"}, 1)
	writeTrial(t, campaign, "lightftp", "aflnet", 1, 10)
	// proftpd produced no artifacts at all

	manifest, err := testPipeline(campaign, cfg).Run(context.Background())
	require.NoError(t, err)

	require.Len(t, manifest.Reports, 1)
	assert.Equal(t, "lightftp", manifest.Reports[0].Subject)

	require.Len(t, manifest.Skipped, 1)
	assert.Equal(t, "proftpd", manifest.Skipped[0].Subject)
	assert.Equal(t, report.SkipEmptyCohort, manifest.Skipped[0].Reason)
}

func TestPipelineEmptyResultsDir(t *testing.T) {
	campaign, cfg := testCampaign(t, []string{"lightftp"}, []string{"aflnet"}, 1)

	manifest, err := testPipeline(campaign, cfg).Run(context.Background())
	require.NoError(t, err)

	assert.Empty(t, manifest.Reports)
	assert.Equal(t, []string{report.SkipEmptyCohort}, skipReasons(manifest))
	assert.FileExists(t, filepath.Join(campaign.OutputDir, "manifest.json"))
}

func TestPipelineCancelledContext(t *testing.T) {
	campaign, cfg := testCampaign(t, []string{"lightftp"}, []string{"aflnet"}, 1)
	writeTrial(t, campaign, "lightftp", "aflnet", 1, 10)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := testPipeline(campaign, cfg).Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
