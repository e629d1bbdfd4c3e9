package config

import (
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// policy for trials that ended before the configured duration, see
// internal/aggregate
const (
	PolicyShrink = "shrink" // missing tail buckets drop out of the mean's denominator
	PolicyHold   = "hold"   // last value is carried flat to the end of the run
)

// Campaign describes one benchmark batch: which fuzzers ran against which
// subjects, how many repeated trials, and how the results are bucketed.
type Campaign struct {
	Subjects        []string      `yaml:"subjects"`
	Fuzzers         []string      `yaml:"fuzzers"`
	Trials          int           `yaml:"trials"`
	FuzzedTime      int           `yaml:"fuzzed_time"` // minutes
	BucketWidth     time.Duration `yaml:"bucket_width"`
	ResultsDir      string        `yaml:"results_dir"`
	OutputDir       string        `yaml:"output_dir"`
	EarlyExitPolicy string        `yaml:"early_exit_policy"`
	BundleOutput    bool          `yaml:"bundle_output"` // also tar.gz the output dir
}

// Duration is the configured per-trial fuzzing time.
func (c *Campaign) Duration() time.Duration {
	return time.Duration(c.FuzzedTime) * time.Minute
}

// ProvideCampaign loads the campaign named by the app config, for fx.
func ProvideCampaign(cfg *AppConfig, logger *zap.Logger) (*Campaign, error) {
	return LoadCampaign(cfg.CampaignFile, logger)
}

func LoadCampaign(path string, logger *zap.Logger) (*Campaign, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		logger.Error("Failed to read campaign file", zap.String("path", path), zap.Error(err))
		return nil, err
	}

	var campaign Campaign
	if err := yaml.Unmarshal(content, &campaign); err != nil {
		logger.Error("Failed to parse campaign file", zap.String("path", path), zap.Error(err))
		return nil, err
	}

	campaign.applyDefaults()
	if err := campaign.validate(); err != nil {
		return nil, err
	}
	return &campaign, nil
}

func (c *Campaign) applyDefaults() {
	if c.FuzzedTime == 0 {
		c.FuzzedTime = 1440 // one day of fuzzing per trial
	}
	if c.BucketWidth == 0 {
		c.BucketWidth = time.Minute
	}
	if c.Trials == 0 {
		c.Trials = 1
	}
	if c.ResultsDir == "" {
		c.ResultsDir = "results"
	}
	if c.OutputDir == "" {
		c.OutputDir = "analysis"
	}
	if c.EarlyExitPolicy == "" {
		c.EarlyExitPolicy = PolicyShrink
	}
}

func (c *Campaign) validate() error {
	if len(c.Subjects) == 0 {
		return fmt.Errorf("campaign has no subjects")
	}
	if len(c.Fuzzers) == 0 {
		return fmt.Errorf("campaign has no fuzzers")
	}
	if c.FuzzedTime < 0 {
		return fmt.Errorf("fuzzed_time must be positive, got %d", c.FuzzedTime)
	}
	if c.BucketWidth < 0 || c.BucketWidth > c.Duration() {
		return fmt.Errorf("bucket_width %s does not fit fuzzed_time %s", c.BucketWidth, c.Duration())
	}
	if c.EarlyExitPolicy != PolicyShrink && c.EarlyExitPolicy != PolicyHold {
		return fmt.Errorf("unknown early_exit_policy %q", c.EarlyExitPolicy)
	}
	return nil
}
