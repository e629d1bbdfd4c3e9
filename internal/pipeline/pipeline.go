// Package pipeline runs one analysis batch end to end: discover trial
// artifacts, read them in parallel, normalize, aggregate per cohort,
// compare per subject, and emit tables, plots and the skip manifest.
//
// Failures are isolated to the smallest unit they affect. A corrupt trial
// costs that trial, an incomparable subject costs that subject; the batch
// always finishes and every exclusion is recorded in the manifest.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"stellabench/config"
	"stellabench/internal/aggregate"
	"stellabench/internal/artifact"
	"stellabench/internal/compare"
	"stellabench/internal/normalize"
	"stellabench/internal/report"
	"stellabench/internal/types"
	"stellabench/internal/utils"
	"stellabench/pkg/database"
	"stellabench/pkg/mq"
	"stellabench/pkg/telemetry"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Pipeline struct {
	cfg           *config.AppConfig
	campaign      *config.Campaign
	logger        *zap.Logger
	db            *gorm.DB
	notifier      *mq.Notifier
	tracerFactory *telemetry.TracerFactory
}

type Params struct {
	fx.In
	Config        *config.AppConfig
	Campaign      *config.Campaign
	Logger        *zap.Logger
	DB            *gorm.DB `optional:"true"`
	Notifier      *mq.Notifier
	TracerFactory *telemetry.TracerFactory
}

func New(p Params) *Pipeline {
	return &Pipeline{
		p.Config,
		p.Campaign,
		p.Logger,
		p.DB,
		p.Notifier,
		p.TracerFactory,
	}
}

type readResult struct {
	rec        types.RunRecord
	samples    []types.CoverageSample
	incomplete bool
	err        error
}

// Run executes one analysis batch over the current contents of the results
// directory and returns its manifest. Derived data lives only for this
// call; re-running recomputes everything from the artifacts.
func (p *Pipeline) Run(ctx context.Context) (*report.Manifest, error) {
	batchID := uuid.New().String()
	tracer := p.tracerFactory.NewTracer(ctx, "analysis batch")
	tracer.Start()
	defer tracer.End()
	tracer.WithAttributes(
		telemetry.NewSpanAttributes(telemetry.Analysis).
			WithTrialCount(p.campaign.Trials).
			WithExtraAttribute("batch_id", batchID))
	ctx = context.WithValue(ctx, telemetry.TracerKey{}, tracer)

	manifest := report.NewManifest(batchID, p.campaign.BucketWidth, p.campaign.Duration())

	p.logger.Info("starting analysis batch",
		zap.String("batch_id", batchID),
		zap.Strings("subjects", p.campaign.Subjects),
		zap.Strings("fuzzers", p.campaign.Fuzzers))

	scratch, err := os.MkdirTemp("", "stellabench-scratch-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create scratch dir: %w", err)
	}
	defer os.RemoveAll(scratch)

	records, err := artifact.Discover(p.campaign, scratch, p.logger)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	cohorts := p.readAndNormalize(ctx, records, manifest)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	curvesBySubject := p.aggregateCohorts(cohorts, manifest)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if err := p.emit(ctx, batchID, curvesBySubject, manifest, tracer); err != nil {
		return nil, err
	}

	p.logger.Info("analysis batch finished",
		zap.String("batch_id", batchID),
		zap.Int("reports", len(manifest.Reports)),
		zap.Int("skipped", len(manifest.Skipped)))
	return manifest, nil
}

// readAndNormalize fans artifact reads out over a bounded worker pool and
// step-hold-resamples every readable trial. Reads are pure and
// independent, so the only shared state is the results channel.
func (p *Pipeline) readAndNormalize(ctx context.Context, records []types.RunRecord, manifest *report.Manifest) map[types.CohortKey][]types.NormalizedSeries {
	jobs := make(chan types.RunRecord)
	results := make(chan readResult, len(records))

	var wg sync.WaitGroup
	for range p.cfg.ReadWorkers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for rec := range jobs {
				samples, err := artifact.ReadRun(rec)
				res := readResult{rec: rec, samples: samples}
				if errors.Is(err, artifact.ErrIncomplete) {
					res.incomplete = true
				} else if err != nil {
					res.err = err
				}
				results <- res
			}
		}()
	}

	go func() {
		defer close(jobs)
		for _, rec := range records {
			select {
			case jobs <- rec:
			case <-ctx.Done():
				return
			}
		}
	}()

	wg.Wait()
	close(results)

	cohorts := make(map[types.CohortKey][]types.NormalizedSeries)
	for res := range results {
		if res.err != nil {
			p.logger.Warn("excluding trial", zap.String("run", res.rec.String()), zap.Error(res.err))
			manifest.AddSkip(report.SkipEntry{
				Subject: res.rec.Subject,
				Fuzzer:  res.rec.Fuzzer,
				Trial:   res.rec.Trial,
				Reason:  report.SkipArtifactCorrupt,
				Detail:  res.err.Error(),
			})
			continue
		}
		if res.incomplete {
			p.logger.Warn("trial ended early, keeping its prefix", zap.String("run", res.rec.String()))
			manifest.AddSkip(report.SkipEntry{
				Subject: res.rec.Subject,
				Fuzzer:  res.rec.Fuzzer,
				Trial:   res.rec.Trial,
				Reason:  report.SkipArtifactIncomplete,
				Detail:  "contributes only its available prefix",
			})
		}
		series := normalize.Normalize(res.rec, res.samples, p.campaign.BucketWidth)
		cohorts[res.rec.Key()] = append(cohorts[res.rec.Key()], series)
	}
	return cohorts
}

// aggregateCohorts folds every configured (subject, fuzzer) cohort into an
// aggregated curve. A trial with inconsistent bucketing is excluded and the
// aggregation retried with the remainder; an empty cohort is skipped.
func (p *Pipeline) aggregateCohorts(cohorts map[types.CohortKey][]types.NormalizedSeries, manifest *report.Manifest) map[string][]types.AggregatedCurve {
	curves := make(map[string][]types.AggregatedCurve)

	for _, subject := range p.campaign.Subjects {
		for _, fuzzer := range p.campaign.Fuzzers {
			key := types.CohortKey{Subject: subject, Fuzzer: fuzzer}
			cohort := cohorts[key]

			if len(cohort) < p.campaign.Trials && len(cohort) > 0 {
				manifest.AddSkip(report.SkipEntry{
					Subject: subject,
					Fuzzer:  fuzzer,
					Reason:  report.SkipMissingTrials,
					Detail:  fmt.Sprintf("%d of %d trials found", len(cohort), p.campaign.Trials),
				})
			}

			curve, err := p.aggregateCohort(key, cohort, manifest)
			if err != nil {
				p.logger.Warn("skipping cohort", zap.String("key", key.String()), zap.Error(err))
				manifest.AddSkip(report.SkipEntry{
					Subject: subject,
					Fuzzer:  fuzzer,
					Reason:  report.SkipEmptyCohort,
					Detail:  err.Error(),
				})
				continue
			}
			curves[subject] = append(curves[subject], curve)
		}
	}
	return curves
}

func (p *Pipeline) aggregateCohort(key types.CohortKey, cohort []types.NormalizedSeries, manifest *report.Manifest) (types.AggregatedCurve, error) {
	for {
		curve, err := aggregate.Aggregate(cohort, p.campaign.EarlyExitPolicy)
		if err == nil {
			return curve, nil
		}

		var bucketErr *aggregate.InconsistentBucketingError
		if !errors.As(err, &bucketErr) {
			return types.AggregatedCurve{}, err
		}

		// drop only the offending trial and retry with the rest
		p.logger.Warn("excluding trial with inconsistent bucketing",
			zap.String("run", bucketErr.Record.String()),
			zap.Int("got", bucketErr.Got),
			zap.Int("want", bucketErr.Want))
		manifest.AddSkip(report.SkipEntry{
			Subject: key.Subject,
			Fuzzer:  key.Fuzzer,
			Trial:   bucketErr.Record.Trial,
			Reason:  report.SkipInconsistentBucketing,
			Detail:  bucketErr.Error(),
		})
		kept := cohort[:0:0]
		for _, s := range cohort {
			if s.Record != bucketErr.Record {
				kept = append(kept, s)
			}
		}
		cohort = kept
	}
}

// emit compares each subject's curves and writes every output file,
// always via a temporary path plus rename so cancellation never leaves a
// partial table or plot behind.
func (p *Pipeline) emit(ctx context.Context, batchID string, curvesBySubject map[string][]types.AggregatedCurve, manifest *report.Manifest, tracer telemetry.Tracer) error {
	outDir := p.campaign.OutputDir
	if err := os.MkdirAll(outDir, 0755); err != nil {
		return fmt.Errorf("failed to create output dir: %w", err)
	}

	subjects := make([]string, 0, len(curvesBySubject))
	for subject := range curvesBySubject {
		subjects = append(subjects, subject)
	}
	sort.Strings(subjects)

	for _, subject := range subjects {
		if err := ctx.Err(); err != nil {
			return err
		}

		subjectTracer := tracer.Spawn("subject report")
		subjectTracer.Start()
		subjectTracer.WithAttributes(
			telemetry.NewSpanAttributes(telemetry.Analysis).WithSubject(subject))

		rep, err := compare.Compare(subject, curvesBySubject[subject])
		if err != nil {
			p.logger.Warn("skipping subject", zap.String("subject", subject), zap.Error(err))
			manifest.AddSkip(report.SkipEntry{
				Subject: subject,
				Reason:  report.SkipIncomparableCurves,
				Detail:  err.Error(),
			})
			subjectTracer.SetStatus(codes.Error, "incomparable curves")
			subjectTracer.End()
			continue
		}

		tablePath := filepath.Join(outDir, subject+".csv")
		if err := report.WriteTable(rep, tablePath); err != nil {
			subjectTracer.End()
			return fmt.Errorf("failed to write table for %s: %w", subject, err)
		}
		plotPaths, err := report.RenderPlots(rep, outDir)
		if err != nil {
			subjectTracer.End()
			return fmt.Errorf("failed to render plots for %s: %w", subject, err)
		}

		manifest.AddReport(report.ReportEntry{
			Subject:     subject,
			TablePath:   tablePath,
			PlotPaths:   plotPaths,
			TrialCounts: rep.TrialCounts(),
		})

		p.archive(ctx, batchID, rep, tablePath)
		if err := p.notifier.PublishReport(types.ReportMessage{
			BatchID:   batchID,
			Subject:   subject,
			TablePath: tablePath,
			PlotPaths: plotPaths,
		}); err != nil {
			p.logger.Error("failed to publish report notification", zap.Error(err))
		}
		subjectTracer.End()
	}

	// keep the campaign next to its outputs so a batch is reproducible
	if err := utils.CopyFile(p.cfg.CampaignFile, filepath.Join(outDir, "campaign.yaml")); err != nil {
		p.logger.Warn("failed to copy campaign file into output dir", zap.Error(err))
	}

	if err := manifest.Write(filepath.Join(outDir, "manifest.json")); err != nil {
		return err
	}

	if p.campaign.BundleOutput {
		bundle := filepath.Join(filepath.Dir(outDir), "analysis-"+batchID+".tar.gz")
		if err := utils.CompressTarGz(outDir, bundle); err != nil {
			p.logger.Error("failed to bundle output dir", zap.Error(err))
		} else {
			p.logger.Info("bundled analysis output", zap.String("bundle", bundle))
		}
	}
	return nil
}

// archive stores the comparison in the database sink when one is configured.
func (p *Pipeline) archive(ctx context.Context, batchID string, rep types.ComparisonReport, tablePath string) {
	if p.db == nil {
		return
	}

	record := database.NewReport(batchID, rep.Subject, rep.BucketWidth, rep.Duration, tablePath, rep.TrialCounts())
	if err := database.AddReport(ctx, p.db, record); err != nil {
		p.logger.Error("failed to archive report", zap.String("subject", rep.Subject), zap.Error(err))
		return
	}

	width := rep.BucketWidth.Seconds()
	var rows []*database.CurveRow
	for _, curve := range rep.Curves {
		for i, pt := range curve.Points {
			rows = append(rows, &database.CurveRow{
				BatchID:           batchID,
				Subject:           rep.Subject,
				Fuzzer:            curve.Fuzzer,
				Bucket:            i,
				TimeS:             float64(i+1) * width,
				BranchesMean:      pt.Branches.Mean,
				BranchesStdDev:    pt.Branches.StdDev,
				StatesMean:        pt.States.Mean,
				StatesStdDev:      pt.States.StdDev,
				TransitionsMean:   pt.Transitions.Mean,
				TransitionsStdDev: pt.Transitions.StdDev,
				Trials:            pt.Trials,
			})
		}
	}
	if err := database.AddCurveRows(ctx, p.db, rows); err != nil {
		p.logger.Error("failed to archive curve rows", zap.String("subject", rep.Subject), zap.Error(err))
	}
}
