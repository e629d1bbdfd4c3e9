// Package batch waits for a fuzzing batch to finish delivering artifacts.
// Trials run in external containers and their archives trickle into the
// results root as they complete; watch mode fires the analysis pipeline
// once everything the campaign expects is present.
package batch

import (
	"context"
	"os"
	"path/filepath"

	"stellabench/config"
	"stellabench/internal/artifact"
	"stellabench/internal/types"
	"stellabench/pkg/watchdog"

	"go.uber.org/zap"
)

type Watcher struct {
	campaign *config.Campaign
	factory  *watchdog.WatchDogFactory
	logger   *zap.Logger
}

func NewWatcher(campaign *config.Campaign, factory *watchdog.WatchDogFactory, logger *zap.Logger) *Watcher {
	return &Watcher{campaign: campaign, factory: factory, logger: logger}
}

// Await blocks until every expected (subject, fuzzer, trial) artifact
// exists in the results root, or the context is done. Artifacts already
// present when the watch starts count immediately; packed and unpacked
// trials count as the same artifact.
func (w *Watcher) Await(ctx context.Context) error {
	pending := w.expectedKeys()
	w.logger.Info("waiting for batch artifacts",
		zap.Int("expected", len(pending)),
		zap.String("results_dir", w.campaign.ResultsDir))

	notifyChan := make(chan string, 64)
	dog := w.factory.New(ctx, notifyChan, func(path string) bool {
		_, ok := w.keyFor(filepath.Base(path))
		return ok
	})
	dog.AddDir(w.campaign.ResultsDir)

	// count artifacts that landed before the watch started
	entries, err := os.ReadDir(w.campaign.ResultsDir)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		if key, ok := w.keyFor(entry.Name()); ok {
			delete(pending, key)
		}
	}

	for len(pending) > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case path, ok := <-notifyChan:
			if !ok {
				return ctx.Err()
			}
			key, ok := w.keyFor(filepath.Base(path))
			if !ok {
				continue
			}
			if _, waiting := pending[key]; waiting {
				delete(pending, key)
				w.logger.Info("trial artifact arrived",
					zap.String("artifact", filepath.Base(path)),
					zap.Int("remaining", len(pending)))
			}
		}
	}

	w.logger.Info("batch complete, all expected artifacts present")
	return nil
}

type trialKey struct {
	key   types.CohortKey
	trial int
}

func (w *Watcher) keyFor(name string) (trialKey, bool) {
	subject, fuzzer, trial, ok := artifact.ParseRunName(name, w.campaign.Subjects, w.campaign.Fuzzers)
	if !ok {
		return trialKey{}, false
	}
	return trialKey{types.CohortKey{Subject: subject, Fuzzer: fuzzer}, trial}, true
}

func (w *Watcher) expectedKeys() map[trialKey]struct{} {
	expected := make(map[trialKey]struct{})
	for _, subject := range w.campaign.Subjects {
		for _, fuzzer := range w.campaign.Fuzzers {
			for trial := 1; trial <= w.campaign.Trials; trial++ {
				expected[trialKey{types.CohortKey{Subject: subject, Fuzzer: fuzzer}, trial}] = struct{}{}
			}
		}
	}
	return expected
}
