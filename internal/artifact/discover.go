package artifact

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"stellabench/config"
	"stellabench/internal/types"
	"stellabench/internal/utils"

	"go.uber.org/zap"
)

const (
	runDirPrefix   = "out-"
	archiveSuffix  = ".tar.gz"
	runDirFileMode = 0755
)

// ParseRunName resolves an artifact name of the form
// `out-<subject>-<fuzzer>-<trial>` against the configured subject and
// fuzzer sets. Both names may themselves contain dashes (stella-struct,
// forked-daapd), so the split is by set membership rather than position.
func ParseRunName(name string, subjects, fuzzers []string) (subject, fuzzer string, trial int, ok bool) {
	name = strings.TrimSuffix(name, archiveSuffix)
	if !strings.HasPrefix(name, runDirPrefix) {
		return "", "", 0, false
	}
	rest := strings.TrimPrefix(name, runDirPrefix)

	idx := strings.LastIndex(rest, "-")
	if idx < 0 {
		return "", "", 0, false
	}
	trial, err := strconv.Atoi(rest[idx+1:])
	if err != nil || trial < 0 {
		return "", "", 0, false
	}
	rest = rest[:idx]

	for _, s := range subjects {
		if !strings.HasPrefix(rest, s+"-") {
			continue
		}
		f := strings.TrimPrefix(rest, s+"-")
		for _, known := range fuzzers {
			if f == known {
				return s, f, trial, true
			}
		}
	}
	return "", "", 0, false
}

// Discover scans the results root for trial artifacts belonging to the
// campaign. Packed trials (`out-*.tar.gz`, how the collection scripts ship
// them off the containers) are unpacked into scratchDir first; an unpacked
// directory with the same name wins over its archive. Records come back in
// deterministic (subject, fuzzer, trial) order.
func Discover(campaign *config.Campaign, scratchDir string, logger *zap.Logger) ([]types.RunRecord, error) {
	entries, err := os.ReadDir(campaign.ResultsDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read results dir %s: %w", campaign.ResultsDir, err)
	}

	seen := make(map[string]types.RunRecord)
	var archives []string

	for _, entry := range entries {
		name := entry.Name()
		subject, fuzzer, trial, ok := ParseRunName(name, campaign.Subjects, campaign.Fuzzers)
		if !ok {
			if strings.HasPrefix(name, runDirPrefix) {
				logger.Debug("ignoring unrecognized results entry", zap.String("name", name))
			}
			continue
		}

		if entry.IsDir() {
			seen[strings.TrimSuffix(name, archiveSuffix)] = types.RunRecord{
				Subject:  subject,
				Fuzzer:   fuzzer,
				Trial:    trial,
				Duration: campaign.Duration(),
				Dir:      filepath.Join(campaign.ResultsDir, name),
			}
			continue
		}
		if strings.HasSuffix(name, archiveSuffix) {
			archives = append(archives, name)
		}
	}

	for _, name := range archives {
		dirName := strings.TrimSuffix(name, archiveSuffix)
		if _, ok := seen[dirName]; ok {
			continue // already present unpacked
		}
		subject, fuzzer, trial, _ := ParseRunName(name, campaign.Subjects, campaign.Fuzzers)

		archivePath := filepath.Join(campaign.ResultsDir, name)
		if !utils.IsTarGz(archivePath) {
			logger.Warn("results archive is not gzip data, skipping", zap.String("archive", name))
			continue
		}
		dst := filepath.Join(scratchDir, dirName)
		if err := os.MkdirAll(dst, runDirFileMode); err != nil {
			return nil, fmt.Errorf("failed to create scratch dir: %w", err)
		}
		if err := utils.UnpackTarGz(archivePath, dst); err != nil {
			logger.Warn("failed to unpack trial archive, skipping", zap.String("archive", name), zap.Error(err))
			continue
		}
		seen[dirName] = types.RunRecord{
			Subject:  subject,
			Fuzzer:   fuzzer,
			Trial:    trial,
			Duration: campaign.Duration(),
			Dir:      dst,
		}
	}

	records := make([]types.RunRecord, 0, len(seen))
	for _, rec := range seen {
		records = append(records, rec)
	}
	sort.Slice(records, func(i, j int) bool {
		a, b := records[i], records[j]
		if a.Subject != b.Subject {
			return a.Subject < b.Subject
		}
		if a.Fuzzer != b.Fuzzer {
			return a.Fuzzer < b.Fuzzer
		}
		return a.Trial < b.Trial
	})

	logger.Info("discovered trial artifacts",
		zap.Int("count", len(records)),
		zap.String("results_dir", campaign.ResultsDir))
	return records, nil
}
