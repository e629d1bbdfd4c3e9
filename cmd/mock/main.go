package main

// mock the fuzzing containers: generate synthetic trial artifact trees so
// the analysis pipeline can be exercised without a day of real fuzzing

import (
	"flag"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strings"

	"stellabench/internal/utils"

	"go.uber.org/zap"
)

func main() {
	var (
		outDir   = flag.String("out", "results", "results directory to populate")
		subjects = flag.String("subjects", "lightftp,proftpd", "comma separated subject names")
		fuzzers  = flag.String("fuzzers", "aflnet,stella,stella-struct", "comma separated fuzzer names")
		trials   = flag.Int("trials", 4, "trials per (subject, fuzzer) pair")
		minutes  = flag.Int("minutes", 60, "configured duration per trial")
		interval = flag.Int("interval", 30, "mean seconds between coverage snapshots")
		pack     = flag.Bool("pack", false, "ship trials as tar.gz archives like the collection scripts do")
		seed     = flag.Int64("seed", 1, "rng seed")
	)
	flag.Parse()

	logger, err := zap.NewDevelopment()
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to build logger:", err)
		os.Exit(1)
	}
	defer logger.Sync()

	rng := rand.New(rand.NewSource(*seed))
	duration := *minutes * 60

	if err := os.MkdirAll(*outDir, 0755); err != nil {
		logger.Fatal("failed to create results dir", zap.Error(err))
	}

	for _, subject := range strings.Split(*subjects, ",") {
		for _, fuzzer := range strings.Split(*fuzzers, ",") {
			for trial := 1; trial <= *trials; trial++ {
				name := fmt.Sprintf("out-%s-%s-%d", subject, fuzzer, trial)
				if err := writeTrial(*outDir, name, duration, *interval, rng); err != nil {
					logger.Fatal("failed to write trial", zap.String("trial", name), zap.Error(err))
				}
				if *pack {
					dir := filepath.Join(*outDir, name)
					if err := utils.CompressTarGz(dir, dir+".tar.gz"); err != nil {
						logger.Fatal("failed to pack trial", zap.String("trial", name), zap.Error(err))
					}
					os.RemoveAll(dir)
				}
				logger.Info("wrote trial", zap.String("trial", name))
			}
		}
	}
}

// writeTrial emits a coverage log with the shape real runs have: cumulative
// counts that grow fast early and plateau, sampled at jittered intervals.
func writeTrial(outDir, name string, duration, interval int, rng *rand.Rand) error {
	dir := filepath.Join(outDir, name)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	file, err := os.Create(filepath.Join(dir, "cov_over_time.csv"))
	if err != nil {
		return err
	}
	defer file.Close()

	fmt.Fprintln(file, "# time,branches,states,transitions")

	branches, states, transitions := uint64(0), uint64(0), uint64(0)
	for t := 0; t <= duration; t += interval/2 + rng.Intn(interval) {
		// growth slows as the run ages
		progress := float64(t) / float64(duration)
		if rng.Float64() > progress {
			branches += uint64(rng.Intn(20))
			states += uint64(rng.Intn(3))
			transitions += uint64(rng.Intn(5))
		}
		if _, err := fmt.Fprintf(file, "%d,%d,%d,%d\n", t, branches, states, transitions); err != nil {
			return err
		}
	}
	return nil
}
