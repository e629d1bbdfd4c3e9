package artifact

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"stellabench/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestParseRunName(t *testing.T) {
	subjects := []string{"lightftp", "forked-daapd"}
	fuzzers := []string{"aflnet", "stella", "stella-struct"}

	tests := []struct {
		name    string
		subject string
		fuzzer  string
		trial   int
		ok      bool
	}{
		{"out-lightftp-aflnet-1", "lightftp", "aflnet", 1, true},
		{"out-lightftp-stella-struct-3", "lightftp", "stella-struct", 3, true},
		{"out-forked-daapd-stella-2", "forked-daapd", "stella", 2, true},
		{"out-forked-daapd-stella-struct-10.tar.gz", "forked-daapd", "stella-struct", 10, true},
		{"out-lightftp-unknownfuzzer-1", "", "", 0, false},
		{"out-proftpd-aflnet-1", "", "", 0, false}, // subject not in campaign
		{"out-lightftp-aflnet", "", "", 0, false},
		{"queue", "", "", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			subject, fuzzer, trial, ok := ParseRunName(tt.name, subjects, fuzzers)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.subject, subject)
				assert.Equal(t, tt.fuzzer, fuzzer)
				assert.Equal(t, tt.trial, trial)
			}
		})
	}
}

func TestDiscover(t *testing.T) {
	resultsDir := t.TempDir()
	campaign := &config.Campaign{
		Subjects:    []string{"lightftp"},
		Fuzzers:     []string{"aflnet", "stella"},
		Trials:      2,
		FuzzedTime:  10,
		BucketWidth: time.Minute,
		ResultsDir:  resultsDir,
	}

	for _, name := range []string{
		"out-lightftp-aflnet-1",
		"out-lightftp-aflnet-2",
		"out-lightftp-stella-1",
		"out-proftpd-aflnet-1", // not in campaign
		"queue",                // stray dir
	} {
		require.NoError(t, os.MkdirAll(filepath.Join(resultsDir, name), 0755))
	}

	records, err := Discover(campaign, t.TempDir(), zap.NewNop())
	require.NoError(t, err)
	require.Len(t, records, 3)

	// deterministic (subject, fuzzer, trial) order
	assert.Equal(t, "lightftp/aflnet/1", records[0].String())
	assert.Equal(t, "lightftp/aflnet/2", records[1].String())
	assert.Equal(t, "lightftp/stella/1", records[2].String())
	for _, rec := range records {
		assert.Equal(t, 10*time.Minute, rec.Duration)
	}
}

func TestDiscoverEmptyResultsDir(t *testing.T) {
	campaign := &config.Campaign{
		Subjects:   []string{"lightftp"},
		Fuzzers:    []string{"aflnet"},
		FuzzedTime: 10,
		ResultsDir: t.TempDir(),
	}

	records, err := Discover(campaign, t.TempDir(), zap.NewNop())
	require.NoError(t, err)
	assert.Empty(t, records)
}
