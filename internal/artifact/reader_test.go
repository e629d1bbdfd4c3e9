package artifact

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"stellabench/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeCovFile(t *testing.T, dir, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, CoverageFileName), []byte(content), 0644))
}

func testRecord(t *testing.T, duration time.Duration) types.RunRecord {
	t.Helper()
	return types.RunRecord{
		Subject:  "lightftp",
		Fuzzer:   "aflnet",
		Trial:    1,
		Duration: duration,
		Dir:      t.TempDir(),
	}
}

func TestReadRun(t *testing.T) {
	rec := testRecord(t, 10*time.Minute)
	writeCovFile(t, rec.Dir, `# time,branches,states,transitions
0,0,0,0
65,4,1,0
400,10,2,1
590,12,3,2
`)

	samples, err := ReadRun(rec)
	require.NoError(t, err)
	require.Len(t, samples, 4)
	assert.Equal(t, 65.0, samples[1].Timestamp)
	assert.Equal(t, uint64(4), samples[1].Branches)
	assert.Equal(t, uint64(1), samples[1].States)
	assert.Equal(t, uint64(2), samples[3].Transitions)
}

func TestReadRunMissingLog(t *testing.T) {
	rec := testRecord(t, time.Minute)

	_, err := ReadRun(rec)
	require.ErrorIs(t, err, ErrCorrupt)
}

func TestReadRunDiscardsMalformedLines(t *testing.T) {
	rec := testRecord(t, 10*time.Minute)
	// last line truncated as if the trial was killed mid-write
	writeCovFile(t, rec.Dir, `0,0,0,0
65,4,1,0
not,a,sample,line
-5,1,1,1
400,10,2,1
590,12,3,2
600,14,`)

	samples, err := ReadRun(rec)
	require.NoError(t, err)
	require.Len(t, samples, 4)
	assert.Equal(t, 590.0, samples[len(samples)-1].Timestamp)
}

func TestReadRunSortsOutOfOrderSamples(t *testing.T) {
	rec := testRecord(t, 10*time.Minute)
	writeCovFile(t, rec.Dir, `400,10,2,1
0,0,0,0
590,12,3,2
65,4,1,0
`)

	samples, err := ReadRun(rec)
	require.NoError(t, err)
	for i := 1; i < len(samples); i++ {
		assert.LessOrEqual(t, samples[i-1].Timestamp, samples[i].Timestamp)
	}
}

func TestReadRunIncomplete(t *testing.T) {
	rec := testRecord(t, 10*time.Minute)
	// log stops at the halfway mark, the trial crashed
	writeCovFile(t, rec.Dir, `0,0,0,0
300,7,2,1
`)

	samples, err := ReadRun(rec)
	require.ErrorIs(t, err, ErrIncomplete)
	assert.Len(t, samples, 2, "prefix must still be returned")
}

func TestReadRunEmptyLogIsIncompleteNotCorrupt(t *testing.T) {
	rec := testRecord(t, time.Minute)
	writeCovFile(t, rec.Dir, "# time,branches,states,transitions\n")

	samples, err := ReadRun(rec)
	require.ErrorIs(t, err, ErrIncomplete)
	assert.Empty(t, samples)
}
