package database

import (
	"context"
	"time"

	"gorm.io/gorm"
)

// NewReport creates a new Report object with the provided parameters
func NewReport(
	batchID string,
	subject string,
	bucketWidth time.Duration,
	duration time.Duration,
	tablePath string,
	trialCounts map[string]int,
) *Report {
	meta := make(Metadata, len(trialCounts))
	for fuzzer, n := range trialCounts {
		meta[fuzzer] = n
	}
	return &Report{
		BatchID:     batchID,
		CreatedAt:   time.Now(),
		Subject:     subject,
		BucketWidth: int64(bucketWidth.Seconds()),
		Duration:    int64(duration.Seconds()),
		TablePath:   tablePath,
		TrialCounts: meta,
	}
}

// inserts a single report record into the database
func AddReport(ctx context.Context, db *gorm.DB, report *Report) error {
	if report == nil {
		return nil
	}
	return db.WithContext(ctx).Create(report).Error
}

// inserts the bucket rows of one comparison into the database
func AddCurveRows(ctx context.Context, db *gorm.DB, rows []*CurveRow) error {
	if len(rows) == 0 {
		return nil
	}
	return db.WithContext(ctx).Create(rows).Error
}
