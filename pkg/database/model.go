package database

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"
)

// Report represents a record in the public.reports table, one per
// (batch, subject) comparison.
type Report struct {
	ID          int       `gorm:"primaryKey;column:id"`
	BatchID     string    `gorm:"column:batch_id;not null"`
	CreatedAt   time.Time `gorm:"column:created_at;default:now()"`
	Subject     string    `gorm:"column:subject;not null"`
	BucketWidth int64     `gorm:"column:bucket_width_s;not null"` // seconds
	Duration    int64     `gorm:"column:duration_s;not null"`     // seconds
	TablePath   string    `gorm:"column:table_path"`
	TrialCounts Metadata  `gorm:"column:trial_counts;type:jsonb"`
}

// CurveRow represents a record in the public.curve_rows table: one time
// bucket of one fuzzer's aggregated curve.
type CurveRow struct {
	ID                int     `gorm:"primaryKey;column:id"`
	BatchID           string  `gorm:"column:batch_id;not null"`
	Subject           string  `gorm:"column:subject;not null"`
	Fuzzer            string  `gorm:"column:fuzzer;not null"`
	Bucket            int     `gorm:"column:bucket;not null"`
	TimeS             float64 `gorm:"column:time_s;not null"`
	BranchesMean      float64 `gorm:"column:branches_mean"`
	BranchesStdDev    float64 `gorm:"column:branches_stddev"`
	StatesMean        float64 `gorm:"column:states_mean"`
	StatesStdDev      float64 `gorm:"column:states_stddev"`
	TransitionsMean   float64 `gorm:"column:transitions_mean"`
	TransitionsStdDev float64 `gorm:"column:transitions_stddev"`
	Trials            int     `gorm:"column:trials"`
}

// Metadata represents a jsonb field
type Metadata map[string]any

// Value implements the driver.Valuer interface for the Metadata type
func (m Metadata) Value() (driver.Value, error) {
	if m == nil {
		return nil, nil
	}
	return json.Marshal(m)
}

// Scan implements the sql.Scanner interface for the Metadata type
func (m *Metadata) Scan(value any) error {
	if value == nil {
		*m = nil
		return nil
	}

	bytes, ok := value.([]byte)
	if !ok {
		return errors.New("type assertion to []byte failed")
	}

	return json.Unmarshal(bytes, &m)
}
