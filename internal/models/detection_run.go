package models

import "time"

const (
	RunCompleted  = "completed"
	RunBudgetHit  = "budget_exceeded"
	RunFailed     = "failed"
	RunRatesStale = "rates_stale"
)

// DetectionRun is the accounting row for one detection pass.
type DetectionRun struct {
	ID     string `gorm:"primaryKey;type:uuid"`
	Status string `gorm:"type:varchar(20);not null;index"`

	RateSnapshotID *string `gorm:"type:uuid"`

	PairsConsidered  int `gorm:"not null"`
	PairsQualified   int `gorm:"not null"`
	PairsSkipped     int `gorm:"not null"`
	OpportunitiesUps int `gorm:"column:opportunities_upserted;not null"`

	StartedAt  time.Time  `gorm:"type:timestamptz;not null;index"`
	FinishedAt *time.Time `gorm:"type:timestamptz"`
	CreatedAt  time.Time  `gorm:"type:timestamptz;autoCreateTime"`
}

func (DetectionRun) TableName() string {
	return "detection_runs"
}
