package db

import (
	"arbtrack/internal/models"
)

func AutoMigrate(db *DB) error {
	if db == nil || db.Gorm == nil || db.SQL == nil {
		return nil
	}

	return db.Gorm.AutoMigrate(
		&models.Listing{},
		&models.PriceHistoryEntry{},
		&models.DriftEvent{},
		&models.Opportunity{},
		&models.RateSnapshot{},
		&models.DetectionRun{},
	)
}
