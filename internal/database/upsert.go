package database

import (
	"fmt"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"kvartometr/server/internal/models"
)

// OpenGorm opens the write-side handle used by the batch processor.
// Read queries and the stale-marking pass use the raw handle instead.
func OpenGorm(dbPath string) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open gorm handle: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	if _, err := sqlDB.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		return nil, err
	}

	return db, nil
}

// ListingsByKeys loads the stored listings for a set of identity keys,
// keyed by identity key.
func ListingsByKeys(tx *gorm.DB, keys []string) (map[string]*models.Listing, error) {
	if len(keys) == 0 {
		return map[string]*models.Listing{}, nil
	}

	var stored []models.Listing
	if err := tx.Where("identity_key IN ?", keys).Find(&stored).Error; err != nil {
		return nil, fmt.Errorf("failed to load listings by key: %w", err)
	}

	byKey := make(map[string]*models.Listing, len(stored))
	for i := range stored {
		byKey[stored[i].IdentityKey] = &stored[i]
	}
	return byKey, nil
}

// UpsertListings writes a batch of reconciled listings. The identity
// key carries the conflict target, so inserts and updates go through
// one statement and concurrent writers to the same key serialize on
// the row.
func UpsertListings(tx *gorm.DB, batch []*models.Listing) error {
	if len(batch) == 0 {
		return nil
	}

	err := tx.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "identity_key"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"district", "price_rub", "area_sqm", "latitude", "longitude",
			"raw_address", "url", "source_id", "status", "last_seen_at",
		}),
	}).Create(&batch).Error
	if err != nil {
		return fmt.Errorf("failed to upsert listings batch: %w", err)
	}
	return nil
}
