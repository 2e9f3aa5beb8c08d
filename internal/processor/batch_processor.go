package processor

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"kvartometr/server/config"
	"kvartometr/server/internal/database"
	"kvartometr/server/internal/dedup"
	"kvartometr/server/internal/queue"
)

// Stats receives the outcome of each committed or abandoned batch. The
// pipeline uses it to build the per-source run report.
type Stats interface {
	RecordCommit(source string, inserted, updated, touched int)
	RecordFailure(source string, err error)
}

// BatchProcessor commits observation batches to the store. Each batch runs
// in one transaction: existing rows are loaded by identity key, the dedup
// decision is applied per listing, and the whole batch is upserted.
type BatchProcessor struct {
	db     *gorm.DB
	logger *logrus.Logger
	config *config.Config
	stats  Stats
	now    func() time.Time
}

// NewBatchProcessor creates a new batch processor instance.
func NewBatchProcessor(db *gorm.DB, config *config.Config, stats Stats, logger *logrus.Logger) *BatchProcessor {
	return &BatchProcessor{
		db:     db,
		config: config,
		stats:  stats,
		logger: logger,
		now:    time.Now,
	}
}

// HandleBatch is the queue handler. It retries transient store failures a
// bounded number of times before reporting the batch as failed.
func (p *BatchProcessor) HandleBatch(batch *queue.Batch) error {
	if len(batch.Listings) == 0 {
		return nil
	}

	var err error
	for attempt := 0; attempt <= p.config.BatchProcessing.MaxRetries; attempt++ {
		if attempt > 0 {
			p.logger.Infof("Retrying batch commit, attempt %d of %d", attempt, p.config.BatchProcessing.MaxRetries)
			time.Sleep(time.Duration(p.config.BatchProcessing.RetryDelay) * time.Second)
		}

		var inserted, updated, touched int
		err = p.db.Transaction(func(tx *gorm.DB) error {
			keys := make([]string, 0, len(batch.Listings))
			for _, l := range batch.Listings {
				keys = append(keys, l.IdentityKey)
			}

			existing, err := database.ListingsByKeys(tx, keys)
			if err != nil {
				return fmt.Errorf("failed to load existing listings: %w", err)
			}

			inserted, updated, touched = 0, 0, 0
			now := p.now()
			for _, l := range batch.Listings {
				switch dedup.Decide(existing[l.IdentityKey], l, now) {
				case dedup.ActionInsert:
					inserted++
				case dedup.ActionUpdate:
					updated++
				case dedup.ActionTouch:
					touched++
				}
			}

			if err := database.UpsertListings(tx, batch.Listings); err != nil {
				return fmt.Errorf("failed to upsert listings batch: %w", err)
			}
			return nil
		})

		if err == nil {
			p.logger.WithFields(logrus.Fields{
				"source":   batch.Source,
				"city":     batch.City,
				"inserted": inserted,
				"updated":  updated,
				"touched":  touched,
			}).Info("Committed listings batch")
			p.stats.RecordCommit(batch.Source, inserted, updated, touched)
			return nil
		}

		p.logger.Errorf("Batch commit failed: %v", err)
	}

	err = fmt.Errorf("failed to commit batch after %d attempts: %w", p.config.BatchProcessing.MaxRetries, err)
	p.stats.RecordFailure(batch.Source, err)
	return err
}
