// Package pipeline orchestrates one crawl run: source workers fetch and
// normalize listings, the observation queue hands them to the store
// writers, and surviving sources get their missing rows marked stale.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"kvartometr/server/config"
	"kvartometr/server/internal/dedup"
	"kvartometr/server/internal/districts"
	"kvartometr/server/internal/models"
	"kvartometr/server/internal/normalize"
	"kvartometr/server/internal/processor"
	"kvartometr/server/internal/queue"
	"kvartometr/server/internal/sources"
)

// ErrRunInProgress is returned when a crawl for the same city is
// already running.
var ErrRunInProgress = errors.New("crawl already in progress for this city")

// Store is the slice of the database layer the orchestrator needs after
// the writers have drained: transitioning unseen rows to stale.
type Store interface {
	MarkStale(city models.City, sourceID string, seenKeys []string) (int64, error)
}

// Notifier publishes the run summary after a crawl finishes. A nil
// notifier disables publishing.
type Notifier interface {
	PublishRunSummary(summary *models.RunSummary) error
}

// MultiNotifier fans one summary out to several channels. Every
// channel is attempted; the first error is returned.
type MultiNotifier []Notifier

func (m MultiNotifier) PublishRunSummary(summary *models.RunSummary) error {
	var firstErr error
	for _, n := range m {
		if err := n.PublishRunSummary(summary); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// CommitterFactory builds the queue handler that persists batches,
// reporting outcomes to the given stats sink.
type CommitterFactory func(stats processor.Stats) queue.Handler

// Service runs crawls. One crawl per city at a time; different cities
// may run concurrently.
type Service struct {
	config     *config.Config
	registry   sources.Registry
	normalizer *normalize.Normalizer
	resolver   *districts.Resolver
	store      Store
	committer  CommitterFactory
	notifier   Notifier
	logger     *logrus.Logger

	mu   sync.Mutex
	runs map[models.City]bool
}

// NewService wires the orchestrator.
func NewService(cfg *config.Config, registry sources.Registry, normalizer *normalize.Normalizer,
	resolver *districts.Resolver, store Store, committer CommitterFactory,
	notifier Notifier, logger *logrus.Logger) *Service {
	return &Service{
		config:     cfg,
		registry:   registry,
		normalizer: normalizer,
		resolver:   resolver,
		store:      store,
		committer:  committer,
		notifier:   notifier,
		logger:     logger,
		runs:       make(map[models.City]bool),
	}
}

// Run executes a full crawl for one city and returns its summary. The
// summary is also returned on failed runs, with the fatal cause set.
func (s *Service) Run(ctx context.Context, city models.City) (*models.RunSummary, error) {
	if err := s.acquire(city); err != nil {
		return nil, err
	}
	defer s.release(city)

	cityCfg := config.GetCityByCode(city)
	if cityCfg == nil {
		return nil, fmt.Errorf("unsupported city: %s", city)
	}

	tracker := newRunTracker(city)
	tracker.setState(models.RunFetching)

	q := queue.NewObservationQueue(s.config.BatchProcessing.QueueSize, s.logger)
	q.Subscribe(s.committer(tracker))
	q.Start(s.config.BatchProcessing.ProcessorCount)

	seen := make(map[string][]string, len(cityCfg.Sources))
	var seenMu sync.Mutex

	var wg sync.WaitGroup
	for _, sourceID := range cityCfg.Sources {
		adapter, ok := s.registry[sourceID]
		if !ok {
			tracker.failSource(sourceID, fmt.Errorf("no adapter registered for %q", sourceID))
			continue
		}

		wg.Add(1)
		go func(adapter sources.Adapter) {
			defer wg.Done()
			keys, err := s.runSource(ctx, city, adapter, tracker, q)
			if err != nil {
				tracker.failSource(adapter.ID(), err)
				return
			}
			seenMu.Lock()
			seen[adapter.ID()] = keys
			seenMu.Unlock()
		}(adapter)
	}
	wg.Wait()

	q.Close()
	q.Wait()

	if err := ctx.Err(); err != nil {
		summary := tracker.finish(models.RunFailed, fmt.Errorf("crawl aborted: %w", err))
		s.publish(summary)
		return summary, err
	}
	if err := tracker.storeFailure(); err != nil {
		summary := tracker.finish(models.RunFailed, err)
		s.publish(summary)
		return summary, err
	}

	// Stale marking only runs for sources whose crawl completed: a
	// failed source must not demote rows it simply never reached.
	tracker.setState(models.RunStaleMarking)
	for sourceID, keys := range seen {
		n, err := s.store.MarkStale(city, sourceID, keys)
		if err != nil {
			summary := tracker.finish(models.RunFailed, fmt.Errorf("stale marking failed for %s: %w", sourceID, err))
			s.publish(summary)
			return summary, err
		}
		tracker.recordStale(sourceID, int(n))
	}

	summary := tracker.finish(models.RunDone, nil)
	s.publish(summary)
	return summary, nil
}

// runSource walks one adapter's cursor to the end and returns the
// identity keys observed.
func (s *Service) runSource(ctx context.Context, city models.City, adapter sources.Adapter,
	tracker *runTracker, q *queue.ObservationQueue) ([]string, error) {

	log := s.logger.WithFields(logrus.Fields{"source": adapter.ID(), "city": city})

	cursor, err := adapter.Fetch(ctx, city)
	if err != nil {
		return nil, fmt.Errorf("failed to start crawl: %w", err)
	}

	seenKeys := make([]string, 0, s.config.BatchProcessing.MaxBatchSize)
	seenSet := make(map[string]struct{})
	batch := make([]*models.Listing, 0, s.config.BatchProcessing.MaxBatchSize)

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		err := q.Push(&queue.Batch{Source: adapter.ID(), City: city, Listings: batch})
		batch = make([]*models.Listing, 0, s.config.BatchProcessing.MaxBatchSize)
		return err
	}

	for {
		doc, err := cursor.Next(ctx)
		if errors.Is(err, sources.ErrEndOfStream) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("fetch failed: %w", err)
		}
		tracker.recordDocument(adapter.ID())

		records, err := adapter.Parse(doc)
		if err != nil {
			tracker.recordParseFailure(adapter.ID())
			log.WithError(err).WithField("url", doc.URL).Warn("Failed to parse document")
			continue
		}
		tracker.recordParsed(adapter.ID(), len(records))

		for _, rec := range records {
			listing, err := s.normalizer.Normalize(rec, city, time.Now())
			if err != nil {
				var reject *normalize.RejectError
				if errors.As(err, &reject) {
					tracker.recordReject(adapter.ID(), reject.Reason)
				}
				continue
			}

			listing.District = s.resolver.Resolve(city, rec.DistrictText, rec.Address, rec.Latitude, rec.Longitude)
			if listing.District == models.DistrictUnresolved {
				tracker.recordUnresolved(adapter.ID())
			}

			listing.IdentityKey = dedup.IdentityKey(listing, rec.NativeID)
			if _, dup := seenSet[listing.IdentityKey]; dup {
				continue
			}
			seenSet[listing.IdentityKey] = struct{}{}
			seenKeys = append(seenKeys, listing.IdentityKey)

			batch = append(batch, listing)
			if len(batch) >= s.config.BatchProcessing.MaxBatchSize {
				if err := flush(); err != nil {
					return nil, err
				}
			}
		}
	}

	if err := flush(); err != nil {
		return nil, err
	}

	log.WithField("listings", len(seenKeys)).Info("Source crawl finished")
	return seenKeys, nil
}

func (s *Service) publish(summary *models.RunSummary) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.PublishRunSummary(summary); err != nil {
		s.logger.WithError(err).Warn("Failed to publish run summary")
	}
}

func (s *Service) acquire(city models.City) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.runs[city] {
		return ErrRunInProgress
	}
	s.runs[city] = true
	return nil
}

func (s *Service) release(city models.City) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.runs, city)
}
