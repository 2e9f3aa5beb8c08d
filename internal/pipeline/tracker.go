package pipeline

import (
	"sync"
	"time"

	"kvartometr/server/internal/models"
)

// runTracker accumulates the run summary. Source workers and store
// writers report into it concurrently, so every mutation takes the
// lock. It implements processor.Stats.
type runTracker struct {
	mu       sync.Mutex
	summary  *models.RunSummary
	storeErr error
}

func newRunTracker(city models.City) *runTracker {
	return &runTracker{
		summary: &models.RunSummary{
			City:      city,
			State:     models.RunInit,
			StartedAt: time.Now(),
			Sources:   make(map[string]*models.SourceReport),
		},
	}
}

// report returns the source's report, creating it on first use. Callers
// must hold the lock.
func (t *runTracker) report(sourceID string) *models.SourceReport {
	r, ok := t.summary.Sources[sourceID]
	if !ok {
		r = models.NewSourceReport(sourceID)
		t.summary.Sources[sourceID] = r
	}
	return r
}

func (t *runTracker) setState(state models.RunState) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.summary.State = state
}

func (t *runTracker) recordDocument(sourceID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.report(sourceID).DocumentsFetched++
}

func (t *runTracker) recordParsed(sourceID string, n int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.report(sourceID).RecordsParsed += n
}

func (t *runTracker) recordParseFailure(sourceID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.report(sourceID).ParseFailures++
}

func (t *runTracker) recordReject(sourceID string, reason models.RejectReason) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.report(sourceID).Rejected[reason]++
}

func (t *runTracker) recordUnresolved(sourceID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.report(sourceID).Unresolved++
}

func (t *runTracker) recordStale(sourceID string, n int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.report(sourceID).MarkedStale += n
}

// failSource records a source-level failure. The run keeps going: one
// broken source never takes down the others.
func (t *runTracker) failSource(sourceID string, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	r := t.report(sourceID)
	r.Failed = true
	r.FailureReason = err.Error()
}

// RecordCommit implements processor.Stats.
func (t *runTracker) RecordCommit(sourceID string, inserted, updated, touched int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	r := t.report(sourceID)
	r.Inserted += inserted
	r.Updated += updated
	r.Touched += touched
}

// RecordFailure implements processor.Stats. A store failure is fatal
// for the whole run: without a consistent write set, stale marking
// would demote rows that were merely never committed.
func (t *runTracker) RecordFailure(sourceID string, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	r := t.report(sourceID)
	r.Failed = true
	r.FailureReason = err.Error()
	if t.storeErr == nil {
		t.storeErr = err
	}
}

func (t *runTracker) storeFailure() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.storeErr
}

func (t *runTracker) finish(state models.RunState, fatal error) *models.RunSummary {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.summary.State = state
	t.summary.FinishedAt = time.Now()
	if fatal != nil {
		t.summary.FatalError = fatal.Error()
	}
	return t.summary
}
