package models

import "time"

// RejectReason classifies why a raw record never reached the store.
type RejectReason string

const (
	RejectMissingPrice     RejectReason = "missing_price"
	RejectMissingArea      RejectReason = "missing_area"
	RejectNonNumericPrice  RejectReason = "non_numeric_price"
	RejectNonNumericArea   RejectReason = "non_numeric_area"
	RejectNonPositivePrice RejectReason = "non_positive_price"
	RejectNonPositiveArea  RejectReason = "non_positive_area"
)

// RunState is the orchestrator's lifecycle state for one crawl run.
type RunState string

const (
	RunInit         RunState = "init"
	RunFetching     RunState = "fetching"
	RunStaleMarking RunState = "stale_marking"
	RunDone         RunState = "done"
	RunFailed       RunState = "failed"
)

// SourceReport accumulates per-source counters for the run summary.
type SourceReport struct {
	SourceID         string               `json:"source_id"`
	DocumentsFetched int                  `json:"documents_fetched"`
	RecordsParsed    int                  `json:"records_parsed"`
	ParseFailures    int                  `json:"parse_failures"`
	Rejected         map[RejectReason]int `json:"rejected"`
	Unresolved       int                  `json:"unresolved_districts"`
	Inserted         int                  `json:"inserted"`
	Updated          int                  `json:"updated"`
	Touched          int                  `json:"touched"`
	MarkedStale      int                  `json:"marked_stale"`
	Failed           bool                 `json:"failed"`
	FailureReason    string               `json:"failure_reason,omitempty"`
}

// RunSummary is the per-execution report returned to the caller and
// published to the notifier.
type RunSummary struct {
	City       City                     `json:"city"`
	State      RunState                 `json:"state"`
	StartedAt  time.Time                `json:"started_at"`
	FinishedAt time.Time                `json:"finished_at"`
	Sources    map[string]*SourceReport `json:"sources"`
	FatalError string                   `json:"fatal_error,omitempty"`
}

// NewSourceReport returns a report with the reject map initialized.
func NewSourceReport(sourceID string) *SourceReport {
	return &SourceReport{
		SourceID: sourceID,
		Rejected: make(map[RejectReason]int),
	}
}
