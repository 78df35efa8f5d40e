package scanner

import (
	"time"

	"github.com/eddiefleurent/portfolio_scanner/internal/models"
)

// ScanOutcome is the result of one analyzer within a scan: either a
// *CompletedOutcome or a *FailedOutcome.
type ScanOutcome interface {
	Scanner() models.Strategy
	isScanOutcome()
}

// CompletedOutcome is an analyzer that ran to completion.
type CompletedOutcome struct {
	Strategy        models.Strategy
	Recommendations []models.Recommendation
	Scanned         int
	Stored          int
	AlertsCreated   int
	// PersistErr is set when storing stopped early; counts stay partial.
	PersistErr error
}

// FailedOutcome is an analyzer that returned an error or panicked.
type FailedOutcome struct {
	Strategy models.Strategy
	Err      error
}

var (
	_ ScanOutcome = (*CompletedOutcome)(nil)
	_ ScanOutcome = (*FailedOutcome)(nil)
)

func (o *CompletedOutcome) Scanner() models.Strategy { return o.Strategy }
func (o *FailedOutcome) Scanner() models.Strategy    { return o.Strategy }

func (*CompletedOutcome) isScanOutcome() {}
func (*FailedOutcome) isScanOutcome()    {}

// ScannerStats are the per-analyzer counts of a scan.
type ScannerStats struct {
	Scanned         int `json:"scanned"`
	Recommendations int `json:"recommendations"`
	Stored          int `json:"stored"`
	AlertsCreated   int `json:"alerts_created"`
}

func (s *ScannerStats) add(o ScannerStats) {
	s.Scanned += o.Scanned
	s.Recommendations += o.Recommendations
	s.Stored += o.Stored
	s.AlertsCreated += o.AlertsCreated
}

// ScanError names an analyzer, or a scan stage, that did not succeed.
type ScanError struct {
	Scanner string `json:"scanner"`
	Message string `json:"message"`
}

// UnifiedResult is the JSON-serializable outcome of one scan. A scan always
// produces one, with whatever failed listed in Errors.
type UnifiedResult struct {
	StartedAt             time.Time                        `json:"started_at"`
	Scanners              map[models.Strategy]ScannerStats `json:"scanners"`
	AccountID             string                           `json:"account_id,omitempty"`
	RecommendationSummary string                           `json:"recommendation_summary"`
	Errors                []ScanError                      `json:"errors"`
	Recommendations       []models.Recommendation          `json:"recommendations"`
	Outcomes              []ScanOutcome                    `json:"-"`
	Totals                ScannerStats                     `json:"totals"`
	DurationMs            int64                            `json:"duration_ms"`
}

func newResult(accountID string, startedAt time.Time) *UnifiedResult {
	return &UnifiedResult{
		StartedAt:       startedAt,
		AccountID:       accountID,
		Scanners:        make(map[models.Strategy]ScannerStats),
		Errors:          []ScanError{},
		Recommendations: []models.Recommendation{},
	}
}

// HasErrors reports whether any analyzer or stage failed.
func (r *UnifiedResult) HasErrors() bool {
	return len(r.Errors) > 0
}

func (r *UnifiedResult) fail(scanner string, err error) {
	r.Errors = append(r.Errors, ScanError{Scanner: scanner, Message: err.Error()})
}

// apply folds the outcomes into the per-scanner stats, totals and errors.
func (r *UnifiedResult) apply(outcomes []ScanOutcome) {
	r.Outcomes = outcomes
	for _, o := range outcomes {
		switch o := o.(type) {
		case *CompletedOutcome:
			stats := ScannerStats{
				Scanned:         o.Scanned,
				Recommendations: len(o.Recommendations),
				Stored:          o.Stored,
				AlertsCreated:   o.AlertsCreated,
			}
			r.Scanners[o.Strategy] = stats
			r.Totals.add(stats)
			r.Recommendations = append(r.Recommendations, o.Recommendations...)
			if o.PersistErr != nil {
				r.fail(string(o.Strategy), o.PersistErr)
			}
		case *FailedOutcome:
			r.fail(string(o.Strategy), o.Err)
		}
	}
}
