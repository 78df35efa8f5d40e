// Package alerting persists recommendations and derives user-facing alerts
// from the actionable ones.
package alerting

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/eddiefleurent/portfolio_scanner/internal/models"
	"github.com/eddiefleurent/portfolio_scanner/internal/storage"
)

// Options controls one Store call.
type Options struct {
	CreateAlerts bool
}

// Result counts what was actually written.
type Result struct {
	Stored        int `json:"stored"`
	AlertsCreated int `json:"alerts_created"`
}

// Recorder writes recommendations and alerts to storage.
type Recorder struct {
	store  storage.Interface
	logger *logrus.Logger
	now    func() time.Time
}

// NewRecorder creates a recorder. now may be nil.
func NewRecorder(store storage.Interface, logger *logrus.Logger, now func() time.Time) *Recorder {
	if logger == nil {
		logger = logrus.New()
	}
	if now == nil {
		now = time.Now
	}
	return &Recorder{store: store, logger: logger, now: now}
}

// Store persists every recommendation except NONE and, when asked, creates one
// alert per actionable recommendation. Each insert is independent: a failure
// is logged and left out of the counts. The returned error is non-nil only if
// ctx ended before every record was attempted.
func (r *Recorder) Store(ctx context.Context, recs []models.Recommendation, opts Options) (Result, error) {
	var res Result

	names := map[string]string{}
	if opts.CreateAlerts {
		names = r.accountNames(ctx, recs)
	}

	for i := range recs {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		rec := recs[i]
		if rec.Action == models.ActionNone {
			continue
		}

		entry := r.logger.WithFields(logrus.Fields{
			"strategy":   string(rec.Strategy),
			"account_id": rec.AccountID,
			"symbol":     rec.Symbol,
		})

		storedAt := r.now().UTC()
		rec.StoredAt = &storedAt
		if err := r.store.InsertRecommendation(ctx, &rec); err != nil {
			entry.WithError(err).Error("Failed to store recommendation")
			continue
		}
		res.Stored++

		if !opts.CreateAlerts || !rec.Strategy.IsActionable(rec.Action) {
			continue
		}
		alert := NewAlert(rec, names[rec.AccountID], storedAt)
		if err := r.store.InsertAlert(ctx, &alert); err != nil {
			entry.WithError(err).Error("Failed to create alert")
			continue
		}
		res.AlertsCreated++
		entry.WithField("recommendation", string(rec.Action)).Info("Alert created")
	}

	return res, nil
}

// accountNames looks up display names for the accounts behind actionable
// recommendations. A failed lookup leaves names empty.
func (r *Recorder) accountNames(ctx context.Context, recs []models.Recommendation) map[string]string {
	var ids []string
	for _, rec := range recs {
		if rec.Strategy.IsActionable(rec.Action) {
			ids = append(ids, rec.AccountID)
		}
	}
	if len(ids) == 0 {
		return map[string]string{}
	}
	names, err := r.store.AccountNames(ctx, ids)
	if err != nil {
		r.logger.WithError(err).Warn("Could not resolve account names for alerts")
		return map[string]string{}
	}
	return names
}

// NewAlert builds the alert for an actionable recommendation.
func NewAlert(rec models.Recommendation, accountName string, at time.Time) models.Alert {
	return models.Alert{
		ID:               uuid.NewString(),
		Type:             models.AlertTypeFor(rec.Strategy),
		RecommendationID: rec.ID,
		AccountID:        rec.AccountID,
		AccountName:      accountName,
		Symbol:           rec.Symbol,
		Recommendation:   rec.Action,
		Reason:           rec.Reason,
		Metrics:          rec.Metrics,
		Severity:         models.SeverityWarning,
		Acknowledged:     false,
		CreatedAt:        at,
	}
}
