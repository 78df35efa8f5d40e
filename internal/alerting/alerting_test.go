package alerting

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eddiefleurent/portfolio_scanner/internal/models"
	"github.com/eddiefleurent/portfolio_scanner/internal/storage"
)

var storedTime = time.Date(2026, 1, 5, 15, 30, 0, 0, time.UTC)

func rec(id string, strategy models.Strategy, action models.Action) models.Recommendation {
	return models.Recommendation{
		ID:         id,
		Strategy:   strategy,
		AccountID:  "acct-1",
		Symbol:     "SPY",
		Action:     action,
		Confidence: models.ConfidenceHigh,
		Reason:     "because",
		CreatedAt:  storedTime.Add(-time.Minute),
	}
}

func newRecorder(t *testing.T) (*Recorder, *storage.MemoryStorage) {
	t.Helper()
	store := storage.NewMemoryStorage()
	require.NoError(t, store.SaveAccount(context.Background(), &models.Account{
		ID:         "acct-1",
		Name:       "Retirement",
		BrokerName: "Schwab IRA",
	}))
	logger, _ := test.NewNullLogger()
	return NewRecorder(store, logger, func() time.Time { return storedTime }), store
}

func TestRecorder_Store(t *testing.T) {
	tests := []struct {
		name         string
		recs         []models.Recommendation
		createAlerts bool
		wantStored   int
		wantAlerts   int
	}{
		{
			name:         "none is never stored",
			recs:         []models.Recommendation{rec("r1", models.StrategyCoveredCall, models.ActionNone)},
			createAlerts: true,
		},
		{
			name:         "hold is stored without alert",
			recs:         []models.Recommendation{rec("r1", models.StrategyStraddleStrangle, models.ActionHold)},
			createAlerts: true,
			wantStored:   1,
		},
		{
			name: "actionable straddle actions alert once each",
			recs: []models.Recommendation{
				rec("r1", models.StrategyStraddleStrangle, models.ActionSellToClose),
				rec("r2", models.StrategyStraddleStrangle, models.ActionRoll),
				rec("r3", models.StrategyStraddleStrangle, models.ActionAdd),
			},
			createAlerts: true,
			wantStored:   3,
			wantAlerts:   3,
		},
		{
			name: "alerts disabled",
			recs: []models.Recommendation{
				rec("r1", models.StrategyStraddleStrangle, models.ActionSellToClose),
			},
			wantStored: 1,
		},
		{
			name: "actionable set is per strategy",
			recs: []models.Recommendation{
				rec("r1", models.StrategyCoveredCall, models.ActionSellCall),
				rec("r2", models.StrategyCoveredCall, models.ActionAdd),
				rec("r3", models.StrategyProtectivePut, models.ActionBuyPut),
			},
			createAlerts: true,
			wantStored:   3,
			wantAlerts:   2,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, store := newRecorder(t)
			res, err := r.Store(context.Background(), tt.recs, Options{CreateAlerts: tt.createAlerts})
			require.NoError(t, err)
			assert.Equal(t, tt.wantStored, res.Stored)
			assert.Equal(t, tt.wantAlerts, res.AlertsCreated)

			alerts, err := store.ListAlerts(context.Background(), storage.AlertFilter{})
			require.NoError(t, err)
			assert.Len(t, alerts, tt.wantAlerts)
		})
	}
}

func TestRecorder_AlertFields(t *testing.T) {
	r, store := newRecorder(t)
	ctx := context.Background()

	_, err := r.Store(ctx, []models.Recommendation{
		rec("r1", models.StrategyProtectivePut, models.ActionRoll),
	}, Options{CreateAlerts: true})
	require.NoError(t, err)

	stored, err := store.ListRecommendations(ctx, storage.RecommendationFilter{Strategy: models.StrategyProtectivePut})
	require.NoError(t, err)
	require.Len(t, stored, 1)
	require.NotNil(t, stored[0].StoredAt)
	assert.Equal(t, storedTime, *stored[0].StoredAt)

	alerts, err := store.ListAlerts(ctx, storage.AlertFilter{})
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	a := alerts[0]
	assert.NotEmpty(t, a.ID)
	assert.Equal(t, models.AlertProtectivePut, a.Type)
	assert.Equal(t, "r1", a.RecommendationID)
	assert.Equal(t, "Schwab IRA", a.AccountName)
	assert.Equal(t, models.SeverityWarning, a.Severity)
	assert.False(t, a.Acknowledged)
	assert.Equal(t, models.ActionRoll, a.Recommendation)
	assert.Equal(t, 1, store.GetNameLookupCount())
}

func TestRecorder_IsolatesInsertFailures(t *testing.T) {
	r, store := newRecorder(t)
	store.SetRecommendationError(func(rec *models.Recommendation) error {
		if rec.ID == "r2" {
			return errors.New("disk full")
		}
		return nil
	})
	store.SetAlertError(func(a *models.Alert) error {
		if a.RecommendationID == "r3" {
			return errors.New("constraint failed")
		}
		return nil
	})

	res, err := r.Store(context.Background(), []models.Recommendation{
		rec("r1", models.StrategyOption, models.ActionSellToClose),
		rec("r2", models.StrategyOption, models.ActionSellToClose),
		rec("r3", models.StrategyOption, models.ActionSellToClose),
	}, Options{CreateAlerts: true})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Stored)
	assert.Equal(t, 1, res.AlertsCreated)
}

func TestRecorder_NameLookupFailure(t *testing.T) {
	r, store := newRecorder(t)
	store.SetAccountError(errors.New("locked"))

	res, err := r.Store(context.Background(), []models.Recommendation{
		rec("r1", models.StrategyOption, models.ActionRoll),
	}, Options{CreateAlerts: true})
	require.NoError(t, err)
	assert.Equal(t, 1, res.AlertsCreated)

	alerts, err := store.ListAlerts(context.Background(), storage.AlertFilter{})
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	assert.Empty(t, alerts[0].AccountName)
}

func TestRecorder_RepeatedStoresAppend(t *testing.T) {
	r, store := newRecorder(t)

	for i := 0; i < 3; i++ {
		recs := []models.Recommendation{
			rec(fmt.Sprintf("opt-%d", i), models.StrategyOption, models.ActionHold),
			rec(fmt.Sprintf("cc-%d", i), models.StrategyCoveredCall, models.ActionHold),
		}
		res, err := r.Store(context.Background(), recs, Options{})
		require.NoError(t, err)
		assert.Equal(t, 2, res.Stored)
	}
	all, err := store.ListRecommendations(context.Background(), storage.RecommendationFilter{Strategy: models.StrategyOption})
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestRecorder_CancelledContext(t *testing.T) {
	r, _ := newRecorder(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := r.Store(ctx, []models.Recommendation{rec("r1", models.StrategyOption, models.ActionHold)}, Options{})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, res.Stored)
}
