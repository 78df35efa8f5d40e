package storage

import (
	"context"

	"github.com/eddiefleurent/portfolio_scanner/internal/models"
)

// Interface defines the contract for account, recommendation and alert persistence.
//
// Implementations must be safe for concurrent use - the scanner persists the
// output of every analyzer at the same time.
type Interface interface {
	// Accounts
	GetAccount(ctx context.Context, id string) (*models.Account, error)
	ListAccounts(ctx context.Context) ([]models.Account, error)
	// AccountNames resolves display names in one lookup. Unknown ids are omitted.
	AccountNames(ctx context.Context, ids []string) (map[string]string, error)
	SaveAccount(ctx context.Context, account *models.Account) error

	// Recommendations, one collection per strategy
	InsertRecommendation(ctx context.Context, rec *models.Recommendation) error
	ListRecommendations(ctx context.Context, filter RecommendationFilter) ([]models.Recommendation, error)

	// Alerts
	InsertAlert(ctx context.Context, alert *models.Alert) error
	ListAlerts(ctx context.Context, filter AlertFilter) ([]models.Alert, error)

	Close() error
}

// RecommendationFilter selects stored recommendations, newest first.
type RecommendationFilter struct {
	Strategy  models.Strategy
	AccountID string
	Limit     int
}

// AlertFilter selects stored alerts, newest first.
type AlertFilter struct {
	AccountID          string
	Limit              int
	UnacknowledgedOnly bool
}

const defaultListLimit = 100

func limitOrDefault(n int) int {
	if n <= 0 {
		return defaultListLimit
	}
	return n
}

// NewStorage opens the SQLite store at path. ":memory:" keeps everything in
// process memory.
func NewStorage(path string) (Interface, error) {
	return NewSQLiteStorage(path)
}

// Ensure implementations satisfy Interface
var (
	_ Interface = (*SQLiteStorage)(nil)
	_ Interface = (*MemoryStorage)(nil)
)
