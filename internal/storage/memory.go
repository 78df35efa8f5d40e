package storage

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/eddiefleurent/portfolio_scanner/internal/models"
)

// MemoryStorage implements Interface in process memory. Tests use its fault
// injection hooks to make individual writes fail.
type MemoryStorage struct {
	accountErr      error
	recommendErr    func(*models.Recommendation) error
	alertErr        func(*models.Alert) error
	accounts        map[string]models.Account
	recommendations map[models.Strategy][]models.Recommendation
	alerts          []models.Alert
	insertCalls     int
	nameLookups     int
	mu              sync.Mutex
}

// NewMemoryStorage creates an empty in-memory store
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		accounts:        make(map[string]models.Account),
		recommendations: make(map[models.Strategy][]models.Recommendation),
	}
}

// Account methods
func (m *MemoryStorage) GetAccount(_ context.Context, id string) (*models.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.accountErr != nil {
		return nil, m.accountErr
	}
	acct, ok := m.accounts[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrAccountNotFound, id)
	}
	return cloneAccount(acct), nil
}

func (m *MemoryStorage) ListAccounts(_ context.Context) ([]models.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.accountErr != nil {
		return nil, m.accountErr
	}
	out := make([]models.Account, 0, len(m.accounts))
	for _, acct := range m.accounts {
		out = append(out, *cloneAccount(acct))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemoryStorage) AccountNames(_ context.Context, ids []string) (map[string]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nameLookups++
	if m.accountErr != nil {
		return nil, m.accountErr
	}
	names := make(map[string]string, len(ids))
	for _, id := range uniqueNonEmpty(ids) {
		if acct, ok := m.accounts[id]; ok {
			names[id] = acct.DisplayName()
		}
	}
	return names, nil
}

func (m *MemoryStorage) SaveAccount(_ context.Context, account *models.Account) error {
	if account == nil || strings.TrimSpace(account.ID) == "" {
		return fmt.Errorf("account id is required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.accountErr != nil {
		return m.accountErr
	}
	m.accounts[account.ID] = *cloneAccount(*account)
	return nil
}

// Recommendation methods
func (m *MemoryStorage) InsertRecommendation(_ context.Context, rec *models.Recommendation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.insertCalls++
	if !rec.Strategy.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownStrategy, rec.Strategy)
	}
	if m.recommendErr != nil {
		if err := m.recommendErr(rec); err != nil {
			return err
		}
	}
	m.recommendations[rec.Strategy] = append(m.recommendations[rec.Strategy], cloneRecommendation(*rec))
	return nil
}

func (m *MemoryStorage) ListRecommendations(_ context.Context, filter RecommendationFilter) ([]models.Recommendation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	strategies := models.AllStrategies
	if filter.Strategy != "" {
		if !filter.Strategy.Valid() {
			return nil, fmt.Errorf("%w: %q", ErrUnknownStrategy, filter.Strategy)
		}
		strategies = []models.Strategy{filter.Strategy}
	}

	var out []models.Recommendation
	for _, strategy := range strategies {
		for _, rec := range m.recommendations[strategy] {
			if filter.AccountID != "" && rec.AccountID != filter.AccountID {
				continue
			}
			out = append(out, cloneRecommendation(rec))
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return storedAfter(out[i], out[j]) })
	if limit := limitOrDefault(filter.Limit); len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Alert methods
func (m *MemoryStorage) InsertAlert(_ context.Context, alert *models.Alert) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.insertCalls++
	if m.alertErr != nil {
		if err := m.alertErr(alert); err != nil {
			return err
		}
	}
	m.alerts = append(m.alerts, *alert)
	return nil
}

func (m *MemoryStorage) ListAlerts(_ context.Context, filter AlertFilter) ([]models.Alert, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Alert
	for i := len(m.alerts) - 1; i >= 0; i-- {
		a := m.alerts[i]
		if filter.AccountID != "" && a.AccountID != filter.AccountID {
			continue
		}
		if filter.UnacknowledgedOnly && a.Acknowledged {
			continue
		}
		out = append(out, a)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit := limitOrDefault(filter.Limit); len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Close is a no-op
func (m *MemoryStorage) Close() error { return nil }

// Fault injection and inspection for tests
func (m *MemoryStorage) SetAccountError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.accountErr = err
}

// SetRecommendationError makes InsertRecommendation fail whenever fn returns an error.
func (m *MemoryStorage) SetRecommendationError(fn func(*models.Recommendation) error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recommendErr = fn
}

// SetAlertError makes InsertAlert fail whenever fn returns an error.
func (m *MemoryStorage) SetAlertError(fn func(*models.Alert) error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.alertErr = fn
}

func (m *MemoryStorage) GetInsertCallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.insertCalls
}

func (m *MemoryStorage) GetNameLookupCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.nameLookups
}

func cloneAccount(a models.Account) *models.Account {
	a.Positions = append([]models.Position(nil), a.Positions...)
	return &a
}

func cloneRecommendation(r models.Recommendation) models.Recommendation {
	r.LegPositionIDs = append([]string(nil), r.LegPositionIDs...)
	if r.StoredAt != nil {
		t := *r.StoredAt
		r.StoredAt = &t
	}
	return r
}
