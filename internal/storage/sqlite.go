package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/eddiefleurent/portfolio_scanner/internal/models"
	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

// recommendationTables maps each strategy to its own collection.
var recommendationTables = map[models.Strategy]string{
	models.StrategyOption:           "option_recommendations",
	models.StrategyCoveredCall:      "covered_call_recommendations",
	models.StrategyProtectivePut:    "protective_put_recommendations",
	models.StrategyStraddleStrangle: "straddle_strangle_recommendations",
	models.StrategyCashSecuredPut:   "cash_secured_put_recommendations",
}

const schemaAccounts = `
CREATE TABLE IF NOT EXISTS accounts (
	id          TEXT PRIMARY KEY,
	name        TEXT NOT NULL,
	broker_name TEXT NOT NULL DEFAULT '',
	risk_level  TEXT NOT NULL DEFAULT '',
	positions   TEXT NOT NULL
)`

const schemaRecommendations = `
CREATE TABLE IF NOT EXISTS %[1]s (
	id             TEXT PRIMARY KEY,
	account_id     TEXT NOT NULL,
	symbol         TEXT NOT NULL,
	recommendation TEXT NOT NULL,
	confidence     TEXT NOT NULL,
	created_at     INTEGER NOT NULL,
	stored_at      INTEGER NOT NULL,
	document       TEXT NOT NULL
)`

const indexRecommendations = `CREATE INDEX IF NOT EXISTS idx_%[1]s_account ON %[1]s(account_id, stored_at)`

const schemaAlerts = `
CREATE TABLE IF NOT EXISTS alerts (
	id                TEXT PRIMARY KEY,
	type              TEXT NOT NULL,
	recommendation_id TEXT NOT NULL,
	account_id        TEXT NOT NULL,
	symbol            TEXT NOT NULL,
	severity          TEXT NOT NULL,
	acknowledged      INTEGER NOT NULL DEFAULT 0,
	created_at        INTEGER NOT NULL,
	document          TEXT NOT NULL
)`

const indexAlerts = `CREATE INDEX IF NOT EXISTS idx_alerts_account ON alerts(account_id, created_at)`

// SQLiteStorage persists accounts, recommendations and alerts in SQLite.
type SQLiteStorage struct {
	conn *sql.DB
	path string
}

// NewSQLiteStorage opens (creating if needed) the database at path and
// applies the schema.
func NewSQLiteStorage(path string) (*SQLiteStorage, error) {
	memory := path == ":memory:"
	dsn := path
	if !memory {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o750); err != nil {
				return nil, fmt.Errorf("failed to create database directory: %w", err)
			}
		}
		// WAL lets readers proceed while a scan persists
		dsn = path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	}

	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if memory {
		// every connection to :memory: is a separate database
		conn.SetMaxOpenConns(1)
	} else {
		conn.SetMaxOpenConns(8)
		conn.SetMaxIdleConns(2)
	}

	s := &SQLiteStorage{conn: conn, path: path}
	if err := s.migrate(context.Background()); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStorage) migrate(ctx context.Context) error {
	stmts := []string{schemaAccounts, schemaAlerts, indexAlerts}
	for _, table := range recommendationTables {
		stmts = append(stmts, fmt.Sprintf(schemaRecommendations, table), fmt.Sprintf(indexRecommendations, table))
	}
	for _, stmt := range stmts {
		if _, err := s.conn.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}
	return nil
}

// Close closes the database connection
func (s *SQLiteStorage) Close() error {
	return s.conn.Close()
}

// GetAccount loads one account with its positions.
func (s *SQLiteStorage) GetAccount(ctx context.Context, id string) (*models.Account, error) {
	row := s.conn.QueryRowContext(ctx,
		`SELECT id, name, broker_name, risk_level, positions FROM accounts WHERE id = ?`, id)
	acct, err := scanAccount(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrAccountNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("loading account %s: %w", id, err)
	}
	return acct, nil
}

// ListAccounts returns every account ordered by id.
func (s *SQLiteStorage) ListAccounts(ctx context.Context) ([]models.Account, error) {
	rows, err := s.conn.QueryContext(ctx,
		`SELECT id, name, broker_name, risk_level, positions FROM accounts ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("listing accounts: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var accounts []models.Account
	for rows.Next() {
		acct, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("listing accounts: %w", err)
		}
		accounts = append(accounts, *acct)
	}
	return accounts, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanAccount(row rowScanner) (*models.Account, error) {
	var (
		acct      models.Account
		risk      string
		positions string
	)
	if err := row.Scan(&acct.ID, &acct.Name, &acct.BrokerName, &risk, &positions); err != nil {
		return nil, err
	}
	acct.RiskLevel = models.RiskLevel(risk)
	if err := json.Unmarshal([]byte(positions), &acct.Positions); err != nil {
		return nil, fmt.Errorf("decoding positions of %s: %w", acct.ID, err)
	}
	return &acct, nil
}

// AccountNames resolves display names for ids in a single query.
func (s *SQLiteStorage) AccountNames(ctx context.Context, ids []string) (map[string]string, error) {
	names := make(map[string]string, len(ids))
	unique := uniqueNonEmpty(ids)
	if len(unique) == 0 {
		return names, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(unique)), ",")
	args := make([]interface{}, len(unique))
	for i, id := range unique {
		args[i] = id
	}
	// #nosec G202 -- only placeholders are concatenated
	rows, err := s.conn.QueryContext(ctx,
		`SELECT id, name, broker_name FROM accounts WHERE id IN (`+placeholders+`)`, args...)
	if err != nil {
		return nil, fmt.Errorf("resolving account names: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var acct models.Account
		if err := rows.Scan(&acct.ID, &acct.Name, &acct.BrokerName); err != nil {
			return nil, fmt.Errorf("resolving account names: %w", err)
		}
		names[acct.ID] = acct.DisplayName()
	}
	return names, rows.Err()
}

// SaveAccount inserts or replaces an account and its positions.
func (s *SQLiteStorage) SaveAccount(ctx context.Context, account *models.Account) error {
	if account == nil || strings.TrimSpace(account.ID) == "" {
		return fmt.Errorf("account id is required")
	}
	positions := account.Positions
	if positions == nil {
		positions = []models.Position{}
	}
	doc, err := json.Marshal(positions)
	if err != nil {
		return fmt.Errorf("encoding positions: %w", err)
	}
	_, err = s.conn.ExecContext(ctx, `
		INSERT INTO accounts (id, name, broker_name, risk_level, positions)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			broker_name = excluded.broker_name,
			risk_level = excluded.risk_level,
			positions = excluded.positions`,
		account.ID, account.Name, account.BrokerName, string(account.RiskLevel), string(doc))
	if err != nil {
		return fmt.Errorf("saving account %s: %w", account.ID, err)
	}
	return nil
}

// InsertRecommendation stores rec in its strategy's collection.
func (s *SQLiteStorage) InsertRecommendation(ctx context.Context, rec *models.Recommendation) error {
	table, ok := recommendationTables[rec.Strategy]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownStrategy, rec.Strategy)
	}
	storedAt := time.Now().UTC()
	if rec.StoredAt != nil {
		storedAt = *rec.StoredAt
	}
	doc, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encoding recommendation: %w", err)
	}
	// #nosec G201 -- table comes from a fixed map
	_, err = s.conn.ExecContext(ctx, fmt.Sprintf(`
		INSERT INTO %s (id, account_id, symbol, recommendation, confidence, created_at, stored_at, document)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`, table),
		rec.ID, rec.AccountID, rec.Symbol, string(rec.Action), string(rec.Confidence),
		rec.CreatedAt.UnixNano(), storedAt.UnixNano(), string(doc))
	if err != nil {
		return fmt.Errorf("inserting %s recommendation %s: %w", rec.Strategy, rec.ID, err)
	}
	return nil
}

// ListRecommendations returns the newest recommendations of one strategy,
// or of every strategy when the filter names none.
func (s *SQLiteStorage) ListRecommendations(ctx context.Context, filter RecommendationFilter) ([]models.Recommendation, error) {
	strategies := models.AllStrategies
	if filter.Strategy != "" {
		if _, ok := recommendationTables[filter.Strategy]; !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownStrategy, filter.Strategy)
		}
		strategies = []models.Strategy{filter.Strategy}
	}
	limit := limitOrDefault(filter.Limit)

	var out []models.Recommendation
	for _, strategy := range strategies {
		query := fmt.Sprintf(`SELECT document FROM %s`, recommendationTables[strategy]) // #nosec G201
		var args []interface{}
		if filter.AccountID != "" {
			query += ` WHERE account_id = ?`
			args = append(args, filter.AccountID)
		}
		query += ` ORDER BY stored_at DESC, id LIMIT ?`
		args = append(args, limit)

		recs, err := queryDocuments[models.Recommendation](ctx, s.conn, query, args...)
		if err != nil {
			return nil, fmt.Errorf("listing %s recommendations: %w", strategy, err)
		}
		out = append(out, recs...)
	}

	if len(strategies) > 1 {
		sort.SliceStable(out, func(i, j int) bool { return storedAfter(out[i], out[j]) })
		if len(out) > limit {
			out = out[:limit]
		}
	}
	return out, nil
}

// InsertAlert stores one alert.
func (s *SQLiteStorage) InsertAlert(ctx context.Context, alert *models.Alert) error {
	doc, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("encoding alert: %w", err)
	}
	acknowledged := 0
	if alert.Acknowledged {
		acknowledged = 1
	}
	_, err = s.conn.ExecContext(ctx, `
		INSERT INTO alerts (id, type, recommendation_id, account_id, symbol, severity, acknowledged, created_at, document)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		alert.ID, string(alert.Type), alert.RecommendationID, alert.AccountID, alert.Symbol,
		alert.Severity, acknowledged, alert.CreatedAt.UnixNano(), string(doc))
	if err != nil {
		return fmt.Errorf("inserting alert %s: %w", alert.ID, err)
	}
	return nil
}

// ListAlerts returns the newest alerts matching filter.
func (s *SQLiteStorage) ListAlerts(ctx context.Context, filter AlertFilter) ([]models.Alert, error) {
	var (
		where []string
		args  []interface{}
	)
	if filter.AccountID != "" {
		where = append(where, "account_id = ?")
		args = append(args, filter.AccountID)
	}
	if filter.UnacknowledgedOnly {
		where = append(where, "acknowledged = 0")
	}
	query := `SELECT document FROM alerts`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY created_at DESC, id LIMIT ?`
	args = append(args, limitOrDefault(filter.Limit))

	alerts, err := queryDocuments[models.Alert](ctx, s.conn, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing alerts: %w", err)
	}
	return alerts, nil
}

func queryDocuments[T any](ctx context.Context, conn *sql.DB, query string, args ...interface{}) ([]T, error) {
	rows, err := conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []T
	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			return nil, err
		}
		var v T
		if err := json.Unmarshal([]byte(doc), &v); err != nil {
			return nil, fmt.Errorf("decoding document: %w", err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func storedAfter(a, b models.Recommendation) bool {
	var ta, tb time.Time
	if a.StoredAt != nil {
		ta = *a.StoredAt
	}
	if b.StoredAt != nil {
		tb = *b.StoredAt
	}
	if ta.Equal(tb) {
		return a.ID < b.ID
	}
	return ta.After(tb)
}

func uniqueNonEmpty(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
