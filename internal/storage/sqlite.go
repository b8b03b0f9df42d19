package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shohag/hookrelay/internal/models"
)

type SQLiteStorage struct {
	db *sql.DB
}

func NewSQLite(path string) (*SQLiteStorage, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, err
	}
	// One connection serialises writers; version checks still guard
	// read-modify-write cycles that span several statements.
	db.SetMaxOpenConns(1)
	return &SQLiteStorage{db: db}, nil
}

func (s *SQLiteStorage) Migrate(ctx context.Context) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS tenants (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			api_key TEXT NOT NULL UNIQUE,
			settings TEXT NOT NULL DEFAULT '{}',
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS endpoints (
			id TEXT PRIMARY KEY,
			tenant_id TEXT NOT NULL REFERENCES tenants(id) ON DELETE CASCADE,
			name TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			url TEXT NOT NULL,
			events TEXT NOT NULL DEFAULT '[]',
			method TEXT NOT NULL DEFAULT 'POST',
			active INTEGER NOT NULL DEFAULT 1,
			secret TEXT NOT NULL,
			headers TEXT NOT NULL DEFAULT '{}',
			status TEXT NOT NULL DEFAULT 'pending',
			trigger_count INTEGER NOT NULL DEFAULT 0,
			success_count INTEGER NOT NULL DEFAULT 0,
			failure_count INTEGER NOT NULL DEFAULT 0,
			last_triggered DATETIME,
			last_error TEXT,
			last_success INTEGER,
			version INTEGER NOT NULL DEFAULT 1,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS attempts (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			id TEXT NOT NULL UNIQUE,
			tenant_id TEXT NOT NULL,
			endpoint_id TEXT NOT NULL REFERENCES endpoints(id) ON DELETE CASCADE,
			event TEXT NOT NULL,
			test INTEGER NOT NULL DEFAULT 0,
			success INTEGER NOT NULL DEFAULT 0,
			status_code INTEGER NOT NULL DEFAULT 0,
			duration_ms INTEGER NOT NULL DEFAULT 0,
			response_body TEXT NOT NULL DEFAULT '',
			error_message TEXT,
			error_code TEXT,
			attempt INTEGER NOT NULL DEFAULT 1,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_tenants_api_key ON tenants(api_key)`,
		`CREATE INDEX IF NOT EXISTS idx_endpoints_tenant ON endpoints(tenant_id, created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_endpoints_tenant_active ON endpoints(tenant_id, active)`,
		`CREATE INDEX IF NOT EXISTS idx_attempts_endpoint ON attempts(endpoint_id, seq)`,
	}

	for _, q := range queries {
		if _, err := s.db.ExecContext(ctx, q); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteStorage) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// --- Tenants ---

func (s *SQLiteStorage) CreateTenant(ctx context.Context, t *models.Tenant) error {
	settings, err := json.Marshal(t.Settings)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO tenants (id, name, api_key, settings, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`,
		t.ID, t.Name, t.APIKey, string(settings), t.CreatedAt, t.UpdatedAt,
	)
	return err
}

const tenantColumns = `id, name, api_key, settings, created_at, updated_at`

func scanTenant(row interface{ Scan(...interface{}) error }) (*models.Tenant, error) {
	var t models.Tenant
	var settings string
	if err := row.Scan(&t.ID, &t.Name, &t.APIKey, &settings, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(settings), &t.Settings); err != nil {
		return nil, fmt.Errorf("decode tenant settings: %w", err)
	}
	return &t, nil
}

func (s *SQLiteStorage) GetTenant(ctx context.Context, id string) (*models.Tenant, error) {
	t, err := scanTenant(s.db.QueryRowContext(ctx, `SELECT `+tenantColumns+` FROM tenants WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return t, err
}

func (s *SQLiteStorage) GetTenantByAPIKey(ctx context.Context, apiKey string) (*models.Tenant, error) {
	t, err := scanTenant(s.db.QueryRowContext(ctx, `SELECT `+tenantColumns+` FROM tenants WHERE api_key = ?`, apiKey))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return t, err
}

func (s *SQLiteStorage) ListTenants(ctx context.Context) ([]models.Tenant, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+tenantColumns+` FROM tenants ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tenants []models.Tenant
	for rows.Next() {
		t, err := scanTenant(rows)
		if err != nil {
			return nil, err
		}
		tenants = append(tenants, *t)
	}
	return tenants, rows.Err()
}

func (s *SQLiteStorage) UpdateTenantSettings(ctx context.Context, id string, settings models.WebhookSettings) error {
	raw, err := json.Marshal(settings)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE tenants SET settings = ?, updated_at = ? WHERE id = ?`,
		string(raw), time.Now().UTC(), id,
	)
	return requireRow(res, err)
}

func (s *SQLiteStorage) UpdateTenantAPIKey(ctx context.Context, id, newKey string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE tenants SET api_key = ?, updated_at = ? WHERE id = ?`,
		newKey, time.Now().UTC(), id,
	)
	return requireRow(res, err)
}

func (s *SQLiteStorage) DeleteTenant(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM tenants WHERE id = ?`, id)
	return requireRow(res, err)
}

// --- Endpoints ---

const endpointColumns = `id, tenant_id, name, description, url, events, method, active, secret, headers, status,
	trigger_count, success_count, failure_count, last_triggered, last_error, last_success, version, created_at, updated_at`

func (s *SQLiteStorage) CreateEndpoint(ctx context.Context, ep *models.Endpoint) error {
	events, headers, err := encodeEndpoint(ep)
	if err != nil {
		return err
	}
	if ep.Version == 0 {
		ep.Version = 1
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO endpoints (`+endpointColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ep.ID, ep.TenantID, ep.Name, ep.Description, ep.URL, events, string(ep.Method), boolToInt(ep.Active),
		ep.Secret, headers, string(ep.Status), ep.TriggerCount, ep.SuccessCount, ep.FailureCount,
		nullTime(ep.LastTriggered), nullString(ep.LastError), nullBool(ep.LastSuccess),
		ep.Version, ep.CreatedAt, ep.UpdatedAt,
	)
	return err
}

func (s *SQLiteStorage) scanEndpoint(row interface{ Scan(...interface{}) error }) (*models.Endpoint, error) {
	var ep models.Endpoint
	var events, headers, method, status string
	var active int
	var lastTriggered sql.NullTime
	var lastError sql.NullString
	var lastSuccess sql.NullInt64
	err := row.Scan(&ep.ID, &ep.TenantID, &ep.Name, &ep.Description, &ep.URL, &events, &method, &active,
		&ep.Secret, &headers, &status, &ep.TriggerCount, &ep.SuccessCount, &ep.FailureCount,
		&lastTriggered, &lastError, &lastSuccess, &ep.Version, &ep.CreatedAt, &ep.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if err := decodeEndpoint(&ep, []byte(events), []byte(headers)); err != nil {
		return nil, err
	}
	ep.Method = models.Method(method)
	ep.Status = models.Status(status)
	ep.Active = active == 1
	if lastTriggered.Valid {
		t := lastTriggered.Time.UTC()
		ep.LastTriggered = &t
	}
	if lastError.Valid {
		ep.LastError = &lastError.String
	}
	if lastSuccess.Valid {
		ok := lastSuccess.Int64 == 1
		ep.LastSuccess = &ok
	}
	return &ep, nil
}

func (s *SQLiteStorage) GetEndpoint(ctx context.Context, tenantID, id string) (*models.Endpoint, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+endpointColumns+` FROM endpoints WHERE tenant_id = ? AND id = ?`, tenantID, id)
	ep, err := s.scanEndpoint(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return ep, err
}

func (s *SQLiteStorage) ListEndpoints(ctx context.Context, tenantID string, filter models.EndpointFilter) ([]models.Endpoint, int, error) {
	where := `WHERE tenant_id = ?`
	args := []interface{}{tenantID}
	if filter.Status != "" {
		where += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	if filter.Active != nil {
		where += ` AND active = ?`
		args = append(args, boolToInt(*filter.Active))
	}

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM endpoints `+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+endpointColumns+` FROM endpoints `+where+` ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`,
		append(args, normalizeLimit(filter.Limit), filter.Offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var endpoints []models.Endpoint
	for rows.Next() {
		ep, err := s.scanEndpoint(rows)
		if err != nil {
			return nil, 0, err
		}
		endpoints = append(endpoints, *ep)
	}
	return endpoints, total, rows.Err()
}

func (s *SQLiteStorage) UpdateEndpoint(ctx context.Context, ep *models.Endpoint) error {
	events, headers, err := encodeEndpoint(ep)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE endpoints SET name = ?, description = ?, url = ?, events = ?, method = ?, active = ?, headers = ?,
			status = ?, trigger_count = ?, success_count = ?, failure_count = ?, last_triggered = ?, last_error = ?,
			last_success = ?, version = version + 1, updated_at = ?
		 WHERE tenant_id = ? AND id = ? AND version = ?`,
		ep.Name, ep.Description, ep.URL, events, string(ep.Method), boolToInt(ep.Active), headers,
		string(ep.Status), ep.TriggerCount, ep.SuccessCount, ep.FailureCount,
		nullTime(ep.LastTriggered), nullString(ep.LastError), nullBool(ep.LastSuccess), ep.UpdatedAt,
		ep.TenantID, ep.ID, ep.Version,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		var exists int
		if err := s.db.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM endpoints WHERE tenant_id = ? AND id = ?`, ep.TenantID, ep.ID).Scan(&exists); err != nil {
			return err
		}
		if exists == 0 {
			return ErrNotFound
		}
		return ErrConflict
	}
	ep.Version++
	return nil
}

func (s *SQLiteStorage) DeleteEndpoint(ctx context.Context, tenantID, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM endpoints WHERE tenant_id = ? AND id = ?`, tenantID, id)
	return requireRow(res, err)
}

func (s *SQLiteStorage) GetEndpointsByEvent(ctx context.Context, tenantID, event string) ([]models.Endpoint, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+endpointColumns+` FROM endpoints WHERE tenant_id = ? AND active = 1 ORDER BY created_at ASC`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var endpoints []models.Endpoint
	for rows.Next() {
		ep, err := s.scanEndpoint(rows)
		if err != nil {
			return nil, err
		}
		if ep.SubscribesTo(event) {
			endpoints = append(endpoints, *ep)
		}
	}
	return endpoints, rows.Err()
}

// --- Attempts ---

func (s *SQLiteStorage) CreateAttempt(ctx context.Context, a *models.Attempt, keep int) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var errMsg, errCode sql.NullString
	if a.Error != nil {
		errMsg = sql.NullString{String: a.Error.Message, Valid: true}
		errCode = sql.NullString{String: a.Error.Code, Valid: a.Error.Code != ""}
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO attempts (id, tenant_id, endpoint_id, event, test, success, status_code, duration_ms, response_body, error_message, error_code, attempt, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.TenantID, a.EndpointID, a.Event, boolToInt(a.Test), boolToInt(a.Success), a.StatusCode,
		a.DurationMs, a.ResponseBody, errMsg, errCode, a.Attempt, a.CreatedAt,
	); err != nil {
		return err
	}

	if keep > 0 {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM attempts WHERE endpoint_id = ? AND seq NOT IN (
				SELECT seq FROM attempts WHERE endpoint_id = ? ORDER BY seq DESC LIMIT ?
			)`, a.EndpointID, a.EndpointID, keep); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *SQLiteStorage) ListAttempts(ctx context.Context, tenantID, endpointID string, filter models.AttemptFilter) ([]models.Attempt, int, error) {
	where := `WHERE tenant_id = ? AND endpoint_id = ?`
	args := []interface{}{tenantID, endpointID}
	switch filter.Status {
	case models.AttemptSuccess:
		where += ` AND success = 1`
	case models.AttemptFailed:
		where += ` AND success = 0`
	}

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM attempts `+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, tenant_id, endpoint_id, event, test, success, status_code, duration_ms, response_body, error_message, error_code, attempt, created_at
		 FROM attempts `+where+` ORDER BY seq DESC LIMIT ? OFFSET ?`,
		append(args, normalizeLimit(filter.Limit), filter.Offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var attempts []models.Attempt
	for rows.Next() {
		var a models.Attempt
		var test, success int
		var errMsg, errCode sql.NullString
		if err := rows.Scan(&a.ID, &a.TenantID, &a.EndpointID, &a.Event, &test, &success, &a.StatusCode,
			&a.DurationMs, &a.ResponseBody, &errMsg, &errCode, &a.Attempt, &a.CreatedAt); err != nil {
			return nil, 0, err
		}
		a.Test = test == 1
		a.Success = success == 1
		if errMsg.Valid {
			a.Error = &models.DeliveryError{Message: errMsg.String, Code: errCode.String}
		}
		attempts = append(attempts, a)
	}
	return attempts, total, rows.Err()
}

// --- Stats ---

func (s *SQLiteStorage) GetStats(ctx context.Context, tenantID string) (*Stats, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT status, COUNT(*), COALESCE(SUM(active), 0), COALESCE(SUM(trigger_count), 0),
			COALESCE(SUM(success_count), 0), COALESCE(SUM(failure_count), 0)
		 FROM endpoints WHERE tenant_id = ? GROUP BY status`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	stats := &Stats{}
	for rows.Next() {
		var status string
		var count, active, triggers, successes, failures int64
		if err := rows.Scan(&status, &count, &active, &triggers, &successes, &failures); err != nil {
			return nil, err
		}
		stats.TotalEndpoints += count
		stats.ActiveEndpoints += active
		stats.TotalTriggers += triggers
		stats.SuccessCount += successes
		stats.FailureCount += failures
		stats.addStatus(models.Status(status), count)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	stats.finish()
	return stats, nil
}

// --- helpers ---

func encodeEndpoint(ep *models.Endpoint) (events, headers string, err error) {
	rawEvents, err := json.Marshal(ep.Events)
	if err != nil {
		return "", "", err
	}
	if ep.Headers == nil {
		ep.Headers = map[string]string{}
	}
	rawHeaders, err := json.Marshal(ep.Headers)
	if err != nil {
		return "", "", err
	}
	return string(rawEvents), string(rawHeaders), nil
}

func decodeEndpoint(ep *models.Endpoint, events, headers []byte) error {
	if err := json.Unmarshal(events, &ep.Events); err != nil {
		return fmt.Errorf("decode endpoint events: %w", err)
	}
	if err := json.Unmarshal(headers, &ep.Headers); err != nil {
		return fmt.Errorf("decode endpoint headers: %w", err)
	}
	if ep.Headers == nil {
		ep.Headers = map[string]string{}
	}
	return nil
}

func requireRow(res sql.Result, err error) error {
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func nullBool(b *bool) sql.NullInt64 {
	if b == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(boolToInt(*b)), Valid: true}
}
