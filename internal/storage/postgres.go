package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shohag/hookrelay/internal/models"
)

type PostgresStorage struct {
	pool *pgxpool.Pool
}

func NewPostgres(ctx context.Context, dsn string, maxConns int32) (*PostgresStorage, error) {
	if dsn == "" {
		return nil, fmt.Errorf("postgres url is required")
	}
	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres url: %w", err)
	}
	if maxConns > 0 {
		poolConfig.MaxConns = maxConns
	}
	poolConfig.MaxConnIdleTime = 30 * time.Minute

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(connectCtx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("create postgres pool: %w", err)
	}
	if err := pool.Ping(connectCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &PostgresStorage{pool: pool}, nil
}

func (s *PostgresStorage) Migrate(ctx context.Context) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS tenants (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			api_key TEXT NOT NULL UNIQUE,
			settings JSONB NOT NULL DEFAULT '{}',
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS endpoints (
			id TEXT PRIMARY KEY,
			tenant_id TEXT NOT NULL REFERENCES tenants(id) ON DELETE CASCADE,
			name TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			url TEXT NOT NULL,
			events JSONB NOT NULL DEFAULT '[]',
			method TEXT NOT NULL DEFAULT 'POST',
			active BOOLEAN NOT NULL DEFAULT TRUE,
			secret TEXT NOT NULL,
			headers JSONB NOT NULL DEFAULT '{}',
			status TEXT NOT NULL DEFAULT 'pending',
			trigger_count BIGINT NOT NULL DEFAULT 0,
			success_count BIGINT NOT NULL DEFAULT 0,
			failure_count BIGINT NOT NULL DEFAULT 0,
			last_triggered TIMESTAMPTZ,
			last_error TEXT,
			last_success BOOLEAN,
			version BIGINT NOT NULL DEFAULT 1,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS attempts (
			seq BIGSERIAL PRIMARY KEY,
			id TEXT NOT NULL UNIQUE,
			tenant_id TEXT NOT NULL,
			endpoint_id TEXT NOT NULL REFERENCES endpoints(id) ON DELETE CASCADE,
			event TEXT NOT NULL,
			test BOOLEAN NOT NULL DEFAULT FALSE,
			success BOOLEAN NOT NULL DEFAULT FALSE,
			status_code INTEGER NOT NULL DEFAULT 0,
			duration_ms BIGINT NOT NULL DEFAULT 0,
			response_body TEXT NOT NULL DEFAULT '',
			error_message TEXT,
			error_code TEXT,
			attempt INTEGER NOT NULL DEFAULT 1,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_endpoints_tenant ON endpoints(tenant_id, created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_endpoints_tenant_active ON endpoints(tenant_id, active)`,
		`CREATE INDEX IF NOT EXISTS idx_attempts_endpoint ON attempts(endpoint_id, seq)`,
	}

	for _, q := range queries {
		if _, err := s.pool.Exec(ctx, q); err != nil {
			return err
		}
	}
	return nil
}

func (s *PostgresStorage) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *PostgresStorage) Close() error {
	s.pool.Close()
	return nil
}

// --- Tenants ---

func (s *PostgresStorage) CreateTenant(ctx context.Context, t *models.Tenant) error {
	settings, err := json.Marshal(t.Settings)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO tenants (id, name, api_key, settings, created_at, updated_at) VALUES ($1, $2, $3, $4::jsonb, $5, $6)`,
		t.ID, t.Name, t.APIKey, string(settings), t.CreatedAt, t.UpdatedAt,
	)
	return err
}

func scanPgTenant(row pgx.Row) (*models.Tenant, error) {
	var t models.Tenant
	var settings []byte
	if err := row.Scan(&t.ID, &t.Name, &t.APIKey, &settings, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(settings, &t.Settings); err != nil {
		return nil, fmt.Errorf("decode tenant settings: %w", err)
	}
	return &t, nil
}

func (s *PostgresStorage) GetTenant(ctx context.Context, id string) (*models.Tenant, error) {
	t, err := scanPgTenant(s.pool.QueryRow(ctx, `SELECT `+tenantColumns+` FROM tenants WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return t, err
}

func (s *PostgresStorage) GetTenantByAPIKey(ctx context.Context, apiKey string) (*models.Tenant, error) {
	t, err := scanPgTenant(s.pool.QueryRow(ctx, `SELECT `+tenantColumns+` FROM tenants WHERE api_key = $1`, apiKey))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return t, err
}

func (s *PostgresStorage) ListTenants(ctx context.Context) ([]models.Tenant, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+tenantColumns+` FROM tenants ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tenants []models.Tenant
	for rows.Next() {
		t, err := scanPgTenant(rows)
		if err != nil {
			return nil, err
		}
		tenants = append(tenants, *t)
	}
	return tenants, rows.Err()
}

func (s *PostgresStorage) UpdateTenantSettings(ctx context.Context, id string, settings models.WebhookSettings) error {
	raw, err := json.Marshal(settings)
	if err != nil {
		return err
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE tenants SET settings = $1::jsonb, updated_at = $2 WHERE id = $3`,
		string(raw), time.Now().UTC(), id,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStorage) UpdateTenantAPIKey(ctx context.Context, id, newKey string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE tenants SET api_key = $1, updated_at = $2 WHERE id = $3`,
		newKey, time.Now().UTC(), id,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStorage) DeleteTenant(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM tenants WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// --- Endpoints ---

func (s *PostgresStorage) CreateEndpoint(ctx context.Context, ep *models.Endpoint) error {
	events, headers, err := encodeEndpoint(ep)
	if err != nil {
		return err
	}
	if ep.Version == 0 {
		ep.Version = 1
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO endpoints (`+endpointColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6::jsonb, $7, $8, $9, $10::jsonb, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)`,
		ep.ID, ep.TenantID, ep.Name, ep.Description, ep.URL, events, string(ep.Method), ep.Active,
		ep.Secret, headers, string(ep.Status), ep.TriggerCount, ep.SuccessCount, ep.FailureCount,
		ep.LastTriggered, ep.LastError, ep.LastSuccess, ep.Version, ep.CreatedAt, ep.UpdatedAt,
	)
	return err
}

func scanPgEndpoint(row pgx.Row) (*models.Endpoint, error) {
	var ep models.Endpoint
	var events, headers []byte
	var method, status string
	err := row.Scan(&ep.ID, &ep.TenantID, &ep.Name, &ep.Description, &ep.URL, &events, &method, &ep.Active,
		&ep.Secret, &headers, &status, &ep.TriggerCount, &ep.SuccessCount, &ep.FailureCount,
		&ep.LastTriggered, &ep.LastError, &ep.LastSuccess, &ep.Version, &ep.CreatedAt, &ep.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if err := decodeEndpoint(&ep, events, headers); err != nil {
		return nil, err
	}
	ep.Method = models.Method(method)
	ep.Status = models.Status(status)
	return &ep, nil
}

func (s *PostgresStorage) GetEndpoint(ctx context.Context, tenantID, id string) (*models.Endpoint, error) {
	ep, err := scanPgEndpoint(s.pool.QueryRow(ctx,
		`SELECT `+endpointColumns+` FROM endpoints WHERE tenant_id = $1 AND id = $2`, tenantID, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return ep, err
}

func (s *PostgresStorage) ListEndpoints(ctx context.Context, tenantID string, filter models.EndpointFilter) ([]models.Endpoint, int, error) {
	where := `WHERE tenant_id = $1`
	args := []any{tenantID}
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		where += fmt.Sprintf(` AND status = $%d`, len(args))
	}
	if filter.Active != nil {
		args = append(args, *filter.Active)
		where += fmt.Sprintf(` AND active = $%d`, len(args))
	}

	var total int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM endpoints `+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := fmt.Sprintf(`SELECT `+endpointColumns+` FROM endpoints `+where+
		` ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d`, len(args)+1, len(args)+2)
	rows, err := s.pool.Query(ctx, query, append(args, normalizeLimit(filter.Limit), filter.Offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var endpoints []models.Endpoint
	for rows.Next() {
		ep, err := scanPgEndpoint(rows)
		if err != nil {
			return nil, 0, err
		}
		endpoints = append(endpoints, *ep)
	}
	return endpoints, total, rows.Err()
}

func (s *PostgresStorage) UpdateEndpoint(ctx context.Context, ep *models.Endpoint) error {
	events, headers, err := encodeEndpoint(ep)
	if err != nil {
		return err
	}
	var version int64
	err = s.pool.QueryRow(ctx,
		`UPDATE endpoints SET name = $1, description = $2, url = $3, events = $4::jsonb, method = $5, active = $6,
			headers = $7::jsonb, status = $8, trigger_count = $9, success_count = $10, failure_count = $11,
			last_triggered = $12, last_error = $13, last_success = $14, version = version + 1, updated_at = $15
		 WHERE tenant_id = $16 AND id = $17 AND version = $18
		 RETURNING version`,
		ep.Name, ep.Description, ep.URL, events, string(ep.Method), ep.Active, headers,
		string(ep.Status), ep.TriggerCount, ep.SuccessCount, ep.FailureCount,
		ep.LastTriggered, ep.LastError, ep.LastSuccess, ep.UpdatedAt,
		ep.TenantID, ep.ID, ep.Version,
	).Scan(&version)
	if errors.Is(err, pgx.ErrNoRows) {
		var exists bool
		if err := s.pool.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM endpoints WHERE tenant_id = $1 AND id = $2)`, ep.TenantID, ep.ID).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return ErrNotFound
		}
		return ErrConflict
	}
	if err != nil {
		return err
	}
	ep.Version = version
	return nil
}

func (s *PostgresStorage) DeleteEndpoint(ctx context.Context, tenantID, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM endpoints WHERE tenant_id = $1 AND id = $2`, tenantID, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStorage) GetEndpointsByEvent(ctx context.Context, tenantID, event string) ([]models.Endpoint, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+endpointColumns+` FROM endpoints WHERE tenant_id = $1 AND active ORDER BY created_at ASC`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var endpoints []models.Endpoint
	for rows.Next() {
		ep, err := scanPgEndpoint(rows)
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

func (s *PostgresStorage) CreateAttempt(ctx context.Context, a *models.Attempt, keep int) error {
	var errMsg, errCode *string
	if a.Error != nil {
		errMsg = &a.Error.Message
		if a.Error.Code != "" {
			errCode = &a.Error.Code
		}
	}
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx,
			`INSERT INTO attempts (id, tenant_id, endpoint_id, event, test, success, status_code, duration_ms, response_body, error_message, error_code, attempt, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
			a.ID, a.TenantID, a.EndpointID, a.Event, a.Test, a.Success, a.StatusCode,
			a.DurationMs, a.ResponseBody, errMsg, errCode, a.Attempt, a.CreatedAt,
		); err != nil {
			return err
		}
		if keep <= 0 {
			return nil
		}
		_, err := tx.Exec(ctx,
			`DELETE FROM attempts WHERE endpoint_id = $1 AND seq NOT IN (
				SELECT seq FROM attempts WHERE endpoint_id = $1 ORDER BY seq DESC LIMIT $2
			)`, a.EndpointID, keep)
		return err
	})
}

func (s *PostgresStorage) ListAttempts(ctx context.Context, tenantID, endpointID string, filter models.AttemptFilter) ([]models.Attempt, int, error) {
	where := `WHERE tenant_id = $1 AND endpoint_id = $2`
	switch filter.Status {
	case models.AttemptSuccess:
		where += ` AND success`
	case models.AttemptFailed:
		where += ` AND NOT success`
	}

	var total int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM attempts `+where, tenantID, endpointID).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := s.pool.Query(ctx,
		`SELECT id, tenant_id, endpoint_id, event, test, success, status_code, duration_ms, response_body, error_message, error_code, attempt, created_at
		 FROM attempts `+where+` ORDER BY seq DESC LIMIT $3 OFFSET $4`,
		tenantID, endpointID, normalizeLimit(filter.Limit), filter.Offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var attempts []models.Attempt
	for rows.Next() {
		var a models.Attempt
		var errMsg, errCode *string
		if err := rows.Scan(&a.ID, &a.TenantID, &a.EndpointID, &a.Event, &a.Test, &a.Success, &a.StatusCode,
			&a.DurationMs, &a.ResponseBody, &errMsg, &errCode, &a.Attempt, &a.CreatedAt); err != nil {
			return nil, 0, err
		}
		if errMsg != nil {
			a.Error = &models.DeliveryError{Message: *errMsg}
			if errCode != nil {
				a.Error.Code = *errCode
			}
		}
		attempts = append(attempts, a)
	}
	return attempts, total, rows.Err()
}

// --- Stats ---

func (s *PostgresStorage) GetStats(ctx context.Context, tenantID string) (*Stats, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT status, COUNT(*),
			COALESCE(SUM(CASE WHEN active THEN 1 ELSE 0 END), 0)::bigint,
			COALESCE(SUM(trigger_count), 0)::bigint,
			COALESCE(SUM(success_count), 0)::bigint,
			COALESCE(SUM(failure_count), 0)::bigint
		 FROM endpoints WHERE tenant_id = $1 GROUP BY status`, tenantID)
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
