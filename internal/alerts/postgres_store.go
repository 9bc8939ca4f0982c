package alerts

import (
	"context"
	"database/sql"
	"fmt"
)

// PostgresStore is the database-backed alert store.
type PostgresStore struct {
	db *sql.DB
}

var _ Store = (*PostgresStore)(nil)

// NewPostgresStore creates an alert store over an existing pool.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate creates the security_alerts table if needed.
func (p *PostgresStore) Migrate(ctx context.Context) error {
	_, err := p.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS security_alerts (
			id          TEXT PRIMARY KEY,
			session_id  TEXT NOT NULL,
			user_id     TEXT NOT NULL,
			alert_type  TEXT NOT NULL,
			severity    TEXT NOT NULL,
			message     TEXT NOT NULL,
			trust_score DOUBLE PRECISION NOT NULL,
			created_at  TIMESTAMPTZ NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_security_alerts_session
			ON security_alerts(session_id, created_at DESC);
	`)
	if err != nil {
		return fmt.Errorf("migrate alerts: %w", err)
	}
	return nil
}

func (p *PostgresStore) Insert(ctx context.Context, a *Alert) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO security_alerts (id, session_id, user_id, alert_type, severity, message, trust_score, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		a.ID, a.SessionID, a.UserID, a.Type, string(a.Severity), a.Message, a.TrustScore, a.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert alert: %w", err)
	}
	return nil
}

func (p *PostgresStore) ListBySession(ctx context.Context, sessionID string, limit int) ([]*Alert, error) {
	return p.list(ctx, `
		SELECT id, session_id, user_id, alert_type, severity, message, trust_score, created_at
		FROM security_alerts WHERE session_id = $1
		ORDER BY created_at DESC LIMIT $2`, sessionID, normalizeLimit(limit))
}

func (p *PostgresStore) ListRecent(ctx context.Context, limit int) ([]*Alert, error) {
	return p.list(ctx, `
		SELECT id, session_id, user_id, alert_type, severity, message, trust_score, created_at
		FROM security_alerts
		ORDER BY created_at DESC LIMIT $1`, normalizeLimit(limit))
}

func (p *PostgresStore) list(ctx context.Context, query string, args ...interface{}) ([]*Alert, error) {
	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list alerts: %w", err)
	}
	defer rows.Close()

	var result []*Alert
	for rows.Next() {
		var a Alert
		var severity string
		if err := rows.Scan(&a.ID, &a.SessionID, &a.UserID, &a.Type, &severity,
			&a.Message, &a.TrustScore, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan alert: %w", err)
		}
		a.Severity = Severity(severity)
		result = append(result, &a)
	}
	return result, rows.Err()
}

func normalizeLimit(limit int) int {
	if limit <= 0 {
		return 100
	}
	return limit
}
