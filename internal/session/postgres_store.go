package session

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// PostgresStore is the database-backed Store.
type PostgresStore struct {
	db *sql.DB
}

var _ Store = (*PostgresStore)(nil)

// NewPostgresStore creates a session store over an existing connection pool.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate creates the sessions table if needed.
func (p *PostgresStore) Migrate(ctx context.Context) error {
	_, err := p.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS sessions (
			id           TEXT PRIMARY KEY,
			user_id      TEXT NOT NULL,
			trust_score  DOUBLE PRECISION NOT NULL,
			status       TEXT NOT NULL,
			is_active    BOOLEAN NOT NULL,
			created_at   TIMESTAMPTZ NOT NULL,
			last_seen_at TIMESTAMPTZ NOT NULL,
			expires_at   TIMESTAMPTZ NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_sessions_user_id ON sessions(user_id);
	`)
	if err != nil {
		return fmt.Errorf("migrate sessions: %w", err)
	}
	return nil
}

func (p *PostgresStore) Create(ctx context.Context, s *Session) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO sessions (id, user_id, trust_score, status, is_active, created_at, last_seen_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		s.ID, s.UserID, s.TrustScore, string(s.Status), s.IsActive,
		s.CreatedAt, s.LastSeenAt, s.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

func (p *PostgresStore) Get(ctx context.Context, id string) (*Session, error) {
	row := p.db.QueryRowContext(ctx, `
		SELECT id, user_id, trust_score, status, is_active, created_at, last_seen_at, expires_at
		FROM sessions WHERE id = $1`, id)
	return scanSession(row)
}

func (p *PostgresStore) ListByUser(ctx context.Context, userID string) ([]*Session, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, user_id, trust_score, status, is_active, created_at, last_seen_at, expires_at
		FROM sessions WHERE user_id = $1 ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var result []*Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, s)
	}
	return result, rows.Err()
}

func (p *PostgresStore) UpdateTrust(ctx context.Context, id string, score float64, status Status) error {
	// Deactivated sessions are terminal; their trust is frozen.
	res, err := p.db.ExecContext(ctx, `
		UPDATE sessions SET trust_score = $2, status = $3 WHERE id = $1 AND is_active`,
		id, score, string(status),
	)
	if err != nil {
		return fmt.Errorf("update trust: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		var current string
		err := p.db.QueryRowContext(ctx,
			`SELECT status FROM sessions WHERE id = $1`, id).Scan(&current)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("update trust: %w", err)
		}
		if Status(current) == StatusExpired {
			return ErrExpired
		}
		return ErrRevoked
	}
	return nil
}

func (p *PostgresStore) Deactivate(ctx context.Context, id string, status Status) error {
	res, err := p.db.ExecContext(ctx, `
		UPDATE sessions SET is_active = FALSE, status = $2 WHERE id = $1`,
		id, string(status),
	)
	if err != nil {
		return fmt.Errorf("deactivate session: %w", err)
	}
	return checkFound(res)
}

func (p *PostgresStore) Touch(ctx context.Context, id string, at time.Time) error {
	res, err := p.db.ExecContext(ctx, `
		UPDATE sessions SET last_seen_at = $2 WHERE id = $1`, id, at)
	if err != nil {
		return fmt.Errorf("touch session: %w", err)
	}
	return checkFound(res)
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanSession(row rowScanner) (*Session, error) {
	var s Session
	var status string
	err := row.Scan(&s.ID, &s.UserID, &s.TrustScore, &status, &s.IsActive,
		&s.CreatedAt, &s.LastSeenAt, &s.ExpiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan session: %w", err)
	}
	s.Status = Status(status)
	return &s, nil
}

func checkFound(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
