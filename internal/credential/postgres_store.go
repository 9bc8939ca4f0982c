package credential

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
)

// PostgresStore is the database-backed user and credential store.
type PostgresStore struct {
	db *sql.DB
}

var (
	_ UserStore       = (*PostgresStore)(nil)
	_ CredentialStore = (*PostgresStore)(nil)
)

// NewPostgresStore creates a credential store over an existing pool.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate creates the users and credentials tables if needed.
func (p *PostgresStore) Migrate(ctx context.Context) error {
	_, err := p.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS users (
			id           TEXT PRIMARY KEY,
			username     TEXT NOT NULL UNIQUE,
			display_name TEXT NOT NULL,
			created_at   TIMESTAMPTZ NOT NULL
		);
		CREATE TABLE IF NOT EXISTS credentials (
			id         TEXT PRIMARY KEY,
			user_id    TEXT NOT NULL REFERENCES users(id),
			public_key BYTEA NOT NULL,
			sign_count BIGINT NOT NULL DEFAULT 0,
			created_at TIMESTAMPTZ NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_credentials_user_id ON credentials(user_id);
	`)
	if err != nil {
		return fmt.Errorf("migrate credentials: %w", err)
	}
	return nil
}

func (p *PostgresStore) CreateUser(ctx context.Context, u *User) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO users (id, username, display_name, created_at)
		VALUES ($1, $2, $3, $4)`,
		u.ID, u.Username, u.DisplayName, u.CreatedAt,
	)
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
		return ErrUserExists
	}
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (p *PostgresStore) GetUser(ctx context.Context, id string) (*User, error) {
	return p.getUser(ctx, `SELECT id, username, display_name, created_at FROM users WHERE id = $1`, id)
}

func (p *PostgresStore) GetUserByUsername(ctx context.Context, username string) (*User, error) {
	return p.getUser(ctx, `SELECT id, username, display_name, created_at FROM users WHERE username = $1`, username)
}

func (p *PostgresStore) getUser(ctx context.Context, query, arg string) (*User, error) {
	var u User
	err := p.db.QueryRowContext(ctx, query, arg).
		Scan(&u.ID, &u.Username, &u.DisplayName, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return &u, nil
}

func (p *PostgresStore) CreateCredential(ctx context.Context, c *Credential) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO credentials (id, user_id, public_key, sign_count, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		c.ID, c.UserID, c.PublicKey, int64(c.SignCount), c.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert credential: %w", err)
	}
	return nil
}

func (p *PostgresStore) ListByUser(ctx context.Context, userID string) ([]*Credential, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, user_id, public_key, sign_count, created_at
		FROM credentials WHERE user_id = $1 ORDER BY created_at`, userID)
	if err != nil {
		return nil, fmt.Errorf("list credentials: %w", err)
	}
	defer rows.Close()

	var result []*Credential
	for rows.Next() {
		var c Credential
		var signCount int64
		if err := rows.Scan(&c.ID, &c.UserID, &c.PublicKey, &signCount, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan credential: %w", err)
		}
		c.SignCount = uint32(signCount)
		result = append(result, &c)
	}
	return result, rows.Err()
}

func (p *PostgresStore) UpdateSignCount(ctx context.Context, credentialID string, signCount uint32) error {
	res, err := p.db.ExecContext(ctx, `
		UPDATE credentials SET sign_count = $2 WHERE id = $1`,
		credentialID, int64(signCount),
	)
	if err != nil {
		return fmt.Errorf("update sign count: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrCredentialNotFound
	}
	return nil
}
