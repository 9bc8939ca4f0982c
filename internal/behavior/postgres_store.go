package behavior

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/sentra-auth/sentra/internal/idgen"
)

// PostgresStore implements EventStore and FeatureStore using PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a PostgreSQL-backed behavioral store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Compile-time interface checks
var (
	_ EventStore   = (*PostgresStore)(nil)
	_ FeatureStore = (*PostgresStore)(nil)
)

// Migrate creates the behavioral tables.
func (p *PostgresStore) Migrate(ctx context.Context) error {
	_, err := p.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS behavioral_events (
			id           VARCHAR(40) PRIMARY KEY,
			session_id   VARCHAR(40) NOT NULL,
			event_type   VARCHAR(20) NOT NULL,
			payload      JSONB NOT NULL DEFAULT '{}',
			ts           DOUBLE PRECISION NOT NULL,
			ingested_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);

		CREATE INDEX IF NOT EXISTS idx_events_session_ingested
			ON behavioral_events(session_id, ingested_at);

		CREATE TABLE IF NOT EXISTS feature_vectors (
			id             VARCHAR(40) PRIMARY KEY,
			session_id     VARCHAR(40) NOT NULL,
			user_id        VARCHAR(40) NOT NULL,
			window_start   TIMESTAMPTZ NOT NULL,
			window_end     TIMESTAMPTZ NOT NULL,
			avg_key_hold_time      DOUBLE PRECISION,
			key_hold_std           DOUBLE PRECISION,
			avg_inter_key_interval DOUBLE PRECISION,
			inter_key_std          DOUBLE PRECISION,
			typing_speed           DOUBLE PRECISION,
			avg_mouse_speed        DOUBLE PRECISION,
			mouse_speed_std        DOUBLE PRECISION,
			avg_mouse_acceleration DOUBLE PRECISION,
			click_rate             DOUBLE PRECISION,
			total_events    INTEGER NOT NULL,
			keystroke_count INTEGER NOT NULL,
			mouse_count     INTEGER NOT NULL,
			created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);

		CREATE INDEX IF NOT EXISTS idx_features_user_created
			ON feature_vectors(user_id, created_at DESC);
	`)
	return err
}

// Insert stores a batch of events in one transaction.
func (p *PostgresStore) Insert(ctx context.Context, events []*Event) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	now := time.Now()
	for _, e := range events {
		if e.ID == "" {
			e.ID = idgen.WithPrefix("evt_")
		}
		if e.IngestedAt.IsZero() {
			e.IngestedAt = now
		}
		payload, err := json.Marshal(e.Payload)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO behavioral_events (id, session_id, event_type, payload, ts, ingested_at)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, e.ID, e.SessionID, e.Type, payload, e.Timestamp, e.IngestedAt); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// ListBySessionSince returns events for a session ingested at or after since.
func (p *PostgresStore) ListBySessionSince(ctx context.Context, sessionID string, since time.Time) ([]*Event, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, session_id, event_type, payload, ts, ingested_at
		FROM behavioral_events
		WHERE session_id = $1 AND ingested_at >= $2
		ORDER BY ts ASC
	`, sessionID, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEvents(rows)
}

// ListBySession returns a session's events newest first.
func (p *PostgresStore) ListBySession(ctx context.Context, sessionID string, limit int) ([]*Event, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, session_id, event_type, payload, ts, ingested_at
		FROM behavioral_events
		WHERE session_id = $1
		ORDER BY ts DESC
		LIMIT $2
	`, sessionID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEvents(rows)
}

func scanEvents(rows *sql.Rows) ([]*Event, error) {
	var events []*Event
	for rows.Next() {
		e := &Event{}
		var payload []byte
		if err := rows.Scan(&e.ID, &e.SessionID, &e.Type, &payload, &e.Timestamp, &e.IngestedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(payload, &e.Payload); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// Save stores a feature vector.
func (p *PostgresStore) Save(ctx context.Context, fv *FeatureVector) error {
	if fv.ID == "" {
		fv.ID = idgen.WithPrefix("fv_")
	}
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO feature_vectors (
			id, session_id, user_id, window_start, window_end,
			avg_key_hold_time, key_hold_std, avg_inter_key_interval, inter_key_std, typing_speed,
			avg_mouse_speed, mouse_speed_std, avg_mouse_acceleration, click_rate,
			total_events, keystroke_count, mouse_count, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
	`,
		fv.ID, fv.SessionID, fv.UserID, fv.WindowStart, fv.WindowEnd,
		fv.AvgKeyHoldTime, fv.KeyHoldStd, fv.AvgInterKeyInterval, fv.InterKeyStd, fv.TypingSpeed,
		fv.AvgMouseSpeed, fv.MouseSpeedStd, fv.AvgMouseAcceleration, fv.ClickRate,
		fv.TotalEvents, fv.KeystrokeCount, fv.MouseCount, fv.CreatedAt,
	)
	return err
}

// ListByUser returns a user's feature vectors newest first.
func (p *PostgresStore) ListByUser(ctx context.Context, userID string, limit int) ([]*FeatureVector, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, session_id, user_id, window_start, window_end,
		       avg_key_hold_time, key_hold_std, avg_inter_key_interval, inter_key_std, typing_speed,
		       avg_mouse_speed, mouse_speed_std, avg_mouse_acceleration, click_rate,
		       total_events, keystroke_count, mouse_count, created_at
		FROM feature_vectors
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var vectors []*FeatureVector
	for rows.Next() {
		fv := &FeatureVector{}
		if err := rows.Scan(
			&fv.ID, &fv.SessionID, &fv.UserID, &fv.WindowStart, &fv.WindowEnd,
			&fv.AvgKeyHoldTime, &fv.KeyHoldStd, &fv.AvgInterKeyInterval, &fv.InterKeyStd, &fv.TypingSpeed,
			&fv.AvgMouseSpeed, &fv.MouseSpeedStd, &fv.AvgMouseAcceleration, &fv.ClickRate,
			&fv.TotalEvents, &fv.KeystrokeCount, &fv.MouseCount, &fv.CreatedAt,
		); err != nil {
			return nil, err
		}
		vectors = append(vectors, fv)
	}
	return vectors, rows.Err()
}

// CountByUser returns how many feature vectors a user has accumulated.
func (p *PostgresStore) CountByUser(ctx context.Context, userID string) (int, error) {
	var count int
	err := p.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM feature_vectors WHERE user_id = $1`, userID,
	).Scan(&count)
	return count, err
}

// ListRecent returns the newest feature vectors across all users. Used for
// offline training of the population model.
func (p *PostgresStore) ListRecent(ctx context.Context, limit int) ([]*FeatureVector, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, session_id, user_id, window_start, window_end,
		       avg_key_hold_time, key_hold_std, avg_inter_key_interval, inter_key_std, typing_speed,
		       avg_mouse_speed, mouse_speed_std, avg_mouse_acceleration, click_rate,
		       total_events, keystroke_count, mouse_count, created_at
		FROM feature_vectors
		ORDER BY created_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var vectors []*FeatureVector
	for rows.Next() {
		fv := &FeatureVector{}
		if err := rows.Scan(
			&fv.ID, &fv.SessionID, &fv.UserID, &fv.WindowStart, &fv.WindowEnd,
			&fv.AvgKeyHoldTime, &fv.KeyHoldStd, &fv.AvgInterKeyInterval, &fv.InterKeyStd, &fv.TypingSpeed,
			&fv.AvgMouseSpeed, &fv.MouseSpeedStd, &fv.AvgMouseAcceleration, &fv.ClickRate,
			&fv.TotalEvents, &fv.KeystrokeCount, &fv.MouseCount, &fv.CreatedAt,
		); err != nil {
			return nil, err
		}
		vectors = append(vectors, fv)
	}
	return vectors, rows.Err()
}
