package handoff

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/gwlsn/strikelab/internal/metrics"
)

const schemaVersion = 1

const schema = `
CREATE TABLE IF NOT EXISTS handoffs (
	token TEXT PRIMARY KEY,
	payload TEXT NOT NULL,
	created_at INTEGER NOT NULL,
	expires_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS schema_version (
	version INTEGER NOT NULL,
	applied_at TEXT DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_handoffs_expires_at ON handoffs(expires_at);
`

// MemoryDSN keeps the database in process memory.
const MemoryDSN = ":memory:"

// SQLiteStore implements Store using SQLite. With MemoryDSN nothing outlives
// the process.
type SQLiteStore struct {
	db  *sql.DB
	ttl time.Duration
	now func() time.Time
}

// NewSQLiteStore opens dsn and creates the schema.
func NewSQLiteStore(dsn string, ttl time.Duration) (*SQLiteStore, error) {
	if dsn == "" {
		dsn = MemoryDSN
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	db, err := sql.Open("sqlite", dsn+"?_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// Each connection to :memory: is its own database.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	var version int
	err = db.QueryRow("SELECT version FROM schema_version ORDER BY version DESC LIMIT 1").Scan(&version)
	if errors.Is(err, sql.ErrNoRows) {
		if _, err := db.Exec("INSERT INTO schema_version (version) VALUES (?)", schemaVersion); err != nil {
			db.Close()
			return nil, fmt.Errorf("insert schema version: %w", err)
		}
	} else if err != nil {
		db.Close()
		return nil, fmt.Errorf("check schema version: %w", err)
	} else if version > schemaVersion {
		db.Close()
		return nil, fmt.Errorf("database schema version %d is newer than supported %d", version, schemaVersion)
	}

	return &SQLiteStore{db: db, ttl: ttl, now: time.Now}, nil
}

// Put stores h under a new token.
func (s *SQLiteStore) Put(ctx context.Context, h Handoff) (string, error) {
	now := s.now()
	if h.CreatedAt.IsZero() {
		h.CreatedAt = now
	}
	payload, err := json.Marshal(h)
	if err != nil {
		return "", fmt.Errorf("marshal handoff: %w", err)
	}

	token := NewToken()
	_, err = s.db.ExecContext(ctx,
		"INSERT INTO handoffs (token, payload, created_at, expires_at) VALUES (?, ?, ?, ?)",
		token, string(payload), now.UnixNano(), now.Add(s.ttl).UnixNano(),
	)
	if err != nil {
		metrics.HandoffsTotal.WithLabelValues("put", "error").Inc()
		return "", fmt.Errorf("insert handoff: %w", err)
	}
	metrics.HandoffsTotal.WithLabelValues("put", "ok").Inc()
	return token, nil
}

// Get returns the handoff for token, or ErrDataNotFound if it is unknown or expired.
func (s *SQLiteStore) Get(ctx context.Context, token string) (*Handoff, error) {
	var payload string
	var expiresAt int64
	err := s.db.QueryRowContext(ctx,
		"SELECT payload, expires_at FROM handoffs WHERE token = ?", token,
	).Scan(&payload, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		metrics.HandoffsTotal.WithLabelValues("get", "miss").Inc()
		return nil, notFound("unknown token")
	}
	if err != nil {
		metrics.HandoffsTotal.WithLabelValues("get", "error").Inc()
		return nil, fmt.Errorf("query handoff: %w", err)
	}

	if s.now().UnixNano() >= expiresAt {
		metrics.HandoffsTotal.WithLabelValues("get", "expired").Inc()
		_ = s.Delete(ctx, token)
		return nil, notFound("token expired")
	}

	var h Handoff
	if err := json.Unmarshal([]byte(payload), &h); err != nil {
		return nil, fmt.Errorf("unmarshal handoff: %w", err)
	}
	metrics.HandoffsTotal.WithLabelValues("get", "ok").Inc()
	return &h, nil
}

// Delete removes token. Deleting an unknown token is not an error.
func (s *SQLiteStore) Delete(ctx context.Context, token string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM handoffs WHERE token = ?", token); err != nil {
		return fmt.Errorf("delete handoff: %w", err)
	}
	return nil
}

// PurgeExpired deletes every expired handoff and returns how many were removed.
func (s *SQLiteStore) PurgeExpired(ctx context.Context) (int, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM handoffs WHERE expires_at <= ?", s.now().UnixNano())
	if err != nil {
		return 0, fmt.Errorf("purge handoffs: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
