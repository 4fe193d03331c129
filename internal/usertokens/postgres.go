package usertokens

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// pgStore resolves user tokens from PostgreSQL.
type pgStore struct {
	dbPool *pgxpool.Pool
	log    *zap.SugaredLogger
}

func NewPostgresStore(dbPool *pgxpool.Pool, log *zap.SugaredLogger) Store {
	return &pgStore{dbPool: dbPool, log: log}
}

// EnsureSchema creates the user_tokens table. Safe to call repeatedly.
func EnsureSchema(ctx context.Context, dbPool *pgxpool.Pool) error {
	_, err := dbPool.Exec(ctx, `
CREATE TABLE IF NOT EXISTS user_tokens (
  token_hash text PRIMARY KEY,
  user_id text NOT NULL,
  name text NOT NULL DEFAULT '',
  role text NOT NULL DEFAULT 'Reader',
  projects text[] NOT NULL DEFAULT '{}',
  expires_at timestamptz,
  created_at timestamptz NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS user_tokens_user_idx ON user_tokens(user_id);
`)
	return err
}

// Lookup hashes the token; plaintext tokens are never stored.
func (p *pgStore) Lookup(ctx context.Context, token string) (Record, error) {
	row := p.dbPool.QueryRow(ctx, `SELECT user_id, name, role, projects, expires_at FROM user_tokens WHERE token_hash=$1`, HashToken(token))
	var r Record
	var expires *time.Time
	if err := row.Scan(&r.UserID, &r.Name, &r.Role, &r.Projects, &expires); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Record{}, ErrNotFound
		}
		return Record{}, err
	}
	if expires != nil {
		r.ExpiresAt = *expires
	}
	r.Token = token
	return r, nil
}
