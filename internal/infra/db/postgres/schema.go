package postgres

import (
	"context"

	"github.com/jackc/pgx/v4/pgxpool"
)

// EnsureSchema creates the tables and indexes this service needs. Used by
// the seed tool and test environments; production deployments run the same
// statements through their migration pipeline.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS premium_codes (
    id            TEXT PRIMARY KEY,
    code          TEXT NOT NULL,
    tier          TEXT NOT NULL,
    starts_at     TIMESTAMPTZ NOT NULL,
    expires_at    TIMESTAMPTZ NOT NULL,
    used_by       TEXT[] NOT NULL DEFAULT '{}',
    used_at       TIMESTAMPTZ[] NOT NULL DEFAULT '{}',
    is_active     BOOLEAN NOT NULL DEFAULT TRUE,
    generated_by  TEXT NOT NULL DEFAULT '',
    created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE UNIQUE INDEX IF NOT EXISTS premium_codes_code_key ON premium_codes (code);
CREATE INDEX IF NOT EXISTS premium_codes_used_by_idx ON premium_codes USING GIN (used_by);

CREATE TABLE IF NOT EXISTS user_sessions (
    user_id       TEXT NOT NULL,
    device_id     TEXT NOT NULL,
    device_info   JSONB NOT NULL DEFAULT '{}',
    created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
    last_activity TIMESTAMPTZ NOT NULL DEFAULT now(),
    PRIMARY KEY (user_id, device_id)
);

CREATE INDEX IF NOT EXISTS user_sessions_last_activity_idx ON user_sessions (last_activity);
`
	_, err := pool.Exec(ctx, ddl)
	return err
}
