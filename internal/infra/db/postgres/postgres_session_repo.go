package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"premium-access/internal/domain"
	"premium-access/internal/domain/model"
	"premium-access/internal/domain/ports/repository"
)

// Ensure implementation satisfies the interface.
var _ repository.SessionRepository = (*sessionRepo)(nil)

type sessionRepo struct {
	pool *pgxpool.Pool
}

func NewSessionRepo(pool *pgxpool.Pool) repository.SessionRepository {
	return &sessionRepo{pool: pool}
}

// Upsert registers a device session or refreshes an existing one in a single
// statement. The conflict target is the (user_id, device_id) primary key;
// created_at survives the touch.
func (r *sessionRepo) Upsert(ctx context.Context, sess *model.UserSession) error {
	info, err := json.Marshal(sess.DeviceInfo)
	if err != nil {
		return err
	}
	const q = `
INSERT INTO user_sessions (user_id, device_id, device_info, created_at, last_activity)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (user_id, device_id) DO UPDATE SET
  device_info = EXCLUDED.device_info,
  last_activity = EXCLUDED.last_activity;
`
	_, err = r.pool.Exec(ctx, q, sess.UserID, sess.DeviceID, info, sess.CreatedAt, sess.LastActivity)
	return err
}

func (r *sessionRepo) Find(ctx context.Context, userID, deviceID string) (*model.UserSession, error) {
	const q = `
SELECT user_id, device_id, device_info, created_at, last_activity
  FROM user_sessions
 WHERE user_id = $1 AND device_id = $2;
`
	return scanSession(r.pool.QueryRow(ctx, q, userID, deviceID))
}

func (r *sessionRepo) Delete(ctx context.Context, userID, deviceID string) (bool, error) {
	const q = `DELETE FROM user_sessions WHERE user_id = $1 AND device_id = $2;`
	tag, err := r.pool.Exec(ctx, q, userID, deviceID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (r *sessionRepo) DeleteAllForUser(ctx context.Context, userID string) (int, error) {
	const q = `DELETE FROM user_sessions WHERE user_id = $1;`
	tag, err := r.pool.Exec(ctx, q, userID)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

func (r *sessionRepo) ListActive(ctx context.Context, userID string, activeSince time.Time) ([]*model.UserSession, error) {
	const q = `
SELECT user_id, device_id, device_info, created_at, last_activity
  FROM user_sessions
 WHERE user_id = $1 AND last_activity >= $2
 ORDER BY last_activity DESC;
`
	rows, err := r.pool.Query(ctx, q, userID, activeSince)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.UserSession
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sess)
	}
	return out, rows.Err()
}

func (r *sessionRepo) CountActive(ctx context.Context, userID string, activeSince time.Time) (int, error) {
	const q = `SELECT COUNT(*) FROM user_sessions WHERE user_id = $1 AND last_activity >= $2;`
	var n int
	if err := r.pool.QueryRow(ctx, q, userID, activeSince).Scan(&n); err != nil {
		return 0, domain.ErrReadDatabaseRow
	}
	return n, nil
}

func (r *sessionRepo) DeleteStale(ctx context.Context, lastActivityBefore time.Time) (int, error) {
	const q = `DELETE FROM user_sessions WHERE last_activity < $1;`
	tag, err := r.pool.Exec(ctx, q, lastActivityBefore)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

func scanSession(row pgx.Row) (*model.UserSession, error) {
	var (
		s    model.UserSession
		info []byte
	)
	err := row.Scan(&s.UserID, &s.DeviceID, &info, &s.CreatedAt, &s.LastActivity)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, domain.ErrReadDatabaseRow
	}
	if len(info) > 0 {
		if err := json.Unmarshal(info, &s.DeviceInfo); err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
	}
	return &s, nil
}
