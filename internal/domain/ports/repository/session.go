package repository

import (
	"context"
	"time"

	"premium-access/internal/domain/model"
)

// SessionRepository is the port for active device sessions. The pair
// (userID, deviceID) is unique among stored sessions.
//
// Every method is a single atomic store operation. In particular Upsert is
// insert-or-touch in one statement, never a check-then-insert pair, so a
// cancelled login attempt can not leave a partial session behind and
// concurrent admits can not lose an update.
type SessionRepository interface {
	Upsert(ctx context.Context, sess *model.UserSession) error
	Find(ctx context.Context, userID, deviceID string) (*model.UserSession, error)
	// Delete reports whether the session existed. Idempotent.
	Delete(ctx context.Context, userID, deviceID string) (bool, error)
	DeleteAllForUser(ctx context.Context, userID string) (int, error)
	// ListActive returns sessions with LastActivity at or after activeSince,
	// ordered by LastActivity descending. A zero activeSince disables the
	// staleness filter.
	ListActive(ctx context.Context, userID string, activeSince time.Time) ([]*model.UserSession, error)
	CountActive(ctx context.Context, userID string, activeSince time.Time) (int, error)
	// DeleteStale removes sessions whose LastActivity is strictly before the
	// cutoff and returns how many were removed. Used by the background reaper.
	DeleteStale(ctx context.Context, lastActivityBefore time.Time) (int, error)
}
