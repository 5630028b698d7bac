package model

import (
	"time"

	"premium-access/internal/domain"
)

// UserSession records that a device is currently logged in for a user. Its
// existence counts toward the user's device concurrency usage; removal is
// immediate and total, there is no "expired but retained" state.
type UserSession struct {
	UserID       string
	DeviceID     string
	DeviceInfo   map[string]string // display/audit only, never identity
	CreatedAt    time.Time
	LastActivity time.Time
}

// NewUserSession validates and constructs a session.
func NewUserSession(userID, deviceID string, info map[string]string, now time.Time) (*UserSession, error) {
	if userID == "" || deviceID == "" {
		return nil, domain.ErrInvalidArgument
	}
	return &UserSession{
		UserID:       userID,
		DeviceID:     deviceID,
		DeviceInfo:   info,
		CreatedAt:    now,
		LastActivity: now,
	}, nil
}

// Touch refreshes the last-activity timestamp.
func (s *UserSession) Touch(now time.Time) { s.LastActivity = now }

// IsStale reports whether the session has been inactive for longer than the
// given threshold. A threshold of zero disables staleness.
func (s *UserSession) IsStale(now time.Time, threshold time.Duration) bool {
	if threshold <= 0 {
		return false
	}
	return now.Sub(s.LastActivity) > threshold
}
