package usecase

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"premium-access/internal/domain"
	"premium-access/internal/domain/model"
	"premium-access/internal/domain/ports/repository"
	"premium-access/internal/infra/logging"
	"premium-access/internal/infra/metrics"
)

// Compile-time check
var _ SessionUseCase = (*sessionUC)(nil)

// SessionUseCase exposes the session-list and disconnect operations used by
// self-service and admin flows, plus the stale-session sweep.
type SessionUseCase interface {
	ListActive(ctx context.Context, userID string) ([]*model.UserSession, error)
	CountActive(ctx context.Context, userID string) (int, error)
	Disconnect(ctx context.Context, userID, deviceID string) (bool, error)
	DisconnectAll(ctx context.Context, userID string) (int, error)
	ReapStale(ctx context.Context) (int, error)
}

type sessionUC struct {
	sessions   repository.SessionRepository
	staleAfter time.Duration // zero disables staleness filtering
	clock      domain.Clock
	log        *zerolog.Logger
}

func NewSessionUseCase(sessions repository.SessionRepository, staleAfter time.Duration, clock domain.Clock, logger *zerolog.Logger) *sessionUC {
	if clock == nil {
		clock = domain.RealClock
	}
	return &sessionUC{
		sessions:   sessions,
		staleAfter: staleAfter,
		clock:      clock,
		log:        logger,
	}
}

// activeSince returns the staleness cutoff for the current instant. Sessions
// idle longer than staleAfter do not count as logged in even before the
// reaper has removed them.
func (s *sessionUC) activeSince(now time.Time) time.Time {
	if s.staleAfter <= 0 {
		return time.Time{}
	}
	return now.Add(-s.staleAfter)
}

func (s *sessionUC) ListActive(ctx context.Context, userID string) ([]*model.UserSession, error) {
	defer logging.TraceDuration(s.log, "SessionUC.ListActive")()

	if userID == "" {
		return nil, domain.ErrInvalidArgument
	}
	return s.sessions.ListActive(ctx, userID, s.activeSince(s.clock()))
}

func (s *sessionUC) CountActive(ctx context.Context, userID string) (int, error) {
	defer logging.TraceDuration(s.log, "SessionUC.CountActive")()

	if userID == "" {
		return 0, domain.ErrInvalidArgument
	}
	return s.sessions.CountActive(ctx, userID, s.activeSince(s.clock()))
}

// Disconnect removes one device session. Reports whether it existed;
// removing an absent session is not an error.
func (s *sessionUC) Disconnect(ctx context.Context, userID, deviceID string) (bool, error) {
	defer logging.TraceDuration(s.log, "SessionUC.Disconnect")()

	if userID == "" || deviceID == "" {
		return false, domain.ErrInvalidArgument
	}
	existed, err := s.sessions.Delete(ctx, userID, deviceID)
	if err != nil {
		return false, err
	}
	if existed {
		metrics.IncSessionDisconnects("device")
		s.log.Info().Str("user_id", userID).Str("device_id", deviceID).Msg("session disconnected")
	}
	return existed, nil
}

// DisconnectAll removes every session for the user (bulk administrative
// disconnect) and returns how many were removed.
func (s *sessionUC) DisconnectAll(ctx context.Context, userID string) (int, error) {
	defer logging.TraceDuration(s.log, "SessionUC.DisconnectAll")()

	if userID == "" {
		return 0, domain.ErrInvalidArgument
	}
	n, err := s.sessions.DeleteAllForUser(ctx, userID)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		metrics.IncSessionDisconnects("user")
		s.log.Info().Str("user_id", userID).Int("count", n).Msg("all sessions disconnected")
	}
	return n, nil
}

// ReapStale removes sessions idle longer than the staleness threshold so
// abandoned devices do not permanently consume a slot. Advisory: admission
// filters staleness inline and never waits for this sweep.
func (s *sessionUC) ReapStale(ctx context.Context) (int, error) {
	defer logging.TraceDuration(s.log, "SessionUC.ReapStale")()

	if s.staleAfter <= 0 {
		return 0, nil
	}
	return s.sessions.DeleteStale(ctx, s.clock().Add(-s.staleAfter))
}
