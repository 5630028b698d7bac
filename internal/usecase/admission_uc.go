package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"premium-access/internal/domain"
	"premium-access/internal/domain/model"
	"premium-access/internal/domain/ports/repository"
	"premium-access/internal/infra/logging"
	"premium-access/internal/infra/metrics"
)

// Compile-time check
var _ AdmissionUseCase = (*admissionUC)(nil)

// Locker is the minimal distributed-lock interface admission needs. The
// Redis implementation lives in infra; tests use an in-process stand-in.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (token string, err error)
	Unlock(ctx context.Context, key, token string) error
}

// FallbackPolicy decides what happens to users without premium entitlement.
// There is no default: the caller must state the product decision explicitly
// at construction time.
type FallbackPolicy struct {
	Admit      bool // admit non-premium users at all
	MaxDevices int  // device cap when admitting; model.UnlimitedDevices for none
}

// DeviceLimitExceededError is returned when a login would exceed the tier's
// device cap. It carries the current session list so the caller can present
// the devices for manual release; the controller never evicts on its own.
type DeviceLimitExceededError struct {
	Limit    int
	Sessions []*model.UserSession
}

func (e *DeviceLimitExceededError) Error() string {
	return fmt.Sprintf("device limit reached: %d of %d devices active", len(e.Sessions), e.Limit)
}

func (e *DeviceLimitExceededError) Unwrap() error { return domain.ErrDeviceLimitReached }

// AdmissionUseCase is the gatekeeper invoked on every login attempt.
type AdmissionUseCase interface {
	AttemptLogin(ctx context.Context, userID, deviceID string, deviceInfo map[string]string) (*model.UserSession, error)
}

type admissionUC struct {
	entitlements EntitlementUseCase
	sessions     repository.SessionRepository
	catalog      *model.PlanCatalog
	locker       Locker
	policy       FallbackPolicy
	staleAfter   time.Duration
	lockTTL      time.Duration
	clock        domain.Clock
	log          *zerolog.Logger
}

func NewAdmissionUseCase(
	entitlements EntitlementUseCase,
	sessions repository.SessionRepository,
	catalog *model.PlanCatalog,
	locker Locker,
	policy FallbackPolicy,
	staleAfter time.Duration,
	clock domain.Clock,
	logger *zerolog.Logger,
) *admissionUC {
	if clock == nil {
		clock = domain.RealClock
	}
	return &admissionUC{
		entitlements: entitlements,
		sessions:     sessions,
		catalog:      catalog,
		locker:       locker,
		policy:       policy,
		staleAfter:   staleAfter,
		lockTTL:      5 * time.Second,
		clock:        clock,
		log:          logger,
	}
}

// AttemptLogin admits or rejects a device login.
//
// Re-authentication from an already-registered device is a touch and never
// counts against the limit. For new devices the count check and the session
// registration run under a per-user distributed lock, so two concurrent
// logins for the same user can not both squeeze under the cap; the
// registration itself is a single atomic upsert on the store.
func (a *admissionUC) AttemptLogin(ctx context.Context, userID, deviceID string, deviceInfo map[string]string) (*model.UserSession, error) {
	defer logging.TraceDuration(a.log, "AdmissionUC.AttemptLogin")()

	if userID == "" || deviceID == "" {
		return nil, domain.ErrInvalidArgument
	}

	now := a.clock()

	// Known device: refresh and admit without consulting the limit.
	if existing, err := a.sessions.Find(ctx, userID, deviceID); err == nil && existing != nil {
		existing.Touch(now)
		if len(deviceInfo) > 0 {
			existing.DeviceInfo = deviceInfo
		}
		if err := a.sessions.Upsert(ctx, existing); err != nil {
			return nil, err
		}
		metrics.IncAdmissions("readmitted")
		return existing, nil
	} else if err != nil && !isNotFound(err) {
		return nil, err
	}

	token, err := a.locker.TryLock(ctx, admissionLockKey(userID), a.lockTTL)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := a.locker.Unlock(context.WithoutCancel(ctx), admissionLockKey(userID), token); err != nil {
			a.log.Warn().Err(err).Str("user_id", userID).Msg("failed to release admission lock")
		}
	}()

	maxDevices, err := a.resolveLimit(ctx, userID)
	if err != nil {
		metrics.IncAdmissions("rejected_not_premium")
		return nil, err
	}

	if maxDevices != model.UnlimitedDevices {
		activeSince := time.Time{}
		if a.staleAfter > 0 {
			activeSince = now.Add(-a.staleAfter)
		}
		active, err := a.sessions.ListActive(ctx, userID, activeSince)
		if err != nil {
			return nil, err
		}
		if len(active) >= maxDevices {
			metrics.IncAdmissions("rejected_limit")
			a.log.Info().Str("user_id", userID).Str("device_id", deviceID).Int("active", len(active)).Int("limit", maxDevices).Msg("login rejected: device limit")
			return nil, &DeviceLimitExceededError{Limit: maxDevices, Sessions: active}
		}
	}

	sess, err := model.NewUserSession(userID, deviceID, deviceInfo, now)
	if err != nil {
		return nil, err
	}
	if err := a.sessions.Upsert(ctx, sess); err != nil {
		return nil, err
	}
	metrics.IncAdmissions("admitted")
	a.log.Info().Str("user_id", userID).Str("device_id", deviceID).Msg("login admitted")
	return sess, nil
}

// resolveLimit maps the user's entitlement to a device cap, applying the
// configured fallback for non-premium users.
func (a *admissionUC) resolveLimit(ctx context.Context, userID string) (int, error) {
	status, err := a.entitlements.Resolve(ctx, userID)
	if err != nil {
		return 0, err
	}
	if !status.IsPremium {
		if !a.policy.Admit {
			return 0, domain.ErrNotPremium
		}
		return a.policy.MaxDevices, nil
	}
	return a.catalog.Get(status.Tier).MaxDevices, nil
}

func admissionLockKey(userID string) string { return "admission:" + userID }

func isNotFound(err error) bool {
	return errors.Is(err, domain.ErrNotFound)
}
