package usecase

import (
	"context"

	"github.com/rs/zerolog"

	"premium-access/internal/domain"
	"premium-access/internal/domain/model"
	"premium-access/internal/infra/logging"
)

// Compile-time check
var _ EntitlementUseCase = (*entitlementUC)(nil)

// EntitlementUseCase derives a user's current premium status from the codes
// they have redeemed.
type EntitlementUseCase interface {
	Resolve(ctx context.Context, userID string) (*model.PremiumStatus, error)
}

type entitlementUC struct {
	codes CodeUseCase
	clock domain.Clock
	log   *zerolog.Logger
}

func NewEntitlementUseCase(codes CodeUseCase, clock domain.Clock, logger *zerolog.Logger) *entitlementUC {
	if clock == nil {
		clock = domain.RealClock
	}
	return &entitlementUC{codes: codes, clock: clock, log: logger}
}

// Resolve recomputes the status on demand; nothing is persisted. Among the
// user's currently valid codes the one with the latest ExpiresAt governs
// (ties broken by the user's latest redemption time): a user holding
// overlapping codes keeps the furthest-future access, regardless of the
// order they redeemed in.
func (e *entitlementUC) Resolve(ctx context.Context, userID string) (*model.PremiumStatus, error) {
	defer logging.TraceDuration(e.log, "EntitlementUC.Resolve")()

	if userID == "" {
		return nil, domain.ErrInvalidArgument
	}
	codes, err := e.codes.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	now := e.clock()
	var best *model.PremiumCode
	for _, code := range codes {
		if !code.IsValidAt(now) {
			continue
		}
		if best == nil {
			best = code
			continue
		}
		if code.ExpiresAt.After(best.ExpiresAt) {
			best = code
			continue
		}
		if code.ExpiresAt.Equal(best.ExpiresAt) {
			ct, _ := code.RedeemedAtBy(userID)
			bt, _ := best.RedeemedAtBy(userID)
			if ct.After(bt) {
				best = code
			}
		}
	}

	if best == nil {
		return &model.PremiumStatus{IsPremium: false}, nil
	}
	return &model.PremiumStatus{
		IsPremium: true,
		Tier:      best.Tier,
		CodeID:    best.ID,
		ExpiresAt: best.ExpiresAt,
	}, nil
}
