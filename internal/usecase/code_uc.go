package usecase

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"premium-access/internal/domain"
	"premium-access/internal/domain/model"
	"premium-access/internal/domain/ports/repository"
	"premium-access/internal/infra/logging"
	"premium-access/internal/infra/metrics"
)

// Compile-time check
var _ CodeUseCase = (*codeUC)(nil)

// maxCodeGenAttempts bounds the retry loop when a freshly generated token
// collides with an existing one. Collisions are astronomically rare with a
// 12-character token, so hitting the bound indicates a broken RNG or store.
const maxCodeGenAttempts = 5

// CreateCodeParams describes a code to be issued. StartsAt and Duration may
// only be set for tiers marked flexible in the catalog; otherwise the tier's
// nominal values apply.
type CreateCodeParams struct {
	Tier        string
	GeneratedBy string
	StartsAt    *time.Time
	Duration    *time.Duration
}

// CodeUseCase is the registry of premium codes: issuing, redemption,
// revocation and history.
type CodeUseCase interface {
	Create(ctx context.Context, params CreateCodeParams) (*model.PremiumCode, error)
	Redeem(ctx context.Context, code, userID string) (*model.PremiumCode, error)
	Deactivate(ctx context.Context, code string) error
	RevokeForUser(ctx context.Context, code, userID string) error
	RevokeAllForUser(ctx context.Context, userID string) (int, error)
	ListByUser(ctx context.Context, userID string) ([]*model.PremiumCode, error)
}

type codeUC struct {
	codes   repository.PremiumCodeRepository
	catalog *model.PlanCatalog
	tm      repository.TransactionManager
	clock   domain.Clock
	log     *zerolog.Logger
}

func NewCodeUseCase(codes repository.PremiumCodeRepository, catalog *model.PlanCatalog, tm repository.TransactionManager, clock domain.Clock, logger *zerolog.Logger) *codeUC {
	if clock == nil {
		clock = domain.RealClock
	}
	return &codeUC{
		codes:   codes,
		catalog: catalog,
		tm:      tm,
		clock:   clock,
		log:     logger,
	}
}

// Create issues a new code for a known tier. Token generation is retried on
// the (theoretical) unique-index collision; callers never see ErrDuplicateCode.
func (c *codeUC) Create(ctx context.Context, params CreateCodeParams) (*model.PremiumCode, error) {
	defer logging.TraceDuration(c.log, "CodeUC.Create")()

	plan, known := c.catalog.Lookup(params.Tier)
	if !known {
		return nil, domain.ErrInvalidArgument
	}
	if (params.StartsAt != nil || params.Duration != nil) && !plan.Flexible {
		return nil, domain.ErrInvalidArgument
	}

	startsAt := c.clock()
	if params.StartsAt != nil {
		startsAt = *params.StartsAt
	}
	duration := plan.Duration
	if params.Duration != nil {
		duration = *params.Duration
	}

	var lastErr error
	for attempt := 0; attempt < maxCodeGenAttempts; attempt++ {
		token, err := generatePremiumCode()
		if err != nil {
			return nil, err
		}
		code, err := model.NewPremiumCode(ulid.Make().String(), token, params.Tier, params.GeneratedBy, startsAt, duration)
		if err != nil {
			return nil, err
		}
		if err := c.codes.Save(ctx, repository.NoTX, code); err != nil {
			if errors.Is(err, domain.ErrAlreadyExists) {
				lastErr = domain.ErrDuplicateCode
				continue
			}
			return nil, err
		}
		metrics.IncCodesCreated(params.Tier)
		c.log.Info().Str("code_id", code.ID).Str("tier", code.Tier).Str("generated_by", code.GeneratedBy).Msg("premium code created")
		return code, nil
	}
	return nil, lastErr
}

// Redeem claims a code for a user. The read-modify-write runs inside one
// transaction that locks both the code row and the per-user advisory lock,
// so two near-simultaneous redemptions of a single-seat code can not both
// succeed, and a concurrent revoke-all for the user is fully ordered against
// this redemption.
func (c *codeUC) Redeem(ctx context.Context, rawCode, userID string) (*model.PremiumCode, error) {
	defer logging.TraceDuration(c.log, "CodeUC.Redeem")()

	normalized := model.NormalizeCode(rawCode)
	if normalized == "" || userID == "" {
		return nil, domain.ErrInvalidArgument
	}

	var redeemed *model.PremiumCode
	txOpts := pgx.TxOptions{IsoLevel: pgx.ReadCommitted}
	err := c.tm.WithTx(ctx, txOpts, func(ctx context.Context, tx repository.Tx) error {
		if err := c.codes.LockUser(ctx, tx, userID); err != nil {
			return err
		}
		code, err := c.codes.FindByCode(ctx, tx, normalized)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return domain.ErrCodeNotFound
			}
			return err
		}

		now := c.clock()
		switch {
		case !code.IsActive:
			return domain.ErrCodeInactive
		case now.After(code.ExpiresAt):
			return domain.ErrCodeExpired
		case code.HasRedeemer(userID):
			return domain.ErrCodeAlreadyRedeemed
		}

		// Single-seat tiers admit exactly one redeemer. Unknown tiers fall
		// into the same branch via the catalog's fail-closed limit.
		if plan := c.catalog.Get(code.Tier); plan.MaxDevices == 1 && len(code.UsedBy) > 0 {
			return domain.ErrCodeClaimed
		}

		if err := code.AppendRedemption(userID, now); err != nil {
			return err
		}
		if err := c.codes.Save(ctx, tx, code); err != nil {
			return err
		}
		redeemed = code
		return nil
	})
	if err != nil {
		metrics.IncCodeRedemptions(redemptionOutcome(err))
		return nil, err
	}
	metrics.IncCodeRedemptions("ok")
	c.log.Info().Str("code_id", redeemed.ID).Str("user_id", userID).Str("tier", redeemed.Tier).Msg("premium code redeemed")
	return redeemed, nil
}

// Deactivate flips the administrative kill switch on a code. The usage
// history is kept for audit; the code stops being redeemable and stops
// counting toward entitlement.
func (c *codeUC) Deactivate(ctx context.Context, rawCode string) error {
	defer logging.TraceDuration(c.log, "CodeUC.Deactivate")()

	normalized := model.NormalizeCode(rawCode)
	if normalized == "" {
		return domain.ErrInvalidArgument
	}
	txOpts := pgx.TxOptions{IsoLevel: pgx.ReadCommitted}
	return c.tm.WithTx(ctx, txOpts, func(ctx context.Context, tx repository.Tx) error {
		code, err := c.codes.FindByCode(ctx, tx, normalized)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return domain.ErrCodeNotFound
			}
			return err
		}
		if !code.IsActive {
			return nil
		}
		code.Deactivate()
		return c.codes.Save(ctx, tx, code)
	})
}

// RevokeForUser removes a single user from a code's usage history.
// Idempotent: revoking a user who is not present is a no-op, not an error.
func (c *codeUC) RevokeForUser(ctx context.Context, rawCode, userID string) error {
	defer logging.TraceDuration(c.log, "CodeUC.RevokeForUser")()

	normalized := model.NormalizeCode(rawCode)
	if normalized == "" || userID == "" {
		return domain.ErrInvalidArgument
	}
	txOpts := pgx.TxOptions{IsoLevel: pgx.ReadCommitted}
	return c.tm.WithTx(ctx, txOpts, func(ctx context.Context, tx repository.Tx) error {
		code, err := c.codes.FindByCode(ctx, tx, normalized)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return domain.ErrCodeNotFound
			}
			return err
		}
		if !code.RemoveRedemption(userID) {
			return nil
		}
		if err := c.codes.Save(ctx, tx, code); err != nil {
			return err
		}
		metrics.IncCodesRevoked()
		c.log.Info().Str("code_id", code.ID).Str("user_id", userID).Msg("redemption revoked")
		return nil
	})
}

// RevokeAllForUser strips the user from every code they have redeemed and
// returns how many codes were touched. Runs under the per-user lock so it is
// atomic with respect to concurrent redemptions by the same user.
func (c *codeUC) RevokeAllForUser(ctx context.Context, userID string) (int, error) {
	defer logging.TraceDuration(c.log, "CodeUC.RevokeAllForUser")()

	if userID == "" {
		return 0, domain.ErrInvalidArgument
	}
	revoked := 0
	txOpts := pgx.TxOptions{IsoLevel: pgx.ReadCommitted}
	err := c.tm.WithTx(ctx, txOpts, func(ctx context.Context, tx repository.Tx) error {
		if err := c.codes.LockUser(ctx, tx, userID); err != nil {
			return err
		}
		codes, err := c.codes.ListByUser(ctx, tx, userID)
		if err != nil {
			return err
		}
		for _, code := range codes {
			if !code.RemoveRedemption(userID) {
				continue
			}
			if err := c.codes.Save(ctx, tx, code); err != nil {
				return err
			}
			revoked++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	if revoked > 0 {
		metrics.IncCodesRevoked()
		c.log.Info().Str("user_id", userID).Int("codes", revoked).Msg("all redemptions revoked")
	}
	return revoked, nil
}

// ListByUser returns the user's redemption history, newest redemption first.
func (c *codeUC) ListByUser(ctx context.Context, userID string) ([]*model.PremiumCode, error) {
	defer logging.TraceDuration(c.log, "CodeUC.ListByUser")()

	if userID == "" {
		return nil, domain.ErrInvalidArgument
	}
	codes, err := c.codes.ListByUser(ctx, repository.NoTX, userID)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(codes, func(i, j int) bool {
		ti, _ := codes[i].RedeemedAtBy(userID)
		tj, _ := codes[j].RedeemedAtBy(userID)
		return ti.After(tj)
	})
	return codes, nil
}

func redemptionOutcome(err error) string {
	switch {
	case errors.Is(err, domain.ErrCodeNotFound):
		return "not_found"
	case errors.Is(err, domain.ErrCodeInactive):
		return "inactive"
	case errors.Is(err, domain.ErrCodeExpired):
		return "expired"
	case errors.Is(err, domain.ErrCodeAlreadyRedeemed):
		return "already_redeemed"
	case errors.Is(err, domain.ErrCodeClaimed):
		return "claimed"
	default:
		return "error"
	}
}
