package repository

import (
	"context"

	"premium-access/internal/domain/model"
)

// PremiumCodeRepository is the port for premium code storage.
//
// Save must surface domain.ErrAlreadyExists when the code token violates the
// unique index, so the registry can retry generation instead of leaking the
// collision to callers.
type PremiumCodeRepository interface {
	Save(ctx context.Context, tx Tx, code *model.PremiumCode) error
	FindByID(ctx context.Context, tx Tx, id string) (*model.PremiumCode, error)
	// FindByCode looks up by normalized token. When called inside a
	// transaction the row is locked for update, serializing concurrent
	// redemptions of the same code.
	FindByCode(ctx context.Context, tx Tx, code string) (*model.PremiumCode, error)
	// ListByUser returns every code whose usage history contains userID,
	// newest redemption first.
	ListByUser(ctx context.Context, tx Tx, userID string) ([]*model.PremiumCode, error)
	// LockUser takes a per-user exclusive lock for the duration of the
	// surrounding transaction. Redeem and revoke-all both take it, which
	// makes a full entitlement reset atomic with respect to concurrent
	// redemptions by the same user.
	LockUser(ctx context.Context, tx Tx, userID string) error
}
