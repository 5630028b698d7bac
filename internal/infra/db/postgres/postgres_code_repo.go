package postgres

import (
	"context"
	"errors"
	"hash/fnv"
	"time"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"premium-access/internal/domain"
	"premium-access/internal/domain/model"
	"premium-access/internal/domain/ports/repository"
)

// Ensure implementation satisfies the interface.
var _ repository.PremiumCodeRepository = (*premiumCodeRepo)(nil)

const uniqueViolation = "23505"

type premiumCodeRepo struct {
	pool *pgxpool.Pool
}

func NewPremiumCodeRepo(pool *pgxpool.Pool) repository.PremiumCodeRepository {
	return &premiumCodeRepo{pool: pool}
}

const codeColumns = `id, code, tier, starts_at, expires_at, used_by, used_at, is_active, generated_by, created_at`

// Save creates or updates a code. ON CONFLICT on the primary key handles
// both issuing a new code and persisting redemption/revocation changes; a
// unique violation on the token column surfaces as ErrAlreadyExists so the
// registry can retry generation.
func (r *premiumCodeRepo) Save(ctx context.Context, tx repository.Tx, code *model.PremiumCode) error {
	const q = `
INSERT INTO premium_codes (id, code, tier, starts_at, expires_at, used_by, used_at, is_active, generated_by, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
ON CONFLICT (id) DO UPDATE SET
  used_by = EXCLUDED.used_by,
  used_at = EXCLUDED.used_at,
  is_active = EXCLUDED.is_active;
`
	// nil slices would encode as NULL and trip the NOT NULL array columns
	usedBy := code.UsedBy
	if usedBy == nil {
		usedBy = []string{}
	}
	usedAt := code.UsedAt
	if usedAt == nil {
		usedAt = []time.Time{}
	}
	_, err := execSQL(ctx, r.pool, tx, q,
		code.ID, code.Code, code.Tier, code.StartsAt, code.ExpiresAt,
		usedBy, usedAt, code.IsActive, code.GeneratedBy, code.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return domain.ErrAlreadyExists
		}
		return err
	}
	return nil
}

func (r *premiumCodeRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.PremiumCode, error) {
	q := `SELECT ` + codeColumns + ` FROM premium_codes WHERE id = $1`
	if inTx(tx) {
		q += ` FOR UPDATE`
	}
	row, err := pickRow(ctx, r.pool, tx, q, id)
	if err != nil {
		return nil, err
	}
	return scanCode(row)
}

// FindByCode looks up a code by its normalized token. Inside a transaction
// the row is locked, which is what serializes concurrent redemptions of the
// same code.
func (r *premiumCodeRepo) FindByCode(ctx context.Context, tx repository.Tx, code string) (*model.PremiumCode, error) {
	q := `SELECT ` + codeColumns + ` FROM premium_codes WHERE code = $1`
	if inTx(tx) {
		q += ` FOR UPDATE`
	}
	row, err := pickRow(ctx, r.pool, tx, q, code)
	if err != nil {
		return nil, err
	}
	return scanCode(row)
}

func (r *premiumCodeRepo) ListByUser(ctx context.Context, tx repository.Tx, userID string) ([]*model.PremiumCode, error) {
	q := `SELECT ` + codeColumns + ` FROM premium_codes WHERE $1 = ANY(used_by) ORDER BY created_at DESC`
	if inTx(tx) {
		q += ` FOR UPDATE`
	}
	rows, err := pickRows(ctx, r.pool, tx, q, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.PremiumCode
	for rows.Next() {
		code, err := scanCode(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, code)
	}
	return out, rows.Err()
}

// LockUser takes a transaction-scoped advisory lock keyed by the user
// identifier. Redeem and revoke-all share it, so a full entitlement reset is
// ordered against concurrent redemptions by the same user.
func (r *premiumCodeRepo) LockUser(ctx context.Context, tx repository.Tx, userID string) error {
	if !inTx(tx) {
		return domain.ErrInvalidExecContext
	}
	_, err := execSQL(ctx, r.pool, tx, "SELECT pg_advisory_xact_lock($1)", hashToInt64(userID))
	return err
}

func scanCode(row pgx.Row) (*model.PremiumCode, error) {
	var c model.PremiumCode
	err := row.Scan(
		&c.ID, &c.Code, &c.Tier, &c.StartsAt, &c.ExpiresAt,
		&c.UsedBy, &c.UsedAt, &c.IsActive, &c.GeneratedBy, &c.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, domain.ErrReadDatabaseRow
	}
	return &c, nil
}

func hashToInt64(s string) int64 {
	h := fnv.New64a()
	h.Write([]byte(s))
	return int64(h.Sum64() & ((1 << 63) - 1))
}
