package model

import (
	"strings"
	"time"

	"premium-access/internal/domain"
)

// PremiumCode is a redeemable token that grants time-boxed premium access.
// A single code may be redeemed by several users (family plans); the usage
// history is kept as the parallel UsedBy/UsedAt lists, append-only while the
// code lives, so that audit questions ("who redeemed this and when") stay
// answerable after revocation.
type PremiumCode struct {
	ID          string
	Code        string
	Tier        string
	StartsAt    time.Time
	ExpiresAt   time.Time
	UsedBy      []string
	UsedAt      []time.Time
	IsActive    bool
	GeneratedBy string
	CreatedAt   time.Time
}

// NormalizeCode canonicalizes a human-entered token: trimmed and upper-cased.
// Applied both at creation and at lookup so that "abcd-..." and "ABCD-..."
// hit the same record.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// NewPremiumCode validates and constructs a code. ExpiresAt is computed once,
// here, from the given duration; later catalog changes never retroactively
// alter an issued code.
func NewPremiumCode(id, code, tier, generatedBy string, startsAt time.Time, duration time.Duration) (*PremiumCode, error) {
	code = NormalizeCode(code)
	if id == "" || code == "" || tier == "" || duration <= 0 {
		return nil, domain.ErrInvalidArgument
	}
	return &PremiumCode{
		ID:          id,
		Code:        code,
		Tier:        tier,
		StartsAt:    startsAt,
		ExpiresAt:   startsAt.Add(duration),
		IsActive:    true,
		GeneratedBy: generatedBy,
		CreatedAt:   time.Now(),
	}, nil
}

// IsValidAt reports whether the code counts toward entitlement at the given
// instant: administratively active and inside its validity window.
func (c *PremiumCode) IsValidAt(now time.Time) bool {
	return c.IsActive && !now.Before(c.StartsAt) && now.Before(c.ExpiresAt)
}

// HasRedeemer reports whether userID appears in the usage history.
func (c *PremiumCode) HasRedeemer(userID string) bool {
	for _, u := range c.UsedBy {
		if u == userID {
			return true
		}
	}
	return false
}

// RedeemedAtBy returns the redemption timestamp for userID, if present.
func (c *PremiumCode) RedeemedAtBy(userID string) (time.Time, bool) {
	for i, u := range c.UsedBy {
		if u == userID {
			return c.UsedAt[i], true
		}
	}
	return time.Time{}, false
}

// AppendRedemption records a redemption. A user appears in the history at
// most once; the UsedBy/UsedAt lists always stay the same length.
func (c *PremiumCode) AppendRedemption(userID string, at time.Time) error {
	if userID == "" {
		return domain.ErrInvalidArgument
	}
	if c.HasRedeemer(userID) {
		return domain.ErrCodeAlreadyRedeemed
	}
	c.UsedBy = append(c.UsedBy, userID)
	c.UsedAt = append(c.UsedAt, at)
	return nil
}

// RemoveRedemption deletes userID and its matching timestamp from the usage
// history. Reports whether the user was present; absent is not an error.
func (c *PremiumCode) RemoveRedemption(userID string) bool {
	for i, u := range c.UsedBy {
		if u == userID {
			c.UsedBy = append(c.UsedBy[:i], c.UsedBy[i+1:]...)
			c.UsedAt = append(c.UsedAt[:i], c.UsedAt[i+1:]...)
			return true
		}
	}
	return false
}

// Deactivate is the administrative kill switch: the code can no longer be
// redeemed and stops counting toward entitlement, but its history is kept.
func (c *PremiumCode) Deactivate() { c.IsActive = false }
