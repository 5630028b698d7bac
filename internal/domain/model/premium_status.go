package model

import "time"

// PremiumStatus is the derived entitlement of a user at a point in time.
// It is recomputed on demand from PremiumCode state and never persisted, so
// it cannot drift from the stored codes.
type PremiumStatus struct {
	IsPremium bool
	Tier      string
	CodeID    string
	ExpiresAt time.Time
}
