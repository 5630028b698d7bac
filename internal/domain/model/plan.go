package model

import (
	"time"

	"premium-access/internal/domain"
)

// UnlimitedDevices marks a tier with no device concurrency cap. Enforcement
// is skipped entirely for such tiers.
const UnlimitedDevices = -1

// failClosedMaxDevices is the limit applied to tiers the catalog does not
// know. Unknown tiers must never resolve to unbounded.
const failClosedMaxDevices = 1

// Plan describes one entitlement tier: how many devices may be logged in
// concurrently and how long a freshly redeemed code of this tier is valid.
type Plan struct {
	Tier       string
	MaxDevices int
	Duration   time.Duration
	Flexible   bool // allows custom start/duration at code creation
}

func (p Plan) Unlimited() bool { return p.MaxDevices == UnlimitedDevices }

// PlanCatalog is a static lookup from tier identifier to its plan. It is
// built once from configuration; every call site that needs a limit or a
// duration goes through here so the mapping cannot drift.
type PlanCatalog struct {
	plans map[string]Plan
}

// NewPlanCatalog validates and builds a catalog.
func NewPlanCatalog(plans []Plan) (*PlanCatalog, error) {
	if len(plans) == 0 {
		return nil, domain.ErrInvalidArgument
	}
	m := make(map[string]Plan, len(plans))
	for _, p := range plans {
		if p.Tier == "" || p.Duration <= 0 {
			return nil, domain.ErrInvalidArgument
		}
		if p.MaxDevices < UnlimitedDevices || p.MaxDevices == 0 {
			return nil, domain.ErrInvalidArgument
		}
		if _, dup := m[p.Tier]; dup {
			return nil, domain.ErrAlreadyExists
		}
		m[p.Tier] = p
	}
	return &PlanCatalog{plans: m}, nil
}

// Get returns the plan for a tier. Unknown tiers fail closed to the most
// restrictive device limit rather than to unbounded.
func (c *PlanCatalog) Get(tier string) Plan {
	if p, ok := c.plans[tier]; ok {
		return p
	}
	return Plan{Tier: tier, MaxDevices: failClosedMaxDevices}
}

// Lookup is like Get but also reports whether the tier is known.
func (c *PlanCatalog) Lookup(tier string) (Plan, bool) {
	p, ok := c.plans[tier]
	return p, ok
}

// Tiers returns the configured tier identifiers.
func (c *PlanCatalog) Tiers() []string {
	out := make([]string, 0, len(c.plans))
	for t := range c.plans {
		out = append(out, t)
	}
	return out
}
