package models

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// CommissionTier selects the platform commission rate for a listing.
type CommissionTier string

const (
	TierStandard   CommissionTier = "standard"
	TierPremium    CommissionTier = "premium"
	TierEnterprise CommissionTier = "enterprise"
)

// NegotiationConfig is listing-level configuration for private negotiations.
// The deposit formula inputs are stored per listing so the computed amount
// is replayable for audit.
type NegotiationConfig struct {
	Enabled        bool            `json:"enabled"`
	DepositFlat    decimal.Decimal `json:"deposit_flat"`
	DepositPct     decimal.Decimal `json:"deposit_pct"` // fraction of funding goal, e.g. 0.005
	DepositMin     decimal.Decimal `json:"deposit_min"`
	DepositMax     decimal.Decimal `json:"deposit_max"`
	CommissionTier CommissionTier  `json:"commission_tier"`
}

// ListingSummary is the read-only view of a listing the engine consumes.
// Listing CRUD lives outside the engine.
type ListingSummary struct {
	ID             uuid.UUID       `json:"id"`
	OwnerID        uuid.UUID       `json:"owner_id"`
	Title          string          `json:"title"`
	Description    string          `json:"description"`
	Category       string          `json:"category"`
	FundingGoal    decimal.Decimal `json:"funding_goal"`
	CurrentFunding decimal.Decimal `json:"current_funding"`
	TimelineMonths int             `json:"timeline_months"`
	TeamSize       int             `json:"team_size"`
	Traction       string          `json:"traction"`

	Negotiation NegotiationConfig `json:"negotiation"`

	// Referral attribution, if the listing was referred to the platform.
	ReferrerID   *uuid.UUID `json:"referrer_id,omitempty"`
	ReferrerTier string     `json:"referrer_tier,omitempty"` // base, silver, gold
}
