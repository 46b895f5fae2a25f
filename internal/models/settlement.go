package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// SettlementKind distinguishes the payouts issued on a completed session.
type SettlementKind string

const (
	SettlementPlatformCommission SettlementKind = "platform_commission"
	SettlementReferral           SettlementKind = "referral"
)

// SettlementStatus tracks payout processing downstream of the engine.
type SettlementStatus string

const (
	SettlementStatusPending  SettlementStatus = "pending"
	SettlementStatusApproved SettlementStatus = "approved"
	SettlementStatusPaid     SettlementStatus = "paid"
)

// SettlementRecord is one financial consequence of a completed negotiation.
// At most one record exists per (session, kind).
type SettlementRecord struct {
	ID            uuid.UUID        `json:"id"`
	SessionID     uuid.UUID        `json:"session_id"`
	BeneficiaryID uuid.UUID        `json:"beneficiary_id"`
	Kind          SettlementKind   `json:"kind"`
	Amount        decimal.Decimal  `json:"amount"`
	Rate          decimal.Decimal  `json:"rate"`
	BaseAmount    decimal.Decimal  `json:"base_amount"`
	Status        SettlementStatus `json:"status"`
	CreatedAt     time.Time        `json:"created_at"`
}
