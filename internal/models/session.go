package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// SessionStatus is the lifecycle state of a negotiation session.
type SessionStatus string

const (
	SessionPending          SessionStatus = "pending"
	SessionActive           SessionStatus = "active"
	SessionAgreementReached SessionStatus = "agreement_reached"
	SessionCompleted        SessionStatus = "completed"
	SessionExpired          SessionStatus = "expired"
	SessionCancelled        SessionStatus = "cancelled"
)

// DepositStatus tracks the escrow deposit tied to a session.
// Transitions are monotonic: pending -> held -> released or forfeited.
type DepositStatus string

const (
	DepositPending   DepositStatus = "pending"
	DepositHeld      DepositStatus = "held"
	DepositReleased  DepositStatus = "released"
	DepositForfeited DepositStatus = "forfeited"
)

// sessionTransitions is the full transition table. Anything absent is illegal.
var sessionTransitions = map[SessionStatus][]SessionStatus{
	SessionPending:          {SessionActive, SessionCancelled},
	SessionActive:           {SessionAgreementReached, SessionExpired, SessionCancelled},
	SessionAgreementReached: {SessionCompleted},
}

// CanTransitionTo reports whether the move from s to next is legal.
func (s SessionStatus) CanTransitionTo(next SessionStatus) bool {
	for _, allowed := range sessionTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the status admits no further transitions.
func (s SessionStatus) IsTerminal() bool {
	return len(sessionTransitions[s]) == 0
}

// Terms is a structured investment proposal exchanged during negotiation.
type Terms struct {
	InvestmentAmount decimal.Decimal `json:"investment_amount"`
	EquityPct        decimal.Decimal `json:"equity_pct"`
	TimelineMonths   int             `json:"timeline_months"`
}

// NegotiationSession is the aggregate root of one private negotiation
// between an investor and a listing owner. Sessions are never deleted;
// terminal outcomes only change status.
type NegotiationSession struct {
	ID          uuid.UUID     `json:"id"`
	ListingID   uuid.UUID     `json:"listing_id"`
	InitiatorID uuid.UUID     `json:"initiator_id"`
	OwnerID     uuid.UUID     `json:"owner_id"`
	Status      SessionStatus `json:"status"`

	WindowStart *time.Time `json:"window_start,omitempty"`
	WindowEnd   *time.Time `json:"window_end,omitempty"`

	DepositAmount decimal.Decimal `json:"deposit_amount"`
	DepositStatus DepositStatus   `json:"deposit_status"`

	ProposedTerms    *Terms `json:"proposed_terms,omitempty"`
	AgreementReached bool   `json:"agreement_reached"`
	AgreedTerms      *Terms `json:"agreed_terms,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// IsParticipant reports whether userID is the initiator or the owner.
func (s *NegotiationSession) IsParticipant(userID uuid.UUID) bool {
	return userID == s.InitiatorID || userID == s.OwnerID
}

// WindowElapsed reports whether the negotiation window has passed at now.
// Sessions without an activated window never elapse.
func (s *NegotiationSession) WindowElapsed(now time.Time) bool {
	return s.WindowEnd != nil && now.After(*s.WindowEnd)
}
