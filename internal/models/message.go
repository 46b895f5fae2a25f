package models

import (
	"time"

	"github.com/google/uuid"
)

// SenderRole identifies which side of the negotiation a message came from.
// Owner-role messages may be produced by the counterparty agent.
type SenderRole string

const (
	RoleInvestor SenderRole = "investor"
	RoleOwner    SenderRole = "owner"
)

// Message is one entry in a session transcript. Messages are append-only
// and exclusively owned by their session.
type Message struct {
	ID        string     `json:"id"` // ULID, time-ordered
	SessionID uuid.UUID  `json:"session_id"`
	Sender    SenderRole `json:"sender"`
	Content   string     `json:"content"`
	Flagged   bool       `json:"flagged"`
	CreatedAt time.Time  `json:"created_at"`
}
