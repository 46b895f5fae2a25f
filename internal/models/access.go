package models

import (
	"time"

	"github.com/google/uuid"
)

// AccessRecord is a signed access agreement, consumed read-only.
// A zero ListingID means the agreement is platform-scoped.
type AccessRecord struct {
	UserID    uuid.UUID  `json:"user_id"`
	ListingID uuid.UUID  `json:"listing_id"`
	SignedAt  time.Time  `json:"signed_at"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	Valid     bool       `json:"valid"`
}

// Covers reports whether the record grants access to the given listing.
func (a *AccessRecord) Covers(listingID uuid.UUID) bool {
	return a.ListingID == uuid.Nil || a.ListingID == listingID
}

// Usable reports whether the agreement is valid and unexpired at now.
func (a *AccessRecord) Usable(now time.Time) bool {
	if !a.Valid {
		return false
	}
	return a.ExpiresAt == nil || now.Before(*a.ExpiresAt)
}
