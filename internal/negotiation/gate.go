package negotiation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/alialshehriar/bithrah-app-sub003/internal/models"
	"github.com/alialshehriar/bithrah-app-sub003/internal/store"
)

// AccessGate decides whether an actor may open a negotiation on a listing.
//
// The "no open session" condition is additionally enforced at insert time by
// the store's unique partial index, so two concurrent opens that both pass
// the gate still resolve to exactly one created session.
type AccessGate struct {
	store store.DataStore
	clock func() time.Time
}

// NewAccessGate creates a gate backed by the given store.
func NewAccessGate(ds store.DataStore) *AccessGate {
	return &AccessGate{store: ds, clock: time.Now}
}

// CanOpen checks, in order: listing exists with negotiation enabled, the
// actor is not the owner, the actor holds a usable access agreement covering
// the listing. Returns the listing so the caller can reuse it. A nil error
// means allowed.
func (g *AccessGate) CanOpen(ctx context.Context, actorID, listingID uuid.UUID) (*models.ListingSummary, error) {
	listing, err := g.store.GetListing(ctx, listingID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("load listing: %w", err)
	}

	if !listing.Negotiation.Enabled {
		return nil, denied(DeniedNotEnabled)
	}

	if actorID == listing.OwnerID {
		return nil, denied(DeniedSelfNegotiation)
	}

	rec, err := g.store.GetAccessRecord(ctx, actorID, listingID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, denied(DeniedAccessNotGranted)
		}
		return nil, fmt.Errorf("load access record: %w", err)
	}
	if !rec.Covers(listingID) || !rec.Usable(g.clock()) {
		return nil, denied(DeniedAccessNotGranted)
	}

	return listing, nil
}
