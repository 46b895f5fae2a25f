package negotiation

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/alialshehriar/bithrah-app-sub003/internal/models"
	"github.com/alialshehriar/bithrah-app-sub003/internal/store"
)

func seedListing(s *store.MemoryStore, owner uuid.UUID, enabled bool) *models.ListingSummary {
	l := &models.ListingSummary{
		ID:          uuid.New(),
		OwnerID:     owner,
		Title:       "Cloud kitchen expansion",
		FundingGoal: dec("200000"),
		Negotiation: models.NegotiationConfig{
			Enabled:        enabled,
			DepositFlat:    dec("100"),
			DepositPct:     dec("0.005"),
			DepositMin:     dec("250"),
			DepositMax:     dec("5000"),
			CommissionTier: models.TierStandard,
		},
	}
	s.PutListing(l)
	return l
}

func grantAccess(s *store.MemoryStore, user, listing uuid.UUID) {
	s.PutAccessRecord(models.AccessRecord{
		UserID:    user,
		ListingID: listing,
		SignedAt:  time.Now().Add(-time.Hour),
		Valid:     true,
	})
}

func TestGateAllowsSignedInvestor(t *testing.T) {
	ms := store.NewMemoryStore()
	owner, investor := uuid.New(), uuid.New()
	listing := seedListing(ms, owner, true)
	grantAccess(ms, investor, listing.ID)

	gate := NewAccessGate(ms)
	got, err := gate.CanOpen(context.Background(), investor, listing.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.ID != listing.ID {
		t.Fatalf("unexpected listing %s", got.ID)
	}
}

func TestGatePlatformScopedAgreement(t *testing.T) {
	ms := store.NewMemoryStore()
	owner, investor := uuid.New(), uuid.New()
	listing := seedListing(ms, owner, true)
	grantAccess(ms, investor, uuid.Nil) // platform-wide agreement

	gate := NewAccessGate(ms)
	if _, err := gate.CanOpen(context.Background(), investor, listing.ID); err != nil {
		t.Fatal(err)
	}
}

func TestGateDenials(t *testing.T) {
	ms := store.NewMemoryStore()
	owner, investor, stranger := uuid.New(), uuid.New(), uuid.New()
	listing := seedListing(ms, owner, true)
	disabled := seedListing(ms, owner, false)
	grantAccess(ms, investor, listing.ID)

	expired := time.Now().Add(-time.Minute)
	ms.PutAccessRecord(models.AccessRecord{
		UserID: stranger, ListingID: disabled.ID,
		SignedAt: time.Now().Add(-48 * time.Hour), ExpiresAt: &expired, Valid: true,
	})

	gate := NewAccessGate(ms)
	ctx := context.Background()

	cases := []struct {
		name    string
		actor   uuid.UUID
		listing uuid.UUID
		reason  string
	}{
		{"owner cannot negotiate own listing", owner, listing.ID, DeniedSelfNegotiation},
		{"negotiation disabled", investor, disabled.ID, DeniedNotEnabled},
		{"no access agreement", stranger, listing.ID, DeniedAccessNotGranted},
		{"expired agreement", stranger, disabled.ID, DeniedNotEnabled},
	}

	for _, tc := range cases {
		_, err := gate.CanOpen(ctx, tc.actor, tc.listing)
		if !errors.Is(err, ErrAccessDenied) {
			t.Errorf("%s: expected ErrAccessDenied, got %v", tc.name, err)
			continue
		}
		if !strings.Contains(err.Error(), tc.reason) {
			t.Errorf("%s: expected reason %q in %q", tc.name, tc.reason, err)
		}
	}
}

func TestGateExpiredAgreement(t *testing.T) {
	ms := store.NewMemoryStore()
	owner, investor := uuid.New(), uuid.New()
	listing := seedListing(ms, owner, true)

	expired := time.Now().Add(-time.Minute)
	ms.PutAccessRecord(models.AccessRecord{
		UserID: investor, ListingID: listing.ID,
		SignedAt: time.Now().Add(-48 * time.Hour), ExpiresAt: &expired, Valid: true,
	})

	gate := NewAccessGate(ms)
	_, err := gate.CanOpen(context.Background(), investor, listing.ID)
	if !errors.Is(err, ErrAccessDenied) {
		t.Fatalf("expected ErrAccessDenied, got %v", err)
	}
	if !strings.Contains(err.Error(), DeniedAccessNotGranted) {
		t.Fatalf("expected reason %q, got %q", DeniedAccessNotGranted, err)
	}
}

func TestGateUnknownListing(t *testing.T) {
	gate := NewAccessGate(store.NewMemoryStore())
	_, err := gate.CanOpen(context.Background(), uuid.New(), uuid.New())
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
