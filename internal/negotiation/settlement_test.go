package negotiation

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/alialshehriar/bithrah-app-sub003/internal/models"
	"github.com/alialshehriar/bithrah-app-sub003/internal/store"
)

func testRates() SettlementRates {
	return SettlementRates{
		Commission: map[models.CommissionTier]decimal.Decimal{
			models.TierStandard: dec("0.05"),
			models.TierPremium:  dec("0.04"),
		},
		Referral: map[string]decimal.Decimal{
			"base": dec("0.01"),
			"gold": dec("0.02"),
		},
	}
}

func settledSession(t *testing.T, ms *store.MemoryStore, listing *models.ListingSummary) *models.NegotiationSession {
	t.Helper()
	now := time.Now()
	sess := &models.NegotiationSession{
		ID:            uuid.New(),
		ListingID:     listing.ID,
		InitiatorID:   uuid.New(),
		OwnerID:       listing.OwnerID,
		Status:        models.SessionAgreementReached,
		DepositAmount: dec("1100"),
		DepositStatus: models.DepositReleased,
		AgreedTerms: &models.Terms{
			InvestmentAmount: dec("50000"),
			EquityPct:        dec("15"),
			TimelineMonths:   12,
		},
		AgreementReached: true,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := ms.CreateSession(context.Background(), sess); err != nil {
		t.Fatal(err)
	}
	return sess
}

func TestSettleWithoutReferrer(t *testing.T) {
	ms := store.NewMemoryStore()
	owner := uuid.New()
	listing := seedListing(ms, owner, true)
	sess := settledSession(t, ms, listing)

	wallet := &fakeWallet{}
	platform := uuid.New()
	engine := NewSettlementEngine(ms, wallet, testRates(), platform, zerolog.Nop())

	records, err := engine.Settle(context.Background(), sess, listing)
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 1 {
		t.Fatalf("no referrer, expected commission only, got %d records", len(records))
	}
	if records[0].Kind != models.SettlementPlatformCommission {
		t.Fatalf("unexpected kind %s", records[0].Kind)
	}
	if !records[0].Amount.Equal(dec("2500")) { // 50000 * 0.05
		t.Fatalf("commission %s, want 2500", records[0].Amount)
	}
	if !records[0].BaseAmount.Equal(dec("50000")) {
		t.Fatalf("base %s, want 50000", records[0].BaseAmount)
	}
}

func TestSettleUnknownReferrerTierFallsBack(t *testing.T) {
	ms := store.NewMemoryStore()
	owner, referrer := uuid.New(), uuid.New()
	listing := seedListing(ms, owner, true)
	listing.ReferrerID = &referrer
	listing.ReferrerTier = "platinum" // not configured
	ms.PutListing(listing)
	sess := settledSession(t, ms, listing)

	wallet := &fakeWallet{}
	engine := NewSettlementEngine(ms, wallet, testRates(), uuid.New(), zerolog.Nop())

	records, err := engine.Settle(context.Background(), sess, listing)
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
	for _, r := range records {
		if r.Kind == models.SettlementReferral && !r.Rate.Equal(dec("0.01")) {
			t.Fatalf("unknown tier should fall back to base rate, got %s", r.Rate)
		}
	}
}

func TestSettleBaseFallsBackToDeposit(t *testing.T) {
	ms := store.NewMemoryStore()
	owner := uuid.New()
	listing := seedListing(ms, owner, true)
	sess := settledSession(t, ms, listing)
	sess.AgreedTerms = nil

	engine := NewSettlementEngine(ms, &fakeWallet{}, testRates(), uuid.New(), zerolog.Nop())
	records, err := engine.Settle(context.Background(), sess, listing)
	if err != nil {
		t.Fatal(err)
	}
	if !records[0].BaseAmount.Equal(dec("1100")) {
		t.Fatalf("base should fall back to deposit, got %s", records[0].BaseAmount)
	}
}

func TestSettleWalletFailurePersistsNothing(t *testing.T) {
	ms := store.NewMemoryStore()
	owner := uuid.New()
	listing := seedListing(ms, owner, true)
	sess := settledSession(t, ms, listing)

	wallet := &fakeWallet{fail: true}
	engine := NewSettlementEngine(ms, wallet, testRates(), uuid.New(), zerolog.Nop())

	_, err := engine.Settle(context.Background(), sess, listing)
	if !errors.Is(err, ErrUpstreamTimeout) {
		t.Fatalf("expected ErrUpstreamTimeout, got %v", err)
	}

	records, _ := ms.ListSettlements(context.Background(), sess.ID)
	if len(records) != 0 {
		t.Fatalf("failed settlement must persist no records, got %d", len(records))
	}
	got, _ := ms.GetSession(context.Background(), sess.ID)
	if got.Status != models.SessionAgreementReached {
		t.Fatalf("session must stay agreement_reached for replay, got %s", got.Status)
	}
}

func TestSettleReplayReturnsExisting(t *testing.T) {
	ms := store.NewMemoryStore()
	owner := uuid.New()
	listing := seedListing(ms, owner, true)
	sess := settledSession(t, ms, listing)

	wallet := &fakeWallet{}
	engine := NewSettlementEngine(ms, wallet, testRates(), uuid.New(), zerolog.Nop())
	ctx := context.Background()

	first, err := engine.Settle(ctx, sess, listing)
	if err != nil {
		t.Fatal(err)
	}
	second, err := engine.Settle(ctx, sess, listing)
	if err != nil {
		t.Fatal(err)
	}
	if len(second) != len(first) || second[0].ID != first[0].ID {
		t.Fatal("replay should return the original records")
	}
	if len(wallet.credits) != len(first) {
		t.Fatalf("replay must not credit again: %d credits", len(wallet.credits))
	}
}
