package negotiation

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/alialshehriar/bithrah-app-sub003/internal/crypto"
	"github.com/alialshehriar/bithrah-app-sub003/internal/models"
	"github.com/alialshehriar/bithrah-app-sub003/internal/store"
)

// SettlementRates maps commission and referral tiers to rates.
type SettlementRates struct {
	Commission map[models.CommissionTier]decimal.Decimal
	Referral   map[string]decimal.Decimal
}

// SettlementEngine computes and issues platform commission and referral
// rewards when a session completes. Idempotent: records are keyed on
// (session, kind) and never duplicated.
type SettlementEngine struct {
	store           store.DataStore
	wallet          WalletLedger
	rates           SettlementRates
	platformAccount uuid.UUID
	logger          zerolog.Logger
	clock           func() time.Time
}

// NewSettlementEngine creates an engine crediting payouts through the wallet.
func NewSettlementEngine(ds store.DataStore, wallet WalletLedger, rates SettlementRates, platformAccount uuid.UUID, logger zerolog.Logger) *SettlementEngine {
	return &SettlementEngine{
		store:           ds,
		wallet:          wallet,
		rates:           rates,
		platformAccount: platformAccount,
		logger:          logger,
		clock:           time.Now,
	}
}

// Settle computes the settlement records for the session, forwards credit
// instructions to the wallet ledger, and persists the records together with
// the completed session in one store transaction. Re-invocation for an
// already-settled session issues nothing new.
func (e *SettlementEngine) Settle(ctx context.Context, sess *models.NegotiationSession, listing *models.ListingSummary) ([]models.SettlementRecord, error) {
	existing, err := e.store.ListSettlements(ctx, sess.ID)
	if err != nil {
		return nil, fmt.Errorf("list settlements: %w", err)
	}
	if len(existing) > 0 {
		return existing, nil
	}

	base := e.settlementBase(sess)
	now := e.clock()

	commissionRate := e.rates.Commission[listing.Negotiation.CommissionTier]
	records := []models.SettlementRecord{{
		ID:            crypto.NewUUIDv7(),
		SessionID:     sess.ID,
		BeneficiaryID: e.platformAccount,
		Kind:          models.SettlementPlatformCommission,
		Amount:        base.Mul(commissionRate).Round(2),
		Rate:          commissionRate,
		BaseAmount:    base,
		Status:        models.SettlementStatusPending,
		CreatedAt:     now,
	}}

	if listing.ReferrerID != nil {
		referralRate, ok := e.rates.Referral[listing.ReferrerTier]
		if !ok {
			referralRate = e.rates.Referral["base"]
		}
		records = append(records, models.SettlementRecord{
			ID:            crypto.NewUUIDv7(),
			SessionID:     sess.ID,
			BeneficiaryID: *listing.ReferrerID,
			Kind:          models.SettlementReferral,
			Amount:        base.Mul(referralRate).Round(2),
			Rate:          referralRate,
			BaseAmount:    base,
			Status:        models.SettlementStatusPending,
			CreatedAt:     now,
		})
	}

	for _, r := range records {
		ref := fmt.Sprintf("settlement:%s:%s", r.SessionID, r.Kind)
		if err := e.wallet.Credit(ctx, r.BeneficiaryID, r.Amount, ref); err != nil {
			return nil, fmt.Errorf("%w: wallet credit %s: %v", ErrUpstreamTimeout, r.Kind, err)
		}
	}

	if err := e.store.SettleSession(ctx, sess, records); err != nil {
		return nil, fmt.Errorf("persist settlement: %w", err)
	}

	e.logger.Info().
		Str("session_id", sess.ID.String()).
		Str("base", base.String()).
		Int("records", len(records)).
		Msg("session settled")

	return records, nil
}

// settlementBase is the agreed investment amount or, absent structured
// terms, the original deposit basis.
func (e *SettlementEngine) settlementBase(sess *models.NegotiationSession) decimal.Decimal {
	if sess.AgreedTerms != nil && sess.AgreedTerms.InvestmentAmount.IsPositive() {
		return sess.AgreedTerms.InvestmentAmount
	}
	return sess.DepositAmount
}
