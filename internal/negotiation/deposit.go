package negotiation

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/alialshehriar/bithrah-app-sub003/internal/models"
)

// WalletLedger is the external wallet collaborator. Balance storage and the
// generic transaction ledger live outside the engine; a failure here must
// fail the enclosing transition.
type WalletLedger interface {
	Debit(ctx context.Context, userID uuid.UUID, amount decimal.Decimal, reference string) error
	Credit(ctx context.Context, userID uuid.UUID, amount decimal.Decimal, reference string) error
}

// ComputeDeposit derives the escrow deposit from listing configuration:
// flat fee plus a percentage of the funding goal, clamped to [min, max].
// Pure and deterministic so the amount is replayable for audit.
func ComputeDeposit(cfg models.NegotiationConfig, fundingGoal decimal.Decimal) decimal.Decimal {
	amount := cfg.DepositFlat.Add(fundingGoal.Mul(cfg.DepositPct))
	if cfg.DepositMin.IsPositive() && amount.LessThan(cfg.DepositMin) {
		amount = cfg.DepositMin
	}
	if cfg.DepositMax.IsPositive() && amount.GreaterThan(cfg.DepositMax) {
		amount = cfg.DepositMax
	}
	return amount.Round(2)
}

// DepositLedger tracks the escrow deposit tied to a session. The deposit
// lives on the session row, so its status change and the session status
// change persist as one atomic write by the caller.
type DepositLedger struct {
	wallet WalletLedger
	logger zerolog.Logger
}

// NewDepositLedger creates a ledger that moves funds through the wallet.
func NewDepositLedger(wallet WalletLedger, logger zerolog.Logger) *DepositLedger {
	return &DepositLedger{wallet: wallet, logger: logger}
}

// ConfirmHold debits the initiator's wallet and marks the deposit held.
// Only valid from pending.
func (d *DepositLedger) ConfirmHold(ctx context.Context, sess *models.NegotiationSession) error {
	if sess.DepositStatus != models.DepositPending {
		return fmt.Errorf("%w: deposit is %s, want pending", ErrInvalidState, sess.DepositStatus)
	}
	ref := "negotiation-deposit:" + sess.ID.String()
	if err := d.wallet.Debit(ctx, sess.InitiatorID, sess.DepositAmount, ref); err != nil {
		return fmt.Errorf("%w: wallet debit: %v", ErrUpstreamTimeout, err)
	}
	sess.DepositStatus = models.DepositHeld
	return nil
}

// Release credits the deposit back to the initiator. Only meaningful from
// held; calling it again on an already-settled deposit is a no-op so retried
// terminal transitions stay idempotent.
func (d *DepositLedger) Release(ctx context.Context, sess *models.NegotiationSession) error {
	switch sess.DepositStatus {
	case models.DepositReleased, models.DepositForfeited:
		return nil
	case models.DepositPending:
		// Nothing was ever debited; held is the only state to unwind.
		return nil
	}
	ref := "negotiation-release:" + sess.ID.String()
	if err := d.wallet.Credit(ctx, sess.InitiatorID, sess.DepositAmount, ref); err != nil {
		return fmt.Errorf("%w: wallet credit: %v", ErrUpstreamTimeout, err)
	}
	sess.DepositStatus = models.DepositReleased
	return nil
}

// Forfeit marks a held deposit forfeited without crediting it back.
// Reserved for the dispute/abuse path; idempotent like Release.
func (d *DepositLedger) Forfeit(ctx context.Context, sess *models.NegotiationSession) error {
	switch sess.DepositStatus {
	case models.DepositReleased, models.DepositForfeited:
		return nil
	case models.DepositPending:
		return fmt.Errorf("%w: deposit is pending, nothing held", ErrInvalidState)
	}
	d.logger.Warn().Str("session_id", sess.ID.String()).Msg("deposit forfeited")
	sess.DepositStatus = models.DepositForfeited
	return nil
}
