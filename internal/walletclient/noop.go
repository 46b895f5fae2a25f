package walletclient

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// Noop is a development-only ledger that accepts every instruction and
// only logs it. Never use in production; Load panics there without a
// real wallet URL.
type Noop struct {
	Logger zerolog.Logger
}

func (n *Noop) Debit(ctx context.Context, userID uuid.UUID, amount decimal.Decimal, reference string) error {
	n.Logger.Info().
		Str("user_id", userID.String()).
		Str("amount", amount.String()).
		Str("reference", reference).
		Msg("noop wallet debit")
	return nil
}

func (n *Noop) Credit(ctx context.Context, userID uuid.UUID, amount decimal.Decimal, reference string) error {
	n.Logger.Info().
		Str("user_id", userID.String()).
		Str("amount", amount.String()).
		Str("reference", reference).
		Msg("noop wallet credit")
	return nil
}
