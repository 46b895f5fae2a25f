package negotiation

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/alialshehriar/bithrah-app-sub003/internal/models"
)

// fakeWallet records debit/credit instructions and can be told to fail.
type fakeWallet struct {
	mu      sync.Mutex
	debits  []walletCall
	credits []walletCall
	fail    bool
}

type walletCall struct {
	userID    uuid.UUID
	amount    decimal.Decimal
	reference string
}

func (w *fakeWallet) Debit(ctx context.Context, userID uuid.UUID, amount decimal.Decimal, reference string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.fail {
		return errors.New("wallet unavailable")
	}
	w.debits = append(w.debits, walletCall{userID, amount, reference})
	return nil
}

func (w *fakeWallet) Credit(ctx context.Context, userID uuid.UUID, amount decimal.Decimal, reference string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.fail {
		return errors.New("wallet unavailable")
	}
	w.credits = append(w.credits, walletCall{userID, amount, reference})
	return nil
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestComputeDeposit(t *testing.T) {
	cfg := models.NegotiationConfig{
		DepositFlat: dec("100"),
		DepositPct:  dec("0.005"),
		DepositMin:  dec("250"),
		DepositMax:  dec("5000"),
	}

	cases := []struct {
		goal string
		want string
	}{
		{"100000", "600"},    // 100 + 500
		{"10000", "250"},     // 150 clamped up to min
		{"2000000", "5000"},  // 10100 clamped down to max
		{"500000", "2600"},   // 100 + 2500
	}

	for _, tc := range cases {
		got := ComputeDeposit(cfg, dec(tc.goal))
		if !got.Equal(dec(tc.want)) {
			t.Errorf("goal %s: got %s, want %s", tc.goal, got, tc.want)
		}
	}
}

func TestComputeDepositDeterministic(t *testing.T) {
	cfg := models.NegotiationConfig{DepositFlat: dec("50"), DepositPct: dec("0.01")}
	goal := dec("123456.78")

	first := ComputeDeposit(cfg, goal)
	for i := 0; i < 10; i++ {
		if got := ComputeDeposit(cfg, goal); !got.Equal(first) {
			t.Fatalf("iteration %d: got %s, want %s", i, got, first)
		}
	}
}

func TestDepositHoldAndRelease(t *testing.T) {
	wallet := &fakeWallet{}
	ledger := NewDepositLedger(wallet, zerolog.Nop())
	ctx := context.Background()

	sess := &models.NegotiationSession{
		ID:            uuid.New(),
		InitiatorID:   uuid.New(),
		DepositAmount: dec("500"),
		DepositStatus: models.DepositPending,
	}

	if err := ledger.ConfirmHold(ctx, sess); err != nil {
		t.Fatal(err)
	}
	if sess.DepositStatus != models.DepositHeld {
		t.Fatalf("expected held, got %s", sess.DepositStatus)
	}
	if len(wallet.debits) != 1 || !wallet.debits[0].amount.Equal(dec("500")) {
		t.Fatalf("unexpected debits: %+v", wallet.debits)
	}

	// Holding twice is rejected.
	if err := ledger.ConfirmHold(ctx, sess); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState, got %v", err)
	}

	if err := ledger.Release(ctx, sess); err != nil {
		t.Fatal(err)
	}
	if sess.DepositStatus != models.DepositReleased {
		t.Fatalf("expected released, got %s", sess.DepositStatus)
	}
	if len(wallet.credits) != 1 {
		t.Fatalf("expected one credit, got %d", len(wallet.credits))
	}

	// Releasing again is a no-op, not a double credit.
	if err := ledger.Release(ctx, sess); err != nil {
		t.Fatal(err)
	}
	if len(wallet.credits) != 1 {
		t.Fatalf("release not idempotent: %d credits", len(wallet.credits))
	}
}

func TestDepositReleaseFromPendingIsNoop(t *testing.T) {
	wallet := &fakeWallet{}
	ledger := NewDepositLedger(wallet, zerolog.Nop())

	sess := &models.NegotiationSession{
		ID:            uuid.New(),
		InitiatorID:   uuid.New(),
		DepositAmount: dec("500"),
		DepositStatus: models.DepositPending,
	}

	if err := ledger.Release(context.Background(), sess); err != nil {
		t.Fatal(err)
	}
	if sess.DepositStatus != models.DepositPending {
		t.Fatalf("pending deposit should stay pending, got %s", sess.DepositStatus)
	}
	if len(wallet.credits) != 0 {
		t.Fatal("nothing was held, nothing should be credited")
	}
}

func TestDepositHoldWalletFailure(t *testing.T) {
	wallet := &fakeWallet{fail: true}
	ledger := NewDepositLedger(wallet, zerolog.Nop())

	sess := &models.NegotiationSession{
		ID:            uuid.New(),
		InitiatorID:   uuid.New(),
		DepositAmount: dec("500"),
		DepositStatus: models.DepositPending,
	}

	err := ledger.ConfirmHold(context.Background(), sess)
	if !errors.Is(err, ErrUpstreamTimeout) {
		t.Fatalf("expected ErrUpstreamTimeout, got %v", err)
	}
	if sess.DepositStatus != models.DepositPending {
		t.Fatalf("failed hold must leave deposit pending, got %s", sess.DepositStatus)
	}
}

func TestDepositForfeit(t *testing.T) {
	wallet := &fakeWallet{}
	ledger := NewDepositLedger(wallet, zerolog.Nop())
	ctx := context.Background()

	sess := &models.NegotiationSession{
		ID:            uuid.New(),
		InitiatorID:   uuid.New(),
		DepositAmount: dec("500"),
		DepositStatus: models.DepositHeld,
	}

	if err := ledger.Forfeit(ctx, sess); err != nil {
		t.Fatal(err)
	}
	if sess.DepositStatus != models.DepositForfeited {
		t.Fatalf("expected forfeited, got %s", sess.DepositStatus)
	}
	if len(wallet.credits) != 0 {
		t.Fatal("forfeited deposit must not be credited back")
	}

	// A forfeited deposit cannot be released afterwards.
	if err := ledger.Release(ctx, sess); err != nil {
		t.Fatal(err)
	}
	if sess.DepositStatus != models.DepositForfeited {
		t.Fatal("forfeited is terminal")
	}
}
