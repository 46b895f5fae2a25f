package negotiation

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/alialshehriar/bithrah-app-sub003/internal/models"
)

// AgentReply is the counterparty agent's output for one exchange. The
// orchestrator treats it as untrusted and applies PolicyBounds before any
// of it reaches session state.
type AgentReply struct {
	ReplyText        string
	ProposedTerms    *models.Terms
	AgreementReached bool
}

// CounterpartyAgent produces the owner's side of the conversation. It is a
// stateless function of the listing summary and the full transcript; all
// negotiation state lives in the session, so implementations are swappable
// and testable with deterministic stubs.
type CounterpartyAgent interface {
	Respond(ctx context.Context, listing *models.ListingSummary, transcript []models.Message, latest string) (*AgentReply, error)
}

// FallbackReply is returned when the text-generation collaborator fails.
// The session stays active and the investor may retry.
const FallbackReply = "عذراً، لا يمكنني الرد في الوقت الحالي. يرجى المحاولة مرة أخرى خلال لحظات. (The project owner's assistant is momentarily unavailable; please try again.)"

// PolicyBounds constrains agent-proposed terms. Proposals outside the
// bounds never become an agreement, whatever the agent claims.
type PolicyBounds struct {
	MinEquityPct          decimal.Decimal // e.g. 5
	MaxEquityPct          decimal.Decimal // e.g. 30
	MinInvestmentFraction decimal.Decimal // fraction of funding goal, e.g. 0.01
}

// Check validates terms against the bounds for a listing's funding goal.
// Returns an error wrapping ErrPolicyViolation when out of bounds.
func (b PolicyBounds) Check(terms *models.Terms, fundingGoal decimal.Decimal) error {
	if terms == nil {
		return nil
	}
	if terms.EquityPct.LessThan(b.MinEquityPct) || terms.EquityPct.GreaterThan(b.MaxEquityPct) {
		return fmt.Errorf("%w: equity %s%% outside [%s%%, %s%%]",
			ErrPolicyViolation, terms.EquityPct, b.MinEquityPct, b.MaxEquityPct)
	}
	minInvestment := fundingGoal.Mul(b.MinInvestmentFraction)
	if terms.InvestmentAmount.LessThan(minInvestment) {
		return fmt.Errorf("%w: investment %s below minimum %s",
			ErrPolicyViolation, terms.InvestmentAmount, minInvestment)
	}
	return nil
}
