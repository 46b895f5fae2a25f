package agent

import (
	"context"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/alialshehriar/bithrah-app-sub003/internal/models"
	"github.com/alialshehriar/bithrah-app-sub003/internal/negotiation"
)

// StubAgent is a deterministic counterparty used in development without an
// API key and in tests. It proposes fixed terms derived from the listing on
// the first exchange and agrees once the investor accepts.
type StubAgent struct{}

// NewStubAgent creates the scripted agent.
func NewStubAgent() *StubAgent {
	return &StubAgent{}
}

// Respond follows a fixed script: propose, then agree on acceptance.
func (a *StubAgent) Respond(ctx context.Context, listing *models.ListingSummary, transcript []models.Message, latest string) (*negotiation.AgentReply, error) {
	terms := &models.Terms{
		InvestmentAmount: listing.FundingGoal.Mul(decimal.NewFromFloat(0.1)).Round(2),
		EquityPct:        decimal.NewFromInt(10),
		TimelineMonths:   listing.TimelineMonths,
	}

	if accepts(latest) && hasOwnerTurn(transcript) {
		return &negotiation.AgentReply{
			ReplyText:        "ممتاز، اتفقنا على الشروط المطروحة. سيتم إتمام الإجراءات عبر المنصة.",
			ProposedTerms:    terms,
			AgreementReached: true,
		}, nil
	}

	return &negotiation.AgentReply{
		ReplyText: "شكراً لاهتمامك بالمشروع. نقترح استثماراً بقيمة " +
			terms.InvestmentAmount.String() + " مقابل حصة 10%. ما رأيك؟",
		ProposedTerms: terms,
	}, nil
}

func accepts(text string) bool {
	lower := strings.ToLower(text)
	for _, token := range []string{"accept", "agreed", "deal", "موافق", "اتفقنا", "قبلت"} {
		if strings.Contains(lower, token) {
			return true
		}
	}
	return false
}

func hasOwnerTurn(transcript []models.Message) bool {
	for _, msg := range transcript {
		if msg.Sender == models.RoleOwner {
			return true
		}
	}
	return false
}
