package agent

import (
	"context"
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/alialshehriar/bithrah-app-sub003/internal/models"
)

func TestParseReplyWithTerms(t *testing.T) {
	raw := []byte(`{
		"reply_text": "I can offer 10% for 25000.",
		"agreement_reached": false,
		"proposes_terms": true,
		"investment_amount": 25000,
		"equity_pct": 10,
		"timeline_months": 12
	}`)

	reply, err := parseReply(raw)
	if err != nil {
		t.Fatal(err)
	}
	if reply.ReplyText == "" || reply.AgreementReached {
		t.Fatalf("unexpected reply: %+v", reply)
	}
	if reply.ProposedTerms == nil {
		t.Fatal("expected structured terms")
	}
	if !reply.ProposedTerms.InvestmentAmount.Equal(decimal.NewFromInt(25000)) {
		t.Fatalf("investment %s", reply.ProposedTerms.InvestmentAmount)
	}
	if reply.ProposedTerms.TimelineMonths != 12 {
		t.Fatalf("timeline %d", reply.ProposedTerms.TimelineMonths)
	}
}

func TestParseReplyWithoutTerms(t *testing.T) {
	raw := []byte(`{"reply_text": "Tell me more about your budget.", "proposes_terms": false}`)

	reply, err := parseReply(raw)
	if err != nil {
		t.Fatal(err)
	}
	if reply.ProposedTerms != nil {
		t.Fatal("no terms should be parsed when proposes_terms is false")
	}
}

func TestParseReplyRejectsGarbage(t *testing.T) {
	if _, err := parseReply([]byte("I think we have a deal!")); err == nil {
		t.Fatal("non-JSON model output must be an error")
	}
	if _, err := parseReply([]byte(`{"agreement_reached": true}`)); err == nil {
		t.Fatal("missing reply_text must be an error")
	}
}

func TestBuildPromptIncludesContext(t *testing.T) {
	listing := &models.ListingSummary{
		Title:          "Solar farms",
		Category:       "energy",
		FundingGoal:    decimal.NewFromInt(500000),
		TimelineMonths: 18,
	}
	transcript := []models.Message{
		{Sender: models.RoleInvestor, Content: "What is your traction?"},
		{Sender: models.RoleOwner, Content: "Three pilot sites running."},
	}

	prompt := buildPrompt(listing, transcript, "Can we talk numbers?")

	for _, want := range []string{"Solar farms", "500000", "Three pilot sites", "Can we talk numbers?"} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
}

func TestStubAgentScript(t *testing.T) {
	stub := NewStubAgent()
	ctx := context.Background()
	listing := &models.ListingSummary{
		FundingGoal:    decimal.NewFromInt(200000),
		TimelineMonths: 12,
	}

	// First exchange: a proposal, no agreement.
	first, err := stub.Respond(ctx, listing, nil, "tell me about the terms")
	if err != nil {
		t.Fatal(err)
	}
	if first.AgreementReached {
		t.Fatal("must not agree before an owner turn exists")
	}
	if first.ProposedTerms == nil || !first.ProposedTerms.InvestmentAmount.Equal(decimal.NewFromInt(20000)) {
		t.Fatalf("expected 10%% of goal proposed, got %+v", first.ProposedTerms)
	}

	// Acceptance after an owner turn closes the deal, in either language.
	transcript := []models.Message{{Sender: models.RoleOwner, Content: first.ReplyText}}
	for _, acceptance := range []string{"I accept the offer", "موافق على الشروط"} {
		agreed, err := stub.Respond(ctx, listing, transcript, acceptance)
		if err != nil {
			t.Fatal(err)
		}
		if !agreed.AgreementReached {
			t.Fatalf("%q should close the deal", acceptance)
		}
	}
}
