// Package agent provides CounterpartyAgent implementations: a Gemini-backed
// negotiator for production and a deterministic stub for development and
// tests.
package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"github.com/shopspring/decimal"
	"google.golang.org/api/option"

	"github.com/alialshehriar/bithrah-app-sub003/internal/models"
	"github.com/alialshehriar/bithrah-app-sub003/internal/negotiation"
)

// GeminiAgent negotiates on the listing owner's behalf using Gemini.
// It is stateless: every call receives the full transcript.
type GeminiAgent struct {
	model *genai.GenerativeModel
}

// NewGeminiAgent creates an agent backed by the Gemini API.
func NewGeminiAgent(ctx context.Context, apiKey string) (*GeminiAgent, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, err
	}
	model := client.GenerativeModel("gemini-2.0-flash-001")
	model.ResponseMIMEType = "application/json"
	return &GeminiAgent{model: model}, nil
}

// geminiReply is the JSON schema the model is instructed to emit.
type geminiReply struct {
	ReplyText        string  `json:"reply_text"`
	AgreementReached bool    `json:"agreement_reached"`
	ProposesTerms    bool    `json:"proposes_terms"`
	InvestmentAmount float64 `json:"investment_amount"`
	EquityPct        float64 `json:"equity_pct"`
	TimelineMonths   int     `json:"timeline_months"`
}

// Respond generates the owner-side reply and optional structured terms.
func (a *GeminiAgent) Respond(ctx context.Context, listing *models.ListingSummary, transcript []models.Message, latest string) (*negotiation.AgentReply, error) {
	prompt := buildPrompt(listing, transcript, latest)

	resp, err := a.model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return nil, err
	}
	if len(resp.Candidates) == 0 || len(resp.Candidates[0].Content.Parts) == 0 {
		return nil, fmt.Errorf("empty response from model")
	}

	part := resp.Candidates[0].Content.Parts[0]
	txt, ok := part.(genai.Text)
	if !ok {
		return nil, fmt.Errorf("unexpected response part type %T", part)
	}

	return parseReply([]byte(txt))
}

// parseReply decodes the model's JSON into an AgentReply. Split out so the
// decode path is testable without a live call.
func parseReply(raw []byte) (*negotiation.AgentReply, error) {
	var parsed geminiReply
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("decode model reply: %w", err)
	}
	if parsed.ReplyText == "" {
		return nil, fmt.Errorf("model reply missing reply_text")
	}

	reply := &negotiation.AgentReply{
		ReplyText:        parsed.ReplyText,
		AgreementReached: parsed.AgreementReached,
	}
	if parsed.ProposesTerms {
		reply.ProposedTerms = &models.Terms{
			InvestmentAmount: decimal.NewFromFloat(parsed.InvestmentAmount),
			EquityPct:        decimal.NewFromFloat(parsed.EquityPct),
			TimelineMonths:   parsed.TimelineMonths,
		}
	}
	return reply, nil
}

func buildPrompt(listing *models.ListingSummary, transcript []models.Message, latest string) string {
	var history strings.Builder
	for _, msg := range transcript {
		fmt.Fprintf(&history, "- %s: %s\n", msg.Sender, msg.Content)
	}

	return fmt.Sprintf(`You are the negotiation assistant acting for the OWNER of a project listed on a crowdfunding investment marketplace. You negotiate investment terms with a gated INVESTOR in a private, time-boxed session.

**Project context:**
- Title: %s
- Category: %s
- Description: %s
- Funding goal: %s
- Current funding: %s
- Timeline: %d months
- Team size: %d
- Traction: %s

**Conversation so far (investor and owner turns):**
%s
**Latest investor message:**
%q

**Instructions:**
1. Reply in the investor's language (Arabic or English), professionally and concisely.
2. Answer questions about the project from the context above; never invent figures.
3. When the investor proposes terms, counter or accept. Favor the owner but stay realistic: equity between 5%% and 30%%, investment meaningful relative to the funding goal.
4. Set "agreement_reached" true ONLY when both sides have clearly converged on investment amount, equity, and timeline.
5. Set "proposes_terms" true whenever your reply states concrete terms, and fill the numeric fields.
6. Never share or request contact details outside the platform.

Respond in JSON only:
{
  "reply_text": "message to the investor",
  "agreement_reached": false,
  "proposes_terms": false,
  "investment_amount": 0,
  "equity_pct": 0,
  "timeline_months": 0
}`,
		listing.Title, listing.Category, listing.Description,
		listing.FundingGoal, listing.CurrentFunding,
		listing.TimelineMonths, listing.TeamSize, listing.Traction,
		history.String(), latest)
}
