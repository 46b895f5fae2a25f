package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/alialshehriar/bithrah-app-sub003/internal/agent"
	"github.com/alialshehriar/bithrah-app-sub003/internal/config"
	"github.com/alialshehriar/bithrah-app-sub003/internal/models"
	"github.com/alialshehriar/bithrah-app-sub003/internal/negotiation"
	"github.com/alialshehriar/bithrah-app-sub003/internal/notify"
	"github.com/alialshehriar/bithrah-app-sub003/internal/store"
	"github.com/alialshehriar/bithrah-app-sub003/internal/walletclient"
)

const testSecret = "test-secret"

type apiFixture struct {
	server   *httptest.Server
	investor uuid.UUID
	owner    uuid.UUID
	listing  uuid.UUID
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()

	logger := zerolog.Nop()
	ms := store.NewMemoryStore()

	f := &apiFixture{
		investor: uuid.New(),
		owner:    uuid.New(),
	}

	dec := func(s string) decimal.Decimal { return decimal.RequireFromString(s) }
	listing := &models.ListingSummary{
		ID:             uuid.New(),
		OwnerID:        f.owner,
		Title:          "Fintech wallet",
		FundingGoal:    dec("100000"),
		TimelineMonths: 12,
		Negotiation: models.NegotiationConfig{
			Enabled:        true,
			DepositFlat:    dec("100"),
			DepositPct:     dec("0.005"),
			CommissionTier: models.TierStandard,
		},
	}
	ms.PutListing(listing)
	f.listing = listing.ID
	ms.PutAccessRecord(models.AccessRecord{
		UserID: f.investor, ListingID: listing.ID,
		SignedAt: time.Now().Add(-time.Hour), Valid: true,
	})

	wallet := &walletclient.Noop{Logger: logger}
	rates := negotiation.SettlementRates{
		Commission: map[models.CommissionTier]decimal.Decimal{models.TierStandard: dec("0.05")},
		Referral:   map[string]decimal.Decimal{"base": dec("0.01")},
	}
	orch := negotiation.NewOrchestrator(
		ms,
		negotiation.NewAccessGate(ms),
		negotiation.NewContentModerator(),
		negotiation.NewDepositLedger(wallet, logger),
		agent.NewStubAgent(),
		negotiation.NewSettlementEngine(ms, wallet, rates, uuid.New(), logger),
		notify.NewLogNotifier(logger),
		negotiation.Config{
			Window:       72 * time.Hour,
			AgentTimeout: 5 * time.Second,
			Bounds: negotiation.PolicyBounds{
				MinEquityPct:          dec("5"),
				MaxEquityPct:          dec("30"),
				MinInvestmentFraction: dec("0.01"),
			},
		},
		logger,
	)

	cfg := &config.Config{
		Env:                "test",
		JWTSecret:          testSecret,
		CORSAllowedOrigins: []string{"*"},
	}
	router := NewRouter(cfg, logger, orch, ms, nil)
	f.server = httptest.NewServer(router)
	t.Cleanup(f.server.Close)
	return f
}

func mintToken(t *testing.T, userID uuid.UUID) string {
	t.Helper()
	claims := jwt.MapClaims{
		"user_id": userID.String(),
		"exp":     time.Now().Add(time.Hour).Unix(),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	if err != nil {
		t.Fatal(err)
	}
	return signed
}

func (f *apiFixture) do(t *testing.T, method, path, token string, body interface{}) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req, err := http.NewRequest(method, f.server.URL+path, &buf)
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := f.server.Client().Do(req)
	if err != nil {
		t.Fatal(err)
	}
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, dst interface{}) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		t.Fatal(err)
	}
}

func TestRouterRequiresAuth(t *testing.T) {
	f := newAPIFixture(t)

	resp := f.do(t, "POST", "/negotiations", "", map[string]string{"listing_id": f.listing.String()})
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}

	resp = f.do(t, "GET", "/health", "", nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("health should be public, got %d", resp.StatusCode)
	}
}

func TestNegotiationLifecycleOverHTTP(t *testing.T) {
	f := newAPIFixture(t)
	token := mintToken(t, f.investor)

	// Open
	resp := f.do(t, "POST", "/negotiations", token, map[string]string{"listing_id": f.listing.String()})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("open: expected 201, got %d", resp.StatusCode)
	}
	var sess struct {
		ID            string `json:"id"`
		Status        string `json:"status"`
		DepositAmount string `json:"deposit_amount"`
	}
	decodeBody(t, resp, &sess)
	if sess.Status != "pending" {
		t.Fatalf("expected pending, got %s", sess.Status)
	}

	// Duplicate open is denied while the first is live.
	resp = f.do(t, "POST", "/negotiations", token, map[string]string{"listing_id": f.listing.String()})
	resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("duplicate open: expected 403, got %d", resp.StatusCode)
	}

	// Confirm deposit
	resp = f.do(t, "POST", "/negotiations/"+sess.ID+"/deposit", token, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("deposit: expected 200, got %d", resp.StatusCode)
	}
	var active struct {
		Status string `json:"status"`
	}
	decodeBody(t, resp, &active)
	if active.Status != "active" {
		t.Fatalf("expected active, got %s", active.Status)
	}

	// Exchange messages until the stub agent closes the deal.
	post := func(content string) (int, map[string]json.RawMessage) {
		resp := f.do(t, "POST", "/negotiations/"+sess.ID+"/messages", token,
			map[string]string{"content": content})
		var out map[string]json.RawMessage
		decodeBody(t, resp, &out)
		return resp.StatusCode, out
	}

	if code, _ := post("tell me about your terms"); code != http.StatusCreated {
		t.Fatalf("first message: expected 201, got %d", code)
	}
	code, out := post("I accept the offer")
	if code != http.StatusCreated {
		t.Fatalf("acceptance: expected 201, got %d", code)
	}
	var final struct {
		Status        string `json:"status"`
		DepositStatus string `json:"deposit_status"`
	}
	if err := json.Unmarshal(out["session"], &final); err != nil {
		t.Fatal(err)
	}
	if final.Status != "completed" {
		t.Fatalf("expected completed after agreement, got %s", final.Status)
	}
	if final.DepositStatus != "released" {
		t.Fatalf("expected deposit released, got %s", final.DepositStatus)
	}

	// Transcript is visible to the owner too.
	ownerToken := mintToken(t, f.owner)
	resp = f.do(t, "GET", "/negotiations/"+sess.ID+"/messages", ownerToken, nil)
	var transcript struct {
		Messages []json.RawMessage `json:"messages"`
	}
	decodeBody(t, resp, &transcript)
	if len(transcript.Messages) != 4 {
		t.Fatalf("expected 4 messages, got %d", len(transcript.Messages))
	}

	// Messaging a completed session is a conflict.
	if code, _ := post("one more thing"); code != http.StatusConflict {
		t.Fatalf("message after completion: expected 409, got %d", code)
	}
}

func TestRouterErrorMapping(t *testing.T) {
	f := newAPIFixture(t)
	investorToken := mintToken(t, f.investor)
	strangerToken := mintToken(t, uuid.New())

	// Open a session to probe against.
	resp := f.do(t, "POST", "/negotiations", investorToken, map[string]string{"listing_id": f.listing.String()})
	var sess struct {
		ID string `json:"id"`
	}
	decodeBody(t, resp, &sess)

	cases := []struct {
		name   string
		method string
		path   string
		token  string
		body   interface{}
		want   int
	}{
		{"stranger cannot view", "GET", "/negotiations/" + sess.ID, strangerToken, nil, http.StatusForbidden},
		{"unknown session", "GET", "/negotiations/" + uuid.NewString(), investorToken, nil, http.StatusNotFound},
		{"malformed id", "GET", "/negotiations/not-a-uuid", investorToken, nil, http.StatusBadRequest},
		{"missing listing_id", "POST", "/negotiations", investorToken, map[string]string{}, http.StatusBadRequest},
		{"message before activation", "POST", "/negotiations/" + sess.ID + "/messages", investorToken,
			map[string]string{"content": "hi"}, http.StatusConflict},
		{"finalize without agreement", "POST", "/negotiations/" + sess.ID + "/finalize", investorToken, nil, http.StatusConflict},
		{"owner opening own listing", "POST", "/negotiations", mintToken(t, f.owner),
			map[string]string{"listing_id": f.listing.String()}, http.StatusForbidden},
	}

	for _, tc := range cases {
		resp := f.do(t, tc.method, tc.path, tc.token, tc.body)
		resp.Body.Close()
		if resp.StatusCode != tc.want {
			t.Errorf("%s: expected %d, got %d", tc.name, tc.want, resp.StatusCode)
		}
	}
}

func TestRouterRejectsBadTokens(t *testing.T) {
	f := newAPIFixture(t)

	// Wrong signing key.
	claims := jwt.MapClaims{"user_id": uuid.NewString(), "exp": time.Now().Add(time.Hour).Unix()}
	forged, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("wrong-secret"))
	if err != nil {
		t.Fatal(err)
	}

	for name, token := range map[string]string{
		"forged":  forged,
		"garbage": "not.a.jwt",
	} {
		resp := f.do(t, "GET", "/negotiations/"+uuid.NewString(), token, nil)
		resp.Body.Close()
		if resp.StatusCode != http.StatusUnauthorized {
			t.Errorf("%s token: expected 401, got %d", name, resp.StatusCode)
		}
	}
}

func TestMetricsEndpoint(t *testing.T) {
	f := newAPIFixture(t)

	resp, err := f.server.Client().Get(f.server.URL + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
}

func TestStatsEndpoint(t *testing.T) {
	f := newAPIFixture(t)
	token := mintToken(t, f.investor)

	resp := f.do(t, "POST", "/negotiations", token, map[string]string{"listing_id": f.listing.String()})
	resp.Body.Close()

	resp, err := f.server.Client().Get(f.server.URL + "/stats")
	if err != nil {
		t.Fatal(err)
	}
	var stats struct {
		Sessions map[string]int64 `json:"sessions"`
		Total    int64            `json:"total"`
	}
	decodeBody(t, resp, &stats)
	if stats.Total != 1 || stats.Sessions["pending"] != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}
