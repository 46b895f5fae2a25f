// Package bithrah provides a client for the negotiation engine API.
package bithrah

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"
)

// Client is a negotiation engine API client. Token is an HS256 bearer
// token minted by the platform (or cmd/token during development).
type Client struct {
	BaseURL    string
	Token      string
	HTTPClient *http.Client
}

// NewClient creates a new client.
func NewClient(baseURL, token string) *Client {
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}
	return &Client{
		BaseURL:    baseURL,
		Token:      token,
		HTTPClient: &http.Client{Timeout: 60 * time.Second},
	}
}

// doRequest performs an HTTP request, attaching the bearer token when set.
func (c *Client) doRequest(method, path string, body []byte) ([]byte, error) {
	req, err := http.NewRequest(method, c.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode >= 400 {
		var errResp struct {
			Error string `json:"error"`
		}
		json.Unmarshal(respBody, &errResp)
		return nil, fmt.Errorf("api error %d: %s", resp.StatusCode, errResp.Error)
	}

	return respBody, nil
}

// Terms is a structured investment proposal.
type Terms struct {
	InvestmentAmount string `json:"investment_amount"`
	EquityPct        string `json:"equity_pct"`
	TimelineMonths   int    `json:"timeline_months"`
}

// Session represents a negotiation session.
type Session struct {
	ID               string     `json:"id"`
	ListingID        string     `json:"listing_id"`
	InitiatorID      string     `json:"initiator_id"`
	OwnerID          string     `json:"owner_id"`
	Status           string     `json:"status"`
	WindowStart      *time.Time `json:"window_start,omitempty"`
	WindowEnd        *time.Time `json:"window_end,omitempty"`
	DepositAmount    string     `json:"deposit_amount"`
	DepositStatus    string     `json:"deposit_status"`
	ProposedTerms    *Terms     `json:"proposed_terms,omitempty"`
	AgreementReached bool       `json:"agreement_reached"`
	AgreedTerms      *Terms     `json:"agreed_terms,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
	CompletedAt      *time.Time `json:"completed_at,omitempty"`
}

// Message is one entry in a session transcript.
type Message struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	Sender    string    `json:"sender"`
	Content   string    `json:"content"`
	Flagged   bool      `json:"flagged"`
	CreatedAt time.Time `json:"created_at"`
}

// Settlement represents one payout issued at completion.
type Settlement struct {
	ID            string    `json:"id"`
	SessionID     string    `json:"session_id"`
	BeneficiaryID string    `json:"beneficiary_id"`
	Kind          string    `json:"kind"`
	Amount        string    `json:"amount"`
	Rate          string    `json:"rate"`
	BaseAmount    string    `json:"base_amount"`
	Status        string    `json:"status"`
	CreatedAt     time.Time `json:"created_at"`
}

// OpenRequest is the request body for opening a negotiation.
type OpenRequest struct {
	ListingID string `json:"listing_id"`
}

// Open opens a negotiation session on a listing.
func (c *Client) Open(listingID string) (*Session, error) {
	body, _ := json.Marshal(OpenRequest{ListingID: listingID})
	respBody, err := c.doRequest("POST", "/negotiations", body)
	if err != nil {
		return nil, err
	}

	var sess Session
	if err := json.Unmarshal(respBody, &sess); err != nil {
		return nil, err
	}
	return &sess, nil
}

// ConfirmDeposit confirms the deposit and activates the session.
func (c *Client) ConfirmDeposit(sessionID string) (*Session, error) {
	respBody, err := c.doRequest("POST", "/negotiations/"+sessionID+"/deposit", nil)
	if err != nil {
		return nil, err
	}

	var sess Session
	if err := json.Unmarshal(respBody, &sess); err != nil {
		return nil, err
	}
	return &sess, nil
}

// PostMessageRequest is the request body for posting a message.
type PostMessageRequest struct {
	Content string `json:"content"`
}

// PostMessageResponse pairs the counterparty reply with the session state.
type PostMessageResponse struct {
	Reply   *Message `json:"reply"`
	Session *Session `json:"session"`
}

// PostMessage posts a message and returns the counterparty's reply.
func (c *Client) PostMessage(sessionID, content string) (*PostMessageResponse, error) {
	body, _ := json.Marshal(PostMessageRequest{Content: content})
	respBody, err := c.doRequest("POST", "/negotiations/"+sessionID+"/messages", body)
	if err != nil {
		return nil, err
	}

	var resp PostMessageResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// MessagesResponse is the response from fetching a transcript.
type MessagesResponse struct {
	Messages []Message `json:"messages"`
}

// GetMessages retrieves the session transcript.
func (c *Client) GetMessages(sessionID string, limit int) (*MessagesResponse, error) {
	path := "/negotiations/" + sessionID + "/messages"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}

	respBody, err := c.doRequest("GET", path, nil)
	if err != nil {
		return nil, err
	}

	var resp MessagesResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GetSession retrieves a session.
func (c *Client) GetSession(sessionID string) (*Session, error) {
	respBody, err := c.doRequest("GET", "/negotiations/"+sessionID, nil)
	if err != nil {
		return nil, err
	}

	var sess Session
	if err := json.Unmarshal(respBody, &sess); err != nil {
		return nil, err
	}
	return &sess, nil
}

// Cancel cancels a pending or active session.
func (c *Client) Cancel(sessionID string) (*Session, error) {
	respBody, err := c.doRequest("POST", "/negotiations/"+sessionID+"/cancel", nil)
	if err != nil {
		return nil, err
	}

	var sess Session
	if err := json.Unmarshal(respBody, &sess); err != nil {
		return nil, err
	}
	return &sess, nil
}

// FinalizeResponse is the response from finalizing a session.
type FinalizeResponse struct {
	Session     *Session     `json:"session"`
	Settlements []Settlement `json:"settlements"`
}

// Finalize completes a session with a reached agreement.
func (c *Client) Finalize(sessionID string) (*FinalizeResponse, error) {
	respBody, err := c.doRequest("POST", "/negotiations/"+sessionID+"/finalize", nil)
	if err != nil {
		return nil, err
	}

	var resp FinalizeResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// HealthResponse is the response from the health endpoint.
type HealthResponse struct {
	Status    string                 `json:"status"`
	Version   string                 `json:"version"`
	Checks    map[string]interface{} `json:"checks"`
	Timestamp string                 `json:"timestamp"`
}

// Health checks server health.
func (c *Client) Health() (*HealthResponse, error) {
	respBody, err := c.doRequest("GET", "/health", nil)
	if err != nil {
		return nil, err
	}

	var resp HealthResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}
