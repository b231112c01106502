package agentpay

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"time"
)

// DefaultHTTPTimeout defines the timeout used by clients created without a
// custom http.Client. It is intentionally short to avoid hanging network calls.
const DefaultHTTPTimeout = 15 * time.Second

// Client wraps the HTTP interactions with the AgentPay Chain REST API.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
}

// Agent describes an agent profile as reported by the daemon.
type Agent struct {
	WalletAddress string         `json:"wallet_address"`
	Name          string         `json:"name"`
	Personality   map[string]any `json:"personality,omitempty"`
	Lore          map[string]any `json:"lore,omitempty"`
	Behavior      map[string]any `json:"behavior,omitempty"`
	SecretTask    map[string]any `json:"secret_task,omitempty"`
	CreatedAt     string         `json:"created_at,omitempty"`
	ExpiresAt     string         `json:"expires_at,omitempty"`
	PrizePool     float64        `json:"prize_pool,omitempty"`
	ImageURL      string         `json:"image_url,omitempty"`
	CostPerPrompt float64        `json:"cost_per_prompt,omitempty"`
}

// ChatRequest drives one paid conversation turn. Leave SessionID empty to
// open a fresh session with the agent identified by AgentWallet.
type ChatRequest struct {
	SessionID   string `json:"session_id,omitempty"`
	AgentWallet string `json:"agent_wallet,omitempty"`
	Message     string `json:"message"`
}

// ChatResponse is the outcome of a paid conversation turn.
type ChatResponse struct {
	SessionID           string  `json:"session_id"`
	State               string  `json:"state"`
	Reply               string  `json:"reply"`
	SecretTaskCompleted bool    `json:"secret_task_completed"`
	AgentBalance        float64 `json:"agent_balance"`
	UserBalance         float64 `json:"user_balance"`
}

// CreateAgentRequest contains everything needed to register and fund a new
// agent. PrizePool is expressed in native units (SOL).
type CreateAgentRequest struct {
	Name          string         `json:"name"`
	Personality   map[string]any `json:"personality,omitempty"`
	Lore          map[string]any `json:"lore,omitempty"`
	Behavior      map[string]any `json:"behavior,omitempty"`
	SecretTask    map[string]any `json:"secret_task,omitempty"`
	ExpiresAt     string         `json:"expires_at,omitempty"`
	ImageURL      string         `json:"image_url,omitempty"`
	CostPerPrompt float64        `json:"cost_per_prompt,omitempty"`
	PrizePool     float64        `json:"prize_pool"`
}

// CreateAgentResponse reports the final state of a creation flow together
// with the registered agent profile, when registration succeeded.
type CreateAgentResponse struct {
	State string `json:"state"`
	Agent *Agent `json:"agent,omitempty"`
}

// BalanceSnapshot is the last observed balance of a watched wallet.
type BalanceSnapshot struct {
	Address    string    `json:"address"`
	Lamports   uint64    `json:"lamports"`
	ObservedAt time.Time `json:"observed_at"`
}

// PaymentRecord is one row of the payment ledger.
type PaymentRecord struct {
	IntentID  string `json:"intent_id"`
	Purpose   string `json:"purpose"`
	From      string `json:"from"`
	To        string `json:"to"`
	Lamports  uint64 `json:"lamports"`
	Blockhash string `json:"blockhash"`
	Signature string `json:"signature,omitempty"`
	Status    string `json:"status"`
	CreatedAt int64  `json:"created_at"`
	UpdatedAt int64  `json:"updated_at"`
}

// APIError represents server side validation or internal errors.
type APIError struct {
	StatusCode int
	Code       string `json:"code"`
	Message    string `json:"error"`
	State      string `json:"state,omitempty"`
}

func (e *APIError) Error() string {
	if e == nil {
		return ""
	}
	if e.Code != "" {
		return fmt.Sprintf("agentpay api error (%d): %s - %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("agentpay api error (%d): %s", e.StatusCode, e.Message)
}

// NewClient instantiates a client for the AgentPay Chain API. When httpClient
// is nil, a default client with a sensible timeout is used.
func NewClient(rawURL string, httpClient *http.Client) *Client {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		panic(fmt.Sprintf("invalid base url: %v", err))
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultHTTPTimeout}
	}
	return &Client{baseURL: parsed, httpClient: httpClient}
}

// Chat performs one paid conversation turn. Payment confirmation happens
// server side before the agent backend is called, so this blocks for the
// whole pay-then-chat round trip.
func (c *Client) Chat(ctx context.Context, req ChatRequest) (ChatResponse, error) {
	var resp ChatResponse
	if err := c.post(ctx, "/api/v1/chat", req, &resp); err != nil {
		return ChatResponse{}, err
	}
	return resp, nil
}

// RetryDelivery redelivers the already-paid message of a session stuck in
// the reply_failed state. No new payment is made.
func (c *Client) RetryDelivery(ctx context.Context, sessionID string) (ChatResponse, error) {
	var resp ChatResponse
	payload := struct {
		SessionID string `json:"session_id"`
	}{SessionID: sessionID}
	if err := c.post(ctx, "/api/v1/chat/retry", payload, &resp); err != nil {
		return ChatResponse{}, err
	}
	return resp, nil
}

// ListAgents fetches all agents known to the backend.
func (c *Client) ListAgents(ctx context.Context) ([]Agent, error) {
	var resp struct {
		Agents []Agent `json:"agents"`
	}
	if err := c.get(ctx, "/api/v1/agents", &resp); err != nil {
		return nil, err
	}
	return resp.Agents, nil
}

// CreateAgent runs the full register-then-fund flow. A non-nil error may
// still carry a response with the flow state and the registered agent; the
// funding_failed state means the agent exists but its prize pool does not.
func (c *Client) CreateAgent(ctx context.Context, req CreateAgentRequest) (CreateAgentResponse, error) {
	var resp CreateAgentResponse
	if err := c.post(ctx, "/api/v1/agents", req, &resp); err != nil {
		return resp, err
	}
	return resp, nil
}

// Balances returns the last observed balances of all watched wallets.
func (c *Client) Balances(ctx context.Context) ([]BalanceSnapshot, error) {
	var resp struct {
		Balances []BalanceSnapshot `json:"balances"`
	}
	if err := c.get(ctx, "/api/v1/balances", &resp); err != nil {
		return nil, err
	}
	return resp.Balances, nil
}

// Payments returns the most recent ledger entries, newest first.
func (c *Client) Payments(ctx context.Context, limit int) ([]PaymentRecord, error) {
	endpoint := "/api/v1/payments"
	if limit > 0 {
		endpoint += "?limit=" + strconv.Itoa(limit)
	}
	var resp struct {
		Payments []PaymentRecord `json:"payments"`
	}
	if err := c.get(ctx, endpoint, &resp); err != nil {
		return nil, err
	}
	return resp.Payments, nil
}

func (c *Client) post(ctx context.Context, endpoint string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	req, err := c.newRequest(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) get(ctx context.Context, endpoint string, out any) error {
	req, err := c.newRequest(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *Client) newRequest(ctx context.Context, method, endpoint string, body io.Reader) (*http.Request, error) {
	parsed, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("parse endpoint: %w", err)
	}
	rel := &url.URL{Path: path.Join(c.baseURL.Path, parsed.Path), RawQuery: parsed.RawQuery}
	u := c.baseURL.ResolveReference(rel)
	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	return req, nil
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("perform request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("read error response: %w", err)
		}
		if len(data) > 0 {
			_ = json.Unmarshal(data, apiErr)
		}
		if apiErr.Message == "" {
			apiErr.Message = string(bytes.TrimSpace(data))
		}
		return apiErr
	}

	if out == nil {
		return nil
	}
	decoder := json.NewDecoder(resp.Body)
	if err := decoder.Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
