package payments

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"
)

// Gateway is the external checkout provider boundary. The provider
// hosts the checkout page; we only create, query and cancel links and
// receive confirmation through webhooks.
type Gateway interface {
	CreateLink(ctx context.Context, req CreateLinkRequest) (*CheckoutLink, error)
	GetLink(ctx context.Context, orderCode int64) (*CheckoutLink, error)
	CancelLink(ctx context.Context, orderCode int64, reason string) error
}

// CreateLinkRequest describes a checkout link to be created
type CreateLinkRequest struct {
	OrderCode   int64   `json:"orderCode"`
	Amount      float64 `json:"amount"`
	Description string  `json:"description"`
	ReturnURL   string  `json:"returnUrl"`
	CancelURL   string  `json:"cancelUrl"`
	Signature   string  `json:"signature"`
}

// CheckoutLink is the provider's view of a checkout session
type CheckoutLink struct {
	OrderCode   int64  `json:"orderCode"`
	CheckoutURL string `json:"checkoutUrl"`
	Status      string `json:"status"`
}

// GatewayClientConfig configures the HTTP gateway client
type GatewayClientConfig struct {
	BaseURL     string
	ClientID    string
	APIKey      string
	ChecksumKey string
	Timeout     time.Duration
}

// HTTPGateway talks to the hosted checkout provider over HTTPS with
// signed requests and a bounded timeout.
type HTTPGateway struct {
	baseURL     string
	clientID    string
	apiKey      string
	checksumKey string
	httpClient  *http.Client
}

// NewHTTPGateway creates a gateway client
func NewHTTPGateway(cfg GatewayClientConfig) *HTTPGateway {
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &HTTPGateway{
		baseURL:     cfg.BaseURL,
		clientID:    cfg.ClientID,
		apiKey:      cfg.APIKey,
		checksumKey: cfg.ChecksumKey,
		httpClient:  &http.Client{Timeout: cfg.Timeout},
	}
}

// gatewayEnvelope is the provider's standard response wrapper
type gatewayEnvelope struct {
	Code string          `json:"code"`
	Desc string          `json:"desc"`
	Data json.RawMessage `json:"data"`
}

// CreateLink creates a hosted checkout link for the order
func (g *HTTPGateway) CreateLink(ctx context.Context, req CreateLinkRequest) (*CheckoutLink, error) {
	req.Signature = signParams(g.checksumKey, map[string]string{
		"orderCode":   strconv.FormatInt(req.OrderCode, 10),
		"amount":      formatAmount(req.Amount),
		"description": req.Description,
		"returnUrl":   req.ReturnURL,
		"cancelUrl":   req.CancelURL,
	})

	var link CheckoutLink
	if err := g.post(ctx, "/v2/payment-requests", req, &link); err != nil {
		return nil, err
	}
	return &link, nil
}

// GetLink queries the current state of a checkout link
func (g *HTTPGateway) GetLink(ctx context.Context, orderCode int64) (*CheckoutLink, error) {
	url := fmt.Sprintf("%s/v2/payment-requests/%d", g.baseURL, orderCode)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build gateway request: %w", err)
	}
	g.setHeaders(httpReq)

	var link CheckoutLink
	if err := g.do(httpReq, &link); err != nil {
		return nil, err
	}
	return &link, nil
}

// CancelLink voids a pending checkout link at the provider
func (g *HTTPGateway) CancelLink(ctx context.Context, orderCode int64, reason string) error {
	body := map[string]string{"cancellationReason": reason}
	path := fmt.Sprintf("/v2/payment-requests/%d/cancel", orderCode)
	return g.post(ctx, path, body, nil)
}

func (g *HTTPGateway) post(ctx context.Context, path string, body interface{}, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal gateway request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build gateway request: %w", err)
	}
	g.setHeaders(httpReq)

	return g.do(httpReq, out)
}

func (g *HTTPGateway) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-client-id", g.clientID)
	req.Header.Set("x-api-key", g.apiKey)
}

func (g *HTTPGateway) do(req *http.Request, out interface{}) error {
	resp, err := g.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("gateway request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("gateway returned HTTP %d", resp.StatusCode)
	}

	var envelope gatewayEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return fmt.Errorf("failed to decode gateway response: %w", err)
	}
	if envelope.Code != webhookSuccessCode {
		return fmt.Errorf("gateway rejected request: code=%s desc=%s", envelope.Code, envelope.Desc)
	}

	if out != nil {
		if err := json.Unmarshal(envelope.Data, out); err != nil {
			return fmt.Errorf("failed to decode gateway response data: %w", err)
		}
	}
	return nil
}
