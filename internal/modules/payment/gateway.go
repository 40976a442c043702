// README: Payment gateway client; initialize/verify/refund consumed as a black box.
package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

type InitializeRequest struct {
	Reference string
	Amount    int64
	Currency  string
	Email     string
}

type InitializeResult struct {
	AuthorizationURL string
	ProviderRef      string
}

type VerifyResult struct {
	Status   string
	Amount   int64
	Currency string
}

// Gateway is the remote payment provider. Implementations must be safe for
// concurrent use.
type Gateway interface {
	Initialize(ctx context.Context, req InitializeRequest) (InitializeResult, error)
	Verify(ctx context.Context, reference string) (VerifyResult, error)
	Refund(ctx context.Context, providerRef string, amount int64) error
}

// HTTPGateway talks to a Paystack-compatible REST API.
type HTTPGateway struct {
	baseURL   string
	secretKey string
	client    *http.Client
}

func NewHTTPGateway(baseURL, secretKey string) *HTTPGateway {
	return &HTTPGateway{
		baseURL:   baseURL,
		secretKey: secretKey,
		client:    &http.Client{Timeout: 15 * time.Second},
	}
}

type gatewayEnvelope struct {
	Status  bool            `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func (g *HTTPGateway) Initialize(ctx context.Context, req InitializeRequest) (InitializeResult, error) {
	body := map[string]any{
		"reference": req.Reference,
		"amount":    req.Amount,
		"currency":  req.Currency,
		"email":     req.Email,
	}
	var data struct {
		AuthorizationURL string `json:"authorization_url"`
		AccessCode       string `json:"access_code"`
		Reference        string `json:"reference"`
	}
	if err := g.call(ctx, http.MethodPost, "/transaction/initialize", body, &data); err != nil {
		return InitializeResult{}, err
	}
	return InitializeResult{AuthorizationURL: data.AuthorizationURL, ProviderRef: data.Reference}, nil
}

func (g *HTTPGateway) Verify(ctx context.Context, reference string) (VerifyResult, error) {
	var data struct {
		Status   string `json:"status"`
		Amount   int64  `json:"amount"`
		Currency string `json:"currency"`
	}
	if err := g.call(ctx, http.MethodGet, "/transaction/verify/"+reference, nil, &data); err != nil {
		return VerifyResult{}, err
	}
	return VerifyResult{Status: data.Status, Amount: data.Amount, Currency: data.Currency}, nil
}

func (g *HTTPGateway) Refund(ctx context.Context, providerRef string, amount int64) error {
	body := map[string]any{
		"transaction": providerRef,
		"amount":      amount,
	}
	return g.call(ctx, http.MethodPost, "/refund", body, nil)
}

func (g *HTTPGateway) call(ctx context.Context, method, path string, body any, out any) error {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, g.baseURL+path, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+g.secretKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	defer resp.Body.Close()

	var env gatewayEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return fmt.Errorf("%w: decode response: %v", ErrUpstream, err)
	}
	if resp.StatusCode >= 400 || !env.Status {
		return fmt.Errorf("%w: %s (http %d)", ErrUpstream, env.Message, resp.StatusCode)
	}
	if out != nil {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return fmt.Errorf("%w: decode data: %v", ErrUpstream, err)
		}
	}
	return nil
}
