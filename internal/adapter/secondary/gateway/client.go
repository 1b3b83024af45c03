// Package gateway is the secondary adapter for the external payment
// gateway: payment-intent creation at handoff time and the primary status
// source during confirmation.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/splitledger/payment-confirm/internal/core"
	"github.com/splitledger/payment-confirm/internal/port/output"
)

// Client talks to the gateway's REST API.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewClient creates a gateway client.
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

type createIntentRequest struct {
	Kind        string `json:"kind"`
	Amount      string `json:"amount"`
	CallbackURL string `json:"callback_url"`
}

type createIntentResponse struct {
	Reference   string `json:"reference"`
	RedirectURL string `json:"redirect_url"`
}

type statusResponse struct {
	Status          string `json:"status"`
	Amount          string `json:"amount"`
	TransactionHash string `json:"transaction_hash,omitempty"`
}

// CreateIntent registers a payment intent with the gateway. An idempotency
// key is attached so a retried handoff does not create a second intent.
func (c *Client) CreateIntent(ctx context.Context, req output.CreateIntentRequest) (*output.PaymentIntent, error) {
	body, err := json.Marshal(createIntentRequest{
		Kind:        string(req.Kind),
		Amount:      req.Amount,
		CallbackURL: req.CallbackURL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal intent request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/payment-intents", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build intent request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	httpReq.Header.Set("Idempotency-Key", uuid.NewString())

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("gateway intent request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("gateway intent request returned %d", resp.StatusCode)
	}

	var intent createIntentResponse
	if err := json.NewDecoder(resp.Body).Decode(&intent); err != nil {
		return nil, fmt.Errorf("failed to decode intent response: %w", err)
	}
	if intent.Reference == "" || intent.RedirectURL == "" {
		return nil, fmt.Errorf("gateway intent response missing reference or redirect url")
	}

	return &output.PaymentIntent{
		Reference:   intent.Reference,
		ExternalURL: intent.RedirectURL,
	}, nil
}

// Poll fetches the gateway's current view of an operation. Every failure
// mode (network, non-2xx, malformed payload, unknown status) wraps
// core.ErrSourceUnavailable.
func (c *Client) Poll(ctx context.Context, reference string) (*core.StatusSnapshot, error) {
	endpoint := c.baseURL + "/v1/payment-intents/" + url.PathEscape(reference)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to build status request: %v", core.ErrSourceUnavailable, err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: gateway unreachable: %v", core.ErrSourceUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: gateway status returned %d", core.ErrSourceUnavailable, resp.StatusCode)
	}

	var status statusResponse
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return nil, fmt.Errorf("%w: malformed gateway payload: %v", core.ErrSourceUnavailable, err)
	}

	state, err := normalizeStatus(status.Status)
	if err != nil {
		return nil, err
	}

	return &core.StatusSnapshot{
		State:           state,
		Amount:          status.Amount,
		TransactionHash: status.TransactionHash,
		Source:          "gateway",
	}, nil
}

// normalizeStatus maps the gateway vocabulary into the canonical enum at the
// boundary, so nothing downstream branches on raw gateway strings.
func normalizeStatus(raw string) (core.StatusState, error) {
	switch raw {
	case "INITIATED":
		return core.StatusInitiated, nil
	case "AWAITING_SIGNATURE":
		return core.StatusAwaitingSignature, nil
	case "PROCESSING":
		return core.StatusProcessing, nil
	case "SUCCEEDED":
		return core.StatusSucceeded, nil
	case "CANCELLED":
		return core.StatusCancelled, nil
	case "FAILED":
		return core.StatusFailed, nil
	default:
		return "", fmt.Errorf("%w: unknown gateway status %q", core.ErrSourceUnavailable, raw)
	}
}
