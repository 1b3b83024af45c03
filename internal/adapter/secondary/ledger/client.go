// Package ledger is the secondary adapter for the group-ledger backend: the
// internal tracker (fallback status source) and the idempotent confirmation
// calls that apply a confirmed payment's local effect.
package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/splitledger/payment-confirm/internal/core"
)

// Client talks to the ledger backend's internal API.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewClient creates a ledger client.
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

type trackedResponse struct {
	Status string `json:"status"`
	Amount string `json:"amount"`
}

type confirmRequest struct {
	Reference string `json:"reference"`
}

type confirmResponse struct {
	EffectID string `json:"effect_id"`
}

// Poll fetches the ledger's own record of an operation. This view can be
// ahead of the gateway when a server-side webhook already advanced the
// state. Failure modes wrap core.ErrSourceUnavailable.
func (c *Client) Poll(ctx context.Context, reference string) (*core.StatusSnapshot, error) {
	endpoint := c.baseURL + "/internal/v1/payments/" + url.PathEscape(reference)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to build tracker request: %v", core.ErrSourceUnavailable, err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: tracker unreachable: %v", core.ErrSourceUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: tracker status returned %d", core.ErrSourceUnavailable, resp.StatusCode)
	}

	var tracked trackedResponse
	if err := json.NewDecoder(resp.Body).Decode(&tracked); err != nil {
		return nil, fmt.Errorf("%w: malformed tracker payload: %v", core.ErrSourceUnavailable, err)
	}

	state, err := normalizeStatus(tracked.Status)
	if err != nil {
		return nil, err
	}

	return &core.StatusSnapshot{
		State:  state,
		Amount: tracked.Amount,
		Source: "tracker",
	}, nil
}

// normalizeStatus maps the tracker vocabulary into the canonical enum at the
// boundary. The tracker only distinguishes pending from the terminal states.
func normalizeStatus(raw string) (core.StatusState, error) {
	switch raw {
	case "pending":
		return core.StatusProcessing, nil
	case "confirmed":
		return core.StatusSucceeded, nil
	case "failed":
		return core.StatusFailed, nil
	case "cancelled":
		return core.StatusCancelled, nil
	default:
		return "", fmt.Errorf("%w: unknown tracker status %q", core.ErrSourceUnavailable, raw)
	}
}

// CreditWallet confirms a wallet top-up. Idempotent per reference.
func (c *Client) CreditWallet(ctx context.Context, reference string) (string, error) {
	return c.confirm(ctx, "/internal/v1/wallet/credits", reference)
}

// ConfirmEventDeposit confirms a deposit on an event. Idempotent per reference.
func (c *Client) ConfirmEventDeposit(ctx context.Context, targetID, reference string) (string, error) {
	return c.confirm(ctx, "/internal/v1/events/"+url.PathEscape(targetID)+"/deposits", reference)
}

// ConfirmExpensePayment confirms a settlement of an expense. Idempotent per reference.
func (c *Client) ConfirmExpensePayment(ctx context.Context, targetID, reference string) (string, error) {
	return c.confirm(ctx, "/internal/v1/expenses/"+url.PathEscape(targetID)+"/payments", reference)
}

func (c *Client) confirm(ctx context.Context, path, reference string) (string, error) {
	body, err := json.Marshal(confirmRequest{Reference: reference})
	if err != nil {
		return "", fmt.Errorf("%w: failed to marshal confirmation: %v", core.ErrEffectNotApplied, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("%w: failed to build confirmation request: %v", core.ErrEffectNotApplied, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("%w: ledger unreachable: %v", core.ErrEffectNotApplied, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return "", fmt.Errorf("%w: confirmation returned %d", core.ErrEffectNotApplied, resp.StatusCode)
	}

	var confirmed confirmResponse
	if err := json.NewDecoder(resp.Body).Decode(&confirmed); err != nil {
		return "", fmt.Errorf("%w: malformed confirmation response: %v", core.ErrEffectNotApplied, err)
	}
	if confirmed.EffectID == "" {
		return "", fmt.Errorf("%w: confirmation response missing effect id", core.ErrEffectNotApplied)
	}
	return confirmed.EffectID, nil
}
