package output

import (
	"context"

	"github.com/splitledger/payment-confirm/internal/core"
)

// StatusSource is an output port for one view of an operation's status.
// Poll makes a single non-blocking request. Network errors, non-2xx
// responses, and malformed payloads all surface as errors wrapping
// core.ErrSourceUnavailable so the reconciler can tell "source says FAILED"
// apart from "source could not be reached".
type StatusSource interface {
	Poll(ctx context.Context, reference string) (*core.StatusSnapshot, error)
}

// PaymentGateway is the external gateway: the primary status source plus
// payment-intent creation for handoff.
type PaymentGateway interface {
	StatusSource

	// CreateIntent registers a payment with the gateway and returns the
	// correlation reference and the URL the user authorizes at.
	CreateIntent(ctx context.Context, req CreateIntentRequest) (*PaymentIntent, error)
}

// CreateIntentRequest describes the payment to register with the gateway.
type CreateIntentRequest struct {
	Kind        core.OperationKind
	Amount      string
	CallbackURL string // where the gateway sends the user back to
}

// PaymentIntent is the gateway's handle on a registered payment.
type PaymentIntent struct {
	Reference   string
	ExternalURL string
}
