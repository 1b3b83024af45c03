package input

import (
	"context"

	"github.com/splitledger/payment-confirm/internal/core"
)

// ConfirmationService is an input port (primary port) for payment handoff
// and confirmation status. Primary adapters (HTTP handlers) will use this.
type ConfirmationService interface {
	// Begin creates a payment intent at the gateway, persists the
	// PendingOperation, and requests a confirmation run. The caller is
	// responsible for navigating the user to ExternalURL.
	Begin(ctx context.Context, req BeginRequest) (*BeginResponse, error)

	// Resume re-requests a confirmation run for an operation the user just
	// returned from. Returns core.ErrNoPendingOperation when the record is
	// absent (already resolved or never created); callers treat that as a
	// no-op.
	Resume(ctx context.Context, reference string) (*core.PendingOperation, error)

	// GetStatus reports the current view of an operation: a recorded terminal
	// outcome, or the live pending record.
	GetStatus(ctx context.Context, reference string) (*OperationStatus, error)
}

// BeginRequest describes a handoff to the external gateway.
type BeginRequest struct {
	Kind       core.OperationKind
	TargetID   string
	Amount     string
	ReturnPath string
}

// BeginResponse carries the correlation reference and the URL the user must
// be sent to for authorization.
type BeginResponse struct {
	Reference   string
	ExternalURL string
}

// OperationStatus is the externally visible state of one operation.
type OperationStatus struct {
	Reference string
	Kind      core.OperationKind
	State     core.ConfirmationState
	Outcome   *core.ConfirmationOutcome // set once terminal
}
