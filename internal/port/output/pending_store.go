package output

import (
	"context"
	"time"

	"github.com/splitledger/payment-confirm/internal/core"
)

// PendingOperationStore is an output port (secondary port) for the durable
// record of in-flight operations. Secondary adapters (postgres, in-memory)
// will implement this. The store must survive process restarts in
// production; at most one record exists per reference.
type PendingOperationStore interface {
	// Put persists the record. Last write wins per reference: a new put with
	// the same reference overwrites the prior record.
	Put(ctx context.Context, op *core.PendingOperation) error

	// Get returns the record for a reference, or core.ErrNoPendingOperation.
	Get(ctx context.Context, reference string) (*core.PendingOperation, error)

	// Clear removes the record. Idempotent: clearing an absent record is not
	// an error.
	Clear(ctx context.Context, reference string) error

	// ListStale returns records created before olderThan, oldest first.
	// Used by the sweep to re-adopt operations nothing is confirming.
	ListStale(ctx context.Context, olderThan time.Time, limit int) ([]*core.PendingOperation, error)
}

// OutcomeStore records terminal confirmation outcomes, last write wins per
// reference. TIMED_OUT outcomes coexist with a still-present pending record
// until a later run resolves the operation for real.
type OutcomeStore interface {
	// Record persists the outcome, overwriting any prior outcome for the
	// same reference.
	Record(ctx context.Context, outcome *core.ConfirmationOutcome) error

	// GetOutcome returns the recorded outcome, or core.ErrNoOutcome.
	GetOutcome(ctx context.Context, reference string) (*core.ConfirmationOutcome, error)
}
