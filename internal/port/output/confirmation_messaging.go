package output

import "github.com/splitledger/payment-confirm/internal/core"

// ConfirmationMessaging is an output port (secondary port) for confirmation
// events. Secondary adapters (RabbitMQ implementations) will implement this.
type ConfirmationMessaging interface {
	// PublishConfirmationRequested asks the worker to run (or keep running)
	// a confirmation loop for the reference. Safe to publish more than once
	// per reference; the worker deduplicates.
	PublishConfirmationRequested(reference string) error

	// PublishOutcome announces a terminal outcome to downstream consumers.
	PublishOutcome(outcome *core.ConfirmationOutcome) error

	// Close closes the messaging connection.
	Close() error
}
