package output

import "context"

// EffectApplier is an output port for the idempotent confirmation calls on
// the group-ledger backend, one per operation kind. Each call is safe to
// repeat for the same reference (server-side idempotency is mandatory) and
// returns the identifier of the applied effect. Failures wrap
// core.ErrEffectNotApplied.
type EffectApplier interface {
	// CreditWallet credits the member's wallet for a confirmed top-up.
	CreditWallet(ctx context.Context, reference string) (string, error)

	// ConfirmEventDeposit registers a confirmed deposit on an event.
	ConfirmEventDeposit(ctx context.Context, targetID, reference string) (string, error)

	// ConfirmExpensePayment records a confirmed settlement of an expense.
	ConfirmExpensePayment(ctx context.Context, targetID, reference string) (string, error)
}
