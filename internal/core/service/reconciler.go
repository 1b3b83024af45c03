package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/splitledger/payment-confirm/internal/core"
	"github.com/splitledger/payment-confirm/internal/port/output"
)

// Reconciler turns the status sources' possibly-conflicting views into one
// canonical outcome and, on success, applies the pending side effect exactly
// once from this client's perspective.
type Reconciler struct {
	store    output.PendingOperationStore
	outcomes output.OutcomeStore
	gateway  output.StatusSource
	tracker  output.StatusSource
	effects  output.EffectApplier
	logger   *slog.Logger
}

// NewReconciler creates a reconciler over the two status sources.
func NewReconciler(
	store output.PendingOperationStore,
	outcomes output.OutcomeStore,
	gateway output.StatusSource,
	tracker output.StatusSource,
	effects output.EffectApplier,
	logger *slog.Logger,
) *Reconciler {
	return &Reconciler{
		store:    store,
		outcomes: outcomes,
		gateway:  gateway,
		tracker:  tracker,
		effects:  effects,
		logger:   logger,
	}
}

// Resolve runs one polling pass. The gateway is always evaluated first; the
// tracker is consulted only when the gateway errored or reported a
// non-terminal state, and a terminal tracker state wins because it reflects
// server-confirmed state rather than a possibly-stale gateway view.
//
// Returns a terminal snapshot, or (nil, nil) while the operation is still
// pending, or an error wrapping core.ErrSourceUnavailable when neither
// source could be reached.
func (r *Reconciler) Resolve(ctx context.Context, reference string) (*core.StatusSnapshot, error) {
	gwSnap, gwErr := r.gateway.Poll(ctx, reference)
	if gwErr == nil && gwSnap.State.Terminal() {
		confirmPolls.WithLabelValues("gateway", "terminal").Inc()
		return gwSnap, nil
	}
	if gwErr != nil {
		confirmPolls.WithLabelValues("gateway", "unavailable").Inc()
		r.logger.Debug("gateway poll failed", "reference", reference, "error", gwErr)
	} else {
		confirmPolls.WithLabelValues("gateway", "nonterminal").Inc()
	}

	trSnap, trErr := r.tracker.Poll(ctx, reference)
	if trErr == nil && trSnap.State.Terminal() {
		confirmPolls.WithLabelValues("tracker", "terminal").Inc()
		return trSnap, nil
	}
	if trErr != nil {
		confirmPolls.WithLabelValues("tracker", "unavailable").Inc()
	} else {
		confirmPolls.WithLabelValues("tracker", "nonterminal").Inc()
	}

	if gwErr != nil && trErr != nil {
		return nil, fmt.Errorf("%w: gateway: %v; tracker: %v", core.ErrSourceUnavailable, gwErr, trErr)
	}

	// At least one source answered and neither is terminal: keep polling.
	return nil, nil
}

// Apply converts a terminal snapshot into a ConfirmationOutcome. On
// SUCCEEDED it invokes the confirmation call matching the operation kind and
// clears the pending record afterwards; if the call fails the record is
// deliberately left in place so a later tick (or a restart) retries the
// call. On FAILED/CANCELLED no effect is applied and the record is cleared.
func (r *Reconciler) Apply(ctx context.Context, op *core.PendingOperation, snap *core.StatusSnapshot) (*core.ConfirmationOutcome, error) {
	switch snap.State {
	case core.StatusSucceeded:
		return r.applyConfirmed(ctx, op, snap)
	case core.StatusFailed, core.StatusCancelled:
		outcome := &core.ConfirmationOutcome{
			Reference:  op.Reference,
			Status:     core.OutcomeFailed,
			ResolvedAt: time.Now(),
		}
		if err := r.retire(ctx, op.Reference, outcome); err != nil {
			return nil, err
		}
		r.logger.Info("operation failed at source",
			"reference", op.Reference,
			"source", snap.Source,
			"state", snap.State,
		)
		return outcome, nil
	default:
		return nil, fmt.Errorf("cannot apply non-terminal state %s", snap.State)
	}
}

func (r *Reconciler) applyConfirmed(ctx context.Context, op *core.PendingOperation, snap *core.StatusSnapshot) (*core.ConfirmationOutcome, error) {
	// Local at-most-once guard: if the record is already gone, another run
	// resolved this reference and the effect must not be applied again.
	// Server-side idempotency remains the real guarantee.
	if _, err := r.store.Get(ctx, op.Reference); err != nil {
		if errors.Is(err, core.ErrNoPendingOperation) {
			if recorded, rerr := r.outcomes.GetOutcome(ctx, op.Reference); rerr == nil {
				return recorded, nil
			}
			return &core.ConfirmationOutcome{
				Reference:  op.Reference,
				Status:     core.OutcomeConfirmed,
				ResolvedAt: time.Now(),
			}, nil
		}
		return nil, err
	}

	effectID, err := r.applyEffect(ctx, op)
	if err != nil {
		// The payment succeeded but the local effect did not apply. Keep the
		// pending record so the confirmation call is retried.
		return nil, err
	}

	outcome := &core.ConfirmationOutcome{
		Reference:       op.Reference,
		Status:          core.OutcomeConfirmed,
		AppliedEffectID: effectID,
		ResolvedAt:      time.Now(),
	}
	if err := r.retire(ctx, op.Reference, outcome); err != nil {
		return nil, err
	}
	r.logger.Info("operation confirmed",
		"reference", op.Reference,
		"kind", op.Kind,
		"effectId", effectID,
		"transactionHash", snap.TransactionHash,
	)
	return outcome, nil
}

func (r *Reconciler) applyEffect(ctx context.Context, op *core.PendingOperation) (string, error) {
	switch op.Kind {
	case core.KindDepositWallet:
		return r.effects.CreditWallet(ctx, op.Reference)
	case core.KindDepositEvent:
		return r.effects.ConfirmEventDeposit(ctx, op.TargetID, op.Reference)
	case core.KindExpensePayment:
		return r.effects.ConfirmExpensePayment(ctx, op.TargetID, op.Reference)
	default:
		return "", fmt.Errorf("unknown operation kind %q", op.Kind)
	}
}

// retire records the outcome and removes the pending record. A failed
// outcome write is logged and tolerated (the record is supplementary); a
// failed clear is returned so the caller retries, which is safe because the
// confirmation calls are idempotent.
func (r *Reconciler) retire(ctx context.Context, reference string, outcome *core.ConfirmationOutcome) error {
	if err := r.outcomes.Record(ctx, outcome); err != nil {
		r.logger.Warn("failed to record outcome", "reference", reference, "error", err)
	}
	if err := r.store.Clear(ctx, reference); err != nil {
		return fmt.Errorf("failed to retire pending operation: %w", err)
	}
	return nil
}

// RecordTimeout records a TIMED_OUT outcome without clearing the pending
// record: giving up waiting is not a failure, and the operation stays open
// for a manual retry or the sweep.
func (r *Reconciler) RecordTimeout(ctx context.Context, op *core.PendingOperation) *core.ConfirmationOutcome {
	outcome := &core.ConfirmationOutcome{
		Reference:  op.Reference,
		Status:     core.OutcomeTimedOut,
		ResolvedAt: time.Now(),
	}
	if err := r.outcomes.Record(ctx, outcome); err != nil {
		r.logger.Warn("failed to record timeout outcome", "reference", op.Reference, "error", err)
	}
	return outcome
}
