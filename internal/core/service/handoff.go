package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/splitledger/payment-confirm/internal/core"
	"github.com/splitledger/payment-confirm/internal/port/input"
	"github.com/splitledger/payment-confirm/internal/port/output"
)

// ConfirmationServiceImpl implements the ConfirmationService input port.
type ConfirmationServiceImpl struct {
	store         output.PendingOperationStore
	outcomes      output.OutcomeStore
	gateway       output.PaymentGateway
	messaging     output.ConfirmationMessaging
	publicBaseURL string
	logger        *slog.Logger
}

// NewConfirmationService creates a new confirmation service
func NewConfirmationService(
	store output.PendingOperationStore,
	outcomes output.OutcomeStore,
	gateway output.PaymentGateway,
	messaging output.ConfirmationMessaging,
	publicBaseURL string,
	logger *slog.Logger,
) input.ConfirmationService {
	return &ConfirmationServiceImpl{
		store:         store,
		outcomes:      outcomes,
		gateway:       gateway,
		messaging:     messaging,
		publicBaseURL: strings.TrimRight(publicBaseURL, "/"),
		logger:        logger,
	}
}

// Begin validates the request, registers a payment intent with the gateway,
// persists the PendingOperation before any navigation can happen, and asks
// the worker to start confirming.
func (s *ConfirmationServiceImpl) Begin(ctx context.Context, req input.BeginRequest) (*input.BeginResponse, error) {
	if err := validateBegin(req); err != nil {
		return nil, err
	}

	intent, err := s.gateway.CreateIntent(ctx, output.CreateIntentRequest{
		Kind:        req.Kind,
		Amount:      req.Amount,
		CallbackURL: s.publicBaseURL + "/api/v1/operations/return",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create payment intent: %w", err)
	}

	// The record must be durable before the user leaves; it is the only
	// evidence of unfinished business after the navigation away.
	op := &core.PendingOperation{
		Reference:  intent.Reference,
		Kind:       req.Kind,
		TargetID:   req.TargetID,
		Amount:     req.Amount,
		ReturnPath: req.ReturnPath,
		CreatedAt:  time.Now(),
	}
	if err := s.store.Put(ctx, op); err != nil {
		return nil, fmt.Errorf("failed to persist pending operation: %w", err)
	}

	if err := s.messaging.PublishConfirmationRequested(op.Reference); err != nil {
		// The record exists, so the sweep will still adopt the operation;
		// surface the degraded handoff anyway.
		return nil, fmt.Errorf("operation recorded but failed to request confirmation: %w", err)
	}

	s.logger.Info("payment handed off",
		"reference", op.Reference,
		"kind", op.Kind,
		"amount", op.Amount,
	)
	return &input.BeginResponse{
		Reference:   intent.Reference,
		ExternalURL: intent.ExternalURL,
	}, nil
}

// Resume re-requests a confirmation run after the user returned from the
// gateway. A missing record is reported as core.ErrNoPendingOperation so the
// caller can treat the return as a no-op redirect.
func (s *ConfirmationServiceImpl) Resume(ctx context.Context, reference string) (*core.PendingOperation, error) {
	op, err := s.store.Get(ctx, reference)
	if err != nil {
		return nil, err
	}
	if err := s.messaging.PublishConfirmationRequested(reference); err != nil {
		return nil, fmt.Errorf("failed to request confirmation: %w", err)
	}
	return op, nil
}

// GetStatus reports the externally visible state of an operation: a
// recorded terminal outcome wins, then a live pending record, then
// core.ErrNoPendingOperation.
func (s *ConfirmationServiceImpl) GetStatus(ctx context.Context, reference string) (*input.OperationStatus, error) {
	op, opErr := s.store.Get(ctx, reference)

	if outcome, err := s.outcomes.GetOutcome(ctx, reference); err == nil {
		status := &input.OperationStatus{
			Reference: reference,
			State:     stateForOutcome(outcome.Status),
			Outcome:   outcome,
		}
		if opErr == nil {
			status.Kind = op.Kind
			// A pending record alongside a TIMED_OUT outcome means the
			// operation is still resolvable; report it as in progress.
			if outcome.Status == core.OutcomeTimedOut {
				status.State = core.StateProcessing
			}
		}
		return status, nil
	} else if !errors.Is(err, core.ErrNoOutcome) {
		return nil, err
	}

	if opErr != nil {
		return nil, opErr
	}
	return &input.OperationStatus{
		Reference: reference,
		Kind:      op.Kind,
		State:     core.StateProcessing,
	}, nil
}

func stateForOutcome(status core.OutcomeStatus) core.ConfirmationState {
	if status == core.OutcomeConfirmed {
		return core.StateSucceeded
	}
	return core.StateFailed
}

func validateBegin(req input.BeginRequest) error {
	if !req.Kind.Valid() {
		return fmt.Errorf("%w: kind must be DEPOSIT_WALLET, DEPOSIT_EVENT or EXPENSE_PAYMENT", core.ErrInvalidOperation)
	}
	if req.Kind.NeedsTarget() && strings.TrimSpace(req.TargetID) == "" {
		return fmt.Errorf("%w: target id is required for %s", core.ErrInvalidOperation, req.Kind)
	}
	if !req.Kind.NeedsTarget() && strings.TrimSpace(req.TargetID) != "" {
		return fmt.Errorf("%w: target id must be empty for wallet top-ups", core.ErrInvalidOperation)
	}
	amount, err := strconv.ParseFloat(strings.TrimSpace(req.Amount), 64)
	if err != nil || math.IsNaN(amount) || math.IsInf(amount, 0) || amount <= 0 {
		return fmt.Errorf("%w: amount must be a finite decimal greater than zero", core.ErrInvalidOperation)
	}
	if strings.TrimSpace(req.ReturnPath) == "" {
		return fmt.Errorf("%w: return path is required", core.ErrInvalidOperation)
	}
	return nil
}
