package core

import (
	"errors"
	"time"
)

// OperationKind identifies which local side effect a confirmed payment applies.
type OperationKind string

const (
	KindDepositWallet  OperationKind = "DEPOSIT_WALLET"
	KindDepositEvent   OperationKind = "DEPOSIT_EVENT"
	KindExpensePayment OperationKind = "EXPENSE_PAYMENT"
)

// Valid reports whether the kind is one of the supported operation kinds.
func (k OperationKind) Valid() bool {
	switch k {
	case KindDepositWallet, KindDepositEvent, KindExpensePayment:
		return true
	}
	return false
}

// NeedsTarget reports whether the kind requires a target id (event or expense).
// Wallet top-ups affect only the member's own wallet.
func (k OperationKind) NeedsTarget() bool {
	return k == KindDepositEvent || k == KindExpensePayment
}

// PendingOperation is the durable record of a payment handed off to the
// external gateway. It exists from handoff until a terminal outcome is
// produced; its absence means nothing is pending or resolution already
// completed and cleaned up.
type PendingOperation struct {
	Reference  string
	Kind       OperationKind
	TargetID   string // event or expense id, empty for wallet top-ups
	Amount     string // advisory decimal; authoritative amount comes from status sources
	ReturnPath string
	CreatedAt  time.Time
}

// StatusState is the canonical status vocabulary. Both status sources map
// their raw payloads into this enum at the boundary.
type StatusState string

const (
	StatusInitiated         StatusState = "INITIATED"
	StatusAwaitingSignature StatusState = "AWAITING_SIGNATURE"
	StatusProcessing        StatusState = "PROCESSING"
	StatusSucceeded         StatusState = "SUCCEEDED"
	StatusCancelled         StatusState = "CANCELLED"
	StatusFailed            StatusState = "FAILED"
)

// Terminal reports whether the state can no longer change at the source.
func (s StatusState) Terminal() bool {
	return s == StatusSucceeded || s == StatusCancelled || s == StatusFailed
}

// StatusSnapshot is one status source's view of an operation at poll time.
// Snapshots are produced fresh per poll and never persisted.
type StatusSnapshot struct {
	State           StatusState
	Amount          string
	TransactionHash string
	Source          string // "gateway" or "tracker", for logging
}

// OutcomeStatus is the terminal result of reconciliation.
type OutcomeStatus string

const (
	OutcomeConfirmed OutcomeStatus = "CONFIRMED"
	OutcomeFailed    OutcomeStatus = "FAILED"
	OutcomeTimedOut  OutcomeStatus = "TIMED_OUT"
)

// ConfirmationOutcome is the terminal result of a confirmation run.
// AppliedEffectID is set only when the outcome is CONFIRMED.
type ConfirmationOutcome struct {
	Reference       string
	Status          OutcomeStatus
	AppliedEffectID string
	ResolvedAt      time.Time
}

// ConfirmationState drives caller behavior while a confirmation is running.
type ConfirmationState string

const (
	StateLoading    ConfirmationState = "LOADING"    // no snapshot seen yet
	StateProcessing ConfirmationState = "PROCESSING" // at least one non-terminal snapshot seen
	StateSucceeded  ConfirmationState = "SUCCEEDED"
	StateFailed     ConfirmationState = "FAILED" // covers both FAILED and TIMED_OUT outcomes
)

var (
	// ErrNoPendingOperation means a reference arrived with no matching local
	// record. The record may have been cleared by a prior successful
	// resolution, so callers treat this as a no-op, not a failure.
	ErrNoPendingOperation = errors.New("no pending operation")

	// ErrNoOutcome means no terminal outcome has been recorded for a reference.
	ErrNoOutcome = errors.New("no recorded outcome")

	// ErrSourceUnavailable marks transient polling failures: network error,
	// non-2xx response, or malformed payload. Distinguishable from a source
	// actually reporting FAILED.
	ErrSourceUnavailable = errors.New("status source unavailable")

	// ErrEffectNotApplied marks a confirmation call that was rejected after a
	// source confirmed success. The pending record must stay in place so the
	// call is retried.
	ErrEffectNotApplied = errors.New("confirmation effect not applied")

	// ErrInvalidOperation marks a handoff request that failed validation.
	ErrInvalidOperation = errors.New("invalid operation request")
)
