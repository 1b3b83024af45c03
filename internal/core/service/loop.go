package service

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/splitledger/payment-confirm/internal/core"
)

// LoopConfig bounds one confirmation run.
type LoopConfig struct {
	PollInterval      time.Duration
	ConfirmTimeout    time.Duration // waiting budget per run; a re-adopted operation gets a fresh one
	SourceErrorBudget int           // consecutive both-sources-unavailable ticks tolerated
}

// Loop is the confirmation state machine for a single pending operation:
// Loading -> Processing -> Succeeded | Failed. It polls on a fixed cadence,
// applies the timeout and error budgets, and retires the pending record on
// terminal outcomes. One loop owns its reference for its entire run.
type Loop struct {
	op         *core.PendingOperation
	reconciler *Reconciler
	cfg        LoopConfig
	logger     *slog.Logger

	mu      sync.Mutex
	state   core.ConfirmationState
	outcome *core.ConfirmationOutcome

	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
	running  atomic.Bool
}

// NewLoop creates a confirmation loop for one pending operation.
func NewLoop(op *core.PendingOperation, reconciler *Reconciler, cfg LoopConfig, logger *slog.Logger) *Loop {
	return &Loop{
		op:         op,
		reconciler: reconciler,
		cfg:        cfg,
		logger:     logger,
		state:      core.StateLoading,
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
	}
}

// Running reports whether the loop is actively running.
func (l *Loop) Running() bool {
	return l.running.Load()
}

// State returns the current machine state.
func (l *Loop) State() core.ConfirmationState {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// Outcome returns the terminal outcome, or nil while the loop is live or
// after an external cancellation.
func (l *Loop) Outcome() *core.ConfirmationOutcome {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.outcome
}

// Done is closed when the loop has exited.
func (l *Loop) Done() <-chan struct{} {
	return l.done
}

// Stop cancels the loop. Cancellation does not clear the pending record;
// a later run resumes from it.
func (l *Loop) Stop() {
	l.stopOnce.Do(func() { close(l.stop) })
}

// Run drives the loop to a terminal outcome, cancellation, or timeout.
// The first tick runs immediately; subsequent ticks follow the poll
// interval. Returns nil when cancelled before a terminal outcome.
func (l *Loop) Run(ctx context.Context) *core.ConfirmationOutcome {
	l.running.Store(true)
	defer l.running.Store(false)
	defer close(l.done)

	ticker := time.NewTicker(l.cfg.PollInterval)
	defer ticker.Stop()

	// The budget is per run, not per operation: a record re-adopted by the
	// sweep long after CreatedAt must still get a full window of polling, or
	// it would time out before the first tick and never resolve.
	deadline := time.Now().Add(l.cfg.ConfirmTimeout)
	var (
		confirmed       *core.StatusSnapshot
		unavailable     int
		effectAttempted bool
	)

	for {
		if time.Now().After(deadline) {
			return l.timedOut(ctx, "confirmation window elapsed")
		}

		if confirmed == nil {
			snap, err := l.reconciler.Resolve(ctx, l.op.Reference)
			switch {
			case errors.Is(err, core.ErrSourceUnavailable):
				unavailable++
				l.logger.Warn("both status sources unavailable",
					"reference", l.op.Reference,
					"streak", unavailable,
					"error", err,
				)
				// Exceeding the budget means "could not determine", never
				// "confirmed failure".
				if unavailable > l.cfg.SourceErrorBudget {
					return l.timedOut(ctx, "source error budget exhausted")
				}
			case err != nil:
				l.logger.Warn("reconcile tick failed",
					"reference", l.op.Reference, "error", err)
			case snap == nil:
				unavailable = 0
				l.setState(core.StateProcessing)
			case snap.State == core.StatusSucceeded:
				unavailable = 0
				confirmed = snap
			default:
				unavailable = 0
				outcome, aerr := l.reconciler.Apply(ctx, l.op, snap)
				if aerr != nil {
					l.logger.Warn("failed to retire operation, retrying",
						"reference", l.op.Reference, "error", aerr)
					break
				}
				return l.finish(outcome, core.StateFailed)
			}
		}

		// Once a SUCCEEDED snapshot is seen, stop polling and retry only the
		// confirmation call until it lands or the window closes.
		if confirmed != nil {
			if effectAttempted {
				confirmEffectRetries.Inc()
			}
			effectAttempted = true
			outcome, err := l.reconciler.Apply(ctx, l.op, confirmed)
			if err != nil {
				l.logger.Warn("confirmation effect failed, will retry",
					"reference", l.op.Reference,
					"kind", l.op.Kind,
					"error", err,
				)
			} else {
				return l.finish(outcome, core.StateSucceeded)
			}
		}

		select {
		case <-ctx.Done():
			l.logger.Info("confirmation loop cancelled",
				"reference", l.op.Reference, "state", l.State())
			return nil
		case <-l.stop:
			l.logger.Info("confirmation loop stopped",
				"reference", l.op.Reference, "state", l.State())
			return nil
		case <-ticker.C:
		}
	}
}

func (l *Loop) setState(state core.ConfirmationState) {
	l.mu.Lock()
	defer l.mu.Unlock()
	// Loading only ever advances to Processing; terminal states are set via
	// finish and never regress.
	if l.state == core.StateLoading && state == core.StateProcessing {
		l.state = state
	}
}

func (l *Loop) finish(outcome *core.ConfirmationOutcome, state core.ConfirmationState) *core.ConfirmationOutcome {
	l.mu.Lock()
	l.state = state
	l.outcome = outcome
	l.mu.Unlock()

	confirmOutcomes.WithLabelValues(string(outcome.Status)).Inc()
	return outcome
}

// timedOut records a TIMED_OUT outcome. The pending record stays in place:
// timing out client-side does not mean the payment failed, only that this
// run gave up waiting.
func (l *Loop) timedOut(ctx context.Context, reason string) *core.ConfirmationOutcome {
	outcome := l.reconciler.RecordTimeout(ctx, l.op)
	l.logger.Warn("confirmation timed out",
		"reference", l.op.Reference,
		"kind", l.op.Kind,
		"reason", reason,
	)
	return l.finish(outcome, core.StateFailed)
}
