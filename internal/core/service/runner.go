package service

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/splitledger/payment-confirm/internal/core"
	"github.com/splitledger/payment-confirm/internal/port/output"
)

// Runner owns the confirmation loops: at most one live loop per reference,
// so the pending record has a single writer for the duration of a run.
// Duplicate Ensure calls (requeued messages, user refreshes) attach to the
// existing loop instead of racing it.
type Runner struct {
	store      output.PendingOperationStore
	reconciler *Reconciler
	cfg        LoopConfig
	logger     *slog.Logger
	onOutcome  func(*core.ConfirmationOutcome)

	mu    sync.Mutex
	loops map[string]*Loop
	wg    sync.WaitGroup

	ctx    context.Context
	cancel context.CancelFunc
}

// NewRunner creates a runner.
func NewRunner(store output.PendingOperationStore, reconciler *Reconciler, cfg LoopConfig, logger *slog.Logger) *Runner {
	ctx, cancel := context.WithCancel(context.Background())
	return &Runner{
		store:      store,
		reconciler: reconciler,
		cfg:        cfg,
		logger:     logger,
		loops:      make(map[string]*Loop),
		ctx:        ctx,
		cancel:     cancel,
	}
}

// WithOutcomeHandler sets a callback invoked once per terminal outcome.
func (r *Runner) WithOutcomeHandler(fn func(*core.ConfirmationOutcome)) *Runner {
	r.onOutcome = fn
	return r
}

// Ensure starts a confirmation loop for the reference unless one is already
// running. Returns core.ErrNoPendingOperation when there is no record to
// confirm, which callers treat as "already resolved".
func (r *Runner) Ensure(ctx context.Context, reference string) error {
	r.mu.Lock()
	if _, ok := r.loops[reference]; ok {
		r.mu.Unlock()
		return nil
	}
	r.mu.Unlock()

	op, err := r.store.Get(ctx, reference)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	// Re-check under the lock; another Ensure may have won the race.
	if _, ok := r.loops[reference]; ok {
		return nil
	}

	loop := NewLoop(op, r.reconciler, r.cfg, r.logger)
	r.loops[reference] = loop
	confirmActiveLoops.Inc()
	r.wg.Add(1)

	go func() {
		defer r.wg.Done()
		outcome := loop.Run(r.ctx)
		r.release(reference)
		if outcome != nil && r.onOutcome != nil {
			r.onOutcome(outcome)
		}
	}()

	r.logger.Info("confirmation loop started",
		"reference", reference,
		"kind", op.Kind,
	)
	return nil
}

func (r *Runner) release(reference string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.loops, reference)
	confirmActiveLoops.Dec()
}

// State reports the live loop state for a reference, if one is running.
func (r *Runner) State(reference string) (core.ConfirmationState, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	loop, ok := r.loops[reference]
	if !ok {
		return "", false
	}
	return loop.State(), true
}

// ActiveLoops returns the number of live loops.
func (r *Runner) ActiveLoops() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.loops)
}

// Sweep re-adopts pending operations older than the threshold that nothing
// is confirming: the user never returned, a worker restarted mid-run, or an
// earlier run timed out and left the record open on purpose.
func (r *Runner) Sweep(ctx context.Context, olderThan time.Duration, limit int) {
	stale, err := r.store.ListStale(ctx, time.Now().Add(-olderThan), limit)
	if err != nil {
		r.logger.Warn("sweep: failed to list stale operations", "error", err)
		return
	}

	adopted := 0
	for _, op := range stale {
		r.mu.Lock()
		_, active := r.loops[op.Reference]
		r.mu.Unlock()
		if active {
			continue
		}
		if err := r.Ensure(ctx, op.Reference); err != nil {
			r.logger.Warn("sweep: failed to adopt operation",
				"reference", op.Reference, "error", err)
			continue
		}
		adopted++
		confirmSweepAdoptions.Inc()
	}
	if adopted > 0 {
		r.logger.Info("sweep: re-adopted stale operations", "count", adopted)
	}
}

// Shutdown stops every loop and waits for them to exit, bounded by ctx.
// Pending records are left intact for the next run.
func (r *Runner) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	for _, loop := range r.loops {
		loop.Stop()
	}
	r.mu.Unlock()
	r.cancel()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
