package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/splitledger/payment-confirm/internal/adapter/secondary/database"
	"github.com/splitledger/payment-confirm/internal/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunner_EnsureIsIdempotentPerReference(t *testing.T) {
	ctx := context.Background()
	store := database.NewMemoryStore()
	require.NoError(t, store.Put(ctx, walletOp("R1")))

	gw := newScriptedSource("gateway", report(core.StatusProcessing))
	tr := newScriptedSource("tracker", report(core.StatusProcessing))
	r := NewReconciler(store, store, gw, tr, newRecordingEffects(), testLogger())
	runner := NewRunner(store, r, fastLoopConfig(), testLogger())

	require.NoError(t, runner.Ensure(ctx, "R1"))
	require.NoError(t, runner.Ensure(ctx, "R1"))
	require.NoError(t, runner.Ensure(ctx, "R1"))
	assert.Equal(t, 1, runner.ActiveLoops(), "duplicate requests must attach to the running loop")

	shutdownCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	require.NoError(t, runner.Shutdown(shutdownCtx))
}

func TestRunner_EnsureUnknownReferenceIsNoOp(t *testing.T) {
	store := database.NewMemoryStore()
	r := NewReconciler(store, store, newScriptedSource("gateway"), newScriptedSource("tracker"), newRecordingEffects(), testLogger())
	runner := NewRunner(store, r, fastLoopConfig(), testLogger())

	err := runner.Ensure(context.Background(), "never-created")
	assert.ErrorIs(t, err, core.ErrNoPendingOperation)
	assert.Equal(t, 0, runner.ActiveLoops())
}

func TestRunner_OutcomeHandlerFiresOncePerTerminalOutcome(t *testing.T) {
	ctx := context.Background()
	store := database.NewMemoryStore()
	effects := newRecordingEffects()
	require.NoError(t, store.Put(ctx, walletOp("R1")))

	gw := newScriptedSource("gateway", report(core.StatusSucceeded))
	tr := newScriptedSource("tracker", report(core.StatusProcessing))
	r := NewReconciler(store, store, gw, tr, effects, testLogger())

	var (
		mu       sync.Mutex
		outcomes []*core.ConfirmationOutcome
	)
	runner := NewRunner(store, r, fastLoopConfig(), testLogger()).
		WithOutcomeHandler(func(outcome *core.ConfirmationOutcome) {
			mu.Lock()
			defer mu.Unlock()
			outcomes = append(outcomes, outcome)
		})

	require.NoError(t, runner.Ensure(ctx, "R1"))
	waitFor(t, 2*time.Second, func() bool { return runner.ActiveLoops() == 0 })

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, outcomes, 1)
	assert.Equal(t, core.OutcomeConfirmed, outcomes[0].Status)
	assert.Equal(t, 1, effects.walletCalls("R1"))
}

func TestRunner_SweepAdoptsDanglingOperations(t *testing.T) {
	ctx := context.Background()
	store := database.NewMemoryStore()
	effects := newRecordingEffects()
	op := walletOp("R1")
	op.CreatedAt = time.Now().Add(-time.Minute)
	require.NoError(t, store.Put(ctx, op))

	gw := newScriptedSource("gateway", report(core.StatusSucceeded))
	tr := newScriptedSource("tracker", report(core.StatusProcessing))
	r := NewReconciler(store, store, gw, tr, effects, testLogger())
	runner := NewRunner(store, r, fastLoopConfig(), testLogger())

	runner.Sweep(ctx, 30*time.Second, 10)
	waitFor(t, 2*time.Second, func() bool { return runner.ActiveLoops() == 0 && effects.walletCalls("R1") == 1 })

	_, err := store.Get(ctx, "R1")
	assert.ErrorIs(t, err, core.ErrNoPendingOperation)
}

func TestRunner_SweepSkipsActiveLoops(t *testing.T) {
	ctx := context.Background()
	store := database.NewMemoryStore()
	op := walletOp("R1")
	op.CreatedAt = time.Now().Add(-time.Minute)
	require.NoError(t, store.Put(ctx, op))

	gw := newScriptedSource("gateway", report(core.StatusProcessing))
	tr := newScriptedSource("tracker", report(core.StatusProcessing))
	r := NewReconciler(store, store, gw, tr, newRecordingEffects(), testLogger())
	runner := NewRunner(store, r, fastLoopConfig(), testLogger())

	require.NoError(t, runner.Ensure(ctx, "R1"))
	runner.Sweep(ctx, 30*time.Second, 10)
	assert.Equal(t, 1, runner.ActiveLoops(), "sweep must not start a second loop for an owned reference")

	shutdownCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	require.NoError(t, runner.Shutdown(shutdownCtx))
}

func TestRunner_ShutdownLeavesUnresolvedRecords(t *testing.T) {
	ctx := context.Background()
	store := database.NewMemoryStore()
	require.NoError(t, store.Put(ctx, walletOp("R1")))

	gw := newScriptedSource("gateway", report(core.StatusProcessing))
	tr := newScriptedSource("tracker", report(core.StatusProcessing))
	r := NewReconciler(store, store, gw, tr, newRecordingEffects(), testLogger())
	runner := NewRunner(store, r, fastLoopConfig(), testLogger())

	require.NoError(t, runner.Ensure(ctx, "R1"))

	shutdownCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	require.NoError(t, runner.Shutdown(shutdownCtx))
	assert.Equal(t, 0, runner.ActiveLoops())

	// The interrupted operation stays pending for the next run's sweep.
	_, err := store.Get(ctx, "R1")
	assert.NoError(t, err)
}
