package service

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/splitledger/payment-confirm/internal/core"
	"github.com/splitledger/payment-confirm/internal/port/output"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type pollResult struct {
	snap *core.StatusSnapshot
	err  error
}

func report(state core.StatusState) pollResult {
	return pollResult{snap: &core.StatusSnapshot{State: state, Amount: "25.00"}}
}

func unreachable() pollResult {
	return pollResult{err: fmt.Errorf("%w: connection refused", core.ErrSourceUnavailable)}
}

// scriptedSource replays poll results in order; the last entry repeats once
// the script is exhausted.
type scriptedSource struct {
	mu     sync.Mutex
	name   string
	script []pollResult
	calls  int
}

func newScriptedSource(name string, script ...pollResult) *scriptedSource {
	return &scriptedSource{name: name, script: script}
}

func (s *scriptedSource) Poll(ctx context.Context, reference string) (*core.StatusSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.script) == 0 {
		s.calls++
		return nil, fmt.Errorf("%w: empty script", core.ErrSourceUnavailable)
	}
	idx := s.calls
	if idx >= len(s.script) {
		idx = len(s.script) - 1
	}
	s.calls++

	res := s.script[idx]
	if res.err != nil {
		return nil, res.err
	}
	cp := *res.snap
	cp.Source = s.name
	return &cp, nil
}

func (s *scriptedSource) polls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// recordingEffects counts confirmation calls for verification. The first
// failBefore calls are rejected so effect-retry behavior can be exercised.
type recordingEffects struct {
	mu         sync.Mutex
	wallet     map[string]int
	deposits   map[string]int
	expenses   map[string]int
	failBefore int
	effectID   string
}

func newRecordingEffects() *recordingEffects {
	return &recordingEffects{
		wallet:   make(map[string]int),
		deposits: make(map[string]int),
		expenses: make(map[string]int),
		effectID: "eff_1",
	}
}

func (r *recordingEffects) maybeFail() error {
	if r.failBefore > 0 {
		r.failBefore--
		return fmt.Errorf("%w: ledger unreachable", core.ErrEffectNotApplied)
	}
	return nil
}

func (r *recordingEffects) CreditWallet(ctx context.Context, reference string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.wallet[reference]++
	if err := r.maybeFail(); err != nil {
		return "", err
	}
	return r.effectID, nil
}

func (r *recordingEffects) ConfirmEventDeposit(ctx context.Context, targetID, reference string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deposits[targetID+"/"+reference]++
	if err := r.maybeFail(); err != nil {
		return "", err
	}
	return r.effectID, nil
}

func (r *recordingEffects) ConfirmExpensePayment(ctx context.Context, targetID, reference string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.expenses[targetID+"/"+reference]++
	if err := r.maybeFail(); err != nil {
		return "", err
	}
	return r.effectID, nil
}

func (r *recordingEffects) walletCalls(reference string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.wallet[reference]
}

func (r *recordingEffects) totalCalls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	total := 0
	for _, n := range r.wallet {
		total += n
	}
	for _, n := range r.deposits {
		total += n
	}
	for _, n := range r.expenses {
		total += n
	}
	return total
}

// stubGateway implements output.PaymentGateway for handoff tests.
type stubGateway struct {
	mu        sync.Mutex
	reference string
	intentErr error
	intents   []output.CreateIntentRequest
}

func (g *stubGateway) CreateIntent(ctx context.Context, req output.CreateIntentRequest) (*output.PaymentIntent, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.intents = append(g.intents, req)
	if g.intentErr != nil {
		return nil, g.intentErr
	}
	return &output.PaymentIntent{
		Reference:   g.reference,
		ExternalURL: "https://pay.example.com/" + g.reference,
	}, nil
}

func (g *stubGateway) Poll(ctx context.Context, reference string) (*core.StatusSnapshot, error) {
	return nil, fmt.Errorf("%w: not scripted", core.ErrSourceUnavailable)
}

// stubMessaging records published confirmation requests.
type stubMessaging struct {
	mu         sync.Mutex
	requested  []string
	outcomes   []*core.ConfirmationOutcome
	publishErr error
}

func (m *stubMessaging) PublishConfirmationRequested(reference string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.publishErr != nil {
		return m.publishErr
	}
	m.requested = append(m.requested, reference)
	return nil
}

func (m *stubMessaging) PublishOutcome(outcome *core.ConfirmationOutcome) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.outcomes = append(m.outcomes, outcome)
	return nil
}

func (m *stubMessaging) Close() error { return nil }

func (m *stubMessaging) requestedFor(reference string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, ref := range m.requested {
		if ref == reference {
			count++
		}
	}
	return count
}
