package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"budget/internal/core"
)

type fakeReconciler struct {
	mu         sync.Mutex
	drift      []core.Drift
	err        error
	checks     int
	reconciles int
	calls      chan struct{}
}

func newFakeReconciler() *fakeReconciler {
	return &fakeReconciler{calls: make(chan struct{}, 16)}
}

func (f *fakeReconciler) CheckDrift() []core.Drift {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.checks++
	return f.drift
}

func (f *fakeReconciler) Reconcile(context.Context) ([]core.Category, error) {
	f.mu.Lock()
	f.reconciles++
	f.drift = nil
	err := f.err
	f.mu.Unlock()
	select {
	case f.calls <- struct{}{}:
	default:
	}
	return nil, err
}

func (f *fakeReconciler) reconcileCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.reconciles
}

func waitReconcile(t *testing.T, f *fakeReconciler) {
	t.Helper()
	select {
	case <-f.calls:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for reconcile")
	}
}

func TestDefaultReconcileProcessorConfig(t *testing.T) {
	config := DefaultReconcileProcessorConfig()

	if config.Interval != 5*time.Minute {
		t.Errorf("expected Interval 5m, got %v", config.Interval)
	}
	if !config.ReconcileOnStart {
		t.Error("expected ReconcileOnStart by default")
	}
}

func TestNewReconcileProcessor_ZeroInterval(t *testing.T) {
	processor := NewReconcileProcessor(newFakeReconciler(), ReconcileProcessorConfig{}, nil)

	if processor.config.Interval != 5*time.Minute {
		t.Errorf("expected default interval, got %v", processor.config.Interval)
	}
	if processor.IsRunning() {
		t.Error("processor should not be running initially")
	}
}

func TestReconcileProcessor_StartTwice(t *testing.T) {
	processor := NewReconcileProcessor(newFakeReconciler(), ReconcileProcessorConfig{Interval: time.Hour}, nil)
	ctx := context.Background()

	if err := processor.Start(ctx); err != nil {
		t.Fatalf("first start: %v", err)
	}
	defer processor.Stop(ctx)

	if err := processor.Start(ctx); err == nil {
		t.Error("expected error when starting already running processor")
	}
}

func TestReconcileProcessor_StopNotRunning(t *testing.T) {
	processor := NewReconcileProcessor(newFakeReconciler(), DefaultReconcileProcessorConfig(), nil)

	if err := processor.Stop(context.Background()); err != nil {
		t.Errorf("Stop should not error when not running: %v", err)
	}
}

func TestReconcileProcessor_ReconcilesOnStart(t *testing.T) {
	fake := newFakeReconciler()
	processor := NewReconcileProcessor(fake, ReconcileProcessorConfig{Interval: time.Hour, ReconcileOnStart: true}, nil)
	ctx := context.Background()

	if err := processor.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	waitReconcile(t, fake)

	if err := processor.Stop(ctx); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if processor.IsRunning() {
		t.Error("processor should not be running after Stop")
	}
}

func TestReconcileProcessor_Trigger(t *testing.T) {
	fake := newFakeReconciler()
	processor := NewReconcileProcessor(fake, ReconcileProcessorConfig{Interval: time.Hour}, nil)
	ctx := context.Background()

	if err := processor.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer processor.Stop(ctx)

	processor.Trigger()
	waitReconcile(t, fake)

	if got := fake.reconcileCount(); got != 1 {
		t.Errorf("expected 1 reconcile, got %d", got)
	}
}

func TestReconcileProcessor_DriftTriggersReconcile(t *testing.T) {
	fake := newFakeReconciler()
	fake.drift = []core.Drift{{CategoryID: "food", Held: core.Money{Cents: 100}, Expected: core.Money{Cents: 300}}}
	processor := NewReconcileProcessor(fake, ReconcileProcessorConfig{Interval: 10 * time.Millisecond}, nil)
	ctx := context.Background()

	if err := processor.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	waitReconcile(t, fake)
	if err := processor.Stop(ctx); err != nil {
		t.Fatalf("stop: %v", err)
	}

	// Once repaired, further ticks find no drift and do not reconcile.
	if got := fake.reconcileCount(); got != 1 {
		t.Errorf("expected exactly 1 reconcile, got %d", got)
	}
}

func TestReconcileProcessor_FailureKeepsRunning(t *testing.T) {
	fake := newFakeReconciler()
	fake.err = &core.TransportError{Op: "list", Err: errors.New("db down")}
	processor := NewReconcileProcessor(fake, ReconcileProcessorConfig{Interval: time.Hour}, nil)
	ctx := context.Background()

	if err := processor.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer processor.Stop(ctx)

	processor.Trigger()
	waitReconcile(t, fake)
	processor.Trigger()
	waitReconcile(t, fake)

	if !processor.IsRunning() {
		t.Error("a failed reconcile must not stop the processor")
	}
}

func TestReconcileProcessor_StopsWithContext(t *testing.T) {
	processor := NewReconcileProcessor(newFakeReconciler(), ReconcileProcessorConfig{Interval: time.Hour}, nil)
	ctx, cancel := context.WithCancel(context.Background())

	if err := processor.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	cancel()

	select {
	case <-processor.doneCh:
	case <-time.After(2 * time.Second):
		t.Fatal("loop did not exit after context cancel")
	}
}
