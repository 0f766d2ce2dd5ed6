package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"budget/internal/core"
	"budget/internal/log"
)

// Reconciler is the part of LedgerService the processor drives.
type Reconciler interface {
	CheckDrift() []core.Drift
	Reconcile(ctx context.Context) ([]core.Category, error)
}

type ReconcileProcessorConfig struct {
	// Interval between drift checks (default: 5m)
	Interval time.Duration

	// ReconcileOnStart runs a full reconcile before the first tick.
	ReconcileOnStart bool
}

func DefaultReconcileProcessorConfig() ReconcileProcessorConfig {
	return ReconcileProcessorConfig{
		Interval:         5 * time.Minute,
		ReconcileOnStart: true,
	}
}

// ReconcileProcessor checks for drift on a ticker and reconciles when the
// held aggregates disagree with a recompute, or when triggered.
type ReconcileProcessor struct {
	ledger  Reconciler
	config  ReconcileProcessorConfig
	logger  *log.Logger
	trigger chan struct{}

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

func NewReconcileProcessor(ledger Reconciler, config ReconcileProcessorConfig, logger *log.Logger) *ReconcileProcessor {
	if config.Interval <= 0 {
		config.Interval = DefaultReconcileProcessorConfig().Interval
	}
	if logger == nil {
		logger = log.Discard()
	}
	return &ReconcileProcessor{
		ledger:  ledger,
		config:  config,
		logger:  logger.WithComponent(log.ComponentReconcile),
		trigger: make(chan struct{}, 1),
	}
}

// Start begins the processing loop. Returns an error if already running.
func (p *ReconcileProcessor) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return fmt.Errorf("reconcile processor is already running")
	}
	p.running = true
	p.stopCh = make(chan struct{})
	p.doneCh = make(chan struct{})
	p.mu.Unlock()

	go p.runLoop(ctx)

	p.logger.InfoContext(ctx, "Reconcile processor started", "interval", p.config.Interval)
	return nil
}

// Stop signals the loop and waits for it to finish or for ctx to expire.
func (p *ReconcileProcessor) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	stopCh, doneCh := p.stopCh, p.doneCh
	p.running = false
	p.mu.Unlock()

	close(stopCh)

	select {
	case <-doneCh:
		p.logger.InfoContext(ctx, "Reconcile processor stopped gracefully")
		return nil
	case <-ctx.Done():
		p.logger.WarnContext(ctx, "Reconcile processor stop timed out")
		return ctx.Err()
	}
}

func (p *ReconcileProcessor) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

// Trigger asks for a full reconcile on the next loop iteration. Repeated
// triggers before it runs collapse into one.
func (p *ReconcileProcessor) Trigger() {
	select {
	case p.trigger <- struct{}{}:
	default:
	}
}

func (p *ReconcileProcessor) runLoop(ctx context.Context) {
	defer close(p.doneCh)

	ticker := time.NewTicker(p.config.Interval)
	defer ticker.Stop()

	if p.config.ReconcileOnStart {
		p.reconcile(ctx, "startup")
	}

	for {
		select {
		case <-p.stopCh:
			return
		case <-ctx.Done():
			return
		case <-p.trigger:
			p.reconcile(ctx, "trigger")
		case <-ticker.C:
			p.checkDrift(ctx)
		}
	}
}

func (p *ReconcileProcessor) checkDrift(ctx context.Context) {
	drift := p.ledger.CheckDrift()
	if len(drift) == 0 {
		p.logger.DebugContext(ctx, "No aggregate drift")
		return
	}
	for _, d := range drift {
		p.logger.WarnContext(ctx, "Aggregate drift detected",
			log.FieldCategoryID, d.CategoryID,
			"held_cents", d.Held.Cents,
			"expected_cents", d.Expected.Cents)
	}
	p.reconcile(ctx, "drift")
}

func (p *ReconcileProcessor) reconcile(ctx context.Context, reason string) {
	if _, err := p.ledger.Reconcile(ctx); err != nil {
		p.logger.ErrorContext(ctx, "Reconcile failed",
			"reason", reason,
			log.FieldError, err,
			log.FieldErrorType, core.ErrorType(err))
		return
	}
	p.logger.DebugContext(ctx, "Reconcile finished", "reason", reason)
}
