// Package adapters connects the ledger's in-process events to outbound
// transports.
package adapters

import (
	"context"
	"sync/atomic"

	"budget/internal/amqp"
	"budget/internal/core"
	"budget/internal/log"
	"budget/internal/services"
)

type (
	// EventSource is satisfied by services.LedgerService.
	EventSource interface {
		Subscribe(buffer int) (<-chan services.Event, func())
	}

	// AggregatePublisher is satisfied by amqp.Client.
	AggregatePublisher interface {
		PublishAggregateEvent(ctx context.Context, msg *amqp.AggregateChangedMessage) error
	}
)

const publisherBuffer = 256

// EventPublisher forwards every ledger event as an aggregate change
// message. Publish failures are logged and never reach the ledger.
type EventPublisher struct {
	events      <-chan services.Event
	unsubscribe func()
	publisher   AggregatePublisher
	logger      *log.Logger

	published atomic.Int64
	failed    atomic.Int64
	missed    atomic.Int64
}

// NewEventPublisher subscribes right away so events emitted before Run
// are buffered rather than lost.
func NewEventPublisher(source EventSource, publisher AggregatePublisher, logger *log.Logger) *EventPublisher {
	if logger == nil {
		logger = log.Discard()
	}
	events, unsubscribe := source.Subscribe(publisherBuffer)
	return &EventPublisher{
		events:      events,
		unsubscribe: unsubscribe,
		publisher:   publisher,
		logger:      logger.WithComponent(log.ComponentAMQP),
	}
}

// Run publishes until ctx is done or the subscription is closed. It must
// be called at most once.
func (p *EventPublisher) Run(ctx context.Context) error {
	defer p.unsubscribe()

	p.logger.InfoContext(ctx, "Event publisher started")
	var last uint64
	for {
		select {
		case <-ctx.Done():
			p.logger.InfoContext(ctx, "Event publisher stopped",
				"published", p.published.Load(),
				"failed", p.failed.Load())
			return ctx.Err()
		case ev, ok := <-p.events:
			if !ok {
				return nil
			}
			if last != 0 && ev.Version > last+1 {
				gap := ev.Version - last - 1
				p.missed.Add(int64(gap))
				p.logger.WarnContext(ctx, "Events dropped before publishing",
					log.FieldCount, gap,
					log.FieldVersion, ev.Version)
			}
			last = ev.Version
			p.publish(ctx, ev)
		}
	}
}

func (p *EventPublisher) publish(ctx context.Context, ev services.Event) {
	msg := MessageFromEvent(ev)
	if err := p.publisher.PublishAggregateEvent(ctx, msg); err != nil {
		p.failed.Add(1)
		p.logger.WarnContext(ctx, "Failed to publish aggregate change",
			log.FieldOperation, log.OpPublish,
			"kind", msg.Kind,
			log.FieldVersion, msg.Version,
			log.FieldError, err)
		return
	}
	p.published.Add(1)
}

// Published, Failed and Missed report counters since start.
func (p *EventPublisher) Published() int64 { return p.published.Load() }
func (p *EventPublisher) Failed() int64    { return p.failed.Load() }
func (p *EventPublisher) Missed() int64    { return p.missed.Load() }

func MessageFromEvent(ev services.Event) *amqp.AggregateChangedMessage {
	msg := &amqp.AggregateChangedMessage{
		Kind:           string(ev.Kind),
		Version:        ev.Version,
		TransactionIDs: ev.TransactionIDs,
		CategoryIDs:    ev.CategoryIDs,
		Timestamp:      ev.At,
	}
	for _, c := range ev.Categories {
		msg.Categories = append(msg.Categories, snapshot(c))
	}
	return msg
}

func snapshot(c core.Category) amqp.CategorySnapshot {
	st := c.Stats()
	return amqp.CategorySnapshot{
		ID:              c.ID,
		Name:            c.Name,
		BudgetCents:     st.Budget.Cents,
		SpentCents:      st.Spent.Cents,
		RemainingCents:  st.Remaining.Cents,
		UsagePercentage: st.UsagePercentage,
		OverBudget:      st.IsOverBudget,
	}
}
