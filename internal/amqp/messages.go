package amqp

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// RoutingKeyAggregateChanged is used for every aggregate change message.
const RoutingKeyAggregateChanged = "ledger.aggregate.changed"

// CategorySnapshot is the state of one category right after a change.
type CategorySnapshot struct {
	ID              string  `json:"id"`
	Name            string  `json:"name"`
	BudgetCents     int64   `json:"budget_cents"`
	SpentCents      int64   `json:"spent_cents"`
	RemainingCents  int64   `json:"remaining_cents"`
	UsagePercentage float64 `json:"usage_percentage"`
	OverBudget      bool    `json:"over_budget"`
}

// AggregateChangedMessage announces one applied ledger mutation. Deleted
// categories appear in CategoryIDs but not in Categories.
type AggregateChangedMessage struct {
	Kind           string             `json:"kind"`
	Version        uint64             `json:"version"`
	TransactionIDs []string           `json:"transaction_ids,omitempty"`
	CategoryIDs    []string           `json:"category_ids,omitempty"`
	Categories     []CategorySnapshot `json:"categories,omitempty"`
	Timestamp      time.Time          `json:"timestamp"`
}

func NewAggregateChangedMessage(kind string, version uint64) *AggregateChangedMessage {
	return &AggregateChangedMessage{
		Kind:      kind,
		Version:   version,
		Timestamp: time.Now(),
	}
}

var ErrMalformedMessage = errors.New("malformed aggregate message")

func (m *AggregateChangedMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// AggregateChangedMessageFromJSON decodes and checks a message. Messages
// without a kind or with version 0 never come from a ledger and are
// rejected with ErrMalformedMessage.
func AggregateChangedMessageFromJSON(data []byte) (*AggregateChangedMessage, error) {
	var msg AggregateChangedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	switch {
	case msg.Kind == "":
		return nil, fmt.Errorf("%w: missing kind", ErrMalformedMessage)
	case msg.Version == 0:
		return nil, fmt.Errorf("%w: missing version", ErrMalformedMessage)
	}
	for i, c := range msg.Categories {
		if c.ID == "" {
			return nil, fmt.Errorf("%w: category %d has no id", ErrMalformedMessage, i)
		}
	}
	return &msg, nil
}
