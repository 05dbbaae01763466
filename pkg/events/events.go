// Package events publishes ledger domain events to an AMQP exchange.
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Type string

const (
	PaymentApplied Type = "debt.payment_applied"
	DebtSettled    Type = "debt.settled"
)

// Event is the message body published for every applied payment.
type Event struct {
	Type             Type            `json:"type"`
	DebtID           uuid.UUID       `json:"debt_id"`
	Entity           string          `json:"entity"`
	Amount           decimal.Decimal `json:"amount"`
	RemainingBalance decimal.Decimal `json:"remaining_balance"`
	InstallmentsPaid int             `json:"installments_paid"`
	Overpaid         decimal.Decimal `json:"overpaid"`
	OccurredAt       time.Time       `json:"occurred_at"`
}

func (e Event) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// Publisher delivers events. Implementations must be safe for concurrent use.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// Nop discards every event.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }
