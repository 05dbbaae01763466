package events

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

func TestEventToJSON(t *testing.T) {
	id := uuid.New()
	e := Event{
		Type:             DebtSettled,
		DebtID:           id,
		Entity:           "Davivienda",
		Amount:           decimal.RequireFromString("150.00"),
		RemainingBalance: decimal.Zero,
		InstallmentsPaid: 12,
		Overpaid:         decimal.RequireFromString("10.5"),
		OccurredAt:       time.Date(2024, 4, 10, 12, 0, 0, 0, time.UTC),
	}

	body, err := e.ToJSON()
	if err != nil {
		t.Fatalf("ToJSON() error = %v", err)
	}

	var got map[string]any
	if err := json.Unmarshal(body, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if got["type"] != "debt.settled" {
		t.Errorf("type = %v, want debt.settled", got["type"])
	}
	if got["debt_id"] != id.String() {
		t.Errorf("debt_id = %v, want %s", got["debt_id"], id)
	}
	if got["amount"] != "150" {
		t.Errorf("amount = %v, want \"150\"", got["amount"])
	}
	if got["overpaid"] != "10.5" {
		t.Errorf("overpaid = %v, want \"10.5\"", got["overpaid"])
	}
	if got["occurred_at"] != "2024-04-10T12:00:00Z" {
		t.Errorf("occurred_at = %v", got["occurred_at"])
	}
}

func TestNopPublisher(t *testing.T) {
	var p Publisher = Nop{}
	if err := p.Publish(context.Background(), Event{Type: PaymentApplied}); err != nil {
		t.Errorf("Nop.Publish() error = %v", err)
	}
}
