package models

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ErrInvalidDebt is returned when a debt record fails validation.
var ErrInvalidDebt = errors.New("invalid debt")

// Debt is an active debt owed to a creditor entity.
//
// RemainingBalance is the authoritative outstanding amount. TotalDebt is the
// originally contracted principal and is never touched by payments.
type Debt struct {
	ID               uuid.UUID       `json:"id"`
	Entity           string          `json:"entity"` // Creditor name, also the key into the UI's logo table
	TotalDebt        decimal.Decimal `json:"total_debt"`
	RemainingBalance decimal.Decimal `json:"remaining_balance"`
	InstallmentValue decimal.Decimal `json:"installment_value"`
	InstallmentCount int             `json:"installment_count"`
	InstallmentsPaid int             `json:"installments_paid"`
	TotalPaid        decimal.Decimal `json:"total_paid"`
	StartDate        Date            `json:"start_date"`
	IsLate           bool            `json:"is_late"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

// Validate checks the invariants every active debt must satisfy.
func (d Debt) Validate() error {
	if strings.TrimSpace(d.Entity) == "" {
		return fmt.Errorf("%w: entity is required", ErrInvalidDebt)
	}
	if d.TotalDebt.IsNegative() {
		return fmt.Errorf("%w: total debt cannot be negative", ErrInvalidDebt)
	}
	// A balance of zero or less means settled, which is no longer an active debt
	if !d.RemainingBalance.IsPositive() {
		return fmt.Errorf("%w: remaining balance must be positive", ErrInvalidDebt)
	}
	if !d.InstallmentValue.IsPositive() {
		return fmt.Errorf("%w: installment value must be positive", ErrInvalidDebt)
	}
	if d.InstallmentCount < 1 {
		return fmt.Errorf("%w: installment count must be at least 1", ErrInvalidDebt)
	}
	if d.InstallmentsPaid < 0 || d.InstallmentsPaid > d.InstallmentCount {
		return fmt.Errorf("%w: installments paid must be between 0 and %d", ErrInvalidDebt, d.InstallmentCount)
	}
	if d.TotalPaid.IsNegative() {
		return fmt.Errorf("%w: total paid cannot be negative", ErrInvalidDebt)
	}
	return nil
}

// PendingBalance is the outstanding amount, never negative ("deuda pendiente").
func (d Debt) PendingBalance() decimal.Decimal {
	if d.RemainingBalance.IsNegative() {
		return decimal.Zero
	}
	return d.RemainingBalance
}

// DebtUpdate carries the fields of a partial update. Nil fields are left as is.
type DebtUpdate struct {
	Entity           *string          `json:"entity,omitempty"`
	TotalDebt        *decimal.Decimal `json:"total_debt,omitempty"`
	RemainingBalance *decimal.Decimal `json:"remaining_balance,omitempty"`
	InstallmentValue *decimal.Decimal `json:"installment_value,omitempty"`
	InstallmentCount *int             `json:"installment_count,omitempty"`
	InstallmentsPaid *int             `json:"installments_paid,omitempty"`
	TotalPaid        *decimal.Decimal `json:"total_paid,omitempty"`
	StartDate        *Date            `json:"start_date,omitempty"`
	IsLate           *bool            `json:"is_late,omitempty"`
}

// IsEmpty reports whether the update sets no field at all.
func (u DebtUpdate) IsEmpty() bool {
	return u.Entity == nil && u.TotalDebt == nil && u.RemainingBalance == nil &&
		u.InstallmentValue == nil && u.InstallmentCount == nil && u.InstallmentsPaid == nil &&
		u.TotalPaid == nil && u.StartDate == nil && u.IsLate == nil
}

// Apply merges the set fields into d.
func (u DebtUpdate) Apply(d *Debt) {
	if u.Entity != nil {
		d.Entity = *u.Entity
	}
	if u.TotalDebt != nil {
		d.TotalDebt = *u.TotalDebt
	}
	if u.RemainingBalance != nil {
		d.RemainingBalance = *u.RemainingBalance
	}
	if u.InstallmentValue != nil {
		d.InstallmentValue = *u.InstallmentValue
	}
	if u.InstallmentCount != nil {
		d.InstallmentCount = *u.InstallmentCount
	}
	if u.InstallmentsPaid != nil {
		d.InstallmentsPaid = *u.InstallmentsPaid
	}
	if u.TotalPaid != nil {
		d.TotalPaid = *u.TotalPaid
	}
	if u.StartDate != nil {
		d.StartDate = *u.StartDate
	}
	if u.IsLate != nil {
		d.IsLate = *u.IsLate
	}
}

// SettledDebt is the archived copy of a debt whose balance reached zero.
type SettledDebt struct {
	ID        uuid.UUID       `json:"id"`
	DebtID    uuid.UUID       `json:"debt_id"` // ID the debt had while active
	Debt      Debt            `json:"debt"`    // Final state, remaining balance clamped to zero
	Overpaid  decimal.Decimal `json:"overpaid"`
	SettledAt time.Time       `json:"settled_at"`
}

type MovementKind string

const (
	MovementIncome  MovementKind = "income"
	MovementExpense MovementKind = "expense"
)

// Movement is a single income or expense entry.
type Movement struct {
	ID        uuid.UUID       `json:"id"`
	Kind      MovementKind    `json:"kind"`
	Category  string          `json:"category"`
	Amount    decimal.Decimal `json:"amount"`
	Note      string          `json:"note,omitempty"`
	Date      Date            `json:"date"`
	CreatedAt time.Time       `json:"created_at"`
}
