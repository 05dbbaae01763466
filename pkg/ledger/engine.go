package ledger

import (
	"errors"
	"fmt"

	"github.com/mcclellann/finanzas/pkg/models"
	"github.com/mcclellann/finanzas/pkg/money"
	"github.com/shopspring/decimal"
)

// ErrInvalidPaymentAmount is returned when a payment cannot be applied.
var ErrInvalidPaymentAmount = errors.New("invalid payment amount")

type PaymentMode string

const (
	// ModeInstallment pays exactly one installment value.
	ModeInstallment PaymentMode = "installment"
	// ModeCustom pays a user-entered amount.
	ModeCustom PaymentMode = "custom"
)

// Payment is a single payment request against a debt.
type Payment struct {
	Mode   PaymentMode
	Amount string // Raw user input, only read in custom mode
}

type OutcomeKind string

const (
	Updated OutcomeKind = "updated"
	Settled OutcomeKind = "settled"
)

// Outcome is the result of applying a payment. Debt holds the new state; for a
// settled debt the remaining balance is clamped to zero and Overpaid holds the
// excess of the last payment.
type Outcome struct {
	Kind     OutcomeKind     `json:"outcome"`
	Debt     models.Debt     `json:"debt"`
	Applied  decimal.Decimal `json:"applied"`
	Overpaid decimal.Decimal `json:"overpaid"`
}

// ApplyPayment computes the debt state after p. It does no I/O and never
// modifies its input.
func ApplyPayment(debt models.Debt, p Payment) (Outcome, error) {
	amount, err := paymentAmount(debt, p)
	if err != nil {
		return Outcome{}, err
	}

	next := debt
	newRemaining := debt.RemainingBalance.Sub(amount)
	next.TotalPaid = debt.TotalPaid.Add(amount)

	switch p.Mode {
	case ModeInstallment:
		if next.InstallmentsPaid < next.InstallmentCount {
			next.InstallmentsPaid++
		}
	case ModeCustom:
		next.InstallmentsPaid = consumeInstallments(amount, next.InstallmentValue, next.InstallmentsPaid, next.InstallmentCount)
	}

	if !newRemaining.IsPositive() {
		next.RemainingBalance = decimal.Zero
		return Outcome{Kind: Settled, Debt: next, Applied: amount, Overpaid: newRemaining.Neg()}, nil
	}
	next.RemainingBalance = newRemaining
	return Outcome{Kind: Updated, Debt: next, Applied: amount, Overpaid: decimal.Zero}, nil
}

func paymentAmount(debt models.Debt, p Payment) (decimal.Decimal, error) {
	switch p.Mode {
	case ModeInstallment:
		if !debt.InstallmentValue.IsPositive() {
			return decimal.Zero, fmt.Errorf("%w: installment value must be positive", ErrInvalidPaymentAmount)
		}
		return debt.InstallmentValue, nil
	case ModeCustom:
		amount, err := money.ParseAmount(p.Amount)
		if err != nil {
			return decimal.Zero, fmt.Errorf("%w: %q", ErrInvalidPaymentAmount, p.Amount)
		}
		return amount, nil
	default:
		return decimal.Zero, fmt.Errorf("%w: unknown mode %q", ErrInvalidPaymentAmount, p.Mode)
	}
}

// consumeInstallments counts how many whole installments amount covers,
// starting from paid and never exceeding count. The remainder only lowers the
// balance.
func consumeInstallments(amount, value decimal.Decimal, paid, count int) int {
	if !value.IsPositive() {
		return paid
	}
	leftover := amount
	for leftover.GreaterThanOrEqual(value) && paid < count {
		paid++
		leftover = leftover.Sub(value)
	}
	return paid
}
