package ledger

import (
	"errors"
	"fmt"
	"testing"

	"github.com/mcclellann/finanzas/pkg/models"
	"github.com/shopspring/decimal"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func engineDebt(remaining, value string, paid, count int) models.Debt {
	return models.Debt{
		Entity:           "Banco de Bogota",
		TotalDebt:        dec(remaining),
		RemainingBalance: dec(remaining),
		InstallmentValue: dec(value),
		InstallmentCount: count,
		InstallmentsPaid: paid,
		TotalPaid:        decimal.Zero,
	}
}

func TestApplyPayment_InstallmentNotSettled(t *testing.T) {
	debt := engineDebt("500.00", "150.00", 0, 12)

	out, err := ApplyPayment(debt, Payment{Mode: ModeInstallment})
	if err != nil {
		t.Fatalf("ApplyPayment failed: %v", err)
	}
	if out.Kind != Updated {
		t.Errorf("Expected Updated, got %s", out.Kind)
	}
	if !out.Debt.RemainingBalance.Equal(dec("350.00")) {
		t.Errorf("Expected remaining 350.00, got %s", out.Debt.RemainingBalance)
	}
	if out.Debt.InstallmentsPaid != 1 {
		t.Errorf("Expected 1 installment paid, got %d", out.Debt.InstallmentsPaid)
	}
	if !out.Debt.TotalPaid.Equal(dec("150.00")) {
		t.Errorf("Expected total paid 150.00, got %s", out.Debt.TotalPaid)
	}
}

func TestApplyPayment_InstallmentSettles(t *testing.T) {
	debt := engineDebt("150.00", "150.00", 11, 12)

	out, err := ApplyPayment(debt, Payment{Mode: ModeInstallment})
	if err != nil {
		t.Fatalf("ApplyPayment failed: %v", err)
	}
	if out.Kind != Settled {
		t.Fatalf("Expected Settled, got %s", out.Kind)
	}
	if !out.Debt.RemainingBalance.IsZero() {
		t.Errorf("Expected remaining 0, got %s", out.Debt.RemainingBalance)
	}
	if !out.Overpaid.IsZero() {
		t.Errorf("Expected no overpayment, got %s", out.Overpaid)
	}
	if out.Debt.InstallmentsPaid != 12 {
		t.Errorf("Expected 12 installments paid, got %d", out.Debt.InstallmentsPaid)
	}
}

func TestApplyPayment_CustomConsumesWholeInstallments(t *testing.T) {
	debt := engineDebt("1000.00", "200.00", 0, 5)

	out, err := ApplyPayment(debt, Payment{Mode: ModeCustom, Amount: "450.00"})
	if err != nil {
		t.Fatalf("ApplyPayment failed: %v", err)
	}
	if out.Kind != Updated {
		t.Errorf("Expected Updated, got %s", out.Kind)
	}
	if out.Debt.InstallmentsPaid != 2 {
		t.Errorf("Expected 2 installments paid, got %d", out.Debt.InstallmentsPaid)
	}
	if !out.Debt.RemainingBalance.Equal(dec("550.00")) {
		t.Errorf("Expected remaining 550.00, got %s", out.Debt.RemainingBalance)
	}
	if !out.Applied.Equal(dec("450")) {
		t.Errorf("Expected applied 450, got %s", out.Applied)
	}
}

func TestApplyPayment_CustomCommaSeparator(t *testing.T) {
	debt := engineDebt("1000.00", "200.00", 0, 5)

	out, err := ApplyPayment(debt, Payment{Mode: ModeCustom, Amount: "450,50"})
	if err != nil {
		t.Fatalf("ApplyPayment failed: %v", err)
	}
	if !out.Debt.RemainingBalance.Equal(dec("549.50")) {
		t.Errorf("Expected remaining 549.50, got %s", out.Debt.RemainingBalance)
	}
}

func TestApplyPayment_CustomOverpays(t *testing.T) {
	debt := engineDebt("300.00", "200.00", 3, 5)

	out, err := ApplyPayment(debt, Payment{Mode: ModeCustom, Amount: "1000"})
	if err != nil {
		t.Fatalf("ApplyPayment failed: %v", err)
	}
	if out.Kind != Settled {
		t.Fatalf("Expected Settled, got %s", out.Kind)
	}
	if !out.Overpaid.Equal(dec("700")) {
		t.Errorf("Expected overpaid 700, got %s", out.Overpaid)
	}
	if out.Debt.InstallmentsPaid != 5 {
		t.Errorf("Expected installments capped at 5, got %d", out.Debt.InstallmentsPaid)
	}
}

func TestApplyPayment_InvalidAmount(t *testing.T) {
	tests := []struct {
		name    string
		payment Payment
		debt    models.Debt
	}{
		{"negative", Payment{Mode: ModeCustom, Amount: "-5"}, engineDebt("500", "100", 0, 5)},
		{"empty", Payment{Mode: ModeCustom, Amount: ""}, engineDebt("500", "100", 0, 5)},
		{"not a number", Payment{Mode: ModeCustom, Amount: "abc"}, engineDebt("500", "100", 0, 5)},
		{"rounds to zero", Payment{Mode: ModeCustom, Amount: "0.001"}, engineDebt("500", "100", 0, 5)},
		{"zero installment value", Payment{Mode: ModeInstallment}, engineDebt("500", "0", 0, 5)},
		{"unknown mode", Payment{Mode: "weekly", Amount: "10"}, engineDebt("500", "100", 0, 5)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := tt.debt
			out, err := ApplyPayment(tt.debt, tt.payment)
			if !errors.Is(err, ErrInvalidPaymentAmount) {
				t.Fatalf("Expected ErrInvalidPaymentAmount, got %v", err)
			}
			if out.Kind != "" {
				t.Errorf("Expected empty outcome, got %s", out.Kind)
			}
			if !tt.debt.RemainingBalance.Equal(before.RemainingBalance) || tt.debt.InstallmentsPaid != before.InstallmentsPaid {
				t.Error("Expected input debt to be untouched")
			}
		})
	}
}

func TestApplyPayment_DoesNotMutateInput(t *testing.T) {
	debt := engineDebt("500.00", "150.00", 0, 12)

	if _, err := ApplyPayment(debt, Payment{Mode: ModeInstallment}); err != nil {
		t.Fatalf("ApplyPayment failed: %v", err)
	}
	if !debt.RemainingBalance.Equal(dec("500.00")) || debt.InstallmentsPaid != 0 || !debt.TotalPaid.IsZero() {
		t.Errorf("Input debt was modified: %+v", debt)
	}
}

func TestApplyPayment_Properties(t *testing.T) {
	remainings := []string{"0.01", "99.99", "150", "500", "1000", "12345.67"}
	values := []string{"0.50", "150", "200", "333.33"}
	paidCounts := [][2]int{{0, 1}, {0, 5}, {4, 5}, {5, 5}, {11, 12}}
	payments := []Payment{
		{Mode: ModeInstallment},
		{Mode: ModeCustom, Amount: "0,01"},
		{Mode: ModeCustom, Amount: "450"},
		{Mode: ModeCustom, Amount: "20000"},
	}

	for _, r := range remainings {
		for _, v := range values {
			for _, pc := range paidCounts {
				for _, p := range payments {
					name := fmt.Sprintf("%s/%s/%d-%d/%s%s", r, v, pc[0], pc[1], p.Mode, p.Amount)
					debt := engineDebt(r, v, pc[0], pc[1])
					debt.TotalPaid = dec("10")

					out, err := ApplyPayment(debt, p)
					if err != nil {
						t.Fatalf("%s: ApplyPayment failed: %v", name, err)
					}
					if out.Debt.InstallmentsPaid < 0 || out.Debt.InstallmentsPaid > debt.InstallmentCount {
						t.Errorf("%s: installments paid %d out of range", name, out.Debt.InstallmentsPaid)
					}
					if out.Debt.InstallmentsPaid < debt.InstallmentsPaid {
						t.Errorf("%s: installments paid decreased", name)
					}
					if !out.Debt.TotalPaid.Equal(debt.TotalPaid.Add(out.Applied)) {
						t.Errorf("%s: total paid %s != %s + %s", name, out.Debt.TotalPaid, debt.TotalPaid, out.Applied)
					}
					newRemaining := debt.RemainingBalance.Sub(out.Applied)
					if (out.Kind == Settled) != !newRemaining.IsPositive() {
						t.Errorf("%s: kind %s with new remaining %s", name, out.Kind, newRemaining)
					}
					if out.Debt.RemainingBalance.IsNegative() {
						t.Errorf("%s: negative remaining %s", name, out.Debt.RemainingBalance)
					}
				}
			}
		}
	}
}

func TestApplyPayment_SumOfPaymentsEqualsTotalPaid(t *testing.T) {
	debt := engineDebt("1000", "100", 0, 10)
	payments := []Payment{
		{Mode: ModeInstallment},
		{Mode: ModeCustom, Amount: "250,25"},
		{Mode: ModeCustom, Amount: "99.75"},
		{Mode: ModeInstallment},
	}

	sum := decimal.Zero
	for _, p := range payments {
		out, err := ApplyPayment(debt, p)
		if err != nil {
			t.Fatalf("ApplyPayment failed: %v", err)
		}
		sum = sum.Add(out.Applied)
		debt = out.Debt
	}
	if !debt.TotalPaid.Equal(sum) {
		t.Errorf("Expected total paid %s, got %s", sum, debt.TotalPaid)
	}
	if !debt.RemainingBalance.Equal(dec("450")) {
		t.Errorf("Expected remaining 450, got %s", debt.RemainingBalance)
	}
	if debt.InstallmentsPaid != 4 {
		t.Errorf("Expected 4 installments paid, got %d", debt.InstallmentsPaid)
	}
}
