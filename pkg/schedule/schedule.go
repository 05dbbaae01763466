// Package schedule infers how far along its installment plan a debt should be.
//
// Nothing here touches money: the results are a scheduling estimate derived
// from the start date alone, not a ledger of what was actually paid.
package schedule

import (
	"time"

	"github.com/mcclellann/finanzas/pkg/models"
)

// ElapsedInstallments returns how many monthly installments have come due
// between start and now, clamped to [0, count].
//
// An installment comes due on the start date's day of the month, so the
// current month only counts once now's day has reached it.
func ElapsedInstallments(start time.Time, count int, now time.Time) int {
	if count <= 0 || start.IsZero() {
		return 0
	}
	startDate, today := models.DateOf(start), models.DateOf(now)
	if startDate.After(today.Time) {
		return 0
	}

	months := (today.Year()-startDate.Year())*12 + int(today.Month()-startDate.Month())
	if today.Day() < startDate.Day() {
		months--
	}
	return clamp(months, 0, count)
}

// ElapsedFromString parses a DD-MM-YYYY or ISO start date and returns
// ElapsedInstallments for it.
func ElapsedFromString(start string, count int, now time.Time) (int, error) {
	d, err := models.ParseDate(start)
	if err != nil {
		return 0, err
	}
	return ElapsedInstallments(d.Time, count, now), nil
}

// PendingInstallments is the number of installments not yet settled.
func PendingInstallments(count, paid int) int {
	return clamp(count-paid, 0, count)
}

// IsBehind reports whether fewer installments were paid than have come due.
func IsBehind(start time.Time, count, paid int, now time.Time) bool {
	return ElapsedInstallments(start, count, now) > paid
}

func clamp(v, lo, hi int) int {
	if hi < lo {
		hi = lo
	}
	return max(lo, min(v, hi))
}
