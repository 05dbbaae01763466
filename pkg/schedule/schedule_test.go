package schedule

import (
	"testing"
	"time"
)

func day(year int, month time.Month, d int) time.Time {
	return time.Date(year, month, d, 12, 0, 0, 0, time.UTC)
}

func TestElapsedInstallments(t *testing.T) {
	cases := []struct {
		name  string
		start time.Time
		count int
		now   time.Time
		want  int
	}{
		{"day before due date", day(2024, 1, 15), 12, day(2024, 4, 10), 2},
		{"on due date", day(2024, 1, 15), 12, day(2024, 4, 15), 3},
		{"after due date", day(2024, 1, 15), 12, day(2024, 4, 20), 3},
		{"same day as start", day(2024, 1, 15), 12, day(2024, 1, 15), 0},
		{"first month not yet due", day(2024, 1, 15), 12, day(2024, 2, 14), 0},
		{"across year boundary", day(2023, 11, 5), 12, day(2024, 2, 5), 3},
		{"future start", day(2025, 1, 1), 12, day(2024, 6, 1), 0},
		{"clamped to count", day(2020, 1, 1), 12, day(2024, 6, 1), 12},
		{"zero count", day(2020, 1, 1), 0, day(2024, 6, 1), 0},
		{"zero start", time.Time{}, 12, day(2024, 6, 1), 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ElapsedInstallments(tc.start, tc.count, tc.now); got != tc.want {
				t.Errorf("Expected %d elapsed installments, got %d", tc.want, got)
			}
		})
	}
}

func TestElapsedInstallmentsMonotonic(t *testing.T) {
	start := day(2024, 1, 31)
	count := 6
	prev := 0
	for now := day(2023, 12, 1); now.Before(day(2025, 1, 1)); now = now.AddDate(0, 0, 1) {
		got := ElapsedInstallments(start, count, now)
		if got < prev {
			t.Fatalf("Elapsed went backwards on %s: %d after %d", now.Format("2006-01-02"), got, prev)
		}
		if got < 0 || got > count {
			t.Fatalf("Elapsed %d out of range on %s", got, now.Format("2006-01-02"))
		}
		prev = got
	}
	if prev != count {
		t.Errorf("Expected to reach %d installments, got %d", count, prev)
	}
}

func TestElapsedFromString(t *testing.T) {
	now := day(2024, 4, 10)

	got, err := ElapsedFromString("15-01-2024", 12, now)
	if err != nil {
		t.Fatalf("Failed to parse local date: %v", err)
	}
	if got != 2 {
		t.Errorf("Expected 2, got %d", got)
	}

	got, err = ElapsedFromString("2024-01-15", 12, now)
	if err != nil {
		t.Fatalf("Failed to parse ISO date: %v", err)
	}
	if got != 2 {
		t.Errorf("Expected 2, got %d", got)
	}

	if _, err := ElapsedFromString("15/01/2024", 12, now); err == nil {
		t.Error("Expected error for unsupported date format")
	}
}

func TestPendingInstallments(t *testing.T) {
	if got := PendingInstallments(12, 5); got != 7 {
		t.Errorf("Expected 7, got %d", got)
	}
	if got := PendingInstallments(12, 15); got != 0 {
		t.Errorf("Expected 0 when overpaid, got %d", got)
	}
}

func TestIsBehind(t *testing.T) {
	start := day(2024, 1, 15)
	now := day(2024, 4, 20) // three installments due
	if !IsBehind(start, 12, 2, now) {
		t.Error("Expected debt with 2 of 3 due installments to be behind")
	}
	if IsBehind(start, 12, 3, now) {
		t.Error("Expected debt with all due installments paid to be current")
	}
}
