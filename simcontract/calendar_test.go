package simcontract

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestAddYears(t *testing.T) {
	d := GameDate{Year: 1066, Month: 10, Day: 14, Hour: 12}
	got := d.AddYears(1)
	if got.Year != d.Year+1 {
		t.Fatalf("AddYears(1).Year = %d, want %d", got.Year, d.Year+1)
	}
}

func TestAddHoursOverflowsDay(t *testing.T) {
	d := GameDate{Year: 2000, Month: 1, Day: 1, Hour: 23}
	got := d.AddHours(2)
	want := GameDate{Year: 2000, Month: 1, Day: 2, Hour: 1}
	if got != want {
		t.Fatalf("AddHours(2) = %+v, want %+v", got, want)
	}
}

func TestAddMonthsOverflowsYear(t *testing.T) {
	d := GameDate{Year: 1999, Month: 12, Day: 15, Hour: 0}
	got := d.AddMonths(1)
	want := GameDate{Year: 2000, Month: 1, Day: 15, Hour: 0}
	if got != want {
		t.Fatalf("AddMonths(1) = %+v, want %+v", got, want)
	}
}

func TestAddHoursNegativeIsPredecessor(t *testing.T) {
	d := GameDate{Year: 2000, Month: 6, Day: 10, Hour: 5}
	got := d.AddHours(-3)
	want := GameDate{Year: 2000, Month: 6, Day: 10, Hour: 2}
	if got != want {
		t.Fatalf("AddHours(-3) = %+v, want %+v", got, want)
	}
}

func TestLeapYearFebruary(t *testing.T) {
	if DaysInMonth(2000, 2) != 29 {
		t.Fatalf("2000 should be a leap year")
	}
	if DaysInMonth(1900, 2) != 28 {
		t.Fatalf("1900 should not be a leap year (divisible by 100, not 400)")
	}
	if DaysInMonth(2004, 2) != 29 {
		t.Fatalf("2004 should be a leap year")
	}
}

func TestCompareOrdering(t *testing.T) {
	earlier := GameDate{Year: 1066, Month: 10, Day: 14, Hour: 0}
	later := GameDate{Year: 1066, Month: 10, Day: 14, Hour: 1}
	if !earlier.Before(later) {
		t.Fatalf("expected earlier.Before(later)")
	}
	if !later.After(earlier) {
		t.Fatalf("expected later.After(earlier)")
	}
}

func TestHoursUntil(t *testing.T) {
	from := GameDate{Year: 2000, Month: 1, Day: 1, Hour: 0}
	to := from.AddHours(150)
	if got := from.HoursUntil(to); got != 150 {
		t.Fatalf("HoursUntil = %d, want 150", got)
	}
}

func TestAddMonthsClampsShortMonth(t *testing.T) {
	d := GameDate{Year: 2021, Month: 1, Day: 31, Hour: 0}
	got := d.AddMonths(1)
	want := GameDate{Year: 2021, Month: 2, Day: 28, Hour: 0}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("AddMonths(1) mismatch (-want +got):\n%s", diff)
	}
}
