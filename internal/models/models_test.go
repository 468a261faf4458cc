package models

import (
	"math"
	"testing"
	"time"
)

func day(n int) time.Time {
	return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, n)
}

func TestAlignSeriesDropsUnmatchedDates(t *testing.T) {
	a := PriceSeries{
		{Date: day(0), Close: 10},
		{Date: day(1), Close: 11},
		{Date: day(3), Close: 13},
	}
	b := PriceSeries{
		{Date: day(1), Close: 21},
		{Date: day(2), Close: 22},
		{Date: day(3), Close: 23},
	}

	dates, closesA, closesB := AlignSeries(a, b)
	if len(dates) != 2 {
		t.Fatalf("Expected 2 aligned points, got %d", len(dates))
	}
	if !dates[0].Equal(day(1)) || !dates[1].Equal(day(3)) {
		t.Errorf("Expected dates [%v %v], got %v", day(1), day(3), dates)
	}
	if closesA[0] != 11 || closesA[1] != 13 {
		t.Errorf("Expected closes A [11 13], got %v", closesA)
	}
	if closesB[0] != 21 || closesB[1] != 23 {
		t.Errorf("Expected closes B [21 23], got %v", closesB)
	}
}

func TestAlignSeriesNoOverlap(t *testing.T) {
	a := PriceSeries{{Date: day(0), Close: 10}}
	b := PriceSeries{{Date: day(1), Close: 20}}

	dates, _, _ := AlignSeries(a, b)
	if len(dates) != 0 {
		t.Errorf("Expected no aligned points, got %d", len(dates))
	}
}

func TestSanitizeFloat(t *testing.T) {
	if v, ok := SanitizeFloat(math.Inf(1)); !ok || v != PosInfSentinel {
		t.Errorf("Expected +Inf -> %v, got %v (ok=%v)", PosInfSentinel, v, ok)
	}
	if v, ok := SanitizeFloat(math.Inf(-1)); !ok || v != NegInfSentinel {
		t.Errorf("Expected -Inf -> %v, got %v (ok=%v)", NegInfSentinel, v, ok)
	}
	if _, ok := SanitizeFloat(math.NaN()); ok {
		t.Error("Expected NaN to be flagged invalid")
	}
	if v, ok := SanitizeFloat(1.5); !ok || v != 1.5 {
		t.Errorf("Expected 1.5 unchanged, got %v (ok=%v)", v, ok)
	}
}

func TestSafeFloatNaN(t *testing.T) {
	if p := SafeFloat(math.NaN()); p != nil {
		t.Errorf("Expected nil for NaN, got %v", *p)
	}
	if p := SafeFloat(2.5); p == nil || *p != 2.5 {
		t.Error("Expected pointer to 2.5")
	}
}
