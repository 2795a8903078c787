package clock

import (
	"testing"
	"time"
)

func TestCycleQuantization(t *testing.T) {
	epoch := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c := New(1000, epoch)

	if got := c.Cycle(epoch); got != 0 {
		t.Fatalf("expected cycle 0 at epoch, got %d", got)
	}
	if got := c.Cycle(epoch.Add(999 * time.Millisecond)); got != 0 {
		t.Fatalf("expected cycle 0 just before boundary, got %d", got)
	}
	if got := c.Cycle(epoch.Add(1000 * time.Millisecond)); got != 1 {
		t.Fatalf("expected cycle 1 at boundary, got %d", got)
	}
	if got := c.Cycle(epoch.Add(-time.Hour)); got != 0 {
		t.Fatalf("expected pre-epoch instants to clamp to cycle 0, got %d", got)
	}
}

func TestDateRoundTrip(t *testing.T) {
	epoch := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c := New(500, epoch)
	want := epoch.Add(5 * 500 * time.Millisecond)
	if got := c.Date(5); !got.Equal(want) {
		t.Fatalf("Date(5) = %v, want %v", got, want)
	}
}

func TestCalendarSimpleBucketLifecycle(t *testing.T) {
	cal := NewCalendar()
	cal.Add(BucketRenewing, "R1", 10)
	cal.Add(BucketRenewing, "R2", 10)
	cal.Add(BucketClosing, "R1", 20)

	got := cal.Get(BucketRenewing, 10)
	if len(got) != 2 || got[0] != "R1" || got[1] != "R2" {
		t.Fatalf("unexpected renewing bucket: %v", got)
	}

	// Re-adding R1 at a different cycle moves it, doesn't duplicate it.
	cal.Add(BucketRenewing, "R1", 11)
	if got := cal.Get(BucketRenewing, 10); len(got) != 1 || got[0] != "R2" {
		t.Fatalf("expected R1 moved out of cycle 10, got %v", got)
	}
	if got := cal.Get(BucketRenewing, 11); len(got) != 1 || got[0] != "R1" {
		t.Fatalf("expected R1 at cycle 11, got %v", got)
	}

	cal.Remove("R1")
	if got := cal.Get(BucketRenewing, 11); len(got) != 0 {
		t.Fatalf("expected R1 swept from all buckets, got %v", got)
	}
	if got := cal.Get(BucketClosing, 20); len(got) != 0 {
		t.Fatalf("expected R1 swept from closing too, got %v", got)
	}
}

func TestIntervalIndexActiveAtAndExpiry(t *testing.T) {
	idx := NewIntervalIndex()
	idx.Add("A", 5, 10)
	idx.Add("B", 7, 12)
	idx.Add("C", 100, 110)

	if got := idx.ActiveAt(8); len(got) != 2 || got[0] != "A" || got[1] != "B" {
		t.Fatalf("unexpected active set at cycle 8: %v", got)
	}
	if got := idx.ActiveAt(11); len(got) != 1 || got[0] != "B" {
		t.Fatalf("unexpected active set at cycle 11: %v", got)
	}

	idx.Expire(10)
	if got := idx.ActiveAt(8); len(got) != 1 || got[0] != "B" {
		t.Fatalf("expected A expired by cycle 10 and only B left active at 8, got %v", got)
	}
	if idx.Len() != 2 {
		t.Fatalf("expected B and C still indexed, got %d", idx.Len())
	}
}

func TestCalendarHoldingsAndOutlaysAreIndependentPerSource(t *testing.T) {
	cal := NewCalendar()
	cal.AddHolding("L1", 1, 5)
	cal.Outlay("broker-a").Add("T1", 1, 5)
	cal.Outlay("broker-b").Add("T2", 1, 5)

	if got := cal.ActiveHoldings(2); len(got) != 1 || got[0] != "L1" {
		t.Fatalf("unexpected holdings: %v", got)
	}
	if got := cal.Outlay("broker-a").ActiveAt(2); len(got) != 1 || got[0] != "T1" {
		t.Fatalf("unexpected outlay for broker-a: %v", got)
	}
	if got := cal.Outlay("broker-b").ActiveAt(2); len(got) != 1 || got[0] != "T2" {
		t.Fatalf("unexpected outlay for broker-b: %v", got)
	}

	cal.Remove("T1")
	if got := cal.Outlay("broker-a").ActiveAt(2); len(got) != 0 {
		t.Fatalf("expected T1 removed from broker-a outlay, got %v", got)
	}
	if got := cal.Outlay("broker-b").ActiveAt(2); len(got) != 1 {
		t.Fatalf("expected broker-b outlay untouched, got %v", got)
	}
}

func TestCalendarTickExpiresIntervalsOnly(t *testing.T) {
	cal := NewCalendar()
	cal.AddHolding("L1", 1, 5)
	cal.Add(BucketRenewing, "R1", 5)

	cal.Tick(5)
	if got := cal.ActiveHoldings(4); len(got) != 0 {
		t.Fatalf("expected L1 expired after tick past its end, got %v", got)
	}
	// Simple buckets are drained by the kernel, not by Tick; they persist
	// until explicitly removed.
	if got := cal.Get(BucketRenewing, 5); len(got) != 1 {
		t.Fatalf("expected renewing bucket untouched by Tick, got %v", got)
	}
}
