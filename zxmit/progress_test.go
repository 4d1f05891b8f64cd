package zxmit

import (
	"testing"
	"time"
)

func TestProgress(t *testing.T) {
	p := Progress{Block: 1, Blocks: 4, Sent: 300, Total: 1000}
	if p.Fraction() != 0.25 {
		t.Errorf("Fraction() = %v", p.Fraction())
	}
	if p.Done() {
		t.Error("Done() on first of four blocks")
	}
	if p.Ratio() != 0.3 {
		t.Errorf("Ratio() = %v", p.Ratio())
	}

	var empty Progress
	if empty.Fraction() != 1 || empty.Ratio() != 0 || !empty.Done() {
		t.Errorf("zero progress: fraction %v ratio %v done %v", empty.Fraction(), empty.Ratio(), empty.Done())
	}
}

func TestProgressTrackerThrottles(t *testing.T) {
	var calls []Progress
	pt := NewProgressTracker(func(p Progress, rate float64) {
		calls = append(calls, p)
	}, time.Hour)
	pt.Start()

	for i := 1; i <= 5; i++ {
		pt.Update(Progress{Block: i, Blocks: 5, Sent: int64(i * 100)})
	}

	if len(calls) != 1 || calls[0].Block != 5 {
		t.Fatalf("callback calls %+v, want only the final block", calls)
	}

	last, _, elapsed := pt.Stats()
	if last.Block != 5 || last.Sent != 500 {
		t.Errorf("Stats() last = %+v", last)
	}
	if elapsed <= 0 || pt.Complete() < elapsed {
		t.Errorf("elapsed %v", elapsed)
	}
}

func TestProgressTrackerRate(t *testing.T) {
	var rate float64
	pt := NewProgressTracker(func(p Progress, r float64) {
		rate = r
	}, time.Nanosecond)
	pt.Start()

	time.Sleep(10 * time.Millisecond)
	pt.Update(Progress{Block: 1, Blocks: 2, Sent: 1000})
	if rate <= 0 {
		t.Errorf("rate = %v", rate)
	}
}
