package gesture

import (
	"testing"
	"time"
)

func TestThresholdStepCompletes(t *testing.T) {
	now := time.Now()
	cases := []struct {
		name string
		dir  Direction
		thr  float64
		val  float64
		want bool
	}{
		{"higher crosses", Higher, 0.5, 0.6, true},
		{"higher does not cross", Higher, 0.5, 0.4, false},
		{"higher equal does not cross", Higher, 0.5, 0.5, false},
		{"lower crosses", Lower, 0.2, 0.1, true},
		{"lower does not cross", Lower, 0.2, 0.3, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			step := ThresholdStep(tc.dir, tc.thr, nil, false)
			if got := step.completes(tc.val, now); got != tc.want {
				t.Errorf("completes(%v) = %v, want %v", tc.val, got, tc.want)
			}
		})
	}
}

func TestRangeStepHoldsBeforeCompleting(t *testing.T) {
	now := time.Now()
	step := RangeStep(0.3, 0.7, 500, nil, false)

	if step.completes(0.5, now) {
		t.Fatal("first in-band sample should only start the timer")
	}
	if step.completes(0.5, now.Add(200*time.Millisecond)) {
		t.Fatal("should not complete before hold duration elapses")
	}
	if !step.completes(0.5, now.Add(500*time.Millisecond)) {
		t.Fatal("should complete once hold duration elapses")
	}
}

func TestRangeStepLeavingBandResetsTimer(t *testing.T) {
	now := time.Now()
	step := RangeStep(0.3, 0.7, 500, nil, false)

	step.completes(0.5, now)
	if step.completes(0.9, now.Add(100*time.Millisecond)) {
		t.Fatal("leaving the band must not complete the step")
	}
	if step.completes(0.5, now.Add(600*time.Millisecond)) {
		t.Fatal("re-entering the band should restart the hold timer")
	}
	if !step.completes(0.5, now.Add(1100*time.Millisecond)) {
		t.Fatal("should complete 500ms after re-entering the band")
	}
}

func TestCheckReset(t *testing.T) {
	now := time.Now()
	start := now.Add(-2 * time.Second)

	lower := Step{Reset: &ResetRule{Type: ResetLower, Value: 0.2}}
	if !lower.checkReset(0.1, now, start) {
		t.Error("expected lower reset to fire")
	}
	if lower.checkReset(0.3, now, start) {
		t.Error("expected lower reset not to fire")
	}

	higher := Step{Reset: &ResetRule{Type: ResetHigher, Value: 0.8}}
	if !higher.checkReset(0.9, now, start) {
		t.Error("expected higher reset to fire")
	}

	timeout := Step{Reset: &ResetRule{Type: ResetTimeoutAfterMs, Value: 1000}}
	if !timeout.checkReset(0.5, now, start) {
		t.Error("expected timeout reset to fire after 2s with a 1000ms budget")
	}
	if timeout.checkReset(0.5, start.Add(500*time.Millisecond), start) {
		t.Error("timeout reset should not fire before the budget elapses")
	}
}

func TestCheckResetNilRule(t *testing.T) {
	step := Step{}
	if step.checkReset(100, time.Now(), time.Now()) {
		t.Error("a step with no reset rule should never reset")
	}
}
