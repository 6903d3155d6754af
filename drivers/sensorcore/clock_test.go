package sensorcore

import (
	"math"
	"testing"
)

func TestReachedWraparound(t *testing.T) {
	cases := []struct {
		now, target uint32
		want        bool
	}{
		{now: 100, target: 100, want: true},
		{now: 101, target: 100, want: true},
		{now: 99, target: 100, want: false},
		// now wraps past target near the uint32 boundary.
		{now: 5, target: math.MaxUint32 - 2, want: true},
		{now: math.MaxUint32 - 2, target: 5, want: false},
	}
	for _, c := range cases {
		if got := Reached(c.now, c.target); got != c.want {
			t.Errorf("Reached(%d, %d) = %v, want %v", c.now, c.target, got, c.want)
		}
	}
}

func TestElapsedWraparound(t *testing.T) {
	if got := Elapsed(10, 3); got != 7 {
		t.Fatalf("Elapsed(10, 3) = %d, want 7", got)
	}
	if got := Elapsed(2, math.MaxUint32-1); got != 4 {
		t.Fatalf("Elapsed across wrap = %d, want 4", got)
	}
}

func TestSpinWaitReachesDeadline(t *testing.T) {
	now := uint32(0)
	st := SpinWait(func() uint32 {
		now++
		return now
	}, 5, 1000)
	if !st.IsOK() {
		t.Fatalf("expected Ok, got %+v", st)
	}
}

func TestSpinWaitHardTimeout(t *testing.T) {
	now := uint32(0)
	st := SpinWait(func() uint32 {
		now++
		return now
	}, 1000, 5)
	if st.Kind != Timeout {
		t.Fatalf("expected Timeout, got %+v", st)
	}
}

func TestSpinWaitStalledClock(t *testing.T) {
	st := SpinWait(func() uint32 { return 0 }, 5, math.MaxInt32)
	if st.Kind != Timeout {
		t.Fatalf("expected Timeout on stalled clock, got %+v", st)
	}
}
