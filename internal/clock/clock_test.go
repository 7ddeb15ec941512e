package clock

import "testing"

func TestSetNextTimestampOverridesOnce(t *testing.T) {
	c := New()
	c.SetNextTimestamp(0)
	if got := c.Now(); got != 0 {
		t.Fatalf("got %d, want 0", got)
	}
	if got := c.Now(); got == 0 {
		t.Fatal("forced timestamp should not persist past one call")
	}
}

func TestNowIsMonotonicUnderRealClock(t *testing.T) {
	c := New()
	a := c.Now()
	b := c.Now()
	if b < a {
		t.Fatalf("expected monotonic wall clock, got %d then %d", a, b)
	}
}
