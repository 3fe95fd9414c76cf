package monitor

import "testing"

func TestCounter(t *testing.T) {
	var c Counter
	for i := 0; i < int(COUNTER_MAX); i++ {
		if c.Advance() {
			t.Fatalf("Wrapped early at %.4X", i)
		}
	}
	if got, want := c.Value(), COUNTER_MAX; got != want {
		t.Fatalf("Bad value before wrap. Got %.4X and want %.4X", got, want)
	}
	if !c.Advance() {
		t.Error("Didn't wrap at COUNTER_MAX")
	}
	if got, want := c.Value(), uint16(0); got != want {
		t.Errorf("Bad value after wrap. Got %.4X and want %.4X", got, want)
	}
	if !c.TakeRollover() {
		t.Error("Rollover not reported")
	}
	if c.TakeRollover() {
		t.Error("Rollover reported twice")
	}

	c.Advance()
	c.Advance()
	for i := 0; i < int(COUNTER_MAX); i++ {
		c.Advance()
	}
	c.Reset()
	if got, want := c.Value(), uint16(0); got != want {
		t.Errorf("Bad value after reset. Got %.4X and want %.4X", got, want)
	}
	if c.TakeRollover() {
		t.Error("Rollover survived a reset")
	}
}
