package monitor

import (
	"context"
	"time"

	"github.com/jmchacon/busmon/format"
)

const (
	DEFAULT_RESET_INTERVAL = 100 * time.Millisecond
	DEFAULT_POLL_INTERVAL  = time.Millisecond
)

// Supervisor is the idle loop. It never samples the bus and never writes
// monitor state, it only reports what the handlers left behind.
type Supervisor struct {
	m     *Monitor
	reset time.Duration
	poll  time.Duration
}

// NewSupervisor returns a Supervisor for m. Zero intervals use the defaults.
func NewSupervisor(m *Monitor, reset, poll time.Duration) *Supervisor {
	if reset <= 0 {
		reset = DEFAULT_RESET_INTERVAL
	}
	if poll <= 0 {
		poll = DEFAULT_POLL_INTERVAL
	}
	return &Supervisor{m: m, reset: reset, poll: poll}
}

// Step runs one iteration and returns how long to wait before the next one.
// While reset is asserted every step prints RESET (the reset handler already
// zeroed the count). Otherwise a rollover since the last step is printed once.
func (s *Supervisor) Step() time.Duration {
	if s.m.InReset() {
		s.m.sink.Status(format.RESET)
		return s.reset
	}
	if s.m.TakeRollover() {
		s.m.sink.Status(format.ROLLOVER)
	}
	return s.poll
}

// Run calls Step until ctx is done.
func (s *Supervisor) Run(ctx context.Context) error {
	t := time.NewTimer(0)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}
		t.Reset(s.Step())
	}
}
