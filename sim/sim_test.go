package sim

import (
	"testing"

	"github.com/davecgh/go-spew/spew"
	"github.com/go-test/deep"

	"github.com/jmchacon/busmon/memory"
	"github.com/jmchacon/busmon/monitor"
	"github.com/jmchacon/busmon/pinmap"
)

type recordSink struct {
	samples []monitor.Sample
	status  []string
}

func (r *recordSink) Emit(s monitor.Sample) {
	r.samples = append(r.samples, s)
}

func (r *recordSink) Status(msg string) {
	r.status = append(r.status, msg)
}

func TestBusHandlers(t *testing.T) {
	b := NewBus()
	var got []bool
	if err := b.Attach(7, func(level bool) { got = append(got, level) }); err != nil {
		t.Fatalf("Can't attach: %v", err)
	}
	if err := b.Attach(7, func(bool) {}); err == nil {
		t.Error("Didn't get error attaching a second handler")
	}
	b.Set(7, true)
	b.Set(7, true) // No change, no interrupt.
	b.Set(7, false)
	// Driving low while the processor side is low doesn't change anything either.
	b.Drive(7, false)
	b.Set(7, true)
	if !b.Driven(7) {
		t.Error("Line 7 not reported as driven")
	}
	b.Release(7)
	if got, want := b.Level(7), true; got != want {
		t.Errorf("Bad level after release. Got %t and want %t", got, want)
	}
	if diff := deep.Equal(got, []bool{true, false}); diff != nil {
		t.Errorf("Bad handler calls: %v", diff)
	}
}

func setup(t *testing.T, intercept bool) (*FreeRun, *monitor.Monitor, *recordSink) {
	t.Helper()
	pm := pinmap.Mega2560()
	b := NewBus()
	mem, err := memory.NewFlat(memory.NOP, map[uint16]uint16{memory.RESET_VECTOR: 0x1FFE})
	if err != nil {
		t.Fatalf("Can't init memory: %v", err)
	}
	p, err := InitFreeRun(&FreeRunDef{Bus: b, Pins: pm, Memory: mem})
	if err != nil {
		t.Fatalf("Can't init free run: %v", err)
	}
	var s monitor.Strategy
	if intercept {
		if s, err = monitor.NewIntercept(b, b, pm.DataLines(), monitor.DefaultTable()); err != nil {
			t.Fatalf("Can't init intercept: %v", err)
		}
	}
	r := &recordSink{}
	m, err := monitor.Init(&monitor.MonitorDef{
		Reader:   b,
		Pins:     pm,
		Strategy: s,
		Sink:     r,
	})
	if err != nil {
		t.Fatalf("Can't init monitor: %v", err)
	}
	if err := m.Attach(b); err != nil {
		t.Fatalf("Can't attach monitor: %v", err)
	}
	return p, m, r
}

func tick(t *testing.T, p *FreeRun, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		if _, err := p.Tick(); err != nil {
			t.Fatalf("Tick error at clock %d: %v\nstate: %s", p.Clocks(), err, spew.Sdump(p))
		}
	}
}

func TestFreeRunPassive(t *testing.T) {
	p, m, r := setup(t, false)
	tick(t, p, 5)
	if got, want := len(r.samples), 0; got != want {
		t.Fatalf("Samples while reset held. Got %d and want %d", got, want)
	}
	p.ReleaseReset()
	if m.InReset() {
		t.Fatal("Monitor didn't see reset released")
	}
	tick(t, p, 11)

	read := monitor.DIR_READ
	want := []monitor.Sample{
		{Cycle: 0, Address: 0x0000, Data: 0xEA, Direction: read},
		{Cycle: 1, Address: 0x0000, Data: 0xEA, Direction: read},
		{Cycle: 2, Address: 0x0100, Data: 0xEA, Direction: read},
		{Cycle: 3, Address: 0x01FF, Data: 0xEA, Direction: read},
		{Cycle: 4, Address: 0x01FE, Data: 0xEA, Direction: read},
		{Cycle: 5, Address: 0xFFFC, Data: 0xFE, Direction: read},
		{Cycle: 6, Address: 0xFFFD, Data: 0x1F, Direction: read},
		{Cycle: 7, Address: 0x1FFE, Data: 0xEA, Direction: read},
		{Cycle: 8, Address: 0x1FFF, Data: 0xEA, Direction: read},
		{Cycle: 9, Address: 0x1FFF, Data: 0xEA, Direction: read},
		{Cycle: 10, Address: 0x2000, Data: 0xEA, Direction: read},
	}
	if diff := deep.Equal(r.samples, want); diff != nil {
		t.Errorf("Bad free run trace: %v\n%s", diff, spew.Sdump(r.samples))
	}
	for _, id := range pinmap.Mega2560().DataLines() {
		if p.bus.Driven(id) {
			t.Errorf("Passive monitor drove line %d", id)
		}
	}
}

func TestFreeRunIntercept(t *testing.T) {
	p, _, r := setup(t, true)
	p.ReleaseReset()
	tick(t, p, 11)
	if got, want := p.PC, uint16(0x0002); got != want {
		t.Errorf("Reset vector not intercepted. Got PC %.4X and want %.4X", got, want)
	}
	var addrs []uint16
	for _, s := range r.samples[5:] {
		addrs = append(addrs, s.Address)
	}
	if diff := deep.Equal(addrs, []uint16{0xFFFC, 0xFFFD, 0x0000, 0x0001, 0x0001, 0x0002}); diff != nil {
		t.Errorf("Bad intercepted trace: %v", diff)
	}
	if got, want := r.samples[5].Data, uint8(0x00); got != want {
		t.Errorf("Bad vector data. Got %.2X and want %.2X", got, want)
	}
}

func TestFreeRunHoldReset(t *testing.T) {
	p, m, r := setup(t, false)
	p.ReleaseReset()
	tick(t, p, 20)
	p.HoldReset()
	if got, want := m.Count(), uint16(0); got != want {
		t.Errorf("Count not cleared by reset. Got %d and want %d", got, want)
	}
	n := len(r.samples)
	tick(t, p, 10)
	if got, want := len(r.samples), n; got != want {
		t.Errorf("Samples while reset held. Got %d and want %d", got, want)
	}
	p.ReleaseReset()
	tick(t, p, 1)
	if got, want := r.samples[len(r.samples)-1].Cycle, uint16(0); got != want {
		t.Errorf("Bad cycle index after re-reset. Got %d and want %d", got, want)
	}
}

func TestInitFreeRunErrors(t *testing.T) {
	if _, err := InitFreeRun(&FreeRunDef{Pins: pinmap.Mega2560()}); err == nil {
		t.Error("Didn't get error for missing bus")
	}
	bad := pinmap.Mega2560()
	bad.Data[0] = bad.Address[0]
	if _, err := InitFreeRun(&FreeRunDef{Bus: NewBus(), Pins: bad}); err == nil {
		t.Error("Didn't get error for bad pin map")
	}
}
