// Package monitor implements a passive logic analyzer for a 6502 family bus.
//
// A bus cycle starts on the falling edge of the clock. Address and R/W are
// valid shortly after it (tADS, 30ns max on a 65C02) and the data bus is
// valid by the following rising edge. The monitor splits its work the same
// way:
//
//	Armed   --falling edge--> sample address + R/W, pending = true --> Latched
//	Latched --rising edge---> in reset: discard, pending = false   --> Armed
//	                          otherwise: sample data, emit, count  --> Armed
//	Armed   --rising edge---> ignored
//
// Both edge handlers and the reset handler are installed on an irq.Source and
// may run on different goroutines. All shared state funnels through
// OnClockEdge and OnResetEdge which hold a single lock around the state
// they touch.
package monitor

import (
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"

	"github.com/jmchacon/busmon/format"
	"github.com/jmchacon/busmon/irq"
	"github.com/jmchacon/busmon/pinmap"
	"github.com/jmchacon/busmon/pins"
)

// Direction is the processor's side of a bus cycle.
type Direction int

const (
	DIR_READ  Direction = iota // Processor reads, peripheral drives the data bus. R/W high.
	DIR_WRITE                  // Processor writes and drives the data bus. R/W low.
)

// DirectionOf returns the direction indicated by the level of R/W.
func DirectionOf(rw bool) Direction {
	if rw {
		return DIR_READ
	}
	return DIR_WRITE
}

// Marker returns the single character used in the output stream.
func (d Direction) Marker() byte {
	if d == DIR_WRITE {
		return 'W'
	}
	return 'r'
}

// String implements fmt.Stringer.
func (d Direction) String() string {
	if d == DIR_WRITE {
		return "write"
	}
	return "read"
}

// Sample is one completed bus cycle.
type Sample struct {
	Cycle     uint16 // Completed cycles since the last reset or rollover, not counting this one.
	Address   uint16
	Data      uint8
	Direction Direction
}

// String renders the sample as an output line.
func (s Sample) String() string {
	return format.Line(s.Cycle, s.Address, s.Data, s.Direction.Marker())
}

// InFlight is the state carried from a falling edge to its rising edge.
type InFlight struct {
	Pending   bool      // Set on a falling edge, cleared on the rising edge that consumes it.
	Address   uint16    // Address latched on the falling edge.
	Direction Direction // R/W latched on the falling edge.
	Clock     bool      // Most recent clock level seen.
	Reset     bool      // Most recent reset line level seen (low == asserted).
}

// Stats counts what the state machine has done since Init.
type Stats struct {
	Emitted   uint64 // Samples sent to the sink.
	Discarded uint64 // Pending cycles thrown away because reset was asserted at the rising edge.
	Spurious  uint64 // Rising edges with nothing pending.
	Refired   uint64 // Falling edges which found a cycle still pending (a missed rising edge).
	Rollovers uint64 // Counter wraps.
}

// Sink receives everything the monitor prints.
type Sink interface {
	// Emit is called once per completed cycle from the clock handler.
	Emit(s Sample)
	// Status prints a bare status line such as format.RESET.
	Status(msg string)
}

// TextSink writes samples and status lines to a format.Printer.
type TextSink struct {
	P *format.Printer
}

// Emit implements Sink.
func (t TextSink) Emit(s Sample) {
	t.P.Println(s.String())
}

// Status implements Sink.
func (t TextSink) Status(msg string) {
	t.P.Println(msg)
}

// Monitor holds the shared state of the reset handler, the clock handler and the supervisor.
type Monitor struct {
	reader   pins.Reader
	pins     pinmap.Map
	strategy Strategy
	sink     Sink
	debug    bool
	logger   *log.Logger

	// reset is true while the reset line is asserted. Only OnResetEdge writes it.
	reset atomic.Bool

	mu       sync.Mutex // Guards everything below.
	inFlight InFlight
	busDir   Direction // Data bus direction. Only updated on falling edges out of reset.
	stats    Stats

	// counter is written under mu but may be read without it.
	counter Counter
}

// MonitorDef defines the pieces needed to build a Monitor.
type MonitorDef struct {
	// Reader gives line levels. Required.
	Reader pins.Reader
	// Pins is the wiring. Required.
	Pins pinmap.Map
	// Strategy samples the data bus. If nil a Passive strategy on Reader is used.
	Strategy Strategy
	// Sink receives samples and status lines. Required.
	Sink Sink
	// Debug if true will log edge anomalies (missed rising edges).
	Debug bool
	// Logger is used for Debug output. If nil log.Default() is used.
	Logger *log.Logger
}

// Init returns a Monitor in its power on state: Armed, nothing pending,
// count 0 and reset asserted until the reset line says otherwise.
func Init(def *MonitorDef) (*Monitor, error) {
	if def == nil || def.Reader == nil {
		return nil, errors.New("monitor needs a line reader")
	}
	if def.Sink == nil {
		return nil, errors.New("monitor needs a sink")
	}
	if err := def.Pins.Validate(); err != nil {
		return nil, fmt.Errorf("can't use pin map: %v", err)
	}
	m := &Monitor{
		reader:   def.Reader,
		pins:     def.Pins,
		strategy: def.Strategy,
		sink:     def.Sink,
		debug:    def.Debug,
		logger:   def.Logger,
		// Until the processor is out of reset the monitor only listens.
		busDir: DIR_WRITE,
	}
	if m.strategy == nil {
		m.strategy = NewPassive(def.Reader, def.Pins.DataLines())
	}
	if m.logger == nil {
		m.logger = log.Default()
	}
	m.reset.Store(true)
	return m, nil
}

// Attach installs the reset and clock handlers on src and then latches the
// current reset level so a processor already running is seen as out of reset.
func (m *Monitor) Attach(src irq.Source) error {
	if err := src.Attach(m.pins.Reset, m.OnResetEdge); err != nil {
		return fmt.Errorf("can't attach reset handler: %v", err)
	}
	if err := src.Attach(m.pins.Clock, m.OnClockEdge); err != nil {
		return fmt.Errorf("can't attach clock handler: %v", err)
	}
	m.OnResetEdge(m.reader.Level(m.pins.Reset))
	return nil
}

// OnResetEdge is the reset line handler. level is the new level of the
// active low reset line.
func (m *Monitor) OnResetEdge(level bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.inFlight.Reset = level
	m.reset.Store(!level)
	// Besides the reset flag this handler also writes the counter: asserting
	// reset zeroes it here, under mu, so it can't interleave with Advance.
	if !level {
		m.counter.Reset()
	}
}

// OnClockEdge is the clock line handler. level is the new clock level.
func (m *Monitor) OnClockEdge(level bool) {
	switch irq.EdgeOf(level) {
	case irq.EDGE_FALLING:
		m.fall()
	case irq.EDGE_RISING:
		if s, ok := m.rise(); ok {
			m.sink.Emit(s)
		}
	}
}

// fall latches address and R/W and marks a cycle pending.
func (m *Monitor) fall() {
	// Read everything first and back to back to keep skew between lines down.
	addr := pins.Fold(m.reader, m.pins.AddressLines())
	rw := m.reader.Level(m.pins.RW)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.inFlight.Clock = false
	if m.inFlight.Pending {
		m.stats.Refired++
		if m.debug {
			m.logger.Printf("falling edge at %.4X with cycle at %.4X still pending", addr, m.inFlight.Address)
		}
	}
	m.inFlight.Address = addr
	m.inFlight.Direction = DirectionOf(rw)
	if !m.reset.Load() {
		m.busDir = m.inFlight.Direction
	}
	m.inFlight.Pending = true
}

// rise completes a pending cycle. The returned sample is only valid if ok is true.
// The data bus is sampled (or driven by Intercept) with mu released so the
// reset handler never waits on line I/O. A reset asserted while that happens
// discards the cycle the same as one asserted before the edge.
// Emitting happens outside the lock so a slow sink doesn't hold up the reset handler.
func (m *Monitor) rise() (Sample, bool) {
	m.mu.Lock()
	m.inFlight.Clock = true
	if !m.inFlight.Pending {
		m.stats.Spurious++
		m.mu.Unlock()
		return Sample{}, false
	}
	m.inFlight.Pending = false
	if m.reset.Load() {
		m.stats.Discarded++
		m.mu.Unlock()
		return Sample{}, false
	}
	addr, dir, busDir := m.inFlight.Address, m.inFlight.Direction, m.busDir
	m.mu.Unlock()

	data := m.strategy.Data(addr, busDir)

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.reset.Load() {
		m.stats.Discarded++
		return Sample{}, false
	}
	s := Sample{
		Cycle:     m.counter.Value(),
		Address:   addr,
		Data:      data,
		Direction: dir,
	}
	if m.counter.Advance() {
		m.stats.Rollovers++
	}
	m.stats.Emitted++
	return s, true
}

// InReset returns whether reset is currently asserted.
func (m *Monitor) InReset() bool {
	return m.reset.Load()
}

// Count returns the current cycle count.
func (m *Monitor) Count() uint16 {
	return m.counter.Value()
}

// TakeRollover returns true once for every counter rollover not yet taken.
func (m *Monitor) TakeRollover() bool {
	return m.counter.TakeRollover()
}

// Snapshot returns a copy of the in flight state.
func (m *Monitor) Snapshot() InFlight {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.inFlight
}

// Stats returns a copy of the current statistics.
func (m *Monitor) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stats
}

// StrategyName returns the name of the data sampling strategy in use.
func (m *Monitor) StrategyName() string {
	return m.strategy.Name()
}
