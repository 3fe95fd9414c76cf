package sim

import (
	"errors"
	"fmt"

	"github.com/jmchacon/busmon/memory"
	"github.com/jmchacon/busmon/pinmap"
	"github.com/jmchacon/busmon/pins"
)

// InvalidCPUState represents an invalid processor state in the simulation.
type InvalidCPUState struct {
	Reason string
}

// Error implements the interface for error types.
func (e InvalidCPUState) Error() string {
	return fmt.Sprintf("invalid CPU state: %s", e.Reason)
}

// FreeRun drives a Bus the way a 6502 in a free-run rig does. Every opcode is
// treated as a 2 cycle NOP: an opcode fetch at PC followed by a dummy read of
// PC+1. Only the reset sequence and the NOP stream are modeled, nothing is decoded.
//
// Data is latched from the bus at the end of each cycle (the next falling edge)
// so a monitor overriding the data lines on the rising edge changes what the
// processor sees. That's what makes the intercept strategy redirect the reset vector.
type FreeRun struct {
	bus *Bus
	pm  pinmap.Map
	mem memory.Bank

	PC uint16 // Program counter.
	S  uint8  // Stack pointer.

	inReset bool   // RESB held low.
	reset   bool   // Running the reset sequence.
	opTick  int    // Tick within the current instruction or reset sequence. 0 == start of one.
	addr    uint16 // Address of the current cycle.
	latched uint8  // Data latched at the end of the last cycle.
	clocks  int    // Total number of clock cycles since PowerOn.
}

// FreeRunDef defines the pieces needed for a FreeRun.
type FreeRunDef struct {
	// Bus is the bus to drive. Required.
	Bus *Bus
	// Pins is the wiring.
	Pins pinmap.Map
	// Memory supplies data for every read. If nil the bus is hardwired to NOP
	// with the reset vector pointing at 0xEAEA.
	Memory memory.Bank
}

// InitFreeRun returns a FreeRun in power on state: reset held low and clock high.
func InitFreeRun(def *FreeRunDef) (*FreeRun, error) {
	if def == nil || def.Bus == nil {
		return nil, errors.New("free run needs a bus")
	}
	if err := def.Pins.Validate(); err != nil {
		return nil, fmt.Errorf("can't use pin map: %v", err)
	}
	p := &FreeRun{
		bus: def.Bus,
		pm:  def.Pins,
		mem: def.Memory,
	}
	if p.mem == nil {
		var err error
		if p.mem, err = memory.NewFlat(memory.NOP, nil); err != nil {
			return nil, fmt.Errorf("can't initialize memory: %v", err)
		}
	}
	p.PowerOn()
	return p, nil
}

// PowerOn puts the lines back into their power on state with reset held.
func (p *FreeRun) PowerOn() {
	p.bus.Set(p.pm.Clock, true)
	p.bus.Set(p.pm.RW, true)
	p.PC = 0x0000
	p.S = 0x00
	p.clocks = 0
	p.HoldReset()
}

// HoldReset pulls RESB low. The clock keeps running but nothing executes.
func (p *FreeRun) HoldReset() {
	p.inReset = true
	p.reset = true
	p.opTick = 0
	p.bus.Set(p.pm.Reset, false)
}

// ReleaseReset lets RESB go high. The next Tick starts the 7 cycle reset sequence.
func (p *FreeRun) ReleaseReset() {
	p.inReset = false
	p.reset = true
	p.opTick = 0
	p.bus.Set(p.pm.Reset, true)
}

// Clocks returns the number of full clock periods since PowerOn.
func (p *FreeRun) Clocks() int {
	return p.clocks
}

// Tick runs one full clock period: falling edge with address and R/W set up,
// then rising edge with memory driving the data bus. It returns true when the
// current instruction (or the reset sequence) has finished.
func (p *FreeRun) Tick() (bool, error) {
	done, err := p.nextAddress()
	if err != nil {
		return true, err
	}

	// Phase 1. Address and R/W valid, clock low.
	p.bus.SetValue(p.pm.AddressLines(), p.addr)
	p.bus.Set(p.pm.RW, true)
	p.bus.Set(p.pm.Clock, false)

	// Phase 2. Memory responds, clock high.
	p.bus.SetValue(p.pm.DataLines(), uint16(p.mem.Read(p.addr)))
	p.bus.Set(p.pm.Clock, true)

	// The 6502 latches data at the end of phase 2. Read through the bus so
	// anything driven by the monitor wins.
	p.latched = uint8(pins.Fold(p.bus, p.pm.DataLines()))
	p.clocks++
	p.finishCycle()
	return done, nil
}

// nextAddress works out the address of the coming cycle.
func (p *FreeRun) nextAddress() (bool, error) {
	if p.inReset {
		// Held in reset the bus just shows the current PC.
		p.addr = p.PC
		return false, nil
	}
	p.opTick++
	if p.reset {
		switch p.opTick {
		case 1, 2:
			p.addr = p.PC
		case 3, 4, 5:
			// Stack acts like PC/P have been pushed but everything is a read.
			p.addr = 0x0100 + uint16(p.S)
			p.S--
		case 6:
			p.addr = memory.RESET_VECTOR
		case 7:
			p.addr = memory.RESET_VECTOR + 1
			return true, nil
		default:
			return true, InvalidCPUState{fmt.Sprintf("opTick %d too large for reset (> 7)", p.opTick)}
		}
		return false, nil
	}
	switch p.opTick {
	case 1:
		p.addr = p.PC
	case 2:
		p.addr = p.PC
		return true, nil
	default:
		return true, InvalidCPUState{fmt.Sprintf("opTick %d too large for NOP (> 2)", p.opTick)}
	}
	return false, nil
}

// finishCycle consumes the latched data.
func (p *FreeRun) finishCycle() {
	if p.inReset {
		return
	}
	if p.reset {
		switch p.opTick {
		case 6:
			p.PC = (p.PC & 0xFF00) | uint16(p.latched)
		case 7:
			p.PC = (p.PC & 0x00FF) | uint16(p.latched)<<8
			p.reset = false
			p.opTick = 0
		}
		return
	}
	switch p.opTick {
	case 1:
		// Opcode fetch. It's always a NOP as far as we're concerned.
		p.PC++
	case 2:
		p.opTick = 0
	}
}
