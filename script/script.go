// Package script drives a simulated bus from a Lua script so traces can be
// replayed through the monitor without hardware. The script sees these globals:
//
//	clock(level)               set the clock line (true == high)
//	reset(level)               set RESB (false == asserted)
//	rw(level)                  set R/W (true == read)
//	address(value)             put a 16 bit value on A0-A15
//	data(value)                put an 8 bit value on D0-D7
//	cycle(addr, data, write)   one full clock period, falling edge first
//	hold_reset()               reset(false)
//	release_reset()            reset(true)
//
// For example a reset followed by a NOP fetch at 0x0001:
//
//	hold_reset()
//	cycle(0xFFFC, 0x00)
//	release_reset()
//	cycle(0x0001, 0xEA)
package script

import (
	"context"
	"errors"
	"fmt"

	lua "github.com/yuin/gopher-lua"

	"github.com/jmchacon/busmon/pinmap"
	"github.com/jmchacon/busmon/pins"
	"github.com/jmchacon/busmon/sim"
)

// ScriptDef defines what to run and what it drives.
type ScriptDef struct {
	// Bus is the bus the script drives. Required.
	Bus *sim.Bus
	// Pins is the wiring.
	Pins pinmap.Map
	// Path is a Lua file to run. Exactly one of Path and Source must be set.
	Path string
	// Source is Lua code to run.
	Source string
}

type runner struct {
	bus *sim.Bus
	pm  pinmap.Map
}

// Run executes the script to completion or until ctx is done.
func Run(ctx context.Context, def *ScriptDef) error {
	if def == nil || def.Bus == nil {
		return errors.New("script needs a bus")
	}
	if (def.Path == "") == (def.Source == "") {
		return errors.New("script needs exactly one of a path or source")
	}
	if err := def.Pins.Validate(); err != nil {
		return fmt.Errorf("can't use pin map: %v", err)
	}
	r := &runner{bus: def.Bus, pm: def.Pins}

	L := lua.NewState()
	defer L.Close()
	L.SetContext(ctx)
	for name, fn := range map[string]lua.LGFunction{
		"clock":         r.line(r.pm.Clock),
		"reset":         r.line(r.pm.Reset),
		"rw":            r.line(r.pm.RW),
		"address":       r.address,
		"data":          r.data,
		"cycle":         r.cycle,
		"hold_reset":    r.fixed(r.pm.Reset, false),
		"release_reset": r.fixed(r.pm.Reset, true),
	} {
		L.SetGlobal(name, L.NewFunction(fn))
	}

	var err error
	if def.Path != "" {
		err = L.DoFile(def.Path)
	} else {
		err = L.DoString(def.Source)
	}
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("script failed: %v", err)
	}
	return nil
}

// line returns a function setting id to its boolean argument.
func (r *runner) line(id pins.ID) lua.LGFunction {
	return func(L *lua.LState) int {
		r.bus.Set(id, L.CheckBool(1))
		return 0
	}
}

// fixed returns a function setting id to level.
func (r *runner) fixed(id pins.ID, level bool) lua.LGFunction {
	return func(L *lua.LState) int {
		r.bus.Set(id, level)
		return 0
	}
}

// checkValue returns argument n as an integer no larger than max.
func checkValue(L *lua.LState, n int, max int) uint16 {
	v := L.CheckInt(n)
	if v < 0 || v > max {
		L.ArgError(n, fmt.Sprintf("%d out of range 0..%d", v, max))
	}
	return uint16(v)
}

func (r *runner) address(L *lua.LState) int {
	r.bus.SetValue(r.pm.AddressLines(), checkValue(L, 1, 0xFFFF))
	return 0
}

func (r *runner) data(L *lua.LState) int {
	r.bus.SetValue(r.pm.DataLines(), checkValue(L, 1, 0xFF))
	return 0
}

// cycle runs one full clock period. The clock is taken high first if it
// isn't already so the period always starts with a falling edge.
func (r *runner) cycle(L *lua.LState) int {
	addr := checkValue(L, 1, 0xFFFF)
	data := checkValue(L, 2, 0xFF)
	write := L.OptBool(3, false)

	r.bus.Set(r.pm.Clock, true)
	r.bus.SetValue(r.pm.AddressLines(), addr)
	r.bus.Set(r.pm.RW, !write)
	r.bus.Set(r.pm.Clock, false)
	r.bus.SetValue(r.pm.DataLines(), data)
	r.bus.Set(r.pm.Clock, true)
	return 0
}
