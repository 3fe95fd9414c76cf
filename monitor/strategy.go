package monitor

import (
	"errors"

	"github.com/jmchacon/busmon/memory"
	"github.com/jmchacon/busmon/pins"
)

// Strategy decides how the data bus is sampled on the rising edge.
type Strategy interface {
	// Data returns the value on the data bus for the cycle at addr. dir is the
	// data bus direction latched at the falling edge (it's not updated while in reset).
	Data(addr uint16, dir Direction) uint8
	// Name is used for logging.
	Name() string
}

// Passive only ever reads the data lines regardless of direction. This is the default.
type Passive struct {
	r     pins.Reader
	lines []pins.ID
}

var _ = Strategy(&Passive{})

// NewPassive returns a Passive reading lines (D0 first) through r.
func NewPassive(r pins.Reader, lines []pins.ID) *Passive {
	return &Passive{r: r, lines: lines}
}

// Data implements Strategy.
func (p *Passive) Data(_ uint16, _ Direction) uint8 {
	return uint8(pins.Fold(p.r, p.lines))
}

// Name implements Strategy.
func (p *Passive) Name() string {
	return "passive"
}

// Intercept is the intrusive mode. During processor reads it takes over the
// data lines and drives the value table holds for the address. During
// processor writes it lets go of the lines and reads them like Passive.
//
// With DefaultTable every read returns NOP except the reset vector which
// returns 0x0000, so a 6502 coming out of reset free runs from 0x0000.
type Intercept struct {
	r     pins.Reader
	d     pins.Driver
	lines []pins.ID
	table memory.Bank
}

var _ = Strategy(&Intercept{})

// NewIntercept returns an Intercept driving lines (D0 first) through d with values from table.
func NewIntercept(r pins.Reader, d pins.Driver, lines []pins.ID, table memory.Bank) (*Intercept, error) {
	if r == nil || d == nil {
		return nil, errors.New("intercept needs both a line reader and driver")
	}
	if table == nil {
		return nil, errors.New("intercept needs a substitution table")
	}
	return &Intercept{r: r, d: d, lines: lines, table: table}, nil
}

// DefaultTable returns NOP everywhere except 0x00 at RESET_VECTOR and RESET_VECTOR+1.
func DefaultTable() memory.Bank {
	// Can't fail, the vector isn't at 0xFFFF.
	t, _ := memory.NewFlat(memory.NOP, map[uint16]uint16{memory.RESET_VECTOR: 0x0000})
	return t
}

// Data implements Strategy.
func (i *Intercept) Data(addr uint16, dir Direction) uint8 {
	if dir == DIR_WRITE {
		pins.ReleaseAll(i.d, i.lines)
		return uint8(pins.Fold(i.r, i.lines))
	}
	v := i.table.Read(addr)
	pins.Spread(i.d, i.lines, uint16(v))
	return v
}

// Name implements Strategy.
func (i *Intercept) Name() string {
	return "intercept"
}
