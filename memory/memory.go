// Package memory defines the basic interfaces for working
// with a 6502 family memory map. The simulated processor fetches
// through a Bank and the intercepting sampler uses one as its table of
// substitute values.
package memory

import (
	"fmt"
)

const (
	NMI_VECTOR   = uint16(0xFFFA)
	RESET_VECTOR = uint16(0xFFFC)
	IRQ_VECTOR   = uint16(0xFFFE)

	// NOP is the opcode free-run test rigs hardwire onto the data bus.
	NOP = uint8(0xEA)
)

type Bank interface {
	// Read returns the data byte stored at addr.
	Read(addr uint16) uint8
	// Write updates addr with the new value. For ROM addresses this is simply a no-op without
	// any error.
	Write(addr uint16, val uint8)
	// PowerOn performs power on reset of the memory. This is implementation specific as to
	// whether it's randomized or preset to all zeros.
	PowerOn()
}

// Flat implements Bank as a full 64k address space with no mirroring.
type Flat struct {
	addr      [65536]uint8
	fillValue uint8
	vectors   map[uint16]uint16
}

var _ = Bank(&Flat{})

// NewFlat returns a powered on Flat filled with fill. Each entry in vectors
// maps a vector address (i.e. RESET_VECTOR) to the little endian 16 bit value stored there.
func NewFlat(fill uint8, vectors map[uint16]uint16) (*Flat, error) {
	for v := range vectors {
		if v == 0xFFFF {
			return nil, fmt.Errorf("vector at %.4X would wrap the address space", v)
		}
	}
	f := &Flat{
		fillValue: fill,
		vectors:   vectors,
	}
	f.PowerOn()
	return f, nil
}

// Read implements the interface for memory.Bank.
func (f *Flat) Read(addr uint16) uint8 {
	return f.addr[addr]
}

// Write implements the interface for memory.Bank.
func (f *Flat) Write(addr uint16, val uint8) {
	f.addr[addr] = val
}

// PowerOn implements the interface for memory.Bank. Everything is set back to the
// fill value and the vectors are rewritten.
func (f *Flat) PowerOn() {
	for i := range f.addr {
		f.addr[i] = f.fillValue
	}
	for v, a := range f.vectors {
		f.addr[v] = uint8(a & 0xFF)
		f.addr[v+1] = uint8((a & 0xFF00) >> 8)
	}
}

// ReadAddr returns the little endian 16 bit value stored at addr.
func (f *Flat) ReadAddr(addr uint16) uint16 {
	return (uint16(f.addr[addr+1]) << 8) + uint16(f.addr[addr])
}
