// Package pins defines the basic interfaces for working with the
// individual lines of a 6502 family bus (clock, R/W, reset, address and
// data). Each backend (real GPIO, simulation) maps a line ID onto whatever
// it physically is and implements these interfaces.
package pins

// ID identifies a single bus line. For the GPIO backend this is the GPIO
// number, for the Mega2560 wiring it's the Arduino pin number.
type ID int

// Reader returns line levels.
type Reader interface {
	// Level returns the instantaneous logic level of the given line (true == high).
	// It must not have side effects.
	Level(id ID) bool
}

// Driver is implemented by backends which can also drive lines. Only the
// intercepting sampler uses this, a passive observer never drives anything.
type Driver interface {
	// Drive switches the line to an output and sets it to level.
	Drive(id ID, level bool)
	// Release returns the line to an input (high impedance).
	Release(id ID)
}

// Fold reads every line in ids in immediate succession and assembles them into
// a value. ids[0] is the least significant bit.
func Fold(r Reader, ids []ID) uint16 {
	var v uint16
	for i, id := range ids {
		if r.Level(id) {
			v |= 1 << uint(i)
		}
	}
	return v
}

// Spread is the inverse of Fold. It drives bit i of val onto ids[i].
func Spread(d Driver, ids []ID, val uint16) {
	for i, id := range ids {
		d.Drive(id, (val>>uint(i))&0x01 == 0x01)
	}
}

// ReleaseAll returns every line in ids to an input.
func ReleaseAll(d Driver, ids []ID) {
	for _, id := range ids {
		d.Release(id)
	}
}
