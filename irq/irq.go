// Package irq defines the basic interfaces for working with edge
// triggered interrupt sources on the observed bus. A backend which can
// watch lines (GPIO, simulation) implements Source and calls the installed
// Handler on every transition, exactly like an AVR external interrupt
// configured for CHANGE.
// NOTE: Handlers may be invoked from different goroutines for different
//       lines. Anything shared between handlers must be guarded by the
//       implementor.
package irq

import (
	"github.com/jmchacon/busmon/pins"
)

// Edge is an enumeration of the clock transitions.
type Edge int

const (
	EDGE_UNIMPLEMENTED Edge = iota // Start of valid edge enumerations.
	EDGE_FALLING                   // High to low transition.
	EDGE_RISING                    // Low to high transition.
	EDGE_MAX                       // End of edge enumerations.
)

// String implements fmt.Stringer.
func (e Edge) String() string {
	switch e {
	case EDGE_FALLING:
		return "falling"
	case EDGE_RISING:
		return "rising"
	}
	return "invalid"
}

// EdgeOf returns the edge which produced the new level.
func EdgeOf(level bool) Edge {
	if level {
		return EDGE_RISING
	}
	return EDGE_FALLING
}

// Handler is an interrupt service routine. It's passed the level the line
// transitioned to and must run to completion without blocking.
type Handler func(level bool)

// Source is implemented by anything which can raise interrupts for line transitions.
type Source interface {
	// Attach installs h to be called on every transition of line id.
	// Only one handler per line is supported.
	Attach(id pins.ID, h Handler) error
}
