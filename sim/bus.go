// Package sim provides an in memory bus the monitor can be attached to
// without hardware, along with a simple processor to drive it.
package sim

import (
	"fmt"
	"sync"

	"github.com/jmchacon/busmon/irq"
	"github.com/jmchacon/busmon/pins"
)

var (
	_ = pins.Reader(&Bus{})
	_ = pins.Driver(&Bus{})
	_ = irq.Source(&Bus{})
)

// Bus is a set of lines with two sides. The processor side sets levels with
// Set, the monitor side may override a line with Drive until it's released.
// A change in the effective level of an attached line calls its handler
// synchronously on the goroutine which made the change, the same way an
// interrupt runs in the middle of whatever was executing.
type Bus struct {
	mu       sync.Mutex
	levels   map[pins.ID]bool
	driven   map[pins.ID]bool
	handlers map[pins.ID]irq.Handler
}

// NewBus returns a Bus with every line low.
func NewBus() *Bus {
	return &Bus{
		levels:   make(map[pins.ID]bool),
		driven:   make(map[pins.ID]bool),
		handlers: make(map[pins.ID]irq.Handler),
	}
}

// level must be called with mu held.
func (b *Bus) level(id pins.ID) bool {
	if v, ok := b.driven[id]; ok {
		return v
	}
	return b.levels[id]
}

// Level implements pins.Reader.
func (b *Bus) Level(id pins.ID) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.level(id)
}

// Drive implements pins.Driver.
func (b *Bus) Drive(id pins.ID, level bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.driven[id] = level
}

// Release implements pins.Driver.
func (b *Bus) Release(id pins.ID) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.driven, id)
}

// Driven returns whether the monitor side currently drives id.
func (b *Bus) Driven(id pins.ID) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.driven[id]
	return ok
}

// Attach implements irq.Source.
func (b *Bus) Attach(id pins.ID, h irq.Handler) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.handlers[id]; ok {
		return fmt.Errorf("line %d already has a handler", id)
	}
	b.handlers[id] = h
	return nil
}

// Set changes the processor side level of id and runs any handler if the
// effective level changed.
func (b *Bus) Set(id pins.ID, level bool) {
	b.mu.Lock()
	old := b.level(id)
	b.levels[id] = level
	now := b.level(id)
	h := b.handlers[id]
	b.mu.Unlock()
	if h != nil && old != now {
		h(now)
	}
}

// SetValue sets bit i of val onto ids[i] through Set.
func (b *Bus) SetValue(ids []pins.ID, val uint16) {
	for i, id := range ids {
		b.Set(id, (val>>uint(i))&0x01 == 0x01)
	}
}
