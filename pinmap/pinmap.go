// Package pinmap maps the 6502 bus signals onto physical lines.
package pinmap

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/jmchacon/busmon/pins"
)

const (
	ADDRESS_LINES = 16
	DATA_LINES    = 8
)

// Map holds the line for every observed bus signal. Address[0] and Data[0]
// are the least significant bits.
type Map struct {
	Clock   pins.ID
	RW      pins.ID
	Reset   pins.ID
	Address [ADDRESS_LINES]pins.ID
	Data    [DATA_LINES]pins.ID
}

// Mega2560 returns the wiring of the Mini 6502 SBC debug header on an Arduino Mega2560.
// Clock and reset sit on external interrupt capable pins, A0-A15 on pins 22-52 (even)
// and D0-D7 on pins 23-37 (odd).
func Mega2560() Map {
	m := Map{
		Clock: 2,
		RW:    3,
		Reset: 18,
	}
	for i := range m.Address {
		m.Address[i] = pins.ID(22 + 2*i)
	}
	for i := range m.Data {
		m.Data[i] = pins.ID(23 + 2*i)
	}
	return m
}

// AddressLines returns the address lines in fold order.
func (m Map) AddressLines() []pins.ID {
	return m.Address[:]
}

// DataLines returns the data lines in fold order.
func (m Map) DataLines() []pins.ID {
	return m.Data[:]
}

// All returns every line in the map. Control lines first.
func (m Map) All() []pins.ID {
	out := []pins.ID{m.Clock, m.RW, m.Reset}
	out = append(out, m.Address[:]...)
	return append(out, m.Data[:]...)
}

// Validate checks that no line is negative and no line is used twice.
func (m Map) Validate() error {
	names := map[pins.ID]string{}
	check := func(name string, id pins.ID) error {
		if id < 0 {
			return errors.Errorf("%s: invalid line %d", name, id)
		}
		if prev, ok := names[id]; ok {
			return errors.Errorf("%s: line %d already used by %s", name, id, prev)
		}
		names[id] = name
		return nil
	}
	if err := check("clk", m.Clock); err != nil {
		return err
	}
	if err := check("rw", m.RW); err != nil {
		return err
	}
	if err := check("res", m.Reset); err != nil {
		return err
	}
	for i, id := range m.Address {
		if err := check("a"+strconv.Itoa(i), id); err != nil {
			return err
		}
	}
	for i, id := range m.Data {
		if err := check("d"+strconv.Itoa(i), id); err != nil {
			return err
		}
	}
	return nil
}

// Parse applies a connection list to base and returns the result after validation.
// The list looks like "clk=2, rw=3, res=18, a[0..15]=22..52/2, d[0..7]=23..37/2".
//
//	List       = Assignment { [ space ] "," [ space ] Assignment } .
//	Assignment = signal [ "[" index [ ".." index ] "]" ] "=" lines .
//	signal     = "clk" | "rw" | "res" | "a" | "d" .
//	lines      = line [ ".." line [ "/" step ] ] .
//
// A range on the right must produce exactly as many lines as the range on the left.
func Parse(s string, base Map) (Map, error) {
	m := base
	for _, a := range strings.FieldsFunc(s, func(r rune) bool { return r == ',' }) {
		a = strings.TrimSpace(a)
		if a == "" {
			continue
		}
		i := strings.IndexRune(a, '=')
		if i < 0 {
			return Map{}, errors.New(a + ": not a valid pin mapping (missing =)")
		}
		sig, lo, hi, err := parseSignal(strings.TrimSpace(a[:i]))
		if err != nil {
			return Map{}, errors.Wrap(err, a)
		}
		lines, err := parseLines(strings.TrimSpace(a[i+1:]))
		if err != nil {
			return Map{}, errors.Wrap(err, a)
		}
		if got, want := len(lines), hi-lo+1; got != want {
			return Map{}, errors.Errorf("%s: %d lines given for %d signals", a, got, want)
		}
		var dst []pins.ID
		switch sig {
		case "clk":
			dst = []pins.ID{m.Clock}
		case "rw":
			dst = []pins.ID{m.RW}
		case "res":
			dst = []pins.ID{m.Reset}
		case "a":
			dst = m.Address[lo : hi+1]
		case "d":
			dst = m.Data[lo : hi+1]
		}
		copy(dst, lines)
		switch sig {
		case "clk":
			m.Clock = dst[0]
		case "rw":
			m.RW = dst[0]
		case "res":
			m.Reset = dst[0]
		}
	}
	if err := m.Validate(); err != nil {
		return Map{}, errors.Wrap(err, "invalid pin map")
	}
	return m, nil
}

// parseSignal returns the signal name and the inclusive bit range it covers.
func parseSignal(s string) (string, int, int, error) {
	name, idx := s, ""
	if i := strings.IndexRune(s, '['); i >= 0 {
		if !strings.HasSuffix(s, "]") {
			return "", 0, 0, errors.New("missing ]")
		}
		name, idx = s[:i], s[i+1:len(s)-1]
	}
	width := 1
	switch name {
	case "clk", "rw", "res":
		if idx != "" {
			return "", 0, 0, errors.Errorf("%s can't be indexed", name)
		}
		return name, 0, 0, nil
	case "a":
		width = ADDRESS_LINES
	case "d":
		width = DATA_LINES
	default:
		return "", 0, 0, errors.Errorf("unknown signal %q", name)
	}
	if idx == "" {
		return name, 0, width - 1, nil
	}
	lo, hi, err := parseRange(idx)
	if err != nil {
		return "", 0, 0, err
	}
	if lo > hi || hi >= width {
		return "", 0, 0, errors.Errorf("index range %d..%d out of bounds for %s", lo, hi, name)
	}
	return name, lo, hi, nil
}

func parseRange(s string) (int, int, error) {
	parts := strings.Split(s, "..")
	if len(parts) > 2 {
		return 0, 0, errors.Errorf("invalid range %q", s)
	}
	lo, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil {
		return 0, 0, errors.Wrapf(err, "invalid index %q", parts[0])
	}
	hi := lo
	if len(parts) == 2 {
		if hi, err = strconv.Atoi(strings.TrimSpace(parts[1])); err != nil {
			return 0, 0, errors.Wrapf(err, "invalid index %q", parts[1])
		}
	}
	return lo, hi, nil
}

func parseLines(s string) ([]pins.ID, error) {
	step := 1
	if i := strings.IndexRune(s, '/'); i >= 0 {
		var err error
		if step, err = strconv.Atoi(strings.TrimSpace(s[i+1:])); err != nil || step <= 0 {
			return nil, errors.Errorf("invalid step %q", s[i+1:])
		}
		s = s[:i]
	}
	lo, hi, err := parseRange(s)
	if err != nil {
		return nil, err
	}
	if lo > hi {
		return nil, errors.Errorf("descending line range %d..%d", lo, hi)
	}
	if (hi-lo)%step != 0 {
		return nil, errors.Errorf("line range %d..%d isn't a multiple of step %d", lo, hi, step)
	}
	var out []pins.ID
	for l := lo; l <= hi; l += step {
		out = append(out, pins.ID(l))
	}
	return out, nil
}
