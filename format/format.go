// Package format renders bus values as the fixed width text the monitor
// stream has always used and provides a line printer for it.
//
// A sample line looks like
//
//	PC: 0000 ADDR: 0000000000000001 0001 DATA: 11101010 EA r
//
// and every line ends in CRLF. Field widths, order and separators are fixed
// since existing capture tooling splits on them.
package format

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
)

const (
	BANNER    = "Debug Monitor for 6502 Bus (Mini 6502 SBC rev 1.0)"
	RELEASING = "Releasing Reset..."
	RESET     = "RESET"
	ROLLOVER  = "PC Rollover"

	EOL = "\r\n"
)

// Word returns the 16 character binary representation of w (MSB first).
func Word(w uint16) string {
	var b [16]byte
	for i := range b {
		b[i] = '0'
		if w&(1<<uint(15-i)) != 0 {
			b[i] = '1'
		}
	}
	return string(b[:])
}

// Byte returns the 8 character binary representation of v (MSB first).
func Byte(v uint8) string {
	return Word(uint16(v))[8:]
}

// WordHex returns w as 4 upper case hex digits.
func WordHex(w uint16) string {
	return fmt.Sprintf("%.4X", w)
}

// ByteHex returns v as 2 upper case hex digits.
func ByteHex(v uint8) string {
	return fmt.Sprintf("%.2X", v)
}

// Line renders one completed bus cycle. marker is 'r' for a processor read and 'W' for a write.
func Line(cycle uint16, addr uint16, data uint8, marker byte) string {
	return "PC: " + WordHex(cycle) +
		" ADDR: " + Word(addr) + " " + WordHex(addr) +
		" DATA: " + Byte(data) + " " + ByteHex(data) +
		" " + string(marker)
}

// ParseLine is the inverse of Line. It checks the binary fields agree with
// the hex ones.
func ParseLine(l string) (cycle uint16, addr uint16, data uint8, marker byte, err error) {
	toks := strings.Fields(strings.TrimRight(l, EOL))
	if len(toks) != 9 || toks[0] != "PC:" || toks[2] != "ADDR:" || toks[5] != "DATA:" {
		return 0, 0, 0, 0, fmt.Errorf("not a sample line: %q", l)
	}
	field := func(hex, bin string, bits int) (uint64, error) {
		h, err := strconv.ParseUint(hex, 16, bits)
		if err != nil {
			return 0, fmt.Errorf("bad hex field %q: %v", hex, err)
		}
		if bin == "" {
			return h, nil
		}
		if len(bin) != bits {
			return 0, fmt.Errorf("binary field %q isn't %d bits", bin, bits)
		}
		b, err := strconv.ParseUint(bin, 2, bits)
		if err != nil {
			return 0, fmt.Errorf("bad binary field %q: %v", bin, err)
		}
		if b != h {
			return 0, fmt.Errorf("binary %q and hex %q disagree", bin, hex)
		}
		return h, nil
	}
	c, err := field(toks[1], "", 16)
	if err != nil {
		return 0, 0, 0, 0, err
	}
	a, err := field(toks[4], toks[3], 16)
	if err != nil {
		return 0, 0, 0, 0, err
	}
	d, err := field(toks[7], toks[6], 8)
	if err != nil {
		return 0, 0, 0, 0, err
	}
	if toks[8] != "r" && toks[8] != "W" {
		return 0, 0, 0, 0, fmt.Errorf("bad direction marker %q", toks[8])
	}
	return uint16(c), uint16(a), uint8(d), toks[8][0], nil
}

// Printer writes whole lines to an underlying writer. It's safe for use from
// multiple goroutines and never stops on a write error, those are counted and
// the most recent one is kept for Err.
type Printer struct {
	mu   sync.Mutex
	w    io.Writer
	errs int
	err  error
}

// NewPrinter returns a Printer writing to w.
func NewPrinter(w io.Writer) *Printer {
	return &Printer{w: w}
}

// Println writes s followed by EOL as a single write.
func (p *Printer) Println(s string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, err := io.WriteString(p.w, s+EOL); err != nil {
		p.errs++
		p.err = err
	}
}

// Err returns the number of failed writes and the most recent error.
func (p *Printer) Err() (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.errs, p.err
}
