// Package serial opens the link the monitor stream is written to. The
// device is put in raw mode at a fixed baud rate so nothing in the tty
// layer rewrites the CRLF terminated lines.
package serial

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"time"

	"github.com/pkg/term"
)

const (
	DEFAULT_BAUD  = 115200
	DEFAULT_RETRY = 250 * time.Millisecond
)

// Port is an open serial link.
type Port struct {
	t    io.WriteCloser
	name string
}

// PortDef defines the link to open.
type PortDef struct {
	// Device is the tty to open, i.e. /dev/ttyUSB0. Required.
	Device string
	// Baud is the line rate. If zero DEFAULT_BAUD is used.
	Baud int
	// WaitForSerial if true keeps retrying until the device can be opened
	// (a USB adapter being plugged in) or the context ends.
	WaitForSerial bool
	// Retry is the wait between attempts. If zero DEFAULT_RETRY is used.
	Retry time.Duration
	// Logger reports the first failed attempt while waiting. If nil log.Default() is used.
	Logger *log.Logger
}

// open is replaced in tests.
var open = func(name string, baud int) (io.WriteCloser, error) {
	return term.Open(name, term.Speed(baud), term.RawMode)
}

// Open opens the link described by def.
func Open(ctx context.Context, def *PortDef) (*Port, error) {
	if def == nil || def.Device == "" {
		return nil, errors.New("serial needs a device")
	}
	baud := def.Baud
	if baud == 0 {
		baud = DEFAULT_BAUD
	}
	if baud < 0 {
		return nil, fmt.Errorf("invalid baud rate %d", baud)
	}
	retry := def.Retry
	if retry <= 0 {
		retry = DEFAULT_RETRY
	}
	logger := def.Logger
	if logger == nil {
		logger = log.Default()
	}
	for attempt := 0; ; attempt++ {
		t, err := open(def.Device, baud)
		if err == nil {
			return &Port{t: t, name: def.Device}, nil
		}
		if !def.WaitForSerial {
			return nil, fmt.Errorf("can't open %s: %v", def.Device, err)
		}
		if attempt == 0 {
			logger.Printf("waiting for %s: %v", def.Device, err)
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("gave up waiting for %s: %w", def.Device, ctx.Err())
		case <-time.After(retry):
		}
	}
}

// Write implements io.Writer.
func (p *Port) Write(b []byte) (int, error) {
	return p.t.Write(b)
}

// Close closes the device. Output already written is still sent, the tty
// driver holds close(2) until it has gone out on the wire. Don't use
// term.Flush here, that discards it.
func (p *Port) Close() error {
	if err := p.t.Close(); err != nil {
		return fmt.Errorf("can't close %s: %v", p.name, err)
	}
	return nil
}

// String implements fmt.Stringer.
func (p *Port) String() string {
	return p.name
}
