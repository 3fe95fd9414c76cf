package script

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/go-test/deep"

	"github.com/jmchacon/busmon/format"
	"github.com/jmchacon/busmon/monitor"
	"github.com/jmchacon/busmon/pinmap"
	"github.com/jmchacon/busmon/sim"
)

const capture = `Debug Monitor for 6502 Bus (Mini 6502 SBC rev 1.0)
Releasing Reset...
RESET
RESET
PC: 0000 ADDR: 1111111111111100 FFFC DATA: 00000000 00 r
PC: 0001 ADDR: 1111111111111101 FFFD DATA: 00000000 00 r
PC: 0002 ADDR: 0000000000000000 0000 DATA: 11101010 EA r
PC: 0003 ADDR: 0000000111111101 01FD DATA: 01000010 42 W
`

func TestFromTrace(t *testing.T) {
	var lua bytes.Buffer
	if err := FromTrace(strings.NewReader(capture), &lua, false); err != nil {
		t.Fatalf("Can't convert: %v", err)
	}
	want := `-- Debug Monitor for 6502 Bus (Mini 6502 SBC rev 1.0)
-- Releasing Reset...
hold_reset()
release_reset()
cycle(0xFFFC, 0x00, false)
cycle(0xFFFD, 0x00, false)
cycle(0x0000, 0xEA, false)
cycle(0x01FD, 0x42, true)
`
	if got := lua.String(); got != want {
		t.Errorf("Bad script.\nGot:\n%s\nwant:\n%s", got, want)
	}

	// Replaying the script through a monitor reproduces the capture.
	b := sim.NewBus()
	var out bytes.Buffer
	m, err := monitor.Init(&monitor.MonitorDef{Reader: b, Pins: pinmap.Mega2560(), Sink: monitor.TextSink{P: format.NewPrinter(&out)}})
	if err != nil {
		t.Fatalf("Can't init monitor: %v", err)
	}
	if err := m.Attach(b); err != nil {
		t.Fatalf("Can't attach: %v", err)
	}
	if err := Run(context.Background(), &ScriptDef{Bus: b, Pins: pinmap.Mega2560(), Source: lua.String()}); err != nil {
		t.Fatalf("Can't replay: %v", err)
	}
	var wantLines []string
	for _, l := range strings.Split(capture, "\n") {
		if strings.HasPrefix(l, "PC:") {
			wantLines = append(wantLines, l)
		}
	}
	gotLines := strings.Split(strings.TrimSuffix(out.String(), format.EOL), format.EOL)
	if diff := deep.Equal(gotLines, wantLines); diff != nil {
		t.Errorf("Replay differs from capture: %v", diff)
	}
}

// replay runs lua against a fresh bus and monitor and returns the monitor's output lines.
func replay(t *testing.T, lua string) ([]string, monitor.Stats) {
	t.Helper()
	b := sim.NewBus()
	var out bytes.Buffer
	m, err := monitor.Init(&monitor.MonitorDef{Reader: b, Pins: pinmap.Mega2560(), Sink: monitor.TextSink{P: format.NewPrinter(&out)}})
	if err != nil {
		t.Fatalf("Can't init monitor: %v", err)
	}
	if err := m.Attach(b); err != nil {
		t.Fatalf("Can't attach: %v", err)
	}
	if err := Run(context.Background(), &ScriptDef{Bus: b, Pins: pinmap.Mega2560(), Source: lua}); err != nil {
		t.Fatalf("Can't replay: %v", err)
	}
	if out.Len() == 0 {
		return nil, m.Stats()
	}
	return strings.Split(strings.TrimSuffix(out.String(), format.EOL), format.EOL), m.Stats()
}

func TestFromTraceNoReset(t *testing.T) {
	// Captured after the processor was already running, no RESET lines at all.
	lines := []string{
		"PC: 0000 ADDR: 0000000000000001 0001 DATA: 11101010 EA r",
		"PC: 0001 ADDR: 0000000000000010 0002 DATA: 11101010 EA r",
	}
	var lua bytes.Buffer
	if err := FromTrace(strings.NewReader(strings.Join(lines, "\r\n")+"\r\n"), &lua, false); err != nil {
		t.Fatalf("Can't convert: %v", err)
	}
	want := `release_reset()
cycle(0x0001, 0xEA, false)
cycle(0x0002, 0xEA, false)
`
	if got := lua.String(); got != want {
		t.Errorf("Bad script.\nGot:\n%s\nwant:\n%s", got, want)
	}
	got, st := replay(t, lua.String())
	if diff := deep.Equal(got, lines); diff != nil {
		t.Errorf("Replay differs from capture: %v", diff)
	}
	if got, want := st.Discarded, uint64(0); got != want {
		t.Errorf("Replayed cycles discarded. Got %d and want %d", got, want)
	}
}

func TestFromTraceResetMidStream(t *testing.T) {
	in := "PC: 0000 ADDR: 0000000000000001 0001 DATA: 11101010 EA r\n" +
		"RESET\n" +
		"RESET\n" +
		"PC: 0000 ADDR: 1111111111111100 FFFC DATA: 00000000 00 r\n"
	var lua bytes.Buffer
	if err := FromTrace(strings.NewReader(in), &lua, false); err != nil {
		t.Fatalf("Can't convert: %v", err)
	}
	want := `release_reset()
cycle(0x0001, 0xEA, false)
hold_reset()
release_reset()
cycle(0xFFFC, 0x00, false)
`
	if got := lua.String(); got != want {
		t.Errorf("Bad script.\nGot:\n%s\nwant:\n%s", got, want)
	}
}

func TestFromTraceErrors(t *testing.T) {
	bad := "PC: 0000 ADDR: garbage\n"
	var lua bytes.Buffer
	if err := FromTrace(strings.NewReader(bad), &lua, false); err == nil {
		t.Error("Didn't get error for a bad line")
	}
	lua.Reset()
	if err := FromTrace(strings.NewReader(bad), &lua, true); err != nil {
		t.Errorf("Lenient conversion failed: %v", err)
	}
	if !strings.HasPrefix(lua.String(), "-- line 1 dropped") {
		t.Errorf("Dropped line not noted: %q", lua.String())
	}
}
