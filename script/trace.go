package script

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/jmchacon/busmon/format"
)

// FromTrace turns a captured monitor stream into a script which replays it.
// Sample lines become cycle() calls, a run of RESET lines becomes a
// hold_reset() released before the next sample. The replay bus starts with
// reset asserted so the first sample is always preceded by a release_reset(). Banner and rollover lines
// are kept as comments. Anything else is an error unless lenient is set in
// which case it's dropped with a comment.
func FromTrace(r io.Reader, w io.Writer, lenient bool) error {
	scanner := bufio.NewScanner(r)
	out := bufio.NewWriter(w)
	inReset := false
	released := false
	l := 0
	for scanner.Scan() {
		l++
		t := strings.TrimSpace(scanner.Text())
		switch t {
		case "":
			continue
		case format.RESET:
			if !inReset {
				fmt.Fprintln(out, "hold_reset()")
				inReset = true
			}
			continue
		case format.BANNER, format.RELEASING, format.ROLLOVER:
			fmt.Fprintf(out, "-- %s\n", t)
			continue
		}
		_, addr, data, marker, err := format.ParseLine(t)
		if err != nil {
			if !lenient {
				return fmt.Errorf("line %d: %v", l, err)
			}
			fmt.Fprintf(out, "-- line %d dropped: %q\n", l, t)
			continue
		}
		if inReset || !released {
			fmt.Fprintln(out, "release_reset()")
			inReset = false
			released = true
		}
		write := "false"
		if marker == 'W' {
			write = "true"
		}
		fmt.Fprintf(out, "cycle(0x%.4X, 0x%.2X, %s)\n", addr, data, write)
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("can't read trace: %v", err)
	}
	return out.Flush()
}
