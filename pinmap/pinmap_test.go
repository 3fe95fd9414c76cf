package pinmap

import (
	"testing"

	"github.com/go-test/deep"

	"github.com/jmchacon/busmon/pins"
)

func TestMega2560(t *testing.T) {
	m := Mega2560()
	if err := m.Validate(); err != nil {
		t.Fatalf("Default wiring doesn't validate: %v", err)
	}
	if got, want := m.Address[15], pins.ID(52); got != want {
		t.Errorf("Bad A15. Got %d and want %d", got, want)
	}
	if got, want := m.Data[7], pins.ID(37); got != want {
		t.Errorf("Bad D7. Got %d and want %d", got, want)
	}
	if got, want := len(m.All()), 3+ADDRESS_LINES+DATA_LINES; got != want {
		t.Errorf("Bad line count. Got %d and want %d", got, want)
	}
}

func TestParse(t *testing.T) {
	// Same wiring as the Mega but spelled out.
	m, err := Parse("clk=2, rw=3, res=18, a[0..15]=22..52/2, d=23..37/2", Map{})
	if err != nil {
		t.Fatalf("Can't parse: %v", err)
	}
	if diff := deep.Equal(m, Mega2560()); diff != nil {
		t.Errorf("Parsed map differs from Mega2560: %v", diff)
	}

	// Swapping two single lines.
	m, err = Parse("d[0]=37, d[7]=23", Mega2560())
	if err != nil {
		t.Fatalf("Can't parse swap: %v", err)
	}
	if got, want := m.Data[0], pins.ID(37); got != want {
		t.Errorf("Bad D0 after swap. Got %d and want %d", got, want)
	}
	if got, want := m.Data[7], pins.ID(23); got != want {
		t.Errorf("Bad D7 after swap. Got %d and want %d", got, want)
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		in   string
	}{
		{
			name: "missing equals",
			in:   "clk2",
		},
		{
			name: "unknown signal",
			in:   "phi2=4",
		},
		{
			name: "indexed control line",
			in:   "clk[0]=4",
		},
		{
			name: "index out of range",
			in:   "d[0..8]=60..68",
		},
		{
			name: "count mismatch",
			in:   "a[0..3]=60..62",
		},
		{
			name: "bad step",
			in:   "a[0..1]=60..63/2",
		},
		{
			name: "duplicate line",
			in:   "clk=3",
		},
		{
			name: "negative line",
			in:   "rw=-1",
		},
	}
	for _, test := range tests {
		test := test
		t.Run(test.name, func(t *testing.T) {
			t.Parallel()
			if _, err := Parse(test.in, Mega2560()); err == nil {
				t.Errorf("%s: didn't get error parsing %q", test.name, test.in)
			}
		})
	}
}
