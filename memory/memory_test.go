package memory

import "testing"

func TestFlat(t *testing.T) {
	f, err := NewFlat(NOP, map[uint16]uint16{RESET_VECTOR: 0x1FFE, IRQ_VECTOR: 0xD001})
	if err != nil {
		t.Fatalf("Can't create Flat: %v", err)
	}
	if got, want := f.Read(0x1234), NOP; got != want {
		t.Errorf("Bad fill value. Got %.2X and want %.2X", got, want)
	}
	if got, want := f.ReadAddr(RESET_VECTOR), uint16(0x1FFE); got != want {
		t.Errorf("Bad reset vector. Got %.4X and want %.4X", got, want)
	}
	if got, want := f.ReadAddr(IRQ_VECTOR), uint16(0xD001); got != want {
		t.Errorf("Bad IRQ vector. Got %.4X and want %.4X", got, want)
	}
	f.Write(0x0200, 0x42)
	if got, want := f.Read(0x0200), uint8(0x42); got != want {
		t.Errorf("Bad Write/Read cycle. Got %.2X and want %.2X", got, want)
	}
	f.PowerOn()
	if got, want := f.Read(0x0200), NOP; got != want {
		t.Errorf("PowerOn didn't refill. Got %.2X and want %.2X", got, want)
	}
}

func TestFlatBadVector(t *testing.T) {
	if _, err := NewFlat(0x00, map[uint16]uint16{0xFFFF: 0x0000}); err == nil {
		t.Error("Didn't get error for vector at top of memory?")
	}
}
