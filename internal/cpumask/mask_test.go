package cpumask

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestByteHelpers(t *testing.T) {
	t.Parallel()

	if got := GetBit(0b0000_0100, 2); got != 4 {
		t.Fatalf("GetBit = %d, want 4", got)
	}
	if got := GetBit(0b0000_0100, 1); got != 0 {
		t.Fatalf("GetBit = %d, want 0", got)
	}
	if got := GetNormalizedBit(0b1000_0000, 7); got != 1 {
		t.Fatalf("GetNormalizedBit = %d, want 1", got)
	}
	if got := SetBit(0, 3); got != 0b0000_1000 {
		t.Fatalf("SetBit = %08b", got)
	}
	if got := ClearBit(0xff, 0); got != 0xfe {
		t.Fatalf("ClearBit = %x", got)
	}
}

func TestMaskLayoutMatchesTaskset(t *testing.T) {
	t.Parallel()

	m := New(2)
	m.Set(0)
	m.Set(9)
	if diff := cmp.Diff(Mask{0x02, 0x01}, m); diff != "" {
		t.Fatalf("layout mismatch (-want +got):\n%s", diff)
	}
	if m.Hex() != "0201" {
		t.Fatalf("Hex = %q, want 0201", m.Hex())
	}
}

func TestSetRoundTripTouchesOnlyOneBit(t *testing.T) {
	t.Parallel()

	for cpu := 0; cpu < 32; cpu++ {
		m := New(4)
		before := m.Clone()
		m.Set(cpu)
		if !m.IsAvailable(cpu) {
			t.Fatalf("cpu %d not set", cpu)
		}
		for other := 0; other < 32; other++ {
			if other == cpu {
				continue
			}
			if m.IsAvailable(other) != before.IsAvailable(other) {
				t.Fatalf("setting cpu %d changed cpu %d", cpu, other)
			}
		}
		m.Clear(cpu)
		if !m.IsEmpty() {
			t.Fatalf("clear of cpu %d left %s", cpu, m.Hex())
		}
	}
}

func TestOutOfRangeIDs(t *testing.T) {
	t.Parallel()

	m := AllAvailable(1)
	if m.IsAvailable(8) || m.IsAvailable(-1) {
		t.Fatalf("ids outside the mask must not be available")
	}
	m.Set(100)
	if m.Hex() != "ff" {
		t.Fatalf("out of range Set modified mask: %s", m.Hex())
	}
}

func TestGetRangeSkipsUnavailable(t *testing.T) {
	t.Parallel()

	// cores 0-3 unavailable
	avail := Mask{0xf0}
	got := avail.GetRange(0, 2)
	if diff := cmp.Diff([]int{4, 5}, got.CPUs()); diff != "" {
		t.Fatalf("GetRange mismatch (-want +got):\n%s", diff)
	}
	if len(got) != len(avail) {
		t.Fatalf("result width %d, want %d", len(got), len(avail))
	}
}

func TestGetRangeStopsAtCeiling(t *testing.T) {
	t.Parallel()

	avail := Mask{0x00, 0xc0} // cpus 6,7
	got := avail.GetRange(0, 4)
	if diff := cmp.Diff([]int{6, 7}, got.CPUs()); diff != "" {
		t.Fatalf("GetRange mismatch (-want +got):\n%s", diff)
	}
	if got.Count() != 2 {
		t.Fatalf("Count = %d, want 2", got.Count())
	}
}

func TestSetRangeIgnoresAvailability(t *testing.T) {
	t.Parallel()

	base := New(2)
	got := base.SetRange(3, 6)
	if diff := cmp.Diff([]int{3, 4, 5}, got.CPUs()); diff != "" {
		t.Fatalf("SetRange mismatch (-want +got):\n%s", diff)
	}
	if !base.IsEmpty() {
		t.Fatalf("SetRange mutated its receiver")
	}
}

func TestSetAllHTSiblings(t *testing.T) {
	t.Parallel()

	// 112 CPUs, HT siblings are id+56.
	phys, err := FromCPUs(14, 0, 1, 2, 28, 55)
	if err != nil {
		t.Fatalf("FromCPUs: %v", err)
	}
	sib, err := phys.SetAllHTSiblings()
	if err != nil {
		t.Fatalf("SetAllHTSiblings: %v", err)
	}
	if diff := cmp.Diff([]int{56, 57, 58, 84, 111}, sib.CPUs()); diff != "" {
		t.Fatalf("siblings mismatch (-want +got):\n%s", diff)
	}
	for _, cpu := range sib.CPUs() {
		if cpu < 56 {
			t.Fatalf("sibling %d in physical half", cpu)
		}
	}

	again, err := phys.SetAllHTSiblings()
	if err != nil {
		t.Fatalf("SetAllHTSiblings: %v", err)
	}
	if diff := cmp.Diff(sib, again); diff != "" {
		t.Fatalf("not deterministic (-first +second):\n%s", diff)
	}
}

func TestSetAllHTSiblingsPreconditions(t *testing.T) {
	t.Parallel()

	if _, err := (Mask{0, 0, 0}).SetAllHTSiblings(); !errors.Is(err, ErrOddWidth) {
		t.Fatalf("expected ErrOddWidth, got %v", err)
	}
	m, _ := FromCPUs(2, 9) // upper byte, i.e. sibling half
	if _, err := m.SetAllHTSiblings(); !errors.Is(err, ErrSiblingBitsSet) {
		t.Fatalf("expected ErrSiblingBitsSet, got %v", err)
	}
}

func TestParseHex(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		in      string
		want    Mask
		wantErr bool
	}{
		{name: "plain", in: "ff0f", want: Mask{0xff, 0x0f}},
		{name: "0x prefix", in: "0x0f", want: Mask{0x0f}},
		{name: "odd length is left padded", in: "fff", want: Mask{0x0f, 0xff}},
		{name: "comma separated words", in: "000000ff,ffffffff", want: Mask{0, 0, 0, 0xff, 0xff, 0xff, 0xff, 0xff}},
		{name: "empty", in: "", wantErr: true},
		{name: "invalid hex", in: "zz", wantErr: true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseHex(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err=%v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr {
				if diff := cmp.Diff(tt.want, got); diff != "" {
					t.Fatalf("ParseHex mismatch (-want +got):\n%s", diff)
				}
			}
		})
	}
}

func TestCPUListConversions(t *testing.T) {
	t.Parallel()

	m, err := FromCPUList(2, "0-3,8,10-11")
	if err != nil {
		t.Fatalf("FromCPUList: %v", err)
	}
	if m.Hex() != "0d0f" {
		t.Fatalf("Hex = %q, want 0d0f", m.Hex())
	}
	if m.CPUList() != "0-3,8,10-11" {
		t.Fatalf("CPUList = %q", m.CPUList())
	}
	if _, err := FromCPUList(1, "0-8"); !errors.Is(err, ErrCPUOutOfRange) {
		t.Fatalf("expected ErrCPUOutOfRange, got %v", err)
	}
	if _, err := FromCPUList(1, "a-b"); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestOrAndPad(t *testing.T) {
	t.Parallel()

	a := Mask{0x01}.PadTo(2)
	if diff := cmp.Diff(Mask{0x00, 0x01}, a); diff != "" {
		t.Fatalf("PadTo mismatch (-want +got):\n%s", diff)
	}
	u, err := a.Or(Mask{0x80, 0x00})
	if err != nil {
		t.Fatalf("Or: %v", err)
	}
	if u.Hex() != "8001" {
		t.Fatalf("Or = %s", u.Hex())
	}
	if _, err := a.Or(Mask{0}); err == nil {
		t.Fatalf("expected width mismatch error")
	}
}
