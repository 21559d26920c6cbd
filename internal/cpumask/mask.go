package cpumask

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"k8s.io/utils/cpuset"
)

// Mask is a CPU bitmask laid out the way taskset prints it: the last byte
// holds CPUs 0-7, so CPU id n lives at byte len-1-n/8, bit n%8.
type Mask []byte

var (
	ErrOddWidth       = errors.New("mask width must be an even number of bytes")
	ErrSiblingBitsSet = errors.New("mask has bits set in the HT sibling half")
	ErrCPUOutOfRange  = errors.New("cpu id out of mask range")
	ErrEmptyHexMask   = errors.New("empty hex mask")
)

// New returns a zeroed mask of width bytes.
func New(width int) Mask {
	if width < 0 {
		width = 0
	}
	return make(Mask, width)
}

// AllAvailable returns a mask of width bytes with every bit on.
func AllAvailable(width int) Mask {
	m := New(width)
	for i := range m {
		m[i] = 0xff
	}
	return m
}

// MaxCPU is one past the highest representable CPU id.
func (m Mask) MaxCPU() int {
	return 8 * len(m)
}

func (m Mask) location(cpu int) (int, uint, bool) {
	if cpu < 0 || cpu >= m.MaxCPU() {
		return 0, 0, false
	}
	return len(m) - 1 - cpu/8, uint(cpu % 8), true
}

// IsAvailable reports whether the bit for cpu is on. Ids outside the mask
// are never available.
func (m Mask) IsAvailable(cpu int) bool {
	idx, bit, ok := m.location(cpu)
	if !ok {
		return false
	}
	return GetNormalizedBit(m[idx], bit) == 1
}

// Set turns the bit for cpu on in place. Out of range ids are ignored.
func (m Mask) Set(cpu int) {
	if idx, bit, ok := m.location(cpu); ok {
		m[idx] = SetBit(m[idx], bit)
	}
}

// Clear turns the bit for cpu off in place.
func (m Mask) Clear(cpu int) {
	if idx, bit, ok := m.location(cpu); ok {
		m[idx] = ClearBit(m[idx], bit)
	}
}

func (m Mask) Clone() Mask {
	return append(Mask(nil), m...)
}

// GetRange scans forward from start and collects the first length
// available ids into a fresh mask of the same width. It stops at MaxCPU, so
// the result may hold fewer than length bits.
func (m Mask) GetRange(start, length int) Mask {
	out := New(len(m))
	if start < 0 {
		start = 0
	}
	count := 0
	for cpu := start; count < length && cpu < m.MaxCPU(); cpu++ {
		if !m.IsAvailable(cpu) {
			continue
		}
		out.Set(cpu)
		count++
	}
	return out
}

// SetRange returns a copy of m with every id in [start, end) turned on,
// regardless of availability.
func (m Mask) SetRange(start, end int) Mask {
	out := m.Clone()
	for cpu := start; cpu < end; cpu++ {
		out.Set(cpu)
	}
	return out
}

// SetAllHTSiblings mirrors a physical-core mask onto the HT sibling half of
// the id space: byte half+i of m is ORed into byte i of a fresh mask, which
// maps CPU n to CPU n+MaxCPU/2. m must only have bits in its physical half
// (the trailing bytes).
func (m Mask) SetAllHTSiblings() (Mask, error) {
	if len(m)%2 != 0 {
		return nil, ErrOddWidth
	}
	half := len(m) / 2
	for i := 0; i < half; i++ {
		if m[i] != 0 {
			return nil, ErrSiblingBitsSet
		}
	}
	out := New(len(m))
	for i := 0; i < half; i++ {
		out[i] |= m[half+i]
	}
	return out, nil
}

// Or returns the bitwise union of two masks of the same width.
func (m Mask) Or(other Mask) (Mask, error) {
	if len(m) != len(other) {
		return nil, fmt.Errorf("mask width mismatch: %d != %d", len(m), len(other))
	}
	out := m.Clone()
	for i := range out {
		out[i] |= other[i]
	}
	return out, nil
}

func xor(a, b Mask) Mask {
	out := New(len(a))
	for i := range out {
		out[i] = a[i] ^ b[i]
	}
	return out
}

// CPUs lists the ids whose bit is on, ascending.
func (m Mask) CPUs() []int {
	var cpus []int
	for cpu := 0; cpu < m.MaxCPU(); cpu++ {
		if m.IsAvailable(cpu) {
			cpus = append(cpus, cpu)
		}
	}
	return cpus
}

func (m Mask) Count() int {
	n := 0
	for _, b := range m {
		for bit := uint(0); bit < 8; bit++ {
			n += int(GetNormalizedBit(b, bit))
		}
	}
	return n
}

func (m Mask) IsEmpty() bool {
	for _, b := range m {
		if b != 0 {
			return false
		}
	}
	return true
}

// Hex renders the mask as taskset accepts it, leading zero bytes included.
func (m Mask) Hex() string {
	return hex.EncodeToString(m)
}

func (m Mask) String() string {
	return m.Hex()
}

// CPUList renders the set ids in Linux cpu-list format, e.g. "0-3,8".
func (m Mask) CPUList() string {
	return cpuset.New(m.CPUs()...).String()
}

// ParseHex decodes a taskset style hex mask. A 0x prefix and comma word
// separators are accepted; an odd number of digits is padded on the left.
func ParseHex(s string) (Mask, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	s = strings.ReplaceAll(s, ",", "")
	if s == "" {
		return nil, ErrEmptyHexMask
	}
	if len(s)%2 != 0 {
		s = "0" + s
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid hex mask %q: %w", s, err)
	}
	return Mask(b), nil
}

// FromCPUs builds a mask of width bytes with the given ids on.
func FromCPUs(width int, cpus ...int) (Mask, error) {
	m := New(width)
	for _, cpu := range cpus {
		if cpu < 0 || cpu >= m.MaxCPU() {
			return nil, fmt.Errorf("%w: cpu %d, mask covers 0-%d", ErrCPUOutOfRange, cpu, m.MaxCPU()-1)
		}
		m.Set(cpu)
	}
	return m, nil
}

// FromCPUList builds a mask from a Linux cpu-list such as "0-3,8,10-11".
func FromCPUList(width int, list string) (Mask, error) {
	set, err := cpuset.Parse(strings.TrimSpace(list))
	if err != nil {
		return nil, fmt.Errorf("invalid cpu list %q: %w", list, err)
	}
	return FromCPUs(width, set.List()...)
}

// PadTo left-pads m with zero bytes up to width. Wider masks are returned
// unchanged.
func (m Mask) PadTo(width int) Mask {
	if len(m) >= width {
		return m
	}
	out := New(width)
	copy(out[width-len(m):], m)
	return out
}
