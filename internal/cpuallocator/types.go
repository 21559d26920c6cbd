package cpuallocator

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"reactor-balance/internal/cpumask"
)

type Strategy string

const (
	// StrategyInstance keeps all reactors of an instance on one socket,
	// assigning whole instances to sockets round-robin.
	StrategyInstance Strategy = "osd"
	// StrategySocket spreads the reactors of every instance evenly across
	// all sockets, rotating which socket takes the remainder.
	StrategySocket Strategy = "socket"
)

var (
	ErrInvalidRequest  = errors.New("invalid allocation request")
	ErrUnknownStrategy = errors.New("unknown balance strategy")
)

// ParseStrategy maps a selector to a Strategy. The empty string selects the
// instance-consolidated default.
func ParseStrategy(s string) (Strategy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "osd", "instance", "false":
		return StrategyInstance, nil
	case "socket", "numa":
		return StrategySocket, nil
	default:
		return "", fmt.Errorf("%w: %q (valid: osd, socket)", ErrUnknownStrategy, s)
	}
}

type Request struct {
	NumInstances        int      `json:"instances" yaml:"instances"`
	ReactorsPerInstance int      `json:"reactors" yaml:"reactors"`
	Strategy            Strategy `json:"strategy" yaml:"strategy"`
}

func (r Request) Validate() error {
	if r.NumInstances <= 0 {
		return fmt.Errorf("%w: number of instances must be >= 1, got %d", ErrInvalidRequest, r.NumInstances)
	}
	if r.ReactorsPerInstance <= 0 {
		return fmt.Errorf("%w: reactors per instance must be >= 1, got %d", ErrInvalidRequest, r.ReactorsPerInstance)
	}
	if _, err := ParseStrategy(string(r.Strategy)); err != nil {
		return err
	}
	return nil
}

// Slice is the run of physical cores one socket contributes to one
// instance. Start and End are inclusive; CPUs is contiguous unless an
// availability mask punched holes into the socket's range.
type Slice struct {
	SocketID   int   `json:"socket" yaml:"socket"`
	Start      int   `json:"start" yaml:"start"`
	End        int   `json:"end" yaml:"end"`
	CPUs       []int `json:"cpus" yaml:"cpus"`
	HTSiblings []int `json:"ht_siblings" yaml:"ht_siblings"`
}

// String renders the slice as "start-end". Non-contiguous slices render
// each contiguous run that way, comma separated.
func (s Slice) String() string {
	if len(s.CPUs) == 0 {
		return fmt.Sprintf("%d-%d", s.Start, s.End)
	}
	var parts []string
	runStart := s.CPUs[0]
	prev := s.CPUs[0]
	for _, cpu := range s.CPUs[1:] {
		if cpu == prev+1 {
			prev = cpu
			continue
		}
		parts = append(parts, fmt.Sprintf("%d-%d", runStart, prev))
		runStart, prev = cpu, cpu
	}
	parts = append(parts, fmt.Sprintf("%d-%d", runStart, prev))
	return strings.Join(parts, ",")
}

type Instance struct {
	ID     int     `json:"instance" yaml:"instance"`
	Slices []Slice `json:"slices" yaml:"slices"`
}

// RangeList joins the slice strings with ",", in socket visiting order.
func (i Instance) RangeList() string {
	parts := make([]string, 0, len(i.Slices))
	for _, s := range i.Slices {
		parts = append(parts, s.String())
	}
	return strings.Join(parts, ",")
}

// CPUs returns every physical core of the instance, sorted.
func (i Instance) CPUs() []int {
	var cpus []int
	for _, s := range i.Slices {
		cpus = append(cpus, s.CPUs...)
	}
	return uniqueSorted(cpus)
}

// HTSiblings returns the HT siblings of the instance's cores, sorted.
func (i Instance) HTSiblings() []int {
	var cpus []int
	for _, s := range i.Slices {
		cpus = append(cpus, s.HTSiblings...)
	}
	return uniqueSorted(cpus)
}

// Mask returns the taskset mask of the instance's physical cores.
func (i Instance) Mask(width int) (cpumask.Mask, error) {
	return cpumask.FromCPUs(width, i.CPUs()...)
}

// Result holds one entry per requested instance, in instance order.
//
// Truncated reports that some socket ran out of room during the run; the
// affected instances simply carry fewer (or no) slices. TruncatedAt is the
// first such instance, -1 when nothing was truncated.
type Result struct {
	Request     Request    `json:"request" yaml:"request"`
	Instances   []Instance `json:"instances" yaml:"instances"`
	HTSiblings  []int      `json:"ht_siblings" yaml:"ht_siblings"`
	MaskWidth   int        `json:"-" yaml:"-"`
	Masked      bool       `json:"masked" yaml:"masked"`
	Truncated   bool       `json:"truncated" yaml:"truncated"`
	TruncatedAt int        `json:"truncated_at" yaml:"truncated_at"`
}

// CapacityError reports a request that exceeds the global physical core
// budget of the topology.
type CapacityError struct {
	Requested    int
	MaxInstances int
	Reactors     int
}

func (e *CapacityError) Error() string {
	return fmt.Sprintf("not enough physical CPU cores: %d instances of %d reactors requested, must stay below %d",
		e.Requested, e.Reactors, e.MaxInstances)
}

func uniqueSorted(vals []int) []int {
	cp := append([]int(nil), vals...)
	sort.Ints(cp)
	out := make([]int, 0, len(cp))
	for i, v := range cp {
		if i > 0 && cp[i-1] == v {
			continue
		}
		out = append(out, v)
	}
	return out
}
