package topology

import "fmt"

// SocketRange describes one NUMA socket: an inclusive range of physical
// core ids and the parallel, equally sized range of their HT siblings.
//
// PhysicalStart and HTSiblingStart act as the socket's free pointer during
// allocation and only ever move forward, in lock-step.
type SocketRange struct {
	SocketID       int `json:"socket" yaml:"socket"`
	PhysicalStart  int `json:"physical_start" yaml:"physical_start"`
	PhysicalEnd    int `json:"physical_end" yaml:"physical_end"`
	HTSiblingStart int `json:"ht_sibling_start" yaml:"ht_sibling_start"`
	HTSiblingEnd   int `json:"ht_sibling_end" yaml:"ht_sibling_end"`
}

// PhysicalCores returns the number of physical cores left in the free region.
func (s SocketRange) PhysicalCores() int {
	if s.PhysicalEnd < s.PhysicalStart {
		return 0
	}
	return s.PhysicalEnd - s.PhysicalStart + 1
}

// Advance moves both free pointers forward by n ids.
func (s *SocketRange) Advance(n int) {
	if n <= 0 {
		return
	}
	s.PhysicalStart += n
	s.HTSiblingStart += n
}

func (s SocketRange) String() string {
	return fmt.Sprintf("socket %d: %d-%d,%d-%d", s.SocketID,
		s.PhysicalStart, s.PhysicalEnd, s.HTSiblingStart, s.HTSiblingEnd)
}

// Topology is the parsed NUMA layout of a host.
type Topology struct {
	NumSockets   int           `json:"num_sockets" yaml:"num_sockets"`
	TotalNumCPUs int           `json:"total_num_cpus" yaml:"total_num_cpus"`
	Sockets      []SocketRange `json:"sockets" yaml:"sockets"`
}

// Clone returns a deep copy, so allocation can advance free pointers
// without touching the parsed model.
func (t *Topology) Clone() *Topology {
	if t == nil {
		return nil
	}
	out := *t
	out.Sockets = append([]SocketRange(nil), t.Sockets...)
	return &out
}

// MaskBytes is the width in bytes of a CPU bitmask covering every CPU id.
func (t *Topology) MaskBytes() int {
	return (t.TotalNumCPUs + 7) / 8
}

// PhysicalCores returns the number of physical cores over all parsed sockets.
func (t *Topology) PhysicalCores() int {
	total := 0
	for _, s := range t.Sockets {
		total += s.PhysicalCores()
	}
	return total
}

// TopologyError reports a topology description that cannot drive an
// allocation at all.
type TopologyError struct {
	Source string
	Reason string
}

func (e *TopologyError) Error() string {
	if e.Source == "" {
		return fmt.Sprintf("invalid topology: %s", e.Reason)
	}
	return fmt.Sprintf("invalid topology %s: %s", e.Source, e.Reason)
}
