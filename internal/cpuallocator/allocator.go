package cpuallocator

import (
	"fmt"

	"reactor-balance/internal/cpumask"
	"reactor-balance/internal/logging"
	"reactor-balance/internal/topology"

	idset "github.com/intel/goresctrl/pkg/utils"
	"github.com/sirupsen/logrus"
)

// Allocator carves per-instance physical core ranges out of a topology.
// Each call to Allocate works on its own copy of the sockets, so one
// Allocator can serve several independent runs.
type Allocator struct {
	topo   *topology.Topology
	avail  cpumask.Mask
	logger logrus.FieldLogger
}

// NewAllocator returns an allocator for topo. When avail is non-nil, slices
// are taken only from available ids and HT siblings are derived from the
// mask rather than from the socket's sibling range.
func NewAllocator(topo *topology.Topology, avail cpumask.Mask, logger logrus.FieldLogger) (*Allocator, error) {
	if topo == nil {
		return nil, &topology.TopologyError{Reason: "topology is nil"}
	}
	if topo.NumSockets <= 0 || len(topo.Sockets) == 0 {
		return nil, &topology.TopologyError{Reason: "topology has no sockets"}
	}
	if avail != nil && len(avail) != topo.MaskBytes() {
		return nil, &cpumask.InvalidMaskSizeError{Got: len(avail), Want: topo.MaskBytes()}
	}
	if logger == nil {
		logger = logging.GetAllocatorLogger()
	}
	return &Allocator{
		topo:   topo,
		avail:  avail,
		logger: logger,
	}, nil
}

// MaxInstances is the global capacity bound: sockets times the core count
// implied by the first socket's last physical id, divided by reactors.
// A request is accepted only when it stays strictly below this bound.
func (a *Allocator) MaxInstances(reactors int) int {
	if reactors <= 0 {
		return 0
	}
	numSockets := len(a.topo.Sockets)
	return numSockets * (a.topo.Sockets[0].PhysicalEnd + 1) / reactors
}

func (a *Allocator) Allocate(req Request) (*Result, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	strategy, _ := ParseStrategy(string(req.Strategy))
	req.Strategy = strategy

	maxInstances := a.MaxInstances(req.ReactorsPerInstance)
	a.logger.WithFields(logrus.Fields{
		"strategy":      req.Strategy,
		"instances":     req.NumInstances,
		"reactors":      req.ReactorsPerInstance,
		"sockets":       len(a.topo.Sockets),
		"max_instances": maxInstances,
		"masked":        a.avail != nil,
	}).Debug("Starting core allocation")

	if maxInstances <= req.NumInstances {
		return nil, &CapacityError{
			Requested:    req.NumInstances,
			MaxInstances: maxInstances,
			Reactors:     req.ReactorsPerInstance,
		}
	}

	run := &allocation{
		Allocator: a,
		sockets:   a.topo.Clone().Sockets,
		disable:   idset.NewIDSet(),
		result: &Result{
			Request:     req,
			Instances:   make([]Instance, 0, req.NumInstances),
			MaskWidth:   a.topo.MaskBytes(),
			Masked:      a.avail != nil,
			TruncatedAt: -1,
		},
	}

	var err error
	switch req.Strategy {
	case StrategySocket:
		err = run.socketDistributed(req)
	default:
		err = run.instanceConsolidated(req)
	}
	if err != nil {
		return nil, err
	}

	for _, id := range run.disable.SortedMembers() {
		run.result.HTSiblings = append(run.result.HTSiblings, int(id))
	}

	a.logger.WithFields(logrus.Fields{
		"strategy":    req.Strategy,
		"instances":   len(run.result.Instances),
		"ht_siblings": len(run.result.HTSiblings),
		"truncated":   run.result.Truncated,
	}).Info("Core allocation completed")

	return run.result, nil
}

// allocation is the state of one Allocate call.
type allocation struct {
	*Allocator
	sockets []topology.SocketRange
	disable idset.IDSet
	result  *Result
}

func (r *allocation) instanceConsolidated(req Request) error {
	numSockets := len(r.sockets)
	step := req.ReactorsPerInstance

	for i := 0; i < req.NumInstances; i++ {
		inst := Instance{ID: i}
		socket := &r.sockets[i%numSockets]

		slice, ok, err := r.carve(i, socket, step)
		if err != nil {
			return err
		}
		if !ok {
			// Later instances get nothing: the run stops at the first
			// exhausted socket.
			r.truncate(i, socket, step)
			for j := i; j < req.NumInstances; j++ {
				r.result.Instances = append(r.result.Instances, Instance{ID: j})
			}
			return nil
		}
		inst.Slices = append(inst.Slices, slice)
		r.result.Instances = append(r.result.Instances, inst)
	}
	return nil
}

func (r *allocation) socketDistributed(req Request) error {
	numSockets := len(r.sockets)
	step := req.ReactorsPerInstance / numSockets
	remainder := req.ReactorsPerInstance % numSockets

	for i := 0; i < req.NumInstances; i++ {
		inst := Instance{ID: i}
		candidate := i % numSockets

		for s := range r.sockets {
			socket := &r.sockets[s]
			localStep := step
			if socket.SocketID == candidate {
				localStep += remainder
			}
			if localStep == 0 {
				continue
			}

			slice, ok, err := r.carve(i, socket, localStep)
			if err != nil {
				return err
			}
			if !ok {
				r.truncate(i, socket, localStep)
				break
			}
			inst.Slices = append(inst.Slices, slice)
		}
		r.result.Instances = append(r.result.Instances, inst)
	}
	return nil
}

// carve takes step physical cores from the socket's free region and
// advances its pointers. ok is false when the region cannot hold them:
// the slice's exclusive end must not pass the socket's last physical id.
func (r *allocation) carve(instance int, socket *topology.SocketRange, step int) (Slice, bool, error) {
	if r.avail != nil {
		return r.carveMasked(instance, socket, step)
	}

	start := socket.PhysicalStart
	end := start + step
	if end > socket.PhysicalEnd {
		return Slice{}, false, nil
	}

	slice := Slice{
		SocketID: socket.SocketID,
		Start:    start,
		End:      end - 1,
	}
	for cpu := start; cpu < end; cpu++ {
		slice.CPUs = append(slice.CPUs, cpu)
	}
	for ht := socket.HTSiblingStart; ht < socket.HTSiblingStart+step; ht++ {
		slice.HTSiblings = append(slice.HTSiblings, ht)
		r.disable.Add(idset.ID(ht))
	}
	socket.Advance(step)

	r.traceSlice(instance, slice)
	return slice, true, nil
}

func (r *allocation) carveMasked(instance int, socket *topology.SocketRange, step int) (Slice, bool, error) {
	picked := r.avail.GetRange(socket.PhysicalStart, step)
	cpus := picked.CPUs()
	if len(cpus) < step || cpus[len(cpus)-1]+1 > socket.PhysicalEnd {
		return Slice{}, false, nil
	}

	siblings, err := picked.SetAllHTSiblings()
	if err != nil {
		return Slice{}, false, fmt.Errorf("instance %d, socket %d: cannot derive HT siblings of %s: %w",
			instance, socket.SocketID, picked.CPUList(), err)
	}

	slice := Slice{
		SocketID:   socket.SocketID,
		Start:      cpus[0],
		End:        cpus[len(cpus)-1],
		CPUs:       cpus,
		HTSiblings: siblings.CPUs(),
	}
	for _, ht := range slice.HTSiblings {
		r.disable.Add(idset.ID(ht))
	}
	socket.Advance(slice.End + 1 - socket.PhysicalStart)

	r.traceSlice(instance, slice)
	return slice, true, nil
}

func (r *allocation) truncate(instance int, socket *topology.SocketRange, step int) {
	if !r.result.Truncated {
		r.result.Truncated = true
		r.result.TruncatedAt = instance
	}
	r.logger.WithFields(logrus.Fields{
		"instance":       instance,
		"socket":         socket.SocketID,
		"physical_start": socket.PhysicalStart,
		"physical_end":   socket.PhysicalEnd,
		"step":           step,
	}).Warn("Socket out of physical cores, allocation truncated")
}

func (r *allocation) traceSlice(instance int, slice Slice) {
	r.logger.WithFields(logrus.Fields{
		"instance":    instance,
		"socket":      slice.SocketID,
		"start":       slice.Start,
		"end":         slice.End,
		"ht_siblings": slice.HTSiblings,
	}).Debug("Allocated slice")
}
