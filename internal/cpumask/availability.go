package cpumask

import (
	"fmt"

	"reactor-balance/internal/logging"
	"reactor-balance/internal/topology"

	"github.com/sirupsen/logrus"
)

// InvalidMaskSizeError is returned when an external mask is wider than the
// topology's CPU id space.
type InvalidMaskSizeError struct {
	Got  int
	Want int
}

func (e *InvalidMaskSizeError) Error() string {
	return fmt.Sprintf("availability mask is %d bytes, topology allows at most %d", e.Got, e.Want)
}

// ValidateAvailabilityMask returns the mask of CPU ids this allocator may
// use. usedHex is the taskset mask of cores claimed by another process; an
// empty string means every core is available. Each used bit is flipped off
// by XOR against an all-ones mask. Malformed hex is logged and treated as
// "nothing used".
func ValidateAvailabilityMask(topo *topology.Topology, usedHex string, logger logrus.FieldLogger) (Mask, error) {
	if logger == nil {
		logger = logging.GetLogger()
	}
	if topo == nil {
		return nil, &topology.TopologyError{Reason: "topology is nil"}
	}

	width := topo.MaskBytes()
	all := AllAvailable(width)
	if usedHex == "" {
		return all, nil
	}

	used, err := ParseHex(usedHex)
	if err != nil {
		logger.WithField("taskset", usedHex).WithError(err).Warn("Ignoring malformed availability mask, all CPUs available")
		return all, nil
	}
	if len(used) > width {
		return nil, &InvalidMaskSizeError{Got: len(used), Want: width}
	}

	avail := xor(all, used.PadTo(width))
	logger.WithFields(logrus.Fields{
		"taskset":   usedHex,
		"available": avail.Count(),
		"total":     topo.TotalNumCPUs,
	}).Debug("Applied availability mask")
	return avail, nil
}
