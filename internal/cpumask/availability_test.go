package cpumask

import (
	"errors"
	"testing"

	"reactor-balance/internal/topology"

	"github.com/google/go-cmp/cmp"
	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
)

func topo112() *topology.Topology {
	return &topology.Topology{
		NumSockets:   2,
		TotalNumCPUs: 112,
		Sockets: []topology.SocketRange{
			{SocketID: 0, PhysicalStart: 0, PhysicalEnd: 27, HTSiblingStart: 56, HTSiblingEnd: 83},
			{SocketID: 1, PhysicalStart: 28, PhysicalEnd: 55, HTSiblingStart: 84, HTSiblingEnd: 111},
		},
	}
}

func TestValidateAvailabilityMaskDefaultsToAll(t *testing.T) {
	t.Parallel()

	logger, _ := logtest.NewNullLogger()
	m, err := ValidateAvailabilityMask(topo112(), "", logger)
	if err != nil {
		t.Fatalf("ValidateAvailabilityMask: %v", err)
	}
	if len(m) != 14 || m.Count() != 112 {
		t.Fatalf("expected 14 bytes all set, got %s", m.Hex())
	}
}

func TestValidateAvailabilityMaskFlipsUsedCores(t *testing.T) {
	t.Parallel()

	logger, _ := logtest.NewNullLogger()
	// cores 0-3 used by another process
	m, err := ValidateAvailabilityMask(topo112(), "0f", logger)
	if err != nil {
		t.Fatalf("ValidateAvailabilityMask: %v", err)
	}
	for cpu := 0; cpu < 4; cpu++ {
		if m.IsAvailable(cpu) {
			t.Fatalf("cpu %d should be unavailable", cpu)
		}
	}
	if m.Count() != 108 {
		t.Fatalf("Count = %d, want 108", m.Count())
	}
	if diff := cmp.Diff([]int{4, 5}, m.GetRange(0, 2).CPUs()); diff != "" {
		t.Fatalf("GetRange mismatch (-want +got):\n%s", diff)
	}
}

func TestValidateAvailabilityMaskMalformedFallsBack(t *testing.T) {
	t.Parallel()

	logger, hook := logtest.NewNullLogger()
	m, err := ValidateAvailabilityMask(topo112(), "0-56", logger)
	if err != nil {
		t.Fatalf("ValidateAvailabilityMask: %v", err)
	}
	if m.Count() != 112 {
		t.Fatalf("expected fallback to all available, got %s", m.Hex())
	}
	if e := hook.LastEntry(); e == nil || e.Level != logrus.WarnLevel {
		t.Fatalf("expected a warning log entry")
	}
}

func TestValidateAvailabilityMaskTooWide(t *testing.T) {
	t.Parallel()

	logger, _ := logtest.NewNullLogger()
	_, err := ValidateAvailabilityMask(topo112(), "ff"+AllAvailable(14).Hex(), logger)
	var sizeErr *InvalidMaskSizeError
	if !errors.As(err, &sizeErr) {
		t.Fatalf("expected InvalidMaskSizeError, got %v", err)
	}
	if sizeErr.Got != 15 || sizeErr.Want != 14 {
		t.Fatalf("unexpected sizes: %+v", sizeErr)
	}
}
