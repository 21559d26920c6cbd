package config

import (
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"strings"

	"reactor-balance/internal/cpuallocator"
	"reactor-balance/internal/topology"
)

type planChecksumPayload struct {
	Sockets   []topology.SocketRange `json:"sockets"`
	TotalCPUs int                    `json:"total_cpus"`
	Taskset   string                 `json:"taskset,omitempty"`
	Instances int                    `json:"instances"`
	Reactors  int                    `json:"reactors"`
	Strategy  string                 `json:"strategy"`
}

// PlanChecksum returns a short, stable checksum that identifies an
// allocation plan: the topology, the availability mask and the request.
// Output format and log level do not contribute.
//
// It computes MD5 over a canonical JSON representation and returns the first 6 hex
// characters (equivalent to `md5sum | cut -c1-6`).
func PlanChecksum(cfg *BalanceConfig, topo *topology.Topology) (string, error) {
	if cfg == nil || topo == nil {
		return "", nil
	}

	strategy, err := cpuallocator.ParseStrategy(cfg.Balance.Strategy)
	if err != nil {
		return "", err
	}

	payload := planChecksumPayload{
		Sockets:   topo.Sockets,
		TotalCPUs: topo.TotalNumCPUs,
		Taskset:   strings.ToLower(strings.TrimPrefix(strings.TrimSpace(cfg.Balance.Taskset), "0x")),
		Instances: cfg.Balance.Instances,
		Reactors:  cfg.Balance.Reactors,
		Strategy:  string(strategy),
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	sum := md5.Sum(b)
	hexStr := hex.EncodeToString(sum[:])
	if len(hexStr) > 6 {
		hexStr = hexStr[:6]
	}
	return hexStr, nil
}
