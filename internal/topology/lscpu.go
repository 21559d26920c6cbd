package topology

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"reactor-balance/internal/logging"

	"github.com/sirupsen/logrus"
)

// Field is one row of `lscpu --json`. Recent util-linux releases nest rows
// under section headers, hence Children.
type Field struct {
	Field    string  `json:"field"`
	Data     string  `json:"data"`
	Children []Field `json:"children,omitempty"`
}

type lscpuOutput struct {
	Lscpu []Field `json:"lscpu"`
}

var (
	numCPUsRe  = regexp.MustCompile(`^CPU\(s\):$`)
	numNodesRe = regexp.MustCompile(`^NUMA node\(s\):$`)
	nodeRe     = regexp.MustCompile(`^NUMA node(\d+) CPU\(s\):$`)
	rangesRe   = regexp.MustCompile(`(\d+)-(\d+),(\d+)-(\d+)`)
)

// LoadLscpuJSON reads a file produced by `lscpu --json` and parses it.
func LoadLscpuJSON(path string) (*Topology, error) {
	logger := logging.GetLogger()

	f, err := os.Open(path)
	if err != nil {
		logger.WithField("filepath", path).WithError(err).Error("Failed to open lscpu file")
		return nil, &TopologyError{Source: path, Reason: err.Error()}
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, &TopologyError{Source: path, Reason: err.Error()}
	}
	if info.Size() == 0 {
		return nil, &TopologyError{Source: path, Reason: "file is empty"}
	}

	fields, err := Decode(f)
	if err != nil {
		logger.WithField("filepath", path).WithError(err).Error("Failed to decode lscpu file")
		return nil, &TopologyError{Source: path, Reason: err.Error()}
	}

	topo, err := ParseFields(fields, logger)
	if err != nil {
		if te, ok := err.(*TopologyError); ok {
			te.Source = path
		}
		return nil, err
	}
	return topo, nil
}

// Decode reads lscpu JSON and returns its rows flattened in document order.
func Decode(r io.Reader) ([]Field, error) {
	var out lscpuOutput
	if err := json.NewDecoder(r).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode lscpu json: %w", err)
	}
	return flatten(out.Lscpu, nil), nil
}

func flatten(in []Field, acc []Field) []Field {
	for _, f := range in {
		acc = append(acc, Field{Field: f.Field, Data: f.Data})
		if len(f.Children) > 0 {
			acc = append(acc, flatten(f.Children, nil)...)
		}
	}
	return acc
}

// ParseFields builds a Topology from lscpu rows. Three field shapes are
// recognised: "CPU(s):", "NUMA node(s):" and "NUMA node<N> CPU(s):" whose
// value must read "<a>-<b>,<c>-<d>" (physical range, then HT sibling range).
// A node row with any other value is skipped with a warning. Everything
// else is ignored.
func ParseFields(fields []Field, logger logrus.FieldLogger) (*Topology, error) {
	if logger == nil {
		logger = logging.GetLogger()
	}

	topo := &Topology{}
	seen := make(map[int]bool)

	for _, f := range fields {
		name := strings.TrimSpace(f.Field)
		data := strings.TrimSpace(f.Data)

		switch {
		case numCPUsRe.MatchString(name):
			n, err := strconv.Atoi(data)
			if err != nil {
				logger.WithField("field", name).WithField("data", data).Warn("Ignoring unparsable CPU count")
				continue
			}
			topo.TotalNumCPUs = n

		case numNodesRe.MatchString(name):
			n, err := strconv.Atoi(data)
			if err != nil {
				logger.WithField("field", name).WithField("data", data).Warn("Ignoring unparsable NUMA node count")
				continue
			}
			topo.NumSockets = n

		default:
			m := nodeRe.FindStringSubmatch(name)
			if m == nil {
				continue
			}
			socketID, _ := strconv.Atoi(m[1])
			socket, ok := parseSocketRange(socketID, data)
			if !ok {
				logger.WithFields(logrus.Fields{
					"socket": socketID,
					"data":   data,
				}).Warn("Skipping NUMA node with unexpected CPU range format")
				continue
			}
			if seen[socketID] {
				logger.WithField("socket", socketID).Warn("Skipping duplicate NUMA node entry")
				continue
			}
			seen[socketID] = true
			topo.Sockets = append(topo.Sockets, socket)
		}
	}

	if topo.NumSockets <= 0 {
		return nil, &TopologyError{Reason: "no NUMA node count found"}
	}
	if len(topo.Sockets) == 0 {
		return nil, &TopologyError{Reason: "no usable NUMA node CPU ranges found"}
	}
	if len(topo.Sockets) != topo.NumSockets {
		logger.WithFields(logrus.Fields{
			"num_sockets":    topo.NumSockets,
			"parsed_sockets": len(topo.Sockets),
		}).Warn("NUMA node count does not match parsed node ranges")
	}

	sort.Slice(topo.Sockets, func(i, j int) bool {
		return topo.Sockets[i].SocketID < topo.Sockets[j].SocketID
	})

	if topo.TotalNumCPUs <= 0 {
		maxID := 0
		for _, s := range topo.Sockets {
			if s.HTSiblingEnd > maxID {
				maxID = s.HTSiblingEnd
			}
			if s.PhysicalEnd > maxID {
				maxID = s.PhysicalEnd
			}
		}
		topo.TotalNumCPUs = maxID + 1
		logger.WithField("total_num_cpus", topo.TotalNumCPUs).Warn("CPU count missing, derived from NUMA node ranges")
	}

	logger.WithFields(logrus.Fields{
		"num_sockets":    topo.NumSockets,
		"total_num_cpus": topo.TotalNumCPUs,
		"sockets":        len(topo.Sockets),
	}).Debug("Parsed lscpu topology")

	return topo, nil
}

func parseSocketRange(socketID int, data string) (SocketRange, bool) {
	m := rangesRe.FindStringSubmatch(data)
	if m == nil {
		return SocketRange{}, false
	}
	vals := make([]int, 4)
	for i := range vals {
		v, err := strconv.Atoi(m[i+1])
		if err != nil {
			return SocketRange{}, false
		}
		vals[i] = v
	}
	s := SocketRange{
		SocketID:       socketID,
		PhysicalStart:  vals[0],
		PhysicalEnd:    vals[1],
		HTSiblingStart: vals[2],
		HTSiblingEnd:   vals[3],
	}
	if s.PhysicalStart > s.PhysicalEnd || s.HTSiblingStart > s.HTSiblingEnd {
		return SocketRange{}, false
	}
	return s, true
}
