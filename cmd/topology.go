package cmd

import (
	"encoding/json"
	"fmt"
	"io"

	"reactor-balance/internal/topology"

	"github.com/spf13/cobra"
)

func newTopologyCommand() *cobra.Command {
	var lscpuFile string
	var asJSON bool

	topologyCmd := &cobra.Command{
		Use:   "topology",
		Short: "Show the socket layout parsed from lscpu --json",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			topo, err := topology.LoadLscpuJSON(lscpuFile)
			if err != nil {
				return err
			}
			return printTopology(cmd.OutOrStdout(), topo, asJSON)
		},
	}

	topologyCmd.Flags().StringVarP(&lscpuFile, "lscpu", "u", "", "Input file: .json file produced by lscpu --json")
	topologyCmd.Flags().BoolVar(&asJSON, "json", false, "Print the topology as JSON")
	topologyCmd.MarkFlagRequired("lscpu")

	return topologyCmd
}

func printTopology(w io.Writer, topo *topology.Topology, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(topo)
	}

	if _, err := fmt.Fprintf(w, "sockets: %d\ncpus: %d\nphysical cores: %d\n",
		topo.NumSockets, topo.TotalNumCPUs, topo.PhysicalCores()); err != nil {
		return err
	}
	for _, s := range topo.Sockets {
		if _, err := fmt.Fprintln(w, s.String()); err != nil {
			return err
		}
	}
	return nil
}
