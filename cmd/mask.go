package cmd

import (
	"fmt"
	"io"

	"reactor-balance/internal/cpumask"
	"reactor-balance/internal/topology"

	"github.com/spf13/cobra"
)

type maskOptions struct {
	cpus     string
	hex      string
	numCPUs  int
	lscpu    string
	siblings bool
}

func newMaskCommand() *cobra.Command {
	opts := &maskOptions{}

	maskCmd := &cobra.Command{
		Use:   "mask",
		Short: "Convert between cpu lists and taskset masks",
		Long: "With --cpus, prints the taskset mask of a cpu list such as 0-3,8. " +
			"With --hex, prints the cpu list of a taskset mask; --siblings splits it " +
			"into physical cores and the hyperthread siblings they imply, plus the " +
			"taskset mask covering both.",
		Example: "  reactor-balance mask --cpus 0-2,28-30 --num-cpus 112\n" +
			"  reactor-balance mask --hex 0f -u numa_nodes.json --siblings",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.run(cmd.OutOrStdout())
		},
	}

	flags := maskCmd.Flags()
	flags.StringVar(&opts.cpus, "cpus", "", "Comma separated cpu intervals, eg. 0-3,8")
	flags.StringVar(&opts.hex, "hex", "", "Hex taskset mask")
	flags.IntVar(&opts.numCPUs, "num-cpus", 0, "Total number of CPUs the mask covers")
	flags.StringVarP(&opts.lscpu, "lscpu", "u", "", "Take the CPU count from a .json file produced by lscpu --json")
	flags.BoolVar(&opts.siblings, "siblings", false, "Print the physical cores of --hex and their HT siblings")

	maskCmd.MarkFlagsMutuallyExclusive("cpus", "hex")
	maskCmd.MarkFlagsOneRequired("cpus", "hex")
	maskCmd.MarkFlagsMutuallyExclusive("num-cpus", "lscpu")

	return maskCmd
}

// width returns the mask width in bytes, 0 when neither a CPU count nor a
// topology was given.
func (o *maskOptions) width() (int, error) {
	if o.lscpu != "" {
		topo, err := topology.LoadLscpuJSON(o.lscpu)
		if err != nil {
			return 0, err
		}
		return topo.MaskBytes(), nil
	}
	if o.numCPUs < 0 {
		return 0, fmt.Errorf("%w: --num-cpus must not be negative", ErrInvalidArguments)
	}
	return (o.numCPUs + 7) / 8, nil
}

func (o *maskOptions) run(w io.Writer) error {
	width, err := o.width()
	if err != nil {
		return err
	}

	if o.cpus != "" {
		if o.siblings {
			return fmt.Errorf("%w: --siblings only applies to --hex", ErrInvalidArguments)
		}
		if width == 0 {
			return fmt.Errorf("%w: --cpus needs --num-cpus or --lscpu", ErrInvalidArguments)
		}
		m, err := cpumask.FromCPUList(width, o.cpus)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidArguments, err)
		}
		_, err = fmt.Fprintln(w, m.Hex())
		return err
	}

	m, err := cpumask.ParseHex(o.hex)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidArguments, err)
	}
	if width > 0 {
		if len(m) > width {
			return &cpumask.InvalidMaskSizeError{Got: len(m), Want: width}
		}
		m = m.PadTo(width)
	}

	if !o.siblings {
		_, err = fmt.Fprintln(w, m.CPUList())
		return err
	}

	physical, siblings, err := splitSiblings(m)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidArguments, err)
	}
	both, err := physical.Or(siblings)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "physical: %s\nsiblings: %s\ntaskset: %s\n",
		physical.CPUList(), siblings.CPUList(), both.Hex())
	return err
}

// splitSiblings keeps the physical half of m (the trailing bytes) and
// derives the HT siblings of those cores.
func splitSiblings(m cpumask.Mask) (cpumask.Mask, cpumask.Mask, error) {
	if len(m)%2 != 0 {
		return nil, nil, cpumask.ErrOddWidth
	}
	half := len(m) / 2
	physical := cpumask.New(len(m))
	copy(physical[half:], m[half:])

	siblings, err := physical.SetAllHTSiblings()
	if err != nil {
		return nil, nil, err
	}
	return physical, siblings, nil
}
