package cmd

import (
	"fmt"
	"io"

	"reactor-balance/internal/config"
	"reactor-balance/internal/cpuallocator"
	"reactor-balance/internal/cpumask"
	"reactor-balance/internal/logging"
	"reactor-balance/internal/output"
	"reactor-balance/internal/topology"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

type balanceOptions struct {
	configFile string
	lscpu      string
	taskset    string
	instances  int
	reactors   int
	strategy   string
	format     string
}

func newBalanceCommand() *cobra.Command {
	opts := &balanceOptions{}

	balanceCmd := &cobra.Command{
		Use:   "balance",
		Short: "Allocate physical cores to OSD reactors",
		Long: "Prints one line of core ranges per OSD, in OSD order, followed by a line " +
			"with the hyperthread siblings of every allocated core.",
		Example: "  reactor-balance balance -u numa_nodes.json -o 8 -r 3\n" +
			"  reactor-balance balance -u numa_nodes.json -t 0f -b socket --format json",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.resolve(cmd)
			if err != nil {
				return err
			}
			return runBalance(cmd.OutOrStdout(), cfg)
		},
	}

	flags := balanceCmd.Flags()
	flags.StringVarP(&opts.configFile, "config", "c", "", "Path to balance configuration file")
	flags.StringVarP(&opts.lscpu, "lscpu", "u", "", "Input file: .json file produced by lscpu --json")
	flags.StringVarP(&opts.taskset, "taskset", "t", "", "Hex taskset mask of the cores already in use (eg. by vstart)")
	flags.IntVarP(&opts.instances, "num-osd", "o", config.DefaultInstances, "Number of OSDs")
	flags.IntVarP(&opts.reactors, "num-reactor", "r", config.DefaultReactors, "Number of Seastar reactors per OSD")
	flags.StringVarP(&opts.strategy, "balance", "b", string(cpuallocator.StrategyInstance), "CPU balance strategy: osd, socket (NUMA)")
	flags.StringVar(&opts.format, "format", config.DefaultOutput, "Output format: text, json, yaml")

	return balanceCmd
}

// resolve merges the optional config file with the flags given on the
// command line, flags taking precedence.
func (o *balanceOptions) resolve(cmd *cobra.Command) (*config.BalanceConfig, error) {
	cfg := config.Default()
	if o.configFile != "" {
		loaded, err := config.ReadConfig(o.configFile)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidArguments, err)
		}
		cfg = loaded
	}

	flags := cmd.Flags()
	if flags.Changed("lscpu") {
		cfg.Balance.Lscpu = o.lscpu
	}
	if flags.Changed("taskset") {
		cfg.Balance.Taskset = o.taskset
	}
	if flags.Changed("num-osd") {
		cfg.Balance.Instances = o.instances
	}
	if flags.Changed("num-reactor") {
		cfg.Balance.Reactors = o.reactors
	}
	if flags.Changed("balance") {
		cfg.Balance.Strategy = o.strategy
	}
	if flags.Changed("format") {
		cfg.Balance.Output = o.format
	}

	if err := config.Validate(cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidArguments, err)
	}

	if o.configFile != "" && !flags.Changed("log-level") && !flags.Changed("verbose") {
		if err := setLogLevel(cfg.Balance.LogLevel); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

func runBalance(w io.Writer, cfg *config.BalanceConfig) error {
	logger := logging.GetLogger()

	topo, err := topology.LoadLscpuJSON(cfg.Balance.Lscpu)
	if err != nil {
		return err
	}

	// Without a taskset mask every core is free and slices are carved
	// arithmetically from the socket ranges.
	var avail cpumask.Mask
	if cfg.Balance.Taskset != "" {
		avail, err = cpumask.ValidateAvailabilityMask(topo, cfg.Balance.Taskset, logger)
		if err != nil {
			return err
		}
	}

	allocator, err := cpuallocator.NewAllocator(topo, avail, nil)
	if err != nil {
		return err
	}

	req, err := cfg.Request()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidArguments, err)
	}

	res, err := allocator.Allocate(req)
	if err != nil {
		return err
	}
	if res.Truncated {
		logger.WithFields(logrus.Fields{
			"truncated_at": res.TruncatedAt,
			"instances":    req.NumInstances,
		}).Warn("Not every OSD received its full share of cores")
	}

	format, err := output.ParseFormat(cfg.Balance.Output)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidArguments, err)
	}

	var checksum string
	if format != output.FormatText {
		checksum, err = config.PlanChecksum(cfg, topo)
		if err != nil {
			return err
		}
	}

	return output.Write(w, format, res, checksum)
}
