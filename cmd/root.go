package cmd

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"reactor-balance/internal/cpuallocator"
	"reactor-balance/internal/cpumask"
	"reactor-balance/internal/logging"
	"reactor-balance/internal/topology"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

const Version = "1.0.0"

// ErrInvalidArguments marks command line or configuration misuse.
var ErrInvalidArguments = errors.New("invalid arguments")

const (
	ExitOK               = 0
	ExitFailure          = 1
	ExitInvalidArguments = 2
	ExitTopology         = 3
	ExitCapacity         = 4
	ExitMaskSize         = 5
)

// ExitCode maps an error returned by Execute to the process exit status.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}

	var topoErr *topology.TopologyError
	var capErr *cpuallocator.CapacityError
	var maskErr *cpumask.InvalidMaskSizeError

	switch {
	case errors.Is(err, ErrInvalidArguments):
		return ExitInvalidArguments
	case errors.As(err, &topoErr):
		return ExitTopology
	case errors.As(err, &capErr):
		return ExitCapacity
	case errors.As(err, &maskErr):
		return ExitMaskSize
	}
	return ExitFailure
}

func Execute() error {
	return execute(NewRootCommand(), nil)
}

// execute runs rootCmd with args (os.Args when nil). Any failure raised
// before a subcommand's RunE starts (unknown commands or flags, bad
// positional arguments, missing required flags, flag group violations) is
// reported as ErrInvalidArguments.
func execute(rootCmd *cobra.Command, args []string) error {
	ran := false
	for _, sub := range rootCmd.Commands() {
		if sub.RunE == nil {
			continue
		}
		runE := sub.RunE
		sub.RunE = func(cmd *cobra.Command, args []string) error {
			ran = true
			return runE(cmd, args)
		}
	}
	if args != nil {
		rootCmd.SetArgs(args)
	}

	err := rootCmd.Execute()
	if err != nil && !ran && !errors.Is(err, ErrInvalidArguments) {
		return fmt.Errorf("%w: %v", ErrInvalidArguments, err)
	}
	return err
}

// envFiles lists the .env candidates in lookup order: the working
// directory, then the directory holding the binary.
func envFiles() []string {
	files := []string{".env"}
	if execPath, err := os.Executable(); err == nil {
		files = append(files, filepath.Join(filepath.Dir(execPath), ".env"))
	}
	return files
}

// loadEnvironment loads the first .env file found. Variables already set in
// the environment win over the file.
func loadEnvironment() {
	logger := logging.GetLogger()

	for _, envFile := range envFiles() {
		if _, err := os.Stat(envFile); err != nil {
			continue
		}
		entry := logger.WithField("file", envFile)
		if err := godotenv.Load(envFile); err != nil {
			entry.WithError(err).Warn("Ignoring unreadable .env file")
		} else {
			entry.Debug("Loaded environment variables")
		}
		return
	}
}

func NewRootCommand() *cobra.Command {
	var logLevel string
	var verbose bool

	rootCmd := &cobra.Command{
		Use:   "reactor-balance",
		Short: "Balanced CPU core allocation for OSD reactor threads",
		Long: "Computes which physical CPU cores each OSD's reactor threads should be pinned to, " +
			"based on the NUMA topology reported by lscpu --json, and which hyperthread siblings to disable.",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if verbose && logLevel == "" {
				logLevel = "debug"
			}
			if logLevel != "" {
				if err := setLogLevel(logLevel); err != nil {
					return err
				}
			}
			loadEnvironment()
			return nil
		},
	}

	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Set log level (trace, debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose (debug) logging")

	rootCmd.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return fmt.Errorf("%w: %v", ErrInvalidArguments, err)
	})

	rootCmd.AddCommand(newBalanceCommand())
	rootCmd.AddCommand(newMaskCommand())
	rootCmd.AddCommand(newTopologyCommand())
	rootCmd.AddCommand(newValidateCommand())

	return rootCmd
}

func setLogLevel(level string) error {
	if err := logging.SetLevel(level); err != nil {
		return fmt.Errorf("%w: invalid log level: %v", ErrInvalidArguments, err)
	}
	return nil
}
