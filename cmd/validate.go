package cmd

import (
	"fmt"

	"reactor-balance/internal/config"
	"reactor-balance/internal/cpumask"
	"reactor-balance/internal/logging"

	"github.com/spf13/cobra"
)

func newValidateCommand() *cobra.Command {
	var configFile string

	validateCmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate a balance configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return validateConfig(configFile)
		},
	}

	validateCmd.Flags().StringVarP(&configFile, "config", "c", "", "Path to balance configuration file")
	validateCmd.MarkFlagRequired("config")

	return validateCmd
}

func validateConfig(configFile string) error {
	logger := logging.GetLogger().WithField("config_file", configFile)

	cfg, err := config.LoadConfig(configFile)
	if err != nil {
		logger.WithError(err).Error("Configuration validation failed")
		return fmt.Errorf("%w: %v", ErrInvalidArguments, err)
	}

	// balance falls back to treating every CPU as available in this case,
	// which is rarely what the file's author meant.
	if cfg.Balance.Taskset != "" {
		if _, err := cpumask.ParseHex(cfg.Balance.Taskset); err != nil {
			logger.WithField("taskset", cfg.Balance.Taskset).WithError(err).
				Warn("Malformed taskset mask, all CPUs would be treated as available")
		}
	}

	logger.Info("Configuration is valid")
	return nil
}
