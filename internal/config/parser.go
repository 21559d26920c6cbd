package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"reactor-balance/internal/cpuallocator"
	"reactor-balance/internal/logging"
	"reactor-balance/internal/output"

	"github.com/sirupsen/logrus"
	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"
)

func LoadConfig(filepath string) (*BalanceConfig, error) {
	config, _, err := LoadConfigWithContent(filepath)
	return config, err
}

func LoadConfigWithContent(filepath string) (*BalanceConfig, string, error) {
	config, originalContent, err := readConfig(filepath)
	if err != nil {
		return nil, "", err
	}

	if err := Validate(config); err != nil {
		return nil, "", fmt.Errorf("invalid config: %w", err)
	}
	return config, originalContent, nil
}

// ReadConfig loads and expands a config file and fills in defaults without
// validating it, so command line flags can still supply missing values.
func ReadConfig(filepath string) (*BalanceConfig, error) {
	config, _, err := readConfig(filepath)
	return config, err
}

func readConfig(filepath string) (*BalanceConfig, string, error) {
	logger := logging.GetLogger()

	data, err := os.ReadFile(filepath)
	if err != nil {
		logger.WithField("filepath", filepath).WithError(err).Error("Failed to read config file")
		return nil, "", err
	}

	originalContent := string(data)

	// Expand environment variables
	expanded := expandEnvVars(originalContent)

	var config BalanceConfig
	if err := yaml.Unmarshal([]byte(expanded), &config); err != nil {
		logger.WithField("filepath", filepath).WithError(err).Error("Failed to parse config file")
		return nil, "", err
	}

	applyDefaults(&config)

	logger.WithFields(logrus.Fields{
		"filepath":  filepath,
		"instances": config.Balance.Instances,
		"reactors":  config.Balance.Reactors,
		"strategy":  config.Balance.Strategy,
	}).Debug("Loaded balance configuration")

	return &config, originalContent, nil
}

var envVarRe = regexp.MustCompile(`\$\{([^}]+)\}`)

// Unset variables are left as written so validation can point at them.
func expandEnvVars(content string) string {
	return envVarRe.ReplaceAllStringFunc(content, func(match string) string {
		envVar := strings.Trim(match, "${}")
		if value := os.Getenv(envVar); value != "" {
			return value
		}
		return match
	})
}

// Validate reports every problem in the configuration at once.
func Validate(config *BalanceConfig) error {
	var errs error
	b := config.Balance

	if b.Lscpu == "" {
		errs = multierr.Append(errs, fmt.Errorf("lscpu file is required"))
	} else if envVarRe.MatchString(b.Lscpu) {
		errs = multierr.Append(errs, fmt.Errorf("lscpu references an unset environment variable: %s", b.Lscpu))
	}

	if b.Instances <= 0 {
		errs = multierr.Append(errs, fmt.Errorf("instances must be greater than 0"))
	}
	if b.Reactors <= 0 {
		errs = multierr.Append(errs, fmt.Errorf("reactors must be greater than 0"))
	}

	if _, err := cpuallocator.ParseStrategy(b.Strategy); err != nil {
		errs = multierr.Append(errs, err)
	}
	if _, err := output.ParseFormat(b.Output); err != nil {
		errs = multierr.Append(errs, err)
	}
	if b.LogLevel != "" {
		if _, err := logrus.ParseLevel(b.LogLevel); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("invalid log_level: %w", err))
		}
	}

	return errs
}
