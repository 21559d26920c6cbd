package config

import (
	"reactor-balance/internal/cpuallocator"
)

const (
	DefaultInstances = 8
	DefaultReactors  = 3
	DefaultOutput    = "text"
	DefaultLogLevel  = "info"
)

type BalanceConfig struct {
	Balance BalanceInfo `yaml:"balance"`
}

type BalanceInfo struct {
	Lscpu     string `yaml:"lscpu"`
	Taskset   string `yaml:"taskset,omitempty"`
	Instances int    `yaml:"instances"`
	Reactors  int    `yaml:"reactors"`
	Strategy  string `yaml:"strategy,omitempty"`
	Output    string `yaml:"output,omitempty"`
	LogLevel  string `yaml:"log_level,omitempty"`
}

// Default returns the configuration used when no file is given.
func Default() *BalanceConfig {
	cfg := &BalanceConfig{}
	applyDefaults(cfg)
	return cfg
}

func applyDefaults(cfg *BalanceConfig) {
	if cfg.Balance.Instances == 0 {
		cfg.Balance.Instances = DefaultInstances
	}
	if cfg.Balance.Reactors == 0 {
		cfg.Balance.Reactors = DefaultReactors
	}
	if cfg.Balance.Strategy == "" {
		cfg.Balance.Strategy = string(cpuallocator.StrategyInstance)
	}
	if cfg.Balance.Output == "" {
		cfg.Balance.Output = DefaultOutput
	}
	if cfg.Balance.LogLevel == "" {
		cfg.Balance.LogLevel = DefaultLogLevel
	}
}

// Request converts the balance section into an allocation request.
func (c *BalanceConfig) Request() (cpuallocator.Request, error) {
	strategy, err := cpuallocator.ParseStrategy(c.Balance.Strategy)
	if err != nil {
		return cpuallocator.Request{}, err
	}
	return cpuallocator.Request{
		NumInstances:        c.Balance.Instances,
		ReactorsPerInstance: c.Balance.Reactors,
		Strategy:            strategy,
	}, nil
}
