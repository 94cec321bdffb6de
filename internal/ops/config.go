// Package ops loads the backtest run configuration.
package ops

import (
	"os"

	"github.com/bytedance/sonic"
	"github.com/shopspring/decimal"
	"github.com/yanun0323/errors"

	"backtester/internal/risk"
	"backtester/internal/strategy"
	"backtester/pkg/exception"
)

const (
	DefaultInstrument    = "BTCUSD"
	DefaultLogEvery      = 1000
	DefaultJournalPrefix = "backtest"
)

// DefaultSlippage is the absolute price adjustment applied to market fills.
var DefaultSlippage = decimal.RequireFromString("0.01")

// Config mirrors the JSON config layout.
type Config struct {
	Instrument string          `json:"instrument"`
	Slippage   decimal.Decimal `json:"slippage"`
	LogEvery   int             `json:"logEvery"`
	Strategy   StrategyConfig  `json:"strategy"`
	Risk       risk.Config     `json:"risk"`
	Journal    JournalConfig   `json:"journal"`
}

// StrategyConfig selects a registered strategy and its parameters.
type StrategyConfig struct {
	Name   string          `json:"name"`
	Params strategy.Params `json:"params"`
}

// JournalConfig enables the run journal when Dir is set.
type JournalConfig struct {
	Dir    string `json:"dir"`
	Prefix string `json:"prefix"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Instrument: DefaultInstrument,
		Slippage:   DefaultSlippage,
		LogEvery:   DefaultLogEvery,
		Strategy: StrategyConfig{
			Name:   strategy.MACrossoverName,
			Params: strategy.Params{},
		},
		Journal: JournalConfig{Prefix: DefaultJournalPrefix},
	}
}

// Load reads a JSON config file. An empty path returns Default.
func Load(path string) (Config, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, errors.Wrapf(err, "read config %s", path)
	}
	return Parse(data)
}

// Parse decodes a JSON document over Default, so absent fields keep their
// default values, then validates the result.
func Parse(data []byte) (Config, error) {
	cfg := Default()
	if err := sonic.ConfigStd.Unmarshal(data, &cfg); err != nil {
		return Config{}, errors.Wrapf(exception.ErrInvalidConfig, "decode config: %v", err)
	}
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) withDefaults() Config {
	if c.Instrument == "" {
		c.Instrument = DefaultInstrument
	}
	if c.Strategy.Name == "" {
		c.Strategy.Name = strategy.MACrossoverName
	}
	if c.Strategy.Params == nil {
		c.Strategy.Params = strategy.Params{}
	}
	if c.Journal.Prefix == "" {
		c.Journal.Prefix = DefaultJournalPrefix
	}
	return c
}

// Validate checks if the configuration is usable.
func (c Config) Validate() error {
	if c.LogEvery < 0 {
		return errors.Wrap(exception.ErrInvalidConfig, "logEvery must be >= 0")
	}
	if !isRegistered(c.Strategy.Name) {
		return errors.Wrapf(exception.ErrStrategyUnknown, "%q", c.Strategy.Name)
	}
	if c.Risk.OrderRateLimit < 0 || c.Risk.OrderRateWindow < 0 || c.Risk.MaxPriceDeviationBps < 0 {
		return errors.Wrap(exception.ErrInvalidConfig, "risk limits must be >= 0")
	}
	return nil
}

// StrategyParams returns the strategy parameters with the top-level
// instrument filled in when the strategy block does not name one.
func (c Config) StrategyParams() strategy.Params {
	params := make(strategy.Params, len(c.Strategy.Params)+1)
	for k, v := range c.Strategy.Params {
		params[k] = v
	}
	if _, ok := params["instrument"]; !ok {
		params["instrument"] = c.Instrument
	}
	return params
}

func isRegistered(name string) bool {
	for _, n := range strategy.Names() {
		if n == name {
			return true
		}
	}
	return false
}
