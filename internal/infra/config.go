package infra

import (
	"fmt"
	"os"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// AssetConfig seeds one ledger catalog entry.
type AssetConfig struct {
	Symbol   string          `yaml:"symbol"`
	Name     string          `yaml:"name"`
	Decimals int32           `yaml:"decimals"`
	Balance  decimal.Decimal `yaml:"balance"`
	Price    decimal.Decimal `yaml:"price"`
}

// StakingAssetConfig seeds one staking catalog entry.
type StakingAssetConfig struct {
	ID          string          `yaml:"id"`
	Symbol      string          `yaml:"symbol"`
	Name        string          `yaml:"name"`
	BaseAPY     decimal.Decimal `yaml:"base_apy"`
	MinStake    decimal.Decimal `yaml:"min_stake"`
	MaxStake    decimal.Decimal `yaml:"max_stake"`
	LockPeriods []int           `yaml:"lock_periods"`
	TVL         decimal.Decimal `yaml:"tvl"`
	Risk        string          `yaml:"risk"`
}

// Config holds every application setting. Sensitive or deployment-specific
// values can be overridden through environment variables after loading.
type Config struct {
	App struct {
		Name    string `yaml:"name"`
		Version string `yaml:"version"`
	} `yaml:"app"`

	Assets []AssetConfig `yaml:"assets"`

	Trading struct {
		Quote            string          `yaml:"quote"`
		FeeRate          decimal.Decimal `yaml:"fee_rate"`
		SweepIntervalSec int             `yaml:"sweep_interval_sec"`
	} `yaml:"trading"`

	Feed struct {
		WSURL   string   `yaml:"ws_url"`
		Symbols []string `yaml:"symbols"`
	} `yaml:"feed"`

	Staking struct {
		Assets []StakingAssetConfig `yaml:"assets"`
	} `yaml:"staking"`

	Faucet struct {
		ListenAddr  string          `yaml:"listen_addr"`
		Asset       string          `yaml:"asset"`
		Amount      decimal.Decimal `yaml:"amount"`
		CooldownSec int             `yaml:"cooldown_sec"`
		RatePerSec  float64         `yaml:"rate_per_sec"`
		Burst       int             `yaml:"burst"`
	} `yaml:"faucet"`

	Logging struct {
		Level string `yaml:"level"`
	} `yaml:"logging"`
}

// LoadConfig reads and parses the configuration file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	overrideWithEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// Validate checks configuration validity
func (c *Config) Validate() error {
	if len(c.Assets) == 0 {
		return fmt.Errorf("at least one asset is required")
	}
	for _, a := range c.Assets {
		if a.Symbol == "" {
			return fmt.Errorf("asset symbol must not be empty")
		}
		if a.Balance.IsNegative() || a.Price.IsNegative() {
			return fmt.Errorf("asset %s: balance and price must be non-negative", a.Symbol)
		}
	}

	if c.Trading.Quote == "" {
		return fmt.Errorf("trading quote asset is required")
	}
	if c.Trading.FeeRate.IsNegative() {
		return fmt.Errorf("fee rate must be non-negative")
	}
	if c.Trading.SweepIntervalSec <= 0 {
		return fmt.Errorf("sweep interval must be positive")
	}

	if c.Feed.WSURL != "" && !hasPrefix(c.Feed.WSURL, "ws://") && !hasPrefix(c.Feed.WSURL, "wss://") {
		return fmt.Errorf("invalid feed WS URL: %s", c.Feed.WSURL)
	}

	for _, s := range c.Staking.Assets {
		if s.MinStake.GreaterThan(s.MaxStake) {
			return fmt.Errorf("staking asset %s: min_stake exceeds max_stake", s.ID)
		}
		for _, months := range s.LockPeriods {
			if months < 0 {
				return fmt.Errorf("staking asset %s: negative lock period", s.ID)
			}
		}
	}

	if c.Faucet.ListenAddr != "" {
		if !c.Faucet.Amount.IsPositive() {
			return fmt.Errorf("faucet amount must be positive")
		}
		if c.Faucet.CooldownSec <= 0 {
			return fmt.Errorf("faucet cooldown must be positive")
		}
	}

	return nil
}

func hasPrefix(s, prefix string) bool {
	return len(s) >= len(prefix) && s[0:len(prefix)] == prefix
}

// overrideWithEnv replaces settings with environment values when present.
func overrideWithEnv(cfg *Config) {
	if url := os.Getenv("ETODESK_FEED_URL"); url != "" {
		cfg.Feed.WSURL = url
	}
	if addr := os.Getenv("ETODESK_FAUCET_ADDR"); addr != "" {
		cfg.Faucet.ListenAddr = addr
	}
	if level := os.Getenv("ETODESK_LOG_LEVEL"); level != "" {
		cfg.Logging.Level = level
	}
}
