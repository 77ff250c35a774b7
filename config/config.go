package config

import (
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

// CircleGenesis describes the circle created on first boot when no circle
// record exists in state yet.
type CircleGenesis struct {
	Owner             string   `toml:"Owner"`
	Token             string   `toml:"Token"`
	DepositAmount     string   `toml:"DepositAmount"`
	CycleIntervalSecs uint64   `toml:"CycleIntervalSecs"`
	JoinDeadlineSecs  uint64   `toml:"JoinDeadlineSecs"`
	ReserveAmount     string   `toml:"ReserveAmount"`
	Roster            []string `toml:"Roster"`
}

type Config struct {
	RPCAddress     string        `toml:"RPCAddress"`
	MetricsAddress string        `toml:"MetricsAddress"`
	DataDir        string        `toml:"DataDir"`
	NetworkName    string        `toml:"NetworkName"`
	Circle         CircleGenesis `toml:"circle"`
}

// Load loads the configuration from the given path, creating a default file
// when none exists yet.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	applyDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if strings.TrimSpace(cfg.RPCAddress) == "" {
		cfg.RPCAddress = "127.0.0.1:8645"
	}
	if strings.TrimSpace(cfg.MetricsAddress) == "" {
		cfg.MetricsAddress = "127.0.0.1:9465"
	}
	if strings.TrimSpace(cfg.DataDir) == "" {
		cfg.DataDir = "./data"
	}
	if strings.TrimSpace(cfg.NetworkName) == "" {
		cfg.NetworkName = "rosca-local"
	}
}

func createDefault(path string) (*Config, error) {
	cfg := &Config{
		Circle: CircleGenesis{
			Token:             "RSC",
			DepositAmount:     "10000",
			CycleIntervalSecs: 604800,
			JoinDeadlineSecs:  86400,
			ReserveAmount:     "0",
		},
	}
	applyDefaults(cfg)
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	if err := toml.NewEncoder(f).Encode(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks structural config invariants. The genesis block is only
// validated when an owner is configured, since a node may also serve an
// already-created circle.
func (c *Config) Validate() error {
	if c == nil {
		return fmt.Errorf("config: nil config")
	}
	if strings.TrimSpace(c.DataDir) == "" {
		return fmt.Errorf("config: DataDir required")
	}
	if strings.TrimSpace(c.Circle.Owner) == "" {
		return nil
	}
	if strings.TrimSpace(c.Circle.Token) == "" {
		return fmt.Errorf("config: circle Token required")
	}
	if _, err := c.DepositAmount(); err != nil {
		return err
	}
	if _, err := c.ReserveAmount(); err != nil {
		return err
	}
	if c.Circle.CycleIntervalSecs == 0 {
		return fmt.Errorf("config: circle CycleIntervalSecs must be positive")
	}
	return nil
}

// DepositAmount parses the configured per-cycle deposit.
func (c *Config) DepositAmount() (*big.Int, error) {
	amount, ok := new(big.Int).SetString(strings.TrimSpace(c.Circle.DepositAmount), 10)
	if !ok || amount.Sign() <= 0 {
		return nil, fmt.Errorf("config: circle DepositAmount must be a positive integer")
	}
	return amount, nil
}

// ReserveAmount parses the vault reserve minted at genesis. The reserve backs
// full-pot payouts under partial participation.
func (c *Config) ReserveAmount() (*big.Int, error) {
	trimmed := strings.TrimSpace(c.Circle.ReserveAmount)
	if trimmed == "" {
		return big.NewInt(0), nil
	}
	amount, ok := new(big.Int).SetString(trimmed, 10)
	if !ok || amount.Sign() < 0 {
		return nil, fmt.Errorf("config: circle ReserveAmount must be a non-negative integer")
	}
	return amount, nil
}
