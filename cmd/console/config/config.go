package config

import (
	"fmt"
	"maps"
	"math/big"
	"os"
	"slices"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"gopkg.in/yaml.v3"
)

const (
	DefaultLogFile   = "console.log"
	DefaultStartTime = 1
)

// Mint credits an account with an asset when the console starts.
type Mint struct {
	Account string   `yaml:"account"`
	Token   string   `yaml:"token"`
	Amount  *big.Int `yaml:"amount"`
}

// Pool is a pool deployed when the console starts.
type Pool struct {
	// Type is "constant_product" or "stableswap".
	Type          string   `yaml:"type"`
	Tokens        []string `yaml:"tokens"`
	FeeBps        uint32   `yaml:"fee_bps"`
	Amplification uint64   `yaml:"amplification"`
}

// ConsoleConfig describes the sandbox the console runs against. Every
// account or token field takes either a hex address or a key of Accounts.
type ConsoleConfig struct {
	LogFile        string            `yaml:"log_file"`
	StartTime      uint64            `yaml:"start_time"`
	Router         string            `yaml:"router"`
	Admin          string            `yaml:"admin"`
	RewardToken    string            `yaml:"reward_token"`
	MaxStablePools int               `yaml:"max_stable_pools"`
	Accounts       map[string]string `yaml:"accounts"`
	Mints          []Mint            `yaml:"mints"`
	Pools          []Pool            `yaml:"pools"`
}

// LoadConfig reads a configuration file from the given path and unmarshals it
// into a ConsoleConfig struct.
func LoadConfig(path string) (*ConsoleConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg ConsoleConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	if cfg.LogFile == "" {
		cfg.LogFile = DefaultLogFile
	}
	if cfg.StartTime == 0 {
		cfg.StartTime = DefaultStartTime
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *ConsoleConfig) validate() error {
	for _, field := range []struct{ name, value string }{
		{"router", c.Router},
		{"admin", c.Admin},
		{"reward_token", c.RewardToken},
	} {
		if _, err := c.Resolve(field.value); err != nil {
			return fmt.Errorf("config: %s: %w", field.name, err)
		}
	}
	if c.MaxStablePools < 0 {
		return fmt.Errorf("config: max_stable_pools cannot be negative")
	}
	for i, m := range c.Mints {
		if _, err := c.Resolve(m.Account); err != nil {
			return fmt.Errorf("config: mints[%d].account: %w", i, err)
		}
		if _, err := c.Resolve(m.Token); err != nil {
			return fmt.Errorf("config: mints[%d].token: %w", i, err)
		}
		if m.Amount == nil || m.Amount.Sign() <= 0 {
			return fmt.Errorf("config: mints[%d].amount must be positive", i)
		}
	}
	for i, p := range c.Pools {
		if p.Type != "constant_product" && p.Type != "stableswap" {
			return fmt.Errorf("config: pools[%d].type %q is not constant_product or stableswap", i, p.Type)
		}
		if _, err := c.ResolveAll(p.Tokens); err != nil {
			return fmt.Errorf("config: pools[%d].tokens: %w", i, err)
		}
	}
	return nil
}

// Resolve turns an alias or a hex string into an address.
func (c *ConsoleConfig) Resolve(name string) (common.Address, error) {
	name = strings.TrimSpace(name)
	if hex, ok := c.Accounts[name]; ok {
		name = hex
	}
	if !common.IsHexAddress(name) {
		return common.Address{}, fmt.Errorf("%q is neither a known alias nor a hex address", name)
	}
	return common.HexToAddress(name), nil
}

// ResolveAll resolves every name in names.
func (c *ConsoleConfig) ResolveAll(names []string) ([]common.Address, error) {
	out := make([]common.Address, len(names))
	for i, n := range names {
		addr, err := c.Resolve(n)
		if err != nil {
			return nil, err
		}
		out[i] = addr
	}
	return out, nil
}

// Alias returns the alias of addr, or its hex form if it has none.
func (c *ConsoleConfig) Alias(addr common.Address) string {
	for _, alias := range slices.Sorted(maps.Keys(c.Accounts)) {
		hex := c.Accounts[alias]
		if common.IsHexAddress(hex) && common.HexToAddress(hex) == addr {
			return alias
		}
	}
	return addr.Hex()
}
